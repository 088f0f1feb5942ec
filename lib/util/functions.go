package util

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

// HashKey returns the FNV-1a hash of a key mixed with a seed.
func HashKey(key string, seed uint64) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	hash := uint64(offset64) ^ seed
	for i := 0; i < len(key); i++ {
		hash ^= uint64(key[i])
		hash *= prime64
	}
	return hash
}

// Partition maps a key onto one of n partitions (n > 0).
func Partition(key string, n int) int {
	if n <= 1 {
		return 0
	}
	return int(HashKey(key, 0) % uint64(n))
}
