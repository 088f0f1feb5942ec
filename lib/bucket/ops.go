package bucket

import (
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/dCB/lib/engine"
	"github.com/ValentinKolb/dCB/lib/result"
)

// Doc is a document as returned by the read operations.
type Doc struct {
	Value []byte
	Flags uint32
	Cas   uint64
}

func (e entry) doc() Doc {
	value := make([]byte, len(e.value))
	copy(value, e.value)
	return Doc{Value: value, Flags: e.flags, Cas: e.cas}
}

func clampLock(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultLockTime
	}
	if d > MaxLockTime {
		return MaxLockTime
	}
	return d
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Get returns the document for a key. A positive lockTime locks the key: the
// returned cas is the lock cas, and until the lock expires only operations that
// present it (or Unlock) may modify the key.
func (b *Bucket) Get(key string, lockTime time.Duration) (Doc, result.Status) {
	b.cmdGet.Add(1)
	now := b.now()

	if lockTime == 0 {
		e, ok := b.data.Load(key)
		if !ok || !e.live(now) {
			b.getMisses.Add(1)
			return Doc{}, result.StatusKeyNotFound
		}
		b.getHits.Add(1)
		return e.doc(), result.StatusSuccess
	}

	var (
		doc    Doc
		status = result.StatusSuccess
	)
	b.data.Compute(key, func(e entry, loaded bool) (entry, bool) {
		if !loaded || !e.live(now) {
			status = result.StatusKeyNotFound
			return e, !loaded
		}
		if e.locked(now) {
			status = result.StatusLocked
			return e, false
		}
		e.lockedUntil = now.Add(clampLock(lockTime))
		e.cas = b.nextCas()
		doc = e.doc()
		return e, false
	})

	switch status {
	case result.StatusSuccess:
		b.getHits.Add(1)
	case result.StatusKeyNotFound:
		b.getMisses.Add(1)
	case result.StatusLocked:
		b.lockErrors.Add(1)
	}
	return doc, status
}

// GetReplica returns the document as seen by a replica node. index selects the
// replica, -1 returns the first replica that holds the current version.
func (b *Bucket) GetReplica(key string, index int) (Doc, result.Status) {
	b.cmdGet.Add(1)
	if b.opts.Replicas == 0 {
		return Doc{}, result.StatusNoMatchingServer
	}
	if index >= b.opts.Replicas || index < -1 {
		return Doc{}, result.StatusInvalidArgs
	}

	now := b.now()
	e, ok := b.data.Load(key)
	if !ok || !e.live(now) {
		b.getMisses.Add(1)
		return Doc{}, result.StatusKeyNotFound
	}

	// all replicas receive a mutation after the same delay
	v := b.view(e, true, false, now)
	if (v.state == result.KeyStateFound || v.state == result.KeyStatePersisted) && v.cas == e.cas {
		b.getHits.Add(1)
		return e.doc(), result.StatusSuccess
	}
	b.getMisses.Add(1)
	return Doc{}, result.StatusKeyNotFound
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Store writes a document according to mode and returns the new cas. A non-zero
// cas must match the current cas of the document.
func (b *Bucket) Store(mode engine.StoreMode, key string, value []byte, flags uint32, cas uint64, expiry time.Duration) (uint64, result.Status) {
	b.cmdSet.Add(1)
	if len(value) > b.opts.MaxValueSize {
		return 0, result.StatusTooBig
	}

	now := b.now()
	var (
		newCas uint64
		status = result.StatusSuccess
	)
	b.data.Compute(key, func(e entry, loaded bool) (entry, bool) {
		exists := loaded && e.live(now)
		if exists && e.locked(now) && cas != e.cas {
			status = result.StatusLocked
			return e, false
		}

		switch mode {
		case engine.StoreSet:
			if cas != 0 && !exists {
				status = result.StatusKeyNotFound
			} else if cas != 0 && cas != e.cas {
				status = result.StatusKeyExists
			}
		case engine.StoreAdd:
			if exists {
				status = result.StatusKeyExists
			}
		case engine.StoreReplace:
			if !exists {
				status = result.StatusKeyNotFound
			} else if cas != 0 && cas != e.cas {
				status = result.StatusKeyExists
			}
		case engine.StoreAppend, engine.StorePrepend:
			if !exists {
				status = result.StatusNotStored
			} else if cas != 0 && cas != e.cas {
				status = result.StatusKeyExists
			}
		default:
			status = result.StatusInvalidArgs
		}
		if status != result.StatusSuccess {
			return e, !loaded
		}

		data := make([]byte, 0, len(value))
		switch mode {
		case engine.StoreAppend:
			data = append(append(data, e.value...), value...)
			flags = e.flags
		case engine.StorePrepend:
			data = append(append(data, value...), e.value...)
			flags = e.flags
		default:
			data = append(data, value...)
		}
		if len(data) > b.opts.MaxValueSize {
			status = result.StatusTooBig
			return e, !loaded
		}

		var prevCas uint64
		if exists {
			prevCas = e.cas
		}
		if loaded && !e.deleted {
			b.sizes.Remove(len(e.value))
		} else {
			b.totalItems.Add(1)
		}
		b.sizes.Add(len(data))

		newCas = b.nextCas()
		ne := entry{
			value:     data,
			flags:     flags,
			cas:       newCas,
			mutatedAt: now,
			prevCas:   prevCas,
		}
		if expiry > 0 {
			ne.expireAt = now.Add(expiry)
		}
		return ne, false
	})

	if status == result.StatusKeyExists {
		b.casMisses.Add(1)
	} else if status == result.StatusLocked {
		b.lockErrors.Add(1)
	}
	return newCas, status
}

// Remove deletes a document and returns the cas of the deletion.
func (b *Bucket) Remove(key string, cas uint64) (uint64, result.Status) {
	now := b.now()
	var (
		newCas uint64
		status = result.StatusSuccess
	)
	b.data.Compute(key, func(e entry, loaded bool) (entry, bool) {
		if !loaded || !e.live(now) {
			status = result.StatusKeyNotFound
			return e, !loaded
		}
		if e.locked(now) && cas != e.cas {
			status = result.StatusLocked
			return e, false
		}
		if cas != 0 && cas != e.cas {
			status = result.StatusKeyExists
			return e, false
		}

		b.sizes.Remove(len(e.value))
		newCas = b.nextCas()
		return entry{
			cas:       newCas,
			deleted:   true,
			mutatedAt: now,
			prevCas:   e.cas,
		}, false
	})

	switch status {
	case result.StatusSuccess:
		b.deleteHits.Add(1)
	case result.StatusKeyExists:
		b.casMisses.Add(1)
	case result.StatusLocked:
		b.lockErrors.Add(1)
	}
	return newCas, status
}

// Touch updates the expiry of a document (0 removes the expiry) and returns the new cas.
func (b *Bucket) Touch(key string, expiry time.Duration) (uint64, result.Status) {
	now := b.now()
	var (
		newCas uint64
		status = result.StatusSuccess
	)
	b.data.Compute(key, func(e entry, loaded bool) (entry, bool) {
		if !loaded || !e.live(now) {
			status = result.StatusKeyNotFound
			return e, !loaded
		}
		if e.locked(now) {
			status = result.StatusLocked
			return e, false
		}
		e.expireAt = time.Time{}
		if expiry > 0 {
			e.expireAt = now.Add(expiry)
		}
		e.prevCas = e.cas
		e.cas = b.nextCas()
		e.mutatedAt = now
		newCas = e.cas
		return e, false
	})
	return newCas, status
}

// Unlock releases the lock of a document. cas must be the lock cas.
func (b *Bucket) Unlock(key string, cas uint64) result.Status {
	now := b.now()
	status := result.StatusSuccess
	b.data.Compute(key, func(e entry, loaded bool) (entry, bool) {
		switch {
		case !loaded || !e.live(now):
			status = result.StatusKeyNotFound
			return e, !loaded
		case !e.locked(now):
			status = result.StatusTempFail
		case cas != e.cas:
			status = result.StatusLocked
		default:
			e.lockedUntil = time.Time{}
		}
		return e, false
	})
	return status
}

// Counter adds delta to the decimal value of a document and returns the new value.
// Decrementing never goes below zero. If the document does not exist and create
// is set, it is created with initial.
func (b *Bucket) Counter(key string, delta int64, initial uint64, create bool, expiry time.Duration) (uint64, uint64, result.Status) {
	b.cmdSet.Add(1)
	now := b.now()
	var (
		value  uint64
		newCas uint64
		status = result.StatusSuccess
	)
	b.data.Compute(key, func(e entry, loaded bool) (entry, bool) {
		exists := loaded && e.live(now)
		var prevCas uint64
		expireAt := time.Time{}

		if exists {
			if e.locked(now) {
				status = result.StatusLocked
				return e, false
			}
			cur, err := strconv.ParseUint(strings.TrimSpace(string(e.value)), 10, 64)
			if err != nil {
				status = result.StatusDeltaBadValue
				return e, false
			}
			switch {
			case delta >= 0:
				value = cur + uint64(delta)
			case uint64(-delta) > cur:
				value = 0
			default:
				value = cur - uint64(-delta)
			}
			prevCas = e.cas
			expireAt = e.expireAt
		} else {
			if !create {
				status = result.StatusKeyNotFound
				return e, !loaded
			}
			value = initial
			if expiry > 0 {
				expireAt = now.Add(expiry)
			}
			b.totalItems.Add(1)
		}

		if loaded && !e.deleted {
			b.sizes.Remove(len(e.value))
		}
		data := []byte(strconv.FormatUint(value, 10))
		b.sizes.Add(len(data))

		newCas = b.nextCas()
		return entry{
			value:     data,
			cas:       newCas,
			expireAt:  expireAt,
			mutatedAt: now,
			prevCas:   prevCas,
		}, false
	})
	return value, newCas, status
}
