package batch

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Mode Flags
// --------------------------------------------------------------------------

// Flag represents batch mode options as bit flags
type Flag uint32

const (
	FlagQuiet           Flag = 1 << iota // "not found" on read and delete ops does not fail the batch
	FlagDurability                       // successful mutations are followed by an endure request
	FlagItems                            // results are created as items
	FlagUserAllocated                    // the caller supplied the result records up front
	FlagForceBytes                       // values are returned as raw bytes regardless of their flags
	FlagAllowDuplicates                  // repeated completions for a key reuse the record silently
)

var flagNames = []struct {
	flag Flag
	name string
}{
	{FlagQuiet, "quiet"},
	{FlagDurability, "durability"},
	{FlagItems, "items"},
	{FlagUserAllocated, "user-allocated"},
	{FlagForceBytes, "force-bytes"},
	{FlagAllowDuplicates, "allow-duplicates"},
}

// Has reports whether all bits of o are set in f.
func (f Flag) Has(o Flag) bool {
	return f&o == o
}

// String returns the flags as a list of names separated by "|".
func (f Flag) String() string {
	if f == 0 {
		return "none"
	}
	var names []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}
	return strings.Join(names, "|")
}

// --------------------------------------------------------------------------
// Durability
// --------------------------------------------------------------------------

// Durability holds the durability targets of a batch.
// A negative value means "as many nodes as the cluster has" (capped mode).
type Durability struct {
	PersistTo   int
	ReplicateTo int
}

// Required reports whether any durability target is set.
func (d Durability) Required() bool {
	return d.PersistTo != 0 || d.ReplicateTo != 0
}

// CapMax reports whether the targets have to be capped to the cluster size.
func (d Durability) CapMax() bool {
	return d.PersistTo < 0 || d.ReplicateTo < 0
}

// String returns a short representation of the targets.
func (d Durability) String() string {
	return fmt.Sprintf("persist_to=%d replicate_to=%d", d.PersistTo, d.ReplicateTo)
}
