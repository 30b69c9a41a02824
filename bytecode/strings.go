package bytecode

import "hash/fnv"

// StringTable interns string literals and symbol names used as bytecode
// operands (field/method/class names). Per spec.md §8's round-trip law,
// intern(s) is idempotent and intern(s1) == intern(s2) iff s1 == s2.
//
// Grounded on the original source's global string registry
// (src/vm/string_manager/global_string_registry.c): hash first, only
// byte-compare on collision, rather than a linear string compare per
// candidate.
type StringTable struct {
	values  []string
	hashes  []uint32
	byHash  map[uint32][]uint32 // hash -> candidate 1-based ids
}

// NewStringTable creates an empty table. IDs are 1-based; 0 means absent
// (spec.md §3.3).
func NewStringTable() *StringTable {
	return &StringTable{byHash: make(map[uint32][]uint32)}
}

func hashString(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

// Intern returns s's 1-based string id, assigning a new one on first sight.
func (t *StringTable) Intern(s string) uint32 {
	h := hashString(s)
	for _, id := range t.byHash[h] {
		if t.values[id-1] == s {
			return id
		}
	}
	t.values = append(t.values, s)
	t.hashes = append(t.hashes, h)
	id := uint32(len(t.values))
	t.byHash[h] = append(t.byHash[h], id)
	return id
}

// Get returns the string for a 1-based id.
func (t *StringTable) Get(id uint32) (string, bool) {
	if id == 0 || int(id) > len(t.values) {
		return "", false
	}
	return t.values[id-1], true
}

// Len reports how many distinct strings have been interned.
func (t *StringTable) Len() int {
	return len(t.values)
}

// All returns the interned strings in id order (index 0 == id 1).
func (t *StringTable) All() []string {
	return t.values
}
