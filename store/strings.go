package store

import "slices"

// StringTable interns strings and hands out dense ids in insertion order.
type StringTable struct {
	strs []string
	ids  map[string]uint32
}

// NewStringTable creates a table holding strs in order. Duplicates keep
// their first id.
func NewStringTable(strs ...string) *StringTable {
	t := &StringTable{ids: make(map[string]uint32, len(strs))}
	for _, s := range strs {
		t.Intern(s)
	}
	return t
}

// Intern returns the id of s, adding it if needed.
func (t *StringTable) Intern(s string) uint32 {
	if id, ok := t.ids[s]; ok {
		return id
	}
	id := uint32(len(t.strs))
	t.strs = append(t.strs, s)
	t.ids[s] = id
	return id
}

// Lookup returns the id of s.
func (t *StringTable) Lookup(s string) (uint32, bool) {
	id, ok := t.ids[s]
	return id, ok
}

// At returns the string with the given id, "" if out of range.
func (t *StringTable) At(id uint32) string {
	if int(id) >= len(t.strs) {
		return ""
	}
	return t.strs[id]
}

// Len returns the number of strings.
func (t *StringTable) Len() int { return len(t.strs) }

// Strings returns a copy of all strings in id order.
func (t *StringTable) Strings() []string { return slices.Clone(t.strs) }

func sortIDs(ids []uint32) { slices.Sort(ids) }
