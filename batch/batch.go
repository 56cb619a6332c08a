package batch

import "strings"

const (
	// valueSeparator joins merged values under one key; the rendered
	// statement must be able to treat it as a value-list delimiter
	valueSeparator = ","
	// statementSeparator joins rendered entries into one multi-statement string
	statementSeparator = ";"
)

// Key is the consolidation identity: two requests merge iff their
// prefix and suffix are both equal.
type Key struct {
	Prefix string
	Suffix string
}

// Accumulator merges same-key write requests into one logical value per
// key, preserving key arrival order for deterministic rendering. It is
// owned by a single goroutine and needs no locking.
type Accumulator struct {
	values        map[Key]string
	order         []Key
	count         int
	maxValueBytes int
}

// New creates an empty accumulator. A single merged value growing past
// maxValueBytes makes Add report a forced flush.
func New(maxValueBytes int) *Accumulator {
	return &Accumulator{
		values:        make(map[Key]string),
		maxValueBytes: maxValueBytes,
	}
}

// Add merges value into the entry for key, appending with the value
// separator when the key is already present. It returns the updated
// total merged-request count and whether the merged value has grown
// past the configured limit and the batch should be flushed now.
func (a *Accumulator) Add(key Key, value string) (int, bool) {
	if existing, ok := a.values[key]; ok {
		a.values[key] = existing + valueSeparator + value
	} else {
		a.values[key] = value
		a.order = append(a.order, key)
	}
	a.count++

	force := a.maxValueBytes > 0 && len(a.values[key]) > a.maxValueBytes
	return a.count, force
}

// Render produces a single multi-statement string from all entries in
// key arrival order. The second return is false when the accumulator
// is empty; callers must not execute an empty statement.
func (a *Accumulator) Render() (string, bool) {
	if len(a.order) == 0 {
		return "", false
	}

	var stmt strings.Builder
	for i, key := range a.order {
		if i > 0 {
			stmt.WriteString(statementSeparator)
		}
		stmt.WriteString(key.Prefix)
		stmt.WriteByte(' ')
		stmt.WriteString(a.values[key])
		stmt.WriteByte(' ')
		if key.Suffix != "" {
			stmt.WriteString(key.Suffix)
		}
	}
	return stmt.String(), true
}

// Count returns the total number of requests merged in since the last Clear
func (a *Accumulator) Count() int {
	return a.count
}

// Len returns the number of distinct keys
func (a *Accumulator) Len() int {
	return len(a.order)
}

// Keys returns the distinct keys in arrival order. The caller must not
// retain the slice across a Clear.
func (a *Accumulator) Keys() []Key {
	return a.order
}

// Clear resets the accumulator to empty; a no-op when already empty
func (a *Accumulator) Clear() {
	if a.count == 0 && len(a.order) == 0 {
		return
	}
	a.values = make(map[Key]string)
	a.order = a.order[:0]
	a.count = 0
}
