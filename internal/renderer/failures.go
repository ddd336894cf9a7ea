package renderer

import (
	"sync"
)

// FailureKey identifies a missing component reference.
type FailureKey struct {
	Component string
	File      string
}

// FailureSummary aggregates the failures of one component across files.
type FailureSummary struct {
	Component string
	FirstFile string
	Count     int
	Files     int
}

// FailureRecord tallies unresolved component references per originating
// file. It is diagnostic only and is reset at the start of every build.
type FailureRecord struct {
	counts map[FailureKey]int
	order  []FailureKey
	mutex  sync.Mutex
}

// NewFailureRecord creates an empty record.
func NewFailureRecord() *FailureRecord {
	return &FailureRecord{counts: make(map[FailureKey]int)}
}

// Record counts one failed resolution of component from file.
func (f *FailureRecord) Record(component, file string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	key := FailureKey{Component: component, File: file}
	if _, seen := f.counts[key]; !seen {
		f.order = append(f.order, key)
	}
	f.counts[key]++
}

// Count returns how often component failed to resolve from file.
func (f *FailureRecord) Count(component, file string) int {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.counts[FailureKey{Component: component, File: file}]
}

// Total returns the number of failed resolutions recorded.
func (f *FailureRecord) Total() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	total := 0
	for _, n := range f.counts {
		total += n
	}

	return total
}

// Summary returns one entry per component in first-seen order, with the
// first file that referenced it and the total occurrence count.
func (f *FailureRecord) Summary() []FailureSummary {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	index := make(map[string]int)
	var out []FailureSummary
	for _, key := range f.order {
		i, ok := index[key.Component]
		if !ok {
			i = len(out)
			index[key.Component] = i
			out = append(out, FailureSummary{Component: key.Component, FirstFile: key.File})
		}
		out[i].Count += f.counts[key]
		out[i].Files++
	}

	return out
}

// Forget drops every entry recorded for file.
func (f *FailureRecord) Forget(file string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	order := f.order[:0]
	for _, key := range f.order {
		if key.File == file {
			delete(f.counts, key)

			continue
		}
		order = append(order, key)
	}
	f.order = order
}

// Reset clears the record.
func (f *FailureRecord) Reset() {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.counts = make(map[FailureKey]int)
	f.order = nil
}
