package agenda

import (
	"slices"
	"sort"
	"time"
)

// Index keeps the entries of each resource ordered by start time.
// A resource is known once it has been tracked or received an entry; evaluating
// a candidate on an unknown resource fails closed.
type Index struct {
	buckets map[string]*bucket
}

type bucket struct {
	entries []Entry
	// longest entry in the bucket; bounds how far back an overlap can start.
	maxLen time.Duration
}

func NewIndex() *Index {
	return &Index{buckets: make(map[string]*bucket)}
}

// Track marks resourceID as loaded, even if it holds no entries.
func (ix *Index) Track(resourceID string) {
	if _, ok := ix.buckets[resourceID]; !ok {
		ix.buckets[resourceID] = &bucket{}
	}
}

// Known reports whether resourceID has been tracked.
func (ix *Index) Known(resourceID string) bool {
	_, ok := ix.buckets[resourceID]
	return ok
}

// Add inserts e under its resource. Entries with End <= Start are ignored.
func (ix *Index) Add(e Entry) {
	ix.Track(e.ResourceID)
	if !e.End.After(e.Start) {
		return
	}
	b := ix.buckets[e.ResourceID]
	pos := sort.Search(len(b.entries), func(i int) bool {
		return b.entries[i].Start.After(e.Start)
	})
	b.entries = slices.Insert(b.entries, pos, e)
	if d := e.End.Sub(e.Start); d > b.maxLen {
		b.maxLen = d
	}
}

// Entries returns a copy of the entries held by resourceID in start order.
func (ix *Index) Entries(resourceID string) []Entry {
	b, ok := ix.buckets[resourceID]
	if !ok {
		return nil
	}
	return slices.Clone(b.entries)
}

// Overlapping returns the entries of resourceID that overlap [start, end).
func (ix *Index) Overlapping(resourceID string, start, end time.Time) []Entry {
	b, ok := ix.buckets[resourceID]
	if !ok || len(b.entries) == 0 || !end.After(start) {
		return nil
	}
	lowest := start.Add(-b.maxLen)
	lo := sort.Search(len(b.entries), func(i int) bool {
		return b.entries[i].Start.After(lowest)
	})
	hi := sort.Search(len(b.entries), func(i int) bool {
		return !b.entries[i].Start.Before(end)
	})

	var out []Entry
	for i := lo; i < hi; i++ {
		e := b.entries[i]
		if Overlaps(start, end, e.Start, e.End) {
			out = append(out, e)
		}
	}
	return out
}

// LatestOverlapEnd returns the latest end among the entries overlapping [start, end).
func (ix *Index) LatestOverlapEnd(resourceID string, start, end time.Time) (time.Time, bool) {
	var (
		latest time.Time
		found  bool
	)
	for _, e := range ix.Overlapping(resourceID, start, end) {
		if !found || e.End.After(latest) {
			latest = e.End
			found = true
		}
	}
	return latest, found
}

// Evaluate runs the conflict rules for candidate against its resource bucket.
func (ix *Index) Evaluate(candidate Entry) Decision {
	if !ix.Known(candidate.ResourceID) {
		return FailClosed()
	}
	return Evaluate(candidate, ix.Overlapping(candidate.ResourceID, candidate.Start, candidate.End))
}
