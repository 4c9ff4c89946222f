package domain

import (
	"fmt"
	"slices"
)

// WatchList is the ordered set of EPCs shown in the matrix. Order decides
// slot assignment. A WatchList is immutable; edits build a new one.
type WatchList struct {
	epcs  []string
	index map[string]int
}

// NewWatchList canonicalizes and validates epcs. Empty, non-hex and
// duplicate entries are rejected.
func NewWatchList(epcs []string) (WatchList, error) {
	wl := WatchList{
		epcs:  make([]string, 0, len(epcs)),
		index: make(map[string]int, len(epcs)),
	}
	for i, raw := range epcs {
		epc := CanonicalEPC(raw)
		if epc == "" {
			return WatchList{}, fmt.Errorf("%w: watch list entry %d is empty", ErrConfiguration, i+1)
		}
		if !isHex(epc) {
			return WatchList{}, fmt.Errorf("%w: watch list entry %q is not hexadecimal", ErrConfiguration, raw)
		}
		if _, dup := wl.index[epc]; dup {
			return WatchList{}, fmt.Errorf("%w: watch list entry %q is duplicated", ErrConfiguration, raw)
		}
		wl.index[epc] = len(wl.epcs)
		wl.epcs = append(wl.epcs, epc)
	}
	return wl, nil
}

// Len returns the number of EPCs.
func (w WatchList) Len() int {
	return len(w.epcs)
}

// EPCs returns a copy of the EPCs in display order.
func (w WatchList) EPCs() []string {
	return slices.Clone(w.epcs)
}

// At returns the EPC at display position i.
func (w WatchList) At(i int) string {
	return w.epcs[i]
}

// IndexOf returns the display position of epc, or -1.
func (w WatchList) IndexOf(epc string) int {
	if i, ok := w.index[CanonicalEPC(epc)]; ok {
		return i
	}
	return -1
}

// Contains reports whether epc is on the list, ignoring case.
func (w WatchList) Contains(epc string) bool {
	_, ok := w.index[CanonicalEPC(epc)]
	return ok
}

// IsTracked reports whether epc belongs to watchList, ignoring case.
func IsTracked(epc string, watchList WatchList) bool {
	return watchList.Contains(epc)
}

// IsVisibleInLog decides whether an observation is shown in the rolling log.
// Tracked tags are always shown; untracked ones only while the filter is off.
func IsVisibleInLog(epc string, watchList WatchList, filterEnabled bool) bool {
	return !filterEnabled || IsTracked(epc, watchList)
}
