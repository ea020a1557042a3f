package registry

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// SortKey selects the ordering criterion.
type SortKey int

const (
	SortByName SortKey = iota
	SortByDate
	SortBySize
)

func (k SortKey) String() string {
	switch k {
	case SortByName:
		return "name"
	case SortByDate:
		return "date"
	case SortBySize:
		return "size"
	}
	return fmt.Sprintf("SortKey(%d)", int(k))
}

// ParseSortKey accepts the names produced by SortKey.String.
func ParseSortKey(s string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "name", "":
		return SortByName, nil
	case "date":
		return SortByDate, nil
	case "size":
		return SortBySize, nil
	}
	return SortByName, fmt.Errorf("unknown sort key %q", s)
}

// SortIndex is the visible ordering of a Registry under one criterion and an
// optional search filter.
type SortIndex struct {
	reg       *Registry
	footprint *Footprint

	key        SortKey
	descending bool
	query      string

	sorted  []*ModRecord
	visible []*ModRecord
	sizes   map[string]int64
}

// NewSortIndex returns an index over reg ordered by name, ascending.
// footprint may be nil, in which case size and date fall back to zero.
func NewSortIndex(reg *Registry, footprint *Footprint) *SortIndex {
	idx := &SortIndex{reg: reg, footprint: footprint}
	idx.Resort()
	return idx
}

// Criterion returns the current sort key and direction.
func (s *SortIndex) Criterion() (SortKey, bool) {
	return s.key, s.descending
}

// SetCriterion changes the ordering and re-sorts.
func (s *SortIndex) SetCriterion(key SortKey, descending bool) {
	s.key = key
	s.descending = descending
	s.Resort()
}

// Resort recomputes the ordering from the registry. Equal keys keep
// registry insertion order when ascending; descending is the exact reverse.
func (s *SortIndex) Resort() {
	records := s.reg.Records()

	switch s.key {
	case SortByName:
		keys := make(map[string]string, len(records))
		for _, rec := range records {
			keys[rec.Hash] = cases.Fold().String(rec.Name)
		}
		sort.SliceStable(records, func(i, j int) bool {
			return keys[records[i].Hash] < keys[records[j].Hash]
		})
		s.sizes = nil
	case SortByDate:
		times := make(map[string]time.Time, len(records))
		snap := s.snapshot(len(records))
		for _, rec := range records {
			times[rec.Hash] = snap.modTime(rec)
		}
		sort.SliceStable(records, func(i, j int) bool {
			return times[records[i].Hash].Before(times[records[j].Hash])
		})
		s.sizes = nil
	case SortBySize:
		sizes := make(map[string]int64, len(records))
		snap := s.snapshot(len(records))
		for _, rec := range records {
			sizes[rec.Hash] = snap.size(rec)
		}
		sort.SliceStable(records, func(i, j int) bool {
			return sizes[records[i].Hash] < sizes[records[j].Hash]
		})
		s.sizes = sizes
	}

	if s.descending {
		slices.Reverse(records)
	}
	s.sorted = records
	s.applyFilter()
}

func (s *SortIndex) snapshot(mods int) *snapshot {
	if s.footprint == nil {
		return &snapshot{mods: mods}
	}
	return s.footprint.scan(mods)
}

// Size returns the size computed by the last size sort, or -1 when the index
// is not sorted by size.
func (s *SortIndex) Size(hash string) int64 {
	if s.sizes == nil {
		return -1
	}
	return s.sizes[hash]
}

// SetFilter narrows the visible records to those matching query, keeping the
// current order.
func (s *SortIndex) SetFilter(query string) {
	s.query = query
	s.applyFilter()
}

// Filter returns the active search query.
func (s *SortIndex) Filter() string { return s.query }

func (s *SortIndex) applyFilter() {
	if s.query == "" {
		s.visible = s.sorted
		return
	}
	s.visible = make([]*ModRecord, 0, len(s.sorted))
	for _, rec := range s.sorted {
		if Matches(rec, s.query) {
			s.visible = append(s.visible, rec)
		}
	}
}

// Visible returns the filtered records in display order.
func (s *SortIndex) Visible() []*ModRecord { return s.visible }

// All returns every record in display order, ignoring the filter.
func (s *SortIndex) All() []*ModRecord { return s.sorted }

// IndexOf returns the position of hash among the visible records, or -1.
func (s *SortIndex) IndexOf(hash string) int {
	for i, rec := range s.visible {
		if rec.Hash == hash {
			return i
		}
	}
	return -1
}

// Matches reports whether rec satisfies a search query. A single-word query
// matches the start of any word in the name or author; any query also
// matches a game version or tag that starts with it.
func Matches(rec *ModRecord, query string) bool {
	if query == "" {
		return true
	}
	fold := cases.Fold()
	text := fold.String(query)
	if len(strings.Split(text, " ")) == 1 {
		text = " " + text
	}
	trimmed := strings.TrimSpace(text)

	if strings.Contains(" "+fold.String(rec.Name), text) ||
		strings.Contains(" "+fold.String(rec.Author), text) ||
		strings.HasPrefix(rec.GameVersion, trimmed) {
		return true
	}
	for _, tag := range rec.Tags {
		if strings.HasPrefix(fold.String(tag), trimmed) {
			return true
		}
	}
	return false
}
