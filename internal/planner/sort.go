package planner

import (
	"cmp"
	"errors"
	"fmt"
	"sort"

	"weekly-planner/internal/model"
)

var ErrInvalidSortPreferences = errors.New("sort preferences must order meeting, priority and order exactly once")

// SortKey names one key of the display sort.
type SortKey string

const (
	SortMeeting  SortKey = "meeting"
	SortPriority SortKey = "priority"
	SortOrder    SortKey = "order"
)

func DefaultSortPreferences() []SortKey {
	return []SortKey{SortMeeting, SortPriority, SortOrder}
}

// ParseSortPreferences converts configured key names and validates them.
func ParseSortPreferences(names []string) ([]SortKey, error) {
	keys := make([]SortKey, 0, len(names))
	for _, n := range names {
		keys = append(keys, SortKey(n))
	}
	if err := ValidateSortPreferences(keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// ValidateSortPreferences accepts only permutations of the three keys.
func ValidateSortPreferences(keys []SortKey) error {
	if len(keys) != 3 {
		return fmt.Errorf("%w: got %d keys", ErrInvalidSortPreferences, len(keys))
	}
	seen := make(map[SortKey]bool, 3)
	for _, k := range keys {
		switch k {
		case SortMeeting, SortPriority, SortOrder:
		default:
			return fmt.Errorf("%w: unknown key %q", ErrInvalidSortPreferences, k)
		}
		if seen[k] {
			return fmt.Errorf("%w: duplicate key %q", ErrInvalidSortPreferences, k)
		}
		seen[k] = true
	}
	return nil
}

func (p *Planner) SortPreferences() []SortKey {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SortKey(nil), p.sortPrefs...)
}

func (p *Planner) UpdateSortPreferences(keys []SortKey) error {
	if err := ValidateSortPreferences(keys); err != nil {
		return err
	}
	p.mu.Lock()
	p.sortPrefs = append([]SortKey(nil), keys...)
	p.mu.Unlock()
	return nil
}

var priorityRank = map[model.Priority]int{
	model.PriorityMeeting: 0,
	model.PriorityHigh:    1,
	model.PriorityMedium:  2,
	model.PriorityLow:     3,
}

func rank(p model.Priority) int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return priorityRank[model.PriorityMedium]
}

// SortForDisplay returns a copy of tasks in display order. Stored order keys
// are not modified.
func SortForDisplay(tasks []model.Task, keys []SortKey) []model.Task {
	if len(keys) == 0 {
		keys = DefaultSortPreferences()
	}
	out := append([]model.Task(nil), tasks...)
	sort.SliceStable(out, func(i, j int) bool {
		return compareDisplay(out[i], out[j], keys) < 0
	})
	return out
}

func compareDisplay(a, b model.Task, keys []SortKey) int {
	for _, k := range keys {
		if c := compareKey(a, b, k); c != 0 {
			return c
		}
	}
	return 0
}

func compareKey(a, b model.Task, k SortKey) int {
	switch k {
	case SortMeeting:
		am, bm := a.IsMeetingLike(), b.IsMeetingLike()
		switch {
		case am && !bm:
			return -1
		case bm && !am:
			return 1
		case am && a.StartTime != "" && b.StartTime != "":
			return cmp.Compare(model.NormalizeStartTime(a.StartTime), model.NormalizeStartTime(b.StartTime))
		}
	case SortPriority:
		return rank(a.Priority) - rank(b.Priority)
	case SortOrder:
		return cmp.Compare(a.Order, b.Order)
	}
	return 0
}
