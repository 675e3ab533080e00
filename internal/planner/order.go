package planner

import (
	"weekly-planner/internal/model"
)

// NextOrder returns the order key that appends to the end of container.
func NextOrder(container []model.Task) float64 {
	if len(container) == 0 {
		return 1
	}
	top := container[0].Order
	for _, t := range container[1:] {
		if t.Order > top {
			top = t.Order
		}
	}
	return top + 1
}

// OrderBetween returns a key strictly between before and after. A nil
// neighbour means the slot is at that end of the container.
// Keys are never rebalanced, so repeated midpoints can converge.
func OrderBetween(before, after *float64) float64 {
	switch {
	case before != nil && after != nil:
		return (*before + *after) / 2
	case after != nil:
		return *after / 2
	case before != nil:
		return *before + 1
	default:
		return 1
	}
}

// OrderAt returns the key that places a task at index of container once
// container is sorted by order. index is clamped to [0, len(container)].
func OrderAt(container []model.Task, index int) float64 {
	sorted := sortedByOrder(container)
	if index < 0 {
		index = 0
	}
	if index > len(sorted) {
		index = len(sorted)
	}
	var before, after *float64
	if index > 0 {
		before = &sorted[index-1].Order
	}
	if index < len(sorted) {
		after = &sorted[index].Order
	}
	return OrderBetween(before, after)
}
