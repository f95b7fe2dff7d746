package domain

import "sort"

// The position sequencer computes the writes needed to keep task positions
// unique within a list: moving or inserting a task at position P increments
// every other task with position >= P by one. The resulting plan must be
// applied as a single storage transaction.

// ValidatePosition rejects non-positive positions before any write.
func ValidatePosition(p int) error {
	if p < 1 {
		return Validation("position must be a positive integer")
	}
	return nil
}

// PositionShift is one compensating sibling update in a shift plan.
type PositionShift struct {
	TaskID      string
	NewPosition int
}

// ShiftPlan is the full set of position writes for one reorder operation.
type ShiftPlan struct {
	TaskID string
	Target int
	Shifts []PositionShift
}

// SortForDisplay orders tasks by position ascending, breaking ties between
// tasks that have not yet been assigned distinct positions by newest first.
func SortForDisplay(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Position != tasks[j].Position {
			return tasks[i].Position < tasks[j].Position
		}
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
}

// PlanMove computes the shift plan for moving the task with the given id to
// target within its list. siblings must be the full set of tasks on the list,
// including the moved task itself.
func PlanMove(siblings []Task, taskID string, target int) (ShiftPlan, error) {
	if err := ValidatePosition(target); err != nil {
		return ShiftPlan{}, err
	}
	found := false
	for _, t := range siblings {
		if t.ID == taskID {
			found = true
			break
		}
	}
	if !found {
		return ShiftPlan{}, NotFound("task not found")
	}

	plan := ShiftPlan{TaskID: taskID, Target: target}
	for _, t := range siblings {
		if t.ID == taskID {
			continue
		}
		if t.Position >= target {
			plan.Shifts = append(plan.Shifts, PositionShift{TaskID: t.ID, NewPosition: t.Position + 1})
		}
	}
	return plan, nil
}

// PlanInsert computes the sibling shifts for inserting a new task at target.
func PlanInsert(siblings []Task, target int) ([]PositionShift, error) {
	if err := ValidatePosition(target); err != nil {
		return nil, err
	}
	var shifts []PositionShift
	for _, t := range siblings {
		if t.Position >= target {
			shifts = append(shifts, PositionShift{TaskID: t.ID, NewPosition: t.Position + 1})
		}
	}
	return shifts, nil
}

// TargetFromIndexes translates a drag-and-drop (source, destination) index
// pair over the already-sorted display sequence into the absolute target
// position PlanMove expects. ok is false when the operation is a no-op.
func TargetFromIndexes(sorted []Task, src, dst int) (target int, ok bool, err error) {
	n := len(sorted)
	if src < 0 || src >= n || dst < 0 || dst >= n {
		return 0, false, Validation("index out of range")
	}
	if src == dst {
		return 0, false, nil
	}
	// A downward drag lands after the destination task. The move plan places
	// the task before whatever holds the target position, so aim one past it.
	if src < dst {
		return sorted[dst].Position + 1, true, nil
	}
	return sorted[dst].Position, true, nil
}
