package domain

import (
	"testing"
	"time"
)

func taskAt(id string, pos int) Task {
	return Task{ID: id, ListID: "l1", Position: pos}
}

func applyPlan(tasks []Task, plan ShiftPlan) map[string]int {
	positions := make(map[string]int, len(tasks))
	for _, t := range tasks {
		positions[t.ID] = t.Position
	}
	for _, shift := range plan.Shifts {
		positions[shift.TaskID] = shift.NewPosition
	}
	positions[plan.TaskID] = plan.Target
	return positions
}

func assertUniquePositions(t *testing.T, positions map[string]int) {
	t.Helper()
	seen := make(map[int]string, len(positions))
	for id, pos := range positions {
		if other, ok := seen[pos]; ok {
			t.Fatalf("position %d held by both %s and %s", pos, other, id)
		}
		seen[pos] = id
	}
}

func TestPlanMoveToFront(t *testing.T) {
	tasks := []Task{taskAt("a", 1), taskAt("b", 2), taskAt("c", 3)}

	plan, err := PlanMove(tasks, "c", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	positions := applyPlan(tasks, plan)
	want := map[string]int{"c": 1, "a": 2, "b": 3}
	for id, pos := range want {
		if positions[id] != pos {
			t.Fatalf("task %s: got position %d, want %d", id, positions[id], pos)
		}
	}
	assertUniquePositions(t, positions)
}

func TestPlanMoveDown(t *testing.T) {
	tasks := []Task{taskAt("a", 1), taskAt("b", 2), taskAt("c", 3)}

	plan, err := PlanMove(tasks, "a", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	positions := applyPlan(tasks, plan)
	assertUniquePositions(t, positions)
	if positions["a"] != 3 {
		t.Fatalf("moved task at %d, want 3", positions["a"])
	}
	// b stays ahead of the moved task, c is pushed past it.
	if positions["b"] != 2 || positions["c"] != 4 {
		t.Fatalf("unexpected sibling positions: b=%d c=%d", positions["b"], positions["c"])
	}
}

func TestPlanMoveShiftsOnlyTrailingSiblings(t *testing.T) {
	tasks := []Task{taskAt("a", 1), taskAt("b", 2), taskAt("c", 3), taskAt("d", 4)}

	plan, err := PlanMove(tasks, "d", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Shifts) != 2 {
		t.Fatalf("expected 2 shifts, got %d: %+v", len(plan.Shifts), plan.Shifts)
	}

	positions := applyPlan(tasks, plan)
	assertUniquePositions(t, positions)
	if positions["a"] != 1 {
		t.Fatalf("task before target moved: a=%d", positions["a"])
	}
}

func TestPlanMoveRejectsNonPositiveTarget(t *testing.T) {
	tasks := []Task{taskAt("a", 1)}
	for _, target := range []int{0, -1, -100} {
		if _, err := PlanMove(tasks, "a", target); !IsKind(err, KindValidation) {
			t.Fatalf("target %d: expected validation error, got %v", target, err)
		}
	}
}

func TestPlanMoveUnknownTask(t *testing.T) {
	tasks := []Task{taskAt("a", 1)}
	if _, err := PlanMove(tasks, "missing", 1); !IsKind(err, KindNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestPlanInsertShiftsTail(t *testing.T) {
	tasks := []Task{taskAt("a", 1), taskAt("b", 2), taskAt("c", 3)}

	shifts, err := PlanInsert(tasks, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(shifts) != 2 {
		t.Fatalf("expected 2 shifts, got %d", len(shifts))
	}
	got := map[string]int{}
	for _, s := range shifts {
		got[s.TaskID] = s.NewPosition
	}
	if got["b"] != 3 || got["c"] != 4 {
		t.Fatalf("unexpected shifts: %+v", got)
	}
}

func TestPlanInsertAtTailNoShifts(t *testing.T) {
	tasks := []Task{taskAt("a", 1), taskAt("b", 2)}
	shifts, err := PlanInsert(tasks, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(shifts) != 0 {
		t.Fatalf("expected no shifts, got %+v", shifts)
	}
}

func TestPlanInsertRejectsNonPositive(t *testing.T) {
	if _, err := PlanInsert(nil, 0); !IsKind(err, KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTargetFromIndexes(t *testing.T) {
	tasks := []Task{taskAt("a", 2), taskAt("b", 5), taskAt("c", 9)}

	target, ok, err := TargetFromIndexes(tasks, 2, 0)
	if err != nil || !ok {
		t.Fatalf("unexpected result: ok=%v err=%v", ok, err)
	}
	if target != 2 {
		t.Fatalf("got target %d, want 2", target)
	}
}

func TestTargetFromIndexesMoveDown(t *testing.T) {
	tasks := []Task{taskAt("a", 1), taskAt("b", 2), taskAt("c", 3)}

	target, ok, err := TargetFromIndexes(tasks, 0, 2)
	if err != nil || !ok {
		t.Fatalf("unexpected result: ok=%v err=%v", ok, err)
	}
	if target != 4 {
		t.Fatalf("got target %d, want 4", target)
	}

	plan, err := PlanMove(tasks, "a", target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	positions := applyPlan(tasks, plan)
	assertUniquePositions(t, positions)
	// The dragged task must end up below both b and c.
	if positions["a"] <= positions["b"] || positions["a"] <= positions["c"] {
		t.Fatalf("dragged task did not land last: a=%d b=%d c=%d",
			positions["a"], positions["b"], positions["c"])
	}
}

func TestTargetFromIndexesMoveDownSparsePositions(t *testing.T) {
	tasks := []Task{taskAt("a", 2), taskAt("b", 5), taskAt("c", 9)}

	target, ok, err := TargetFromIndexes(tasks, 0, 1)
	if err != nil || !ok {
		t.Fatalf("unexpected result: ok=%v err=%v", ok, err)
	}
	if target != 6 {
		t.Fatalf("got target %d, want 6", target)
	}

	plan, err := PlanMove(tasks, "a", target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	positions := applyPlan(tasks, plan)
	assertUniquePositions(t, positions)
	if positions["b"] >= positions["a"] || positions["a"] >= positions["c"] {
		t.Fatalf("dragged task not between b and c: a=%d b=%d c=%d",
			positions["a"], positions["b"], positions["c"])
	}
}

func TestTargetFromIndexesNoOp(t *testing.T) {
	tasks := []Task{taskAt("a", 1), taskAt("b", 2)}
	if _, ok, err := TargetFromIndexes(tasks, 1, 1); err != nil || ok {
		t.Fatalf("expected no-op, got ok=%v err=%v", ok, err)
	}
}

func TestTargetFromIndexesOutOfRange(t *testing.T) {
	tasks := []Task{taskAt("a", 1)}
	for _, pair := range [][2]int{{-1, 0}, {0, 1}, {5, 0}} {
		if _, _, err := TargetFromIndexes(tasks, pair[0], pair[1]); !IsKind(err, KindValidation) {
			t.Fatalf("indexes %v: expected validation error, got %v", pair, err)
		}
	}
}

func TestSortForDisplayBreaksTiesByNewestFirst(t *testing.T) {
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	tasks := []Task{
		{ID: "old", Position: 1, CreatedAt: older},
		{ID: "new", Position: 1, CreatedAt: newer},
		{ID: "first", Position: 0, CreatedAt: older},
	}

	SortForDisplay(tasks)

	if tasks[0].ID != "first" || tasks[1].ID != "new" || tasks[2].ID != "old" {
		t.Fatalf("unexpected order: %s, %s, %s", tasks[0].ID, tasks[1].ID, tasks[2].ID)
	}
}
