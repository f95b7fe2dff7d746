package domain

import (
	"strings"
	"testing"
	"time"
)

func TestParsePriority(t *testing.T) {
	for _, raw := range []string{"LOW", "normal", " High ", "urgent"} {
		if _, err := ParsePriority(raw); err != nil {
			t.Fatalf("%q rejected: %v", raw, err)
		}
	}
	if _, err := ParsePriority("critical"); !IsKind(err, KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseStatus(t *testing.T) {
	if st, err := ParseStatus("in_progress"); err != nil || st != StatusInProgress {
		t.Fatalf("got %q, err=%v", st, err)
	}
	if _, err := ParseStatus("PENDING"); !IsKind(err, KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTaskInputValidate(t *testing.T) {
	valid := TaskInput{Title: "write report", ListID: "l1", Priority: PriorityNormal, Position: 1}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}

	cases := []struct {
		name  string
		input TaskInput
	}{
		{"empty title", TaskInput{Title: "  ", ListID: "l1", Priority: PriorityNormal, Position: 1}},
		{"title too long", TaskInput{Title: strings.Repeat("x", 256), ListID: "l1", Priority: PriorityNormal, Position: 1}},
		{"missing list", TaskInput{Title: "t", Priority: PriorityNormal, Position: 1}},
		{"bad priority", TaskInput{Title: "t", ListID: "l1", Priority: "SOMEDAY", Position: 1}},
		{"zero position", TaskInput{Title: "t", ListID: "l1", Priority: PriorityNormal, Position: 0}},
	}
	for _, tc := range cases {
		if err := tc.input.Validate(); !IsKind(err, KindValidation) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestTaskPatchValidate(t *testing.T) {
	empty := ""
	long := strings.Repeat("x", 256)
	badPriority := Priority("WHENEVER")
	badStatus := Status("STALLED")

	cases := []struct {
		name  string
		patch TaskPatch
	}{
		{"empty title", TaskPatch{Title: &empty}},
		{"title too long", TaskPatch{Title: &long}},
		{"bad priority", TaskPatch{Priority: &badPriority}},
		{"bad status", TaskPatch{Status: &badStatus}},
	}
	for _, tc := range cases {
		if err := tc.patch.Validate(); !IsKind(err, KindValidation) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}

	if err := (TaskPatch{}).Validate(); err != nil {
		t.Fatalf("empty patch rejected: %v", err)
	}
}

func TestTaskPatchApply(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	now := created.Add(time.Hour)
	original := Task{
		ID:          "t1",
		Title:       "old title",
		Description: "old description",
		Priority:    PriorityLow,
		Status:      StatusTodo,
		Tags:        []string{"home"},
		Position:    3,
		ListID:      "l1",
		CreatedAt:   created,
		UpdatedAt:   created,
	}

	title := "new title"
	status := StatusDone
	patched := TaskPatch{Title: &title, Status: &status}.Apply(original, now)

	if patched.Title != "new title" || patched.Status != StatusDone {
		t.Fatalf("patched fields not applied: %+v", patched)
	}
	if patched.Description != "old description" || patched.Priority != PriorityLow {
		t.Fatalf("untouched fields changed: %+v", patched)
	}
	if patched.Position != 3 || patched.ListID != "l1" {
		t.Fatalf("identity fields changed: %+v", patched)
	}
	if !patched.UpdatedAt.Equal(now) {
		t.Fatalf("UpdatedAt not bumped: %v", patched.UpdatedAt)
	}
	if original.Title != "old title" {
		t.Fatal("Apply mutated its input")
	}
}

func TestNormalizeTaskFilter(t *testing.T) {
	f, err := NormalizeTaskFilter(" l1 ", "done", "HIGH", " urgent-tag ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.ListID != "l1" || f.Status != StatusDone || f.Priority != PriorityHigh || f.Tag != "urgent-tag" {
		t.Fatalf("unexpected filter: %+v", f)
	}

	if _, err := NormalizeTaskFilter("", "bogus", "", ""); !IsKind(err, KindValidation) {
		t.Fatalf("bad status: expected validation error, got %v", err)
	}
	if _, err := NormalizeTaskFilter("", "", "bogus", ""); !IsKind(err, KindValidation) {
		t.Fatalf("bad priority: expected validation error, got %v", err)
	}
}

func TestTaskFilterMatches(t *testing.T) {
	task := Task{
		ListID:   "l1",
		Status:   StatusInProgress,
		Priority: PriorityHigh,
		Tags:     []string{"work", "q3"},
	}

	cases := []struct {
		name   string
		filter TaskFilter
		want   bool
	}{
		{"empty filter", TaskFilter{}, true},
		{"matching list", TaskFilter{ListID: "l1"}, true},
		{"other list", TaskFilter{ListID: "l2"}, false},
		{"matching tag", TaskFilter{Tag: "q3"}, true},
		{"missing tag", TaskFilter{Tag: "q4"}, false},
		{"all dimensions", TaskFilter{ListID: "l1", Status: StatusInProgress, Priority: PriorityHigh, Tag: "work"}, true},
		{"one dimension off", TaskFilter{ListID: "l1", Status: StatusDone}, false},
	}
	for _, tc := range cases {
		if got := tc.filter.Matches(task); got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestPermissionLevelAtLeast(t *testing.T) {
	if !PermissionAdmin.AtLeast(PermissionView) || !PermissionAdmin.AtLeast(PermissionAdmin) {
		t.Fatal("admin should satisfy every level")
	}
	if PermissionView.AtLeast(PermissionEdit) {
		t.Fatal("view must not satisfy edit")
	}
	if !PermissionEdit.AtLeast(PermissionView) {
		t.Fatal("edit should satisfy view")
	}
}

func TestParsePermissionLevel(t *testing.T) {
	if level, err := ParsePermissionLevel(" edit "); err != nil || level != PermissionEdit {
		t.Fatalf("got %q, err=%v", level, err)
	}
	if _, err := ParsePermissionLevel("OWNER"); !IsKind(err, KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestListInputValidate(t *testing.T) {
	if err := (ListInput{Name: "groceries"}).Validate(); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}
	if err := (ListInput{Name: " "}).Validate(); !IsKind(err, KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := (ListInput{Name: strings.Repeat("x", 256)}).Validate(); !IsKind(err, KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
