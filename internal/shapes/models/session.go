package models

import "fmt"

// ============================================================
// Session Identity
// ============================================================

// Identity: пара (проект, пользователь), под которой грузятся и сохраняются shapes.
// UserEmail пуст, пока пользователь не определён.
type Identity struct {
	ProjectTitle string `json:"projectTitle"`
	UserEmail    string `json:"userEmail"`
}

func (i Identity) HasUser() bool {
	return i.UserEmail != ""
}

func (i Identity) String() string {
	user := i.UserEmail
	if user == "" {
		user = "<anonymous>"
	}
	return fmt.Sprintf("%s@%s", user, i.ProjectTitle)
}

// ============================================================
// Edit Surface Events
// ============================================================

type DragMode string

const (
	DragPan    DragMode = "pan"
	DragSelect DragMode = "select"
)

func ParseDragMode(s string) (DragMode, error) {
	switch m := DragMode(s); m {
	case DragPan, DragSelect:
		return m, nil
	}
	return "", fmt.Errorf("unknown drag mode %q", s)
}

// EditEvent: частичное обновление от поверхности графика; nil-поле означает
// «эта ось не менялась».
type EditEvent struct {
	DragMode *DragMode  `json:"dragmode,omitempty"`
	Shapes   *ShapeList `json:"shapes,omitempty"`
}

func ShapesChanged(list ShapeList) EditEvent {
	l := list.Clone()
	return EditEvent{Shapes: &l}
}

func DragModeChanged(mode DragMode) EditEvent {
	return EditEvent{DragMode: &mode}
}
