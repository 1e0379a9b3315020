package session

import "strings"

// ============================================================
// Keyboard
// ============================================================

type KeyEvent struct {
	Key   string
	Ctrl  bool
	Alt   bool
	Shift bool
	Meta  bool
}

// Chord возвращает каноническую запись: модификаторы в фиксированном порядке,
// затем клавиша как есть ("ctrl+z", "Delete").
func (k KeyEvent) Chord() string {
	var parts []string
	if k.Ctrl {
		parts = append(parts, "ctrl")
	}
	if k.Alt {
		parts = append(parts, "alt")
	}
	if k.Shift {
		parts = append(parts, "shift")
	}
	if k.Meta {
		parts = append(parts, "meta")
	}
	return strings.Join(append(parts, k.Key), "+")
}

// ParseKey разбирает запись вида "ctrl+z".
func ParseKey(chord string) KeyEvent {
	parts := strings.Split(chord, "+")
	ev := KeyEvent{Key: parts[len(parts)-1]}
	for _, mod := range parts[:len(parts)-1] {
		switch strings.ToLower(mod) {
		case "ctrl", "control":
			ev.Ctrl = true
		case "alt":
			ev.Alt = true
		case "shift":
			ev.Shift = true
		case "meta", "cmd":
			ev.Meta = true
		}
	}
	return ev
}

type Action int

const (
	ActionNone Action = iota
	ActionUndo
)

type Keymap map[string]Action

// DefaultKeymap связывает ctrl+z и Delete с одним действием: снять последний
// снимок истории. Удаления конкретной фигуры нет: модели выделения нет.
func DefaultKeymap() Keymap {
	return Keymap{
		"ctrl+z": ActionUndo,
		"Delete": ActionUndo,
	}
}

// Lookup ищет точный аккорд, затем ctrl+клавишу, затем голую клавишу:
// лишние модификаторы (ctrl+alt+z, shift+Delete) привязку не ломают.
func (m Keymap) Lookup(ev KeyEvent) Action {
	if action, ok := m[ev.Chord()]; ok {
		return action
	}
	if ev.Ctrl {
		if action, ok := m[KeyEvent{Key: ev.Key, Ctrl: true}.Chord()]; ok {
			return action
		}
	}
	return m[ev.Key]
}
