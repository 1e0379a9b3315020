package session

import (
	"sync"

	"shape-annotator/internal/shapes/models"
)

// ============================================================
// Event Sources
// ============================================================

// Surface получает сигнал перерисовки с актуальным набором shapes.
type Surface interface {
	Render(models.ShapeList)
}

type EditSource interface {
	SubscribeEdits(func(models.EditEvent)) (unsubscribe func())
}

type KeySource interface {
	SubscribeKeys(func(KeyEvent)) (unsubscribe func())
}

// Bus: простой источник событий правки и клавиатуры.
type Bus struct {
	mu    sync.Mutex
	next  int
	edits map[int]func(models.EditEvent)
	keys  map[int]func(KeyEvent)
}

func NewBus() *Bus {
	return &Bus{
		edits: make(map[int]func(models.EditEvent)),
		keys:  make(map[int]func(KeyEvent)),
	}
}

func (b *Bus) SubscribeEdits(fn func(models.EditEvent)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.edits[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.edits, id)
	}
}

func (b *Bus) SubscribeKeys(fn func(KeyEvent)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.keys[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.keys, id)
	}
}

// Emit и Press вызывают подписчиков в порядке регистрации.
func (b *Bus) Emit(ev models.EditEvent) {
	b.mu.Lock()
	fns := make([]func(models.EditEvent), 0, len(b.edits))
	for id := 0; id < b.next; id++ {
		if fn, ok := b.edits[id]; ok {
			fns = append(fns, fn)
		}
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (b *Bus) Press(ev KeyEvent) {
	b.mu.Lock()
	fns := make([]func(KeyEvent), 0, len(b.keys))
	for id := 0; id < b.next; id++ {
		if fn, ok := b.keys[id]; ok {
			fns = append(fns, fn)
		}
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Listeners: сколько подписчиков сейчас зарегистрировано.
func (b *Bus) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.edits) + len(b.keys)
}
