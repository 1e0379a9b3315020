// Package history держит текущий набор shapes и стек снимков для undo.
package history

import (
	"errors"
	"fmt"
	"sync"

	"shape-annotator/internal/shapes/models"
)

var ErrInvalidDragMode = errors.New("invalid drag mode")

// ============================================================
// History Engine
// ============================================================

// Engine: единственная изменяемая ячейка состояния аннотаций.
//
// Последний элемент stack всегда равен текущему набору shapes (пустой стек
// означает пустой набор). floor: сколько нижних снимков undo снять не может:
// 0 в свежей сессии, 1 после Seed.
type Engine struct {
	mu       sync.Mutex
	stack    []models.ShapeList
	floor    int
	dragMode models.DragMode

	nextSub     int
	subscribers map[int]func(models.ShapeList)
}

func New() *Engine {
	return &Engine{
		dragMode:    models.DragPan,
		subscribers: make(map[int]func(models.ShapeList)),
	}
}

// ApplyEdit применяет событие поверхности. Смена drag mode и смена shapes
// независимы, и только первая не создаёт запись в истории.
func (e *Engine) ApplyEdit(ev models.EditEvent) error {
	e.mu.Lock()

	if ev.DragMode != nil {
		mode, err := models.ParseDragMode(string(*ev.DragMode))
		if err != nil {
			e.mu.Unlock()
			return fmt.Errorf("%w: %v", ErrInvalidDragMode, err)
		}
		e.dragMode = mode
	}
	if ev.Shapes == nil {
		e.mu.Unlock()
		return nil
	}

	e.stack = append(e.stack, ev.Shapes.Clone())
	current, subs := e.currentLocked(), e.subscribersLocked()
	e.mu.Unlock()

	e.publish(subs, current)
	return nil
}

// Undo снимает последний снимок. Возвращает false, если снимать нечего;
// повторные вызовы на дне стека ничего не меняют.
func (e *Engine) Undo() bool {
	e.mu.Lock()
	if len(e.stack) <= e.floor {
		e.mu.Unlock()
		return false
	}

	e.stack[len(e.stack)-1] = nil
	e.stack = e.stack[:len(e.stack)-1]
	current, subs := e.currentLocked(), e.subscribersLocked()
	e.mu.Unlock()

	e.publish(subs, current)
	return true
}

// Seed авторитетно заменяет состояние: история сбрасывается до [list], и
// загруженное состояние нельзя откатить.
func (e *Engine) Seed(list models.ShapeList) {
	e.SeedQuiet(list)
	e.Publish()
}

// SeedQuiet делает то же, что Seed, но без сигнала перерисовки. Вызывающий
// сам зовёт Publish, когда отпустит свои блокировки.
func (e *Engine) SeedQuiet(list models.ShapeList) {
	e.mu.Lock()
	defer e.mu.Unlock()

	seeded := list.Clone()
	if seeded == nil {
		seeded = models.ShapeList{}
	}
	e.stack = []models.ShapeList{seeded}
	e.floor = 1
}

// Publish рассылает подписчикам текущий набор.
func (e *Engine) Publish() {
	e.mu.Lock()
	current, subs := e.currentLocked(), e.subscribersLocked()
	e.mu.Unlock()

	e.publish(subs, current)
}

// Current возвращает копию текущего набора; никогда не nil.
func (e *Engine) Current() models.ShapeList {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentLocked()
}

// History возвращает копию стека снимков, от старых к новым.
func (e *Engine) History() []models.ShapeList {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.ShapeList, len(e.stack))
	for i, snap := range e.stack {
		out[i] = snap.Clone()
	}
	return out
}

func (e *Engine) DragMode() models.DragMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dragMode
}

// Subscribe регистрирует получателя сигнала перерисовки. Возвращённая функция
// снимает регистрацию; вызывать её можно многократно.
func (e *Engine) Subscribe(fn func(models.ShapeList)) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subscribers[id] = fn
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subscribers, id)
			e.mu.Unlock()
		})
	}
}

func (e *Engine) currentLocked() models.ShapeList {
	if len(e.stack) == 0 {
		return models.ShapeList{}
	}
	return e.stack[len(e.stack)-1].Clone()
}

func (e *Engine) subscribersLocked() []func(models.ShapeList) {
	subs := make([]func(models.ShapeList), 0, len(e.subscribers))
	for i := 0; i < e.nextSub; i++ {
		if fn, ok := e.subscribers[i]; ok {
			subs = append(subs, fn)
		}
	}
	return subs
}

// publish вызывается без блокировки: подписчик может читать Engine.
func (e *Engine) publish(subs []func(models.ShapeList), current models.ShapeList) {
	for _, fn := range subs {
		fn(current.Clone())
	}
}
