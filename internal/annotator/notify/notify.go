// Package notify описывает короткие пользовательские уведомления (toasts).
package notify

import (
	"fmt"
	"log"
	"sync"
)

type Level string

const (
	Success Level = "success"
	Failure Level = "error"
)

// Topic: о какой операции уведомление.
type Topic string

const (
	TopicIdentity Topic = "identity"
	TopicData     Topic = "data"
	TopicToken    Topic = "csrf"
	TopicLoad     Topic = "load"
	TopicSave     Topic = "save"
)

type Notification struct {
	Level   Level
	Topic   Topic
	Message string
	Err     error
}

func (n Notification) String() string {
	if n.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", n.Level, n.Message, n.Err)
	}
	return fmt.Sprintf("[%s] %s", n.Level, n.Message)
}

type Notifier interface {
	Notify(Notification)
}

type Func func(Notification)

func (f Func) Notify(n Notification) { f(n) }

// Discard молча проглатывает уведомления.
var Discard Notifier = Func(func(Notification) {})

// ============================================================
// Log Notifier
// ============================================================

// Log пишет уведомления в стандартный лог с тегом компонента.
type Log struct {
	Tag string
}

func (l Log) Notify(n Notification) {
	log.Printf("[%s] %s", l.Tag, n)
}

// ============================================================
// Recorder
// ============================================================

// Recorder накапливает уведомления; удобен для CLI и тестов.
type Recorder struct {
	mu   sync.Mutex
	list []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, n)
}

func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.list...)
}

// Topics возвращает пары level/topic в порядке поступления.
func (r *Recorder) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.list))
	for i, n := range r.list {
		out[i] = string(n.Level) + ":" + string(n.Topic)
	}
	return out
}
