// Package syncer согласует локальную историю shapes с удалённым хранилищем.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"shape-annotator/internal/annotator/history"
	"shape-annotator/internal/annotator/notify"
	"shape-annotator/internal/shapes/models"
)

// ============================================================
// Contracts
// ============================================================

type RemoteStore interface {
	Load(ctx context.Context, id models.Identity) (models.ShapeList, error)
	Save(ctx context.Context, id models.Identity, shapes models.ShapeList) error
}

type IdentityResolver interface {
	CurrentUser(ctx context.Context) (string, error)
}

// ============================================================
// Phases
// ============================================================

type Phase int

const (
	Uninitialized Phase = iota
	IdentityPending
	Loading
	Ready
)

func (p Phase) String() string {
	switch p {
	case Uninitialized:
		return "uninitialized"
	case IdentityPending:
		return "identity-pending"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Outcome: подтверждение сохранения.
type Outcome struct {
	Identity models.Identity
	Count    int
}

// ============================================================
// Controller
// ============================================================

// Controller сводит Engine с RemoteStore. Каждая смена identity открывает
// новую эпоху; ответы, выпущенные в прошлой эпохе, отбрасываются.
type Controller struct {
	engine   *history.Engine
	store    RemoteStore
	resolver IdentityResolver
	notifier notify.Notifier

	mu         sync.Mutex
	identity   models.Identity
	epoch      uint64
	reconciled *models.Identity
	phase      Phase
	saving     int
}

func New(engine *history.Engine, store RemoteStore, resolver IdentityResolver, notifier notify.Notifier) *Controller {
	if notifier == nil {
		notifier = notify.Discard
	}
	return &Controller{
		engine:   engine,
		store:    store,
		resolver: resolver,
		notifier: notifier,
	}
}

func (c *Controller) Identity() models.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Saving сообщает, идёт ли сейчас хотя бы одно сохранение.
func (c *Controller) Saving() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saving > 0
}

// ResolveIdentity выясняет текущего пользователя для проекта. При ошибке
// email остаётся пустым, а загрузка и сохранение отключены.
func (c *Controller) ResolveIdentity(ctx context.Context, project string) models.Identity {
	c.mu.Lock()
	c.setIdentityLocked(models.Identity{ProjectTitle: project, UserEmail: c.identity.UserEmail})
	if !c.identity.HasUser() {
		c.phase = IdentityPending
	}
	c.mu.Unlock()

	email, err := c.resolver.CurrentUser(ctx)
	if err != nil {
		log.Printf("[SYNC] resolve identity: %v", err)
		c.notifier.Notify(notify.Notification{
			Level:   notify.Failure,
			Topic:   notify.TopicIdentity,
			Message: "Error fetching user email",
			Err:     err,
		})
		return c.Identity()
	}

	// проект мог смениться, пока шёл запрос
	id := models.Identity{ProjectTitle: c.Identity().ProjectTitle, UserEmail: email}
	if err := c.Reconcile(ctx, id); err != nil && !errors.Is(err, ErrStale) {
		log.Printf("[SYNC] initial load for %s: %v", id, err)
	}
	return c.Identity()
}

// SwitchProject переводит сессию на другой проект того же пользователя.
func (c *Controller) SwitchProject(ctx context.Context, project string) error {
	id := c.Identity()
	id.ProjectTitle = project
	return c.Reconcile(ctx, id)
}

// Reconcile приводит сессию к identity. Загрузка выполняется один раз на
// каждое новое значение; повтор с тем же значением ничего не делает.
func (c *Controller) Reconcile(ctx context.Context, id models.Identity) error {
	c.mu.Lock()
	c.setIdentityLocked(id)
	if c.reconciled != nil && *c.reconciled == id {
		c.mu.Unlock()
		return nil
	}
	c.reconciled = &id
	if !id.HasUser() {
		c.phase = IdentityPending
	}
	c.mu.Unlock()

	return c.Load(ctx, id)
}

// Load тянет shapes для identity и авторитетно заменяет ими локальное
// состояние. Без email ничего не делает. Правки, сделанные пока запрос в пути,
// теряются: побеждает удалённый снимок.
func (c *Controller) Load(ctx context.Context, id models.Identity) error {
	if !id.HasUser() {
		return nil
	}

	c.mu.Lock()
	c.setIdentityLocked(id)
	c.reconciled = &id
	epoch := c.epoch
	c.phase = Loading
	c.mu.Unlock()

	shapes, err := c.store.Load(ctx, id)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		log.Printf("[SYNC] discard load for %s: identity changed", id)
		return ErrStale
	}
	// проверка epoch и замена состояния атомарны; перерисовка идёт уже без c.mu,
	// подписчик может читать Phase и Identity
	c.phase = Ready
	if err == nil {
		c.engine.SeedQuiet(shapes)
	}
	c.mu.Unlock()

	if err != nil {
		c.notifier.Notify(notify.Notification{
			Level:   notify.Failure,
			Topic:   notify.TopicLoad,
			Message: "Error fetching shapes",
			Err:     err,
		})
		return fmt.Errorf("load shapes: %w", err)
	}

	c.engine.Publish()
	c.notifier.Notify(notify.Notification{
		Level:   notify.Success,
		Topic:   notify.TopicLoad,
		Message: "Shapes fetched successfully",
	})
	return nil
}

// Save отправляет весь текущий набор shapes. Набор фиксируется в момент
// вызова; правки после этого попадут только в следующее сохранение. При
// ошибке локальное состояние не откатывается.
func (c *Controller) Save(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	id, epoch := c.identity, c.epoch
	if !id.HasUser() {
		c.mu.Unlock()
		c.notifier.Notify(notify.Notification{
			Level:   notify.Failure,
			Topic:   notify.TopicSave,
			Message: "Error saving shapes",
			Err:     ErrIdentityMissing,
		})
		return Outcome{}, ErrIdentityMissing
	}
	shapes := c.engine.Current()
	c.saving++
	c.mu.Unlock()

	err := c.store.Save(ctx, id, shapes)

	c.mu.Lock()
	c.saving--
	stale := c.epoch != epoch
	c.mu.Unlock()

	out := Outcome{Identity: id, Count: len(shapes)}
	if stale {
		log.Printf("[SYNC] discard save result for %s: identity changed", id)
		return out, ErrStale
	}

	if err != nil {
		c.notifier.Notify(notify.Notification{
			Level:   notify.Failure,
			Topic:   notify.TopicSave,
			Message: "Error saving shapes",
			Err:     err,
		})
		return out, fmt.Errorf("save shapes: %w", err)
	}

	c.notifier.Notify(notify.Notification{
		Level:   notify.Success,
		Topic:   notify.TopicSave,
		Message: "Shapes saved successfully",
	})
	return out, nil
}

func (c *Controller) setIdentityLocked(id models.Identity) {
	if id == c.identity {
		return
	}
	c.identity = id
	c.epoch++
}
