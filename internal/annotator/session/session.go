// Package session связывает историю shapes, синхронизацию и источники событий
// в один объект с явным жизненным циклом: Open при монтировании вида, Close
// при размонтировании.
package session

import (
	"context"
	"errors"
	"log"
	"sync"

	"shape-annotator/internal/annotator/history"
	"shape-annotator/internal/annotator/notify"
	"shape-annotator/internal/annotator/syncer"
	"shape-annotator/internal/shapes/models"
)

var ErrClosed = errors.New("session closed")

type DataSource interface {
	ProjectData(ctx context.Context, project string) ([]models.PlotPoint, error)
}

type TokenSource interface {
	CSRFToken(ctx context.Context) (string, error)
}

type Config struct {
	Project  string
	Store    syncer.RemoteStore
	Resolver syncer.IdentityResolver
	Notifier notify.Notifier

	// необязательные
	Data    DataSource
	Tokens  TokenSource
	Surface Surface
	Edits   EditSource
	Keys    KeySource
	Keymap  Keymap
}

// ============================================================
// Session
// ============================================================

type Session struct {
	engine *history.Engine
	ctrl   *syncer.Controller
	keymap Keymap
	data   DataSource
	notes  *gatedNotifier

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	releases []func()
	project  string
	points   []models.PlotPoint
}

// Open поднимает сессию и запускает в фоне определение пользователя (с
// последующей загрузкой shapes), загрузку данных проекта и CSRF-токена.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Project == "" {
		return nil, errors.New("project title required")
	}
	if cfg.Store == nil || cfg.Resolver == nil {
		return nil, errors.New("store and identity resolver required")
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Discard
	}
	if cfg.Keymap == nil {
		cfg.Keymap = DefaultKeymap()
	}

	notes := &gatedNotifier{next: cfg.Notifier}
	engine := history.New()
	sctx, cancel := context.WithCancel(ctx)

	s := &Session{
		engine:  engine,
		ctrl:    syncer.New(engine, cfg.Store, cfg.Resolver, notes),
		keymap:  cfg.Keymap,
		data:    cfg.Data,
		notes:   notes,
		ctx:     sctx,
		cancel:  cancel,
		project: cfg.Project,
	}

	if cfg.Surface != nil {
		s.releases = append(s.releases, engine.Subscribe(cfg.Surface.Render))
	}
	if cfg.Edits != nil {
		s.releases = append(s.releases, cfg.Edits.SubscribeEdits(func(ev models.EditEvent) {
			if err := s.HandleEdit(ev); err != nil && !errors.Is(err, ErrClosed) {
				log.Printf("[SESSION] edit rejected: %v", err)
			}
		}))
	}
	if cfg.Keys != nil {
		s.releases = append(s.releases, cfg.Keys.SubscribeKeys(func(ev KeyEvent) {
			s.HandleKey(ev)
		}))
	}

	project := cfg.Project
	s.spawn(func(ctx context.Context) {
		s.ctrl.ResolveIdentity(ctx, project)
	})
	s.spawn(func(ctx context.Context) {
		s.fetchPoints(ctx, project)
	})
	if cfg.Tokens != nil {
		s.spawn(func(ctx context.Context) {
			if _, err := cfg.Tokens.CSRFToken(ctx); err != nil {
				notes.Notify(notify.Notification{
					Level:   notify.Failure,
					Topic:   notify.TopicToken,
					Message: "Error fetching CSRF token",
					Err:     err,
				})
			}
		})
	}
	return s, nil
}

// HandleEdit применяет событие поверхности графика.
func (s *Session) HandleEdit(ev models.EditEvent) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.engine.ApplyEdit(ev)
}

// HandleKey обрабатывает нажатие; true, если для него есть действие.
func (s *Session) HandleKey(ev KeyEvent) bool {
	if s.isClosed() {
		return false
	}
	switch s.keymap.Lookup(ev) {
	case ActionUndo:
		s.engine.Undo()
		return true
	}
	return false
}

func (s *Session) Undo() bool {
	if s.isClosed() {
		return false
	}
	return s.engine.Undo()
}

// Save сохраняет текущий набор shapes. Правки можно продолжать из других
// горутин, пока сохранение в пути.
func (s *Session) Save(ctx context.Context) (syncer.Outcome, error) {
	if s.isClosed() {
		return syncer.Outcome{}, ErrClosed
	}
	return s.ctrl.Save(ctx)
}

// SwitchProject переключает проект: shapes перезагружаются для новой
// identity, данные проекта подтягиваются в фоне.
func (s *Session) SwitchProject(ctx context.Context, project string) error {
	if s.isClosed() {
		return ErrClosed
	}
	s.mu.Lock()
	s.project = project
	s.points = nil
	s.mu.Unlock()

	s.spawn(func(ctx context.Context) {
		s.fetchPoints(ctx, project)
	})
	return s.ctrl.SwitchProject(ctx, project)
}

// RetryIdentity повторяет определение пользователя после ошибки.
func (s *Session) RetryIdentity(ctx context.Context) (models.Identity, error) {
	if s.isClosed() {
		return models.Identity{}, ErrClosed
	}
	return s.ctrl.ResolveIdentity(ctx, s.Project()), nil
}

func (s *Session) Shapes() models.ShapeList    { return s.engine.Current() }
func (s *Session) History() []models.ShapeList { return s.engine.History() }
func (s *Session) DragMode() models.DragMode   { return s.engine.DragMode() }
func (s *Session) Identity() models.Identity   { return s.ctrl.Identity() }
func (s *Session) Phase() syncer.Phase         { return s.ctrl.Phase() }
func (s *Session) Saving() bool                { return s.ctrl.Saving() }

func (s *Session) Project() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.project
}

func (s *Session) Points() []models.PlotPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.PlotPoint(nil), s.points...)
}

// Wait ждёт завершения фоновых задач, запущенных к этому моменту.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close снимает все подписки, отменяет фоновые запросы и дожидается их.
// Уведомления после Close не доставляются. Повторный вызов безопасен.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	releases := s.releases
	s.releases = nil
	s.mu.Unlock()

	for _, release := range releases {
		release()
	}
	s.notes.close()
	s.cancel()
	s.wg.Wait()
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) spawn(fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

func (s *Session) fetchPoints(ctx context.Context, project string) {
	if s.data == nil {
		return
	}
	points, err := s.data.ProjectData(ctx, project)
	if err != nil {
		s.notes.Notify(notify.Notification{
			Level:   notify.Failure,
			Topic:   notify.TopicData,
			Message: "Error fetching data",
			Err:     err,
		})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// ответ для проекта, с которого уже ушли, не нужен
	if s.project == project {
		s.points = points
	}
}

// ============================================================
// Notifier gate
// ============================================================

type gatedNotifier struct {
	mu     sync.Mutex
	closed bool
	next   notify.Notifier
}

func (g *gatedNotifier) Notify(n notify.Notification) {
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if !closed {
		g.next.Notify(n)
	}
}

func (g *gatedNotifier) close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}
