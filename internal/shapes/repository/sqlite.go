package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"shape-annotator/internal/shapes/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ============================================================
// SQLite Repository
// ============================================================

type Repository struct {
	db       *sql.DB
	hashCost int
}

func New(db *sql.DB) *Repository {
	return &Repository{db: db, hashCost: bcrypt.DefaultCost}
}

// SetHashCost меняет стоимость bcrypt (в тестах bcrypt.MinCost).
func (r *Repository) SetHashCost(cost int) {
	r.hashCost = cost
}

// Init запускает миграции и убеждается в наличии admin.
func (r *Repository) Init(ctx context.Context, adminEmail, adminPassword string) error {
	if err := r.runMigrations(ctx); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	if adminEmail == "" {
		return nil
	}
	return r.ensureAdmin(ctx, adminEmail, adminPassword)
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ============================================================
// Users
// ============================================================

func (r *Repository) CreateUser(ctx context.Context, email, password, name string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), r.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Name:         name,
	}
	_, err = r.db.ExecContext(ctx, `
        INSERT INTO users (id, email, password_hash, name)
        VALUES (?, ?, ?, ?)
    `, u.ID, u.Email, u.PasswordHash, u.Name)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return r.GetByEmail(ctx, email)
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `
        SELECT id, email, password_hash, name, created_at
        FROM users
        WHERE email = ?
    `, normalizeEmail(email))

	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Authenticate проверяет пару email/пароль.
func (r *Repository) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	u, err := r.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// ============================================================
// Shapes
// ============================================================

// LoadShapes возвращает сохранённый набор или ErrNotFound.
func (r *Repository) LoadShapes(ctx context.Context, project, email string) (models.ShapeList, error) {
	row := r.db.QueryRowContext(ctx, `
        SELECT shapes_json
        FROM shapes
        WHERE project_title = ? AND user_email = ?
    `, project, normalizeEmail(email))

	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	shapes := models.ShapeList{}
	if err := json.Unmarshal([]byte(raw), &shapes); err != nil {
		return nil, fmt.Errorf("decode shapes: %w", err)
	}
	return shapes, nil
}

// SaveShapes целиком заменяет набор для пары (проект, пользователь).
func (r *Repository) SaveShapes(ctx context.Context, project, email string, shapes models.ShapeList) error {
	data, err := json.Marshal(shapes)
	if err != nil {
		return fmt.Errorf("encode shapes: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
        INSERT INTO shapes (project_title, user_email, shapes_json, updated_at)
        VALUES (?, ?, ?, strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
        ON CONFLICT (project_title, user_email)
        DO UPDATE SET shapes_json = excluded.shapes_json, updated_at = excluded.updated_at
    `, project, normalizeEmail(email), string(data))
	if err != nil {
		return fmt.Errorf("upsert shapes: %w", err)
	}
	return nil
}

// ============================================================
// Project Points
// ============================================================

func (r *Repository) ListPoints(ctx context.Context, project string) ([]models.PlotPoint, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT label, x, y, size, color
        FROM project_points
        WHERE project_title = ?
        ORDER BY position
    `, project)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := []models.PlotPoint{}
	for rows.Next() {
		var p models.PlotPoint
		if err := rows.Scan(&p.Label, &p.X, &p.Y, &p.Size, &p.Color); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// ReplacePoints заменяет точки проекта одной транзакцией.
func (r *Repository) ReplacePoints(ctx context.Context, project string, points []models.PlotPoint) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM project_points WHERE project_title = ?`, project); err != nil {
		return fmt.Errorf("clear points: %w", err)
	}
	for i, p := range points {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO project_points (project_title, position, label, x, y, size, color)
            VALUES (?, ?, ?, ?, ?, ?, ?)
        `, project, i, p.Label, p.X, p.Y, p.Size, p.Color)
		if err != nil {
			return fmt.Errorf("insert point %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// ============================================================
// Migrations & Seeding
// ============================================================

func (r *Repository) runMigrations(ctx context.Context) error {
	entries, err := fs.ReadDir(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	for _, e := range entries {
		data, err := migrations.ReadFile("migrations/" + e.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		if _, err := r.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", e.Name(), err)
		}
	}
	return nil
}

func (r *Repository) ensureAdmin(ctx context.Context, email, password string) error {
	_, err := r.GetByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}

	if _, err := r.CreateUser(ctx, email, password, "Admin User"); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// OpenSQLite открывает sqlite по указанному пути.
func OpenSQLite(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?mode=rwc&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}
