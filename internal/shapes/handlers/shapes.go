package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"

	"shape-annotator/internal/shapes/models"
	"shape-annotator/internal/shapes/repository"
	"shape-annotator/internal/shapes/service"

	"github.com/gofiber/fiber/v3"
)

const (
	SessionCookie = "sessionid"
	CSRFHeader    = "X-CSRFToken"
)

// ============================================================
// Shapes Handler
// ============================================================

type ShapesHandler struct {
	repo         *repository.Repository
	sessions     *service.SessionManager
	secureCookie bool
}

func NewShapesHandler(repo *repository.Repository, sessions *service.SessionManager, secureCookie bool) *ShapesHandler {
	return &ShapesHandler{
		repo:         repo,
		sessions:     sessions,
		secureCookie: secureCookie,
	}
}

// Register вешает маршруты API на router.
func (h *ShapesHandler) Register(api fiber.Router) {
	api.Post("/login/", h.Login)
	api.Post("/logout/", h.Logout)
	api.Get("/users/me/", h.Me)
	api.Get("/get-csrf-token/", h.CSRFToken)
	api.Get("/load-shapes/:projectTitle/", h.LoadShapes)
	api.Post("/save-shapes/:projectTitle/", h.SaveShapes)
	api.Get("/user-project-data/:projectTitle/", h.GetProjectData)
	api.Post("/user-project-data/:projectTitle/", h.ReplaceProjectData)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type saveRequest struct {
	UserEmail string           `json:"userEmail"`
	Shapes    models.ShapeList `json:"shapes"`
}

// ============================================================
// Identity
// ============================================================

// Login проверяет email/пароль и выставляет cookie сессии.
func (h *ShapesHandler) Login(c fiber.Ctx) error {
	log.Printf("[SHAPES] Login request")

	if len(c.Body()) == 0 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "empty body"})
	}

	var req loginRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid json"})
	}
	if req.Email == "" || req.Password == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "email and password required"})
	}

	user, err := h.repo.Authenticate(context.Background(), req.Email, req.Password)
	if err != nil {
		if !errors.Is(err, repository.ErrInvalidCredentials) {
			log.Printf("[SHAPES] authenticate error: %v", err)
		}
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "invalid credentials"})
	}

	c.Cookie(&fiber.Cookie{
		Name:     SessionCookie,
		Value:    h.sessions.Issue(user.Email),
		Path:     "/",
		HTTPOnly: true,
		Secure:   h.secureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.JSON(fiber.Map{"email": user.Email})
}

// Logout закрывает сессию.
func (h *ShapesHandler) Logout(c fiber.Ctx) error {
	if token := c.Cookies(SessionCookie); token != "" {
		h.sessions.Revoke(token)
	}
	c.ClearCookie(SessionCookie)
	return c.SendStatus(http.StatusNoContent)
}

// Me возвращает email пользователя текущей сессии.
func (h *ShapesHandler) Me(c fiber.Ctx) error {
	email, ok := h.authorize(c)
	if !ok {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	return c.JSON(fiber.Map{"email": email})
}

// CSRFToken выдаёт токен, который нужно прикладывать к изменяющим запросам.
func (h *ShapesHandler) CSRFToken(c fiber.Ctx) error {
	token, ok := h.sessions.CSRFToken(c.Cookies(SessionCookie))
	if !ok {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	return c.JSON(fiber.Map{"csrfToken": token})
}

// ============================================================
// Shapes
// ============================================================

// LoadShapes отдаёт сохранённые shapes пары (проект, userEmail).
func (h *ShapesHandler) LoadShapes(c fiber.Ctx) error {
	email, ok := h.authorize(c)
	if !ok {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	project, ok := projectParam(c)
	if !ok {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "project title required"})
	}
	if !sameUser(c.Query("userEmail"), email) {
		return c.Status(http.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	}

	shapes, err := h.repo.LoadShapes(context.Background(), project, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "shapes not found"})
		}
		log.Printf("[SHAPES] load error: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load shapes"})
	}

	return c.JSON(shapes)
}

// SaveShapes целиком заменяет shapes пары (проект, userEmail).
func (h *ShapesHandler) SaveShapes(c fiber.Ctx) error {
	email, ok := h.authorize(c)
	if !ok {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	if !h.sessions.VerifyCSRF(c.Cookies(SessionCookie), c.Get(CSRFHeader)) {
		return c.Status(http.StatusForbidden).JSON(fiber.Map{"error": "csrf token mismatch"})
	}
	project, ok := projectParam(c)
	if !ok {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "project title required"})
	}

	var req saveRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid json"})
	}
	if !sameUser(req.UserEmail, email) {
		return c.Status(http.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	}
	if err := req.Shapes.Validate(); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if err := h.repo.SaveShapes(context.Background(), project, email, req.Shapes); err != nil {
		log.Printf("[SHAPES] save error: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save shapes"})
	}

	log.Printf("[SHAPES] saved %d shapes for %s / %s", len(req.Shapes), project, email)
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"status": "saved",
		"count":  len(req.Shapes),
	})
}

// ============================================================
// Project Data
// ============================================================

// GetProjectData отдаёт точки рассеяния проекта.
func (h *ShapesHandler) GetProjectData(c fiber.Ctx) error {
	project, ok := projectParam(c)
	if !ok {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "project title required"})
	}

	points, err := h.repo.ListPoints(context.Background(), project)
	if err != nil {
		log.Printf("[SHAPES] list points error: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load project data"})
	}
	return c.JSON(points)
}

// ReplaceProjectData заменяет точки проекта.
func (h *ShapesHandler) ReplaceProjectData(c fiber.Ctx) error {
	if _, ok := h.authorize(c); !ok {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	if !h.sessions.VerifyCSRF(c.Cookies(SessionCookie), c.Get(CSRFHeader)) {
		return c.Status(http.StatusForbidden).JSON(fiber.Map{"error": "csrf token mismatch"})
	}
	project, ok := projectParam(c)
	if !ok {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "project title required"})
	}

	var points []models.PlotPoint
	if err := json.Unmarshal(c.Body(), &points); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid json"})
	}

	if err := h.repo.ReplacePoints(context.Background(), project, points); err != nil {
		log.Printf("[SHAPES] replace points error: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save project data"})
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"count": len(points)})
}

// ============================================================
// Helpers
// ============================================================

func (h *ShapesHandler) authorize(c fiber.Ctx) (string, bool) {
	token := c.Cookies(SessionCookie)
	if token == "" {
		return "", false
	}
	return h.sessions.Resolve(token)
}

// projectParam декодирует заголовок проекта из пути (encodeURIComponent на
// клиенте). Заголовок не нормализуется: ключ хранения совпадает с тем, что
// прислал клиент, пробелы по краям включительно. Пустой или из одних
// пробелов отклоняется.
func projectParam(c fiber.Ctx) (string, bool) {
	raw := c.Params("projectTitle")
	title, err := url.PathUnescape(raw)
	if err != nil {
		title = raw
	}
	return title, strings.TrimSpace(title) != ""
}

func sameUser(requested, sessionEmail string) bool {
	return strings.EqualFold(strings.TrimSpace(requested), sessionEmail)
}
