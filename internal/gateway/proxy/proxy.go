package proxy

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
)

// ============================================================
// Proxy Handler
// ============================================================

var client = &http.Client{Timeout: 15 * time.Second}

// forwardedHeaders: заголовки запроса, которые уходят upstream. Cookie и
// X-CSRFToken нужны shapes-сервису для сессии и защиты save.
var forwardedHeaders = []string{
	"Content-Type",
	"Accept",
	"Authorization",
	"Cookie",
	"X-CSRFToken",
	"Origin",
}

// hopHeaders не копируются обратно клиенту.
var hopHeaders = map[string]struct{}{
	"Connection":        {},
	"Content-Length":    {},
	"Keep-Alive":        {},
	"Transfer-Encoding": {},
	"Upgrade":           {},
}

// ProxyTo проксирует запрос в сервис по baseURL, сохраняя исходный путь и query.
func ProxyTo(baseURL string) fiber.Handler {
	base := strings.TrimRight(baseURL, "/")
	return func(c fiber.Ctx) error {
		return forwardRequest(c, base+c.OriginalURL())
	}
}

func forwardRequest(c fiber.Ctx, targetURL string) error {
	log.Printf("[PROXY] %s %s -> %s (%d bytes)", c.Method(), c.Path(), targetURL, len(c.Body()))

	var body io.Reader
	if len(c.Body()) > 0 {
		body = bytes.NewReader(c.Body())
	}
	req, err := http.NewRequest(c.Method(), targetURL, body)
	if err != nil {
		log.Printf("[PROXY] build request error: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "proxy failed"})
	}

	for _, key := range forwardedHeaders {
		if value := c.Get(key); value != "" {
			req.Header.Set(key, value)
		}
	}
	req.Header.Set("X-Forwarded-For", c.IP())

	resp, err := client.Do(req)
	if err != nil {
		log.Printf("[PROXY] Error: %v", err)
		return c.Status(http.StatusBadGateway).JSON(fiber.Map{"error": "failed to reach upstream service"})
	}
	defer resp.Body.Close()

	return copyResponse(c, resp)
}

func copyResponse(c fiber.Ctx, resp *http.Response) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[PROXY] Read response error: %v", err)
		return c.Status(http.StatusBadGateway).JSON(fiber.Map{"error": "invalid upstream response"})
	}

	for key, values := range resp.Header {
		if _, skip := hopHeaders[key]; skip {
			continue
		}
		for _, value := range values {
			c.Response().Header.Add(key, value)
		}
	}

	c.Status(resp.StatusCode)
	return c.Send(data)
}
