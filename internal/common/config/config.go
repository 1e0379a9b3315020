package config

import (
	"os"
	"strconv"
	"strings"
)

// ============================================================
// Configuration
// ============================================================

type Config struct {
	Port         string
	Environment  string
	ReadTimeout  int
	WriteTimeout int

	// shapes service
	DBPath        string
	AdminEmail    string
	AdminPassword string

	// gateway
	ShapesURL      string
	AllowedOrigins []string

	// annotate CLI
	GatewayURL string
}

// Load загружает конфигурацию из переменных окружения
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "3000"),
		Environment:    getEnv("ENV", "development"),
		ReadTimeout:    getEnvAsInt("READ_TIMEOUT", 10),
		WriteTimeout:   getEnvAsInt("WRITE_TIMEOUT", 10),
		DBPath:         getEnv("SHAPES_DB_PATH", "data/db/shapes.db"),
		AdminEmail:     getEnv("ADMIN_EMAIL", "admin@example.com"),
		AdminPassword:  getEnv("ADMIN_PASSWORD", "admin"),
		ShapesURL:      getEnv("SHAPES_URL", "http://localhost:3002"),
		AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		GatewayURL:     getEnv("GATEWAY_URL", "http://localhost:8000"),
	}
}

// IsProduction: cookie только по https и без дефолтного admin.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// PortOr возвращает порт по умолчанию для сервиса, если PORT не задан.
func (c *Config) PortOr(def string) string {
	if os.Getenv("PORT") == "" {
		return def
	}
	return c.Port
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsList(key string, defaultVal []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
