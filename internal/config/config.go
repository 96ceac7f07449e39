package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Backend names accepted by MEMORY_BACKEND.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendNeo4j  = "neo4j"
)

// Config holds all application configuration.
type Config struct {
	Env  string
	Host string
	Port string

	// Storage
	MemoryDir string
	Backend   string

	// Neo4j (only used with MEMORY_BACKEND=neo4j)
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
}

// Load reads configuration from environment variables, optionally seeded
// from a .env file.
func Load() (*Config, error) {
	// Missing .env is fine; real environments set variables directly.
	_ = godotenv.Load()

	cfg := &Config{
		Env:           getEnv("ENV", "development"),
		Host:          getEnv("HOST", ""),
		Port:          getEnv("PORT", "8082"),
		MemoryDir:     getEnv("MEMORY_DIR", "./memory"),
		Backend:       getEnv("MEMORY_BACKEND", BackendFile),
		Neo4jURI:      getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:     getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword: getEnv("NEO4J_PASSWORD", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks that the selected backend has what it needs.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendFile, BackendSQLite:
		if c.MemoryDir == "" {
			return fmt.Errorf("MEMORY_DIR is required")
		}
	case BackendNeo4j:
		if c.Neo4jURI == "" {
			return fmt.Errorf("NEO4J_URI is required")
		}
		if c.Neo4jUser == "" {
			return fmt.Errorf("NEO4J_USER is required")
		}
		if c.Neo4jPassword == "" {
			return fmt.Errorf("NEO4J_PASSWORD is required")
		}
	default:
		return fmt.Errorf("unknown MEMORY_BACKEND %q (use file, sqlite or neo4j)", c.Backend)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
