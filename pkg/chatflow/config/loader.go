package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FromFile loads configuration from a file, choosing the format by extension.
// Supported extensions: .yaml, .yml, .json
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json":
		return FromJSON(data)
	default:
		return Config{}, fmt.Errorf("unsupported config file extension: %s", ext)
	}
}

// FromYAML parses YAML data into a Config.
func FromYAML(data []byte) (Config, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	return New(m), nil
}

// FromJSON parses JSON data into a Config.
func FromJSON(data []byte) (Config, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse json: %w", err)
	}
	return New(m), nil
}

// Engine holds process-level settings for an embedding service.
type Engine struct {
	// DatabasePath is the SQLite file for run records and conversation
	// variables. Empty means in-memory storage.
	DatabasePath string
	// MaxDepth bounds nested workflow execution.
	MaxDepth int
	// PersistenceWorkers sizes the asynchronous persistence pool.
	PersistenceWorkers int
	// Provider and Model are defaults for model-backed nodes.
	Provider string
	Model    string
	// LogLevel is one of debug, info, warn, error.
	LogLevel slog.Level
}

// Engine defaults.
const (
	DefaultMaxDepth           = 8
	DefaultPersistenceWorkers = 4
	DefaultProvider           = "openai"
	DefaultModel              = "gpt-4o-mini"
)

// EngineSettings extracts Engine settings, reading them from the "engine"
// section when present and from the top level otherwise.
func EngineSettings(c Config) Engine {
	if c.Has("engine") {
		c = c.Map("engine")
	}

	e := Engine{
		DatabasePath:       c.String("database_path", ""),
		MaxDepth:           c.Int("max_depth", DefaultMaxDepth),
		PersistenceWorkers: c.Int("persistence_workers", DefaultPersistenceWorkers),
		Provider:           c.String("provider", DefaultProvider),
		Model:              c.String("model", DefaultModel),
		LogLevel:           slog.LevelInfo,
	}
	if e.MaxDepth <= 0 {
		e.MaxDepth = DefaultMaxDepth
	}
	if e.PersistenceWorkers <= 0 {
		e.PersistenceWorkers = DefaultPersistenceWorkers
	}
	if lvl := c.String("log_level", ""); lvl != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(lvl)); err == nil {
			e.LogLevel = level
		}
	}
	return e
}
