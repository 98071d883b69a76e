package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/randalmurphal/chatflow/pkg/chatflow/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	tests := []struct {
		name       string
		data       map[string]any
		key        string
		defaultVal string
		want       string
	}{
		{"key exists", map[string]any{"model": "gpt-4o"}, "model", "default", "gpt-4o"},
		{"key missing", map[string]any{"other": "value"}, "model", "default", "default"},
		{"empty string", map[string]any{"model": ""}, "model", "default", ""},
		{"number formatted", map[string]any{"model": float64(4)}, "model", "default", "4"},
		{"bool formatted", map[string]any{"model": true}, "model", "default", "true"},
		{"nil value", map[string]any{"model": nil}, "model", "default", "default"},
		{"slice rejected", map[string]any{"model": []string{"a"}}, "model", "default", "default"},
		{"nil map", nil, "model", "default", "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, config.New(tt.data).String(tt.key, tt.defaultVal))
		})
	}
}

func TestNumbers(t *testing.T) {
	cfg := config.New(map[string]any{
		"json_int":    float64(64),
		"json_frac":   0.3,
		"yaml_int":    16,
		"int64":       int64(9),
		"text_number": " 12 ",
		"text_float":  "0.75",
		"garbage":     "abc",
	})

	assert.Equal(t, 64, cfg.Int("json_int", 0))
	assert.Equal(t, 5, cfg.Int("json_frac", 5), "fractional floats are not ints")
	assert.Equal(t, 16, cfg.Int("yaml_int", 0))
	assert.Equal(t, 9, cfg.Int("int64", 0))
	assert.Equal(t, 12, cfg.Int("text_number", 0))
	assert.Equal(t, 1, cfg.Int("garbage", 1))

	assert.InDelta(t, 0.3, cfg.Float("json_frac", 0), 1e-9)
	assert.InDelta(t, 16.0, cfg.Float("yaml_int", 0), 1e-9)
	assert.InDelta(t, 0.75, cfg.Float("text_float", 0), 1e-9)
	assert.InDelta(t, 2.5, cfg.Float("missing", 2.5), 1e-9)
}

func TestBool(t *testing.T) {
	cfg := config.New(map[string]any{"a": true, "b": "false", "c": "nope", "d": 1})
	assert.True(t, cfg.Bool("a", false))
	assert.False(t, cfg.Bool("b", true))
	assert.True(t, cfg.Bool("c", true))
	assert.True(t, cfg.Bool("d", true))
	assert.False(t, cfg.Bool("missing", false))
}

func TestDuration(t *testing.T) {
	cfg := config.New(map[string]any{
		"text":    "1m30s",
		"seconds": float64(2),
		"int":     3,
		"typed":   5 * time.Millisecond,
		"bad":     "soon",
	})
	assert.Equal(t, 90*time.Second, cfg.Duration("text", 0))
	assert.Equal(t, 2*time.Second, cfg.Duration("seconds", 0))
	assert.Equal(t, 3*time.Second, cfg.Duration("int", 0))
	assert.Equal(t, 5*time.Millisecond, cfg.Duration("typed", 0))
	assert.Equal(t, time.Second, cfg.Duration("bad", time.Second))
}

func TestStringSlice(t *testing.T) {
	cfg := config.New(map[string]any{
		"typed": []string{"a"},
		"any":   []any{"b", "c"},
		"mixed": []any{"d", 1},
	})
	assert.Equal(t, []string{"a"}, cfg.StringSlice("typed", nil))
	assert.Equal(t, []string{"b", "c"}, cfg.StringSlice("any", nil))
	assert.Equal(t, []string{"x"}, cfg.StringSlice("mixed", []string{"x"}))
}

func TestMapAndObjects(t *testing.T) {
	cfg := config.New(map[string]any{
		"model_config": map[string]any{"temperature": 0.2},
		"classes": []any{
			map[string]any{"id": "a", "name": "Billing"},
			"skipped",
			map[string]any{"id": "b", "name": "Support"},
		},
	})

	assert.InDelta(t, 0.2, cfg.Map("model_config").Float("temperature", 0), 1e-9)
	assert.False(t, cfg.Map("missing").Has("anything"))

	classes := cfg.Objects("classes")
	require.Len(t, classes, 2)
	assert.Equal(t, "Support", classes[1].String("name", ""))
	assert.Empty(t, cfg.Objects("missing"))
}

func TestAnyHasRaw(t *testing.T) {
	cfg := config.New(map[string]any{"k": []int{1}})
	assert.Equal(t, []int{1}, cfg.Any("k", nil))
	assert.Equal(t, "d", cfg.Any("missing", "d"))
	assert.True(t, cfg.Has("k"))
	assert.False(t, cfg.Has("x"))
	assert.NotNil(t, config.New(nil).Raw())
}

func TestFromYAML(t *testing.T) {
	cfg, err := config.FromYAML([]byte("engine:\n  max_depth: 3\n  model: gpt-4o\ntags:\n  - a\n  - b\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Map("engine").Int("max_depth", 0))
	assert.Equal(t, []string{"a", "b"}, cfg.StringSlice("tags", nil))

	_, err = config.FromYAML([]byte("invalid: yaml: content:"))
	assert.Error(t, err)
}

func TestFromJSON(t *testing.T) {
	cfg, err := config.FromJSON([]byte(`{"max_depth": 4}`))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Int("max_depth", 0))

	_, err = config.FromJSON([]byte(`{`))
	assert.Error(t, err)
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("max_depth: 2\n"), 0o644))
	jsonPath := filepath.Join(dir, "engine.JSON")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"max_depth": 5}`), 0o644))
	txtPath := filepath.Join(dir, "engine.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("x"), 0o644))

	cfg, err := config.FromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Int("max_depth", 0))

	cfg, err = config.FromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Int("max_depth", 0))

	_, err = config.FromFile(txtPath)
	assert.ErrorContains(t, err, "unsupported config file extension")

	_, err = config.FromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestEngineSettings(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		e := config.EngineSettings(config.New(nil))
		assert.Equal(t, config.DefaultMaxDepth, e.MaxDepth)
		assert.Equal(t, config.DefaultPersistenceWorkers, e.PersistenceWorkers)
		assert.Equal(t, config.DefaultModel, e.Model)
		assert.Equal(t, config.DefaultProvider, e.Provider)
		assert.Equal(t, slog.LevelInfo, e.LogLevel)
		assert.Empty(t, e.DatabasePath)
	})

	t.Run("engine section", func(t *testing.T) {
		cfg, err := config.FromYAML([]byte(`
engine:
  database_path: /tmp/chatflow.db
  max_depth: 3
  persistence_workers: 0
  model: gpt-4o
  log_level: debug
`))
		require.NoError(t, err)
		e := config.EngineSettings(cfg)
		assert.Equal(t, "/tmp/chatflow.db", e.DatabasePath)
		assert.Equal(t, 3, e.MaxDepth)
		assert.Equal(t, config.DefaultPersistenceWorkers, e.PersistenceWorkers)
		assert.Equal(t, "gpt-4o", e.Model)
		assert.Equal(t, slog.LevelDebug, e.LogLevel)
	})
}
