package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func resetGlobal() {
	globalConfig = nil
	initOnce = *new(sync.Once)
}

func TestInitialize(t *testing.T) {
	resetGlobal()

	configPath := writeConfig(t, `
mongo:
  database: "first"
`)

	if err := Initialize(configPath); err != nil {
		t.Fatalf("failed to initialize config: %v", err)
	}

	cfg := GetConfig()
	if cfg == nil {
		t.Fatal("expected non-nil config after initialization")
	}
	if cfg.Mongo.Database != "first" {
		t.Errorf("expected database %q, got %q", "first", cfg.Mongo.Database)
	}
}

func TestInitialize_MultipleCallsIgnored(t *testing.T) {
	resetGlobal()

	tmpDir := t.TempDir()
	configPath1 := filepath.Join(tmpDir, "config1.yaml")
	configPath2 := filepath.Join(tmpDir, "config2.yaml")

	if err := os.WriteFile(configPath1, []byte("mongo:\n  database: \"one\"\n"), 0644); err != nil {
		t.Fatalf("failed to write config1 file: %v", err)
	}
	if err := os.WriteFile(configPath2, []byte("mongo:\n  database: \"two\"\n"), 0644); err != nil {
		t.Fatalf("failed to write config2 file: %v", err)
	}

	if err := Initialize(configPath1); err != nil {
		t.Fatalf("failed to initialize config: %v", err)
	}
	Initialize(configPath2)

	if got := GetConfig().Mongo.Database; got != "one" {
		t.Errorf("second Initialize call should be ignored, got database %q", got)
	}
}

func TestGetConfig_BeforeInitialize(t *testing.T) {
	resetGlobal()

	if cfg := GetConfig(); cfg != nil {
		t.Error("expected nil config before initialization")
	}
}

func TestSetConfig(t *testing.T) {
	resetGlobal()

	testCfg := NewDefaultConfig()
	testCfg.Jobs.Workers = 9
	SetConfig(testCfg)

	retrieved := GetConfig()
	if retrieved == nil {
		t.Fatal("expected non-nil config after SetConfig")
	}
	if retrieved.Jobs.Workers != 9 {
		t.Errorf("expected 9 workers, got %d", retrieved.Jobs.Workers)
	}
}

func TestInitialize_InvalidConfig(t *testing.T) {
	resetGlobal()

	configPath := writeConfig(t, "telemetry:\n  logging:\n    level: \"loud\"\n")
	if err := Initialize(configPath); err == nil {
		t.Fatal("expected error for invalid log level")
	}
	if GetConfig() != nil {
		t.Error("failed Initialize should not install a config")
	}
}

func TestMustGetConfig(t *testing.T) {
	resetGlobal()

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected MustGetConfig to panic when not initialized")
		}
	}()

	MustGetConfig()
}

func TestMustGetConfig_AfterSet(t *testing.T) {
	resetGlobal()
	SetConfig(NewDefaultConfig())

	if cfg := MustGetConfig(); cfg == nil {
		t.Error("expected non-nil config from MustGetConfig")
	}
}
