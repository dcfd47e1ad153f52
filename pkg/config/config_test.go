package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8000" {
		t.Fatalf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Vector.Provider != "local" {
		t.Fatalf("Vector.Provider = %q", cfg.Vector.Provider)
	}
	if cfg.Context.SemanticLimit != 5 || cfg.Context.RecencyWindow != 3 {
		t.Fatalf("context defaults = %+v", cfg.Context)
	}
	if cfg.Context.DomainRecencyWindow != 1 || cfg.Context.DomainLimit != 3 || cfg.Context.FallbackWindow != 10 {
		t.Fatalf("context defaults = %+v", cfg.Context)
	}
	if cfg.Ingest.ChunkSize != 300 || cfg.Ingest.BatchSize != 100 {
		t.Fatalf("ingest defaults = %+v", cfg.Ingest)
	}
}

func TestLoadPartialFileFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  addr: ":9000"
ollama:
  model: mistral
context:
  semantic_limit: 8
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Fatalf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Ollama.Model != "mistral" {
		t.Fatalf("Ollama.Model = %q", cfg.Ollama.Model)
	}
	if cfg.Context.SemanticLimit != 8 {
		t.Fatalf("SemanticLimit = %d", cfg.Context.SemanticLimit)
	}
	// Untouched fields still get their defaults.
	if cfg.Context.FallbackWindow != 10 {
		t.Fatalf("FallbackWindow = %d", cfg.Context.FallbackWindow)
	}
	if cfg.Ollama.EmbedModel != "nomic-embed-text" {
		t.Fatalf("EmbedModel = %q", cfg.Ollama.EmbedModel)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a mapping"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for malformed YAML")
	}
}

func TestQdrantDefaultsOnlyWhenSelected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
vector:
  provider: qdrant
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	q := cfg.Vector.Qdrant
	if q == nil {
		t.Fatalf("Qdrant section not populated for the qdrant provider")
	}
	if q.Host != "localhost" || q.Port != 6334 || q.VectorDim != 768 {
		t.Fatalf("qdrant defaults = %+v", q)
	}

	if Default().Vector.Qdrant != nil {
		t.Fatalf("local provider grew a qdrant section")
	}
}

func TestExplicitZeroTemperatureSurvives(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
ollama:
  temperature: 0
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ollama.Temperature == nil {
		t.Fatalf("temperature not populated")
	}
	if *cfg.Ollama.Temperature != 0 {
		t.Fatalf("temperature = %v, want the configured 0", *cfg.Ollama.Temperature)
	}

	// The absent field still defaults.
	if def := Default().Ollama.Temperature; def == nil || *def != 0.7 {
		t.Fatalf("default temperature = %v, want 0.7", def)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OLLAMA_MODEL", "phi3")
	t.Setenv("OLLAMA_API_URL", "http://ollama.internal:11434/api")

	cfg := Default()
	if cfg.Ollama.Model != "phi3" {
		t.Fatalf("Ollama.Model = %q, want env override", cfg.Ollama.Model)
	}
	if cfg.Ollama.BaseURL != "http://ollama.internal:11434/api" {
		t.Fatalf("Ollama.BaseURL = %q, want env override", cfg.Ollama.BaseURL)
	}
}
