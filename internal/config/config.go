package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StrategyFlat         = "flat"
	StrategyRerank       = "rerank"
	StrategyHierarchical = "hierarchical"

	BackendChromem  = "chromem"
	BackendPgvector = "pgvector"
)

type Config struct {
	Data       DataConfig       `yaml:"data"`
	Index      IndexConfig      `yaml:"index"`
	RAG        RAGConfig        `yaml:"rag"`
	EmbedLLM   LLMConfig        `yaml:"embed_llm"`
	ChatLLM    LLMConfig        `yaml:"chat_llm"`
	Translator TranslatorConfig `yaml:"translator"`
	Database   DatabaseConfig   `yaml:"database"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
}

// DataConfig points at the folder holding the source documents.
type DataConfig struct {
	Folder     string   `yaml:"folder"`
	Extensions []string `yaml:"extensions"`
}

type IndexConfig struct {
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path"`
	Collection    string `yaml:"collection"`
	Snapshot      string `yaml:"snapshot"`
	EncryptionKey string `yaml:"encryption_key"`
	Compress      bool   `yaml:"compress"`
	BuildOnStart  bool   `yaml:"build_on_start"`
}

type RAGConfig struct {
	Strategy      string `yaml:"strategy"`
	ChunkSize     int    `yaml:"chunk_size"`
	ChunkOverlap  int    `yaml:"chunk_overlap"`
	ParentSize    int    `yaml:"parent_size"`
	ParentOverlap int    `yaml:"parent_overlap"`
	ChildSize     int    `yaml:"child_size"`
	ChildOverlap  int    `yaml:"child_overlap"`
	TopK          int    `yaml:"top_k"`
	FetchK        int    `yaml:"fetch_k"`
	RerankTopN    int    `yaml:"rerank_top_n"`
	SectionBoost  *bool  `yaml:"section_boost"`
}

// LLMConfig is shared by the embedding and chat model sections.
type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Key         string        `yaml:"key"`
	KeyEnv      string        `yaml:"key_env"`
	Temperature float64       `yaml:"temperature"`
	BatchSize   int           `yaml:"batch_size"`
	CacheSize   int           `yaml:"cache_size"`
	Timeout     time.Duration `yaml:"timeout"`
}

type TranslatorConfig struct {
	Provider string        `yaml:"provider"`
	BaseURL  string        `yaml:"base_url"`
	Key      string        `yaml:"key"`
	KeyEnv   string        `yaml:"key_env"`
	Timeout  time.Duration `yaml:"timeout"`
}

type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Driver   string `yaml:"driver"`
	Debug    bool   `yaml:"debug"`
}

type ServerConfig struct {
	Addr        string        `yaml:"addr"`
	SessionTTL  time.Duration `yaml:"session_ttl"`
	MaxSessions int           `yaml:"max_sessions"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// LoadConfig reads the YAML file at path, fills defaults and resolves API
// keys from the environment. A .env file in the working directory is
// loaded first. A missing config file is not an error.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	cfg.ApplyDefaults()
	cfg.resolveKeys()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

func (c *Config) ApplyDefaults() {
	if c.Data.Folder == "" {
		c.Data.Folder = "data"
	}
	if len(c.Data.Extensions) == 0 {
		c.Data.Extensions = []string{".pdf", ".docx", ".pptx", ".xlsx", ".ods", ".txt"}
	}

	if c.Index.Backend == "" {
		c.Index.Backend = BackendChromem
	}
	if c.Index.Path == "" {
		c.Index.Path = "chromemdb"
	}
	if c.Index.Collection == "" {
		c.Index.Collection = "copbot"
	}

	r := &c.RAG
	if r.Strategy == "" {
		r.Strategy = StrategyRerank
	}
	setInt(&r.ChunkSize, 1000)
	setInt(&r.ChunkOverlap, 150)
	setInt(&r.ParentSize, 2000)
	setInt(&r.ParentOverlap, 200)
	setInt(&r.ChildSize, 400)
	setInt(&r.ChildOverlap, 100)
	setInt(&r.TopK, 3)
	setInt(&r.FetchK, 15)
	setInt(&r.RerankTopN, 4)
	if r.SectionBoost == nil {
		on := true
		r.SectionBoost = &on
	}

	e := &c.EmbedLLM
	if e.Provider == "" {
		e.Provider = "ollama"
	}
	if e.BaseURL == "" && e.Provider == "ollama" {
		e.BaseURL = "http://localhost:11434"
	}
	if e.Model == "" {
		e.Model = "nomic-embed-text"
	}
	if e.KeyEnv == "" && e.Provider == "openai" {
		e.KeyEnv = "OPENAI_API_KEY"
	}
	setInt(&e.BatchSize, 32)
	setInt(&e.CacheSize, 1000)

	l := &c.ChatLLM
	if l.Provider == "" {
		l.Provider = "openai"
	}
	if l.BaseURL == "" {
		l.BaseURL = "https://api.groq.com/openai/v1"
	}
	if l.Model == "" {
		l.Model = "llama3-70b-8192"
	}
	if l.KeyEnv == "" {
		l.KeyEnv = "GROQ_API_KEY"
	}
	if l.Timeout == 0 {
		l.Timeout = 60 * time.Second
	}

	t := &c.Translator
	if t.Provider == "" {
		t.Provider = "google"
	}
	if t.BaseURL == "" {
		t.BaseURL = "https://translation.googleapis.com/language/translate/v2"
	}
	if t.KeyEnv == "" {
		t.KeyEnv = "GOOGLE_TRANSLATE_API_KEY"
	}
	if t.Timeout == 0 {
		t.Timeout = 15 * time.Second
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "pgdriver"
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.SessionTTL == 0 {
		c.Server.SessionTTL = 2 * time.Hour
	}
	setInt(&c.Server.MaxSessions, 1024)

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// resolveKeys fills empty keys from the environment variable named by KeyEnv.
func (c *Config) resolveKeys() {
	for _, k := range []struct{ key, env *string }{
		{&c.EmbedLLM.Key, &c.EmbedLLM.KeyEnv},
		{&c.ChatLLM.Key, &c.ChatLLM.KeyEnv},
		{&c.Translator.Key, &c.Translator.KeyEnv},
	} {
		if *k.key == "" && *k.env != "" {
			*k.key = os.Getenv(*k.env)
		}
	}
	if c.Database.DSN == "" {
		c.Database.DSN = os.Getenv("DATABASE_URL")
	}
}

func (c *Config) Validate() error {
	switch c.Index.Backend {
	case BackendChromem, BackendPgvector:
	default:
		return fmt.Errorf("unknown index backend %q", c.Index.Backend)
	}
	switch c.RAG.Strategy {
	case StrategyFlat, StrategyRerank, StrategyHierarchical:
	default:
		return fmt.Errorf("unknown rag strategy %q", c.RAG.Strategy)
	}
	switch c.EmbedLLM.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.EmbedLLM.Provider)
	}
	switch c.Translator.Provider {
	case "google", "llm", "none":
	default:
		return fmt.Errorf("unknown translator provider %q", c.Translator.Provider)
	}
	switch c.Database.Driver {
	case "pgdriver", "pq":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	r := c.RAG
	for _, w := range []struct {
		name          string
		size, overlap int
	}{
		{"chunk", r.ChunkSize, r.ChunkOverlap},
		{"parent", r.ParentSize, r.ParentOverlap},
		{"child", r.ChildSize, r.ChildOverlap},
	} {
		if w.size <= 0 || w.overlap < 0 || w.overlap >= w.size {
			return fmt.Errorf("invalid %s window: size %d overlap %d", w.name, w.size, w.overlap)
		}
	}
	if r.TopK <= 0 || r.FetchK <= 0 || r.RerankTopN <= 0 {
		return fmt.Errorf("top_k, fetch_k and rerank_top_n must be positive")
	}

	if k := c.Index.EncryptionKey; k != "" && len(k) != 32 {
		return fmt.Errorf("index encryption key must be 32 bytes, got %d", len(k))
	}
	return nil
}

func setInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}
