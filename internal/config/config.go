package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Database  DatabaseConfig  `yaml:"database"`
	EmbedLLM  LLMConfig       `yaml:"embed_llm"`
	ChatLLM   LLMConfig       `yaml:"chat_llm"`
	RAG       RAGConfig       `yaml:"rag"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Paths     PathsConfig     `yaml:"paths"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StoreConfig selects and configures the vector store backing the index.
type StoreConfig struct {
	// Type is "chromem" (default) or "postgres".
	Type       string `yaml:"type"`
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
	InMemory   bool   `yaml:"in_memory"`
}

// DatabaseConfig applies when store.type is "postgres".
type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

type LLMConfig struct {
	// Provider is "ollama" (default) or "openai" for any
	// OpenAI-compatible endpoint.
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	Key      string `yaml:"key"`
	Model    string `yaml:"model"`
}

type RAGConfig struct {
	ChunkSize     int    `yaml:"chunk_size"`
	ChunkOverlap  int    `yaml:"chunk_overlap"`
	EncryptionKey string `yaml:"encryption_key"`
}

// RetrievalConfig tunes the context retrieval pipeline. Zero values fall
// back to the pipeline defaults.
type RetrievalConfig struct {
	MinPageResults  int `yaml:"min_page_results"`
	PageQueryK      int `yaml:"page_query_k"`
	DocQueryK       int `yaml:"doc_query_k"`
	BroadQueryK     int `yaml:"broad_query_k"`
	ScanK           int `yaml:"scan_k"`
	FanOutK         int `yaml:"fan_out_k"`
	SourceFallbackK int `yaml:"source_fallback_k"`
	DefaultK        int `yaml:"default_k"`
}

type PathsConfig struct {
	Documents string `yaml:"documents"`
	OCR       string `yaml:"ocr"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Store.Type == "" {
		cfg.Store.Type = "chromem"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "./indices"
	}
	if cfg.Store.Collection == "" {
		cfg.Store.Collection = "documents"
	}
	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = "ollama"
	}
	if cfg.EmbedLLM.BaseURL == "" {
		cfg.EmbedLLM.BaseURL = ollamaURL()
	}
	if cfg.EmbedLLM.Model == "" {
		cfg.EmbedLLM.Model = "nomic-embed-text"
	}
	if cfg.ChatLLM.Provider == "" {
		cfg.ChatLLM.Provider = "ollama"
	}
	if cfg.ChatLLM.BaseURL == "" {
		cfg.ChatLLM.BaseURL = ollamaURL()
	}
	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = 500
	}
	if cfg.RAG.ChunkOverlap == 0 {
		cfg.RAG.ChunkOverlap = 50
	}
	if cfg.Paths.Documents == "" {
		cfg.Paths.Documents = "./documents"
	}
	if cfg.Paths.OCR == "" {
		cfg.Paths.OCR = "./ocr_documents"
	}
}

// ollamaURL resolves the ollama server root, honoring the OLLAMA_API_URL
// environment variable (with or without its /api suffix).
func ollamaURL() string {
	if v := os.Getenv("OLLAMA_API_URL"); v != "" {
		return strings.TrimSuffix(strings.TrimSuffix(v, "/"), "/api")
	}
	return "http://localhost:11434"
}
