// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Provider identifies an OpenAI-compatible chat completion backend.
//
// All supported providers speak the same wire format; they differ only in
// base URL and whether an API key is required.
type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderGroq     Provider = "groq"
	ProviderOllama   Provider = "ollama"
	ProviderLMStudio Provider = "lmstudio"
)

// Default chat-completions base URLs per provider.
const (
	defaultOpenAIBaseURL   = "https://api.openai.com/v1"
	defaultGroqBaseURL     = "https://api.groq.com/openai/v1"
	defaultOllamaBaseURL   = "http://localhost:11434/v1"
	defaultLMStudioBaseURL = "http://localhost:1234/v1"
)

// DefaultMaxRetries is the retry budget applied when Config.MaxRetries is
// zero: the initial request plus up to five retries on retryable failures.
const DefaultMaxRetries = 5

// Config holds the gateway's connection settings.
//
// Description:
//
//	Usually built from the environment via ConfigFromEnv, but callers may
//	construct it directly (tests point BaseURL at an httptest server).
//
// Thread Safety: Config is immutable after construction.
type Config struct {
	// Provider selects the backend. Must be one of the Provider constants.
	Provider Provider

	// APIKey authenticates requests. Required for openai and groq; local
	// providers (ollama, lmstudio) accept any value.
	APIKey string

	// BaseURL is the API root, e.g. "https://api.groq.com/openai/v1".
	// The client appends "/chat/completions".
	BaseURL string

	// Model is the model identifier sent with every request.
	Model string

	// MaxRetries is the number of retries after the initial attempt for
	// rate-limit and server errors. Zero means DefaultMaxRetries.
	MaxRetries int

	// RequestsPerSecond enables a client-side request limiter when > 0.
	RequestsPerSecond float64
}

// ConfigFromEnv builds a Config from MEMORY_LLM_* environment variables.
//
// Description:
//
//	Reads MEMORY_LLM_PROVIDER, MEMORY_LLM_API_KEY, MEMORY_LLM_BASE_URL and
//	MEMORY_LLM_MODEL. The provider defaults to "openai". The base URL
//	defaults per provider. Local providers get a placeholder API key so
//	the Authorization header is always well-formed.
//
// Outputs:
//   - Config: The validated configuration.
//   - error: Non-nil if the provider is unknown, the model is missing, or
//     a remote provider has no API key.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Provider: Provider(strings.ToLower(os.Getenv("MEMORY_LLM_PROVIDER"))),
		APIKey:   os.Getenv("MEMORY_LLM_API_KEY"),
		BaseURL:  strings.TrimSuffix(os.Getenv("MEMORY_LLM_BASE_URL"), "/"),
		Model:    os.Getenv("MEMORY_LLM_MODEL"),
	}
	if cfg.Provider == "" {
		cfg.Provider = ProviderOpenAI
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultOpenAIBaseURL
		}
	case ProviderGroq:
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultGroqBaseURL
		}
	case ProviderOllama:
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultOllamaBaseURL
		}
		if cfg.APIKey == "" {
			cfg.APIKey = "ollama"
		}
	case ProviderLMStudio:
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultLMStudioBaseURL
		}
		if cfg.APIKey == "" {
			cfg.APIKey = "lm-studio"
		}
	default:
		return Config{}, fmt.Errorf("llm: unknown provider %q (want openai, groq, ollama or lmstudio)", cfg.Provider)
	}

	if cfg.Model == "" {
		return Config{}, fmt.Errorf("llm: MEMORY_LLM_MODEL is not set")
	}
	if cfg.APIKey == "" {
		slog.Warn("LLM API key is empty; requests to the provider will fail",
			slog.String("provider", string(cfg.Provider)))
		return Config{}, fmt.Errorf("llm: MEMORY_LLM_API_KEY is required for provider %q", cfg.Provider)
	}

	slog.Info("LLM gateway configured",
		slog.String("provider", string(cfg.Provider)),
		slog.String("model", cfg.Model),
		slog.String("base_url", cfg.BaseURL),
	)
	return cfg, nil
}
