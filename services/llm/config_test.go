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

import "testing"

func clearLLMEnv(t *testing.T) {
	t.Setenv("MEMORY_LLM_PROVIDER", "")
	t.Setenv("MEMORY_LLM_API_KEY", "")
	t.Setenv("MEMORY_LLM_BASE_URL", "")
	t.Setenv("MEMORY_LLM_MODEL", "")
}

func TestConfigFromEnv_DefaultsToOpenAI(t *testing.T) {
	clearLLMEnv(t)
	t.Setenv("MEMORY_LLM_API_KEY", "sk-test")
	t.Setenv("MEMORY_LLM_MODEL", "gpt-4o-mini")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv failed: %v", err)
	}
	if cfg.Provider != ProviderOpenAI {
		t.Errorf("provider = %q, want %q", cfg.Provider, ProviderOpenAI)
	}
	if cfg.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("base URL = %q, want the OpenAI default", cfg.BaseURL)
	}
}

func TestConfigFromEnv_GroqDefaultBaseURL(t *testing.T) {
	clearLLMEnv(t)
	t.Setenv("MEMORY_LLM_PROVIDER", "groq")
	t.Setenv("MEMORY_LLM_API_KEY", "gsk_test")
	t.Setenv("MEMORY_LLM_MODEL", "llama-3.3-70b-versatile")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv failed: %v", err)
	}
	if cfg.BaseURL != "https://api.groq.com/openai/v1" {
		t.Errorf("base URL = %q, want the Groq default", cfg.BaseURL)
	}
}

func TestConfigFromEnv_OllamaNeedsNoAPIKey(t *testing.T) {
	clearLLMEnv(t)
	t.Setenv("MEMORY_LLM_PROVIDER", "ollama")
	t.Setenv("MEMORY_LLM_MODEL", "qwen2.5:7b")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv failed: %v", err)
	}
	if cfg.APIKey == "" {
		t.Error("ollama config should get a placeholder API key")
	}
	if cfg.BaseURL != "http://localhost:11434/v1" {
		t.Errorf("base URL = %q, want the Ollama default", cfg.BaseURL)
	}
}

func TestConfigFromEnv_ExplicitBaseURLTrimsTrailingSlash(t *testing.T) {
	clearLLMEnv(t)
	t.Setenv("MEMORY_LLM_PROVIDER", "openai")
	t.Setenv("MEMORY_LLM_API_KEY", "sk-test")
	t.Setenv("MEMORY_LLM_BASE_URL", "http://proxy.internal/v1/")
	t.Setenv("MEMORY_LLM_MODEL", "gpt-4o-mini")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv failed: %v", err)
	}
	if cfg.BaseURL != "http://proxy.internal/v1" {
		t.Errorf("base URL = %q, want trailing slash trimmed", cfg.BaseURL)
	}
}

func TestConfigFromEnv_Errors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"unknown provider", map[string]string{
			"MEMORY_LLM_PROVIDER": "bedrock",
			"MEMORY_LLM_API_KEY":  "k",
			"MEMORY_LLM_MODEL":    "m",
		}},
		{"missing model", map[string]string{
			"MEMORY_LLM_PROVIDER": "groq",
			"MEMORY_LLM_API_KEY":  "gsk_test",
		}},
		{"missing key for remote provider", map[string]string{
			"MEMORY_LLM_PROVIDER": "groq",
			"MEMORY_LLM_MODEL":    "m",
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearLLMEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := ConfigFromEnv(); err == nil {
				t.Error("expected an error, got nil")
			}
		})
	}
}
