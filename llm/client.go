// Copyright (C) 2025 Edge Room Labs (dev@theedgeroom.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides the language-model backends used by the query
// agents. The specific backend (OpenAI, Ollama) is selected at startup;
// everything else programs against LLMClient.
package llm

import (
	"context"

	"github.com/edgeroom/eventdesk/datatypes"
)

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	// Generate produces a completion for a bare prompt.
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// Chat produces a completion for a message sequence. The agents use
	// this with a system message followed by the user prompt.
	Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error)
}
