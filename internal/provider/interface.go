// Package provider constructs the chat model used for answer synthesis and
// the conversational agent. The backend is selected at runtime; supported
// backends are OpenAI, Azure OpenAI, Ollama, AWS Bedrock, and Google Gemini.
package provider

import (
	"fmt"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendBedrock selects AWS Bedrock.
	BackendBedrock Backend = "bedrock"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
)

// Config holds all provider-level configuration resolved from environment
// variables or explicit caller-supplied values.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	// Model is the model name or deployment ID (e.g. "gpt-4o-mini", "llama3").
	Model string

	// BaseURL overrides the default API endpoint (required for Ollama and Azure).
	BaseURL string

	// APIKey is the authentication credential for the selected provider.
	// Unused for Bedrock; AWS credentials are resolved via the SDK chain.
	APIKey string

	// AzureDeployment is the Azure OpenAI deployment name (Azure only).
	AzureDeployment string

	// AzureAPIVersion is the Azure OpenAI REST API version (Azure only).
	AzureAPIVersion string

	// MaxTokens caps the number of tokens the model may generate per response.
	MaxTokens int

	// Temperature controls response randomness (0.0-1.0).
	Temperature float32
}

// Validate reports configuration errors that would otherwise only surface on
// the first request.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendOpenAI, BackendGemini:
		if c.APIKey == "" {
			return fmt.Errorf("provider: %s backend requires an API key", c.Backend)
		}
	case BackendAzure:
		if c.APIKey == "" {
			return fmt.Errorf("provider: azure backend requires an API key")
		}
		if c.BaseURL == "" {
			return fmt.Errorf("provider: azure backend requires an endpoint")
		}
		if c.AzureDeployment == "" {
			return fmt.Errorf("provider: azure backend requires a deployment name")
		}
	case BackendOllama, BackendBedrock:
		// No mandatory credentials here.
	default:
		return fmt.Errorf("provider: unknown backend %q (valid values: openai, azure, ollama, bedrock, gemini)", c.Backend)
	}
	if c.Model == "" {
		return fmt.Errorf("provider: model name is required")
	}
	return nil
}
