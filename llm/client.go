// Package llm provides the model-based extraction oracle: provider clients
// and a listing extractor that validates the model's JSON output.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
	ProviderNone   = "none"
)

// Default model names per provider.
const (
	DefaultGeminiModel = "gemini-1.5-flash"
	DefaultOllamaModel = "llama3.2"
)

// Client is an abstraction over LLM providers.
type Client interface {
	// GenerateJSON returns the model's answer to prompt, asking for JSON output.
	GenerateJSON(ctx context.Context, prompt string) (string, error)
	// Available reports whether the provider can serve requests right now.
	Available(ctx context.Context) bool
	// Model returns the configured model name.
	Model() string
	Close() error
}

// StatusError carries a non-2xx provider response so retries can classify it.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Body)
}

func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// NewClient builds the client for provider. It returns (nil, nil) for
// ProviderNone so callers can run without the model pass.
func NewClient(ctx context.Context, provider, model, apiKey, ollamaURL string) (Client, error) {
	switch strings.ToLower(provider) {
	case ProviderGemini:
		if model == "" {
			model = DefaultGeminiModel
		}
		c, err := NewGeminiClient(ctx, model, apiKey)
		if err != nil {
			return nil, err
		}
		return c, nil
	case ProviderOllama:
		if model == "" {
			model = DefaultOllamaModel
		}
		return NewOllamaClient(ollamaURL, model, nil), nil
	case ProviderNone, "":
		return nil, nil
	}
	return nil, fmt.Errorf("llm: unknown provider %q", provider)
}

// GeminiClient implements Client for Google Gemini.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(ctx context.Context, model, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llm: gemini API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("llm: create gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

func (c *GeminiClient) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(0.1)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("llm: gemini generate: %w", err)
	}
	return textFromResponse(resp)
}

// Available is true once the client is constructed; the SDK reports
// credential problems on the first call.
func (c *GeminiClient) Available(context.Context) bool { return c.client != nil }

func (c *GeminiClient) Model() string { return c.model }

func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func textFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("llm: no candidates in response")
	}
	cand := resp.Candidates[0]
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		return "", fmt.Errorf("llm: no content in response")
	}
	var parts []string
	for _, part := range cand.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("llm: no text parts in response")
	}
	return strings.Join(parts, ""), nil
}

// OllamaClient talks to a local Ollama server over its HTTP API.
type OllamaClient struct {
	baseURL string
	model   string
	http    *http.Client
}

// NewOllamaClient returns a client for the server at baseURL. A nil
// httpClient uses http.DefaultClient.
func NewOllamaClient(baseURL, model string, httpClient *http.Client) *OllamaClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OllamaClient{baseURL: strings.TrimRight(baseURL, "/"), model: model, http: httpClient}
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

func (c *OllamaClient) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Format:  "json",
		Options: map[string]any{"temperature": 0.1, "num_predict": 2000},
	})
	if err != nil {
		return "", fmt.Errorf("llm: encode ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm: build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm: ollama generate: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm: read ollama response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return "", &StatusError{Provider: ProviderOllama, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var out ollamaGenerateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("llm: decode ollama response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("llm: ollama: %s", out.Error)
	}
	return out.Response, nil
}

// Available checks that the server is up and has the configured model pulled.
func (c *OllamaClient) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var tags struct {
		Models []struct {
			Name  string `json:"name"`
			Model string `json:"model"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false
	}
	for _, m := range tags.Models {
		for _, name := range []string{m.Name, m.Model} {
			if name == c.model || strings.HasPrefix(name, c.model+":") {
				return true
			}
		}
	}
	return false
}

func (c *OllamaClient) Model() string { return c.model }

func (c *OllamaClient) Close() error { return nil }
