package codegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// OpenAIGenerator speaks the OpenAI-compatible chat completions wire format,
// which also covers Groq and most self-hosted gateways.
type OpenAIGenerator struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIGenerator{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

// Configured reports whether the generator has credentials. The service
// starts without them so uploads and downloads still work, but Generate will
// fail until a key is set.
func (g *OpenAIGenerator) Configured() bool {
	return g.apiKey != ""
}

func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	if g.apiKey == "" {
		return Result{}, fmt.Errorf("ai api key is not configured")
	}
	payload := buildChatPayload(g.model, g.temperature, req)
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("request chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read chat response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Result{}, fmt.Errorf("chat completion failed status=%d body=%s", resp.StatusCode, string(rawBody))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return Result{}, fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Result{}, fmt.Errorf("empty chat completion choices")
	}

	code := StripFences(parsed.Choices[0].Message.Content)
	if code == "" {
		return Result{}, fmt.Errorf("model returned empty code")
	}
	return Result{
		Code:     code,
		Provider: "openai-compatible",
		Model:    g.model,
	}, nil
}

const systemPrompt = "You are a data assistant. You write a single JavaScript fragment " +
	"that edits or inspects a tabular dataset. Output ONLY raw JavaScript. No markdown, no prose."

func buildChatPayload(model string, temperature float64, req Request) map[string]any {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "The dataset is bound as 'df': an array of row objects with %d rows.\n", req.RowCount)
	fmt.Fprintf(&prompt, "Columns: %s\n", strings.Join(req.Columns, ", "))
	fmt.Fprintf(&prompt, "First rows:\n%s\n", req.SampleHead)
	if req.SampleTail != "" {
		fmt.Fprintf(&prompt, "Last rows:\n%s\n", req.SampleTail)
	}
	fmt.Fprintf(&prompt, "Column statistics:\n%s\n", req.Stats)
	fmt.Fprintf(&prompt, "\nUser request: %q\n", req.Query)
	prompt.WriteString(`
Rules:
1. To change the data, reassign 'df' (for example: df = df.filter(r => r.age !== null)) or edit its rows in place.
2. For a request that only asks to see or summarize data, assign the answer to 'result' as an array of row objects and leave 'df' untouched.
3. Missing values are null. Compare strings case-insensitively when the request is about text content.
4. Helper functions are bound as 'util': util.toNumber, util.parseDate, util.columns, util.round.
5. Output only the code. No markdown fences.`)

	return map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt.String()},
		},
		"temperature": temperature,
	}
}
