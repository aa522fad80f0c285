package align

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/openjordi/openjordi-backend/internal/ingest/ontology"
	"github.com/openjordi/openjordi-backend/internal/ingest/source"
	"github.com/openjordi/openjordi-backend/internal/platform/httpx"
	"github.com/openjordi/openjordi-backend/internal/platform/logger"
)

// LLMConfig configures the OpenAI-compatible chat-completions endpoint used
// for column alignment. Any provider exposing that surface works.
type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxRetries  int
	Timeout     time.Duration
}

// LLMAligner maps unknown source columns onto the canonical schema with a
// chat model, caching resolved mappings by column-set hash.
type LLMAligner struct {
	cfg    LLMConfig
	client *http.Client
	cache  Cache
	log    *logger.Logger
}

func NewLLMAligner(cfg LLMConfig, cache Cache, baseLog *logger.Logger) (*LLMAligner, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm aligner: missing api key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &LLMAligner{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		cache:  cache,
		log:    baseLog.With("component", "LLMAligner"),
	}, nil
}

func (a *LLMAligner) Align(ctx context.Context, sourceID string, rec source.RawRecord, schema []ontology.Field) ([]AlignedField, error) {
	if len(rec) == 0 {
		return nil, nil
	}

	hash := ColumnsHash(rec)
	if mapping, ok := a.cache.Get(hash); ok {
		return Apply(rec, mapping), nil
	}

	mapping, err := a.mapColumns(ctx, sourceID, rec, schema)
	if err != nil {
		return nil, err
	}

	columns := make([]string, 0, len(rec))
	for k := range rec {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	if err := a.cache.Put(sourceID, hash, columns, mapping); err != nil {
		a.log.Warn("Failed to persist column mapping", "source_id", sourceID, "error", err)
	}
	return Apply(rec, mapping), nil
}

func (a *LLMAligner) mapColumns(ctx context.Context, sourceID string, rec source.RawRecord, schema []ontology.Field) (map[string]ColumnMapping, error) {
	prompt := buildPrompt(sourceID, rec, schema)

	var lastErr error
	for attempt := 0; attempt < a.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(httpx.Backoff(time.Second, attempt-1)):
			}
		}

		raw, err := a.complete(ctx, prompt)
		if err != nil {
			lastErr = err
			a.log.Warn("LLM mapping attempt failed",
				"source_id", sourceID, "attempt", attempt+1, "error", err)
			continue
		}

		mapping, err := parseMapping(raw)
		if err != nil {
			lastErr = err
			a.log.Warn("LLM mapping response unparseable",
				"source_id", sourceID, "attempt", attempt+1, "error", err)
			continue
		}

		valid := make(map[string]ColumnMapping, len(mapping))
		for col, m := range mapping {
			if m.Field != "null" && m.Field != "" && !ontology.Valid(m.Field) {
				a.log.Warn("Dropping invalid mapping target",
					"source_id", sourceID, "column", col, "target", m.Field)
				continue
			}
			valid[col] = m
		}
		a.log.Info("Resolved column mapping",
			"source_id", sourceID, "columns", len(rec), "mapped", len(valid))
		return valid, nil
	}
	return nil, fmt.Errorf("column mapping failed after %d attempts: %w", a.cfg.MaxRetries, lastErr)
}

const systemPrompt = "You are a data schema mapping assistant for academic grant data."

func buildPrompt(sourceID string, rec source.RawRecord, schema []ontology.Field) string {
	cols := make([]string, 0, len(rec))
	for k := range rec {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	var b strings.Builder
	fmt.Fprintf(&b, "Map columns from a research grant dataset published by %q onto the target schema.\n\n", sourceID)
	b.WriteString("SOURCE COLUMNS (with an example value where available):\n")
	for _, col := range cols {
		if v := strings.TrimSpace(rec[col]); v != "" {
			if len(v) > 80 {
				v = v[:80]
			}
			fmt.Fprintf(&b, "* %s: %s\n", col, v)
		} else {
			fmt.Fprintf(&b, "* %s\n", col)
		}
	}
	b.WriteString("\nTARGET SCHEMA:\n")
	for _, f := range schema {
		fmt.Fprintf(&b, "- %s: %s\n", f.Name, f.Description)
	}
	b.WriteString(`
For each source column pick the best-matching target field, or "null" when none fits.
Consider semantic meaning, not just name similarity.
Respond with JSON only, no surrounding text:
{"source_column": {"field": "target_field", "confidence": 0.0}}
`)
	return b.String()
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (a *LLMAligner) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: a.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: a.cfg.Temperature,
	})
	if err != nil {
		return "", err
	}

	url := strings.TrimRight(a.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat completions status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// parseMapping accepts both the rich form {"col": {"field": ..., "confidence": ...}}
// and the bare form {"col": "field"}, and tolerates markdown code fences.
func parseMapping(raw string) (map[string]ColumnMapping, error) {
	raw = stripCodeFences(raw)

	var rich map[string]ColumnMapping
	if err := json.Unmarshal([]byte(raw), &rich); err == nil {
		return rich, nil
	}

	var bare map[string]string
	if err := json.Unmarshal([]byte(raw), &bare); err != nil {
		return nil, fmt.Errorf("mapping is not valid JSON: %w", err)
	}
	out := make(map[string]ColumnMapping, len(bare))
	for col, field := range bare {
		out[col] = ColumnMapping{Field: field, Confidence: 1}
	}
	return out, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
