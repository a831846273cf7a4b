// Package extractor asks a hosted language model for a rubric-scored report
// of a call transcript and checks the answer against the report schema.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"call-insights-go/internal/logger"
	"call-insights-go/internal/rubric"
	"call-insights-go/internal/types"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
)

// ErrNoOutput is returned when the response carries no output_text item.
var ErrNoOutput = errors.New("analysis response has no output text")

// Options configure the Responses API client.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Client  *http.Client
}

// APIError carries a non-2xx response verbatim.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("analysis: status %d: %s", e.Status, e.Body)
}

type Analyzer struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	catalog *rubric.Catalog
	log     *logger.Logger
}

func NewAnalyzer(opts Options, catalog *rubric.Catalog, log *logger.Logger) *Analyzer {
	a := &Analyzer{
		baseURL: DefaultBaseURL,
		apiKey:  opts.APIKey,
		model:   DefaultModel,
		client:  opts.Client,
		catalog: catalog,
		log:     log.Component("extractor"),
	}
	if opts.BaseURL != "" {
		a.baseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.Model != "" {
		a.model = opts.Model
	}
	if a.client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		a.client = &http.Client{Timeout: timeout}
	}
	return a
}

type responsesRequest struct {
	Model        string        `json:"model"`
	Instructions string        `json:"instructions"`
	Input        string        `json:"input"`
	Text         responsesText `json:"text"`
}

type responsesText struct {
	Format responsesFormat `json:"format"`
}

type responsesFormat struct {
	Type   string                 `json:"type"`
	Name   string                 `json:"name"`
	Strict bool                   `json:"strict"`
	Schema map[string]interface{} `json:"schema"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

// outputText returns the first output_text of the first message item.
func (r responsesResponse) outputText() string {
	for _, item := range r.Output {
		if item.Type != "message" {
			continue
		}
		for _, c := range item.Content {
			if c.Type == "output_text" {
				return c.Text
			}
		}
	}
	return ""
}

// Analyze scores transcript with the rubric selected by bucket. An empty
// bucket selects the default rubric; an unknown one returns
// rubric.ErrUnknownBucket before any network call.
func (a *Analyzer) Analyze(ctx context.Context, transcript, bucket string) (*types.Analysis, error) {
	r, err := a.catalog.Get(bucket)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(responsesRequest{
		Model:        a.model,
		Instructions: r.Prompt,
		Input:        transcript,
		Text: responsesText{Format: responsesFormat{
			Type:   "json_schema",
			Name:   "call_analysis_" + r.Key,
			Strict: true,
			Schema: SchemaFor(r.Kind),
		}},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/responses", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analysis request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("analysis read body: %w", err)
	}
	a.log.WithField("http_status", resp.StatusCode).
		WithField("rubric", r.Key).
		WithField("latency_ms", time.Since(start).Milliseconds()).
		Debug("analysis response received")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out responsesResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("analysis json decode error: %v body=%s", err, string(body))
	}
	text := out.outputText()
	if text == "" {
		return nil, ErrNoOutput
	}

	generic, bucketReport, err := Decode(r.Kind, text)
	if err != nil {
		a.log.WithError(err).WithField("rubric", r.Key).Warn("model output rejected")
		return nil, err
	}
	return &types.Analysis{
		Rubric:  r.Key,
		Version: r.Version,
		Kind:    r.Kind,
		Generic: generic,
		Bucket:  bucketReport,
	}, nil
}
