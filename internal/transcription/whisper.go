package transcription

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"call-insights-go/internal/types"
)

const (
	OpenAIBaseURL = "https://api.openai.com/v1"
	GroqBaseURL   = "https://api.groq.com/openai/v1"
)

// Whisper talks to an OpenAI-compatible /audio/transcriptions endpoint.
// OpenAI and Groq share the wire format.
type Whisper struct {
	name           string
	baseURL        string
	apiKey         string
	model          string
	responseFormat string
	client         *http.Client
}

// NewOpenAI builds the "openai" provider (whisper-1).
func NewOpenAI(opts Options) *Whisper {
	return newWhisper("openai", OpenAIBaseURL, "whisper-1", "json", opts)
}

// NewGroq builds the "groq" provider (whisper-large-v3-turbo, verbose_json).
func NewGroq(opts Options) *Whisper {
	return newWhisper("groq", GroqBaseURL, "whisper-large-v3-turbo", "verbose_json", opts)
}

func newWhisper(name, baseURL, model, format string, opts Options) *Whisper {
	if opts.BaseURL != "" {
		baseURL = opts.BaseURL
	}
	if opts.Model != "" {
		model = opts.Model
	}
	return &Whisper{
		name:           name,
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         opts.APIKey,
		model:          model,
		responseFormat: format,
		client:         opts.httpClient(),
	}
}

func (w *Whisper) Name() string { return w.name }

type whisperResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (w *Whisper) Transcribe(ctx context.Context, audioPath string) (*types.Transcript, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("%s: open audio: %w", w.name, err)
	}
	defer f.Close()

	var b bytes.Buffer
	mw := multipart.NewWriter(&b)
	part, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("%s: read audio: %w", w.name, err)
	}
	_ = mw.WriteField("model", w.model)
	_ = mw.WriteField("response_format", w.responseFormat)
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/audio/transcriptions", &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+w.apiKey)

	var out whisperResponse
	if err := doJSON(w.client, w.name, req, &out); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return nil, fmt.Errorf("%s: %w", w.name, ErrEmptyTranscript)
	}

	t := &types.Transcript{Text: text, Language: out.Language, Duration: out.Duration}
	for _, s := range out.Segments {
		t.Turns = append(t.Turns, types.Turn{Start: s.Start, End: s.End, Text: strings.TrimSpace(s.Text)})
	}
	return t, nil
}
