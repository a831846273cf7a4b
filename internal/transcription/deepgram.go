package transcription

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"call-insights-go/internal/types"
)

const DeepgramBaseURL = "https://api.deepgram.com/v1"

// Deepgram is the diarizing provider. Text comes from the paragraphs
// transcript; turns come from utterances.
type Deepgram struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewDeepgram(opts Options) *Deepgram {
	d := &Deepgram{
		baseURL: DeepgramBaseURL,
		apiKey:  opts.APIKey,
		model:   "nova-2",
		client:  opts.httpClient(),
	}
	if opts.BaseURL != "" {
		d.baseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.Model != "" {
		d.model = opts.Model
	}
	return d
}

func (d *Deepgram) Name() string { return "deepgram" }

type deepgramResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			DetectedLanguage string `json:"detected_language"`
			Alternatives     []struct {
				Transcript string `json:"transcript"`
				Paragraphs struct {
					Transcript string `json:"transcript"`
				} `json:"paragraphs"`
			} `json:"alternatives"`
		} `json:"channels"`
		Utterances []struct {
			Speaker    int     `json:"speaker"`
			Start      float64 `json:"start"`
			End        float64 `json:"end"`
			Transcript string  `json:"transcript"`
		} `json:"utterances"`
	} `json:"results"`
}

func (d *Deepgram) endpoint() string {
	q := url.Values{}
	q.Set("model", d.model)
	q.Set("language", "hi")
	q.Set("smart_format", "true")
	q.Set("punctuate", "true")
	q.Set("paragraphs", "true")
	q.Set("utterances", "true")
	q.Set("diarize", "true")
	return d.baseURL + "/listen?" + q.Encode()
}

func (d *Deepgram) Transcribe(ctx context.Context, audioPath string) (*types.Transcript, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("deepgram: open audio: %w", err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint(), f)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", contentType(audioPath))

	var out deepgramResponse
	if err := doJSON(d.client, "deepgram", req, &out); err != nil {
		return nil, err
	}
	if len(out.Results.Channels) == 0 || len(out.Results.Channels[0].Alternatives) == 0 {
		return nil, fmt.Errorf("deepgram: %w", ErrEmptyTranscript)
	}
	ch := out.Results.Channels[0]
	alt := ch.Alternatives[0]
	text := strings.TrimSpace(alt.Paragraphs.Transcript)
	if text == "" {
		text = strings.TrimSpace(alt.Transcript)
	}
	if text == "" {
		return nil, fmt.Errorf("deepgram: %w", ErrEmptyTranscript)
	}

	t := &types.Transcript{Text: text, Language: ch.DetectedLanguage, Duration: out.Metadata.Duration}
	for _, u := range out.Results.Utterances {
		t.Turns = append(t.Turns, types.Turn{
			Speaker: fmt.Sprintf("Speaker %d", u.Speaker),
			Start:   u.Start,
			End:     u.End,
			Text:    strings.TrimSpace(u.Transcript),
		})
	}
	return t, nil
}

func contentType(path string) string {
	switch {
	case strings.HasSuffix(strings.ToLower(path), ".wav"):
		return "audio/wav"
	case strings.HasSuffix(strings.ToLower(path), ".mp3"):
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}
