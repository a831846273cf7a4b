package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"call-insights-go/internal/audio"
	"call-insights-go/internal/extractor"
	"call-insights-go/internal/logger"
	"call-insights-go/internal/metrics"
	"call-insights-go/internal/rubric"
	"call-insights-go/internal/store"
	"call-insights-go/internal/transcription"
	"call-insights-go/internal/types"
)

type stubProvider struct {
	name  string
	text  string
	err   error
	paths []string
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Transcribe(_ context.Context, path string) (*types.Transcript, error) {
	s.paths = append(s.paths, path)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("audio missing: %w", err)
	}
	if s.err != nil {
		return nil, s.err
	}
	return &types.Transcript{Text: s.text}, nil
}

type stubAnalyzer struct {
	buckets []string
	err     error
}

func (s *stubAnalyzer) Analyze(_ context.Context, transcript, bucket string) (*types.Analysis, error) {
	s.buckets = append(s.buckets, bucket)
	if s.err != nil {
		return nil, s.err
	}
	if bucket == "generic" {
		return &types.Analysis{Rubric: "generic", Version: "1.0.0", Kind: types.KindGeneric, Generic: &types.GenericReport{
			CallSummary: "summary of " + transcript, Positives: []string{}, Improvements: []string{},
		}}, nil
	}
	return &types.Analysis{Rubric: bucket, Version: "1.2.0", Kind: types.KindBucket, Bucket: &types.BucketReport{
		CallSummary: "summary of " + transcript, TotalScore: 8.7,
	}}, nil
}

type fixture struct {
	proc      *Processor
	store     store.Store
	tempDir   string
	openai    *stubProvider
	deepgram  *stubProvider
	analyzer  *stubAnalyzer
	ffmpegRun int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		tempDir:  t.TempDir(),
		openai:   &stubProvider{name: "openai", text: "Hello, I am calling about your appointment."},
		deepgram: &stubProvider{name: "deepgram", text: "Speaker 0: namaste"},
		analyzer: &stubAnalyzer{},
	}

	st, err := store.OpenSQLite(ctx, filepath.Join(t.TempDir(), "calls.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close(ctx) })
	f.store = st

	catalog, err := rubric.Default()
	if err != nil {
		t.Fatal(err)
	}
	norm, err := audio.NewNormalizer("ffmpeg", "")
	if err != nil {
		t.Fatal(err)
	}
	norm.WithRunner(func(_ context.Context, _ string, args ...string) ([]byte, error) {
		f.ffmpegRun++
		return nil, os.WriteFile(args[len(args)-1], []byte("converted"), 0o600)
	})

	f.proc = New(Deps{
		Providers:  transcription.NewRegistry(f.openai, f.deepgram, &stubProvider{name: "groq"}),
		Rubrics:    catalog,
		Normalizer: norm,
		Analyzer:   f.analyzer,
		Store:      st,
		Metrics:    metrics.New(),
		Log:        logger.Discard(),
		TempDir:    f.tempDir,
	})
	return f
}

func (f *fixture) assertNoTempFiles(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.tempDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func (f *fixture) assertNoRecords(t *testing.T) {
	t.Helper()
	list, err := f.store.ListCalls(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("expected no records, got %d", len(list))
	}
}

func request(provider, bucket, filename string) Request {
	return Request{
		Provider:         provider,
		Bucket:           bucket,
		AgentName:        "Amit Kumar",
		PatientName:      "Ramesh",
		AgentPhoneNumber: "+91-98765",
		Filename:         filename,
		Audio:            strings.NewReader("RIFF....WAVE"),
	}
}

func TestProcessWavOpenAI(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.proc.Process(ctx, request("OpenAI", "", "call.wav"))
	if err != nil {
		t.Fatal(err)
	}
	if res.ID == "" || res.Analysis.Kind != types.KindGeneric {
		t.Fatalf("result = %+v", res)
	}
	if f.ffmpegRun != 0 {
		t.Error("wav should not be transcoded")
	}
	if f.analyzer.buckets[0] != "generic" {
		t.Errorf("analyzer bucket = %q, want generic", f.analyzer.buckets[0])
	}

	rec, err := f.store.GetCall(ctx, res.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Transcript != f.openai.text {
		t.Errorf("stored transcript = %q", rec.Transcript)
	}
	if rec.AgentName != "amit kumar" || rec.PatientName != "ramesh" || rec.Provider != "openai" {
		t.Errorf("metadata not normalized: %+v", rec)
	}
	if rec.AgentID == "" {
		t.Error("record should reference its agent")
	}
	agents, _ := f.store.ListAgents(ctx)
	if len(agents) != 1 || agents[0].Name != "amit kumar" || agents[0].ID != rec.AgentID {
		t.Errorf("agents = %+v", agents)
	}
	f.assertNoTempFiles(t)
}

func TestProcessGSMTranscodedToWav(t *testing.T) {
	f := newFixture(t)

	res, err := f.proc.Process(context.Background(), request("deepgram", "X", "call.gsm"))
	if err != nil {
		t.Fatal(err)
	}
	if f.ffmpegRun != 1 {
		t.Errorf("ffmpeg runs = %d, want 1", f.ffmpegRun)
	}
	if got := filepath.Ext(f.deepgram.paths[0]); got != ".wav" {
		t.Errorf("provider received %s, want .wav", got)
	}
	if res.Analysis.Rubric != "x_bucket" || f.analyzer.buckets[0] != "x_bucket" {
		t.Errorf("rubric = %s, analyzer bucket = %v", res.Analysis.Rubric, f.analyzer.buckets)
	}
	rec, _ := f.store.GetCall(context.Background(), res.ID)
	if rec.Bucket != "x" {
		t.Errorf("stored bucket = %q", rec.Bucket)
	}
	f.assertNoTempFiles(t)
}

func TestProcessDeclined(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		bucket   string
		want     string
	}{
		{"unknown provider", "whisperx", "", "Invalid tts_model: whisperx. Use one of [deepgram groq openai]."},
		{"empty provider", "", "", "Invalid tts_model: . Use one of [deepgram groq openai]."},
		{"unknown bucket", "groq", "z", "Invalid bucket: z. Use one of [generic x_bucket y_bucket]."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.proc.Process(context.Background(), request(tt.provider, tt.bucket, "call.ogg"))

			var declined *DeclinedError
			if !errors.As(err, &declined) {
				t.Fatalf("expected DeclinedError, got %v", err)
			}
			if declined.Message != tt.want {
				t.Errorf("message = %q, want %q", declined.Message, tt.want)
			}
			if f.ffmpegRun != 0 || len(f.analyzer.buckets) != 0 {
				t.Error("declined request should not transcode or analyze")
			}
			f.assertNoRecords(t)
			f.assertNoTempFiles(t)
		})
	}
}

func TestProcessStageFailures(t *testing.T) {
	t.Run("transcribe", func(t *testing.T) {
		f := newFixture(t)
		f.openai.err = &transcription.APIError{Provider: "openai", Status: 401, Body: "bad key"}

		_, err := f.proc.Process(context.Background(), request("openai", "", "call.mp3"))
		var se *StageError
		if !errors.As(err, &se) || se.Stage != StageTranscribe {
			t.Fatalf("expected transcribe StageError, got %v", err)
		}
		var apiErr *transcription.APIError
		if !errors.As(err, &apiErr) {
			t.Error("provider error should stay reachable through the stage error")
		}
		if len(f.analyzer.buckets) != 0 {
			t.Error("analysis must not run after a failed transcription")
		}
		f.assertNoRecords(t)
		f.assertNoTempFiles(t)
	})

	t.Run("analyze", func(t *testing.T) {
		f := newFixture(t)
		f.analyzer.err = fmt.Errorf("%w: missing key purpose", extractor.ErrSchemaViolation)

		_, err := f.proc.Process(context.Background(), request("openai", "y", "call.wav"))
		var se *StageError
		if !errors.As(err, &se) || se.Stage != StageAnalyze {
			t.Fatalf("expected analyze StageError, got %v", err)
		}
		if !errors.Is(err, extractor.ErrSchemaViolation) {
			t.Error("schema violation should be reachable with errors.Is")
		}
		f.assertNoRecords(t)
		f.assertNoTempFiles(t)
	})

	t.Run("normalize", func(t *testing.T) {
		f := newFixture(t)
		norm, _ := audio.NewNormalizer("ffmpeg", "")
		norm.WithRunner(func(context.Context, string, ...string) ([]byte, error) {
			return []byte("moov atom not found"), errors.New("exit status 1")
		})
		f.proc.normalizer = norm

		_, err := f.proc.Process(context.Background(), request("openai", "", "call.m4a"))
		if !errors.Is(err, audio.ErrTranscode) {
			t.Fatalf("expected ErrTranscode, got %v", err)
		}
		if len(f.openai.paths) != 0 {
			t.Error("provider should not be called after a failed transcode")
		}
		f.assertNoRecords(t)
		f.assertNoTempFiles(t)
	})
}
