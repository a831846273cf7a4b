// internal/processor/processor.go
package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"call-insights-go/internal/audio"
	"call-insights-go/internal/logger"
	"call-insights-go/internal/metrics"
	"call-insights-go/internal/rubric"
	"call-insights-go/internal/store"
	"call-insights-go/internal/transcription"
	"call-insights-go/internal/types"
)

// Pipeline stages, in order.
const (
	StageSave       = "save"
	StageNormalize  = "normalize"
	StageTranscribe = "transcribe"
	StageAnalyze    = "analyze"
	StagePersist    = "persist"
)

type Providers interface {
	Get(name string) (transcription.Provider, error)
	Names() []string
}

type Rubrics interface {
	Get(bucket string) (*rubric.Rubric, error)
	Keys() []string
}

type Normalizer interface {
	Normalize(ctx context.Context, ws *audio.Workspace, path string) (string, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, transcript, bucket string) (*types.Analysis, error)
}

// DeclinedError is a non-fatal refusal: the request was understood but names
// something the service does not offer. Nothing is transcoded or stored.
type DeclinedError struct {
	Message string
}

func (e *DeclinedError) Error() string { return e.Message }

// StageError wraps a fatal failure with the stage it happened in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// Request is one uploaded call plus its form metadata.
type Request struct {
	Provider         string
	Bucket           string
	AgentName        string
	PatientName      string
	AgentPhoneNumber string
	Filename         string
	Audio            io.Reader
}

// Result is returned for a fully processed, persisted call.
type Result struct {
	ID         string            `json:"id"`
	Analysis   *types.Analysis   `json:"analysis"`
	Transcript *types.Transcript `json:"transcript"`
	Record     *types.CallRecord `json:"-"`
	DurationMs int64             `json:"duration_ms"`
}

type Deps struct {
	Providers  Providers
	Rubrics    Rubrics
	Normalizer Normalizer
	Analyzer   Analyzer
	Store      store.Store
	Metrics    *metrics.Metrics
	Log        *logger.Logger
	TempDir    string
}

type Processor struct {
	providers  Providers
	rubrics    Rubrics
	normalizer Normalizer
	analyzer   Analyzer
	store      store.Store
	metrics    *metrics.Metrics
	log        *logger.Logger
	tempDir    string
}

func New(d Deps) *Processor {
	return &Processor{
		providers:  d.Providers,
		rubrics:    d.Rubrics,
		normalizer: d.Normalizer,
		analyzer:   d.Analyzer,
		store:      d.Store,
		metrics:    d.Metrics,
		log:        d.Log.Component("processor"),
		tempDir:    d.TempDir,
	}
}

// Process runs upload -> normalize -> transcribe -> analyze -> persist.
// The record is written only when every earlier stage succeeded, and the
// request's temp files are removed on every path.
func (p *Processor) Process(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	providerName := strings.ToLower(strings.TrimSpace(req.Provider))

	provider, err := p.providers.Get(providerName)
	if err != nil {
		p.metrics.CallsProcessed.WithLabelValues("unknown", "unknown", "declined").Inc()
		return nil, &DeclinedError{Message: fmt.Sprintf("Invalid tts_model: %s. Use one of %v.", req.Provider, p.providers.Names())}
	}
	rub, err := p.rubrics.Get(req.Bucket)
	if err != nil {
		p.metrics.CallsProcessed.WithLabelValues(provider.Name(), "unknown", "declined").Inc()
		return nil, &DeclinedError{Message: fmt.Sprintf("Invalid bucket: %s. Use one of %v.", req.Bucket, p.rubrics.Keys())}
	}

	log := p.log.WithField("provider", provider.Name()).WithField("rubric", rub.Key)
	res, err := p.run(ctx, provider, rub, req)
	if err != nil {
		var se *StageError
		if errors.As(err, &se) {
			log = log.WithField("stage", se.Stage)
		}
		log.WithField("error", err.Error()).Error("call processing failed")
		p.metrics.CallsProcessed.WithLabelValues(provider.Name(), rub.Key, "failed").Inc()
		return nil, err
	}

	res.DurationMs = time.Since(start).Milliseconds()
	p.metrics.CallsProcessed.WithLabelValues(provider.Name(), rub.Key, "success").Inc()
	if total, ok := res.Analysis.TotalScore(); ok {
		p.metrics.CallScore.WithLabelValues(rub.Key).Observe(total)
	}
	log.WithField("id", res.ID).WithField("duration_ms", res.DurationMs).Info("call processed")
	return res, nil
}

func (p *Processor) run(ctx context.Context, provider transcription.Provider, rub *rubric.Rubric, req Request) (*Result, error) {
	ws, err := audio.NewWorkspace(p.tempDir)
	if err != nil {
		return nil, &StageError{Stage: StageSave, Err: err}
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			p.log.WithError(err).Warn("temp file cleanup failed")
		}
	}()

	var path string
	if err := p.stage(StageSave, func() (err error) {
		path, err = ws.Save(req.Audio, req.Filename)
		return err
	}); err != nil {
		return nil, err
	}

	if err := p.stage(StageNormalize, func() (err error) {
		path, err = p.normalizer.Normalize(ctx, ws, path)
		return err
	}); err != nil {
		return nil, err
	}

	var tr *types.Transcript
	if err := p.stage(StageTranscribe, func() (err error) {
		tr, err = provider.Transcribe(ctx, path)
		return err
	}); err != nil {
		return nil, err
	}

	var analysis *types.Analysis
	if err := p.stage(StageAnalyze, func() (err error) {
		analysis, err = p.analyzer.Analyze(ctx, tr.Text, rub.Key)
		return err
	}); err != nil {
		return nil, err
	}

	rec := &types.CallRecord{
		AgentName:        strings.ToLower(req.AgentName),
		PatientName:      strings.ToLower(req.PatientName),
		AgentPhoneNumber: strings.ToLower(req.AgentPhoneNumber),
		Bucket:           strings.ToLower(strings.TrimSpace(req.Bucket)),
		Provider:         provider.Name(),
		Transcript:       tr.Text,
		Turns:            tr.Turns,
		Analysis:         *analysis,
	}
	if err := p.stage(StagePersist, func() error {
		agent, err := p.store.UpsertAgent(ctx, rec.AgentName)
		if err != nil {
			return err
		}
		rec.AgentID = agent.ID
		_, err = p.store.InsertCall(ctx, rec)
		return err
	}); err != nil {
		return nil, err
	}

	return &Result{ID: rec.ID, Analysis: analysis, Transcript: tr, Record: rec}, nil
}

func (p *Processor) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	p.metrics.ObserveStage(name, start, err)
	if err != nil {
		return &StageError{Stage: name, Err: err}
	}
	p.log.WithField("stage", name).WithField("elapsed_ms", time.Since(start).Milliseconds()).Debug("stage done")
	return nil
}
