// Package server is the HTTP surface: upload-and-analyze plus read-only
// views over stored calls.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"call-insights-go/internal/actionable"
	"call-insights-go/internal/aggregator"
	"call-insights-go/internal/dataset"
	"call-insights-go/internal/logger"
	"call-insights-go/internal/metrics"
	"call-insights-go/internal/processor"
	"call-insights-go/internal/store"
)

// Pipeline processes one uploaded call.
type Pipeline interface {
	Process(ctx context.Context, req processor.Request) (*processor.Result, error)
}

type Deps struct {
	Pipeline       Pipeline
	Store          store.Store
	Rubrics        aggregator.Rubrics
	Metrics        *metrics.Metrics
	Log            *logger.Logger
	MaxUploadBytes int64
}

type Server struct {
	engine    *gin.Engine
	pipeline  Pipeline
	store     store.Store
	rubrics   aggregator.Rubrics
	metrics   *metrics.Metrics
	log       *logger.Logger
	maxUpload int64
}

func New(d Deps) *Server {
	s := &Server{
		engine:    gin.New(),
		pipeline:  d.Pipeline,
		store:     d.Store,
		rubrics:   d.Rubrics,
		metrics:   d.Metrics,
		log:       d.Log.Component("server"),
		maxUpload: d.MaxUploadBytes,
	}
	if s.maxUpload <= 0 {
		s.maxUpload = 50 << 20
	}
	s.engine.MaxMultipartMemory = s.maxUpload
	s.engine.Use(requestLogger(s.log, s.metrics), recovery(s.log), cors())
	s.routes()
	return s
}

// Handler exposes the engine for http.Server and tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	s.engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Welcome to the call insights API"})
	})
	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "call insights API is up and running"})
	})
	s.engine.GET("/healthz", s.healthz)

	s.engine.POST("/transcribe", s.transcribe)
	s.engine.POST("/transcribe/:tts_model", s.transcribe)

	s.engine.GET("/docs", s.getCall)
	s.engine.GET("/calls", s.listCalls)
	s.engine.GET("/calls/export", s.exportCalls)
	s.engine.GET("/agents", s.listAgents)
	s.engine.GET("/agents/stats", s.agentStats)

	s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
}

func (s *Server) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		respondFailure(c, http.StatusServiceUnavailable, "store unavailable: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type uploadForm struct {
	AgentName        string `form:"agent_name" binding:"required"`
	PatientName      string `form:"patient_name" binding:"required"`
	AgentPhoneNumber string `form:"agent_phone_number" binding:"required"`
	Bucket           string `form:"bucket"`
}

func (s *Server) transcribe(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)

	provider := c.Param("tts_model")
	if provider == "" {
		provider = c.Query("tts_model")
	}

	var form uploadForm
	if err := c.ShouldBind(&form); err != nil {
		s.rejectUpload(c, err)
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		s.rejectUpload(c, err)
		return
	}
	file, err := fh.Open()
	if err != nil {
		respondFailure(c, http.StatusBadRequest, "cannot read uploaded file: "+err.Error())
		return
	}
	defer file.Close()

	res, err := s.pipeline.Process(c.Request.Context(), processor.Request{
		Provider:         provider,
		Bucket:           form.Bucket,
		AgentName:        form.AgentName,
		PatientName:      form.PatientName,
		AgentPhoneNumber: form.AgentPhoneNumber,
		Filename:         fh.Filename,
		Audio:            file,
	})
	if err != nil {
		var declined *processor.DeclinedError
		var stageErr *processor.StageError
		switch {
		case errors.As(err, &declined):
			respondFailure(c, http.StatusBadRequest, declined.Message)
		case errors.As(err, &stageErr) && (stageErr.Stage == processor.StageTranscribe || stageErr.Stage == processor.StageAnalyze):
			respondFailure(c, http.StatusBadGateway, err.Error())
		default:
			respondFailure(c, http.StatusInternalServerError, err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, envelope{Success: true, Response: res.ID, Analysis: res.Analysis})
}

// rejectUpload maps binding and multipart errors to a 400 (413 for oversize).
func (s *Server) rejectUpload(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondFailure(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
		return
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		names := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			names = append(names, formName(fe.Field()))
		}
		respondFailure(c, http.StatusBadRequest, "Missing required field(s): "+strings.Join(names, ", "))
		return
	}
	if errors.Is(err, http.ErrMissingFile) {
		respondFailure(c, http.StatusBadRequest, "Missing required field(s): file")
		return
	}
	respondFailure(c, http.StatusBadRequest, "invalid upload: "+err.Error())
}

var formNames = map[string]string{
	"AgentName":        "agent_name",
	"PatientName":      "patient_name",
	"AgentPhoneNumber": "agent_phone_number",
}

func formName(field string) string {
	if n, ok := formNames[field]; ok {
		return n
	}
	return field
}

func (s *Server) getCall(c *gin.Context) {
	id := c.Query("doc_id")
	if id == "" {
		respondFailure(c, http.StatusBadRequest, "doc_id is required")
		return
	}
	rec, err := s.store.GetCall(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondFailure(c, http.StatusNotFound, "No Data Found")
		return
	}
	if err != nil {
		s.readFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Response: rec})
}

func (s *Server) listCalls(c *gin.Context) {
	calls, err := s.store.ListCalls(c.Request.Context())
	if err != nil {
		s.readFailed(c, err)
		return
	}
	respondData(c, http.StatusOK, calls)
}

func (s *Server) exportCalls(c *gin.Context) {
	calls, err := s.store.ListCalls(c.Request.Context())
	if err != nil {
		s.readFailed(c, err)
		return
	}
	var buf bytes.Buffer
	if err := dataset.Write(&buf, calls, aggregator.Aggregate(calls, s.rubrics)); err != nil {
		s.readFailed(c, err)
		return
	}
	name := fmt.Sprintf("calls_%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (s *Server) listAgents(c *gin.Context) {
	agents, err := s.store.ListAgents(c.Request.Context())
	if err != nil {
		s.readFailed(c, err)
		return
	}
	respondData(c, http.StatusOK, agents)
}

func (s *Server) agentStats(c *gin.Context) {
	calls, err := s.store.ListCalls(c.Request.Context())
	if err != nil {
		s.readFailed(c, err)
		return
	}
	ins := aggregator.Aggregate(calls, s.rubrics)
	respondData(c, http.StatusOK, gin.H{
		"insight": ins,
		"cards":   actionable.GenerateAll(ins),
	})
}

func (s *Server) readFailed(c *gin.Context, err error) {
	reqID, _ := c.Get(requestIDKey)
	s.log.WithError(err).WithField("req_id", reqID).WithField("path", c.FullPath()).Error("read failed")
	respondFailure(c, http.StatusInternalServerError, "Error occurred: "+err.Error())
}
