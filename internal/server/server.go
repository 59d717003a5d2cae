package server

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dokuscan/dokuscan/internal/docfield"
	"github.com/dokuscan/dokuscan/internal/extract"
	"github.com/dokuscan/dokuscan/internal/ocr"
	"github.com/dokuscan/dokuscan/internal/pipeline"
)

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigin  string
	MaxUploadMB int64
	TimeoutSec  int

	// Per-document pipeline configurations.
	Passport pipeline.Config
	IDCard   pipeline.Config

	// Factory overrides the recognition engine constructor. Tests inject
	// scripted engines here; production leaves it nil.
	Factory ocr.EngineFactory
}

// docPipeline serializes access to one pipeline. Pipelines own a single
// mounted surface, so concurrent requests for the same document type queue.
type docPipeline struct {
	mu sync.Mutex
	pl *pipeline.Pipeline
}

func (d *docPipeline) extract(ctx context.Context, img image.Image) (extract.Payload, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.pl.Mount(img); err != nil {
		return nil, err
	}
	return d.pl.Run(ctx)
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	pipelines   map[docfield.DocType]*docPipeline
	corsOrigin  string
	maxUploadMB int64
	timeoutSec  int
}

// NewServer builds one pipeline per supported document type. The recognition
// pools stay lazy, so startup stays cheap until the first request.
func NewServer(config Config) (*Server, error) {
	pipelines := make(map[docfield.DocType]*docPipeline, 2)
	for doc, cfg := range map[docfield.DocType]pipeline.Config{
		docfield.DocPassport: config.Passport,
		docfield.DocIDCard:   config.IDCard,
	} {
		b := pipeline.NewBuilder(doc).WithConfig(cfg)
		if config.Factory != nil {
			b = b.WithEngineFactory(config.Factory)
		}
		pl, err := b.Build()
		if err != nil {
			return nil, fmt.Errorf("build %s pipeline: %w", doc, err)
		}
		pipelines[doc] = &docPipeline{pl: pl}
	}

	return &Server{
		pipelines:   pipelines,
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: config.MaxUploadMB,
		timeoutSec:  config.TimeoutSec,
	}, nil
}

// Close releases the recognition engines of every pipeline.
func (s *Server) Close() error {
	var firstErr error
	for _, dp := range s.pipelines {
		dp.mu.Lock()
		err := dp.pl.Terminate()
		dp.mu.Unlock()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/v1/extract", s.corsMiddleware(s.extractHandler))
	mux.HandleFunc("/v1/extract/ws", s.extractWebSocketHandler)
	mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) pipelineFor(doc string) (*docPipeline, error) {
	dp, ok := s.pipelines[docfield.DocType(doc)]
	if !ok {
		return nil, fmt.Errorf("unknown document type %q", doc)
	}
	return dp, nil
}
