package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"time"

	_ "golang.org/x/image/bmp"

	"github.com/dokuscan/dokuscan/internal/extract"
	"github.com/dokuscan/dokuscan/internal/version"
)

// HealthResponse is the /healthz payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

// ExtractResponse is the /v1/extract payload.
type ExtractResponse struct {
	Doc        string          `json:"doc"`
	Fields     extract.Payload `json:"fields"`
	Confirmed  int             `json:"confirmed"`
	Total      int             `json:"total"`
	ElapsedMs  int64           `json:"elapsed_ms"`
	SourceName string          `json:"source,omitempty"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	v, _, _ := version.Info()
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: v,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// extractHandler runs field extraction over an uploaded document photo.
// The multipart form carries the file under "image" and the document type
// under "doc" (passport or ktp).
func (s *Server) extractHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadMB*1024*1024)
	if err := r.ParseMultipartForm(s.maxUploadMB * 1024 * 1024); err != nil {
		s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		return
	}

	doc := r.FormValue("doc")
	if doc == "" {
		doc = r.URL.Query().Get("doc")
	}
	dp, err := s.pipelineFor(doc)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeErrorResponse(w, "No image file provided", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	if header.Size > s.maxUploadMB*1024*1024 {
		s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		return
	}
	uploadSizeBytes.Observe(float64(header.Size))

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorResponse(w, "Failed to read image data", http.StatusInternalServerError)
		return
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		s.writeErrorResponse(w, "Invalid image format", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if s.timeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.timeoutSec)*time.Second)
		defer cancel()
	}

	start := time.Now()
	payload, err := dp.extract(ctx, img)
	elapsed := time.Since(start)
	if err != nil {
		extractRequestsTotal.WithLabelValues(doc, "error").Inc()
		s.writeErrorResponse(w, fmt.Sprintf("Extraction failed: %v", err), http.StatusUnprocessableEntity)
		return
	}

	extractRequestsTotal.WithLabelValues(doc, "success").Inc()
	extractDuration.WithLabelValues(doc).Observe(elapsed.Seconds())
	fieldsConfirmed.WithLabelValues(doc).Observe(float64(len(payload.Confirmed())))

	s.writeJSON(w, http.StatusOK, ExtractResponse{
		Doc:        doc,
		Fields:     payload,
		Confirmed:  len(payload.Confirmed()),
		Total:      len(payload),
		ElapsedMs:  elapsed.Milliseconds(),
		SourceName: header.Filename,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding response: %v\n", err)
	}
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, status int) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}
