package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kilnrun/kiln/pkg/metrics"
	"github.com/kilnrun/kiln/pkg/stream"
	"github.com/kilnrun/kiln/pkg/types"
)

// maxUploadBytes bounds a single file upload request body.
const maxUploadBytes = 64 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUploadFile accepts one multipart file under the "file" field and
// stores it for later staging into runs.
func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		s.writeError(w, types.E(types.ErrValidation, "malformed multipart body"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, types.E(types.ErrValidation, "missing file field"))
		return
	}
	defer file.Close()

	meta, err := s.blobs.SaveUpload(header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		s.writeError(w, err)
		return
	}
	metrics.FilesUploadedTotal.Inc()

	writeJSON(w, http.StatusCreated, meta)
}

// handleDownloadFile serves a stored file. The only accepted credential is
// a valid signature over the request path; bearer tokens carry no weight
// here.
func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if err := s.signer.Verify(r.URL.Path, q.Get("payload"), q.Get("sig"), time.Now()); err != nil {
		s.writeError(w, err)
		return
	}

	rc, meta, err := s.blobs.Open(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", meta.Name))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

// handleCreateRun executes a run synchronously and returns the finished
// record.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req types.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, types.E(types.ErrValidation, "malformed request body"))
		return
	}

	rec, err := s.orch.CreateRun(r.Context(), &req, tenantFrom(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rec, err := s.orch.GetRun(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleStartStreamRun validates the request, mints the run id, and starts
// the pipeline in the background. The client then opens the websocket at
// /v1/runs/{id}/stream to follow it; frames published before the socket
// attaches are dropped, and the terminal frame carries the full record
// either way.
func (s *Server) handleStartStreamRun(w http.ResponseWriter, r *http.Request) {
	var req types.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, types.E(types.ErrValidation, "malformed request body"))
		return
	}
	if err := s.orch.Validate(&req); err != nil {
		s.writeError(w, err)
		return
	}

	tenant := tenantFrom(r.Context())
	runID := s.orch.NewRunID()

	go func() {
		// Detached from the HTTP request; the run outlives it.
		sink := stream.SinkFunc(func(f stream.Frame) error {
			s.hub.Publish(runID, f)
			return nil
		})
		rec, err := s.orch.CreateRunStreaming(context.Background(), &req, tenant, runID, sink)
		if err != nil {
			s.hub.Publish(runID, stream.Frame{Type: stream.FrameError, Error: err.Error()})
			return
		}
		s.hub.Publish(runID, stream.Frame{Type: stream.FrameComplete, Record: rec})
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":     runID,
		"status": "starting",
		"hint":   "/v1/runs/" + runID + "/stream",
	})
}

// writeError maps a kinded error to its HTTP status. The error field
// carries the kind; the human-readable message rides alongside. Unkinded
// errors are internal and surface as 500 without their message.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := types.KindOf(err)
	status := http.StatusInternalServerError
	msg := err.Error()

	switch kind {
	case types.ErrValidation:
		status = http.StatusBadRequest
	case types.ErrUnauthorized:
		status = http.StatusUnauthorized
	case types.ErrForbidden:
		status = http.StatusForbidden
	case types.ErrNotFound:
		status = http.StatusNotFound
	case types.ErrTooManyRequests:
		status = http.StatusTooManyRequests
	case types.ErrSandboxFailure:
		msg = "internal error"
	}

	writeJSON(w, status, map[string]string{
		"error":   string(kind),
		"message": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
