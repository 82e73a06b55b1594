// Package handler contains the JSON HTTP handlers for the hiretrack API.
//
// Route:
//   - POST /api/resumes -> UploadResume (multipart, field "file")
package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/hiretrack/internal/auth"
	"github.com/DukeRupert/hiretrack/internal/domain"
	"github.com/DukeRupert/hiretrack/internal/service"
)

// multipartOverhead is the allowance for multipart headers and boundaries
// on top of the file itself.
const multipartOverhead = 64 << 10

// ResumeHandler accepts resume uploads.
type ResumeHandler struct {
	resumes  service.ResumeService
	maxBytes int64
	logger   *slog.Logger
}

// NewResumeHandler creates a new ResumeHandler. maxBytes bounds the file.
func NewResumeHandler(resumes service.ResumeService, maxBytes int64, logger *slog.Logger) *ResumeHandler {
	if maxBytes <= 0 {
		maxBytes = service.DefaultMaxResumeBytes
	}
	return &ResumeHandler{
		resumes:  resumes,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// RegisterRoutes registers resume routes on the provided mux.
func (h *ResumeHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("POST /api/resumes", requireUser(http.HandlerFunc(h.UploadResume)))
}

// UploadResume streams the "file" part to the resume service.
func (h *ResumeHandler) UploadResume(w http.ResponseWriter, r *http.Request) {
	const op = "handler.upload_resume"

	p := auth.GetPrincipal(r.Context())
	if p == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	mr, err := r.MultipartReader()
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.NewValidationError(op, "file", "expected a multipart upload"))
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			ErrorResponse(w, r, h.logger, domain.NewValidationError(op, "file", "malformed multipart upload"))
			return
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}

		stored, err := h.resumes.Upload(r.Context(), p.ID, service.ResumeUpload{
			Filename:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Body:        part,
		})
		part.Close()
		if err != nil {
			ErrorResponse(w, r, h.logger, err)
			return
		}

		WriteJSON(w, http.StatusCreated, stored)
		return
	}

	ErrorResponse(w, r, h.logger, domain.NewValidationError(op, "file", "a file is required"))
}
