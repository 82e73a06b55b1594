// Package service contains the business logic layer.
//
// This file implements resume uploads, an entitlement-gated feature action.
package service

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/DukeRupert/hiretrack/internal/domain"
	"github.com/DukeRupert/hiretrack/internal/storage"
)

// DefaultMaxResumeBytes bounds a single resume upload.
const DefaultMaxResumeBytes = 5 << 20

// ResumeUpload is a file submitted by a user.
type ResumeUpload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// StoredResume describes an accepted upload.
type StoredResume struct {
	Key         string            `json:"key"`
	URL         string            `json:"url"`
	ContentType string            `json:"contentType"`
	Quota       domain.QuotaCheck `json:"quota"`
}

// ResumeService accepts resume uploads against the RESUME_UPLOAD quota.
type ResumeService interface {
	// Upload reserves one RESUME_UPLOAD unit and stores the file. A denied
	// reservation returns a QuotaExceeded error carrying the check. The
	// reservation is released when storage fails.
	Upload(ctx context.Context, userID string, upload ResumeUpload) (*StoredResume, error)
}

type resumeService struct {
	entitlements EntitlementService
	storage      storage.Storage
	maxBytes     int64
	logger       *slog.Logger
}

// NewResumeService creates a new ResumeService.
func NewResumeService(entitlements EntitlementService, store storage.Storage, maxBytes int64, logger *slog.Logger) ResumeService {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxResumeBytes
	}
	return &resumeService{
		entitlements: entitlements,
		storage:      store,
		maxBytes:     maxBytes,
		logger:       logger,
	}
}

func (s *resumeService) Upload(ctx context.Context, userID string, upload ResumeUpload) (*StoredResume, error) {
	const op = "resume.upload"

	// The type is validated before any quota is reserved.
	head := make([]byte, 512)
	n, err := io.ReadFull(upload.Body, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, domain.Invalid(op, "failed to read upload")
	}
	head = head[:n]
	if n == 0 {
		return nil, domain.NewValidationError(op, "file", "File is empty.")
	}
	contentType := storage.DetectContentType(upload.ContentType, upload.Filename, head)
	if !storage.IsAllowedResumeType(contentType) {
		return nil, domain.NewValidationError(op, "file", "Resume must be a PDF, Word, OpenDocument or plain text file.")
	}

	check, err := s.entitlements.Verify(ctx, userID, domain.ServiceResumeUpload, domain.ActionIncrement)
	if err != nil {
		return nil, err
	}
	if !check.Allowed && check.Reason == domain.DenialUnauthorized {
		return nil, domain.Unauthorized(op, "sign in to upload a resume")
	}
	if !check.Allowed {
		return nil, domain.QuotaExceeded(op, domain.ServiceResumeUpload, check)
	}

	key := storage.ResumeKey(userID, contentType)
	body := io.MultiReader(bytes.NewReader(head), upload.Body)
	if err := s.storage.Put(ctx, key, body, storage.PutOptions{ContentType: contentType, MaxSize: s.maxBytes}); err != nil {
		s.release(userID)
		if storage.IsTooLarge(err) {
			return nil, domain.NewValidationError(op, "file", "Resume exceeds the maximum file size.")
		}
		return nil, domain.Internal(err, op, "failed to store resume")
	}

	url, err := s.storage.URL(ctx, key, time.Hour)
	if err != nil {
		s.logger.Warn("Failed to build resume URL", "user_id", userID, "key", key, "error", err)
	}

	s.logger.Info("Resume uploaded", "user_id", userID, "key", key, "content_type", contentType)
	return &StoredResume{Key: key, URL: url, ContentType: contentType, Quota: check}, nil
}

// release returns a reserved unit, detached from the request context.
func (s *resumeService) release(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.entitlements.DecrementServiceUsage(ctx, userID, domain.ServiceResumeUpload, 1); err != nil {
		s.logger.Error("Failed to release resume upload reservation", "user_id", userID, "error", err)
	}
}
