package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/omnivault/omnivault/internal/audit"
	"github.com/omnivault/omnivault/internal/middleware"
	"github.com/omnivault/omnivault/internal/storage"
	"github.com/omnivault/omnivault/internal/validate"
)

// Signer is the slice of the storage service the credential handlers need.
type Signer interface {
	SignUpload(ctx context.Context, fileName, contentType string) (*storage.UploadCredential, error)
	SignDownload(ctx context.Context, key string) (*storage.DownloadCredential, error)
}

// SignUploadRequest is the body for POST /uploads/sign.
type SignUploadRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
}

// StorageHandlers holds dependencies for presigned credential handlers.
type StorageHandlers struct {
	signer    Signer
	auditRepo audit.Repository
	// maxUploadSizeMB caps declared upload sizes. Zero disables the check.
	maxUploadSizeMB int
}

// NewStorageHandlers creates a new StorageHandlers instance.
func NewStorageHandlers(signer Signer, auditRepo audit.Repository, maxUploadSizeMB int) *StorageHandlers {
	return &StorageHandlers{
		signer:          signer,
		auditRepo:       auditRepo,
		maxUploadSizeMB: maxUploadSizeMB,
	}
}

// SignUpload handles POST /uploads/sign - issues a short-lived PUT
// credential for one object key.
func (h *StorageHandlers) SignUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req SignUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	fileName, err := validate.AssetName(req.FileName)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "file_name must be 1-100 characters of letters, numbers, spaces, dots, dashes or underscores")
		return
	}

	// Sealed blobs go up as application/octet-stream; raw documents use the
	// document allowlist.
	if req.ContentType != storage.MIMEOctetStream {
		if _, err := validate.MIMEType(req.ContentType, validate.AllowedDocumentTypes); err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "content_type is not an accepted document type")
			return
		}
	}

	if req.SizeBytes > 0 && h.maxUploadSizeMB > 0 {
		constraints := validate.DocumentUploadConstraints(h.maxUploadSizeMB)
		if err := validate.FileSize(req.SizeBytes, constraints); err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Declared size exceeds the upload limit")
			return
		}
	}

	cred, err := h.signer.SignUpload(r.Context(), fileName, req.ContentType)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedType) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "content_type is not an accepted document type")
			return
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNetworkFailure)
		WriteError(w, ctx, http.StatusBadGateway, ErrCodeNetworkFailure, "Failed to sign upload credential")
		return
	}

	WriteJSON(w, r.Context(), http.StatusOK, cred)
}

// SignDownload handles GET /downloads/sign?key= - issues a one-hour GET
// credential for an object the identity may read.
func (h *StorageHandlers) SignDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "key query parameter is required")
		return
	}

	cred, err := h.signer.SignDownload(r.Context(), key)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNetworkFailure)
		WriteError(w, ctx, http.StatusBadGateway, ErrCodeNetworkFailure, "Failed to sign download credential")
		return
	}

	if err := audit.LogAccessFromRequest(r, h.auditRepo, "asset", key, "download_asset"); err != nil {
		slog.ErrorContext(r.Context(), "failed to audit download", "error", err, "key", key)
	}

	WriteJSON(w, r.Context(), http.StatusOK, cred)
}
