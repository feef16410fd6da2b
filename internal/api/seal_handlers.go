package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/omnivault/omnivault/internal/audit"
	"github.com/omnivault/omnivault/internal/middleware"
	"github.com/omnivault/omnivault/internal/pipeline"
	"github.com/omnivault/omnivault/internal/scan"
	"github.com/omnivault/omnivault/internal/seal"
	"github.com/omnivault/omnivault/internal/validate"
)

// ScanRequest is the body for POST /scan.
type ScanRequest struct {
	Text string `json:"text"`
}

// SealRequest is the body for POST /seal. Owner and wallet come from the
// access token, never the body.
type SealRequest struct {
	Text     string `json:"text"`
	FileName string `json:"file_name"`
	FileType string `json:"file_type,omitempty"`
	// Passphrase seals the document. Leave empty with generate_passphrase
	// set to have the server mint one.
	Passphrase         string `json:"passphrase,omitempty"`
	GeneratePassphrase bool   `json:"generate_passphrase,omitempty"`
	Price              string `json:"price"`
	// Mask overrides the server's mask-by-default setting when present.
	Mask *bool `json:"mask,omitempty"`
}

// SealResponse wraps the pipeline receipt. Passphrase is set only when the
// server generated it; it is never persisted and cannot be recovered later.
type SealResponse struct {
	Receipt    *pipeline.Receipt `json:"receipt"`
	Passphrase string            `json:"passphrase,omitempty"`
}

// ResumeRequest is the body for POST /seal/resume: the receipt from a failed
// seal plus the original submission fields the remaining stages need.
type ResumeRequest struct {
	Receipt  *pipeline.Receipt `json:"receipt"`
	FileName string            `json:"file_name"`
	FileType string            `json:"file_type,omitempty"`
	Price    string            `json:"price"`
}

// SealHandlers holds dependencies for the scan and seal endpoints.
type SealHandlers struct {
	pipeline      *pipeline.Pipeline
	detector      *scan.Detector
	auditRepo     audit.Repository
	maskByDefault bool
}

// NewSealHandlers creates a new SealHandlers instance.
func NewSealHandlers(p *pipeline.Pipeline, detector *scan.Detector, auditRepo audit.Repository, maskByDefault bool) *SealHandlers {
	return &SealHandlers{
		pipeline:      p,
		detector:      detector,
		auditRepo:     auditRepo,
		maskByDefault: maskByDefault,
	}
}

// Scan handles POST /scan - runs PII detection without sealing anything.
func (h *SealHandlers) Scan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	text, err := validate.DocumentText(req.Text)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Document text must be between 1 and 1048576 characters")
		return
	}

	WriteJSON(w, r.Context(), http.StatusOK, h.detector.Scan(text))
}

// Seal handles POST /seal - drives a submission through the full pipeline.
// On failure the error envelope carries the partial receipt for /seal/resume.
func (h *SealHandlers) Seal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req SealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	sub, generated, ok := h.buildSubmission(w, r, &req)
	if !ok {
		return
	}

	receipt, err := h.pipeline.Run(r.Context(), sub)
	if err != nil {
		h.writeSealError(w, r, err)
		return
	}

	h.auditListing(r, receipt)
	WriteJSON(w, r.Context(), http.StatusCreated, SealResponse{
		Receipt:    receipt,
		Passphrase: generated,
	})
}

// Resume handles POST /seal/resume - re-enters a failed submission at its
// first incomplete stage. Upload and notarization are never repeated for
// stages the receipt marks complete.
func (h *SealHandlers) Resume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req ResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if req.Receipt == nil || req.Receipt.Sealed == nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "A receipt with a sealed document is required; submissions that never sealed go back through /seal")
		return
	}

	fileName, err := validate.AssetName(req.FileName)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "file_name must be 1-100 characters of letters, numbers, spaces, dots, dashes or underscores")
		return
	}

	sub := pipeline.Submission{
		FileName: fileName,
		FileType: req.FileType,
		Price:    req.Price,
		Owner:    middleware.GetIdentity(r.Context()),
		Wallet:   middleware.GetWallet(r.Context()),
	}

	receipt, err := h.pipeline.Resume(r.Context(), req.Receipt, sub)
	if err != nil {
		h.writeSealError(w, r, err)
		return
	}

	h.auditListing(r, receipt)
	WriteJSON(w, r.Context(), http.StatusOK, SealResponse{Receipt: receipt})
}

// buildSubmission validates the seal request and assembles the pipeline
// submission. Returns the generated passphrase when the server minted one.
func (h *SealHandlers) buildSubmission(w http.ResponseWriter, r *http.Request, req *SealRequest) (pipeline.Submission, string, bool) {
	text, err := validate.DocumentText(req.Text)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Document text must be between 1 and 1048576 characters")
		return pipeline.Submission{}, "", false
	}

	fileName, err := validate.AssetName(req.FileName)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "file_name must be 1-100 characters of letters, numbers, spaces, dots, dashes or underscores")
		return pipeline.Submission{}, "", false
	}

	passphrase := req.Passphrase
	generated := ""
	if passphrase == "" && req.GeneratePassphrase {
		passphrase, err = seal.GeneratePassphrase()
		if err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeCryptoUnavailable)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeCryptoUnavailable, "Failed to generate a passphrase")
			return pipeline.Submission{}, "", false
		}
		generated = passphrase
	}
	if passphrase == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "passphrase is required (or set generate_passphrase)")
		return pipeline.Submission{}, "", false
	}

	maskEnabled := h.maskByDefault
	if req.Mask != nil {
		maskEnabled = *req.Mask
	}

	return pipeline.Submission{
		Text:        text,
		FileName:    fileName,
		FileType:    req.FileType,
		Passphrase:  passphrase,
		Price:       req.Price,
		Owner:       middleware.GetIdentity(r.Context()),
		Wallet:      middleware.GetWallet(r.Context()),
		MaskEnabled: maskEnabled,
	}, generated, true
}

// writeSealError maps pipeline failures onto the error envelope.
func (h *SealHandlers) writeSealError(w http.ResponseWriter, r *http.Request, err error) {
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		WritePipelineError(w, r.Context(), stageErr)
		return
	}
	ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
	WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Sealing failed")
}

// auditListing records the list_asset event. The listing is already durable
// on the ledger at this point, so an audit failure is logged rather than
// turned into a client-facing error.
func (h *SealHandlers) auditListing(r *http.Request, receipt *pipeline.Receipt) {
	if receipt == nil || receipt.Sealed == nil {
		return
	}
	if err := audit.LogAccessFromRequest(r, h.auditRepo, "asset", receipt.Sealed.ContentHash, "list_asset"); err != nil {
		slog.ErrorContext(r.Context(), "failed to audit listing", "error", err, "content_hash", receipt.Sealed.ContentHash)
	}
}
