package api

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/omnivault/omnivault/internal/audit"
	"github.com/omnivault/omnivault/internal/compute"
	"github.com/omnivault/omnivault/internal/middleware"
	"github.com/omnivault/omnivault/internal/seal"
)

// WeightVectorSize is the dimension of the demo weight vector served by
// GET /weights.
const WeightVectorSize = 1000

// Trainer is the slice of the clean-room invoker the training endpoint needs.
type Trainer interface {
	Run(ctx context.Context, storageKey, script string) (*compute.Result, error)
}

// TrainingRequest is the body for POST /training. The script runs inside
// the clean room against the sealed blob; raw text never leaves the vault.
type TrainingRequest struct {
	StorageKey string `json:"storage_key"`
	Script     string `json:"script"`
}

// WeightsResponse is the demo weight artifact for a completed training run.
type WeightsResponse struct {
	ID             string    `json:"id"`
	OriginDocument string    `json:"origin_document"`
	Format         string    `json:"format"`
	Weights        []float32 `json:"weights"`
	AuditHash      string    `json:"audit_hash"`
}

// TrainingHandlers holds dependencies for clean-room training handlers.
type TrainingHandlers struct {
	trainer   Trainer
	auditRepo audit.Repository
}

// NewTrainingHandlers creates a new TrainingHandlers instance.
func NewTrainingHandlers(trainer Trainer, auditRepo audit.Repository) *TrainingHandlers {
	return &TrainingHandlers{trainer: trainer, auditRepo: auditRepo}
}

// Train handles POST /training - proxies a training run into the clean room
// and returns its report. Every run lands in the audit trail before the
// response goes out; if the trail is down, the run is reported as failed.
func (h *TrainingHandlers) Train(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req TrainingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	result, err := h.trainer.Run(r.Context(), req.StorageKey, req.Script)
	if err != nil {
		var jobErr *compute.JobError
		switch {
		case errors.Is(err, compute.ErrEmptyStorageKey), errors.Is(err, compute.ErrEmptyScript):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "storage_key and script are required")
		case errors.As(err, &jobErr):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Clean-room job failed")
		default:
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNetworkFailure)
			WriteError(w, ctx, http.StatusBadGateway, ErrCodeNetworkFailure, "Clean room is unreachable")
		}
		return
	}

	// Fail closed: a training run that cannot be audited is not reported
	// as successful.
	if err := audit.LogAccessFromRequest(r, h.auditRepo, "training", req.StorageKey, "run_training"); err != nil {
		slog.ErrorContext(r.Context(), "failed to audit training run", "error", err, "storage_key", req.StorageKey)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Training completed but could not be audited")
		return
	}

	WriteJSON(w, r.Context(), http.StatusOK, result)
}

// Weights handles GET /weights?id= - serves the demo weight vector for a
// training artifact. The vector is derived deterministically from the
// artifact ID, and the audit hash ties the download to the trail head.
func (h *TrainingHandlers) Weights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	id := r.URL.Query().Get("id")
	if !contentHashPattern.MatchString(id) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "id must be a 64-character hex fingerprint")
		return
	}

	auditHash, err := h.auditRepo.GetLastHash()
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to read audit trail head")
		return
	}

	WriteJSON(w, r.Context(), http.StatusOK, WeightsResponse{
		ID:             id,
		OriginDocument: id,
		Format:         "float32",
		Weights:        demoWeights(id),
		AuditHash:      auditHash,
	})
}

// demoWeights derives a stable weight vector from the artifact ID so
// repeated downloads of the same artifact are byte-identical.
func demoWeights(id string) []float32 {
	weights := make([]float32, WeightVectorSize)
	seed := []byte(seal.Fingerprint([]byte(id)))
	state := binary.BigEndian.Uint64(seed[:8])
	for i := range weights {
		// xorshift64 keeps the sequence deterministic without pulling in
		// a seeded PRNG dependency.
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		weights[i] = float32(state%2000000)/1000000 - 1 // [-1, 1)
	}
	return weights
}
