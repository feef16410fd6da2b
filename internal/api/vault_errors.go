// Package api provides HTTP API utilities including standardized error handling.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/omnivault/omnivault/internal/middleware"
	"github.com/omnivault/omnivault/internal/pipeline"
)

// Common error codes used throughout the API.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeAuthFailed indicates authentication failure.
	ErrCodeAuthFailed = "auth_failed"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeRateLimited indicates rate limit exceeded.
	ErrCodeRateLimited = "rate_limited"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"

	// ErrCodeForbidden indicates the request is forbidden.
	ErrCodeForbidden = "forbidden"

	// ErrCodeBadRequest indicates a malformed request.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeCryptoUnavailable indicates the sealing provider failed.
	ErrCodeCryptoUnavailable = "crypto_unavailable"

	// ErrCodeNetworkFailure indicates an unreachable collaborator
	// (object store, index or compute).
	ErrCodeNetworkFailure = "network_failure"

	// ErrCodeWalletUnavailable indicates no signing key is configured.
	ErrCodeWalletUnavailable = "wallet_unavailable"

	// ErrCodeWrongNetwork indicates the ledger answered on an unexpected chain.
	ErrCodeWrongNetwork = "wrong_network"

	// ErrCodeTransactionRejected indicates the ledger transaction reverted
	// or was declined.
	ErrCodeTransactionRejected = "transaction_rejected"

	// ErrCodePartialCommit indicates the asset is notarized on the ledger
	// but a later stage failed, so the index does not reflect it yet.
	ErrCodePartialCommit = "partial_commit"
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
// Receipt is present only on sealing errors; it carries the artifacts of
// completed stages so the client can resume the submission.
type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Receipt *pipeline.Receipt `json:"receipt,omitempty"`
}

// WriteError writes a standardized JSON error response.
// It writes the appropriate HTTP status code and returns a JSON error body.
//
// Format: {"error": {"code": "error_code", "message": "Error description"}}
//
// The error_code is picked up by the logging middleware for 4xx and 5xx
// responses when the handler calls SetErrorCode and passes the updated
// context to WriteError:
//
//	ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
//	api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "Listing not found")
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	writeErrorDetail(w, ctx, status, ErrorDetail{Code: code, Message: message})
}

func writeErrorDetail(w http.ResponseWriter, ctx context.Context, status int, detail ErrorDetail) {
	// Update the context in the response writer if supported (for logging middleware)
	middleware.UpdateResponseContext(w, ctx)

	data, err := json.Marshal(ErrorResponse{Error: detail})
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// WriteJSON writes a JSON response body with the given status code.
func WriteJSON(w http.ResponseWriter, ctx context.Context, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// StatusCodeMapping returns the recommended HTTP status code for common error codes.
// This is a convenience function to map error codes to HTTP status codes.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeAuthFailed:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeTransactionRejected:
		return http.StatusPaymentRequired
	case ErrCodeWrongNetwork, ErrCodeWalletUnavailable:
		return http.StatusConflict
	case ErrCodeNetworkFailure:
		return http.StatusBadGateway
	case ErrCodeCryptoUnavailable, ErrCodePartialCommit, ErrCodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// pipelineErrorCode maps a pipeline failure kind to an API error code.
func pipelineErrorCode(kind pipeline.Kind) string {
	switch kind {
	case pipeline.KindInputValidation:
		return ErrCodeValidation
	case pipeline.KindCryptoUnavailable:
		return ErrCodeCryptoUnavailable
	case pipeline.KindWalletUnavailable:
		return ErrCodeWalletUnavailable
	case pipeline.KindWrongNetwork:
		return ErrCodeWrongNetwork
	case pipeline.KindTransactionRejected:
		return ErrCodeTransactionRejected
	case pipeline.KindPartialCommit:
		return ErrCodePartialCommit
	case pipeline.KindNetworkFailure:
		return ErrCodeNetworkFailure
	default:
		return ErrCodeInternal
	}
}

// WritePipelineError maps a *pipeline.StageError onto the error envelope,
// attaching the partial receipt so the client can call /seal/resume.
func WritePipelineError(w http.ResponseWriter, ctx context.Context, stageErr *pipeline.StageError) {
	code := pipelineErrorCode(stageErr.Kind)
	ctx = middleware.SetErrorCode(ctx, code)
	writeErrorDetail(w, ctx, StatusCodeMapping(code), ErrorDetail{
		Code:    code,
		Message: stageErr.Error(),
		Receipt: stageErr.Receipt,
	})
}
