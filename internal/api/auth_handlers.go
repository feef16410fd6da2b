package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/omnivault/omnivault/internal/auth"
	"github.com/omnivault/omnivault/internal/middleware"
	"github.com/omnivault/omnivault/internal/validate"
)

// TokenRequest is the body for POST /auth/token. The gateway in front of
// this service has already authenticated the user; this endpoint only mints
// vault tokens for the verified identity it forwards.
type TokenRequest struct {
	Email  string `json:"email"`
	Wallet string `json:"wallet,omitempty"`
}

// RefreshRequest is the body for POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse carries the issued token pair.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"` // access token lifetime in seconds
}

// AuthHandlers holds dependencies for token issuing handlers.
type AuthHandlers struct {
	jwtService *auth.JWTService
}

// NewAuthHandlers creates a new AuthHandlers instance.
func NewAuthHandlers(jwtService *auth.JWTService) *AuthHandlers {
	return &AuthHandlers{jwtService: jwtService}
}

// IssueToken handles POST /auth/token - mints an access/refresh token pair.
func (h *AuthHandlers) IssueToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	email, err := validate.Email(req.Email)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "A valid email is required")
		return
	}

	accessToken, err := h.jwtService.GenerateAccessToken(email, req.Wallet)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to issue token")
		return
	}

	refreshToken, err := h.jwtService.GenerateRefreshToken(email)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to issue token")
		return
	}

	WriteJSON(w, r.Context(), http.StatusOK, TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(auth.AccessTokenExpiry.Seconds()),
	})
}

// RefreshToken handles POST /auth/refresh - exchanges a refresh token for a
// new access token. The new access token does not carry a wallet claim; the
// client re-links the wallet on its next /auth/token call.
func (h *AuthHandlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if req.RefreshToken == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "refresh_token is required")
		return
	}

	claims, err := h.jwtService.ValidateToken(req.RefreshToken)
	if err != nil {
		code := ErrCodeAuthFailed
		message := "Invalid refresh token"
		if errors.Is(err, auth.ErrExpiredToken) {
			message = "Refresh token has expired"
		}
		ctx := middleware.SetErrorCode(r.Context(), code)
		WriteError(w, ctx, http.StatusUnauthorized, code, message)
		return
	}

	if claims.Type != auth.TokenTypeRefresh {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Token is not a refresh token")
		return
	}

	accessToken, err := h.jwtService.GenerateAccessToken(claims.Email, "")
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to issue token")
		return
	}

	WriteJSON(w, r.Context(), http.StatusOK, TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(auth.AccessTokenExpiry.Seconds()),
	})
}
