package http

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/Shinra-Deskware/madzilla-backend/internal/events"
	"github.com/Shinra-Deskware/madzilla-backend/internal/otp"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuthHandler issues and verifies OTP codes. A login verification opens a
// session; a cancel_order verification only proves control of the identity.
type AuthHandler struct {
	store      otp.Store
	notifier   events.Notifier
	jwtSecret  string
	codeTTL    time.Duration
	sessionTTL time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

func NewAuthHandler(store otp.Store, notifier events.Notifier, jwtSecret string, codeTTL, sessionTTL time.Duration, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		store:      store,
		notifier:   notifier,
		jwtSecret:  jwtSecret,
		codeTTL:    codeTTL,
		sessionTTL: sessionTTL,
		logger:     logger,
		now:        time.Now,
	}
}

type sendOTPRequest struct {
	Identifier string `json:"identifier"` // email or phone
}

type sendOTPResponse struct {
	RequestID string `json:"request_id"`
}

// POST /api/otp/send
func (h *AuthHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Identifier == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "identifier is required")
		return
	}

	requestID := uuid.New().String()
	code, err := generateCode()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "could not generate code")
		return
	}

	if err := h.store.Create(r.Context(), requestID, req.Identifier, code, h.codeTTL); err != nil {
		h.logger.Error("failed to store otp ticket", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "could not issue code")
		return
	}

	// The notification pipeline delivers the code to the customer; the code
	// never appears in the HTTP response.
	err = h.notifier.Notify(r.Context(), events.EventOTPIssued, events.Notification{
		Identifier: req.Identifier,
		Detail:     code,
		OccurredAt: h.now(),
	})
	if err != nil {
		h.logger.Error("failed to dispatch otp code", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "could not deliver code")
		return
	}

	respondJSON(w, http.StatusOK, sendOTPResponse{RequestID: requestID})
}

type verifyOTPRequest struct {
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Purpose   string `json:"purpose"` // "login" (default) or "cancel_order"
}

type verifyOTPResponse struct {
	Verified     bool   `json:"verified"`
	Identifier   string `json:"identifier,omitempty"`
	Reason       string `json:"reason,omitempty"`
	AttemptsLeft int    `json:"attempts_left,omitempty"`
}

// POST /api/otp/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RequestID == "" || req.Code == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "request_id and code are required")
		return
	}

	result, err := h.store.Verify(r.Context(), req.RequestID, req.Code)
	if err != nil {
		h.logger.Error("otp verify failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "verification failed")
		return
	}

	if !result.OK {
		respondJSON(w, http.StatusUnauthorized, verifyOTPResponse{
			Verified:     false,
			Reason:       string(result.Reason),
			AttemptsLeft: result.AttemptsLeft,
		})
		return
	}

	if req.Purpose != "cancel_order" {
		token, err := issueSessionToken(result.Identifier, h.jwtSecret, h.sessionTTL, h.now())
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal_error", "could not open session")
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    token,
			Path:     "/",
			Expires:  h.now().Add(h.sessionTTL),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	respondJSON(w, http.StatusOK, verifyOTPResponse{
		Verified:   true,
		Identifier: result.Identifier,
	})
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
