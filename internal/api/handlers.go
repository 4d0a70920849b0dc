package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BTreeMap/SalesCoach/internal/auth"
	"github.com/BTreeMap/SalesCoach/internal/flow"
	"github.com/BTreeMap/SalesCoach/internal/models"
)

// authCallbackHandler handles GET /auth/callback?token=...&state=...
func (s *Server) authCallbackHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("authCallbackHandler invoked", "method", r.Method)
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if s.session == nil {
		writeError(w, http.StatusNotFound, "login is not in progress")
		return
	}
	q := r.URL.Query()
	token := q.Get("token")
	if token == "" {
		slog.Warn("authCallbackHandler missing token")
		writeError(w, http.StatusBadRequest, "missing token")
		return
	}

	user := models.User{Name: q.Get("name"), Email: q.Get("email")}
	if id, err := strconv.ParseInt(q.Get("user_id"), 10, 64); err == nil {
		user.ID = id
	}

	s.mu.Lock()
	want := s.state
	s.mu.Unlock()
	if err := s.session.CompleteProviderLogin(want, q.Get("state"), token, user); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, auth.ErrStateMismatch) {
			status = http.StatusForbidden
		}
		slog.Warn("authCallbackHandler login rejected", "error", err)
		s.publish(Event{Kind: EventLoginFailed, Err: err, Message: err.Error()})
		writeError(w, status, err.Error())
		return
	}

	// one-shot
	s.ExpectState("")
	s.publish(Event{Kind: EventLoggedIn, Message: "Signed in. You can close this tab."})
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Signed in. You can close this tab.", nil))
}

// paymentReturnHandler handles GET /payments/return?session_id=...
func (s *Server) paymentReturnHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("paymentReturnHandler invoked", "method", r.Method)
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if s.payments == nil {
		writeError(w, http.StatusNotFound, "no checkout in progress")
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session_id")
		return
	}

	_, err := s.payments.Start(s.baseContext(), sessionID, func(outcome flow.PaymentOutcome, err error) {
		if err != nil {
			s.publish(Event{Kind: EventPaymentResult, Err: err, Message: "Error checking payment status"})
			return
		}
		s.publish(Event{Kind: EventPaymentResult, Payment: outcome, Message: outcome.Message()})
	})
	if err != nil {
		slog.Error("paymentReturnHandler failed to start checker", "session_id", sessionID, "error", err)
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSONResponse(w, http.StatusAccepted, models.SuccessWithMessage("Checking payment status...", map[string]string{"session_id": sessionID}))
}

// paymentCancelHandler handles GET /payments/cancel
func (s *Server) paymentCancelHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	s.publish(Event{Kind: EventPaymentCancelled, Message: "Payment cancelled"})
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Payment cancelled", nil))
}

type mediaErrorRequest struct {
	Name string `json:"name"`
}

// mediaErrorHandler handles POST /media/error with the browser's DOMException name.
func (s *Server) mediaErrorHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req mediaErrorRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		slog.Warn("mediaErrorHandler invalid JSON", "error", err)
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	class := flow.ClassifyMediaError(req.Name)
	s.publish(Event{Kind: EventMediaError, Media: class, Message: class.Message()})
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage(class.Message(), map[string]string{"class": string(class)}))
}

// healthHandler handles GET /healthz
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}))
}
