package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"cyberdesk/backend/services/desk-service/internal/models"
	"cyberdesk/backend/services/desk-service/internal/service"
)

// Ledger starts and ends usage sessions.
type Ledger interface {
	StartSession(ctx context.Context, idNumber string) (*models.UsageSession, error)
	EndSession(ctx context.Context, idNumber string) (*models.UsageSession, error)
	EndSessionByID(ctx context.Context, sessionID int64) (*models.UsageSession, error)
	ActiveSessions(ctx context.Context) ([]models.ActiveSessionView, error)
	Duration(session *models.UsageSession, at time.Time) string
}

// Gateway sends payment prompts.
type Gateway interface {
	RequestSessionPayment(ctx context.Context, sessionID int64, phoneOverride, callbackURL string) (*service.STKResult, error)
	RequestPaymentPush(ctx context.Context, paymentID int64, phoneOverride, callbackURL string) (*service.STKResult, error)
}

// SessionsHandler serves session lifecycle endpoints.
type SessionsHandler struct {
	ledger      Ledger
	gateway     Gateway
	callbackURL string
	logger      *zap.Logger
}

// NewSessionsHandler builds handler set.
func NewSessionsHandler(ledger Ledger, gateway Gateway, configuredCallbackURL string, logger *zap.Logger) *SessionsHandler {
	return &SessionsHandler{
		ledger:      ledger,
		gateway:     gateway,
		callbackURL: configuredCallbackURL,
		logger:      logger,
	}
}

type endSessionResponse struct {
	Status    string `json:"status"`
	SessionID int64  `json:"session_id"`
	Amount    string `json:"amount"`
	Duration  string `json:"duration"`
}

type pushRequest struct {
	Phone string `json:"phone" validate:"max=20"`
}

type pushResponse struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	CheckoutRequestID string `json:"checkout_request_id,omitempty"`
}

// Start handles POST /students/{idnumber}/sessions/start.
func (h *SessionsHandler) Start(w http.ResponseWriter, r *http.Request) {
	session, err := h.ledger.StartSession(r.Context(), chi.URLParam(r, "idnumber"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// End handles POST /students/{idnumber}/sessions/end.
func (h *SessionsHandler) End(w http.ResponseWriter, r *http.Request) {
	session, err := h.ledger.EndSession(r.Context(), chi.URLParam(r, "idnumber"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ended(session))
}

// EndByID handles POST /sessions/{id}/end.
func (h *SessionsHandler) EndByID(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := h.ledger.EndSessionByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ended(session))
}

func (h *SessionsHandler) ended(session *models.UsageSession) endSessionResponse {
	return endSessionResponse{
		Status:    "success",
		SessionID: session.ID,
		Amount:    session.AmountCharged.StringFixed(2),
		Duration:  h.ledger.Duration(session, time.Now()),
	}
}

// Active handles GET /sessions/active.
func (h *SessionsHandler) Active(w http.ResponseWriter, r *http.Request) {
	views, err := h.ledger.ActiveSessions(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if views == nil {
		views = []models.ActiveSessionView{}
	}
	writeJSON(w, http.StatusOK, views)
}

// Push handles POST /sessions/{id}/stk.
func (h *SessionsHandler) Push(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req pushRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.gateway.RequestSessionPayment(r.Context(), id, req.Phone, callbackURL(r, h.callbackURL))
	writePushResult(w, h.logger, res, err)
}

func writePushResult(w http.ResponseWriter, logger *zap.Logger, res *service.STKResult, err error) {
	if err != nil {
		status, message := statusFor(err)
		if status == http.StatusInternalServerError {
			logger.Error("stk push failed", zap.Error(err))
		}
		writeJSON(w, status, pushResponse{Success: false, Message: message})
		return
	}
	writeJSON(w, http.StatusOK, pushResponse{
		Success:           true,
		Message:           "Payment prompt sent to " + res.Phone,
		CheckoutRequestID: res.CheckoutRequestID,
	})
}
