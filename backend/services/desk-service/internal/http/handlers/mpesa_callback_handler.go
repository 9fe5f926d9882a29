package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"cyberdesk/backend/services/desk-service/internal/service"
)

// Reconciler applies payment network callbacks.
type Reconciler interface {
	HandleCallback(ctx context.Context, raw []byte) (service.Acknowledgement, error)
}

// NewMpesaCallbackHandler handles POST /mpesa/callback/. The body is always an acknowledgement:
// 400 for unparseable input, 200 otherwise.
func NewMpesaCallbackHandler(reconciler Reconciler, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			logger.Warn("failed to read mpesa callback", zap.Error(err))
			writeJSON(w, http.StatusBadRequest, service.Acknowledgement{ResultCode: 1, ResultDesc: "Rejected: unreadable body"})
			return
		}

		ack, err := reconciler.HandleCallback(r.Context(), raw)
		switch {
		case errors.Is(err, service.ErrParse):
			writeJSON(w, http.StatusBadRequest, ack)
		case err != nil:
			logger.Error("mpesa callback not applied", zap.Error(err))
			writeJSON(w, http.StatusOK, ack)
		default:
			writeJSON(w, http.StatusOK, ack)
		}
	}
}
