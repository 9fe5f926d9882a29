package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cyberdesk/backend/services/desk-service/internal/models"
	"cyberdesk/backend/services/desk-service/internal/service"
)

// Records manages students and payments.
type Records interface {
	CreateStudent(ctx context.Context, in service.CreateStudentInput) (*models.Student, error)
	GetStudent(ctx context.Context, idNumber string) (*service.StudentDetail, error)
	StudentPayments(ctx context.Context, idNumber string) ([]models.Payment, error)
	ListPayments(ctx context.Context, limit int) ([]models.Payment, error)
	CreatePayment(ctx context.Context, in service.CreatePaymentInput) (*models.Payment, *service.STKResult, error)
}

// PaymentsHandler serves payment endpoints.
type PaymentsHandler struct {
	records     Records
	gateway     Gateway
	callbackURL string
	logger      *zap.Logger
}

// NewPaymentsHandler builds handler set.
func NewPaymentsHandler(records Records, gateway Gateway, configuredCallbackURL string, logger *zap.Logger) *PaymentsHandler {
	return &PaymentsHandler{
		records:     records,
		gateway:     gateway,
		callbackURL: configuredCallbackURL,
		logger:      logger,
	}
}

type createPaymentRequest struct {
	IDNumber    string          `json:"idnumber" validate:"required,max=20"`
	Amount      decimal.Decimal `json:"amount"`
	Balance     decimal.Decimal `json:"balance"`
	Date        string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	RequestPush bool            `json:"request_push"`
	Phone       string          `json:"phone" validate:"max=20"`
}

type createPaymentResponse struct {
	Payment *models.Payment `json:"payment"`
	STK     *pushResponse   `json:"stk,omitempty"`
}

// List handles GET /payments.
func (h *PaymentsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	payments, err := h.records.ListPayments(r.Context(), limit)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if payments == nil {
		payments = []models.Payment{}
	}
	writeJSON(w, http.StatusOK, payments)
}

// Create handles POST /payments.
func (h *PaymentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	in := service.CreatePaymentInput{
		IDNumber:    req.IDNumber,
		Amount:      req.Amount,
		Balance:     req.Balance,
		RequestPush: req.RequestPush,
		Phone:       req.Phone,
		CallbackURL: callbackURL(r, h.callbackURL),
	}
	if req.Date != "" {
		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		in.Date = date
	}

	payment, res, err := h.records.CreatePayment(r.Context(), in)
	if payment == nil {
		writeServiceError(w, h.logger, err)
		return
	}

	resp := createPaymentResponse{Payment: payment}
	switch {
	case err != nil:
		status, message := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("payment push failed", zap.Int64("payment_id", payment.ID), zap.Error(err))
		}
		resp.STK = &pushResponse{Success: false, Message: message}
	case res != nil:
		resp.STK = &pushResponse{
			Success:           true,
			Message:           "Payment prompt sent to " + res.Phone,
			CheckoutRequestID: res.CheckoutRequestID,
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Push handles POST /payments/{id}/stk.
func (h *PaymentsHandler) Push(w http.ResponseWriter, r *http.Request) {
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

	res, err := h.gateway.RequestPaymentPush(r.Context(), id, req.Phone, callbackURL(r, h.callbackURL))
	writePushResult(w, h.logger, res, err)
}
