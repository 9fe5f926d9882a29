package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cyberdesk/backend/services/desk-service/internal/models"
)

// Acknowledgement is the body returned to the payment network for every callback.
type Acknowledgement struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

var (
	ackAccepted = Acknowledgement{ResultCode: 0, ResultDesc: "Accepted"}
	ackRejected = Acknowledgement{ResultCode: 1, ResultDesc: "Rejected: malformed payload"}
)

// SessionCallbackStore applies an outcome to the session carrying a checkout token.
type SessionCallbackStore interface {
	UpdateByCheckoutID(ctx context.Context, checkoutRequestID string, mutate func(*models.UsageSession) bool) (bool, error)
}

// PaymentCallbackStore applies an outcome to the payment carrying a checkout token.
type PaymentCallbackStore interface {
	UpdateByCheckoutID(ctx context.Context, checkoutRequestID string, mutate func(*models.Payment) bool) (bool, error)
}

// CallbackMarker remembers callbacks that were already applied.
type CallbackMarker interface {
	Processed(ctx context.Context, checkoutRequestID string, resultCode int) (bool, error)
	MarkProcessed(ctx context.Context, checkoutRequestID string, resultCode int) error
}

// Callback is the part of an STK callback the reconciler acts on.
type Callback struct {
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	Amount            *decimal.Decimal
	ReceiptNumber     string
	PhoneNumber       string
}

// Success reports whether the customer completed the payment.
func (c Callback) Success() bool {
	return c.ResultCode == 0
}

// ReconcilerService applies STK callbacks to sessions and payments.
type ReconcilerService struct {
	sessions SessionCallbackStore
	payments PaymentCallbackStore
	marker   CallbackMarker
	logger   *zap.Logger
}

// NewReconcilerService builds ReconcilerService. marker may be nil.
func NewReconcilerService(sessions SessionCallbackStore, payments PaymentCallbackStore, marker CallbackMarker, logger *zap.Logger) *ReconcilerService {
	return &ReconcilerService{
		sessions: sessions,
		payments: payments,
		marker:   marker,
		logger:   logger,
	}
}

// HandleCallback parses raw and applies it. The returned acknowledgement is always meant to be
// sent back; err is ErrParse for unparseable bodies and an internal error otherwise.
func (r *ReconcilerService) HandleCallback(ctx context.Context, raw []byte) (Acknowledgement, error) {
	cb, ok, err := ParseCallback(raw)
	if err != nil {
		r.logger.Warn("rejecting malformed mpesa callback", zap.Error(err))
		return ackRejected, err
	}
	if !ok {
		r.logger.Warn("mpesa callback without checkout request id or result code")
		return ackAccepted, nil
	}

	log := r.logger.With(
		zap.String("checkout_request_id", cb.CheckoutRequestID),
		zap.Int("result_code", cb.ResultCode),
	)

	if r.marker != nil {
		done, err := r.marker.Processed(ctx, cb.CheckoutRequestID, cb.ResultCode)
		if err != nil {
			log.Warn("callback marker lookup failed", zap.Error(err))
		} else if done {
			log.Info("mpesa callback already applied")
			return ackAccepted, nil
		}
	}

	found, err := r.apply(ctx, cb, log)
	if err != nil {
		log.Error("failed to apply mpesa callback", zap.Error(err))
		return ackAccepted, fmt.Errorf("apply callback %s: %w", cb.CheckoutRequestID, err)
	}
	if !found {
		log.Warn("mpesa callback for unknown checkout request")
		return ackAccepted, nil
	}

	if r.marker != nil {
		if err := r.marker.MarkProcessed(ctx, cb.CheckoutRequestID, cb.ResultCode); err != nil {
			log.Warn("failed to store callback marker", zap.Error(err))
		}
	}
	return ackAccepted, nil
}

func (r *ReconcilerService) apply(ctx context.Context, cb Callback, log *zap.Logger) (bool, error) {
	found, err := r.sessions.UpdateByCheckoutID(ctx, cb.CheckoutRequestID, func(s *models.UsageSession) bool {
		changed := applyToSession(s, cb)
		logOutcome(log, "session", s.ID, s.PaymentStatus.String(), changed, cb)
		return changed
	})
	if err != nil || found {
		return found, err
	}

	return r.payments.UpdateByCheckoutID(ctx, cb.CheckoutRequestID, func(p *models.Payment) bool {
		changed := applyToPayment(p, cb)
		logOutcome(log, "payment", p.ID, p.MpesaStatus.String(), changed, cb)
		return changed
	})
}

func logOutcome(log *zap.Logger, kind string, id int64, status string, changed bool, cb Callback) {
	fields := []zap.Field{
		zap.String("kind", kind),
		zap.Int64("id", id),
		zap.String("status", status),
		zap.Bool("changed", changed),
	}
	if !cb.Success() {
		fields = append(fields, zap.String("result_desc", cb.ResultDesc))
	}
	log.Info("mpesa callback reconciled", fields...)
}

// applyToSession moves a session to the callback's outcome. paid is terminal.
func applyToSession(s *models.UsageSession, cb Callback) bool {
	switch s.PaymentStatus {
	case models.SessionPaid:
		if !cb.Success() {
			return false
		}
	case models.SessionNotRequested, models.SessionAwaitingPayment, models.SessionPending, models.SessionFailed:
	default:
		return false
	}

	if !cb.Success() {
		if s.PaymentStatus == models.SessionFailed {
			return false
		}
		s.PaymentStatus = models.SessionFailed
		return true
	}

	changed := s.PaymentStatus != models.SessionPaid
	s.PaymentStatus = models.SessionPaid
	changed = setString(&s.ReceiptNumber, cb.ReceiptNumber) || changed
	changed = setString(&s.MpesaPhone, cb.PhoneNumber) || changed
	if cb.Amount != nil && !cb.Amount.Equal(s.AmountCharged) {
		s.AmountCharged = *cb.Amount
		changed = true
	}
	return changed
}

// applyToPayment moves a payment to the callback's outcome. paid is terminal.
func applyToPayment(p *models.Payment, cb Callback) bool {
	switch p.MpesaStatus {
	case models.PaymentPaid:
		if !cb.Success() {
			return false
		}
	case models.PaymentNotRequested, models.PaymentPending, models.PaymentFailed:
	default:
		return false
	}

	if !cb.Success() {
		if p.MpesaStatus == models.PaymentFailed {
			return false
		}
		p.MpesaStatus = models.PaymentFailed
		return true
	}

	changed := p.MpesaStatus != models.PaymentPaid
	p.MpesaStatus = models.PaymentPaid
	changed = setString(&p.ReceiptNumber, cb.ReceiptNumber) || changed
	changed = setString(&p.MpesaPhone, cb.PhoneNumber) || changed
	return changed
}

func setString(dst **string, v string) bool {
	if v == "" {
		return false
	}
	if *dst != nil && **dst == v {
		return false
	}
	*dst = &v
	return true
}

// ParseCallback decodes an STK callback body. err is ErrParse only when raw is not a single JSON
// document. ok is false for valid JSON that does not carry a string checkout request id and an
// integer result code, whatever shape the rest of the document has.
func ParseCallback(raw []byte) (cb Callback, ok bool, err error) {
	if !json.Valid(raw) {
		return Callback{}, false, fmt.Errorf("%w: body is not a JSON document", ErrParse)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var root interface{}
	if err := dec.Decode(&root); err != nil {
		return Callback{}, false, fmt.Errorf("%w: %v", ErrParse, err)
	}

	stk := object(object(object(root)["Body"])["stkCallback"])
	token, _ := stk["CheckoutRequestID"].(string)
	token = strings.TrimSpace(token)
	if token == "" {
		return Callback{}, false, nil
	}
	code, isInt := resultCode(stk["ResultCode"])
	if !isInt {
		return Callback{}, false, nil
	}
	desc, _ := stk["ResultDesc"].(string)

	cb = Callback{
		CheckoutRequestID: token,
		ResultCode:        code,
		ResultDesc:        desc,
	}

	items, _ := object(stk["CallbackMetadata"])["Item"].([]interface{})
	for _, entry := range items {
		item := object(entry)
		name, _ := item["Name"].(string)
		switch name {
		case "Amount":
			if amount, err := decimal.NewFromString(metadataString(item["Value"])); err == nil {
				amount = amount.Round(2)
				cb.Amount = &amount
			}
		case "MpesaReceiptNumber":
			cb.ReceiptNumber = metadataString(item["Value"])
		case "PhoneNumber":
			cb.PhoneNumber = metadataString(item["Value"])
		}
	}
	return cb, true, nil
}

// object returns v as a JSON object, or nil for any other shape. Indexing nil yields nil.
func object(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

func resultCode(v interface{}) (int, bool) {
	var text string
	switch val := v.(type) {
	case json.Number:
		text = val.String()
	case string:
		text = strings.TrimSpace(val)
	default:
		return 0, false
	}
	code, err := strconv.Atoi(text)
	if err != nil {
		return 0, false
	}
	return code, true
}

func metadataString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
