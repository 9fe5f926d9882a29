package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cyberdesk/backend/services/desk-service/internal/clients"
	"cyberdesk/backend/services/desk-service/internal/models"
	"cyberdesk/backend/services/desk-service/internal/repository"
)

const (
	maxAccountReference = 12
	maxTransactionDesc  = 13
	callbackPath        = "/mpesa/callback/"

	pushKindSession = "session"
	pushKindPayment = "payment"
)

var callbackPlaceholders = []string{"example.com", "your-domain", "yourdomain", "<", "changeme"}

// STKRequest is a payment prompt before normalization.
type STKRequest struct {
	Phone            string
	Amount           decimal.Decimal
	AccountReference string
	TransactionDesc  string
	CallbackURL      string
}

// STKResult is what the network returned for an accepted push.
type STKResult struct {
	CheckoutRequestID string `json:"checkout_request_id"`
	Phone             string `json:"phone"`
	Amount            int64  `json:"amount"`
}

// SessionPushStore is the session persistence the gateway needs.
type SessionPushStore interface {
	GetByID(ctx context.Context, id int64) (*models.UsageSession, error)
	MarkPushRequested(ctx context.Context, id int64, checkoutRequestID, phone string) error
}

// PaymentPushStore is the payment persistence the gateway needs.
type PaymentPushStore interface {
	GetByID(ctx context.Context, id int64) (*models.Payment, error)
	MarkPushRequested(ctx context.Context, id int64, checkoutRequestID, phone string) error
}

// StudentLookup resolves the phone number on file.
type StudentLookup interface {
	GetByID(ctx context.Context, id int64) (*models.Student, error)
}

// PushLimiter keeps a second push for the same record from going out while one is in flight.
type PushLimiter interface {
	AcquirePush(ctx context.Context, kind string, id int64) (bool, error)
	ReleasePush(ctx context.Context, kind string, id int64) error
}

// GatewayService sends STK push requests and records the correlation token on the originating
// session or payment.
type GatewayService struct {
	client   clients.STKClient
	sessions SessionPushStore
	payments PaymentPushStore
	students StudentLookup
	limiter  PushLimiter
	logger   *zap.Logger
}

// NewGatewayService builds GatewayService. limiter may be nil.
func NewGatewayService(
	client clients.STKClient,
	sessions SessionPushStore,
	payments PaymentPushStore,
	students StudentLookup,
	limiter PushLimiter,
	logger *zap.Logger,
) *GatewayService {
	return &GatewayService{
		client:   client,
		sessions: sessions,
		payments: payments,
		students: students,
		limiter:  limiter,
		logger:   logger,
	}
}

// SendSTKRequest normalizes the request and hands it to the network. Failures are never retried.
func (g *GatewayService) SendSTKRequest(ctx context.Context, req STKRequest) (*STKResult, error) {
	phone, err := NormalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	amount := req.Amount.Round(0).IntPart()
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount %s rounds to zero", ErrInvalidInput, req.Amount.String())
	}
	if strings.TrimSpace(req.CallbackURL) == "" {
		return nil, fmt.Errorf("%w: callback url required", ErrInvalidInput)
	}

	res, err := g.client.PushSTK(ctx, clients.STKPush{
		Phone:            phone,
		Amount:           amount,
		AccountReference: truncate(req.AccountReference, maxAccountReference),
		TransactionDesc:  truncate(req.TransactionDesc, maxTransactionDesc),
		CallbackURL:      req.CallbackURL,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	return &STKResult{CheckoutRequestID: res.CheckoutRequestID, Phone: phone, Amount: amount}, nil
}

// RequestSessionPayment pushes the amount of a closed session to the student's handset.
// phoneOverride replaces the number on file when not empty.
func (g *GatewayService) RequestSessionPayment(ctx context.Context, sessionID int64, phoneOverride, callbackURL string) (*STKResult, error) {
	session, err := g.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: session %d", ErrNotFound, sessionID)
		}
		return nil, err
	}
	if session.IsOpen() {
		return nil, fmt.Errorf("%w: session %d is still running", ErrInvalidState, sessionID)
	}
	switch session.PaymentStatus {
	case models.SessionPaid:
		return nil, fmt.Errorf("%w: session %d is already paid", ErrInvalidState, sessionID)
	case models.SessionNotRequested, models.SessionAwaitingPayment, models.SessionPending, models.SessionFailed:
	default:
		return nil, fmt.Errorf("%w: session %d has status %s", ErrInvalidState, sessionID, session.PaymentStatus)
	}
	if !session.AmountCharged.IsPositive() {
		return nil, fmt.Errorf("%w: session %d has nothing to charge", ErrInvalidInput, sessionID)
	}

	phone, err := g.phoneFor(ctx, session.StudentID, phoneOverride)
	if err != nil {
		return nil, err
	}

	return g.push(ctx, pushKindSession, sessionID, STKRequest{
		Phone:            phone,
		Amount:           session.AmountCharged,
		AccountReference: fmt.Sprintf("Session%d", sessionID),
		TransactionDesc:  "Cyber session",
		CallbackURL:      callbackURL,
	}, g.sessions.MarkPushRequested)
}

// RequestPaymentPush pushes the amount of a recorded payment to the student's handset.
func (g *GatewayService) RequestPaymentPush(ctx context.Context, paymentID int64, phoneOverride, callbackURL string) (*STKResult, error) {
	payment, err := g.payments.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: payment %d", ErrNotFound, paymentID)
		}
		return nil, err
	}
	switch payment.MpesaStatus {
	case models.PaymentPaid:
		return nil, fmt.Errorf("%w: payment %d is already paid", ErrInvalidState, paymentID)
	case models.PaymentNotRequested, models.PaymentPending, models.PaymentFailed:
	default:
		return nil, fmt.Errorf("%w: payment %d has status %s", ErrInvalidState, paymentID, payment.MpesaStatus)
	}
	if !payment.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment %d has nothing to charge", ErrInvalidInput, paymentID)
	}

	phone, err := g.phoneFor(ctx, payment.StudentID, phoneOverride)
	if err != nil {
		return nil, err
	}

	return g.push(ctx, pushKindPayment, paymentID, STKRequest{
		Phone:            phone,
		Amount:           payment.Amount,
		AccountReference: fmt.Sprintf("Payment%d", paymentID),
		TransactionDesc:  "Cyber payment",
		CallbackURL:      callbackURL,
	}, g.payments.MarkPushRequested)
}

func (g *GatewayService) push(
	ctx context.Context,
	kind string,
	id int64,
	req STKRequest,
	mark func(ctx context.Context, id int64, checkoutRequestID, phone string) error,
) (*STKResult, error) {
	if g.limiter != nil {
		ok, err := g.limiter.AcquirePush(ctx, kind, id)
		switch {
		case err != nil:
			g.logger.Warn("push throttle unavailable", zap.String("kind", kind), zap.Int64("id", id), zap.Error(err))
		case !ok:
			return nil, fmt.Errorf("%w: a payment prompt for %s %d is already in progress", ErrInvalidState, kind, id)
		}
	}

	res, err := g.SendSTKRequest(ctx, req)
	if err != nil {
		g.release(ctx, kind, id)
		g.logger.Warn("stk push failed", zap.String("kind", kind), zap.Int64("id", id), zap.Error(err))
		return nil, err
	}

	if err := mark(ctx, id, res.CheckoutRequestID, res.Phone); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%w: %s %d", ErrNotFound, kind, id)
		case errors.Is(err, repository.ErrDuplicate):
			return nil, fmt.Errorf("%w: checkout request %s already recorded", ErrConflict, res.CheckoutRequestID)
		}
		return nil, err
	}

	g.logger.Info("stk push sent",
		zap.String("kind", kind),
		zap.Int64("id", id),
		zap.String("checkout_request_id", res.CheckoutRequestID),
		zap.Int64("amount", res.Amount),
	)
	return res, nil
}

func (g *GatewayService) release(ctx context.Context, kind string, id int64) {
	if g.limiter == nil {
		return
	}
	if err := g.limiter.ReleasePush(ctx, kind, id); err != nil {
		g.logger.Warn("failed to release push slot", zap.String("kind", kind), zap.Int64("id", id), zap.Error(err))
	}
}

func (g *GatewayService) phoneFor(ctx context.Context, studentID int64, override string) (string, error) {
	if phone := strings.TrimSpace(override); phone != "" {
		return phone, nil
	}
	student, err := g.students.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("%w: student %d", ErrNotFound, studentID)
		}
		return "", err
	}
	if strings.TrimSpace(student.PhoneNumber) == "" {
		return "", fmt.Errorf("%w: no phone number on file", ErrInvalidInput)
	}
	return student.PhoneNumber, nil
}

// ResolveCallbackURL returns configured unless it is empty or a template placeholder, in which
// case the URL is built from the scheme and host the request arrived on.
func ResolveCallbackURL(configured, scheme, host string) string {
	configured = strings.TrimSpace(configured)
	if configured != "" && !isPlaceholder(configured) {
		return configured
	}
	if scheme == "" {
		scheme = "https"
	}
	u := url.URL{Scheme: scheme, Host: host, Path: callbackPath}
	return u.String()
}

func isPlaceholder(raw string) bool {
	lower := strings.ToLower(raw)
	for _, p := range callbackPlaceholders {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max])
}
