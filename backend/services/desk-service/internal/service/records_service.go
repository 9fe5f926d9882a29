package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cyberdesk/backend/services/desk-service/internal/clock"
	"cyberdesk/backend/services/desk-service/internal/models"
	"cyberdesk/backend/services/desk-service/internal/repository"
)

// StudentStore persists students.
type StudentStore interface {
	Create(ctx context.Context, student *models.Student) error
	GetByIDNumber(ctx context.Context, idNumber string) (*models.Student, error)
}

// PaymentStore persists payments.
type PaymentStore interface {
	Create(ctx context.Context, p *models.Payment) error
	List(ctx context.Context, limit int) ([]models.Payment, error)
	ListByStudent(ctx context.Context, idNumber string) ([]models.Payment, error)
}

// PaymentPusher sends an STK push for a recorded payment.
type PaymentPusher interface {
	RequestPaymentPush(ctx context.Context, paymentID int64, phoneOverride, callbackURL string) (*STKResult, error)
}

// CreateStudentInput is a new student.
type CreateStudentInput struct {
	FirstName   string
	LastName    string
	IDNumber    string
	PhoneNumber string
}

// CreatePaymentInput records a payment and optionally prompts the student to pay it.
type CreatePaymentInput struct {
	IDNumber    string
	Amount      decimal.Decimal
	Balance     decimal.Decimal
	Date        time.Time
	RequestPush bool
	Phone       string
	CallbackURL string
}

// StudentDetail is a student with payment history.
type StudentDetail struct {
	Student  models.Student   `json:"student"`
	Payments []models.Payment `json:"payments"`
}

// RecordsService manages students and payment records.
type RecordsService struct {
	students StudentStore
	payments PaymentStore
	pusher   PaymentPusher
	clock    clock.Clock
	loc      *time.Location
	logger   *zap.Logger
}

// NewRecordsService builds RecordsService.
func NewRecordsService(students StudentStore, payments PaymentStore, pusher PaymentPusher, clk clock.Clock, loc *time.Location, logger *zap.Logger) *RecordsService {
	if loc == nil {
		loc = time.UTC
	}
	return &RecordsService{
		students: students,
		payments: payments,
		pusher:   pusher,
		clock:    clk,
		loc:      loc,
		logger:   logger,
	}
}

// CreateStudent registers a student. The id number must be unique.
func (s *RecordsService) CreateStudent(ctx context.Context, in CreateStudentInput) (*models.Student, error) {
	student := &models.Student{
		FirstName:   strings.TrimSpace(in.FirstName),
		LastName:    strings.TrimSpace(in.LastName),
		IDNumber:    strings.TrimSpace(in.IDNumber),
		PhoneNumber: strings.TrimSpace(in.PhoneNumber),
	}
	if student.FirstName == "" || student.LastName == "" || student.IDNumber == "" {
		return nil, fmt.Errorf("%w: first name, last name and id number are required", ErrInvalidInput)
	}
	if _, err := NormalizePhone(student.PhoneNumber); err != nil {
		return nil, err
	}

	if err := s.students.Create(ctx, student); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: student %s already exists", ErrConflict, student.IDNumber)
		}
		return nil, err
	}
	s.logger.Info("student created", zap.Int64("student_id", student.ID), zap.String("idnumber", student.IDNumber))
	return student, nil
}

// GetStudent returns the student and their payments.
func (s *RecordsService) GetStudent(ctx context.Context, idNumber string) (*StudentDetail, error) {
	student, err := s.lookup(ctx, idNumber)
	if err != nil {
		return nil, err
	}
	payments, err := s.payments.ListByStudent(ctx, student.IDNumber)
	if err != nil {
		return nil, err
	}
	if payments == nil {
		payments = []models.Payment{}
	}
	return &StudentDetail{Student: *student, Payments: payments}, nil
}

// StudentPayments lists payments of one student, newest first.
func (s *RecordsService) StudentPayments(ctx context.Context, idNumber string) ([]models.Payment, error) {
	student, err := s.lookup(ctx, idNumber)
	if err != nil {
		return nil, err
	}
	return s.payments.ListByStudent(ctx, student.IDNumber)
}

// ListPayments lists the newest payments.
func (s *RecordsService) ListPayments(ctx context.Context, limit int) ([]models.Payment, error) {
	return s.payments.List(ctx, limit)
}

// CreatePayment records a payment. When a push is requested and fails, the payment is kept and
// returned together with the gateway error.
func (s *RecordsService) CreatePayment(ctx context.Context, in CreatePaymentInput) (*models.Payment, *STKResult, error) {
	if !in.Amount.IsPositive() {
		return nil, nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if in.Balance.IsNegative() {
		return nil, nil, fmt.Errorf("%w: balance must not be negative", ErrInvalidInput)
	}
	student, err := s.lookup(ctx, in.IDNumber)
	if err != nil {
		return nil, nil, err
	}

	date := in.Date
	if date.IsZero() {
		date = s.clock.Now().In(s.loc)
	}
	payment := &models.Payment{
		StudentID:       student.ID,
		StudentIDNumber: student.IDNumber,
		StudentName:     student.FullName(),
		Amount:          in.Amount.Round(2),
		Balance:         in.Balance.Round(2),
		Date:            time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC),
		MpesaStatus:     models.PaymentNotRequested,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, nil, err
	}
	s.logger.Info("payment recorded",
		zap.Int64("payment_id", payment.ID),
		zap.String("idnumber", student.IDNumber),
		zap.String("amount", payment.Amount.StringFixed(2)),
	)

	if !in.RequestPush || s.pusher == nil {
		return payment, nil, nil
	}
	res, err := s.pusher.RequestPaymentPush(ctx, payment.ID, in.Phone, in.CallbackURL)
	if err != nil {
		return payment, nil, err
	}
	checkout := res.CheckoutRequestID
	payment.MpesaStatus = models.PaymentPending
	payment.CheckoutRequestID = &checkout
	payment.MpesaPhone = &res.Phone
	return payment, res, nil
}

func (s *RecordsService) lookup(ctx context.Context, idNumber string) (*models.Student, error) {
	idNumber = strings.TrimSpace(idNumber)
	if idNumber == "" {
		return nil, fmt.Errorf("%w: student id number required", ErrInvalidInput)
	}
	student, err := s.students.GetByIDNumber(ctx, idNumber)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: student %s", ErrNotFound, idNumber)
		}
		return nil, err
	}
	return student, nil
}
