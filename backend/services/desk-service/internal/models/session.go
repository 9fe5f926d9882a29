package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// UsageSession is one billable occupancy of a machine by a student.
type UsageSession struct {
	ID                int64                `db:"id" json:"id"`
	StudentID         int64                `db:"student_id" json:"student_id"`
	StudentIDNumber   string               `db:"idnumber" json:"student_idnumber"`
	StudentName       string               `db:"-" json:"student_name"`
	StartTime         time.Time            `db:"start_time" json:"start_time"`
	EndTime           *time.Time           `db:"end_time" json:"end_time"`
	IsActive          bool                 `db:"is_active" json:"is_active"`
	AmountCharged     decimal.Decimal      `db:"amount_charged" json:"amount_charged"`
	PaymentStatus     SessionPaymentStatus `db:"payment_status" json:"payment_status"`
	CheckoutRequestID *string              `db:"mpesa_checkout_request_id" json:"mpesa_checkout_request_id"`
	ReceiptNumber     *string              `db:"mpesa_receipt_number" json:"mpesa_receipt_number"`
	MpesaPhone        *string              `db:"mpesa_phone_number" json:"mpesa_phone_number"`
	CreatedAt         time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time            `db:"updated_at" json:"updated_at"`
}

// IsOpen reports whether the session is still running.
func (s *UsageSession) IsOpen() bool {
	return s.IsActive && s.EndTime == nil
}
