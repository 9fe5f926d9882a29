package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is a manually recorded or mobile-money confirmed transaction of a student.
type Payment struct {
	ID                int64           `db:"id" json:"id"`
	StudentID         int64           `db:"student_id" json:"student_id"`
	StudentIDNumber   string          `db:"idnumber" json:"student_idnumber"`
	StudentName       string          `db:"-" json:"student_name"`
	Amount            decimal.Decimal `db:"amount" json:"amount"`
	Balance           decimal.Decimal `db:"balance" json:"balance"`
	Date              time.Time       `db:"date" json:"date"`
	MpesaStatus       PaymentStatus   `db:"mpesa_status" json:"mpesa_status"`
	CheckoutRequestID *string         `db:"mpesa_checkout_request_id" json:"mpesa_checkout_request_id"`
	ReceiptNumber     *string         `db:"mpesa_receipt_number" json:"mpesa_receipt_number"`
	MpesaPhone        *string         `db:"mpesa_phone_number" json:"mpesa_phone_number"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}
