package models

import (
	"database/sql/driver"
	"fmt"
)

// SessionPaymentStatus tracks the mobile-money state of a usage session.
type SessionPaymentStatus uint8

// Session payment states. The zero value is invalid on purpose so an unset status never
// reaches the database.
const (
	SessionNotRequested SessionPaymentStatus = iota + 1
	SessionAwaitingPayment
	SessionPending
	SessionPaid
	SessionFailed
)

func (s SessionPaymentStatus) String() string {
	switch s {
	case SessionNotRequested:
		return "not_requested"
	case SessionAwaitingPayment:
		return "awaiting_payment"
	case SessionPending:
		return "pending"
	case SessionPaid:
		return "paid"
	case SessionFailed:
		return "failed"
	default:
		return fmt.Sprintf("SessionPaymentStatus(%d)", uint8(s))
	}
}

// Valid reports whether s is one of the declared states.
func (s SessionPaymentStatus) Valid() bool {
	return s >= SessionNotRequested && s <= SessionFailed
}

// ParseSessionPaymentStatus maps the stored representation back to the enum.
func ParseSessionPaymentStatus(v string) (SessionPaymentStatus, error) {
	switch v {
	case "not_requested":
		return SessionNotRequested, nil
	case "awaiting_payment":
		return SessionAwaitingPayment, nil
	case "pending":
		return SessionPending, nil
	case "paid":
		return SessionPaid, nil
	case "failed":
		return SessionFailed, nil
	default:
		return 0, fmt.Errorf("models: unknown session payment status %q", v)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s SessionPaymentStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("models: invalid session payment status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SessionPaymentStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseSessionPaymentStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Value implements driver.Valuer.
func (s SessionPaymentStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("models: invalid session payment status %d", uint8(s))
	}
	return s.String(), nil
}

// Scan implements sql.Scanner.
func (s *SessionPaymentStatus) Scan(src interface{}) error {
	raw, err := scanString(src)
	if err != nil {
		return fmt.Errorf("models: scan session payment status: %w", err)
	}
	return s.UnmarshalText([]byte(raw))
}

// PaymentStatus tracks the mobile-money state of a recorded payment.
type PaymentStatus uint8

// Payment mobile-money states.
const (
	PaymentNotRequested PaymentStatus = iota + 1
	PaymentPending
	PaymentPaid
	PaymentFailed
)

func (s PaymentStatus) String() string {
	switch s {
	case PaymentNotRequested:
		return "not_requested"
	case PaymentPending:
		return "pending"
	case PaymentPaid:
		return "paid"
	case PaymentFailed:
		return "failed"
	default:
		return fmt.Sprintf("PaymentStatus(%d)", uint8(s))
	}
}

// Valid reports whether s is one of the declared states.
func (s PaymentStatus) Valid() bool {
	return s >= PaymentNotRequested && s <= PaymentFailed
}

// ParsePaymentStatus maps the stored representation back to the enum.
func ParsePaymentStatus(v string) (PaymentStatus, error) {
	switch v {
	case "not_requested":
		return PaymentNotRequested, nil
	case "pending":
		return PaymentPending, nil
	case "paid":
		return PaymentPaid, nil
	case "failed":
		return PaymentFailed, nil
	default:
		return 0, fmt.Errorf("models: unknown payment status %q", v)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s PaymentStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("models: invalid payment status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *PaymentStatus) UnmarshalText(text []byte) error {
	parsed, err := ParsePaymentStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Value implements driver.Valuer.
func (s PaymentStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("models: invalid payment status %d", uint8(s))
	}
	return s.String(), nil
}

// Scan implements sql.Scanner.
func (s *PaymentStatus) Scan(src interface{}) error {
	raw, err := scanString(src)
	if err != nil {
		return fmt.Errorf("models: scan payment status: %w", err)
	}
	return s.UnmarshalText([]byte(raw))
}

func scanString(src interface{}) (string, error) {
	switch v := src.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case nil:
		return "", fmt.Errorf("null value")
	default:
		return "", fmt.Errorf("unsupported type %T", src)
	}
}
