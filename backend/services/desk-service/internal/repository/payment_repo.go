package repository

import (
	"context"
	"database/sql"
	"errors"

	libdb "cyberdesk/backend/libs/db"
	"cyberdesk/backend/services/desk-service/internal/models"
)

const paymentColumns = `
	p.id, p.student_id, st.idnumber, st.firstname, st.lastname, p.amount, p.balance, p.date,
	p.mpesa_status, p.mpesa_checkout_request_id, p.mpesa_receipt_number, p.mpesa_phone_number,
	p.created_at
`

const paymentFrom = `
	FROM payments p
	JOIN students st ON st.id = p.student_id
`

// PaymentRepository persists payments.
type PaymentRepository struct {
	db *sql.DB
}

// NewPaymentRepository returns repository.
func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a new payment.
func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	const query = `
		INSERT INTO payments (student_id, amount, balance, date, mpesa_status)
		VALUES ($1, $2, $3, $4::date, $5)
		RETURNING id, created_at
	`
	return r.db.QueryRowContext(ctx, query,
		p.StudentID,
		p.Amount,
		p.Balance,
		p.Date.Format("2006-01-02"),
		p.MpesaStatus,
	).Scan(&p.ID, &p.CreatedAt)
}

// GetByID returns a payment with its student reference.
func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*models.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+paymentFrom+`WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// List returns latest payments, newest first.
func (r *PaymentRepository) List(ctx context.Context, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.query(ctx, `SELECT `+paymentColumns+paymentFrom+`
		ORDER BY p.date DESC, p.id DESC
		LIMIT $1
	`, limit)
}

// ListByStudent returns payments of one student, newest first.
func (r *PaymentRepository) ListByStudent(ctx context.Context, idNumber string) ([]models.Payment, error) {
	return r.query(ctx, `SELECT `+paymentColumns+paymentFrom+`
		WHERE st.idnumber = $1
		ORDER BY p.date DESC, p.id DESC
	`, idNumber)
}

// MarkPushRequested stores the correlation token of a freshly sent STK push.
func (r *PaymentRepository) MarkPushRequested(ctx context.Context, id int64, checkoutRequestID, phone string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET mpesa_status = $2,
		    mpesa_checkout_request_id = $3,
		    mpesa_phone_number = $4
		WHERE id = $1
	`, id, models.PaymentPending, checkoutRequestID, phone)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateByCheckoutID locks the payment carrying checkoutRequestID and lets mutate change it.
func (r *PaymentRepository) UpdateByCheckoutID(ctx context.Context, checkoutRequestID string, mutate func(*models.Payment) bool) (bool, error) {
	found := false
	err := libdb.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		p, err := scanPayment(tx.QueryRowContext(ctx, `SELECT `+paymentColumns+paymentFrom+`
			WHERE p.mpesa_checkout_request_id = $1
			FOR UPDATE OF p
		`, checkoutRequestID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		found = true

		if !mutate(p) {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE payments
			SET mpesa_status = $2,
			    mpesa_receipt_number = $3,
			    mpesa_phone_number = $4
			WHERE id = $1
		`, p.ID, p.MpesaStatus, p.ReceiptNumber, p.MpesaPhone)
		return err
	})
	return found, err
}

func (r *PaymentRepository) query(ctx context.Context, query string, args ...interface{}) ([]models.Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var (
		p         models.Payment
		firstName string
		lastName  string
	)
	if err := row.Scan(
		&p.ID,
		&p.StudentID,
		&p.StudentIDNumber,
		&firstName,
		&lastName,
		&p.Amount,
		&p.Balance,
		&p.Date,
		&p.MpesaStatus,
		&p.CheckoutRequestID,
		&p.ReceiptNumber,
		&p.MpesaPhone,
		&p.CreatedAt,
	); err != nil {
		return nil, err
	}
	p.StudentName = models.Student{FirstName: firstName, LastName: lastName}.FullName()
	return &p, nil
}
