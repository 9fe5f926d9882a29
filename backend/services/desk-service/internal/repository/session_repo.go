package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	libdb "cyberdesk/backend/libs/db"
	"cyberdesk/backend/services/desk-service/internal/models"
)

// BillFunc prices the time between start and end.
type BillFunc func(start, end time.Time) (decimal.Decimal, error)

// StartResult is the outcome of StartSession.
type StartResult struct {
	Session *models.UsageSession
	Closed  []models.UsageSession
}

const sessionColumns = `
	s.id, s.student_id, st.idnumber, st.firstname, st.lastname, s.start_time, s.end_time,
	s.is_active, s.amount_charged, s.payment_status, s.mpesa_checkout_request_id,
	s.mpesa_receipt_number, s.mpesa_phone_number, s.created_at, s.updated_at
`

const sessionFrom = `
	FROM usage_sessions s
	JOIN students st ON st.id = s.student_id
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// SessionRepository handles persistence of usage sessions.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository returns repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// StartSession closes every open session of the student and opens a new one, all in one
// transaction. The student row is locked first so concurrent starts for the same student
// serialise.
func (r *SessionRepository) StartSession(ctx context.Context, idNumber string, now time.Time, bill BillFunc) (*StartResult, error) {
	var result StartResult
	err := libdb.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var student models.Student
		err := tx.QueryRowContext(ctx, `
			SELECT id, firstname, lastname
			FROM students
			WHERE idnumber = $1
			FOR UPDATE
		`, idNumber).Scan(&student.ID, &student.FirstName, &student.LastName)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		open, err := querySessions(ctx, tx, `SELECT `+sessionColumns+sessionFrom+`
			WHERE s.student_id = $1 AND s.is_active AND s.end_time IS NULL
			FOR UPDATE OF s
		`, student.ID)
		if err != nil {
			return err
		}
		for i := range open {
			if err := closeSession(ctx, tx, &open[i], now, bill); err != nil {
				return err
			}
		}

		session := &models.UsageSession{
			StudentID:       student.ID,
			StudentIDNumber: idNumber,
			StudentName:     student.FullName(),
			StartTime:       now,
			IsActive:        true,
			AmountCharged:   decimal.Zero,
			PaymentStatus:   models.SessionNotRequested,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		err = tx.QueryRowContext(ctx, `
			INSERT INTO usage_sessions (student_id, start_time, is_active, amount_charged, payment_status, created_at, updated_at)
			VALUES ($1, $2, TRUE, 0, $3, $2, $2)
			RETURNING id
		`, student.ID, now, session.PaymentStatus).Scan(&session.ID)
		if err != nil {
			return err
		}

		result = StartResult{Session: session, Closed: open}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// CloseOpenSession ends the running session of the student identified by idNumber.
func (r *SessionRepository) CloseOpenSession(ctx context.Context, idNumber string, now time.Time, bill BillFunc) (*models.UsageSession, error) {
	var closed *models.UsageSession
	err := libdb.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var studentID int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM students WHERE idnumber = $1`, idNumber).Scan(&studentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		session, err := scanSession(tx.QueryRowContext(ctx, `SELECT `+sessionColumns+sessionFrom+`
			WHERE s.student_id = $1 AND s.is_active AND s.end_time IS NULL
			ORDER BY s.start_time DESC
			LIMIT 1
			FOR UPDATE OF s
		`, studentID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNoOpenSession
			}
			return err
		}

		if err := closeSession(ctx, tx, session, now, bill); err != nil {
			return err
		}
		closed = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}

// CloseSessionByID ends the given session if it is still open.
func (r *SessionRepository) CloseSessionByID(ctx context.Context, id int64, now time.Time, bill BillFunc) (*models.UsageSession, error) {
	var closed *models.UsageSession
	err := libdb.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		session, err := scanSession(tx.QueryRowContext(ctx, `SELECT `+sessionColumns+sessionFrom+`
			WHERE s.id = $1
			FOR UPDATE OF s
		`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if !session.IsOpen() {
			return ErrNoOpenSession
		}

		if err := closeSession(ctx, tx, session, now, bill); err != nil {
			return err
		}
		closed = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}

// GetByID returns a session with its student reference.
func (r *SessionRepository) GetByID(ctx context.Context, id int64) (*models.UsageSession, error) {
	session, err := scanSession(r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+sessionFrom+`WHERE s.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return session, nil
}

// ListOpen returns running sessions, oldest first.
func (r *SessionRepository) ListOpen(ctx context.Context, limit int) ([]models.UsageSession, error) {
	if limit <= 0 {
		limit = 100
	}
	return querySessions(ctx, r.db, `SELECT `+sessionColumns+sessionFrom+`
		WHERE s.is_active AND s.end_time IS NULL
		ORDER BY s.start_time ASC
		LIMIT $1
	`, limit)
}

// MarkPushRequested stores the correlation token of a freshly sent STK push.
func (r *SessionRepository) MarkPushRequested(ctx context.Context, id int64, checkoutRequestID, phone string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE usage_sessions
		SET payment_status = $2,
		    mpesa_checkout_request_id = $3,
		    mpesa_phone_number = $4,
		    updated_at = NOW()
		WHERE id = $1
	`, id, models.SessionPending, checkoutRequestID, phone)
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

// UpdateByCheckoutID locks the session carrying checkoutRequestID and lets mutate change it.
// Nothing is written when mutate reports no change. found is false when no session has the
// token.
func (r *SessionRepository) UpdateByCheckoutID(ctx context.Context, checkoutRequestID string, mutate func(*models.UsageSession) bool) (bool, error) {
	found := false
	err := libdb.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		session, err := scanSession(tx.QueryRowContext(ctx, `SELECT `+sessionColumns+sessionFrom+`
			WHERE s.mpesa_checkout_request_id = $1
			FOR UPDATE OF s
		`, checkoutRequestID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		found = true

		if !mutate(session) {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE usage_sessions
			SET payment_status = $2,
			    mpesa_receipt_number = $3,
			    mpesa_phone_number = $4,
			    amount_charged = $5,
			    updated_at = NOW()
			WHERE id = $1
		`, session.ID, session.PaymentStatus, session.ReceiptNumber, session.MpesaPhone, session.AmountCharged)
		return err
	})
	return found, err
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func querySessions(ctx context.Context, q queryer, query string, args ...interface{}) ([]models.UsageSession, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.UsageSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func scanSession(row rowScanner) (*models.UsageSession, error) {
	var (
		s         models.UsageSession
		firstName string
		lastName  string
	)
	if err := row.Scan(
		&s.ID,
		&s.StudentID,
		&s.StudentIDNumber,
		&firstName,
		&lastName,
		&s.StartTime,
		&s.EndTime,
		&s.IsActive,
		&s.AmountCharged,
		&s.PaymentStatus,
		&s.CheckoutRequestID,
		&s.ReceiptNumber,
		&s.MpesaPhone,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.StudentName = models.Student{FirstName: firstName, LastName: lastName}.FullName()
	return &s, nil
}

func closeSession(ctx context.Context, tx *sql.Tx, session *models.UsageSession, now time.Time, bill BillFunc) error {
	amount, err := bill(session.StartTime, now)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE usage_sessions
		SET end_time = $2,
		    is_active = FALSE,
		    amount_charged = $3,
		    updated_at = $2
		WHERE id = $1
	`, session.ID, now, amount)
	if err != nil {
		return err
	}

	end := now
	session.EndTime = &end
	session.IsActive = false
	session.AmountCharged = amount
	session.UpdatedAt = now
	return nil
}
