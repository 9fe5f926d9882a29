package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyberdesk/backend/services/desk-service/internal/models"
)

var paymentRowColumns = []string{
	"id", "student_id", "idnumber", "firstname", "lastname", "amount", "balance", "date",
	"mpesa_status", "mpesa_checkout_request_id", "mpesa_receipt_number", "mpesa_phone_number",
	"created_at",
}

func TestStudentCreateDuplicate(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewStudentRepository(conn)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO students")).
		WithArgs("Ann", "Njeri", "S1", "0712345678").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), &models.Student{
		FirstName: "Ann", LastName: "Njeri", IDNumber: " S1 ", PhoneNumber: "0712345678",
	})
	require.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentCreateAndGet(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewStudentRepository(conn)
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO students")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(3), created))

	student := &models.Student{FirstName: "Ann", LastName: "Njeri", IDNumber: "S1", PhoneNumber: "0712345678"}
	require.NoError(t, repo.Create(context.Background(), student))
	assert.Equal(t, int64(3), student.ID)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE idnumber = $1")).
		WithArgs("S1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "firstname", "lastname", "idnumber", "phonenumber", "created_at"}).
			AddRow(int64(3), "Ann", "Njeri", "S1", "0712345678", created))
	got, err := repo.GetByIDNumber(context.Background(), "S1")
	require.NoError(t, err)
	assert.Equal(t, "Ann Njeri", got.FullName())

	mock.ExpectQuery(regexp.QuoteMeta("WHERE idnumber = $1")).
		WithArgs("S9").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = repo.GetByIDNumber(context.Background(), "S9")
	require.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentCreateUsesCalendarDate(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewPaymentRepository(conn)
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO payments")).
		WithArgs(int64(1), "150.5", "0", "2024-05-01", "not_requested").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(11), created))

	p := &models.Payment{
		StudentID:   1,
		Amount:      decimal.RequireFromString("150.50"),
		Balance:     decimal.Zero,
		Date:        time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC),
		MpesaStatus: models.PaymentNotRequested,
	}
	require.NoError(t, repo.Create(context.Background(), p))
	assert.Equal(t, int64(11), p.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentListByStudent(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewPaymentRepository(conn)
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE st.idnumber = $1")).
		WithArgs("S1").
		WillReturnRows(sqlmock.NewRows(paymentRowColumns).
			AddRow(int64(2), int64(1), "S1", "Ann", "Njeri", "200.00", "50.00", day, "paid", "tok-9", "QWE1", "254712345678", day).
			AddRow(int64(1), int64(1), "S1", "Ann", "Njeri", "100.00", "0.00", day, "not_requested", nil, nil, nil, day))

	payments, err := repo.ListByStudent(context.Background(), "S1")
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, models.PaymentPaid, payments[0].MpesaStatus)
	require.NotNil(t, payments[0].ReceiptNumber)
	assert.Equal(t, "QWE1", *payments[0].ReceiptNumber)
	assert.Nil(t, payments[1].CheckoutRequestID)
	assert.Equal(t, "Ann Njeri", payments[1].StudentName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentUpdateByCheckoutIDSkipsWriteWhenUnchanged(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewPaymentRepository(conn)
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE p.mpesa_checkout_request_id = $1")).
		WithArgs("tok-2").
		WillReturnRows(sqlmock.NewRows(paymentRowColumns).
			AddRow(int64(5), int64(1), "S1", "Ann", "Njeri", "100.00", "0.00", day, "paid", "tok-2", "R1", nil, day))
	mock.ExpectCommit()

	found, err := repo.UpdateByCheckoutID(context.Background(), "tok-2", func(p *models.Payment) bool {
		return false
	})
	require.NoError(t, err)
	assert.True(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOperatorRepository(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewOperatorRepository(conn)
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO operators")).
		WithArgs("admin", "hash").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), created))
	op := &models.Operator{Username: " Admin ", PasswordHash: "hash"}
	require.NoError(t, repo.Create(context.Background(), op))
	assert.Equal(t, "admin", op.Username)

	mock.ExpectQuery(regexp.QuoteMeta("FROM operators")).
		WithArgs("admin").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash", "created_at"}))
	_, err := repo.GetByUsername(context.Background(), "ADMIN")
	require.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDashboardViewAggregates(t *testing.T) {
	conn, mock := newMock(t)
	view := NewDashboardView(conn)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE is_active AND end_time IS NULL")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(6)))
	open, err := view.CountOpenSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, open)

	mock.ExpectQuery(regexp.QuoteMeta("AVG(EXTRACT(EPOCH")).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(float64(5400)))
	avg, err := view.AverageRecentDuration(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, avg)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE date = $1::date")).
		WithArgs("2024-05-01").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("350.50"))
	revenue, err := view.SumPaymentsOn(ctx, time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, revenue.Equal(decimal.RequireFromString("350.5")))

	mock.ExpectQuery(regexp.QuoteMeta("WHERE balance > 0")).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("0"))
	outstanding, err := view.SumOutstandingBalances(ctx)
	require.NoError(t, err)
	assert.True(t, outstanding.IsZero())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDashboardViewStudentActivity(t *testing.T) {
	conn, mock := newMock(t)
	view := NewDashboardView(conn)
	created := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	since := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM students st")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "firstname", "lastname", "idnumber", "phonenumber", "created_at", "start_time", "seconds"}).
			AddRow(int64(1), "Ann", "Njeri", "S1", "0712345678", created, since, float64(7200)).
			AddRow(int64(2), "Ben", "Otieno", "S2", "0722000000", created, nil, float64(0)))

	roster, err := view.StudentActivity(context.Background())
	require.NoError(t, err)
	require.Len(t, roster, 2)

	assert.True(t, roster[0].HasActiveSession)
	require.NotNil(t, roster[0].ActiveSince)
	assert.True(t, roster[0].ActiveSince.Equal(since))
	assert.InDelta(t, 2.0, roster[0].TotalHours, 1e-9)

	assert.False(t, roster[1].HasActiveSession)
	assert.Nil(t, roster[1].ActiveSince)
	assert.NoError(t, mock.ExpectationsWereMet())
}
