package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"cyberdesk/backend/services/desk-service/internal/models"
)

// DashboardView provides the aggregate queries behind the dashboard.
type DashboardView struct {
	db *sql.DB
}

// NewDashboardView returns view accessor.
func NewDashboardView(db *sql.DB) *DashboardView {
	return &DashboardView{db: db}
}

// CountOpenSessions returns the number of running sessions.
func (v *DashboardView) CountOpenSessions(ctx context.Context) (int, error) {
	var n int
	err := v.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM usage_sessions
		WHERE is_active AND end_time IS NULL
	`).Scan(&n)
	return n, err
}

// CountSessionsStarted returns sessions whose start falls in [from, to).
func (v *DashboardView) CountSessionsStarted(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := v.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM usage_sessions
		WHERE start_time >= $1 AND start_time < $2
	`, from, to).Scan(&n)
	return n, err
}

// AverageRecentDuration averages the duration of the last limit completed sessions.
func (v *DashboardView) AverageRecentDuration(ctx context.Context, limit int) (time.Duration, error) {
	var seconds float64
	err := v.db.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (recent.end_time - recent.start_time))), 0)::float8
		FROM (
			SELECT start_time, end_time
			FROM usage_sessions
			WHERE end_time IS NOT NULL
			ORDER BY end_time DESC
			LIMIT $1
		) recent
	`, limit).Scan(&seconds)
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// SumPaymentsOn totals payment amounts dated day (a calendar date, time part ignored).
func (v *DashboardView) SumPaymentsOn(ctx context.Context, day time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := v.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM payments
		WHERE date = $1::date
	`, day.Format("2006-01-02")).Scan(&total)
	return total, err
}

// SumOutstandingBalances totals all positive balances.
func (v *DashboardView) SumOutstandingBalances(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := v.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(balance), 0)
		FROM payments
		WHERE balance > 0
	`).Scan(&total)
	return total, err
}

// StudentActivity builds the roster read-model in one query.
func (v *DashboardView) StudentActivity(ctx context.Context) ([]models.StudentActivity, error) {
	rows, err := v.db.QueryContext(ctx, `
		SELECT st.id, st.firstname, st.lastname, st.idnumber, st.phonenumber, st.created_at,
		       open.start_time,
		       COALESCE(SUM(EXTRACT(EPOCH FROM (done.end_time - done.start_time))), 0)::float8
		FROM students st
		LEFT JOIN usage_sessions open
		       ON open.student_id = st.id AND open.is_active AND open.end_time IS NULL
		LEFT JOIN usage_sessions done
		       ON done.student_id = st.id AND done.end_time IS NOT NULL
		GROUP BY st.id, open.start_time
		ORDER BY st.lastname, st.firstname
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.StudentActivity
	for rows.Next() {
		var (
			a       models.StudentActivity
			since   sql.NullTime
			seconds float64
		)
		if err := rows.Scan(
			&a.Student.ID,
			&a.Student.FirstName,
			&a.Student.LastName,
			&a.Student.IDNumber,
			&a.Student.PhoneNumber,
			&a.Student.CreatedAt,
			&since,
			&seconds,
		); err != nil {
			return nil, err
		}
		if since.Valid {
			t := since.Time
			a.ActiveSince = &t
			a.HasActiveSession = true
		}
		a.TotalHours = seconds / 3600
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
