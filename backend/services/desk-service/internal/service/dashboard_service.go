package service

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"cyberdesk/backend/services/desk-service/internal/clock"
	"cyberdesk/backend/services/desk-service/internal/models"
)

// DashboardReader runs the aggregate queries.
type DashboardReader interface {
	CountOpenSessions(ctx context.Context) (int, error)
	CountSessionsStarted(ctx context.Context, from, to time.Time) (int, error)
	AverageRecentDuration(ctx context.Context, limit int) (time.Duration, error)
	SumPaymentsOn(ctx context.Context, day time.Time) (decimal.Decimal, error)
	SumOutstandingBalances(ctx context.Context) (decimal.Decimal, error)
	StudentActivity(ctx context.Context) ([]models.StudentActivity, error)
}

// PaymentLister returns the newest payments.
type PaymentLister interface {
	List(ctx context.Context, limit int) ([]models.Payment, error)
}

// DashboardOptions sizes the dashboard.
type DashboardOptions struct {
	TotalMachines  int
	RecentSessions int
	RecentPayments int
	Location       *time.Location
}

// DashboardService computes read-only statistics. Nothing is cached.
type DashboardService struct {
	view     DashboardReader
	payments PaymentLister
	clock    clock.Clock
	opts     DashboardOptions
}

// NewDashboardService builds DashboardService.
func NewDashboardService(view DashboardReader, payments PaymentLister, clk clock.Clock, opts DashboardOptions) *DashboardService {
	if opts.RecentSessions <= 0 {
		opts.RecentSessions = 10
	}
	if opts.RecentPayments <= 0 {
		opts.RecentPayments = 5
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &DashboardService{view: view, payments: payments, clock: clk, opts: opts}
}

// Snapshot recomputes every dashboard figure.
func (d *DashboardService) Snapshot(ctx context.Context) (*models.DashboardStats, error) {
	now := d.clock.Now().In(d.opts.Location)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, d.opts.Location)
	dayEnd := dayStart.AddDate(0, 0, 1)

	active, err := d.view.CountOpenSessions(ctx)
	if err != nil {
		return nil, err
	}
	today, err := d.view.CountSessionsStarted(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	avg, err := d.view.AverageRecentDuration(ctx, d.opts.RecentSessions)
	if err != nil {
		return nil, err
	}
	revenue, err := d.view.SumPaymentsOn(ctx, dayStart)
	if err != nil {
		return nil, err
	}
	outstanding, err := d.view.SumOutstandingBalances(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := d.payments.List(ctx, d.opts.RecentPayments)
	if err != nil {
		return nil, err
	}
	if recent == nil {
		recent = []models.Payment{}
	}

	return &models.DashboardStats{
		ActiveSessions:        active,
		TotalMachines:         d.opts.TotalMachines,
		UtilizationPercent:    Utilization(active, d.opts.TotalMachines),
		SessionsToday:         today,
		AverageSessionSeconds: int64(avg / time.Second),
		AverageSession:        FormatDuration(avg),
		RevenueToday:          revenue,
		OutstandingBalances:   outstanding,
		RecentPayments:        recent,
		GeneratedAt:           now,
	}, nil
}

// Roster lists every student with derived session facts.
func (d *DashboardService) Roster(ctx context.Context) ([]models.StudentActivity, error) {
	roster, err := d.view.StudentActivity(ctx)
	if err != nil {
		return nil, err
	}
	for i := range roster {
		roster[i].TotalHours = math.Round(roster[i].TotalHours*10) / 10
	}
	return roster, nil
}

// Utilization is active as a percentage of capacity, capped at 100. Zero capacity gives 0.
func Utilization(active, capacity int) float64 {
	if capacity <= 0 || active <= 0 {
		return 0
	}
	pct := float64(active) * 100 / float64(capacity)
	if pct > 100 {
		return 100
	}
	return math.Round(pct*100) / 100
}
