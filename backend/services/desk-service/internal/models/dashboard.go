package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DashboardStats is a point-in-time snapshot of the café.
type DashboardStats struct {
	ActiveSessions        int             `json:"active_sessions"`
	TotalMachines         int             `json:"total_machines"`
	UtilizationPercent    float64         `json:"utilization_percent"`
	SessionsToday         int             `json:"sessions_today"`
	AverageSessionSeconds int64           `json:"average_session_seconds"`
	AverageSession        string          `json:"average_session"`
	RevenueToday          decimal.Decimal `json:"revenue_today"`
	OutstandingBalances   decimal.Decimal `json:"outstanding_balances"`
	RecentPayments        []Payment       `json:"recent_payments"`
	GeneratedAt           time.Time       `json:"generated_at"`
}

// StudentActivity is the roster read-model: a student plus derived session facts.
type StudentActivity struct {
	Student          Student    `json:"student"`
	HasActiveSession bool       `json:"has_active_session"`
	ActiveSince      *time.Time `json:"active_since"`
	TotalHours       float64    `json:"total_hours"`
}

// ActiveSessionView is an open session with its elapsed time and running amount.
type ActiveSessionView struct {
	Session       UsageSession    `json:"session"`
	Elapsed       string          `json:"elapsed"`
	RunningAmount decimal.Decimal `json:"running_amount"`
}
