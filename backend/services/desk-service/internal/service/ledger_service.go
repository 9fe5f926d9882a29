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

// SessionStore is the persistence contract of the ledger. Each method is one atomic unit.
type SessionStore interface {
	StartSession(ctx context.Context, idNumber string, now time.Time, bill repository.BillFunc) (*repository.StartResult, error)
	CloseOpenSession(ctx context.Context, idNumber string, now time.Time, bill repository.BillFunc) (*models.UsageSession, error)
	CloseSessionByID(ctx context.Context, id int64, now time.Time, bill repository.BillFunc) (*models.UsageSession, error)
	ListOpen(ctx context.Context, limit int) ([]models.UsageSession, error)
}

// LedgerService opens and closes usage sessions.
type LedgerService struct {
	sessions SessionStore
	clock    clock.Clock
	rate     decimal.Decimal
	logger   *zap.Logger
}

// NewLedgerService builds LedgerService.
func NewLedgerService(sessions SessionStore, clk clock.Clock, hourlyRate decimal.Decimal, logger *zap.Logger) *LedgerService {
	return &LedgerService{
		sessions: sessions,
		clock:    clk,
		rate:     hourlyRate,
		logger:   logger,
	}
}

// StartSession opens a session for the student, closing any session left open before.
func (s *LedgerService) StartSession(ctx context.Context, idNumber string) (*models.UsageSession, error) {
	idNumber = strings.TrimSpace(idNumber)
	if idNumber == "" {
		return nil, fmt.Errorf("%w: student id number required", ErrInvalidInput)
	}

	now := s.clock.Now().UTC()
	result, err := s.sessions.StartSession(ctx, idNumber, now, s.billOrphan)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: student %s", ErrNotFound, idNumber)
		}
		return nil, err
	}

	for _, closed := range result.Closed {
		s.logger.Warn("closed orphan session",
			zap.Int64("session_id", closed.ID),
			zap.String("idnumber", idNumber),
			zap.Time("start_time", closed.StartTime),
			zap.String("amount_charged", closed.AmountCharged.StringFixed(2)),
		)
	}
	s.logger.Info("session started",
		zap.Int64("session_id", result.Session.ID),
		zap.String("idnumber", idNumber),
	)
	return result.Session, nil
}

// EndSession closes the open session of the student and charges it.
func (s *LedgerService) EndSession(ctx context.Context, idNumber string) (*models.UsageSession, error) {
	idNumber = strings.TrimSpace(idNumber)
	if idNumber == "" {
		return nil, fmt.Errorf("%w: student id number required", ErrInvalidInput)
	}

	session, err := s.sessions.CloseOpenSession(ctx, idNumber, s.clock.Now().UTC(), s.bill)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%w: student %s", ErrNotFound, idNumber)
		case errors.Is(err, repository.ErrNoOpenSession):
			return nil, fmt.Errorf("%w: student %s has no open session", ErrInvalidState, idNumber)
		}
		return nil, err
	}
	s.logEnded(session)
	return session, nil
}

// EndSessionByID closes the session with the given id and charges it.
func (s *LedgerService) EndSessionByID(ctx context.Context, sessionID int64) (*models.UsageSession, error) {
	session, err := s.sessions.CloseSessionByID(ctx, sessionID, s.clock.Now().UTC(), s.bill)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%w: session %d", ErrNotFound, sessionID)
		case errors.Is(err, repository.ErrNoOpenSession):
			return nil, fmt.Errorf("%w: session %d already ended", ErrInvalidState, sessionID)
		}
		return nil, err
	}
	s.logEnded(session)
	return session, nil
}

// Duration is the elapsed time of session as HH:MM:SS. Open sessions are measured up to at.
func (s *LedgerService) Duration(session *models.UsageSession, at time.Time) string {
	end := at
	if session.EndTime != nil {
		end = *session.EndTime
	}
	return FormatDuration(end.Sub(session.StartTime))
}

// ActiveSessions lists open sessions with their elapsed time and amount so far.
func (s *LedgerService) ActiveSessions(ctx context.Context) ([]models.ActiveSessionView, error) {
	open, err := s.sessions.ListOpen(ctx, 0)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	views := make([]models.ActiveSessionView, 0, len(open))
	for i := range open {
		amount, err := BillableAmount(open[i].StartTime, now, s.rate)
		if err != nil {
			amount = decimal.Zero
		}
		views = append(views, models.ActiveSessionView{
			Session:       open[i],
			Elapsed:       s.Duration(&open[i], now),
			RunningAmount: amount,
		})
	}
	return views, nil
}

func (s *LedgerService) bill(start, end time.Time) (decimal.Decimal, error) {
	return BillableAmount(start, end, s.rate)
}

// billOrphan never fails: a session whose start lies in the future is closed at zero.
func (s *LedgerService) billOrphan(start, end time.Time) (decimal.Decimal, error) {
	amount, err := BillableAmount(start, end, s.rate)
	if err != nil {
		s.logger.Warn("orphan session has negative duration", zap.Time("start_time", start), zap.Error(err))
		return decimal.Zero, nil
	}
	return amount, nil
}

func (s *LedgerService) logEnded(session *models.UsageSession) {
	s.logger.Info("session ended",
		zap.Int64("session_id", session.ID),
		zap.String("idnumber", session.StudentIDNumber),
		zap.String("amount_charged", session.AmountCharged.StringFixed(2)),
	)
}
