package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"cyberdesk/backend/services/desk-service/internal/models"
	"cyberdesk/backend/services/desk-service/internal/repository"
)

// memDB is an in-memory stand-in for the repositories. Every method holds the lock for its
// whole body, which gives the same atomicity the SQL transactions give.
type memDB struct {
	mu       sync.Mutex
	nextID   int64
	students []*models.Student
	sessions []*models.UsageSession
	payments []*models.Payment
	writes   int
}

func newMemDB() *memDB {
	return &memDB{}
}

func (db *memDB) id() int64 {
	db.nextID++
	return db.nextID
}

func (db *memDB) addStudent(idNumber, phone string) *models.Student {
	db.mu.Lock()
	defer db.mu.Unlock()
	s := &models.Student{ID: db.id(), FirstName: "Ann", LastName: "Njeri", IDNumber: idNumber, PhoneNumber: phone}
	db.students = append(db.students, s)
	return s
}

func (db *memDB) addSession(s models.UsageSession) *models.UsageSession {
	db.mu.Lock()
	defer db.mu.Unlock()
	s.ID = db.id()
	if s.PaymentStatus == 0 {
		s.PaymentStatus = models.SessionNotRequested
	}
	db.sessions = append(db.sessions, &s)
	return &s
}

func (db *memDB) addPayment(p models.Payment) *models.Payment {
	db.mu.Lock()
	defer db.mu.Unlock()
	p.ID = db.id()
	if p.MpesaStatus == 0 {
		p.MpesaStatus = models.PaymentNotRequested
	}
	db.payments = append(db.payments, &p)
	return &p
}

func (db *memDB) session(id int64) models.UsageSession {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, s := range db.sessions {
		if s.ID == id {
			return *s
		}
	}
	panic("no such session")
}

func (db *memDB) payment(id int64) models.Payment {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, p := range db.payments {
		if p.ID == id {
			return *p
		}
	}
	panic("no such payment")
}

func (db *memDB) writeCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.writes
}

func (db *memDB) openSessions(studentID int64) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for _, s := range db.sessions {
		if s.StudentID == studentID && s.IsOpen() {
			n++
		}
	}
	return n
}

func (db *memDB) studentByIDNumber(idNumber string) *models.Student {
	for _, s := range db.students {
		if s.IDNumber == idNumber {
			return s
		}
	}
	return nil
}

func closeInMemory(s *models.UsageSession, now time.Time, amount decimal.Decimal) {
	end := now
	s.EndTime = &end
	s.IsActive = false
	s.AmountCharged = amount
	s.UpdatedAt = now
}

type memSessions struct{ db *memDB }

func (m memSessions) StartSession(ctx context.Context, idNumber string, now time.Time, bill repository.BillFunc) (*repository.StartResult, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	st := m.db.studentByIDNumber(idNumber)
	if st == nil {
		return nil, repository.ErrNotFound
	}

	var open []*models.UsageSession
	var amounts []decimal.Decimal
	for _, s := range m.db.sessions {
		if s.StudentID == st.ID && s.IsOpen() {
			amount, err := bill(s.StartTime, now)
			if err != nil {
				return nil, err
			}
			open = append(open, s)
			amounts = append(amounts, amount)
		}
	}

	result := &repository.StartResult{}
	for i, s := range open {
		closeInMemory(s, now, amounts[i])
		result.Closed = append(result.Closed, *s)
		m.db.writes++
	}

	session := &models.UsageSession{
		ID:              m.db.id(),
		StudentID:       st.ID,
		StudentIDNumber: st.IDNumber,
		StudentName:     st.FullName(),
		StartTime:       now,
		IsActive:        true,
		PaymentStatus:   models.SessionNotRequested,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	m.db.sessions = append(m.db.sessions, session)
	m.db.writes++
	copied := *session
	result.Session = &copied
	return result, nil
}

func (m memSessions) CloseOpenSession(ctx context.Context, idNumber string, now time.Time, bill repository.BillFunc) (*models.UsageSession, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	st := m.db.studentByIDNumber(idNumber)
	if st == nil {
		return nil, repository.ErrNotFound
	}
	for _, s := range m.db.sessions {
		if s.StudentID == st.ID && s.IsOpen() {
			return m.close(s, now, bill)
		}
	}
	return nil, repository.ErrNoOpenSession
}

func (m memSessions) CloseSessionByID(ctx context.Context, id int64, now time.Time, bill repository.BillFunc) (*models.UsageSession, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	for _, s := range m.db.sessions {
		if s.ID != id {
			continue
		}
		if !s.IsOpen() {
			return nil, repository.ErrNoOpenSession
		}
		return m.close(s, now, bill)
	}
	return nil, repository.ErrNotFound
}

func (m memSessions) close(s *models.UsageSession, now time.Time, bill repository.BillFunc) (*models.UsageSession, error) {
	amount, err := bill(s.StartTime, now)
	if err != nil {
		return nil, err
	}
	closeInMemory(s, now, amount)
	m.db.writes++
	copied := *s
	return &copied, nil
}

func (m memSessions) ListOpen(ctx context.Context, limit int) ([]models.UsageSession, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []models.UsageSession
	for _, s := range m.db.sessions {
		if s.IsOpen() {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m memSessions) GetByID(ctx context.Context, id int64) (*models.UsageSession, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, s := range m.db.sessions {
		if s.ID == id {
			copied := *s
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m memSessions) MarkPushRequested(ctx context.Context, id int64, checkoutRequestID, phone string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, s := range m.db.sessions {
		if s.ID == id {
			s.PaymentStatus = models.SessionPending
			s.CheckoutRequestID = &checkoutRequestID
			s.MpesaPhone = &phone
			m.db.writes++
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m memSessions) UpdateByCheckoutID(ctx context.Context, checkoutRequestID string, mutate func(*models.UsageSession) bool) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, s := range m.db.sessions {
		if s.CheckoutRequestID != nil && *s.CheckoutRequestID == checkoutRequestID {
			copied := *s
			if mutate(&copied) {
				*s = copied
				m.db.writes++
			}
			return true, nil
		}
	}
	return false, nil
}

type memPayments struct{ db *memDB }

func (m memPayments) Create(ctx context.Context, p *models.Payment) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p.ID = m.db.id()
	copied := *p
	m.db.payments = append(m.db.payments, &copied)
	m.db.writes++
	return nil
}

func (m memPayments) GetByID(ctx context.Context, id int64) (*models.Payment, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, p := range m.db.payments {
		if p.ID == id {
			copied := *p
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m memPayments) List(ctx context.Context, limit int) ([]models.Payment, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []models.Payment
	for i := len(m.db.payments) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *m.db.payments[i])
	}
	return out, nil
}

func (m memPayments) ListByStudent(ctx context.Context, idNumber string) ([]models.Payment, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	st := m.db.studentByIDNumber(idNumber)
	var out []models.Payment
	for i := len(m.db.payments) - 1; i >= 0; i-- {
		if st != nil && m.db.payments[i].StudentID == st.ID {
			out = append(out, *m.db.payments[i])
		}
	}
	return out, nil
}

func (m memPayments) MarkPushRequested(ctx context.Context, id int64, checkoutRequestID, phone string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, p := range m.db.payments {
		if p.ID == id {
			p.MpesaStatus = models.PaymentPending
			p.CheckoutRequestID = &checkoutRequestID
			p.MpesaPhone = &phone
			m.db.writes++
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m memPayments) UpdateByCheckoutID(ctx context.Context, checkoutRequestID string, mutate func(*models.Payment) bool) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, p := range m.db.payments {
		if p.CheckoutRequestID != nil && *p.CheckoutRequestID == checkoutRequestID {
			copied := *p
			if mutate(&copied) {
				*p = copied
				m.db.writes++
			}
			return true, nil
		}
	}
	return false, nil
}

type memStudents struct{ db *memDB }

func (m memStudents) Create(ctx context.Context, student *models.Student) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if m.db.studentByIDNumber(student.IDNumber) != nil {
		return repository.ErrDuplicate
	}
	student.ID = m.db.id()
	copied := *student
	m.db.students = append(m.db.students, &copied)
	m.db.writes++
	return nil
}

func (m memStudents) GetByIDNumber(ctx context.Context, idNumber string) (*models.Student, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if st := m.db.studentByIDNumber(idNumber); st != nil {
		copied := *st
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (m memStudents) GetByID(ctx context.Context, id int64) (*models.Student, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, st := range m.db.students {
		if st.ID == id {
			copied := *st
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

// memMarker is an in-memory callback marker and push limiter.
type memMarker struct {
	mu        sync.Mutex
	processed map[string]bool
	pushes    map[string]bool
}

func newMemMarker() *memMarker {
	return &memMarker{processed: map[string]bool{}, pushes: map[string]bool{}}
}

func markerKey(id string, code int) string {
	return id + "/" + strconv.Itoa(code)
}

func (m *memMarker) Processed(ctx context.Context, checkoutRequestID string, resultCode int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processed[markerKey(checkoutRequestID, resultCode)], nil
}

func (m *memMarker) MarkProcessed(ctx context.Context, checkoutRequestID string, resultCode int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed[markerKey(checkoutRequestID, resultCode)] = true
	return nil
}

func (m *memMarker) AcquirePush(ctx context.Context, kind string, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := markerKey(kind, int(id))
	if m.pushes[key] {
		return false, nil
	}
	m.pushes[key] = true
	return true, nil
}

func (m *memMarker) ReleasePush(ctx context.Context, kind string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pushes, markerKey(kind, int(id)))
	return nil
}

func strPtr(s string) *string {
	return &s
}
