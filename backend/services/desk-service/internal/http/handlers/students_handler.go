package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"cyberdesk/backend/services/desk-service/internal/models"
	"cyberdesk/backend/services/desk-service/internal/service"
)

// Dashboard computes read models.
type Dashboard interface {
	Snapshot(ctx context.Context) (*models.DashboardStats, error)
	Roster(ctx context.Context) ([]models.StudentActivity, error)
}

// StudentsHandler serves student endpoints.
type StudentsHandler struct {
	records   Records
	dashboard Dashboard
	logger    *zap.Logger
}

// NewStudentsHandler builds handler set.
func NewStudentsHandler(records Records, dashboard Dashboard, logger *zap.Logger) *StudentsHandler {
	return &StudentsHandler{records: records, dashboard: dashboard, logger: logger}
}

type createStudentRequest struct {
	FirstName   string `json:"firstname" validate:"required,max=20"`
	LastName    string `json:"lastname" validate:"required,max=20"`
	IDNumber    string `json:"idnumber" validate:"required,max=20"`
	PhoneNumber string `json:"phonenumber" validate:"required,max=15"`
}

// List handles GET /students.
func (h *StudentsHandler) List(w http.ResponseWriter, r *http.Request) {
	roster, err := h.dashboard.Roster(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if roster == nil {
		roster = []models.StudentActivity{}
	}
	writeJSON(w, http.StatusOK, roster)
}

// Create handles POST /students.
func (h *StudentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createStudentRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	student, err := h.records.CreateStudent(r.Context(), service.CreateStudentInput{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		IDNumber:    req.IDNumber,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, student)
}

// Get handles GET /students/{idnumber}.
func (h *StudentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.records.GetStudent(r.Context(), chi.URLParam(r, "idnumber"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// Payments handles GET /students/{idnumber}/payments.
func (h *StudentsHandler) Payments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.records.StudentPayments(r.Context(), chi.URLParam(r, "idnumber"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if payments == nil {
		payments = []models.Payment{}
	}
	writeJSON(w, http.StatusOK, payments)
}

// NewDashboardHandler handles GET /dashboard.
func NewDashboardHandler(dashboard Dashboard, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := dashboard.Snapshot(r.Context())
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
