package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"cyberdesk/backend/services/desk-service/internal/http/handlers"
	"cyberdesk/backend/services/desk-service/internal/http/middleware"
)

// Routes groups handlers.
type Routes struct {
	Health        http.HandlerFunc
	Login         http.HandlerFunc
	MpesaCallback http.HandlerFunc
	Dashboard     http.HandlerFunc

	Students *handlers.StudentsHandler
	Sessions *handlers.SessionsHandler
	Payments *handlers.PaymentsHandler
}

// NewRouter registers endpoints. Everything except health, login and the payment network
// callback requires an operator token.
func NewRouter(routes Routes, authMiddleware func(http.Handler) http.Handler, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.AccessLog(logger))
	r.Use(chimw.Recoverer)

	r.Get("/health", routes.Health)
	r.Post("/auth/login", routes.Login)
	r.Post("/mpesa/callback", routes.MpesaCallback)
	r.Post("/mpesa/callback/", routes.MpesaCallback)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)

		r.Get("/dashboard", routes.Dashboard)

		r.Route("/students", func(r chi.Router) {
			r.Get("/", routes.Students.List)
			r.Post("/", routes.Students.Create)
			r.Route("/{idnumber}", func(r chi.Router) {
				r.Get("/", routes.Students.Get)
				r.Get("/payments", routes.Students.Payments)
				r.Post("/sessions/start", routes.Sessions.Start)
				r.Post("/sessions/end", routes.Sessions.End)
			})
		})

		r.Get("/sessions/active", routes.Sessions.Active)
		r.Post("/sessions/{id}/end", routes.Sessions.EndByID)
		r.Post("/sessions/{id}/stk", routes.Sessions.Push)

		r.Get("/payments", routes.Payments.List)
		r.Post("/payments", routes.Payments.Create)
		r.Post("/payments/{id}/stk", routes.Payments.Push)
	})

	return r
}
