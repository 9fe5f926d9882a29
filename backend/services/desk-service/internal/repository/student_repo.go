package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"cyberdesk/backend/services/desk-service/internal/models"
)

// StudentRepository handles CRUD for the students table.
type StudentRepository struct {
	db *sql.DB
}

// NewStudentRepository returns repository instance.
func NewStudentRepository(db *sql.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// Create inserts a new student.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	student.IDNumber = strings.TrimSpace(student.IDNumber)
	const query = `
		INSERT INTO students (firstname, lastname, idnumber, phonenumber)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		student.FirstName,
		student.LastName,
		student.IDNumber,
		student.PhoneNumber,
	).Scan(&student.ID, &student.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetByIDNumber fetches a student by the external id number.
func (r *StudentRepository) GetByIDNumber(ctx context.Context, idNumber string) (*models.Student, error) {
	const query = `
		SELECT id, firstname, lastname, idnumber, phonenumber, created_at
		FROM students
		WHERE idnumber = $1
	`
	var s models.Student
	err := r.db.QueryRowContext(ctx, query, strings.TrimSpace(idNumber)).
		Scan(&s.ID, &s.FirstName, &s.LastName, &s.IDNumber, &s.PhoneNumber, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// GetByID fetches a student by primary key.
func (r *StudentRepository) GetByID(ctx context.Context, id int64) (*models.Student, error) {
	const query = `
		SELECT id, firstname, lastname, idnumber, phonenumber, created_at
		FROM students
		WHERE id = $1
	`
	var s models.Student
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&s.ID, &s.FirstName, &s.LastName, &s.IDNumber, &s.PhoneNumber, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}
