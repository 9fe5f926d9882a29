package service

import "errors"

var (
	// ErrNotFound is returned when a referenced student, session or payment does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState is returned when the record is not in a state that allows the operation.
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidInput is returned for malformed arguments.
	ErrInvalidInput = errors.New("invalid input")
	// ErrGateway is returned when the payment network refused or failed a request.
	ErrGateway = errors.New("payment gateway error")
	// ErrParse is returned for callback bodies that are not valid JSON.
	ErrParse = errors.New("malformed callback")
	// ErrConflict is returned when a unique record already exists.
	ErrConflict = errors.New("conflict")
	// ErrInvalidCredentials represents login failure.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)
