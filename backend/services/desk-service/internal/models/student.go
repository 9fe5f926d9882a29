package models

import (
	"strings"
	"time"
)

// Student is a café customer, addressed externally by IDNumber.
type Student struct {
	ID          int64     `db:"id" json:"id"`
	FirstName   string    `db:"firstname" json:"firstname"`
	LastName    string    `db:"lastname" json:"lastname"`
	IDNumber    string    `db:"idnumber" json:"idnumber"`
	PhoneNumber string    `db:"phonenumber" json:"phonenumber"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// FullName joins first and last name.
func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}
