package models

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User types accepted at registration.
const (
	UserTypeJobSeeker = "job_seeker"
	UserTypeEmployer  = "employer"
	UserTypeRecruiter = "recruiter"
)

// User is the model for the 'users' table.
// Nullable profile fields are pointers so they drop out of JSON cleanly.
type User struct {
	ID           int64  `json:"id" db:"id"`
	Email        string `json:"email" db:"email"`
	PasswordHash string `json:"-" db:"password_hash"`
	FirstName    string `json:"firstName" db:"first_name"`
	LastName     string `json:"lastName" db:"last_name"`
	UserType     string `json:"userType" db:"user_type"`

	Location *string `json:"location,omitempty" db:"location"`
	Phone    *string `json:"phone,omitempty" db:"phone"`

	IsActive           bool `json:"isActive" db:"is_active"`
	IsAvailableForHire bool `json:"isAvailableForHire" db:"is_available_for_hire"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// ValidUserType reports whether t can be chosen at registration.
func ValidUserType(t string) bool {
	switch t {
	case UserTypeJobSeeker, UserTypeEmployer, UserTypeRecruiter:
		return true
	}
	return false
}

// Password Helper (Standard)
type Password struct {
	Plaintext *string
	Hash      string
}

func (p *Password) Set(plaintextPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintextPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	p.Hash = string(hash)
	p.Plaintext = &plaintextPassword
	return nil
}

func (p *Password) Matches(plaintextPassword string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(p.Hash), []byte(plaintextPassword))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
