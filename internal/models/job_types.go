package models

import (
	"time"
)

// Job is the model for the 'jobs' table.
type Job struct {
	ID           int64   `json:"id" db:"id"`
	EmployerID   int64   `json:"employerId" db:"employer_id"`
	Title        string  `json:"title" db:"title"`
	Slug         string  `json:"slug" db:"slug"`
	Company      string  `json:"company" db:"company"`
	Location     string  `json:"location" db:"location"`
	Description  string  `json:"description" db:"description"`
	Requirements *string `json:"requirements,omitempty" db:"requirements"`
	JobType      string  `json:"jobType" db:"job_type"`

	// --- Salary (BSD per year) ---
	SalaryMin *int64 `json:"salaryMin,omitempty" db:"salary_min"`
	SalaryMax *int64 `json:"salaryMax,omitempty" db:"salary_max"`

	IsActive  bool      `json:"isActive" db:"is_active"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// JobTypes lists the accepted values for Job.JobType.
var JobTypes = []string{"full-time", "part-time", "contract", "temporary", "internship"}
