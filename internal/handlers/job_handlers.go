package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/hiremebahamas/hirebahamas-api/internal/middleware"
	"github.com/hiremebahamas/hirebahamas-api/internal/models"
)

// CreateJobInput is the body of POST /api/jobs.
type CreateJobInput struct {
	Title        string  `json:"title" binding:"required"`
	Company      string  `json:"company" binding:"required"`
	Location     string  `json:"location" binding:"required"`
	Description  string  `json:"description" binding:"required"`
	Requirements *string `json:"requirements"`
	JobType      string  `json:"jobType"`
	SalaryMin    *int64  `json:"salaryMin" binding:"omitempty,min=0"`
	SalaryMax    *int64  `json:"salaryMax" binding:"omitempty,min=0"`
}

const jobColumns = `id, employer_id, title, slug, company, location, description, requirements,
	job_type, salary_min, salary_max, is_active, created_at`

// ListJobs is the handler for GET /api/jobs.
// Optional filters: ?q= (title/company), ?location=, ?type=, ?limit=, ?offset=.
func (h *Handlers) ListJobs(c *gin.Context) {
	// 1. --- Parse Filters ---
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be zero or more"})
		return
	}

	where := []string{"is_active = ?"}
	args := []any{true}
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		where = append(where, "(LOWER(title) LIKE ? OR LOWER(company) LIKE ?)")
		like := "%" + strings.ToLower(q) + "%"
		args = append(args, like, like)
	}
	if loc := strings.TrimSpace(c.Query("location")); loc != "" {
		where = append(where, "LOWER(location) LIKE ?")
		args = append(args, "%"+strings.ToLower(loc)+"%")
	}
	if jobType := c.Query("type"); jobType != "" {
		where = append(where, "job_type = ?")
		args = append(args, jobType)
	}
	args = append(args, limit, offset)

	// 2. --- Query Database ---
	s := middleware.Session(c)
	query := s.Rebind(`SELECT ` + jobColumns + ` FROM jobs WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`)

	jobs := []models.Job{}
	if err := s.SelectContext(c.Request.Context(), &jobs, query, args...); err != nil {
		h.Log.Error().Err(err).Msg("failed to list jobs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database query failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":   jobs,
		"limit":  limit,
		"offset": offset,
	})
}

// GetJob is the handler for GET /api/jobs/:slug.
func (h *Handlers) GetJob(c *gin.Context) {
	s := middleware.Session(c)

	var job models.Job
	query := s.Rebind(`SELECT ` + jobColumns + ` FROM jobs WHERE slug = ? AND is_active = ?`)
	err := s.GetContext(c.Request.Context(), &job, query, c.Param("slug"), true)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	if err != nil {
		h.Log.Error().Err(err).Str("slug", c.Param("slug")).Msg("failed to load job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database query failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"job": job})
}

// CreateJob is the handler for POST /api/jobs. Employers and recruiters
// only; runs on a write session.
func (h *Handlers) CreateJob(c *gin.Context) {
	// 1. --- Bind & Validate JSON ---
	var input CreateJobInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if input.JobType == "" {
		input.JobType = models.JobTypes[0]
	}
	if !slices.Contains(models.JobTypes, input.JobType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "jobType must be one of " + strings.Join(models.JobTypes, ", ")})
		return
	}
	if input.SalaryMin != nil && input.SalaryMax != nil && *input.SalaryMin > *input.SalaryMax {
		c.JSON(http.StatusBadRequest, gin.H{"error": "salaryMin cannot exceed salaryMax"})
		return
	}

	// 2. --- Build Model ---
	// The slug carries a short random suffix so two "Bartender" posts don't collide.
	job := &models.Job{
		EmployerID:   c.GetInt64("userID"),
		Title:        strings.TrimSpace(input.Title),
		Company:      strings.TrimSpace(input.Company),
		Location:     strings.TrimSpace(input.Location),
		Description:  input.Description,
		Requirements: input.Requirements,
		JobType:      input.JobType,
		SalaryMin:    input.SalaryMin,
		SalaryMax:    input.SalaryMax,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	job.Slug = slug.Make(job.Title) + "-" + uuid.New().String()[:8]

	// 3. --- Save to Database ---
	ctx := c.Request.Context()
	s := middleware.Session(c)
	id, err := s.InsertID(ctx, `
		INSERT INTO jobs (employer_id, title, slug, company, location, description, requirements,
			job_type, salary_min, salary_max, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.EmployerID, job.Title, job.Slug, job.Company, job.Location, job.Description, job.Requirements,
		job.JobType, job.SalaryMin, job.SalaryMax, job.IsActive, job.CreatedAt)
	if err != nil {
		h.Log.Error().Err(err).Msg("failed to insert job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create job"})
		return
	}
	job.ID = id

	if err := s.Commit(); err != nil {
		h.Log.Error().Err(err).Msg("failed to commit job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create job"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"job": job})
}
