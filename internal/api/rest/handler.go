package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/feral-file/ff-storefront-indexer/internal/adapter"
	"github.com/feral-file/ff-storefront-indexer/internal/api/middleware"
	"github.com/feral-file/ff-storefront-indexer/internal/api/rest/dto"
	"github.com/feral-file/ff-storefront-indexer/internal/discovery"
	"github.com/feral-file/ff-storefront-indexer/internal/domain"
	"github.com/feral-file/ff-storefront-indexer/internal/logger"
	"github.com/feral-file/ff-storefront-indexer/internal/store"
	"github.com/feral-file/ff-storefront-indexer/internal/store/schema"
)

// Handler defines the interface for REST API handlers
type Handler interface {
	// SubmitCandidate accepts a candidate URL from a feed
	// POST /api/v1/candidates
	SubmitCandidate(c *gin.Context)

	// ListCandidates retrieves candidates with optional filters
	// GET /api/v1/candidates?platform_status=<status>&health_status=<status>&primary_category=<category>&is_active=<bool>&limit=<limit>&offset=<offset>
	ListCandidates(c *gin.Context)

	// GetCandidate retrieves a single candidate with its signals and scores
	// GET /api/v1/candidates/:id
	GetCandidate(c *gin.Context)

	// LockTags freezes a candidate's classification (requires authentication)
	// POST /api/v1/candidates/:id/lock
	LockTags(c *gin.Context)

	// UnlockTags releases a tag lock (requires authentication)
	// DELETE /api/v1/candidates/:id/lock
	UnlockTags(c *gin.Context)

	// ResetRetryBudget makes a candidate due again for one phase (requires authentication)
	// POST /api/v1/candidates/:id/retry?phase=<phase>
	ResetRetryBudget(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	store     store.Store
	submitter discovery.Submitter
	clock     adapter.Clock
}

// NewHandler creates a new REST API handler
func NewHandler(st store.Store, submitter discovery.Submitter, clock adapter.Clock) Handler {
	return &handler{
		store:     st,
		submitter: submitter,
		clock:     clock,
	}
}

// SubmitCandidate accepts a candidate URL from a feed
func (h *handler) SubmitCandidate(c *gin.Context) {
	var req dto.SubmitCandidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}

	if err := req.Validate(); err != nil {
		respondValidationError(c, err)
		return
	}

	result, err := h.submitter.Submit(c.Request.Context(), req.URL, req.Source, req.Metadata)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			respondBadRequest(c, "Invalid candidate", err.Error())
			return
		}
		respondInternalError(c, err, "Failed to submit candidate", zap.String("url", req.URL))
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, dto.SubmitCandidateResponse{
		Created:  result.Created,
		RecordID: result.RecordID,
	})
}

// ListCandidates retrieves candidates with optional filters
func (h *handler) ListCandidates(c *gin.Context) {
	queryParams, err := ParseListCandidatesQuery(c)
	if err != nil {
		respondValidationError(c, err)
		return
	}

	if err := queryParams.Validate(); err != nil {
		respondValidationError(c, err)
		return
	}

	candidates, total, err := h.store.ListCandidates(c.Request.Context(), queryParams.Filter())
	if err != nil {
		respondInternalError(c, err, "Failed to list candidates")
		return
	}

	response := dto.ListCandidatesResponse{
		Candidates: make([]dto.CandidateResponse, 0, len(candidates)),
		Total:      total,
		Limit:      queryParams.Limit,
		Offset:     queryParams.Offset,
	}
	for i := range candidates {
		candidate, err := dto.MapCandidateToDTO(&candidates[i])
		if err != nil {
			respondInternalError(c, err, "Failed to list candidates", zap.String("id", candidates[i].ID))
			return
		}
		response.Candidates = append(response.Candidates, *candidate)
	}

	c.JSON(http.StatusOK, response)
}

// GetCandidate retrieves a single candidate with its signals and scores
func (h *handler) GetCandidate(c *gin.Context) {
	id := c.Param("id")

	candidate, err := h.store.GetCandidateByID(c.Request.Context(), id)
	if err != nil {
		respondStoreError(c, err, "Failed to get candidate", zap.String("id", id))
		return
	}

	respondCandidate(c, candidate)
}

// LockTags freezes a candidate's classification to the requested category
func (h *handler) LockTags(c *gin.Context) {
	id := c.Param("id")

	operatorID, ok := middleware.OperatorID(c)
	if !ok {
		respondBadRequest(c, "Operator identity is required")
		return
	}

	var req dto.LockTagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respondValidationError(c, err)
		return
	}

	candidate, err := h.store.LockTags(c.Request.Context(), id, req.Category, operatorID, h.clock.Now().UTC())
	if err != nil {
		respondStoreError(c, err, "Failed to lock tags", zap.String("id", id))
		return
	}

	logger.InfoCtx(c.Request.Context(), "Tags locked",
		zap.String("id", id),
		zap.String("category", req.Category.String()),
		zap.String("operator_id", operatorID),
	)

	respondCandidate(c, candidate)
}

// UnlockTags releases a tag lock so classification can assign categories again
func (h *handler) UnlockTags(c *gin.Context) {
	id := c.Param("id")

	candidate, err := h.store.UnlockTags(c.Request.Context(), id, h.clock.Now().UTC())
	if err != nil {
		respondStoreError(c, err, "Failed to unlock tags", zap.String("id", id))
		return
	}

	operatorID, _ := middleware.OperatorID(c)
	logger.InfoCtx(c.Request.Context(), "Tags unlocked",
		zap.String("id", id),
		zap.String("operator_id", operatorID),
	)

	respondCandidate(c, candidate)
}

// ResetRetryBudget clears a phase's retry count so an exhausted candidate is swept again
func (h *handler) ResetRetryBudget(c *gin.Context) {
	id := c.Param("id")

	phase, err := domain.ParsePhase(c.Query("phase"))
	if err != nil {
		respondValidationError(c, err)
		return
	}

	candidate, err := h.store.ResetRetryBudget(c.Request.Context(), id, phase, h.clock.Now().UTC())
	if err != nil {
		respondStoreError(c, err, "Failed to reset retry budget", zap.String("id", id), zap.String("phase", phase.String()))
		return
	}

	respondCandidate(c, candidate)
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		logger.WarnCtx(c.Request.Context(), "Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unavailable",
			"service": "ff-storefront-indexer-api",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "ff-storefront-indexer-api",
	})
}

// respondCandidate writes a candidate with its decoded evidence
func respondCandidate(c *gin.Context, candidate *schema.Candidate) {
	response, err := dto.MapCandidateToDTO(candidate)
	if err != nil {
		respondInternalError(c, err, "Failed to map candidate", zap.String("id", candidate.ID))
		return
	}
	c.JSON(http.StatusOK, response)
}
