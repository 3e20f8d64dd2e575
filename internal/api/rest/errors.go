package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apierrors "github.com/feral-file/ff-storefront-indexer/internal/api/shared/errors"
	"github.com/feral-file/ff-storefront-indexer/internal/domain"
	"github.com/feral-file/ff-storefront-indexer/internal/logger"
)

// respondBadRequest responds with a bad request error
func respondBadRequest(c *gin.Context, message string, details ...string) {
	c.JSON(http.StatusBadRequest, apierrors.NewBadRequestError(message, details...))
}

// respondNotFound responds with a not found error
func respondNotFound(c *gin.Context, message string, details ...string) {
	c.JSON(http.StatusNotFound, apierrors.NewNotFoundError(message, details...))
}

// respondValidationError responds with a validation error
func respondValidationError(c *gin.Context, err error) {
	var apiErr *apierrors.APIError
	if errors.As(err, &apiErr) {
		c.JSON(http.StatusBadRequest, apiErr)
		return
	}
	c.JSON(http.StatusBadRequest, apierrors.NewValidationError(err.Error()))
}

// respondInternalError logs the error and responds with an internal server error
func respondInternalError(c *gin.Context, err error, message string, fields ...zap.Field) {
	logger.ErrorCtx(c.Request.Context(), err, fields...)
	c.JSON(http.StatusInternalServerError, apierrors.NewInternalError(message))
}

// respondStoreError maps domain errors from the store to HTTP responses
func respondStoreError(c *gin.Context, err error, message string, fields ...zap.Field) {
	switch {
	case errors.Is(err, domain.ErrRecordNotFound):
		respondNotFound(c, "Candidate not found")
	case errors.Is(err, domain.ErrInvalidInput):
		respondBadRequest(c, message, err.Error())
	default:
		respondInternalError(c, err, message, fields...)
	}
}
