package api

import (
	"errors"
	"net/http"

	"backoffice-service/internal/models"
	"backoffice-service/internal/osimport"
	"backoffice-service/internal/service"
	"backoffice-service/internal/store"
	"backoffice-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError maps domain errors onto status codes
func respondError(c *gin.Context, err error, message string) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":    message,
			"errors":   verr.Validation.Errors,
			"warnings": verr.Validation.Warnings,
		})
		return
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		util.FromContext(c.Request.Context()).Error(message, zap.Error(err))
	}

	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}

func statusFor(err error) int {
	var rerr *service.RequestError
	switch {
	case errors.As(err, &rerr),
		errors.Is(err, osimport.ErrEmptyInput),
		errors.Is(err, service.ErrNegativeQuantity):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrSessionNotFound),
		errors.Is(err, models.ErrProductNotFound),
		errors.Is(err, store.ErrServiceOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrNotDraft),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrEmptySession),
		errors.Is(err, service.ErrLocked),
		errors.Is(err, service.ErrUnsavedEdits),
		errors.Is(err, service.ErrImportInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
