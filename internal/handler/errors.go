package handler

import (
	"errors"
	"net/http"

	"erpcore/internal/backup"
	"erpcore/internal/middleware"
	"erpcore/internal/repository"
	"erpcore/internal/service"
	"erpcore/internal/storage"
	"erpcore/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var partial *backup.PartialRestoreError
	var table *backup.TableError
	switch {
	case errors.As(err, &partial), errors.As(err, &table):
		return http.StatusInternalServerError
	case errors.Is(err, backup.ErrMissingTenant),
		errors.Is(err, backup.ErrInvalidFilename),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrReservedRoleName):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredential),
		errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrSystemRole),
		errors.Is(err, service.ErrInactiveUser):
		return http.StatusForbidden
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, storage.ErrObjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, backup.ErrTenantMismatch),
		errors.Is(err, backup.ErrOperationInProgress),
		errors.Is(err, repository.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, backup.ErrCorruptArchive):
		return http.StatusUnprocessableEntity
	case errors.Is(err, backup.ErrStorageDisabled):
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

// writeError responds with the status of err. Server errors are logged and their
// details withheld. Partial restores also report which tables were applied.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)

	var partial *backup.PartialRestoreError
	if errors.As(err, &partial) {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("restore partially applied")
		c.AbortWithStatusJSON(status, response.ErrorWithData(status, "Restore did not complete", gin.H{
			"failed":    partial.Failed,
			"completed": partial.Completed,
		}))
		return
	}

	msg := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusNotImplemented {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("request failed")
		msg = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, response.Error(status, msg))
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
}

// tenant returns the company of the authenticated session.
func tenant(c *gin.Context) (uuid.UUID, bool) {
	s, ok := middleware.CurrentSession(c)
	if !ok || s.CompanyID == uuid.Nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
		return uuid.Nil, false
	}
	return s.CompanyID, true
}
