package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"erpcore/internal/backup"
	"erpcore/internal/middleware"
	"erpcore/internal/model"
	"erpcore/internal/permission"
	"erpcore/internal/service"
	"erpcore/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BackupService is the part of backup.Service the HTTP API uses.
type BackupService interface {
	CreateBackup(ctx context.Context, tenantID uuid.UUID) (*backup.Result, error)
	Restore(ctx context.Context, data []byte, tenantID uuid.UUID) error
	RestoreFromStorage(ctx context.Context, filename string, tenantID uuid.UUID) error
	List(ctx context.Context, tenantID uuid.UUID) ([]backup.StoredBackup, error)
	Download(ctx context.Context, tenantID uuid.UUID, filename string) ([]byte, error)
	Delete(ctx context.Context, tenantID uuid.UUID, filename string) error
}

var _ BackupService = (*backup.Service)(nil)

type BackupHandler struct {
	backups BackupService
	audit   service.AuditService
}

func NewBackupHandler(backups BackupService, audit service.AuditService) *BackupHandler {
	return &BackupHandler{backups: backups, audit: audit}
}

func (h *BackupHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/backups")
	{
		group.POST("", middleware.RequirePermission(permission.BackupsCreate), h.CreateBackup)
		group.GET("", middleware.RequirePermission(permission.BackupsCreate), h.ListBackups)
		group.GET("/:filename", middleware.RequirePermission(permission.BackupsCreate), h.DownloadBackup)
		group.DELETE("/:filename", middleware.RequirePermission(permission.BackupsCreate), h.DeleteBackup)
		group.POST("/restore", middleware.RequirePermission(permission.BackupsRestore), h.RestoreUpload)
		group.POST("/:filename/restore", middleware.RequirePermission(permission.BackupsRestore), h.RestoreStored)
	}
}

// CreateBackup exports the company's data. Without object storage the archive is
// returned as an attachment, otherwise its metadata is
// @Summary      Create backup
// @Tags         backups
// @Security     BearerAuth
// @Produce      application/zip,application/zstd,json
// @Success      200  {file}    binary
// @Success      201  {object}  response.Response{data=backup.Result}
// @Failure      409  {object}  response.Response
// @Router       /api/backups [post]
func (h *BackupHandler) CreateBackup(c *gin.Context) {
	companyID, ok := tenant(c)
	if !ok {
		return
	}

	res, err := h.backups.CreateBackup(c.Request.Context(), companyID)
	if err != nil {
		writeError(c, err)
		return
	}
	h.record(c, companyID, model.ActionCreateBackup, res.Filename, map[string]any{"size": res.Size, "counts": res.Counts})

	if res.Path != "" {
		c.JSON(http.StatusCreated, response.Success(http.StatusCreated, res))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	c.Data(http.StatusOK, res.ContentType, res.Data)
}

// ListBackups returns the stored archives of the company, newest first
// @Summary      List backups
// @Tags         backups
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]backup.StoredBackup}
// @Failure      501  {object}  response.Response
// @Router       /api/backups [get]
func (h *BackupHandler) ListBackups(c *gin.Context) {
	companyID, ok := tenant(c)
	if !ok {
		return
	}
	list, err := h.backups.List(c.Request.Context(), companyID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, list))
}

// DownloadBackup streams a stored archive
// @Summary      Download backup
// @Tags         backups
// @Security     BearerAuth
// @Produce      application/octet-stream
// @Param        filename  path  string  true  "Archive filename"
// @Success      200  {file}    binary
// @Failure      404  {object}  response.Response
// @Router       /api/backups/{filename} [get]
func (h *BackupHandler) DownloadBackup(c *gin.Context) {
	companyID, ok := tenant(c)
	if !ok {
		return
	}
	filename := c.Param("filename")
	data, err := h.backups.Download(c.Request.Context(), companyID, filename)
	if err != nil {
		writeError(c, err)
		return
	}
	contentType := backup.FormatZip.ContentType()
	if f, err := backup.FormatOf(filename); err == nil {
		contentType = f.ContentType()
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, data)
}

// DeleteBackup removes a stored archive
// @Summary      Delete backup
// @Tags         backups
// @Security     BearerAuth
// @Produce      json
// @Param        filename  path  string  true  "Archive filename"
// @Success      200  {object}  response.Response
// @Router       /api/backups/{filename} [delete]
func (h *BackupHandler) DeleteBackup(c *gin.Context) {
	companyID, ok := tenant(c)
	if !ok {
		return
	}
	filename := c.Param("filename")
	if err := h.backups.Delete(c.Request.Context(), companyID, filename); err != nil {
		writeError(c, err)
		return
	}
	h.record(c, companyID, model.ActionDeleteBackup, filename, nil)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Backup deleted"}))
}

// RestoreUpload restores an uploaded archive into the company
// @Summary      Restore uploaded backup
// @Tags         backups
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        file  formData  file  true  "Backup archive"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Failure      422  {object}  response.Response
// @Failure      500  {object}  response.Response{data=object}
// @Router       /api/backups/restore [post]
func (h *BackupHandler) RestoreUpload(c *gin.Context) {
	companyID, ok := tenant(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, backup.MaxDocumentSize)
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, fmt.Errorf("missing archive file: %w", err))
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		badRequest(c, err)
		return
	}

	err = h.backups.Restore(c.Request.Context(), data, companyID)
	h.finishRestore(c, companyID, fh.Filename, err)
}

// RestoreStored restores a stored archive into the company
// @Summary      Restore stored backup
// @Tags         backups
// @Security     BearerAuth
// @Produce      json
// @Param        filename  path  string  true  "Archive filename"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Failure      500  {object}  response.Response{data=object}
// @Router       /api/backups/{filename}/restore [post]
func (h *BackupHandler) RestoreStored(c *gin.Context) {
	companyID, ok := tenant(c)
	if !ok {
		return
	}
	filename := c.Param("filename")
	err := h.backups.RestoreFromStorage(c.Request.Context(), filename, companyID)
	h.finishRestore(c, companyID, filename, err)
}

func (h *BackupHandler) finishRestore(c *gin.Context, companyID uuid.UUID, filename string, err error) {
	if err != nil {
		if !errors.Is(err, backup.ErrOperationInProgress) {
			h.record(c, companyID, model.ActionRestoreBackupFailed, filename, map[string]any{"error": err.Error()})
		}
		writeError(c, err)
		return
	}
	h.record(c, companyID, model.ActionRestoreBackup, filename, nil)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Backup restored", "tables": backup.ReplayOrder()}))
}

// record writes an audit entry. The operation already happened, so failures are only logged.
func (h *BackupHandler) record(c *gin.Context, companyID uuid.UUID, action, filename string, details map[string]any) {
	if h.audit == nil {
		return
	}
	err := h.audit.Record(c.Request.Context(), service.AuditEntry{
		CompanyID:  companyID,
		Action:     action,
		EntityID:   filename,
		EntityName: filename,
		Details:    details,
	})
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Warn().Err(err).Str("action", action).Msg("audit log not written")
	}
}
