package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"behavior-backend/internal/store"
	"behavior-backend/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UploadDetection stores the uploaded file and queues a detection job. The
// response carries the PROCESSING record; the outcome arrives later.
func (h *Handler) UploadDetection(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required")
		return
	}
	sourceType := strings.ToUpper(strings.TrimSpace(c.PostForm("source_type")))
	if sourceType == "" {
		badRequest(c, "source_type is required")
		return
	}

	owner := callerOwner(c)
	if raw := c.PostForm("user_id"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || v == 0 {
			badRequest(c, "Invalid user_id format")
			return
		}
		owner = uint(v)
	}
	if owner == 0 {
		badRequest(c, "user_id is required")
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		badRequest(c, "failed to read uploaded file")
		return
	}
	defer src.Close()

	path, err := utils.SaveUpload(h.UploadDir, fileHeader.Filename, src)
	if err != nil {
		h.logger.Error("failed to store upload", zap.Error(err))
		respondStatus(c, http.StatusInternalServerError, "Failed to store uploaded file", "internal")
		return
	}

	rec, err := h.Dispatcher.Submit(c.Request.Context(), owner, sourceType, path)
	if err != nil {
		if rec == nil {
			utils.RemoveFilesBestEffort(h.logger, path)
			respondError(c, err)
			return
		}
		// the record exists and has already been failed
		h.logger.Warn("detection job rejected", zap.Uint("record_id", rec.ID), zap.Error(err))
		respondStatus(c, http.StatusServiceUnavailable, "Detection queue unavailable, try again later", "unavailable")
		return
	}
	respondOK(c, "Upload successful, detection in progress", rec)
}

// ListDetections pages through an owner's records, newest first.
func (h *Handler) ListDetections(c *gin.Context) {
	owner, ok := uintParam(c, "userId")
	if !ok {
		return
	}
	page, ok := pageQuery(c)
	if !ok {
		return
	}
	records, total, err := h.Records.ListByOwner(c.Request.Context(), owner, page)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "ok", gin.H{
		"content": records,
		"total":   total,
		"page":    page.Page,
		"size":    page.Size,
	})
}

// GetDetection returns one record.
func (h *Handler) GetDetection(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	rec, err := h.Records.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "ok", rec)
}

// GetBehaviors returns the per-frame observations of a record.
func (h *Handler) GetBehaviors(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.Records.Get(ctx, id); err != nil {
		respondError(c, err)
		return
	}
	behaviors, err := h.Records.Behaviors(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "ok", behaviors)
}

// UserStatistics returns counts, confidence summary and trends for an owner.
func (h *Handler) UserStatistics(c *gin.Context) {
	owner, ok := uintParam(c, "userId")
	if !ok {
		return
	}
	s, err := h.Stats.UserStatistics(c.Request.Context(), owner)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "ok", s)
}

// GlobalStatistics returns counts across every owner.
func (h *Handler) GlobalStatistics(c *gin.Context) {
	s, err := h.Stats.GlobalStatistics(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "ok", s)
}

// ExportDetections downloads an owner's records as xlsx.
func (h *Handler) ExportDetections(c *gin.Context) {
	owner, ok := uintParam(c, "userId")
	if !ok {
		return
	}
	data, err := h.Stats.ExportRecords(c.Request.Context(), owner)
	if err != nil {
		respondError(c, err)
		return
	}
	sendWorkbook(c, fmt.Sprintf("detections_user_%d.xlsx", owner), data)
}

// DeleteDetection removes a record, its behaviors and its files.
func (h *Handler) DeleteDetection(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.deleteRecord(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Record deleted", gin.H{"id": id})
}

// BatchDeleteDetections deletes each id independently and reports failures per id.
func (h *Handler) BatchDeleteDetections(c *gin.Context) {
	ids, ok := bindIDs(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	res := store.RunBatch(ids, func(id uint) error { return h.deleteRecord(ctx, id) })
	respondOK(c, batchMessage(res), res)
}

// deleteRecord removes the row first so a failed delete leaves files intact.
func (h *Handler) deleteRecord(ctx context.Context, id uint) error {
	rec, err := h.Records.Delete(ctx, id)
	if err != nil {
		return err
	}
	var paths []string
	keep := func(path string, err error) {
		if err != nil {
			h.logger.Warn("record file not removed", zap.Uint("record_id", id), zap.Error(err))
			return
		}
		paths = append(paths, path)
	}
	if rec.MediaPath != nil {
		keep(utils.ContainedPath(*rec.MediaPath, h.UploadDir))
	}
	if rec.ThumbnailPath != nil {
		keep(utils.ContainedPath(*rec.ThumbnailPath, h.UploadDir))
	}
	if rec.VisualizationURL != nil {
		keep(utils.ResolveLocalPath(*rec.VisualizationURL, h.AssetDir))
	}
	utils.RemoveFilesBestEffort(h.logger, paths...)
	h.logger.Info("detection record deleted", zap.Uint("record_id", id))
	return nil
}

func pageQuery(c *gin.Context) (store.Page, bool) {
	page, ok := intQuery(c, "page", 0)
	if !ok {
		return store.Page{}, false
	}
	size, ok := intQuery(c, "size", 0)
	if !ok {
		return store.Page{}, false
	}
	return store.Page{Page: page, Size: size}.Normalized(), true
}

func batchMessage(res store.BatchResult) string {
	if len(res.Failed) == 0 {
		return fmt.Sprintf("Deleted %d items", len(res.Deleted))
	}
	return fmt.Sprintf("Deleted %d items, %d failed", len(res.Deleted), len(res.Failed))
}
