package handlers

import (
	"net/http"
	"strconv"
	"time"

	"behavior-backend/internal/apperr"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// respondOK writes the success envelope.
func respondOK(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":      http.StatusOK,
		"message":   message,
		"data":      data,
		"timestamp": time.Now().UnixMilli(),
	})
}

// respondError writes the failure envelope for err, using its kind for the status.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := kind.HTTPStatus()
	message := apperr.MessageOf(err)
	if kind == apperr.KindInternal {
		// internal details go to the log, not the client
		_ = c.Error(err)
		message = "Internal server error"
	}
	respondStatus(c, status, message, kind.String())
}

func respondStatus(c *gin.Context, status int, message, code string) {
	c.AbortWithStatusJSON(status, gin.H{
		"code":    status,
		"message": message,
		"error":   code,
	})
}

func badRequest(c *gin.Context, message string) {
	respondStatus(c, http.StatusBadRequest, message, apperr.KindValidation.String())
}

// uintParam parses a positive id path parameter, answering 400 on failure.
func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || v == 0 {
		badRequest(c, "Invalid "+name+" format")
		return 0, false
	}
	return uint(v), true
}

// intQuery reads an optional integer query parameter.
func intQuery(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, "Invalid "+name+" parameter")
		return 0, false
	}
	return v, true
}

type idsRequest struct {
	IDs []uint `json:"ids" binding:"required"`
}

// bindIDs accepts either {"ids":[...]} or a bare JSON array.
func bindIDs(c *gin.Context) ([]uint, bool) {
	var ids []uint
	if err := c.ShouldBindBodyWith(&ids, binding.JSON); err == nil {
		if len(ids) == 0 {
			badRequest(c, "ids must not be empty")
			return nil, false
		}
		return ids, true
	}
	var req idsRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil || len(req.IDs) == 0 {
		badRequest(c, "ids must be a non-empty list")
		return nil, false
	}
	return req.IDs, true
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func sendWorkbook(c *gin.Context, filename string, data []byte) {
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, xlsxContentType, data)
}
