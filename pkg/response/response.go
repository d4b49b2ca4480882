package response

import (
	"errors"
	"net/http"
	"time"

	"settlement-ledger/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDKey is the gin context key holding the request correlation id.
const RequestIDKey = "request_id"

// SuccessResponse is the standard success envelope.
type SuccessResponse struct {
	Data      interface{} `json:"data"`
	Page      *PageInfo   `json:"page,omitempty"`
	RequestID string      `json:"request_id"`
	Timestamp string      `json:"timestamp"`
}

// PageInfo describes the slice of a listing that was returned.
type PageInfo struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// OK sends a 200 response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, success(c, data, nil))
}

// Created sends a 201 response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, success(c, data, nil))
}

// Paginated sends a 200 response carrying one page of a listing.
func Paginated(c *gin.Context, data interface{}, page, pageSize int, total int64) {
	c.JSON(http.StatusOK, success(c, data, &PageInfo{Page: page, PageSize: pageSize, Total: total}))
}

// Error sends an error response. *apperror.AppError values (wrapped or not)
// keep their code and status; anything else becomes a 500.
func Error(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.HTTPStatus, failure(c, appErr.Code, appErr.Message))
		return
	}

	c.JSON(http.StatusInternalServerError, failure(c, "SYS_000", "Internal server error"))
}

func success(c *gin.Context, data interface{}, page *PageInfo) SuccessResponse {
	return SuccessResponse{
		Data:      data,
		Page:      page,
		RequestID: getRequestID(c),
		Timestamp: now(),
	}
}

func failure(c *gin.Context, code, message string) ErrorResponse {
	return ErrorResponse{
		ErrorCode: code,
		Message:   message,
		RequestID: getRequestID(c),
		Timestamp: now(),
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// getRequestID retrieves request ID from context, or generates one.
func getRequestID(c *gin.Context) string {
	if id, exists := c.Get(RequestIDKey); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return uuid.New().String()
}
