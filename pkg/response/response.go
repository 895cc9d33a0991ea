package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ngo-platform/backend/internal/apperr"
)

// Body is the standard API response envelope.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Kind    apperr.Kind `json:"kind,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// BadRequest sends 400 with error message.
func BadRequest(c *gin.Context, err string) {
	c.JSON(http.StatusBadRequest, Body{Success: false, Error: err, Kind: apperr.KindInvalidInput})
}

// NotFound sends 404.
func NotFound(c *gin.Context, err string) {
	c.JSON(http.StatusNotFound, Body{Success: false, Error: err, Kind: apperr.KindNotFound})
}

// Internal sends 500.
func Internal(c *gin.Context, err string) {
	c.JSON(http.StatusInternalServerError, Body{Success: false, Error: err, Kind: apperr.KindInternal})
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindConflict, apperr.KindTemplateNotConfigured:
		return http.StatusConflict
	case apperr.KindAnalysisUnavailable, apperr.KindCorrespondenceUnavailable:
		return http.StatusBadGateway
	case apperr.KindStorageFailure:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Error sends err as a structured error with its kind. Errors without a kind become a generic 500.
func Error(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	c.JSON(StatusFor(kind), Body{Success: false, Error: apperr.MessageOf(err), Kind: kind})
}

// AbortWithError sends err and stops the handler chain.
func AbortWithError(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}
