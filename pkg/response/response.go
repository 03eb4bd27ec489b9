// Package response writes the JSON envelope shared by every REST endpoint.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body is the standard API response envelope.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// OK sends 200 with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends 201 with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// Error sends a failed envelope with the given status.
func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, Body{Success: false, Error: msg})
}

// BadRequest sends 400.
func BadRequest(c *gin.Context, msg string) { Error(c, http.StatusBadRequest, msg) }

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, msg string) { Error(c, http.StatusUnauthorized, msg) }

// Forbidden sends 403.
func Forbidden(c *gin.Context, msg string) { Error(c, http.StatusForbidden, msg) }

// NotFound sends 404.
func NotFound(c *gin.Context, msg string) { Error(c, http.StatusNotFound, msg) }

// Conflict sends 409.
func Conflict(c *gin.Context, msg string) { Error(c, http.StatusConflict, msg) }

// Internal sends 500.
func Internal(c *gin.Context, msg string) { Error(c, http.StatusInternalServerError, msg) }

// ServiceUnavailable sends 503.
func ServiceUnavailable(c *gin.Context, msg string) { Error(c, http.StatusServiceUnavailable, msg) }
