package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"clickstream/api/analytics"
)

const (
	CodeValidation = "VALIDATION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodeInternal   = "INTERNAL_ERROR"
)

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func respondError(c *gin.Context, status int, message, code string) {
	c.JSON(status, gin.H{"error": errorBody{Message: message, Code: code}})
}

// respondServiceError maps the analytics error taxonomy onto HTTP.
// internalMessage is the client-facing text for persistence failures.
func respondServiceError(c *gin.Context, err error, internalMessage string) {
	var (
		verr *analytics.ValidationError
		nf   *analytics.NotFoundError
	)
	switch {
	case errors.As(err, &verr):
		respondError(c, http.StatusBadRequest, verr.Message, CodeValidation)
	case errors.As(err, &nf):
		respondError(c, http.StatusNotFound, "Session not found", CodeNotFound)
	default:
		log.Printf("%s: %v", internalMessage, err)
		respondError(c, http.StatusInternalServerError, internalMessage, CodeInternal)
	}
}
