package controller

import (
	"context"
	"net/http"

	"awakenfetch/pkg/integrations/httpfetch"
	"awakenfetch/pkg/types/chains"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

type APIError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func errorResponse(ctx *gin.Context, status int, message string) {
	ctx.JSON(status, APIError{Error: message})
}

func errorWithDetails(ctx *gin.Context, status int, message string, details string) {
	ctx.JSON(status, APIError{Error: message, Details: details})
}

func badRequest(ctx *gin.Context, message string) {
	errorResponse(ctx, http.StatusBadRequest, message)
}

func badRequestWithDetails(ctx *gin.Context, message string, details string) {
	errorWithDetails(ctx, http.StatusBadRequest, message, details)
}

func notFound(ctx *gin.Context, message string) {
	errorResponse(ctx, http.StatusNotFound, message)
}

func internalError(ctx *gin.Context, message string) {
	errorResponse(ctx, http.StatusInternalServerError, message)
}

// fetchError maps a fetch failure onto a status code. Client disconnects get
// no body since nobody is listening.
func (c *Controller) fetchError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, chains.ErrInvalidAddress):
		badRequestWithDetails(ctx, "invalid address", err.Error())
	case errors.Is(err, chains.ErrUnsupportedChain):
		errorWithDetails(ctx, http.StatusNotFound, "unsupported chain", err.Error())
	case errors.Is(err, httpfetch.ErrRateLimitExceeded):
		errorWithDetails(ctx, http.StatusTooManyRequests, "upstream rate limit exceeded", err.Error())
	case errors.Is(err, httpfetch.ErrUpstream), errors.Is(err, httpfetch.ErrDecode):
		errorWithDetails(ctx, http.StatusBadGateway, "upstream request failed", err.Error())
	case errors.Is(err, context.Canceled):
		ctx.Abort()
	default:
		c.logger.Error("fetch failed", "path", ctx.FullPath(), "error", err)
		internalError(ctx, "failed to fetch transactions")
	}
}
