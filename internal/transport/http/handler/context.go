package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ragpool/internal/app"
	"ragpool/internal/transport/http/response"
)

type ContextHandler struct {
	contextService *app.ContextService
}

func NewContextHandler(contextService *app.ContextService) *ContextHandler {
	return &ContextHandler{contextService: contextService}
}

type AssembleContextRequest struct {
	SessionID uint            `json:"session_id" binding:"required"`
	Query     string          `json:"query" binding:"required"`
	Usage     app.PromptUsage `json:"usage"`
}

// Assemble returns the RAG section for the prompt assembler, or null data
// when the tier has no retrieval or nothing qualified. Retrieval failure is
// never an error here: the assistant simply answers without cited context.
func (h *ContextHandler) Assemble(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	var req AssembleContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	section, err := h.contextService.AssembleContext(c.Request.Context(), userID, req.SessionID, req.Query, req.Usage)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrSessionNotFound):
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "assemble context failed")
		}
		return
	}
	response.OK(c, section)
}
