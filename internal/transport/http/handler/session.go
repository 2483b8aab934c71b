package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ragpool/internal/app"
	"ragpool/internal/model"
	"ragpool/internal/repository"
	"ragpool/internal/transport/http/response"
)

type SessionHandler struct {
	sessionRepo *repository.SessionRepository
	deletion    *app.DeletionService
}

func NewSessionHandler(sessionRepo *repository.SessionRepository, deletion *app.DeletionService) *SessionHandler {
	return &SessionHandler{sessionRepo: sessionRepo, deletion: deletion}
}

type CreateSessionRequest struct {
	Tier  string `json:"tier"`
	Title string `json:"title" binding:"max=256"`
}

func (h *SessionHandler) Create(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "New Chat"
	}
	session := &model.Session{
		UserID: userID,
		Tier:   model.ParseTier(req.Tier),
		Title:  title,
	}
	if err := h.sessionRepo.Create(session); err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "create session failed")
		return
	}
	response.OK(c, session)
}

func (h *SessionHandler) List(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	sessions, err := h.sessionRepo.ListByUserID(userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list sessions failed")
		return
	}
	response.OK(c, sessions)
}

// Delete detaches the session from every document it could see and removes
// the session. Documents themselves are never deleted here.
func (h *SessionHandler) Delete(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	sessionID, err := parseUintParam(c, "id")
	if err != nil || sessionID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid session id")
		return
	}
	if err := h.deletion.DeleteSession(c.Request.Context(), userID, sessionID); err != nil {
		switch {
		case errors.Is(err, app.ErrSessionNotFound):
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete session failed")
		}
		return
	}
	response.OK(c, gin.H{"deleted_session_id": sessionID})
}
