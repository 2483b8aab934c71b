package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ragpool/internal/app"
	"ragpool/internal/quota"
	"ragpool/internal/transport/http/response"
)

type DocumentHandler struct {
	pool     *app.PoolService
	deletion *app.DeletionService
}

func NewDocumentHandler(pool *app.PoolService, deletion *app.DeletionService) *DocumentHandler {
	return &DocumentHandler{pool: pool, deletion: deletion}
}

// UploadDocumentRequest carries already-extracted plain text; file-format
// parsing happens in the ingestion service upstream.
type UploadDocumentRequest struct {
	SessionID uint   `json:"session_id" binding:"required"`
	Filename  string `json:"filename"`
	MimeType  string `json:"mime_type" binding:"required"`
	Size      int64  `json:"size"`
	Content   string `json:"content" binding:"required"`
}

type ActivationRequest struct {
	SessionID uint `json:"session_id" binding:"required"`
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	var req UploadDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	doc, err := h.pool.AddDocument(c.Request.Context(), userID, req.SessionID, app.UploadInput{
		Filename: req.Filename,
		MimeType: req.MimeType,
		Size:     req.Size,
		Content:  req.Content,
	})
	if err != nil {
		writeUploadError(c, err)
		return
	}
	response.OK(c, doc)
}

// writeUploadError maps the quota taxonomy onto specific codes so a failed
// upload always reports which limit it hit.
func writeUploadError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, quota.ErrPoolFull):
		response.Error(c, http.StatusUnprocessableEntity, response.CodePoolFull, err.Error())
	case errors.Is(err, quota.ErrSessionLimitExceeded):
		response.Error(c, http.StatusUnprocessableEntity, response.CodeSessionLimitExceeded, err.Error())
	case errors.Is(err, quota.ErrStorageQuotaExceeded):
		response.Error(c, http.StatusUnprocessableEntity, response.CodeStorageQuotaExceeded, err.Error())
	case errors.Is(err, quota.ErrFileTooLarge):
		response.Error(c, http.StatusUnprocessableEntity, response.CodeFileTooLarge, err.Error())
	case errors.Is(err, quota.ErrUnsupportedFormat):
		response.Error(c, http.StatusUnprocessableEntity, response.CodeUnsupportedFormat, err.Error())
	case errors.Is(err, app.ErrSessionNotFound):
		response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "upload failed")
	}
}

// List returns the documents visible to a session when session_id is given,
// otherwise the user's whole pool.
func (h *DocumentHandler) List(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	sessionID := parseUintQuery(c, "session_id")

	var err error
	var docs interface{}
	if sessionID != 0 {
		docs, err = h.pool.ListActiveForSession(userID, sessionID)
	} else {
		docs, err = h.pool.ListByUser(userID)
	}
	if err != nil {
		if errors.Is(err, app.ErrSessionNotFound) {
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list documents failed")
		return
	}
	response.OK(c, docs)
}

func (h *DocumentHandler) Activate(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	docID, err := parseUintParam(c, "id")
	if err != nil || docID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		return
	}
	var req ActivationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	if err := h.pool.ActivateInSession(c.Request.Context(), userID, docID, req.SessionID); err != nil {
		switch {
		case errors.Is(err, app.ErrActivationNotAllowed):
			response.Error(c, http.StatusForbidden, response.CodeForbidden, err.Error())
		case errors.Is(err, quota.ErrSessionLimitExceeded):
			response.Error(c, http.StatusUnprocessableEntity, response.CodeSessionLimitExceeded, err.Error())
		case errors.Is(err, app.ErrDocumentNotFound), errors.Is(err, app.ErrSessionNotFound):
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "activate failed")
		}
		return
	}
	response.OK(c, gin.H{"document_id": docID, "session_id": req.SessionID})
}

func (h *DocumentHandler) Deactivate(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	docID, err := parseUintParam(c, "id")
	if err != nil || docID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		return
	}
	var req ActivationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	if err := h.pool.DeactivateFromSession(c.Request.Context(), userID, docID, req.SessionID); err != nil {
		switch {
		case errors.Is(err, app.ErrDocumentNotFound):
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "deactivate failed")
		}
		return
	}
	response.OK(c, gin.H{"document_id": docID, "session_id": req.SessionID})
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	docID, err := parseUintParam(c, "id")
	if err != nil || docID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		return
	}

	if err := h.deletion.DeleteDocument(c.Request.Context(), userID, docID); err != nil {
		switch {
		case errors.Is(err, app.ErrDocumentNotFound):
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete document failed")
		}
		return
	}
	response.OK(c, gin.H{"deleted_document_id": docID})
}

// Orphans lists deletion candidates: the user's documents no session can see
// anymore, oldest access first. Listing implies nothing; deletion stays a
// separate explicit call.
func (h *DocumentHandler) Orphans(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	docs, err := h.deletion.CleanupOrphans(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list orphans failed")
		return
	}
	response.OK(c, docs)
}
