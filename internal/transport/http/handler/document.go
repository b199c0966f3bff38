package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"invoicechat/internal/app"
	"invoicechat/internal/transport/http/middleware"
	"invoicechat/internal/transport/http/response"
)

type DocumentHandler struct {
	documents      *app.DocumentService
	maxUploadBytes int64
}

type ChatRequest struct {
	Message string `json:"message"`
}

type UploadResponse struct {
	Message       string `json:"message"`
	DocumentID    string `json:"documentId"`
	ExtractedText string `json:"extractedText"`
}

func NewDocumentHandler(documents *app.DocumentService, maxUploadBytes int64) *DocumentHandler {
	return &DocumentHandler{documents: documents, maxUploadBytes: maxUploadBytes}
}

// Register mounts the document routes. Static segments are matched before :id.
func (h *DocumentHandler) Register(r gin.IRouter) {
	r.POST("/upload", h.Upload)
	r.GET("", h.List)
	r.GET("/:id", h.Get)
	r.POST("/:id/chat", h.Chat)
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeFileRequired, "File is required")
		return
	}
	if h.maxUploadBytes > 0 && fileHeader.Size > h.maxUploadBytes {
		h.writeError(c, app.ErrFileTooLarge)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeFileRequired, "cannot read uploaded file")
		return
	}
	defer file.Close()

	var reader io.Reader = file
	if h.maxUploadBytes > 0 {
		reader = io.LimitReader(file, h.maxUploadBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeFileRequired, "cannot read uploaded file")
		return
	}

	result, err := h.documents.Upload(c.Request.Context(), app.UploadInput{
		UserID:      callerID(c, c.PostForm("userId")),
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.JSON(c, http.StatusCreated, UploadResponse{
		Message:       "Upload successful",
		DocumentID:    result.DocumentID,
		ExtractedText: result.ExtractedText,
	})
}

func (h *DocumentHandler) List(c *gin.Context) {
	list, err := h.documents.List(c.Request.Context(), callerID(c, c.Query("userId")))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	viewerID, _ := middleware.UserID(c)
	doc, err := h.documents.Get(c.Request.Context(), c.Param("id"), viewerID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc)
}

func (h *DocumentHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	viewerID, _ := middleware.UserID(c)
	result, err := h.documents.Chat(c.Request.Context(), app.ChatInput{
		DocumentID: c.Param("id"),
		Message:    req.Message,
		ViewerID:   viewerID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, result)
}

func (h *DocumentHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrFileRequired):
		response.Error(c, http.StatusBadRequest, response.CodeFileRequired, "File is required")
	case errors.Is(err, app.ErrUserRequired):
		response.Error(c, http.StatusBadRequest, response.CodeUserRequired, "UserId is required")
	case errors.Is(err, app.ErrUserIDTooLong):
		response.Error(c, http.StatusBadRequest, response.CodeUserIDTooLong, "UserId is too long")
	case errors.Is(err, app.ErrMessageEmpty):
		response.Error(c, http.StatusBadRequest, response.CodeMessageEmpty, "Message is required")
	case errors.Is(err, app.ErrMessageTooLong):
		response.Error(c, http.StatusBadRequest, response.CodeMessageTooLong, "Message is too long")
	case errors.Is(err, app.ErrNoExtractedText):
		response.Error(c, http.StatusBadRequest, response.CodeNoExtractedText, "No text extracted")
	case errors.Is(err, app.ErrUnsupportedFile):
		response.Error(c, http.StatusBadRequest, response.CodeUnsupportedFile, err.Error())
	case errors.Is(err, app.ErrFileTooLarge):
		response.Error(c, http.StatusBadRequest, response.CodeFileTooLarge, "File is too large")
	case errors.Is(err, app.ErrDocumentNotFound):
		response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, "Document not found")
	case errors.Is(err, app.ErrOracleUnavailable):
		_ = c.Error(err)
		response.Error(c, http.StatusServiceUnavailable, response.CodeOracleUnavailable, "text service is busy, try again shortly")
	case errors.Is(err, app.ErrOracleFailed):
		_ = c.Error(err)
		response.Error(c, http.StatusBadGateway, response.CodeOracleFailed, "text service failed")
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "internal server error")
	}
}

// callerID prefers the verified token subject over the request-supplied id.
func callerID(c *gin.Context, fromRequest string) string {
	if id, ok := middleware.UserID(c); ok {
		return id
	}
	return fromRequest
}
