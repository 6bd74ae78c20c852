package handler

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/complyq/complyq/internal/model"
	"github.com/complyq/complyq/internal/pkg/errcode"
	"github.com/complyq/complyq/internal/pkg/response"
	"github.com/complyq/complyq/internal/service"
)

type DocumentHandler struct {
	ingest         *service.IngestService
	maxUploadBytes int64
}

func NewDocumentHandler(ingest *service.IngestService, maxUploadBytes int64) *DocumentHandler {
	return &DocumentHandler{ingest: ingest, maxUploadBytes: maxUploadBytes}
}

type documentResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Collection string `json:"collection"`
	Format     string `json:"format"`
	SizeBytes  int64  `json:"size_bytes"`
	Status     string `json:"status"`
	FailReason string `json:"fail_reason,omitempty"`
	ChunkCount int    `json:"chunk_count"`
	Ctime      int64  `json:"ctime"`
	Mtime      int64  `json:"mtime"`
}

func toDocumentResponse(doc *model.Document) documentResponse {
	return documentResponse{
		ID:         doc.ID,
		Name:       doc.Name,
		Collection: doc.Collection,
		Format:     string(doc.Format),
		SizeBytes:  doc.SizeBytes,
		Status:     string(doc.Status),
		FailReason: doc.FailReason,
		ChunkCount: doc.ChunkCount,
		Ctime:      doc.Ctime,
		Mtime:      doc.Mtime,
	}
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalid, "file is required")
		return
	}
	collection := c.PostForm("collection")
	if collection == "" {
		response.Error(c, errcode.ErrInvalid, "collection is required")
		return
	}
	if h.maxUploadBytes > 0 && file.Size > h.maxUploadBytes {
		response.Error(c, errcode.ErrPayloadTooLarge, "file exceeds upload limit of "+formatUploadLimit(h.maxUploadBytes))
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, errcode.ErrInvalid, "failed to open file")
		return
	}
	defer opened.Close()
	data, err := io.ReadAll(opened)
	if err != nil {
		response.Error(c, errcode.ErrUploadFailed, "failed to read file")
		return
	}
	doc, err := h.ingest.Submit(c.Request.Context(), file.Filename, collection, data)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, toDocumentResponse(doc))
}

func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.ingest.List(c.Request.Context(), c.Query("collection"))
	if err != nil {
		handleError(c, err)
		return
	}
	items := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		items = append(items, toDocumentResponse(doc))
	}
	response.Success(c, gin.H{"documents": items})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.ingest.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, toDocumentResponse(doc))
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.ingest.Delete(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}
