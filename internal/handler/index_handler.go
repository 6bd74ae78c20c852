package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/complyq/complyq/internal/pkg/errcode"
	"github.com/complyq/complyq/internal/pkg/response"
	"github.com/complyq/complyq/internal/service"
	"github.com/complyq/complyq/internal/vecstore"
)

type IndexHandler struct {
	ingest *service.IngestService
	store  vecstore.Store
}

func NewIndexHandler(ingest *service.IngestService, store vecstore.Store) *IndexHandler {
	return &IndexHandler{ingest: ingest, store: store}
}

type rebuildRequest struct {
	Collection string `json:"collection"`
}

func (h *IndexHandler) Rebuild(c *gin.Context) {
	var req rebuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	ctx := c.Request.Context()
	if req.Collection == "" {
		if err := h.ingest.RebuildAll(ctx); err != nil {
			handleError(c, err)
			return
		}
	} else if err := h.ingest.Rebuild(ctx, req.Collection); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"rebuilt": true})
}

func (h *IndexHandler) Status(c *gin.Context) {
	collections := make(map[string]gin.H)
	ctx := c.Request.Context()
	for _, name := range h.store.Collections() {
		index := h.store.Collection(name)
		entry := gin.H{"healthy": true}
		if err := index.Healthy(); err != nil {
			entry["healthy"] = false
		} else if count, err := index.Count(ctx); err == nil {
			entry["entries"] = count
		}
		collections[name] = entry
	}
	response.Success(c, gin.H{"collections": collections})
}
