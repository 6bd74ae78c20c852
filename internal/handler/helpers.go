package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/complyq/complyq/internal/pkg/errcode"
	appErr "github.com/complyq/complyq/internal/pkg/errors"
	"github.com/complyq/complyq/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID, _ := c.Get("request_id")
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.Any("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err))
	switch {
	case appErr.IsNotFound(err):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrUnsupportedFormat):
		response.Error(c, errcode.ErrUnsupportedFormat, "unsupported document format")
	case errors.Is(err, appErr.ErrCorruptInput):
		response.Error(c, errcode.ErrCorruptInput, "document could not be parsed")
	case errors.Is(err, appErr.ErrPayloadTooLarge):
		response.Error(c, errcode.ErrPayloadTooLarge, "document too large")
	case errors.Is(err, appErr.ErrIndexUnavailable):
		response.Error(c, errcode.ErrIndexUnavailable, "index unavailable, rebuild required")
	case errors.Is(err, appErr.ErrEmbeddingUnavailable):
		response.Error(c, errcode.ErrEmbeddingUnavailable, "embedding backend unavailable")
	case errors.Is(err, appErr.ErrModelUnavailable):
		response.Error(c, errcode.ErrModelUnavailable, "model backend unavailable")
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, "invalid request")
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, "conflict")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
