package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/complyq/complyq/internal/model"
	"github.com/complyq/complyq/internal/pkg/errcode"
	"github.com/complyq/complyq/internal/pkg/response"
	"github.com/complyq/complyq/internal/service"
)

type AskHandler struct {
	answers *service.AnswerService
}

func NewAskHandler(answers *service.AnswerService) *AskHandler {
	return &AskHandler{answers: answers}
}

type askRequest struct {
	Query string `json:"query"`
	Mode  string `json:"mode"`
	Model string `json:"model"`
}

type askResponse struct {
	Answer   string               `json:"answer"`
	ModelID  string               `json:"model_id"`
	Sources  []string             `json:"sources"`
	Degraded bool                 `json:"degraded"`
	Chunks   []model.ContextChunk `json:"chunks"`
}

func (h *AskHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	mode := model.ContextMode(req.Mode)
	if req.Mode == "" {
		mode = model.ModeBoth
	}
	answer, err := h.answers.Ask(c.Request.Context(), req.Query, mode, req.Model)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, askResponse{
		Answer:   answer.Text,
		ModelID:  answer.ModelID,
		Sources:  answer.Block.Sources,
		Degraded: answer.Block.Degraded,
		Chunks:   answer.Block.Chunks,
	})
}
