package controller

import (
	"exam_prep_backend/internal/service"
	"exam_prep_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type MasteryController struct {
	MasteryTracker *service.MasteryTracker
}

func NewMasteryController(tracker *service.MasteryTracker) *MasteryController {
	return &MasteryController{MasteryTracker: tracker}
}

// @Summary 查询题目掌握情况
// @Tags 掌握度
// @Produce json
// @Security BearerAuth
// @Param questionIds query string true "题目ID，逗号分隔"
// @Success 200 {object} util.Response{data=[]service.MasteryEntry}
// @Router /api/mastery [get]
func (c *MasteryController) GetMastery(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	ids := util.SplitCSV(ctx.Query("questionIds"))
	if len(ids) == 0 {
		util.BadRequest(ctx, "questionIds is required")
		return
	}

	util.Success(ctx, c.MasteryTracker.Report(ctx.Request.Context(), user.UserID, ids))
}
