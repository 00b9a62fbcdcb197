package controller

import (
	"net/http"
	"strconv"

	"awakenfetch/internal/models"
	"awakenfetch/internal/repo"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type ExportListResponse struct {
	Exports []models.ExportLog `json:"exports"`
}

type ExportCheckResponse struct {
	Exported bool              `json:"exported"`
	Export   *models.ExportLog `json:"export,omitempty"`
}

func (c *Controller) ListExports(ctx *gin.Context) {
	filter := repo.ExportFilter{
		ChainID: ctx.Query("chain"),
		Address: ctx.Query("address"),
	}
	if limitStr := ctx.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			badRequest(ctx, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	logs, err := c.exports.List(filter)
	if err != nil {
		internalError(ctx, "failed to list exports")
		return
	}
	if logs == nil {
		logs = []models.ExportLog{}
	}
	ctx.JSON(http.StatusOK, ExportListResponse{Exports: logs})
}

// CheckExport reports whether the exact window was downloaded before.
func (c *Controller) CheckExport(ctx *gin.Context) {
	chainID, address := ctx.Query("chain"), ctx.Query("address")
	if chainID == "" || address == "" {
		badRequest(ctx, "chain and address are required")
		return
	}
	kind := ctx.DefaultQuery("kind", models.ExportKindStandard)
	if kind != models.ExportKindStandard && kind != models.ExportKindPerps {
		badRequestWithDetails(ctx, "invalid kind", "expected standard or perps")
		return
	}
	from, to, err := parseWindow(ctx)
	if err != nil {
		badRequestWithDetails(ctx, "invalid date range", err.Error())
		return
	}

	log, err := c.exports.Check(kind, chainID, address, from, to)
	if err != nil {
		internalError(ctx, "failed to check export history")
		return
	}
	ctx.JSON(http.StatusOK, ExportCheckResponse{Exported: log != nil, Export: log})
}

func (c *Controller) DeleteExport(ctx *gin.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		badRequest(ctx, "invalid id")
		return
	}

	if _, err := c.exports.Get(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			notFound(ctx, "export not found")
			return
		}
		internalError(ctx, "failed to load export")
		return
	}
	if err := c.exports.Delete(id); err != nil {
		internalError(ctx, "failed to delete export")
		return
	}

	ctx.Status(http.StatusNoContent)
}
