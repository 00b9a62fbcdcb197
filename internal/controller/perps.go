package controller

import (
	"net/http"

	"awakenfetch/internal/models"
	"awakenfetch/pkg/csvexport"
	"awakenfetch/pkg/types/events"
	"awakenfetch/pkg/types/ledger"

	"github.com/gin-gonic/gin"
)

type PerpListResponse struct {
	Transactions []ledger.PerpTransaction `json:"transactions"`
}

func (c *Controller) ListPerps(ctx *gin.Context) {
	opts, ok := fetchOptions(ctx)
	if !ok {
		return
	}

	txs, err := c.txs.FetchPerps(ctx.Request.Context(), ctx.Param("chain"), ctx.Param("address"), opts)
	if err != nil {
		c.fetchError(ctx, err)
		return
	}
	if txs == nil {
		txs = []ledger.PerpTransaction{}
	}
	ctx.JSON(http.StatusOK, PerpListResponse{Transactions: txs})
}

func (c *Controller) ExportPerpsCSV(ctx *gin.Context) {
	opts, ok := fetchOptions(ctx)
	if !ok {
		return
	}
	chainID, address := ctx.Param("chain"), ctx.Param("address")

	adapter, err := c.txs.PerpsAdapter(chainID, address)
	if err != nil {
		c.fetchError(ctx, err)
		return
	}
	txs, err := c.txs.FetchPerps(ctx.Request.Context(), chainID, address, opts)
	if err != nil {
		c.fetchError(ctx, err)
		return
	}

	filename := csvexport.PerpsFilename(chainID, address, c.exports.Now())
	c.sendCSV(ctx, filename, adapter.ToAwakenPerpsCSV(txs))
	c.recordExport(events.ExportCompleted{
		Kind:     models.ExportKindPerps,
		ChainID:  chainID,
		Address:  address,
		FromDate: opts.FromDate,
		ToDate:   opts.ToDate,
		Rows:     len(txs),
		Filename: filename,
	})
}
