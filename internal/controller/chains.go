package controller

import (
	"net/http"

	"awakenfetch/pkg/types/chains"

	"github.com/gin-gonic/gin"
)

type ChainListResponse struct {
	Chains []chains.Info `json:"chains"`
}

func (c *Controller) ListChains(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, ChainListResponse{Chains: c.txs.Chains()})
}
