package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/affiliate-orderflow/internal/orders"
	"github.com/imrishuroy/affiliate-orderflow/internal/validation"
)

const defaultUnresolvedLimit = 100

// OrdersReader is the read side of the order ledger.
type OrdersReader interface {
	Unresolved(ctx context.Context) ([]orders.Order, error)
	Get(ctx context.Context, orderNo string) (*orders.Order, error)
}

// HandlerConfig groups dependencies for the orders handler.
type HandlerConfig struct {
	Orders OrdersReader
	Logger zerolog.Logger
}

// RegisterOrdersRoutes registers the read-only ledger routes.
func RegisterOrdersRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	log := cfg.Logger.With().Str("component", "orders_api").Logger()

	r.GET("/orders/unresolved", func(c *gin.Context) {
		q, ok := validation.BindQuery[validation.UnresolvedQuery](c, v)
		if !ok {
			return
		}
		limit := q.Limit
		if limit == 0 {
			limit = defaultUnresolvedLimit
		}

		list, err := cfg.Orders.Unresolved(c.Request.Context())
		if err != nil {
			log.Error().Err(err).Msg("list unresolved orders failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ledger_unavailable"})
			return
		}
		total := len(list)
		if len(list) > limit {
			list = list[:limit]
		}
		if list == nil {
			list = []orders.Order{}
		}
		c.JSON(http.StatusOK, gin.H{"orders": list, "total": total})
	})

	r.GET("/orders/:order_no", func(c *gin.Context) {
		orderNo := c.Param("order_no")
		o, err := cfg.Orders.Get(c.Request.Context(), orderNo)
		if err != nil {
			log.Error().Err(err).Str("order_no", orderNo).Msg("get order failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ledger_unavailable"})
			return
		}
		if o == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found", "order_no": orderNo})
			return
		}
		c.JSON(http.StatusOK, o)
	})
}
