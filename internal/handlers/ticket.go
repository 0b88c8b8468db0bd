package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/PratikDhanave/access-status-service/internal/auth"
	"github.com/PratikDhanave/access-status-service/internal/extract"
	"github.com/PratikDhanave/access-status-service/internal/models"
	"github.com/PratikDhanave/access-status-service/internal/reconcile"
	"github.com/PratikDhanave/access-status-service/internal/store"
)

// RegisterTicketRoutes registers manual ticket association.
//
// POST /access_points/:id/ticket
// - Requires X-API-Key (operator context)
// - ticket_ref must carry the work-order prefix
// - Idempotent: repeating the call returns the same report with linked=false
func RegisterTicketRoutes(r gin.IRoutes, eng *reconcile.Engine, ex *extract.Extractor, log *zap.Logger) {
	r.POST("/access_points/:id/ticket", func(c *gin.Context) {
		operatorID := auth.OperatorID(c)
		if operatorID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		apID, ok := pathID(c, "id")
		if !ok {
			return
		}

		var req models.TicketAssociationRequest
		if err := c.ShouldBind(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
		ref := strings.TrimSpace(req.TicketRef)
		if ref == "" || !ex.HasRefPrefix(ref) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ticket_ref must be a work order number"})
			return
		}

		report, linked, err := eng.AssociateTicket(c.Request.Context(), apID, ref)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				log.Error("associate ticket failed",
					zap.Int64("access_point_id", apID),
					zap.String("ticket_ref", ref),
					zap.Error(err),
				)
			}
			writeStoreError(c, err)
			return
		}

		log.Info("ticket associated by operator",
			zap.String("operator_id", operatorID),
			zap.Int64("access_point_id", apID),
			zap.String("ticket_ref", ref),
		)
		c.JSON(http.StatusOK, models.TicketAssociationResponse{
			AccessPointID: apID,
			Report:        report,
			Linked:        linked,
		})
	})
}
