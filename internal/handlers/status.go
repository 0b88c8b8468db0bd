package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	"github.com/PratikDhanave/access-status-service/internal/models"
	"github.com/PratikDhanave/access-status-service/internal/reconcile"
	"github.com/PratikDhanave/access-status-service/internal/store"
)

// RegisterStatusRoutes registers the read endpoints used by the display layer.
//
// GET /access_points/:id/status   current status, badge style, relative time
// GET /access_points/:id/report   latest linked report, with or without statuses
// GET /reports/:id/statuses       report history in timestamp order
func RegisterStatusRoutes(r gin.IRoutes, eng *reconcile.Engine, now func() time.Time) {
	if now == nil {
		now = time.Now
	}

	r.GET("/access_points/:id/status", func(c *gin.Context) {
		apID, ok := pathID(c, "id")
		if !ok {
			return
		}

		status, report, err := eng.CurrentStatus(c.Request.Context(), apID)
		if err != nil {
			writeStoreError(c, err)
			return
		}

		resp := models.AccessPointStatusResponse{AccessPointID: apID}
		if status == nil {
			resp.Style = models.StyleFor(models.StatusUnknown, "Unknown", nil)
			resp.Updated = "never"
			c.JSON(http.StatusOK, resp)
			return
		}

		resp.Status = status
		resp.Style = models.StyleFor(status.Category, status.Label, &status.Notes)
		resp.Updated = humanize.RelTime(status.Timestamp, now(), "ago", "from now")
		if report != nil {
			resp.TicketRef = report.RefString()
		}
		c.JSON(http.StatusOK, resp)
	})

	r.GET("/access_points/:id/report", func(c *gin.Context) {
		apID, ok := pathID(c, "id")
		if !ok {
			return
		}

		report, err := eng.ReportFor(c.Request.Context(), apID)
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.ReportResponse{AccessPointID: apID, Report: report})
	})

	r.GET("/reports/:id/statuses", func(c *gin.Context) {
		reportID, ok := pathID(c, "id")
		if !ok {
			return
		}

		report, statuses, err := eng.History(c.Request.Context(), reportID)
		if err != nil {
			writeStoreError(c, err)
			return
		}
		if statuses == nil {
			statuses = []models.Status{}
		}
		c.JSON(http.StatusOK, models.ReportHistoryResponse{Report: report, Statuses: statuses})
	})
}

// pathID parses a positive integer path parameter, answering 400 otherwise.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive integer"})
		return 0, false
	}
	return id, true
}

func writeStoreError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "db query failed"})
}
