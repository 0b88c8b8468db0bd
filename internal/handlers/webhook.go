package handlers

import (
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PratikDhanave/access-status-service/internal/ingest"
	"github.com/PratikDhanave/access-status-service/internal/models"
)

const (
	maxWebhookMemory = 8 << 20
	maxHTMLPart      = 2 << 20
)

// RegisterWebhookRoutes registers the mail relay endpoint.
//
// POST /email_webhook?token=...[&access_point=...]
// - The token is checked by middleware (401 on mismatch)
// - Multipart form: From, Subject, and one text/html file part
// - Always 200 otherwise: the relay retries anything else, and mail that
//   cannot be used is dropped and logged instead
func RegisterWebhookRoutes(r gin.IRoutes, svc *ingest.Service, log *zap.Logger) {
	r.POST("/email_webhook", func(c *gin.Context) {
		deliveryID := uuid.New().String()
		log := log.With(zap.String("delivery_id", deliveryID))

		drop := func(reason string, fields ...zap.Field) {
			log.Warn("dropping webhook delivery", append(fields, zap.String("reason", reason))...)
			c.JSON(http.StatusOK, models.WebhookResponse{DeliveryID: deliveryID, Reason: reason})
		}

		if err := c.Request.ParseMultipartForm(maxWebhookMemory); err != nil && err != http.ErrNotMultipart {
			drop("malformed form", zap.Error(err))
			return
		}

		mail := ingest.Email{
			From:    c.PostForm("From"),
			Subject: c.PostForm("Subject"),
		}

		html, err := htmlPart(c.Request.MultipartForm)
		if err != nil {
			drop("unreadable html part", zap.Error(err))
			return
		}
		if html == nil {
			if v := c.PostForm("html"); v != "" {
				html = []byte(v)
			}
		}
		if html == nil {
			drop("no text/html part", zap.String("subject", mail.Subject))
			return
		}
		mail.HTML = html

		var linkTo *int64
		if v := c.Query("access_point"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil || id <= 0 {
				drop("invalid access_point", zap.String("access_point", v))
				return
			}
			linkTo = &id
		}

		res, err := svc.Ingest(c.Request.Context(), deliveryID, mail, linkTo)
		if err != nil {
			log.Error("reconcile failed", zap.String("subject", mail.Subject), zap.Error(err))
			c.JSON(http.StatusOK, models.WebhookResponse{DeliveryID: deliveryID, Reason: "not recorded"})
			return
		}

		resp := models.WebhookResponse{
			DeliveryID: deliveryID,
			Accepted:   res.Accepted,
			Reason:     res.Reason,
		}
		if res.Accepted {
			resp.ReportID = res.Outcome.Report.ID
			resp.Decision = string(res.Outcome.Decision)
		}
		c.JSON(http.StatusOK, resp)
	})
}

// htmlPart returns the body of a file part declared as text/html, or nil.
func htmlPart(form *multipart.Form) ([]byte, error) {
	if form == nil {
		return nil, nil
	}
	for _, files := range form.File {
		for _, fh := range files {
			mt, _, err := mime.ParseMediaType(fh.Header.Get("Content-Type"))
			if err != nil || mt != "text/html" {
				continue
			}
			f, err := fh.Open()
			if err != nil {
				return nil, err
			}
			body, err := io.ReadAll(io.LimitReader(f, maxHTMLPart))
			_ = f.Close()
			return body, err
		}
	}
	return nil, nil
}
