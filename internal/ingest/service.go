// Package ingest turns webhook deliveries into reconciled statuses.
package ingest

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/PratikDhanave/access-status-service/internal/extract"
	"github.com/PratikDhanave/access-status-service/internal/models"
	"github.com/PratikDhanave/access-status-service/internal/notify"
	"github.com/PratikDhanave/access-status-service/internal/reconcile"
	"github.com/PratikDhanave/access-status-service/internal/store"
)

// Email is the part of a relayed message the service looks at.
type Email struct {
	From    string
	Subject string
	HTML    []byte
}

// Result describes what happened to one delivery.
type Result struct {
	DeliveryID string
	Accepted   bool
	// Reason is set when the delivery was dropped.
	Reason  string
	Outcome reconcile.Outcome
}

type Service struct {
	extractor *extract.Extractor
	engine    *reconcile.Engine
	pub       notify.Publisher
	log       *zap.Logger
}

func NewService(ex *extract.Extractor, eng *reconcile.Engine, pub notify.Publisher, log *zap.Logger) *Service {
	if pub == nil {
		pub = notify.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{extractor: ex, engine: eng, pub: pub, log: log}
}

// Ingest extracts and reconciles one delivery. Mail that is not a trusted
// work-order notification is dropped without error. linkTo, when set, names
// the access point the mail was addressed to.
func (s *Service) Ingest(ctx context.Context, deliveryID string, mail Email, linkTo *int64) (Result, error) {
	log := s.log.With(zap.String("delivery_id", deliveryID))
	res := Result{DeliveryID: deliveryID}

	ex := s.extractor.Extract(mail.From, mail.Subject, mail.HTML)
	if ex.Skipped {
		log.Warn("dropping email",
			zap.String("reason", ex.Reason),
			zap.String("from", mail.From),
			zap.String("subject", mail.Subject),
		)
		res.Reason = ex.Reason
		return res, nil
	}
	if ex.Degraded {
		log.Warn("comment body not parsed, using subject and current time",
			zap.String("subject", mail.Subject),
			zap.String("ticket_ref", ex.Update.TicketRef),
		)
	}

	status := ex.Update.ToStatus(mail.Subject)
	out, err := s.engine.Reconcile(ctx, status, ex.Update.TicketRef, linkTo)
	if err != nil && linkTo != nil && errors.Is(err, store.ErrNotFound) {
		// The mail is still worth keeping; the ticket ref (if any) will
		// attach it to the right report once the access point exists.
		log.Warn("access point not found, reconciling without link",
			zap.Int64("access_point_id", *linkTo),
			zap.String("ticket_ref", ex.Update.TicketRef),
		)
		linkTo = nil
		out, err = s.engine.Reconcile(ctx, status, ex.Update.TicketRef, nil)
	}
	if err != nil {
		return res, err
	}

	res.Accepted = true
	res.Outcome = out
	s.publish(ctx, log, deliveryID, ex.Update, out, linkTo)
	return res, nil
}

func (s *Service) publish(ctx context.Context, log *zap.Logger, deliveryID string, u models.StatusUpdate, out reconcile.Outcome, linkTo *int64) {
	ev := notify.Event{
		DeliveryID:    deliveryID,
		AccessPointID: linkTo,
		ReportID:      out.Report.ID,
		TicketRef:     out.Report.RefString(),
		StatusID:      out.Status.ID,
		StatusType:    out.Status.Category.String(),
		Status:        out.Status.Label,
		Decision:      string(out.Decision),
		Timestamp:     out.Status.Timestamp,
	}
	if err := s.pub.Publish(ctx, ev); err != nil {
		log.Error("publish status event failed",
			zap.Int64("report_id", out.Report.ID),
			zap.String("update_type", u.Type.String()),
			zap.Error(err),
		)
	}
}
