package models

// TicketAssociationRequest is the POST /access_points/:id/ticket payload.
type TicketAssociationRequest struct {
	TicketRef string `json:"ticket_ref" form:"ticket_ref"`
}

// StatusStyle carries display hints for a status badge.
type StatusStyle struct {
	TextColor       string `json:"text_color"`
	BackgroundColor string `json:"background_color"`
	Border          bool   `json:"border"`
	BorderColor     string `json:"border_color,omitempty"`
	Message         string `json:"message"`
	Title           string `json:"title,omitempty"`
}

// StyleFor returns the badge style for a category. A nil context leaves the
// hover title empty.
func StyleFor(c StatusCategory, message string, context *string) StatusStyle {
	s := StatusStyle{
		TextColor:       "#000",
		BackgroundColor: "#b3b3b3",
		Message:         message,
	}
	switch c {
	case StatusBroken:
		s.BackgroundColor = "#ff4d4d"
	case StatusInProgress:
		s.BackgroundColor = "yellow"
	case StatusFixed:
		s.BackgroundColor = "green"
		s.TextColor = "#fff"
	case StatusVerified:
		s.BackgroundColor = "#6666ff"
		s.TextColor = "#fff"
	default:
		s.Border = true
		s.BorderColor = "#000"
	}
	if context != nil {
		s.Title = *context
	}
	return s
}

// AccessPointStatusResponse is returned by GET /access_points/:id/status.
type AccessPointStatusResponse struct {
	AccessPointID int64       `json:"access_point_id"`
	Status        *Status     `json:"status,omitempty"`
	TicketRef     string      `json:"ticket_ref,omitempty"`
	Style         StatusStyle `json:"style"`
	Updated       string      `json:"status_updated"`
}

// ReportResponse is returned by the report read endpoints.
type ReportResponse struct {
	AccessPointID int64   `json:"access_point_id,omitempty"`
	Report        *Report `json:"report"`
}

// WebhookResponse is the body of a webhook acknowledgement. The relay only
// looks at the status code; the body helps when replaying deliveries by hand.
type WebhookResponse struct {
	DeliveryID string `json:"delivery_id"`
	Accepted   bool   `json:"accepted"`
	Reason     string `json:"reason,omitempty"`
	ReportID   int64  `json:"report_id,omitempty"`
	Decision   string `json:"decision,omitempty"`
}

// TicketAssociationResponse is returned by POST /access_points/:id/ticket.
type TicketAssociationResponse struct {
	AccessPointID int64  `json:"access_point_id"`
	Report        Report `json:"report"`
	Linked        bool   `json:"linked"`
}

// ReportHistoryResponse is returned by GET /reports/:id/statuses.
type ReportHistoryResponse struct {
	Report   Report   `json:"report"`
	Statuses []Status `json:"statuses"`
}
