package models

import "time"

// Report is one real-world incident. Ref is the external ticket number and is
// nil for incidents inferred purely from status continuity.
type Report struct {
	ID        int64     `json:"id"`
	Ref       *string   `json:"ref,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RefString returns the ticket reference or "" when the report has none.
func (r Report) RefString() string {
	if r.Ref == nil {
		return ""
	}
	return *r.Ref
}

// Status is an immutable point-in-time status event belonging to one Report.
type Status struct {
	ID        int64          `json:"id"`
	ReportID  int64          `json:"report_id"`
	Category  StatusCategory `json:"status_type"`
	Label     string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Notes     string         `json:"notes"`
}

// StatusUpdate is the normalized content of one ticketing-system notification.
type StatusUpdate struct {
	Timestamp time.Time  `json:"timestamp"`
	Type      UpdateType `json:"type"`
	TicketRef string     `json:"ticket_ref,omitempty"`
	Author    string     `json:"author,omitempty"`
	Comment   string     `json:"comment,omitempty"`
	// HasComment is set for comment notifications, whether or not the
	// comment body could be parsed.
	HasComment bool `json:"has_comment"`
}

// ToStatus converts the update into an unsaved Status. The notes fall back to
// the subject line when no comment text was extracted.
func (u StatusUpdate) ToStatus(subject string) Status {
	category, label := u.Type.Category()
	notes := u.Comment
	if notes == "" {
		notes = subject
	}
	return Status{
		Category:  category,
		Label:     label,
		Timestamp: u.Timestamp,
		Notes:     notes,
	}
}
