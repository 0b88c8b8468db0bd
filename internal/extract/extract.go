// Package extract turns raw work-order notification emails into normalized
// status updates. It performs no I/O and never fails: mail that does not look
// like a trusted ticket notification is reported as skipped.
package extract

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PratikDhanave/access-status-service/internal/models"
)

const (
	// DefaultSenderPattern accepts the ticketing system's relay address, bare
	// or in "Name <addr>" form.
	DefaultSenderPattern = `(?i)@help\.example\.edu>?\s*$`

	// DefaultMarker prefixes every work-order number and identifies a
	// subject line as a work-order notification.
	DefaultMarker = "WOT"

	// DefaultRefLength is the marker plus seven digits.
	DefaultRefLength = 10
)

// Rule maps subject phrases to an update type.
type Rule struct {
	Type    models.UpdateType
	Phrases []string
}

// DefaultRules are evaluated in order; the first rule with a phrase contained
// in the lower-cased subject wins.
var DefaultRules = []Rule{
	{Type: models.UpdateNew, Phrases: []string{"added to the watch list", "has been opened", "has been created", "ticket created"}},
	{Type: models.UpdateResolved, Phrases: []string{"completed", "has been resolved", "has been closed"}},
	{Type: models.UpdateInProgress, Phrases: []string{"comments added", "comment added", "new comment"}},
}

// Result is the outcome of one extraction.
type Result struct {
	Update models.StatusUpdate
	// Skipped is set when the mail is not a trusted work-order notification.
	// Callers accept and discard it.
	Skipped bool
	Reason  string
	// Degraded is set when a comment notification lacked a parseable
	// comment table and the subject/current time were used instead.
	Degraded bool
}

// Extractor classifies notifications. The zero value is not usable; use New.
type Extractor struct {
	sender    *regexp.Regexp
	marker    string
	refLength int
	rules     []Rule
	loc       *time.Location
	now       func() time.Time
}

type Option func(*Extractor)

// WithClock overrides the source of "now".
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// WithLocation sets the zone used for comment timestamps that carry no
// zone of their own.
func WithLocation(loc *time.Location) Option {
	return func(e *Extractor) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithRules replaces the subject classification rules.
func WithRules(rules []Rule) Option {
	return func(e *Extractor) { e.rules = rules }
}

// New builds an Extractor trusting senders that match senderPattern. An
// empty pattern selects DefaultSenderPattern.
func New(senderPattern string, opts ...Option) (*Extractor, error) {
	if senderPattern == "" {
		senderPattern = DefaultSenderPattern
	}
	re, err := regexp.Compile(senderPattern)
	if err != nil {
		return nil, fmt.Errorf("compile sender pattern: %w", err)
	}
	e := &Extractor{
		sender:    re,
		marker:    DefaultMarker,
		refLength: DefaultRefLength,
		rules:     DefaultRules,
		loc:       time.Local,
		now:       time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Extract parses one notification.
func (e *Extractor) Extract(sender, subject string, htmlBody []byte) Result {
	if !e.sender.MatchString(strings.TrimSpace(sender)) {
		return Result{Skipped: true, Reason: "untrusted sender"}
	}
	if !strings.Contains(subject, e.marker) {
		return Result{Skipped: true, Reason: "subject is not a work order notification"}
	}

	u := models.StatusUpdate{
		Timestamp: e.now().In(e.loc),
		Type:      e.Classify(subject),
		TicketRef: e.TicketRef(subject),
	}
	u.HasComment = u.Type == models.UpdateInProgress

	res := Result{Update: u}
	if !u.HasComment {
		return res
	}

	c, ok := parseComment(htmlBody)
	if !ok {
		res.Update.Comment = subject
		res.Degraded = true
		return res
	}
	res.Update.Author = c.author
	res.Update.Comment = c.text
	if ts, ok := parseTimestamp(c.stamp, e.loc); ok {
		res.Update.Timestamp = ts
	} else {
		res.Degraded = true
	}
	return res
}

// Classify returns the update type for a subject line.
func (e *Extractor) Classify(subject string) models.UpdateType {
	s := strings.ToLower(subject)
	for _, r := range e.rules {
		for _, p := range r.Phrases {
			if strings.Contains(s, p) {
				return r.Type
			}
		}
	}
	return models.UpdateUnknown
}

// TicketRef returns the fixed-length work-order number starting at the first
// marker in subject, or "" when there is none.
func (e *Extractor) TicketRef(subject string) string {
	i := strings.Index(subject, e.marker)
	if i < 0 || i+e.refLength > len(subject) {
		return ""
	}
	return subject[i : i+e.refLength]
}

// HasRefPrefix reports whether ref looks like a work-order number.
func (e *Extractor) HasRefPrefix(ref string) bool {
	return strings.HasPrefix(ref, e.marker)
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04 MST",
	"2006-01-02 15:04",
	"01-02-2006 15:04:05",
	"01/02/2006 03:04:05 PM",
	"01/02/2006 15:04:05",
	"Jan 2, 2006 3:04 PM",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
}

func parseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
