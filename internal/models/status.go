package models

import (
	"fmt"
	"strings"
)

// StatusCategory is the operational state of an access point, ranked from
// "nothing known" to "repair confirmed".
//
// The order is total and stable: Unknown < Broken < InProgress < Fixed < Verified.
// Ranks are persisted, so existing values must never be renumbered; new
// categories are appended above Verified.
type StatusCategory int

const (
	StatusUnknown    StatusCategory = 0
	StatusBroken     StatusCategory = 1
	StatusInProgress StatusCategory = 2
	StatusFixed      StatusCategory = 3
	StatusVerified   StatusCategory = 4
)

var categoryNames = map[StatusCategory]string{
	StatusUnknown:    "UNKNOWN",
	StatusBroken:     "BROKEN",
	StatusInProgress: "IN_PROGRESS",
	StatusFixed:      "FIXED",
	StatusVerified:   "VERIFIED",
}

// Rank returns the ordinal used for progression decisions.
func (c StatusCategory) Rank() int { return int(c) }

// Less reports whether c ranks strictly below other.
func (c StatusCategory) Less(other StatusCategory) bool { return c.Rank() < other.Rank() }

// Valid reports whether c is one of the known categories.
func (c StatusCategory) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

func (c StatusCategory) String() string {
	if n, ok := categoryNames[c]; ok {
		return n
	}
	return fmt.Sprintf("StatusCategory(%d)", int(c))
}

// MarshalText encodes the category by name so API payloads stay readable.
func (c StatusCategory) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *StatusCategory) UnmarshalText(b []byte) error {
	v, err := ParseStatusCategory(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseStatusCategory accepts the category name in any case.
func ParseStatusCategory(s string) (StatusCategory, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for c, n := range categoryNames {
		if n == s {
			return c, nil
		}
	}
	return StatusUnknown, fmt.Errorf("unknown status category %q", s)
}

// Continues reports whether an incoming status extends the incident that
// produced current, rather than starting a new one.
//
// A status continues an incident when it ranks strictly higher, or when both
// are InProgress (successive comment notifications on an open ticket).
func Continues(current, incoming StatusCategory) bool {
	if current.Less(incoming) {
		return true
	}
	return current == StatusInProgress && incoming == StatusInProgress
}

// UpdateType is the coarse classification of a ticketing-system notification.
type UpdateType int

const (
	UpdateUnknown UpdateType = iota
	UpdateNew
	UpdateInProgress
	UpdateResolved
)

func (u UpdateType) String() string {
	switch u {
	case UpdateNew:
		return "NEW"
	case UpdateInProgress:
		return "IN_PROGRESS"
	case UpdateResolved:
		return "RESOLVED"
	default:
		return "UNKNOWN"
	}
}

func (u UpdateType) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// Category maps a notification type onto the status scale together with the
// label shown to end users.
func (u UpdateType) Category() (StatusCategory, string) {
	switch u {
	case UpdateNew:
		return StatusBroken, "Filed"
	case UpdateInProgress:
		return StatusInProgress, "In Progress"
	case UpdateResolved:
		return StatusFixed, "Fixed"
	default:
		return StatusUnknown, "Unknown"
	}
}
