package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/PratikDhanave/access-status-service/internal/models"
)

func categoryColor(c models.StatusCategory) *color.Color {
	switch c {
	case models.StatusBroken:
		return color.New(color.FgRed, color.Bold)
	case models.StatusInProgress:
		return color.New(color.FgYellow)
	case models.StatusFixed:
		return color.New(color.FgGreen)
	case models.StatusVerified:
		return color.New(color.FgBlue)
	default:
		return color.New(color.FgHiBlack)
	}
}

// category renders a status category padded to a fixed width.
func category(c models.StatusCategory) string {
	return categoryColor(c).Sprintf("%-11s", c.String())
}

func ago(t, now time.Time) string {
	return humanize.RelTime(t, now, "ago", "from now")
}

func refOrDash(r *models.Report) string {
	if r == nil || r.Ref == nil {
		return "-"
	}
	return *r.Ref
}

func reportLabel(r models.Report) string {
	if r.Ref == nil {
		return fmt.Sprintf("#%d", r.ID)
	}
	return fmt.Sprintf("#%d (%s)", r.ID, *r.Ref)
}
