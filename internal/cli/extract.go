package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/PratikDhanave/access-status-service/internal/extract"
	"github.com/PratikDhanave/access-status-service/internal/ingest"
	"github.com/PratikDhanave/access-status-service/internal/notify"
)

// ExtractCmd runs the mail extractor on a saved notification. With --apply
// the result is also reconciled into the store, exactly as the webhook would.
func ExtractCmd(conn *StoreConnection) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Parse a work-order notification (dry run unless --apply)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, _ := cmd.Flags().GetString("from")
			subject, _ := cmd.Flags().GetString("subject")
			htmlPath, _ := cmd.Flags().GetString("html")
			tz, _ := cmd.Flags().GetString("timezone")
			pattern, _ := cmd.Flags().GetString("sender-pattern")
			apply, _ := cmd.Flags().GetBool("apply")
			apID, _ := cmd.Flags().GetInt64("access-point")

			loc, err := time.LoadLocation(tz)
			if err != nil {
				return fmt.Errorf("invalid timezone: %w", err)
			}
			ex, err := extract.New(pattern, extract.WithLocation(loc))
			if err != nil {
				return err
			}

			var html []byte
			switch htmlPath {
			case "":
			case "-":
				html, err = io.ReadAll(cmd.InOrStdin())
			default:
				html, err = os.ReadFile(htmlPath)
			}
			if err != nil {
				return fmt.Errorf("failed to read html body: %w", err)
			}

			out := cmd.OutOrStdout()
			res := ex.Extract(from, subject, html)
			if res.Skipped {
				fmt.Fprintf(out, "%s %s\n", color.New(color.FgYellow).Sprint("SKIPPED"), res.Reason)
				return nil
			}

			u := res.Update
			status := u.ToStatus(subject)
			fmt.Fprintf(out, "Type:      %s -> %s %s\n", u.Type, category(status.Category), status.Label)
			fmt.Fprintf(out, "Ticket:    %s\n", orDash(u.TicketRef))
			fmt.Fprintf(out, "Timestamp: %s\n", u.Timestamp.Format(time.RFC3339))
			if u.HasComment {
				fmt.Fprintf(out, "Author:    %s\n", orDash(u.Author))
				fmt.Fprintf(out, "Comment:   %s\n", u.Comment)
			}
			if res.Degraded {
				fmt.Fprintf(out, "%s comment table not found or incomplete\n", color.New(color.FgYellow).Sprint("!"))
			}

			if !apply {
				return nil
			}

			eng, st, err := conn.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			var linkTo *int64
			if apID > 0 {
				linkTo = &apID
			}
			svc := ingest.NewService(ex, eng, notify.Nop{}, conn.logger())
			ir, err := svc.Ingest(cmd.Context(), "cli-"+uuid.NewString(), ingest.Email{From: from, Subject: subject, HTML: html}, linkTo)
			if err != nil {
				return fmt.Errorf("failed to reconcile: %w", err)
			}
			fmt.Fprintf(out, "✓ %s: report %s, status #%d\n", ir.Outcome.Decision, reportLabel(ir.Outcome.Report), ir.Outcome.Status.ID)
			return nil
		},
	}

	cmd.Flags().String("from", "", "sender address as relayed")
	cmd.Flags().String("subject", "", "subject line")
	cmd.Flags().String("html", "", "file with the text/html body, - for stdin")
	cmd.Flags().String("timezone", envOr("TICKET_TIMEZONE", "Local"), "zone for comment timestamps")
	cmd.Flags().String("sender-pattern", envOr("TRUSTED_SENDER_PATTERN", extract.DefaultSenderPattern), "trusted sender regexp")
	cmd.Flags().Bool("apply", false, "reconcile the update into the store")
	cmd.Flags().Int64("access-point", 0, "access point the mail is about (with --apply)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
