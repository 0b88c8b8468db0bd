package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/PratikDhanave/access-status-service/internal/store"
)

// StatusCmd shows the current status of one access point.
func StatusCmd(conn *StoreConnection) *cobra.Command {
	return &cobra.Command{
		Use:   "status [access-point]",
		Short: "Show the current status of an access point",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apID, err := parseID(args[0], "access point")
			if err != nil {
				return err
			}

			eng, st, err := conn.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			status, report, err := eng.CurrentStatus(cmd.Context(), apID)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("access point %d not found", apID)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if status == nil {
				latest, err := eng.ReportFor(cmd.Context(), apID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Access point %d: no status yet (ticket %s)\n", apID, refOrDash(latest))
				return nil
			}

			fmt.Fprintf(out, "Access point %d: %s %s\n", apID, category(status.Category), status.Label)
			fmt.Fprintf(out, "  Ticket:  %s\n", refOrDash(report))
			if report != nil {
				fmt.Fprintf(out, "  Report:  #%d\n", report.ID)
			}
			fmt.Fprintf(out, "  Updated: %s (%s)\n", status.Timestamp.Format(time.RFC3339), ago(status.Timestamp, time.Now()))
			if status.Notes != "" {
				fmt.Fprintf(out, "  Notes:   %s\n", status.Notes)
			}
			return nil
		},
	}
}

// HistoryCmd lists every status of a report.
func HistoryCmd(conn *StoreConnection) *cobra.Command {
	return &cobra.Command{
		Use:   "history [report-id]",
		Short: "List the statuses recorded for a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reportID, err := parseID(args[0], "report")
			if err != nil {
				return err
			}

			eng, st, err := conn.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			report, statuses, err := eng.History(cmd.Context(), reportID)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("report %d not found", reportID)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Report %s, %d status(es)\n\n", reportLabel(report), len(statuses))

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTIME\tSTATUS\tNOTES")
			for _, s := range statuses {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.ID, s.Timestamp.Format("2006-01-02 15:04"), category(s.Category), s.Notes)
			}
			return w.Flush()
		},
	}
}
