package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/PratikDhanave/access-status-service/internal/extract"
)

// MigrateCmd creates missing tables.
func MigrateCmd(conn *StoreConnection) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the status schema if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := conn.open(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to migrate: %w", err)
			}
			defer st.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Schema ready (%s)\n", conn.Driver)
			return nil
		},
	}
}

// AccessPointCmd seeds catalog rows for development databases.
func AccessPointCmd(conn *StoreConnection) *cobra.Command {
	apCmd := &cobra.Command{
		Use:   "access-point",
		Short: "Manage access point rows (development only)",
	}

	addCmd := &cobra.Command{
		Use:   "add [id]",
		Short: "Create or rename an access point",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "access point")
			if err != nil {
				return err
			}
			kind, _ := cmd.Flags().GetString("kind")
			name, _ := cmd.Flags().GetString("name")

			st, err := conn.open(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.AddAccessPoint(cmd.Context(), id, kind, name); err != nil {
				return fmt.Errorf("failed to add access point: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Access point %d (%s) %s\n", id, kind, name)
			return nil
		},
	}
	addCmd.Flags().String("kind", "door", "access point kind, e.g. door or elevator")
	addCmd.Flags().String("name", "", "display name")

	apCmd.AddCommand(addCmd)
	return apCmd
}

// LinkCmd pairs an access point with a work order before any mail arrives.
func LinkCmd(conn *StoreConnection) *cobra.Command {
	return &cobra.Command{
		Use:   "link [access-point] [ticket-ref]",
		Short: "Associate an access point with a work order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			apID, err := parseID(args[0], "access point")
			if err != nil {
				return err
			}
			ref := strings.TrimSpace(args[1])
			if !strings.HasPrefix(ref, extract.DefaultMarker) {
				return fmt.Errorf("ticket ref %q must start with %s", ref, extract.DefaultMarker)
			}

			eng, st, err := conn.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			report, linked, err := eng.AssociateTicket(cmd.Context(), apID, ref)
			if err != nil {
				return fmt.Errorf("failed to link: %w", err)
			}

			out := cmd.OutOrStdout()
			if linked {
				fmt.Fprintf(out, "✓ Linked access point %d to report %s\n", apID, reportLabel(report))
			} else {
				fmt.Fprintf(out, "%s access point %d already linked to report %s\n",
					color.New(color.FgYellow).Sprint("!"), apID, reportLabel(report))
			}
			return nil
		},
	}
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, s)
	}
	return id, nil
}
