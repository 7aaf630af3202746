package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var accessCmd = &cobra.Command{
	Use:   "access",
	Short: "Manage per-keyword access preferences",
}

var (
	accessType string
	accessBy   string
)

var accessSetCmd = &cobra.Command{
	Use:   "set <keyword> <principal> <allow|deny|none>",
	Short: "Record a principal's preference for a keyword",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeEngine, err := openEngine()
		if err != nil {
			return err
		}
		defer closeEngine()

		res, err := eng.UpdateAccessState(context.Background(), args[0], args[1], accessType, args[2], accessBy)
		if err != nil {
			return fmt.Errorf("access set: %w", err)
		}
		verb := "updated"
		if res.Created {
			verb = "created"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s %s for %s (v%d)\n",
			verb, res.AccessState.Keyword, res.AccessState.State, res.AccessState.PrincipalID, res.AccessState.Version)
		return nil
	},
}

var accessListCmd = &cobra.Command{
	Use:   "list <keyword>",
	Short: "Show every principal's preference for a keyword",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeEngine, err := openEngine()
		if err != nil {
			return err
		}
		defer closeEngine()

		listing, err := eng.ListAccess(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("access list: %w", err)
		}
		if len(listing.States) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No preferences recorded for %q.\n", listing.Keyword)
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PRINCIPAL\tTYPE\tSTATE\tMEMBERS\tBY")
		for _, e := range listing.States {
			name := e.PrincipalID
			if e.DisplayName != "" {
				name = e.DisplayName
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", name, e.PrincipalType, e.State, e.MemberCount, e.UpdatedBy)
		}
		return tw.Flush()
	},
}

func init() {
	accessSetCmd.Flags().StringVar(&accessType, "type", "user", "Principal type: user or group")
	accessSetCmd.Flags().StringVar(&accessBy, "by", "", "Who made the change")
	accessCmd.AddCommand(accessSetCmd)
	accessCmd.AddCommand(accessListCmd)
}
