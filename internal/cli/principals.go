package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var principalsCmd = &cobra.Command{
	Use:   "principals",
	Short: "Manage users and groups",
}

var (
	principalType    string
	principalName    string
	principalMembers []string
)

var principalsAddCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Register a user or group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeEngine, err := openEngine()
		if err != nil {
			return err
		}
		defer closeEngine()

		p, err := eng.RegisterPrincipal(context.Background(), args[0], principalType, principalName, principalMembers)
		if err != nil {
			return fmt.Errorf("principals add: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "registered %s %s\n", p.Type, p.ID)
		return nil
	},
}

var principalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered users and groups",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeEngine, err := openEngine()
		if err != nil {
			return err
		}
		defer closeEngine()

		ps, err := eng.Principals(context.Background())
		if err != nil {
			return fmt.Errorf("principals list: %w", err)
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTYPE\tNAME")
		for _, p := range ps {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.Type, p.DisplayName)
		}
		return tw.Flush()
	},
}

func init() {
	principalsAddCmd.Flags().StringVar(&principalType, "type", "user", "Principal type: user or group")
	principalsAddCmd.Flags().StringVar(&principalName, "name", "", "Display name")
	principalsAddCmd.Flags().StringSliceVar(&principalMembers, "member", nil, "Group member ids")
	principalsCmd.AddCommand(principalsAddCmd)
	principalsCmd.AddCommand(principalsListCmd)
}
