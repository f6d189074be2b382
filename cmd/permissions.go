package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/frahmantamala/trading-panel/internal/menu"
	"github.com/frahmantamala/trading-panel/internal/permission"
	"github.com/spf13/cobra"
)

var permissionsCmd = &cobra.Command{
	Use:   "permissions",
	Short: "Inspect permission tables",
	Long:  `Evaluate a permission table exported from the backend: which menu entries and buttons a user gets.`,
}

var permissionsMenuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Print the menu a user would see",
	RunE: func(cmd *cobra.Command, args []string) error {
		grants, err := readGrants(grantsFile)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(menu.Filter(menu.Default(), grants, userID))
	},
}

var permissionsCheckCmd = &cobra.Command{
	Use:   "check [action...]",
	Short: "Report which button actions a user holds",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		grants, err := readGrants(grantsFile)
		if err != nil {
			return err
		}
		for _, action := range args {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%t\n", action, permission.CanAct(userID, action, grants))
		}
		return nil
	},
}

var (
	grantsFile string
	userID     string
)

// readGrants loads a table the way login does: malformed data is reported and
// nothing is granted.
func readGrants(path string) (permission.Grants, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read grants: %w", err)
	}
	grants, err := permission.DecodeGrants(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return grants, nil
}

func init() {
	permissionsCmd.PersistentFlags().StringVarP(&grantsFile, "grants", "g", "", "JSON file with the permission table")
	permissionsCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "user id to evaluate")
	_ = permissionsCmd.MarkPersistentFlagRequired("grants")
	_ = permissionsCmd.MarkPersistentFlagRequired("user")

	permissionsCmd.AddCommand(permissionsMenuCmd)
	permissionsCmd.AddCommand(permissionsCheckCmd)
}
