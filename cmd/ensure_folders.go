package cmd

import (
	"fmt"

	"github.com/FranLegon/drive-doc-relay/internal/logger"
	"github.com/spf13/cobra"
)

var ensureToken string

var ensureFoldersCmd = &cobra.Command{
	Use:   "ensure-folders",
	Short: "Create the root folder and its default subfolders for one account",
	Long: `Creates the configured root folder and its default subfolders in the drive
of the account owning the access token, if they do not exist yet. The token is
read from --token or prompted for.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		svc, err := serviceForToken(cmd.Context(), cfg, ensureToken)
		if err != nil {
			return err
		}

		rootID, err := newRunner(cfg).EnsureFolders(cmd.Context(), svc)
		if err != nil {
			return err
		}

		logger.Info("Folders ready under '%s'", cfg.Folders.Root)
		fmt.Fprintln(cmd.OutOrStdout(), rootID)
		return nil
	},
}

func init() {
	ensureFoldersCmd.Flags().StringVarP(&ensureToken, "token", "t", "", "OAuth access token (prompted when omitted)")
}
