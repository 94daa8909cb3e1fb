package cmd

import (
	"errors"
	"fmt"

	"github.com/FranLegon/drive-doc-relay/internal/api"
	"github.com/spf13/cobra"
)

var checkToken string

var checkTokenCmd = &cobra.Command{
	Use:   "check-token",
	Short: "Check that an access token is accepted by the configured provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		svc, err := serviceForToken(cmd.Context(), cfg, checkToken)
		if err != nil {
			return err
		}

		if err := newRunner(cfg).CheckToken(cmd.Context(), svc); err != nil {
			if errors.Is(err, api.ErrUnauthenticated) {
				fmt.Fprintf(cmd.OutOrStdout(), "Token is invalid for %s.\n", cfg.Provider.DisplayName())
			}
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Token is valid for %s.\n", cfg.Provider.DisplayName())
		return nil
	},
}

func init() {
	checkTokenCmd.Flags().StringVarP(&checkToken, "token", "t", "", "OAuth access token (prompted when omitted)")
}
