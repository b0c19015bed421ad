package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"poker-table/internal/auth"
)

// newTokenCmd issues a websocket token for local testing.
func newTokenCmd(v *viper.Viper) *cobra.Command {
	var envFile, playerID string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed token for a player id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v, envFile)
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is not set, tokens are not required")
			}
			token, err := auth.NewService(cfg.JWTSecret).GenerateToken(playerID)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	addEnvFileFlag(cmd, &envFile)
	cmd.Flags().StringVar(&playerID, "player", "", "player id to put in the user_id claim")
	_ = cmd.MarkFlagRequired("player")
	return cmd
}
