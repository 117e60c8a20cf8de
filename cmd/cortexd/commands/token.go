package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cortexcore/cortexd/pkg/cli"
	"github.com/cortexcore/cortexd/pkg/httpapi"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Show or rotate the API token",
	Long: `Show or rotate the bearer token protecting the HTTP API.

The token lives in the data directory and is created on first use. It
is the same token the daemon hands to the wearable in the DISCOVER
frame.`,
	RunE: showToken,
}

var tokenRotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Replace the token with a fresh one",
	Long: `Replace the token with a fresh one.

A running daemon keeps serving the old token until it is restarted.`,
	RunE: rotateToken,
}

func init() {
	tokenCmd.AddCommand(tokenRotateCmd)
	rootCmd.AddCommand(tokenCmd)
}

func showToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	token, err := httpapi.LoadOrCreateToken(cfg.TokenPath())
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func rotateToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := os.Remove(cfg.TokenPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove old token: %w", err)
	}
	token, err := httpapi.LoadOrCreateToken(cfg.TokenPath())
	if err != nil {
		return err
	}
	cli.PrintSuccess("token rotated; restart the daemon to apply")
	fmt.Println(token)
	return nil
}
