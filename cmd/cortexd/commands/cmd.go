package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cmdCmd = &cobra.Command{
	Use:   "cmd <line>",
	Short: "Send a raw protocol line to the daemon",
	Long: `Send a raw protocol line to the daemon and print the response lines.

The line is routed exactly as if it had arrived over BLE, so all three
shapes work: CMD: commands, one-line JSON messages, and plain text
(which is captured as a note).

Examples:
  cortexd cmd CMD:ping
  cortexd cmd 'CMD:note:call the landlord'
  cortexd cmd '{"type":"status_request"}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		rsps, err := client.cmdLine(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, line := range rsps {
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cmdCmd)
}
