package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cortexcore/cortexd/pkg/cli"
)

var statusOutput string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running daemon's state",
	RunE:  showStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "", "output format (yaml, json); styled text by default")
	rootCmd.AddCommand(statusCmd)
}

func showStatus(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	rsps, err := client.cmdLine(cmd.Context(), "CMD:status")
	if err != nil {
		return err
	}
	line, err := firstResponse(rsps)
	if err != nil {
		return err
	}
	reply := decodeLine(line)

	if statusOutput != "" {
		return cli.Output(reply, cli.OutputOptions{Format: cli.OutputFormat(statusOutput)})
	}

	status, _ := reply["status"].(map[string]any)
	styles := cli.NewStyles(cli.DefaultTheme)
	rows := []cli.KV{
		{Key: "state", Value: str(status["state"])},
		{Key: "since", Value: str(status["since"])},
	}
	if v, ok := status["recording_for_s"]; ok {
		rows = append(rows, cli.KV{Key: "recording for", Value: str(v) + "s"})
	}
	if v, ok := reply["session_id"]; ok {
		rows = append(rows, cli.KV{Key: "session", Value: str(v)})
	}
	if v, ok := status["last_error"]; ok {
		rows = append(rows, cli.KV{Key: "last error", Value: str(v)})
	}
	rows = append(rows,
		cli.KV{Key: "disk used", Value: str(status["disk_used"])},
		cli.KV{Key: "disk free", Value: str(status["disk_free"])},
	)
	fmt.Println(styles.Title.Render("cortexd"))
	fmt.Print(styles.RenderKV(rows))
	return nil
}

func str(v any) string {
	if v == nil {
		return "-"
	}
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%v", v)
}
