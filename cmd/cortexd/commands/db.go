package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/itchyny/gojq"
	"github.com/spf13/cobra"

	"github.com/cortexcore/cortexd/pkg/cli"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Query tables and snapshot the database",
}

var (
	queryFilters []string
	queryLimit   int
	queryJQ      string
	queryOutput  string
)

var dbQueryCmd = &cobra.Command{
	Use:   "query <table>",
	Short: "Query rows from a table",
	Long: `Query rows from a table on the running daemon.

Tables: sessions, notes, activities, searches, projects, computers,
people, files. Filters match string fields by case-insensitive
substring and other fields by equality.

Examples:
  cortexd db query notes --limit 10
  cortexd db query notes --filter source=transcript
  cortexd db query sessions --jq '.rows[] | .computer'`,
	Args: cobra.ExactArgs(1),
	RunE: runDBQuery,
}

var snapshotOut string

var dbSnapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Download a consistent database backup",
	RunE:  runDBSnapshot,
}

func init() {
	dbQueryCmd.Flags().StringArrayVar(&queryFilters, "filter", nil, "field filter as key=value (repeatable)")
	dbQueryCmd.Flags().IntVar(&queryLimit, "limit", 0, "max rows (0 for the server default)")
	dbQueryCmd.Flags().StringVar(&queryJQ, "jq", "", "jq expression applied to the result")
	dbQueryCmd.Flags().StringVarP(&queryOutput, "output", "o", "json", "output format (json, yaml)")

	dbSnapshotCmd.Flags().StringVarP(&snapshotOut, "out", "O", "cortexd.backup", "destination file")

	dbCmd.AddCommand(dbQueryCmd)
	dbCmd.AddCommand(dbSnapshotCmd)
	rootCmd.AddCommand(dbCmd)
}

func runDBQuery(cmd *cobra.Command, args []string) error {
	filters := make(map[string]string, len(queryFilters))
	for _, f := range queryFilters {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" {
			return fmt.Errorf("invalid filter %q, want key=value", f)
		}
		filters[k] = v
	}

	payload, err := json.Marshal(struct {
		Table   string            `json:"table"`
		Filters map[string]string `json:"filters,omitempty"`
		Limit   int               `json:"limit,omitempty"`
	}{args[0], filters, queryLimit})
	if err != nil {
		return err
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}
	rsps, err := client.cmdLine(cmd.Context(), "CMD:query:"+string(payload))
	if err != nil {
		return err
	}
	line, err := firstResponse(rsps)
	if err != nil {
		return err
	}

	var result any
	if err := json.Unmarshal([]byte(line), &result); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}

	if queryJQ == "" {
		return cli.Output(result, cli.OutputOptions{Format: cli.OutputFormat(queryOutput)})
	}

	query, err := gojq.Parse(queryJQ)
	if err != nil {
		return fmt.Errorf("invalid jq expression %q: %w", queryJQ, err)
	}
	iter := query.Run(result)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return fmt.Errorf("jq: %w", err)
		}
		if err := cli.Output(v, cli.OutputOptions{Format: cli.OutputFormat(queryOutput)}); err != nil {
			return err
		}
	}
	return nil
}

func runDBSnapshot(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	rsp, err := client.do(cmd.Context(), http.MethodGet, "/files/db", nil, nil)
	if err != nil {
		return err
	}
	defer rsp.Body.Close()

	f, err := os.Create(snapshotOut)
	if err != nil {
		return err
	}
	defer f.Close()
	n, err := io.Copy(f, rsp.Body)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	cli.PrintSuccess("wrote %s (%d bytes)", snapshotOut, n)
	return nil
}
