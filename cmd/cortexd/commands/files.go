package commands

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cortexcore/cortexd/pkg/cli"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List, fetch, upload, and delete artifacts",
	Long: `Work with the daemon's artifact library.

Categories: recordings, notes, logs, uploads. Recordings and uploads
can be deleted; notes and logs are protected.`,
}

var filesOutput string

var filesListCmd = &cobra.Command{
	Use:   "list <category>",
	Short: "List artifacts in a category",
	Args:  cobra.ExactArgs(1),
	RunE:  runFilesList,
}

var filesGetOut string

var filesGetCmd = &cobra.Command{
	Use:   "get <category> <name>",
	Short: "Download an artifact",
	Args:  cobra.ExactArgs(2),
	RunE:  runFilesGet,
}

var filesPutCmd = &cobra.Command{
	Use:   "put <path>",
	Short: "Upload a file into the uploads category",
	Args:  cobra.ExactArgs(1),
	RunE:  runFilesPut,
}

var filesRmCmd = &cobra.Command{
	Use:   "rm <category> <name>",
	Short: "Delete an artifact",
	Args:  cobra.ExactArgs(2),
	RunE:  runFilesRm,
}

func init() {
	filesListCmd.Flags().StringVarP(&filesOutput, "output", "o", "yaml", "output format (yaml, json)")
	filesGetCmd.Flags().StringVarP(&filesGetOut, "out", "O", "", "destination path (default the artifact name)")

	filesCmd.AddCommand(filesListCmd)
	filesCmd.AddCommand(filesGetCmd)
	filesCmd.AddCommand(filesPutCmd)
	filesCmd.AddCommand(filesRmCmd)
	rootCmd.AddCommand(filesCmd)
}

func runFilesList(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	var listing map[string]any
	if err := client.getJSON(cmd.Context(), "/files/"+url.PathEscape(args[0]), &listing); err != nil {
		return err
	}
	return cli.Output(listing, cli.OutputOptions{Format: cli.OutputFormat(filesOutput)})
}

func runFilesGet(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	cat, name := args[0], args[1]
	rsp, err := client.do(cmd.Context(), http.MethodGet,
		"/files/"+url.PathEscape(cat)+"/"+url.PathEscape(name), nil, nil)
	if err != nil {
		return err
	}
	defer rsp.Body.Close()

	dest := filesGetOut
	if dest == "" {
		dest = name
	}
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()
	n, err := io.Copy(f, rsp.Body)
	if err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	cli.PrintSuccess("wrote %s (%d bytes)", dest, n)
	return nil
}

func runFilesPut(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	header := http.Header{"X-Filename": []string{filepath.Base(args[0])}}
	rsp, err := client.do(cmd.Context(), http.MethodPost, "/files/uploads", f, header)
	if err != nil {
		return err
	}
	defer rsp.Body.Close()
	cli.PrintSuccess("uploaded %s", filepath.Base(args[0]))
	return nil
}

func runFilesRm(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	rsp, err := client.do(cmd.Context(), http.MethodDelete,
		"/files/"+url.PathEscape(args[0])+"/"+url.PathEscape(args[1]), nil, nil)
	if err != nil {
		return err
	}
	rsp.Body.Close()
	cli.PrintSuccess("deleted %s/%s", args[0], args[1])
	return nil
}
