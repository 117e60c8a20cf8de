package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

var (
	flagAddr  string
	flagToken string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagAddr, "addr", "", "daemon API address (default from config)")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "API token (default from the data directory)")
}

// apiClient talks to a running daemon over its HTTP API.
type apiClient struct {
	base  string
	token string
	http  *http.Client
}

// newAPIClient resolves the address and token from flags, falling back
// to the config file and the token file in the data directory.
func newAPIClient() (*apiClient, error) {
	addr := flagAddr
	token := flagToken
	if addr == "" || token == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		if addr == "" {
			addr = fmt.Sprintf("http://127.0.0.1:%d", cfg.HTTP.Port)
		}
		if token == "" {
			b, err := os.ReadFile(cfg.TokenPath())
			if err != nil {
				return nil, fmt.Errorf("token not available (is the daemon running?): %w", err)
			}
			token = strings.TrimSpace(string(b))
		}
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &apiClient{
		base:  strings.TrimRight(addr, "/"),
		token: token,
		http:  &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

// do issues an authenticated request and fails on non-2xx statuses,
// surfacing the API's error field when present.
func (c *apiClient) do(ctx context.Context, method, path string, body io.Reader, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rsp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if rsp.StatusCode >= 300 {
		defer rsp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(rsp.Body, 4096))
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("%s %s: %s (%s)", method, path, apiErr.Error, rsp.Status)
		}
		return nil, fmt.Errorf("%s %s: %s", method, path, rsp.Status)
	}
	return rsp, nil
}

// cmdLine sends one protocol line and returns the response lines.
func (c *apiClient) cmdLine(ctx context.Context, line string) ([]string, error) {
	rsp, err := c.do(ctx, http.MethodPost, "/api/cmd", strings.NewReader(line), nil)
	if err != nil {
		return nil, err
	}
	defer rsp.Body.Close()

	var out struct {
		Responses []string `json:"responses"`
	}
	if err := json.NewDecoder(rsp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Responses, nil
}

// getJSON fetches path and decodes the JSON body into v.
func (c *apiClient) getJSON(ctx context.Context, path string, v any) error {
	rsp, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}
	defer rsp.Body.Close()
	return json.NewDecoder(rsp.Body).Decode(v)
}

// decodeLine parses one JSON response line into a generic map. Protocol
// replies that are not JSON (CMD:ack, CMD:err) come back as-is under
// the "line" key.
func decodeLine(line string) map[string]any {
	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		return map[string]any{"line": line}
	}
	return m
}

// firstResponse returns the single expected response line, erroring on
// CMD:err replies.
func firstResponse(rsps []string) (string, error) {
	if len(rsps) == 0 {
		return "", fmt.Errorf("no response from daemon")
	}
	line := rsps[0]
	if strings.HasPrefix(line, "CMD:err:") {
		return "", fmt.Errorf("daemon: %s", strings.TrimPrefix(line, "CMD:err:"))
	}
	return line, nil
}
