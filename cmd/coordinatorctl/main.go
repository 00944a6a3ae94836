// Command coordinatorctl is an operator CLI for the admin-gated endpoints
// of coordinatord (spec §4.6's update_fee/update_status/remove_liquidity
// mutations and §4.7's analytics export), driven over HTTPS with a bearer
// token entered interactively or supplied out of band.
package main

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/term"
)

const defaultTokenEnv = "AMMRELAY_ADMIN_TOKEN"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "update-fee":
		err = runUpdateFee(os.Args[2:])
	case "update-status":
		err = runUpdateStatus(os.Args[2:])
	case "remove-liquidity":
		err = runRemoveLiquidity(os.Args[2:])
	case "analytics-export":
		err = runAnalyticsExport(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "coordinatorctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("coordinatorctl <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  update-fee         set an anchor pool's fee_bps")
	fmt.Println("  update-status      set an anchor pool's status")
	fmt.Println("  remove-liquidity   burn an anchor pool's seed-wallet shares")
	fmt.Println("  analytics-export   download the parquet TVL/volume/APY snapshot")
}

type commonFlags struct {
	fs          *flag.FlagSet
	server      string
	insecureTLS bool
	tokenEnv    string
	timeout     time.Duration
}

func newCommonFlags(name string) *commonFlags {
	c := &commonFlags{fs: flag.NewFlagSet(name, flag.ExitOnError)}
	c.fs.StringVar(&c.server, "server", "https://127.0.0.1:8443", "coordinatord base URL")
	c.fs.BoolVar(&c.insecureTLS, "insecure-tls", false, "DEV ONLY: skip TLS certificate verification")
	c.fs.StringVar(&c.tokenEnv, "token-env", defaultTokenEnv, "environment variable holding the admin bearer token")
	c.fs.DurationVar(&c.timeout, "timeout", 10*time.Second, "request timeout")
	return c
}

func (c *commonFlags) client() *http.Client {
	transport := &http.Transport{}
	if c.insecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{Transport: transport, Timeout: c.timeout}
}

func (c *commonFlags) token() (string, error) {
	if value, ok := os.LookupEnv(c.tokenEnv); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return "", fmt.Errorf("%s is set but empty", c.tokenEnv)
		}
		return trimmed, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("admin bearer token required; set %s or run interactively", c.tokenEnv)
	}
	fmt.Fprint(os.Stderr, "Enter admin bearer token: ")
	bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(string(bytes))
	if token == "" {
		return "", fmt.Errorf("admin bearer token cannot be empty")
	}
	return token, nil
}

func (c *commonFlags) doJSON(method, path string, body any, out any) error {
	token, err := c.token()
	if err != nil {
		return err
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, strings.TrimRight(c.server, "/")+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client().Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %s: %s", resp.Status, string(data))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func runUpdateFee(args []string) error {
	c := newCommonFlags("update-fee")
	pool := c.fs.String("pool", "", "anchor pool address")
	caller := c.fs.String("caller", "", "creator address authorizing the change")
	feeBps := c.fs.Uint("fee-bps", 0, "new fee, in basis points")
	c.fs.Parse(args)

	if *pool == "" || *caller == "" {
		return fmt.Errorf("-pool and -caller are required")
	}

	var out map[string]any
	err := c.doJSON(http.MethodPost, "/anchor-pools/update-fee", map[string]any{
		"pool_address": *pool,
		"caller":       *caller,
		"new_fee_bps":  *feeBps,
	}, &out)
	if err != nil {
		return err
	}
	return printJSON(out)
}

func runUpdateStatus(args []string) error {
	c := newCommonFlags("update-status")
	pool := c.fs.String("pool", "", "anchor pool address")
	caller := c.fs.String("caller", "", "creator address authorizing the change")
	status := c.fs.String("status", "", "new status (active|paused|closed)")
	c.fs.Parse(args)

	if *pool == "" || *caller == "" || *status == "" {
		return fmt.Errorf("-pool, -caller, and -status are required")
	}

	var out map[string]any
	err := c.doJSON(http.MethodPost, "/anchor-pools/update-status", map[string]any{
		"pool_address": *pool,
		"caller":       *caller,
		"new_status":   *status,
	}, &out)
	if err != nil {
		return err
	}
	return printJSON(out)
}

func runRemoveLiquidity(args []string) error {
	c := newCommonFlags("remove-liquidity")
	pool := c.fs.String("pool", "", "anchor pool address")
	user := c.fs.String("user", "", "seed-wallet address burning shares")
	shares := c.fs.String("shares", "", "LP shares to burn")
	aMin := c.fs.String("a-min", "0", "minimum token A returned")
	bMin := c.fs.String("b-min", "0", "minimum token B returned")
	c.fs.Parse(args)

	if *pool == "" || *user == "" || *shares == "" {
		return fmt.Errorf("-pool, -user, and -shares are required")
	}

	var out map[string]any
	err := c.doJSON(http.MethodPost, "/anchor-pools/remove-liquidity", map[string]any{
		"pool_address":   *pool,
		"user":           *user,
		"shares_to_burn": *shares,
		"a_min":          *aMin,
		"b_min":          *bMin,
	}, &out)
	if err != nil {
		return err
	}
	return printJSON(out)
}

func runAnalyticsExport(args []string) error {
	c := newCommonFlags("analytics-export")
	out := c.fs.String("out", "ammrelay-analytics.parquet", "output file path")
	c.fs.Parse(args)

	token, err := c.token()
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(c.server, "/")+"/admin/analytics/export", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client().Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %s: %s", resp.Status, string(data))
	}

	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("create %s: %w", *out, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("write %s: %w", *out, err)
	}
	fmt.Printf("wrote %s\n", *out)
	return nil
}

func printJSON(v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
