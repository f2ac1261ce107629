package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"savegrid.ai/internal/protocol"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	view := fs.String("view", "state", "state|metrics|comparison|failures|hospitals|ambulances|supply|authority|decisions")
	_ = fs.Parse(args)

	do(http.MethodGet, endpoint(*baseURL, "/v1/"+strings.TrimSpace(*view)), nil)
}

// simulateCmd drives the session: step [-n N] or reset.
func simulateCmd(op string, args []string) {
	fs := flag.NewFlagSet(op, flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	n := fs.Int("n", 1, "ticks to run (step only, 1..20)")
	_ = fs.Parse(args)

	path := "/v1/simulate/reset"
	if op == "step" {
		path = "/v1/simulate/step"
		if *n > 1 {
			path = fmt.Sprintf("/v1/simulate/run/%d", *n)
		}
	}
	do(http.MethodPost, endpoint(*baseURL, path), nil)
}

func policyCmd(args []string) {
	fs := flag.NewFlagSet("policy", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	severity := fs.Float64("severity", -1, "new authority severity in [0,1] (optional)")
	enable := fs.String("enable", "", "comma-separated rules to enable")
	disable := fs.String("disable", "", "comma-separated rules to disable")
	reason := fs.String("reason", "", "audit reason")
	_ = fs.Parse(args)

	m := protocol.PolicyMsg{
		Type:            protocol.TypePolicy,
		ProtocolVersion: protocol.Version,
		ReqID:           fmt.Sprintf("admin_%d", time.Now().UnixNano()),
		Reason:          *reason,
	}
	if *severity >= 0 {
		m.Severity = severity
	}
	rules := map[string]bool{}
	for _, r := range splitList(*enable) {
		rules[r] = true
	}
	for _, r := range splitList(*disable) {
		rules[r] = false
	}
	if len(rules) > 0 {
		m.Rules = rules
	}
	if m.Severity == nil && m.Rules == nil {
		fmt.Fprintln(os.Stderr, "nothing to change: set -severity, -enable or -disable")
		os.Exit(2)
	}
	b, _ := json.Marshal(m)
	do(http.MethodPost, endpoint(*baseURL, "/v1/policy"), b)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func endpoint(base, path string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/") + path
}

func do(method, u string, body []byte) {
	req, _ := http.NewRequest(method, u, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	cl := &http.Client{Timeout: 30 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
