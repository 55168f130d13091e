package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive client for a running nuka-cs server",
		RunE:  runChat,
	}
	cmd.Flags().String("server", "http://localhost:8090", "nuka-cs server URL")
	cmd.Flags().String("user", "cli-user", "User ID")
	cmd.Flags().String("session", "cli", "Session ID")

	rootCmd.AddCommand(cmd)
}

type chatClient struct {
	server  string
	user    string
	session string
	http    *http.Client
	out     io.Writer
}

func runChat(cmd *cobra.Command, args []string) error {
	server, _ := cmd.Flags().GetString("server")
	user, _ := cmd.Flags().GetString("user")
	session, _ := cmd.Flags().GetString("session")
	c := &chatClient{
		server:  strings.TrimRight(server, "/"),
		user:    user,
		session: session,
		http:    &http.Client{Timeout: 30 * time.Second},
		out:     cmd.OutOrStdout(),
	}

	fmt.Fprintln(c.out, "nuka-cs chat")
	fmt.Fprintf(c.out, "Server: %s | User: %s | Session: %s\n", c.server, c.user, c.session)
	fmt.Fprintln(c.out, "Type 'exit' or 'quit' to leave.")
	fmt.Fprintln(c.out, "Commands: /analyzers, /context, /summary, /reply <text>")
	fmt.Fprintln(c.out, "---")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(c.out, "\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		switch {
		case input == "":
			continue
		case input == "exit" || input == "quit":
			fmt.Fprintln(c.out, "Bye!")
			return nil
		case input == "/analyzers":
			c.fetchAnalyzers()
		case input == "/context":
			c.fetchContext()
		case input == "/summary":
			c.fetchSummary()
		case strings.HasPrefix(input, "/reply "):
			c.sendReply(strings.TrimSpace(strings.TrimPrefix(input, "/reply ")))
		default:
			c.sendMessage(input)
		}
	}
	return scanner.Err()
}

func (c *chatClient) userPath() string {
	return "/api/users/" + url.PathEscape(c.user)
}

func (c *chatClient) sessionPath() string {
	return c.userPath() + "/sessions/" + url.PathEscape(c.session)
}

func (c *chatClient) sendMessage(content string) {
	var outcome struct {
		PreviousState string   `json:"previous_state"`
		State         string   `json:"state"`
		Rule          string   `json:"rule"`
		NextActions   []string `json:"next_actions"`
		Signals       map[string]struct {
			Success bool            `json:"success"`
			Payload json.RawMessage `json:"payload"`
			Error   string          `json:"error"`
		} `json:"signals"`
	}
	err := c.post("/api/analyze", map[string]string{
		"user_id":    c.user,
		"session_id": c.session,
		"message":    content,
	}, &outcome)
	if err != nil {
		printError("%v", err)
		return
	}

	fmt.Fprintf(c.out, "\033[36m[%s → %s]\033[0m rule=%s next=%v\n",
		outcome.PreviousState, outcome.State, outcome.Rule, outcome.NextActions)

	if s, ok := outcome.Signals["sentiment"]; ok && s.Success {
		var p struct {
			Label      string  `json:"label"`
			Confidence float64 `json:"confidence"`
		}
		if json.Unmarshal(s.Payload, &p) == nil {
			fmt.Fprintf(c.out, "  sentiment: %s (%.2f)\n", p.Label, p.Confidence)
		}
	}
	if s, ok := outcome.Signals["tag"]; ok && s.Success {
		var p struct {
			Tags []string `json:"tags"`
		}
		if json.Unmarshal(s.Payload, &p) == nil && len(p.Tags) > 0 {
			fmt.Fprintf(c.out, "  tags: %s\n", strings.Join(p.Tags, ", "))
		}
	}
	for name, s := range outcome.Signals {
		if !s.Success {
			fmt.Fprintf(c.out, "  \033[33m%s failed: %s\033[0m\n", name, s.Error)
		}
	}
}

func (c *chatClient) sendReply(text string) {
	if text == "" {
		printError("Usage: /reply <text>")
		return
	}
	if err := c.post(c.sessionPath()+"/reply", map[string]string{"text": text}, nil); err != nil {
		printError("%v", err)
		return
	}
	fmt.Fprintln(c.out, "reply recorded")
}

func (c *chatClient) fetchAnalyzers() {
	var status []struct {
		Name     string `json:"name"`
		Active   bool   `json:"active"`
		Priority int    `json:"priority"`
		Calls    int64  `json:"calls"`
		Failures int64  `json:"failures"`
	}
	if err := c.get("/api/analyzers", &status); err != nil {
		printError("%v", err)
		return
	}
	fmt.Fprintln(c.out, "Analyzers:")
	for _, s := range status {
		icon := "\033[31m✗\033[0m"
		if s.Active {
			icon = "\033[32m✓\033[0m"
		}
		fmt.Fprintf(c.out, "  %s %s (priority %d, %d calls, %d failures)\n", icon, s.Name, s.Priority, s.Calls, s.Failures)
	}
}

func (c *chatClient) fetchContext() {
	var body struct {
		Prompt string `json:"prompt"`
	}
	if err := c.get(c.sessionPath()+"/context", &body); err != nil {
		printError("%v", err)
		return
	}
	fmt.Fprintln(c.out, body.Prompt)
}

func (c *chatClient) fetchSummary() {
	var body json.RawMessage
	if err := c.get(c.userPath()+"/summary", &body); err != nil {
		printError("%v", err)
		return
	}
	var buf bytes.Buffer
	if json.Indent(&buf, body, "", "  ") == nil {
		fmt.Fprintln(c.out, buf.String())
	}
}

func (c *chatClient) post(path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	resp, err := c.http.Post(c.server+path, "application/json", bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return decodeResponse(resp, out)
}

func (c *chatClient) get(path string, out any) error {
	resp, err := c.http.Get(c.server + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
