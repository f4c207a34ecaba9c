package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/Strob0t/depositrelay/internal/config"
	"github.com/Strob0t/depositrelay/internal/domain/deposit"
	"github.com/Strob0t/depositrelay/internal/middleware"
)

// runAdmin dispatches admin subcommands (digest, send-webhook).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "digest":
		return runAdminDigest(args[1:])
	case "send-webhook":
		return runAdminSendWebhook(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: depositrelay admin <command> [options]

Commands:
  digest         Print the webhook signature for a secret
  send-webhook   Post a signed deposit status webhook to a running relay
  help           Show this help message

Examples:
  depositrelay admin digest
  depositrelay admin digest --secret s3cret
  depositrelay admin send-webhook --id dep123 --status Success
  depositrelay admin send-webhook --url http://relay:8080 --id dep123 --status Pending
`)
}

func runAdminDigest(args []string) error {
	fs := flag.NewFlagSet("digest", flag.ContinueOnError)
	secret := fs.String("secret", "", "webhook secret (prompted if not provided)") //nolint:gosec // CLI flag
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := resolveSecret(*secret)
	if err != nil {
		return err
	}
	fmt.Println(middleware.Digest(s))
	return nil
}

func runAdminSendWebhook(args []string) error {
	fs := flag.NewFlagSet("send-webhook", flag.ContinueOnError)
	url := fs.String("url", "http://localhost:8080", "relay base URL")
	id := fs.String("id", "", "deposit id (required)")
	status := fs.String("status", "", "deposit status, e.g. Pending, Success, Error (required)")
	secret := fs.String("secret", "", "webhook secret (config, then prompt, if not provided)") //nolint:gosec // CLI flag
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *id == "" {
		return fmt.Errorf("--id is required")
	}
	if *status == "" {
		return fmt.Errorf("--status is required")
	}

	s, err := resolveSecret(*secret)
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ev := deposit.NewStatusEvent(*id, deposit.Status(*status))
	body, err := json.Marshal(map[string]any{"event": deposit.EventDeposit, "data": ev})
	if err != nil {
		return fmt.Errorf("encode webhook: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(*url, "/")+"/webhook", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(cfg.Webhook.Header, middleware.Digest(s))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relay answered %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	fmt.Fprintf(os.Stderr, "Webhook accepted for %s (%s)\n", *id, *status)
	return nil
}

// resolveSecret picks the explicit secret, then the configured one, then
// prompts when stdin is a terminal.
func resolveSecret(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if cfg, err := config.Load(); err == nil && cfg.Webhook.Secret != "" {
		return cfg.Webhook.Secret, nil
	}
	if !term.IsTerminal(int(syscall.Stdin)) { //nolint:unconvert // int conversion needed on some platforms
		return "", fmt.Errorf("--secret is required when stdin is not a terminal")
	}
	s, err := promptSecret("Webhook secret: ")
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	if s == "" {
		return "", fmt.Errorf("secret must not be empty")
	}
	return s, nil
}

// promptSecret reads a secret from the terminal without echoing.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)                         // newline after input
	if err != nil {
		return "", err
	}
	return string(b), nil
}
