package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/invoice-ocr/internal/acquisition"
	"github.com/zombor/invoice-ocr/internal/invoice"
	"github.com/zombor/invoice-ocr/internal/scanning"
	"github.com/zombor/invoice-ocr/internal/schema"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

// options shared by every subcommand
type options struct {
	provider  *string
	apiKey    *string
	model     *string
	baseURL   *string
	lineItems *string
	urlMIME   *string
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	rootFlags := ff.NewFlagSet("invoice-ocr")
	opts := options{
		provider:  rootFlags.StringLong("provider", "groq", "Model provider: 'groq', 'openai', 'gemini' or 'ollama'"),
		apiKey:    rootFlags.StringLong("api-key", "", "Provider API key (or set GROQ_API_KEY, OPENAI_API_KEY or GEMINI_API_KEY)"),
		model:     rootFlags.StringLong("model", "", "Model name (defaults per provider)"),
		baseURL:   rootFlags.StringLong("base-url", "", "Provider API base URL (defaults per provider)"),
		lineItems: rootFlags.StringLong("line-items", "strict", "Malformed line items: 'strict' rejects the invoice, 'tolerant' drops the item"),
		urlMIME:   rootFlags.StringLong("url-mime", "header", "MIME type for URL images: 'header' trusts Content-Type, 'fixed' always sends image/jpeg"),
	}
	rootFlags.BoolLong("version", "Show version information")

	serveFlags := ff.NewFlagSet("serve").SetParent(rootFlags)
	var (
		port     = serveFlags.IntLong("port", 8080, "HTTP server port")
		authUser = serveFlags.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass = serveFlags.StringLong("auth-pass", "", "Basic auth password (optional)")
	)
	serveCmd := &ff.Command{
		Name:      "serve",
		Usage:     "invoice-ocr serve [FLAGS]",
		ShortHelp: "run the web interface",
		Flags:     serveFlags,
		Exec: func(ctx context.Context, args []string) error {
			service, closeFn, err := buildService(ctx, opts)
			if err != nil {
				return err
			}
			defer closeFn()
			return serve(ctx, service, *port, invoice.BasicAuth{Username: *authUser, Password: *authPass})
		},
	}

	extractFlags := ff.NewFlagSet("extract").SetParent(rootFlags)
	var (
		file     = extractFlags.StringLong("file", "", "Path to a .png, .jpg or .jpeg invoice image")
		imageURL = extractFlags.StringLong("url", "", "URL of an invoice image")
	)
	extractCmd := &ff.Command{
		Name:      "extract",
		Usage:     "invoice-ocr extract (--file PATH | --url URL) [FLAGS]",
		ShortHelp: "extract one invoice and print it as JSON",
		Flags:     extractFlags,
		Exec: func(ctx context.Context, args []string) error {
			service, closeFn, err := buildService(ctx, opts)
			if err != nil {
				return err
			}
			defer closeFn()
			return extract(ctx, service, *file, *imageURL)
		},
	}

	rootCmd := &ff.Command{
		Name:        "invoice-ocr",
		Usage:       "invoice-ocr <SUBCOMMAND> [FLAGS]",
		ShortHelp:   "extract structured data from invoice images with a multimodal model",
		Flags:       rootFlags,
		Subcommands: []*ff.Command{serveCmd, extractCmd},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.Parse(os.Args[1:], ff.WithEnvVarPrefix("INVOICE_OCR")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Command(rootCmd.GetSelected()))
		if errors.Is(err, ff.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := rootCmd.Run(ctx); err != nil {
		if errors.Is(err, ff.ErrNoExec) {
			fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Command(rootCmd))
			os.Exit(1)
		}
		var failure failureError
		if errors.As(err, &failure) {
			fmt.Fprintln(os.Stderr, failure.Display())
			os.Exit(1)
		}
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// buildService wires the validator, fetcher and scanner from flags.
// The returned func closes the scanner.
func buildService(ctx context.Context, opts options) (*invoice.Service, func(), error) {
	provider, err := scanning.ParseProvider(*opts.provider)
	if err != nil {
		return nil, nil, err
	}
	policy, err := schema.ParseLineItemPolicy(*opts.lineItems)
	if err != nil {
		return nil, nil, err
	}
	mimePolicy, err := acquisition.ParseMIMEPolicy(*opts.urlMIME)
	if err != nil {
		return nil, nil, err
	}

	// Get API key from flag or the provider's conventional environment variable
	apiKey := *opts.apiKey
	if envVar := scanning.APIKeyEnvVar(provider); apiKey == "" && envVar != "" {
		apiKey = os.Getenv(envVar)
		if apiKey == "" {
			return nil, nil, fmt.Errorf("%s API key is required. Set --api-key flag or %s environment variable", provider, envVar)
		}
	}

	validator, err := schema.NewValidator(policy)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing validator: %w", err)
	}

	cfg := scanning.Config{
		Provider: provider,
		APIKey:   apiKey,
		Model:    *opts.model,
		BaseURL:  *opts.baseURL,
	}.WithDefaults()
	slog.Info("Initializing scanner...", "provider", cfg.Provider, "model", cfg.Model, "base_url", cfg.BaseURL)
	scanner, err := scanning.New(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing %s scanner: %w", provider, err)
	}

	fetcher := acquisition.NewFetcher(&http.Client{}, mimePolicy)
	closeFn := func() {
		if err := scanner.Close(); err != nil {
			slog.Error("Failed to close scanner", "error", err)
		}
	}
	return invoice.NewService(scanner, fetcher, validator), closeFn, nil
}

func serve(ctx context.Context, service *invoice.Service, port int, basicAuth invoice.BasicAuth) error {
	server := invoice.NewServer(service, basicAuth)

	addr := fmt.Sprintf(":%d", port)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(addr)
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if basicAuth.Username != "" || basicAuth.Password != "" {
		slog.Info("Basic auth enabled", "user", basicAuth.Username)
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("Shutting down...")
		return nil
	}
}

// failureError carries a pipeline failure to main for display.
type failureError struct {
	invoice.Failure
}

func (e failureError) Error() string { return e.Message }

func extract(ctx context.Context, service *invoice.Service, file, imageURL string) error {
	in := invoice.Input{URL: imageURL}
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return fmt.Errorf("opening %s: %w", file, err)
		}
		defer f.Close()
		in = invoice.Input{File: f, Filename: file}
	}

	result, err := service.Extract(ctx, in)
	if err != nil {
		return failureError{invoice.DescribeError(err)}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
