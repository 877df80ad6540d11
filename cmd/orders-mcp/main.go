// ABOUTME: Entry point for the orders-mcp server
// ABOUTME: Serves MCP over HTTP/SSE or stdio, seeds demo data, and issues tokens

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/orders-mcp/internal/auth"
	"github.com/2389/orders-mcp/internal/config"
	"github.com/2389/orders-mcp/internal/gateway"
	"github.com/2389/orders-mcp/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                 _
  ___  _ __ __| | ___ _ __ ___       _ __ ___   ___ _ __
 / _ \| '__/ _' |/ _ \ '__/ __|_____| '_ ' _ \ / __| '_ \
| (_) | | | (_| |  __/ |  \__ \_____| | | | | | (__| |_) |
 \___/|_|  \__,_|\___|_|  |___/     |_| |_| |_|\___| .__/
                                                   |_|
`

// getConfigPath returns the path to the config file.
// Priority: ORDERS_MCP_CONFIG env var > XDG_CONFIG_HOME/orders-mcp/config.yaml > ~/.config/orders-mcp/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("ORDERS_MCP_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "orders-mcp", "config.yaml")
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: orders-mcp <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve                       Start the HTTP/SSE server")
	fmt.Fprintln(w, "  stdio                       Serve MCP over stdin/stdout")
	fmt.Fprintln(w, "  seed [--orders N --days D]  Insert sample products and orders")
	fmt.Fprintln(w, "  token --subject NAME        Issue a JWT for the configured secret")
	fmt.Fprintln(w, "  token --hash-key KEY        Print the bcrypt hash of an API key")
	fmt.Fprintln(w, "  health                      Check server readiness")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stdout)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "stdio":
		err = runStdio(ctx)
	case "seed":
		err = runSeed(ctx, os.Args[2:])
	case "token":
		err = runToken(os.Args[2:], os.Stdout)
	case "health":
		err = runHealth(ctx)
	case "help", "-h", "--help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, falling back to defaults when it does not exist.
func loadConfig() (*config.Config, string, error) {
	configPath := getConfigPath()
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, configPath, fmt.Errorf("loading config: %w", err)
	}
	return cfg, configPath, nil
}

func runServe(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", redactDSN(cfg.Database.DSN))
	green.Print("    ▶ ")
	fmt.Printf("Mail:      %s", cfg.Mail.Driver)
	if cfg.Mail.Fallback != "" {
		gray.Printf(" (fallback: %s)", cfg.Mail.Fallback)
	}
	fmt.Println()
	if cfg.Auth.Enabled {
		green.Print("    ▶ ")
		fmt.Print("Auth:      ")
		yellow.Println("bearer token required")
	}
	fmt.Println()

	logger.Info("starting orders-mcp",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"version", version,
	)

	gw, err := gateway.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

// runStdio serves one MCP client over stdin/stdout. Logs go to stderr so
// they never interleave with protocol frames.
func runStdio(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging, os.Stderr)

	core, err := gateway.NewCore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer core.Close()

	logger.Info("serving MCP over stdio", "version", version)
	return core.Dispatcher.ServeStdio(ctx, os.Stdin, os.Stdout)
}

func runSeed(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	orders := fs.Int("orders", 500, "number of orders to generate")
	days := fs.Int("days", 30, "spread orders over this many past days")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging, os.Stderr)

	st, err := store.Open(ctx, cfg.Database.DSN, cfg.Database.Driver, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	res, err := st.Seed(ctx, store.SeedOptions{Orders: *orders, Days: *days})
	if err != nil {
		return fmt.Errorf("seeding: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("Inserted %d products and %d orders\n", res.Products, res.Orders)
	return nil
}

// runToken issues a JWT signed with auth.jwt_secret, or hashes an API key for auth.api_keys.
func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("subject", "", "token subject (client name)")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "token lifetime")
	hashKey := fs.String("hash-key", "", "print the bcrypt hash of this API key instead")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *hashKey != "" {
		hash, err := auth.HashAPIKey(*hashKey)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, hash)
		return nil
	}

	if strings.TrimSpace(*subject) == "" {
		return fmt.Errorf("--subject flag is required")
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is not configured")
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return err
	}
	token, err := verifier.Generate(*subject, *ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	fmt.Fprintln(out, token)
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s%s", dialAddr(cfg.Server.HTTPAddr), gateway.ReadyPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Println(string(body))
	return nil
}

// dialAddr turns a listen address like ":8080" into one a client can dial.
func dialAddr(listen string) string {
	if strings.HasPrefix(listen, ":") {
		return "localhost" + listen
	}
	return listen
}

// redactDSN hides the password in URL-style DSNs.
func redactDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	userinfo, host, ok := strings.Cut(rest, "@")
	if !ok {
		return dsn
	}
	if user, _, hasPass := strings.Cut(userinfo, ":"); hasPass {
		return scheme + "://" + user + ":****@" + host
	}
	return dsn
}
