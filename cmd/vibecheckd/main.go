package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/herta-labs/vibechecker/internal/auth"
	"github.com/herta-labs/vibechecker/internal/client"
	"github.com/herta-labs/vibechecker/internal/config"
	httpapp "github.com/herta-labs/vibechecker/internal/http"
	"github.com/herta-labs/vibechecker/internal/moderation"
	"github.com/herta-labs/vibechecker/internal/store/sqlite"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// CLIConfig holds the CLI client configuration persisted to disk.
type CLIConfig struct {
	BaseURL      string `json:"base_url"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Token        string `json:"token"`
	TokenExp     string `json:"token_expires"`
}

func main() {
	if len(os.Args) < 2 {
		runServer()
		return
	}

	cmd := os.Args[1]

	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		printUsage()
		return
	}
	if cmd == "-v" || cmd == "--version" || cmd == "version" {
		fmt.Println("vibecheckd v1.0.0")
		return
	}
	if strings.HasPrefix(cmd, "-") {
		runServer()
		return
	}

	args := os.Args[2:]

	switch cmd {
	case "server", "serve":
		runServer()
	case "register":
		cmdRegister(args)
	case "auth", "login":
		cmdLogin(args)
	case "words":
		cmdWords(args)
	case "detect":
		cmdDetect(args)
	case "vibe":
		cmdVibe(args)
	case "history", "vibes":
		cmdHistory(args)
	case "status", "whoami":
		cmdStatus(args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`vibecheckd - sentiment scoring and word-list moderation API

Usage: vibecheckd <command> [options]

Quick Start:
  vibecheckd register --name my-app       # Register + authenticate
  vibecheckd vibe "I love this"

Client Commands:
  register            Register a client application and authenticate
  auth                Re-authenticate (when the token expires)
  words               Add or remove blacklist/whitelist words
  detect              Detect blacklisted words in a text
  vibe                Score the sentiment of a text
  history             Show your analysis history
  status              Show current config and token status

Server:
  server              Run the API server (default with no arguments)

Environment (server):
  VIBECHECK_ADDR, PORT, VIBECHECK_DB, VIBECHECK_JWT_SECRET,
  VIBECHECK_TOKEN_TTL, VIBECHECK_CHALLENGE_TTL,
  DEMO_CLIENT_ID, DEMO_CLIENT_SECRET, REQUIRE_MATH_CHALLENGE`)
}

func runServer() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	st, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal("open store", zap.Error(err), zap.String("path", cfg.DBPath))
	}
	defer st.Close()

	authSvc := auth.NewService(st, []byte(cfg.JWTSecret), cfg.TokenTTL, cfg.ChallengeTTL)
	if err := authSvc.EnsureDemoClient(context.Background(), cfg.DemoClientID, cfg.DemoClientSecret); err != nil {
		logger.Fatal("ensure demo client", zap.Error(err))
	}
	mod := moderation.NewService(st)
	server := httpapp.NewServer(st, authSvc, mod, cfg, logger)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting",
			zap.String("addr", cfg.Addr),
			zap.String("db", cfg.DBPath),
			zap.Bool("require_challenge", cfg.RequireChallenge),
		)
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("shutdown", zap.Error(err))
		}
	}
}

func configPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vibechecker.json"
	}
	return filepath.Join(home, ".vibechecker.json")
}

func loadCLIConfig() CLIConfig {
	cfg := CLIConfig{BaseURL: "http://localhost:8080"}
	data, err := os.ReadFile(configPath())
	if err != nil {
		return cfg
	}
	_ = json.Unmarshal(data, &cfg)
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	return cfg
}

func saveCLIConfig(cfg CLIConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(configPath(), data, 0o600)
}

func newClient(cfg CLIConfig) *client.Client {
	c := client.New(cfg.BaseURL)
	c.ClientID = cfg.ClientID
	c.ClientSecret = cfg.ClientSecret
	c.Token = cfg.Token
	return c
}

func cmdRegister(args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	name := fs.String("name", "", "application name (required)")
	email := fs.String("email", "", "contact email")
	uri := fs.String("uri", "", "homepage URI")
	baseURL := fs.String("url", "", "server base URL")
	_ = fs.Parse(args)

	if *name == "" {
		fmt.Fprintln(os.Stderr, "register: --name is required")
		os.Exit(1)
	}

	cfg := loadCLIConfig()
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	c := newClient(cfg)
	if err := c.Register(*name, *email, *uri); err != nil {
		fail("register", err)
	}
	if err := c.Login(); err != nil {
		fail("authenticate", err)
	}

	cfg.ClientID = c.ClientID
	cfg.ClientSecret = c.ClientSecret
	cfg.Token = c.Token
	cfg.TokenExp = c.TokenExp.Format(time.RFC3339)
	if err := saveCLIConfig(cfg); err != nil {
		fail("save config", err)
	}
	fmt.Printf("Registered as %s (credentials saved to %s)\n", c.ClientID, configPath())
}

func cmdLogin(args []string) {
	fs := flag.NewFlagSet("auth", flag.ExitOnError)
	_ = fs.Parse(args)

	cfg := loadCLIConfig()
	c := newClient(cfg)
	if err := c.Login(); err != nil {
		fail("authenticate", err)
	}
	cfg.Token = c.Token
	cfg.TokenExp = c.TokenExp.Format(time.RFC3339)
	if err := saveCLIConfig(cfg); err != nil {
		fail("save config", err)
	}
	fmt.Println("Token refreshed")
}

func cmdWords(args []string) {
	fs := flag.NewFlagSet("words", flag.ExitOnError)
	action := fs.String("action", "add", "add or remove")
	category := fs.String("category", "blacklist", "blacklist or whitelist")
	_ = fs.Parse(args)

	words := fs.Args()
	if len(words) == 0 {
		fmt.Fprintln(os.Stderr, "words: at least one word is required")
		os.Exit(1)
	}

	c := newClient(loadCLIConfig())
	msg, err := c.CustomWords(*action, *category, words)
	if err != nil {
		fail("custom-words", err)
	}
	fmt.Println(msg)
}

func cmdDetect(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "detect: a text argument is required")
		os.Exit(1)
	}
	c := newClient(loadCLIConfig())
	profane, words, err := c.Detect(strings.Join(args, " "))
	if err != nil {
		fail("detect", err)
	}
	if profane {
		fmt.Printf("profane: %s\n", strings.Join(words, ", "))
		return
	}
	fmt.Println("clean")
}

func cmdVibe(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "vibe: a text argument is required")
		os.Exit(1)
	}
	c := newClient(loadCLIConfig())
	res, err := c.VibeSingle(strings.Join(args, " "))
	if err != nil {
		fail("vibe-check", err)
	}
	fmt.Printf("%s  %s (%.4f)\n", res.ID, res.Vibe, res.Score)
}

func cmdHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("limit", 20, "max results")
	offset := fs.Int("offset", 0, "skip count")
	_ = fs.Parse(args)

	c := newClient(loadCLIConfig())
	results, err := c.Vibes(*limit, *offset)
	if err != nil {
		fail("vibes", err)
	}
	for _, r := range results {
		fmt.Printf("%s  %-8s  %.4f  %s\n", r.ID, r.Vibe, r.Score, r.Text)
	}
}

func cmdStatus(args []string) {
	cfg := loadCLIConfig()
	fmt.Printf("server:    %s\n", cfg.BaseURL)
	if cfg.ClientID == "" {
		fmt.Println("client:    not registered")
		return
	}
	fmt.Printf("client:    %s\n", cfg.ClientID)
	if cfg.TokenExp == "" {
		fmt.Println("token:     none")
		return
	}
	exp, err := time.Parse(time.RFC3339, cfg.TokenExp)
	if err != nil || time.Now().After(exp) {
		fmt.Println("token:     expired (run: vibecheckd auth)")
		return
	}
	fmt.Printf("token:     valid until %s\n", exp.Format(time.RFC3339))
}

func fail(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}
