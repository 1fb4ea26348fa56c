package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/EgorLis/presencebot/internal/bot"
	"github.com/EgorLis/presencebot/internal/config"
	"github.com/EgorLis/presencebot/internal/gateway"
	"github.com/EgorLis/presencebot/internal/logging"
	"github.com/EgorLis/presencebot/internal/rest"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env необязателен
	_ = godotenv.Load()

	var (
		configPath string
		logDir     string
		logLevel   string
		debug      bool
		gatewayURL string
		apiURL     string
	)
	flagSet := pflag.NewFlagSet("presencebot", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", envOr("PRESENCEBOT_CONFIG", "config.json"), "path to the config file")
	flagSet.StringVar(&logDir, "log-dir", "", "write rotated logs to this directory")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flagSet.BoolVar(&debug, "debug", false, "write logs to the current directory")
	flagSet.StringVar(&gatewayURL, "gateway-url", gateway.DefaultURL, "gateway websocket URL")
	flagSet.StringVar(&apiURL, "api-url", rest.DefaultBaseURL, "REST API base URL")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	logging.Init(logging.Config{LogDir: logDir, Level: logLevel, Debug: debug})
	defer logging.Shutdown()
	cliLog := logging.ForComponent(logging.CompCLI)

	store := config.NewStore(configPath)
	if err := store.Load(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if tok := os.Getenv("PRESENCEBOT_TOKEN"); tok != "" {
		if err := store.Update(func(c *config.Config) { c.Token = tok }); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := rest.NewClient(store.Snapshot().Token, apiURL)

	// хуки сессии срабатывают только после EnsureConnected, m к тому времени уже есть
	var m *bot.Menu
	sess := gateway.New(gateway.Options{
		URL:      gatewayURL,
		Identity: bot.Identity(store),
		OnReady:  func() { m.Notice("websocket connected!") },
		OnClose:  func(err error) { m.Notice("websocket closed: %v", err) },
	})
	defer sess.Close()

	b := bot.New(ctx, store, api, sess)
	defer b.Stop()

	m = bot.NewMenu(b, os.Stdin, os.Stdout)
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		m.ReadSecret = bot.TerminalSecret(fd, os.Stdout)
	}
	m.ClearScreen = term.IsTerminal(int(os.Stdout.Fd()))

	cliLog.Info("started", "config", store.Path(), "gateway", gatewayURL)

	done := make(chan error, 1)
	go func() {
		if err := m.EnsureToken(ctx, api); err != nil {
			done <- err
			return
		}
		if err := m.PromptMissing(); err != nil {
			done <- err
			return
		}
		done <- m.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		// меню может висеть на чтении stdin; просто выходим
		cliLog.Info("interrupted")
		return nil
	case err := <-done:
		if err == nil || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			cliLog.Info("leave")
			return nil
		}
		return err
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
