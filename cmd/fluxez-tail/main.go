// Command fluxez-tail connects to the Fluxez realtime service, subscribes
// to the channels given as arguments, and prints inbound messages until
// interrupted. It is a diagnostics tool for inspecting channel traffic.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/fluxez/fluxez-go/api"
	"github.com/fluxez/fluxez-go/auth"
	"github.com/fluxez/fluxez-go/config"
	"github.com/fluxez/fluxez-go/logger"
	"github.com/fluxez/fluxez-go/realtime"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (optional)")
	logLevel := flag.String("log-level", "", "Log level: DEBUG, INFO, WARN, ERROR (overrides LOG_LEVEL env)")
	noColor := flag.Bool("no-color", false, "Disable colored output (overrides TTY detection)")
	statusEvery := flag.Duration("status-interval", 30*time.Second, "Interval between status log lines")
	flag.Parse()

	channels := flag.Args()
	if len(channels) == 0 {
		fmt.Fprintln(os.Stderr, "usage: fluxez-tail [flags] <channel> [channel...]")
		os.Exit(2)
	}

	// Secrets may live in a .env file during development.
	_ = godotenv.Load()

	level := slog.LevelInfo
	if *logLevel != "" {
		level = logger.ParseLevel(*logLevel)
	} else if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		level = logger.ParseLevel(envLevel)
	}

	colored := !*noColor && term.IsTerminal(int(os.Stdout.Fd())) && os.Getenv("NO_COLOR") == ""

	log, err := logger.Setup(logger.Config{
		Level:   level,
		Colored: colored,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logger: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Error("Failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
	}

	if cfg.APIKey == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, "Fluxez API key: ")
		key, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			log.Error("Failed to read API key", "error", err)
			os.Exit(1)
		}
		cfg.APIKey = strings.TrimSpace(string(key))
	}

	if err := config.Validate(cfg); err != nil {
		log.Error("Invalid config", "error", err)
		os.Exit(1)
	}

	provider := auth.NewKeyProvider(cfg)
	apiClient := api.NewClient(cfg, provider, log)
	rt := realtime.NewClient(cfg, provider, apiClient, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("Received shutdown signal", "signal", sig.String())
		cancel()
	}()

	for _, channel := range channels {
		channel := channel
		rt.Subscribe(channel, func(msg realtime.Message) {
			data, err := json.Marshal(msg.Data)
			if err != nil {
				data = []byte(fmt.Sprintf("%v", msg.Data))
			}
			log.Info("Message",
				"channel", channel,
				"type", msg.Type,
				"data", string(data),
			)
		})
	}

	rt.Connect(ctx)
	log.Info("Tailing channels", "channels", strings.Join(channels, ", "))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(*statusEvery)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				status := rt.Status()
				log.Debug("Realtime status",
					"connected", status.Connected,
					"reconnect_attempts", status.ReconnectAttempts,
					"subscriptions", status.Subscriptions,
				)
			}
		}
	})

	_ = g.Wait()

	rt.Disconnect()
	apiClient.Close()
	log.Info("Goodbye!")
}
