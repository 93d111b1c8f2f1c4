package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/veshch/ton-tipbot/internal/asset"
	"github.com/veshch/ton-tipbot/internal/command"
	"github.com/veshch/ton-tipbot/internal/config"
	"github.com/veshch/ton-tipbot/internal/engine"
	"github.com/veshch/ton-tipbot/internal/ledger"
	"github.com/veshch/ton-tipbot/internal/notifier"
	"github.com/veshch/ton-tipbot/internal/storage"
	"github.com/veshch/ton-tipbot/internal/telegram"
	"github.com/veshch/ton-tipbot/internal/webhook"
)

func main() {
	// Setup logger
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(log)

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found")
	}

	// Load config
	cfg := config.Load()

	if cfg.BotToken == "" {
		log.Error("BOT_TOKEN is required")
		os.Exit(1)
	}

	// Build the transferable registry: native TON plus configured jettons
	registry := asset.NewRegistry()
	for _, c := range cfg.Currencies {
		err := registry.Register(&asset.Transferable{
			Name:     c.Symbol,
			Kind:     asset.KindCurrency,
			Decimals: c.Decimals,
			Master:   ledger.NormalizeAddress(c.Master),
		})
		if err != nil {
			log.Error("register currency", "symbol", c.Symbol, "error", err)
			os.Exit(1)
		}
	}
	for _, a := range cfg.Assets {
		err := registry.Register(&asset.Transferable{
			Name:            a.Symbol,
			Kind:            asset.KindAsset,
			Decimals:        a.Decimals,
			Master:          ledger.NormalizeAddress(a.Master),
			WelcomeTemplate: a.Welcome,
		})
		if err != nil {
			log.Error("register asset", "symbol", a.Symbol, "error", err)
			os.Exit(1)
		}
	}
	log.Info("registry built", "units", len(registry.All()))

	// Initialize storage
	store, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Error("init storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("storage initialized", "path", cfg.DBPath)

	// Initialize ledger client
	client := ledger.NewClient(cfg.TonAPIBaseURL, cfg.TonAPIKey, cfg.Testnet)
	log.Info("ledger client initialized", "base_url", cfg.TonAPIBaseURL, "testnet", cfg.Testnet)

	// Initialize telegram bot
	parser := command.NewParser(registry, cfg.BotUsername)
	bot, err := telegram.New(cfg, store, parser, log)
	if err != nil {
		log.Error("init telegram bot", "error", err)
		os.Exit(1)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bot.LoadSelf(ctx); err != nil {
		log.Error("load bot identity", "error", err)
		os.Exit(1)
	}

	// Wire the transfer engine
	eng := engine.New(registry, client, store, bot, log)
	bot.SetEngine(eng)
	log.Info("engine initialized")

	// Deposit watcher: webhook when an endpoint is configured, polling otherwise
	notify := notifier.New(registry, bot, log)

	if cfg.WebhookEndpoint != "" {
		manager := webhook.NewManager(store, client, cfg.WebhookEndpoint, log)
		if err := manager.Init(ctx); err != nil {
			log.Error("init webhook", "error", err)
		} else {
			log.Info("webhook initialized", "endpoint", cfg.WebhookEndpoint)
		}
		go manager.SyncLoop(ctx, 30*time.Second)

		server := webhook.NewServer(store, client, notify.HandleEvent, log)
		go func() {
			if err := server.Start(ctx, cfg.WebhookPort); err != nil && err != http.ErrServerClosed {
				log.Error("webhook server", "error", err)
			}
		}()
	} else {
		poller := notifier.NewPoller(store, client, notify, log)
		go poller.Start(ctx, time.Duration(cfg.DepositPollSeconds)*time.Second)
	}

	// Seed all accounts (mark existing events as processed)
	go seedAccounts(ctx, store, client, log)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	// Start bot polling
	log.Info("starting bot polling...")
	bot.Start(ctx)
}

// seedAccounts marks all existing events as processed to avoid replaying old
// deposit notifications on startup
func seedAccounts(ctx context.Context, store *storage.Storage, client *ledger.Client, log *slog.Logger) {
	accounts, err := store.GetAllAccounts()
	if err != nil {
		log.Error("get accounts for seeding", "error", err)
		return
	}

	if len(accounts) == 0 {
		log.Info("no accounts to seed")
		return
	}

	log.Info("seeding accounts", "count", len(accounts))

	totalSeeded := 0
	for _, a := range accounts {
		events, err := client.GetEvents(ctx, a.AddressRaw, 5)
		if err != nil {
			log.Warn("fetch events for seeding", "user_id", a.UserID, "error", err)
			continue
		}

		for _, ev := range events {
			if ev.EventID != "" {
				isNew, _ := store.MarkEventProcessed(a.UserID, ev.EventID)
				if isNew {
					totalSeeded++
				}
			}
		}
	}

	log.Info("seeding complete", "events_marked", totalSeeded)
}
