package notifier

import (
	"context"
	"log/slog"
	"time"

	"github.com/veshch/ton-tipbot/internal/ledger"
	"github.com/veshch/ton-tipbot/internal/storage"
)

// Poller periodically scans recent events for every bot-held account. It is
// the deposit-watcher fallback for deployments without a reachable webhook
// endpoint.
type Poller struct {
	storage  *storage.Storage
	client   *ledger.Client
	notifier *Notifier
	log      *slog.Logger
}

// NewPoller creates a Poller
func NewPoller(store *storage.Storage, client *ledger.Client, notifier *Notifier, log *slog.Logger) *Poller {
	return &Poller{
		storage:  store,
		client:   client,
		notifier: notifier,
		log:      log,
	}
}

// Start runs the polling loop until the context is cancelled
func (p *Poller) Start(ctx context.Context, interval time.Duration) {
	p.log.Info("deposit poller started", "interval", interval)

	time.Sleep(5 * time.Second) // Initial delay

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.scan(ctx); err != nil {
				p.log.Error("scan deposits", "error", err)
			}
		}
	}
}

func (p *Poller) scan(ctx context.Context) error {
	accounts, err := p.storage.GetAllAccounts()
	if err != nil {
		return err
	}

	for _, acct := range accounts {
		events, err := p.client.GetEvents(ctx, acct.AddressRaw, 5)
		if err != nil {
			p.log.Warn("fetch events", "user_id", acct.UserID, "error", err)
			continue
		}

		for _, ev := range events {
			if ev.EventID == "" {
				continue
			}
			isNew, err := p.storage.MarkEventProcessed(acct.UserID, ev.EventID)
			if err != nil {
				p.log.Error("mark event processed", "error", err)
				continue
			}
			if !isNew {
				continue
			}
			p.notifier.HandleEvent(ctx, &acct, &ev)
		}
	}

	return nil
}
