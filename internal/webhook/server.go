package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/veshch/ton-tipbot/internal/ledger"
	"github.com/veshch/ton-tipbot/internal/storage"
)

// EventHandler handles an incoming event for a held account
type EventHandler func(ctx context.Context, acct *storage.Account, event *ledger.Event)

// Server receives account-transaction webhooks and feeds them to the handler
type Server struct {
	storage *storage.Storage
	client  *ledger.Client
	handler EventHandler
	log     *slog.Logger

	server *http.Server
}

// NewServer creates a new webhook server
func NewServer(store *storage.Storage, client *ledger.Client, handler EventHandler, log *slog.Logger) *Server {
	return &Server{
		storage: store,
		client:  client,
		handler: handler,
		log:     log,
	}
}

// Start starts the webhook server
func (s *Server) Start(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/webhook/", s.handleWebhook)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleHealth)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.log.Info("starting webhook server", "port", port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	return s.server.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload ledger.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.log.Warn("invalid webhook payload", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// Ignore mempool and new_contract events
	if payload.EventType == "mempool_msg" || payload.EventType == "new_contract" {
		w.WriteHeader(http.StatusOK)
		return
	}

	if payload.AccountID == "" {
		s.log.Warn("missing account_id in webhook")
		w.WriteHeader(http.StatusOK)
		return
	}

	// Process asynchronously
	go s.processTransaction(context.Background(), payload)

	w.WriteHeader(http.StatusOK)
}

func (s *Server) processTransaction(ctx context.Context, payload ledger.WebhookPayload) {
	acct, err := s.storage.GetAccountByAddress(ledger.NormalizeAddress(payload.AccountID))
	if errors.Is(err, storage.ErrNotFound) {
		s.log.Debug("webhook for unknown account", "account", ledger.ShortAddress(payload.AccountID, 6))
		return
	}
	if err != nil {
		s.log.Error("get account by address", "error", err)
		return
	}

	// Get event (from payload or fetch)
	var event *ledger.Event
	if payload.Event != nil {
		event = payload.Event
	} else if payload.TxHash != "" {
		event, err = s.client.GetEventByHash(ctx, payload.TxHash)
		if err != nil {
			s.log.Warn("fetch event by hash", "error", err, "tx_hash", payload.TxHash)
			return
		}
	} else {
		s.log.Warn("no event data and no tx_hash")
		return
	}

	if event.EventID == "" {
		s.log.Warn("no event_id in event")
		return
	}

	// Check if already processed
	isNew, err := s.storage.MarkEventProcessed(acct.UserID, event.EventID)
	if err != nil {
		s.log.Error("mark event processed", "error", err)
		return
	}
	if !isNew {
		s.log.Debug("event already processed",
			"event_id", event.EventID,
			"user_id", acct.UserID,
		)
		return
	}

	s.handler(ctx, acct, event)
}
