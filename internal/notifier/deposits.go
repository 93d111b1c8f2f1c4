package notifier

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"github.com/veshch/ton-tipbot/internal/asset"
	"github.com/veshch/ton-tipbot/internal/ledger"
	"github.com/veshch/ton-tipbot/internal/storage"
	"github.com/veshch/ton-tipbot/internal/telegram"
)

// Notifier turns incoming ledger events on bot-held accounts into private
// deposit notifications. Failures here are logged and dropped; deposit
// notices are best effort.
type Notifier struct {
	registry *asset.Registry
	bot      *telegram.Bot
	log      *slog.Logger
}

// New creates a Notifier
func New(registry *asset.Registry, bot *telegram.Bot, log *slog.Logger) *Notifier {
	return &Notifier{
		registry: registry,
		bot:      bot,
		log:      log,
	}
}

// Deposit is one parsed incoming transfer
type Deposit struct {
	Transferable *asset.Transferable
	Units        int64
	Sender       string
	Comment      string
}

// HandleEvent notifies the account owner about incoming transfers in an event
func (n *Notifier) HandleEvent(ctx context.Context, acct *storage.Account, event *ledger.Event) {
	deposits := n.extractDeposits(event, acct.AddressRaw)
	if len(deposits) == 0 {
		return
	}

	n.log.Info("handling deposit event",
		"event_id", event.EventID,
		"user_id", acct.UserID,
		"deposits", len(deposits),
	)

	for _, d := range deposits {
		text := n.formatDeposit(d)
		if err := n.bot.SendMessage(ctx, n.bot.PrivateChatID(acct.UserID), text, true); err != nil {
			n.log.Error("send deposit notification", "user_id", acct.UserID, "error", err)
		}
	}
}

// extractDeposits collects transfers into the watched address. Jettons the
// bot does not serve are skipped.
func (n *Notifier) extractDeposits(event *ledger.Event, watchedRaw string) []Deposit {
	var deposits []Deposit

	for _, action := range event.Actions {
		switch {
		case action.Type == "TonTransfer" && action.TonTransfer != nil:
			tt := action.TonTransfer
			if ledger.NormalizeAddress(tt.Recipient.Address) != watchedRaw {
				continue
			}
			deposits = append(deposits, Deposit{
				Transferable: n.registry.Native(),
				Units:        tt.Amount,
				Sender:       tt.Sender.Address,
				Comment:      tt.Comment,
			})

		case action.Type == "JettonTransfer" && action.JettonTransfer != nil:
			jt := action.JettonTransfer
			if ledger.NormalizeAddress(jt.Recipient.Address) != watchedRaw {
				continue
			}
			t := n.resolveJetton(jt.Jetton.Address)
			if t == nil {
				continue
			}
			units := parseUnits(jt.Amount)
			if units == 0 {
				continue
			}
			deposits = append(deposits, Deposit{
				Transferable: t,
				Units:        units,
				Sender:       jt.Sender.Address,
				Comment:      jt.Comment,
			})
		}
	}

	return deposits
}

func (n *Notifier) resolveJetton(master string) *asset.Transferable {
	raw := ledger.NormalizeAddress(master)
	for _, t := range n.registry.All() {
		if !t.IsNative() && t.Master == raw {
			return t
		}
	}
	return nil
}

func (n *Notifier) formatDeposit(d Deposit) string {
	amount := fmt.Sprintf("%s %s", formatUnits(d.Transferable, d.Units), d.Transferable.Name)
	sender := html.EscapeString(ledger.ShortAddress(ledger.FriendlyAddress(d.Sender), 4))

	text := fmt.Sprintf(
		"📥 <b>Deposit received</b>\n\n+%s from <code>%s</code>",
		amount, sender,
	)
	if d.Comment != "" {
		// On-chain comments are attacker controlled.
		text += fmt.Sprintf("\n\n💬 <code>%s</code>", html.EscapeString(d.Comment))
	}
	return text
}

func formatUnits(t *asset.Transferable, units int64) string {
	return fmt.Sprintf("%.2f", t.FromUnits(units))
}

func parseUnits(s string) int64 {
	var units int64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		units = units*10 + int64(c-'0')
	}
	return units
}
