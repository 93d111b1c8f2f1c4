package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/veshch/ton-tipbot/internal/asset"
	"github.com/veshch/ton-tipbot/internal/ledger"
	"github.com/veshch/ton-tipbot/internal/storage"
)

// MaxCommentLen is the longest comment accepted on a tip, in characters.
const MaxCommentLen = 512

// Ledger moves value and provisions accounts on the chain.
type Ledger interface {
	GetBalance(ctx context.Context, t *asset.Transferable, addressRaw string) (int64, error)
	Transfer(ctx context.Context, from *storage.Account, dest string, t *asset.Transferable, units int64, comment, recipientPublicKey string) (string, error)
	IsValidAddress(addr string) bool
	CreateAccount(userID int64) (*storage.Account, error)
}

// Store persists accounts.
type Store interface {
	GetAccount(userID int64) (*storage.Account, error)
	AddAccount(a *storage.Account) error
}

// Transport delivers replies and notifications to the chat platform.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string, notify bool) error
	PrivateChatID(userID int64) int64
	SelfID() int64
	DisplayName(ctx context.Context, userID int64) string
}

// Recipient is a resolved tip target: a platform user (UserID set) or a bare
// ledger address. Raw keeps the original token for error replies.
type Recipient struct {
	UserID  int64
	Address string
	Raw     string
}

// Engine orchestrates transfers: it resolves accounts, verifies preconditions,
// invokes the ledger, and sends replies. Collaborator failures propagate to
// the caller; user input errors and business-rule rejections are answered
// directly and never surface as errors.
type Engine struct {
	registry  *asset.Registry
	verifier  *Verifier
	ledger    Ledger
	store     Store
	transport Transport
	log       *slog.Logger
}

func New(registry *asset.Registry, l Ledger, store Store, transport Transport, log *slog.Logger) *Engine {
	return &Engine{
		registry:  registry,
		verifier:  NewVerifier(registry),
		ledger:    l,
		store:     store,
		transport: transport,
		log:       log,
	}
}

// Help replies with the command overview.
func (e *Engine) Help(ctx context.Context, chatID int64) error {
	return e.transport.SendMessage(ctx, chatID, helpText(e.registry), true)
}

// Balance replies with the user's balances across all registered units.
// Secondary units the user never held are omitted.
func (e *Engine) Balance(ctx context.Context, userID, chatID int64) error {
	acct, err := e.store.GetAccount(userID)
	if errors.Is(err, storage.ErrNotFound) {
		return e.transport.SendMessage(ctx, chatID, formatNoAccount(), true)
	}
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}

	var lines []string
	for _, t := range e.registry.All() {
		bal, err := e.ledger.GetBalance(ctx, t, acct.AddressRaw)
		if err != nil {
			return fmt.Errorf("get %s balance: %w", t.Name, err)
		}
		if bal == 0 && !t.IsNative() {
			continue
		}
		lines = append(lines, formatBalanceLine(t, bal))
	}

	return e.transport.SendMessage(ctx, chatID, formatBalance(lines), true)
}

// Deposit replies with the user's deposit address, provisioning an account on
// first use.
func (e *Engine) Deposit(ctx context.Context, userID, chatID int64) error {
	acct, err := e.store.GetAccount(userID)
	if errors.Is(err, storage.ErrNotFound) {
		acct, err = e.provision(userID)
		if err != nil {
			return err
		}
		return e.transport.SendMessage(ctx, chatID, formatDeposit(acct, true), true)
	}
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}

	return e.transport.SendMessage(ctx, chatID, formatDeposit(acct, false), true)
}

// Withdraw sends funds from the user's account to an external address.
func (e *Engine) Withdraw(ctx context.Context, userID, chatID int64, addr string, amount float64, unit string) error {
	acct, err := e.store.GetAccount(userID)
	if errors.Is(err, storage.ErrNotFound) {
		return e.transport.SendMessage(ctx, chatID, formatNoAccount(), true)
	}
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}

	if !e.ledger.IsValidAddress(addr) {
		return e.transport.SendMessage(ctx, chatID, formatNotValidAddress(addr), true)
	}

	t, _ := e.registry.Resolve(unit)
	out, err := e.check(ctx, t, unit, amount, acct)
	if err != nil {
		return err
	}
	if !out.OK {
		return e.transport.SendMessage(ctx, chatID, out.Reply, true)
	}

	units, _ := t.ToUnits(amount)
	txID, err := e.ledger.Transfer(ctx, acct, addr, t, units, "", "")
	if errors.Is(err, ledger.ErrInvalidAddress) {
		return e.transport.SendMessage(ctx, chatID, formatNotValidAddress(addr), true)
	}
	if err != nil {
		return fmt.Errorf("withdraw transfer: %w", err)
	}

	e.log.Info("withdraw executed",
		"user_id", userID,
		"unit", t.Name,
		"units", units,
		"tx_id", txID,
	)

	return e.transport.SendMessage(ctx, chatID, formatWithdrawReply(t, units, addr, txID), true)
}

// Tip moves funds from the sender to another chat user or a bare address,
// replying in the channel the tip was given in. Recipients without an account
// get one provisioned on the spot.
func (e *Engine) Tip(ctx context.Context, senderID, chatID int64, rcp Recipient, amount float64, unit, comment string) error {
	senderName := e.transport.DisplayName(ctx, senderID)

	acct, err := e.store.GetAccount(senderID)
	if errors.Is(err, storage.ErrNotFound) {
		return e.transport.SendMessage(ctx, chatID, formatNoAccountChannel(senderID, senderName), true)
	}
	if err != nil {
		return fmt.Errorf("get sender account: %w", err)
	}

	// Guards run before any balance is fetched.
	if rcp.UserID != 0 && rcp.UserID == e.transport.SelfID() {
		return e.transport.SendMessage(ctx, chatID, formatBotTip(), true)
	}
	if rcp.UserID != 0 && rcp.UserID == senderID {
		return e.transport.SendMessage(ctx, chatID, formatSelfTip(), true)
	}
	if rcp.UserID == 0 && !e.ledger.IsValidAddress(rcp.Address) {
		return e.transport.SendMessage(ctx, chatID, formatBadRecipient(rcp.Raw), true)
	}
	if utf8.RuneCountInString(comment) > MaxCommentLen {
		return e.transport.SendMessage(ctx, chatID, formatCommentTooLong(MaxCommentLen), true)
	}

	t, _ := e.registry.Resolve(unit)
	out, err := e.check(ctx, t, unit, amount, acct)
	if err != nil {
		return err
	}
	if !out.OK {
		return e.transport.SendMessage(ctx, chatID, out.Reply, true)
	}

	// Resolve the destination, provisioning first-time recipients.
	var (
		destAddr     string
		rcpPubKey    string
		rcpLabel     string
		freshAccount bool
	)
	if rcp.UserID != 0 {
		rcpName := e.transport.DisplayName(ctx, rcp.UserID)
		rcpLabel = userMention(rcp.UserID, rcpName)

		rcpAcct, err := e.store.GetAccount(rcp.UserID)
		if errors.Is(err, storage.ErrNotFound) {
			rcpAcct, err = e.provision(rcp.UserID)
			if err != nil {
				return fmt.Errorf("provision recipient: %w", err)
			}
			freshAccount = true
			rcpPubKey = rcpAcct.PublicKey

			notice := formatAccountCreated(senderName)
			if err := e.transport.SendMessage(ctx, e.transport.PrivateChatID(rcp.UserID), notice, true); err != nil {
				e.log.Warn("send account notice", "user_id", rcp.UserID, "error", err)
			}
		} else if err != nil {
			return fmt.Errorf("get recipient account: %w", err)
		}
		destAddr = rcpAcct.AddressRaw
	} else {
		destAddr = rcp.Address
		rcpLabel = "<code>" + ledger.ShortAddress(rcp.Address, 4) + "</code>"
	}

	units, _ := t.ToUnits(amount)

	// An asset with a welcome template greets first-time holders; the
	// pre-transfer balance decides whether this one counts.
	notifyFirstAsset := false
	if t.Kind == asset.KindAsset && t.WelcomeTemplate != "" && rcp.UserID != 0 {
		if freshAccount {
			notifyFirstAsset = true
		} else if pre, err := e.ledger.GetBalance(ctx, t, destAddr); err != nil {
			e.log.Warn("recipient balance check", "user_id", rcp.UserID, "unit", t.Name, "error", err)
		} else if pre == 0 {
			notifyFirstAsset = true
		}
	}

	txID, err := e.ledger.Transfer(ctx, acct, destAddr, t, units, comment, rcpPubKey)
	if errors.Is(err, ledger.ErrInvalidAddress) {
		return e.transport.SendMessage(ctx, chatID, formatNotValidAddress(rcp.Raw), true)
	}
	if err != nil {
		return fmt.Errorf("tip transfer: %w", err)
	}

	e.log.Info("tip executed",
		"sender_id", senderID,
		"recipient_id", rcp.UserID,
		"unit", t.Name,
		"units", units,
		"tx_id", txID,
	)

	reply := formatTipReply(userMention(senderID, senderName), rcpLabel, t, units, txID, comment)
	if err := e.transport.SendMessage(ctx, chatID, reply, true); err != nil {
		return fmt.Errorf("send tip reply: %w", err)
	}

	// Best effort: a failed greeting never rolls back the completed transfer.
	if notifyFirstAsset {
		msg := renderWelcome(t.WelcomeTemplate, formatAmount(t, units), senderName)
		if err := e.transport.SendMessage(ctx, e.transport.PrivateChatID(rcp.UserID), msg, true); err != nil {
			e.log.Warn("send welcome message", "user_id", rcp.UserID, "unit", t.Name, "error", err)
		}
	}

	return nil
}

// provision creates and persists an account for a user.
func (e *Engine) provision(userID int64) (*storage.Account, error) {
	acct, err := e.ledger.CreateAccount(userID)
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	if err := e.store.AddAccount(acct); err != nil {
		return nil, fmt.Errorf("persist account: %w", err)
	}

	e.log.Info("account provisioned", "user_id", userID, "address", acct.AddressRaw)
	return acct, nil
}

// check resolves balances and runs the verifier. A nil transferable means the
// unit name did not resolve.
func (e *Engine) check(ctx context.Context, t *asset.Transferable, unit string, amount float64, acct *storage.Account) (Outcome, error) {
	if t == nil {
		return e.verifier.UnknownUnit(unit), nil
	}

	units, ok := t.ToUnits(amount)
	if !ok {
		return e.verifier.BadAmount(), nil
	}

	native := e.registry.Native()
	nativeBal, err := e.ledger.GetBalance(ctx, native, acct.AddressRaw)
	if err != nil {
		return Outcome{}, fmt.Errorf("get %s balance: %w", native.Name, err)
	}

	bal := nativeBal
	if !t.IsNative() {
		bal, err = e.ledger.GetBalance(ctx, t, acct.AddressRaw)
		if err != nil {
			return Outcome{}, fmt.Errorf("get %s balance: %w", t.Name, err)
		}
	}

	return e.verifier.Verify(t, units, nativeBal, bal), nil
}
