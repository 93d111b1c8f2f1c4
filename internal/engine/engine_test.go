package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/veshch/ton-tipbot/internal/asset"
	"github.com/veshch/ton-tipbot/internal/ledger"
	"github.com/veshch/ton-tipbot/internal/storage"
)

// --- Fakes ---

type transferCall struct {
	from    *storage.Account
	dest    string
	unit    string
	units   int64
	comment string
	pubKey  string
}

type fakeLedger struct {
	balances     map[string]int64 // key: unit|address
	balanceCalls int
	transfers    []transferCall
	transferErr  error
	txID         string
	validAddrs   map[string]bool
}

func (f *fakeLedger) GetBalance(_ context.Context, t *asset.Transferable, addr string) (int64, error) {
	f.balanceCalls++
	return f.balances[t.Name+"|"+addr], nil
}

func (f *fakeLedger) Transfer(_ context.Context, from *storage.Account, dest string, t *asset.Transferable, units int64, comment, pubKey string) (string, error) {
	if f.transferErr != nil {
		return "", f.transferErr
	}
	f.transfers = append(f.transfers, transferCall{from, dest, t.Name, units, comment, pubKey})
	return f.txID, nil
}

func (f *fakeLedger) IsValidAddress(addr string) bool {
	return f.validAddrs[addr]
}

func (f *fakeLedger) CreateAccount(userID int64) (*storage.Account, error) {
	return &storage.Account{
		UserID:         userID,
		AddressRaw:     fmt.Sprintf("0:fresh%d", userID),
		AddressDisplay: fmt.Sprintf("UQfresh%d", userID),
		Seed:           "seed words",
		PublicKey:      fmt.Sprintf("pubkey%d", userID),
	}, nil
}

type fakeStore struct {
	accounts map[int64]*storage.Account
	added    []*storage.Account
}

func (f *fakeStore) GetAccount(userID int64) (*storage.Account, error) {
	a, ok := f.accounts[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return a, nil
}

func (f *fakeStore) AddAccount(a *storage.Account) error {
	if _, exists := f.accounts[a.UserID]; exists {
		return storage.ErrAlreadyExists
	}
	f.accounts[a.UserID] = a
	f.added = append(f.added, a)
	return nil
}

type sentMsg struct {
	chatID int64
	text   string
	notify bool
}

type fakeTransport struct {
	selfID int64
	names  map[int64]string
	sent   []sentMsg
}

func (f *fakeTransport) SendMessage(_ context.Context, chatID int64, text string, notify bool) error {
	f.sent = append(f.sent, sentMsg{chatID, text, notify})
	return nil
}

func (f *fakeTransport) PrivateChatID(userID int64) int64 { return userID }
func (f *fakeTransport) SelfID() int64                    { return f.selfID }

func (f *fakeTransport) DisplayName(_ context.Context, userID int64) string {
	if name, ok := f.names[userID]; ok {
		return name
	}
	return "someone"
}

// --- Setup ---

const (
	senderID   = int64(100)
	senderAddr = "0:sender"
	botID      = int64(42)
	chatID     = int64(-500)
)

type fixture struct {
	engine    *Engine
	ledger    *fakeLedger
	store     *fakeStore
	transport *fakeTransport
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	registry := asset.NewRegistry()
	require.NoError(t, registry.Register(&asset.Transferable{
		Name:     "GOLD",
		Kind:     asset.KindCurrency,
		Decimals: 9,
		Master:   "0:gold",
	}))
	require.NoError(t, registry.Register(&asset.Transferable{
		Name:            "BADGE",
		Kind:            asset.KindAsset,
		Decimals:        0,
		Master:          "0:badge",
		WelcomeTemplate: "You received {amount} BADGE from {sender}. Welcome to the club!",
	}))

	l := &fakeLedger{
		balances: map[string]int64{
			"TON|" + senderAddr:   10 * oneTON,
			"GOLD|" + senderAddr:  50 * oneTON,
			"BADGE|" + senderAddr: 20,
		},
		txID:       "abc123",
		validAddrs: map[string]bool{"0:dest": true},
	}

	st := &fakeStore{accounts: map[int64]*storage.Account{
		senderID: {UserID: senderID, AddressRaw: senderAddr, AddressDisplay: "UQsender", PublicKey: "senderpub"},
	}}

	tr := &fakeTransport{
		selfID: botID,
		names:  map[int64]string{senderID: "Alice", 200: "Bob"},
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &fixture{
		engine:    New(registry, l, st, tr, log),
		ledger:    l,
		store:     st,
		transport: tr,
	}
}

// --- Tips ---

func TestTipAutoProvisionsRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rcp := Recipient{UserID: 200, Raw: "@bob"}
	err := f.engine.Tip(ctx, senderID, chatID, rcp, 3, "TON", "comment here")
	require.NoError(t, err)

	// Account created and persisted.
	require.Len(t, f.store.added, 1)
	acct := f.store.added[0]
	require.Equal(t, int64(200), acct.UserID)
	require.NotEmpty(t, acct.AddressRaw)

	// Private notice first, channel reply second.
	require.Len(t, f.transport.sent, 2)
	require.Equal(t, int64(200), f.transport.sent[0].chatID)
	require.Contains(t, f.transport.sent[0].text, "tip")
	require.Equal(t, chatID, f.transport.sent[1].chatID)
	require.Contains(t, f.transport.sent[1].text, "3 TON")
	require.Contains(t, f.transport.sent[1].text, "abc123")
	require.Contains(t, f.transport.sent[1].text, "comment here")

	// Transfer went to the fresh address, carrying its public key.
	require.Len(t, f.ledger.transfers, 1)
	call := f.ledger.transfers[0]
	require.Equal(t, acct.AddressRaw, call.dest)
	require.Equal(t, "pubkey200", call.pubKey)
	require.Equal(t, 3*oneTON, call.units)
	require.Equal(t, "comment here", call.comment)
}

func TestTipGuardsShortCircuit(t *testing.T) {
	ctx := context.Background()

	t.Run("self tip", func(t *testing.T) {
		f := newFixture(t)
		err := f.engine.Tip(ctx, senderID, chatID, Recipient{UserID: senderID, Raw: "@alice"}, 1, "TON", "")
		require.NoError(t, err)
		require.Zero(t, f.ledger.balanceCalls)
		require.Empty(t, f.ledger.transfers)
		require.Len(t, f.transport.sent, 1)
	})

	t.Run("tip the bot", func(t *testing.T) {
		f := newFixture(t)
		err := f.engine.Tip(ctx, senderID, chatID, Recipient{UserID: botID, Raw: "@tipbot"}, 1, "TON", "")
		require.NoError(t, err)
		require.Zero(t, f.ledger.balanceCalls)
		require.Empty(t, f.ledger.transfers)
	})

	t.Run("unrecognized recipient", func(t *testing.T) {
		f := newFixture(t)
		err := f.engine.Tip(ctx, senderID, chatID, Recipient{Address: "garbage", Raw: "garbage"}, 1, "TON", "")
		require.NoError(t, err)
		require.Zero(t, f.ledger.balanceCalls)
		require.Empty(t, f.ledger.transfers)
		require.Contains(t, f.transport.sent[0].text, "garbage")
	})
}

func TestTipCommentLength(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t)
	err := f.engine.Tip(ctx, senderID, chatID, Recipient{Address: "0:dest", Raw: "0:dest"}, 1, "TON", strings.Repeat("x", 513))
	require.NoError(t, err)
	require.Empty(t, f.ledger.transfers)
	require.Contains(t, f.transport.sent[0].text, "too long")

	f = newFixture(t)
	err = f.engine.Tip(ctx, senderID, chatID, Recipient{Address: "0:dest", Raw: "0:dest"}, 1, "TON", strings.Repeat("x", 512))
	require.NoError(t, err)
	require.Len(t, f.ledger.transfers, 1)
}

func TestTipUnknownUnit(t *testing.T) {
	f := newFixture(t)

	err := f.engine.Tip(context.Background(), senderID, chatID, Recipient{UserID: 200, Raw: "@bob"}, 1, "SILVER", "")
	require.NoError(t, err)
	require.Empty(t, f.ledger.transfers)
	require.Contains(t, f.transport.sent[0].text, "SILVER")
}

func TestTipAmountOutOfRange(t *testing.T) {
	f := newFixture(t)

	// 1e13 TON does not fit in int64 base units; without the range check the
	// scaled amount wraps negative and sails past the balance comparison.
	err := f.engine.Tip(context.Background(), senderID, chatID, Recipient{UserID: 200, Raw: "@bob"}, 1e13, "TON", "")
	require.NoError(t, err)
	require.Zero(t, f.ledger.balanceCalls)
	require.Empty(t, f.ledger.transfers)
	require.Empty(t, f.store.added)
	require.Contains(t, f.transport.sent[0].text, "out of range")
}

func TestTipEscapesUserText(t *testing.T) {
	f := newFixture(t)
	f.transport.names[senderID] = "Alice <&> Co"

	err := f.engine.Tip(context.Background(), senderID, chatID, Recipient{UserID: 200, Raw: "@bob"}, 1, "TON", "i <3 you")
	require.NoError(t, err)
	require.Len(t, f.ledger.transfers, 1)

	reply := f.transport.sent[len(f.transport.sent)-1].text
	require.Contains(t, reply, "i &lt;3 you")
	require.Contains(t, reply, "Alice &lt;&amp;&gt; Co")
	require.NotContains(t, reply, "<3")
}

func TestTipRejectedByVerifier(t *testing.T) {
	f := newFixture(t)

	// Balance covers the amount but not the fee unit on top.
	err := f.engine.Tip(context.Background(), senderID, chatID, Recipient{UserID: 200, Raw: "@bob"}, 10, "TON", "")
	require.NoError(t, err)
	require.Empty(t, f.ledger.transfers)
	require.Empty(t, f.store.added, "rejected tip must not provision the recipient")
	require.Contains(t, f.transport.sent[0].text, "fee")
}

func TestTipFirstAssetWelcome(t *testing.T) {
	ctx := context.Background()

	t.Run("zero pre-transfer balance", func(t *testing.T) {
		f := newFixture(t)
		f.store.accounts[200] = &storage.Account{UserID: 200, AddressRaw: "0:bob", PublicKey: "bobpub"}

		err := f.engine.Tip(ctx, senderID, chatID, Recipient{UserID: 200, Raw: "@bob"}, 2, "BADGE", "")
		require.NoError(t, err)
		require.Len(t, f.ledger.transfers, 1)

		last := f.transport.sent[len(f.transport.sent)-1]
		require.Equal(t, int64(200), last.chatID)
		require.Equal(t, "You received 2 BADGE from Alice. Welcome to the club!", last.text)
	})

	t.Run("existing holder", func(t *testing.T) {
		f := newFixture(t)
		f.store.accounts[200] = &storage.Account{UserID: 200, AddressRaw: "0:bob", PublicKey: "bobpub"}
		f.ledger.balances["BADGE|0:bob"] = 7

		err := f.engine.Tip(ctx, senderID, chatID, Recipient{UserID: 200, Raw: "@bob"}, 2, "BADGE", "")
		require.NoError(t, err)
		require.Len(t, f.ledger.transfers, 1)

		last := f.transport.sent[len(f.transport.sent)-1]
		require.Equal(t, chatID, last.chatID, "no welcome message for an existing holder")
	})
}

func TestTipSenderWithoutAccount(t *testing.T) {
	f := newFixture(t)
	delete(f.store.accounts, senderID)

	err := f.engine.Tip(context.Background(), senderID, chatID, Recipient{UserID: 200, Raw: "@bob"}, 1, "TON", "")
	require.NoError(t, err)
	require.Empty(t, f.ledger.transfers)
	require.Equal(t, chatID, f.transport.sent[0].chatID)
}

// --- Withdraw ---

func TestWithdraw(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path", func(t *testing.T) {
		f := newFixture(t)
		err := f.engine.Withdraw(ctx, senderID, senderID, "0:dest", 2.5, "TON")
		require.NoError(t, err)

		require.Len(t, f.ledger.transfers, 1)
		call := f.ledger.transfers[0]
		require.Equal(t, "0:dest", call.dest)
		require.Equal(t, int64(2_500_000_000), call.units)

		require.Contains(t, f.transport.sent[0].text, "2.5 TON")
		require.Contains(t, f.transport.sent[0].text, "abc123")
	})

	t.Run("syntactically invalid address", func(t *testing.T) {
		f := newFixture(t)
		err := f.engine.Withdraw(ctx, senderID, senderID, "nonsense", 1, "TON")
		require.NoError(t, err)
		require.Zero(t, f.ledger.balanceCalls)
		require.Empty(t, f.ledger.transfers)
		require.Contains(t, f.transport.sent[0].text, "not a valid address")
	})

	t.Run("ledger rejects the address", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.transferErr = fmt.Errorf("transfer: %w", ledger.ErrInvalidAddress)

		err := f.engine.Withdraw(ctx, senderID, senderID, "0:dest", 1, "TON")
		require.NoError(t, err, "address rejection is a user reply, not a failure")
		require.Contains(t, f.transport.sent[0].text, "not a valid address")
	})

	t.Run("other ledger failures propagate", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.transferErr = fmt.Errorf("liteserver timeout")

		err := f.engine.Withdraw(ctx, senderID, senderID, "0:dest", 1, "TON")
		require.Error(t, err)
	})

	t.Run("no account", func(t *testing.T) {
		f := newFixture(t)
		delete(f.store.accounts, senderID)

		err := f.engine.Withdraw(ctx, senderID, senderID, "0:dest", 1, "TON")
		require.NoError(t, err)
		require.Empty(t, f.ledger.transfers)
	})
}

// --- Balance / Deposit ---

func TestBalance(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t)
	require.NoError(t, f.engine.Balance(ctx, senderID, senderID))
	require.Len(t, f.transport.sent, 1)
	text := f.transport.sent[0].text
	require.Contains(t, text, "10 TON")
	require.Contains(t, text, "50 GOLD")
	require.Contains(t, text, "20 BADGE")

	f = newFixture(t)
	delete(f.store.accounts, senderID)
	require.NoError(t, f.engine.Balance(ctx, senderID, senderID))
	require.Contains(t, f.transport.sent[0].text, "deposit")
}

func TestDepositProvisionsOnFirstUse(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t)
	delete(f.store.accounts, senderID)

	require.NoError(t, f.engine.Deposit(ctx, senderID, senderID))
	require.Len(t, f.store.added, 1)
	require.Contains(t, f.transport.sent[0].text, f.store.added[0].AddressDisplay)

	// Second deposit reuses the account.
	require.NoError(t, f.engine.Deposit(ctx, senderID, senderID))
	require.Len(t, f.store.added, 1)
}
