package ledger

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/contract/jetton"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"github.com/tonkeeper/tongo/wallet"

	"github.com/veshch/ton-tipbot/internal/asset"
	"github.com/veshch/ton-tipbot/internal/storage"
)

// ErrInvalidAddress marks a transfer rejected because the destination does not
// parse as a TON address. Callers distinguish it from other ledger failures
// with errors.Is.
var ErrInvalidAddress = errors.New("not a valid address")

// Gas attached to a jetton transfer to cover the wallet contract hops.
const jettonAttachedTon = 100_000_000 // 0.1 TON

// CreateAccount provisions fresh wallet credentials for a user. Keys are
// derived locally from a newly generated seed; nothing leaves the process.
func (c *Client) CreateAccount(userID int64) (*storage.Account, error) {
	seed := wallet.RandomSeed()

	key, err := wallet.SeedToPrivateKey(seed)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	pub := key.Public().(ed25519.PublicKey)

	addr, err := wallet.GenerateWalletAddress(pub, wallet.V4R2, nil, 0, nil)
	if err != nil {
		return nil, fmt.Errorf("derive address: %w", err)
	}

	return &storage.Account{
		UserID:         userID,
		AddressRaw:     addr.String(),
		AddressDisplay: addr.ToHuman(true, false),
		Seed:           seed,
		PublicKey:      hex.EncodeToString(pub),
		CreatedAt:      time.Now(),
	}, nil
}

// Transfer signs and submits a transfer from a held account. It returns the
// outgoing message hash as the transaction identifier. Submission is
// fire-and-forget: if the send errors the transfer is reported as failed even
// though the network may still have accepted it.
//
// recipientPublicKey is accepted for ledgers that need it to address a fresh
// account; TON addresses receive without one, so it is unused here.
func (c *Client) Transfer(ctx context.Context, from *storage.Account, dest string, t *asset.Transferable, units int64, comment, recipientPublicKey string) (string, error) {
	destID, err := ton.ParseAccountID(dest)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, dest)
	}

	lite, err := c.liteClient()
	if err != nil {
		return "", fmt.Errorf("liteserver: %w", err)
	}

	key, err := wallet.SeedToPrivateKey(from.Seed)
	if err != nil {
		return "", fmt.Errorf("derive key: %w", err)
	}

	w, err := wallet.New(key, wallet.V4R2, lite)
	if err != nil {
		return "", fmt.Errorf("open wallet: %w", err)
	}

	var msg wallet.Sendable
	if t.IsNative() {
		msg = wallet.SimpleTransfer{
			Amount:  tlb.Grams(units),
			Address: destID,
			Comment: comment,
		}
	} else {
		master, err := ton.ParseAccountID(t.Master)
		if err != nil {
			return "", fmt.Errorf("jetton master for %s: %w", t.Name, err)
		}

		transfer := jetton.TransferMessage{
			Jetton:       jetton.New(master, lite),
			Sender:       w.GetAddress(),
			JettonAmount: big.NewInt(units),
			Destination:  destID,
			AttachedTon:  jettonAttachedTon,
		}
		if comment != "" {
			payload := boc.NewCell()
			if err := tlb.Marshal(payload, wallet.TextComment(comment)); err != nil {
				return "", fmt.Errorf("encode comment: %w", err)
			}
			transfer.ForwardPayload = payload
		}
		msg = transfer
	}

	hash, err := w.SendV2(ctx, 0, msg)
	if err != nil {
		return "", fmt.Errorf("send transfer: %w", err)
	}

	return hash.Hex(), nil
}
