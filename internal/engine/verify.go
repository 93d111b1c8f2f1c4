package engine

import "github.com/veshch/ton-tipbot/internal/asset"

// Reason classifies why a transfer was rejected.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonUnknownUnit
	ReasonBadAmount
	ReasonFeeReserve
	ReasonInsufficient
)

// Outcome is the result of precondition verification: either proceed, or a
// rejection carrying the user-facing reply. Computed fresh per request.
type Outcome struct {
	OK     bool
	Reason Reason
	Reply  string
}

// Verifier decides whether a requested transfer may proceed given live
// balances. Fees are always paid in TON, so one whole TON must stay available
// on top of the transferred amount regardless of which unit moves.
type Verifier struct {
	registry   *asset.Registry
	feeReserve int64 // base units of native currency
}

func NewVerifier(registry *asset.Registry) *Verifier {
	return &Verifier{
		registry:   registry,
		feeReserve: registry.Native().OneUnit(),
	}
}

// BadAmount builds the rejection for an amount outside the representable
// range.
func (v *Verifier) BadAmount() Outcome {
	return Outcome{
		Reason: ReasonBadAmount,
		Reply:  formatBadAmount(),
	}
}

// UnknownUnit builds the rejection for a unit name that did not resolve.
func (v *Verifier) UnknownUnit(name string) Outcome {
	return Outcome{
		Reason: ReasonUnknownUnit,
		Reply:  formatUnknownUnit(name, v.registry),
	}
}

// Verify checks a requested transfer of amount base units of t against the
// sender's balances. nativeBalance is the TON balance; balance is the balance
// of t itself (equal to nativeBalance when t is native).
func (v *Verifier) Verify(t *asset.Transferable, amount, nativeBalance, balance int64) Outcome {
	if t == nil {
		return v.UnknownUnit("")
	}

	native := v.registry.Native()

	if t.IsNative() {
		need := amount + v.feeReserve
		switch {
		case nativeBalance >= need:
			return Outcome{OK: true}
		case nativeBalance >= amount:
			// The amount itself is covered but the fee unit is not.
			return Outcome{
				Reason: ReasonFeeReserve,
				Reply:  formatFeeReserveNative(native, amount, need, nativeBalance),
			}
		default:
			return Outcome{
				Reason: ReasonInsufficient,
				Reply:  formatInsufficient(native, amount, nativeBalance),
			}
		}
	}

	// Fee reserve is checked independently of the secondary balance.
	if nativeBalance < v.feeReserve {
		return Outcome{
			Reason: ReasonFeeReserve,
			Reply:  formatFeeReserveSecondary(native, nativeBalance),
		}
	}
	if balance < amount {
		return Outcome{
			Reason: ReasonInsufficient,
			Reply:  formatInsufficient(t, amount, balance),
		}
	}

	return Outcome{OK: true}
}
