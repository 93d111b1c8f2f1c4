package asset

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Kind discriminates the closed set of transferable kinds.
type Kind int

const (
	// KindNative is TON itself. Exactly one native entry exists per registry
	// and it is the currency all transaction fees are paid in.
	KindNative Kind = iota
	// KindCurrency is a fungible jetton used as a secondary currency.
	KindCurrency
	// KindAsset is a jetton treated as a collectible/community asset. Assets
	// may carry a welcome message shown to first-time holders.
	KindAsset
)

func (k Kind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindCurrency:
		return "currency"
	case KindAsset:
		return "asset"
	default:
		return "unknown"
	}
}

// Transferable describes one kind of value the bot can move.
type Transferable struct {
	Name     string
	Kind     Kind
	Decimals int

	// Master is the jetton master contract address (raw 0:... format).
	// Empty for the native entry.
	Master string

	// WelcomeTemplate is sent privately to a recipient holding this asset for
	// the first time. {amount} and {sender} are substituted. Asset kind only.
	WelcomeTemplate string
}

// IsNative reports whether t is the native TON entry.
func (t *Transferable) IsNative() bool {
	return t.Kind == KindNative
}

// ToUnits converts a human-readable amount to base units. ok is false when the
// amount is not a finite non-negative number whose base-unit value fits in an
// int64.
func (t *Transferable) ToUnits(amount float64) (int64, bool) {
	scaled := math.Round(amount * math.Pow10(t.Decimals))
	if math.IsNaN(scaled) || scaled < 0 || scaled >= math.MaxInt64 {
		return 0, false
	}
	return int64(scaled), true
}

// FromUnits converts base units to a human-readable amount.
func (t *Transferable) FromUnits(units int64) float64 {
	return float64(units) / math.Pow10(t.Decimals)
}

// OneUnit returns one whole unit in base units.
func (t *Transferable) OneUnit() int64 {
	units, _ := t.ToUnits(1)
	return units
}

// ErrDuplicate is returned when a registration collides with an existing name.
var ErrDuplicate = errors.New("duplicate unit name")

// Registry holds all transferables known to the bot, keyed by case-insensitive
// name. It is populated once at startup and read-only afterwards, so lookups
// need no locking.
type Registry struct {
	byName  map[string]*Transferable
	ordered []*Transferable
}

// NewRegistry creates a registry containing the native TON entry.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]*Transferable)}
	native := &Transferable{Name: "TON", Kind: KindNative, Decimals: 9}
	r.byName[strings.ToLower(native.Name)] = native
	r.ordered = append(r.ordered, native)
	return r
}

// Register adds a secondary transferable. Names are unique across all kinds,
// including the built-in native entry.
func (r *Registry) Register(t *Transferable) error {
	key := strings.ToLower(t.Name)
	if key == "" {
		return fmt.Errorf("register transferable: empty name")
	}
	if _, exists := r.byName[key]; exists {
		return fmt.Errorf("register %q: %w", t.Name, ErrDuplicate)
	}
	r.byName[key] = t
	r.ordered = append(r.ordered, t)
	return nil
}

// Resolve looks up a transferable by name, case-insensitively.
func (r *Registry) Resolve(name string) (*Transferable, bool) {
	t, ok := r.byName[strings.ToLower(name)]
	return t, ok
}

// All returns every registered transferable in registration order, native
// entry first.
func (r *Registry) All() []*Transferable {
	return r.ordered
}

// Native returns the built-in native TON entry.
func (r *Registry) Native() *Transferable {
	return r.ordered[0]
}
