package asset

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryResolveCaseInsensitive(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Transferable{Name: "GOLD", Kind: KindAsset, Decimals: 9}))

	for _, name := range []string{"GOLD", "gold", "GoLd"} {
		got, ok := r.Resolve(name)
		require.True(t, ok, "resolve %q", name)
		require.Equal(t, "GOLD", got.Name)
	}

	for _, name := range []string{"ton", "TON", "Ton"} {
		got, ok := r.Resolve(name)
		require.True(t, ok, "resolve %q", name)
		require.True(t, got.IsNative())
	}

	_, ok := r.Resolve("SILVER")
	require.False(t, ok)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Transferable{Name: "GOLD", Kind: KindCurrency, Decimals: 6}))

	err := r.Register(&Transferable{Name: "gold", Kind: KindAsset, Decimals: 9})
	require.ErrorIs(t, err, ErrDuplicate)

	// The native entry is protected too.
	err = r.Register(&Transferable{Name: "ton", Kind: KindCurrency, Decimals: 9})
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestRegistryAllOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Transferable{Name: "GOLD", Kind: KindCurrency, Decimals: 6}))
	require.NoError(t, r.Register(&Transferable{Name: "BADGE", Kind: KindAsset, Decimals: 0}))

	all := r.All()
	require.Len(t, all, 3)
	require.True(t, all[0].IsNative())
	require.Equal(t, "GOLD", all[1].Name)
	require.Equal(t, "BADGE", all[2].Name)
	require.Same(t, all[0], r.Native())
}

func TestUnitConversion(t *testing.T) {
	ton := NewRegistry().Native()
	require.Equal(t, int64(1_000_000_000), ton.OneUnit())

	units, ok := ton.ToUnits(12.5)
	require.True(t, ok)
	require.Equal(t, int64(12_500_000_000), units)
	require.Equal(t, 12.5, ton.FromUnits(12_500_000_000))

	badge := &Transferable{Name: "BADGE", Kind: KindAsset, Decimals: 0}
	units, ok = badge.ToUnits(3)
	require.True(t, ok)
	require.Equal(t, int64(3), units)
	require.Equal(t, int64(1), badge.OneUnit())
}

func TestToUnitsRange(t *testing.T) {
	ton := NewRegistry().Native()

	// 1e13 TON scales past the int64 base-unit range.
	units, ok := ton.ToUnits(1e13)
	require.False(t, ok)
	require.Zero(t, units)

	for _, amount := range []float64{math.Inf(1), math.NaN(), -1} {
		_, ok := ton.ToUnits(amount)
		require.False(t, ok, "amount %v", amount)
	}

	// Large but representable amounts still convert.
	units, ok = ton.ToUnits(9e9)
	require.True(t, ok)
	require.Equal(t, int64(9_000_000_000_000_000_000), units)
}
