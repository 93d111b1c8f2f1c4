package ledger

import "github.com/tonkeeper/tongo/ton"

// IsValidAddress reports whether s parses as a TON address in any supported
// format (raw 0:... or friendly UQ.../EQ...).
func IsValidAddress(s string) bool {
	_, err := ton.ParseAccountID(s)
	return err == nil
}

func (c *Client) IsValidAddress(s string) bool {
	return IsValidAddress(s)
}

// NormalizeAddress converts any address format to raw (0:...)
func NormalizeAddress(addr string) string {
	if addr == "" {
		return ""
	}

	acc, err := ton.ParseAccountID(addr)
	if err != nil {
		return addr
	}

	return acc.String()
}

// FriendlyAddress converts a raw address (0:...) to the user-facing format
// (UQ.../EQ...)
func FriendlyAddress(raw string) string {
	if raw == "" {
		return ""
	}

	acc, err := ton.ParseAccountID(raw)
	if err != nil {
		return raw
	}

	// bounceable, URL-safe
	return acc.ToHuman(true, false)
}

// ShortAddress returns a shortened address for display
func ShortAddress(addr string, n int) string {
	if addr == "" {
		return "unknown"
	}
	if len(addr) < n*2+3 {
		return addr
	}
	return addr[:n] + "..." + addr[len(addr)-n:]
}
