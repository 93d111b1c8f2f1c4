package command

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/veshch/ton-tipbot/internal/asset"
)

// Kind classifies a parsed message.
type Kind int

const (
	KindUnknown Kind = iota
	KindHelp
	KindBalance
	KindDeposit
	KindWithdraw
	KindTip
)

// Command is the structured result of parsing one message. Fields are taken
// directly from the matched text; validation happens downstream.
type Command struct {
	Kind      Kind
	Address   string  // withdraw destination
	Recipient string  // tip recipient token: @mention or address
	Amount    float64
	Unit      string
	Comment   string
}

var withdrawRegex = regexp.MustCompile(`(?i)^withdraw\s+(\S+)\s+(\d+(?:\.\d+)?)(?:\s+(\S+))?$`)

// Parser turns raw chat text into commands. It is pure: the only lookups it
// performs are against the in-memory registry, used to tell a unit token apart
// from free-text comment in tips.
type Parser struct {
	registry *asset.Registry
	tipRegex *regexp.Regexp
}

// NewParser creates a parser for the given bot name. The leading @ on the bot
// name is optional in channel messages.
func NewParser(registry *asset.Registry, botName string) *Parser {
	name := regexp.QuoteMeta(strings.TrimPrefix(botName, "@"))
	pattern := fmt.Sprintf(`(?i)^@?%s\s+tip\s+(\S+)\s+(\d+(?:\.\d+)?)(?:\s+(.+))?$`, name)
	return &Parser{
		registry: registry,
		tipRegex: regexp.MustCompile(pattern),
	}
}

// ParsePrivate interprets a message from a one-on-one chat.
func (p *Parser) ParsePrivate(text string) Command {
	text = strings.TrimSpace(text)

	switch strings.ToLower(text) {
	case "help", "/help", "/start":
		return Command{Kind: KindHelp}
	case "balance", "/balance":
		return Command{Kind: KindBalance}
	case "deposit", "/deposit":
		return Command{Kind: KindDeposit}
	}

	if m := withdrawRegex.FindStringSubmatch(text); m != nil {
		amount, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			// Malformed numbers fall back to the unknown-command path.
			return Command{Kind: KindUnknown}
		}
		unit := m[3]
		if unit == "" {
			unit = p.registry.Native().Name
		}
		return Command{Kind: KindWithdraw, Address: m[1], Amount: amount, Unit: unit}
	}

	return Command{Kind: KindUnknown}
}

// ParseChannel interprets a message from a group chat. Only tips addressed to
// the bot match; everything else is unknown.
func (p *Parser) ParseChannel(text string) Command {
	text = strings.TrimSpace(text)

	m := p.tipRegex.FindStringSubmatch(text)
	if m == nil {
		return Command{Kind: KindUnknown}
	}

	amount, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return Command{Kind: KindUnknown}
	}

	cmd := Command{
		Kind:      KindTip,
		Recipient: m[1],
		Amount:    amount,
		Unit:      p.registry.Native().Name,
	}

	// The token after the amount is a unit only if it resolves in the
	// registry; otherwise the whole tail is the comment.
	rest := strings.TrimSpace(m[3])
	if rest != "" {
		head, tail, _ := strings.Cut(rest, " ")
		if _, ok := p.registry.Resolve(head); ok {
			cmd.Unit = head
			cmd.Comment = strings.TrimSpace(tail)
		} else {
			cmd.Comment = rest
		}
	}

	return cmd
}
