package engine

// Reply construction. All output is Telegram HTML; amounts are rendered in
// whole units with trailing zeros trimmed.

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/veshch/ton-tipbot/internal/asset"
	"github.com/veshch/ton-tipbot/internal/storage"
)

func formatAmount(t *asset.Transferable, units int64) string {
	return strconv.FormatFloat(t.FromUnits(units), 'f', -1, 64)
}

// userMention builds a mention link. The name comes from the user and must be
// escaped or Telegram rejects the whole message.
func userMention(userID int64, name string) string {
	return fmt.Sprintf("<a href='tg://user?id=%d'>%s</a>", userID, html.EscapeString(name))
}

func helpText(registry *asset.Registry) string {
	var units []string
	for _, t := range registry.All() {
		units = append(units, t.Name)
	}

	return "👋 I move TON and jettons between chat users.\n\n" +
		"In a private chat:\n" +
		"• <b>balance</b> — show your balances\n" +
		"• <b>deposit</b> — show your deposit address (creates your account the first time)\n" +
		"• <b>withdraw &lt;address&gt; &lt;amount&gt; [unit]</b> — send funds out\n\n" +
		"In a group:\n" +
		"• <b>botname tip &lt;@user|address&gt; &lt;amount&gt; [unit] [comment]</b>\n\n" +
		"Units: <b>" + strings.Join(units, ", ") + "</b>\n" +
		"1 TON always stays reserved for transaction fees."
}

func formatUnknownUnit(name string, registry *asset.Registry) string {
	var units []string
	for _, t := range registry.All() {
		units = append(units, t.Name)
	}
	known := strings.Join(units, ", ")

	if name == "" {
		return "❓ I don't know that unit. Known units: <b>" + known + "</b>"
	}
	return fmt.Sprintf("❓ I don't know the unit <b>%s</b>. Known units: <b>%s</b>", name, known)
}

func formatFeeReserveNative(native *asset.Transferable, amount, need, balance int64) string {
	return fmt.Sprintf(
		"❌ Insufficient funds: sending <b>%s %s</b> takes <b>%s %s</b> (amount + 1 %s fee reserve), but the balance is only <b>%s %s</b>.",
		formatAmount(native, amount), native.Name,
		formatAmount(native, need), native.Name,
		native.Name,
		formatAmount(native, balance), native.Name,
	)
}

func formatFeeReserveSecondary(native *asset.Transferable, nativeBalance int64) string {
	return fmt.Sprintf(
		"❌ Insufficient funds: at least 1 %s must stay available for fees, but the %s balance is only <b>%s %s</b>.",
		native.Name, native.Name,
		formatAmount(native, nativeBalance), native.Name,
	)
}

func formatInsufficient(t *asset.Transferable, amount, balance int64) string {
	return fmt.Sprintf(
		"❌ Insufficient funds: the %s balance is <b>%s %s</b>, tried to send <b>%s %s</b>.",
		t.Name,
		formatAmount(t, balance), t.Name,
		formatAmount(t, amount), t.Name,
	)
}

func formatNoAccount() string {
	return "You don't have an account yet. Say <b>deposit</b> and I'll create one for you."
}

func formatNoAccountChannel(senderID int64, senderName string) string {
	return userMention(senderID, senderName) + ", you don't have an account yet. Message me <b>deposit</b> privately first."
}

func formatNotValidAddress(addr string) string {
	return fmt.Sprintf("❌ <code>%s</code> is not a valid address.", html.EscapeString(addr))
}

func formatBotTip() string {
	return "😊 Thanks, but I can't accept tips."
}

func formatSelfTip() string {
	return "🙃 You can't tip yourself."
}

func formatBadRecipient(token string) string {
	return fmt.Sprintf("❓ I don't know who <code>%s</code> is — mention a user or give a valid address.", html.EscapeString(token))
}

func formatBadAmount() string {
	return "❌ That amount is out of range."
}

func formatCommentTooLong(limit int) string {
	return fmt.Sprintf("❌ That comment is too long (max %d characters).", limit)
}

func formatDeposit(acct *storage.Account, created bool) string {
	if created {
		return "✅ Account created! Deposit address:\n\n<code>" + acct.AddressDisplay + "</code>"
	}
	return "📥 Your deposit address:\n\n<code>" + acct.AddressDisplay + "</code>"
}

func formatBalance(lines []string) string {
	return "💰 <b>Your balances</b>\n\n" + strings.Join(lines, "\n")
}

func formatBalanceLine(t *asset.Transferable, units int64) string {
	return fmt.Sprintf("• <b>%s %s</b>", formatAmount(t, units), t.Name)
}

func formatWithdrawReply(t *asset.Transferable, amount int64, dest, txID string) string {
	return fmt.Sprintf(
		"✅ Sent <b>%s %s</b> to <code>%s</code>\n\nTransaction: <code>%s</code>",
		formatAmount(t, amount), t.Name, html.EscapeString(dest), txID,
	)
}

func formatTipReply(sender, recipient string, t *asset.Transferable, amount int64, txID, comment string) string {
	lines := []string{
		fmt.Sprintf("💸 %s tipped %s <b>%s %s</b>", sender, recipient, formatAmount(t, amount), t.Name),
	}
	if comment != "" {
		lines = append(lines, "", "💬 <i>"+html.EscapeString(comment)+"</i>")
	}
	lines = append(lines, "", "Transaction: <code>"+txID+"</code>")
	return strings.Join(lines, "\n")
}

func formatAccountCreated(senderName string) string {
	return fmt.Sprintf(
		"🎉 <b>%s</b> sent you a tip! I created an account for you to hold it.\n\nSay <b>help</b> to see what you can do with it.",
		html.EscapeString(senderName),
	)
}

func renderWelcome(template string, amount, sender string) string {
	msg := strings.ReplaceAll(template, "{amount}", amount)
	return strings.ReplaceAll(msg, "{sender}", html.EscapeString(sender))
}
