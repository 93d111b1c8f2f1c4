package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf16"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/veshch/ton-tipbot/internal/command"
	"github.com/veshch/ton-tipbot/internal/config"
	"github.com/veshch/ton-tipbot/internal/engine"
	"github.com/veshch/ton-tipbot/internal/storage"
)

// Bot receives Telegram updates, parses them into commands and routes them to
// the engine. It also implements engine.Transport.
type Bot struct {
	bot     *bot.Bot
	cfg     *config.Config
	storage *storage.Storage
	parser  *command.Parser
	engine  *engine.Engine
	log     *slog.Logger

	selfID   int64
	username string
}

// New creates the bot and registers handlers. Call LoadSelf before Start, and
// SetEngine once the engine exists.
func New(cfg *config.Config, store *storage.Storage, parser *command.Parser, log *slog.Logger) (*Bot, error) {
	b := &Bot{
		cfg:      cfg,
		storage:  store,
		parser:   parser,
		log:      log,
		username: strings.TrimPrefix(cfg.BotUsername, "@"),
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.defaultHandler),
	}

	tgBot, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	b.bot = tgBot
	return b, nil
}

// LoadSelf fetches the bot's own identity, used to reject tips to the bot.
func (b *Bot) LoadSelf(ctx context.Context) error {
	me, err := b.bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("get me: %w", err)
	}

	b.selfID = me.ID
	if me.Username != "" {
		b.username = me.Username
	}

	b.log.Info("bot identity loaded", "id", b.selfID, "username", b.username)
	return nil
}

// SetEngine attaches the transfer engine. Must be called before Start.
func (b *Bot) SetEngine(e *engine.Engine) {
	b.engine = e
}

// Start starts update polling
func (b *Bot) Start(ctx context.Context) {
	b.bot.Start(ctx)
}

// --- Dispatch ---

func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.Text == "" || msg.From == nil {
		return
	}

	// Keep the user directory fresh; mentions resolve against it.
	if err := b.storage.UpsertUser(msg.From.ID, msg.From.Username, displayName(msg.From)); err != nil {
		b.log.Error("upsert user", "user_id", msg.From.ID, "error", err)
	}

	switch msg.Chat.Type {
	case "private":
		b.handlePrivate(ctx, msg)
	case "group", "supergroup":
		b.handleChannel(ctx, msg)
	}
}

func (b *Bot) handlePrivate(ctx context.Context, msg *models.Message) {
	cmd := b.parser.ParsePrivate(msg.Text)

	var err error
	switch cmd.Kind {
	case command.KindHelp:
		err = b.engine.Help(ctx, msg.Chat.ID)
	case command.KindBalance:
		err = b.engine.Balance(ctx, msg.From.ID, msg.Chat.ID)
	case command.KindDeposit:
		err = b.engine.Deposit(ctx, msg.From.ID, msg.Chat.ID)
	case command.KindWithdraw:
		err = b.engine.Withdraw(ctx, msg.From.ID, msg.Chat.ID, cmd.Address, cmd.Amount, cmd.Unit)
	default:
		b.reply(ctx, msg.Chat.ID, "I didn't understand that. Say <b>help</b> for the command list.")
		return
	}

	if err != nil {
		b.log.Error("handle private command",
			"user_id", msg.From.ID,
			"kind", cmd.Kind,
			"error", err,
		)
		b.reply(ctx, msg.Chat.ID, "⚠️ Something went wrong. Please try again later.")
	}
}

func (b *Bot) handleChannel(ctx context.Context, msg *models.Message) {
	cmd := b.parser.ParseChannel(msg.Text)
	if cmd.Kind != command.KindTip {
		// Group chatter that isn't addressed to the bot is ignored.
		return
	}

	rcp := b.resolveRecipient(msg, cmd.Recipient)

	if err := b.engine.Tip(ctx, msg.From.ID, msg.Chat.ID, rcp, cmd.Amount, cmd.Unit, cmd.Comment); err != nil {
		b.log.Error("handle tip",
			"user_id", msg.From.ID,
			"chat_id", msg.Chat.ID,
			"error", err,
		)
		b.reply(ctx, msg.Chat.ID, "⚠️ Something went wrong. Please try again later.")
	}
}

// resolveRecipient turns the recipient token into an engine.Recipient.
// text_mention entities carry the user directly; @username goes through the
// directory; anything else is treated as an address candidate.
func (b *Bot) resolveRecipient(msg *models.Message, token string) engine.Recipient {
	for _, ent := range msg.Entities {
		if ent.Type != "text_mention" || ent.User == nil {
			continue
		}
		if entityText(msg.Text, ent) == token {
			return engine.Recipient{UserID: ent.User.ID, Raw: token}
		}
	}

	if strings.HasPrefix(token, "@") {
		name := strings.TrimPrefix(token, "@")
		if strings.EqualFold(name, b.username) {
			return engine.Recipient{UserID: b.selfID, Raw: token}
		}
		if userID, err := b.storage.UserIDByUsername(name); err == nil {
			return engine.Recipient{UserID: userID, Raw: token}
		}
		// Unknown mention falls through as an (invalid) address candidate
		// so the engine can answer with a recipient error.
	}

	return engine.Recipient{Address: token, Raw: token}
}

// entityText extracts the substring an entity covers. Telegram entity offsets
// count UTF-16 code units.
func entityText(text string, ent models.MessageEntity) string {
	encoded := utf16.Encode([]rune(text))
	if ent.Offset < 0 || ent.Offset+ent.Length > len(encoded) {
		return ""
	}
	return string(utf16.Decode(encoded[ent.Offset : ent.Offset+ent.Length]))
}

func displayName(u *models.User) string {
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.Username != "" {
		return u.Username
	}
	return "someone"
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.SendMessage(ctx, chatID, text, true); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

// --- engine.Transport ---

// SendMessage delivers a message to a chat. notify=false sends silently.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string, notify bool) error {
	disablePreview := true
	params := &bot.SendMessageParams{
		ChatID:              chatID,
		Text:                text,
		ParseMode:           models.ParseModeHTML,
		DisableNotification: !notify,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disablePreview,
		},
	}

	_, err := b.bot.SendMessage(ctx, params)
	return err
}

// PrivateChatID returns the private chat for a user. On Telegram that is the
// user id itself.
func (b *Bot) PrivateChatID(userID int64) int64 {
	return userID
}

// SelfID returns the bot's own user id.
func (b *Bot) SelfID() int64 {
	return b.selfID
}

// DisplayName returns a human-readable name for a user.
func (b *Bot) DisplayName(ctx context.Context, userID int64) string {
	name, err := b.storage.DisplayName(userID)
	if err != nil || name == "" {
		return "someone"
	}
	return name
}
