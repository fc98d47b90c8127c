// Package bot connects the shop to Discord: slash commands, the purchase
// panel and private key delivery.
package bot

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"keyshop-bot/internal/model"
	"keyshop-bot/internal/panel"
	"keyshop-bot/internal/pkg/logging"
	"keyshop-bot/internal/service"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Intents the bot needs: guild events and member role data.
const Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers

// interactionTimeout bounds one interaction, including the wait for the shop lock.
const interactionTimeout = 10 * time.Second

// ErrUnauthorized is returned when a member without the admin role runs an admin command.
var ErrUnauthorized = errors.New("admin role required")

// user-facing replies
const (
	msgNoPermission    = "Không có quyền"
	msgKeyAdded        = "Đã thêm key."
	msgInvalidQuantity = "Số lượng không hợp lệ"
	msgOutOfStock      = "Không đủ key"
	msgInvalidTier     = "Loại key không hợp lệ"
	msgEmptyKey        = "Key không được để trống"
	msgInternal        = "Đã xảy ra lỗi, vui lòng thử lại sau"
)

// API is the part of *discordgo.Session the bot uses.
type API interface {
	InteractionRespond(i *discordgo.Interaction, r *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponse(i *discordgo.Interaction, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// Config identifies the application, its guild and the admin role.
type Config struct {
	AppID       string
	GuildID     string
	AdminRoleID string
}

// Bot handles Discord interactions and implements service.Notifier.
type Bot struct {
	api    API
	shop   *service.Shop
	config Config
	logger *zap.Logger
}

// New creates a bot. Call shop.SetNotifier(bot) to route panel refreshes and
// deliveries through it.
func New(api API, shop *service.Shop, config Config, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.L()
	}
	return &Bot{
		api:    api,
		shop:   shop,
		config: config,
		logger: logger.With(zap.String("component", "bot")),
	}
}

// Attach registers the bot's event handlers on a session.
func (b *Bot) Attach(s *discordgo.Session) {
	s.Identify.Intents = Intents
	s.AddHandler(b.onReady)
	s.AddHandler(b.onInteraction)
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info("bot_ready", zap.String("user", r.User.Username))

	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()
	if err := b.RegisterCommands(ctx); err != nil {
		b.logger.Error("command_registration_failed", zap.Error(err))
	}
}

func (b *Bot) onInteraction(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()
	b.HandleInteraction(ctx, ic.Interaction)
}

// Commands returns the guild slash commands.
func Commands() []*discordgo.ApplicationCommand {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(model.Tiers))
	for _, t := range model.Tiers {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: string(t), Value: string(t)})
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:        "setup",
			Description: "Tạo panel shop",
		},
		{
			Name:        "addkey",
			Description: "Thêm key",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "type",
					Description: "Loại key",
					Required:    true,
					Choices:     choices,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "key",
					Description: "Key",
					Required:    true,
				},
			},
		},
	}
}

// RegisterCommands replaces the guild's commands with Commands().
func (b *Bot) RegisterCommands(ctx context.Context) error {
	cmds, err := b.api.ApplicationCommandBulkOverwrite(b.config.AppID, b.config.GuildID, Commands(), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}
	b.logger.Info("commands_registered", zap.Int("count", len(cmds)), zap.String("guild_id", b.config.GuildID))
	return nil
}

// HandleInteraction dispatches one interaction. Panics are recovered and logged.
func (b *Bot) HandleInteraction(ctx context.Context, i *discordgo.Interaction) {
	logger := b.logger.With(zap.String("interaction_id", i.ID), zap.String("user_id", userID(i)))
	ctx = logging.ContextWithLogger(ctx, logger)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("interaction_panic", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	var err error
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		switch name := i.ApplicationCommandData().Name; name {
		case "setup":
			err = b.handleSetup(ctx, i)
		case "addkey":
			err = b.handleAddKey(ctx, i)
		default:
			logger.Warn("unknown_command", zap.String("command", name))
		}
	case discordgo.InteractionMessageComponent:
		err = b.handleBuy(ctx, i)
	case discordgo.InteractionModalSubmit:
		err = b.handleOrder(ctx, i)
	}

	if err != nil {
		logger.Error("interaction_failed", zap.Error(err))
	}
}

func (b *Bot) handleSetup(ctx context.Context, i *discordgo.Interaction) error {
	if err := b.authorize(ctx, i); err != nil {
		return b.replyEphemeral(ctx, i, msgNoPermission)
	}

	stock, err := b.shop.Stock(ctx)
	if err != nil {
		return b.fail(ctx, i, err)
	}
	p := panel.Render(stock)
	err = b.api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds:     p.Embeds(),
			Components: p.Components,
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to post panel: %w", err)
	}

	msg, err := b.api.InteractionResponse(i, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to fetch panel message: %w", err)
	}
	ref := model.PanelRef{ChannelID: msg.ChannelID, MessageID: msg.ID}
	if err := b.shop.SetPanel(ctx, ref); err != nil {
		return fmt.Errorf("failed to save panel: %w", err)
	}

	logging.FromContext(ctx).Info("panel_posted",
		zap.String("channel_id", ref.ChannelID),
		zap.String("message_id", ref.MessageID),
	)
	return nil
}

func (b *Bot) handleAddKey(ctx context.Context, i *discordgo.Interaction) error {
	if err := b.authorize(ctx, i); err != nil {
		return b.replyEphemeral(ctx, i, msgNoPermission)
	}

	var tier, key string
	for _, opt := range i.ApplicationCommandData().Options {
		switch opt.Name {
		case "type":
			tier = opt.StringValue()
		case "key":
			key = opt.StringValue()
		}
	}

	_, err := b.shop.AddKey(ctx, tier, key)
	switch {
	case errors.Is(err, model.ErrInvalidTier):
		return b.replyEphemeral(ctx, i, msgInvalidTier)
	case errors.Is(err, model.ErrEmptyKey):
		return b.replyEphemeral(ctx, i, msgEmptyKey)
	case err != nil:
		return b.fail(ctx, i, err)
	}
	return b.reply(ctx, i, msgKeyAdded, false)
}

func (b *Bot) handleBuy(ctx context.Context, i *discordgo.Interaction) error {
	tier, err := panel.ParseBuyID(i.MessageComponentData().CustomID)
	if err != nil {
		return b.replyEphemeral(ctx, i, msgInvalidTier)
	}

	err = b.api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: panel.QuantityModal(tier),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to show quantity form: %w", err)
	}
	return nil
}

func (b *Bot) handleOrder(ctx context.Context, i *discordgo.Interaction) error {
	data := i.ModalSubmitData()
	tier, err := panel.ParseModalID(data.CustomID)
	if err != nil {
		return b.replyEphemeral(ctx, i, msgInvalidTier)
	}

	order, err := b.shop.PlaceOrder(ctx, userID(i), string(tier), panel.ModalQuantity(data))
	switch {
	case errors.Is(err, model.ErrInvalidQuantity):
		return b.replyEphemeral(ctx, i, msgInvalidQuantity)
	case errors.Is(err, model.ErrInsufficientInventory):
		return b.replyEphemeral(ctx, i, msgOutOfStock)
	case err != nil:
		return b.fail(ctx, i, err)
	}
	return b.reply(ctx, i, OrderMessage(order), false)
}

// OrderMessage tells the buyer what to transfer and which note to use.
func OrderMessage(o *model.Order) string {
	return fmt.Sprintf("Đơn: %s\nSố tiền: %dđ\nChuyển khoản với nội dung: %s", o.ID, o.Total, o.ID)
}

// RefreshPanel edits the posted panel to show current stock.
// It does nothing when no panel has been posted.
func (b *Bot) RefreshPanel(ctx context.Context) error {
	ref, err := b.shop.Panel(ctx)
	if err != nil {
		return err
	}
	if ref.IsZero() {
		return nil
	}
	stock, err := b.shop.Stock(ctx)
	if err != nil {
		return err
	}

	p := panel.Render(stock)
	edit := discordgo.NewMessageEdit(ref.ChannelID, ref.MessageID).SetEmbeds(p.Embeds())
	edit.Components = &p.Components
	if _, err := b.api.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to edit panel %s/%s: %w", ref.ChannelID, ref.MessageID, err)
	}
	return nil
}

// Deliver sends text to the user in a direct message.
func (b *Bot) Deliver(ctx context.Context, userID, text string) error {
	ch, err := b.api.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to open DM with %s: %w", userID, err)
	}
	if _, err := b.api.ChannelMessageSend(ch.ID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send DM to %s: %w", userID, err)
	}
	return nil
}

func (b *Bot) authorize(ctx context.Context, i *discordgo.Interaction) error {
	if i.Member != nil && b.config.AdminRoleID != "" && slices.Contains(i.Member.Roles, b.config.AdminRoleID) {
		return nil
	}
	logging.FromContext(ctx).Warn("admin_command_denied")
	return ErrUnauthorized
}

func userID(i *discordgo.Interaction) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func (b *Bot) reply(ctx context.Context, i *discordgo.Interaction, content string, ephemeral bool) error {
	data := &discordgo.InteractionResponseData{Content: content}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := b.api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to reply: %w", err)
	}
	return nil
}

func (b *Bot) replyEphemeral(ctx context.Context, i *discordgo.Interaction, content string) error {
	return b.reply(ctx, i, content, true)
}

// fail tells the user something went wrong and returns cause for logging.
func (b *Bot) fail(ctx context.Context, i *discordgo.Interaction, cause error) error {
	if err := b.replyEphemeral(ctx, i, msgInternal); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

var _ service.Notifier = (*Bot)(nil)
