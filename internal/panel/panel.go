// Package panel renders the shop panel and the purchase form.
package panel

import (
	"fmt"
	"strings"

	"keyshop-bot/internal/model"

	"github.com/bwmarrin/discordgo"
)

const (
	// Color is the embed accent color.
	Color = 0x00bfff

	Title = "BUY KEY TỰ ĐỘNG 💳"

	// QuantityInputID is the custom id of the quantity text input.
	QuantityInputID = "quantity"

	buyPrefix   = "buy_"
	modalPrefix = "modal_"
)

type button struct {
	tier  model.Tier
	label string
	style discordgo.ButtonStyle
}

var buttons = []button{
	{model.TierDay, "Key Ngày", discordgo.PrimaryButton},
	{model.TierWeek, "Key Tuần", discordgo.SuccessButton},
	{model.TierMonth, "Key Tháng", discordgo.DangerButton},
}

// Payload is a rendered panel message.
type Payload struct {
	Embed      *discordgo.MessageEmbed
	Components []discordgo.MessageComponent
}

// Embeds returns the embed as a slice, the shape discordgo sends.
func (p Payload) Embeds() []*discordgo.MessageEmbed {
	return []*discordgo.MessageEmbed{p.Embed}
}

// Render builds the panel for the given stock counts.
func Render(stock model.Stock) Payload {
	var b strings.Builder
	fmt.Fprintf(&b, "🔑 KEY THÁNG : %d\n", stock[model.TierMonth])
	fmt.Fprintf(&b, "🔑 KEY TUẦN  : %d\n", stock[model.TierWeek])
	fmt.Fprintf(&b, "🔑 KEY NGÀY  : %d\n\n", stock[model.TierDay])
	b.WriteString("Nhấn nút bên dưới để mua")

	row := discordgo.ActionsRow{}
	for _, btn := range buttons {
		row.Components = append(row.Components, discordgo.Button{
			Label:    btn.label,
			Style:    btn.style,
			CustomID: BuyID(btn.tier),
		})
	}

	return Payload{
		Embed: &discordgo.MessageEmbed{
			Title:       Title,
			Description: b.String(),
			Color:       Color,
		},
		Components: []discordgo.MessageComponent{row},
	}
}

// QuantityModal is the form shown after a buy button is pressed.
func QuantityModal(tier model.Tier) *discordgo.InteractionResponseData {
	return &discordgo.InteractionResponseData{
		CustomID: ModalID(tier),
		Title:    "Nhập số lượng",
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID: QuantityInputID,
						Label:    "Số lượng",
						Style:    discordgo.TextInputShort,
						Required: true,
					},
				},
			},
		},
	}
}

// BuyID is the custom id of a tier's buy button.
func BuyID(tier model.Tier) string { return buyPrefix + string(tier) }

// ModalID is the custom id of a tier's quantity form.
func ModalID(tier model.Tier) string { return modalPrefix + string(tier) }

// ParseBuyID extracts the tier from a buy button id.
func ParseBuyID(id string) (model.Tier, error) {
	return parseID(buyPrefix, id)
}

// ParseModalID extracts the tier from a quantity form id.
func ParseModalID(id string) (model.Tier, error) {
	return parseID(modalPrefix, id)
}

func parseID(prefix, id string) (model.Tier, error) {
	rest, ok := strings.CutPrefix(id, prefix)
	if !ok {
		return "", fmt.Errorf("%w: %q", model.ErrInvalidTier, id)
	}
	tier := model.Tier(rest)
	if !tier.Valid() {
		return "", fmt.Errorf("%w: %q", model.ErrInvalidTier, id)
	}
	return tier, nil
}

// ModalQuantity returns the raw quantity text from a submitted form.
func ModalQuantity(data discordgo.ModalSubmitInteractionData) string {
	for _, c := range data.Components {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, inner := range row.Components {
			if input, ok := inner.(*discordgo.TextInput); ok && input.CustomID == QuantityInputID {
				return input.Value
			}
		}
	}
	return ""
}
