package panel

import (
	"errors"
	"testing"

	"keyshop-bot/internal/model"

	"github.com/bwmarrin/discordgo"
)

func TestRender(t *testing.T) {
	p := Render(model.Stock{model.TierDay: 3, model.TierWeek: 1})

	want := "🔑 KEY THÁNG : 0\n🔑 KEY TUẦN  : 1\n🔑 KEY NGÀY  : 3\n\nNhấn nút bên dưới để mua"
	if p.Embed.Description != want {
		t.Errorf("description = %q, want %q", p.Embed.Description, want)
	}
	if p.Embed.Color != 0x00bfff || p.Embed.Title != Title {
		t.Errorf("embed = %+v", p.Embed)
	}
	if len(p.Embeds()) != 1 {
		t.Errorf("embeds = %d", len(p.Embeds()))
	}

	if len(p.Components) != 1 {
		t.Fatalf("rows = %d", len(p.Components))
	}
	row := p.Components[0].(discordgo.ActionsRow)
	wantButtons := []struct {
		id    string
		label string
		style discordgo.ButtonStyle
	}{
		{"buy_day", "Key Ngày", discordgo.PrimaryButton},
		{"buy_week", "Key Tuần", discordgo.SuccessButton},
		{"buy_month", "Key Tháng", discordgo.DangerButton},
	}
	if len(row.Components) != len(wantButtons) {
		t.Fatalf("buttons = %d", len(row.Components))
	}
	for i, w := range wantButtons {
		b := row.Components[i].(discordgo.Button)
		if b.CustomID != w.id || b.Label != w.label || b.Style != w.style {
			t.Errorf("button %d = %+v", i, b)
		}
	}
}

func TestQuantityModal(t *testing.T) {
	m := QuantityModal(model.TierWeek)
	if m.CustomID != "modal_week" || m.Title != "Nhập số lượng" {
		t.Errorf("modal = %+v", m)
	}
	input := m.Components[0].(discordgo.ActionsRow).Components[0].(discordgo.TextInput)
	if input.CustomID != "quantity" || !input.Required || input.Style != discordgo.TextInputShort {
		t.Errorf("input = %+v", input)
	}
}

func TestParseIDs(t *testing.T) {
	tests := []struct {
		name  string
		parse func(string) (model.Tier, error)
		id    string
		want  model.Tier
		ok    bool
	}{
		{"buy day", ParseBuyID, "buy_day", model.TierDay, true},
		{"buy month", ParseBuyID, "buy_month", model.TierMonth, true},
		{"buy unknown", ParseBuyID, "buy_year", "", false},
		{"buy wrong prefix", ParseBuyID, "modal_day", "", false},
		{"modal week", ParseModalID, "modal_week", model.TierWeek, true},
		{"modal empty", ParseModalID, "modal_", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.parse(tt.id)
			if tt.ok {
				if err != nil || got != tt.want {
					t.Errorf("got %q, %v", got, err)
				}
				return
			}
			if !errors.Is(err, model.ErrInvalidTier) {
				t.Errorf("error = %v, want ErrInvalidTier", err)
			}
		})
	}
}

func TestModalQuantity(t *testing.T) {
	data := discordgo.ModalSubmitInteractionData{
		CustomID: "modal_day",
		Components: []discordgo.MessageComponent{
			&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				&discordgo.TextInput{CustomID: "quantity", Value: " 4 "},
			}},
		},
	}
	if got := ModalQuantity(data); got != " 4 " {
		t.Errorf("quantity = %q", got)
	}
	if got := ModalQuantity(discordgo.ModalSubmitInteractionData{}); got != "" {
		t.Errorf("empty form quantity = %q", got)
	}
}
