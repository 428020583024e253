package messages

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"orcazap_backend/internal/quoting"
)

func TestFormatBRL(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{0, "R$ 0,00"},
		{42750, "R$ 427,50"},
		{123456789, "R$ 1.234.567,89"},
		{-2500, "-R$ 25,00"},
		{100000, "R$ 1.000,00"},
	}
	for _, tc := range cases {
		if got := formatBRL(tc.cents); got != tc.want {
			t.Errorf("formatBRL(%d) = %q, want %q", tc.cents, got, tc.want)
		}
	}
}

func TestFormatQuantity(t *testing.T) {
	cases := []struct {
		e3   int64
		want string
	}{
		{10_000, "10"},
		{2_500, "2,5"},
		{1_250, "1,25"},
		{500, "0,5"},
	}
	for _, tc := range cases {
		if got := formatQuantity(tc.e3); got != tc.want {
			t.Errorf("formatQuantity(%d) = %q, want %q", tc.e3, got, tc.want)
		}
	}
}

func TestCapturePromptPersonalization(t *testing.T) {
	if !strings.HasPrefix(CapturePrompt("Maria"), "Olá, Maria! 👋") {
		t.Error("named prompt lost the personalization")
	}
	if !strings.HasPrefix(CapturePrompt(""), "Olá! 👋") {
		t.Error("anonymous prompt broken")
	}
}

func TestFormatQuote(t *testing.T) {
	validUntil := time.Date(2026, 8, 28, 18, 30, 0, 0, time.UTC)
	itemID := uuid.New()
	quote := &quoting.Quote{
		ID:             uuid.New(),
		ConversationID: uuid.New(),
		Lines: []quoting.PricedLine{
			{ItemID: &itemID, Name: "Cimento 50kg", Unit: "sacos", QuantityE3: 10_000,
				UnitPriceCents: 4500, DiscountBps: 500, TotalCents: 42750, Resolved: true},
		},
		SubtotalCents:     42750,
		FreightCents:      2500,
		FreightDetermined: true,
		DiscountBps:       300,
		TotalCents:        41468 + 2500,
		ValidUntil:        validUntil,
	}

	text := FormatQuote(quote, "PIX", "Amanhã")

	for _, fragment := range []string{
		"• Cimento 50kg (10 sacos): R$ 427,50",
		"*Subtotal:* R$ 427,50",
		"*Frete:* R$ 25,00",
		"*Desconto PIX (3%):* -R$ 12,82",
		"*Total:* R$ 439,68",
		"💳 *Forma de pagamento:* PIX",
		"📅 *Entrega:* Amanhã",
		"*Válido até:* 28/08/2026 às 18:30",
	} {
		if !strings.Contains(text, fragment) {
			t.Errorf("quote text missing %q\n%s", fragment, text)
		}
	}
}

func TestFormatQuoteUndeterminedFreight(t *testing.T) {
	quote := &quoting.Quote{
		Lines:         []quoting.PricedLine{{Name: "Tijolo", Unit: "un", QuantityE3: 500_000, TotalCents: 75000, Resolved: true}},
		SubtotalCents: 75000,
		TotalCents:    75000,
		ValidUntil:    time.Now(),
	}

	text := FormatQuote(quote, "Boleto", "Hoje")
	if !strings.Contains(text, "*Frete:* a combinar") {
		t.Errorf("undetermined freight not rendered:\n%s", text)
	}
	if strings.Contains(text, "Desconto") {
		t.Error("zero discount must not render a discount line")
	}
}
