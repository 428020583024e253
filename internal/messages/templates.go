// Package messages holds the PT-BR customer-facing texts. Everything here is
// a pure formatting function over quote data.
package messages

import (
	"fmt"
	"strings"

	"orcazap_backend/internal/quoting"
)

// CapturePrompt asks a new customer for the minimum data set.
func CapturePrompt(contactName string) string {
	greeting := "Olá! 👋"
	if contactName != "" {
		greeting = fmt.Sprintf("Olá, %s! 👋", contactName)
	}

	return greeting + `

Para gerar seu orçamento, preciso das seguintes informações:

📍 *Localização:* [CEP ou bairro]
💳 *Forma de pagamento:* [PIX / Cartão / Boleto]
📅 *Dia de entrega:* [Data ou "o quanto antes"]
📦 *Itens:* [Lista de produtos com quantidades]

Exemplo:
📍 CEP: 01310-100 ou Bairro: Centro
💳 PIX
📅 Amanhã
📦
- Cimento 50kg: 10 sacos
- Areia média: 2,5 m3
- Tijolo comum: 500 unidades`
}

// ResendPrompt is sent when a capture message is incomplete.
func ResendPrompt() string {
	return `Desculpe, não consegui entender algumas informações.

Por favor, envie novamente no formato:
📍 CEP ou bairro
💳 Forma de pagamento
📅 Dia de entrega
📦 Lista de itens

Obrigado! 😊`
}

// HoldForReview is sent when the quote went to human approval. It never
// reveals prices.
func HoldForReview() string {
	return `Olá! 👋

Recebi sua solicitação. Para garantir o melhor atendimento, nossa equipe está analisando seu pedido e entrará em contato em breve.

Você receberá uma resposta em até 2 horas úteis.

Obrigado pela compreensão! 🙏`
}

// QuoteError is sent when quote generation fails unexpectedly.
func QuoteError() string {
	return `Desculpe, ocorreu um erro ao gerar seu orçamento.

Nossa equipe foi notificada e entrará em contato em breve.`
}

// OrderConfirmed acknowledges a schedule confirmation.
func OrderConfirmed() string {
	return `🎉 Pedido confirmado!

Nossa equipe vai preparar sua entrega e te avisa quando estiver a caminho.

Obrigado pela preferência! 😊`
}

// OrderDeclined acknowledges a declined quote.
func OrderDeclined() string {
	return `Tudo bem! Seu orçamento foi cancelado.

Quando precisar, é só mandar uma nova mensagem. Até logo! 👋`
}

// FormatQuote renders the dispatched quote text.
func FormatQuote(quote *quoting.Quote, paymentMethod, deliveryDay string) string {
	var b strings.Builder
	b.WriteString("✅ *Orçamento Gerado*\n\n*Itens:*\n")

	for _, line := range quote.Lines {
		if !line.Resolved {
			continue
		}
		b.WriteString(fmt.Sprintf("• %s (%s %s): %s\n",
			line.Name, formatQuantity(line.QuantityE3), line.Unit, formatBRL(line.TotalCents)))
	}

	b.WriteString(fmt.Sprintf("\n*Subtotal:* %s\n", formatBRL(quote.SubtotalCents)))
	if quote.FreightDetermined {
		b.WriteString(fmt.Sprintf("*Frete:* %s\n", formatBRL(quote.FreightCents)))
	} else {
		b.WriteString("*Frete:* a combinar\n")
	}

	if quote.DiscountBps > 0 {
		discountName := "Desconto"
		if strings.EqualFold(paymentMethod, "PIX") {
			discountName = "PIX"
		}
		discountAmount := quote.SubtotalCents - (quote.TotalCents - quote.FreightCents)
		b.WriteString(fmt.Sprintf("*Desconto %s (%s%%):* -%s\n",
			discountName, formatPercent(quote.DiscountBps), formatBRL(discountAmount)))
	}

	b.WriteString("━━━━━━━━━━━━━━━━\n")
	b.WriteString(fmt.Sprintf("*Total:* %s\n\n", formatBRL(quote.TotalCents)))
	b.WriteString(fmt.Sprintf("💳 *Forma de pagamento:* %s\n", paymentMethod))
	b.WriteString(fmt.Sprintf("📅 *Entrega:* %s\n\n", deliveryDay))
	b.WriteString(fmt.Sprintf("⏰ *Válido até:* %s\n\n", quote.ValidUntil.Format("02/01/2006 às 15:04")))
	b.WriteString("Para agendar a entrega, responda:\n✅ *Confirmar* ou *Sim*\n\nOu envie sua dúvida que te ajudo! 😊")

	return b.String()
}

// formatBRL renders cents as "R$ 1.234,56".
func formatBRL(cents int64) string {
	negative := cents < 0
	if negative {
		cents = -cents
	}

	whole := cents / 100
	frac := cents % 100

	digits := fmt.Sprintf("%d", whole)
	var grouped strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(d)
	}

	sign := ""
	if negative {
		sign = "-"
	}
	return fmt.Sprintf("%sR$ %s,%02d", sign, grouped.String(), frac)
}

// formatQuantity renders milli-units without trailing zeros: 10000 -> "10",
// 2500 -> "2,5".
func formatQuantity(quantityE3 int64) string {
	whole := quantityE3 / 1000
	frac := quantityE3 % 1000
	if frac == 0 {
		return fmt.Sprintf("%d", whole)
	}
	text := strings.TrimRight(fmt.Sprintf("%03d", frac), "0")
	return fmt.Sprintf("%d,%s", whole, text)
}

// formatPercent renders basis points without trailing zeros: 500 -> "5",
// 250 -> "2,5".
func formatPercent(bps int64) string {
	whole := bps / 100
	frac := bps % 100
	if frac == 0 {
		return fmt.Sprintf("%d", whole)
	}
	text := strings.TrimRight(fmt.Sprintf("%02d", frac), "0")
	return fmt.Sprintf("%d,%s", whole, text)
}
