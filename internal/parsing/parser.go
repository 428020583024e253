// Package parsing extracts quote-capture fields from free-form customer
// messages: a delivery locator (CEP or neighborhood), a payment method, a
// delivery day and a bullet list of items.
package parsing

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Payment method labels as presented back to the customer.
const (
	PaymentPIX    = "PIX"
	PaymentCard   = "Cartão"
	PaymentBoleto = "Boleto"
)

// CapturedItem is one requested line from the customer message. Quantities
// are milli-units so fractional requests like 2.5 m3 stay integral.
type CapturedItem struct {
	Name       string
	QuantityE3 int64
	Unit       string
}

// Capture is the minimum data set needed to price a quote.
type Capture struct {
	Location      string
	LocationIsCEP bool
	PaymentMethod string
	DeliveryDay   string
	Items         []CapturedItem

	// AIAssisted marks captures produced by the LLM fallback. Such captures
	// always require human approval before a quote goes out.
	AIAssisted bool
}

var (
	cepPattern  = regexp.MustCompile(`\b(\d{5}[- ]?\d{3})\b`)
	itemPattern = regexp.MustCompile(`(?i)[-•]\s*([^:\n]+):\s*(\d+(?:[.,]\d+)?)\s*(\w+)?`)
)

var bairroKeywords = []string{"BAIRRO:", "BAIRRO", "LOCALIZAÇÃO:", "LOCALIZAÇÃO"}

var paymentKeywords = []struct {
	method   string
	keywords []string
}{
	{PaymentPIX, []string{"PIX"}},
	{PaymentCard, []string{"CARTÃO", "CARTAO", "CREDITO", "CRÉDITO", "DEBITO", "DÉBITO"}},
	{PaymentBoleto, []string{"BOLETO"}},
}

var deliveryKeywords = []struct {
	day      string
	keywords []string
}{
	{"o quanto antes", []string{"QUANTO ANTES", "URGENTE", "IMEDIATO"}},
	{"Amanhã", []string{"AMANHÃ", "AMANHA"}},
	{"Hoje", []string{"HOJE"}},
}

// Parse extracts the capture fields from a customer message. Returns nil
// when the minimum set (location, payment method, delivery day and at least
// one item) is not all present.
func Parse(messageText string) *Capture {
	upper := strings.ToUpper(strings.TrimSpace(messageText))

	location, isCEP := extractLocation(messageText, upper)
	payment := extractPayment(upper)
	delivery := extractDelivery(upper)
	items := extractItems(messageText)

	if location == "" || payment == "" || delivery == "" || len(items) == 0 {
		return nil
	}

	return &Capture{
		Location:      location,
		LocationIsCEP: isCEP,
		PaymentMethod: payment,
		DeliveryDay:   delivery,
		Items:         items,
	}
}

func extractLocation(original, upper string) (string, bool) {
	if m := cepPattern.FindStringSubmatch(original); m != nil {
		cep := strings.ReplaceAll(m[1], " ", "-")
		if len(strings.ReplaceAll(cep, "-", "")) == 8 {
			return cep, true
		}
	}

	for _, keyword := range bairroKeywords {
		if idx := strings.Index(upper, keyword); idx >= 0 {
			rest := upper[idx+len(keyword):]
			if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
				rest = rest[:nl]
			}
			if bairro := strings.TrimSpace(rest); bairro != "" {
				return bairro, false
			}
		}
	}

	return "", false
}

func extractPayment(upper string) string {
	for _, entry := range paymentKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(upper, kw) {
				return entry.method
			}
		}
	}
	return ""
}

func extractDelivery(upper string) string {
	for _, entry := range deliveryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(upper, kw) {
				return entry.day
			}
		}
	}

	for _, keyword := range []string{"ENTREGA:", "ENTREGA", "DELIVERY:"} {
		if idx := strings.Index(upper, keyword); idx >= 0 {
			rest := upper[idx+len(keyword):]
			if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
				rest = rest[:nl]
			}
			if day := strings.TrimSpace(rest); day != "" {
				return day
			}
		}
	}

	return ""
}

func extractItems(original string) []CapturedItem {
	var items []CapturedItem
	for _, m := range itemPattern.FindAllStringSubmatch(original, -1) {
		name := strings.TrimSpace(m[1])
		if name == "" {
			continue
		}

		qty, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", "."), 64)
		if err != nil || qty <= 0 {
			continue
		}

		unit := strings.TrimSpace(m[3])
		if unit == "" {
			unit = "un"
		}

		items = append(items, CapturedItem{
			Name:       name,
			QuantityE3: int64(math.Round(qty * 1000)),
			Unit:       unit,
		})
	}
	return items
}
