package parsing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"

	"orcazap_backend/platform/config"
)

// Extractor is the LLM fallback for capture extraction. It talks to any
// OpenAI-compatible chat-completions endpoint. Every capture it produces is
// marked AIAssisted, which forces human approval downstream.
type Extractor struct {
	cfg    config.ParserConfig
	client *http.Client
}

// NewExtractor creates the LLM extraction fallback.
func NewExtractor(cfg config.ParserConfig) *Extractor {
	return &Extractor{
		cfg:    cfg,
		client: &http.Client{},
	}
}

// Enabled reports whether the fallback is configured.
func (e *Extractor) Enabled() bool {
	return e.cfg.IsAIParserEnabled()
}

const extractorSystemPrompt = "Você é um assistente especializado em extrair informações de pedidos de material de construção. Retorne sempre JSON válido."

const extractorPromptTemplate = `Extraia as informações de orçamento da seguinte mensagem do cliente:

%s

Extraia e retorne APENAS um JSON válido com as seguintes chaves:
- cep_or_bairro: CEP (formato 00000-000) ou nome do bairro
- payment_method: "PIX", "Cartão" ou "Boleto"
- delivery_day: Data de entrega ou "o quanto antes"
- items: Lista de objetos com "name", "quantity" (número) e "unit" (string)

Retorne APENAS o JSON, sem markdown ou explicações.`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error interface{} `json:"error"`
}

type extractedPayload struct {
	CEPOrBairro   string `json:"cep_or_bairro"`
	PaymentMethod string `json:"payment_method"`
	DeliveryDay   string `json:"delivery_day"`
	Items         []struct {
		Name     string  `json:"name"`
		Quantity float64 `json:"quantity"`
		Unit     string  `json:"unit"`
	} `json:"items"`
}

// Extract asks the model for the capture fields. Returns (nil, nil) when the
// model answer does not contain the full minimum set.
func (e *Extractor) Extract(ctx context.Context, messageText string) (*Capture, error) {
	payload := chatRequest{
		Model: e.cfg.GetAIParserModel(),
		Messages: []chatMessage{
			{Role: "system", Content: extractorSystemPrompt},
			{Role: "user", Content: fmt.Sprintf(extractorPromptTemplate, messageText)},
		},
		Temperature: 0.3,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal extraction request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(e.cfg.GetAIParserURL(), "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build extraction request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+e.cfg.GetAIParserAPIKey())
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call extraction model: %w", err)
	}
	defer resp.Body.Close()

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode extraction response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("extraction model error: %v", result.Error)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("extraction model error: empty choices")
	}

	var extracted extractedPayload
	if err := json.Unmarshal([]byte(stripCodeFence(result.Choices[0].Message.Content)), &extracted); err != nil {
		return nil, fmt.Errorf("parse extraction JSON: %w", err)
	}

	capture := &Capture{
		Location:      strings.TrimSpace(extracted.CEPOrBairro),
		LocationIsCEP: cepPattern.MatchString(extracted.CEPOrBairro),
		PaymentMethod: strings.TrimSpace(extracted.PaymentMethod),
		DeliveryDay:   strings.TrimSpace(extracted.DeliveryDay),
		AIAssisted:    true,
	}
	for _, item := range extracted.Items {
		name := strings.TrimSpace(item.Name)
		if name == "" || item.Quantity <= 0 {
			continue
		}
		unit := strings.TrimSpace(item.Unit)
		if unit == "" {
			unit = "un"
		}
		capture.Items = append(capture.Items, CapturedItem{
			Name:       name,
			QuantityE3: int64(math.Round(item.Quantity * 1000)),
			Unit:       unit,
		})
	}

	if capture.Location == "" || capture.PaymentMethod == "" ||
		capture.DeliveryDay == "" || len(capture.Items) == 0 {
		return nil, nil
	}
	return capture, nil
}

func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	lines := strings.Split(content, "\n")
	if len(lines) > 2 {
		return strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
	}
	return content
}
