package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"orcazap_backend/internal/conversation"
	"orcazap_backend/internal/events"
	"orcazap_backend/internal/intake"
	"orcazap_backend/internal/messages"
	"orcazap_backend/internal/parsing"
	"orcazap_backend/internal/quoting"
	"orcazap_backend/internal/whatsapp"
	"orcazap_backend/platform/config"
	"orcazap_backend/platform/db"
	"orcazap_backend/platform/logger"
)

// Processor owns the inbound-event and approval-decision flows. Every flow
// follows the same shape: all provider sends happen BEFORE the single local
// transaction commits. A send failure leaves zero local mutation, the task
// errors and the queue redelivers; the ledger and the state CAS make the
// retry safe.
type Processor struct {
	ledger Ledger
	convs  Conversations
	rules  Rules
	quotes Quotes
	txer   TxBeginner
	pool   db.Querier
	sender whatsapp.Sender
	ai     Extractor
	bus    events.Bus
	cfg    config.WorkerConfig
	log    *logger.Logger
	now    func() time.Time
}

// NewProcessor wires the processor. ai and bus may be nil.
func NewProcessor(
	ledger Ledger,
	convs Conversations,
	rules Rules,
	quotes Quotes,
	txer TxBeginner,
	pool db.Querier,
	sender whatsapp.Sender,
	ai Extractor,
	bus events.Bus,
	cfg config.WorkerConfig,
	log *logger.Logger,
) *Processor {
	return &Processor{
		ledger: ledger,
		convs:  convs,
		rules:  rules,
		quotes: quotes,
		txer:   txer,
		pool:   pool,
		sender: sender,
		ai:     ai,
		bus:    bus,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

func (p *Processor) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := p.txer.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *Processor) publish(ctx context.Context, event events.Event) {
	if p.bus != nil {
		p.bus.Publish(ctx, event)
	}
}

func (p *Processor) publishTransition(ctx context.Context, id uuid.UUID, from, to conversation.State, trigger conversation.Event) {
	p.log.StateTransition(id.String(), string(from), string(to), string(trigger))
	p.publish(ctx, events.ConversationTransitioned{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: id,
		From:           string(from),
		To:             string(to),
		Trigger:        string(trigger),
	})
}

// ProcessInbound drives one registered inbound event through the state
// machine. Safe to call any number of times for the same external id: a
// missing ledger row is acknowledged, a row already bound to a conversation
// is skipped.
func (p *Processor) ProcessInbound(ctx context.Context, externalID string) error {
	log := p.log.WithExternalID(externalID)

	msg, err := p.ledger.GetInboundByExternalID(ctx, externalID)
	if errors.Is(err, intake.ErrMessageNotFound) {
		log.Warn("inbound task references unknown event, dropping")
		return nil
	}
	if err != nil {
		return err
	}
	if msg.ConversationID != nil {
		log.DuplicateEvent(externalID)
		return nil
	}

	channel, err := p.ledger.GetChannel(ctx, msg.ChannelID)
	if err != nil {
		return err
	}

	contactID, err := p.convs.UpsertContact(ctx, msg.SenderPhone, msg.SenderName)
	if err != nil {
		return err
	}

	conv, err := p.convs.GetOrCreate(ctx, contactID, channel.ID)
	if err != nil {
		return err
	}

	if err := p.convs.TouchLastMessage(ctx, conv.ID, p.now()); err != nil {
		return err
	}

	switch conv.State {
	case conversation.StateInbound:
		return p.handleFirstContact(ctx, log, msg, channel, conv)
	case conversation.StateCaptureMin:
		return p.handleCapture(ctx, log, msg, channel, conv)
	case conversation.StateQuoteSent, conversation.StateWaitingReply:
		return p.handleReply(ctx, log, msg, channel, conv)
	default:
		// QUOTE_READY, HUMAN_APPROVAL and terminal states: record the event
		// against the conversation, change nothing else.
		return p.inTx(ctx, func(tx pgx.Tx) error {
			return p.ledger.BindConversation(ctx, tx, msg.ID, conv.ID)
		})
	}
}

// handleFirstContact greets a new conversation with the capture prompt and
// opens the reply window.
func (p *Processor) handleFirstContact(ctx context.Context, log *logger.Logger, msg *intake.InboundMessage, channel *intake.Channel, conv *conversation.Conversation) error {
	next, err := conversation.Transition(conv.State, conversation.EventFirstMessageReceived)
	if err != nil {
		return err
	}

	text := messages.CapturePrompt(msg.SenderName)
	providerID, err := p.sender.SendText(ctx, channel.PhoneNumberID, msg.SenderPhone, text)
	if err != nil {
		log.DispatchError(conv.ID.String(), err)
		return err
	}

	window := p.now().Add(p.cfg.GetReplyWindow())
	err = p.inTx(ctx, func(tx pgx.Tx) error {
		if err := p.casState(ctx, tx, conv.ID, conv.State, next, &window); err != nil {
			return err
		}
		if err := p.ledger.InsertOutbound(ctx, tx, conv.ID, channel.ID, providerID, text); err != nil {
			return err
		}
		return p.ledger.BindConversation(ctx, tx, msg.ID, conv.ID)
	})
	if err != nil {
		return err
	}

	p.publishTransition(ctx, conv.ID, conv.State, next, conversation.EventFirstMessageReceived)
	return nil
}

// handleCapture parses the customer message and either asks for a resend or
// prices a quote and routes it through the approval gate.
func (p *Processor) handleCapture(ctx context.Context, log *logger.Logger, msg *intake.InboundMessage, channel *intake.Channel, conv *conversation.Conversation) error {
	capture := parsing.Parse(msg.TextContent)
	if capture == nil && p.ai != nil && p.ai.Enabled() {
		extracted, err := p.ai.Extract(ctx, msg.TextContent)
		if err != nil {
			log.Warn("llm extraction failed, falling back to resend prompt", "error", err)
		} else {
			capture = extracted
		}
	}

	if capture == nil {
		return p.sendAndRecord(ctx, log, msg, channel, conv, messages.ResendPrompt())
	}

	quote, reasons, err := p.priceCapture(ctx, conv.ID, capture)
	if err != nil {
		return err
	}

	if len(reasons) > 0 {
		return p.holdForApproval(ctx, log, msg, channel, conv, quote, reasons)
	}
	return p.dispatchQuote(ctx, log, msg, channel, conv, quote, capture)
}

// priceCapture resolves items against the catalog and prices the quote from
// one consistent rules snapshot.
func (p *Processor) priceCapture(ctx context.Context, conversationID uuid.UUID, capture *parsing.Capture) (*quoting.Quote, []quoting.Reason, error) {
	resolved := make([]quoting.ResolvedItem, 0, len(capture.Items))
	for _, captured := range capture.Items {
		item, err := p.rules.LookupItemExact(ctx, captured.Name)
		if err != nil {
			return nil, nil, err
		}
		resolved = append(resolved, quoting.ResolvedItem{Captured: captured, Item: item})
	}

	snapshot, err := p.rules.LoadSnapshot(ctx)
	if err != nil {
		return nil, nil, err
	}

	lines, subtotal := quoting.PriceItems(resolved, snapshot.Discounts)
	weight := quoting.TotalWeightKgE3(resolved)
	freight := quoting.ResolveFreight(snapshot.Freight, capture.Location, capture.LocationIsCEP, weight)

	quote := quoting.BuildQuote(conversationID, lines, subtotal, freight, snapshot.Policy,
		capture.PaymentMethod, capture.DeliveryDay, p.now(), p.cfg.GetQuoteValidity())
	reasons := quoting.Evaluate(quote, snapshot.Policy, capture.AIAssisted)
	return quote, reasons, nil
}

// sendAndRecord sends a message that changes no conversation state and
// records the outbound plus the event binding.
func (p *Processor) sendAndRecord(ctx context.Context, log *logger.Logger, msg *intake.InboundMessage, channel *intake.Channel, conv *conversation.Conversation, text string) error {
	providerID, err := p.sender.SendText(ctx, channel.PhoneNumberID, msg.SenderPhone, text)
	if err != nil {
		log.DispatchError(conv.ID.String(), err)
		return err
	}

	return p.inTx(ctx, func(tx pgx.Tx) error {
		if err := p.ledger.InsertOutbound(ctx, tx, conv.ID, channel.ID, providerID, text); err != nil {
			return err
		}
		return p.ledger.BindConversation(ctx, tx, msg.ID, conv.ID)
	})
}

// holdForApproval parks the quote behind the human gate. The customer gets
// a hold notice, never the quote itself.
func (p *Processor) holdForApproval(ctx context.Context, log *logger.Logger, msg *intake.InboundMessage, channel *intake.Channel, conv *conversation.Conversation, quote *quoting.Quote, reasons []quoting.Reason) error {
	ready, err := conversation.Transition(conv.State, conversation.EventMinimalDataReceived)
	if err != nil {
		return err
	}
	held, err := conversation.Transition(ready, conversation.EventApprovalRequired)
	if err != nil {
		return err
	}

	text := messages.HoldForReview()
	providerID, err := p.sender.SendText(ctx, channel.PhoneNumberID, msg.SenderPhone, text)
	if err != nil {
		log.DispatchError(conv.ID.String(), err)
		return err
	}

	quote.Status = quoting.StatusPendingApproval
	approval := &quoting.Approval{
		ID:      uuid.New(),
		QuoteID: quote.ID,
		Status:  quoting.ApprovalPending,
		Reasons: quoting.ReasonStrings(reasons),
	}

	err = p.inTx(ctx, func(tx pgx.Tx) error {
		if err := p.quotes.InsertQuote(ctx, tx, quote); err != nil {
			return err
		}
		if err := p.quotes.InsertApproval(ctx, tx, approval); err != nil {
			return err
		}
		if err := p.casState(ctx, tx, conv.ID, conv.State, ready, nil); err != nil {
			return err
		}
		if err := p.casState(ctx, tx, conv.ID, ready, held, nil); err != nil {
			return err
		}
		if err := p.ledger.InsertOutbound(ctx, tx, conv.ID, channel.ID, providerID, text); err != nil {
			return err
		}
		return p.ledger.BindConversation(ctx, tx, msg.ID, conv.ID)
	})
	if err != nil {
		return err
	}

	p.publishTransition(ctx, conv.ID, conv.State, ready, conversation.EventMinimalDataReceived)
	p.publishTransition(ctx, conv.ID, ready, held, conversation.EventApprovalRequired)
	p.publish(ctx, events.QuoteCreated{
		BaseEvent:      events.NewBaseEvent(),
		QuoteID:        quote.ID,
		ConversationID: conv.ID,
		Status:         string(quote.Status),
		TotalCents:     quote.TotalCents,
		Reasons:        approval.Reasons,
	})
	return nil
}

// dispatchQuote sends the formatted quote to the customer and commits it as
// dispatched, refreshing the reply window.
func (p *Processor) dispatchQuote(ctx context.Context, log *logger.Logger, msg *intake.InboundMessage, channel *intake.Channel, conv *conversation.Conversation, quote *quoting.Quote, capture *parsing.Capture) error {
	ready, err := conversation.Transition(conv.State, conversation.EventMinimalDataReceived)
	if err != nil {
		return err
	}
	sent, err := conversation.Transition(ready, conversation.EventQuoteAutoOK)
	if err != nil {
		return err
	}

	text := messages.FormatQuote(quote, capture.PaymentMethod, capture.DeliveryDay)
	providerID, err := p.sender.SendText(ctx, channel.PhoneNumberID, msg.SenderPhone, text)
	if err != nil {
		log.DispatchError(conv.ID.String(), err)
		return err
	}

	quote.Status = quoting.StatusDispatched
	window := p.now().Add(p.cfg.GetReplyWindow())

	err = p.inTx(ctx, func(tx pgx.Tx) error {
		if err := p.quotes.InsertQuote(ctx, tx, quote); err != nil {
			return err
		}
		if err := p.casState(ctx, tx, conv.ID, conv.State, ready, nil); err != nil {
			return err
		}
		if err := p.casState(ctx, tx, conv.ID, ready, sent, &window); err != nil {
			return err
		}
		if err := p.ledger.InsertOutbound(ctx, tx, conv.ID, channel.ID, providerID, text); err != nil {
			return err
		}
		return p.ledger.BindConversation(ctx, tx, msg.ID, conv.ID)
	})
	if err != nil {
		return err
	}

	p.publishTransition(ctx, conv.ID, conv.State, ready, conversation.EventMinimalDataReceived)
	p.publishTransition(ctx, conv.ID, ready, sent, conversation.EventQuoteAutoOK)
	p.publish(ctx, events.QuoteCreated{
		BaseEvent:      events.NewBaseEvent(),
		QuoteID:        quote.ID,
		ConversationID: conv.ID,
		Status:         string(quote.Status),
		TotalCents:     quote.TotalCents,
	})
	p.publish(ctx, events.QuoteDispatched{
		BaseEvent:         events.NewBaseEvent(),
		QuoteID:           quote.ID,
		ConversationID:    conv.ID,
		ProviderMessageID: providerID,
	})
	return nil
}

type replyIntent int

const (
	replyOther replyIntent = iota
	replyConfirm
	replyDecline
)

var declineWords = map[string]bool{"não": true, "nao": true, "cancelar": true, "cancela": true}

var confirmWords = map[string]bool{"confirmar": true, "confirmo": true, "sim": true, "ok": true}

// interpretReply classifies a customer answer to a dispatched quote.
// Decline wins over confirm so "sim, quero cancelar" does not close a deal.
func interpretReply(text string) replyIntent {
	lowered := strings.ToLower(text)
	tokens := strings.FieldsFunc(lowered, func(r rune) bool {
		return !(r == 'ã' || r == 'á' || r == 'é' || r == 'í' || r == 'ó' || r == 'ú' || r == 'ç' ||
			(r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	})

	intent := replyOther
	for _, tok := range tokens {
		if declineWords[tok] {
			return replyDecline
		}
		if confirmWords[tok] {
			intent = replyConfirm
		}
	}
	return intent
}

// handleReply interprets a customer answer while a quote is out. Confirm
// closes the conversation as WON, decline as LOST with the quote rejected;
// anything else from QUOTE_SENT marks the customer as engaged.
func (p *Processor) handleReply(ctx context.Context, log *logger.Logger, msg *intake.InboundMessage, channel *intake.Channel, conv *conversation.Conversation) error {
	var (
		event conversation.Event
		text  string
	)
	switch interpretReply(msg.TextContent) {
	case replyConfirm:
		event = conversation.EventScheduleConfirmed
		text = messages.OrderConfirmed()
	case replyDecline:
		event = conversation.EventUserDeclined
		text = messages.OrderDeclined()
	default:
		if conv.State == conversation.StateWaitingReply {
			// Already engaged; just record the event.
			return p.inTx(ctx, func(tx pgx.Tx) error {
				return p.ledger.BindConversation(ctx, tx, msg.ID, conv.ID)
			})
		}
		event = conversation.EventUserReplied
	}

	// A terminal answer straight off QUOTE_SENT still passes through
	// WAITING_REPLY; both steps commit together.
	steps := []conversation.Event{event}
	if conv.State == conversation.StateQuoteSent && event != conversation.EventUserReplied {
		steps = []conversation.Event{conversation.EventUserReplied, event}
	}
	states := []conversation.State{conv.State}
	for _, step := range steps {
		next, err := conversation.Transition(states[len(states)-1], step)
		if err != nil {
			return err
		}
		states = append(states, next)
	}

	var providerID string
	var err error
	if text != "" {
		providerID, err = p.sender.SendText(ctx, channel.PhoneNumberID, msg.SenderPhone, text)
		if err != nil {
			log.DispatchError(conv.ID.String(), err)
			return err
		}
	}

	err = p.inTx(ctx, func(tx pgx.Tx) error {
		for i := range steps {
			if err := p.casState(ctx, tx, conv.ID, states[i], states[i+1], nil); err != nil {
				return err
			}
		}
		if event == conversation.EventUserDeclined {
			quote, err := p.quotes.GetActiveQuoteByConversation(ctx, tx, conv.ID)
			if err != nil {
				return err
			}
			if quote != nil {
				ok, err := p.quotes.UpdateQuoteStatusIfCurrent(ctx, tx, quote.ID, quote.Status, quoting.StatusRejected)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("quote %s changed status concurrently", quote.ID)
				}
			}
		}
		if providerID != "" {
			if err := p.ledger.InsertOutbound(ctx, tx, conv.ID, channel.ID, providerID, text); err != nil {
				return err
			}
		}
		return p.ledger.BindConversation(ctx, tx, msg.ID, conv.ID)
	})
	if err != nil {
		return err
	}

	for i, step := range steps {
		p.publishTransition(ctx, conv.ID, states[i], states[i+1], step)
	}
	return nil
}

// ProcessApprovalDecision applies an operator decision to a held quote.
// Approved quotes are dispatched to the customer; rejected quotes close the
// conversation silently.
func (p *Processor) ProcessApprovalDecision(ctx context.Context, payload ApprovalDecisionPayload) error {
	approvalID, err := uuid.Parse(payload.ApprovalID)
	if err != nil {
		return err
	}
	decidedBy, err := uuid.Parse(payload.DecidedBy)
	if err != nil {
		return err
	}

	decision := quoting.ApprovalStatus(payload.Decision)
	if decision != quoting.ApprovalApproved && decision != quoting.ApprovalRejected {
		return fmt.Errorf("invalid approval decision %q", payload.Decision)
	}

	approval, err := p.quotes.GetApproval(ctx, p.pool, approvalID)
	if errors.Is(err, quoting.ErrApprovalNotFound) {
		p.log.Warn("approval decision references unknown approval, dropping", "approval_id", payload.ApprovalID)
		return nil
	}
	if err != nil {
		return err
	}
	if approval.Status != quoting.ApprovalPending {
		p.log.Info("approval already decided, skipping", "approval_id", approval.ID.String())
		return nil
	}

	quote, err := p.quotes.GetQuote(ctx, p.pool, approval.QuoteID)
	if err != nil {
		return err
	}

	conv, err := p.convs.GetByID(ctx, quote.ConversationID)
	if err != nil {
		return err
	}

	if decision == quoting.ApprovalApproved {
		return p.applyApproved(ctx, approval, quote, conv, decidedBy)
	}
	return p.applyRejected(ctx, approval, quote, conv, decidedBy)
}

func (p *Processor) applyApproved(ctx context.Context, approval *quoting.Approval, quote *quoting.Quote, conv *conversation.Conversation, decidedBy uuid.UUID) error {
	next, err := conversation.Transition(conv.State, conversation.EventAdminApproved)
	if err != nil {
		return err
	}

	phone, err := p.convs.GetContactPhone(ctx, conv.ID)
	if err != nil {
		return err
	}
	channel, err := p.ledger.GetChannel(ctx, conv.ChannelID)
	if err != nil {
		return err
	}

	text := messages.FormatQuote(quote, quote.PaymentMethod, quote.DeliveryDay)
	providerID, err := p.sender.SendText(ctx, channel.PhoneNumberID, phone, text)
	if err != nil {
		p.log.DispatchError(conv.ID.String(), err)
		return err
	}

	window := p.now().Add(p.cfg.GetReplyWindow())
	err = p.inTx(ctx, func(tx pgx.Tx) error {
		ok, err := p.quotes.DecideApprovalIfPending(ctx, tx, approval.ID, quoting.ApprovalApproved, decidedBy, p.now())
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("approval %s decided concurrently", approval.ID)
		}
		ok, err = p.quotes.UpdateQuoteStatusIfCurrent(ctx, tx, quote.ID, quoting.StatusPendingApproval, quoting.StatusDispatched)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("quote %s changed status concurrently", quote.ID)
		}
		if err := p.casState(ctx, tx, conv.ID, conv.State, next, &window); err != nil {
			return err
		}
		return p.ledger.InsertOutbound(ctx, tx, conv.ID, channel.ID, providerID, text)
	})
	if err != nil {
		return err
	}

	p.publishTransition(ctx, conv.ID, conv.State, next, conversation.EventAdminApproved)
	p.publish(ctx, events.ApprovalDecided{
		BaseEvent:  events.NewBaseEvent(),
		ApprovalID: approval.ID,
		QuoteID:    quote.ID,
		Decision:   string(quoting.ApprovalApproved),
		DecidedBy:  decidedBy,
	})
	p.publish(ctx, events.QuoteDispatched{
		BaseEvent:         events.NewBaseEvent(),
		QuoteID:           quote.ID,
		ConversationID:    conv.ID,
		ProviderMessageID: providerID,
	})
	return nil
}

// applyRejected closes the conversation without messaging the customer.
func (p *Processor) applyRejected(ctx context.Context, approval *quoting.Approval, quote *quoting.Quote, conv *conversation.Conversation, decidedBy uuid.UUID) error {
	next, err := conversation.Transition(conv.State, conversation.EventAdminRejected)
	if err != nil {
		return err
	}

	err = p.inTx(ctx, func(tx pgx.Tx) error {
		ok, err := p.quotes.DecideApprovalIfPending(ctx, tx, approval.ID, quoting.ApprovalRejected, decidedBy, p.now())
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("approval %s decided concurrently", approval.ID)
		}
		ok, err = p.quotes.UpdateQuoteStatusIfCurrent(ctx, tx, quote.ID, quoting.StatusPendingApproval, quoting.StatusRejected)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("quote %s changed status concurrently", quote.ID)
		}
		return p.casState(ctx, tx, conv.ID, conv.State, next, nil)
	})
	if err != nil {
		return err
	}

	p.publishTransition(ctx, conv.ID, conv.State, next, conversation.EventAdminRejected)
	p.publish(ctx, events.ApprovalDecided{
		BaseEvent:  events.NewBaseEvent(),
		ApprovalID: approval.ID,
		QuoteID:    quote.ID,
		Decision:   string(quoting.ApprovalRejected),
		DecidedBy:  decidedBy,
	})
	return nil
}

// casState is the optimistic concurrency write. A lost race is an error so
// the task retries against a fresh read.
func (p *Processor) casState(ctx context.Context, q db.Querier, id uuid.UUID, expected, next conversation.State, window *time.Time) error {
	ok, err := p.convs.UpdateStateIfCurrent(ctx, q, id, expected, next, window)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("conversation %s left state %s concurrently", id, expected)
	}
	return nil
}
