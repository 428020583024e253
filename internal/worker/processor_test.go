package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"orcazap_backend/internal/catalog"
	"orcazap_backend/internal/conversation"
	"orcazap_backend/internal/intake"
	"orcazap_backend/internal/quoting"
	"orcazap_backend/internal/whatsapp"
	"orcazap_backend/platform/db"
	"orcazap_backend/platform/logger"
)

// fakeTx satisfies pgx.Tx for the few methods the processor touches. Repo
// calls are intercepted by the fakes, so the embedded interface stays nil.
type fakeTx struct {
	pgx.Tx
	committed  *int
	rolledBack *int
}

func (t fakeTx) Commit(ctx context.Context) error {
	*t.committed++
	return nil
}

func (t fakeTx) Rollback(ctx context.Context) error {
	*t.rolledBack++
	return nil
}

type fakeTxBeginner struct {
	begun      int
	committed  int
	rolledBack int
}

func (b *fakeTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	b.begun++
	return fakeTx{committed: &b.committed, rolledBack: &b.rolledBack}, nil
}

type outboundRecord struct {
	conversationID uuid.UUID
	providerID     string
	text           string
}

type fakeLedger struct {
	msgs       map[string]*intake.InboundMessage
	channel    *intake.Channel
	outbound   []outboundRecord
	bound      map[uuid.UUID]uuid.UUID
	unenqueued []intake.InboundMessage
	enqueued   []string
}

func newFakeLedger(channel *intake.Channel) *fakeLedger {
	return &fakeLedger{
		msgs:    make(map[string]*intake.InboundMessage),
		channel: channel,
		bound:   make(map[uuid.UUID]uuid.UUID),
	}
}

func (l *fakeLedger) GetInboundByExternalID(ctx context.Context, externalID string) (*intake.InboundMessage, error) {
	msg, ok := l.msgs[externalID]
	if !ok {
		return nil, intake.ErrMessageNotFound
	}
	copied := *msg
	return &copied, nil
}

func (l *fakeLedger) GetChannel(ctx context.Context, id uuid.UUID) (*intake.Channel, error) {
	return l.channel, nil
}

func (l *fakeLedger) ListUnenqueued(ctx context.Context, olderThan time.Time, limit int) ([]intake.InboundMessage, error) {
	return l.unenqueued, nil
}

func (l *fakeLedger) MarkEnqueued(ctx context.Context, externalID string, at time.Time) error {
	l.enqueued = append(l.enqueued, externalID)
	return nil
}

func (l *fakeLedger) BindConversation(ctx context.Context, q db.Querier, messageID, conversationID uuid.UUID) error {
	l.bound[messageID] = conversationID
	for _, msg := range l.msgs {
		if msg.ID == messageID {
			id := conversationID
			msg.ConversationID = &id
		}
	}
	return nil
}

func (l *fakeLedger) InsertOutbound(ctx context.Context, q db.Querier, conversationID, channelID uuid.UUID, providerMessageID, text string) error {
	l.outbound = append(l.outbound, outboundRecord{conversationID: conversationID, providerID: providerMessageID, text: text})
	return nil
}

type fakeConversations struct {
	conv      *conversation.Conversation
	contactID uuid.UUID
	phone     string
	casCount  int
	expired   []conversation.Conversation
}

func (c *fakeConversations) UpsertContact(ctx context.Context, phone, name string) (uuid.UUID, error) {
	c.phone = phone
	return c.contactID, nil
}

func (c *fakeConversations) GetOrCreate(ctx context.Context, contactID, channelID uuid.UUID) (*conversation.Conversation, error) {
	copied := *c.conv
	return &copied, nil
}

func (c *fakeConversations) GetByID(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error) {
	copied := *c.conv
	return &copied, nil
}

func (c *fakeConversations) GetContactPhone(ctx context.Context, conversationID uuid.UUID) (string, error) {
	return c.phone, nil
}

func (c *fakeConversations) UpdateStateIfCurrent(ctx context.Context, q db.Querier, id uuid.UUID, expected, next conversation.State, windowExpiresAt *time.Time) (bool, error) {
	if c.conv.State != expected {
		return false, nil
	}
	c.conv.State = next
	if windowExpiresAt != nil {
		c.conv.WindowExpiresAt = windowExpiresAt
	}
	c.casCount++
	return true, nil
}

func (c *fakeConversations) TouchLastMessage(ctx context.Context, id uuid.UUID, at time.Time) error {
	return nil
}

func (c *fakeConversations) ListExpired(ctx context.Context, now time.Time, limit int) ([]conversation.Conversation, error) {
	return c.expired, nil
}

type fakeRules struct {
	items    map[string]*catalog.Item
	snapshot *catalog.Snapshot
}

func (r *fakeRules) LookupItemExact(ctx context.Context, token string) (*catalog.Item, error) {
	return r.items[strings.ToLower(token)], nil
}

func (r *fakeRules) LoadSnapshot(ctx context.Context) (*catalog.Snapshot, error) {
	return r.snapshot, nil
}

type fakeQuotes struct {
	quotes    map[uuid.UUID]*quoting.Quote
	approvals map[uuid.UUID]*quoting.Approval
	expiredBy []uuid.UUID
}

func newFakeQuotes() *fakeQuotes {
	return &fakeQuotes{
		quotes:    make(map[uuid.UUID]*quoting.Quote),
		approvals: make(map[uuid.UUID]*quoting.Approval),
	}
}

func (f *fakeQuotes) InsertQuote(ctx context.Context, q db.Querier, quote *quoting.Quote) error {
	copied := *quote
	f.quotes[quote.ID] = &copied
	return nil
}

func (f *fakeQuotes) GetQuote(ctx context.Context, q db.Querier, id uuid.UUID) (*quoting.Quote, error) {
	quote, ok := f.quotes[id]
	if !ok {
		return nil, quoting.ErrQuoteNotFound
	}
	copied := *quote
	return &copied, nil
}

func (f *fakeQuotes) GetActiveQuoteByConversation(ctx context.Context, q db.Querier, conversationID uuid.UUID) (*quoting.Quote, error) {
	for _, quote := range f.quotes {
		if quote.ConversationID == conversationID &&
			(quote.Status == quoting.StatusPendingApproval || quote.Status == quoting.StatusDispatched) {
			copied := *quote
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeQuotes) UpdateQuoteStatusIfCurrent(ctx context.Context, q db.Querier, id uuid.UUID, expected, next quoting.Status) (bool, error) {
	quote, ok := f.quotes[id]
	if !ok || quote.Status != expected {
		return false, nil
	}
	quote.Status = next
	return true, nil
}

func (f *fakeQuotes) ExpireActiveByConversation(ctx context.Context, q db.Querier, conversationID uuid.UUID) error {
	f.expiredBy = append(f.expiredBy, conversationID)
	for _, quote := range f.quotes {
		if quote.ConversationID == conversationID && quote.Status != quoting.StatusRejected {
			quote.Status = quoting.StatusExpired
		}
	}
	return nil
}

func (f *fakeQuotes) InsertApproval(ctx context.Context, q db.Querier, approval *quoting.Approval) error {
	copied := *approval
	f.approvals[approval.ID] = &copied
	return nil
}

func (f *fakeQuotes) GetApproval(ctx context.Context, q db.Querier, id uuid.UUID) (*quoting.Approval, error) {
	approval, ok := f.approvals[id]
	if !ok {
		return nil, quoting.ErrApprovalNotFound
	}
	copied := *approval
	return &copied, nil
}

func (f *fakeQuotes) DecideApprovalIfPending(ctx context.Context, q db.Querier, id uuid.UUID, decision quoting.ApprovalStatus, decidedBy uuid.UUID, at time.Time) (bool, error) {
	approval, ok := f.approvals[id]
	if !ok || approval.Status != quoting.ApprovalPending {
		return false, nil
	}
	approval.Status = decision
	approval.DecidedBy = &decidedBy
	approval.DecidedAt = &at
	return true, nil
}

type sentMessage struct {
	to   string
	text string
}

type fakeSender struct {
	failures int
	sent     []sentMessage
}

func (s *fakeSender) SendText(ctx context.Context, phoneNumberID, toPhone, text string) (string, error) {
	if s.failures > 0 {
		s.failures--
		return "", whatsapp.ErrDispatchUncertain
	}
	s.sent = append(s.sent, sentMessage{to: toPhone, text: text})
	return "wamid.out." + uuid.NewString(), nil
}

type testWorkerConfig struct{}

func (testWorkerConfig) GetQuoteValidity() time.Duration     { return 24 * time.Hour }
func (testWorkerConfig) GetReplyWindow() time.Duration       { return 24 * time.Hour }
func (testWorkerConfig) GetReconcileInterval() time.Duration { return time.Second }
func (testWorkerConfig) GetReconcileGrace() time.Duration    { return time.Minute }
func (testWorkerConfig) GetExpireInterval() time.Duration    { return time.Second }

type fixture struct {
	processor *Processor
	ledger    *fakeLedger
	convs     *fakeConversations
	rules     *fakeRules
	quotes    *fakeQuotes
	sender    *fakeSender
	txer      *fakeTxBeginner
	channel   *intake.Channel
}

func newFixture(state conversation.State) *fixture {
	channel := &intake.Channel{
		ID:            uuid.New(),
		PhoneNumberID: "1029384756",
		DisplayPhone:  "5511999990000",
	}
	ledger := newFakeLedger(channel)

	convs := &fakeConversations{
		contactID: uuid.New(),
		conv: &conversation.Conversation{
			ID:        uuid.New(),
			ChannelID: channel.ID,
			State:     state,
		},
	}

	cement := &catalog.Item{
		ID:             uuid.New(),
		SKU:            "CIM-50",
		Name:           "cimento",
		Unit:           "saco",
		UnitPriceCents: 4500,
	}
	neighborhood := "centro"
	rules := &fakeRules{
		items: map[string]*catalog.Item{"cimento": cement},
		snapshot: &catalog.Snapshot{
			Freight: []catalog.FreightRule{{ID: uuid.New(), Neighborhood: &neighborhood, BaseCents: 2000}},
			Policy:  &catalog.PricingPolicy{ID: uuid.New(), InstantDiscountBps: 300, MarginFloorBps: 2000},
		},
	}

	quotes := newFakeQuotes()
	sender := &fakeSender{}
	txer := &fakeTxBeginner{}

	f := &fixture{
		ledger:  ledger,
		convs:   convs,
		rules:   rules,
		quotes:  quotes,
		sender:  sender,
		txer:    txer,
		channel: channel,
	}
	f.processor = NewProcessor(ledger, convs, rules, quotes, txer, nil, sender, nil, nil,
		testWorkerConfig{}, logger.New("test"))
	return f
}

func (f *fixture) addInbound(externalID, text string) *intake.InboundMessage {
	msg := &intake.InboundMessage{
		ID:                uuid.New(),
		ProviderMessageID: externalID,
		SenderPhone:       "+5511988887777",
		SenderName:        "Maria",
		ChannelID:         f.channel.ID,
		MessageType:       "text",
		TextContent:       text,
		CreatedAt:         time.Now(),
	}
	f.ledger.msgs[externalID] = msg
	return msg
}

const completeCapture = `Bairro: Centro
Pagamento: PIX
Entrega: amanhã
- cimento: 10 sacos`

func TestProcessInboundFirstContact(t *testing.T) {
	f := newFixture(conversation.StateInbound)
	msg := f.addInbound("wamid.first", "Olá, preciso de um orçamento")

	if err := f.processor.ProcessInbound(context.Background(), "wamid.first"); err != nil {
		t.Fatalf("ProcessInbound: %v", err)
	}

	if f.convs.conv.State != conversation.StateCaptureMin {
		t.Errorf("state = %s, want CAPTURE_MIN", f.convs.conv.State)
	}
	if f.convs.conv.WindowExpiresAt == nil {
		t.Error("reply window not set")
	}
	if len(f.sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(f.sender.sent))
	}
	if !strings.Contains(f.sender.sent[0].text, "Maria") {
		t.Errorf("capture prompt should greet the contact by name, got %q", f.sender.sent[0].text)
	}
	if len(f.ledger.outbound) != 1 {
		t.Errorf("outbound records = %d, want 1", len(f.ledger.outbound))
	}
	if _, ok := f.ledger.bound[msg.ID]; !ok {
		t.Error("inbound event not bound to conversation")
	}
	if f.txer.committed != 1 {
		t.Errorf("committed %d transactions, want 1", f.txer.committed)
	}
}

func TestProcessInboundUnknownEventIsDropped(t *testing.T) {
	f := newFixture(conversation.StateInbound)

	if err := f.processor.ProcessInbound(context.Background(), "wamid.ghost"); err != nil {
		t.Fatalf("unknown event should ack, got %v", err)
	}
	if len(f.sender.sent) != 0 {
		t.Error("nothing should be sent for an unknown event")
	}
}

func TestProcessInboundAlreadyBoundIsSkipped(t *testing.T) {
	f := newFixture(conversation.StateCaptureMin)
	msg := f.addInbound("wamid.dup", completeCapture)
	bound := uuid.New()
	msg.ConversationID = &bound

	if err := f.processor.ProcessInbound(context.Background(), "wamid.dup"); err != nil {
		t.Fatalf("bound event should ack, got %v", err)
	}
	if len(f.sender.sent) != 0 {
		t.Error("redelivered event must not send anything")
	}
	if f.txer.begun != 0 {
		t.Errorf("redelivered event began %d transactions, want 0", f.txer.begun)
	}
}

func TestProcessInboundIncompleteCaptureAsksResend(t *testing.T) {
	f := newFixture(conversation.StateCaptureMin)
	f.addInbound("wamid.partial", "quero cimento")

	if err := f.processor.ProcessInbound(context.Background(), "wamid.partial"); err != nil {
		t.Fatalf("ProcessInbound: %v", err)
	}

	if f.convs.conv.State != conversation.StateCaptureMin {
		t.Errorf("state = %s, incomplete capture must not advance", f.convs.conv.State)
	}
	if len(f.sender.sent) != 1 || !strings.Contains(f.sender.sent[0].text, "formato") {
		t.Fatalf("expected resend prompt, got %v", f.sender.sent)
	}
	if len(f.quotes.quotes) != 0 {
		t.Error("no quote should exist for an incomplete capture")
	}
}

func TestProcessInboundAutoOKDispatchesQuote(t *testing.T) {
	f := newFixture(conversation.StateCaptureMin)
	f.addInbound("wamid.full", completeCapture)

	if err := f.processor.ProcessInbound(context.Background(), "wamid.full"); err != nil {
		t.Fatalf("ProcessInbound: %v", err)
	}

	if f.convs.conv.State != conversation.StateQuoteSent {
		t.Fatalf("state = %s, want QUOTE_SENT", f.convs.conv.State)
	}
	if f.convs.conv.WindowExpiresAt == nil {
		t.Error("dispatch must refresh the reply window")
	}
	if len(f.quotes.quotes) != 1 {
		t.Fatalf("quotes = %d, want 1", len(f.quotes.quotes))
	}
	for _, quote := range f.quotes.quotes {
		if quote.Status != quoting.StatusDispatched {
			t.Errorf("quote status = %s, want dispatched", quote.Status)
		}
		// 10 sacos x R$45,00 = R$450,00; PIX 3% off; frete R$20,00.
		if quote.TotalCents != 43650+2000 {
			t.Errorf("total = %d, want 45650", quote.TotalCents)
		}
	}
	if len(f.sender.sent) != 1 || !strings.Contains(f.sender.sent[0].text, "Total") {
		t.Fatalf("expected a formatted quote message, got %v", f.sender.sent)
	}
	if len(f.quotes.approvals) != 0 {
		t.Error("auto-ok quote must not create an approval")
	}
}

func TestProcessInboundUnresolvedItemHoldsForApproval(t *testing.T) {
	f := newFixture(conversation.StateCaptureMin)
	f.addInbound("wamid.odd", `Bairro: Centro
Pagamento: PIX
Entrega: amanhã
- vergalhão 10mm: 5 barras`)

	if err := f.processor.ProcessInbound(context.Background(), "wamid.odd"); err != nil {
		t.Fatalf("ProcessInbound: %v", err)
	}

	if f.convs.conv.State != conversation.StateHumanApproval {
		t.Fatalf("state = %s, want HUMAN_APPROVAL", f.convs.conv.State)
	}
	if len(f.quotes.quotes) != 1 {
		t.Fatalf("quotes = %d, want 1", len(f.quotes.quotes))
	}
	for _, quote := range f.quotes.quotes {
		if quote.Status != quoting.StatusPendingApproval {
			t.Errorf("quote status = %s, want pending_approval", quote.Status)
		}
	}
	if len(f.quotes.approvals) != 1 {
		t.Fatalf("approvals = %d, want 1", len(f.quotes.approvals))
	}
	for _, approval := range f.quotes.approvals {
		found := false
		for _, reason := range approval.Reasons {
			if reason == "unresolved_item" {
				found = true
			}
		}
		if !found {
			t.Errorf("approval reasons = %v, want unresolved_item", approval.Reasons)
		}
	}
	// The customer gets a hold notice, never the priced quote.
	if len(f.sender.sent) != 1 || strings.Contains(f.sender.sent[0].text, "Total") {
		t.Fatalf("expected hold notice without prices, got %v", f.sender.sent)
	}
}

func TestProcessInboundDispatchUncertainLeavesNoTrace(t *testing.T) {
	f := newFixture(conversation.StateCaptureMin)
	f.addInbound("wamid.retry", completeCapture)
	f.sender.failures = 1

	err := f.processor.ProcessInbound(context.Background(), "wamid.retry")
	if !errors.Is(err, whatsapp.ErrDispatchUncertain) {
		t.Fatalf("err = %v, want ErrDispatchUncertain", err)
	}
	if f.txer.begun != 0 {
		t.Errorf("failed dispatch began %d transactions, want 0", f.txer.begun)
	}
	if len(f.quotes.quotes) != 0 {
		t.Error("failed dispatch must not persist a quote")
	}
	if f.convs.conv.State != conversation.StateCaptureMin {
		t.Errorf("state = %s, failed dispatch must not advance", f.convs.conv.State)
	}

	// Redelivery: same event, sender healthy again.
	if err := f.processor.ProcessInbound(context.Background(), "wamid.retry"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(f.quotes.quotes) != 1 {
		t.Errorf("quotes after retry = %d, want 1", len(f.quotes.quotes))
	}
	if len(f.ledger.outbound) != 1 {
		t.Errorf("outbound records after retry = %d, want exactly 1", len(f.ledger.outbound))
	}
}

func TestProcessInboundReplyConfirmWins(t *testing.T) {
	f := newFixture(conversation.StateQuoteSent)
	f.addInbound("wamid.yes", "Confirmar, pode mandar")

	if err := f.processor.ProcessInbound(context.Background(), "wamid.yes"); err != nil {
		t.Fatalf("ProcessInbound: %v", err)
	}
	if f.convs.conv.State != conversation.StateWon {
		t.Errorf("state = %s, want WON", f.convs.conv.State)
	}
	if f.convs.casCount != 2 {
		t.Errorf("state writes = %d, want 2 (user_replied then schedule_confirmed)", f.convs.casCount)
	}
	if len(f.sender.sent) != 1 || !strings.Contains(f.sender.sent[0].text, "confirmado") {
		t.Fatalf("expected confirmation message, got %v", f.sender.sent)
	}
}

func TestProcessInboundReplyDeclineRejectsQuote(t *testing.T) {
	f := newFixture(conversation.StateQuoteSent)
	f.addInbound("wamid.no", "não quero, obrigado")

	quote := &quoting.Quote{ID: uuid.New(), ConversationID: f.convs.conv.ID, Status: quoting.StatusDispatched}
	f.quotes.quotes[quote.ID] = quote

	if err := f.processor.ProcessInbound(context.Background(), "wamid.no"); err != nil {
		t.Fatalf("ProcessInbound: %v", err)
	}
	if f.convs.conv.State != conversation.StateLost {
		t.Errorf("state = %s, want LOST", f.convs.conv.State)
	}
	if f.convs.casCount != 2 {
		t.Errorf("state writes = %d, want 2 (user_replied then user_declined)", f.convs.casCount)
	}
	if f.quotes.quotes[quote.ID].Status != quoting.StatusRejected {
		t.Errorf("quote status = %s, want rejected", f.quotes.quotes[quote.ID].Status)
	}
}

func TestProcessInboundReplyFromWaitingReplyIsSingleStep(t *testing.T) {
	f := newFixture(conversation.StateWaitingReply)
	f.addInbound("wamid.yes2", "sim")

	if err := f.processor.ProcessInbound(context.Background(), "wamid.yes2"); err != nil {
		t.Fatalf("ProcessInbound: %v", err)
	}
	if f.convs.conv.State != conversation.StateWon {
		t.Errorf("state = %s, want WON", f.convs.conv.State)
	}
	if f.convs.casCount != 1 {
		t.Errorf("state writes = %d, want 1", f.convs.casCount)
	}
}

func TestProcessInboundOtherReplyMarksEngaged(t *testing.T) {
	f := newFixture(conversation.StateQuoteSent)
	f.addInbound("wamid.hmm", "vou pensar e te falo")

	if err := f.processor.ProcessInbound(context.Background(), "wamid.hmm"); err != nil {
		t.Fatalf("ProcessInbound: %v", err)
	}
	if f.convs.conv.State != conversation.StateWaitingReply {
		t.Errorf("state = %s, want WAITING_REPLY", f.convs.conv.State)
	}
	if len(f.sender.sent) != 0 {
		t.Error("a non-committal reply gets no automated answer")
	}
}

func TestInterpretReplyDeclineBeatsConfirm(t *testing.T) {
	if got := interpretReply("Sim, quero cancelar"); got != replyDecline {
		t.Errorf("interpretReply = %d, want decline", got)
	}
	if got := interpretReply("simplesmente demais"); got != replyOther {
		t.Errorf("substring must not match a confirm word, got %d", got)
	}
}

func TestProcessApprovalDecisionApproved(t *testing.T) {
	f := newFixture(conversation.StateHumanApproval)
	f.convs.phone = "+5511988887777"

	quote := &quoting.Quote{
		ID:             uuid.New(),
		ConversationID: f.convs.conv.ID,
		Status:         quoting.StatusPendingApproval,
		TotalCents:     45650,
		PaymentMethod:  "PIX",
		DeliveryDay:    "Amanhã",
		ValidUntil:     time.Now().Add(24 * time.Hour),
	}
	f.quotes.quotes[quote.ID] = quote
	approval := &quoting.Approval{ID: uuid.New(), QuoteID: quote.ID, Status: quoting.ApprovalPending}
	f.quotes.approvals[approval.ID] = approval

	payload := ApprovalDecisionPayload{
		ApprovalID: approval.ID.String(),
		Decision:   "approved",
		DecidedBy:  uuid.NewString(),
	}
	if err := f.processor.ProcessApprovalDecision(context.Background(), payload); err != nil {
		t.Fatalf("ProcessApprovalDecision: %v", err)
	}

	if f.convs.conv.State != conversation.StateQuoteSent {
		t.Errorf("state = %s, want QUOTE_SENT", f.convs.conv.State)
	}
	if f.quotes.quotes[quote.ID].Status != quoting.StatusDispatched {
		t.Errorf("quote status = %s, want dispatched", f.quotes.quotes[quote.ID].Status)
	}
	if f.quotes.approvals[approval.ID].Status != quoting.ApprovalApproved {
		t.Errorf("approval status = %s, want approved", f.quotes.approvals[approval.ID].Status)
	}
	if len(f.sender.sent) != 1 || f.sender.sent[0].to != "+5511988887777" {
		t.Fatalf("quote should go to the customer, got %v", f.sender.sent)
	}
}

func TestProcessApprovalDecisionRejectedIsSilent(t *testing.T) {
	f := newFixture(conversation.StateHumanApproval)

	quote := &quoting.Quote{ID: uuid.New(), ConversationID: f.convs.conv.ID, Status: quoting.StatusPendingApproval}
	f.quotes.quotes[quote.ID] = quote
	approval := &quoting.Approval{ID: uuid.New(), QuoteID: quote.ID, Status: quoting.ApprovalPending}
	f.quotes.approvals[approval.ID] = approval

	payload := ApprovalDecisionPayload{
		ApprovalID: approval.ID.String(),
		Decision:   "rejected",
		DecidedBy:  uuid.NewString(),
	}
	if err := f.processor.ProcessApprovalDecision(context.Background(), payload); err != nil {
		t.Fatalf("ProcessApprovalDecision: %v", err)
	}

	if f.convs.conv.State != conversation.StateLost {
		t.Errorf("state = %s, want LOST", f.convs.conv.State)
	}
	if f.quotes.quotes[quote.ID].Status != quoting.StatusRejected {
		t.Errorf("quote status = %s, want rejected", f.quotes.quotes[quote.ID].Status)
	}
	if len(f.sender.sent) != 0 {
		t.Error("a rejected approval must not message the customer")
	}
}

func TestProcessApprovalDecisionAlreadyDecided(t *testing.T) {
	f := newFixture(conversation.StateQuoteSent)

	quote := &quoting.Quote{ID: uuid.New(), ConversationID: f.convs.conv.ID, Status: quoting.StatusDispatched}
	f.quotes.quotes[quote.ID] = quote
	approval := &quoting.Approval{ID: uuid.New(), QuoteID: quote.ID, Status: quoting.ApprovalApproved}
	f.quotes.approvals[approval.ID] = approval

	payload := ApprovalDecisionPayload{
		ApprovalID: approval.ID.String(),
		Decision:   "approved",
		DecidedBy:  uuid.NewString(),
	}
	if err := f.processor.ProcessApprovalDecision(context.Background(), payload); err != nil {
		t.Fatalf("redelivered decision should ack, got %v", err)
	}
	if len(f.sender.sent) != 0 {
		t.Error("redelivered decision must not resend the quote")
	}
}

func TestExpirerSweepClosesOverdueConversations(t *testing.T) {
	f := newFixture(conversation.StateQuoteSent)
	past := time.Now().Add(-time.Hour)
	f.convs.conv.WindowExpiresAt = &past
	f.convs.expired = []conversation.Conversation{*f.convs.conv}

	quote := &quoting.Quote{ID: uuid.New(), ConversationID: f.convs.conv.ID, Status: quoting.StatusDispatched}
	f.quotes.quotes[quote.ID] = quote

	expirer := NewExpirer(f.convs, f.quotes, f.txer, nil, testWorkerConfig{}, logger.New("test"))
	n, err := expirer.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired %d conversations, want 1", n)
	}
	if f.convs.conv.State != conversation.StateLost {
		t.Errorf("state = %s, want LOST", f.convs.conv.State)
	}
	if f.quotes.quotes[quote.ID].Status != quoting.StatusExpired {
		t.Errorf("quote status = %s, want expired", f.quotes.quotes[quote.ID].Status)
	}
}

func TestExpirerSweepSkipsTerminalRace(t *testing.T) {
	f := newFixture(conversation.StateWon)
	f.convs.expired = []conversation.Conversation{*f.convs.conv}

	expirer := NewExpirer(f.convs, f.quotes, f.txer, nil, testWorkerConfig{}, logger.New("test"))
	n, err := expirer.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 0 {
		t.Errorf("expired %d conversations, want 0 for a terminal state", n)
	}
	if f.convs.conv.State != conversation.StateWon {
		t.Errorf("state = %s, terminal conversations must not move", f.convs.conv.State)
	}
}

type fakeEnqueuer struct {
	enqueued []string
	fail     bool
}

func (e *fakeEnqueuer) EnqueueInbound(ctx context.Context, externalID string) error {
	if e.fail {
		return errors.New("redis down")
	}
	e.enqueued = append(e.enqueued, externalID)
	return nil
}

func TestReconcilerSweepRequeuesStrandedEvents(t *testing.T) {
	f := newFixture(conversation.StateInbound)
	f.ledger.unenqueued = []intake.InboundMessage{
		{ID: uuid.New(), ProviderMessageID: "wamid.stranded.1"},
		{ID: uuid.New(), ProviderMessageID: "wamid.stranded.2"},
	}

	queue := &fakeEnqueuer{}
	rec := NewReconciler(f.ledger, queue, testWorkerConfig{}, logger.New("test"))

	n, err := rec.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 2 {
		t.Errorf("requeued %d events, want 2", n)
	}
	if len(queue.enqueued) != 2 || len(f.ledger.enqueued) != 2 {
		t.Errorf("enqueued=%v marked=%v, want both to list 2 events", queue.enqueued, f.ledger.enqueued)
	}
}

func TestReconcilerSweepKeepsEventOnEnqueueFailure(t *testing.T) {
	f := newFixture(conversation.StateInbound)
	f.ledger.unenqueued = []intake.InboundMessage{
		{ID: uuid.New(), ProviderMessageID: "wamid.stranded"},
	}

	queue := &fakeEnqueuer{fail: true}
	rec := NewReconciler(f.ledger, queue, testWorkerConfig{}, logger.New("test"))

	n, err := rec.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 0 {
		t.Errorf("requeued %d events, want 0 when the queue is down", n)
	}
	if len(f.ledger.enqueued) != 0 {
		t.Error("a failed enqueue must not stamp enqueued_at")
	}
}
