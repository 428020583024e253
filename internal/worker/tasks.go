package worker

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskConversationInbound = "conversation:inbound"

const TaskApprovalDecision = "approval:decision"

// ConversationInboundPayload references a ledger row by its provider id so
// the task stays valid across redeliveries even if local ids were never
// assigned.
type ConversationInboundPayload struct {
	ExternalID string `json:"externalId"`
}

// ApprovalDecisionPayload carries an operator decision into the worker.
type ApprovalDecisionPayload struct {
	ApprovalID string `json:"approvalId"`
	Decision   string `json:"decision"`
	DecidedBy  string `json:"decidedBy"`
}

func NewConversationInboundTask(payload ConversationInboundPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskConversationInbound, data), nil
}

func ParseConversationInboundPayload(task *asynq.Task) (ConversationInboundPayload, error) {
	var payload ConversationInboundPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ConversationInboundPayload{}, err
	}
	return payload, nil
}

func NewApprovalDecisionTask(payload ApprovalDecisionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskApprovalDecision, data), nil
}

func ParseApprovalDecisionPayload(task *asynq.Task) (ApprovalDecisionPayload, error) {
	var payload ApprovalDecisionPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ApprovalDecisionPayload{}, err
	}
	return payload, nil
}
