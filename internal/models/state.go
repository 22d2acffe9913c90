// Package models defines conversation state structures for LeadPipe flows.
package models

import "time"

// Step is the descriptive position of a user in the search flow. Only StepStart
// is consulted for routing; every other value is informational.
type Step string

const (
	StepStart       Step = "START"
	StepMenu        Step = "MENU"
	StepAskConfig   Step = "ASK_CONFIG"
	StepAskBudget   Step = "ASK_BUDGET"
	StepAskReason   Step = "ASK_REASON"
	StepLeadCapture Step = "LEAD_CAPTURE"
	StepDone        Step = "DONE"
)

// IsValidStep checks if the given step is one of the known flow steps.
func IsValidStep(s Step) bool {
	switch s {
	case StepStart, StepMenu, StepAskConfig, StepAskBudget, StepAskReason, StepLeadCapture, StepDone:
		return true
	default:
		return false
	}
}

// Placeholder is rendered in place of a selection the user has not made yet.
const Placeholder = "-"

// ConversationState is the per-user position in the flow plus the selections
// collected so far. Selections are filled monotonically.
type ConversationState struct {
	UserID    string    `json:"user_id"`
	Step      Step      `json:"step"`
	Config    string    `json:"config,omitempty"` // 1BHK, 2BHK, 3BHK, 4PLUS
	Budget    string    `json:"budget,omitempty"` // BELOW 50, 50 75, 75 1CR, 1CR PLUS
	Reason    string    `json:"reason,omitempty"` // Self Use, Investment
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversationState returns the initial state for a user seen for the first time.
func NewConversationState(userID string) ConversationState {
	now := time.Now()
	return ConversationState{
		UserID:    userID,
		Step:      StepStart,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ConfigOrPlaceholder returns the configuration or the placeholder when unset.
func (s ConversationState) ConfigOrPlaceholder() string {
	return orPlaceholder(s.Config)
}

// BudgetOrPlaceholder returns the budget or the placeholder when unset.
func (s ConversationState) BudgetOrPlaceholder() string {
	return orPlaceholder(s.Budget)
}

// ReasonOrPlaceholder returns the reason or the placeholder when unset.
func (s ConversationState) ReasonOrPlaceholder() string {
	return orPlaceholder(s.Reason)
}

func orPlaceholder(v string) string {
	if v == "" {
		return Placeholder
	}
	return v
}
