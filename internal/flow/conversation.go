package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/store"
	"github.com/google/uuid"
)

// Conversation runs the router against stored state: it loads the user's
// state, decides, and saves the result. It never sends anything itself.
type Conversation struct {
	store  store.ConversationStore
	router *Router
	leads  store.LeadRecorder
}

// NewConversation creates a Conversation. leads may be nil.
func NewConversation(st store.ConversationStore, router *Router, leads store.LeadRecorder) *Conversation {
	slog.Debug("Creating Conversation", "leads_enabled", leads != nil)
	return &Conversation{store: st, router: router, leads: leads}
}

// Handle routes one inbound event for its sender and persists the new state.
func (c *Conversation) Handle(ctx context.Context, ev models.InboundEvent) (Decision, error) {
	if ev.From == "" {
		return Decision{}, store.ErrEmptyUserID
	}

	state, err := c.store.GetOrCreate(ctx, ev.From)
	if err != nil {
		slog.Error("Conversation.Handle: failed to load state", "error", err, "from", ev.From)
		return Decision{}, fmt.Errorf("load conversation: %w", err)
	}

	decision := c.router.Decide(state, ev)
	slog.Debug("Conversation.Handle: decided", "from", ev.From, "rule", decision.Rule,
		"option", decision.OptionID, "from_step", state.Step, "to_step", decision.State.Step,
		"messages", len(decision.Messages))

	if decision.State != state {
		if err := c.store.Save(ctx, decision.State); err != nil {
			slog.Error("Conversation.Handle: failed to save state", "error", err, "from", ev.From)
			return Decision{}, fmt.Errorf("save conversation: %w", err)
		}
	}

	if decision.Completed {
		c.recordLead(ctx, decision.State)
	}
	return decision, nil
}

// recordLead stores the completed selections. Failures are logged only; the
// user still receives the summary.
func (c *Conversation) recordLead(ctx context.Context, s models.ConversationState) {
	lead := models.Lead{
		ID:        uuid.NewString(),
		UserID:    s.UserID,
		Config:    s.ConfigOrPlaceholder(),
		Budget:    s.BudgetOrPlaceholder(),
		Reason:    s.ReasonOrPlaceholder(),
		CreatedAt: time.Now().UTC(),
	}
	slog.Info("Conversation: lead completed", "user", lead.UserID, "config", lead.Config, "budget", lead.Budget, "reason", lead.Reason)
	if c.leads == nil {
		return
	}
	if err := c.leads.AddLead(ctx, lead); err != nil {
		slog.Error("Conversation: failed to record lead", "error", err, "user", lead.UserID)
	}
}
