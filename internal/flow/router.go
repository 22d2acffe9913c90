// Package flow implements the property-search conversation: a pure router that
// classifies inbound events against the current conversation state, and a
// Conversation that loads and saves that state around it.
package flow

import (
	"strings"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// Rule names the classification rule that produced a Decision.
type Rule string

const (
	// RuleRestart matches "hi"/"hello" or any event while the step is START.
	RuleRestart Rule = "restart"
	// RuleCallback matches the "callback" text command.
	RuleCallback Rule = "callback"
	// RuleOption matches a known option identifier.
	RuleOption Rule = "option"
	// RuleFallback matches everything else.
	RuleFallback Rule = "fallback"
)

// Text commands recognised before option dispatch.
const (
	CommandHi       = "hi"
	CommandHello    = "hello"
	CommandCallback = "callback"
)

// Decision is the result of routing one inbound event.
type Decision struct {
	State    models.ConversationState
	Messages []models.OutboundMessage
	Rule     Rule
	OptionID string // the dispatched identifier when Rule is RuleOption
	// Completed is set when the event finished the search flow and State holds a full lead.
	Completed bool
}

// optionAction mutates the state for one option identifier and returns the replies.
type optionAction func(c Catalog, s *models.ConversationState) []models.OutboundMessage

// Router maps (state, event) to a Decision. It holds no per-user data and is
// safe for concurrent use.
type Router struct {
	catalog Catalog
	options map[string]optionAction
}

// NewRouter creates a router that renders prompts from catalog.
func NewRouter(catalog Catalog) *Router {
	r := &Router{catalog: catalog, options: make(map[string]optionAction)}
	r.registerOptions()
	return r
}

// Catalog returns the prompt catalog used by the router.
func (r *Router) Catalog() Catalog {
	return r.catalog
}

func (r *Router) registerOptions() {
	r.options[OptionSearch] = func(c Catalog, s *models.ConversationState) []models.OutboundMessage {
		s.Step = models.StepAskConfig
		return []models.OutboundMessage{c.ConfigOptions()}
	}
	// The informational path leaves the step untouched.
	r.options[OptionWhy] = func(c Catalog, s *models.ConversationState) []models.OutboundMessage {
		return []models.OutboundMessage{c.WhyInfo(), c.Menu()}
	}
	r.options[OptionExpert] = func(c Catalog, s *models.ConversationState) []models.OutboundMessage {
		s.Step = models.StepLeadCapture
		return []models.OutboundMessage{c.LeadCapture()}
	}

	for _, id := range []string{OptionConfig1BHK, OptionConfig2BHK, OptionConfig3BHK, OptionConfig4Plus} {
		config := strings.TrimPrefix(id, "CONFIG_")
		r.options[id] = func(c Catalog, s *models.ConversationState) []models.OutboundMessage {
			s.Config = config
			s.Step = models.StepAskBudget
			return []models.OutboundMessage{c.BudgetOptions()}
		}
	}

	for _, id := range []string{OptionBudgetBelow50, OptionBudget50To75, OptionBudget75To1Cr, OptionBudget1CrPlus} {
		budget := strings.ReplaceAll(strings.TrimPrefix(id, "BUDGET_"), "_", " ")
		r.options[id] = func(c Catalog, s *models.ConversationState) []models.OutboundMessage {
			s.Budget = budget
			s.Step = models.StepAskReason
			return []models.OutboundMessage{c.ReasonOptions()}
		}
	}

	reasons := map[string]string{
		OptionReasonSelf:   ReasonSelfUse,
		OptionReasonInvest: ReasonInvestment,
	}
	for id, reason := range reasons {
		reason := reason // per-iteration copy; go directive is 1.21 (pre-1.22 loopvar semantics)
		r.options[id] = func(c Catalog, s *models.ConversationState) []models.OutboundMessage {
			s.Reason = reason
			s.Step = models.StepDone
			return []models.OutboundMessage{c.Summary(*s), c.Menu()}
		}
	}
}

// KnownOption reports whether id is dispatched by the option table.
func (r *Router) KnownOption(id string) bool {
	_, ok := r.options[id]
	return ok
}

// Decide classifies ev against state. Rules are evaluated in order and the
// first match wins:
//
//  1. text "hi"/"hello" (trimmed, case-insensitive) or step START: main menu
//  2. text "callback": lead-capture prompt
//  3. a known option identifier: its table entry
//  4. otherwise: fallback prompt, state unchanged
//
// Rule 1 takes precedence over option dispatch, so even a stale button reply
// from a user whose step is START restarts the flow.
func (r *Router) Decide(state models.ConversationState, ev models.InboundEvent) Decision {
	text := strings.ToLower(strings.TrimSpace(ev.Text))
	next := state

	if text == CommandHi || text == CommandHello || state.Step == models.StepStart {
		next.Step = models.StepMenu
		return Decision{State: next, Messages: []models.OutboundMessage{r.catalog.Menu()}, Rule: RuleRestart}
	}

	if text == CommandCallback {
		next.Step = models.StepLeadCapture
		return Decision{State: next, Messages: []models.OutboundMessage{r.catalog.LeadCapture()}, Rule: RuleCallback}
	}

	if action, ok := r.options[ev.OptionID]; ok && ev.OptionID != "" {
		msgs := action(r.catalog, &next)
		return Decision{
			State:     next,
			Messages:  msgs,
			Rule:      RuleOption,
			OptionID:  ev.OptionID,
			Completed: isReasonOption(ev.OptionID),
		}
	}

	return Decision{State: state, Messages: []models.OutboundMessage{r.catalog.Fallback()}, Rule: RuleFallback}
}

func isReasonOption(id string) bool {
	return id == OptionReasonSelf || id == OptionReasonInvest
}
