package flow

import (
	"strings"
	"testing"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

func newTestRouter() *Router {
	return NewRouter(NewCatalog(""))
}

func textEvent(body string) models.InboundEvent {
	return models.InboundEvent{From: "111", Kind: models.EventKindText, Text: body}
}

func optionEvent(id string) models.InboundEvent {
	return models.InboundEvent{From: "111", Kind: models.EventKindInteractive, OptionID: id}
}

func stateAt(step models.Step) models.ConversationState {
	s := models.NewConversationState("111")
	s.Step = step
	return s
}

func optionIDs(msg models.OutboundMessage) []string {
	var ids []string
	for _, o := range msg.Options() {
		ids = append(ids, o.ID)
	}
	return ids
}

func isMenu(msg models.OutboundMessage) bool {
	ids := optionIDs(msg)
	return msg.Kind == models.MessageKindButtons && len(ids) == 3 &&
		ids[0] == OptionSearch && ids[1] == OptionWhy && ids[2] == OptionExpert
}

func TestDecide_StartAlwaysYieldsMenu(t *testing.T) {
	r := newTestRouter()
	events := []models.InboundEvent{
		textEvent("what is this"),
		textEvent("callback"),
		optionEvent(OptionConfig2BHK),
		optionEvent("NOT_A_THING"),
		{From: "111"},
	}
	for _, ev := range events {
		d := r.Decide(stateAt(models.StepStart), ev)
		if d.Rule != RuleRestart {
			t.Errorf("event %+v: expected restart rule, got %s", ev, d.Rule)
		}
		if len(d.Messages) != 1 || !isMenu(d.Messages[0]) {
			t.Errorf("event %+v: expected single menu message, got %+v", ev, d.Messages)
		}
		if d.State.Step != models.StepMenu {
			t.Errorf("event %+v: expected step MENU, got %s", ev, d.State.Step)
		}
		if d.State.Config != "" {
			t.Errorf("event %+v: START reset must not dispatch options", ev)
		}
	}
}

func TestDecide_GreetingResetsFromAnyStep(t *testing.T) {
	r := newTestRouter()
	greetings := []string{"hi", "HI", "Hello", "  hello  ", "hI\n"}
	steps := []models.Step{models.StepMenu, models.StepAskConfig, models.StepAskBudget, models.StepAskReason, models.StepLeadCapture, models.StepDone}
	for _, g := range greetings {
		for _, step := range steps {
			d := r.Decide(stateAt(step), textEvent(g))
			if d.Rule != RuleRestart || len(d.Messages) != 1 || !isMenu(d.Messages[0]) {
				t.Errorf("greeting %q at %s: expected menu, got rule %s", g, step, d.Rule)
			}
			if d.State.Step != models.StepMenu {
				t.Errorf("greeting %q at %s: expected MENU, got %s", g, step, d.State.Step)
			}
		}
	}
}

func TestDecide_GreetingKeepsSelections(t *testing.T) {
	r := newTestRouter()
	s := stateAt(models.StepDone)
	s.Config, s.Budget, s.Reason = "2BHK", "50 75", ReasonInvestment
	d := r.Decide(s, textEvent("hi"))
	if d.State.Config != "2BHK" || d.State.Budget != "50 75" || d.State.Reason != ReasonInvestment {
		t.Errorf("restart must not clear selections: %+v", d.State)
	}
}

func TestDecide_GreetingBeatsOptionID(t *testing.T) {
	r := newTestRouter()
	ev := models.InboundEvent{From: "111", Text: "hi", OptionID: OptionConfig3BHK}
	d := r.Decide(stateAt(models.StepAskConfig), ev)
	if d.Rule != RuleRestart || d.State.Config != "" {
		t.Errorf("greeting text must take precedence over option dispatch, got %s %+v", d.Rule, d.State)
	}
}

func TestDecide_Callback(t *testing.T) {
	r := newTestRouter()
	for _, body := range []string{"callback", "CALLBACK", " CallBack "} {
		d := r.Decide(stateAt(models.StepAskBudget), textEvent(body))
		if d.Rule != RuleCallback {
			t.Errorf("%q: expected callback rule, got %s", body, d.Rule)
		}
		if d.State.Step != models.StepLeadCapture {
			t.Errorf("%q: expected LEAD_CAPTURE, got %s", body, d.State.Step)
		}
		if len(d.Messages) != 1 || d.Messages[0].Body != r.Catalog().LeadCapture().Body {
			t.Errorf("%q: expected lead-capture prompt", body)
		}
	}
}

func TestDecide_OptionTable(t *testing.T) {
	r := newTestRouter()
	tests := []struct {
		id        string
		wantStep  models.Step
		wantField func(models.ConversationState) string
		wantValue string
		wantMsgs  int
	}{
		{OptionSearch, models.StepAskConfig, nil, "", 1},
		{OptionExpert, models.StepLeadCapture, nil, "", 1},
		{OptionConfig1BHK, models.StepAskBudget, func(s models.ConversationState) string { return s.Config }, "1BHK", 1},
		{OptionConfig2BHK, models.StepAskBudget, func(s models.ConversationState) string { return s.Config }, "2BHK", 1},
		{OptionConfig3BHK, models.StepAskBudget, func(s models.ConversationState) string { return s.Config }, "3BHK", 1},
		{OptionConfig4Plus, models.StepAskBudget, func(s models.ConversationState) string { return s.Config }, "4PLUS", 1},
		{OptionBudgetBelow50, models.StepAskReason, func(s models.ConversationState) string { return s.Budget }, "BELOW 50", 1},
		{OptionBudget50To75, models.StepAskReason, func(s models.ConversationState) string { return s.Budget }, "50 75", 1},
		{OptionBudget75To1Cr, models.StepAskReason, func(s models.ConversationState) string { return s.Budget }, "75 1CR", 1},
		{OptionBudget1CrPlus, models.StepAskReason, func(s models.ConversationState) string { return s.Budget }, "1CR PLUS", 1},
		{OptionReasonSelf, models.StepDone, func(s models.ConversationState) string { return s.Reason }, "Self Use", 2},
		{OptionReasonInvest, models.StepDone, func(s models.ConversationState) string { return s.Reason }, "Investment", 2},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			d := r.Decide(stateAt(models.StepMenu), optionEvent(tt.id))
			if d.Rule != RuleOption || d.OptionID != tt.id {
				t.Fatalf("expected option rule for %s, got %s", tt.id, d.Rule)
			}
			if d.State.Step != tt.wantStep {
				t.Errorf("step = %s, want %s", d.State.Step, tt.wantStep)
			}
			if tt.wantField != nil && tt.wantField(d.State) != tt.wantValue {
				t.Errorf("stored value = %q, want %q", tt.wantField(d.State), tt.wantValue)
			}
			if len(d.Messages) != tt.wantMsgs {
				t.Errorf("messages = %d, want %d", len(d.Messages), tt.wantMsgs)
			}
			for _, m := range d.Messages {
				if err := m.Validate(); err != nil {
					t.Errorf("invalid outbound message: %v", err)
				}
			}
		})
	}
}

func TestDecide_WhyLeavesStepUnchanged(t *testing.T) {
	r := newTestRouter()
	for _, step := range []models.Step{models.StepMenu, models.StepAskBudget, models.StepDone} {
		d := r.Decide(stateAt(step), optionEvent(OptionWhy))
		if d.State.Step != step {
			t.Errorf("WHY at %s changed step to %s", step, d.State.Step)
		}
		if len(d.Messages) != 2 || d.Messages[0].Kind != models.MessageKindText || !isMenu(d.Messages[1]) {
			t.Errorf("WHY should send info then menu, got %+v", d.Messages)
		}
	}
}

func TestDecide_ConfigSelectionIsIdempotent(t *testing.T) {
	r := newTestRouter()
	first := r.Decide(stateAt(models.StepAskConfig), optionEvent(OptionConfig2BHK))
	second := r.Decide(first.State, optionEvent(OptionConfig2BHK))
	if first.State.Config != "2BHK" || second.State.Config != "2BHK" {
		t.Errorf("config not stored idempotently: %q, %q", first.State.Config, second.State.Config)
	}
	if first.State.Step != second.State.Step {
		t.Errorf("steps differ: %s vs %s", first.State.Step, second.State.Step)
	}
	if first.Messages[0].Body != second.Messages[0].Body {
		t.Error("same selection should yield the same next prompt")
	}
	if optionIDs(first.Messages[0])[0] != OptionBudgetBelow50 {
		t.Error("config selection should be followed by the budget list")
	}
}

func TestDecide_UnknownInputFallsBack(t *testing.T) {
	r := newTestRouter()
	s := stateAt(models.StepAskReason)
	s.Config, s.Budget = "3BHK", "75 1CR"
	for _, ev := range []models.InboundEvent{
		optionEvent("CONFIG_5BHK"),
		optionEvent("budget_50_75"),
		textEvent("I want a villa"),
		textEvent("2 BHK"),
		{From: "111"},
	} {
		d := r.Decide(s, ev)
		if d.Rule != RuleFallback {
			t.Errorf("event %+v: expected fallback, got %s", ev, d.Rule)
		}
		if d.State != s {
			t.Errorf("event %+v: fallback must not mutate state", ev)
		}
		if len(d.Messages) != 1 || !strings.Contains(d.Messages[0].Body, "HI") || !strings.Contains(d.Messages[0].Body, "CALLBACK") {
			t.Errorf("event %+v: unexpected fallback message %+v", ev, d.Messages)
		}
	}
}

func TestDecide_SummaryUsesPlaceholders(t *testing.T) {
	r := NewRouter(NewCatalog("https://example.test/projects"))
	s := stateAt(models.StepMenu)
	s.Config = "1BHK"
	d := r.Decide(s, optionEvent(OptionReasonSelf))
	if !d.Completed {
		t.Error("reason selection should complete the flow")
	}
	summary := d.Messages[0].Body
	for _, want := range []string{"1BHK", "Budget: " + models.Placeholder, "Self Use", "https://example.test/projects", "CALLBACK"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
	if !isMenu(d.Messages[1]) {
		t.Error("summary must be followed by the main menu")
	}
}

func TestCatalogMessagesAreValid(t *testing.T) {
	c := NewCatalog("")
	msgs := []models.OutboundMessage{
		c.Menu(), c.ConfigOptions(), c.BudgetOptions(), c.ReasonOptions(),
		c.WhyInfo(), c.LeadCapture(), c.Fallback(), c.Summary(models.ConversationState{}),
	}
	for i, m := range msgs {
		if err := m.Validate(); err != nil {
			t.Errorf("catalog message %d invalid: %v", i, err)
		}
	}
	if c.SummaryLink != DefaultSummaryLink {
		t.Errorf("expected default link, got %q", c.SummaryLink)
	}
}

func TestEveryCatalogOptionIsRouted(t *testing.T) {
	r := newTestRouter()
	c := r.Catalog()
	for _, m := range []models.OutboundMessage{c.Menu(), c.ConfigOptions(), c.BudgetOptions(), c.ReasonOptions()} {
		for _, id := range optionIDs(m) {
			if !r.KnownOption(id) {
				t.Errorf("option %s offered but not routed", id)
			}
		}
	}
}
