package flow

import (
	"fmt"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// DefaultSummaryLink is appended to the final summary when no link is configured.
const DefaultSummaryLink = "https://nivaara.in"

// Option identifiers attached to buttons and list rows.
const (
	OptionSearch = "SEARCH"
	OptionWhy    = "WHY"
	OptionExpert = "EXPERT"

	OptionConfig1BHK  = "CONFIG_1BHK"
	OptionConfig2BHK  = "CONFIG_2BHK"
	OptionConfig3BHK  = "CONFIG_3BHK"
	OptionConfig4Plus = "CONFIG_4PLUS"

	OptionBudgetBelow50 = "BUDGET_BELOW_50"
	OptionBudget50To75  = "BUDGET_50_75"
	OptionBudget75To1Cr = "BUDGET_75_1CR"
	OptionBudget1CrPlus = "BUDGET_1CR_PLUS"

	OptionReasonSelf   = "REASON_SELF"
	OptionReasonInvest = "REASON_INVEST"
)

// Reason values stored for the reason options.
const (
	ReasonSelfUse    = "Self Use"
	ReasonInvestment = "Investment"
)

// Catalog holds the fixed copy of every prompt the bot sends.
type Catalog struct {
	SummaryLink string
}

// NewCatalog returns a catalog with link, falling back to DefaultSummaryLink.
func NewCatalog(link string) Catalog {
	if link == "" {
		link = DefaultSummaryLink
	}
	return Catalog{SummaryLink: link}
}

// Menu is the main entry point of the flow.
func (c Catalog) Menu() models.OutboundMessage {
	return models.ButtonMessage(
		"👋 Welcome to Nivaara!\nFind your next home with us. How can we help you today?",
		models.Option{ID: OptionSearch, Title: "Search Property"},
		models.Option{ID: OptionWhy, Title: "Why Nivaara?"},
		models.Option{ID: OptionExpert, Title: "Talk to Expert"},
	)
}

// ConfigOptions asks for the apartment configuration.
func (c Catalog) ConfigOptions() models.OutboundMessage {
	return models.ListMessage(
		"🏠 Which configuration are you looking for?",
		"Select BHK",
		models.Section{
			Title: "Configuration",
			Rows: []models.Option{
				{ID: OptionConfig1BHK, Title: "1 BHK"},
				{ID: OptionConfig2BHK, Title: "2 BHK"},
				{ID: OptionConfig3BHK, Title: "3 BHK"},
				{ID: OptionConfig4Plus, Title: "4+ BHK"},
			},
		},
	)
}

// BudgetOptions asks for the budget tier.
func (c Catalog) BudgetOptions() models.OutboundMessage {
	return models.ListMessage(
		"💰 What is your budget?",
		"Select Budget",
		models.Section{
			Title: "Budget",
			Rows: []models.Option{
				{ID: OptionBudgetBelow50, Title: "Below ₹50L"},
				{ID: OptionBudget50To75, Title: "₹50–75L"},
				{ID: OptionBudget75To1Cr, Title: "₹75L–1Cr"},
				{ID: OptionBudget1CrPlus, Title: "₹1Cr+"},
			},
		},
	)
}

// ReasonOptions asks why the user is buying.
func (c Catalog) ReasonOptions() models.OutboundMessage {
	return models.ButtonMessage(
		"🎯 Are you buying for yourself or as an investment?",
		models.Option{ID: OptionReasonSelf, Title: ReasonSelfUse},
		models.Option{ID: OptionReasonInvest, Title: ReasonInvestment},
	)
}

// WhyInfo explains what Nivaara offers.
func (c Catalog) WhyInfo() models.OutboundMessage {
	return models.TextMessage("✨ Why Nivaara?\n\n" +
		"• Verified, RERA-registered projects\n" +
		"• Transparent pricing with no hidden charges\n" +
		"• Dedicated expert from site visit to possession\n" +
		"• Home loan assistance with leading banks")
}

// LeadCapture tells the user an expert will call back.
func (c Catalog) LeadCapture() models.OutboundMessage {
	return models.TextMessage("📞 Our property expert will call you shortly.\n" +
		"Please share your name and a convenient time to call.")
}

// Fallback re-orients a user whose input was not understood.
func (c Catalog) Fallback() models.OutboundMessage {
	return models.TextMessage("🤔 Sorry, I didn't get that.\nType HI to restart or CALLBACK for a call.")
}

// Summary renders the collected selections. Unset selections render as the placeholder.
func (c Catalog) Summary(s models.ConversationState) models.OutboundMessage {
	return models.TextMessage(fmt.Sprintf(
		"✅ Thank you! Here is your requirement:\n\n"+
			"🏠 Configuration: %s\n"+
			"💰 Budget: %s\n"+
			"🎯 Purpose: %s\n\n"+
			"🔗 Explore matching projects: %s\n\n"+
			"Type CALLBACK to talk to our expert.",
		s.ConfigOrPlaceholder(), s.BudgetOrPlaceholder(), s.ReasonOrPlaceholder(), c.SummaryLink))
}
