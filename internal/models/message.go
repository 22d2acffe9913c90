package models

// EventKind classifies an inbound event.
type EventKind string

const (
	// EventKindText is a free-form text message.
	EventKindText EventKind = "text"
	// EventKindInteractive is a reply to a previously sent button or list prompt.
	EventKindInteractive EventKind = "interactive"
	// EventKindOther is any other message type (media, location, ...). It
	// carries neither text nor an option and is routed like unknown input.
	EventKindOther EventKind = "other"
)

// InboundEvent is one user message extracted from a webhook delivery.
type InboundEvent struct {
	MessageID string    `json:"message_id,omitempty"`
	From      string    `json:"from"`
	Kind      EventKind `json:"kind"`
	Text      string    `json:"text,omitempty"`
	OptionID  string    `json:"option_id,omitempty"` // set for interactive replies
	Time      int64     `json:"time"`
}

// MessageKind defines the shape of an outbound message.
type MessageKind string

const (
	// MessageKindText sends a plain text body.
	MessageKindText MessageKind = "text"
	// MessageKindButtons sends a body with up to three reply buttons.
	MessageKindButtons MessageKind = "buttons"
	// MessageKindList sends a body with a button that opens a sectioned list.
	MessageKindList MessageKind = "list"
)

// Option is one selectable button or list row. ID is the opaque identifier
// returned in the interactive reply; Title is what the user sees.
type Option struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Section groups list rows under a heading.
type Section struct {
	Title string   `json:"title"`
	Rows  []Option `json:"rows"`
}

// OutboundMessage is a structured message to be sent to a single recipient.
type OutboundMessage struct {
	Kind       MessageKind `json:"kind"`
	Body       string      `json:"body"`
	Buttons    []Option    `json:"buttons,omitempty"`     // MessageKindButtons
	ListButton string      `json:"list_button,omitempty"` // MessageKindList
	Sections   []Section   `json:"sections,omitempty"`    // MessageKindList
}

// TextMessage builds a plain text message.
func TextMessage(body string) OutboundMessage {
	return OutboundMessage{Kind: MessageKindText, Body: body}
}

// ButtonMessage builds a reply-button message.
func ButtonMessage(body string, buttons ...Option) OutboundMessage {
	return OutboundMessage{Kind: MessageKindButtons, Body: body, Buttons: buttons}
}

// ListMessage builds a list message.
func ListMessage(body, button string, sections ...Section) OutboundMessage {
	return OutboundMessage{Kind: MessageKindList, Body: body, ListButton: button, Sections: sections}
}

// Options returns every selectable option of the message in display order.
func (m OutboundMessage) Options() []Option {
	switch m.Kind {
	case MessageKindButtons:
		return m.Buttons
	case MessageKindList:
		var opts []Option
		for _, s := range m.Sections {
			opts = append(opts, s.Rows...)
		}
		return opts
	default:
		return nil
	}
}

// Validate checks the message against the platform limits.
func (m OutboundMessage) Validate() error {
	switch m.Kind {
	case MessageKindText:
		return m.validateText()
	case MessageKindButtons:
		return m.validateButtons()
	case MessageKindList:
		return m.validateList()
	default:
		return ErrInvalidMessageKind
	}
}

func (m OutboundMessage) validateText() error {
	if m.Body == "" {
		return ErrEmptyBody
	}
	if len(m.Body) > MaxTextBodyLength {
		return ErrBodyTooLong
	}
	return nil
}

func (m OutboundMessage) validateButtons() error {
	if m.Body == "" {
		return ErrEmptyBody
	}
	if len(m.Body) > MaxInteractiveBodyLength {
		return ErrBodyTooLong
	}
	if len(m.Buttons) == 0 {
		return ErrMissingOptions
	}
	if len(m.Buttons) > MaxButtonCount {
		return ErrTooManyOptions
	}
	return validateOptions(m.Buttons, MaxButtonTitleLength)
}

func (m OutboundMessage) validateList() error {
	if m.Body == "" {
		return ErrEmptyBody
	}
	if len(m.Body) > MaxInteractiveBodyLength {
		return ErrBodyTooLong
	}
	if m.ListButton == "" {
		return ErrMissingListButton
	}
	if len([]rune(m.ListButton)) > MaxListButtonTextLength {
		return ErrListButtonTooLong
	}
	rows := m.Options()
	if len(rows) == 0 {
		return ErrMissingOptions
	}
	if len(rows) > MaxListRowCount {
		return ErrTooManyOptions
	}
	return validateOptions(rows, MaxListRowTitleLength)
}

// validateOptions counts title length in runes since titles carry symbols like ₹.
func validateOptions(opts []Option, maxTitle int) error {
	seen := make(map[string]struct{}, len(opts))
	for _, o := range opts {
		if o.ID == "" {
			return ErrEmptyOptionID
		}
		if _, dup := seen[o.ID]; dup {
			return ErrDuplicateOptionID
		}
		seen[o.ID] = struct{}{}
		if o.Title == "" {
			return ErrEmptyBody
		}
		if len([]rune(o.Title)) > maxTitle {
			return ErrOptionTitleTooLong
		}
	}
	return nil
}
