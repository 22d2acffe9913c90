// Package models defines the core data structures for LeadPipe.
//
// It includes conversation state, inbound events, outbound messages and the
// receipts and leads that are shared across modules.
package models

import (
	"errors"
	"time"
)

// Validation constants for outbound interactive messages. These mirror the
// limits enforced by the WhatsApp Cloud API.
const (
	// MaxTextBodyLength defines the maximum allowed length of a text message body
	MaxTextBodyLength = 4096
	// MaxInteractiveBodyLength defines the maximum body length of an interactive message
	MaxInteractiveBodyLength = 1024
	// MaxButtonCount defines the maximum number of reply buttons in a button message
	MaxButtonCount = 3
	// MaxButtonTitleLength defines the maximum length of a reply button title
	MaxButtonTitleLength = 20
	// MaxListRowCount defines the maximum number of rows across all sections of a list
	MaxListRowCount = 10
	// MaxListRowTitleLength defines the maximum length of a list row title
	MaxListRowTitleLength = 24
	// MaxListButtonTextLength defines the maximum length of the list opener button
	MaxListButtonTextLength = 20
)

// Error variables for better error handling and testability
var (
	ErrEmptyRecipient     = errors.New("recipient cannot be empty")
	ErrInvalidMessageKind = errors.New("invalid message kind")
	ErrEmptyBody          = errors.New("message body cannot be empty")
	ErrBodyTooLong        = errors.New("message body exceeds maximum length")
	ErrMissingOptions     = errors.New("interactive message requires at least one option")
	ErrTooManyOptions     = errors.New("too many options for interactive message")
	ErrEmptyOptionID      = errors.New("option identifier cannot be empty")
	ErrOptionTitleTooLong = errors.New("option title exceeds maximum length")
	ErrMissingListButton  = errors.New("list message requires button text")
	ErrListButtonTooLong  = errors.New("list button text exceeds maximum length")
	ErrDuplicateOptionID  = errors.New("duplicate option identifier")
)

// MessageStatus represents the delivery status of a message.
type MessageStatus string

const (
	// MessageStatusSent indicates the message was accepted by the platform.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusFailed indicates the message failed to send.
	MessageStatusFailed MessageStatus = "failed"
)

// Receipt records the outcome of one outbound send.
type Receipt struct {
	ID     string        `json:"id"`
	To     string        `json:"to"`
	Kind   MessageKind   `json:"kind"`
	Status MessageStatus `json:"status"`
	Error  string        `json:"error,omitempty"`
	Time   int64         `json:"time"`
}

// Lead is the outcome of a completed search flow: the selections a user made
// before receiving the summary.
type Lead struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Config    string    `json:"config"`
	Budget    string    `json:"budget"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
