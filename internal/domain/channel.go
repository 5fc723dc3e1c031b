package domain

import "context"

// InboundMessage is a message received from a channel (user input).
// Documents carries already-extracted plain text attachments; format
// parsing happens upstream of the engine.
type InboundMessage struct {
	SessionID   string
	Content     string
	ChannelName string

	SenderID   string            `json:"sender_id,omitempty"`
	SenderName string            `json:"sender_name,omitempty"`
	Documents  []SessionDocument `json:"documents,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage is a merged cycle response sent to a channel.
type OutboundMessage struct {
	SessionID string
	Content   string
	IsError   bool
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// MessageHandler is a callback the channel invokes when it receives input.
type MessageHandler func(ctx context.Context, msg InboundMessage) error

// Channel is the interface for user-facing I/O adapters.
type Channel interface {
	Start(ctx context.Context, handler MessageHandler) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg OutboundMessage) error
	Name() string
}
