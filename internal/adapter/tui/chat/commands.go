package chat

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"adjutant/internal/domain"
)

// sendMessageCmd runs the handler in a background goroutine with a
// cancellable context. The reply arrives separately via Channel.Send.
func sendMessageCmd(ctx context.Context, handler domain.MessageHandler, msg domain.InboundMessage, gen uint64) tea.Cmd {
	return func() tea.Msg {
		err := handler(ctx, msg)
		return HandlerDoneMsg{Err: err, Gen: gen}
	}
}
