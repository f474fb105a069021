package coach

import (
	"context"
	"errors"

	"github.com/compas-coach/compas/internal/runtime"
)

const emptyMessageReply = "Tell me what's on your mind and I'll help you find one small next step."

// HandleMessage lets a Service sit behind a runtime.Dispatcher. The reply
// goes out with its suggestions so transports that support it can attach
// feedback buttons.
func (s *Service) HandleMessage(ctx context.Context, w runtime.ResponseWriter, msg *runtime.Message) error {
	if msg == nil {
		return errors.New("message is required")
	}
	result, err := s.HandleChatTurn(ctx, msg.SessionID, msg.Text)
	if errors.Is(err, ErrEmptyInput) {
		return w.WriteMessage(ctx, emptyMessageReply)
	}
	if err != nil {
		return err
	}

	reply := runtime.Reply{Text: result.Reply}
	for _, suggestion := range result.Suggestions {
		reply.Suggestions = append(reply.Suggestions, runtime.Suggestion{ID: suggestion.ID, Text: suggestion.Text})
	}
	return runtime.WriteReply(ctx, w, reply)
}
