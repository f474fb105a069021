package runtime

import "context"

// Message is an inbound message delivered by a channel transport.
type Message struct {
	Text string
	// SessionID keys conversation history and the dispatch lane. Messages
	// with the same SessionID are handled one at a time in arrival order.
	SessionID string
	// Channel names the transport, e.g. "cli" or "telegram".
	Channel string
}

// Suggestion is a reply bullet the user can rate later.
type Suggestion struct {
	ID   int64
	Text string
}

// Reply is a coach answer plus the suggestions extracted from it.
type Reply struct {
	Text        string
	Suggestions []Suggestion
}

// ResponseWriter sends handler responses back to the active channel transport.
type ResponseWriter interface {
	WriteMessage(ctx context.Context, text string) error
}

// ReplyWriter is implemented by transports that can attach feedback
// controls to the suggestions in a reply.
type ReplyWriter interface {
	WriteReply(ctx context.Context, reply Reply) error
}

// WriteReply uses w's ReplyWriter when it has one and plain text otherwise.
func WriteReply(ctx context.Context, w ResponseWriter, reply Reply) error {
	if rw, ok := w.(ReplyWriter); ok {
		return rw.WriteReply(ctx, reply)
	}
	return w.WriteMessage(ctx, reply.Text)
}

// Handler processes inbound messages and writes responses.
type Handler interface {
	HandleMessage(ctx context.Context, w ResponseWriter, msg *Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, w ResponseWriter, msg *Message) error

func (f HandlerFunc) HandleMessage(ctx context.Context, w ResponseWriter, msg *Message) error {
	return f(ctx, w, msg)
}

// Listener receives channel input and dispatches it to a Handler.
type Listener interface {
	Listen(ctx context.Context, handler Handler) error
}
