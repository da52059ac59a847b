package boundary

import (
	"context"
	"sync"

	"github.com/go-playground/validator/v10"

	"evkernel/internal/logging"
)

// HandlerFunc processes one decoded Message of a given type.
type HandlerFunc func(ctx context.Context, msg Message)

// Adapter decodes inbound messages off a Transport and dispatches them by
// Type to a registered HandlerFunc, matching the IPC server's
// register_handler dispatch table.
type Adapter struct {
	transport Transport
	logger    logging.Logger
	validate  *validator.Validate

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// New constructs an Adapter bound to transport.
func New(transport Transport, logger logging.Logger) *Adapter {
	return &Adapter{
		transport: transport,
		logger:    logging.OrNop(logger),
		validate:  validator.New(),
		handlers:  make(map[string]HandlerFunc),
	}
}

// RegisterHandler associates a message type with fn, replacing any prior
// registration for that type.
func (a *Adapter) RegisterHandler(msgType string, fn HandlerFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers[msgType] = fn
}

// Send writes msg to the underlying transport.
func (a *Adapter) Send(ctx context.Context, msg Message) error {
	return a.transport.Send(ctx, msg)
}

// Run blocks, decoding and dispatching messages until ctx is cancelled. A
// broken connection only ends the current session: Receive errors other
// than ctx cancellation are logged and the loop continues, accepting
// whatever connection the transport offers next.
func (a *Adapter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg, err := a.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			a.logger.Warn("boundary: connection error, accepting next connection: %v", err)
			continue
		}

		if err := a.validate.Struct(msg); err != nil {
			a.logger.Warn("rejecting malformed message: %v", err)
			continue
		}

		a.dispatch(ctx, msg)
	}
}

func (a *Adapter) dispatch(ctx context.Context, msg Message) {
	a.mu.RLock()
	fn, ok := a.handlers[msg.Type]
	a.mu.RUnlock()

	if !ok {
		a.logger.Warn("no handler registered for message type '%s'", msg.Type)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("handler for message type '%s' panicked: %v", msg.Type, r)
		}
	}()
	fn(ctx, msg)
}

// Close releases the underlying transport.
func (a *Adapter) Close() error {
	return a.transport.Close()
}
