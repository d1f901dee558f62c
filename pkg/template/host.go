package template

import "context"

// RenderRequest is the subscription request sent to the host.
type RenderRequest struct {
	// Key is the engine subscription key. Hosts may use it for diagnostics.
	Key string

	// Template is the preprocessed template text.
	Template string

	// Variables is passed to the host as render context.
	Variables map[string]any
}

// Message is one value pushed by the host for a subscription.
type Message struct {
	// Result is the rendered value: a primitive, or a string that may
	// itself contain JSON.
	Result any
}

// Host opens push channels to a template render service.
type Host interface {
	// Open starts a subscription. onMessage is invoked for every pushed
	// value, in emission order, possibly before Open returns. The returned
	// Handle may still be pending confirmation by the host.
	Open(ctx context.Context, req RenderRequest, onMessage func(Message)) (Handle, error)
}

// Handle closes one push channel.
type Handle interface {
	// Close ends the subscription. It waits for a pending handle to resolve,
	// bounded by ctx.
	Close(ctx context.Context) error
}

// StateSource is implemented by hosts that expose their current entity
// state to the preprocessor.
type StateSource interface {
	HostState() map[string]any
}

// Preprocessor rewrites shorthand references in a template before it is
// submitted to the host.
type Preprocessor func(text string, state map[string]any, scope map[string]any) string

// Identity is the default Preprocessor. It returns text unchanged.
func Identity(text string, _ map[string]any, _ map[string]any) string {
	return text
}

// HostFunc adapts a function to the Host interface.
type HostFunc func(ctx context.Context, req RenderRequest, onMessage func(Message)) (Handle, error)

// Open calls f.
func (f HostFunc) Open(ctx context.Context, req RenderRequest, onMessage func(Message)) (Handle, error) {
	return f(ctx, req, onMessage)
}

// HandleFunc adapts a function to the Handle interface.
type HandleFunc func(ctx context.Context) error

// Close calls f.
func (f HandleFunc) Close(ctx context.Context) error {
	return f(ctx)
}
