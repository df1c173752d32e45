// ABOUTME: Ambient debug flag that routes a turn to the mock event source
// ABOUTME: Carried on the context so callers deep in a request can opt in

package mock

import "context"

type modeKey struct{}

// WithMockMode marks ctx so turns started with it use the mock source.
func WithMockMode(ctx context.Context) context.Context {
	return context.WithValue(ctx, modeKey{}, true)
}

// Requested reports whether ctx was marked with WithMockMode.
func Requested(ctx context.Context) bool {
	v, _ := ctx.Value(modeKey{}).(bool)
	return v
}
