package hook

import "context"

type depthKey struct{}

// Suppress marks ctx one pipeline level deeper. Log events emitted under a
// marked context are forwarded without being processed, which stops the
// pipeline's own writes from feeding back into it.
func Suppress(ctx context.Context) context.Context {
	return context.WithValue(ctx, depthKey{}, Depth(ctx)+1)
}

// Depth is the number of pipeline runs ctx is nested in.
func Depth(ctx context.Context) int {
	if ctx == nil {
		return 0
	}
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}

// Suppressed reports whether ctx was marked by Suppress.
func Suppressed(ctx context.Context) bool {
	return Depth(ctx) > 0
}

// detach returns the context the pipeline runs under: marked, and free of
// the emitter's cancellation and deadline. The write carries its own timeout.
func detach(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return Suppress(context.WithoutCancel(ctx))
}
