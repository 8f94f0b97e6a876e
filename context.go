package authcore

import "context"

type clientIPContextKey struct{}
type deviceContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it
// for per-IP lockout counters and audit events. The httpapi layer sets it
// from the request's remote address on every call.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithDevice attaches a free-form device description (browser UA, app
// build) to ctx. It is recorded on the session at login and surfaced in
// audit events; it is never used for enforcement.
func WithDevice(ctx context.Context, device string) context.Context {
	return context.WithValue(ctx, deviceContextKey{}, device)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func deviceFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	device, _ := ctx.Value(deviceContextKey{}).(string)
	return device
}
