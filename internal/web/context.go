package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/spendcheck/internal/core"
)

// withRequestMetadata carries the caller's address into core for run logs.
// RemoteAddr has already been resolved by TrustedRealIP.
func withRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.ContextWithClientIP(ctx, r.RemoteAddr)
}
