package mcpservice

import (
	"context"
	"encoding/json"

	"github.com/ggoodman/sessionmcp-go/jsonrpc"
	"github.com/ggoodman/sessionmcp-go/mcp"
	"github.com/ggoodman/sessionmcp-go/sessions"
)

// ProgressReporter reports progress of the request being handled. The
// Server installs one in the handler context when the request carries a
// _meta.progressToken; each Report becomes a notifications/progress event
// on the caller's stream.
type ProgressReporter interface {
	// Report emits a progress update. total may be zero when unknown.
	Report(ctx context.Context, progress, total float64) error
}

type progressKey struct{}

// WithProgressReporter returns a new context carrying the provided reporter.
func WithProgressReporter(ctx context.Context, pr ProgressReporter) context.Context {
	if pr == nil {
		return ctx
	}
	return context.WithValue(ctx, progressKey{}, pr)
}

// ProgressFrom retrieves a ProgressReporter from the context if present.
func ProgressFrom(ctx context.Context) (ProgressReporter, bool) {
	if v := ctx.Value(progressKey{}); v != nil {
		if pr, ok := v.(ProgressReporter); ok && pr != nil {
			return pr, true
		}
	}
	return nil, false
}

type sessionProgress struct {
	sess  *sessions.Session
	token mcp.ProgressToken
}

func (p *sessionProgress) Report(ctx context.Context, progress, total float64) error {
	return Notify(ctx, p.sess, mcp.ProgressNotificationMethod, mcp.ProgressNotificationParams{
		ProgressToken: p.token,
		Progress:      progress,
		Total:         total,
	})
}

// withRequestProgress installs a reporter when req asks for progress.
func withRequestProgress(ctx context.Context, sess *sessions.Session, req *jsonrpc.Request) context.Context {
	if len(req.Params) == 0 {
		return ctx
	}
	var p struct {
		Meta struct {
			ProgressToken mcp.ProgressToken `json:"progressToken"`
		} `json:"_meta"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil || p.Meta.ProgressToken == nil {
		return ctx
	}
	return WithProgressReporter(ctx, &sessionProgress{sess: sess, token: p.Meta.ProgressToken})
}
