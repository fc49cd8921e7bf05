// Package vidserver exposes the summarize pipeline as an MCP tool and a REST endpoint.
package vidserver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_vidsum/internal/engine"
)

// Summarizer is the pipeline surface both transports call.
type Summarizer interface {
	Summarize(ctx context.Context, ref string) (*engine.Result, error)
}

// RegisterTools registers video_summarize on the given MCP server.
func RegisterTools(server *mcp.Server, sum Summarizer, timeout time.Duration) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_summarize",
		Description: "Summarize a YouTube video. Accepts a watch, youtu.be, shorts or embed URL, or a bare 11-character video id. Uses captions when available and falls back to the audio track. Returns a short summary, markdown notes and the transcript when one was found.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, mcp.ToolHandlerFor[engine.SummarizeInput, *engine.Result](summarizeTool(sum, timeout)))
}

type toolHandler func(context.Context, *mcp.CallToolRequest, engine.SummarizeInput) (*mcp.CallToolResult, *engine.Result, error)

func summarizeTool(sum Summarizer, timeout time.Duration) toolHandler {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input engine.SummarizeInput) (*mcp.CallToolResult, *engine.Result, error) {
		if input.VideoReference == "" {
			return nil, nil, errors.New("video_reference is required")
		}
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		res, err := sum.Summarize(ctx, input.VideoReference)
		if err != nil {
			slog.Warn("video_summarize failed",
				slog.String("ref", input.VideoReference),
				slog.Any("error", err))
			return nil, nil, publicError(ctx, err)
		}
		return nil, res, nil
	}
}

// publicError hides upstream diagnostics behind the user-facing message.
func publicError(ctx context.Context, err error) error {
	if pe, ok := engine.AsError(err); ok {
		return errors.New(pe.Message)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return errors.New(msgTimeout)
	}
	return errors.New(msgInternal)
}
