package vidserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_vidsum/internal/engine"
)

func TestSummarizeTool(t *testing.T) {
	tool := summarizeTool(okSummarizer(t, "dQw4w9WgXcQ"), time.Second)

	_, res, err := tool(context.Background(), nil, engine.SummarizeInput{VideoReference: "dQw4w9WgXcQ"})
	require.NoError(t, err)
	require.Equal(t, "A talk about Go.", res.Summary)

	_, _, err = tool(context.Background(), nil, engine.SummarizeInput{})
	require.EqualError(t, err, "video_reference is required")
}

func TestSummarizeTool_HidesUpstreamErrors(t *testing.T) {
	pe := &engine.Error{Kind: engine.KindAcquisitionExhausted, Message: "Could not get captions or audio.", Err: errors.New("HTTP 403 from googlevideo")}
	_, _, err := summarizeTool(errSummarizer(pe), 0)(context.Background(), nil, engine.SummarizeInput{VideoReference: "x"})
	require.EqualError(t, err, "Could not get captions or audio.")

	_, _, err = summarizeTool(errSummarizer(errors.New("boom")), 0)(context.Background(), nil, engine.SummarizeInput{VideoReference: "x"})
	require.EqualError(t, err, msgInternal)
}

func TestSummarizeTool_Timeout(t *testing.T) {
	slow := summarizerFunc(func(ctx context.Context, _ string) (*engine.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	_, _, err := summarizeTool(slow, 20*time.Millisecond)(context.Background(), nil, engine.SummarizeInput{VideoReference: "x"})
	require.EqualError(t, err, msgTimeout)
}
