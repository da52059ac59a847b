package inference

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"evkernel/internal/llmruntime"
	"evkernel/internal/llmruntime/simrt"
	"evkernel/internal/observability"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(simrt.New(), nil, observability.NopTracer())
	err := e.Initialize(context.Background(), ManagerConfig{
		ModelBasePath: "",
		FastModelFile: "fast.gguf",
		DeepModelFile: "deep.gguf",
		InitialMode:   ModeFast,
		LoadOptions:   llmruntime.LoadOptions{ContextLength: 2048},
	})
	require.NoError(t, err)
	t.Cleanup(e.Shutdown)
	return e
}

func TestGenerateSyncEchoesPrompt(t *testing.T) {
	e := testEngine(t)

	result, err := e.GenerateSync(context.Background(), Request{Prompt: "hello world", MaxTokens: 10})
	require.NoError(t, err)
	require.Contains(t, result.Text, "hello")
}

func TestGenerateSyncRespectsMaxTokens(t *testing.T) {
	e := testEngine(t)

	result, err := e.GenerateSync(context.Background(), Request{Prompt: "one two three four five", MaxTokens: 2})
	require.NoError(t, err)
	require.LessOrEqual(t, result.TokensGenerated, 2)
}

func TestGenerateSyncStreamsViaOnToken(t *testing.T) {
	e := testEngine(t)

	var pieces []string
	_, err := e.GenerateSync(context.Background(), Request{
		Prompt:    "alpha beta gamma",
		MaxTokens: 10,
		OnToken: func(_ context.Context, piece string) bool {
			pieces = append(pieces, piece)
			return true
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, pieces, "expected at least one streamed piece")
}

func TestGenerateSyncStreamingEarlyStop(t *testing.T) {
	e := testEngine(t)

	count := 0
	result, err := e.GenerateSync(context.Background(), Request{
		Prompt:    "alpha beta gamma delta",
		MaxTokens: 10,
		OnToken: func(_ context.Context, piece string) bool {
			count++
			return count < 2
		},
	})
	require.NoError(t, err)
	require.Equal(t, 2, result.TokensGenerated)
}

func TestGenerateSyncCancellation(t *testing.T) {
	e := testEngine(t)

	var cancel atomic.Bool
	count := 0
	result, err := e.GenerateSync(context.Background(), Request{
		Prompt:    "alpha beta gamma delta epsilon",
		MaxTokens: 100,
		Cancel:    &cancel,
		OnToken: func(_ context.Context, piece string) bool {
			count++
			if count == 2 {
				cancel.Store(true)
			}
			return true
		},
	})
	require.NoError(t, err)
	require.LessOrEqual(t, result.TokensGenerated, 3, "expected cancellation to stop generation promptly")
}

func TestSubmitDeliversResultAsynchronously(t *testing.T) {
	e := testEngine(t)

	done := make(chan Result, 1)
	_, err := e.Submit(context.Background(), Request{Prompt: "async hello", MaxTokens: 5}, func(r Result, err error) {
		if err != nil {
			t.Errorf("unexpected error in callback: %v", err)
		}
		done <- r
	})
	require.NoError(t, err)

	select {
	case r := <-done:
		require.Greater(t, r.TokensGenerated, 0, "expected some tokens generated")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for async completion")
	}
}

func TestGenerateSyncRejectsReentrantCall(t *testing.T) {
	e := testEngine(t)

	var innerErr error
	_, err := e.GenerateSync(context.Background(), Request{
		Prompt:    "a b",
		MaxTokens: 5,
		OnToken: func(ctx context.Context, piece string) bool {
			_, innerErr = e.GenerateSync(ctx, Request{Prompt: "nested", MaxTokens: 1})
			return true
		},
	})
	require.NoError(t, err, "unexpected outer error")
	require.Error(t, innerErr, "expected re-entrant GenerateSync call to be refused")
}

func TestConcurrentGenerateSyncCallersDoNotFalselyCollide(t *testing.T) {
	e := testEngine(t)

	const callers = 8
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.GenerateSync(context.Background(), Request{Prompt: "independent caller", MaxTokens: 3})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err, "independent concurrent callers must not be refused as re-entrant")
	}
}

func TestSwitchModeLoadsDeepWithoutUnloadingFast(t *testing.T) {
	e := testEngine(t)

	_, err := e.GenerateSync(context.Background(), Request{Prompt: "warm up fast", MaxTokens: 3})
	require.NoError(t, err)

	require.NoError(t, e.SwitchMode(context.Background(), ModeDeep))
	require.Equal(t, ModeDeep, e.CurrentMode())

	fastModel := e.manager.models[ModeFast]
	require.True(t, fastModel.IsLoaded(), "expected fast model to remain loaded after switching to deep")
}
