// Package mock provides an in-memory llm.Invoker for tests and offline use.
//
// Invoker records every request and lets tests override behavior through
// function fields:
//
//	inv := mock.NewInvoker()
//	inv.StreamFunc = func(ctx context.Context, req llm.Request) (llm.Stream, error) {
//	    return mock.NewStream("Hello", ", world"), nil
//	}
//
// GatedStream hands control of chunk timing to the test, which is how the
// orchestrator tests hold a generation open while they pre-empt or stop it:
//
//	gs := mock.NewGatedStream(ctx)
//	gs.Send("partial")
//	gs.Finish()
//
// # Registration
//
// The mock provider registers itself with the llm package when imported:
//
//	import _ "github.com/zjrosen/forkchat/internal/llm/mock"
//
//	inv, err := llm.NewInvoker(llm.ProviderConfig{ID: "offline", Type: llm.ProviderMock})
//
// Without overrides it echoes the last user message back.
package mock
