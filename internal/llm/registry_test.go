package llm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/forkchat/internal/llm"
	"github.com/zjrosen/forkchat/internal/llm/mock"
)

func TestNewInvoker_UnknownType(t *testing.T) {
	_, err := llm.NewInvoker(llm.ProviderConfig{ID: "x", Type: "nope"})
	require.ErrorIs(t, err, llm.ErrUnknownProvider)
}

func TestRegisteredProviders_Sorted(t *testing.T) {
	types := llm.RegisteredProviders()
	require.Contains(t, types, llm.ProviderMock)
	for i := 1; i < len(types); i++ {
		require.Less(t, types[i-1], types[i])
	}
}

func TestRouter(t *testing.T) {
	r, err := llm.NewRouterFromConfigs([]llm.ProviderConfig{
		{ID: "b", Type: llm.ProviderMock},
		{ID: "a", Type: llm.ProviderMock},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, r.IDs())

	inv, err := r.Invoker("a")
	require.NoError(t, err)
	require.NotNil(t, inv)

	_, err = r.Invoker("missing")
	require.ErrorIs(t, err, llm.ErrUnknownProvider)

	custom := mock.NewInvoker()
	r.Add("a", custom)
	got, err := r.Invoker("a")
	require.NoError(t, err)
	require.Same(t, custom, got)
}

func TestNewRouterFromConfigs_Error(t *testing.T) {
	_, err := llm.NewRouterFromConfigs([]llm.ProviderConfig{{ID: "bad", Type: "nope"}})
	require.ErrorIs(t, err, llm.ErrUnknownProvider)
	require.Contains(t, err.Error(), "provider bad")
}

func TestEstimateTokens(t *testing.T) {
	n, err := llm.EstimateTokens("hello world")
	require.NoError(t, err)
	require.Positive(t, n)

	zero, err := llm.EstimateTokens("")
	require.NoError(t, err)
	require.Zero(t, zero)

	req := llm.Request{System: "be brief", Messages: []llm.Message{{Role: "user", Content: "hello world"}}}
	require.Greater(t, llm.EstimateRequestTokens(req), n)
}
