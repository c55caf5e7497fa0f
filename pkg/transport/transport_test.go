package transport

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct{}

func (fakeEngine) Scan(context.Context, string) (ScanOutput, error) {
	return ScanOutput{Blocked: false, Score: 0.1}, nil
}

func (fakeEngine) Analyze(context.Context, string) (AnalyzeOutput, error) {
	return AnalyzeOutput{Classification: "benign", Confidence: 0.9}, nil
}

func (fakeEngine) Safe(context.Context, string) (SafeOutput, error) {
	return SafeOutput{Verdict: "allow"}, nil
}

func (fakeEngine) Pii(context.Context, string) (PiiOutput, error) {
	return PiiOutput{RedactedText: "hello"}, nil
}

func (fakeEngine) Learn(context.Context, LearnInput) (LearnOutput, error) {
	return LearnOutput{Accepted: true}, nil
}

func (fakeEngine) Stats(context.Context) (StatsOutput, error) {
	return StatsOutput{PatternCount: 3, BreakerState: "closed", WitnessEntries: 1}, nil
}

func TestNew_BuildsServer(t *testing.T) {
	s := New(fakeEngine{})
	assert.NotNil(t, s.mcp)
	assert.Equal(t, defaultShutdownTimeout, s.shutdownTimeout)
}

func TestNew_WithShutdownTimeout(t *testing.T) {
	s := New(fakeEngine{}, WithShutdownTimeout(2*time.Second))
	assert.Equal(t, 2*time.Second, s.shutdownTimeout)
}

type fakeDispatcher struct{}

func (fakeDispatcher) Dispatch(context.Context, DispatchInput) (DispatchOutput, error) {
	return DispatchOutput{MessageID: "msg-1", ContentHash: "abc"}, nil
}

func TestNew_WithDispatcher_RegistersDispatchTool(t *testing.T) {
	s := New(fakeEngine{}, WithDispatcher(fakeDispatcher{}))
	assert.NotNil(t, s.dispatcher)
}

func TestNew_WithoutDispatcher_OmitsDispatcher(t *testing.T) {
	s := New(fakeEngine{})
	assert.Nil(t, s.dispatcher)
}

func TestServer_StartHTTP_ShutsDownOnContextCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := New(fakeEngine{}, WithShutdownTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.StartHTTP(ctx, ln) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("StartHTTP did not return after context cancellation")
	}
}

func TestDialHTTP_SucceedsAgainstReachableServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := DialHTTP(context.Background(), srv.URL, time.Second)
	assert.NoError(t, err)
}

func TestDialHTTP_TimesOutAgainstUnreachableAddress(t *testing.T) {
	err := DialHTTP(context.Background(), "http://10.255.255.1:81", 50*time.Millisecond)
	assert.Error(t, err)
}
