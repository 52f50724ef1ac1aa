package transport

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/require"
)

// syncScheduler runs Schedule's callback synchronously and records it,
// standing in for an executor's loop goroutine without needing one.
type syncScheduler struct {
	mu    sync.Mutex
	calls int
}

func (s *syncScheduler) Schedule(_ time.Duration, fn func()) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	fn()
}

func TestSubmitRunsRequestAndDeliversResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	pool, err := New(2, nil)
	require.NoError(t, err)
	t.Cleanup(pool.Release)

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	sched := &syncScheduler{}
	done := make(chan struct{})
	var gotStatus int
	var gotErr error
	err = pool.Submit(sched, req, func(resp *http.Response, err error) {
		gotErr = err
		if resp != nil {
			gotStatus = resp.StatusCode
			resp.Body.Close()
		}
		close(done)
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("onDone never fired")
	}

	require.NoError(t, gotErr)
	require.Equal(t, http.StatusTeapot, gotStatus)
	require.Equal(t, 1, sched.calls, "onDone must be scheduled back onto the caller's executor, not called inline")
}

func TestSubmitDeliversTransportErrorsThroughOnDone(t *testing.T) {
	pool, err := New(2, nil)
	require.NoError(t, err)
	t.Cleanup(pool.Release)

	req, err := http.NewRequest(http.MethodGet, "http://127.0.0.1:0/unreachable", nil)
	require.NoError(t, err)

	sched := &syncScheduler{}
	done := make(chan struct{})
	var gotErr error
	err = pool.Submit(sched, req, func(resp *http.Response, err error) {
		gotErr = err
		close(done)
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("onDone never fired")
	}
	require.Error(t, gotErr)
}

func TestNewWithNilClientGetsADefaultTimeout(t *testing.T) {
	pool, err := New(1, nil)
	require.NoError(t, err)
	t.Cleanup(pool.Release)
	require.Equal(t, 30*time.Second, pool.client.Timeout)
}

func TestNewWithSuppliedClientKeepsIt(t *testing.T) {
	client := &http.Client{Timeout: 5 * time.Second}
	pool, err := New(1, client)
	require.NoError(t, err)
	t.Cleanup(pool.Release)
	require.Same(t, client, pool.client)
}

func TestSubmitOnSaturatedPoolFailsFastRatherThanBlocking(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pool, err := New(1, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		close(release)
		pool.Release()
	})

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	sched := &syncScheduler{}
	require.NoError(t, pool.Submit(sched, req, func(*http.Response, error) {}))
	require.Eventually(t, func() bool { return pool.Running() == 1 }, time.Second, time.Millisecond)

	// The single worker is busy waiting on release; a second Submit must
	// return immediately with an overload error, not block this goroutine.
	submitDone := make(chan error, 1)
	go func() { submitDone <- pool.Submit(sched, req, func(*http.Response, error) {}) }()

	select {
	case err := <-submitDone:
		require.ErrorIs(t, err, ants.ErrPoolOverload)
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on a saturated pool instead of failing fast")
	}
}

func TestRunningTracksInFlightRequests(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pool, err := New(4, nil)
	require.NoError(t, err)
	t.Cleanup(pool.Release)

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	sched := &syncScheduler{}
	done := make(chan struct{})
	require.NoError(t, pool.Submit(sched, req, func(*http.Response, error) { close(done) }))

	require.Eventually(t, func() bool { return pool.Running() == 1 }, time.Second, time.Millisecond)

	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("onDone never fired")
	}
	require.Eventually(t, func() bool { return pool.Running() == 0 }, time.Second, time.Millisecond)
}
