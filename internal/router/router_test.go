package router_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/netdout/relay/internal/daemon"
	"github.com/netdout/relay/internal/router"
	"github.com/netdout/relay/internal/settings"
	"github.com/netdout/relay/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// fakeClient implements router.JobClient.
type fakeClient struct {
	submitFunc func(ctx context.Context, req daemon.JobRequest) (json.RawMessage, error)
	statusFunc func(ctx context.Context, handle daemon.JobHandle) (json.RawMessage, error)
}

func (f *fakeClient) Submit(ctx context.Context, req daemon.JobRequest) (json.RawMessage, error) {
	return f.submitFunc(ctx, req)
}

func (f *fakeClient) QueryStatus(ctx context.Context, handle daemon.JobHandle) (json.RawMessage, error) {
	return f.statusFunc(ctx, handle)
}

type unknownIntent struct{ router.StatusIntent }

func (unknownIntent) Type() router.IntentType { return "PAUSE" }

type recordingObserver struct {
	mu      sync.Mutex
	settled []router.Result
}

func (o *recordingObserver) IntentSettled(_ context.Context, _ router.Intent, result router.Result) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.settled = append(o.settled, result)
}

func (o *recordingObserver) results() []router.Result {
	o.mu.Lock()
	defer o.mu.Unlock()

	return append([]router.Result(nil), o.settled...)
}

func await(t *testing.T, reply <-chan router.Result) router.Result {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := router.Await(ctx, reply)
	require.NoError(t, err)

	return result
}

// newMockDaemon serves POST /downloads and GET /downloads/{id} from memory.
func newMockDaemon(t *testing.T) *httptest.Server {
	t.Helper()

	var (
		mu   sync.Mutex
		next int
		jobs = map[string]string{}
	)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /downloads", func(w http.ResponseWriter, r *http.Request) {
		var req daemon.JobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		mu.Lock()
		next++
		id := fmt.Sprintf("job-%d", next)
		jobs[id] = "done"
		mu.Unlock()

		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"id":%q}`, id)
	})
	mux.HandleFunc("GET /downloads/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		mu.Lock()
		state, ok := jobs[id]
		mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		fmt.Fprintf(w, `{"id":%q,"state":%q}`, id, state)
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return ts
}

func newDaemonRouter(ts *httptest.Server, opts ...router.Option) *router.Router {
	endpoints := settings.NewEndpoints(settings.NewMemoryStore(), ts.URL)

	return router.New(daemon.NewInstrumentedClient(daemon.NewClient(endpoints), &telemetry.Telemetry{}), opts...)
}

func TestDispatch_EndToEnd(t *testing.T) {
	r := newDaemonRouter(newMockDaemon(t))
	ctx := context.Background()

	reply, ok := r.Dispatch(ctx, router.QueueIntent{Request: daemon.JobRequest{URL: "https://x.test/a.zip", Output: "./a.zip"}})
	require.True(t, ok)

	queued := await(t, reply)
	require.True(t, queued.OK, queued.Error)
	assert.JSONEq(t, `{"id":"job-1"}`, string(queued.Data))

	handle, ok := daemon.HandleFromPayload(queued.Data)
	require.True(t, ok)

	reply, ok = r.Dispatch(ctx, router.StatusIntent{ID: handle})
	require.True(t, ok)

	status := await(t, reply)
	require.True(t, status.OK, status.Error)
	assert.JSONEq(t, `{"id":"job-1","state":"done"}`, string(status.Data))
}

func TestDispatch_StatusIsIdempotent(t *testing.T) {
	r := newDaemonRouter(newMockDaemon(t))
	ctx := context.Background()

	reply, _ := r.Dispatch(ctx, router.QueueIntent{Request: daemon.JobRequest{URL: "https://x.test/a.zip"}})
	require.True(t, await(t, reply).OK)

	first, _ := r.Dispatch(ctx, router.StatusIntent{ID: "job-1"})
	second, _ := r.Dispatch(ctx, router.StatusIntent{ID: "job-1"})

	a, b := await(t, first), await(t, second)
	require.True(t, a.OK)
	require.True(t, b.OK)
	assert.JSONEq(t, string(a.Data), string(b.Data))
}

func TestDispatch_DaemonFailureBecomesErr(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	reply, ok := newDaemonRouter(ts).Dispatch(context.Background(), router.QueueIntent{Request: daemon.JobRequest{URL: "https://x.test/a.zip"}})
	require.True(t, ok)

	result := await(t, reply)
	assert.False(t, result.OK)
	assert.Equal(t, "daemon error: 500", result.Error)
	assert.Nil(t, result.Data)
}

func TestDispatch_ExactlyOneReplyPerIntent(t *testing.T) {
	r := newDaemonRouter(newMockDaemon(t))

	const n = 50

	var g errgroup.Group

	results := make([]router.Result, n)
	extra := make([]int, n)

	for i := 0; i < n; i++ {
		g.Go(func() error {
			reply, ok := r.Dispatch(context.Background(), router.QueueIntent{
				Request: daemon.JobRequest{URL: fmt.Sprintf("https://x.test/%d.zip", i)},
			})
			if !ok {
				return errors.New("intent not claimed")
			}

			result, err := router.Await(context.Background(), reply)
			if err != nil {
				return err
			}

			results[i] = result

			// The channel must be closed after the single reply.
			for range reply {
				extra[i]++
			}

			return nil
		})
	}

	require.NoError(t, g.Wait())

	ids := map[string]bool{}
	for i, result := range results {
		require.True(t, result.OK, result.Error)
		assert.Zero(t, extra[i])

		handle, ok := daemon.HandleFromPayload(result.Data)
		require.True(t, ok)
		ids[string(handle)] = true
	}

	assert.Len(t, ids, n, "every intent gets its own job")
}

func TestDispatch_ReplyOrderFollowsDaemon(t *testing.T) {
	slowStarted := make(chan struct{})
	releaseSlow := make(chan struct{})

	client := &fakeClient{
		submitFunc: func(ctx context.Context, req daemon.JobRequest) (json.RawMessage, error) {
			if strings.HasSuffix(req.URL, "slow.zip") {
				close(slowStarted)
				<-releaseSlow
			}

			return json.RawMessage(fmt.Sprintf(`{"url":%q}`, req.URL)), nil
		},
	}

	r := router.New(client)
	ctx := context.Background()

	slow, _ := r.Dispatch(ctx, router.QueueIntent{Request: daemon.JobRequest{URL: "https://x.test/slow.zip"}})
	<-slowStarted
	fast, _ := r.Dispatch(ctx, router.QueueIntent{Request: daemon.JobRequest{URL: "https://x.test/fast.zip"}})

	assert.Contains(t, string(await(t, fast).Data), "fast.zip")

	select {
	case <-slow:
		t.Fatal("slow intent settled before its daemon call returned")
	default:
	}

	close(releaseSlow)
	assert.Contains(t, string(await(t, slow).Data), "slow.zip")
}

func TestDispatch_CallerCancellationDoesNotAbortCall(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	var ctxErr atomic.Value

	client := &fakeClient{
		submitFunc: func(ctx context.Context, req daemon.JobRequest) (json.RawMessage, error) {
			close(started)
			<-release
			ctxErr.Store(fmt.Sprint(ctx.Err()))

			return json.RawMessage(`{"id":"late"}`), nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())

	reply, ok := router.New(client).Dispatch(ctx, router.QueueIntent{Request: daemon.JobRequest{URL: "https://x.test/a.zip"}})
	require.True(t, ok)

	<-started
	cancel()

	_, err := router.Await(ctx, reply)
	require.ErrorIs(t, err, router.ErrAbandoned)

	close(release)

	result := await(t, reply)
	assert.True(t, result.OK)
	assert.Equal(t, "<nil>", ctxErr.Load())
}

func TestDispatch_UnknownIntentNotClaimed(t *testing.T) {
	r := router.New(&fakeClient{})

	reply, ok := r.Dispatch(context.Background(), nil)
	assert.False(t, ok)
	assert.Nil(t, reply)

	reply, ok = r.Dispatch(context.Background(), unknownIntent{})
	assert.False(t, ok)
	assert.Nil(t, reply)

	reply, ok = r.DispatchMessage(context.Background(), router.Message{Type: "PAUSE", ID: "job-1"})
	assert.False(t, ok)
	assert.Nil(t, reply)
}

func TestDispatchMessage(t *testing.T) {
	var gotReq daemon.JobRequest

	client := &fakeClient{
		submitFunc: func(ctx context.Context, req daemon.JobRequest) (json.RawMessage, error) {
			gotReq = req
			return json.RawMessage(`{"id":"job-7"}`), nil
		},
		statusFunc: func(ctx context.Context, handle daemon.JobHandle) (json.RawMessage, error) {
			return json.RawMessage(fmt.Sprintf(`{"id":%q}`, handle)), nil
		},
	}
	r := router.New(client)

	reply, ok := r.DispatchMessage(context.Background(), router.Message{Type: "NETDOUT_QUEUE", URL: " https://x.test/a.zip ", Output: "./a.zip"})
	require.True(t, ok)
	require.True(t, await(t, reply).OK)
	assert.Equal(t, daemon.JobRequest{URL: "https://x.test/a.zip", Output: "./a.zip"}, gotReq)

	reply, ok = r.DispatchMessage(context.Background(), router.Message{Type: "STATUS", ID: "job-7"})
	require.True(t, ok)
	assert.JSONEq(t, `{"id":"job-7"}`, string(await(t, reply).Data))
}

func TestDispatch_PanicStillReplies(t *testing.T) {
	client := &fakeClient{
		statusFunc: func(ctx context.Context, handle daemon.JobHandle) (json.RawMessage, error) {
			panic("boom")
		},
	}

	reply, ok := router.New(client).Dispatch(context.Background(), router.StatusIntent{ID: "x"})
	require.True(t, ok)

	result := await(t, reply)
	assert.False(t, result.OK)
	assert.Contains(t, result.Error, "boom")
}

func TestDispatch_ObserverSeesEverySettledIntent(t *testing.T) {
	client := &fakeClient{
		submitFunc: func(ctx context.Context, req daemon.JobRequest) (json.RawMessage, error) {
			return nil, &daemon.DaemonStatusError{Operation: "submit", StatusCode: 503}
		},
		statusFunc: func(ctx context.Context, handle daemon.JobHandle) (json.RawMessage, error) {
			return json.RawMessage(`{}`), nil
		},
	}

	obs := &recordingObserver{}
	r := router.New(client, router.WithObserver(obs), router.WithObserver(nil))

	q, _ := r.Dispatch(context.Background(), router.QueueIntent{Request: daemon.JobRequest{URL: "https://x.test/a.zip"}})
	s, _ := r.Dispatch(context.Background(), router.StatusIntent{ID: "x"})
	await(t, q)
	await(t, s)

	assert.Eventually(t, func() bool { return len(obs.results()) == 2 }, time.Second, 10*time.Millisecond)
}

func TestChain(t *testing.T) {
	statusOnly := dispatcherFunc(func(ctx context.Context, intent router.Intent) (<-chan router.Result, bool) {
		if _, ok := intent.(router.StatusIntent); !ok {
			return nil, false
		}

		reply := make(chan router.Result, 1)
		reply <- router.Ok(json.RawMessage(`{"from":"first"}`))
		close(reply)

		return reply, true
	})

	fallback := router.New(&fakeClient{
		submitFunc: func(ctx context.Context, req daemon.JobRequest) (json.RawMessage, error) {
			return json.RawMessage(`{"from":"router"}`), nil
		},
	})

	chain := router.Chain{statusOnly, fallback}

	reply, ok := chain.Dispatch(context.Background(), router.StatusIntent{ID: "x"})
	require.True(t, ok)
	assert.JSONEq(t, `{"from":"first"}`, string(await(t, reply).Data))

	reply, ok = chain.Dispatch(context.Background(), router.QueueIntent{Request: daemon.JobRequest{URL: "https://x.test/a.zip"}})
	require.True(t, ok)
	assert.JSONEq(t, `{"from":"router"}`, string(await(t, reply).Data))

	_, ok = chain.Dispatch(context.Background(), unknownIntent{})
	assert.False(t, ok)
}

type dispatcherFunc func(ctx context.Context, intent router.Intent) (<-chan router.Result, bool)

func (f dispatcherFunc) Dispatch(ctx context.Context, intent router.Intent) (<-chan router.Result, bool) {
	return f(ctx, intent)
}

func TestAwait_ClosedWithoutResult(t *testing.T) {
	reply := make(chan router.Result)
	close(reply)

	_, err := router.Await(context.Background(), reply)
	assert.Error(t, err)
}
