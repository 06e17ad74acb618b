package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probe(t *testing.T, fn http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	fn(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	return rec
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestHealth_StartsNotReady(t *testing.T) {
	h := New()
	assert.False(t, h.IsReady())

	rec := probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unhealthy")
}

func TestHealth_ReadyAfterGateOpens(t *testing.T) {
	h := New()
	h.SetReady(true)
	assert.True(t, h.IsReady())

	rec := probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealth_FailingReadinessCheck(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New()
	h.SetReady(true)
	h.AddReadinessCheck("database", time.Second, func(context.Context) error {
		return errors.New("connection refused")
	})
	h.Start(ctx, 10*time.Millisecond)
	defer h.Stop()

	waitFor(t, func() bool { return !h.IsReady() })

	rec := probe(t, h.ReadyEndpoint)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "database")
	assert.Contains(t, rec.Body.String(), "connection refused")

	// Liveness is unaffected by readiness failures.
	rec = probe(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth_CheckRecovers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var failing atomic.Bool
	failing.Store(true)

	h := New()
	h.SetReady(true)
	h.AddReadinessCheck("flaky", time.Second, func(context.Context) error {
		if failing.Load() {
			return errors.New("still warming up")
		}
		return nil
	})
	h.Start(ctx, 10*time.Millisecond)
	defer h.Stop()

	waitFor(t, func() bool { return !h.IsReady() })

	failing.Store(false)
	waitFor(t, func() bool { return h.IsReady() })

	rec := probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth_CheckTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New()
	h.SetReady(true)
	h.AddReadinessCheck("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	h.Start(ctx, 10*time.Millisecond)
	defer h.Stop()

	waitFor(t, func() bool { return !h.IsReady() })
}

func TestHealth_SetReadyFalseDrains(t *testing.T) {
	h := New()
	h.SetReady(true)
	require.True(t, h.IsReady())

	h.SetReady(false)
	assert.False(t, h.IsReady())

	rec := probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGoroutineCountCheck(t *testing.T) {
	err := GoroutineCountCheck(1)(context.Background())
	require.Error(t, err)

	err = GoroutineCountCheck(1 << 20)(context.Background())
	require.NoError(t, err)
}
