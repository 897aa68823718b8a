package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthiasrib29/StoFlow-sub015/internal/common"
	"github.com/matthiasrib29/StoFlow-sub015/internal/models"
)

func newTestBridge(queueCap int) *Bridge {
	return NewBridge(common.GetLogger(), queueCap, 2*time.Second)
}

func TestDoReportRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := newTestBridge(10)

	req := models.NewPluginRequest("tenant_a", "POST", "/api/items", "publish item", json.RawMessage(`{"title":"jacket"}`))

	var wg sync.WaitGroup
	wg.Add(1)
	var resp *models.PluginResponse
	var doErr error
	go func() {
		defer wg.Done()
		resp, doErr = b.Do(ctx, req)
	}()

	// The extension polls, executes and reports back
	reqs, hasPending, err := b.Poll(ctx, "tenant_a", 5)
	require.NoError(t, err)
	assert.True(t, hasPending)
	require.Len(t, reqs, 1)
	assert.Equal(t, req.RequestID, reqs[0].RequestID)

	require.NoError(t, b.Report(ctx, "tenant_a", &models.PluginResponse{
		RequestID: req.RequestID,
		Success:   true,
		Status:    200,
		Data:      json.RawMessage(`{"id":123}`),
	}))

	wg.Wait()
	require.NoError(t, doErr)
	assert.True(t, resp.Success)
	assert.Equal(t, 200, resp.Status)
}

func TestDoTimeout(t *testing.T) {
	ctx := context.Background()
	b := newTestBridge(10)

	req := models.NewPluginRequest("tenant_a", "GET", "/api/items", "list items", nil)
	req.TimeoutSecs = 1

	start := time.Now()
	_, err := b.Do(ctx, req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrTimeout))
	assert.Less(t, time.Since(start), 3*time.Second)

	// A late report for the abandoned request is a no-op
	assert.NoError(t, b.Report(ctx, "tenant_a", &models.PluginResponse{RequestID: req.RequestID, Success: true}))
}

func TestDoQueueSaturation(t *testing.T) {
	ctx := context.Background()
	b := newTestBridge(2)

	launch := func() chan error {
		errCh := make(chan error, 1)
		req := models.NewPluginRequest("tenant_a", "GET", "/api/items", "list items", nil)
		go func() {
			_, err := b.Do(ctx, req)
			errCh <- err
		}()
		return errCh
	}

	first := launch()
	second := launch()

	// Wait for both requests to be queued
	require.Eventually(t, func() bool {
		s := b.session("tenant_a")
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.pending) == 2
	}, time.Second, 10*time.Millisecond)

	req := models.NewPluginRequest("tenant_a", "GET", "/api/items", "list items", nil)
	_, err := b.Do(ctx, req)
	assert.True(t, errors.Is(err, models.ErrChannelSaturated))

	// Other tenants are unaffected by a saturated neighbor
	other := models.NewPluginRequest("tenant_b", "GET", "/api/items", "list items", nil)
	other.TimeoutSecs = 1
	_, err = b.Do(ctx, other)
	assert.True(t, errors.Is(err, models.ErrTimeout))

	b.NotifyDisconnect(ctx, "tenant_a")
	assert.True(t, errors.Is(<-first, models.ErrSessionLost))
	assert.True(t, errors.Is(<-second, models.ErrSessionLost))
}

func TestDisconnectFailsInFlight(t *testing.T) {
	ctx := context.Background()
	b := newTestBridge(10)

	req := models.NewPluginRequest("tenant_a", "PUT", "/api/items/1", "update item", nil)
	errCh := make(chan error, 1)
	go func() {
		_, err := b.Do(ctx, req)
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		s := b.session("tenant_a")
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.pending) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, b.NotifyDisconnect(ctx, "tenant_a"))
	require.NoError(t, b.NotifyDisconnect(ctx, "tenant_a")) // idempotent

	err := <-errCh
	assert.True(t, errors.Is(err, models.ErrSessionLost))

	// New submissions are refused until the session is restored
	_, err = b.Do(ctx, models.NewPluginRequest("tenant_a", "GET", "/api/items", "list", nil))
	assert.True(t, errors.Is(err, models.ErrSessionLost))

	require.NoError(t, b.NotifyReconnect(ctx, "tenant_a"))
	assert.True(t, b.Connected("tenant_a"))
}

func TestPollRestoresSession(t *testing.T) {
	ctx := context.Background()
	b := newTestBridge(10)

	require.NoError(t, b.NotifyDisconnect(ctx, "tenant_a"))
	assert.False(t, b.Connected("tenant_a"))

	_, hasPending, err := b.Poll(ctx, "tenant_a", 1)
	require.NoError(t, err)
	assert.False(t, hasPending)
	assert.True(t, b.Connected("tenant_a"))
}

func TestDuplicateReportIsNoOp(t *testing.T) {
	ctx := context.Background()
	b := newTestBridge(10)

	req := models.NewPluginRequest("tenant_a", "DELETE", "/api/items/1", "delete item", nil)
	respCh := make(chan *models.PluginResponse, 1)
	go func() {
		resp, _ := b.Do(ctx, req)
		respCh <- resp
	}()

	require.Eventually(t, func() bool {
		reqs := b.take("tenant_a", false)
		return len(reqs) == 1
	}, time.Second, 10*time.Millisecond)

	first := &models.PluginResponse{RequestID: req.RequestID, Success: true, Status: 204}
	require.NoError(t, b.Report(ctx, "tenant_a", first))
	require.NoError(t, b.Report(ctx, "tenant_a", &models.PluginResponse{RequestID: req.RequestID, Success: false, Status: 500}))

	resp := <-respCh
	require.NotNil(t, resp)
	assert.Equal(t, 204, resp.Status)
}

func TestTakeRedeliversInFlight(t *testing.T) {
	ctx := context.Background()
	b := newTestBridge(10)

	req := models.NewPluginRequest("tenant_a", "POST", "/api/items", "publish item", nil)
	go b.Do(ctx, req)

	require.Eventually(t, func() bool {
		return len(b.take("tenant_a", false)) == 1
	}, time.Second, 10*time.Millisecond)

	// Delivered but unanswered: a plain drain is empty, a reattach drain
	// re-pushes the in-flight request
	assert.Empty(t, b.take("tenant_a", false))
	redelivered := b.take("tenant_a", true)
	require.Len(t, redelivered, 1)
	assert.Equal(t, req.RequestID, redelivered[0].RequestID)
}

func TestPollDeadlineReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	b := newTestBridge(10)

	start := time.Now()
	reqs, hasPending, err := b.Poll(ctx, "tenant_a", 1)
	require.NoError(t, err)
	assert.False(t, hasPending, "an empty timeout reports no outstanding work")
	assert.Empty(t, reqs)
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func TestPollDeadlineReportsInFlight(t *testing.T) {
	ctx := context.Background()
	b := newTestBridge(10)

	req := models.NewPluginRequest("tenant_a", "POST", "/api/items", "publish item", nil)
	go b.Do(ctx, req)

	// Delivered over the push socket, still awaiting its report
	require.Eventually(t, func() bool {
		return len(b.take("tenant_a", false)) == 1
	}, time.Second, 10*time.Millisecond)

	reqs, hasPending, err := b.Poll(ctx, "tenant_a", 1)
	require.NoError(t, err)
	assert.Empty(t, reqs)
	assert.True(t, hasPending)
}

func TestDoValidatesRequest(t *testing.T) {
	ctx := context.Background()
	b := newTestBridge(10)

	req := models.NewPluginRequest("tenant_a", "PATCH", "/api/items", "bad method", nil)
	_, err := b.Do(ctx, req)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
}
