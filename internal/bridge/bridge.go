package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/matthiasrib29/StoFlow-sub015/internal/models"
)

// pendingRequest tracks one bridge request from submission until its
// response, timeout or session loss
type pendingRequest struct {
	req       *models.PluginRequest
	respCh    chan *models.PluginResponse
	delivered bool
	failErr   error
}

// tenantSession holds the bridge state for one tenant: the bounded
// undelivered queue and the in-flight correlation map
type tenantSession struct {
	mu        sync.Mutex
	connected bool
	queue     []*pendingRequest
	pending   map[string]*pendingRequest

	// notify wakes long-pollers and the push socket when work arrives
	// or the session state flips
	notify chan struct{}
}

func (s *tenantSession) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Bridge correlates requests proxied to the browser extension with the
// responses it reports back. Each request carries a correlation ID; the
// submitting goroutine blocks on a per-request channel until Report
// completes it.
type Bridge struct {
	logger         arbor.ILogger
	queueCap       int
	defaultTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*tenantSession
}

// NewBridge creates a bridge with per-tenant queues bounded at queueCap
func NewBridge(logger arbor.ILogger, queueCap int, defaultTimeout time.Duration) *Bridge {
	if queueCap <= 0 {
		queueCap = 50
	}
	if defaultTimeout <= 0 {
		defaultTimeout = time.Duration(models.DefaultPluginTimeoutSecs) * time.Second
	}
	return &Bridge{
		logger:         logger,
		queueCap:       queueCap,
		defaultTimeout: defaultTimeout,
		sessions:       make(map[string]*tenantSession),
	}
}

func (b *Bridge) session(tenantID string) *tenantSession {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions[tenantID]
	if !ok {
		// Sessions start connected; a tenant is assumed reachable until
		// the extension reports otherwise.
		s = &tenantSession{
			connected: true,
			pending:   make(map[string]*pendingRequest),
			notify:    make(chan struct{}, 1),
		}
		b.sessions[tenantID] = s
	}
	return s
}

// Do submits a request and blocks until the extension reports the
// response, the request deadline passes, or the session is lost
func (b *Bridge) Do(ctx context.Context, req *models.PluginRequest) (*models.PluginResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidInput, err.Error())
	}

	timeout := b.defaultTimeout
	if req.TimeoutSecs > 0 {
		timeout = time.Duration(req.TimeoutSecs) * time.Second
	}

	s := b.session(req.TenantID)
	pr := &pendingRequest{
		req:    req,
		respCh: make(chan *models.PluginResponse, 1),
	}

	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: tenant %s has no active session", models.ErrSessionLost, req.TenantID)
	}
	// pending covers queued and delivered requests alike
	if len(s.pending) >= b.queueCap {
		s.mu.Unlock()
		b.logger.Warn().
			Str("tenant_id", req.TenantID).
			Int("queue_cap", b.queueCap).
			Msg("Plugin queue saturated, rejecting request")
		return nil, fmt.Errorf("%w: tenant %s queue is full", models.ErrChannelSaturated, req.TenantID)
	}
	s.queue = append(s.queue, pr)
	s.pending[req.RequestID] = pr
	s.mu.Unlock()
	s.signal()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-pr.respCh:
		if !ok {
			return nil, pr.failErr
		}
		return resp, nil
	case <-timer.C:
		b.abandon(s, req.RequestID)
		return nil, fmt.Errorf("%w: no response for %s within %s", models.ErrTimeout, req.RequestID, timeout)
	case <-ctx.Done():
		b.abandon(s, req.RequestID)
		return nil, ctx.Err()
	}
}

// abandon drops a request that will no longer be waited on. A response
// arriving later for its ID becomes a no-op report.
func (b *Bridge) abandon(s *tenantSession, requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, requestID)
	for i, queued := range s.queue {
		if queued.req.RequestID == requestID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			break
		}
	}
}

// take drains deliverable requests for a tenant. Queued requests are
// marked delivered and stay pending until answered. includeInFlight
// additionally returns already-delivered unanswered requests, used by a
// reattaching socket to re-push work the extension may have lost.
func (b *Bridge) take(tenantID string, includeInFlight bool) []*models.PluginRequest {
	s := b.session(tenantID)
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.PluginRequest
	if includeInFlight {
		for _, pr := range s.pending {
			if pr.delivered {
				out = append(out, pr.req)
			}
		}
	}
	for _, pr := range s.queue {
		pr.delivered = true
		out = append(out, pr.req)
	}
	s.queue = nil
	return out
}

// Poll blocks up to timeoutSecs waiting for deliverable requests. The
// second return reports whether any requests are still awaiting a report,
// so an idle extension can tell an empty timeout from outstanding work.
func (b *Bridge) Poll(ctx context.Context, tenantID string, timeoutSecs int) ([]*models.PluginRequest, bool, error) {
	if timeoutSecs <= 0 {
		timeoutSecs = 30
	}
	s := b.session(tenantID)

	// Polling is the extension talking to us, so the session is live
	// again even after a reported disconnect.
	s.mu.Lock()
	if !s.connected {
		s.connected = true
		b.logger.Info().Str("tenant_id", tenantID).Msg("Plugin session restored via poll")
	}
	s.mu.Unlock()

	deadline := time.NewTimer(time.Duration(timeoutSecs) * time.Second)
	defer deadline.Stop()

	for {
		if reqs := b.take(tenantID, false); len(reqs) > 0 {
			return reqs, true, nil
		}
		select {
		case <-s.notify:
		case <-deadline.C:
			return nil, b.hasPending(tenantID), nil
		case <-ctx.Done():
			return nil, b.hasPending(tenantID), ctx.Err()
		}
	}
}

// hasPending reports whether the tenant has requests awaiting a report,
// delivered or not
func (b *Bridge) hasPending(tenantID string) bool {
	s := b.session(tenantID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) > 0
}

// Report completes the pending request matching the response's
// correlation ID. Unknown or already-completed IDs are no-ops.
func (b *Bridge) Report(ctx context.Context, tenantID string, resp *models.PluginResponse) error {
	if resp == nil || resp.RequestID == "" {
		return fmt.Errorf("%w: response requires a request ID", models.ErrInvalidInput)
	}

	s := b.session(tenantID)
	s.mu.Lock()
	pr, ok := s.pending[resp.RequestID]
	if ok {
		delete(s.pending, resp.RequestID)
	}
	s.mu.Unlock()

	if !ok {
		b.logger.Debug().
			Str("tenant_id", tenantID).
			Str("request_id", resp.RequestID).
			Msg("Dropping duplicate or unknown plugin response")
		return nil
	}

	pr.respCh <- resp
	return nil
}

// NotifyDisconnect marks the tenant's session lost and fails every
// queued and in-flight request. Idempotent.
func (b *Bridge) NotifyDisconnect(ctx context.Context, tenantID string) error {
	s := b.session(tenantID)
	s.mu.Lock()
	wasConnected := s.connected
	s.connected = false
	dropped := make([]*pendingRequest, 0, len(s.pending))
	for _, pr := range s.pending {
		dropped = append(dropped, pr)
	}
	s.pending = make(map[string]*pendingRequest)
	s.queue = nil
	s.mu.Unlock()
	s.signal()

	for _, pr := range dropped {
		pr.failErr = fmt.Errorf("%w: tenant %s session disconnected", models.ErrSessionLost, tenantID)
		close(pr.respCh)
	}

	if wasConnected || len(dropped) > 0 {
		b.logger.Info().
			Str("tenant_id", tenantID).
			Int("dropped", len(dropped)).
			Msg("Plugin session disconnected")
	}
	return nil
}

// NotifyReconnect re-enables the tenant's session
func (b *Bridge) NotifyReconnect(ctx context.Context, tenantID string) error {
	s := b.session(tenantID)
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	s.signal()

	b.logger.Info().Str("tenant_id", tenantID).Msg("Plugin session connected")
	return nil
}

// Connected reports whether the tenant currently has a live session
func (b *Bridge) Connected(tenantID string) bool {
	s := b.session(tenantID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}
