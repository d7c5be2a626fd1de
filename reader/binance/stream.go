package binance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	appconfig "binflow/config"
	"binflow/internal/channel"
	"binflow/logger"
	"binflow/models"
)

// ConnState tracks where a subscription's socket lifecycle currently is.
// Each state is owned exclusively by the subscription's supervisor goroutine.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateBackoff
	StateTerminated
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackoff:
		return "backoff"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// StreamReader supervises one websocket connection per subscription. Each
// supervisor keeps its feed alive until shutdown or its sample limit,
// reconnecting with exponential backoff, and never lets a malformed frame
// reach the bus.
type StreamReader struct {
	config      *appconfig.Config
	bus         *channel.Bus
	subs        []models.Subscription
	dialLimiter *rate.Limiter
	ctx         context.Context
	wg          *sync.WaitGroup
	mu          sync.RWMutex
	running     bool
	log         *logger.Log
	done        chan struct{}
}

// NewStreamReader creates a supervisor set for the given subscriptions. The
// dial limiter is shared across all supervisors so reconnect storms cannot
// flood the exchange with connection attempts.
func NewStreamReader(cfg *appconfig.Config, bus *channel.Bus, subs []models.Subscription) *StreamReader {
	log := logger.GetLogger()

	limit := rate.Limit(cfg.Feed.DialRate.PerSecond)
	if limit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Feed.DialRate.Burst
	if burst < 1 {
		burst = 1
	}

	r := &StreamReader{
		config:      cfg,
		bus:         bus,
		subs:        subs,
		dialLimiter: rate.NewLimiter(limit, burst),
		wg:          &sync.WaitGroup{},
		log:         log,
		done:        make(chan struct{}),
	}

	log.WithComponent("stream_reader").WithFields(logger.Fields{
		"subscriptions": len(subs),
		"base_url":      cfg.WebsocketBaseURL(),
	}).Info("stream reader initialized")

	return r
}

// Start launches one supervisor goroutine per subscription.
func (r *StreamReader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("stream reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent("stream_reader").WithFields(logger.Fields{"operation": "start"})

	if len(r.subs) == 0 {
		log.Warn("no subscriptions configured")
		return fmt.Errorf("no subscriptions configured")
	}

	for _, sub := range r.subs {
		r.wg.Add(1)
		go r.supervise(sub)
	}

	go func() {
		r.wg.Wait()
		close(r.done)
	}()

	log.WithFields(logger.Fields{"subscriptions": len(r.subs)}).Info("stream reader started")
	return nil
}

// Stop waits for every supervisor to exit. The shared context must be
// cancelled first; Stop itself only joins.
func (r *StreamReader) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("stream_reader").Info("stopping stream reader")
	r.wg.Wait()
	r.log.WithComponent("stream_reader").Info("stream reader stopped")
}

// Done is closed once every supervisor has terminated, which also happens
// without a shutdown signal when all subscriptions reach their sample limit.
func (r *StreamReader) Done() <-chan struct{} {
	return r.done
}

// supervise runs one subscription's connect/read/backoff loop. It never
// returns an error: connect failures feed the backoff policy and the loop
// only exits on shutdown or the sample limit.
func (r *StreamReader) supervise(sub models.Subscription) {
	defer r.wg.Done()

	log := r.log.WithComponent("stream_reader").WithFields(logger.Fields{
		"subscription": sub.Tag(),
	})

	url := r.config.WebsocketBaseURL() + "/" + sub.StreamPath()
	log.WithFields(logger.Fields{"url": url}).Info("starting supervisor")

	state := StateDisconnected
	attempt := 0
	delivered := 0

	setState := func(next ConnState) {
		if next == state {
			return
		}
		entry := log.WithFields(logger.Fields{"from": state.String(), "to": next.String()})
		if next == StateBackoff {
			entry = entry.WithFields(logger.Fields{"attempt": attempt})
		}
		entry.Debug("connection state changed")
		state = next
	}

	for {
		if r.ctx.Err() != nil {
			setState(StateTerminated)
			log.Info("supervisor stopped due to context cancellation")
			return
		}

		if err := r.dialLimiter.Wait(r.ctx); err != nil {
			setState(StateTerminated)
			return
		}

		setState(StateConnecting)
		conn, _, err := websocket.DefaultDialer.DialContext(r.ctx, url, nil)
		if err != nil {
			if r.ctx.Err() != nil {
				setState(StateTerminated)
				return
			}
			attempt++
			setState(StateBackoff)
			log.WithError(err).WithFields(logger.Fields{"attempt": attempt}).Warn("connect failed")
			if !r.waitBackoff(attempt) {
				setState(StateTerminated)
				return
			}
			setState(StateDisconnected)
			continue
		}

		attempt = 0
		setState(StateConnected)
		log.Info("connected")

		finished := r.readLoop(conn, sub, log, &delivered)
		conn.Close()

		if finished || r.ctx.Err() != nil {
			setState(StateTerminated)
			if finished {
				log.WithFields(logger.Fields{
					"samples": delivered,
				}).Info("sample limit reached, supervisor finishing")
			} else {
				log.Info("supervisor stopped due to context cancellation")
			}
			return
		}

		attempt++
		setState(StateBackoff)
		if !r.waitBackoff(attempt) {
			setState(StateTerminated)
			return
		}
		setState(StateDisconnected)
	}
}

// readLoop consumes frames until disconnect, shutdown or the sample limit.
// It returns true when the subscription is permanently done (sample limit).
func (r *StreamReader) readLoop(conn *websocket.Conn, sub models.Subscription, log *logger.Entry, delivered *int) bool {
	// Unblock the pending read when shutdown is signalled.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-r.ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if r.ctx.Err() == nil {
				log.WithError(err).Warn("websocket read failed")
			}
			return false
		}

		msg, err := decodePayload(sub, frame)
		if err != nil {
			// Malformed frames are dropped; the connection stays up.
			logger.IncrementFrameDropped()
			log.WithError(err).Warn("dropping malformed frame")
			continue
		}
		logger.IncrementFrameRead(len(frame))

		if !r.bus.Publish(r.ctx, msg) {
			return false
		}

		if sub.SampleLimit > 0 {
			*delivered++
			if *delivered >= sub.SampleLimit {
				return true
			}
		}
	}
}

// waitBackoff sleeps for the attempt's exponential delay. It returns false
// when shutdown interrupts the wait.
func (r *StreamReader) waitBackoff(attempt int) bool {
	delay := backoffDelay(attempt, r.config.Feed.Retry)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-r.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// backoffDelay computes base * multiplier^(attempt-1) capped at the
// configured maximum.
func backoffDelay(attempt int, retry appconfig.RetryConfig) time.Duration {
	delay := retry.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= time.Duration(retry.BackoffMultiplier)
		if delay >= retry.MaxDelay {
			return retry.MaxDelay
		}
	}
	if delay > retry.MaxDelay {
		return retry.MaxDelay
	}
	return delay
}
