package channel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"binflow/logger"
	"binflow/models"
)

// BusStats counts traffic through the bus.
type BusStats struct {
	Published int64
	Consumed  int64
}

// Bus is the bounded FIFO connecting every stream supervisor to the single
// dispatcher. Publish blocks when the buffer is full: a slow sink throttles
// ingestion instead of losing data.
type Bus struct {
	ch chan models.NormalizedMessage

	published int64
	consumed  int64

	closeOnce sync.Once
	log       *logger.Log
}

func NewBus(capacity int) *Bus {
	log := logger.GetLogger()

	b := &Bus{
		ch:  make(chan models.NormalizedMessage, capacity),
		log: log,
	}

	log.WithComponent("bus").WithFields(logger.Fields{
		"capacity": capacity,
	}).Info("bus initialized")

	return b
}

// Publish enqueues a message, blocking while the bus is full. It returns
// false only when ctx is cancelled before the message is accepted.
func (b *Bus) Publish(ctx context.Context, msg models.NormalizedMessage) bool {
	// Cancellation precedes Close by the full drain grace period, so checking
	// it first keeps late producers away from the closed channel.
	if ctx.Err() != nil {
		return false
	}
	select {
	case b.ch <- msg:
		atomic.AddInt64(&b.published, 1)
		logger.IncrementPublished()
		return true
	case <-ctx.Done():
		return false
	}
}

// Messages exposes the consumer side of the bus. The dispatcher is the sole
// reader; the channel is closed by Close after all producers have stopped.
func (b *Bus) Messages() <-chan models.NormalizedMessage {
	return b.ch
}

// MarkConsumed records one message drained by the dispatcher.
func (b *Bus) MarkConsumed() {
	atomic.AddInt64(&b.consumed, 1)
}

// Close seals the producer side. Safe to call more than once.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		close(b.ch)
		b.log.WithComponent("bus").Info("bus closed")
	})
}

func (b *Bus) Len() int { return len(b.ch) }
func (b *Bus) Cap() int { return cap(b.ch) }

func (b *Bus) Stats() BusStats {
	return BusStats{
		Published: atomic.LoadInt64(&b.published),
		Consumed:  atomic.LoadInt64(&b.consumed),
	}
}

// StartStatsReporting periodically logs bus depth and pipeline counters.
func (b *Bus) StartStatsReporting(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.logStats()
			}
		}
	}()
}

func (b *Bus) logStats() {
	stats := b.Stats()
	counters := logger.SnapshotCounters()

	b.log.WithComponent("bus").WithFields(logger.Fields{
		"bus_len":        b.Len(),
		"bus_cap":        b.Cap(),
		"published":      stats.Published,
		"consumed":       stats.Consumed,
		"frames_read":    counters.FramesRead,
		"frame_bytes":    counters.FrameBytes,
		"frames_dropped": counters.FramesDropped,
		"sink_writes":    counters.SinkWrites,
		"sink_drops":     counters.SinkDrops,
	}).Info("bus statistics")
}
