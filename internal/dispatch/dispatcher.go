package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"binflow/internal/channel"
	"binflow/logger"
	"binflow/writer"
)

// Dispatcher is the bus's sole consumer. Each drained message fans out to
// every configured sink under a bounded per-write timeout; one sink's
// failure is logged and never stalls the drain or the other sinks.
type Dispatcher struct {
	bus          *channel.Bus
	sinks        []writer.Sink
	writeTimeout time.Duration
	ctx          context.Context
	wg           *sync.WaitGroup
	mu           sync.RWMutex
	running      bool
	log          *logger.Log
}

func NewDispatcher(bus *channel.Bus, sinks []writer.Sink, writeTimeout time.Duration) *Dispatcher {
	log := logger.GetLogger()

	names := make([]string, len(sinks))
	for i, s := range sinks {
		names[i] = s.Name()
	}
	log.WithComponent("dispatcher").WithFields(logger.Fields{
		"sinks":         names,
		"write_timeout": writeTimeout,
	}).Info("dispatcher initialized")

	return &Dispatcher{
		bus:          bus,
		sinks:        sinks,
		writeTimeout: writeTimeout,
		wg:           &sync.WaitGroup{},
		log:          log,
	}
}

func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher already running")
	}
	d.running = true
	d.ctx = ctx
	d.mu.Unlock()

	d.wg.Add(1)
	go d.run()

	d.log.WithComponent("dispatcher").Info("dispatcher started")
	return nil
}

// run drains the bus until it is closed and empty. Cancellation of the run
// context does not stop the loop: shutdown relies on the drain finishing.
func (d *Dispatcher) run() {
	defer d.wg.Done()

	log := d.log.WithComponent("dispatcher")

	for msg := range d.bus.Messages() {
		d.bus.MarkConsumed()

		for _, sink := range d.sinks {
			// Sink writes outlive the cancelled run context during drain;
			// only the bounded timeout limits them.
			writeCtx, cancel := context.WithTimeout(context.WithoutCancel(d.ctx), d.writeTimeout)
			err := sink.Write(writeCtx, msg)
			cancel()

			if err != nil {
				log.WithError(err).WithFields(logger.Fields{
					"sink":   sink.Name(),
					"stream": string(msg.Stream),
					"symbol": msg.Symbol,
				}).Warn("sink write failed")
			}
		}
	}

	log.Info("bus drained, dispatcher finishing")
}

// Stop waits for the drain to complete. The bus must be closed first.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()

	d.log.WithComponent("dispatcher").Info("stopping dispatcher")
	d.wg.Wait()
	d.log.WithComponent("dispatcher").Info("dispatcher stopped")
}
