// Package writer holds the sink layer: every destination for normalized
// messages implements Sink and is driven exclusively by the dispatcher's
// sequential calls, so sink state needs no locking.
package writer

import (
	"context"

	"binflow/models"
)

// Sink is one destination for normalized messages. Write may fail without
// affecting other sinks; Flush forces buffered data out (class-B file sinks
// write their partial batch as a final short part); Close releases resources
// and must be safe to call more than once.
type Sink interface {
	Name() string
	Write(ctx context.Context, msg models.NormalizedMessage) error
	Flush() error
	Close() error
}
