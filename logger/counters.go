package logger

import (
	"strings"
	"sync"
	"sync/atomic"
)

type sinkStat struct {
	writes int64
	drops  int64
	bytes  int64
}

var (
	framesRead    int64
	frameBytes    int64
	framesDropped int64
	published     int64
	readerWarns   int64
	readerErrors  int64
	sinkWarns     int64
	sinkErrors    int64
	sinks         sync.Map // map[string]*sinkStat
)

func recordWarn(component string) {
	if strings.HasPrefix(component, "stream_reader") {
		atomic.AddInt64(&readerWarns, 1)
	} else if strings.HasSuffix(component, "_sink") {
		atomic.AddInt64(&sinkWarns, 1)
	}
}

func recordError(component string) {
	if strings.HasPrefix(component, "stream_reader") {
		atomic.AddInt64(&readerErrors, 1)
	} else if strings.HasSuffix(component, "_sink") {
		atomic.AddInt64(&sinkErrors, 1)
	}
}

// IncrementFrameRead counts one websocket frame decoded successfully.
func IncrementFrameRead(size int) {
	atomic.AddInt64(&framesRead, 1)
	atomic.AddInt64(&frameBytes, int64(size))
}

// IncrementFrameDropped counts one malformed frame discarded by a decoder.
func IncrementFrameDropped() {
	atomic.AddInt64(&framesDropped, 1)
}

// IncrementPublished counts one message accepted by the bus.
func IncrementPublished() {
	atomic.AddInt64(&published, 1)
}

// IncrementSinkWrite counts one delivery to the named sink.
func IncrementSinkWrite(sink string, size int) {
	st := sinkStats(sink)
	atomic.AddInt64(&st.writes, 1)
	atomic.AddInt64(&st.bytes, int64(size))
}

// IncrementSinkDrop counts one message the named sink gave up on.
func IncrementSinkDrop(sink string) {
	atomic.AddInt64(&sinkStats(sink).drops, 1)
}

func sinkStats(name string) *sinkStat {
	v, _ := sinks.LoadOrStore(name, &sinkStat{})
	return v.(*sinkStat)
}

// CounterSnapshot is a point-in-time copy of the pipeline counters.
type CounterSnapshot struct {
	FramesRead    int64
	FrameBytes    int64
	FramesDropped int64
	Published     int64
	ReaderWarns   int64
	ReaderErrors  int64
	SinkWarns     int64
	SinkErrors    int64
	SinkWrites    map[string]int64
	SinkDrops     map[string]int64
	SinkBytes     map[string]int64
}

// SnapshotCounters copies the current counter values.
func SnapshotCounters() CounterSnapshot {
	snap := CounterSnapshot{
		FramesRead:    atomic.LoadInt64(&framesRead),
		FrameBytes:    atomic.LoadInt64(&frameBytes),
		FramesDropped: atomic.LoadInt64(&framesDropped),
		Published:     atomic.LoadInt64(&published),
		ReaderWarns:   atomic.LoadInt64(&readerWarns),
		ReaderErrors:  atomic.LoadInt64(&readerErrors),
		SinkWarns:     atomic.LoadInt64(&sinkWarns),
		SinkErrors:    atomic.LoadInt64(&sinkErrors),
		SinkWrites:    make(map[string]int64),
		SinkDrops:     make(map[string]int64),
		SinkBytes:     make(map[string]int64),
	}
	sinks.Range(func(k, v interface{}) bool {
		name := k.(string)
		st := v.(*sinkStat)
		snap.SinkWrites[name] = atomic.LoadInt64(&st.writes)
		snap.SinkDrops[name] = atomic.LoadInt64(&st.drops)
		snap.SinkBytes[name] = atomic.LoadInt64(&st.bytes)
		return true
	})
	return snap
}
