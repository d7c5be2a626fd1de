// Package metrics publishes pipeline counters to CloudWatch when enabled.
// Publishing failures only ever log; the pipeline never depends on it.
package metrics

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"binflow/logger"
)

type cloudWatchState struct {
	client    *cloudwatch.Client
	namespace string
	region    string
}

var cwState atomic.Pointer[cloudWatchState]

// InitCloudWatch initialises the CloudWatch client. When the client cannot
// be created the function logs a warning and leaves publishing disabled.
func InitCloudWatch(region, namespace string) {
	log := logger.GetLogger().WithComponent("cloudwatch")

	ctx := context.Background()
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		log.WithError(err).Warn("failed to load AWS configuration; CloudWatch metrics disabled")
		return
	}

	if namespace == "" {
		namespace = "Binflow"
	}

	cwState.Store(&cloudWatchState{
		client:    cloudwatch.NewFromConfig(cfg),
		namespace: namespace,
		region:    cfg.Region,
	})

	log.WithFields(logger.Fields{
		"region":    cfg.Region,
		"namespace": namespace,
	}).Info("initialized CloudWatch client")
}

// StartPublisher periodically pushes the pipeline counter snapshot until the
// context is cancelled. A nil client (init skipped or failed) disables it.
func StartPublisher(ctx context.Context, interval time.Duration) {
	state := cwState.Load()
	if state == nil || state.client == nil {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				publishSnapshot(ctx, state)
			}
		}
	}()
}

func publishSnapshot(ctx context.Context, state *cloudWatchState) {
	log := logger.GetLogger().WithComponent("cloudwatch")
	snap := logger.SnapshotCounters()

	data := []cwtypes.MetricDatum{
		datum("frames_read", float64(snap.FramesRead), nil),
		datum("frame_bytes", float64(snap.FrameBytes), nil),
		datum("frames_dropped", float64(snap.FramesDropped), nil),
		datum("messages_published", float64(snap.Published), nil),
	}
	for sink, writes := range snap.SinkWrites {
		dims := []cwtypes.Dimension{{Name: aws.String("sink"), Value: aws.String(sink)}}
		data = append(data, datum("sink_writes", float64(writes), dims))
	}
	for sink, drops := range snap.SinkDrops {
		dims := []cwtypes.Dimension{{Name: aws.String("sink"), Value: aws.String(sink)}}
		data = append(data, datum("sink_drops", float64(drops), dims))
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(state.namespace),
		MetricData: data,
	}
	if _, err := state.client.PutMetricData(ctx, input); err != nil {
		log.WithError(err).Warn("failed to publish metrics")
	}
}

func datum(name string, value float64, dims []cwtypes.Dimension) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Dimensions: dims,
		Unit:       cwtypes.StandardUnitCount,
		Value:      aws.Float64(value),
	}
}
