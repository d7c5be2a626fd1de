package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	appconfig "binflow/config"
	"binflow/logger"
	"binflow/models"
)

// S3Sink batches messages like the parquet sink but uploads each completed
// part to S3 instead of the local filesystem. Off by default; meant for
// deployments that archive directly to object storage.
type S3Sink struct {
	cfg     appconfig.S3SinkConfig
	client  *s3.Client
	states  map[string]*batchState
	log     *logger.Log
	appName string
	version string
	closed  bool
}

// NewS3Sink builds the S3 client from config (static credentials when
// provided, default chain otherwise) and validates that credentials exist.
func NewS3Sink(ctx context.Context, cfg appconfig.S3SinkConfig, appName, version string) (*S3Sink, error) {
	log := logger.GetLogger()

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	log.WithComponent("s3_sink").WithFields(logger.Fields{
		"bucket":     cfg.Bucket,
		"region":     cfg.Region,
		"endpoint":   cfg.Endpoint,
		"path_style": cfg.PathStyle,
	}).Info("s3 sink initialized")

	return &S3Sink{
		cfg:     cfg,
		client:  client,
		states:  make(map[string]*batchState),
		log:     log,
		appName: appName,
		version: version,
	}, nil
}

func (s *S3Sink) Name() string { return "s3" }

func (s *S3Sink) Write(ctx context.Context, msg models.NormalizedMessage) error {
	key := msg.Key()
	state := s.states[key]
	if state == nil {
		state = &batchState{}
		s.states[key] = state
	}

	state.add(msg)
	if len(state.payloads) >= s.cfg.BatchSize {
		return s.uploadPart(ctx, msg.Stream, msg.Symbol, state)
	}
	return nil
}

func (s *S3Sink) objectKey(stream models.StreamKind, symbol string, part int, ts time.Time) string {
	name := fmt.Sprintf("%s_%d.parquet", ts.UTC().Format("20060102150405"), part)
	return path.Join(s.cfg.Prefix, string(stream), strings.ToLower(symbol), name)
}

func (s *S3Sink) uploadPart(ctx context.Context, stream models.StreamKind, symbol string, state *batchState) error {
	if len(state.payloads) == 0 {
		return nil
	}

	batchID := uuid.New().String()
	records := len(state.payloads)

	data, err := encodeParquetPart(state, s.cfg.Compression)
	state.payloads = nil
	if err != nil {
		logger.IncrementSinkDrop(s.Name())
		return fmt.Errorf("parquet batch %s failed: %w", batchID, err)
	}

	state.part++
	objectKey := s.objectKey(stream, symbol, state.part, time.Now())

	log := s.log.WithComponent("s3_sink").WithFields(logger.Fields{
		"batch_id": batchID,
		"s3_key":   objectKey,
		"records":  records,
		"size":     len(data),
	})

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":    "parquet",
			"compression":     s.cfg.Compression,
			"binflow-version": s.version,
		},
	}

	// The caller's context carries the bounded write timeout; a hung endpoint
	// must never stall the dispatcher past it.
	if _, err := s.client.PutObject(ctx, input); err != nil {
		logger.IncrementSinkDrop(s.Name())
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", s.cfg.Bucket, err)
	}

	logger.IncrementSinkWrite(s.Name(), len(data))
	log.Info("uploaded parquet part")
	logger.LogDataFlowEntry(log, "parquet_batch", "s3_part", records, "parquet_records")
	return nil
}

// flushTimeout bounds each final upload so a dead endpoint cannot hang the
// Flushing phase forever.
const flushTimeout = 30 * time.Second

// Flush uploads every partial batch as a final short part.
func (s *S3Sink) Flush() error {
	var firstErr error
	for key, state := range s.states {
		if len(state.payloads) == 0 {
			continue
		}
		stream, symbol, ok := splitStateKey(key)
		if !ok {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		err := s.uploadPart(ctx, stream, symbol, state)
		cancel()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close flushes remaining batches. Idempotent.
func (s *S3Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.Flush()
}

// splitStateKey recovers stream kind and symbol from a state key of the
// form <kind>_<symbol-lower>. Stream kinds contain no underscore.
func splitStateKey(key string) (models.StreamKind, string, bool) {
	i := strings.Index(key, "_")
	if i < 0 {
		return "", "", false
	}
	kind, err := models.ParseStreamKind(key[:i])
	if err != nil {
		return "", "", false
	}
	return kind, strings.ToUpper(key[i+1:]), true
}
