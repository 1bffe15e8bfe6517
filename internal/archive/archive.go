// Package archive uploads finished job logs to S3 or an S3-compatible store.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/me/jobd/internal/logging"
	"github.com/me/jobd/pkg/model"
)

// Uploader is the subset of the S3 client the archiver needs.
type Uploader interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// DefaultTimeout bounds one upload made through Hook.
const DefaultTimeout = 2 * time.Minute

// S3Archiver copies each finished job's log file to <bucket>/<prefix><worker>/job_<id>.txt.
type S3Archiver struct {
	// Timeout bounds each upload made through Hook; zero means no bound.
	Timeout time.Duration

	client Uploader
	bucket string
	prefix string
	logger *slog.Logger
}

// New creates an S3Archiver over an existing client.
func New(client Uploader, bucket, prefix string, logger *slog.Logger) *S3Archiver {
	return &S3Archiver{
		Timeout: DefaultTimeout,
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		logger:  logging.Component(logger, "archive"),
	}
}

// NewFromConfig builds the S3 client from the default AWS credential chain.
// A non-empty endpoint selects an S3-compatible store with path-style URLs.
func NewFromConfig(ctx context.Context, bucket, prefix, region, endpoint string, logger *slog.Logger) (*S3Archiver, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return New(client, bucket, prefix, logger), nil
}

// Key returns the object key for a finished job.
func (a *S3Archiver) Key(res model.JobResult) string {
	return a.prefix + path.Join(res.WorkerID, "job_"+res.Job.ID+".txt")
}

// Archive uploads the job's log file with its exit metadata.
func (a *S3Archiver) Archive(ctx context.Context, res model.JobResult) error {
	f, err := os.Open(res.Job.LogFile)
	if err != nil {
		return fmt.Errorf("open log %s: %w", res.Job.LogFile, err)
	}
	defer f.Close()

	key := a.Key(res)
	meta := map[string]string{
		"job-id":    res.Job.ID,
		"worker":    res.WorkerID,
		"exit-code": strconv.Itoa(res.ExitCode),
		"command":   res.Job.Command,
	}
	if res.Signal != "" {
		meta["signal"] = res.Signal
	}
	if _, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("text/plain; charset=utf-8"),
		Metadata:    meta,
	}); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", a.bucket, key, err)
	}
	a.logger.Debug("log archived", "job_id", res.Job.ID, "bucket", a.bucket, "key", key)
	return nil
}

// Hook adapts Archive to a scheduler finish hook. Each upload is bounded by
// Timeout; failures are logged.
func (a *S3Archiver) Hook(ctx context.Context) func(model.JobResult) {
	return func(res model.JobResult) {
		uploadCtx := ctx
		if a.Timeout > 0 {
			var cancel context.CancelFunc
			uploadCtx, cancel = context.WithTimeout(ctx, a.Timeout)
			defer cancel()
		}
		if err := a.Archive(uploadCtx, res); err != nil {
			a.logger.Warn("log archive failed", "job_id", res.Job.ID, "error", err)
		}
	}
}
