package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/me/jobd/pkg/model"
)

type fakeS3 struct {
	inputs []*s3.PutObjectInput
	bodies []string
	err    error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, string(data))
	return &s3.PutObjectOutput{}, nil
}

func testResult(t *testing.T) model.JobResult {
	t.Helper()
	logFile := filepath.Join(t.TempDir(), "job_1772366400000.txt")
	if err := os.WriteFile(logFile, []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return model.JobResult{
		Job:      model.RunningJob{ID: "1772366400000", Command: "wc.sh data1", LogFile: logFile},
		WorkerID: "10.0.0.1",
		ExitCode: 2,
		Signal:   "SIGTERM",
	}
}

func TestArchive_Uploads(t *testing.T) {
	fake := &fakeS3{}
	a := New(fake, "bucket", "jobs/", slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := a.Archive(context.Background(), testResult(t)); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if len(fake.inputs) != 1 {
		t.Fatalf("uploads = %d, want 1", len(fake.inputs))
	}
	in := fake.inputs[0]
	if got := aws.ToString(in.Bucket); got != "bucket" {
		t.Errorf("Bucket = %q", got)
	}
	if got := aws.ToString(in.Key); got != "jobs/10.0.0.1/job_1772366400000.txt" {
		t.Errorf("Key = %q", got)
	}
	if fake.bodies[0] != "hello\n" {
		t.Errorf("Body = %q", fake.bodies[0])
	}
	if in.Metadata["exit-code"] != "2" || in.Metadata["signal"] != "SIGTERM" || in.Metadata["worker"] != "10.0.0.1" {
		t.Errorf("Metadata = %v", in.Metadata)
	}
}

func TestArchive_Errors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	res := testResult(t)
	res.Job.LogFile = filepath.Join(t.TempDir(), "missing.txt")
	if err := New(&fakeS3{}, "b", "", logger).Archive(context.Background(), res); err == nil {
		t.Error("missing log file: nil error")
	}

	boom := errors.New("access denied")
	err := New(&fakeS3{err: boom}, "b", "", logger).Archive(context.Background(), testResult(t))
	if !errors.Is(err, boom) {
		t.Errorf("upload error = %v, want wrapped %v", err, boom)
	}
}

func TestHook_SwallowsErrors(t *testing.T) {
	fake := &fakeS3{err: errors.New("offline")}
	hook := New(fake, "b", "", slog.New(slog.NewTextHandler(io.Discard, nil))).Hook(context.Background())
	hook(testResult(t))
}

// stalledS3 blocks every upload until its context ends.
type stalledS3 struct {
	err chan error
}

func (f *stalledS3) PutObject(ctx context.Context, _ *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	<-ctx.Done()
	f.err <- ctx.Err()
	return nil, ctx.Err()
}

func TestHook_UploadTimeout(t *testing.T) {
	fake := &stalledS3{err: make(chan error, 1)}
	a := New(fake, "b", "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if a.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", a.Timeout, DefaultTimeout)
	}
	a.Timeout = 50 * time.Millisecond

	res := testResult(t)
	done := make(chan struct{})
	go func() {
		a.Hook(context.Background())(res)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("hook did not return after the upload timeout")
	}
	if err := <-fake.err; !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("upload context error = %v, want deadline exceeded", err)
	}
}
