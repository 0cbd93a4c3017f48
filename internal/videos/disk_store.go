package videos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fitrack-app/fitrack-backend/internal/telemetry/tracing"
)

var ErrFileNotFound = errors.New("video file not found")

// DiskStore keeps uploaded video files in a flat directory on disk.
type DiskStore struct {
	rootPath string
}

func NewDiskStore(rootPath string) (*DiskStore, error) {
	if rootPath == "" {
		return nil, errors.New("root path cannot be empty")
	}
	if err := os.MkdirAll(rootPath, 0o755); err != nil {
		return nil, fmt.Errorf("create videos dir: %w", err)
	}
	return &DiskStore{
		rootPath: rootPath,
	}, nil
}

// Save writes the uploaded content under the given filename and returns the
// absolute path and the number of bytes written.
func (ds *DiskStore) Save(ctx context.Context, filename string, src io.Reader) (_ string, _ int64, err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "diskStore.save")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("filename", filename))

	path := filepath.Join(ds.rootPath, filename)
	dst, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create file: %w", err)
	}
	defer func() {
		if closeErr := dst.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	written, err := io.Copy(dst, src)
	if err != nil {
		return "", 0, fmt.Errorf("write file: %w", err)
	}

	log.Debugf("disk store: saved video [%s], %d bytes", filename, written)

	return path, written, nil
}

// Open returns a reader over the stored file, or ErrFileNotFound when the
// metadata row outlived the file on disk.
func (ds *DiskStore) Open(ctx context.Context, path string) (_ io.ReadCloser, err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "diskStore.open")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}
