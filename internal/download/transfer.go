package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fetcharr/fetcharr/internal/sites"
)

const (
	// chunkSize is the copy buffer size. Cancellation and progress are
	// observed between chunks.
	chunkSize = 32 * 1024

	// DefaultStallTimeout aborts a transfer that moves no bytes for this
	// long, so the worker can fall back to the next provider.
	DefaultStallTimeout = 30 * time.Second

	// progressInterval coalesces progress callbacks.
	progressInterval = 500 * time.Millisecond
)

// ProgressFunc receives transfer accounting. size is 0 when the server
// sent no Content-Length.
type ProgressFunc func(downloaded, size, bytesPerSec int64)

// Transferrer streams a direct media URL to disk.
type Transferrer interface {
	Transfer(ctx context.Context, directURL, referer, destPath string, progress ProgressFunc) (int64, error)
}

// HTTPTransferrer downloads over plain HTTP GET. The file is written to
// a .part sibling and renamed into place only after verification.
type HTTPTransferrer struct {
	client       *http.Client
	stallTimeout time.Duration
}

// TransferOption configures an HTTPTransferrer.
type TransferOption func(*HTTPTransferrer)

// WithTransferClient overrides the HTTP client.
func WithTransferClient(c *http.Client) TransferOption {
	return func(t *HTTPTransferrer) { t.client = c }
}

// WithStallTimeout overrides the stall window.
func WithStallTimeout(d time.Duration) TransferOption {
	return func(t *HTTPTransferrer) { t.stallTimeout = d }
}

// NewHTTPTransferrer creates a transferrer.
func NewHTTPTransferrer(opts ...TransferOption) *HTTPTransferrer {
	t := &HTTPTransferrer{
		client:       &http.Client{},
		stallTimeout: DefaultStallTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transfer streams directURL into destPath. On success it returns the
// byte count. A partial .part file is removed on any failure; the final
// path only ever holds verified complete files.
func (t *HTTPTransferrer) Transfer(ctx context.Context, directURL, referer, destPath string, progress ProgressFunc) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, fmt.Errorf("create dir: %w", err)
	}

	// The watchdog aborts the request context on stall so a blocked
	// body read unwinds immediately.
	reqCtx, cancelReq := context.WithCancelCause(ctx)
	defer cancelReq(nil)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, directURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", sites.UserAgent)
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", directURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("get %s: status %d", directURL, resp.StatusCode)
	}
	size := resp.ContentLength
	if size < 0 {
		size = 0
	}

	partPath := destPath + ".part"
	out, err := os.Create(partPath)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", partPath, err)
	}

	written, err := t.copyChunks(reqCtx, cancelReq, out, resp, size, progress)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil {
		err = verify(written, size)
	}
	if err != nil {
		_ = os.Remove(partPath)
		return 0, err
	}

	if err := os.Rename(partPath, destPath); err != nil {
		_ = os.Remove(partPath)
		return 0, fmt.Errorf("rename: %w", err)
	}
	return written, nil
}

// copyChunks copies the body in fixed-size chunks, checking the context
// at every boundary and running a stall watchdog on the side. The
// watchdog cancels ctx with ErrStalled as cause, which also unblocks a
// read waiting on a silent server.
func (t *HTTPTransferrer) copyChunks(ctx context.Context, cancelReq context.CancelCauseFunc, out *os.File, resp *http.Response, size int64, progress ProgressFunc) (int64, error) {
	var written atomic.Int64

	watchdogDone := make(chan struct{})
	defer func() { <-watchdogDone }()
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go func() {
		defer close(watchdogDone)
		t.watchStall(watchCtx, &written, cancelReq)
	}()

	buf := make([]byte, chunkSize)
	var lastReport time.Time
	var lastReported int64
	var lastReportedAt = time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return written.Load(), transferAbortCause(ctx)
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return written.Load(), fmt.Errorf("write: %w", writeErr)
			}
			total := written.Add(int64(n))

			if progress != nil && time.Since(lastReport) >= progressInterval {
				elapsed := time.Since(lastReportedAt).Seconds()
				speed := int64(0)
				if elapsed > 0 {
					speed = int64(float64(total-lastReported) / elapsed)
				}
				progress(total, size, speed)
				lastReport = time.Now()
				lastReported = total
				lastReportedAt = lastReport
			}
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return written.Load(), transferAbortCause(ctx)
			}
			if errors.Is(readErr, io.EOF) {
				if progress != nil {
					progress(written.Load(), size, 0)
				}
				return written.Load(), nil
			}
			return written.Load(), fmt.Errorf("read body: %w", readErr)
		}
	}
}

// transferAbortCause distinguishes a stall abort from a caller cancel.
func transferAbortCause(ctx context.Context) error {
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return ctx.Err()
}

// watchStall aborts the request when the byte counter stops moving for
// the stall window.
func (t *HTTPTransferrer) watchStall(ctx context.Context, written *atomic.Int64, cancelReq context.CancelCauseFunc) {
	ticker := time.NewTicker(t.stallTimeout / 4)
	defer ticker.Stop()

	last := written.Load()
	lastMove := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := written.Load()
			if now != last {
				last = now
				lastMove = time.Now()
				continue
			}
			if time.Since(lastMove) >= t.stallTimeout {
				cancelReq(fmt.Errorf("no data for %s: %w", t.stallTimeout, ErrStalled))
				return
			}
		}
	}
}

// verify rejects empty files and short reads against the announced length.
func verify(written, size int64) error {
	if written == 0 {
		return fmt.Errorf("zero bytes written: %w", ErrTruncated)
	}
	if size > 0 && written < size {
		return fmt.Errorf("wrote %d of %d bytes: %w", written, size, ErrTruncated)
	}
	return nil
}
