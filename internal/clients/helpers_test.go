package clients

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// sleepRecorder records backoff waits instead of sleeping
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// testOptions disables transport retry so attempts can be counted exactly
func testOptions(rec *sleepRecorder, extra ...Option) []Option {
	opts := []Option{
		WithSessionConfig(SessionConfig{MaxRetries: 0}),
		WithRetrySleep(rec.sleep),
		WithLogger(discardLogger()),
	}
	return append(opts, extra...)
}

// failingCounter answers the first n calls with failure and the rest with success
type failingCounter struct {
	n     int64
	calls atomic.Int64
}

func (f *failingCounter) next() (call int64, fail bool) {
	call = f.calls.Add(1)
	return call, call <= f.n
}
