// File: internal/capture/recorder.go
package capture

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Payload is one recorded submission.
type Payload struct {
	Sequence   int       `json:"sequence"`
	URL        string    `json:"url"`
	Body       []byte    `json:"-"`
	CapturedAt time.Time `json:"captured_at"`
}

// Sink stores recorded payloads.
type Sink interface {
	Write(ctx context.Context, p Payload) error
	Close() error
}

// Recorder counts target submissions and hands each one to a sink. It is the
// artifact counter the traversal polls; the network layer calls Record from
// its own goroutine.
type Recorder struct {
	sink   Sink
	max    int
	logger *zap.Logger
	now    func() time.Time

	// mu serializes sequence assignment with the sink write.
	mu    sync.Mutex
	count atomic.Int64
}

// NewRecorder creates a recorder whose count starts at seed (the count
// persisted by a previous run). max caps the count; zero means no cap.
func NewRecorder(sink Sink, seed, max int, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{sink: sink, max: max, logger: logger.Named("capture"), now: time.Now}
	r.count.Store(int64(seed))
	return r
}

// ArtifactsCaptured implements explorer.ArtifactCounter.
func (r *Recorder) ArtifactsCaptured() int {
	return int(r.count.Load())
}

// Record counts one submission and writes its body. Submissions past the cap
// are ignored and reported as not recorded. A sink failure still counts the
// submission, since it did happen.
func (r *Recorder) Record(ctx context.Context, url string, body []byte) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := int(r.count.Load())
	if r.max > 0 && current >= r.max {
		r.logger.Debug("Submission past the artifact cap ignored.", zap.String("url", url))
		return false, nil
	}

	p := Payload{
		Sequence:   current + 1,
		URL:        url,
		Body:       append([]byte(nil), body...),
		CapturedAt: r.now().UTC(),
	}
	r.count.Store(int64(p.Sequence))

	r.logger.Info("Captured payload.", zap.Int("sequence", p.Sequence), zap.Int("bytes", len(body)))
	if r.sink == nil {
		return true, nil
	}
	if err := r.sink.Write(ctx, p); err != nil {
		return true, fmt.Errorf("failed to store payload %d: %w", p.Sequence, err)
	}
	return true, nil
}

// Close releases the sink.
func (r *Recorder) Close() error {
	if r.sink == nil {
		return nil
	}
	return r.sink.Close()
}
