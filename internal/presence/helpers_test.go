package presence

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// recorder is a Deliverer that keeps every frame per connection.
type recorder struct {
	mu     sync.Mutex
	frames map[ConnID][]frame
	fail   map[ConnID]bool
}

func newRecorder() *recorder {
	return &recorder{frames: make(map[ConnID][]frame), fail: make(map[ConnID]bool)}
}

func (r *recorder) Deliver(conn ConnID, raw []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[conn] {
		return ErrDeliveryFailed
	}
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return err
	}
	r.frames[conn] = append(r.frames[conn], f)
	return nil
}

func (r *recorder) events(conn ConnID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.frames[conn]))
	for _, f := range r.frames[conn] {
		names = append(names, f.Event)
	}
	return names
}

// last returns the data of the most recent frame of event sent to conn.
func (r *recorder) last(t *testing.T, conn ConnID, event string, v any) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	frames := r.frames[conn]
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].Event == event {
			require.NoError(t, json.Unmarshal(frames[i].Data, v))
			return
		}
	}
	t.Fatalf("no %s frame for %s", event, conn)
}

func (r *recorder) count(conn ConnID, event string) int {
	n := 0
	for _, name := range r.events(conn) {
		if name == event {
			n++
		}
	}
	return n
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = make(map[ConnID][]frame)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var fixedNow = time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

func newTestController(opts Options) (*Controller, *recorder) {
	rec := newRecorder()
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	return NewController(rec, discardLogger(), opts), rec
}

func envelope(t *testing.T, event string, data any) []byte {
	t.Helper()
	env := map[string]any{"event": event}
	if data != nil {
		env["data"] = data
	}
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return raw
}
