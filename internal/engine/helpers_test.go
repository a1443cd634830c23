package engine_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/tartampluch/card-countdown/internal/engine"
)

// -----------------------------------------------------------------------------
// Mocks
// -----------------------------------------------------------------------------

// MockClock controls time for deterministic testing.
type MockClock struct {
	CurrentTime time.Time
}

func (m MockClock) Now() time.Time {
	return m.CurrentTime
}

// fakeStore is an in-memory record store with the real store's rules.
type fakeStore struct {
	mu       sync.Mutex
	records  map[string]engine.Record
	capacity int
}

func newFakeStore(recs ...engine.Record) *fakeStore {
	s := &fakeStore{records: map[string]engine.Record{}, capacity: 20}
	for _, r := range recs {
		s.records[r.UID] = r
	}
	return s
}

func (s *fakeStore) Find(uid string) (engine.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[uid]
	return r, ok
}

func (s *fakeStore) Add(rec engine.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.UID]; ok {
		return engine.ErrDuplicateUID
	}
	if len(s.records) >= s.capacity {
		return engine.ErrCapacityExceeded
	}
	s.records[rec.UID] = rec
	return nil
}

func (s *fakeStore) Update(uid string, rec engine.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[uid]; !ok {
		return engine.ErrNotFound
	}
	s.records[uid] = rec
	return nil
}

func (s *fakeStore) put(rec engine.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.UID] = rec
}

func (s *fakeStore) remove(uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, uid)
}

var errReaderTimeout = errors.New("reader timeout")

// scriptedSensor returns the queued reads in order, then repeats the last one.
type scriptedSensor struct {
	reads []sensorRead
}

type sensorRead struct {
	uid string
	err error
}

func (s *scriptedSensor) push(uid string) {
	s.reads = append(s.reads, sensorRead{uid: uid})
}

func (s *scriptedSensor) fail() {
	s.reads = append(s.reads, sensorRead{err: errReaderTimeout})
}

func (s *scriptedSensor) Poll(context.Context) (string, error) {
	if len(s.reads) == 0 {
		return "", nil
	}
	r := s.reads[0]
	if len(s.reads) > 1 {
		s.reads = s.reads[1:]
	}
	return r.uid, r.err
}

// MockRenderer records frames through testify/mock.
type MockRenderer struct {
	mock.Mock
}

func (m *MockRenderer) Show(ctx context.Context, f engine.Frame) error {
	args := m.Called(ctx, f)
	return args.Error(0)
}

// frames returns the frames passed to Show, in order.
func (m *MockRenderer) frames() []engine.Frame {
	var out []engine.Frame
	for _, c := range m.Calls {
		if c.Method == "Show" {
			out = append(out, c.Arguments.Get(1).(engine.Frame))
		}
	}
	return out
}
