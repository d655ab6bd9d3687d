// package testing contains shared testing utilities
package testing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/shelves/internal/models"
)

// MemoryStore is an in-memory collection.LocalStore that can be told to fail.
type MemoryStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	saves   int
	FailErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Load(key string, v any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailErr != nil {
		return false, m.FailErr
	}
	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

func (m *MemoryStore) Save(key string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailErr != nil {
		return m.FailErr
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.data[key] = raw
	m.saves++
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailErr != nil {
		return m.FailErr
	}
	delete(m.data, key)
	return nil
}

// Saves returns the number of successful writes.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// FakeRemote is an in-memory remote shelf store that records every write.
type FakeRemote struct {
	mu      sync.Mutex
	data    map[string][]models.Shelf
	Puts    []PutCall
	GetErr  error
	PutErr  error
	getCall int

	// PutHook runs before each write is recorded, outside the lock.
	PutHook func(shelves []models.Shelf)
}

// PutCall records one PutShelves invocation.
type PutCall struct {
	ExternalID string
	Shelves    []models.Shelf
}

func NewFakeRemote() *FakeRemote {
	return &FakeRemote{data: make(map[string][]models.Shelf)}
}

// Seed stores shelves for externalID without recording a put.
func (f *FakeRemote) Seed(externalID string, shelves []models.Shelf) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[externalID] = models.CloneShelves(shelves)
}

func (f *FakeRemote) GetShelves(_ context.Context, externalID string) ([]models.Shelf, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCall++
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	return models.CloneShelves(f.data[externalID]), nil
}

func (f *FakeRemote) PutShelves(_ context.Context, externalID string, shelves []models.Shelf) error {
	if f.PutHook != nil {
		f.PutHook(shelves)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Puts = append(f.Puts, PutCall{ExternalID: externalID, Shelves: models.CloneShelves(shelves)})
	if f.PutErr != nil {
		return f.PutErr
	}
	f.data[externalID] = models.CloneShelves(shelves)
	return nil
}

// PutCount returns the number of PutShelves calls, failed ones included.
func (f *FakeRemote) PutCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Puts)
}

// GetCount returns the number of GetShelves calls.
func (f *FakeRemote) GetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCall
}

// Stored returns what is currently held for externalID.
func (f *FakeRemote) Stored(externalID string) []models.Shelf {
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.CloneShelves(f.data[externalID])
}

// RecordingSleeper is a shared.Sleeper that returns immediately and remembers every delay.
type RecordingSleeper struct {
	mu     sync.Mutex
	Delays []time.Duration
}

func (r *RecordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.Delays = append(r.Delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

// Recorded returns a copy of the delays seen so far.
func (r *RecordingSleeper) Recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, len(r.Delays))
	copy(out, r.Delays)
	return out
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
