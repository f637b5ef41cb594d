package tracker

import (
	"bytes"
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/tubedash/tubedash/internal/logger"
)

// fakeService is a scriptable download service.
type fakeService struct {
	mu        sync.Mutex
	nextID    int
	submitErr error
	submitIDs []ID
	statuses  map[ID]Payload
	statusErr map[ID]error
	polls     map[ID]int
	cancelErr error
	cancels   []ID
	urls      []string
	paths     []string
	// onSubmit runs after the service accepted a batch.
	onSubmit func()
}

func newFakeService() *fakeService {
	return &fakeService{
		statuses:  make(map[ID]Payload),
		statusErr: make(map[ID]error),
		polls:     make(map[ID]int),
	}
}

func (f *fakeService) Submit(ctx context.Context, urls, targetPaths []string) ([]ID, error) {
	f.mu.Lock()
	f.urls = append(f.urls, urls...)
	f.paths = append(f.paths, targetPaths...)
	if f.submitErr != nil {
		f.mu.Unlock()
		return nil, f.submitErr
	}
	ids := f.submitIDs
	if ids == nil {
		ids = make([]ID, len(urls))
		for i := range urls {
			f.nextID++
			ids[i] = ID(strconv.Itoa(f.nextID))
		}
	}
	hook := f.onSubmit
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return ids, nil
}

func (f *fakeService) submittedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

func (f *fakeService) cancelled() []ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ID(nil), f.cancels...)
}

func (f *fakeService) Status(ctx context.Context, id ID) (Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.polls[id]++
	if err := f.statusErr[id]; err != nil {
		return Payload{}, err
	}
	return f.statuses[id], nil
}

func (f *fakeService) Cancel(ctx context.Context, id ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancels = append(f.cancels, id)
	return f.cancelErr
}

func (f *fakeService) set(id ID, p Payload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = p
	delete(f.statusErr, id)
}

func (f *fakeService) fail(id ID, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusErr[id] = err
}

func (f *fakeService) pollCount(id ID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls[id]
}

func (f *fakeService) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cancels)
}

func payload(s Status, progress float64) Payload {
	return Payload{Status: &s, Progress: &progress}
}

func statusOnly(s Status) Payload {
	return Payload{Status: &s}
}

func testLogger() *logger.Logger {
	return logger.New(&bytes.Buffer{}, logger.LevelError, "test")
}

const testInterval = 10 * time.Millisecond

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func recordStatus(tr *Tracker, id ID) Status {
	rec, _ := tr.Registry().Get(id)
	return rec.Status
}
