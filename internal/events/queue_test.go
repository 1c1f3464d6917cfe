package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// memStore is an in-memory CheckpointStore for tests.
type memStore struct {
	mu         sync.Mutex
	matchID    string
	lastSpoken string
	saves      int
	failSave   bool
}

func (s *memStore) Load() (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchID, s.lastSpoken, nil
}

func (s *memStore) Save(matchID, lastSpoken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave {
		return errors.New("disk full")
	}
	s.matchID = matchID
	s.lastSpoken = lastSpoken
	s.saves++
	return nil
}

func testEvent(id string, priority int) *Event {
	return &Event{EventID: id, MatchID: "m1", Text: "text for " + id, Intensity: "normal", Priority: priority}
}

func TestQueue_AdmitAndNext(t *testing.T) {
	q := NewQueue(&memStore{})

	if err := q.Admit(testEvent("e1", PriorityNormal)); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}

	ev, err := q.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if ev.EventID != "e1" {
		t.Errorf("Expected e1, got %s", ev.EventID)
	}
}

func TestQueue_Dedup(t *testing.T) {
	q := NewQueue(&memStore{})

	if err := q.Admit(testEvent("e1", PriorityNormal)); err != nil {
		t.Fatalf("first Admit failed: %v", err)
	}
	if err := q.Admit(testEvent("e1", PriorityNormal)); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate on second admit, got %v", err)
	}
	if q.Depth() != 1 {
		t.Errorf("Expected depth 1, got %d", q.Depth())
	}
}

func TestQueue_RejectsCommittedID(t *testing.T) {
	store := &memStore{matchID: "m1", lastSpoken: "e5"}
	q := NewQueue(store)

	if err := q.Admit(testEvent("e5", PriorityNormal)); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate for the checkpointed id, got %v", err)
	}
	if err := q.Admit(testEvent("e6", PriorityNormal)); err != nil {
		t.Errorf("Expected e6 admitted, got %v", err)
	}
}

func TestQueue_PriorityOrdering(t *testing.T) {
	q := NewQueue(&memStore{})

	q.Admit(testEvent("normal-1", PriorityNormal))
	q.Admit(testEvent("normal-2", PriorityNormal))
	q.Admit(testEvent("wicket", PrioritySpecial))
	q.Admit(testEvent("announce", PriorityAnnouncement))

	want := []string{"announce", "wicket", "normal-1", "normal-2"}
	for _, id := range want {
		ev, err := q.Next(context.Background())
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if ev.EventID != id {
			t.Errorf("Expected %s, got %s", id, ev.EventID)
		}
	}
}

func TestQueue_FIFOWithinPriority(t *testing.T) {
	q := NewQueue(&memStore{})

	for i := 0; i < 10; i++ {
		q.Admit(testEvent(fmt.Sprintf("e%d", i), PriorityNormal))
	}
	for i := 0; i < 10; i++ {
		ev, err := q.Next(context.Background())
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if want := fmt.Sprintf("e%d", i); ev.EventID != want {
			t.Errorf("Expected %s, got %s", want, ev.EventID)
		}
	}
}

func TestQueue_NextBlocksUntilAdmit(t *testing.T) {
	q := NewQueue(&memStore{})

	got := make(chan *Event, 1)
	go func() {
		ev, err := q.Next(context.Background())
		if err != nil {
			t.Errorf("Next failed: %v", err)
			close(got)
			return
		}
		got <- ev
	}()

	time.Sleep(50 * time.Millisecond)
	q.Admit(testEvent("late", PriorityNormal))

	select {
	case ev := <-got:
		if ev == nil || ev.EventID != "late" {
			t.Errorf("Expected 'late', got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not wake after Admit")
	}
}

func TestQueue_CloseWakesNext(t *testing.T) {
	q := NewQueue(&memStore{})

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Next(context.Background())
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	q.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Expected ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not wake after Close")
	}
}

func TestQueue_NextHonorsContext(t *testing.T) {
	q := NewQueue(&memStore{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Next(ctx)
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not unwind on context cancellation")
	}
}

func TestQueue_CommitPersists(t *testing.T) {
	store := &memStore{}
	q := NewQueue(store)
	q.SetMatchID("m1")

	q.Admit(testEvent("e1", PriorityNormal))
	if _, err := q.Next(context.Background()); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if err := q.Commit("e1"); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if q.Checkpoint() != "e1" {
		t.Errorf("Expected checkpoint e1, got %s", q.Checkpoint())
	}
	if store.lastSpoken != "e1" || store.matchID != "m1" {
		t.Errorf("Store not persisted: matchID=%s lastSpoken=%s", store.matchID, store.lastSpoken)
	}
}

func TestQueue_CommitFailureKeepsMemoryCheckpoint(t *testing.T) {
	store := &memStore{failSave: true}
	q := NewQueue(store)

	if err := q.Commit("e1"); err == nil {
		t.Error("Expected Commit to surface the persistence error")
	}
	// In-memory checkpoint still advances; dedup still applies.
	if q.Checkpoint() != "e1" {
		t.Errorf("Expected in-memory checkpoint e1, got %s", q.Checkpoint())
	}
	if err := q.Admit(testEvent("e1", PriorityNormal)); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected duplicate rejection after commit, got %v", err)
	}
}

func TestQueue_SeenEviction(t *testing.T) {
	q := NewQueue(&memStore{})
	q.seenLimit = 3

	for i := 0; i < 4; i++ {
		if err := q.Admit(testEvent(fmt.Sprintf("e%d", i), PriorityNormal)); err != nil {
			t.Fatalf("Admit e%d failed: %v", i, err)
		}
	}

	// e0 was evicted from the sliding window, so it is admissible again.
	if err := q.Admit(testEvent("e0", PriorityNormal)); err != nil {
		t.Errorf("Expected evicted id to be admissible, got %v", err)
	}
	// e3 is still in the window.
	if err := q.Admit(testEvent("e3", PriorityNormal)); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected e3 still deduplicated, got %v", err)
	}
}

func TestQueue_MatchChangeClearsSeen(t *testing.T) {
	q := NewQueue(&memStore{})
	q.SetMatchID("m1")

	q.Admit(testEvent("e1", PriorityNormal))
	q.SetMatchID("m2")

	if err := q.Admit(testEvent("e1", PriorityNormal)); err != nil {
		t.Errorf("Expected dedup set cleared on match change, got %v", err)
	}
}
