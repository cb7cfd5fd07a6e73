package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"arena-server/internal/game"
	"arena-server/internal/store"
)

type fakeSink struct {
	mu      sync.Mutex
	batches [][]store.Reward
	err     error
}

func (f *fakeSink) InsertRewards(_ context.Context, batch []store.Reward) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]store.Reward(nil), batch...))
	return f.err
}

func (f *fakeSink) rewards() []store.Reward {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Reward
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

func TestJournalFlushesOnStop(t *testing.T) {
	sink := &fakeSink{}
	j := NewJournal(sink, quietLog())
	j.Track("s1", 2, []game.Event{
		{Kind: game.EventEnemyKilled, Entity: "e1", Source: "bot", Side: game.SideEnemy, Value: 1, Time: 3.5},
		{Kind: game.EventHit, Entity: "bot", Side: game.SidePlayer, Time: 4},
	})
	j.Stop()

	got := sink.rewards()
	if len(got) != 2 {
		t.Fatalf("rewards = %d, want 2", len(got))
	}
	r := got[0]
	if r.SessionID != "s1" || r.Round != 2 || r.Kind != string(game.EventEnemyKilled) || r.Source != "bot" || r.SessionTime != 3.5 {
		t.Errorf("reward = %+v", r)
	}
	if r.CreatedAt.IsZero() {
		t.Error("created_at not stamped")
	}
}

func TestJournalBatchesLargeBursts(t *testing.T) {
	sink := &fakeSink{}
	j := NewJournal(sink, quietLog())
	events := make([]game.Event, journalBatch+10)
	for i := range events {
		events[i] = game.Event{Kind: game.EventIdle, Entity: "bot"}
	}
	j.Track("s1", 1, events)
	j.Stop()

	if n := len(sink.rewards()); n != len(events) {
		t.Errorf("rewards = %d, want %d", n, len(events))
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, b := range sink.batches {
		if len(b) > journalBatch {
			t.Errorf("batch of %d exceeds %d", len(b), journalBatch)
		}
	}
}

func TestJournalSinkErrorDropsBatch(t *testing.T) {
	sink := &fakeSink{err: errors.New("disk full")}
	j := NewJournal(sink, quietLog())
	j.Track("s1", 1, []game.Event{{Kind: game.EventIdle}})
	j.Stop() // must not hang or panic
	if len(sink.rewards()) != 1 {
		t.Error("sink should have been called once")
	}
}

func TestJournalDropsWhenQueueFull(t *testing.T) {
	j := &Journal{rewards: make(chan store.Reward, 1), stop: make(chan struct{}), log: quietLog()}
	j.Track("s1", 1, []game.Event{{Kind: game.EventIdle}, {Kind: game.EventIdle}, {Kind: game.EventIdle}})
	if j.Dropped() != 2 {
		t.Errorf("dropped = %d, want 2", j.Dropped())
	}
}

func TestJournalNilSink(t *testing.T) {
	j := NewJournal(nil, quietLog())
	j.Track("s1", 1, []game.Event{{Kind: game.EventIdle}})
	j.Stop()
}
