package main

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"arena-server/internal/game"
	"arena-server/internal/store"
)

const (
	journalQueue    = 4096
	journalBatch    = 256
	journalInterval = 2 * time.Second
)

// RewardSink persists batches of training rewards.
type RewardSink interface {
	InsertRewards(ctx context.Context, batch []store.Reward) error
}

// Journal records training events with batched background writes.
type Journal struct {
	sink    RewardSink
	rewards chan store.Reward
	stop    chan struct{}
	wg      sync.WaitGroup
	log     logrus.FieldLogger

	mu      sync.Mutex
	dropped int
}

// NewJournal creates and starts the background writer.
func NewJournal(sink RewardSink, log logrus.FieldLogger) *Journal {
	j := &Journal{
		sink:    sink,
		rewards: make(chan store.Reward, journalQueue),
		stop:    make(chan struct{}),
		log:     log,
	}
	j.wg.Add(1)
	go j.writer()
	return j
}

// Track enqueues the events of one broadcast. It never blocks the tick loop:
// when the queue is full the remaining events are dropped.
func (j *Journal) Track(sessionID string, round int, events []game.Event) {
	now := time.Now().UTC()
	for _, ev := range events {
		r := store.Reward{
			SessionID:   sessionID,
			Round:       round,
			Kind:        string(ev.Kind),
			EntityID:    ev.Entity,
			Source:      ev.Source,
			Side:        ev.Side,
			Value:       ev.Value,
			SessionTime: ev.Time,
			CreatedAt:   now,
		}
		select {
		case j.rewards <- r:
		default:
			j.mu.Lock()
			j.dropped++
			j.mu.Unlock()
		}
	}
}

// Dropped returns how many events were discarded on a full queue.
func (j *Journal) Dropped() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

// Stop flushes queued events and stops the writer.
func (j *Journal) Stop() {
	close(j.stop)
	j.wg.Wait()
}

func (j *Journal) writer() {
	defer j.wg.Done()

	batch := make([]store.Reward, 0, journalBatch)
	ticker := time.NewTicker(journalInterval)
	defer ticker.Stop()

	for {
		select {
		case r := <-j.rewards:
			batch = append(batch, r)
			if len(batch) >= journalBatch {
				j.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				j.flush(batch)
				batch = batch[:0]
			}
		case <-j.stop:
			for {
				select {
				case r := <-j.rewards:
					batch = append(batch, r)
					if len(batch) >= journalBatch {
						j.flush(batch)
						batch = batch[:0]
					}
				default:
					j.flush(batch)
					return
				}
			}
		}
	}
}

func (j *Journal) flush(batch []store.Reward) {
	if j.sink == nil || len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := j.sink.InsertRewards(ctx, batch); err != nil {
		j.log.WithError(err).WithField("count", len(batch)).Warn("journal flush failed, batch dropped")
	}
}
