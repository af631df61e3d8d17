package eventlog

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"finverseAPI/internal/types/event"
)

// AuditSink persists events into the gamification_events table for audit.
// It is a derived record: inserts run on a small worker pool and failures
// are logged and dropped, never surfaced to the engine.
type AuditSink struct {
	db       *pgxpool.Pool
	workers  int
	jobQueue chan event.Event
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewAuditSink(db *pgxpool.Pool) *AuditSink {
	s := &AuditSink{
		db:       db,
		workers:  2,
		jobQueue: make(chan event.Event, 256),
		stopChan: make(chan struct{}),
	}

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	return s
}

// Record queues the event for insertion. If the queue is full the event
// is dropped; the in-memory log already served it to the UI.
func (s *AuditSink) Record(e event.Event) {
	select {
	case s.jobQueue <- e:
	default:
		log.Printf("AuditSink: queue full, dropping event %s for user %s", e.Type, e.UserID)
	}
}

func (s *AuditSink) worker() {
	defer s.wg.Done()
	for {
		select {
		case e := <-s.jobQueue:
			s.insert(e)
		case <-s.stopChan:
			// Flush whatever is still queued before exiting.
			for {
				select {
				case e := <-s.jobQueue:
					s.insert(e)
				default:
					return
				}
			}
		}
	}
}

func (s *AuditSink) insert(e event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	payload, err := json.Marshal(e.Payload)
	if err != nil {
		log.Printf("AuditSink: failed to marshal payload for event %s: %v", e.ID, err)
		payload = []byte("{}")
	}

	query := `
	INSERT INTO gamification_events (id, event_type, user_id, occurred_at, seq, payload)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO NOTHING
	`

	if _, err := s.db.Exec(ctx, query, e.ID, string(e.Type), e.UserID, e.Timestamp, e.Seq, payload); err != nil {
		log.Printf("AuditSink: failed to insert event %s: %v", e.ID, err)
	}
}

// Close stops the workers after flushing queued events.
func (s *AuditSink) Close() {
	close(s.stopChan)
	s.wg.Wait()
}
