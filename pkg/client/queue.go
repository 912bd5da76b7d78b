package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxQueuedMutations bounds how much offline work a client may buffer.
	MaxQueuedMutations = 50
	// maxRetries is how many replay attempts a mutation gets before it is
	// dropped as failed.
	maxRetries = 3
)

var (
	// ErrQueueFull is returned when the offline queue is at capacity. The
	// caller must surface it immediately; the mutation is not stored.
	ErrQueueFull = errors.New("offline mutation queue is full")

	// ErrPermanent marks a replay failure that retrying cannot fix (the
	// server rejected the mutation). Appliers wrap rejections with it.
	ErrPermanent = errors.New("mutation permanently rejected")
)

// MutationType names an operation the client can buffer while offline.
type MutationType string

const (
	MutationCreateTask     MutationType = "create_task"
	MutationUpdateStatus   MutationType = "update_status"
	MutationUpdateAssignee MutationType = "update_assignee"
	MutationUpdateFields   MutationType = "update_fields"
	MutationDeleteTask     MutationType = "delete_task"
	MutationAddComment     MutationType = "add_comment"
)

// Mutation is one buffered write, kept in the order it was issued.
type Mutation struct {
	ID         string          `json:"id"`
	Type       MutationType    `json:"type"`
	ProjectID  uint64          `json:"project_id"`
	TaskID     uint64          `json:"task_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	RetryCount int             `json:"retry_count"`
}

// Applier replays one mutation against the server. A nil return removes the
// mutation; an ErrPermanent-wrapped return drops it; any other error is
// treated as transient and stops the replay.
type Applier interface {
	Apply(ctx context.Context, m Mutation) error
}

// Queue buffers mutations issued while disconnected and replays them in
// issue order once the connection returns. Replay is single flight: one
// mutation at a time, never past a transient failure.
type Queue struct {
	mu        sync.Mutex
	pending   []Mutation
	replaying bool
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue buffers a mutation. Returns ErrQueueFull at capacity.
func (q *Queue) Enqueue(mutationType MutationType, projectID, taskID uint64, payload json.RawMessage) (Mutation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) >= MaxQueuedMutations {
		return Mutation{}, ErrQueueFull
	}

	m := Mutation{
		ID:         uuid.NewString(),
		Type:       mutationType,
		ProjectID:  projectID,
		TaskID:     taskID,
		Payload:    payload,
		EnqueuedAt: time.Now(),
	}
	q.pending = append(q.pending, m)
	return m, nil
}

// Len returns the number of buffered mutations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// ReplayResult reports what one Replay call did.
type ReplayResult struct {
	Applied []Mutation
	Dropped []Mutation
}

// Replay sends buffered mutations oldest first. It stops at the first
// transient failure so later mutations never overtake an earlier one; a
// mutation that fails transiently maxRetries times, or is rejected with
// ErrPermanent, is dropped and replay moves on. Concurrent Replay calls
// are refused.
func (q *Queue) Replay(ctx context.Context, applier Applier) (ReplayResult, error) {
	q.mu.Lock()
	if q.replaying {
		q.mu.Unlock()
		return ReplayResult{}, errors.New("replay already in progress")
	}
	q.replaying = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.replaying = false
		q.mu.Unlock()
	}()

	var result ReplayResult
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return result, nil
		}
		head := q.pending[0]
		q.mu.Unlock()

		if err := ctx.Err(); err != nil {
			return result, err
		}

		err := applier.Apply(ctx, head)
		switch {
		case err == nil:
			q.dequeue(head.ID)
			result.Applied = append(result.Applied, head)
		case errors.Is(err, ErrPermanent):
			q.dequeue(head.ID)
			result.Dropped = append(result.Dropped, head)
		default:
			q.mu.Lock()
			if len(q.pending) > 0 && q.pending[0].ID == head.ID {
				q.pending[0].RetryCount++
				if q.pending[0].RetryCount >= maxRetries {
					dropped := q.pending[0]
					q.pending = q.pending[1:]
					q.mu.Unlock()
					result.Dropped = append(result.Dropped, dropped)
					continue
				}
			}
			q.mu.Unlock()
			return result, err
		}
	}
}

func (q *Queue) dequeue(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) > 0 && q.pending[0].ID == id {
		q.pending = q.pending[1:]
	}
}

// Snapshot serializes the buffered mutations so callers can persist them
// across restarts.
func (q *Queue) Snapshot() ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return json.Marshal(q.pending)
}

// Restore replaces the queue's contents from a Snapshot. Anything beyond
// capacity is discarded, oldest first wins.
func (q *Queue) Restore(data []byte) error {
	var pending []Mutation
	if err := json.Unmarshal(data, &pending); err != nil {
		return err
	}
	if len(pending) > MaxQueuedMutations {
		pending = pending[:MaxQueuedMutations]
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = pending
	return nil
}
