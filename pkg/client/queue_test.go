package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedApplier struct {
	applied []Mutation
	// errs maps a mutation's position in the applied sequence to the error
	// to return for that attempt.
	errs map[int]error
	call int
}

func (a *scriptedApplier) Apply(ctx context.Context, m Mutation) error {
	defer func() { a.call++ }()
	if err, ok := a.errs[a.call]; ok {
		return err
	}
	a.applied = append(a.applied, m)
	return nil
}

func enqueueN(t *testing.T, q *Queue, n int) []Mutation {
	t.Helper()
	mutations := make([]Mutation, 0, n)
	for i := 0; i < n; i++ {
		payload, err := json.Marshal(map[string]string{"title": fmt.Sprintf("task %d", i)})
		require.NoError(t, err)
		m, err := q.Enqueue(MutationCreateTask, 1, 0, payload)
		require.NoError(t, err)
		mutations = append(mutations, m)
	}
	return mutations
}

func TestEnqueueRejectsWhenFull(t *testing.T) {
	q := NewQueue()
	enqueueN(t, q, MaxQueuedMutations)

	_, err := q.Enqueue(MutationUpdateStatus, 1, 2, nil)

	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, MaxQueuedMutations, q.Len())
}

func TestReplayPreservesIssueOrder(t *testing.T) {
	q := NewQueue()
	mutations := enqueueN(t, q, 5)
	applier := &scriptedApplier{}

	result, err := q.Replay(context.Background(), applier)

	require.NoError(t, err)
	assert.Equal(t, 0, q.Len())
	require.Len(t, result.Applied, 5)
	for i, m := range applier.applied {
		assert.Equal(t, mutations[i].ID, m.ID)
	}
}

func TestReplayStopsAtTransientFailure(t *testing.T) {
	q := NewQueue()
	mutations := enqueueN(t, q, 3)
	applier := &scriptedApplier{errs: map[int]error{1: errors.New("connection reset")}}

	_, err := q.Replay(context.Background(), applier)

	require.Error(t, err)
	// the first applied, the second failed in place, the third never ran
	assert.Equal(t, 2, q.Len())
	require.Len(t, applier.applied, 1)
	assert.Equal(t, mutations[0].ID, applier.applied[0].ID)

	snapshot, err := q.Snapshot()
	require.NoError(t, err)
	var pending []Mutation
	require.NoError(t, json.Unmarshal(snapshot, &pending))
	assert.Equal(t, mutations[1].ID, pending[0].ID)
	assert.Equal(t, 1, pending[0].RetryCount)
}

func TestReplayDropsMutationAfterMaxRetries(t *testing.T) {
	q := NewQueue()
	mutations := enqueueN(t, q, 2)
	transient := errors.New("connection reset")
	applier := &scriptedApplier{errs: map[int]error{0: transient, 1: transient, 2: transient}}

	// two failed replays leave the head in place with its retries counted
	for i := 0; i < 2; i++ {
		_, err := q.Replay(context.Background(), applier)
		require.Error(t, err)
		assert.Equal(t, 2, q.Len())
	}

	// the third transient failure exhausts the head's retries; replay drops
	// it and carries on with the rest
	result, err := q.Replay(context.Background(), applier)

	require.NoError(t, err)
	require.Len(t, result.Dropped, 1)
	assert.Equal(t, mutations[0].ID, result.Dropped[0].ID)
	require.Len(t, result.Applied, 1)
	assert.Equal(t, mutations[1].ID, result.Applied[0].ID)
	assert.Equal(t, 0, q.Len())
}

func TestReplayDropsPermanentRejections(t *testing.T) {
	q := NewQueue()
	mutations := enqueueN(t, q, 3)
	applier := &scriptedApplier{errs: map[int]error{
		1: fmt.Errorf("%w: 422: assignee not a member", ErrPermanent),
	}}

	result, err := q.Replay(context.Background(), applier)

	require.NoError(t, err)
	assert.Equal(t, 0, q.Len())
	require.Len(t, result.Dropped, 1)
	assert.Equal(t, mutations[1].ID, result.Dropped[0].ID)
	require.Len(t, result.Applied, 2)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	q := NewQueue()
	mutations := enqueueN(t, q, 4)

	snapshot, err := q.Snapshot()
	require.NoError(t, err)

	restored := NewQueue()
	require.NoError(t, restored.Restore(snapshot))
	assert.Equal(t, 4, restored.Len())

	applier := &scriptedApplier{}
	result, err := restored.Replay(context.Background(), applier)
	require.NoError(t, err)
	require.Len(t, result.Applied, 4)
	assert.Equal(t, mutations[0].ID, result.Applied[0].ID)
}

func TestRestoreRejectsGarbage(t *testing.T) {
	q := NewQueue()
	assert.Error(t, q.Restore([]byte("not json")))
}

func TestReplayHonorsContextCancellation(t *testing.T) {
	q := NewQueue()
	enqueueN(t, q, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Replay(ctx, &scriptedApplier{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, q.Len())
}
