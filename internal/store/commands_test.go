// ABOUTME: Tests for the command and response queues
// ABOUTME: Covers FIFO claiming, claim exclusivity under concurrency, and write-once responses

package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func claim(t *testing.T, sess *Session, hostID string) *Command {
	t.Helper()
	ctx := context.Background()
	var cmd *Command
	err := sess.InTx(ctx, func(tx *Session) error {
		var err error
		cmd, err = tx.ClaimCommand(ctx, hostID, time.Now())
		return err
	})
	require.NoError(t, err)
	return cmd
}

func TestEnqueueCommand_AssignsIncreasingIDs(t *testing.T) {
	s := newTestStore(t)
	sess := acquire(t, s)
	ctx := context.Background()

	id1, err := sess.EnqueueCommand(ctx, "abc", []byte(`{"command":"ping"}`), time.Now())
	require.NoError(t, err)
	id2, err := sess.EnqueueCommand(ctx, "abc", []byte(`{"command":"ping"}`), time.Now())
	require.NoError(t, err)

	assert.Equal(t, int64(1), id1)
	assert.Greater(t, id2, id1)
}

func TestClaimCommand_OldestFirstAndOnlyOnce(t *testing.T) {
	s := newTestStore(t)
	sess := acquire(t, s)
	ctx := context.Background()

	queued := time.Unix(1_700_000_000, 0).UTC()
	first, err := sess.EnqueueCommand(ctx, "abc", []byte(`{"command":"first"}`), queued)
	require.NoError(t, err)
	second, err := sess.EnqueueCommand(ctx, "abc", []byte(`{"command":"second"}`), queued)
	require.NoError(t, err)
	_, err = sess.EnqueueCommand(ctx, "other", []byte(`{"command":"elsewhere"}`), queued)
	require.NoError(t, err)

	cmd := claim(t, sess, "abc")
	require.NotNil(t, cmd)
	assert.Equal(t, first, cmd.ID)
	assert.Equal(t, `{"command":"first"}`, string(cmd.Payload))
	assert.Equal(t, queued, cmd.QueuedAt)
	assert.True(t, cmd.Sent)

	cmd = claim(t, sess, "abc")
	require.NotNil(t, cmd)
	assert.Equal(t, second, cmd.ID)

	assert.Nil(t, claim(t, sess, "abc"), "sent commands must never be returned again")
	assert.Nil(t, claim(t, sess, "nobody"))
}

func TestMarkCommandSent_IsCompareAndSet(t *testing.T) {
	s := newTestStore(t)
	sess := acquire(t, s)
	ctx := context.Background()

	id, err := sess.EnqueueCommand(ctx, "abc", []byte(`{}`), time.Now())
	require.NoError(t, err)

	ok, err := sess.MarkCommandSent(ctx, id, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = sess.MarkCommandSent(ctx, id, time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "second mark must lose")
}

func TestClaimCommand_ConcurrentPollersNeverShareACommand(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const commands = 20
	setup := acquire(t, s)
	for i := 0; i < commands; i++ {
		_, err := setup.EnqueueCommand(ctx, "abc", []byte(`{"command":"ping"}`), time.Now())
		require.NoError(t, err)
	}

	var (
		mu      sync.Mutex
		claimed = map[int64]int{}
		wg      sync.WaitGroup
	)
	for w := 0; w < 3; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < commands; i++ {
				sess, err := s.Acquire(ctx)
				if err != nil {
					t.Errorf("acquire: %v", err)
					return
				}
				var cmd *Command
				err = sess.InTx(ctx, func(tx *Session) error {
					var err error
					cmd, err = tx.ClaimCommand(ctx, "abc", time.Now())
					return err
				})
				sess.Release()
				if err != nil {
					t.Errorf("claim: %v", err)
					return
				}
				if cmd != nil {
					mu.Lock()
					claimed[cmd.ID]++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, commands, "every command should be claimed")
	for id, n := range claimed {
		assert.Equal(t, 1, n, "command %d claimed %d times", id, n)
	}
}

func TestAddResponse_WriteOnce(t *testing.T) {
	s := newTestStore(t)
	sess := acquire(t, s)
	ctx := context.Background()

	_, err := sess.GetResponse(ctx, "abc", 1)
	assert.ErrorIs(t, err, ErrNotFound)

	ts := time.Unix(1_700_000_123, 0).UTC()
	require.NoError(t, sess.AddResponse(ctx, &Response{HostIdentifier: "abc", CommandID: 1, Response: "ok", Timestamp: ts}))

	err = sess.AddResponse(ctx, &Response{HostIdentifier: "abc", CommandID: 1, Response: "changed"})
	assert.ErrorIs(t, err, ErrDuplicateResponse)

	r, err := sess.GetResponse(ctx, "abc", 1)
	require.NoError(t, err)
	assert.Equal(t, &Response{HostIdentifier: "abc", CommandID: 1, Response: "ok", Timestamp: ts}, r)

	// Same command id for a different host is a different pair
	require.NoError(t, sess.AddResponse(ctx, &Response{HostIdentifier: "def", CommandID: 1, Response: "other"}))
}

func TestAddResponse_ConcurrentSubmissionsOneWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := s.Acquire(ctx)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			defer sess.Release()
			err = sess.InTx(ctx, func(tx *Session) error {
				return tx.AddResponse(ctx, &Response{HostIdentifier: "abc", CommandID: 9, Response: "ok"})
			})
			mu.Lock()
			defer mu.Unlock()
			switch err {
			case nil:
				successes++
			case ErrDuplicateResponse:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 3, conflicts)
}
