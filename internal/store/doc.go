// Package store provides persistent storage for prachand-server.
//
// # Architecture
//
// Store owns a pool.Pool. Every request leases one connection as a Session,
// runs a bounded sequence of named operations on it, and releases it:
//
//	sess, err := st.Acquire(ctx)
//	if err != nil {
//	    return err
//	}
//	defer sess.Release()
//	err = sess.InTx(ctx, func(tx *store.Session) error {
//	    cmd, err = tx.ClaimCommand(ctx, hostID, time.Now())
//	    return err
//	})
//
// Both SQLite (modernc.org/sqlite) and PostgreSQL (github.com/lib/pq) are
// supported; the schema differs only in the auto-increment column type.
//
// # Data Models
//
//   - Node: an enrolled agent with its current key and host details
//   - Controller: an operator identity and its key
//   - Command: a queued unit of work, claimed at most once
//   - Response: the write-once result of a command
//
// # Concurrency
//
// Claiming a command is a compare-and-set on its sent flag, so concurrent
// pollers never receive the same command. Responses are guarded by a
// primary key on (host_identifier, command_id) in addition to the
// check-before-insert.
//
// # Timestamps
//
// All timestamps are stored as unix seconds.
package store
