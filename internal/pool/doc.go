// Package pool provides the bounded connection pool behind prachand-server.
//
// A Pool owns a fixed number of connections to SQLite (modernc.org/sqlite)
// or PostgreSQL (github.com/lib/pq). Every connection prepares the full set
// of named operations once, at construction, so request handlers only bind
// arguments:
//
//	c, err := p.Acquire(ctx)
//	if err != nil {
//	    return err
//	}
//	defer p.Release(c)
//	rows, err := c.Query(ctx, "get_command", hostID)
//
// Acquire waits while every connection is leased. Exhaustion is resolved by
// backpressure rather than by rejecting the caller.
package pool
