// Package client is the HTTP client for prachand-server, shared by the
// agent and the controller shell.
//
// Every call is a JSON POST carrying the caller's token. Transport errors
// and 5xx answers are retried (DefaultRetryAttempts tries, DefaultRetryDelay
// apart); 4xx answers are returned at once as *APIError, except where an
// endpoint documents a status as a normal result:
//
//   - GetResponse: 404 becomes ErrNoResponse
//   - SetResponse: 409 becomes ErrDuplicateResponse
//
// SetCommand and GetCommand commit on the server before it answers, so they
// are retried only when the request never left the client. A lost answer
// therefore surfaces as an error instead of a duplicate: a SetCommand error
// may still have queued the command, and a GetCommand error may have
// claimed one that is never delivered. The remaining calls are safe to
// repeat. A repeated Enroll rotates the key again and returns the newest
// token, and a repeated SetResponse reports ErrDuplicateResponse.
//
// IsUnauthorized tells an agent its token went stale and it should enroll
// again.
package client
