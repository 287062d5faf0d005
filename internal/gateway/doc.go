// Package gateway implements the prachand coordination server.
//
// # Architecture
//
// The Gateway owns the HTTP listener and the store. Agents and controllers
// talk to it over JSON POST requests:
//
//	┌──────────┐  enroll, get_command,   ┌─────────┐  set_command,      ┌────────────┐
//	│  Agents  │ ───────────────────────▶│ Gateway │◀────────────────── │ Controller │
//	│          │  set_response           │         │  get_response,     │            │
//	└──────────┘                         └────┬────┘  list_nodes        └────────────┘
//	                                          │
//	                                          ▼
//	                                    ┌──────────┐
//	                                    │  Store   │ SQLite or PostgreSQL
//	                                    └──────────┘
//
// # Request Flow
//
// Every route except /enroll, /hello and the health and metrics probes
// passes through the auth.Authenticator, then a scope gate. Handlers lease
// exactly one pooled connection and release it on every path.
//
// Enrollment and command claiming each run as one short transaction on the
// leased connection. A claim is a compare-and-set on the command's sent
// flag, so concurrent pollers never receive the same command.
//
// # Lifecycle
//
//	gw, err := gateway.New(ctx, cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return gw.Run(ctx) // blocks until ctx is canceled
//
// Shutdown waits up to server.shutdown_timeout for in-flight requests and
// then closes the pool.
package gateway
