// Package agent is the node side of prachand.
//
// On first start an agent picks a random UUID as its host identifier,
// reports its host details to /enroll, and saves the identifier and token
// to a TOML state file. Later starts reuse the saved state.
//
// It then polls /get_command every poll interval. Claimed commands are
// dispatched by name through a Registry and the returned text is posted
// to /set_response. Built-in commands:
//
//   - ping: answers "pong"
//   - sysinfo: answers the host details as JSON
//   - shell: acknowledges the command without executing it
//
// When the server rejects the token (another enrollment rotated the key)
// the agent enrolls again under the same identifier.
package agent
