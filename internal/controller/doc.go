// Package controller implements the operator shell used by prachand-ctl.
//
// The shell starts at the top level, where lsnode lists enrolled nodes and
// attach selects one. While attached, each line is queued as a command on
// that node ("uptime" becomes command "uptime" with no arguments) and the
// shell waits for the node to record a result. "shell" enters shell mode,
// where every line is sent as the single argument of a shell command until
// "exit".
//
// All state lives in a Session value handed to each command.
package controller
