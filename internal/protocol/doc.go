// Package protocol defines the JSON bodies of the prachand coordination API.
//
// The server, the agent and the controller all marshal these types, so a
// field rename here is a wire change. Command payloads stay opaque to the
// queue: the server stores {"command": ..., "arguments": ...} verbatim and
// only agents interpret it through CommandPayload.Decode.
package protocol
