// ABOUTME: Wire types exchanged between prachand-server, agents, and controllers
// ABOUTME: JSON request and response bodies for every coordination endpoint

package protocol

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/go-viper/mapstructure/v2"
)

// Endpoint paths
const (
	PathEnroll      = "/enroll"
	PathGetCommand  = "/get_command"
	PathSetCommand  = "/set_command"
	PathGetResponse = "/get_response"
	PathSetResponse = "/set_response"
	PathListNodes   = "/list_nodes"
	PathHello       = "/hello"
)

// HelloMessage is the body served by the liveness probe.
const HelloMessage = "hello world!"

// Messages carried in error bodies. Clients match on status codes, not text.
const (
	MsgEnrollDenied      = "Enrollment has been denied."
	MsgEnrollBadRequest  = "Enrollment failed due to bad request"
	MsgEnrollServerError = "Enrollment failed due to server error."
	MsgBadRequest        = "Request failed due to bad request"
	MsgDatabaseError     = "Request failed due to database error."
	MsgServerError       = "Request failed due to server error."
	MsgDuplicate         = "Request closed due to duplicate request"
	MsgUnauthorized      = "Request is not authenticated"
	MsgForbidden         = "Request forbidden for this scope"
	MsgNoResponse        = "No response was found"
)

// MessageResponse is the generic error body.
type MessageResponse struct {
	Message string `json:"message"`
}

// HostDetails is the descriptive information an agent reports when it
// enrolls. Every field is optional.
type HostDetails struct {
	OSArch          string `json:"os_arch,omitempty" mapstructure:"os_arch"`
	OSBuild         string `json:"os_build,omitempty" mapstructure:"os_build"`
	OSMajor         string `json:"os_major,omitempty" mapstructure:"os_major"`
	OSMinor         string `json:"os_minor,omitempty" mapstructure:"os_minor"`
	OSName          string `json:"os_name,omitempty" mapstructure:"os_name"`
	OSPlatform      string `json:"os_platform,omitempty" mapstructure:"os_platform"`
	HardwareVendor  string `json:"hw_vendor,omitempty" mapstructure:"hw_vendor"`
	HardwareModel   string `json:"hw_model,omitempty" mapstructure:"hw_model"`
	HardwareVersion string `json:"hw_version,omitempty" mapstructure:"hw_version"`
	CPULogicalCores string `json:"hw_cpu_logical_core,omitempty" mapstructure:"hw_cpu_logical_core"`
	CPUType         string `json:"hw_cpu_type,omitempty" mapstructure:"hw_cpu_type"`
	PhysicalMemory  string `json:"hw_physical_memory,omitempty" mapstructure:"hw_physical_memory"`
	Hostname        string `json:"host_name,omitempty" mapstructure:"host_name"`
	AgentVersion    string `json:"agent_version,omitempty" mapstructure:"agent_version"`
}

// DecodeHostDetails converts a free-form host_details object into
// HostDetails. Numbers and booleans are accepted and stringified; unknown
// keys are ignored.
func DecodeHostDetails(raw map[string]any) (HostDetails, error) {
	var d HostDetails
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &d,
		WeaklyTypedInput: true,
		DecodeHook:       jsonNumberToString,
	})
	if err != nil {
		return d, fmt.Errorf("creating host details decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return d, fmt.Errorf("decoding host details: %w", err)
	}
	return d, nil
}

// jsonNumberToString keeps numbers decoded with UseNumber verbatim.
func jsonNumberToString(from, to reflect.Type, data any) (any, error) {
	if n, ok := data.(json.Number); ok {
		return n.String(), nil
	}
	return data, nil
}

// EnrollRequest is the body of /enroll.
type EnrollRequest struct {
	HostIdentifier string      `json:"host_identifier"`
	HostDetails    HostDetails `json:"host_details"`
}

// EnrollResponse is returned by a successful enrollment.
type EnrollResponse struct {
	Token       string `json:"token"`
	NodeInvalid bool   `json:"node_invalid"`
}

// EnrollFailure is returned when enrollment is refused.
type EnrollFailure struct {
	Message     string `json:"message"`
	NodeKey     string `json:"node_key"`
	NodeInvalid bool   `json:"node_invalid"`
}

// GetCommandRequest is the body of /get_command.
type GetCommandRequest struct {
	HostIdentifier string `json:"host_identifier"`
}

// GetCommandResponse carries the claimed command. ID 0 with an empty
// string command means there is no work.
type GetCommandResponse struct {
	ID      uint64          `json:"id"`
	Command json.RawMessage `json:"command"`
}

// NoCommand is the body returned when a node's queue is empty.
var NoCommand = GetCommandResponse{ID: 0, Command: json.RawMessage(`""`)}

// HasWork reports whether the response carries a command.
func (r *GetCommandResponse) HasWork() bool {
	return r.ID != 0
}

// CommandPayload is the opaque payload stored for each command.
type CommandPayload struct {
	Command   json.RawMessage `json:"command"`
	Arguments json.RawMessage `json:"arguments"`
}

// Decode interprets the payload the way agents execute it: a command name
// plus string arguments. Non-string arguments are rendered as JSON.
func (p CommandPayload) Decode() (name string, args []string, err error) {
	if err := json.Unmarshal(p.Command, &name); err != nil {
		return "", nil, fmt.Errorf("decoding command name: %w", err)
	}

	if len(p.Arguments) == 0 || string(p.Arguments) == "null" {
		return name, nil, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(p.Arguments, &raw); err != nil {
		// A single scalar argument
		raw = []json.RawMessage{p.Arguments}
	}
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			args = append(args, s)
			continue
		}
		args = append(args, string(r))
	}
	return name, args, nil
}

// SetCommandRequest is the body of /set_command.
type SetCommandRequest struct {
	HostIdentifier string   `json:"host_identifier"`
	Command        string   `json:"command"`
	Arguments      []string `json:"arguments"`
}

// SetCommandResponse carries the id assigned to a queued command.
type SetCommandResponse struct {
	ID uint64 `json:"id"`
}

// GetResponseRequest is the body of /get_response.
type GetResponseRequest struct {
	HostIdentifier string `json:"host_identifier"`
	CommandID      uint64 `json:"command_id"`
}

// GetResponseResponse carries a recorded result, or MsgNoResponse with 404.
type GetResponseResponse struct {
	HostIdentifier string `json:"host_identifier"`
	CommandID      uint64 `json:"command_id"`
	Response       string `json:"response"`
}

// SetResponseRequest is the body of /set_response.
type SetResponseRequest struct {
	HostIdentifier string `json:"host_identifier"`
	CommandID      uint64 `json:"command_id"`
	Response       string `json:"response"`
}

// ListNodesRequest is the body of /list_nodes. Zero values are omitted so
// the server applies its defaults.
type ListNodesRequest struct {
	LastSeen uint64 `json:"last_seen,omitempty"`
	ID       uint64 `json:"id,omitempty"`
	Limit    uint64 `json:"limit,omitempty"`
}

// NodeSummary is one entry of a ListNodes page.
type NodeSummary struct {
	ID             uint64 `json:"id"`
	HostIdentifier string `json:"host_identifier"`
	Hostname       string `json:"hostname"`
	OSName         string `json:"os_name"`
	AgentVersion   string `json:"agent_version"`
}

// ListNodesResponse is a page of nodes in ascending id order.
type ListNodesResponse struct {
	Nodes []NodeSummary `json:"nodes"`
}
