// ABOUTME: Operator session state shared by every shell command
// ABOUTME: Tracks the attached node and whether lines go to the remote shell

package controller

// Mode selects how an input line is interpreted.
type Mode int

const (
	// ModeTop accepts shell commands such as lsnode and attach.
	ModeTop Mode = iota
	// ModeAgent sends each line to the attached node as a command.
	ModeAgent
	// ModeShell wraps each line in a shell command for the attached node.
	ModeShell
)

func (m Mode) String() string {
	switch m {
	case ModeAgent:
		return "agent"
	case ModeShell:
		return "shell"
	default:
		return "top"
	}
}

// Session is the operator's current state. Handlers receive it explicitly
// and mutate it; nothing else holds shell state.
type Session struct {
	Attached string
	Mode     Mode
	Quit     bool
}

// Attach selects a node and switches to agent mode.
func (s *Session) Attach(host string) {
	s.Attached = host
	s.Mode = ModeAgent
}

// Detach returns to the top level.
func (s *Session) Detach() {
	s.Attached = ""
	s.Mode = ModeTop
}

// IsAttached reports whether a node is selected.
func (s *Session) IsAttached() bool {
	return s.Attached != ""
}
