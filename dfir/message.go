package dfir

import "fmt"

// MessageKind classifies a diagnostic.
type MessageKind int

const (
	TypeMismatch MessageKind = iota
	TerminalDoesNotAcceptImmutableType
	FailedConstraint
	MissingField
	WireCannotFork
	WiredReferenceDoesNotLiveLongEnough
	TerminateLifetimeInputLifetimesNotUnique
	TerminateLifetimeInputLifetimeCannotBeTerminated
	TerminateLifetimeNotAllVariablesInLifetimeConnected
	RequiredTerminalUnconnected
)

var messageKindNames = [...]string{
	TypeMismatch:                                        "TypeMismatch",
	TerminalDoesNotAcceptImmutableType:                  "TerminalDoesNotAcceptImmutableType",
	FailedConstraint:                                    "FailedConstraint",
	MissingField:                                        "MissingField",
	WireCannotFork:                                      "WireCannotFork",
	WiredReferenceDoesNotLiveLongEnough:                 "WiredReferenceDoesNotLiveLongEnough",
	TerminateLifetimeInputLifetimesNotUnique:            "TerminateLifetimeInputLifetimesNotUnique",
	TerminateLifetimeInputLifetimeCannotBeTerminated:    "TerminateLifetimeInputLifetimeCannotBeTerminated",
	TerminateLifetimeNotAllVariablesInLifetimeConnected: "TerminateLifetimeNotAllVariablesInLifetimeConnected",
	RequiredTerminalUnconnected:                         "RequiredTerminalUnconnected",
}

func (k MessageKind) String() string {
	if k >= 0 && int(k) < len(messageKindNames) {
		return messageKindNames[k]
	}
	return "???"
}

// Message is a diagnostic about the program. Terminal is nil for
// node-level messages.
type Message struct {
	Kind     MessageKind
	Node     *Node
	Terminal *Terminal
	Text     string
}

func (m Message) String() string {
	at := "?"
	switch {
	case m.Terminal != nil:
		at = m.Terminal.String()
	case m.Node != nil:
		at = m.Node.String()
	}
	return fmt.Sprintf("%s: %s", at, m.Text)
}

// SetDfirMessage records a message and passes it to the graph's reporter.
func (g *Graph) SetDfirMessage(m Message) {
	g.Messages = append(g.Messages, m)
	if g.Reporter != nil {
		g.Reporter(m)
	}
}

func (g *Graph) nodeMessage(kind MessageKind, n *Node, format string, args ...any) {
	g.SetDfirMessage(Message{Kind: kind, Node: n, Text: fmt.Sprintf(format, args...)})
}

func (g *Graph) terminalMessage(kind MessageKind, t *Terminal, format string, args ...any) {
	g.SetDfirMessage(Message{Kind: kind, Node: t.Node, Terminal: t, Text: fmt.Sprintf(format, args...)})
}

// TerminateLifetimeErrorState is the outcome of checking a
// terminate-lifetime node.
type TerminateLifetimeErrorState int

const (
	NoError TerminateLifetimeErrorState = iota
	InputLifetimesNotUnique
	InputLifetimeCannotBeTerminated
	NotAllVariablesInLifetimeConnected
)

func (s TerminateLifetimeErrorState) String() string {
	switch s {
	case NoError:
		return "NoError"
	case InputLifetimesNotUnique:
		return "InputLifetimesNotUnique"
	case InputLifetimeCannotBeTerminated:
		return "InputLifetimeCannotBeTerminated"
	case NotAllVariablesInLifetimeConnected:
		return "NotAllVariablesInLifetimeConnected"
	}
	return "???"
}
