package terminal

import (
	"github.com/spirit-labs/opi/protocol"
)

// Handler serves the outputs addressed to one device. A returned error, a panic or a result outside the defined
// results all count as Failure for that output only.
type Handler interface {
	Output(spec protocol.OutputSpec) (protocol.Result, error)
}

type HandlerFunc func(spec protocol.OutputSpec) (protocol.Result, error)

func (f HandlerFunc) Output(spec protocol.OutputSpec) (protocol.Result, error) {
	return f(spec)
}
