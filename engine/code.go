package engine

import (
	"errors"
	"strconv"
)

// Code is the integer status reported to the control path. It implements
// error so it can be wrapped with context and recovered with CodeOf.
type Code int

const (
	OK Code = iota
	UnknownNodeType
	NodeNotFound
	NodeAlreadyExists
	NodeTypeAlreadyExists
	InvalidPropertyType
	InvalidPropertyValue
	InvariantViolation
	InvalidInstructionFormat
	InvalidResourceShape
	Closed
)

// Sentinel aliases for errors.Is checks.
var (
	ErrUnknownNodeType          error = UnknownNodeType
	ErrNodeNotFound             error = NodeNotFound
	ErrNodeAlreadyExists        error = NodeAlreadyExists
	ErrNodeTypeAlreadyExists    error = NodeTypeAlreadyExists
	ErrInvalidPropertyType      error = InvalidPropertyType
	ErrInvalidPropertyValue     error = InvalidPropertyValue
	ErrInvariantViolation       error = InvariantViolation
	ErrInvalidInstructionFormat error = InvalidInstructionFormat
	ErrInvalidResourceShape     error = InvalidResourceShape
	ErrClosed                   error = Closed
)

var codeNames = [...]string{
	OK:                       "ok",
	UnknownNodeType:          "unknown node type",
	NodeNotFound:             "node not found",
	NodeAlreadyExists:        "node already exists",
	NodeTypeAlreadyExists:    "node type already exists",
	InvalidPropertyType:      "invalid property type",
	InvalidPropertyValue:     "invalid property value",
	InvariantViolation:       "invariant violation",
	InvalidInstructionFormat: "invalid instruction format",
	InvalidResourceShape:     "invalid resource shape",
	Closed:                   "runtime closed",
}

func (c Code) String() string {
	if c >= 0 && int(c) < len(codeNames) {
		return codeNames[c]
	}

	return "code(" + strconv.Itoa(int(c)) + ")"
}

func (c Code) Error() string {
	return c.String()
}

// CodeOf maps err to its status code. A nil error is OK. Errors that do not
// wrap a Code are reported as InvariantViolation. For joined errors the code
// of the first wrapped Code wins.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}

	var c Code
	if errors.As(err, &c) {
		return c
	}

	return InvariantViolation
}
