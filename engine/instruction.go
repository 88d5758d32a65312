package engine

import (
	"fmt"
	"math"
)

// Op identifies an instruction. The values match the first element of the
// tuple encoding.
type Op int

const (
	OpCreateNode Op = iota
	OpDeleteNode
	OpAppendChild
	OpSetProperty
	OpActivateRoots
	OpCommitUpdates
)

func (op Op) String() string {
	switch op {
	case OpCreateNode:
		return "createNode"
	case OpDeleteNode:
		return "deleteNode"
	case OpAppendChild:
		return "appendChild"
	case OpSetProperty:
		return "setProperty"
	case OpActivateRoots:
		return "activateRoots"
	case OpCommitUpdates:
		return "commitUpdates"
	default:
		return fmt.Sprintf("op(%d)", int(op))
	}
}

// Instruction is one decoded graph mutation. Which fields are meaningful
// depends on Op:
//
//	OpCreateNode     Node, Kind
//	OpDeleteNode     Node
//	OpAppendChild    Node (parent), Child, Outlet
//	OpSetProperty    Node, Key, Value
//	OpActivateRoots  Roots
//	OpCommitUpdates  -
type Instruction struct {
	Op     Op
	Node   int32
	Kind   string
	Child  int32
	Outlet int
	Key    string
	Value  any
	Roots  []int32
}

// Create returns a CreateNode instruction.
func Create(id int32, kind string) Instruction {
	return Instruction{Op: OpCreateNode, Node: id, Kind: kind}
}

// Delete returns a DeleteNode instruction.
func Delete(id int32) Instruction {
	return Instruction{Op: OpDeleteNode, Node: id}
}

// Append returns an AppendChild instruction.
func Append(parent, child int32, outlet int) Instruction {
	return Instruction{Op: OpAppendChild, Node: parent, Child: child, Outlet: outlet}
}

// Set returns a SetProperty instruction.
func Set(id int32, key string, value any) Instruction {
	return Instruction{Op: OpSetProperty, Node: id, Key: key, Value: value}
}

// Activate returns an ActivateRoots instruction.
func Activate(roots ...int32) Instruction {
	return Instruction{Op: OpActivateRoots, Roots: roots}
}

// Commit returns a CommitUpdates instruction.
func Commit() Instruction {
	return Instruction{Op: OpCommitUpdates}
}

// Tuple returns the array encoding of the instruction.
func (in Instruction) Tuple() []any {
	switch in.Op {
	case OpCreateNode:
		return []any{int(in.Op), in.Node, in.Kind}
	case OpDeleteNode:
		return []any{int(in.Op), in.Node}
	case OpAppendChild:
		return []any{int(in.Op), in.Node, in.Child, in.Outlet}
	case OpSetProperty:
		return []any{int(in.Op), in.Node, in.Key, in.Value}
	case OpActivateRoots:
		roots := make([]any, len(in.Roots))
		for i, id := range in.Roots {
			roots[i] = id
		}

		return []any{int(in.Op), roots}
	default:
		return []any{int(in.Op)}
	}
}

var tupleArity = map[Op]int{
	OpCreateNode:    3,
	OpDeleteNode:    2,
	OpAppendChild:   4,
	OpSetProperty:   4,
	OpActivateRoots: 2,
	OpCommitUpdates: 1,
}

// ParseBatch converts a decoded array of tuples into instructions. The first
// malformed element fails the whole batch with InvalidInstructionFormat.
func ParseBatch(raw []any) ([]Instruction, error) {
	out := make([]Instruction, 0, len(raw))

	for i, item := range raw {
		tuple, ok := item.([]any)
		if !ok {
			return nil, fmt.Errorf("engine: instruction %d: %w: expected array, got %T",
				i, InvalidInstructionFormat, item)
		}

		in, err := ParseInstruction(tuple)
		if err != nil {
			return nil, fmt.Errorf("engine: instruction %d: %w", i, err)
		}

		out = append(out, in)
	}

	return out, nil
}

// ParseInstruction converts one decoded tuple into an instruction.
//
//nolint:cyclop
func ParseInstruction(tuple []any) (Instruction, error) {
	if len(tuple) == 0 {
		return Instruction{}, fmt.Errorf("%w: empty tuple", InvalidInstructionFormat)
	}

	opNum, ok := integral(tuple[0])
	if !ok {
		return Instruction{}, fmt.Errorf("%w: opcode %v", InvalidInstructionFormat, tuple[0])
	}

	op := Op(opNum)

	n, known := tupleArity[op]
	if !known {
		return Instruction{}, fmt.Errorf("%w: unknown opcode %d", InvalidInstructionFormat, opNum)
	}

	if len(tuple) != n {
		return Instruction{}, fmt.Errorf("%w: %s takes %d elements, got %d", InvalidInstructionFormat, op, n, len(tuple))
	}

	in := Instruction{Op: op}

	var err error

	switch op {
	case OpCreateNode:
		in.Node, err = nodeID(tuple[1])
		if err == nil {
			in.Kind, ok = tuple[2].(string)
			if !ok || in.Kind == "" {
				err = fmt.Errorf("%w: node kind %v", InvalidInstructionFormat, tuple[2])
			}
		}
	case OpDeleteNode:
		in.Node, err = nodeID(tuple[1])
	case OpAppendChild:
		in.Node, err = nodeID(tuple[1])
		if err == nil {
			in.Child, err = nodeID(tuple[2])
		}

		if err == nil {
			outlet, isInt := integral(tuple[3])
			if !isInt {
				err = fmt.Errorf("%w: outlet %v", InvalidInstructionFormat, tuple[3])
			}

			in.Outlet = int(outlet)
		}
	case OpSetProperty:
		in.Node, err = nodeID(tuple[1])
		if err == nil {
			in.Key, ok = tuple[2].(string)
			if !ok || in.Key == "" {
				err = fmt.Errorf("%w: property key %v", InvalidInstructionFormat, tuple[2])
			}
		}

		in.Value = tuple[3]
	case OpActivateRoots:
		in.Roots, err = rootList(tuple[1])
	case OpCommitUpdates:
	}

	if err != nil {
		return Instruction{}, err
	}

	return in, nil
}

func rootList(v any) ([]int32, error) {
	switch list := v.(type) {
	case []any:
		roots := make([]int32, 0, len(list))

		for _, item := range list {
			id, err := nodeID(item)
			if err != nil {
				return nil, err
			}

			roots = append(roots, id)
		}

		return roots, nil
	case []int32:
		return append([]int32(nil), list...), nil
	default:
		return nil, fmt.Errorf("%w: root list %T", InvalidInstructionFormat, v)
	}
}

func nodeID(v any) (int32, error) {
	n, ok := integral(v)
	if !ok || n < math.MinInt32 || n > math.MaxInt32 {
		return 0, fmt.Errorf("%w: node id %v", InvalidInstructionFormat, v)
	}

	return int32(n), nil
}

// integral accepts any numeric value that holds a whole number.
func integral(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case uint64:
		if t > math.MaxInt64 {
			return 0, false
		}

		return int64(t), true
	case bool, nil:
		return 0, false
	}

	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}

	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}

	return int64(f), true
}
