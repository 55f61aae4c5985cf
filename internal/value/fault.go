// Package value implements the tagged IEC value model and type registry (C1).
package value

import "fmt"

// FaultKind enumerates the tagged error sum of the error-handling design.
// Every fallible operation in this module and its callers returns one of
// these wrapped in a *Fault rather than panicking.
type FaultKind uint8

const (
	FaultTypeMismatch FaultKind = iota
	FaultOverflow
	FaultDivisionByZero
	FaultIndexOutOfBounds
	FaultOutOfRange
	FaultNullReference
	FaultInvalidReference
	FaultUndefinedVariable
	FaultUndefinedFunction
	FaultUndefinedFunctionBlock
	FaultUndefinedProgram
	FaultInvalidArgumentCount
	FaultInvalidControlFlow
	FaultInvalidFrame
	FaultInvalidConfig
	FaultInvalidIoAddress
	FaultIoDriver
	FaultWatchdogTimeout
	FaultSimulation
	FaultTimeout
	FaultControlError
	FaultThreadSpawn
)

var faultNames = map[FaultKind]string{
	FaultTypeMismatch:           "TypeMismatch",
	FaultOverflow:               "Overflow",
	FaultDivisionByZero:         "DivisionByZero",
	FaultIndexOutOfBounds:       "IndexOutOfBounds",
	FaultOutOfRange:             "OutOfRange",
	FaultNullReference:          "NullReference",
	FaultInvalidReference:       "InvalidReference",
	FaultUndefinedVariable:      "UndefinedVariable",
	FaultUndefinedFunction:      "UndefinedFunction",
	FaultUndefinedFunctionBlock: "UndefinedFunctionBlock",
	FaultUndefinedProgram:       "UndefinedProgram",
	FaultInvalidArgumentCount:   "InvalidArgumentCount",
	FaultInvalidControlFlow:     "InvalidControlFlow",
	FaultInvalidFrame:           "InvalidFrame",
	FaultInvalidConfig:          "InvalidConfig",
	FaultInvalidIoAddress:       "InvalidIoAddress",
	FaultIoDriver:               "IoDriver",
	FaultWatchdogTimeout:        "WatchdogTimeout",
	FaultSimulation:             "SimulationFault",
	FaultTimeout:                "Timeout",
	FaultControlError:           "ControlError",
	FaultThreadSpawn:            "ThreadSpawn",
}

func (k FaultKind) String() string {
	if n, ok := faultNames[k]; ok {
		return n
	}
	return "UnknownFault"
}

// Fault is the concrete error type carrying a FaultKind plus structured
// detail. It satisfies the error interface so it composes with fmt.Errorf's
// %w and ordinary error-handling idioms, while still letting callers switch
// on Kind without string matching.
type Fault struct {
	Kind    FaultKind
	Message string

	// Optional structured detail, populated only by the kinds that need it.
	Index, Lower, Upper int64
	Name                string
	Expected, Got       int
	FrameID             uint64

	Wrapped error
}

func (f *Fault) Error() string {
	if f.Message != "" {
		return fmt.Sprintf("%s: %s", f.Kind, f.Message)
	}
	return f.Kind.String()
}

func (f *Fault) Unwrap() error { return f.Wrapped }

func NewFault(kind FaultKind, format string, args ...interface{}) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func WrapFault(kind FaultKind, err error, format string, args ...interface{}) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...), Wrapped: err}
}

func IndexOutOfBounds(index, lower, upper int64) *Fault {
	return &Fault{
		Kind:    FaultIndexOutOfBounds,
		Message: fmt.Sprintf("index %d outside [%d, %d]", index, lower, upper),
		Index:   index, Lower: lower, Upper: upper,
	}
}

func InvalidArgumentCount(expected, got int) *Fault {
	return &Fault{
		Kind:     FaultInvalidArgumentCount,
		Message:  fmt.Sprintf("expected %d arguments, got %d", expected, got),
		Expected: expected, Got: got,
	}
}

func UndefinedVariable(name string) *Fault {
	return &Fault{Kind: FaultUndefinedVariable, Message: name, Name: name}
}

func InvalidFrame(id uint64) *Fault {
	return &Fault{Kind: FaultInvalidFrame, Message: fmt.Sprintf("frame %d is not live", id), FrameID: id}
}
