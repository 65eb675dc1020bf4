package emulator

import (
	"errors"
	"fmt"

	"pcodevm/pcode"
)

// ErrorKind classifies why Step (or the Machine/Cursor layer above it)
// failed.
type ErrorKind int

const (
	// PreconditionViolation: wrong arity, missing output varnode, a
	// size mismatch the opcode's contract forbids. Fatal.
	PreconditionViolation ErrorKind = iota
	// UnsupportedOpcode: the opcode tag has no execution semantics
	// here. Recoverable at the driver level.
	UnsupportedOpcode
	// DecodeMismatch: branched-to address has no decoded P-op group,
	// or a symbol/section lookup failed. Fatal for the current run.
	DecodeMismatch
	// InvariantViolation: write to Constant space, overflow in address
	// arithmetic. Fatal.
	InvariantViolation
	// ResolutionFailure: resolve_space_from_const produced no known
	// space. Fatal.
	ResolutionFailure
)

func (k ErrorKind) String() string {
	switch k {
	case PreconditionViolation:
		return "precondition violation"
	case UnsupportedOpcode:
		return "unsupported opcode"
	case DecodeMismatch:
		return "decode mismatch"
	case InvariantViolation:
		return "invariant violation"
	case ResolutionFailure:
		return "resolution failure"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Sentinel errors, one per kind, following the style of
// bassosimone-risc32's vm package (ErrHalted, ErrNotPermitted,
// ErrSIGSEGV as a var block of errors.New values rather than errors
// constructed ad hoc). Here they are not wrapped with %w: each *Error
// reaches the sentinel for its Kind through Unwrap.
var (
	ErrPrecondition      = errors.New("emulator: precondition violation")
	ErrUnsupportedOpcode = errors.New("emulator: unsupported opcode")
	ErrDecodeMismatch    = errors.New("emulator: decode mismatch")
	ErrInvariant         = errors.New("emulator: invariant violation")
	ErrResolution        = errors.New("emulator: resolution failure")
)

func sentinelFor(kind ErrorKind) error {
	switch kind {
	case PreconditionViolation:
		return ErrPrecondition
	case UnsupportedOpcode:
		return ErrUnsupportedOpcode
	case DecodeMismatch:
		return ErrDecodeMismatch
	case InvariantViolation:
		return ErrInvariant
	case ResolutionFailure:
		return ErrResolution
	default:
		return errors.New("emulator: unknown error")
	}
}

// Error carries the failing P-op's address and opcode tag alongside the
// error kind, so a driver can print a summary line naming the failing
// P-op's address, opcode tag, and a one-line cause.
type Error struct {
	Kind    ErrorKind
	Address uint64
	Op      pcode.Opcode
	Reason  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at %#x (%s): %s", e.Kind, e.Address, e.Op, e.Reason)
}

// Unwrap lets callers use errors.Is(err, emulator.ErrUnsupportedOpcode)
// and friends without inspecting Kind directly.
func (e *Error) Unwrap() error { return sentinelFor(e.Kind) }

// Fatal reports whether this error should abort the run. Every kind is
// fatal except UnsupportedOpcode, which a driver can log and skip.
func (e *Error) Fatal() bool { return e.Kind != UnsupportedOpcode }

func newError(kind ErrorKind, addr uint64, op pcode.Opcode, format string, args ...any) *Error {
	return &Error{Kind: kind, Address: addr, Op: op, Reason: fmt.Sprintf(format, args...)}
}

// WrapError is newError exported for the machine package, whose failures
// (unknown symbol, missing section, decode mismatch) share the same
// Error/ErrorKind vocabulary defined here: decoder-supplied nonsense is a
// fatal error returned from Machine, not a panic.
func WrapError(kind ErrorKind, addr uint64, op pcode.Opcode, format string, args ...any) *Error {
	return newError(kind, addr, op, format, args...)
}
