// Package emulator implements the Emulator (the owner of the three
// address spaces and the register-name tables) and the per-opcode
// execution semantics of the P-code interpreter.
package emulator

import (
	"log"
	"math/big"

	"pcodevm/codec"
	"pcodevm/pcode"
	"pcodevm/space"
)

// SpaceResolver resolves the integer identity a disassembler embeds in a
// Constant varnode back to an AddrSpace. The Machine/Translator layer
// above populates this; the emulator never dereferences the identity as
// a pointer.
type SpaceResolver func(id uint64) (pcode.AddrSpace, bool)

// Emulator owns the three address spaces (unique, register, ram) and the
// register-name bijection. It is not safe for concurrent use: step() is
// not re-entrant, matching bassosimone-risc32's VM ("not goroutine safe;
// a single goroutine should manage it").
type Emulator struct {
	Unique   *space.Space
	Register *space.Space
	RAM      *space.Space

	registerNames  map[pcode.VarnodeData]string
	namedRegisters map[string]pcode.VarnodeData

	resolveSpace SpaceResolver
}

// New builds an Emulator with fresh, empty spaces. registerNames is
// typically supplied by Machine from the translator's
// get_all_registers(); resolveSpace backs resolve_space_from_const for
// Load/Store/control-flow opcodes.
func New(registerNames map[pcode.VarnodeData]string, resolveSpace SpaceResolver) *Emulator {
	named := make(map[string]pcode.VarnodeData, len(registerNames))
	for node, name := range registerNames {
		named[name] = node
	}
	return &Emulator{
		Unique:         space.New(),
		Register:       space.New(),
		RAM:            space.New(),
		registerNames:  registerNames,
		namedRegisters: named,
		resolveSpace:   resolveSpace,
	}
}

// RegisterByName returns the varnode for a register name, if any.
func (e *Emulator) RegisterByName(name string) (pcode.VarnodeData, bool) {
	v, ok := e.namedRegisters[name]
	return v, ok
}

// NameOf returns the register name for a varnode, or a
// "space:offset+size" fallback for unnamed locations — used only for
// tracing.
func (e *Emulator) NameOf(v pcode.VarnodeData) string {
	if name, ok := e.registerNames[v]; ok {
		return name
	}
	return v.String()
}

// resolveSpaceFromConst resolves the AddrSpace identity a Constant
// varnode carries as a pointer-sized offset, via the SpaceResolver
// supplied at construction time. Implementations must never dereference
// the identity as a native pointer; the mapping is built once when the
// disassembler is initialized.
func (e *Emulator) resolveSpaceFromConst(v pcode.VarnodeData, op pcode.Opcode, addr uint64) (pcode.AddrSpace, error) {
	if !v.Space.IsConstant() {
		return pcode.AddrSpace{}, newError(PreconditionViolation, addr, op, "expected constant space, got %q", v.Space.Name)
	}
	if e.resolveSpace == nil {
		return pcode.AddrSpace{}, newError(ResolutionFailure, addr, op, "no space resolver configured")
	}
	sp, ok := e.resolveSpace(v.Offset)
	if !ok {
		return pcode.AddrSpace{}, newError(ResolutionFailure, addr, op, "unknown space identity %#x", v.Offset)
	}
	return sp, nil
}

func (e *Emulator) spaceFor(v pcode.VarnodeData) (*space.Space, error) {
	switch v.Space.Name {
	case "unique":
		return e.Unique, nil
	case "register":
		return e.Register, nil
	case "ram":
		return e.RAM, nil
	default:
		return nil, newError(ResolutionFailure, 0, 0, "unsupported address space: %q", v.Space.Name)
	}
}

// getBytes fetches v.Size bytes from the backing space. A Constant
// varnode is never stored: it yields its offset encoded into an 8-byte
// buffer, whatever v.Size is.
func (e *Emulator) getBytes(v pcode.VarnodeData) ([]byte, error) {
	if v.Space.IsConstant() {
		buf := make([]byte, 8)
		if v.Space.BigEndian {
			codec.WriteUnsigned(codec.BigEndian, new(big.Int).SetUint64(v.Offset), buf)
		} else {
			codec.WriteUnsigned(codec.LittleEndian, new(big.Int).SetUint64(v.Offset), buf)
		}
		return buf, nil
	}
	sp, err := e.spaceFor(v)
	if err != nil {
		return nil, err
	}
	return sp.GetBytes(v.Offset, uint64(v.Size)), nil
}

func (e *Emulator) setBytes(v pcode.VarnodeData, data []byte) error {
	if v.Space.IsConstant() {
		return newError(InvariantViolation, 0, 0, "cannot write to constant space: %s", v)
	}
	sp, err := e.spaceFor(v)
	if err != nil {
		return err
	}
	sp.SetBytes(v.Offset, data)
	return nil
}

func endiannessOf(v pcode.VarnodeData) codec.Endianness {
	if v.Space.BigEndian {
		return codec.BigEndian
	}
	return codec.LittleEndian
}

// ReadUnsigned reads v as an arbitrary-precision unsigned integer.
func (e *Emulator) ReadUnsigned(v pcode.VarnodeData) (*big.Int, error) {
	buf, err := e.getBytes(v)
	if err != nil {
		return nil, err
	}
	return codec.ReadUnsigned(endiannessOf(v), buf), nil
}

// ReadSigned reads v as an arbitrary-precision signed integer.
func (e *Emulator) ReadSigned(v pcode.VarnodeData) (*big.Int, error) {
	buf, err := e.getBytes(v)
	if err != nil {
		return nil, err
	}
	return codec.ReadSigned(endiannessOf(v), buf), nil
}

// ReadBool reads v as a boolean (nonzero when read as unsigned).
func (e *Emulator) ReadBool(v pcode.VarnodeData) (bool, error) {
	buf, err := e.getBytes(v)
	if err != nil {
		return false, err
	}
	return codec.ReadBool(endiannessOf(v), buf), nil
}

// WriteUnsigned zero-fills a v.Size buffer, encodes value, and writes it
// to the underlying space.
func (e *Emulator) WriteUnsigned(v pcode.VarnodeData, value *big.Int) error {
	buf := make([]byte, v.Size)
	codec.WriteUnsigned(endiannessOf(v), value, buf)
	return e.setBytes(v, buf)
}

// WriteSigned zero-fills a v.Size buffer, encodes value, and writes it
// to the underlying space.
func (e *Emulator) WriteSigned(v pcode.VarnodeData, value *big.Int) error {
	buf := make([]byte, v.Size)
	codec.WriteSigned(endiannessOf(v), value, buf)
	return e.setBytes(v, buf)
}

// WriteBool zero-fills a v.Size buffer, encodes value as 0/1, and writes
// it to the underlying space.
func (e *Emulator) WriteBool(v pcode.VarnodeData, value bool) error {
	buf := make([]byte, v.Size)
	codec.WriteBool(endiannessOf(v), value, buf)
	return e.setBytes(v, buf)
}

// ReadTyped reads v as a fixed-width unsigned integer T, fetching
// v.Size bytes and decoding as T. v.Size need not equal width(T), so
// narrowing happens against the arbitrary-precision value rather than
// requiring an exact byte count.
func ReadTyped[T codec.FixedUnsigned](e *Emulator, v pcode.VarnodeData) (T, error) {
	value, err := e.ReadUnsigned(v)
	if err != nil {
		return 0, err
	}
	if !value.IsUint64() {
		return 0, newError(PreconditionViolation, 0, 0, "value %s does not fit in target type", value)
	}
	raw := value.Uint64()
	narrowed := T(raw)
	if uint64(narrowed) != raw {
		return 0, newError(PreconditionViolation, 0, 0, "value %#x does not fit in target type", raw)
	}
	return narrowed, nil
}

// WriteTyped writes a fixed-width unsigned integer T to v, widening to
// arbitrary precision first: the buffer actually written is v.Size bytes
// (which need not equal width(T)), zero padded or truncated by
// WriteUnsigned.
func WriteTyped[T codec.FixedUnsigned](e *Emulator, v pcode.VarnodeData, value T) error {
	return e.WriteUnsigned(v, new(big.Int).SetUint64(uint64(value)))
}

// ReadTypedSigned reads v as a fixed-width signed integer T, narrowing
// the arbitrary-precision value the same way ReadTyped does.
func ReadTypedSigned[T codec.FixedSigned](e *Emulator, v pcode.VarnodeData) (T, error) {
	value, err := e.ReadSigned(v)
	if err != nil {
		return 0, err
	}
	if !value.IsInt64() {
		return 0, newError(PreconditionViolation, 0, 0, "value %s does not fit in target type", value)
	}
	raw := value.Int64()
	narrowed := T(raw)
	if int64(narrowed) != raw {
		return 0, newError(PreconditionViolation, 0, 0, "value %#x does not fit in target type", raw)
	}
	return narrowed, nil
}

// WriteTypedSigned writes a fixed-width signed integer T to v.
func WriteTypedSigned[T codec.FixedSigned](e *Emulator, v pcode.VarnodeData, value T) error {
	return e.WriteSigned(v, big.NewInt(int64(value)))
}

func (e *Emulator) trace(format string, args ...any) {
	log.Printf(format, args...)
}
