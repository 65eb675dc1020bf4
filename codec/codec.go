// Package codec projects byte buffers of arbitrary width onto
// arbitrary-precision and fixed-width integer values, under a chosen
// endianness. Varnode sizes are not restricted to machine word widths —
// flag bits are a single byte, overflow intermediates may exceed operand
// width — so the arbitrary-precision path (backed by math/big, the
// standard library's answer to the width problem; no third-party
// big-integer library appears anywhere in the retrieved example pack) is
// the base case, and every fixed-width read/write narrows from or widens
// to it rather than duplicating the truncation/sign-extension rules.
package codec

import (
	"fmt"
	"math/big"
)

// Endianness selects how byte buffers are interpreted.
type Endianness int

const (
	LittleEndian Endianness = iota
	BigEndian
)

func reversed(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// modulus returns 2^(8*n) for the two's-complement / truncation math
// below.
func modulus(n int) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), uint(8*n))
}

// ReadUnsigned interprets the buffer as a non-negative integer under the
// given endianness.
func ReadUnsigned(e Endianness, buf []byte) *big.Int {
	be := buf
	if e == LittleEndian {
		be = reversed(buf)
	}
	return new(big.Int).SetBytes(be)
}

// WriteUnsigned serializes v into dest (length N), right-justified with
// leading zero padding for big-endian (least-significant byte at index 0
// for little-endian). If v needs more than N bytes, the most significant
// bytes are dropped: dest holds v mod 2^(8N).
func WriteUnsigned(e Endianness, v *big.Int, dest []byte) {
	n := len(dest)
	truncated := new(big.Int).Mod(v, modulus(n))
	be := truncated.FillBytes(make([]byte, n))
	if e == LittleEndian {
		be = reversed(be)
	}
	copy(dest, be)
}

// ReadSigned interprets the buffer as a two's-complement integer under
// the given endianness.
func ReadSigned(e Endianness, buf []byte) *big.Int {
	u := ReadUnsigned(e, buf)
	top := new(big.Int).Lsh(big.NewInt(1), uint(8*len(buf)-1))
	if u.Cmp(top) >= 0 {
		return new(big.Int).Sub(u, modulus(len(buf)))
	}
	return u
}

// WriteSigned serializes v into dest (length N). Non-negative values
// behave exactly like WriteUnsigned; negative values are encoded as the
// N-byte two's complement of their magnitude, which is precisely v mod
// 2^(8N) (the bitwise-not-then-add-one construction and this modular
// reduction agree for all v in two's complement).
func WriteSigned(e Endianness, v *big.Int, dest []byte) {
	WriteUnsigned(e, v, dest)
}

// ReadBool interprets the buffer as unsigned; the result is whether the
// value is nonzero.
func ReadBool(e Endianness, buf []byte) bool {
	return ReadUnsigned(e, buf).Sign() != 0
}

// WriteBool serializes false/true as unsigned 0/1.
func WriteBool(e Endianness, v bool, dest []byte) {
	n := int64(0)
	if v {
		n = 1
	}
	WriteUnsigned(e, big.NewInt(n), dest)
}

// FixedUnsigned is the set of native unsigned integer types codec can
// narrow arbitrary-precision values into.
type FixedUnsigned interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// FixedSigned is the set of native signed integer types codec can narrow
// arbitrary-precision values into.
type FixedSigned interface {
	~int8 | ~int16 | ~int32 | ~int64
}

func widthOf[T FixedUnsigned | FixedSigned]() int {
	var zero T
	switch any(zero).(type) {
	case int8, uint8:
		return 1
	case int16, uint16:
		return 2
	case int32, uint32:
		return 4
	case int64, uint64:
		return 8
	default:
		panic(fmt.Sprintf("codec: unsupported fixed-width type %T", zero))
	}
}

// ReadFixedUnsigned reads a fixed-width unsigned value from a buffer
// exactly width(T) bytes long.
func ReadFixedUnsigned[T FixedUnsigned](e Endianness, buf []byte) (T, error) {
	w := widthOf[T]()
	if len(buf) != w {
		return 0, fmt.Errorf("codec: buffer length %d does not match %T width %d", len(buf), *new(T), w)
	}
	v := ReadUnsigned(e, buf)
	if !v.IsUint64() {
		return 0, fmt.Errorf("codec: value %s does not fit in %T", v, *new(T))
	}
	return T(v.Uint64()), nil
}

// WriteFixedUnsigned widens v to arbitrary precision and writes it into
// a fresh width(T)-byte buffer.
func WriteFixedUnsigned[T FixedUnsigned](e Endianness, v T) []byte {
	buf := make([]byte, widthOf[T]())
	WriteUnsigned(e, new(big.Int).SetUint64(uint64(v)), buf)
	return buf
}

// ReadFixedSigned reads a fixed-width signed value from a buffer exactly
// width(T) bytes long.
func ReadFixedSigned[T FixedSigned](e Endianness, buf []byte) (T, error) {
	w := widthOf[T]()
	if len(buf) != w {
		return 0, fmt.Errorf("codec: buffer length %d does not match %T width %d", len(buf), *new(T), w)
	}
	v := ReadSigned(e, buf)
	if !v.IsInt64() {
		return 0, fmt.Errorf("codec: value %s does not fit in %T", v, *new(T))
	}
	n := v.Int64()
	narrowed := T(n)
	if int64(narrowed) != n {
		return 0, fmt.Errorf("codec: value %d does not fit in %T", n, *new(T))
	}
	return narrowed, nil
}

// WriteFixedSigned widens v to arbitrary precision and writes it into a
// fresh width(T)-byte buffer.
func WriteFixedSigned[T FixedSigned](e Endianness, v T) []byte {
	buf := make([]byte, widthOf[T]())
	WriteSigned(e, big.NewInt(int64(v)), buf)
	return buf
}

// Uint128 and Int128 below stand in for 128-bit fixed-width values: Go
// has no native 128-bit integer, so these carry the value as a
// sign-and-magnitude-free pair of 64-bit halves (Hi is the more
// significant half) and defer all arithmetic to the arbitrary-precision
// path.

// Uint128 is a 128-bit unsigned integer split into two 64-bit halves.
type Uint128 struct {
	Hi, Lo uint64
}

func (v Uint128) big() *big.Int {
	out := new(big.Int).SetUint64(v.Hi)
	out.Lsh(out, 64)
	out.Or(out, new(big.Int).SetUint64(v.Lo))
	return out
}

// ReadUint128 reads a 16-byte buffer as an unsigned 128-bit integer.
func ReadUint128(e Endianness, buf []byte) (Uint128, error) {
	if len(buf) != 16 {
		return Uint128{}, fmt.Errorf("codec: buffer length %d does not match Uint128 width 16", len(buf))
	}
	v := ReadUnsigned(e, buf)
	mask64 := new(big.Int).SetUint64(^uint64(0))
	lo := new(big.Int).And(v, mask64)
	hi := new(big.Int).Rsh(v, 64)
	return Uint128{Hi: hi.Uint64(), Lo: lo.Uint64()}, nil
}

// WriteUint128 writes a 128-bit unsigned integer into a fresh 16-byte
// buffer.
func WriteUint128(e Endianness, v Uint128) []byte {
	buf := make([]byte, 16)
	WriteUnsigned(e, v.big(), buf)
	return buf
}

// Int128 is a 128-bit signed integer, represented as its two's-complement
// 128-bit pattern split into two 64-bit halves (Hi is the more
// significant half, sign lives in its top bit).
type Int128 struct {
	Hi, Lo uint64
}

// ReadInt128 reads a 16-byte buffer as a signed 128-bit integer.
func ReadInt128(e Endianness, buf []byte) (Int128, error) {
	if len(buf) != 16 {
		return Int128{}, fmt.Errorf("codec: buffer length %d does not match Int128 width 16", len(buf))
	}
	u, err := ReadUint128(e, buf)
	if err != nil {
		return Int128{}, err
	}
	return Int128(u), nil
}

// WriteInt128 writes a signed 128-bit integer (already in two's
// complement form) into a fresh 16-byte buffer.
func WriteInt128(e Endianness, v Int128) []byte {
	return WriteUint128(e, Uint128(v))
}
