package emulator

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcodevm/pcode"
)

var ramSpace = pcode.AddrSpace{Name: "ram", Kind: pcode.Processor, WordSize: 1}
var registerSpace = pcode.AddrSpace{Name: "register", Kind: pcode.Processor, WordSize: 1}
var uniqueSpace = pcode.AddrSpace{Name: "unique", Kind: pcode.Internal, WordSize: 1}
var constSpace = pcode.AddrSpace{Name: "const", Kind: pcode.Constant}

func reg(offset uint64, size uint32) pcode.VarnodeData {
	return pcode.VarnodeData{Space: registerSpace, Offset: offset, Size: size}
}

func constant(value uint64, size uint32) pcode.VarnodeData {
	return pcode.VarnodeData{Space: constSpace, Offset: value, Size: size}
}

func uniq(offset uint64, size uint32) pcode.VarnodeData {
	return pcode.VarnodeData{Space: uniqueSpace, Offset: offset, Size: size}
}

func newTestEmulator() *Emulator {
	resolver := func(id uint64) (pcode.AddrSpace, bool) {
		if id == 1 {
			return ramSpace, true
		}
		return pcode.AddrSpace{}, false
	}
	return New(nil, resolver)
}

func TestStepIntAddTwoRegisters(t *testing.T) {
	e := newTestEmulator()
	eax, ebx, out := reg(0, 4), reg(4, 4), reg(8, 4)
	require.NoError(t, e.WriteUnsigned(eax, big.NewInt(2)))
	require.NoError(t, e.WriteUnsigned(ebx, big.NewInt(3)))

	ctrl, err := e.Step(pcode.PCode{Op: pcode.IntAdd, Inputs: []pcode.VarnodeData{eax, ebx}, Output: &out})
	require.NoError(t, err)
	assert.False(t, ctrl.IsBranch())

	got, err := e.ReadUnsigned(out)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), got.Uint64())
}

func TestStepIntSubWithBorrow(t *testing.T) {
	e := newTestEmulator()
	a, b, out := reg(0, 1), reg(1, 1), reg(2, 1)
	require.NoError(t, e.WriteUnsigned(a, big.NewInt(0)))
	require.NoError(t, e.WriteUnsigned(b, big.NewInt(1)))

	_, err := e.Step(pcode.PCode{Op: pcode.IntSub, Inputs: []pcode.VarnodeData{a, b}, Output: &out})
	require.NoError(t, err)

	got, err := e.ReadUnsigned(out)
	require.NoError(t, err)
	assert.Equal(t, byte(0xFF), byte(got.Uint64()))

	borrowOut := reg(3, 1)
	_, err = e.Step(pcode.PCode{Op: pcode.IntSBorrow, Inputs: []pcode.VarnodeData{a, b}, Output: &borrowOut})
	require.NoError(t, err)
	borrow, err := e.ReadBool(borrowOut)
	require.NoError(t, err)
	assert.True(t, borrow)
}

func TestStepIntZExt(t *testing.T) {
	e := newTestEmulator()
	in, out := reg(0, 1), reg(1, 4)
	require.NoError(t, e.WriteUnsigned(in, big.NewInt(0xFF)))

	_, err := e.Step(pcode.PCode{Op: pcode.IntZExt, Inputs: []pcode.VarnodeData{in}, Output: &out})
	require.NoError(t, err)

	got, err := e.ReadUnsigned(out)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xFF), got.Uint64())
}

func TestStepStoreThenLoad(t *testing.T) {
	e := newTestEmulator()
	spaceID := constant(1, 8)
	addr := reg(0, 4)
	value := reg(4, 4)
	require.NoError(t, e.WriteUnsigned(addr, big.NewInt(0x2000)))
	require.NoError(t, e.WriteUnsigned(value, big.NewInt(0xCAFEBABE)))

	_, err := e.Step(pcode.PCode{Op: pcode.Store, Inputs: []pcode.VarnodeData{spaceID, addr, value}})
	require.NoError(t, err)

	loaded := reg(8, 4)
	_, err = e.Step(pcode.PCode{Op: pcode.Load, Inputs: []pcode.VarnodeData{spaceID, addr}, Output: &loaded})
	require.NoError(t, err)

	got, err := e.ReadUnsigned(loaded)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xCAFEBABE), got.Uint64())
}

func TestStepCBranchTaken(t *testing.T) {
	e := newTestEmulator()
	cond := uniq(0, 1)
	require.NoError(t, e.WriteBool(cond, true))
	target := pcode.VarnodeData{Space: ramSpace, Offset: 0x4000}

	ctrl, err := e.Step(pcode.PCode{Op: pcode.CBranch, Inputs: []pcode.VarnodeData{target, cond}})
	require.NoError(t, err)
	require.True(t, ctrl.IsBranch())
	assert.Equal(t, uint64(0x4000), ctrl.Target)
}

func TestStepCBranchNotTaken(t *testing.T) {
	e := newTestEmulator()
	cond := uniq(0, 1)
	require.NoError(t, e.WriteBool(cond, false))
	target := pcode.VarnodeData{Space: ramSpace, Offset: 0x4000}

	ctrl, err := e.Step(pcode.PCode{Op: pcode.CBranch, Inputs: []pcode.VarnodeData{target, cond}})
	require.NoError(t, err)
	assert.False(t, ctrl.IsBranch())
}

func TestStepReturnYieldsBranch(t *testing.T) {
	e := newTestEmulator()
	target := uniq(0, 4)
	require.NoError(t, e.WriteUnsigned(target, big.NewInt(0xDEAD)))

	ctrl, err := e.Step(pcode.PCode{Op: pcode.Return, Inputs: []pcode.VarnodeData{target}})
	require.NoError(t, err)
	require.True(t, ctrl.IsBranch())
	assert.Equal(t, uint64(0xDEAD), ctrl.Target)
}

func TestStepUnsupportedOpcodeIsRecoverable(t *testing.T) {
	e := newTestEmulator()
	_, err := e.Step(pcode.PCode{Op: pcode.IntMult})
	require.Error(t, err)

	var opErr *Error
	require.True(t, errors.As(err, &opErr))
	assert.False(t, opErr.Fatal())
	assert.True(t, errors.Is(err, ErrUnsupportedOpcode))
}

func TestStepPreconditionViolationIsFatal(t *testing.T) {
	e := newTestEmulator()
	_, err := e.Step(pcode.PCode{Op: pcode.IntAdd, Inputs: []pcode.VarnodeData{reg(0, 4)}})
	require.Error(t, err)

	var opErr *Error
	require.True(t, errors.As(err, &opErr))
	assert.True(t, opErr.Fatal())
	assert.True(t, errors.Is(err, ErrPrecondition))
}

func TestStepLoadRejectsUnknownSpaceIdentity(t *testing.T) {
	e := newTestEmulator()
	badID := constant(99, 8)
	addr := reg(0, 4)
	out := reg(4, 4)

	_, err := e.Step(pcode.PCode{Op: pcode.Load, Inputs: []pcode.VarnodeData{badID, addr}, Output: &out})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrResolution))
}
