package machine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcodevm/emulator"
	"pcodevm/pcode"
)

var testRAM = pcode.AddrSpace{Name: "ram", Kind: pcode.Processor, WordSize: 1}
var testRegister = pcode.AddrSpace{Name: "register", Kind: pcode.Processor, WordSize: 1}

func reg(offset uint64, size uint32) pcode.VarnodeData {
	return pcode.VarnodeData{Space: testRegister, Offset: offset, Size: size}
}

// fakeTranslator lowers a two-instruction function:
//
//	0x1000: EAX := EAX + EBX                     (1 pcode op)
//	0x1004: RETURN RETTGT                        (1 pcode op; the lifter
//	        is assumed to have already resolved the return address into
//	        a varnode)
//
// regardless of the bytes handed to it — enough to exercise Machine's
// section/function loading and Cursor's grouped iteration without a
// real disassembler. RETTGT is preset by the caller's initial register
// map to the function's own end address, so Return terminates the run.
type fakeTranslator struct{}

func (fakeTranslator) Translate(bytes []byte, base uint64, limit uint64) (uint64, []pcode.PCode) {
	eax, ebx, rettgt := reg(0, 4), reg(4, 4), reg(8, 4)
	return uint64(len(bytes)), []pcode.PCode{
		{Address: 0x1000, Op: pcode.IntAdd, Inputs: []pcode.VarnodeData{eax, ebx}, Output: &eax},
		{Address: 0x1004, Op: pcode.Return, Inputs: []pcode.VarnodeData{rettgt}},
	}
}

func (fakeTranslator) Disassemble(bytes []byte, base uint64, limit uint64) (uint64, []pcode.Instruction) {
	return uint64(len(bytes)), []pcode.Instruction{
		{Address: 0x1000, Mnemonic: "add", Operands: "eax, ebx"},
		{Address: 0x1004, Mnemonic: "ret"},
	}
}

func (fakeTranslator) AllRegisters() map[pcode.VarnodeData]string {
	return map[pcode.VarnodeData]string{
		reg(0, 4): "EAX",
		reg(4, 4): "EBX",
		reg(8, 4): "RETTGT",
	}
}

func (fakeTranslator) ResolveSpace(id uint64) (pcode.AddrSpace, bool) {
	if id == 1 {
		return testRAM, true
	}
	return pcode.AddrSpace{}, false
}

func testBinary() *Binary {
	return &Binary{
		Bytes: make([]byte, 0x10),
		Sections: map[string]Section{
			".text": {Address: 0x1000, Offset: 0, Size: 8, Flags: []string{"SHF_EXECINSTR"}},
		},
		Symbols: map[string][]Symbol{
			"add_regs": {{Address: 0x1000, Size: 8, Section: ".text"}},
		},
	}
}

func TestNewDecodesExecutableSections(t *testing.T) {
	m, err := New(testBinary(), fakeTranslator{})
	require.NoError(t, err)

	_, ok := m.Instruction(0x1000)
	assert.True(t, ok)
	_, ok = m.Instruction(0x1004)
	assert.True(t, ok)
}

func TestPrepareAndRunToCompletion(t *testing.T) {
	binary := testBinary()
	m, err := New(binary, fakeTranslator{})
	require.NoError(t, err)

	emu, cur, err := m.Prepare(binary, "add_regs", map[string]uint64{
		"EAX":    3,
		"EBX":    5,
		"RETTGT": 0x1004,
	})
	require.NoError(t, err)

	steps, err := Run(m, emu, cur, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, steps)
	assert.True(t, cur.AtEnd(m))

	eax, _ := m.RegisterByName("EAX")
	got, err := emu.ReadUnsigned(eax)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), got.Uint64())
}

func TestPrepareUnknownSymbolFails(t *testing.T) {
	binary := testBinary()
	m, err := New(binary, fakeTranslator{})
	require.NoError(t, err)

	_, _, err = m.Prepare(binary, "nope", nil)
	assert.Error(t, err)
}

func TestCursorSetAddressToEndTerminatesIteration(t *testing.T) {
	binary := testBinary()
	m, err := New(binary, fakeTranslator{})
	require.NoError(t, err)

	_, cur, err := m.Prepare(binary, "add_regs", map[string]uint64{"EAX": 1, "EBX": 1, "RETTGT": 0x1004})
	require.NoError(t, err)

	require.NoError(t, cur.SetAddress(0x1004, m))
	assert.True(t, cur.AtEnd(m))
	_, ok := cur.Next(m)
	assert.False(t, ok)
}

// TestCursorSetAddressRejectsInstructionWithNoPCodeGroup covers a
// decoder-supplied-nonsense branch target: an address the Translator's
// Disassemble listed as an instruction but whose Translate never
// emitted any P-ops for. SetAddress must reject it rather than let a
// later Next panic.
func TestCursorSetAddressRejectsInstructionWithNoPCodeGroup(t *testing.T) {
	binary := testBinary()
	m, err := New(binary, fakeTranslator{})
	require.NoError(t, err)
	m.instructions[0x2000] = pcode.Instruction{Address: 0x2000, Mnemonic: "orphan"}

	_, cur, err := m.Prepare(binary, "add_regs", map[string]uint64{"EAX": 1, "EBX": 1, "RETTGT": 0x1004})
	require.NoError(t, err)

	err = cur.SetAddress(0x2000, m)
	assert.ErrorIs(t, err, emulator.ErrDecodeMismatch)
}
