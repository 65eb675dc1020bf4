// Package demoisa is a deliberately tiny, synthetic instruction set and
// machine.Translator implementation. It exists only so cmd/emulate and
// this module's own end-to-end tests have a runnable concrete
// translator to drive: a real x86/P-code disassembler (sleigh, say) is
// an external collaborator outside this module's scope. Nothing here
// should be mistaken for a production ISA or lifter.
package demoisa

import (
	"encoding/binary"
	"fmt"

	"pcodevm/pcode"
)

// Op tags one demo instruction. Each instruction is a fixed 8-byte
// word: [op byte][dst byte][src byte][unused byte][imm32 little-endian].
type Op byte

const (
	// OpAddReg: REG[dst] = REG[dst] + REG[src].
	OpAddReg Op = iota
	// OpSubReg: REG[dst] = REG[dst] - REG[src].
	OpSubReg
	// OpLoadImm: REG[dst] = imm32.
	OpLoadImm
	// OpCmpBranchZero: if REG[dst] == 0, jump to imm32 (absolute
	// address); otherwise fall through.
	OpCmpBranchZero
	// OpReturn: end the function. The lowered Return takes its target
	// address from the RETTGT pseudo-register; dst, src and imm32 are
	// not read.
	OpReturn
)

const wordSize = 8

// RegisterNames is the demo ISA's fixed 4-register file: R0-R3, plus a
// RETTGT pseudo-register used to carry the Return target the same way
// a real lifter would have already resolved a return address into a
// varnode.
var RegisterNames = []string{"R0", "R1", "R2", "R3", "RETTGT"}

func registerVarnode(index int) pcode.VarnodeData {
	return pcode.VarnodeData{
		Space:  RegisterSpace,
		Offset: uint64(index) * 4,
		Size:   4,
	}
}

// RegisterSpace is the demo ISA's single general-purpose register file.
var RegisterSpace = pcode.AddrSpace{Name: "register", Kind: pcode.Processor, WordSize: 1}

// RAMSpace is the demo ISA's single addressable data region.
var RAMSpace = pcode.AddrSpace{Name: "ram", Kind: pcode.Processor, WordSize: 1}

// ConstSpace is the virtual space used to carry literal values and,
// for Load/Store's first input, an AddrSpace identity.
var ConstSpace = pcode.AddrSpace{Name: "const", Kind: pcode.Constant}

// ramSpaceID is the single integer identity this demo ISA ever needs
// to resolve via resolve_space_from_const, since there is only one
// data space.
const ramSpaceID = 1

// Translator lifts demo-ISA bytes into P-code. It carries no state: the
// instruction format is fixed-width and self-describing.
type Translator struct{}

// Translate decodes bytes (a sequence of 8-byte demo instructions,
// base-addressed at baseAddress) into P-code. limit == 0 means "exhaust
// bytes," matching the core's Translator contract.
func (Translator) Translate(bytes []byte, baseAddress uint64, limit uint64) (uint64, []pcode.PCode) {
	n := boundedLength(len(bytes), limit)
	var ops []pcode.PCode
	for offset := 0; offset+wordSize <= n; offset += wordSize {
		addr := baseAddress + uint64(offset)
		ops = append(ops, decodeOne(bytes[offset:offset+wordSize], addr)...)
	}
	return uint64(n - n%wordSize), ops
}

// Disassemble produces one human-readable Instruction record per demo
// word, used only to bound function extents and for logging.
func (Translator) Disassemble(bytes []byte, baseAddress uint64, limit uint64) (uint64, []pcode.Instruction) {
	n := boundedLength(len(bytes), limit)
	var instructions []pcode.Instruction
	for offset := 0; offset+wordSize <= n; offset += wordSize {
		word := bytes[offset : offset+wordSize]
		addr := baseAddress + uint64(offset)
		instructions = append(instructions, pcode.Instruction{
			Address:  addr,
			Mnemonic: mnemonicOf(Op(word[0])),
			Operands: fmt.Sprintf("r%d, r%d, %#x", word[1], word[2], binary.LittleEndian.Uint32(word[4:8])),
		})
	}
	return uint64(n - n%wordSize), instructions
}

// AllRegisters returns the demo ISA's fixed varnode/name bijection
// seed.
func (Translator) AllRegisters() map[pcode.VarnodeData]string {
	names := make(map[pcode.VarnodeData]string, len(RegisterNames))
	for i, name := range RegisterNames {
		names[registerVarnode(i)] = name
	}
	return names
}

// ResolveSpace maps the one space identity this demo ISA ever embeds
// in a Constant varnode back to RAMSpace.
func (Translator) ResolveSpace(id uint64) (pcode.AddrSpace, bool) {
	if id == ramSpaceID {
		return RAMSpace, true
	}
	return pcode.AddrSpace{}, false
}

func boundedLength(available int, limit uint64) int {
	if limit == 0 || limit > uint64(available) {
		return available
	}
	return int(limit)
}

func mnemonicOf(op Op) string {
	switch op {
	case OpAddReg:
		return "add"
	case OpSubReg:
		return "sub"
	case OpLoadImm:
		return "loadimm"
	case OpCmpBranchZero:
		return "cbz"
	case OpReturn:
		return "ret"
	default:
		return fmt.Sprintf("op(%#x)", byte(op))
	}
}

func decodeOne(word []byte, addr uint64) []pcode.PCode {
	op := Op(word[0])
	dst := registerVarnode(int(word[1]))
	src := registerVarnode(int(word[2]))
	imm := binary.LittleEndian.Uint32(word[4:8])

	switch op {
	case OpAddReg:
		out := dst
		return []pcode.PCode{{Address: addr, Op: pcode.IntAdd, Inputs: []pcode.VarnodeData{dst, src}, Output: &out}}

	case OpSubReg:
		out := dst
		return []pcode.PCode{{Address: addr, Op: pcode.IntSub, Inputs: []pcode.VarnodeData{dst, src}, Output: &out}}

	case OpLoadImm:
		out := dst
		immediate := pcode.VarnodeData{Space: ConstSpace, Offset: uint64(imm), Size: 4}
		return []pcode.PCode{{Address: addr, Op: pcode.Copy, Inputs: []pcode.VarnodeData{immediate}, Output: &out}}

	case OpCmpBranchZero:
		zero := pcode.VarnodeData{Space: ConstSpace, Offset: 0, Size: 4}
		cond := pcode.VarnodeData{Space: pcode.AddrSpace{Name: "unique", Kind: pcode.Internal, WordSize: 1}, Offset: addr, Size: 1}
		target := pcode.VarnodeData{Space: RAMSpace, Offset: uint64(imm)}
		return []pcode.PCode{
			{Address: addr, Op: pcode.IntEqual, Inputs: []pcode.VarnodeData{dst, zero}, Output: &cond},
			{Address: addr, Op: pcode.CBranch, Inputs: []pcode.VarnodeData{target, cond}},
		}

	case OpReturn:
		rettgt := registerVarnode(len(RegisterNames) - 1)
		return []pcode.PCode{{Address: addr, Op: pcode.Return, Inputs: []pcode.VarnodeData{rettgt}}}

	default:
		return []pcode.PCode{{Address: addr, Op: pcode.FloatOp}}
	}
}
