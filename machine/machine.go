package machine

import (
	"fmt"
	"log"
	"sort"

	"pcodevm/emulator"
	"pcodevm/pcode"
)

// Machine owns everything decoded from a Binary so far: which sections
// have been translated, the address-keyed P-op groups, the
// address-keyed instruction map, and the register-name bijection. These
// tables grow monotonically and are never mutated once a section has
// been loaded.
type Machine struct {
	translator Translator

	sections         map[string]bool
	pcodes           map[uint64][]pcode.PCode
	instructions     map[uint64]pcode.Instruction
	instructionAddrs []uint64 // sorted, kept in step with instructions

	registerNames  map[pcode.VarnodeData]string
	namedRegisters map[string]pcode.VarnodeData
}

// New decodes every executable section of binary up front, rather than
// waiting for the first function lookup to touch it.
func New(binary *Binary, translator Translator) (*Machine, error) {
	m := &Machine{
		translator:     translator,
		sections:       make(map[string]bool),
		pcodes:         make(map[uint64][]pcode.PCode),
		instructions:   make(map[uint64]pcode.Instruction),
		registerNames:  translator.AllRegisters(),
		namedRegisters: make(map[string]pcode.VarnodeData),
	}
	for node, name := range m.registerNames {
		m.namedRegisters[name] = node
	}

	for name, section := range binary.Sections {
		if !section.Executable() {
			continue
		}
		log.Printf("loading section: %s", name)
		if err := m.loadSection(binary, name); err != nil {
			return nil, err
		}
	}
	log.Printf("done loading sections")

	return m, nil
}

// loadSection is a no-op if name was already decoded.
func (m *Machine) loadSection(binary *Binary, name string) error {
	if m.sections[name] {
		return nil
	}

	section, ok := binary.Sections[name]
	if !ok {
		return emulator.WrapError(emulator.DecodeMismatch, 0, 0, "unknown section %q", name)
	}
	if section.Offset > uint64(len(binary.Bytes)) {
		return emulator.WrapError(emulator.InvariantViolation, 0, 0, "section %q offset out of range", name)
	}
	bytes := binary.Bytes[section.Offset:]

	_, ops := m.translator.Translate(bytes, section.Address, section.Size)
	_, instructions := m.translator.Disassemble(bytes, section.Address, section.Size)

	for _, op := range ops {
		m.pcodes[op.Address] = append(m.pcodes[op.Address], op)
	}
	for _, instruction := range instructions {
		if _, seen := m.instructions[instruction.Address]; !seen {
			m.instructionAddrs = append(m.instructionAddrs, instruction.Address)
		}
		m.instructions[instruction.Address] = instruction
	}
	sort.Slice(m.instructionAddrs, func(i, j int) bool { return m.instructionAddrs[i] < m.instructionAddrs[j] })

	m.sections[name] = true
	return nil
}

// loadFunction resolves symbol to exactly one definition, ensures its
// section is decoded, and returns (address, size).
func (m *Machine) loadFunction(binary *Binary, name string) (uint64, uint64, error) {
	defs, ok := binary.Symbols[name]
	if !ok || len(defs) == 0 {
		return 0, 0, emulator.WrapError(emulator.DecodeMismatch, 0, 0, "unable to find symbol %q", name)
	}
	if len(defs) != 1 {
		return 0, 0, emulator.WrapError(emulator.DecodeMismatch, 0, 0, "symbol %q has %d definitions, expected 1", name, len(defs))
	}
	symbol := defs[0]
	log.Printf("loading function: %#08x", symbol.Address)

	if err := m.loadSection(binary, symbol.Section); err != nil {
		return 0, 0, err
	}
	log.Printf("loaded function: %s at %#08x with %d bytes", name, symbol.Address, symbol.Size)
	return symbol.Address, symbol.Size, nil
}

// nextInstructionAddress returns the smallest decoded instruction
// address strictly greater than after, and whether one exists.
func (m *Machine) nextInstructionAddress(after uint64) (uint64, bool) {
	i := sort.Search(len(m.instructionAddrs), func(i int) bool { return m.instructionAddrs[i] > after })
	if i == len(m.instructionAddrs) {
		return 0, false
	}
	return m.instructionAddrs[i], true
}

// lastInstructionBefore returns the highest decoded instruction address
// strictly less than limit.
func (m *Machine) lastInstructionBefore(limit uint64) (uint64, bool) {
	i := sort.Search(len(m.instructionAddrs), func(i int) bool { return m.instructionAddrs[i] >= limit })
	if i == 0 {
		return 0, false
	}
	return m.instructionAddrs[i-1], true
}

// Prepare loads symbol's function, computes its end address, builds a
// fresh Emulator seeded with the translator's register table, applies
// initialRegisters, and returns an Emulator positioned at the
// function's entry via a Cursor. It takes no architecture-specific
// stance on which registers to preset; e.g. an x86-32 caller supplies
// its own EBP/ESP/EIP convention.
func (m *Machine) Prepare(binary *Binary, symbol string, initialRegisters map[string]uint64) (*emulator.Emulator, *Cursor, error) {
	address, size, err := m.loadFunction(binary, symbol)
	if err != nil {
		return nil, nil, err
	}
	endAddress, ok := m.lastInstructionBefore(address + size)
	if !ok {
		return nil, nil, emulator.WrapError(emulator.DecodeMismatch, address, 0, "no decoded instructions for function %q", symbol)
	}

	emu := emulator.New(m.registerNames, m.translator.ResolveSpace)
	log.Printf("emulating %s at %#08x with %d bytes", symbol, address, size)

	for name, value := range initialRegisters {
		reg, ok := m.namedRegisters[name]
		if !ok {
			return nil, nil, emulator.WrapError(emulator.ResolutionFailure, address, 0, "unable to find register %q", name)
		}
		if err := emulator.WriteTyped(emu, reg, value); err != nil {
			return nil, nil, err
		}
	}

	if _, ok := m.pcodes[address]; !ok {
		return nil, nil, emulator.WrapError(emulator.DecodeMismatch, address, 0, "no pcode for function entry %#08x", address)
	}

	return emu, &Cursor{address: address, index: 0, endAddress: endAddress}, nil
}

// RegisterByName exposes the translator-derived name table, used by
// callers building initialRegisters maps and by the CLI.
func (m *Machine) RegisterByName(name string) (pcode.VarnodeData, bool) {
	v, ok := m.namedRegisters[name]
	return v, ok
}

// Instruction returns the disassembly record at addr, if decoded.
func (m *Machine) Instruction(addr uint64) (pcode.Instruction, bool) {
	inst, ok := m.instructions[addr]
	return inst, ok
}

func (m *Machine) String() string {
	return fmt.Sprintf("machine{sections=%d pcodes=%d instructions=%d}", len(m.sections), len(m.pcodes), len(m.instructions))
}
