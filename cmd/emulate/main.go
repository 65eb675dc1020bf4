// Command emulate loads an ELF binary, emulates a named function's
// P-code, and prints the final value of a nominated result register.
// ELF parsing, the CLI itself, and the optional TUI inspector are all
// external-collaborator concerns; the core interpreter only sees the
// machine.Binary/Translator interfaces.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"

	"pcodevm/emulator"
	"pcodevm/internal/demoisa"
	"pcodevm/machine"
)

func main() {
	log.SetFlags(0)

	binPath := flag.String("bin", "", "path to an ELF binary")
	fnName := flag.String("fn", "main", "symbol to emulate")
	resultReg := flag.String("reg", "EAX", "register to print after the run")
	maxSteps := flag.Int("max-steps", 1_000_000, "abort after this many P-ops (0 disables the cap)")
	tui := flag.Bool("tui", false, "launch the interactive inspector instead of running to completion")
	demo := flag.Bool("demo", false, "run the bundled demo program instead of loading -bin")
	flag.Parse()

	var binary *machine.Binary
	var translator machine.Translator
	var initialRegisters map[string]uint64

	switch {
	case *demo:
		binary, translator, initialRegisters = demoProgram()
		*fnName = "demo_add"
		*resultReg = "R0"

	case *binPath != "":
		loaded, err := loadELF(*binPath)
		if err != nil {
			log.Fatal(err)
		}
		binary = loaded
		translator = demoisa.Translator{}
		initialRegisters = map[string]uint64{
			"EBP": 0,
			"ESP": 0x100_000,
		}

	default:
		log.Fatal("usage: emulate -bin <path> -fn <symbol> [-reg <name>] [-max-steps N] [-tui] (or -demo)")
	}

	m, err := machine.New(binary, translator)
	if err != nil {
		log.Fatal(err)
	}

	// The x86-32 presets are only applied to registers the translator names.
	if !*demo {
		for name := range initialRegisters {
			if _, ok := m.RegisterByName(name); !ok {
				delete(initialRegisters, name)
			}
		}
	}

	if symbol, ok := binary.Symbols[*fnName]; ok && len(symbol) == 1 {
		if _, hasEIP := m.RegisterByName("EIP"); hasEIP {
			initialRegisters["EIP"] = symbol[0].Address
		}
	}

	emu, cur, err := m.Prepare(binary, *fnName, initialRegisters)
	if err != nil {
		log.Fatal(err)
	}

	if *tui {
		runInspector(m, emu, cur, *resultReg)
		return
	}

	steps, err := machine.Run(m, emu, cur, *maxSteps)
	if err != nil {
		var opErr *emulator.Error
		if errors.As(err, &opErr) {
			log.Fatalf("step %d: %s at %#08x (%s): %s", steps, opErr.Kind, opErr.Address, opErr.Op, opErr.Reason)
		}
		log.Fatal(err)
	}

	printResult(emu, m, *resultReg, steps)
}

func printResult(emu *emulator.Emulator, m *machine.Machine, resultReg string, steps int) {
	reg, ok := m.RegisterByName(resultReg)
	if !ok {
		log.Fatalf("unknown register %q", resultReg)
	}
	value, err := emu.ReadUnsigned(reg)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s = %#x (%d P-ops executed)\n", resultReg, value, steps)
}

// demoProgram builds a tiny in-memory demo-ISA function so -demo works
// with no ELF input at all: R0 := R0 + R1, then return.
func demoProgram() (*machine.Binary, machine.Translator, map[string]uint64) {
	program := []byte{
		0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, // add r0, r1
		0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // ret r0 (via RETTGT)
	}
	binary := &machine.Binary{
		Bytes: program,
		Sections: map[string]machine.Section{
			".text": {Address: 0x1000, Offset: 0, Size: uint64(len(program)), Flags: []string{"SHF_EXECINSTR"}},
		},
		Symbols: map[string][]machine.Symbol{
			"demo_add": {{Address: 0x1000, Size: uint64(len(program)), Section: ".text"}},
		},
	}
	return binary, demoisa.Translator{}, map[string]uint64{
		"R0":     3,
		"R1":     4,
		"RETTGT": 0x1008,
	}
}
