package main

import (
	"debug/elf"
	"fmt"
	"os"

	"pcodevm/machine"
)

// loadELF reads path and adapts it into a machine.Binary. ELF parsing
// is explicitly outside the core's scope; this file is the one place in
// the module that imports debug/elf.
func loadELF(path string) (*machine.Binary, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	binary := &machine.Binary{
		Bytes:    raw,
		Sections: make(map[string]machine.Section),
		Symbols:  make(map[string][]machine.Symbol),
	}

	for _, section := range f.Sections {
		binary.Sections[section.Name] = machine.Section{
			Kind:      section.Type.String(),
			Flags:     sectionFlagNames(section.Flags),
			Address:   section.Addr,
			Offset:    section.Offset,
			Size:      section.Size,
			Alignment: section.Addralign,
		}
	}

	symbols, err := f.Symbols()
	if err != nil {
		return nil, fmt.Errorf("reading symbols of %s: %w", path, err)
	}
	for _, sym := range symbols {
		if elf.ST_TYPE(sym.Info) != elf.STT_FUNC {
			continue
		}
		sectionName := ""
		if int(sym.Section) < len(f.Sections) {
			sectionName = f.Sections[sym.Section].Name
		}
		binary.Symbols[sym.Name] = append(binary.Symbols[sym.Name], machine.Symbol{
			Address: sym.Value,
			Size:    sym.Size,
			Kind:    elf.ST_TYPE(sym.Info).String(),
			Section: sectionName,
		})
	}

	return binary, nil
}

func sectionFlagNames(flags elf.SectionFlag) []string {
	var names []string
	if flags&elf.SHF_EXECINSTR != 0 {
		names = append(names, "SHF_EXECINSTR")
	}
	if flags&elf.SHF_WRITE != 0 {
		names = append(names, "SHF_WRITE")
	}
	if flags&elf.SHF_ALLOC != 0 {
		names = append(names, "SHF_ALLOC")
	}
	return names
}
