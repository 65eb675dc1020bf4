// Package machine decodes a loaded binary's executable sections into
// P-code and instruction streams (via an external Translator), and
// prepares an Emulator + Cursor pair to run a named function.
package machine

import "pcodevm/pcode"

// Section describes one named region of a Binary.
type Section struct {
	Kind      string
	Flags     []string
	Address   uint64
	Offset    uint64
	Size      uint64
	Alignment uint64
}

// Executable reports whether this section carries the loader's
// executable flag (e.g. ELF's SHF_EXECINSTR, surfaced by the loader as
// the literal flag name).
func (s Section) Executable() bool {
	for _, flag := range s.Flags {
		if flag == "EXECINSTR" || flag == "SHF_EXECINSTR" {
			return true
		}
	}
	return false
}

// Symbol describes one definition of a named entity in a Binary.
type Symbol struct {
	Address uint64
	Size    uint64
	Kind    string
	Flags   []string
	Section string
}

// Binary is the minimal surface the core needs from an ELF (or other
// object format) loader: raw bytes plus section and symbol metadata.
// ELF parsing itself lives outside the core.
type Binary struct {
	Bytes    []byte
	Sections map[string]Section
	Symbols  map[string][]Symbol
}

// Translator is the disassembler/lifter the core consumes, never
// produces. It is supplied by an external collaborator; internal/demoisa
// is a toy implementation used only for this module's own CLI and
// end-to-end tests.
type Translator interface {
	// Translate lowers bytes (starting at baseAddress) into P-code.
	// limit == 0 means "exhaust bytes". Returns the number of bytes
	// consumed and the resulting ops.
	Translate(bytes []byte, baseAddress uint64, limit uint64) (consumed uint64, ops []pcode.PCode)

	// Disassemble produces human-readable instruction records over the
	// same byte range, for bounding function extents and logging.
	Disassemble(bytes []byte, baseAddress uint64, limit uint64) (consumed uint64, instructions []pcode.Instruction)

	// AllRegisters returns the translator's complete varnode/name
	// bijection seed, built once at Machine initialization.
	AllRegisters() map[pcode.VarnodeData]string

	// ResolveSpace maps an integer space identity the translator embeds
	// in Constant varnodes back to an AddrSpace.
	ResolveSpace(id uint64) (pcode.AddrSpace, bool)
}
