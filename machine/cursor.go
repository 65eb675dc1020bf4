package machine

import (
	"fmt"

	"pcodevm/emulator"
	"pcodevm/pcode"
)

// Cursor is a retargetable iterator over a Machine's decoded P-ops,
// grouped by instruction address. It has no reference back to the
// Machine so that a single Machine may back multiple sequential
// Cursors.
type Cursor struct {
	address    uint64
	index      int
	endAddress uint64
}

// Address is the instruction address the cursor currently sits at.
func (c *Cursor) Address() uint64 { return c.address }

// AtEnd reports whether the cursor has reached endAddress with its
// current group fully consumed.
func (c *Cursor) AtEnd(m *Machine) bool {
	group := m.pcodes[c.address]
	return c.address == c.endAddress && c.index >= len(group)
}

// Next advances through the current instruction's P-op group; once
// exhausted, it moves to the next decoded instruction address strictly
// greater than the current one. It returns (op, true), or (zero, false)
// once the cursor is at endAddress with its group exhausted.
func (c *Cursor) Next(m *Machine) (pcode.PCode, bool) {
	for {
		group, ok := m.pcodes[c.address]
		if !ok {
			panic(fmt.Sprintf("machine: no pcode group for cursor address %#08x", c.address))
		}

		if c.index < len(group) {
			op := group[c.index]
			c.index++
			if c.index == len(group) && c.address != c.endAddress {
				next, ok := m.nextInstructionAddress(c.address)
				if !ok {
					panic(fmt.Sprintf("machine: no instruction following %#08x", c.address))
				}
				c.address = next
				c.index = 0
			}
			return op, true
		}

		if c.address == c.endAddress {
			return pcode.PCode{}, false
		}

		next, ok := m.nextInstructionAddress(c.address)
		if !ok {
			panic(fmt.Sprintf("machine: no instruction following %#08x", c.address))
		}
		c.address = next
		c.index = 0
	}
}

// SetAddress retargets the cursor after a Branch control effect. A
// branch to endAddress parks the cursor so the next Next call returns
// false; any other target must name a decoded instruction with a
// non-empty P-op group, since Next has nowhere else to look.
func (c *Cursor) SetAddress(target uint64, m *Machine) error {
	if target == c.endAddress {
		c.address = target
		c.index = len(m.pcodes[target])
		return nil
	}
	if _, ok := m.instructions[target]; !ok {
		return emulator.WrapError(emulator.DecodeMismatch, target, 0, "no instruction at branch target %#08x", target)
	}
	if group, ok := m.pcodes[target]; !ok || len(group) == 0 {
		return emulator.WrapError(emulator.DecodeMismatch, target, 0, "no pcode group for branch target %#08x", target)
	}
	c.address = target
	c.index = 0
	return nil
}

