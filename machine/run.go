package machine

import (
	"errors"
	"fmt"
	"log"

	"pcodevm/emulator"
)

// Run drives a fetch-decode-execute loop to completion or until
// maxSteps P-ops have executed, whichever comes first. It is a
// convenience on top of the core driver contract: callers can just as
// well drive Cursor.Next and Emulator.Step themselves.
func Run(m *Machine, emu *emulator.Emulator, cur *Cursor, maxSteps int) (steps int, err error) {
	for steps = 0; maxSteps <= 0 || steps < maxSteps; steps++ {
		op, ok := cur.Next(m)
		if !ok {
			return steps, nil
		}

		ctrl, err := emu.Step(op)
		if err != nil {
			var opErr *emulator.Error
			if errors.As(err, &opErr) && !opErr.Fatal() {
				log.Printf("recoverable: %v", opErr)
				continue
			}
			return steps, err
		}

		if ctrl.IsBranch() {
			if err := cur.SetAddress(ctrl.Target, m); err != nil {
				return steps, err
			}
		}
	}
	return steps, fmt.Errorf("machine: exceeded step cap of %d", maxSteps)
}
