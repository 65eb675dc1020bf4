package main

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/davecgh/go-spew/spew"

	"pcodevm/emulator"
	"pcodevm/machine"
)

// inspectorModel is the Bubble Tea model for the step-by-step P-code
// inspector: "j"/space single-steps one P-op, "q" quits, and every step
// re-renders the disassembled instruction at the cursor's address (not
// the individual pending P-op) and the nominated result register.
type inspectorModel struct {
	m         *machine.Machine
	emu       *emulator.Emulator
	cur       *machine.Cursor
	resultReg string

	steps    int
	lastErr  error
	finished bool
}

func (im inspectorModel) Init() tea.Cmd { return nil }

func (im inspectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return im, nil
	}

	switch keyMsg.String() {
	case "q":
		return im, tea.Quit

	case " ", "j":
		if im.finished || im.lastErr != nil {
			return im, nil
		}
		op, ok := im.cur.Next(im.m)
		if !ok {
			im.finished = true
			return im, nil
		}
		ctrl, err := im.emu.Step(op)
		if err != nil {
			im.lastErr = err
			return im, nil
		}
		im.steps++
		if ctrl.IsBranch() {
			if err := im.cur.SetAddress(ctrl.Target, im.m); err != nil {
				im.lastErr = err
			}
		}
	}
	return im, nil
}

func (im inspectorModel) status() string {
	result := "?"
	if reg, ok := im.m.RegisterByName(im.resultReg); ok {
		if value, err := im.emu.ReadUnsigned(reg); err == nil {
			result = fmt.Sprintf("%#x", value)
		}
	}
	lines := []string{
		fmt.Sprintf("cursor: %#08x", im.cur.Address()),
		fmt.Sprintf("steps:  %d", im.steps),
		fmt.Sprintf("%s:    %s", im.resultReg, result),
	}
	if im.finished {
		lines = append(lines, "-- finished --")
	}
	if im.lastErr != nil {
		lines = append(lines, "error: "+im.lastErr.Error())
	}
	return strings.Join(lines, "\n")
}

func (im inspectorModel) View() string {
	next := "(at end)"
	if inst, ok := im.m.Instruction(im.cur.Address()); ok {
		next = inst.String()
	}
	return lipgloss.JoinVertical(
		lipgloss.Left,
		fmt.Sprintf("next instruction: %s", next),
		"",
		im.status(),
		"",
		"space/j: step   q: quit",
	)
}

// runInspector launches the interactive P-code inspector.
func runInspector(m *machine.Machine, emu *emulator.Emulator, cur *machine.Cursor, resultReg string) {
	program, err := tea.NewProgram(inspectorModel{
		m:         m,
		emu:       emu,
		cur:       cur,
		resultReg: resultReg,
	}).Run()
	if err != nil {
		fmt.Println("inspector error:", err)
		return
	}
	final := program.(inspectorModel)
	if final.lastErr != nil {
		fmt.Println("error:", final.lastErr)
		return
	}
	fmt.Println(spew.Sdump(final.status()))
}
