package release

import (
	"fmt"
)

// Prompter answers the interactive questions planning asks: picking a
// version from a menu, confirming the plan, and entering free-form
// values. The CLI backs it with terminal forms; tests script it.
type Prompter interface {
	Select(prompt string, options []string, def int) (int, error)
	Confirm(prompt string, def bool) (bool, error)
	Input(prompt, def string) (string, error)
}

// ScriptedPrompter replays queued answers in order. Running out of
// answers is an error, which keeps non-interactive runs from hanging on
// a question nobody will answer.
type ScriptedPrompter struct {
	Selections []int
	Confirms   []bool
	Inputs     []string
}

func (s *ScriptedPrompter) Select(prompt string, options []string, def int) (int, error) {
	if len(s.Selections) == 0 {
		return 0, fmt.Errorf("no scripted answer for select %q", prompt)
	}
	n := s.Selections[0]
	s.Selections = s.Selections[1:]
	if n < 0 || n >= len(options) {
		return 0, fmt.Errorf("scripted answer %d out of range for select %q", n, prompt)
	}
	return n, nil
}

func (s *ScriptedPrompter) Confirm(prompt string, def bool) (bool, error) {
	if len(s.Confirms) == 0 {
		return false, fmt.Errorf("no scripted answer for confirm %q", prompt)
	}
	b := s.Confirms[0]
	s.Confirms = s.Confirms[1:]
	return b, nil
}

func (s *ScriptedPrompter) Input(prompt, def string) (string, error) {
	if len(s.Inputs) == 0 {
		return "", fmt.Errorf("no scripted answer for input %q", prompt)
	}
	v := s.Inputs[0]
	s.Inputs = s.Inputs[1:]
	if v == "" {
		return def, nil
	}
	return v, nil
}
