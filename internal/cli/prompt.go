package cli

import (
	"github.com/charmbracelet/huh"
)

// huhPrompter answers planner questions with interactive terminal
// forms. It satisfies release.Prompter.
type huhPrompter struct{}

func (huhPrompter) Select(prompt string, options []string, def int) (int, error) {
	opts := make([]huh.Option[int], len(options))
	for i, o := range options {
		opts[i] = huh.NewOption(o, i)
	}
	selected := def
	field := huh.NewSelect[int]().
		Title(prompt).
		Options(opts...).
		Value(&selected)
	if err := field.Run(); err != nil {
		return 0, err
	}
	return selected, nil
}

func (huhPrompter) Confirm(prompt string, def bool) (bool, error) {
	answer := def
	field := huh.NewConfirm().
		Title(prompt).
		Value(&answer)
	if err := field.Run(); err != nil {
		return false, err
	}
	return answer, nil
}

func (huhPrompter) Input(prompt, def string) (string, error) {
	answer := ""
	field := huh.NewInput().
		Title(prompt).
		Placeholder(def).
		Value(&answer)
	if err := field.Run(); err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}
