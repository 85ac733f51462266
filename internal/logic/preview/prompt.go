package preview

import "github.com/charmbracelet/huh"

// TerminalConfirmer asks the operator on the controlling terminal whether
// the previewed settings looked good.
type TerminalConfirmer struct{}

var _ Confirmer = TerminalConfirmer{}

func (TerminalConfirmer) Confirm() (bool, error) {
	ok := true
	err := huh.NewConfirm().
		Title("Did the settings look good?").
		Affirmative("Yes (continue)").
		Negative("No (exit)").
		Value(&ok).
		Run()
	if err != nil {
		return false, err
	}
	return ok, nil
}
