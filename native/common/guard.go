package common

import "errors"

// ModuleBank is the pause key of the bank module.
const ModuleBank = "bank"

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

// StaticPauses is a PauseView backed by a fixed set of paused modules.
type StaticPauses map[string]bool

// IsPaused implements PauseView.
func (p StaticPauses) IsPaused(module string) bool { return p[module] }

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
