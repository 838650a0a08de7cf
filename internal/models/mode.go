package models

import "fmt"

// Mode is the validated combination of CA source, router family and configurator.
// Build it with NewMode; the zero value is invalid.
type Mode struct {
	CA           CAMode
	Router       RouterMode
	Configurator ConfiguratorMode
}

// NewMode validates a mode combination.
func NewMode(ca CAMode, router RouterMode, configurator ConfiguratorMode) (Mode, error) {
	switch ca {
	case CAGenerateNew, CAUseExistingLocal, CAUseExistingRouter:
	default:
		return Mode{}, fmt.Errorf("unsupported CA mode: %q", ca)
	}
	switch router {
	case RouterDDWRT, RouterEdge:
	default:
		return Mode{}, fmt.Errorf("unsupported router mode: %q", router)
	}
	switch configurator {
	case ConfiguratorManual, ConfiguratorSSH:
	default:
		return Mode{}, fmt.Errorf("unsupported configurator mode: %q", configurator)
	}
	if router == RouterDDWRT && ca == CAUseExistingRouter {
		return Mode{}, fmt.Errorf("CA mode %s requires router mode %s", ca, RouterEdge)
	}
	if router == RouterDDWRT && configurator == ConfiguratorSSH {
		return Mode{}, fmt.Errorf("configurator mode %s requires router mode %s", configurator, RouterEdge)
	}
	return Mode{CA: ca, Router: router, Configurator: configurator}, nil
}

// NeedsSSH reports whether the run opens SSH sessions to the router.
func (m Mode) NeedsSSH() bool {
	return m.Configurator == ConfiguratorSSH || m.CA == CAUseExistingRouter
}

// AutoConfigure reports whether the run pushes configuration over SSH.
func (m Mode) AutoConfigure() bool {
	return m.Configurator == ConfiguratorSSH && m.Router == RouterEdge
}
