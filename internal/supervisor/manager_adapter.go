package supervisor

import "github.com/lyzr/flowctl/internal/coordinator"

// managerLister adapts *coordinator.Manager to RunLister, converting its
// concrete []*Coordinator into the narrower []RunningRun the detector
// actually depends on.
type managerLister struct {
	manager *coordinator.Manager
}

// NewManagerLister wraps manager as a RunLister for NewTimeoutDetector.
func NewManagerLister(manager *coordinator.Manager) RunLister {
	return managerLister{manager: manager}
}

func (l managerLister) ListRunning() []RunningRun {
	running := l.manager.ListRunning()
	out := make([]RunningRun, len(running))
	for i, co := range running {
		out[i] = co
	}
	return out
}
