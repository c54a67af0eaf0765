package engine

import "sync"

// Strategy is a supervisor's restart policy when a supervised actor
// exits.
type Strategy int

const (
	// RestartOne recreates only the exited child.
	RestartOne Strategy = iota
	// RestartAll stops and recreates every sibling under the same
	// supervisor, using each sibling's own factory.
	RestartAll
)

func (s Strategy) String() string {
	if s == RestartAll {
		return "RestartAll"
	}
	return "RestartOne"
}

// Factory produces a replacement PID for a restarted child, or an error
// if the replacement could not be created.
type Factory func() (PID, error)

// ChildSpec is what a supervisor needs to recreate a child on exit.
type ChildSpec struct {
	Factory  Factory
	Strategy Strategy
}

// supervisorEntry is a live child under supervision: its spec plus the
// PID it currently resolves to (updated across restarts).
type supervisorEntry struct {
	pid  PID
	spec ChildSpec
}

// supervisor is the engine's single global supervisor: supervised PID ->
// entry. One instance lives on Engine; path-scoped supervisors are
// separate instances anchored in the path registry.
type supervisor struct {
	mu      sync.Mutex
	entries map[PID]*supervisorEntry
}

func newSupervisor() *supervisor {
	return &supervisor{entries: make(map[PID]*supervisorEntry)}
}

func (s *supervisor) add(pid PID, spec ChildSpec) {
	s.mu.Lock()
	s.entries[pid] = &supervisorEntry{pid: pid, spec: spec}
	s.mu.Unlock()
}

func (s *supervisor) remove(pid PID) {
	s.mu.Lock()
	delete(s.entries, pid)
	s.mu.Unlock()
}

func (s *supervisor) lookup(pid PID) (*supervisorEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[pid]
	return e, ok
}

// snapshot returns every entry sharing the same supervisor, used by
// RestartAll, snapshotted under lock so the restart pass doesn't race
// concurrent Supervise/Stop calls.
func (s *supervisor) snapshot() []*supervisorEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*supervisorEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out
}

func (s *supervisor) rekey(oldPID, newPID PID, spec ChildSpec) {
	s.mu.Lock()
	delete(s.entries, oldPID)
	s.entries[newPID] = &supervisorEntry{pid: newPID, spec: spec}
	s.mu.Unlock()
}

func (s *supervisor) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *supervisor) pids() []PID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PID, 0, len(s.entries))
	for pid := range s.entries {
		out = append(out, pid)
	}
	return out
}

// pathSupervisor is a path-scoped supervisor: same shape as the global
// one, anchored at a path-registry node instead of the engine singleton.
type pathSupervisor struct {
	*supervisor
	path string
}

func newPathSupervisor(path string) *pathSupervisor {
	return &pathSupervisor{supervisor: newSupervisor(), path: path}
}

// Supervise registers pid under the engine's global supervisor with spec,
// so that a future exit of pid triggers spec.Strategy.
func (e *Engine) Supervise(pid PID, spec ChildSpec) {
	e.globalSupervisor.add(pid, spec)
}

// Unsupervise removes pid from the global supervisor, if present.
func (e *Engine) Unsupervise(pid PID) {
	e.globalSupervisor.remove(pid)
}

// ChildrenCount returns the number of children currently tracked by the
// global supervisor.
func (e *Engine) ChildrenCount() int { return e.globalSupervisor.count() }

// ChildPIDs returns the PIDs currently tracked by the global supervisor.
func (e *Engine) ChildPIDs() []PID { return e.globalSupervisor.pids() }

// CreatePathSupervisor installs a fresh, empty supervisor at path,
// replacing any supervisor already there.
func (e *Engine) CreatePathSupervisor(path string) {
	e.registry.setPathSupervisor(path, newPathSupervisor(path))
}

// PathSupervise binds pid to the supervisor anchored at path with spec.
// It returns ErrNotFound if no supervisor has been created at path yet.
func (e *Engine) PathSupervise(path string, pid PID, spec ChildSpec) error {
	sup := e.registry.pathSupervisorAt(path)
	if sup == nil {
		return newError("engine.path_supervise", ErrNotFound)
	}
	sup.add(pid, spec)
	e.registry.bindPathSupervised(pid, sup)
	return nil
}

// applyRestart runs the restart strategy for a dead supervised child,
// under either the global supervisor or a path-scoped one.
func (e *Engine) applyRestart(sup *supervisor, dead PID) {
	entry, ok := sup.lookup(dead)
	if !ok {
		return
	}
	switch entry.spec.Strategy {
	case RestartOne:
		e.restartOne(sup, entry)
	case RestartAll:
		e.restartAll(sup)
	}
}

func (e *Engine) restartOne(sup *supervisor, entry *supervisorEntry) {
	sup.remove(entry.pid)
	newPID, err := entry.spec.Factory()
	if err != nil {
		e.log("supervisor: restart of %s failed: %v", entry.pid, err)
		return
	}
	sup.rekey(entry.pid, newPID, entry.spec)
}

func (e *Engine) restartAll(sup *supervisor) {
	siblings := sup.snapshot()

	// Remove every sibling from the supervisor before stopping any of
	// them: Stop drives a live sibling's own exit path straight into
	// finalizeActor -> applyRestart, and if its entry were still present
	// that would find it and re-enter restartAll, stopping and
	// respawning the same set again.
	for _, sib := range siblings {
		sup.remove(sib.pid)
	}
	for _, sib := range siblings {
		if e.IsAlive(sib.pid) {
			e.Stop(sib.pid)
		}
	}
	for _, sib := range siblings {
		newPID, err := sib.spec.Factory()
		if err != nil {
			e.log("supervisor: restart-all factory for %s failed: %v", sib.pid, err)
			continue
		}
		sup.add(newPID, sib.spec)
	}
}
