// Package session tracks the state of one provisioning run: its stage, the
// status log shown to the user and the artifacts produced.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/apex/log"
	"github.com/routervpn/configurator/internal/models"
)

// Stage of a provisioning run.
type Stage int

const (
	NotStarted Stage = iota
	InProgress
	Done
)

func (s Stage) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case InProgress:
		return "in-progress"
	case Done:
		return "done"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// ErrInProgress is returned by Begin while another run is active.
var ErrInProgress = errors.New("a provisioning run is already in progress")

// Snapshot is a copy of the session state.
type Snapshot struct {
	Stage  Stage
	Log    []string
	Result *models.ConfigResult
}

// Last returns the newest log line, or "".
func (s Snapshot) Last() string {
	if len(s.Log) == 0 {
		return ""
	}
	return s.Log[len(s.Log)-1]
}

// Session is safe for concurrent use. Listeners registered with OnUpdate are
// called synchronously after every change, outside the session lock.
type Session struct {
	mu        sync.Mutex
	stage     Stage
	lines     []string
	result    *models.ConfigResult
	listeners []func(Snapshot)
	logger    log.Interface
}

// New creates a session in the NotStarted stage.
func New(logger log.Interface) *Session {
	if logger == nil {
		logger = log.Log
	}
	return &Session{logger: logger}
}

// OnUpdate registers fn to receive a snapshot after every change.
func (s *Session) OnUpdate(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Begin moves the session to InProgress and clears the log of any previous
// run. It fails with ErrInProgress if a run is already active.
func (s *Session) Begin() error {
	s.mu.Lock()
	if s.stage == InProgress {
		s.mu.Unlock()
		return ErrInProgress
	}
	s.stage = InProgress
	s.lines = nil
	s.result = nil
	s.mu.Unlock()
	s.notify()
	return nil
}

// Append adds msg to the log. With sameLine set the text is appended to the
// last line instead, for sub-progress such as "Pinging host... done".
func (s *Session) Append(msg string, sameLine bool) {
	s.mu.Lock()
	if sameLine && len(s.lines) > 0 {
		s.lines[len(s.lines)-1] += msg
	} else {
		s.lines = append(s.lines, msg)
	}
	line := s.lines[len(s.lines)-1]
	s.mu.Unlock()
	s.logger.Info(line)
	s.notify()
}

// Fail records err against phase and returns the session to NotStarted so
// the user can retry. The log is preserved.
func (s *Session) Fail(phase string, err error) {
	msg := fmt.Sprintf("%s failed: %s", phase, err)
	s.mu.Lock()
	s.lines = append(s.lines, msg)
	s.stage = NotStarted
	s.mu.Unlock()
	s.logger.WithError(err).WithField("phase", phase).Error("provisioning failed")
	s.notify()
}

// Finish stores the artifacts and marks the run Done.
func (s *Session) Finish(result *models.ConfigResult) {
	s.mu.Lock()
	s.stage = Done
	s.result = result
	s.mu.Unlock()
	s.notify()
}

// Reset discards all state, as when the wizard is restarted.
func (s *Session) Reset() {
	s.mu.Lock()
	s.stage = NotStarted
	s.lines = nil
	s.result = nil
	s.mu.Unlock()
	s.notify()
}

// Stage returns the current stage.
func (s *Session) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Stage:  s.stage,
		Log:    append([]string(nil), s.lines...),
		Result: s.result,
	}
}

func (s *Session) notify() {
	s.mu.Lock()
	snap := s.snapshotLocked()
	listeners := append(([]func(Snapshot))(nil), s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(snap)
	}
}
