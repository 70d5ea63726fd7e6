// Package job tracks spawned processes as numbered jobs and drives their
// suspend/resume/terminate lifecycle.
package job

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"syscall"
)

// Status is a job lifecycle state.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusDone    Status = "done"
)

// Job is one tracked unit of execution.
type Job struct {
	ID         int
	PID        int
	Command    string
	Status     Status
	Background bool
	ExitCode   int

	process *os.Process
	done    chan struct{}
}

// Manager assigns job ids and tracks live jobs. Process exit callbacks and
// signal handlers run on their own goroutines, so every table access is
// mutex guarded.
type Manager struct {
	mu         sync.Mutex
	jobs       map[int]*Job
	foreground *Job
}

func NewManager() *Manager {
	return &Manager{jobs: make(map[int]*Job)}
}

// AddJob registers a new job. Ids are assigned monotonically starting at 1
// and stay unique among live jobs; an id is only reused after removal.
func (m *Manager) AddJob(command string, process *os.Process, background bool) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := 1
	for existing := range m.jobs {
		if existing >= id {
			id = existing + 1
		}
	}

	j := &Job{
		ID:         id,
		Command:    command,
		Status:     StatusRunning,
		Background: background,
		process:    process,
		done:       make(chan struct{}),
	}
	if process != nil {
		j.PID = process.Pid
	}
	m.jobs[id] = j

	if !background {
		m.foreground = j
	}
	return j
}

// AttachProcess binds a spawned process to an already-registered job,
// used when the job entry is created before the first process starts.
func (m *Manager) AttachProcess(id int, p *os.Process) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j := m.jobs[id]
	if j == nil || p == nil {
		return
	}
	j.process = p
	j.PID = p.Pid
}

// Get returns the job with the given id, or nil.
func (m *Manager) Get(id int) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id]
}

// Jobs returns all live jobs ordered by id.
func (m *Manager) Jobs() []*Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// MarkDone records process completion. The job stays listed until it is
// removed so `jobs` can report it once, matching interactive shells.
func (m *Manager) MarkDone(id, exitCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j := m.jobs[id]
	if j == nil || j.Status == StatusDone {
		return
	}
	j.Status = StatusDone
	j.ExitCode = exitCode
	close(j.done)

	if m.foreground == j {
		m.foreground = nil
	}
}

// RemoveJob drops a job from the table. Unless force is set, only done
// jobs can be removed; removing a live job is what `disown` does with
// force.
func (m *Manager) RemoveJob(id int, force bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	j := m.jobs[id]
	if j == nil {
		return false
	}
	if j.Status != StatusDone && !force {
		return false
	}
	delete(m.jobs, id)
	if m.foreground == j {
		m.foreground = nil
	}
	return true
}

// SuspendJob delivers SIGSTOP and marks the job stopped.
func (m *Manager) SuspendJob(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j := m.jobs[id]
	if j == nil {
		return fmt.Errorf("job: no such job %d", id)
	}
	if j.Status != StatusRunning {
		return fmt.Errorf("job: job %d is not running", id)
	}
	if err := m.signalLocked(j, syscall.SIGSTOP); err != nil {
		return err
	}
	j.Status = StatusStopped
	if m.foreground == j {
		m.foreground = nil
	}
	return nil
}

// ResumeJobForeground delivers SIGCONT and makes the job the foreground
// job, so interactive signals route to it.
func (m *Manager) ResumeJobForeground(id int) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j := m.jobs[id]
	if j == nil {
		return nil, fmt.Errorf("job: no such job %d", id)
	}
	if j.Status == StatusDone {
		return nil, fmt.Errorf("job: job %d has terminated", id)
	}
	if j.Status == StatusStopped {
		if err := m.signalLocked(j, syscall.SIGCONT); err != nil {
			return nil, err
		}
	}
	j.Status = StatusRunning
	j.Background = false
	m.foreground = j
	return j, nil
}

// ResumeJobBackground delivers SIGCONT leaving the job in the background.
func (m *Manager) ResumeJobBackground(id int) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j := m.jobs[id]
	if j == nil {
		return nil, fmt.Errorf("job: no such job %d", id)
	}
	if j.Status == StatusDone {
		return nil, fmt.Errorf("job: job %d has terminated", id)
	}
	if j.Status == StatusStopped {
		if err := m.signalLocked(j, syscall.SIGCONT); err != nil {
			return nil, err
		}
	}
	j.Status = StatusRunning
	j.Background = true
	if m.foreground == j {
		m.foreground = nil
	}
	return j, nil
}

// TerminateJob delivers the given signal to the job's process.
func (m *Manager) TerminateJob(id int, sig os.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j := m.jobs[id]
	if j == nil {
		return fmt.Errorf("job: no such job %d", id)
	}
	s, ok := sig.(syscall.Signal)
	if !ok {
		s = syscall.SIGTERM
	}
	return m.signalLocked(j, s)
}

// WaitForJob blocks until the job reaches its terminal state and returns
// it, or nil when the id is unknown.
func (m *Manager) WaitForJob(id int) *Job {
	m.mu.Lock()
	j := m.jobs[id]
	m.mu.Unlock()

	if j == nil {
		return nil
	}
	<-j.done
	return j
}

// Foreground returns the current foreground job, or nil.
func (m *Manager) Foreground() *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.foreground
}

// ClearForeground detaches the foreground job without touching it, used
// when a foreground command completes normally.
func (m *Manager) ClearForeground() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.foreground = nil
}

// SignalForeground routes an interactive terminal signal (Ctrl-C, Ctrl-Z)
// to the foreground job only. Background jobs are never touched by
// interactive signals; they must be targeted with TerminateJob.
func (m *Manager) SignalForeground(sig os.Signal) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	j := m.foreground
	if j == nil {
		return false
	}
	s, ok := sig.(syscall.Signal)
	if !ok {
		return false
	}
	if err := m.signalLocked(j, s); err != nil {
		return false
	}
	if s == syscall.SIGTSTP || s == syscall.SIGSTOP {
		j.Status = StatusStopped
		m.foreground = nil
	}
	return true
}

// signalLocked delivers sig to the job. The job's first process leads
// its own process group, so the group is signaled to reach every
// pipeline stage; a direct signal is the fallback once the group is
// gone.
func (m *Manager) signalLocked(j *Job, sig syscall.Signal) error {
	if j.process == nil {
		return fmt.Errorf("job: job %d has no process", j.ID)
	}
	if err := syscall.Kill(-j.process.Pid, sig); err == nil {
		return nil
	}
	return j.process.Signal(sig)
}

// Reap removes all done jobs and returns them, for end-of-prompt
// notifications like bash's "[1]+ Done".
func (m *Manager) Reap() []*Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	var reaped []*Job
	for id, j := range m.jobs {
		if j.Status == StatusDone {
			reaped = append(reaped, j)
			delete(m.jobs, id)
		}
	}
	sort.Slice(reaped, func(i, k int) bool { return reaped[i].ID < reaped[k].ID })
	return reaped
}
