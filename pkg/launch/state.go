package launch

import (
	"fmt"
	"sync"
	"time"

	"github.com/provide-io/launchkit/pkg/account"
	"github.com/provide-io/launchkit/pkg/config"
	"github.com/provide-io/launchkit/pkg/descriptor"
	"github.com/provide-io/launchkit/pkg/instance"
	"github.com/provide-io/launchkit/pkg/javart"
	"github.com/provide-io/launchkit/pkg/launcherr"
)

// Steps of a launch attempt. StepCancelled marks an attempt the user
// killed, which is not a crash.
const (
	StepCancelled       = 0
	StepSelectRuntime   = 1
	StepValidateFiles   = 2
	StepValidateAccount = 3
	StepLaunch          = 4
)

// State is one launch attempt.
type State struct {
	ID         int64                  `json:"id"`
	Instance   instance.Instance      `json:"instance"`
	Game       config.GameConfig      `json:"gameConfig"`
	Descriptor *descriptor.Descriptor `json:"descriptor"`
	Java       javart.Runtime         `json:"selectedJava"`
	Account    *account.Account       `json:"-"`
	AuthServer *account.AuthServer    `json:"-"`
	Step       int                    `json:"currentStep"`
	PID        int                    `json:"pid"`
	// FullCommand is the command line as a shell would run it.
	FullCommand string    `json:"fullCommand"`
	LogPath     string    `json:"logPath,omitempty"`
	StartedAt   time.Time `json:"startedAt,omitzero"`
	Exited      bool      `json:"exited"`
	ExitCode    int       `json:"exitCode"`

	process Process
}

// Cancelled reports whether the user killed the attempt.
func (s State) Cancelled() bool {
	return s.Step == StepCancelled
}

// Crashed reports whether the game exited abnormally on its own.
func (s State) Crashed() bool {
	return s.Exited && s.ExitCode != 0 && !s.Cancelled()
}

// Stack holds every launch attempt of the process. The last pushed state
// is the active attempt.
type Stack struct {
	mu     sync.Mutex
	states []*State
	nextID int64
}

// Push adds s as the active attempt and returns it with its id.
func (st *Stack) Push(s State) State {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.nextID++
	s.ID = st.nextID
	st.states = append(st.states, &s)
	return s
}

// Active returns the active attempt.
func (st *Stack) Active() (State, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.states) == 0 {
		return State{}, launcherr.ErrLaunchingStateNotFound
	}
	return *st.states[len(st.states)-1], nil
}

// UpdateActive applies fn to the active attempt under the lock.
func (st *Stack) UpdateActive(fn func(*State) error) (State, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.states) == 0 {
		return State{}, launcherr.ErrLaunchingStateNotFound
	}
	s := st.states[len(st.states)-1]
	if err := fn(s); err != nil {
		return State{}, err
	}
	return *s, nil
}

// Update applies fn to the attempt with id.
func (st *Stack) Update(id int64, fn func(*State)) (State, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, s := range st.states {
		if s.ID == id {
			fn(s)
			return *s, nil
		}
	}
	return State{}, fmt.Errorf("%w: id %d", launcherr.ErrLaunchingStateNotFound, id)
}

// Get returns the attempt with id.
func (st *Stack) Get(id int64) (State, error) {
	return st.Update(id, func(*State) {})
}

// List returns every attempt, oldest first.
func (st *Stack) List() []State {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]State, len(st.states))
	for i, s := range st.states {
		out[i] = *s
	}
	return out
}
