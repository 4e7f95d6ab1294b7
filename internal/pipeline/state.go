package pipeline

import (
	"sync"
	"time"

	"github.com/jonathan/idea-forge/internal/types"
)

// State is a node of the iteration state machine.
type State string

const (
	StateInit                 State = "INIT"
	StateAnalyzing            State = "ANALYZING"
	StateReviewing            State = "REVIEWING"
	StateFactChecking         State = "FACT_CHECKING"
	StateDeciding             State = "DECIDING"
	StateDone                 State = "DONE"
	StateMaxIterationsReached State = "MAX_ITERATIONS_REACHED"
	StateTerminal             State = "TERMINAL"
)

// machine records the transitions of one run. Reviewing and fact-checking run
// in parallel, so the machine can sit in more than one state at a time.
type machine struct {
	mu          sync.Mutex
	current     []State
	transitions []types.Transition
	now         func() time.Time
}

func newMachine(now func() time.Time) *machine {
	return &machine{current: []State{StateInit}, now: now}
}

// enter moves every current state to next.
func (m *machine) enter(next State, iteration int) {
	m.fork(iteration, next)
}

// fork moves every current state to each of next.
func (m *machine) fork(iteration int, next ...State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	at := m.now().UTC()
	for _, from := range m.current {
		for _, to := range next {
			m.transitions = append(m.transitions, types.Transition{
				From:      string(from),
				To:        string(to),
				Iteration: iteration,
				At:        at,
			})
		}
	}
	m.current = append([]State(nil), next...)
}

func (m *machine) states() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]State(nil), m.current...)
}

func (m *machine) log() []types.Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Transition(nil), m.transitions...)
}
