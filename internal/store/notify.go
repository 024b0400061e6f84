package store

import (
	"sync"

	"github.com/danyelangel/automata/internal/agent"
)

// RecordChange is delivered to subscribers after an agent record is written.
// Before is nil for newly created records. Snapshots are private copies;
// subscribers may inspect them freely but mutations are not written back.
type RecordChange struct {
	Before *agent.Record
	After  *agent.Record
}

// SubscribeAgentChanges registers a callback invoked synchronously after
// every committed agent write. Callbacks that need to do real work should
// hand off to their own goroutines.
func (s *Store) SubscribeAgentChanges(fn func(RecordChange)) {
	s.notifier.subscribe(fn)
}

type notifier struct {
	mu   sync.RWMutex
	subs []func(RecordChange)
}

func (n *notifier) subscribe(fn func(RecordChange)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs = append(n.subs, fn)
}

func (n *notifier) emit(change RecordChange) {
	n.mu.RLock()
	subs := append([]func(RecordChange){}, n.subs...)
	n.mu.RUnlock()

	for _, fn := range subs {
		fn(change)
	}
}
