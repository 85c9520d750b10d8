package dispatch

import "sync"

type deliveryKey struct {
	disasterID string
	version    int64
}

// ledger remembers which event versions one connection has been sent.
type ledger struct {
	mu        sync.Mutex
	delivered map[deliveryKey]struct{}
}

// claim records the key and reports whether it was new.
func (l *ledger) claim(k deliveryKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.delivered[k]; ok {
		return false
	}
	l.delivered[k] = struct{}{}
	return true
}

// ledgers maps connection ids to their ledger. The lock only guards the
// map; each ledger has its own.
type ledgers struct {
	mu     sync.Mutex
	byConn map[string]*ledger
}

func (ls *ledgers) get(connID string) *ledger {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	l, ok := ls.byConn[connID]
	if !ok {
		l = &ledger{delivered: make(map[deliveryKey]struct{})}
		ls.byConn[connID] = l
	}
	return l
}

func (ls *ledgers) forget(connID string) {
	ls.mu.Lock()
	delete(ls.byConn, connID)
	ls.mu.Unlock()
}

func (ls *ledgers) len() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.byConn)
}
