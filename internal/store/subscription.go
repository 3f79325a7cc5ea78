package store

import (
	"sort"
	"sync"
)

// subscription delivers snapshots to one consumer on its own goroutine.
// The initial snapshot is always delivered first. After that the mailbox holds at most
// one pending snapshot; newer snapshots replace older ones.
type subscription struct {
	parts      []string
	initial    Snapshot
	onSnapshot func(Snapshot)
	onError    func(error)

	mailbox chan Snapshot
	errs    chan error
	done    chan struct{}
	once    sync.Once
}

func newSubscription(parts []string, initial Snapshot, onSnapshot func(Snapshot), onError func(error)) *subscription {
	s := &subscription{
		parts:      parts,
		initial:    initial,
		onSnapshot: onSnapshot,
		onError:    onError,
		mailbox:    make(chan Snapshot, 1),
		errs:       make(chan error, 1),
		done:       make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *subscription) run() {
	select {
	case <-s.done:
		return
	default:
		s.onSnapshot(s.initial)
	}
	for {
		select {
		case <-s.done:
			return
		case snap := <-s.mailbox:
			s.onSnapshot(snap)
		case err := <-s.errs:
			if s.onError != nil {
				s.onError(err)
			}
		}
	}
}

func (s *subscription) offer(snap Snapshot) {
	for {
		select {
		case <-s.done:
			return
		case s.mailbox <- snap:
			return
		default:
		}
		// drop the stale pending snapshot and retry
		select {
		case <-s.mailbox:
		default:
		}
	}
}

func (s *subscription) fail(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// childDiffer turns a stream of parent snapshots into child-level events.
func childDiffer(l ChildListener) func(Snapshot) {
	var prev map[string]Snapshot
	return func(snap Snapshot) {
		children := snap.Children()
		cur := make(map[string]Snapshot, len(children))
		for _, c := range children {
			cur[c.Key] = c
		}

		if prev == nil && l.SkipInitial {
			prev = cur
			return
		}

		for _, old := range sortedSnapshots(prev) {
			if _, ok := cur[old.Key]; !ok && l.Removed != nil {
				l.Removed(old)
			}
		}
		for _, c := range children {
			old, ok := prev[c.Key]
			switch {
			case !ok:
				if l.Added != nil {
					l.Added(c)
				}
			case string(old.Raw) != string(c.Raw):
				if l.Changed != nil {
					l.Changed(c)
				}
			}
		}
		prev = cur
	}
}

func sortedSnapshots(m map[string]Snapshot) []Snapshot {
	out := make([]Snapshot, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
