package scheduler

import (
	"errors"
	"sync"
)

// ErrSchedulerGone is returned by Manager.Schedule and SwitchTo when the
// target scheduler's generation no longer matches a live scheduler — it was
// destroyed after the ID was captured. This resolves the spec's open
// question on whether SwitchToSelectedScheduler must verify target
// liveness: it must, and this is the error it reports when that check
// fails.
var ErrSchedulerGone = errors.New("scheduler: target scheduler no longer exists")

// ID identifies one scheduler created by a Manager. CreateScheduler always
// appends a fresh slot and never reuses one, so the ID of a destroyed
// scheduler never identifies a later scheduler; every lookup checks both the
// slot's live flag and its generation.
type ID struct {
	threadID   uint64
	slot       int
	generation uint64
}

// ThreadID reports the logical thread the identified scheduler belongs to.
func (id ID) ThreadID() uint64 { return id.threadID }

// slotEntry is one row of a Manager's per-thread scheduler table.
type slotEntry struct {
	sched      *Scheduler
	generation uint64
	live       bool
}

// Manager owns every Scheduler created for a logical thread, and the
// per-thread activation stack used to answer "which scheduler is the
// currently running task allowed to reschedule itself on," per §4.3.
type Manager struct {
	mu     sync.Mutex
	bySlot map[uint64][]slotEntry // keyed by threadID
	active map[uint64][]ID        // per-thread activation stack
}

// NewManager constructs an empty Manager.
func NewManager() *Manager {
	return &Manager{
		bySlot: make(map[uint64][]slotEntry),
		active: make(map[uint64][]ID),
	}
}

// CreateScheduler allocates a new Scheduler owned by threadID and returns its
// stable ID. reservationHint sizes the scheduler's initial local queue
// capacity; pass 0 for no hint.
func (m *Manager) CreateScheduler(threadID uint64, reservationHint int) ID {
	m.mu.Lock()
	defer m.mu.Unlock()

	slots := m.bySlot[threadID]
	slot := len(slots)
	gen := uint64(1)
	entry := slotEntry{sched: newScheduler(threadID, reservationHint), generation: gen, live: true}
	m.bySlot[threadID] = append(slots, entry)

	return ID{threadID: threadID, slot: slot, generation: gen}
}

// lookup returns the live Scheduler for id, or nil if it has been destroyed
// or never existed.
func (m *Manager) lookup(id ID) *Scheduler {
	slots := m.bySlot[id.threadID]
	if id.slot < 0 || id.slot >= len(slots) {
		return nil
	}
	e := slots[id.slot]
	if !e.live || e.generation != id.generation {
		return nil
	}
	return e.sched
}

// Get returns the Scheduler for id and true, or (nil, false) if it is gone.
func (m *Manager) Get(id ID) (*Scheduler, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.lookup(id)
	return s, s != nil
}

// Destroy tears down the scheduler identified by id: every queued handle is
// destroyed (per Scheduler.Close) and the ID is permanently invalidated —
// later lookups return ErrSchedulerGone rather than silently resurrecting a
// reused slot.
func (m *Manager) Destroy(id ID) {
	m.mu.Lock()
	slots := m.bySlot[id.threadID]
	if id.slot < 0 || id.slot >= len(slots) {
		m.mu.Unlock()
		return
	}
	e := &slots[id.slot]
	if !e.live || e.generation != id.generation {
		m.mu.Unlock()
		return
	}
	sched := e.sched
	e.live = false
	e.sched = nil
	m.mu.Unlock()

	sched.Close()
}

// Schedule enqueues h onto the scheduler identified by id, from the logical
// thread callerThreadID. Returns ErrSchedulerGone if the scheduler has since
// been destroyed.
func (m *Manager) Schedule(callerThreadID uint64, id ID, h Handle) error {
	s, ok := m.Get(id)
	if !ok {
		return ErrSchedulerGone
	}
	s.Schedule(callerThreadID, h)
	return nil
}

// Activate pushes id onto threadID's activation stack, returning a function
// that pops it back off — intended to be deferred, mirroring the scoped
// "currently running on scheduler X" marker described in §4.3.
//
// Per §4.3, "activation must occur on id's owner thread; violations are
// programmer errors" — Activate panics if threadID isn't id's owner, or if
// id no longer identifies a live scheduler, rather than silently recording
// a nonsensical activation.
func (m *Manager) Activate(threadID uint64, id ID) (deactivate func()) {
	if id.threadID != threadID {
		panic("scheduler: Activate called with an id not owned by threadID")
	}

	m.mu.Lock()
	if m.lookup(id) == nil {
		m.mu.Unlock()
		panic("scheduler: Activate called with an invalid or destroyed scheduler id")
	}
	m.active[threadID] = append(m.active[threadID], id)
	m.mu.Unlock()

	popped := false
	return func() {
		if popped {
			return
		}
		popped = true
		m.mu.Lock()
		defer m.mu.Unlock()
		stack := m.active[threadID]
		n := len(stack)
		if n == 0 {
			panic("scheduler: deactivate called with an empty activation stack")
		}
		m.active[threadID] = stack[:n-1]
	}
}

// GetActivatedID returns the innermost scheduler currently activated on
// threadID, and true — or false if nothing is activated there (the thread
// is not presently running inside any scheduler's Update).
func (m *Manager) GetActivatedID(threadID uint64) (ID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.active[threadID]
	if len(stack) == 0 {
		return ID{}, false
	}
	return stack[len(stack)-1], true
}

// SwitchTo reschedules h onto the scheduler target, verifying target is
// still live first. This is the Go-native form of the original
// SwitchToSelectedScheduler: the spec leaves unresolved what happens if the
// target has since been destroyed, and TaskKit resolves that by surfacing
// ErrSchedulerGone instead of silently dropping or panicking.
func (m *Manager) SwitchTo(callerThreadID uint64, target ID, h Handle) error {
	return m.Schedule(callerThreadID, target, h)
}
