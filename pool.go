package cadence

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Pool is the fixed-capacity receive buffer arena. It preallocates exactly
// Config.BufferCount slots of Config.WindowSize() bytes each, so the number of
// admitted slots bounds the number of concurrent connections. Admission and
// release are O(1) freelist operations; no allocation happens after
// construction.
//
// The pool also enforces the MSL quiet time: a peer tuple released less than
// 2*MSL ago is refused admission until the window has passed.
//
type Pool struct {
	slots    []*Slot
	freelist []int
	quiet    map[string]time.Time
	msl      time.Duration
	now      func() time.Time
	ii       InstrumentInstance
}

func NewPool(cfg *Config, ii InstrumentInstance) *Pool {
	p := &Pool{
		slots:    make([]*Slot, cfg.BufferCount),
		freelist: make([]int, cfg.BufferCount),
		quiet:    make(map[string]time.Time),
		msl:      cfg.Msl(),
		now:      time.Now,
		ii:       ii,
	}
	for id := 0; id < cfg.BufferCount; id++ {
		p.slots[id] = newSlot(id, uint32(cfg.WindowSize()), p)
		p.freelist[id] = id
	}
	return p
}

// Admit reserves a slot for the given peer tuple. It fails with
// ErrResourceExhausted when the arena is empty or the tuple is still inside
// its quiet-time window. Failure has no side effects.
func (self *Pool) Admit(peer string) (*Slot, error) {
	self.purgeQuiet()
	if _, found := self.quiet[peer]; found {
		if self.ii != nil {
			self.ii.AdmissionRejected(peer)
		}
		return nil, errors.Wrapf(ErrResourceExhausted, "peer [%s] inside quiet time", peer)
	}
	if len(self.freelist) < 1 {
		if self.ii != nil {
			self.ii.AdmissionRejected(peer)
		}
		return nil, errors.Wrapf(ErrResourceExhausted, "no free slot for peer [%s]", peer)
	}
	id := self.freelist[len(self.freelist)-1]
	self.freelist = self.freelist[:len(self.freelist)-1]
	slot := self.slots[id]
	slot.state = slotOwned
	slot.peer = peer
	if self.ii != nil {
		self.ii.Admitted(peer, len(self.freelist))
	}
	return slot, nil
}

// Release returns an owned slot to the freelist and starts the quiet-time
// window for its peer tuple. It is called exactly once per admission,
// regardless of teardown cause; a second call is a programming error.
func (self *Pool) Release(slot *Slot) error {
	if slot.state != slotOwned {
		logrus.Errorf("double release of slot [%d]", slot.id)
		return errors.Errorf("slot [%d] is not owned", slot.id)
	}
	slot.state = slotFree
	slot.Used = 0
	self.quiet[slot.peer] = self.now()
	self.freelist = append(self.freelist, slot.id)
	if self.ii != nil {
		self.ii.Released(slot.peer, len(self.freelist))
	}
	slot.peer = ""
	return nil
}

// purgeQuiet drops quiet-time entries whose window has passed, so the map
// stays bounded by the tuples released within the last 2*MSL.
func (self *Pool) purgeQuiet() {
	now := self.now()
	for peer, at := range self.quiet {
		if now.Sub(at) >= 2*self.msl {
			delete(self.quiet, peer)
		}
	}
}

// Free reports the number of unowned slots.
func (self *Pool) Free() int {
	return len(self.freelist)
}
