package cadence

// slotState tracks ownership of a single receive buffer slot.
type slotState uint8

const (
	slotFree slotState = iota
	slotOwned
)

// Slot is one fixed-size region of the receive buffer arena. A connection owns
// at most one Slot for its whole lifetime; the Slot returns to the pool exactly
// once, at teardown.
//
type Slot struct {
	Data []byte
	Size uint32
	Used uint32

	id    int
	peer  string
	state slotState
	pool  *Pool
}

func newSlot(id int, size uint32, pool *Pool) *Slot {
	return &Slot{
		Data: make([]byte, size),
		Size: size,
		Used: 0,
		id:   id,
		pool: pool,
	}
}

// Peer is the peer/port tuple the slot was admitted for.
func (self *Slot) Peer() string {
	return self.peer
}

// Release returns the slot to its pool. Releasing an already-free slot is a
// programming error and is signaled, never ignored.
func (self *Slot) Release() error {
	return self.pool.Release(self)
}
