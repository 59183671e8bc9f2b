package service

import (
	"hash/fnv"
	"sync"

	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/domain"
)

// roomLocks serialises work per room with a fixed set of striped mutexes.
// Two rooms may share a stripe; no caller holds more than one stripe.
type roomLocks struct {
	stripes []sync.Mutex
}

func newRoomLocks(n int) *roomLocks {
	if n <= 0 {
		n = 64
	}
	return &roomLocks{stripes: make([]sync.Mutex, n)}
}

// lock acquires the stripe for key and returns its unlock function.
func (l *roomLocks) lock(key domain.RoomKey) func() {
	h := fnv.New32a()
	h.Write([]byte(key.String()))
	m := &l.stripes[h.Sum32()%uint32(len(l.stripes))]
	m.Lock()
	return m.Unlock
}
