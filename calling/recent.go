package calling

import "github.com/opd-ai/callcore/signaling"

// recentIDs remembers the last concluded call ids, oldest evicted first.
type recentIDs struct {
	capacity int
	order    []signaling.CallID
	set      map[signaling.CallID]struct{}
}

func newRecentIDs(capacity int) *recentIDs {
	return &recentIDs{
		capacity: capacity,
		set:      make(map[signaling.CallID]struct{}, capacity),
	}
}

func (r *recentIDs) add(id signaling.CallID) {
	if _, ok := r.set[id]; ok {
		return
	}
	if len(r.order) >= r.capacity {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.set, oldest)
	}
	r.order = append(r.order, id)
	r.set[id] = struct{}{}
}

func (r *recentIDs) contains(id signaling.CallID) bool {
	_, ok := r.set[id]
	return ok
}

func (r *recentIDs) reset() {
	r.order = nil
	r.set = make(map[signaling.CallID]struct{}, r.capacity)
}
