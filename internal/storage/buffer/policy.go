package buffer

import "container/list"

// Policy chooses which cached page id to evict next. The pool calls Touch
// on every access and Remove whenever a page leaves the cache (eviction is
// the only way a page leaves), so a policy's internal bookkeeping never
// drifts from the pool's actual membership. Each named Strategy (LRU, FIFO, CLOCK, LFU)
// gets its own real implementation rather than all aliasing to one.
type Policy interface {
	// Touch records an access to id, for eviction-ordering purposes.
	Touch(id uint32)
	// Remove drops all bookkeeping for id.
	Remove(id uint32)
	// Victim returns the id that should be evicted next among candidates,
	// or false if none of them are known to the policy.
	Victim(candidates map[uint32]bool) (uint32, bool)
}

// lruPolicy evicts the least-recently-touched page.
type lruPolicy struct {
	order *list.List
	elems map[uint32]*list.Element
}

// NewLRU returns a least-recently-used policy.
func NewLRU() Policy {
	return &lruPolicy{order: list.New(), elems: make(map[uint32]*list.Element)}
}

func (p *lruPolicy) Touch(id uint32) {
	if e, ok := p.elems[id]; ok {
		p.order.MoveToBack(e)
		return
	}
	p.elems[id] = p.order.PushBack(id)
}

func (p *lruPolicy) Remove(id uint32) {
	if e, ok := p.elems[id]; ok {
		p.order.Remove(e)
		delete(p.elems, id)
	}
}

func (p *lruPolicy) Victim(candidates map[uint32]bool) (uint32, bool) {
	for e := p.order.Front(); e != nil; e = e.Next() {
		id := e.Value.(uint32)
		if candidates[id] {
			return id, true
		}
	}
	return 0, false
}

// fifoPolicy evicts the page that has been resident longest, ignoring
// subsequent touches.
type fifoPolicy struct {
	order *list.List
	elems map[uint32]*list.Element
}

// NewFIFO returns a first-in-first-out policy.
func NewFIFO() Policy {
	return &fifoPolicy{order: list.New(), elems: make(map[uint32]*list.Element)}
}

func (p *fifoPolicy) Touch(id uint32) {
	if _, ok := p.elems[id]; ok {
		return
	}
	p.elems[id] = p.order.PushBack(id)
}

func (p *fifoPolicy) Remove(id uint32) {
	if e, ok := p.elems[id]; ok {
		p.order.Remove(e)
		delete(p.elems, id)
	}
}

func (p *fifoPolicy) Victim(candidates map[uint32]bool) (uint32, bool) {
	for e := p.order.Front(); e != nil; e = e.Next() {
		id := e.Value.(uint32)
		if candidates[id] {
			return id, true
		}
	}
	return 0, false
}

// clockPolicy implements second-chance (CLOCK) eviction: a ring of page ids
// each with a reference bit, set on touch and cleared the first time the
// hand passes it without evicting.
type clockPolicy struct {
	ring    []uint32
	ref     map[uint32]bool
	present map[uint32]int // id -> index in ring
	hand    int
}

// NewClock returns a CLOCK (second-chance) policy.
func NewClock() Policy {
	return &clockPolicy{ref: make(map[uint32]bool), present: make(map[uint32]int)}
}

func (p *clockPolicy) Touch(id uint32) {
	if _, ok := p.present[id]; ok {
		p.ref[id] = true
		return
	}
	p.present[id] = len(p.ring)
	p.ring = append(p.ring, id)
	p.ref[id] = true
}

func (p *clockPolicy) Remove(id uint32) {
	idx, ok := p.present[id]
	if !ok {
		return
	}
	delete(p.present, id)
	delete(p.ref, id)
	p.ring = append(p.ring[:idx], p.ring[idx+1:]...)
	for i := idx; i < len(p.ring); i++ {
		p.present[p.ring[i]] = i
	}
	if p.hand > idx {
		p.hand--
	}
	if len(p.ring) > 0 {
		p.hand %= len(p.ring)
	} else {
		p.hand = 0
	}
}

func (p *clockPolicy) Victim(candidates map[uint32]bool) (uint32, bool) {
	if len(p.ring) == 0 {
		return 0, false
	}
	for scans := 0; scans < 2*len(p.ring); scans++ {
		id := p.ring[p.hand]
		p.hand = (p.hand + 1) % len(p.ring)
		if !candidates[id] {
			continue
		}
		if p.ref[id] {
			p.ref[id] = false
			continue
		}
		return id, true
	}
	// every candidate had its reference bit set; take the first candidate
	// the hand lands on next.
	for _, id := range p.ring {
		if candidates[id] {
			return id, true
		}
	}
	return 0, false
}

// lfuPolicy evicts the page with the smallest access count, breaking ties
// by insertion order.
type lfuPolicy struct {
	counts  map[uint32]int64
	order   []uint32
	present map[uint32]bool
}

// NewLFU returns a least-frequently-used policy.
func NewLFU() Policy {
	return &lfuPolicy{counts: make(map[uint32]int64), present: make(map[uint32]bool)}
}

func (p *lfuPolicy) Touch(id uint32) {
	if !p.present[id] {
		p.present[id] = true
		p.order = append(p.order, id)
	}
	p.counts[id]++
}

func (p *lfuPolicy) Remove(id uint32) {
	delete(p.counts, id)
	if p.present[id] {
		delete(p.present, id)
		for i, v := range p.order {
			if v == id {
				p.order = append(p.order[:i], p.order[i+1:]...)
				break
			}
		}
	}
}

func (p *lfuPolicy) Victim(candidates map[uint32]bool) (uint32, bool) {
	best := uint32(0)
	bestCount := int64(-1)
	found := false
	for _, id := range p.order {
		if !candidates[id] {
			continue
		}
		c := p.counts[id]
		if !found || c < bestCount {
			best, bestCount, found = id, c, true
		}
	}
	return best, found
}
