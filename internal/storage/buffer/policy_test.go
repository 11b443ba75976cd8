package buffer

import "testing"

func TestFIFOEvictsInsertionOrder(t *testing.T) {
	p := NewFIFO()
	p.Touch(1)
	p.Touch(2)
	p.Touch(3)
	// touching 1 again must NOT change FIFO order
	p.Touch(1)
	candidates := map[uint32]bool{1: true, 2: true, 3: true}
	victim, ok := p.Victim(candidates)
	if !ok || victim != 1 {
		t.Fatalf("want first-inserted page 1 evicted, got %d (ok=%v)", victim, ok)
	}
}

func TestClockEventuallyEvictsSoleCandidateDespiteReferenceBit(t *testing.T) {
	p := NewClock()
	p.Touch(1) // sets the reference bit
	victim, ok := p.Victim(map[uint32]bool{1: true})
	if !ok || victim != 1 {
		t.Fatalf("want the only resident page evicted once its reference bit is cleared, got %d (ok=%v)", victim, ok)
	}
}

func TestLFUEvictsLeastFrequentlyUsed(t *testing.T) {
	p := NewLFU()
	p.Touch(1)
	p.Touch(1)
	p.Touch(1)
	p.Touch(2)
	candidates := map[uint32]bool{1: true, 2: true}
	victim, ok := p.Victim(candidates)
	if !ok || victim != 2 {
		t.Fatalf("want least-frequently-touched page 2 evicted, got %d", victim)
	}
}

func TestPolicyRemoveDropsBookkeeping(t *testing.T) {
	for name, p := range map[string]Policy{"lru": NewLRU(), "fifo": NewFIFO(), "clock": NewClock(), "lfu": NewLFU()} {
		p.Touch(1)
		p.Remove(1)
		if _, ok := p.Victim(map[uint32]bool{1: true}); ok {
			t.Fatalf("%s: want no victim after Remove, policy still tracks page 1", name)
		}
	}
}

func TestVictimIgnoresNonCandidates(t *testing.T) {
	for name, p := range map[string]Policy{"lru": NewLRU(), "fifo": NewFIFO(), "clock": NewClock(), "lfu": NewLFU()} {
		p.Touch(1)
		p.Touch(2)
		victim, ok := p.Victim(map[uint32]bool{2: true})
		if !ok || victim != 2 {
			t.Fatalf("%s: want only candidate 2 returned, got %d (ok=%v)", name, victim, ok)
		}
	}
}
