package vm

import (
	"unsafe"

	"github.com/google/btree"
)

// liveItem is one entry in the live-value registry: a Value keyed by its
// heap address, giving the ordered set O(log n) insert/find/delete that
// §4.4 requires (any balanced BST is acceptable; btree.BTreeG is the
// library pick for it).
type liveItem struct {
	addr uintptr
	v    *Value
}

func addrOf(v *Value) uintptr { return uintptr(unsafe.Pointer(v)) }

func lessLive(a, b liveItem) bool { return a.addr < b.addr }

// registry is the live-value allocation set backing one Machine's cycle
// collector. It is owned by exactly one Machine (§5 "the live-set... is
// owned solely by one VM instance"): two Machines running in the same
// process each get their own registry, so neither can corrupt the
// other's bookkeeping. Per §3 "Lifecycle", a Value is tracked from the
// moment it is created after assembly completes until it is destroyed;
// tracking is suppressed during cycle-collection sweeps so sweep-mode
// destruction doesn't re-insert values mid-teardown.
type registry struct {
	liveSet         *btree.BTreeG[liveItem]
	trackingEnabled bool
}

func newRegistry() *registry {
	return &registry{liveSet: btree.NewG(32, lessLive), trackingEnabled: true}
}

// track inserts v into r and records r as v's owning registry, so that
// v's later destroy can untrack it without needing a Machine in scope.
func (r *registry) track(v *Value) {
	v.reg = r
	if r.trackingEnabled {
		r.liveSet.ReplaceOrInsert(liveItem{addrOf(v), v})
	}
}

func (r *registry) untrack(v *Value) {
	r.liveSet.Delete(liveItem{addr: addrOf(v)})
}

func (r *registry) liveCount() int { return r.liveSet.Len() }

// track lets Machine methods record a freshly constructed value through
// m's own registry.
func (m *Machine) track(v *Value) { m.reg.track(v) }

// LiveCount returns the number of Values currently tracked by m.
func (m *Machine) LiveCount() int { return m.reg.liveCount() }

// Collector runs the mark-sweep cycle collector described in §4.4. It is
// triggered by the Gar opcode whenever the live set exceeds a moving cap.
type Collector struct {
	reg    *registry
	cap    int
	buffer int
}

// NewCollector returns a Collector over reg whose initial cap is the
// current live count plus buffer.
func NewCollector(reg *registry, buffer int) *Collector {
	return &Collector{reg: reg, cap: reg.liveCount() + buffer, buffer: buffer}
}

// Check runs a sweep over roots (the current operand stack) if the live
// set has grown past the cap, then resets the cap to size+buffer.
func (c *Collector) Check(roots []*Value) {
	if c.reg.liveCount() <= c.cap {
		return
	}
	c.sweep(roots)
	c.cap = c.reg.liveCount() + c.buffer
}

func children(v *Value, followPointer bool, f func(*Value)) {
	switch v.Tag {
	case TagQueue:
		for _, e := range v.Queue {
			f(e)
		}
	case TagMap:
		for _, e := range v.Map {
			f(e)
		}
	case TagChar:
		f(v.CharOf)
	case TagPointer:
		if followPointer && v.Ptr != nil {
			f(v.Ptr)
		}
	}
}

// sweep implements the five-step algorithm of §4.4.
func (c *Collector) sweep(roots []*Value) {
	reachable := make(map[uintptr]bool)
	var walk func(v *Value)
	walk = func(v *Value) {
		if v == nil {
			return
		}
		a := addrOf(v)
		if reachable[a] {
			return
		}
		reachable[a] = true
		children(v, true, walk) // Pointer edges followed during reachability
	}
	for _, v := range roots {
		if !v.Const {
			walk(v)
		}
	}

	var garbage []*Value
	c.reg.liveSet.Ascend(func(item liveItem) bool {
		if !item.v.Const && !reachable[item.addr] {
			garbage = append(garbage, item.v)
		}
		return true
	})
	if len(garbage) == 0 {
		return
	}

	inGarbage := make(map[uintptr]*Value, len(garbage))
	for _, v := range garbage {
		inGarbage[addrOf(v)] = v
	}
	isChild := make(map[uintptr]bool)
	for _, v := range garbage {
		children(v, false, func(c *Value) { // Pointer edges not followed here
			if _, ok := inGarbage[addrOf(c)]; ok {
				isChild[addrOf(c)] = true
			}
		})
	}

	c.reg.trackingEnabled = false
	for _, v := range garbage {
		if !isChild[addrOf(v)] {
			v.destroy(true)
		}
	}
	c.reg.trackingEnabled = true
}
