// SPDX-License-Identifier: MIT

package flow

import "sync"

// startGate delays a source flow's worker until at least one downstream
// edge exists, so capture devices never emit frames into an unwired graph.
type startGate struct {
	mu        sync.Mutex
	cond      *sync.Cond
	downCount int
	abandoned bool // set true on Stop so a waiting source does not block shutdown
}

func newStartGate() *startGate {
	g := &startGate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

func (g *startGate) inc() {
	g.mu.Lock()
	g.downCount++
	g.cond.Broadcast()
	g.mu.Unlock()
}

func (g *startGate) dec() {
	g.mu.Lock()
	if g.downCount > 0 {
		g.downCount--
	}
	g.cond.Broadcast()
	g.mu.Unlock()
}

func (g *startGate) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.downCount
}

// wait blocks until downCount > 0 or the gate is abandoned (shutdown).
// Returns false if abandoned without ever seeing a downstream edge.
func (g *startGate) wait() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for g.downCount == 0 && !g.abandoned {
		g.cond.Wait()
	}
	return g.downCount > 0
}

func (g *startGate) abandon() {
	g.mu.Lock()
	g.abandoned = true
	g.cond.Broadcast()
	g.mu.Unlock()
}
