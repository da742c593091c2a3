package swarm

import (
	"errors"
	"fmt"
)

// ErrDuplicatePeer indicates a peer id was registered twice. This is a
// setup bug and aborts the simulation.
var ErrDuplicatePeer = errors.New("swarm: duplicate peer id")

// Tracker maintains swarm membership. Peers are never removed in this
// model; a finished leecher stays registered as a seed.
type Tracker struct {
	peers map[string]*Peer
	order []string
}

func NewTracker() *Tracker {
	return &Tracker{peers: make(map[string]*Peer)}
}

func (t *Tracker) Register(p *Peer) error {
	if _, ok := t.peers[p.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePeer, p.ID)
	}
	t.peers[p.ID] = p
	t.order = append(t.order, p.ID)
	return nil
}

func (t *Tracker) Lookup(id string) (*Peer, bool) {
	p, ok := t.peers[id]
	return p, ok
}

// Peers returns all registered peers in registration order.
func (t *Tracker) Peers() []*Peer {
	out := make([]*Peer, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.peers[id])
	}
	return out
}

// PeersSharing returns the ids of registered peers owning the given
// piece, in registration order.
func (t *Tracker) PeersSharing(piece int) []string {
	var ids []string
	for _, id := range t.order {
		if t.peers[id].Pieces.Has(piece) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Counts returns the current number of seeds and leechers.
func (t *Tracker) Counts() (seeds, leechers int) {
	for _, p := range t.peers {
		if p.IsSeed() {
			seeds++
		} else {
			leechers++
		}
	}
	return seeds, leechers
}

func (t *Tracker) Len() int { return len(t.peers) }
