package swarm

import (
	"math/rand"
	"sort"
)

// Choker implements tit-for-tat peer selection with optimistic
// unchoking. Both reviews are pure decisions over peer state; the
// dispatcher applies them and emits the Choke/Unchoke messages.
type Choker struct {
	slots int // regular unchoke slots
	rng   *rand.Rand
}

func NewChoker(slots int, rng *rand.Rand) *Choker {
	return &Choker{slots: slots, rng: rng}
}

// ChokeDecision lists the remotes to unchoke and to choke, each in
// deterministic order.
type ChokeDecision struct {
	Unchoke []string
	Choke   []string
}

// ReviewRegular recomputes the peer's unchoke set. Interested remotes
// are ranked by the bytes they have uploaded to us, descending, ties
// broken by ascending id; the top slots win. Currently-unchoked
// remotes that fall out of the ranking are choked, except the holder
// of the optimistic slot. Seeds unchoke every interested remote
// unconditionally.
func (c *Choker) ReviewRegular(p *Peer) ChokeDecision {
	var decision ChokeDecision

	if p.IsSeed() {
		for _, id := range p.Remotes() {
			conn := p.Conn(id)
			if conn.PeerInterested && conn.AmChoking {
				decision.Unchoke = append(decision.Unchoke, id)
			}
		}
		return decision
	}

	var interested []string
	for _, id := range p.Remotes() {
		if p.Conn(id).PeerInterested {
			interested = append(interested, id)
		}
	}
	sort.Slice(interested, func(i, j int) bool {
		bi, bj := p.DownloadedFrom[interested[i]], p.DownloadedFrom[interested[j]]
		if bi != bj {
			return bi > bj
		}
		return interested[i] < interested[j]
	})

	winners := make(map[string]bool, c.slots)
	for i, id := range interested {
		if i == c.slots {
			break
		}
		winners[id] = true
	}

	for _, id := range p.Remotes() {
		conn := p.Conn(id)
		switch {
		case winners[id] && conn.AmChoking:
			decision.Unchoke = append(decision.Unchoke, id)
		case !winners[id] && !conn.AmChoking && !conn.Optimistic:
			decision.Choke = append(decision.Choke, id)
		}
	}
	return decision
}

// ReviewOptimistic picks one remote uniformly at random from the
// currently choked, interested set. Remotes already unchoked through
// the regular slots are never candidates. Returns false when no
// candidate exists.
func (c *Choker) ReviewOptimistic(p *Peer) (string, bool) {
	var candidates []string
	for _, id := range p.Remotes() {
		conn := p.Conn(id)
		if conn.PeerInterested && conn.AmChoking {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[c.rng.Intn(len(candidates))], true
}
