package swarm

import (
	"errors"
	"math/rand"
	"sort"
)

// ErrNoEligiblePiece means the source holds nothing the requester can
// ask for right now. Recovered locally: the caller skips the request.
var ErrNoEligiblePiece = errors.New("swarm: no eligible piece")

// Picker implements Local Rarest First piece selection with a random
// bootstrap pick and an endgame mode for the final pieces.
type Picker struct {
	registry        *Registry
	endgameFraction float64
	rng             *rand.Rand
}

func NewPicker(registry *Registry, endgameFraction float64, rng *rand.Rand) *Picker {
	return &Picker{
		registry:        registry,
		endgameFraction: endgameFraction,
		rng:             rng,
	}
}

// SelectPieces chooses which piece(s) the requester should ask the
// source for. Candidates are the requester's missing pieces that the
// source owns.
//
//   - Zero pieces owned yet: one uniformly random candidate, so new
//     peers don't all converge on the same first piece.
//   - Endgame (missing count within the endgame fraction of the total):
//     every remaining candidate at once, in-flight or not.
//   - Otherwise: the candidate with the lowest rarity, ties broken by
//     ascending piece index.
//
// Outside endgame, pieces already requested from some source are
// skipped. Returns ErrNoEligiblePiece when nothing can be requested.
func (pk *Picker) SelectPieces(requester, source *Peer) ([]int, error) {
	missing := pk.registry.Missing(requester)
	candidates := make([]int, 0, len(missing))
	for _, idx := range missing {
		if source.Pieces.Has(idx) {
			candidates = append(candidates, idx)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoEligiblePiece
	}

	eligible := make([]int, 0, len(candidates))
	for _, idx := range candidates {
		if _, inflight := requester.Requested[idx]; !inflight {
			eligible = append(eligible, idx)
		}
	}

	if requester.Pieces.Count() == 0 {
		if len(eligible) == 0 {
			return nil, ErrNoEligiblePiece
		}
		return []int{eligible[pk.rng.Intn(len(eligible))]}, nil
	}

	total := pk.registry.NumPieces()
	if float64(len(missing)) <= pk.endgameFraction*float64(total) {
		// Endgame: request everything left in parallel to avoid
		// waiting on a single slow source for the tail.
		return candidates, nil
	}

	if len(eligible) == 0 {
		return nil, ErrNoEligiblePiece
	}

	sort.Slice(eligible, func(i, j int) bool {
		ri, rj := pk.registry.Rarity(eligible[i]), pk.registry.Rarity(eligible[j])
		if ri != rj {
			return ri < rj
		}
		return eligible[i] < eligible[j]
	})
	return eligible[:1], nil
}
