package swarm

// Registry tracks the fixed piece set and its rarity: how many swarm
// members currently own each piece. Rarity only ever grows, since
// peers never leave mid-simulation.
type Registry struct {
	numPieces int
	pieceSize int64
	rarity    []int
}

func NewRegistry(numPieces int, pieceSize int64) *Registry {
	return &Registry{
		numPieces: numPieces,
		pieceSize: pieceSize,
		rarity:    make([]int, numPieces),
	}
}

func (r *Registry) NumPieces() int   { return r.numPieces }
func (r *Registry) PieceSize() int64 { return r.pieceSize }

// Rarity returns the count of peers currently possessing the piece.
func (r *Registry) Rarity(piece int) int {
	if piece < 0 || piece >= r.numPieces {
		return 0
	}
	return r.rarity[piece]
}

// Track folds a joining peer's existing pieces into the rarity table.
// Called once per peer, at registration.
func (r *Registry) Track(p *Peer) {
	for _, idx := range p.Pieces.Owned() {
		r.rarity[idx]++
	}
}

// MarkPossessed records that a peer now owns a piece. Idempotent: a
// piece already owned changes nothing. When the peer's set becomes
// full its role flips to seed and the completion time is stamped,
// both exactly once. Reports (newly possessed, just completed).
func (r *Registry) MarkPossessed(p *Peer, piece int, now float64) (newly, completed bool) {
	if piece < 0 || piece >= r.numPieces || p.Pieces.Has(piece) {
		return false, false
	}
	p.Pieces.Set(piece)
	r.rarity[piece]++

	if p.Pieces.IsComplete() && !p.Completed {
		p.Completed = true
		p.CompletionTime = now
		p.Role = RoleSeed
		return true, true
	}
	return true, false
}

// Missing returns the pieces a peer still needs, recomputed per call.
func (r *Registry) Missing(p *Peer) []int {
	return p.Pieces.Missing()
}
