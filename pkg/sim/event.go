package sim

// Kind enumerates every event the dispatcher understands.
type Kind int

const (
	KindHandshake Kind = iota
	KindBitfield
	KindInterested
	KindNotInterested
	KindChoke
	KindUnchoke
	KindRequest
	KindPiece
	KindHave
	KindChokeReview
	KindOptimisticUnchokeReview
	KindPeerJoin
	KindPeerComplete
)

var kindNames = [...]string{
	KindHandshake:               "handshake",
	KindBitfield:                "bitfield",
	KindInterested:              "interested",
	KindNotInterested:           "not_interested",
	KindChoke:                   "choke",
	KindUnchoke:                 "unchoke",
	KindRequest:                 "request",
	KindPiece:                   "piece",
	KindHave:                    "have",
	KindChokeReview:             "choke_review",
	KindOptimisticUnchokeReview: "optimistic_unchoke_review",
	KindPeerJoin:                "peer_join",
	KindPeerComplete:            "peer_complete",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// NoPiece marks events that carry no piece index.
const NoPiece = -1

// Event is a scheduled message or timer firing. Immutable once
// created and consumed exactly once by the dispatcher.
type Event struct {
	Time   float64
	Kind   Kind
	Source string
	Target string // empty for self-directed events (reviews, joins)
	Piece  int    // NoPiece unless the event concerns one piece
}
