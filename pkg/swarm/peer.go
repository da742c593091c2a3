package swarm

import "sort"

type Role int

const (
	RoleLeecher Role = iota
	RoleSeed
)

func (r Role) String() string {
	if r == RoleSeed {
		return "seed"
	}
	return "leecher"
}

// Conn is one side's view of a connection to a remote peer. Both
// directions start choked and not interested, per the protocol.
type Conn struct {
	AmChoking      bool // we are choking the remote
	PeerChoking    bool // the remote is choking us
	AmInterested   bool // we want pieces the remote has
	PeerInterested bool // the remote wants pieces we have
	Optimistic     bool // the remote holds our optimistic unchoke slot
	RemotePieces   *Bitfield
}

// Peer models a single swarm member: its piece possession, its
// connection state toward every other peer, and transfer accounting.
type Peer struct {
	ID             string
	Role           Role
	Pieces         *Bitfield
	JoinTime       float64
	CompletionTime float64
	Completed      bool

	UploadSpeed   float64 // bytes per time unit
	DownloadSpeed float64

	conns map[string]*Conn

	// Bytes exchanged per remote peer. DownloadedFrom is the
	// reciprocity signal the choker ranks on.
	UploadedTo     map[string]int64
	DownloadedFrom map[string]int64

	// In-flight piece requests: piece index -> source peer id.
	Requested map[int]string
}

func NewPeer(id string, role Role, numPieces int, upSpeed, downSpeed, joinTime float64) *Peer {
	pieces := NewBitfield(numPieces)
	if role == RoleSeed {
		pieces = FullBitfield(numPieces)
	}
	return &Peer{
		ID:             id,
		Role:           role,
		Pieces:         pieces,
		JoinTime:       joinTime,
		UploadSpeed:    upSpeed,
		DownloadSpeed:  downSpeed,
		conns:          make(map[string]*Conn),
		UploadedTo:     make(map[string]int64),
		DownloadedFrom: make(map[string]int64),
		Requested:      make(map[int]string),
	}
}

func (p *Peer) IsSeed() bool { return p.Role == RoleSeed }

// Conn returns the connection state toward a remote peer, or nil if
// no handshake has happened yet.
func (p *Peer) Conn(remote string) *Conn {
	return p.conns[remote]
}

// Connect establishes connection state toward a remote peer. It
// reports whether the connection was newly created.
func (p *Peer) Connect(remote string, numPieces int) (*Conn, bool) {
	if c, ok := p.conns[remote]; ok {
		return c, false
	}
	c := &Conn{
		AmChoking:    true,
		PeerChoking:  true,
		RemotePieces: NewBitfield(numPieces),
	}
	p.conns[remote] = c
	return c, true
}

// Remotes returns the ids of all connected peers in sorted order, so
// iteration over connections stays deterministic.
func (p *Peer) Remotes() []string {
	ids := make([]string, 0, len(p.conns))
	for id := range p.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// WantsFrom reports whether the remote bitfield holds any piece this
// peer is still missing.
func (p *Peer) WantsFrom(remote *Bitfield) bool {
	if p.Pieces.IsComplete() || remote == nil {
		return false
	}
	for _, idx := range p.Pieces.Missing() {
		if remote.Has(idx) {
			return true
		}
	}
	return false
}

// CancelRequests drops in-flight requests addressed to the given
// source, so the pieces become eligible for other sources again.
func (p *Peer) CancelRequests(source string) int {
	n := 0
	for idx, src := range p.Requested {
		if src == source {
			delete(p.Requested, idx)
			n++
		}
	}
	return n
}

// TotalDownloaded sums bytes received across all remotes.
func (p *Peer) TotalDownloaded() int64 {
	var total int64
	for _, n := range p.DownloadedFrom {
		total += n
	}
	return total
}

// TotalUploaded sums bytes served across all remotes.
func (p *Peer) TotalUploaded() int64 {
	var total int64
	for _, n := range p.UploadedTo {
		total += n
	}
	return total
}
