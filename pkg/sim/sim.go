package sim

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"swarmsim/pkg/logger"
	"swarmsim/pkg/swarm"
)

// ErrInvalidRequest marks a Request that arrived while the sender was
// choked or for a piece the target does not own. Real peers race on
// state updates, so it is logged and dropped, never fatal.
var ErrInvalidRequest = errors.New("sim: invalid request")

// Simulation owns all shared state: the event queue and its clock,
// the tracker registry, the piece registry, the selection algorithms
// and the random source. Everything is mutated only while dispatching
// the current event, so no locking exists anywhere.
type Simulation struct {
	cfg      Config
	queue    *EventQueue
	tracker  *swarm.Tracker
	registry *swarm.Registry
	picker   *swarm.Picker
	choker   *swarm.Choker
	rng      *rand.Rand
	trace    *Trace

	// Peers created up front but not yet registered; consumed by
	// their PeerJoin events.
	pending map[string]*swarm.Peer

	runID      string
	dispatched int
	byKind     map[Kind]int
	horizon    bool
}

// New builds a simulation from the config and schedules the initial
// PeerJoin events. Identical configs (including Seed) produce
// identical runs.
func New(cfg Config) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Simulation{
		cfg:      cfg,
		queue:    NewEventQueue(),
		tracker:  swarm.NewTracker(),
		registry: swarm.NewRegistry(cfg.NumPieces, cfg.PieceSize),
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		trace:    NewTrace(),
		pending:  make(map[string]*swarm.Peer),
		runID:    uuid.NewString(),
		byKind:   make(map[Kind]int),
	}
	s.picker = swarm.NewPicker(s.registry, cfg.EndgameFraction, s.rng)
	s.choker = swarm.NewChoker(cfg.UnchokeSlots, s.rng)

	join := func(id string, role swarm.Role) error {
		s.pending[id] = swarm.NewPeer(id, role, cfg.NumPieces, cfg.UploadSpeed, cfg.DownloadSpeed, 0)
		return s.queue.Schedule(Event{Kind: KindPeerJoin, Source: id, Piece: NoPiece})
	}
	for i := 0; i < cfg.NumSeeds; i++ {
		if err := join(fmt.Sprintf("seed-%d", i+1), swarm.RoleSeed); err != nil {
			return nil, err
		}
	}
	for i := 0; i < cfg.NumLeechers; i++ {
		if err := join(fmt.Sprintf("peer-%d", i+1), swarm.RoleLeecher); err != nil {
			return nil, err
		}
	}

	logger.Sugar.Infof("[Sim %s] Initialized: %d seeds, %d leechers, %d pieces, horizon %v",
		s.runID, cfg.NumSeeds, cfg.NumLeechers, cfg.NumPieces, cfg.MaxTime)
	return s, nil
}

func (s *Simulation) Tracker() *swarm.Tracker   { return s.tracker }
func (s *Simulation) Registry() *swarm.Registry { return s.registry }
func (s *Simulation) Trace() *Trace             { return s.trace }
func (s *Simulation) Now() float64              { return s.queue.Now() }

// Run drains the event queue until it empties or the next event lies
// past the horizon. Events past the horizon are discarded without
// side effects.
func (s *Simulation) Run() (*Report, error) {
	for {
		next, err := s.queue.PeekTime()
		if errors.Is(err, ErrEmptyQueue) {
			break
		}
		if next > s.cfg.MaxTime {
			// Everything left lies past the horizon; discard without
			// advancing the clock.
			s.horizon = true
			break
		}
		ev, err := s.queue.Pop()
		if err != nil {
			return nil, err
		}
		if err := s.dispatch(ev); err != nil {
			return nil, err
		}
	}
	report := s.report()
	logger.Sugar.Infof("[Sim %s] Finished at t=%v after %d events", s.runID, report.EndTime, report.EventsDispatched)
	return report, nil
}

// dispatch routes one event to its handler, records the outcome and
// isolates per-event errors. Only setup bugs (duplicate peer,
// non-monotonic scheduling) propagate.
func (s *Simulation) dispatch(ev Event) error {
	s.dispatched++
	s.byKind[ev.Kind]++

	var note string
	var err error
	switch ev.Kind {
	case KindPeerJoin:
		note, err = s.handlePeerJoin(ev)
	case KindHandshake:
		note, err = s.handleHandshake(ev)
	case KindBitfield:
		note, err = s.handleBitfield(ev)
	case KindInterested:
		note, err = s.handleInterested(ev)
	case KindNotInterested:
		note, err = s.handleNotInterested(ev)
	case KindChoke:
		note, err = s.handleChoke(ev)
	case KindUnchoke:
		note, err = s.handleUnchoke(ev)
	case KindRequest:
		note, err = s.handleRequest(ev)
	case KindPiece:
		note, err = s.handlePiece(ev)
	case KindHave:
		note, err = s.handleHave(ev)
	case KindChokeReview:
		note, err = s.handleChokeReview(ev)
	case KindOptimisticUnchokeReview:
		note, err = s.handleOptimisticReview(ev)
	case KindPeerComplete:
		note, err = s.handlePeerComplete(ev)
	default:
		note = "unknown event kind"
	}
	if err != nil {
		return fmt.Errorf("dispatch %s at t=%v: %w", ev.Kind, ev.Time, err)
	}

	s.trace.Append(Record{
		Time:   ev.Time,
		Kind:   ev.Kind,
		Source: ev.Source,
		Target: ev.Target,
		Piece:  ev.Piece,
		Note:   note,
	})
	logger.Sugar.Debugf("[Sim %s] t=%v %s %s->%s piece=%d: %s",
		s.runID, ev.Time, ev.Kind, ev.Source, ev.Target, ev.Piece, note)
	return nil
}

func (s *Simulation) schedule(delay float64, kind Kind, source, target string, piece int) error {
	return s.queue.Schedule(Event{
		Time:   s.queue.Now() + delay,
		Kind:   kind,
		Source: source,
		Target: target,
		Piece:  piece,
	})
}

// --- Handlers ---

func (s *Simulation) handlePeerJoin(ev Event) (string, error) {
	p, ok := s.pending[ev.Source]
	if !ok {
		return "no pending peer for join", nil
	}
	delete(s.pending, ev.Source)

	if err := s.tracker.Register(p); err != nil {
		return "", err
	}
	s.registry.Track(p)

	// Full mesh: greet everyone already in the swarm.
	for _, q := range s.tracker.Peers() {
		if q.ID == p.ID {
			continue
		}
		if err := s.schedule(s.cfg.ControlLatency, KindHandshake, p.ID, q.ID, NoPiece); err != nil {
			return "", err
		}
	}

	if err := s.schedule(s.cfg.ChokeInterval, KindChokeReview, p.ID, "", NoPiece); err != nil {
		return "", err
	}
	if err := s.schedule(s.cfg.OptimisticInterval, KindOptimisticUnchokeReview, p.ID, "", NoPiece); err != nil {
		return "", err
	}
	return fmt.Sprintf("joined as %s", p.Role), nil
}

func (s *Simulation) handleHandshake(ev Event) (string, error) {
	src, dst, ok := s.endpoints(ev)
	if !ok {
		return "endpoint not registered", nil
	}
	_, isNew := dst.Connect(src.ID, s.cfg.NumPieces)
	if !isNew {
		return "already connected", nil
	}
	// Reply with our own handshake and bitfield.
	if err := s.schedule(s.cfg.ControlLatency, KindHandshake, dst.ID, src.ID, NoPiece); err != nil {
		return "", err
	}
	if err := s.schedule(s.cfg.ControlLatency, KindBitfield, dst.ID, src.ID, NoPiece); err != nil {
		return "", err
	}
	return "connection established", nil
}

func (s *Simulation) handleBitfield(ev Event) (string, error) {
	src, dst, ok := s.endpoints(ev)
	if !ok {
		return "endpoint not registered", nil
	}
	conn := dst.Conn(src.ID)
	if conn == nil {
		return "no connection", nil
	}
	conn.RemotePieces = src.Pieces.Clone()
	changed, err := s.evalInterest(dst, src.ID, conn)
	if err != nil {
		return "", err
	}
	note := fmt.Sprintf("learned %d pieces", conn.RemotePieces.Count())
	if changed {
		note += ", interest changed"
	}
	return note, nil
}

func (s *Simulation) handleInterested(ev Event) (string, error) {
	src, dst, ok := s.endpoints(ev)
	if !ok {
		return "endpoint not registered", nil
	}
	conn := dst.Conn(src.ID)
	if conn == nil {
		return "no connection", nil
	}
	conn.PeerInterested = true

	// Seeds serve unconditionally; waiting for the next review would
	// starve late joiners.
	if dst.IsSeed() && conn.AmChoking {
		conn.AmChoking = false
		if err := s.schedule(s.cfg.ControlLatency, KindUnchoke, dst.ID, src.ID, NoPiece); err != nil {
			return "", err
		}
		return "noted, unchoked by seed", nil
	}
	return "noted", nil
}

func (s *Simulation) handleNotInterested(ev Event) (string, error) {
	src, dst, ok := s.endpoints(ev)
	if !ok {
		return "endpoint not registered", nil
	}
	conn := dst.Conn(src.ID)
	if conn == nil {
		return "no connection", nil
	}
	conn.PeerInterested = false
	return "noted", nil
}

func (s *Simulation) handleChoke(ev Event) (string, error) {
	src, dst, ok := s.endpoints(ev)
	if !ok {
		return "endpoint not registered", nil
	}
	conn := dst.Conn(src.ID)
	if conn == nil {
		return "no connection", nil
	}
	conn.PeerChoking = true
	cancelled := dst.CancelRequests(src.ID)
	return fmt.Sprintf("choked, %d requests cancelled", cancelled), nil
}

func (s *Simulation) handleUnchoke(ev Event) (string, error) {
	src, dst, ok := s.endpoints(ev)
	if !ok {
		return "endpoint not registered", nil
	}
	conn := dst.Conn(src.ID)
	if conn == nil {
		return "no connection", nil
	}
	conn.PeerChoking = false
	return s.requestFrom(dst, src)
}

func (s *Simulation) handleRequest(ev Event) (string, error) {
	src, dst, ok := s.endpoints(ev)
	if !ok {
		return "endpoint not registered", nil
	}
	conn := dst.Conn(src.ID)
	switch {
	case conn == nil || conn.AmChoking:
		logger.Sugar.Warnf("[Sim %s] t=%v %v: %s requested piece %d from %s while choked",
			s.runID, ev.Time, ErrInvalidRequest, src.ID, ev.Piece, dst.ID)
		return "invalid request: sender is choked", nil
	case !dst.Pieces.Has(ev.Piece):
		logger.Sugar.Warnf("[Sim %s] t=%v %v: %s requested piece %d which %s does not own",
			s.runID, ev.Time, ErrInvalidRequest, src.ID, ev.Piece, dst.ID)
		return "invalid request: piece not owned", nil
	}

	transfer := s.cfg.TransferTime(dst.UploadSpeed, src.DownloadSpeed)
	if err := s.schedule(transfer, KindPiece, dst.ID, src.ID, ev.Piece); err != nil {
		return "", err
	}
	return fmt.Sprintf("serving, delivery in %v", transfer), nil
}

func (s *Simulation) handlePiece(ev Event) (string, error) {
	src, dst, ok := s.endpoints(ev)
	if !ok {
		return "endpoint not registered", nil
	}
	delete(dst.Requested, ev.Piece)

	newly, completed := s.registry.MarkPossessed(dst, ev.Piece, s.queue.Now())
	note := "duplicate piece, dropped"
	if newly {
		size := s.registry.PieceSize()
		dst.DownloadedFrom[src.ID] += size
		src.UploadedTo[dst.ID] += size

		for _, id := range dst.Remotes() {
			if err := s.schedule(s.cfg.ControlLatency, KindHave, dst.ID, id, ev.Piece); err != nil {
				return "", err
			}
		}
		note = fmt.Sprintf("stored (%d/%d)", dst.Pieces.Count(), s.registry.NumPieces())

		if completed {
			// Same timestamp; FIFO ordering runs it after this handler.
			if err := s.schedule(0, KindPeerComplete, dst.ID, "", NoPiece); err != nil {
				return "", err
			}
		}
	}

	// Keep the pipeline busy while the source still serves us.
	if !dst.Pieces.IsComplete() {
		if conn := dst.Conn(src.ID); conn != nil && !conn.PeerChoking {
			followup, err := s.requestFrom(dst, src)
			if err != nil {
				return "", err
			}
			note += "; " + followup
		}
	}
	return note, nil
}

func (s *Simulation) handleHave(ev Event) (string, error) {
	src, dst, ok := s.endpoints(ev)
	if !ok {
		return "endpoint not registered", nil
	}
	conn := dst.Conn(src.ID)
	if conn == nil {
		return "no connection", nil
	}
	conn.RemotePieces.Set(ev.Piece)
	changed, err := s.evalInterest(dst, src.ID, conn)
	if err != nil {
		return "", err
	}
	if changed {
		return "noted, interest changed", nil
	}
	return "noted", nil
}

func (s *Simulation) handleChokeReview(ev Event) (string, error) {
	p, ok := s.tracker.Lookup(ev.Source)
	if !ok {
		return "peer not registered", nil
	}
	decision := s.choker.ReviewRegular(p)
	for _, id := range decision.Unchoke {
		p.Conn(id).AmChoking = false
		if err := s.schedule(s.cfg.ControlLatency, KindUnchoke, p.ID, id, NoPiece); err != nil {
			return "", err
		}
	}
	for _, id := range decision.Choke {
		p.Conn(id).AmChoking = true
		if err := s.schedule(s.cfg.ControlLatency, KindChoke, p.ID, id, NoPiece); err != nil {
			return "", err
		}
	}

	// Seeds unchoke everyone unconditionally; the periodic review is
	// no longer needed once uploading-only.
	if !p.IsSeed() {
		if next := s.queue.Now() + s.cfg.ChokeInterval; next <= s.cfg.MaxTime {
			if err := s.queue.Schedule(Event{Time: next, Kind: KindChokeReview, Source: p.ID, Piece: NoPiece}); err != nil {
				return "", err
			}
		}
	}
	return fmt.Sprintf("unchoked %d, choked %d", len(decision.Unchoke), len(decision.Choke)), nil
}

func (s *Simulation) handleOptimisticReview(ev Event) (string, error) {
	p, ok := s.tracker.Lookup(ev.Source)
	if !ok {
		return "peer not registered", nil
	}
	if p.IsSeed() {
		return "seed, review retired", nil
	}

	// The previous holder loses the tag and is reconsidered alongside
	// the regular slots at the next choke review.
	for _, id := range p.Remotes() {
		p.Conn(id).Optimistic = false
	}

	note := "no candidate"
	if id, ok := s.choker.ReviewOptimistic(p); ok {
		conn := p.Conn(id)
		conn.Optimistic = true
		conn.AmChoking = false
		if err := s.schedule(s.cfg.ControlLatency, KindUnchoke, p.ID, id, NoPiece); err != nil {
			return "", err
		}
		note = fmt.Sprintf("optimistically unchoked %s", id)
	}

	if next := s.queue.Now() + s.cfg.OptimisticInterval; next <= s.cfg.MaxTime {
		if err := s.queue.Schedule(Event{Time: next, Kind: KindOptimisticUnchokeReview, Source: p.ID, Piece: NoPiece}); err != nil {
			return "", err
		}
	}
	return note, nil
}

func (s *Simulation) handlePeerComplete(ev Event) (string, error) {
	p, ok := s.tracker.Lookup(ev.Source)
	if !ok {
		return "peer not registered", nil
	}
	for _, id := range p.Remotes() {
		conn := p.Conn(id)
		conn.Optimistic = false
		if conn.AmInterested {
			conn.AmInterested = false
			if err := s.schedule(s.cfg.ControlLatency, KindNotInterested, p.ID, id, NoPiece); err != nil {
				return "", err
			}
		}
		if conn.PeerInterested && conn.AmChoking {
			conn.AmChoking = false
			if err := s.schedule(s.cfg.ControlLatency, KindUnchoke, p.ID, id, NoPiece); err != nil {
				return "", err
			}
		}
	}
	logger.Sugar.Infof("[Sim %s] %s completed at t=%v, now seeding", s.runID, p.ID, s.queue.Now())
	return "download complete, now seeding", nil
}

// --- Helpers ---

// endpoints resolves an event's source and target peers. Target is
// the receiving side for message events.
func (s *Simulation) endpoints(ev Event) (src, dst *swarm.Peer, ok bool) {
	src, okSrc := s.tracker.Lookup(ev.Source)
	dst, okDst := s.tracker.Lookup(ev.Target)
	return src, dst, okSrc && okDst
}

// evalInterest reconciles our interest flag toward a remote with what
// we now know about its pieces, emitting Interested/NotInterested on
// a change.
func (s *Simulation) evalInterest(p *swarm.Peer, remote string, conn *swarm.Conn) (bool, error) {
	want := !p.IsSeed() && p.WantsFrom(conn.RemotePieces)
	switch {
	case want && !conn.AmInterested:
		conn.AmInterested = true
		return true, s.schedule(s.cfg.ControlLatency, KindInterested, p.ID, remote, NoPiece)
	case !want && conn.AmInterested:
		conn.AmInterested = false
		return true, s.schedule(s.cfg.ControlLatency, KindNotInterested, p.ID, remote, NoPiece)
	}
	return false, nil
}

// requestFrom runs LRF selection and schedules the resulting Request
// events. A missing eligible piece is recovered locally: no request
// this round.
func (s *Simulation) requestFrom(requester, source *swarm.Peer) (string, error) {
	if requester.Pieces.IsComplete() {
		return "already complete", nil
	}
	pieces, err := s.picker.SelectPieces(requester, source)
	if errors.Is(err, swarm.ErrNoEligiblePiece) {
		logger.Sugar.Debugf("[Sim %s] %s has no eligible piece at %s", s.runID, requester.ID, source.ID)
		return "no eligible piece", nil
	}
	if err != nil {
		return "", err
	}
	for _, idx := range pieces {
		requester.Requested[idx] = source.ID
		if err := s.schedule(s.cfg.ControlLatency, KindRequest, requester.ID, source.ID, idx); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("requested %d piece(s)", len(pieces)), nil
}

func (s *Simulation) report() *Report {
	seeds, leechers := s.tracker.Counts()
	report := &Report{
		RunID:            s.runID,
		EndTime:          s.queue.Now(),
		HorizonReached:   s.horizon,
		EventsDispatched: s.dispatched,
		EventsByKind:     make(map[string]int, len(s.byKind)),
		Seeds:            seeds,
		Leechers:         leechers,
	}
	for kind, n := range s.byKind {
		report.EventsByKind[kind.String()] = n
	}
	for _, p := range s.tracker.Peers() {
		report.Peers = append(report.Peers, buildPeerReport(p))
	}
	return report
}
