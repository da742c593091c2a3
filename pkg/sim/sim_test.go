package sim

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swarmsim/pkg/swarm"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.NumSeeds = 1
	cfg.NumLeechers = 1
	cfg.NumPieces = 10
	cfg.MaxTime = 100
	return cfg
}

func TestSingleLeecherCompletes(t *testing.T) {
	s, err := New(testConfig())
	require.NoError(t, err)

	report, err := s.Run()
	require.NoError(t, err)

	assert.Equal(t, 2, report.Seeds, "leecher should have become a seed")
	assert.Equal(t, 0, report.Leechers)

	var leecher PeerReport
	for _, p := range report.Peers {
		if p.ID == "peer-1" {
			leecher = p
		}
	}
	require.True(t, leecher.Completed, "leecher never finished")
	assert.LessOrEqual(t, leecher.CompletionTime, 100.0)
	assert.Equal(t, 10, leecher.PiecesOwned)
	assert.Equal(t, int64(10)*s.Registry().PieceSize(), leecher.Downloaded)
}

func TestClockNeverDecreasesAcrossDispatch(t *testing.T) {
	cfg := testConfig()
	cfg.NumLeechers = 3
	s, err := New(cfg)
	require.NoError(t, err)

	_, err = s.Run()
	require.NoError(t, err)

	last := 0.0
	for _, r := range s.Trace().Records() {
		require.GreaterOrEqual(t, r.Time, last, "clock went backwards at %v", r)
		last = r.Time
	}
	assert.Equal(t, last, s.Now(), "clock must equal the last dispatched time")
}

func TestRarityMatchesOwnership(t *testing.T) {
	cfg := testConfig()
	cfg.NumLeechers = 4
	s, err := New(cfg)
	require.NoError(t, err)

	_, err = s.Run()
	require.NoError(t, err)

	for piece := 0; piece < cfg.NumPieces; piece++ {
		owners := len(s.Tracker().PeersSharing(piece))
		assert.Equal(t, owners, s.Registry().Rarity(piece),
			"rarity of piece %d disagrees with ownership", piece)
	}
}

func TestLeecherPiecesOnlyGrow(t *testing.T) {
	cfg := testConfig()
	cfg.NumLeechers = 2
	s, err := New(cfg)
	require.NoError(t, err)

	_, err = s.Run()
	require.NoError(t, err)

	// Every stored piece must be new: a shrinking set would show up
	// as a duplicate store in the trace notes.
	counts := make(map[string]int)
	for _, r := range s.Trace().Records() {
		if r.Kind == KindPiece && strings.HasPrefix(r.Note, "stored") {
			counts[r.Target]++
		}
	}
	for id, n := range counts {
		assert.LessOrEqual(t, n, cfg.NumPieces, "%s stored more pieces than exist", id)
	}
}

func TestIdenticalSeedsGiveIdenticalRuns(t *testing.T) {
	cfg := testConfig()
	cfg.NumLeechers = 3

	run := func() []Record {
		s, err := New(cfg)
		require.NoError(t, err)
		_, err = s.Run()
		require.NoError(t, err)
		return s.Trace().Records()
	}

	first, second := run(), run()
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i], second[i], "runs diverged at record %d", i)
	}
}

func TestDuplicatePeerAborts(t *testing.T) {
	s, err := New(testConfig())
	require.NoError(t, err)

	// A second join for an id that is already registered is a setup
	// bug and must halt the run.
	p, ok := s.Tracker().Lookup("seed-1")
	assert.False(t, ok)
	assert.Nil(t, p)

	_, err = s.handlePeerJoin(Event{Kind: KindPeerJoin, Source: "seed-1", Piece: NoPiece})
	require.NoError(t, err)
	s.pending["seed-1"] = swarm.NewPeer("seed-1", swarm.RoleSeed, 10, 1, 1, 0)
	_, err = s.handlePeerJoin(Event{Kind: KindPeerJoin, Source: "seed-1", Piece: NoPiece})
	assert.ErrorIs(t, err, swarm.ErrDuplicatePeer)
}

func TestRequestWhileChokedIsDroppedWithoutPiece(t *testing.T) {
	s, err := New(testConfig())
	require.NoError(t, err)

	// Join both peers and connect them, leaving peer-1 choked.
	_, err = s.handlePeerJoin(Event{Kind: KindPeerJoin, Source: "seed-1", Piece: NoPiece})
	require.NoError(t, err)
	_, err = s.handlePeerJoin(Event{Kind: KindPeerJoin, Source: "peer-1", Piece: NoPiece})
	require.NoError(t, err)

	seed, _ := s.Tracker().Lookup("seed-1")
	leecher, _ := s.Tracker().Lookup("peer-1")
	seed.Connect(leecher.ID, 10)
	leecher.Connect(seed.ID, 10)

	note, err := s.handleRequest(Event{Kind: KindRequest, Source: "peer-1", Target: "seed-1", Piece: 0})
	require.NoError(t, err, "invalid requests are recovered, not fatal")
	assert.Contains(t, note, "invalid request")

	for s.queue.Len() > 0 {
		ev, err := s.queue.Pop()
		require.NoError(t, err)
		assert.NotEqual(t, KindPiece, ev.Kind, "no piece may be served for a choked request")
	}
}

func TestRequestForUnownedPieceIsDropped(t *testing.T) {
	cfg := testConfig()
	cfg.NumSeeds = 1
	cfg.NumLeechers = 2
	s, err := New(cfg)
	require.NoError(t, err)

	for _, id := range []string{"seed-1", "peer-1", "peer-2"} {
		_, err = s.handlePeerJoin(Event{Kind: KindPeerJoin, Source: id, Piece: NoPiece})
		require.NoError(t, err)
	}
	p1, _ := s.Tracker().Lookup("peer-1")
	p2, _ := s.Tracker().Lookup("peer-2")
	p1.Connect(p2.ID, 10)
	p2.Connect(p1.ID, 10)
	p2.Conn(p1.ID).AmChoking = false

	// peer-2 is unchoking peer-1 but owns nothing.
	note, err := s.handleRequest(Event{Kind: KindRequest, Source: "peer-1", Target: "peer-2", Piece: 3})
	require.NoError(t, err)
	assert.Contains(t, note, "piece not owned")
}

func TestHorizonDiscardsLateEvents(t *testing.T) {
	cfg := testConfig()
	cfg.NumLeechers = 4
	cfg.MaxTime = 3 // barely past the handshakes
	s, err := New(cfg)
	require.NoError(t, err)

	report, err := s.Run()
	require.NoError(t, err)

	assert.True(t, report.HorizonReached)
	assert.LessOrEqual(t, report.EndTime, 3.0)
	for _, p := range report.Peers {
		if p.Role == "leecher" {
			assert.False(t, p.Completed)
		}
	}
}

func TestTraceCSVExport(t *testing.T) {
	s, err := New(testConfig())
	require.NoError(t, err)
	_, err = s.Run()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.Trace().WriteCSV(&buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, "time,event,source,target,piece,note", lines[0])
	assert.Len(t, lines, s.Trace().Len()+1)
}

func TestConfigValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumSeeds = 0
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.EndgameFraction = 1.5
	assert.Error(t, cfg.Validate())

	assert.NoError(t, DefaultConfig().Validate())
}
