package swarm

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chokerPeer(t *testing.T, remotes ...string) *Peer {
	t.Helper()
	p := NewPeer("self", RoleLeecher, 10, 1, 1, 0)
	p.Pieces.Set(0) // has something worth serving
	for _, id := range remotes {
		conn, isNew := p.Connect(id, 10)
		require.True(t, isNew)
		conn.PeerInterested = true
	}
	return p
}

func TestChokerUnchokesTopContributors(t *testing.T) {
	p := chokerPeer(t, "A", "B", "C")
	p.DownloadedFrom["A"] = 500
	p.DownloadedFrom["B"] = 100
	p.DownloadedFrom["C"] = 300

	choker := NewChoker(2, rand.New(rand.NewSource(1)))
	decision := choker.ReviewRegular(p)

	assert.Equal(t, []string{"A", "C"}, decision.Unchoke)
	assert.Empty(t, decision.Choke)
}

func TestChokerChokesDemotedPeers(t *testing.T) {
	p := chokerPeer(t, "A", "B", "C")
	p.DownloadedFrom["A"] = 500
	p.DownloadedFrom["B"] = 100
	p.DownloadedFrom["C"] = 300
	p.Conn("B").AmChoking = false // B was unchoked last round

	choker := NewChoker(2, rand.New(rand.NewSource(1)))
	decision := choker.ReviewRegular(p)

	assert.Equal(t, []string{"A", "C"}, decision.Unchoke)
	assert.Equal(t, []string{"B"}, decision.Choke)
}

func TestChokerTiesBreakByPeerID(t *testing.T) {
	p := chokerPeer(t, "b", "a", "c")

	choker := NewChoker(2, rand.New(rand.NewSource(1)))
	decision := choker.ReviewRegular(p)

	assert.Equal(t, []string{"a", "b"}, decision.Unchoke)
}

func TestChokerSparesOptimisticSlot(t *testing.T) {
	p := chokerPeer(t, "A", "B", "C")
	p.DownloadedFrom["A"] = 500
	p.DownloadedFrom["C"] = 300
	conn := p.Conn("B")
	conn.AmChoking = false
	conn.Optimistic = true

	choker := NewChoker(2, rand.New(rand.NewSource(1)))
	decision := choker.ReviewRegular(p)

	assert.Equal(t, []string{"A", "C"}, decision.Unchoke)
	assert.NotContains(t, decision.Choke, "B")
}

func TestChokerSeedUnchokesAllInterested(t *testing.T) {
	p := chokerPeer(t, "A", "B", "C")
	p.Role = RoleSeed
	p.Conn("C").PeerInterested = false

	choker := NewChoker(2, rand.New(rand.NewSource(1)))
	decision := choker.ReviewRegular(p)

	assert.Equal(t, []string{"A", "B"}, decision.Unchoke)
	assert.Empty(t, decision.Choke)
}

func TestOptimisticNeverPicksRegularUnchoked(t *testing.T) {
	p := chokerPeer(t, "A", "B", "C")
	p.Conn("A").AmChoking = false // holds a regular slot

	for seed := int64(0); seed < 50; seed++ {
		choker := NewChoker(2, rand.New(rand.NewSource(seed)))
		id, ok := choker.ReviewOptimistic(p)
		require.True(t, ok)
		assert.NotEqual(t, "A", id)
	}
}

func TestOptimisticNoCandidate(t *testing.T) {
	p := chokerPeer(t, "A")
	p.Conn("A").AmChoking = false

	choker := NewChoker(2, rand.New(rand.NewSource(1)))
	_, ok := choker.ReviewOptimistic(p)
	assert.False(t, ok)
}
