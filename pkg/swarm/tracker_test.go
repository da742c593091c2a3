package swarm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRegisterRejectsDuplicates(t *testing.T) {
	tr := NewTracker()
	p := NewPeer("peer-1", RoleLeecher, 10, 1, 1, 0)

	require.NoError(t, tr.Register(p))
	err := tr.Register(NewPeer("peer-1", RoleSeed, 10, 1, 1, 0))
	assert.ErrorIs(t, err, ErrDuplicatePeer)
	assert.Equal(t, 1, tr.Len())
}

func TestTrackerPeersKeepsRegistrationOrder(t *testing.T) {
	tr := NewTracker()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, tr.Register(NewPeer(id, RoleLeecher, 4, 1, 1, 0)))
	}

	var ids []string
	for _, p := range tr.Peers() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestTrackerPeersSharing(t *testing.T) {
	tr := NewTracker()
	seed := NewPeer("seed-1", RoleSeed, 4, 1, 1, 0)
	leecher := NewPeer("peer-1", RoleLeecher, 4, 1, 1, 0)
	leecher.Pieces.Set(2)
	require.NoError(t, tr.Register(seed))
	require.NoError(t, tr.Register(leecher))

	assert.Equal(t, []string{"seed-1", "peer-1"}, tr.PeersSharing(2))
	assert.Equal(t, []string{"seed-1"}, tr.PeersSharing(0))

	seeds, leechers := tr.Counts()
	assert.Equal(t, 1, seeds)
	assert.Equal(t, 1, leechers)
}
