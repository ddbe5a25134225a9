package core

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/dkeye/gather/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func proximityOf(t *testing.T, s *Session, uid domain.UserID) string {
	t.Helper()
	p, ok := s.GetPlayer(uid)
	require.True(t, ok, "player %s", uid)
	return p.ProximityID
}

func farSession(t *testing.T, uids ...domain.UserID) *Session {
	t.Helper()
	s := NewSession("space-1", testMap())
	for i, uid := range uids {
		s.AddPlayer(ConnID("c-"+string(uid)), nil, uid, string(uid), "001")
		_, err := s.MovePlayer(uid, 100*(i+1), 100*(i+1))
		require.NoError(t, err)
	}
	return s
}

func TestProximityPairFormsAndDissolves(t *testing.T) {
	s := farSession(t, "a", "b")

	changed, err := s.MovePlayer("a", 10, 10)
	require.NoError(t, err)
	assert.Empty(t, changed)

	changed, err = s.MovePlayer("b", 13, 7)
	require.NoError(t, err)
	assert.Equal(t, []domain.UserID{"a", "b"}, changed)
	idA, idB := proximityOf(t, s, "a"), proximityOf(t, s, "b")
	assert.NotEmpty(t, idA)
	assert.Equal(t, idA, idB)

	changed, err = s.MovePlayer("b", 40, 40)
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.UserID{"a", "b"}, changed)
	assert.Empty(t, proximityOf(t, s, "b"))
	assert.Empty(t, proximityOf(t, s, "a"))
}

func TestProximityRangeBoundary(t *testing.T) {
	tests := []struct {
		name   string
		dx, dy int
		near   bool
	}{
		{name: "same tile", dx: 0, dy: 0, near: true},
		{name: "edge of box", dx: 3, dy: -3, near: true},
		{name: "one past on x", dx: 4, dy: 0, near: false},
		{name: "one past on y", dx: 1, dy: -4, near: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := farSession(t, "a", "b")
			_, err := s.MovePlayer("a", 20, 20)
			require.NoError(t, err)
			_, err = s.MovePlayer("b", 20+tt.dx, 20+tt.dy)
			require.NoError(t, err)
			if tt.near {
				assert.NotEmpty(t, proximityOf(t, s, "a"))
				assert.Equal(t, proximityOf(t, s, "a"), proximityOf(t, s, "b"))
			} else {
				assert.Empty(t, proximityOf(t, s, "a"))
				assert.Empty(t, proximityOf(t, s, "b"))
			}
		})
	}
}

func TestProximityIgnoresOtherRooms(t *testing.T) {
	s := farSession(t, "a", "b")
	_, err := s.MovePlayer("a", 5, 5)
	require.NoError(t, err)
	_, err = s.ChangeRoom("b", 1, 5, 5)
	require.NoError(t, err)

	assert.Empty(t, proximityOf(t, s, "a"))
	assert.Empty(t, proximityOf(t, s, "b"))
}

func TestProximityNewcomerAdoptsExistingGroup(t *testing.T) {
	s := farSession(t, "a", "b", "c")
	_, _ = s.MovePlayer("a", 10, 10)
	_, _ = s.MovePlayer("b", 11, 10)
	group := proximityOf(t, s, "a")
	require.NotEmpty(t, group)

	changed, err := s.MovePlayer("c", 12, 12)
	require.NoError(t, err)
	assert.Equal(t, []domain.UserID{"c"}, changed)
	assert.Equal(t, group, proximityOf(t, s, "c"))
}

func TestProximityMoverPropagatesItsGroup(t *testing.T) {
	s := farSession(t, "a", "b", "c", "d")
	_, _ = s.MovePlayer("a", 10, 10)
	_, _ = s.MovePlayer("b", 11, 10)
	_, _ = s.MovePlayer("c", 30, 30)
	_, _ = s.MovePlayer("d", 31, 30)
	left, right := proximityOf(t, s, "a"), proximityOf(t, s, "c")
	require.NotEqual(t, left, right)

	// c walks next to a; a is reassigned to c's id, b is out of c's box and keeps its id.
	changed, err := s.MovePlayer("c", 7, 10)
	require.NoError(t, err)
	assert.Contains(t, changed, domain.UserID("a"))
	assert.Contains(t, changed, domain.UserID("d"))
	assert.Equal(t, right, proximityOf(t, s, "a"))
	assert.Equal(t, left, proximityOf(t, s, "b"))
	assert.Empty(t, proximityOf(t, s, "d"))
}

func TestProximityRemovalReleasesLonePartner(t *testing.T) {
	s := farSession(t, "a", "b")
	_, _ = s.MovePlayer("a", 10, 10)
	_, _ = s.MovePlayer("b", 10, 11)
	require.NotEmpty(t, proximityOf(t, s, "a"))

	orphans, ok := s.RemovePlayer("b")
	assert.True(t, ok)
	assert.Equal(t, []domain.UserID{"a"}, orphans)
	assert.Empty(t, proximityOf(t, s, "a"))
}

func TestProximitySpawningNextToSomeoneGroups(t *testing.T) {
	s := NewSession("space-1", testMap())
	s.AddPlayer("c1", nil, "a", "a", "001")
	_, changed := s.AddPlayer("c2", nil, "b", "b", "001")

	assert.Equal(t, []domain.UserID{"a", "b"}, changed)
	assert.NotEmpty(t, proximityOf(t, s, "a"))
	assert.Equal(t, proximityOf(t, s, "a"), proximityOf(t, s, "b"))
}

func TestProximityLonePlayersHaveNoGroup(t *testing.T) {
	s := NewSession("space-1", testMap())
	rng := rand.New(rand.NewSource(7))
	uids := make([]domain.UserID, 6)
	for i := range uids {
		uids[i] = domain.UserID(fmt.Sprintf("u%d", i))
		s.AddPlayer(ConnID(uids[i]), nil, uids[i], string(uids[i]), "001")
	}

	for step := 0; step < 1000; step++ {
		uid := uids[rng.Intn(len(uids))]
		_, err := s.MovePlayer(uid, rng.Intn(20), rng.Intn(20))
		require.NoError(t, err)

		for _, p := range s.Players() {
			s.mu.RLock()
			alone := len(s.neighboursLocked(p.Room, p.X, p.Y, p.UID)) == 0
			s.mu.RUnlock()
			if alone {
				assert.Empty(t, p.ProximityID, "lone player %s keeps a group", p.UID)
			}
		}
	}
}
