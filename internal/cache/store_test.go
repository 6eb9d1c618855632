package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concord-chat/refnav/internal/models"
)

func newStore(t *testing.T, size int) *Store {
	t.Helper()
	s, err := New(size)
	require.NoError(t, err)
	return s
}

func TestStore_ChannelsAreListedUnderServer(t *testing.T) {
	s := newStore(t, 0)
	s.PutServer(&models.Server{ID: "S1", Name: "Home"})
	s.PutChannel(&models.Channel{ID: "C1", ServerID: "S1", Name: "general"})
	s.PutChannel(&models.Channel{ID: "C1", ServerID: "S1", Name: "general-renamed"})

	sv, ok := s.GetServer("S1")
	require.True(t, ok)
	assert.Equal(t, []string{"C1"}, sv.ChannelIDs)

	ch, ok := s.GetChannel("C1")
	require.True(t, ok)
	assert.Equal(t, "general-renamed", ch.Name)

	s.RemoveChannel("C1")
	sv, _ = s.GetServer("S1")
	assert.Empty(t, sv.ChannelIDs)
	_, ok = s.GetChannel("C1")
	assert.False(t, ok)

	known, ok := s.GetKnownChannel("C1")
	require.True(t, ok, "removed channels stay in the directory")
	assert.Equal(t, "general-renamed", known.Name)
}

func TestStore_PutCopies(t *testing.T) {
	s := newStore(t, 0)
	u := &models.User{ID: "U1", Username: "alice"}
	s.PutUser(u)
	u.Username = "mallory"

	got, ok := s.GetUser("U1")
	require.True(t, ok)
	assert.Equal(t, "alice", got.Username)
}

func TestStore_Membership(t *testing.T) {
	s := newStore(t, 0)
	s.AddMember("S1", "U1")
	assert.True(t, s.IsMember("S1", "U1"))
	assert.False(t, s.IsMember("S1", "U2"))
	assert.False(t, s.IsMember("S2", "U1"))

	s.RemoveMember("S1", "U1")
	assert.False(t, s.IsMember("S1", "U1"))
	s.RemoveMember("S9", "U1")
}

func TestStore_IsParticipant(t *testing.T) {
	s := newStore(t, 0)
	s.PutChannel(models.NewDMChannel("U1", "U2"))
	dm := models.NewDMChannel("U1", "U2")
	s.PutChannel(dm)
	saved := models.NewSavedMessagesChannel("U3")
	s.RememberChannel(saved)

	assert.True(t, s.IsParticipant(dm.ID, "U2"))
	assert.False(t, s.IsParticipant(dm.ID, "U3"))
	assert.True(t, s.IsParticipant(saved.ID, "U3"), "owner of a self-conversation participates")
	assert.False(t, s.IsParticipant("missing", "U1"))
}

func TestStore_RemoveServer(t *testing.T) {
	s := newStore(t, 0)
	s.PutServer(&models.Server{ID: "S1"})
	s.PutChannel(&models.Channel{ID: "C1", ServerID: "S1"})
	s.PutChannel(&models.Channel{ID: "C2", ServerID: "S2"})
	s.AddMember("S1", "U1")

	s.RemoveServer("S1")
	_, ok := s.GetChannel("C1")
	assert.False(t, ok)
	_, ok = s.GetChannel("C2")
	assert.True(t, ok)
	assert.False(t, s.IsMember("S1", "U1"))
}

func TestStore_DirectoryIsBounded(t *testing.T) {
	s := newStore(t, 2)
	for i := 0; i < 3; i++ {
		s.RememberChannel(&models.Channel{ID: fmt.Sprintf("K%d", i)})
	}
	_, ok := s.GetKnownChannel("K0")
	assert.False(t, ok, "least recently used entry is evicted")
	assert.Equal(t, 2, s.Stats().Known)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := newStore(t, 0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("U%d", i)
			s.PutUser(&models.User{ID: id})
			s.AddMember("S1", id)
			_, _ = s.GetUser(id)
			_ = s.IsMember("S1", id)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 8, s.Stats().Users)
}
