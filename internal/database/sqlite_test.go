package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concord-chat/refnav/internal/models"
	"github.com/concord-chat/refnav/internal/protocol"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUserRoundTrip(t *testing.T) {
	db := newTestDB(t)

	u := models.NewUser("alice")
	u.DisplayName = "Alice"
	require.NoError(t, db.UpsertUser(u))

	got, err := db.GetUserByID(u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "Alice", got.GetDisplayName())

	u.DisplayName = "Ally"
	require.NoError(t, db.UpsertUser(u))
	got, err = db.GetUserByID(u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ally", got.DisplayName)

	_, err = db.GetUserByID("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestServerListsItsChannels(t *testing.T) {
	db := newTestDB(t)

	sv := models.NewServer("Guild", "owner")
	general := models.NewTextChannel(sv.ID, "general")
	random := models.NewTextChannel(sv.ID, "random")
	random.Position = 1
	sv.AddChannel(general.ID)

	// channels may arrive before their server
	require.NoError(t, db.UpsertChannel(general))
	require.NoError(t, db.UpsertChannel(random))
	require.NoError(t, db.UpsertServer(sv))

	got, err := db.GetServerByID(sv.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{general.ID, random.ID}, got.ChannelIDs)
	assert.Equal(t, general.ID, got.DefaultChannelID)
	assert.True(t, got.HasChannel(random.ID))

	_, err = db.GetServerByID("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConversationRecipients(t *testing.T) {
	db := newTestDB(t)

	group := models.NewGroupDMChannel("u1", "", "u1", "u2", "u3")
	require.NoError(t, db.UpsertChannel(group))

	got, err := db.GetChannelByID(group.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChannelTypeGroupDM, got.Type)
	assert.Empty(t, got.ServerID)
	assert.ElementsMatch(t, []string{"u1", "u2", "u3"}, got.RecipientIDs)

	group.RecipientIDs = []string{"u1", "u2"}
	require.NoError(t, db.UpsertChannel(group))
	got, err = db.GetChannelByID(group.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, got.RecipientIDs)

	require.NoError(t, db.DeleteChannel(group.ID))
	_, err = db.GetChannelByID(group.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMembership(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.AddServerMember(models.NewServerMember("u1", "s1")))
	require.NoError(t, db.AddServerMember(models.NewServerMember("u1", "s1")))

	ok, err := db.IsServerMember("s1", "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.IsServerMember("s1", "u2")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.RemoveServerMember("s1", "u1"))
	ok, err = db.IsServerMember("s1", "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInviteJoinsNames(t *testing.T) {
	db := newTestDB(t)

	sv := models.NewServer("Guild", "owner")
	ch := models.NewTextChannel(sv.ID, "general")
	require.NoError(t, db.UpsertServer(sv))
	require.NoError(t, db.UpsertChannel(ch))

	inv := sv.GenerateInvite("owner", ch.ID)
	require.NoError(t, db.UpsertInvite(inv))

	got, err := db.GetInvite(inv.Code)
	require.NoError(t, err)
	assert.Equal(t, models.InviteTypeServer, got.Type)
	assert.Equal(t, "Guild", got.ServerName)
	assert.Equal(t, "general", got.ChannelName)

	_, err = db.GetInvite("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMessages(t *testing.T) {
	db := newTestDB(t)

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 5; i++ {
		m := models.NewMessage("c1", "u1", "hello")
		m.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, db.CreateMessage(m))
		ids = append(ids, m.ID)
	}
	reply := models.NewReply("c1", "u2", ids[0], "hi <@u1>")
	reply.CreatedAt = base.Add(time.Hour)
	require.NoError(t, db.CreateMessage(reply))

	got, err := db.GetMessage("c1", reply.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi <@u1>", got.Content)
	assert.Equal(t, ids[0], got.ReplyToID)

	_, err = db.GetMessage("c2", reply.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	latest, err := db.GetChannelMessages("c1", 3)
	require.NoError(t, err)
	require.Len(t, latest, 3)
	assert.Equal(t, ids[3], latest[0].ID)
	assert.Equal(t, reply.ID, latest[2].ID)
}

func TestMessagesAround(t *testing.T) {
	db := newTestDB(t)

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 9; i++ {
		m := models.NewMessage("c1", "u1", "hello")
		m.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, db.CreateMessage(m))
		ids = append(ids, m.ID)
	}

	page, err := db.GetMessagesAround("c1", ids[4], 5)
	require.NoError(t, err)
	var got []string
	for _, m := range page {
		got = append(got, m.ID)
	}
	assert.Equal(t, ids[2:7], got)

	page, err = db.GetMessagesAround("c1", ids[0], 4)
	require.NoError(t, err)
	require.Len(t, page, 4)
	assert.Equal(t, ids[0], page[0].ID)
	assert.Equal(t, ids[3], page[3].ID)

	_, err = db.GetMessagesAround("c1", "missing", 4)
	assert.ErrorIs(t, err, ErrNotFound)

	store := NewStore(db, nil)
	page, err = store.FetchMessagesAround(context.Background(), "c1", ids[8], 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[8], page[0].ID)
}

func TestSearchUsers(t *testing.T) {
	db := newTestDB(t)

	for _, name := range []string{"alice", "albert", "bob", "al_x"} {
		require.NoError(t, db.UpsertUser(models.NewUser(name)))
	}

	users, err := db.SearchUsers("al", 10)
	require.NoError(t, err)
	assert.Len(t, users, 3)

	users, err = db.SearchUsers("al_", 10)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "al_x", users[0].Username)
}

func TestStoreAdapter(t *testing.T) {
	db := newTestDB(t)

	me := models.NewUser("me")
	bob := models.NewUser("bob")
	sv := models.NewServer("Guild", me.ID)
	general := models.NewTextChannel(sv.ID, "general")
	dm := models.NewDMChannel(me.ID, bob.ID)
	smile := models.NewEmoji("blobwave", sv.ID)

	require.NoError(t, db.ImportReady(&protocol.ReadyPayload{
		SessionID: "sess",
		User:      me,
		Users:     []*models.User{bob},
		Servers:   []*models.Server{sv},
		Channels:  []*models.Channel{general, dm},
		Emojis:    []*models.Emoji{smile},
	}))

	store := NewStore(db, nil)

	u, ok := store.GetUser(bob.ID)
	require.True(t, ok)
	assert.Equal(t, "bob", u.Username)

	_, ok = store.GetUser("ghost")
	assert.False(t, ok)

	got, ok := store.GetServer(sv.ID)
	require.True(t, ok)
	assert.Equal(t, []string{general.ID}, got.ChannelIDs)

	_, ok = store.GetKnownChannel(general.ID)
	assert.True(t, ok)

	e, ok := store.GetEmoji(smile.ID)
	require.True(t, ok)
	assert.Equal(t, ":blobwave:", e.Shortcode())

	assert.True(t, store.IsMember(sv.ID, me.ID))
	assert.False(t, store.IsMember(sv.ID, bob.ID))
	assert.True(t, store.IsParticipant(dm.ID, bob.ID))
	assert.False(t, store.IsParticipant(dm.ID, "carol"))
}
