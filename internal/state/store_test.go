package state

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newUser(uid, nick string) *User {
	return &User{
		UID:         uid,
		Nick:        nick,
		Username:    nick,
		Hostname:    "host.test",
		Memberships: make(map[string]*Member),
	}
}

func TestAddAndRemoveUser(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.AddUser(newUser("001AAAAAA", "alice")))

	u, err := s.UserByNick("alice")
	require.NoError(t, err)
	require.Equal(t, "001AAAAAA", u.UID)

	removed, err := s.RemoveUser("001AAAAAA")
	require.NoError(t, err)
	require.Equal(t, u, removed)

	_, err = s.User("001AAAAAA")
	require.ErrorIs(t, err, ErrUnknownUser)
	_, err = s.UserByNick("alice")
	require.ErrorIs(t, err, ErrUnknownUser)
}

func TestAddUserRejectsDuplicates(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.AddUser(newUser("001AAAAAA", "alice")))

	err := s.AddUser(newUser("001AAAAAA", "bob"))
	require.ErrorIs(t, err, ErrDuplicateUID)

	err = s.AddUser(newUser("001BBBBBB", "alice"))
	require.ErrorIs(t, err, ErrNickTaken)
}

func TestChangeNickRekeysEverything(t *testing.T) {
	s := NewStore()
	u := newUser("001AAAAAA", "alice")
	require.NoError(t, s.AddUser(u))
	_, err := s.ApplySJOIN("#chan", 1700000000, "nt", []string{"@001AAAAAA"})
	require.NoError(t, err)

	_, err = s.ChangeNick("001AAAAAA", "alicia")
	require.NoError(t, err)

	require.Equal(t, "alicia", u.Nick)
	_, err = s.UserByNick("alice")
	require.ErrorIs(t, err, ErrUnknownUser)
	got, err := s.UserByNick("alicia")
	require.NoError(t, err)
	require.Equal(t, u, got)

	ch := s.Channels["#chan"]
	require.NotContains(t, ch.Users, "alice")
	// The re-keyed entry is the same membership the user holds.
	require.Same(t, u.Memberships["#chan"], ch.Users["alicia"])
}

func TestRemoveUserDropsEmptiedChannels(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.AddUser(newUser("001AAAAAA", "alice")))
	require.NoError(t, s.AddUser(newUser("001BBBBBB", "bob")))
	_, err := s.ApplySJOIN("#both", 1700000000, "", []string{"001AAAAAA", "001BBBBBB"})
	require.NoError(t, err)
	_, err = s.ApplySJOIN("#solo", 1700000000, "", []string{"001AAAAAA"})
	require.NoError(t, err)

	_, err = s.RemoveUser("001AAAAAA")
	require.NoError(t, err)

	require.NotContains(t, s.Channels, "#solo")
	require.Contains(t, s.Channels, "#both")
	require.NotContains(t, s.Channels["#both"].Users, "alice")
}

func TestPartDropsEmptiedChannel(t *testing.T) {
	s := NewStore()
	u := newUser("001AAAAAA", "alice")
	require.NoError(t, s.AddUser(u))
	_, err := s.ApplySJOIN("#chan", 1700000000, "", []string{"001AAAAAA"})
	require.NoError(t, err)

	_, err = s.Part("001AAAAAA", "#chan")
	require.NoError(t, err)

	require.NotContains(t, s.Channels, "#chan")
	require.NotContains(t, u.Memberships, "#chan")
}

func TestPartRequiresMembership(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.AddUser(newUser("001AAAAAA", "alice")))
	require.NoError(t, s.AddUser(newUser("001BBBBBB", "bob")))
	_, err := s.ApplySJOIN("#chan", 1700000000, "", []string{"001AAAAAA"})
	require.NoError(t, err)

	_, err = s.Part("001BBBBBB", "#chan")
	require.ErrorIs(t, err, ErrUnknownUser)
	require.Contains(t, s.Channels, "#chan")
}

func TestLookupMisses(t *testing.T) {
	s := NewStore()
	_, err := s.Server("001")
	require.ErrorIs(t, err, ErrUnknownServer)
	_, err = s.Channel("#nope")
	require.ErrorIs(t, err, ErrUnknownChannel)
	_, err = s.Part("001AAAAAA", "#nope")
	require.ErrorIs(t, err, ErrUnknownUser)
}
