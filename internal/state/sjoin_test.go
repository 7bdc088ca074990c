package state

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitMemberToken(t *testing.T) {
	tests := []struct {
		tok    string
		prefix string
		id     string
	}{
		{"999AAAAAA", "", "999AAAAAA"},
		{"@999AAAAAA", "@", "999AAAAAA"},
		{"*~@999AAAAAA", "*~@", "999AAAAAA"},
		{"+001BBBBBB", "+", "001BBBBBB"},
	}
	for _, tt := range tests {
		prefix, id := SplitMemberToken(tt.tok)
		require.Equal(t, tt.prefix, prefix, "token %q", tt.tok)
		require.Equal(t, tt.id, id, "token %q", tt.tok)
	}
}

func TestSJOINAdoptsNewChannel(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.AddUser(newUser("999AAAAA", "Auth")))

	ch, err := s.ApplySJOIN("#services", 1700000000, "nt", []string{"@999AAAAA"})
	require.NoError(t, err)

	require.Equal(t, int64(1700000000), ch.Timestamp)
	require.Equal(t, "+nt", ch.Modes)
	require.Equal(t, "@", ch.Users["Auth"].Prefix)
	u := s.Users["999AAAAA"]
	require.Equal(t, "@", u.Memberships["#services"].Prefix)
	require.Same(t, ch.Users["Auth"], u.Memberships["#services"])
}

func TestSJOINEqualTimestampUnionsModes(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.AddUser(newUser("001AAAAAA", "alice")))
	require.NoError(t, s.AddUser(newUser("002AAAAAA", "bob")))
	_, err := s.ApplySJOIN("#chan", 1700000000, "nt", []string{"001AAAAAA"})
	require.NoError(t, err)

	ch, err := s.ApplySJOIN("#chan", 1700000000, "ts", []string{"@002AAAAAA"})
	require.NoError(t, err)

	require.Equal(t, "+nts", ch.Modes)
	require.Equal(t, "@", ch.Users["bob"].Prefix)
}

func TestSJOINOlderTimestampReplacesModes(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.AddUser(newUser("001AAAAAA", "alice")))
	require.NoError(t, s.AddUser(newUser("002AAAAAA", "bob")))
	_, err := s.ApplySJOIN("#chan", 1700000000, "nt", []string{"001AAAAAA"})
	require.NoError(t, err)

	ch, err := s.ApplySJOIN("#chan", 1600000000, "m", []string{"@002AAAAAA"})
	require.NoError(t, err)

	require.Equal(t, int64(1600000000), ch.Timestamp)
	require.Equal(t, "+m", ch.Modes)
	require.Equal(t, "@", ch.Users["bob"].Prefix)
}

func TestSJOINNewerTimestampIsUnsafe(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.AddUser(newUser("001AAAAAA", "alice")))
	require.NoError(t, s.AddUser(newUser("002AAAAAA", "bob")))
	_, err := s.ApplySJOIN("#chan", 1700000000, "nt", []string{"001AAAAAA"})
	require.NoError(t, err)

	ch, err := s.ApplySJOIN("#chan", 1800000000, "m",
		[]string{"@002AAAAAA", "&*!*@banned", `"*!*@excepted`, "'*!*@invited"})
	require.NoError(t, err)

	// Local modes and timestamp win; the member joins without its
	// claimed rank.
	require.Equal(t, int64(1700000000), ch.Timestamp)
	require.Equal(t, "+nt", ch.Modes)
	require.Equal(t, "", ch.Users["bob"].Prefix)

	// List-mode tokens apply even in an unsafe burst.
	require.Equal(t, []string{"*!*@banned"}, ch.Bans)
	require.Equal(t, []string{"*!*@excepted"}, ch.Excepts)
	require.Equal(t, []string{"*!*@invited"}, ch.InviteExcepts)
}

func TestSJOINUnknownMemberFails(t *testing.T) {
	s := NewStore()
	_, err := s.ApplySJOIN("#chan", 1700000000, "", []string{"001ZZZZZZ"})
	require.ErrorIs(t, err, ErrUnknownUser)
}

func TestSJOINListOnlyBurstDoesNotCreateChannel(t *testing.T) {
	s := NewStore()
	_, err := s.ApplySJOIN("#chan", 1700000000, "", []string{"&*!*@banned"})
	require.NoError(t, err)
	require.NotContains(t, s.Channels, "#chan")
}
