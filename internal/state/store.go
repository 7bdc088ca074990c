// Package state holds the in-memory mirror of the remote network:
// every server, user, channel and membership learned over the link.
// The store assumes a single mutator; the owning client serializes
// all access to it.
package state

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownUser    = errors.New("state: no such user")
	ErrUnknownChannel = errors.New("state: no such channel")
	ErrUnknownServer  = errors.New("state: no such server")
	ErrDuplicateUID   = errors.New("state: UID already registered")
	ErrNickTaken      = errors.New("state: nickname already in use")
	ErrAlreadyMember  = errors.New("state: user is already a channel member")
)

// Member records one user's presence on one channel. The same value
// is shared by pointer between Channel.Users and User.Memberships, so
// a mutation through either map is visible through both.
type Member struct {
	UID string
	// Prefix holds zero or more rank symbols in the order the ranks
	// were granted, not in canonical rank order.
	Prefix string
}

// User is a single client somewhere on the network.
type User struct {
	Nick         string
	Hops         int
	Timestamp    int64
	Username     string
	Hostname     string
	UID          string
	ServiceStamp string
	Umodes       string
	VHost        string
	CloakedHost  string
	IP           string
	RealName     string
	Metadata     map[string]string
	Local        bool
	Away         bool
	Memberships  map[string]*Member // channel name -> membership
}

// Server is a linked server, local or remote.
type Server struct {
	Source      string // SID of the introducing server
	Name        string
	Hops        int
	SID         string
	Description string
	Metadata    map[string]string
}

// Channel is a channel with at least one member. Channels are created
// lazily by join bursts and removed the moment their last member
// leaves.
type Channel struct {
	Name      string
	Timestamp int64
	// Modes is "+" followed by the channel's flag characters, each at
	// most once, in the order they were first set.
	Modes         string
	Users         map[string]*Member // nickname -> membership
	Bans          []string
	Excepts       []string
	InviteExcepts []string
}

// Topic describes a topic change. Topics are not retained in the
// store; the value only travels with the event it raises.
type Topic struct {
	Source    string
	Channel   string
	Timestamp int64
	Text      string
}

// Store is the replicated network state for one link session.
type Store struct {
	Users       map[string]*User // UID -> user
	UsersByNick map[string]*User
	Servers     map[string]*Server // SID -> server
	Channels    map[string]*Channel
}

func NewStore() *Store {
	return &Store{
		Users:       make(map[string]*User),
		UsersByNick: make(map[string]*User),
		Servers:     make(map[string]*Server),
		Channels:    make(map[string]*Channel),
	}
}

// User looks up a user by UID.
func (s *Store) User(uid string) (*User, error) {
	u, ok := s.Users[uid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, uid)
	}
	return u, nil
}

// UserByNick looks up a user by current nickname.
func (s *Store) UserByNick(nick string) (*User, error) {
	u, ok := s.UsersByNick[nick]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, nick)
	}
	return u, nil
}

// Server looks up a server by SID.
func (s *Store) Server(sid string) (*Server, error) {
	sv, ok := s.Servers[sid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownServer, sid)
	}
	return sv, nil
}

// Channel looks up a channel by name.
func (s *Store) Channel(name string) (*Channel, error) {
	ch, ok := s.Channels[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, name)
	}
	return ch, nil
}

// AddUser indexes a new user by UID and nickname. The UID must be
// network-unique.
func (s *Store) AddUser(u *User) error {
	if _, ok := s.Users[u.UID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateUID, u.UID)
	}
	if _, ok := s.UsersByNick[u.Nick]; ok {
		return fmt.Errorf("%w: %s", ErrNickTaken, u.Nick)
	}
	if u.Memberships == nil {
		u.Memberships = make(map[string]*Member)
	}
	s.Users[u.UID] = u
	s.UsersByNick[u.Nick] = u
	return nil
}

// RemoveUser drops a user from both indices and from every channel
// the user was on, deleting channels emptied by the removal.
func (s *Store) RemoveUser(uid string) (*User, error) {
	u, err := s.User(uid)
	if err != nil {
		return nil, err
	}
	for name := range u.Memberships {
		ch := s.Channels[name]
		if ch == nil {
			continue
		}
		delete(ch.Users, u.Nick)
		if len(ch.Users) == 0 {
			delete(s.Channels, name)
		}
	}
	delete(s.Users, uid)
	delete(s.UsersByNick, u.Nick)
	return u, nil
}

// ChangeNick re-keys the nickname index and every joined channel's
// member map in one step, so no intermediate state is observable.
func (s *Store) ChangeNick(uid, nick string) (*User, error) {
	u, err := s.User(uid)
	if err != nil {
		return nil, err
	}
	for name := range u.Memberships {
		ch := s.Channels[name]
		if ch == nil {
			continue
		}
		m := ch.Users[u.Nick]
		delete(ch.Users, u.Nick)
		ch.Users[nick] = m
	}
	delete(s.UsersByNick, u.Nick)
	u.Nick = nick
	s.UsersByNick[nick] = u
	return u, nil
}

// AddServer indexes a server by SID.
func (s *Store) AddServer(sv *Server) {
	s.Servers[sv.SID] = sv
}

// Part removes a user from a channel it is a member of, dropping the
// channel entirely when its last member leaves.
func (s *Store) Part(uid, channel string) (*User, error) {
	u, err := s.User(uid)
	if err != nil {
		return nil, err
	}
	ch, err := s.Channel(channel)
	if err != nil {
		return nil, err
	}
	if _, ok := ch.Users[u.Nick]; !ok {
		return nil, fmt.Errorf("%w: %s not on %s", ErrUnknownUser, u.Nick, channel)
	}
	delete(ch.Users, u.Nick)
	delete(u.Memberships, channel)
	if len(ch.Users) == 0 {
		delete(s.Channels, channel)
	}
	return u, nil
}

// join installs a shared membership on both the channel's member map
// and the user's membership map.
func (s *Store) join(ch *Channel, u *User, prefix string) {
	m := &Member{UID: u.UID, Prefix: prefix}
	ch.Users[u.Nick] = m
	u.Memberships[ch.Name] = m
}
