package state

import (
	"fmt"
	"strings"
)

// Rank modes and the membership prefix symbols they grant. The
// symbols are the ones used in SJOIN bursts, so prefixes written by
// MODE and by SJOIN compose.
var rankSymbols = map[byte]string{
	'q': "*",
	'a': "~",
	'o': "@",
	'h': "%",
	'v': "+",
}

// splitModeDelta splits a compact mode token into its add and remove
// runs. The grammar allows a single '-' delimiter: "+ov-b" adds o and
// v and removes b. A leading '+' is decoration.
func splitModeDelta(mode string) (adds, removes string) {
	adds, removes, _ = strings.Cut(mode, "-")
	adds = strings.TrimPrefix(adds, "+")
	return adds, removes
}

// addFlag appends a flag character to a serialized mode string,
// keeping the single leading '+' and never duplicating a flag.
func addFlag(modes string, flag byte) string {
	if modes == "" {
		modes = "+"
	}
	if hasFlag(modes, flag) {
		return modes
	}
	return modes + string(flag)
}

// removeFlag drops a flag character from a serialized mode string.
func removeFlag(modes string, flag byte) string {
	if modes == "" {
		return "+"
	}
	if i := strings.IndexByte(modes[1:], flag); i >= 0 {
		return modes[:i+1] + modes[i+2:]
	}
	return modes
}

// hasFlag reports whether a serialized mode string carries a flag.
func hasFlag(modes string, flag byte) bool {
	return modes != "" && strings.IndexByte(modes[1:], flag) >= 0
}

// member resolves a rank-mode argument, which may be a UID or a
// nickname, to a membership of ch.
func (s *Store) member(ch *Channel, id string) (*Member, error) {
	u, ok := s.Users[id]
	if !ok {
		u, ok = s.UsersByNick[id]
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, id)
	}
	m, ok := ch.Users[u.Nick]
	if !ok {
		return nil, fmt.Errorf("%w: %s not on %s", ErrUnknownUser, u.Nick, ch.Name)
	}
	return m, nil
}

// ApplyChannelMode applies a mode delta to ch. Rank and list modes
// consume one argument each, strictly left to right, adds before
// removes. Any other letter toggles a boolean flag in the channel's
// mode string.
func (s *Store) ApplyChannelMode(ch *Channel, mode string, args []string) error {
	adds, removes := splitModeDelta(mode)

	next := func() (string, error) {
		if len(args) == 0 {
			return "", fmt.Errorf("state: mode %q on %s is missing an argument", mode, ch.Name)
		}
		arg := args[0]
		args = args[1:]
		return arg, nil
	}

	for i := 0; i < len(adds); i++ {
		c := adds[i]
		if sym, ok := rankSymbols[c]; ok {
			arg, err := next()
			if err != nil {
				return err
			}
			m, err := s.member(ch, arg)
			if err != nil {
				return err
			}
			m.Prefix += sym
			continue
		}
		if list := ch.list(c); list != nil {
			arg, err := next()
			if err != nil {
				return err
			}
			*list = append(*list, arg)
			continue
		}
		ch.Modes = addFlag(ch.Modes, c)
	}

	for i := 0; i < len(removes); i++ {
		c := removes[i]
		if sym, ok := rankSymbols[c]; ok {
			arg, err := next()
			if err != nil {
				return err
			}
			m, err := s.member(ch, arg)
			if err != nil {
				return err
			}
			m.Prefix = strings.Replace(m.Prefix, sym, "", 1)
			continue
		}
		if list := ch.list(c); list != nil {
			arg, err := next()
			if err != nil {
				return err
			}
			removeAll(list, arg)
			continue
		}
		ch.Modes = removeFlag(ch.Modes, c)
	}
	return nil
}

// list maps a list-mode letter to the channel's backing slice, or nil
// for any other letter.
func (ch *Channel) list(mode byte) *[]string {
	switch mode {
	case 'b':
		return &ch.Bans
	case 'e':
		return &ch.Excepts
	case 'I':
		return &ch.InviteExcepts
	}
	return nil
}

// removeAll drops every entry exactly equal to mask.
func removeAll(list *[]string, mask string) {
	kept := (*list)[:0]
	for _, entry := range *list {
		if entry != mask {
			kept = append(kept, entry)
		}
	}
	*list = kept
}

// ApplyUserMode applies a mode delta to a user's mode string. The
// grammar is the channel one minus arguments: every letter is a flag.
func ApplyUserMode(u *User, mode string) {
	adds, removes := splitModeDelta(mode)
	for i := 0; i < len(adds); i++ {
		u.Umodes = addFlag(u.Umodes, adds[i])
	}
	for i := 0; i < len(removes); i++ {
		u.Umodes = removeFlag(u.Umodes, removes[i])
	}
}
