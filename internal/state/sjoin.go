package state

// List-mode markers carried on SJOIN tokens.
const (
	banMarker    = '&'
	exceptMarker = '"'
	invexMarker  = '\''
)

// SplitMemberToken separates a member token into its rank-prefix run
// and the bare member ID. The prefix is the leading run of
// non-alphanumeric characters; a token with no prefix yields "".
func SplitMemberToken(tok string) (prefix, id string) {
	i := 0
	for i < len(tok) && !isAlnum(tok[i]) {
		i++
	}
	return tok[:i], tok[i:]
}

func isAlnum(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z'
}

// ApplySJOIN merges one join burst into the store, creating the
// channel if needed and resolving timestamp conflicts:
//
//   - no local channel: adopt the announced timestamp and modes
//   - equal timestamps: union of local and announced mode flags
//   - announced older: announced modes replace local modes
//   - announced newer: local modes win and the burst is unsafe; rank
//     prefixes on its member tokens are discarded
//
// List-mode tokens (&ban, "except, 'invex) are applied regardless of
// the unsafe flag. That asymmetry is part of the protocol, not a
// simplification here.
//
// flags is the announced mode string without its leading '+'; tokens
// is the burst's member/list token sequence.
func (s *Store) ApplySJOIN(name string, ts int64, flags string, tokens []string) (*Channel, error) {
	unsafe := false
	ch, ok := s.Channels[name]
	if !ok {
		ch = &Channel{
			Name:      name,
			Timestamp: ts,
			Modes:     "+" + flags,
			Users:     make(map[string]*Member),
		}
		s.Channels[name] = ch
	} else {
		switch {
		case ts == ch.Timestamp:
			for i := 0; i < len(flags); i++ {
				ch.Modes = addFlag(ch.Modes, flags[i])
			}
		case ts < ch.Timestamp:
			ch.Timestamp = ts
			ch.Modes = "+" + flags
		default:
			unsafe = true
		}
	}

	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		switch tok[0] {
		case banMarker:
			ch.Bans = append(ch.Bans, tok[1:])
			continue
		case exceptMarker:
			ch.Excepts = append(ch.Excepts, tok[1:])
			continue
		case invexMarker:
			ch.InviteExcepts = append(ch.InviteExcepts, tok[1:])
			continue
		}
		prefix, id := SplitMemberToken(tok)
		if unsafe {
			prefix = ""
		}
		u, err := s.User(id)
		if err != nil {
			return nil, err
		}
		s.join(ch, u, prefix)
	}

	if len(ch.Users) == 0 {
		delete(s.Channels, name)
	}
	return ch, nil
}
