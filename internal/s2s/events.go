package s2s

import (
	"github.com/craftxbox/unrealircd-s2s-client/internal/state"
)

// RegisteredEvent is delivered when the peer's SERVER line completes
// registration. A handler may call Defer to withhold the automatic
// end-of-sync reply until Client.CompleteSync is called.
type RegisteredEvent struct {
	Name        string
	Hops        int
	Description string

	deferred bool
}

// Defer requests manual control over end-of-sync.
func (e *RegisteredEvent) Defer() { e.deferred = true }

// Events carries the client's observer lists. Observers for one kind
// run in subscription order, exactly once per occurrence, on the
// client's read task.
type Events struct {
	rawLine          []func(line string)
	registered       []func(*RegisteredEvent)
	synced           []func()
	peerSynced       []func(sid string)
	ping             []func(token string)
	userIntroduced   []func(*state.User)
	serverIntroduced []func(*state.Server)
	nickChanged      []func(u *state.User, oldNick string)
	quit             []func(u *state.User, reason string)
	killed           []func(source, target, reason string)
	metadataChanged  []func(target, key, value string)
	channelBurst     []func(*state.Channel)
	topicChanged     []func(*state.Topic)
	hostChanged      []func(*state.User)
	identChanged     []func(*state.User)
	nameChanged      []func(*state.User)
	part             []func(u *state.User, channel, reason string)
	kick             []func(source string, target *state.User, channel, reason string)
	modeChanged      []func(ch *state.Channel, mode string, args []string)
	userModeChanged  []func(*state.User)
	message          []func(source, target, text string)
	notice           []func(source, target, text string)
	version          []func(source string)
	anyCommand       []func(source, command string, params []string)
	disconnected     []func(err error)
}

// HandleRawLine observes every inbound line verbatim, before parsing.
func (e *Events) HandleRawLine(fn func(line string)) { e.rawLine = append(e.rawLine, fn) }

// HandleRegistered observes completion of link registration.
func (e *Events) HandleRegistered(fn func(*RegisteredEvent)) {
	e.registered = append(e.registered, fn)
}

// HandleSynced observes the local link reaching the synced state.
func (e *Events) HandleSynced(fn func()) { e.synced = append(e.synced, fn) }

// HandlePeerSynced observes a peer server finishing its burst.
func (e *Events) HandlePeerSynced(fn func(sid string)) { e.peerSynced = append(e.peerSynced, fn) }

// HandlePing observes peer keepalives. The reply is sent regardless.
func (e *Events) HandlePing(fn func(token string)) { e.ping = append(e.ping, fn) }

// HandleUserIntroduced observes users entering the network.
func (e *Events) HandleUserIntroduced(fn func(*state.User)) {
	e.userIntroduced = append(e.userIntroduced, fn)
}

// HandleServerIntroduced observes servers entering the network.
func (e *Events) HandleServerIntroduced(fn func(*state.Server)) {
	e.serverIntroduced = append(e.serverIntroduced, fn)
}

// HandleNickChanged observes nickname changes; u already carries the
// new nickname.
func (e *Events) HandleNickChanged(fn func(u *state.User, oldNick string)) {
	e.nickChanged = append(e.nickChanged, fn)
}

// HandleQuit observes users leaving the network. The user has already
// been removed from the store.
func (e *Events) HandleQuit(fn func(u *state.User, reason string)) {
	e.quit = append(e.quit, fn)
}

// HandleKilled observes KILL. The engine performs no removal; the
// server follows up with a QUIT on the wire.
func (e *Events) HandleKilled(fn func(source, target, reason string)) {
	e.killed = append(e.killed, fn)
}

// HandleMetadataChanged observes metadata set/delete on a user or
// server. An empty value means the key was deleted.
func (e *Events) HandleMetadataChanged(fn func(target, key, value string)) {
	e.metadataChanged = append(e.metadataChanged, fn)
}

// HandleChannelBurst observes an applied SJOIN burst.
func (e *Events) HandleChannelBurst(fn func(*state.Channel)) {
	e.channelBurst = append(e.channelBurst, fn)
}

// HandleTopicChanged observes topic changes. Topics are not stored.
func (e *Events) HandleTopicChanged(fn func(*state.Topic)) {
	e.topicChanged = append(e.topicChanged, fn)
}

// HandleHostChanged observes SETHOST/CHGHOST.
func (e *Events) HandleHostChanged(fn func(*state.User)) {
	e.hostChanged = append(e.hostChanged, fn)
}

// HandleIdentChanged observes SETIDENT/CHGIDENT.
func (e *Events) HandleIdentChanged(fn func(*state.User)) {
	e.identChanged = append(e.identChanged, fn)
}

// HandleNameChanged observes SETNAME/CHGNAME.
func (e *Events) HandleNameChanged(fn func(*state.User)) {
	e.nameChanged = append(e.nameChanged, fn)
}

// HandlePart observes channel parts, including force-parts.
func (e *Events) HandlePart(fn func(u *state.User, channel, reason string)) {
	e.part = append(e.part, fn)
}

// HandleKick observes kicks. The target has already been removed from
// the channel.
func (e *Events) HandleKick(fn func(source string, target *state.User, channel, reason string)) {
	e.kick = append(e.kick, fn)
}

// HandleModeChanged observes applied channel mode deltas.
func (e *Events) HandleModeChanged(fn func(ch *state.Channel, mode string, args []string)) {
	e.modeChanged = append(e.modeChanged, fn)
}

// HandleUserModeChanged observes applied user mode deltas.
func (e *Events) HandleUserModeChanged(fn func(*state.User)) {
	e.userModeChanged = append(e.userModeChanged, fn)
}

// HandleMessage observes PRIVMSG.
func (e *Events) HandleMessage(fn func(source, target, text string)) {
	e.message = append(e.message, fn)
}

// HandleNotice observes NOTICE.
func (e *Events) HandleNotice(fn func(source, target, text string)) {
	e.notice = append(e.notice, fn)
}

// HandleVersion overrides the built-in VERSION reply. With at least
// one observer subscribed, the default numeric is not sent.
func (e *Events) HandleVersion(fn func(source string)) { e.version = append(e.version, fn) }

// HandleAnyCommand observes every inbound command after its specific
// handler, including commands the engine does not understand.
func (e *Events) HandleAnyCommand(fn func(source, command string, params []string)) {
	e.anyCommand = append(e.anyCommand, fn)
}

// HandleDisconnected observes session teardown. err is nil for an
// explicit local disconnect.
func (e *Events) HandleDisconnected(fn func(err error)) {
	e.disconnected = append(e.disconnected, fn)
}
