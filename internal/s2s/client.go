// Package s2s implements the server-to-server linking protocol used
// to admit a pseudo-server onto an UnrealIRCd network: registration,
// burst replication into an in-memory state mirror, and injection of
// local state changes back onto the wire.
package s2s

import (
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/ergochat/irc-go/ircmsg"
	"github.com/rs/zerolog"

	"github.com/craftxbox/unrealircd-s2s-client/internal/config"
	"github.com/craftxbox/unrealircd-s2s-client/internal/state"
)

// Version information (set at build time or here)
var (
	Version   = "1.0.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

const uidAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// GenerateUID returns a fresh UID: the server's SID followed by six
// random base36 uppercase characters.
func GenerateUID(sid string) string {
	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = uidAlphabet[rand.Intn(len(uidAlphabet))]
	}
	return sid + string(suffix)
}

// Client is one S2S link session. Inbound lines are processed
// strictly in arrival order on the read task; the outbound queue
// drains on its own task. All store access is serialized by c.mu, so
// event observers see a consistent mirror.
type Client struct {
	cfg *config.Config
	log zerolog.Logger
	clk clock.Clock

	mu          sync.Mutex
	store       *state.Store
	linkState   LinkState
	linkInfo    map[string]string
	syncedPeers map[string]bool
	deferSync   bool
	closed      bool

	events Events
	framer Framer
	queue  *writeQueue

	conn      io.ReadWriteCloser
	done      chan struct{}
	drainDone chan struct{}
}

// NewClient creates an unconnected client. The transport is supplied
// later via Connect; the engine never dials or reconnects on its own.
func NewClient(cfg *config.Config, logger zerolog.Logger) *Client {
	c := &Client{
		cfg:         cfg,
		log:         logger,
		clk:         clock.New(),
		store:       state.NewStore(),
		linkState:   StateConnecting,
		linkInfo:    make(map[string]string),
		syncedPeers: make(map[string]bool),
	}
	c.queue = newWriteQueue(nil, c.clk, c.transportError)
	return c
}

// Events exposes the observer lists for subscription.
func (c *Client) Events() *Events { return &c.events }

// Store exposes the network mirror. Read it from event observers or
// while the read task is quiescent; it has a single mutator.
func (c *Client) Store() *state.Store { return c.store }

// State reports the link's registration progress.
func (c *Client) State() LinkState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.linkState
}

// LinkInfo returns a copy of the negotiated link metadata.
func (c *Client) LinkInfo() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	info := make(map[string]string, len(c.linkInfo))
	for k, v := range c.linkInfo {
		info[k] = v
	}
	return info
}

// PeerSynced reports whether the named server has sent EOS.
func (c *Client) PeerSynced(sid string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncedPeers[sid]
}

// Connect binds the client to an established transport (an encrypted,
// ordered byte stream the embedder already set up), sends the
// authentication and negotiation sequence, and starts the read and
// drain tasks. Credential validation happens synchronously before
// anything is written.
func (c *Client) Connect(conn io.ReadWriteCloser) error {
	if err := c.cfg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return fmt.Errorf("s2s: already connected")
	}
	c.conn = conn
	c.done = make(chan struct{})
	c.drainDone = make(chan struct{})
	c.queue.setWriter(conn)
	c.sendHandshakeLocked()
	c.mu.Unlock()

	go func() {
		c.queue.run(c.done)
		close(c.drainDone)
	}()
	go c.readLoop()

	c.log.Info().Str("server", c.cfg.ServerName).Str("sid", c.cfg.SID).Msg("link negotiation started")
	return nil
}

// sendHandshakeLocked emits PASS, the PROTOCTL negotiation and our
// own SERVER introduction, walking the state machine to
// awaiting-registration.
func (c *Client) sendHandshakeLocked() {
	c.linkState = StateAuthenticating
	pass := c.cfg.Password
	if c.cfg.AuthMethod == config.AuthCertFP {
		// Certificate links still send a PASS placeholder; the cert
		// material is already bound to the transport.
		pass = "*"
	}
	c.send("", "PASS", pass)

	c.linkState = StateNegotiating
	c.send("", "PROTOCTL", c.cfg.Protoctl...)
	c.send("", "PROTOCTL",
		"EAUTH="+c.cfg.ServerName,
		"SID="+c.cfg.SID,
		fmt.Sprintf("TS=%d", c.clk.Now().Unix()))
	c.send("", "SERVER", c.cfg.ServerName, "1", c.cfg.Description)

	c.linkState = StateAwaitingRegistration
}

// Disconnect tears the session down. In graceful mode every locally
// owned user quits first, then SQUIT is sent and the pending queue is
// flushed before the transport closes.
func (c *Client) Disconnect(reason string, graceful bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if graceful {
		for uid, u := range c.store.Users {
			if u.Local {
				c.send(uid, "QUIT", reason)
			}
		}
	}
	c.send("", "SQUIT", c.cfg.ServerName, reason)
	c.closed = true
	c.linkState = StateDisconnected
	conn := c.conn
	c.mu.Unlock()

	close(c.done)
	<-c.drainDone
	c.queue.flush()
	c.queue.close()
	err := conn.Close()

	for _, fn := range c.events.disconnected {
		fn(nil)
	}
	return err
}

// CompleteSync emits the withheld EOS/NETINFO reply after a
// registration observer deferred it.
func (c *Client) CompleteSync() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if c.linkState == StateSynced {
		c.mu.Unlock()
		return nil
	}
	fire := c.finishSyncLocked()
	c.mu.Unlock()
	for _, fn := range fire {
		fn()
	}
	return nil
}

// finishSyncLocked sends our EOS and NETINFO echo and marks the link
// synced. The returned closures deliver the synced event outside the
// lock.
func (c *Client) finishSyncLocked() []func() {
	c.send(c.cfg.SID, "EOS")

	netname := c.cfg.Network
	if netname == "" {
		netname = c.linkInfo["networkname"]
	}
	c.send("", "NETINFO",
		orDefault(c.linkInfo["maxusers"], "0"),
		strconv.FormatInt(c.clk.Now().Unix(), 10),
		orDefault(c.linkInfo["version"], "6000"),
		orDefault(c.linkInfo["cloakhash"], "*"),
		"0", "0", "0",
		netname)

	c.linkState = StateSynced
	return []func(){func() {
		for _, fn := range c.events.synced {
			fn()
		}
	}}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// WriteRaw queues one protocol line verbatim.
func (c *Client) WriteRaw(line string) error {
	return c.enqueueLine(strings.TrimRight(line, "\r\n") + "\r\n")
}

// Write queues a protocol line sourced from the local server.
func (c *Client) Write(message string) error {
	return c.WriteRaw(":" + c.cfg.SID + " " + message)
}

// send serializes and queues one message.
func (c *Client) send(source, command string, params ...string) error {
	msg := ircmsg.MakeMessage(nil, source, command, params...)
	line, err := msg.Line()
	if err != nil {
		return fmt.Errorf("s2s: cannot serialize %s: %w", command, err)
	}
	return c.enqueueLine(line)
}

func (c *Client) enqueueLine(line string) error {
	return c.queue.enqueue(line)
}

// SendMessage queues a PRIVMSG from one of our users (or a server
// projected through ServerToUser) to any target.
func (c *Client) SendMessage(from, target, text string) error {
	return c.send(from, "PRIVMSG", target, text)
}

// SendNotice queues a NOTICE.
func (c *Client) SendNotice(from, target, text string) error {
	return c.send(from, "NOTICE", target, text)
}

// SendNumeric queues a numeric reply sourced from the local server.
// The numeric is zero-padded and truncated to three digits.
func (c *Client) SendNumeric(target string, numeric int, params ...string) error {
	num := fmt.Sprintf("%03d", numeric)
	if len(num) > 3 {
		num = num[:3]
	}
	return c.send(c.cfg.SID, num, append([]string{target}, params...)...)
}

// RegisterUser introduces a locally owned user to the network and
// mirrors it in the store. With skipBurst the wire introduction is
// suppressed, for users the peer already knows about.
func (c *Client) RegisterUser(u *state.User, skipBurst bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if u.UID == "" {
		u.UID = GenerateUID(c.cfg.SID)
	}
	if u.Timestamp == 0 {
		u.Timestamp = c.clk.Now().Unix()
	}
	if u.Username == "" {
		u.Username = u.Nick
	}
	if u.Hostname == "" {
		u.Hostname = c.cfg.ServerName
	}
	u.ServiceStamp = orDefault(u.ServiceStamp, "0")
	u.Umodes = orDefault(u.Umodes, "+")
	u.VHost = orDefault(u.VHost, u.Hostname)
	u.CloakedHost = orDefault(u.CloakedHost, u.VHost)
	u.IP = orDefault(u.IP, "*")
	if u.RealName == "" {
		u.RealName = u.Nick
	}
	u.Local = true

	if err := c.store.AddUser(u); err != nil {
		return err
	}
	if skipBurst {
		return nil
	}
	return c.send(c.cfg.SID, "UID",
		u.Nick,
		strconv.Itoa(u.Hops),
		strconv.FormatInt(u.Timestamp, 10),
		u.Username,
		u.Hostname,
		u.UID,
		u.ServiceStamp,
		u.Umodes,
		u.VHost,
		u.CloakedHost,
		u.IP,
		u.RealName)
}

// RegisterServer introduces a server behind us and mirrors it.
func (c *Client) RegisterServer(sv *state.Server) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sv.Source == "" {
		sv.Source = c.cfg.SID
	}
	if sv.Hops == 0 {
		sv.Hops = 2
	}
	c.store.AddServer(sv)
	return c.send(sv.Source, "SID", sv.Name, strconv.Itoa(sv.Hops), sv.SID, sv.Description)
}

// SJoinToChannel bursts local users into a channel. Members may carry
// rank prefixes ("@"+UID). Every member must be registered and not
// already on the channel.
func (c *Client) SJoinToChannel(channel string, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, member := range members {
		_, id := state.SplitMemberToken(member)
		u, err := c.store.User(id)
		if err != nil {
			return err
		}
		if _, ok := u.Memberships[channel]; ok {
			return fmt.Errorf("%w: %s in %s", state.ErrAlreadyMember, u.Nick, channel)
		}
	}

	ts := c.clk.Now().Unix()
	if ch, err := c.store.Channel(channel); err == nil {
		ts = ch.Timestamp
	}
	if _, err := c.store.ApplySJOIN(channel, ts, "", members); err != nil {
		return err
	}
	return c.send(c.cfg.SID, "SJOIN",
		strconv.FormatInt(ts, 10),
		channel,
		strings.Join(members, " "))
}

// ServerToUser projects a server into a synthetic user so messaging
// helpers can speak with a server source.
func (c *Client) ServerToUser(sv *state.Server) *state.User {
	return &state.User{
		Nick:         sv.Name,
		Hops:         sv.Hops,
		UID:          sv.SID,
		Username:     sv.Name,
		Hostname:     sv.Name,
		ServiceStamp: "0",
		Umodes:       "+",
		VHost:        sv.Name,
		IP:           "*",
		RealName:     sv.Description,
		Memberships:  make(map[string]*state.Member),
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// readLoop pulls transport chunks through the framer and handles the
// completed lines in order. A handler error is fatal to the session:
// the mirror may no longer match the network, so the link dies rather
// than desync silently.
func (c *Client) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			for _, line := range c.framer.Push(buf[:n]) {
				if line == "" {
					continue
				}
				if herr := c.handleLine(line); herr != nil {
					c.log.Error().Err(herr).Str("line", line).Msg("protocol violation, dropping link")
					c.teardown(herr)
					return
				}
			}
		}
		if err != nil {
			if c.isClosed() {
				return
			}
			c.teardown(err)
			return
		}
	}
}

// handleLine processes one framed line: raw observers first, then
// parse and dispatch, then the deferred event closures, then the
// catch-all any-command event.
func (c *Client) handleLine(line string) error {
	if c.isClosed() {
		return nil
	}
	metricLinesReceived.Inc()
	c.log.Trace().Str("line", line).Msg("recv")
	for _, fn := range c.events.rawLine {
		fn(line)
	}

	msg, err := ircmsg.ParseLine(line)
	if err != nil {
		return fmt.Errorf("s2s: malformed line %q: %w", line, err)
	}
	source := msg.Source
	command := strings.ToUpper(msg.Command)

	c.mu.Lock()
	fire, herr := c.dispatch(source, command, msg.Params)
	c.mu.Unlock()

	for _, fn := range fire {
		fn()
	}
	for _, fn := range c.events.anyCommand {
		fn(source, command, msg.Params)
	}
	return herr
}

// transportError is installed as the write queue's error sink.
func (c *Client) transportError(err error) {
	c.teardown(err)
}

// teardown marks the session destroyed: subsequent inbound lines are
// dropped and the queue is abandoned.
func (c *Client) teardown(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.linkState = StateDisconnected
	conn := c.conn
	c.mu.Unlock()

	close(c.done)
	c.queue.close()
	if conn != nil {
		conn.Close()
	}
	for _, fn := range c.events.disconnected {
		fn(err)
	}
}
