package s2s

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/craftxbox/unrealircd-s2s-client/internal/state"
)

// dispatch routes one parsed line to its command handler. It runs
// with c.mu held; handlers mutate the store and return closures that
// deliver events once the lock is released. Commands with no handler
// still reach the application through the any-command event.
func (c *Client) dispatch(source, command string, params []string) ([]func(), error) {
	switch command {
	case "PING":
		return c.onPing(source, params)
	case "PROTOCTL":
		return c.onProtoctl(source, params)
	case "SERVER":
		return c.onServer(source, params)
	case "NETINFO":
		return c.onNetinfo(source, params)
	case "UID":
		return c.onUID(source, params)
	case "SID":
		return c.onSID(source, params)
	case "NICK":
		return c.onNick(source, params)
	case "QUIT":
		return c.onQuit(source, params)
	case "KILL":
		return c.onKill(source, params)
	case "MD":
		return c.onMD(source, params)
	case "SETHOST":
		return c.onSetHost(source, params)
	case "SETIDENT":
		return c.onSetIdent(source, params)
	case "SETNAME":
		return c.onSetName(source, params)
	case "CHGHOST":
		return c.onChgHost(source, params)
	case "CHGIDENT":
		return c.onChgIdent(source, params)
	case "CHGNAME":
		return c.onChgName(source, params)
	case "SJOIN":
		return c.onSjoin(source, params)
	case "PART":
		return c.onPart(source, params)
	case "KICK":
		return c.onKick(source, params)
	case "SAJOIN":
		return c.onSajoin(source, params)
	case "SAPART":
		return c.onSapart(source, params)
	case "MODE":
		return c.onMode(source, params)
	case "UMODE2":
		return c.onUmode2(source, params)
	case "PRIVMSG":
		return c.onPrivmsg(source, params)
	case "NOTICE":
		return c.onNotice(source, params)
	case "TOPIC":
		return c.onTopic(source, params)
	case "VERSION":
		return c.onVersion(source, params)
	case "EOS":
		return c.onEOS(source, params)
	}
	return nil, nil
}

func need(command string, params []string, n int) error {
	if len(params) < n {
		return fmt.Errorf("s2s: %s needs %d params, got %d", command, n, len(params))
	}
	return nil
}

// resolveUser accepts either a UID or a current nickname.
func (c *Client) resolveUser(id string) (*state.User, error) {
	if u, err := c.store.User(id); err == nil {
		return u, nil
	}
	return c.store.UserByNick(id)
}

// markBurstingLocked moves the link into the bursting state on the
// first state-introducing command after registration.
func (c *Client) markBurstingLocked() {
	if c.linkState == StateRegistered {
		c.linkState = StateBursting
	}
}

func (c *Client) onPing(source string, params []string) ([]func(), error) {
	if err := need("PING", params, 1); err != nil {
		return nil, err
	}
	token := params[0]
	c.send("", "PONG", token)
	return []func(){func() {
		for _, fn := range c.events.ping {
			fn(token)
		}
	}}, nil
}

func (c *Client) onProtoctl(source string, params []string) ([]func(), error) {
	for _, tok := range params {
		key, val, ok := strings.Cut(tok, "=")
		if !ok {
			// Bare keys are boolean capabilities.
			val = "true"
		}
		c.linkInfo[key] = val
	}
	return nil, nil
}

func (c *Client) onServer(source string, params []string) ([]func(), error) {
	if c.linkState >= StateRegistered {
		// Remote servers arrive via SID once the link is up.
		return nil, nil
	}
	if err := need("SERVER", params, 2); err != nil {
		return nil, err
	}
	hops, _ := strconv.Atoi(params[1])
	ev := &RegisteredEvent{Name: params[0], Hops: hops}
	if len(params) > 2 {
		ev.Description = params[2]
	}

	// The peer's SID was announced during PROTOCTL negotiation.
	if sid := c.linkInfo["SID"]; sid != "" {
		c.store.AddServer(&state.Server{
			Name:        ev.Name,
			Hops:        ev.Hops,
			SID:         sid,
			Description: ev.Description,
		})
	}
	c.linkState = StateRegistered

	return []func(){func() {
		for _, fn := range c.events.registered {
			fn(ev)
		}
		c.mu.Lock()
		c.deferSync = ev.deferred
		c.mu.Unlock()
	}}, nil
}

func (c *Client) onNetinfo(source string, params []string) ([]func(), error) {
	if err := need("NETINFO", params, 8); err != nil {
		return nil, err
	}
	c.linkInfo["maxusers"] = params[0]
	c.linkInfo["ts"] = params[1]
	c.linkInfo["version"] = params[2]
	c.linkInfo["cloakhash"] = params[3]
	c.linkInfo["networkname"] = params[7]

	if c.deferSync || c.linkState == StateSynced {
		return nil, nil
	}
	return c.finishSyncLocked(), nil
}

func (c *Client) onUID(source string, params []string) ([]func(), error) {
	if err := need("UID", params, 12); err != nil {
		return nil, err
	}
	c.markBurstingLocked()
	hops, _ := strconv.Atoi(params[1])
	ts, _ := strconv.ParseInt(params[2], 10, 64)
	u := &state.User{
		Nick:         params[0],
		Hops:         hops,
		Timestamp:    ts,
		Username:     params[3],
		Hostname:     params[4],
		UID:          params[5],
		ServiceStamp: params[6],
		Umodes:       params[7],
		VHost:        params[8],
		CloakedHost:  params[9],
		IP:           params[10],
		RealName:     params[11],
	}
	if err := c.store.AddUser(u); err != nil {
		return nil, err
	}
	return []func(){func() {
		for _, fn := range c.events.userIntroduced {
			fn(u)
		}
	}}, nil
}

func (c *Client) onSID(source string, params []string) ([]func(), error) {
	if err := need("SID", params, 4); err != nil {
		return nil, err
	}
	c.markBurstingLocked()
	hops, _ := strconv.Atoi(params[1])
	sv := &state.Server{
		Source:      source,
		Name:        params[0],
		Hops:        hops,
		SID:         params[2],
		Description: params[3],
	}
	c.store.AddServer(sv)
	return []func(){func() {
		for _, fn := range c.events.serverIntroduced {
			fn(sv)
		}
	}}, nil
}

func (c *Client) onNick(source string, params []string) ([]func(), error) {
	if err := need("NICK", params, 1); err != nil {
		return nil, err
	}
	u, err := c.store.User(source)
	if err != nil {
		return nil, err
	}
	oldNick := u.Nick
	if _, err := c.store.ChangeNick(source, params[0]); err != nil {
		return nil, err
	}
	return []func(){func() {
		for _, fn := range c.events.nickChanged {
			fn(u, oldNick)
		}
	}}, nil
}

func (c *Client) onQuit(source string, params []string) ([]func(), error) {
	reason := ""
	if len(params) > 0 {
		reason = params[0]
	}
	u, err := c.store.RemoveUser(source)
	if err != nil {
		return nil, err
	}
	return []func(){func() {
		for _, fn := range c.events.quit {
			fn(u, reason)
		}
	}}, nil
}

func (c *Client) onKill(source string, params []string) ([]func(), error) {
	if err := need("KILL", params, 1); err != nil {
		return nil, err
	}
	target := params[0]
	reason := ""
	if len(params) > 1 {
		reason = params[1]
	}
	// No removal here; the server follows a KILL with the victim's
	// QUIT on the wire.
	return []func(){func() {
		for _, fn := range c.events.killed {
			fn(source, target, reason)
		}
	}}, nil
}

func (c *Client) onMD(source string, params []string) ([]func(), error) {
	if err := need("MD", params, 3); err != nil {
		return nil, err
	}
	target, key := params[1], params[2]
	value := ""
	if len(params) > 3 {
		value = params[3]
	}

	var meta *map[string]string
	if u, err := c.resolveUser(target); err == nil {
		meta = &u.Metadata
	} else if sv, serr := c.store.Server(target); serr == nil {
		meta = &sv.Metadata
	} else {
		return nil, err
	}
	if value == "" {
		delete(*meta, key)
	} else {
		if *meta == nil {
			*meta = make(map[string]string)
		}
		(*meta)[key] = value
	}
	return []func(){func() {
		for _, fn := range c.events.metadataChanged {
			fn(target, key, value)
		}
	}}, nil
}

func (c *Client) onSetHost(source string, params []string) ([]func(), error) {
	if err := need("SETHOST", params, 1); err != nil {
		return nil, err
	}
	u, err := c.store.User(source)
	if err != nil {
		return nil, err
	}
	u.VHost = params[0]
	return c.fireHostChanged(u), nil
}

func (c *Client) onSetIdent(source string, params []string) ([]func(), error) {
	if err := need("SETIDENT", params, 1); err != nil {
		return nil, err
	}
	u, err := c.store.User(source)
	if err != nil {
		return nil, err
	}
	u.Username = params[0]
	return c.fireIdentChanged(u), nil
}

func (c *Client) onSetName(source string, params []string) ([]func(), error) {
	if err := need("SETNAME", params, 1); err != nil {
		return nil, err
	}
	u, err := c.store.User(source)
	if err != nil {
		return nil, err
	}
	u.RealName = params[0]
	return c.fireNameChanged(u), nil
}

func (c *Client) onChgHost(source string, params []string) ([]func(), error) {
	if err := need("CHGHOST", params, 2); err != nil {
		return nil, err
	}
	u, err := c.resolveUser(params[0])
	if err != nil {
		return nil, err
	}
	u.VHost = params[1]
	return c.fireHostChanged(u), nil
}

func (c *Client) onChgIdent(source string, params []string) ([]func(), error) {
	if err := need("CHGIDENT", params, 2); err != nil {
		return nil, err
	}
	u, err := c.resolveUser(params[0])
	if err != nil {
		return nil, err
	}
	u.Username = params[1]
	return c.fireIdentChanged(u), nil
}

func (c *Client) onChgName(source string, params []string) ([]func(), error) {
	if err := need("CHGNAME", params, 2); err != nil {
		return nil, err
	}
	u, err := c.resolveUser(params[0])
	if err != nil {
		return nil, err
	}
	u.RealName = params[1]
	return c.fireNameChanged(u), nil
}

func (c *Client) fireHostChanged(u *state.User) []func() {
	return []func(){func() {
		for _, fn := range c.events.hostChanged {
			fn(u)
		}
	}}
}

func (c *Client) fireIdentChanged(u *state.User) []func() {
	return []func(){func() {
		for _, fn := range c.events.identChanged {
			fn(u)
		}
	}}
}

func (c *Client) fireNameChanged(u *state.User) []func() {
	return []func(){func() {
		for _, fn := range c.events.nameChanged {
			fn(u)
		}
	}}
}

// Channel modes that consume one argument when set in a join burst.
const sjoinParamModes = "fjkFHLl"

func (c *Client) onSjoin(source string, params []string) ([]func(), error) {
	if err := need("SJOIN", params, 2); err != nil {
		return nil, err
	}
	c.markBurstingLocked()
	ts, err := strconv.ParseInt(params[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("s2s: SJOIN timestamp %q: %w", params[0], err)
	}
	name := params[1]

	var flags string
	rest := params[2:]
	if len(rest) > 0 && strings.HasPrefix(rest[0], "+") {
		flags = rest[0][1:]
		rest = rest[1:]
		// Mode arguments (key, limit, flood profile) sit between the
		// mode string and the member list, one per parameter-taking
		// letter; they are consumed but not mirrored.
		for i := 0; i < len(flags) && len(rest) > 0; i++ {
			if strings.IndexByte(sjoinParamModes, flags[i]) >= 0 {
				rest = rest[1:]
			}
		}
	}
	var tokens []string
	for _, field := range rest {
		tokens = append(tokens, strings.Fields(field)...)
	}

	ch, err := c.store.ApplySJOIN(name, ts, flags, tokens)
	if err != nil {
		return nil, err
	}
	return []func(){func() {
		for _, fn := range c.events.channelBurst {
			fn(ch)
		}
	}}, nil
}

func (c *Client) onPart(source string, params []string) ([]func(), error) {
	if err := need("PART", params, 1); err != nil {
		return nil, err
	}
	channel := params[0]
	reason := ""
	if len(params) > 1 {
		reason = params[1]
	}
	u, err := c.store.Part(source, channel)
	if err != nil {
		return nil, err
	}
	return []func(){func() {
		for _, fn := range c.events.part {
			fn(u, channel, reason)
		}
	}}, nil
}

func (c *Client) onKick(source string, params []string) ([]func(), error) {
	if err := need("KICK", params, 2); err != nil {
		return nil, err
	}
	channel := params[0]
	reason := ""
	if len(params) > 2 {
		reason = params[2]
	}
	u, err := c.resolveUser(params[1])
	if err != nil {
		return nil, err
	}
	if _, err := c.store.Part(u.UID, channel); err != nil {
		return nil, err
	}
	return []func(){func() {
		for _, fn := range c.events.kick {
			fn(source, u, channel, reason)
		}
	}}, nil
}

// onSajoin handles a privileged force-join of one of our users: the
// corresponding SJOIN goes onto the wire and the mirror is updated as
// if we had originated the join ourselves.
func (c *Client) onSajoin(source string, params []string) ([]func(), error) {
	if err := need("SAJOIN", params, 2); err != nil {
		return nil, err
	}
	u, err := c.resolveUser(params[0])
	if err != nil {
		return nil, err
	}
	channel := params[1]
	ts := c.clk.Now().Unix()
	if ch, cerr := c.store.Channel(channel); cerr == nil {
		ts = ch.Timestamp
	}
	c.send(c.cfg.SID, "SJOIN", strconv.FormatInt(ts, 10), channel, u.UID)
	ch, err := c.store.ApplySJOIN(channel, ts, "", []string{u.UID})
	if err != nil {
		return nil, err
	}
	return []func(){func() {
		for _, fn := range c.events.channelBurst {
			fn(ch)
		}
	}}, nil
}

func (c *Client) onSapart(source string, params []string) ([]func(), error) {
	if err := need("SAPART", params, 2); err != nil {
		return nil, err
	}
	u, err := c.resolveUser(params[0])
	if err != nil {
		return nil, err
	}
	channel := params[1]
	c.send(u.UID, "PART", channel)
	if _, err := c.store.Part(u.UID, channel); err != nil {
		return nil, err
	}
	return []func(){func() {
		for _, fn := range c.events.part {
			fn(u, channel, "")
		}
	}}, nil
}

func (c *Client) onMode(source string, params []string) ([]func(), error) {
	if err := need("MODE", params, 2); err != nil {
		return nil, err
	}
	target := params[0]
	if !strings.HasPrefix(target, "#") {
		// User mode changes arrive as UMODE2.
		return nil, nil
	}
	ch, err := c.store.Channel(target)
	if err != nil {
		return nil, err
	}
	mode := params[1]
	args := params[2:]
	// Server-sourced mode changes carry a trailing timestamp that is
	// discarded before argument consumption. Server sources never
	// resolve as users, so this holds even when the peer's SID was
	// not announced during negotiation.
	if _, uerr := c.resolveUser(source); uerr != nil && len(args) > 0 {
		args = args[:len(args)-1]
	}
	if err := c.store.ApplyChannelMode(ch, mode, args); err != nil {
		return nil, err
	}
	return []func(){func() {
		for _, fn := range c.events.modeChanged {
			fn(ch, mode, args)
		}
	}}, nil
}

func (c *Client) onUmode2(source string, params []string) ([]func(), error) {
	if err := need("UMODE2", params, 1); err != nil {
		return nil, err
	}
	u, err := c.store.User(source)
	if err != nil {
		return nil, err
	}
	state.ApplyUserMode(u, params[0])
	return []func(){func() {
		for _, fn := range c.events.userModeChanged {
			fn(u)
		}
	}}, nil
}

func (c *Client) onPrivmsg(source string, params []string) ([]func(), error) {
	if err := need("PRIVMSG", params, 2); err != nil {
		return nil, err
	}
	target, text := params[0], params[1]
	return []func(){func() {
		for _, fn := range c.events.message {
			fn(source, target, text)
		}
	}}, nil
}

func (c *Client) onNotice(source string, params []string) ([]func(), error) {
	if err := need("NOTICE", params, 2); err != nil {
		return nil, err
	}
	target, text := params[0], params[1]
	return []func(){func() {
		for _, fn := range c.events.notice {
			fn(source, target, text)
		}
	}}, nil
}

func (c *Client) onTopic(source string, params []string) ([]func(), error) {
	if err := need("TOPIC", params, 2); err != nil {
		return nil, err
	}
	t := &state.Topic{Source: source, Channel: params[0]}
	if len(params) >= 4 {
		t.Source = params[1]
		t.Timestamp, _ = strconv.ParseInt(params[2], 10, 64)
		t.Text = params[3]
	} else {
		t.Timestamp = c.clk.Now().Unix()
		t.Text = params[len(params)-1]
	}
	return []func(){func() {
		for _, fn := range c.events.topicChanged {
			fn(t)
		}
	}}, nil
}

func (c *Client) onVersion(source string, params []string) ([]func(), error) {
	if len(c.events.version) == 0 {
		c.SendNumeric(source, 351, fmt.Sprintf("unrealircd-s2s-client-%s. %s :%s %s", Version, c.cfg.ServerName, BuildDate, GitCommit))
		return nil, nil
	}
	return []func(){func() {
		for _, fn := range c.events.version {
			fn(source)
		}
	}}, nil
}

func (c *Client) onEOS(source string, params []string) ([]func(), error) {
	c.syncedPeers[source] = true
	return []func(){func() {
		for _, fn := range c.events.peerSynced {
			fn(source)
		}
	}}, nil
}
