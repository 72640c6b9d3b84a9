// Package client is a Go endpoint for the signaling server: it dials
// the websocket, drives a callstate.Machine from the envelope stream
// and executes the machine's commands against a pion peer connection.
// Used by the call subcommand for manual testing against a running
// server.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/venturelink/pitchcall/internal/application/constant"
	"github.com/venturelink/pitchcall/internal/callstate"
	"github.com/venturelink/pitchcall/internal/domain/events"
)

type Config struct {
	// ServerURL - адрес сокета, например ws://localhost:5001/api/v1/ws
	ServerURL string

	// AuthToken - значение jwt куки, полученное через /api/auth/login
	AuthToken string

	ICEServers []webrtc.ICEServer

	// RingTimeout - сколько ждать ответа на приглашение
	RingTimeout time.Duration

	// RejectedDisplay - сколько держать уведомление об отказе до
	// возврата в Idle
	RejectedDisplay time.Duration
}

func (c *Config) withDefaults() {
	if c.RingTimeout <= 0 {
		c.RingTimeout = 30 * time.Second
	}
	if c.RejectedDisplay <= 0 {
		c.RejectedDisplay = 3 * time.Second
	}
}

// Client is safe to use from multiple goroutines: user actions are
// funneled into the same event loop that consumes the socket, so the
// machine only ever sees one event at a time.
type Client struct {
	cfg Config

	conn    *websocket.Conn
	writeMu sync.Mutex

	machine *callstate.Machine
	pc      *webrtc.PeerConnection

	userEvents chan callstate.Event
	wireEvents chan callstate.Event
	done       chan struct{}
	closeOnce  sync.Once

	ringTimer *time.Timer

	flagsMu   sync.Mutex
	muted     bool
	cameraOff bool

	// OnIncomingCall fires when an invite arrives, before any state is
	// shown to the user. Accept or Reject resolves it.
	OnIncomingCall func(sessionID string, caller events.CallerInfo)

	// OnStateChange fires after every transition
	OnStateChange func(state callstate.State)

	// OnChatMessage fires for every chat fanout, including the echo of
	// our own messages
	OnChatMessage func(senderName, content string)
}

func New(cfg Config) *Client {
	cfg.withDefaults()

	return &Client{
		cfg:        cfg,
		machine:    callstate.New(),
		userEvents: make(chan callstate.Event, 8),
		wireEvents: make(chan callstate.Event, 32),
		done:       make(chan struct{}),
	}
}

// Connect dials the signaling socket. The jwt cookie set by the login
// endpoint is the only credential the server checks.
func (c *Client) Connect(ctx context.Context) error {
	header := http.Header{}
	header.Set("Cookie", "jwt="+c.cfg.AuthToken)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.ServerURL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial signaling socket: %w (status %s)", err, resp.Status)
		}
		return fmt.Errorf("dial signaling socket: %w", err)
	}

	c.conn = conn

	return nil
}

// Run consumes the socket and the user action queue until the context
// is cancelled or the socket breaks.
func (c *Client) Run(ctx context.Context) error {
	if c.conn == nil {
		return errors.New("client: not connected")
	}

	readErr := make(chan error, 1)
	go c.readLoop(readErr)

	defer c.teardown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case <-c.done:
			return nil
		case ev := <-c.userEvents:
			c.dispatch(ev)
		case ev := <-c.wireEvents:
			c.dispatch(ev)
		}
	}
}

// Close tears the client down from outside the event loop.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) State() callstate.State { return c.machine.State() }

// Dial invites a participant into a fresh session. The caller role is
// fixed by this action: this endpoint will produce the offer.
func (c *Client) Dial(toUserID uuid.UUID, sessionID string) {
	c.pushUser(callstate.Event{
		Type:      callstate.EventDial,
		SessionID: sessionID,
		PeerID:    toUserID.String(),
	})
}

func (c *Client) Accept() {
	c.pushUser(callstate.Event{Type: callstate.EventAcceptCall})
}

func (c *Client) Reject() {
	c.pushUser(callstate.Event{Type: callstate.EventRejectCall})
}

func (c *Client) HangUp() {
	c.pushUser(callstate.Event{Type: callstate.EventHangUp})
}

// SendChat publishes a chat line into the current session.
func (c *Client) SendChat(content string) error {
	sessionID := c.machine.SessionID()
	if sessionID == "" {
		return errors.New("client: no active session")
	}

	return c.send(events.TypeChat, events.ChatEvent{SessionID: sessionID, Content: content})
}

// ToggleMute flips the local mute flag. The flag never leaves the
// endpoint, the peer is not told.
func (c *Client) ToggleMute() bool {
	c.flagsMu.Lock()
	defer c.flagsMu.Unlock()

	c.muted = !c.muted
	c.applyTrackFlags()

	return c.muted
}

// ToggleCamera flips the local camera flag, same local-only semantics
// as mute.
func (c *Client) ToggleCamera() bool {
	c.flagsMu.Lock()
	defer c.flagsMu.Unlock()

	c.cameraOff = !c.cameraOff
	c.applyTrackFlags()

	return c.cameraOff
}

func (c *Client) pushUser(ev callstate.Event) {
	select {
	case c.userEvents <- ev:
	case <-c.done:
	}
}

func (c *Client) pushWire(ev callstate.Event) {
	select {
	case c.wireEvents <- ev:
	case <-c.done:
	}
}

func (c *Client) readLoop(readErr chan<- error) {
	for {
		var msg events.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			readErr <- err
			return
		}

		c.routeEnvelope(msg)
	}
}

func (c *Client) routeEnvelope(msg events.Message) {
	switch msg.Type {
	case events.TypeIncomingCall:
		var ev events.IncomingCallEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			slog.Error("unmarshal incoming_call", slog.Any(constant.Error, err))
			return
		}

		if c.OnIncomingCall != nil {
			c.OnIncomingCall(ev.SessionID, ev.Caller)
		}

		c.pushWire(callstate.Event{
			Type:      callstate.EventIncomingCall,
			SessionID: ev.SessionID,
			PeerID:    ev.Caller.ID.String(),
			PeerName:  ev.Caller.Name,
		})

	case events.TypeCallAccepted:
		var ev events.CallAcceptedEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			slog.Error("unmarshal call_accepted", slog.Any(constant.Error, err))
			return
		}

		c.pushWire(callstate.Event{Type: callstate.EventCallAccepted, SessionID: ev.SessionID})

	case events.TypeCallRejected:
		c.pushWire(callstate.Event{Type: callstate.EventCallRejected})

	case events.TypePeerJoined:
		var ev events.PeerEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			slog.Error("unmarshal peer_joined", slog.Any(constant.Error, err))
			return
		}

		c.pushWire(callstate.Event{
			Type:      callstate.EventPeerJoined,
			SessionID: ev.SessionID,
			PeerID:    ev.UserID.String(),
			PeerName:  ev.UserName,
		})

	case events.TypePeerLeft:
		c.pushWire(callstate.Event{Type: callstate.EventPeerLeft})

	case events.TypeOffer:
		var ev events.SdpEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			slog.Error("unmarshal offer", slog.Any(constant.Error, err))
			return
		}

		c.pushWire(callstate.Event{Type: callstate.EventOffer, SessionID: ev.SessionID, SDP: ev.SDP})

	case events.TypeAnswer:
		var ev events.SdpEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			slog.Error("unmarshal answer", slog.Any(constant.Error, err))
			return
		}

		c.pushWire(callstate.Event{Type: callstate.EventAnswer, SessionID: ev.SessionID, SDP: ev.SDP})

	case events.TypeCandidate:
		var ev events.IceCandidateEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			slog.Error("unmarshal candidate", slog.Any(constant.Error, err))
			return
		}

		raw, err := json.Marshal(ev.Candidate)
		if err != nil {
			return
		}

		c.pushWire(callstate.Event{Type: callstate.EventCandidate, SessionID: ev.SessionID, Candidate: raw})

	case events.TypeMessage:
		var ev struct {
			SenderName string `json:"sender_name"`
			Content    string `json:"content"`
		}
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}

		if c.OnChatMessage != nil {
			c.OnChatMessage(ev.SenderName, ev.Content)
		}

	case events.TypePong:

	case events.TypeError:
		var ev events.ErrorEvent
		_ = json.Unmarshal(msg.Data, &ev)
		slog.Warn("server error envelope", slog.String("message", ev.Message))

	default:
		slog.Debug("unhandled envelope", slog.String(constant.EnvType, msg.Type))
	}
}

// dispatch feeds a single event into the machine and executes the
// resulting commands in order.
func (c *Client) dispatch(ev callstate.Event) {
	before := c.machine.State()

	cmds, err := c.machine.Handle(ev)
	if err != nil {
		slog.Warn(
			"event dropped by call state machine",
			slog.Any(constant.Error, err),
			slog.String("state", before.String()),
		)
		return
	}

	for _, cmd := range cmds {
		if err := c.execute(cmd); err != nil {
			slog.Error("execute command", slog.Any(constant.Error, err))
			// Сигналинг сломан, продолжать звонок бессмысленно
			c.pushUser(callstate.Event{Type: callstate.EventHangUp})
			break
		}
	}

	after := c.machine.State()
	if after != before {
		c.onTransition(before, after)
	}
}

func (c *Client) onTransition(from, to callstate.State) {
	slog.Info(
		"call state",
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.String(constant.SessionID, c.machine.SessionID()),
	)

	// Таймер дозвона живёт ровно пока мы в Inviting
	if to == callstate.StateInviting {
		c.ringTimer = time.AfterFunc(c.cfg.RingTimeout, func() {
			c.pushUser(callstate.Event{Type: callstate.EventRingTimeout})
		})
	} else if from == callstate.StateInviting && c.ringTimer != nil {
		c.ringTimer.Stop()
		c.ringTimer = nil
	}

	if to == callstate.StateRejected {
		time.AfterFunc(c.cfg.RejectedDisplay, func() {
			c.pushUser(callstate.Event{Type: callstate.EventDismissRejected})
		})
	}

	if c.OnStateChange != nil {
		c.OnStateChange(to)
	}
}

func (c *Client) execute(cmd callstate.Command) error {
	switch cmd.Type {
	case callstate.CommandSendInvite:
		toUserID, err := uuid.Parse(cmd.PeerID)
		if err != nil {
			return fmt.Errorf("parse peer id: %w", err)
		}

		return c.send(events.TypeInvite, events.InviteEvent{
			ToUserID:  toUserID,
			SessionID: cmd.SessionID,
		})

	case callstate.CommandSendAccept:
		toUserID, err := uuid.Parse(cmd.PeerID)
		if err != nil {
			return fmt.Errorf("parse peer id: %w", err)
		}

		return c.send(events.TypeAccept, events.AcceptEvent{
			ToUserID:  toUserID,
			SessionID: cmd.SessionID,
		})

	case callstate.CommandSendReject:
		toUserID, err := uuid.Parse(cmd.PeerID)
		if err != nil {
			return fmt.Errorf("parse peer id: %w", err)
		}

		return c.send(events.TypeReject, events.RejectEvent{
			ToUserID:  toUserID,
			SessionID: cmd.SessionID,
		})

	case callstate.CommandJoinSession:
		return c.send(events.TypeJoin, events.JoinEvent{SessionID: cmd.SessionID})

	case callstate.CommandSendLeave:
		return c.send(events.TypeLeave, events.LeaveEvent{SessionID: cmd.SessionID})

	case callstate.CommandCreateOffer:
		return c.createOffer(cmd.SessionID)

	case callstate.CommandCreateAnswer:
		return c.createAnswer(cmd.SessionID, cmd.SDP)

	case callstate.CommandApplyAnswer:
		if c.pc == nil {
			return errors.New("no peer connection for answer")
		}

		return c.pc.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeAnswer,
			SDP:  cmd.SDP,
		})

	case callstate.CommandApplyCandidate:
		if c.pc == nil {
			return errors.New("no peer connection for candidate")
		}

		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal(cmd.Candidate, &candidate); err != nil {
			return fmt.Errorf("unmarshal candidate: %w", err)
		}

		return c.pc.AddICECandidate(candidate)

	case callstate.CommandTeardown:
		c.closePeerConnection()
		return nil
	}

	return fmt.Errorf("unknown command %d", cmd.Type)
}

func (c *Client) createOffer(sessionID string) error {
	if err := c.ensurePeerConnection(sessionID); err != nil {
		return err
	}

	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}

	if err = c.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	return c.send(events.TypeOffer, events.SdpEvent{SessionID: sessionID, SDP: offer.SDP})
}

func (c *Client) createAnswer(sessionID, offerSDP string) error {
	if err := c.ensurePeerConnection(sessionID); err != nil {
		return err
	}

	err := c.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offerSDP,
	})
	if err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}

	if err = c.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	return c.send(events.TypeAnswer, events.SdpEvent{SessionID: sessionID, SDP: answer.SDP})
}

func (c *Client) ensurePeerConnection(sessionID string) error {
	if c.pc != nil {
		return nil
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: c.cfg.ICEServers})
	if err != nil {
		return fmt.Errorf("new peer connection: %w", err)
	}

	if _, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio); err != nil {
		pc.Close()
		return fmt.Errorf("add audio transceiver: %w", err)
	}
	if _, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo); err != nil {
		pc.Close()
		return fmt.Errorf("add video transceiver: %w", err)
	}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}

		err := c.send(events.TypeCandidate, events.IceCandidateEvent{
			SessionID: sessionID,
			Candidate: candidate.ToJSON(),
		})
		if err != nil {
			slog.Error("send candidate", slog.Any(constant.Error, err))
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		slog.Info("peer connection state", slog.String("state", state.String()))

		if state == webrtc.PeerConnectionStateFailed {
			c.pushUser(callstate.Event{Type: callstate.EventHangUp})
		}
	})

	c.pc = pc

	return nil
}

func (c *Client) closePeerConnection() {
	if c.pc == nil {
		return
	}

	if err := c.pc.Close(); err != nil {
		slog.Error("close peer connection", slog.Any(constant.Error, err))
	}

	c.pc = nil
}

// applyTrackFlags is called under flagsMu. Without local capture
// devices the flags only gate what a future sender track would do.
func (c *Client) applyTrackFlags() {
	if c.pc == nil {
		return
	}

	for _, sender := range c.pc.GetSenders() {
		track := sender.Track()
		if track == nil {
			continue
		}

		switch track.Kind() {
		case webrtc.RTPCodecTypeAudio:
			if c.muted {
				_ = sender.ReplaceTrack(nil)
			}
		case webrtc.RTPCodecTypeVideo:
			if c.cameraOff {
				_ = sender.ReplaceTrack(nil)
			}
		}
	}
}

func (c *Client) send(msgType string, payload any) error {
	msg, err := events.NewMessage(msgType, payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msgType, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.conn.WriteJSON(msg)
}

func (c *Client) teardown() {
	if c.ringTimer != nil {
		c.ringTimer.Stop()
	}

	c.closePeerConnection()

	if c.conn != nil {
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.conn.Close()
	}
}
