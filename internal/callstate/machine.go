// Package callstate contains the call negotiation state machine shared
// by both ends of a call. The machine is pure: it consumes events
// (user actions and relayed envelopes) and emits commands for the
// driver to execute against the signaling transport and the peer
// connection. Both peers instantiate the same machine with roles fixed
// at invitation time, so the transition logic cannot drift between the
// calling and the answering side.
package callstate

import (
	"encoding/json"
	"errors"
)

type Role int

const (
	RoleNone Role = iota
	RoleCaller
	RoleCallee
)

func (r Role) String() string {
	switch r {
	case RoleCaller:
		return "caller"
	case RoleCallee:
		return "callee"
	default:
		return "none"
	}
}

type State int

const (
	StateIdle State = iota
	StateInviting
	StateRinging
	StateAccepted
	StateNegotiating
	StateInCall
	StateRejected
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInviting:
		return "inviting"
	case StateRinging:
		return "ringing"
	case StateAccepted:
		return "accepted"
	case StateNegotiating:
		return "negotiating"
	case StateInCall:
		return "in_call"
	case StateRejected:
		return "rejected"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

var (
	// ErrUnexpectedOffer guards the fixed-role invariant: the caller
	// always offers and the callee always answers, a second offer for
	// the same session is a protocol violation, not a race to resolve.
	ErrUnexpectedOffer = errors.New("callstate: offer violates fixed session role")

	ErrBadTransition = errors.New("callstate: event not allowed in current state")
)

type EventType int

const (
	// User actions
	EventDial EventType = iota
	EventAcceptCall
	EventRejectCall
	EventHangUp

	// Local timers
	EventRingTimeout
	EventDismissRejected

	// Relayed envelopes
	EventIncomingCall
	EventCallAccepted
	EventCallRejected
	EventPeerJoined
	EventOffer
	EventAnswer
	EventCandidate
	EventPeerLeft
)

// Event is an input to the machine. SDP and Candidate payloads stay
// opaque, the machine routes them without parsing.
type Event struct {
	Type      EventType
	SessionID string

	// PeerID - the other participant, set on Dial and IncomingCall
	PeerID   string
	PeerName string

	SDP       string
	Candidate json.RawMessage
}

type CommandType int

const (
	CommandSendInvite CommandType = iota
	CommandSendAccept
	CommandSendReject
	CommandSendLeave
	CommandJoinSession
	CommandCreateOffer
	CommandCreateAnswer
	CommandApplyAnswer
	CommandApplyCandidate
	CommandTeardown
)

// Command is an effect for the driver: send an envelope, drive the
// peer connection, or release local resources.
type Command struct {
	Type      CommandType
	SessionID string
	PeerID    string
	SDP       string
	Candidate json.RawMessage
}

// Machine holds the per-call negotiation state of one endpoint.
// Not safe for concurrent use: the driver feeds it from a single
// event loop, which also gives the per-connection ordering the
// protocol relies on.
type Machine struct {
	role      Role
	state     State
	sessionID string
	peerID    string

	offerSent         bool
	descriptionsReady bool

	// Candidates that arrived before the peer connection had its
	// descriptions are buffered and replayed once negotiation reaches
	// that point, instead of being dropped on the floor.
	pending []json.RawMessage
}

func New() *Machine {
	return &Machine{state: StateIdle}
}

func (m *Machine) State() State      { return m.state }
func (m *Machine) Role() Role        { return m.role }
func (m *Machine) SessionID() string { return m.sessionID }
func (m *Machine) PeerID() string    { return m.peerID }

// Handle advances the machine. The returned commands must be executed
// in order.
func (m *Machine) Handle(ev Event) ([]Command, error) {
	switch ev.Type {
	case EventHangUp:
		return m.hangUp()
	case EventPeerLeft:
		return m.peerLeft()
	case EventCandidate:
		return m.candidate(ev)
	case EventOffer:
		return m.offer(ev)
	}

	switch m.state {
	case StateIdle:
		return m.handleIdle(ev)
	case StateInviting:
		return m.handleInviting(ev)
	case StateRinging:
		return m.handleRinging(ev)
	case StateAccepted:
		return m.handleAccepted(ev)
	case StateNegotiating:
		return m.handleNegotiating(ev)
	case StateInCall:
		return m.handleInCall(ev)
	case StateRejected:
		return m.handleRejected(ev)
	case StateEnded:
		return m.handleEnded(ev)
	}

	return nil, ErrBadTransition
}

func (m *Machine) handleIdle(ev Event) ([]Command, error) {
	switch ev.Type {
	case EventDial:
		// Role is fixed here for the session's lifetime
		m.role = RoleCaller
		m.state = StateInviting
		m.sessionID = ev.SessionID
		m.peerID = ev.PeerID

		// Сначала входим в сессию, потом зовём: иначе answer и
		// кандидаты вызываемого разойдутся по пустой комнате
		return []Command{
			{Type: CommandJoinSession, SessionID: ev.SessionID},
			{Type: CommandSendInvite, SessionID: ev.SessionID, PeerID: ev.PeerID},
		}, nil

	case EventIncomingCall:
		m.role = RoleCallee
		m.state = StateRinging
		m.sessionID = ev.SessionID
		m.peerID = ev.PeerID

		return nil, nil

	case EventCallRejected, EventCallAccepted, EventPeerJoined, EventAnswer,
		EventRingTimeout, EventDismissRejected:
		// Stray envelope from an abandoned session
		return nil, nil
	}

	return nil, ErrBadTransition
}

func (m *Machine) handleInviting(ev Event) ([]Command, error) {
	switch ev.Type {
	case EventCallAccepted, EventPeerJoined:
		// Both the accept envelope and the session join announcement
		// can trigger the offer, whichever lands first; the guard
		// keeps the offer single
		if m.offerSent {
			return nil, nil
		}
		m.offerSent = true
		m.state = StateNegotiating

		return []Command{{Type: CommandCreateOffer, SessionID: m.sessionID}}, nil

	case EventCallRejected:
		m.state = StateRejected

		return []Command{{Type: CommandTeardown, SessionID: m.sessionID}}, nil

	case EventRingTimeout:
		// No answer within the configured window: give up and return
		// to idle so the user can redial
		session := m.sessionID
		m.reset()

		return []Command{{Type: CommandTeardown, SessionID: session}}, nil
	}

	return nil, ErrBadTransition
}

func (m *Machine) handleRinging(ev Event) ([]Command, error) {
	switch ev.Type {
	case EventAcceptCall:
		m.state = StateAccepted

		return []Command{
			{Type: CommandSendAccept, SessionID: m.sessionID, PeerID: m.peerID},
			{Type: CommandJoinSession, SessionID: m.sessionID},
		}, nil

	case EventRejectCall:
		peer := m.peerID
		session := m.sessionID
		m.reset()

		return []Command{{Type: CommandSendReject, SessionID: session, PeerID: peer}}, nil

	case EventIncomingCall:
		// Busy: a second invite while ringing is ignored
		return nil, nil
	}

	return nil, ErrBadTransition
}

func (m *Machine) handleAccepted(ev Event) ([]Command, error) {
	switch ev.Type {
	case EventPeerJoined, EventCallAccepted:
		return nil, nil
	}

	return nil, ErrBadTransition
}

func (m *Machine) handleNegotiating(ev Event) ([]Command, error) {
	switch ev.Type {
	case EventAnswer:
		m.descriptionsReady = true
		m.state = StateInCall

		cmds := []Command{{Type: CommandApplyAnswer, SessionID: m.sessionID, SDP: ev.SDP}}

		return append(cmds, m.flushPending()...), nil

	case EventPeerJoined, EventCallAccepted:
		return nil, nil
	}

	return nil, ErrBadTransition
}

func (m *Machine) handleInCall(ev Event) ([]Command, error) {
	switch ev.Type {
	case EventAnswer:
		// Duplicate answer after descriptions are set
		return nil, nil

	case EventPeerJoined, EventCallAccepted:
		return nil, nil
	}

	return nil, ErrBadTransition
}

func (m *Machine) handleRejected(ev Event) ([]Command, error) {
	switch ev.Type {
	case EventDismissRejected:
		// The rejection notice was shown for its fixed window
		m.reset()
		return nil, nil
	}

	return nil, nil
}

// Ended is terminal for the session, not for the endpoint: the next
// call starts over from Idle.
func (m *Machine) handleEnded(ev Event) ([]Command, error) {
	switch ev.Type {
	case EventDial, EventIncomingCall:
		m.reset()
		return m.handleIdle(ev)
	}

	return nil, nil
}

// offer handles the answering path. An offer while idle means the
// invite raced the session join: the receiver assumes the callee role
// implicitly. An offer on the caller side is a protocol violation.
func (m *Machine) offer(ev Event) ([]Command, error) {
	switch m.state {
	case StateEnded, StateRejected:
		return nil, nil
	}

	if m.role == RoleCaller {
		return nil, ErrUnexpectedOffer
	}

	if m.descriptionsReady {
		// The accepting side never renegotiates
		return nil, ErrUnexpectedOffer
	}

	if m.state == StateIdle {
		m.role = RoleCallee
		m.sessionID = ev.SessionID
		m.peerID = ev.PeerID
	}

	m.descriptionsReady = true
	m.state = StateInCall

	cmds := []Command{{Type: CommandCreateAnswer, SessionID: m.sessionID, SDP: ev.SDP}}

	return append(cmds, m.flushPending()...), nil
}

func (m *Machine) candidate(ev Event) ([]Command, error) {
	switch m.state {
	case StateEnded, StateRejected:
		return nil, nil
	}

	if !m.descriptionsReady {
		m.pending = append(m.pending, ev.Candidate)
		return nil, nil
	}

	return []Command{{
		Type:      CommandApplyCandidate,
		SessionID: m.sessionID,
		Candidate: ev.Candidate,
	}}, nil
}

func (m *Machine) hangUp() ([]Command, error) {
	if m.state == StateIdle || m.state == StateEnded {
		return nil, nil
	}

	session := m.sessionID
	m.state = StateEnded

	cmds := make([]Command, 0, 2)
	if session != "" {
		cmds = append(cmds, Command{Type: CommandSendLeave, SessionID: session})
	}

	return append(cmds, Command{Type: CommandTeardown, SessionID: session}), nil
}

func (m *Machine) peerLeft() ([]Command, error) {
	switch m.state {
	case StateIdle, StateEnded, StateRejected:
		return nil, nil
	}

	session := m.sessionID
	m.state = StateEnded

	return []Command{{Type: CommandTeardown, SessionID: session}}, nil
}

func (m *Machine) flushPending() []Command {
	if len(m.pending) == 0 {
		return nil
	}

	cmds := make([]Command, 0, len(m.pending))
	for _, cand := range m.pending {
		cmds = append(cmds, Command{
			Type:      CommandApplyCandidate,
			SessionID: m.sessionID,
			Candidate: cand,
		})
	}

	m.pending = nil

	return cmds
}

func (m *Machine) reset() {
	m.role = RoleNone
	m.state = StateIdle
	m.sessionID = ""
	m.peerID = ""
	m.offerSent = false
	m.descriptionsReady = false
	m.pending = nil
}
