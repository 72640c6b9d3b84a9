package callstate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commandTypes(cmds []Command) []CommandType {
	types := make([]CommandType, 0, len(cmds))
	for _, cmd := range cmds {
		types = append(types, cmd.Type)
	}

	return types
}

func TestCallerHappyPath(t *testing.T) {
	m := New()

	cmds, err := m.Handle(Event{Type: EventDial, SessionID: "s1", PeerID: "peer"})
	require.NoError(t, err)
	// Звонящий входит в сессию до приглашения, иначе ответные
	// конверты разойдутся по пустой комнате
	assert.Equal(t, []CommandType{CommandJoinSession, CommandSendInvite}, commandTypes(cmds))
	assert.Equal(t, StateInviting, m.State())
	assert.Equal(t, RoleCaller, m.Role())

	cmds, err = m.Handle(Event{Type: EventCallAccepted, SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, []CommandType{CommandCreateOffer}, commandTypes(cmds))
	assert.Equal(t, StateNegotiating, m.State())

	cmds, err = m.Handle(Event{Type: EventAnswer, SessionID: "s1", SDP: "answer-sdp"})
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, CommandApplyAnswer, cmds[0].Type)
	assert.Equal(t, "answer-sdp", cmds[0].SDP)
	assert.Equal(t, StateInCall, m.State())

	cmds, err = m.Handle(Event{Type: EventHangUp})
	require.NoError(t, err)
	assert.Equal(t, []CommandType{CommandSendLeave, CommandTeardown}, commandTypes(cmds))
	assert.Equal(t, StateEnded, m.State())
}

func TestCalleeHappyPath(t *testing.T) {
	m := New()

	cmds, err := m.Handle(Event{Type: EventIncomingCall, SessionID: "s1", PeerID: "caller", PeerName: "Alice"})
	require.NoError(t, err)
	assert.Empty(t, cmds)
	assert.Equal(t, StateRinging, m.State())
	assert.Equal(t, RoleCallee, m.Role())

	cmds, err = m.Handle(Event{Type: EventAcceptCall})
	require.NoError(t, err)
	assert.Equal(t, []CommandType{CommandSendAccept, CommandJoinSession}, commandTypes(cmds))
	assert.Equal(t, StateAccepted, m.State())

	cmds, err = m.Handle(Event{Type: EventOffer, SessionID: "s1", SDP: "offer-sdp"})
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, CommandCreateAnswer, cmds[0].Type)
	assert.Equal(t, "offer-sdp", cmds[0].SDP)
	assert.Equal(t, StateInCall, m.State())
}

// Оффер создаётся ровно один раз, какой бы из конвертов (accept или
// peer_joined) ни пришёл вторым.
func TestOfferCreatedExactlyOnce(t *testing.T) {
	m := New()

	_, err := m.Handle(Event{Type: EventDial, SessionID: "s1", PeerID: "peer"})
	require.NoError(t, err)

	cmds, err := m.Handle(Event{Type: EventPeerJoined, SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, []CommandType{CommandCreateOffer}, commandTypes(cmds))

	cmds, err = m.Handle(Event{Type: EventCallAccepted, SessionID: "s1"})
	require.NoError(t, err)
	assert.Empty(t, cmds)

	cmds, err = m.Handle(Event{Type: EventPeerJoined, SessionID: "s1"})
	require.NoError(t, err)
	assert.Empty(t, cmds)
}

// Роли зафиксированы: звонящая сторона никогда не отвечает на оффер.
func TestCallerRejectsIncomingOffer(t *testing.T) {
	m := New()

	_, err := m.Handle(Event{Type: EventDial, SessionID: "s1", PeerID: "peer"})
	require.NoError(t, err)

	_, err = m.Handle(Event{Type: EventCallAccepted, SessionID: "s1"})
	require.NoError(t, err)

	_, err = m.Handle(Event{Type: EventOffer, SessionID: "s1", SDP: "glare"})
	assert.ErrorIs(t, err, ErrUnexpectedOffer)
	assert.Equal(t, StateNegotiating, m.State())
}

// Принявшая сторона не ренегоциирует: второй оффер отклоняется.
func TestCalleeRejectsSecondOffer(t *testing.T) {
	m := New()

	_, err := m.Handle(Event{Type: EventIncomingCall, SessionID: "s1", PeerID: "caller"})
	require.NoError(t, err)
	_, err = m.Handle(Event{Type: EventAcceptCall})
	require.NoError(t, err)
	_, err = m.Handle(Event{Type: EventOffer, SessionID: "s1", SDP: "first"})
	require.NoError(t, err)

	_, err = m.Handle(Event{Type: EventOffer, SessionID: "s1", SDP: "second"})
	assert.ErrorIs(t, err, ErrUnexpectedOffer)
}

// Оффер до incoming_call: приглашение обогнал join, принимающая
// сторона берёт роль callee неявно.
func TestImplicitCalleeOnEarlyOffer(t *testing.T) {
	m := New()

	cmds, err := m.Handle(Event{Type: EventOffer, SessionID: "s1", PeerID: "caller", SDP: "offer-sdp"})
	require.NoError(t, err)
	assert.Equal(t, []CommandType{CommandCreateAnswer}, commandTypes(cmds))
	assert.Equal(t, RoleCallee, m.Role())
	assert.Equal(t, StateInCall, m.State())
	assert.Equal(t, "s1", m.SessionID())
}

func TestRejectReturnsCallerToIdleWithoutOffer(t *testing.T) {
	m := New()

	_, err := m.Handle(Event{Type: EventDial, SessionID: "s1", PeerID: "peer"})
	require.NoError(t, err)

	cmds, err := m.Handle(Event{Type: EventCallRejected})
	require.NoError(t, err)
	assert.Equal(t, []CommandType{CommandTeardown}, commandTypes(cmds))
	assert.Equal(t, StateRejected, m.State())

	// Пока показывается отказ, ничего не происходит
	cmds, err = m.Handle(Event{Type: EventCandidate, Candidate: json.RawMessage(`{}`)})
	require.NoError(t, err)
	assert.Empty(t, cmds)

	cmds, err = m.Handle(Event{Type: EventDismissRejected})
	require.NoError(t, err)
	assert.Empty(t, cmds)
	assert.Equal(t, StateIdle, m.State())
	assert.Equal(t, RoleNone, m.Role())
}

func TestCalleeRejectGoesStraightToIdle(t *testing.T) {
	m := New()

	_, err := m.Handle(Event{Type: EventIncomingCall, SessionID: "s1", PeerID: "caller"})
	require.NoError(t, err)

	cmds, err := m.Handle(Event{Type: EventRejectCall})
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, CommandSendReject, cmds[0].Type)
	assert.Equal(t, "caller", cmds[0].PeerID)
	assert.Equal(t, StateIdle, m.State())
}

func TestRingTimeoutReturnsToIdle(t *testing.T) {
	m := New()

	_, err := m.Handle(Event{Type: EventDial, SessionID: "s1", PeerID: "peer"})
	require.NoError(t, err)

	cmds, err := m.Handle(Event{Type: EventRingTimeout})
	require.NoError(t, err)
	assert.Equal(t, []CommandType{CommandTeardown}, commandTypes(cmds))
	assert.Equal(t, StateIdle, m.State())
}

// Кандидаты, пришедшие до установки описаний, буферизуются и
// применяются после answer в исходном порядке.
func TestCandidatesBufferedUntilDescriptionsReady(t *testing.T) {
	m := New()

	_, err := m.Handle(Event{Type: EventDial, SessionID: "s1", PeerID: "peer"})
	require.NoError(t, err)
	_, err = m.Handle(Event{Type: EventCallAccepted, SessionID: "s1"})
	require.NoError(t, err)

	first := json.RawMessage(`{"candidate":"a"}`)
	second := json.RawMessage(`{"candidate":"b"}`)

	cmds, err := m.Handle(Event{Type: EventCandidate, SessionID: "s1", Candidate: first})
	require.NoError(t, err)
	assert.Empty(t, cmds)

	cmds, err = m.Handle(Event{Type: EventCandidate, SessionID: "s1", Candidate: second})
	require.NoError(t, err)
	assert.Empty(t, cmds)

	cmds, err = m.Handle(Event{Type: EventAnswer, SessionID: "s1", SDP: "answer"})
	require.NoError(t, err)
	require.Len(t, cmds, 3)
	assert.Equal(t, CommandApplyAnswer, cmds[0].Type)
	assert.Equal(t, first, cmds[1].Candidate)
	assert.Equal(t, second, cmds[2].Candidate)

	// После установки описаний кандидаты применяются сразу
	cmds, err = m.Handle(Event{Type: EventCandidate, SessionID: "s1", Candidate: json.RawMessage(`{"candidate":"c"}`)})
	require.NoError(t, err)
	assert.Equal(t, []CommandType{CommandApplyCandidate}, commandTypes(cmds))
}

// Кандидаты могут приходить вперемешку с answer: итог не зависит от
// порядка, все кандидаты применяются ровно один раз.
func TestCandidateAnswerInterleavings(t *testing.T) {
	orders := [][]Event{
		{
			{Type: EventAnswer, SessionID: "s1", SDP: "a"},
			{Type: EventCandidate, SessionID: "s1", Candidate: json.RawMessage(`{"candidate":"1"}`)},
			{Type: EventCandidate, SessionID: "s1", Candidate: json.RawMessage(`{"candidate":"2"}`)},
		},
		{
			{Type: EventCandidate, SessionID: "s1", Candidate: json.RawMessage(`{"candidate":"1"}`)},
			{Type: EventAnswer, SessionID: "s1", SDP: "a"},
			{Type: EventCandidate, SessionID: "s1", Candidate: json.RawMessage(`{"candidate":"2"}`)},
		},
		{
			{Type: EventCandidate, SessionID: "s1", Candidate: json.RawMessage(`{"candidate":"1"}`)},
			{Type: EventCandidate, SessionID: "s1", Candidate: json.RawMessage(`{"candidate":"2"}`)},
			{Type: EventAnswer, SessionID: "s1", SDP: "a"},
		},
	}

	for i, order := range orders {
		m := New()

		_, err := m.Handle(Event{Type: EventDial, SessionID: "s1", PeerID: "peer"})
		require.NoError(t, err)
		_, err = m.Handle(Event{Type: EventCallAccepted, SessionID: "s1"})
		require.NoError(t, err)

		applied := 0
		answered := 0
		for _, ev := range order {
			cmds, err := m.Handle(ev)
			require.NoError(t, err, "order %d", i)

			for _, cmd := range cmds {
				switch cmd.Type {
				case CommandApplyCandidate:
					applied++
				case CommandApplyAnswer:
					answered++
				}
			}
		}

		assert.Equal(t, 2, applied, "order %d", i)
		assert.Equal(t, 1, answered, "order %d", i)
		assert.Equal(t, StateInCall, m.State(), "order %d", i)
	}
}

func TestPeerLeftEndsCall(t *testing.T) {
	m := New()

	_, err := m.Handle(Event{Type: EventIncomingCall, SessionID: "s1", PeerID: "caller"})
	require.NoError(t, err)
	_, err = m.Handle(Event{Type: EventAcceptCall})
	require.NoError(t, err)
	_, err = m.Handle(Event{Type: EventOffer, SessionID: "s1", SDP: "offer"})
	require.NoError(t, err)

	cmds, err := m.Handle(Event{Type: EventPeerLeft})
	require.NoError(t, err)
	assert.Equal(t, []CommandType{CommandTeardown}, commandTypes(cmds))
	assert.Equal(t, StateEnded, m.State())
}

// Молчаливый обрыв пира не порождает событий, а без события нет
// перехода: дублирующие служебные конверты звонок тоже не трогают.
func TestCallSurvivesWithoutExplicitLeave(t *testing.T) {
	m := New()

	_, err := m.Handle(Event{Type: EventDial, SessionID: "s1", PeerID: "peer"})
	require.NoError(t, err)
	_, err = m.Handle(Event{Type: EventCallAccepted, SessionID: "s1"})
	require.NoError(t, err)
	_, err = m.Handle(Event{Type: EventAnswer, SessionID: "s1", SDP: "answer"})
	require.NoError(t, err)
	require.Equal(t, StateInCall, m.State())

	for _, ev := range []Event{
		{Type: EventCallAccepted, SessionID: "s1"},
		{Type: EventPeerJoined, SessionID: "s1"},
		{Type: EventAnswer, SessionID: "s1", SDP: "dup"},
	} {
		cmds, err := m.Handle(ev)
		require.NoError(t, err)
		assert.Empty(t, cmds)
		assert.Equal(t, StateInCall, m.State())
	}
}

func TestSecondInviteWhileRingingIgnored(t *testing.T) {
	m := New()

	_, err := m.Handle(Event{Type: EventIncomingCall, SessionID: "s1", PeerID: "first"})
	require.NoError(t, err)

	cmds, err := m.Handle(Event{Type: EventIncomingCall, SessionID: "s2", PeerID: "second"})
	require.NoError(t, err)
	assert.Empty(t, cmds)
	assert.Equal(t, "s1", m.SessionID())
	assert.Equal(t, "first", m.PeerID())
}

func TestStrayEnvelopesInIdleAreNoops(t *testing.T) {
	m := New()

	for _, ev := range []Event{
		{Type: EventCallAccepted, SessionID: "old"},
		{Type: EventCallRejected},
		{Type: EventPeerJoined, SessionID: "old"},
		{Type: EventPeerLeft},
		{Type: EventAnswer, SessionID: "old", SDP: "stale"},
	} {
		cmds, err := m.Handle(ev)
		require.NoError(t, err)
		assert.Empty(t, cmds)
		assert.Equal(t, StateIdle, m.State())
	}
}

// Завершённый звонок не терминален для соединения: следующий звонок
// начинается заново из Idle.
func TestNewCallAfterHangUp(t *testing.T) {
	m := New()

	_, err := m.Handle(Event{Type: EventDial, SessionID: "s1", PeerID: "peer"})
	require.NoError(t, err)
	_, err = m.Handle(Event{Type: EventCallAccepted, SessionID: "s1"})
	require.NoError(t, err)
	_, err = m.Handle(Event{Type: EventAnswer, SessionID: "s1", SDP: "answer"})
	require.NoError(t, err)
	_, err = m.Handle(Event{Type: EventHangUp})
	require.NoError(t, err)
	require.Equal(t, StateEnded, m.State())

	// Исходящий звонок после завершения
	cmds, err := m.Handle(Event{Type: EventDial, SessionID: "s2", PeerID: "other"})
	require.NoError(t, err)
	assert.Equal(t, []CommandType{CommandJoinSession, CommandSendInvite}, commandTypes(cmds))
	assert.Equal(t, StateInviting, m.State())
	assert.Equal(t, "s2", m.SessionID())

	// Оффер снова создаётся ровно один раз
	cmds, err = m.Handle(Event{Type: EventCallAccepted, SessionID: "s2"})
	require.NoError(t, err)
	assert.Equal(t, []CommandType{CommandCreateOffer}, commandTypes(cmds))
}

func TestIncomingCallAfterPeerLeft(t *testing.T) {
	m := New()

	_, err := m.Handle(Event{Type: EventIncomingCall, SessionID: "s1", PeerID: "caller"})
	require.NoError(t, err)
	_, err = m.Handle(Event{Type: EventAcceptCall})
	require.NoError(t, err)
	_, err = m.Handle(Event{Type: EventOffer, SessionID: "s1", SDP: "offer"})
	require.NoError(t, err)
	_, err = m.Handle(Event{Type: EventPeerLeft})
	require.NoError(t, err)
	require.Equal(t, StateEnded, m.State())

	cmds, err := m.Handle(Event{Type: EventIncomingCall, SessionID: "s2", PeerID: "caller"})
	require.NoError(t, err)
	assert.Empty(t, cmds)
	assert.Equal(t, StateRinging, m.State())
	assert.Equal(t, RoleCallee, m.Role())
	assert.Equal(t, "s2", m.SessionID())
}

func TestHangUpWhileRinging(t *testing.T) {
	m := New()

	_, err := m.Handle(Event{Type: EventIncomingCall, SessionID: "s1", PeerID: "caller"})
	require.NoError(t, err)

	cmds, err := m.Handle(Event{Type: EventHangUp})
	require.NoError(t, err)
	assert.Equal(t, []CommandType{CommandSendLeave, CommandTeardown}, commandTypes(cmds))
	assert.Equal(t, StateEnded, m.State())
}
