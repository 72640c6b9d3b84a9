package events

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// Типы конвертов, приходящих от клиента
const (
	TypeJoin      = "join"
	TypeInvite    = "invite"
	TypeAccept    = "accept"
	TypeReject    = "reject"
	TypeLeave     = "leave"
	TypeChat      = "chat"
	TypePing      = "ping"
	TypeOffer     = "offer"
	TypeAnswer    = "answer"
	TypeCandidate = "candidate"
)

// Типы конвертов, отправляемых клиенту
const (
	TypeIncomingCall = "incoming_call"
	TypeCallAccepted = "call_accepted"
	TypeCallRejected = "call_rejected"
	TypePeerJoined   = "peer_joined"
	TypePeerLeft     = "peer_left"
	TypeMessage      = "message"
	TypePong         = "pong"
	TypeError        = "error"
)

// Message - общий конверт. Релей не заглядывает в Data дальше
// тега типа и адресата.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func NewMessage(msgType string, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}

	return Message{Type: msgType, Data: data}, nil
}

// JoinEvent - подключение участника к сессии звонка
type JoinEvent struct {
	SessionID string `json:"session_id"`
}

// CallerInfo - отображаемые данные звонящего для попапа входящего звонка
type CallerInfo struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Avatar string    `json:"avatar,omitempty"`
}

// InviteEvent - приглашение в звонок, адресовано участнику
type InviteEvent struct {
	ToUserID  uuid.UUID  `json:"to_user_id"`
	SessionID string     `json:"session_id"`
	Caller    CallerInfo `json:"caller"`
}

// AcceptEvent - согласие на звонок, адресовано звонящему
type AcceptEvent struct {
	ToUserID  uuid.UUID `json:"to_user_id"`
	SessionID string    `json:"session_id"`
}

// RejectEvent - отказ от звонка, адресован звонящему
type RejectEvent struct {
	ToUserID  uuid.UUID `json:"to_user_id"`
	SessionID string    `json:"session_id"`
}

// LeaveEvent - явный выход из сессии при завершении звонка
type LeaveEvent struct {
	SessionID string `json:"session_id"`
}

// ChatEvent - текстовое сообщение в сессию
type ChatEvent struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
}

// SdpEvent - события с SDP (offer, answer)
type SdpEvent struct {
	SessionID string `json:"session_id"`
	SDP       string `json:"sdp"`
}

// IceCandidateEvent - ICE кандидаты
type IceCandidateEvent struct {
	SessionID string                  `json:"session_id"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// SessionTarget - минимум, который релей читает из пересылаемого
// конверта: только адресат-сессия
type SessionTarget struct {
	SessionID string `json:"session_id"`
}

// IncomingCallEvent - входящий звонок на стороне вызываемого
type IncomingCallEvent struct {
	SessionID string     `json:"session_id"`
	Caller    CallerInfo `json:"caller"`
}

// CallAcceptedEvent - звонок принят, у звонящего начинается offer
type CallAcceptedEvent struct {
	SessionID  string    `json:"session_id"`
	AccepterID uuid.UUID `json:"accepter_id"`
}

// PeerEvent - участник вошёл в сессию или покинул её
type PeerEvent struct {
	SessionID string    `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
	UserName  string    `json:"user_name,omitempty"`
}

// ErrorEvent - ошибка уровня протокола, отправляется отправителю
type ErrorEvent struct {
	Message string `json:"message"`
}
