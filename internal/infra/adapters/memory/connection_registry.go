package memory

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/venturelink/pitchcall/internal/application/constant"
	"github.com/venturelink/pitchcall/internal/application/metric"
)

// Conn - минимальный контракт соединения для реестра. Его реализует
// *websocket.Conn, в тестах достаточно фейка.
type Conn interface {
	WriteJSON(v any) error
}

// ConnectionRegistry держит в памяти связки участник -> соединения и
// сессия -> соединения на время жизни процесса релея. Создаётся явно
// при старте сервера и передаётся через конструкторы.
type ConnectionRegistry interface {
	// Register идемпотентно привязывает соединение к участнику
	Register(userID uuid.UUID, conn Conn)

	// Unregister снимает все привязки соединения, включая сессии.
	// Уже состоящие в сессии пиры НЕ уведомляются: молчаливый обрыв
	// не порождает peer_left.
	Unregister(userID uuid.UUID, conn Conn)

	JoinSession(sessionID string, userID uuid.UUID, conn Conn)
	LeaveSession(sessionID string, conn Conn)

	// DeliverToParticipant доставляет конверт во все соединения
	// участника (несколько вкладок). Возвращает число доставок:
	// ноль означает молчаливый дроп.
	DeliverToParticipant(userID uuid.UUID, payload any) int

	// DeliverToSession доставляет конверт участникам сессии.
	// exclude-соединение (обычно отправитель) никогда не получает
	// собственный конверт обратно.
	DeliverToSession(sessionID string, payload any, exclude Conn) int

	SessionMembers(sessionID string) []uuid.UUID
	ConnectedUsers() []uuid.UUID
}

// safeConn сериализует записи в одно соединение
type safeConn struct {
	conn   Conn
	userID uuid.UUID
	mu     sync.Mutex
}

func (s *safeConn) write(payload any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.WriteJSON(payload); err != nil {
		slog.Error(
			"write to connection",
			slog.Any(constant.Error, err),
			slog.Any(constant.UserID, s.userID),
		)
		return false
	}

	return true
}

type connectionRegistry struct {
	// participants хранит map[user_id]map[conn]*safeConn
	participants map[uuid.UUID]map[Conn]*safeConn

	// sessions хранит map[session_id]map[conn]*safeConn
	sessions map[string]map[Conn]*safeConn

	mu sync.RWMutex
}

func NewConnectionRegistry() ConnectionRegistry {
	return &connectionRegistry{
		participants: make(map[uuid.UUID]map[Conn]*safeConn, 16),
		sessions:     make(map[string]map[Conn]*safeConn, 16),
	}
}

func (r *connectionRegistry) Register(userID uuid.UUID, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.participants[userID]
	if !ok {
		conns = make(map[Conn]*safeConn, 1)
		r.participants[userID] = conns
	}

	// Повторная регистрация того же соединения не дублирует доставку
	if _, exists := conns[conn]; exists {
		return
	}

	conns[conn] = &safeConn{conn: conn, userID: userID}

	metric.IncrementWSActiveConnections()
}

func (r *connectionRegistry) Unregister(userID uuid.UUID, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.participants[userID]
	if !ok {
		return
	}

	if _, exists := conns[conn]; !exists {
		return
	}

	delete(conns, conn)
	if len(conns) == 0 {
		delete(r.participants, userID)
	}

	for sessionID, members := range r.sessions {
		delete(members, conn)
		if len(members) == 0 {
			delete(r.sessions, sessionID)
		}
	}

	metric.DecrementWSActiveConnections()
}

func (r *connectionRegistry) JoinSession(sessionID string, userID uuid.UUID, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.sessions[sessionID]
	if !ok {
		members = make(map[Conn]*safeConn, 2)
		r.sessions[sessionID] = members
	}

	// Обе карты должны указывать на один safeConn: иначе доставка по
	// участнику и по сессии возьмут разные мьютексы и запишут в одно
	// соединение одновременно
	if sc, registered := r.participants[userID][conn]; registered {
		members[conn] = sc
		return
	}

	members[conn] = &safeConn{conn: conn, userID: userID}
}

func (r *connectionRegistry) LeaveSession(sessionID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.sessions[sessionID]
	if !ok {
		return
	}

	delete(members, conn)
	if len(members) == 0 {
		delete(r.sessions, sessionID)
	}
}

func (r *connectionRegistry) DeliverToParticipant(userID uuid.UUID, payload any) int {
	r.mu.RLock()
	targets := make([]*safeConn, 0, len(r.participants[userID]))
	for _, sc := range r.participants[userID] {
		targets = append(targets, sc)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, sc := range targets {
		if sc.write(payload) {
			delivered++
		}
	}

	return delivered
}

func (r *connectionRegistry) DeliverToSession(sessionID string, payload any, exclude Conn) int {
	r.mu.RLock()
	targets := make([]*safeConn, 0, len(r.sessions[sessionID]))
	for conn, sc := range r.sessions[sessionID] {
		if conn == exclude {
			continue
		}
		targets = append(targets, sc)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, sc := range targets {
		if sc.write(payload) {
			delivered++
		}
	}

	return delivered
}

func (r *connectionRegistry) SessionMembers(sessionID string) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[uuid.UUID]struct{}, len(r.sessions[sessionID]))
	members := make([]uuid.UUID, 0, len(r.sessions[sessionID]))

	for _, sc := range r.sessions[sessionID] {
		if _, ok := seen[sc.userID]; ok {
			continue
		}
		seen[sc.userID] = struct{}{}
		members = append(members, sc.userID)
	}

	return members
}

func (r *connectionRegistry) ConnectedUsers() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userIDs := make([]uuid.UUID, 0, len(r.participants))

	for userID := range r.participants {
		userIDs = append(userIDs, userID)
	}

	return userIDs
}
