package memory

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	payloads []any
	failing  bool
}

func (f *fakeConn) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failing {
		return errors.New("broken pipe")
	}

	f.payloads = append(f.payloads, v)

	return nil
}

func (f *fakeConn) received() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.payloads)
}

func TestRegisterIsIdempotentPerConnection(t *testing.T) {
	registry := NewConnectionRegistry()
	userID := uuid.New()
	conn := &fakeConn{}

	registry.Register(userID, conn)
	registry.Register(userID, conn)

	delivered := registry.DeliverToParticipant(userID, "hello")
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, conn.received())
}

func TestDeliverToParticipantReachesAllTabs(t *testing.T) {
	registry := NewConnectionRegistry()
	userID := uuid.New()
	tab1 := &fakeConn{}
	tab2 := &fakeConn{}

	registry.Register(userID, tab1)
	registry.Register(userID, tab2)

	delivered := registry.DeliverToParticipant(userID, "hello")
	assert.Equal(t, 2, delivered)
	assert.Equal(t, 1, tab1.received())
	assert.Equal(t, 1, tab2.received())
}

// Доставка неизвестному адресату - молчаливый дроп, не ошибка.
func TestDeliverToUnknownParticipantDropsSilently(t *testing.T) {
	registry := NewConnectionRegistry()

	delivered := registry.DeliverToParticipant(uuid.New(), "hello")
	assert.Equal(t, 0, delivered)
}

func TestDeliverToSessionExcludesSender(t *testing.T) {
	registry := NewConnectionRegistry()

	sender := &fakeConn{}
	peer := &fakeConn{}
	senderID := uuid.New()
	peerID := uuid.New()

	registry.Register(senderID, sender)
	registry.Register(peerID, peer)
	registry.JoinSession("s1", senderID, sender)
	registry.JoinSession("s1", peerID, peer)

	delivered := registry.DeliverToSession("s1", "offer", sender)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 0, sender.received())
	assert.Equal(t, 1, peer.received())
}

func TestDeliverToSessionWithoutExclude(t *testing.T) {
	registry := NewConnectionRegistry()

	a := &fakeConn{}
	b := &fakeConn{}

	registry.JoinSession("s1", uuid.New(), a)
	registry.JoinSession("s1", uuid.New(), b)

	delivered := registry.DeliverToSession("s1", "chat", nil)
	assert.Equal(t, 2, delivered)
}

func TestUnregisterRemovesSessionBindings(t *testing.T) {
	registry := NewConnectionRegistry()

	userID := uuid.New()
	conn := &fakeConn{}

	registry.Register(userID, conn)
	registry.JoinSession("s1", userID, conn)

	registry.Unregister(userID, conn)

	assert.Equal(t, 0, registry.DeliverToParticipant(userID, "hello"))
	assert.Equal(t, 0, registry.DeliverToSession("s1", "hello", nil))
	assert.Empty(t, registry.ConnectedUsers())
}

func TestUnregisterUnknownConnectionIsNoop(t *testing.T) {
	registry := NewConnectionRegistry()

	userID := uuid.New()
	known := &fakeConn{}

	registry.Register(userID, known)
	registry.Unregister(userID, &fakeConn{})

	assert.Equal(t, 1, registry.DeliverToParticipant(userID, "hello"))
}

func TestLeaveSessionStopsSessionDelivery(t *testing.T) {
	registry := NewConnectionRegistry()

	userID := uuid.New()
	conn := &fakeConn{}

	registry.Register(userID, conn)
	registry.JoinSession("s1", userID, conn)
	registry.LeaveSession("s1", conn)

	assert.Equal(t, 0, registry.DeliverToSession("s1", "offer", nil))

	// Привязка участник -> соединение при этом живёт
	assert.Equal(t, 1, registry.DeliverToParticipant(userID, "hello"))
}

func TestSessionMembersDeduplicatesTabs(t *testing.T) {
	registry := NewConnectionRegistry()

	userID := uuid.New()
	otherID := uuid.New()

	registry.JoinSession("s1", userID, &fakeConn{})
	registry.JoinSession("s1", userID, &fakeConn{})
	registry.JoinSession("s1", otherID, &fakeConn{})

	members := registry.SessionMembers("s1")
	require.Len(t, members, 2)
	assert.ElementsMatch(t, []uuid.UUID{userID, otherID}, members)
}

func TestFailedWriteNotCountedAsDelivered(t *testing.T) {
	registry := NewConnectionRegistry()

	userID := uuid.New()
	broken := &fakeConn{failing: true}
	healthy := &fakeConn{}

	registry.Register(userID, broken)
	registry.Register(userID, healthy)

	delivered := registry.DeliverToParticipant(userID, "hello")
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, healthy.received())
}

// Обе карты реестра должны держать один safeConn на соединение,
// иначе записи в сокет сериализуются двумя разными мьютексами.
func TestJoinSessionReusesRegisteredConnection(t *testing.T) {
	registry := NewConnectionRegistry()

	userID := uuid.New()
	conn := &fakeConn{}

	registry.Register(userID, conn)
	registry.JoinSession("s1", userID, conn)

	impl, ok := registry.(*connectionRegistry)
	require.True(t, ok)

	assert.Same(t, impl.participants[userID][conn], impl.sessions["s1"][conn])
}

type concurrencyConn struct {
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (c *concurrencyConn) WriteJSON(v any) error {
	n := c.inFlight.Add(1)
	for {
		max := c.maxInFlight.Load()
		if n <= max || c.maxInFlight.CompareAndSwap(max, n) {
			break
		}
	}

	time.Sleep(time.Millisecond)
	c.inFlight.Add(-1)

	return nil
}

// Доставки по участнику и по сессии не должны входить в WriteJSON
// одного соединения одновременно.
func TestParticipantAndSessionWritesAreSerialized(t *testing.T) {
	registry := NewConnectionRegistry()

	userID := uuid.New()
	conn := &concurrencyConn{}

	registry.Register(userID, conn)
	registry.JoinSession("s1", userID, conn)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			registry.DeliverToParticipant(userID, "invite")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			registry.DeliverToSession("s1", "candidate", nil)
		}
	}()

	wg.Wait()

	assert.Equal(t, int32(1), conn.maxInFlight.Load())
}

func TestConcurrentRegisterAndDeliver(t *testing.T) {
	registry := NewConnectionRegistry()
	userID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			conn := &fakeConn{}
			registry.Register(userID, conn)
			registry.DeliverToParticipant(userID, "ping")
			registry.Unregister(userID, conn)
		}()
	}

	wg.Wait()

	assert.Equal(t, 0, registry.DeliverToParticipant(userID, "hello"))
}
