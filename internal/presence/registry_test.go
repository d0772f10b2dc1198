package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carelink-ws-server/internal/rooms"
	"carelink-ws-server/internal/types"
)

type fakeConn struct {
	id   string
	role types.Role

	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (f *fakeConn) PrincipalID() string       { return f.id }
func (f *fakeConn) PrincipalRole() types.Role { return f.role }

func (f *fakeConn) Send(message []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, message)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newTestRegistry() (*Registry, *rooms.Router) {
	router := rooms.NewRouter(nil, zap.NewNop())
	return NewRegistry(router, zap.NewNop()), router
}

func TestRegister_AdmitsAndSubscribesDefaults(t *testing.T) {
	registry, router := newTestRegistry()
	doctor := types.Principal{ID: "d1", Role: types.RoleDoctor, Status: types.StatusActive}
	conn := &fakeConn{id: "d1", role: types.RoleDoctor}

	registry.Register(doctor, conn)

	assert.True(t, registry.IsOnline("d1"))
	assert.Equal(t, 1, registry.CountOnline())
	assert.Same(t, conn, registry.Lookup("d1").(*fakeConn))

	router.Publish(rooms.User("d1"), []byte("u"))
	router.Publish(rooms.ForRole(types.RoleDoctor), []byte("r"))
	router.Publish(rooms.Doctors, []byte("d"))
	assert.Len(t, conn.sent, 3)
}

func TestRegister_ReconnectSupersedes(t *testing.T) {
	registry, router := newTestRegistry()
	patient := types.Principal{ID: "p1", Role: types.RolePatient, Status: types.StatusActive}
	first := &fakeConn{id: "p1", role: types.RolePatient}
	second := &fakeConn{id: "p1", role: types.RolePatient}

	registry.Register(patient, first)
	registry.Register(patient, second)

	// At most one live connection per principal
	assert.Equal(t, 1, registry.CountOnline())
	assert.Same(t, second, registry.Lookup("p1").(*fakeConn))
	assert.True(t, first.isClosed())

	// The superseded handle no longer receives deliveries
	router.Publish(rooms.User("p1"), []byte("hello"))
	assert.Empty(t, first.sent)
	assert.Len(t, second.sent, 1)
}

func TestRegister_ConcurrentReconnectLeavesNoStaleSubscription(t *testing.T) {
	registry, router := newTestRegistry()
	patient := types.Principal{ID: "p1", Role: types.RolePatient, Status: types.StatusActive}

	for round := 0; round < 200; round++ {
		conns := make([]*fakeConn, 8)
		var wg sync.WaitGroup
		for i := range conns {
			conns[i] = &fakeConn{id: "p1", role: types.RolePatient}
			wg.Add(1)
			go func(c *fakeConn) {
				defer wg.Done()
				registry.Register(patient, c)
			}(conns[i])
		}
		wg.Wait()

		// Whichever registration won, only the current connection may
		// still be subscribed to the principal's rooms.
		winner := registry.Lookup("p1").(*fakeConn)
		assert.Equal(t, 1, router.MemberCount(rooms.User("p1")))
		assert.Equal(t, 1, router.MemberCount(rooms.ForRole(types.RolePatient)))

		router.Publish(rooms.User("p1"), []byte("x"))
		for _, c := range conns {
			if c == winner {
				continue
			}
			c.mu.Lock()
			assert.Empty(t, c.sent)
			c.mu.Unlock()
		}

		registry.Unregister(winner)
	}
}

func TestUnregister_Idempotent(t *testing.T) {
	registry, _ := newTestRegistry()
	patient := types.Principal{ID: "p1", Role: types.RolePatient}
	conn := &fakeConn{id: "p1", role: types.RolePatient}

	registry.Register(patient, conn)
	registry.Unregister(conn)
	registry.Unregister(conn)

	assert.False(t, registry.IsOnline("p1"))
	assert.Zero(t, registry.CountOnline())
}

func TestUnregister_StaleConnDoesNotEvictReplacement(t *testing.T) {
	registry, _ := newTestRegistry()
	patient := types.Principal{ID: "p1", Role: types.RolePatient}
	first := &fakeConn{id: "p1"}
	second := &fakeConn{id: "p1"}

	registry.Register(patient, first)
	registry.Register(patient, second)

	// The old connection's lifecycle goroutine fires its unregister late
	registry.Unregister(first)

	assert.True(t, registry.IsOnline("p1"))
	assert.Same(t, second, registry.Lookup("p1").(*fakeConn))
}

func TestUnregister_ReleasesRooms(t *testing.T) {
	registry, router := newTestRegistry()
	doctor := types.Principal{ID: "d1", Role: types.RoleDoctor}
	conn := &fakeConn{id: "d1", role: types.RoleDoctor}

	registry.Register(doctor, conn)
	registry.Unregister(conn)

	router.Publish(rooms.Doctors, []byte("gone"))
	router.Publish(rooms.User("d1"), []byte("gone"))
	assert.Empty(t, conn.sent)
}

func TestRegistry_ConcurrentLifecycles(t *testing.T) {
	registry, _ := newTestRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		principal := types.Principal{ID: fmt.Sprintf("p%d", i%10), Role: types.RolePatient}
		conn := &fakeConn{id: principal.ID}
		wg.Add(1)
		go func() {
			defer wg.Done()
			registry.Register(principal, conn)
			registry.IsOnline(principal.ID)
			registry.Unregister(conn)
		}()
	}
	wg.Wait()

	// Invariant: every principal appears at most once
	require.LessOrEqual(t, registry.CountOnline(), 10)
}

func TestShutdown_ClosesEverything(t *testing.T) {
	registry, _ := newTestRegistry()
	a := &fakeConn{id: "a"}
	b := &fakeConn{id: "b"}

	registry.Register(types.Principal{ID: "a", Role: types.RolePatient}, a)
	registry.Register(types.Principal{ID: "b", Role: types.RoleDoctor}, b)

	registry.Shutdown()

	assert.Zero(t, registry.CountOnline())
	assert.True(t, a.isClosed())
	assert.True(t, b.isClosed())
}
