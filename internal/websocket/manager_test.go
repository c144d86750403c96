package websocket

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rajivgeraev/recyclables-api/internal/utils"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestManager_BroadcastsListingChanges(t *testing.T) {
	m := NewManager(nil, zap.NewNop())
	srv := httptest.NewServer(m)
	defer srv.Close()
	defer m.Shutdown()

	first := dial(t, srv, "")
	second := dial(t, srv, "")
	assert.Equal(t, EventConnected, readEvent(t, first).Type)
	assert.Equal(t, EventConnected, readEvent(t, second).Type)
	require.Eventually(t, func() bool { return m.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	m.ListingsChanged()
	assert.Equal(t, EventRecyclablesChanged, readEvent(t, first).Type)
	assert.Equal(t, EventRecyclablesChanged, readEvent(t, second).Type)

	first.Close()
	require.Eventually(t, func() bool { return m.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestManager_PingPong(t *testing.T) {
	m := NewManager(nil, zap.NewNop())
	srv := httptest.NewServer(m)
	defer srv.Close()
	defer m.Shutdown()

	conn := dial(t, srv, "")
	readEvent(t, conn)

	require.NoError(t, conn.WriteJSON(Event{Type: EventPing}))
	assert.Equal(t, EventPong, readEvent(t, conn).Type)
}

func TestManager_TokenIdentifiesClient(t *testing.T) {
	jwtService := utils.NewJWTService("secret")
	m := NewManager(jwtService, zap.NewNop())
	srv := httptest.NewServer(m)
	defer srv.Close()
	defer m.Shutdown()

	id := uuid.New()
	token, err := jwtService.GenerateToken(id, 1)
	require.NoError(t, err)

	conn := dial(t, srv, "?token="+token)
	ev := readEvent(t, conn)
	assert.Equal(t, id.String(), ev.UserID)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=broken"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}
