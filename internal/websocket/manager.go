package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rajivgeraev/recyclables-api/internal/metrics"
	"github.com/rajivgeraev/recyclables-api/internal/utils"
)

// EventType определяет тип события WebSocket
type EventType string

const (
	EventConnected          EventType = "connected"
	EventRecyclablesChanged EventType = "recyclables_changed"
	EventPing               EventType = "ping"
	EventPong               EventType = "pong"
)

// Event представляет структуру сообщения для WebSocket
type Event struct {
	Type      EventType       `json:"type"`
	UserID    string          `json:"user_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Manager держит все WebSocket соединения и рассылает им сигналы об изменении объявлений
type Manager struct {
	clients      map[uuid.UUID]*Client
	clientsMutex sync.RWMutex
	upgrader     websocket.Upgrader
	jwtService   *utils.JWTService
	logger       *zap.Logger
}

// NewManager создает новый экземпляр Manager; jwtService может быть nil, тогда все клиенты анонимные
func NewManager(jwtService *utils.JWTService, logger *zap.Logger) *Manager {
	return &Manager{
		clients: make(map[uuid.UUID]*Client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		jwtService: jwtService,
		logger:     logger,
	}
}

// ServeHTTP поднимает WebSocket соединение; токен можно передать в ?token=
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := ""
	if token := r.URL.Query().Get("token"); token != "" && m.jwtService != nil {
		id, err := m.jwtService.ExtractUserID(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		userID = id.String()
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("Ошибка апгрейда WebSocket", zap.Error(err))
		return
	}

	client := NewClient(userID, conn, m)
	client.Start()
	client.Send(Event{Type: EventConnected, UserID: userID, Timestamp: time.Now()})
}

// AddClient регистрирует нового клиента
func (m *Manager) AddClient(client *Client) {
	m.clientsMutex.Lock()
	m.clients[client.ID] = client
	count := len(m.clients)
	m.clientsMutex.Unlock()

	metrics.WebSocketClients.Set(float64(count))
	m.logger.Debug("WebSocket клиент подключен", zap.String("client_id", client.ID.String()), zap.String("user_id", client.UserID))
}

// RemoveClient удаляет клиента
func (m *Manager) RemoveClient(clientID uuid.UUID) {
	m.clientsMutex.Lock()
	_, exists := m.clients[clientID]
	delete(m.clients, clientID)
	count := len(m.clients)
	m.clientsMutex.Unlock()

	if !exists {
		return
	}
	metrics.WebSocketClients.Set(float64(count))
	m.logger.Debug("WebSocket клиент отключен", zap.String("client_id", clientID.String()))
}

// ClientCount число подключенных клиентов
func (m *Manager) ClientCount() int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	return len(m.clients)
}

// Broadcast отправляет событие всем клиентам; медленный клиент отключается
func (m *Manager) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	eventJSON, err := json.Marshal(event)
	if err != nil {
		m.logger.Error("Ошибка сериализации события", zap.Error(err))
		return
	}

	m.clientsMutex.RLock()
	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.clientsMutex.RUnlock()

	for _, c := range clients {
		if !c.enqueue(eventJSON) {
			// Канал заполнен, клиент слишком медленный - закрываем соединение
			m.logger.Warn("Очередь клиента переполнена, закрываем соединение", zap.String("client_id", c.ID.String()))
			c.conn.Close()
			m.RemoveClient(c.ID)
		}
	}
}

// ListingsChanged сообщает клиентам, что набор объявлений обновился
func (m *Manager) ListingsChanged() {
	m.Broadcast(Event{Type: EventRecyclablesChanged})
}

// Shutdown корректно завершает работу менеджера WebSocket
func (m *Manager) Shutdown() {
	m.clientsMutex.Lock()
	for _, client := range m.clients {
		client.conn.Close()
	}
	m.clients = make(map[uuid.UUID]*Client)
	m.clientsMutex.Unlock()

	metrics.WebSocketClients.Set(0)
}
