// Package websocket pushes conflict lifecycle events to connected operator
// consoles. The feed is one-directional apart from ping/pong; operators act
// on conflicts through the HTTP contract.
package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"reconciler-server/internal/domain"

	"github.com/rs/zerolog"
)

type ClientMessage struct {
	Client  *Client
	Message []byte
}

type Manager struct {
	clients       map[string]*Client
	clientsMutex  sync.RWMutex
	Register      chan *Client
	Unregister    chan *Client
	HandleMessage chan *ClientMessage
	maxClients    int
	writeWait     time.Duration
	pongWait      time.Duration
	pingPeriod    time.Duration
	logger        zerolog.Logger
}

func NewManager(maxClients int, writeWait, pongWait, pingPeriod time.Duration, logger zerolog.Logger) *Manager {
	return &Manager{
		clients:       make(map[string]*Client),
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		HandleMessage: make(chan *ClientMessage),
		maxClients:    maxClients,
		writeWait:     writeWait,
		pongWait:      pongWait,
		pingPeriod:    pingPeriod,
		logger:        logger.With().Str("component", "ws_manager").Logger(),
	}
}

func (m *Manager) Run() {
	for {
		select {
		case client := <-m.Register:
			m.registerClient(client)

		case client := <-m.Unregister:
			m.unregisterClient(client)

		case clientMsg := <-m.HandleMessage:
			m.processMessage(clientMsg)
		}
	}
}

func (m *Manager) registerClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if len(m.clients) >= m.maxClients {
		m.logger.Warn().Str("client_id", client.ID).Msg("max operator connections reached")
		close(client.Send)
		return
	}

	m.clients[client.ID] = client
	m.logger.Info().Str("client_id", client.ID).Msg("operator client registered")
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if _, ok := m.clients[client.ID]; ok {
		delete(m.clients, client.ID)
		close(client.Send)
		m.logger.Info().Str("client_id", client.ID).Msg("operator client unregistered")
	}
}

func (m *Manager) processMessage(clientMsg *ClientMessage) {
	var msg Message
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		m.logger.Warn().Err(err).Msg("discarding malformed client message")
		return
	}

	if msg.Type == TypePing {
		pong, err := NewMessage(TypePong, nil)
		if err != nil {
			return
		}
		bytes, _ := json.Marshal(pong)
		select {
		case clientMsg.Client.Send <- bytes:
		default:
		}
	}
}

// Broadcast fans a message out to every connected client. A client with a
// full send buffer is disconnected rather than allowed to stall the feed.
func (m *Manager) Broadcast(message *Message) {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	messageBytes, err := json.Marshal(message)
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to encode broadcast message")
		return
	}

	for clientID, client := range m.clients {
		select {
		case client.Send <- messageBytes:
		default:
			m.logger.Warn().Str("client_id", clientID).Msg("client send buffer full, closing connection")
			go func(c *Client) { m.Unregister <- c }(client)
		}
	}
}

func (m *Manager) ClientCount() int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	return len(m.clients)
}

// The manager doubles as the conflict service's notifier.

func (m *Manager) ConflictDetected(c *domain.Conflict) {
	m.broadcastEvent(TypeConflictDetected, c, "")
}

func (m *Manager) ConflictResolved(c *domain.Conflict) {
	m.broadcastEvent(TypeConflictResolved, c, "")
}

func (m *Manager) ConflictFailed(c *domain.Conflict, cause error) {
	errText := ""
	if cause != nil {
		errText = cause.Error()
	}
	m.broadcastEvent(TypeConflictFailed, c, errText)
}

func (m *Manager) broadcastEvent(msgType MessageType, c *domain.Conflict, errText string) {
	payload := &ConflictEventPayload{
		ConflictID:     c.ID,
		Table:          c.Table,
		RecordID:       c.RecordID,
		ConflictType:   c.Type,
		ConflictFields: c.ConflictFields,
		Status:         c.Status,
		Error:          errText,
	}
	if c.Resolution != nil {
		payload.Strategy = c.Resolution.Strategy
	}

	msg, err := NewMessage(msgType, payload)
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to build conflict event")
		return
	}

	m.Broadcast(msg)
}
