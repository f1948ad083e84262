package live

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/bracketry/tournament-platform/models"
)

// Типы событий, которые уходят подписчикам комнаты турнира.
const (
	EventStatusUpdated       = "TOURNAMENT_STATUS_UPDATED"
	EventParticipantsUpdated = "PARTICIPANTS_UPDATED"
)

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
	RoomID  string      `json:"room_id,omitempty"`
}

type StatusPayload struct {
	TournamentID int                     `json:"tournament_id"`
	Status       models.TournamentStatus `json:"status"`
}

type ParticipantsPayload struct {
	TournamentID        int `json:"tournament_id"`
	CurrentParticipants int `json:"current_participants"`
}

// Hub держит по комнате на турнир и рассылает события жизненного цикла
// всем подключённым клиентам комнаты.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client
	rooms      map[string]map[*Client]bool
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		rooms:      make(map[string]map[*Client]bool),
	}
}

// RoomForTournament maps a tournament id to its room name.
func RoomForTournament(tournamentID int) string {
	return fmt.Sprintf("tournament_%d", tournamentID)
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if _, ok := h.rooms[client.Room]; !ok {
				h.rooms[client.Room] = make(map[*Client]bool)
			}
			h.rooms[client.Room][client] = true
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			if roomClients, ok := h.rooms[client.Room]; ok {
				if _, okClient := roomClients[client]; okClient {
					client.mu.Lock()
					if !client.closed {
						close(client.Send)
						client.closed = true
					}
					client.mu.Unlock()
					delete(roomClients, client)
					if len(roomClients) == 0 {
						delete(h.rooms, client.Room)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// TournamentStatusChanged реализует services.TournamentNotifier.
func (h *Hub) TournamentStatusChanged(tournamentID int, status models.TournamentStatus) {
	h.broadcastToRoom(RoomForTournament(tournamentID), Message{
		Type:    EventStatusUpdated,
		Payload: StatusPayload{TournamentID: tournamentID, Status: status},
		RoomID:  RoomForTournament(tournamentID),
	})
}

// ParticipantCountChanged реализует services.TournamentNotifier.
func (h *Hub) ParticipantCountChanged(tournamentID int, count int) {
	h.broadcastToRoom(RoomForTournament(tournamentID), Message{
		Type:    EventParticipantsUpdated,
		Payload: ParticipantsPayload{TournamentID: tournamentID, CurrentParticipants: count},
		RoomID:  RoomForTournament(tournamentID),
	})
}

func (h *Hub) broadcastToRoom(roomID string, message Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	roomClients, ok := h.rooms[roomID]
	if !ok {
		return
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshalling message for room %s: %v", roomID, err)
		return
	}

	for client := range roomClients {
		client.mu.Lock()
		if client.closed {
			client.mu.Unlock()
			continue
		}
		select {
		case client.Send <- messageBytes:
		default:
			// Медленный клиент: событие пропускаем, соединение добьют пинги.
			log.Printf("Client's send channel full for room %s. Skipping.", roomID)
		}
		client.mu.Unlock()
	}
}
