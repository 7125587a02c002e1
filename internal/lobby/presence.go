package lobby

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/justinabrahms/chessduel/internal/game"
)

// Player is a roster entry.
type Player struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Presence tracks which users have at least one live connection and
// broadcasts the roster whenever it changes.
type Presence struct {
	names game.IdentityLookup
	bus   game.Broadcaster

	mu          sync.Mutex
	connections map[string]int
	players     map[string]Player
}

func NewPresence(names game.IdentityLookup, bus game.Broadcaster) *Presence {
	return &Presence{
		names:       names,
		bus:         bus,
		connections: make(map[string]int),
		players:     make(map[string]Player),
	}
}

// Connected records a new connection for userID. The roster is broadcast
// only when the user goes from offline to online.
func (p *Presence) Connected(ctx context.Context, userID string) {
	name := userID
	if p.names != nil {
		if n, err := p.names.DisplayName(ctx, userID); err == nil && n != "" {
			name = n
		}
	}

	p.mu.Lock()
	p.connections[userID]++
	first := p.connections[userID] == 1
	if first {
		p.players[userID] = Player{ID: userID, DisplayName: name}
	}
	roster := p.rosterLocked()
	p.mu.Unlock()

	if first {
		log.Debug().Str("userID", userID).Msg("User online")
		p.broadcast(roster)
	}
}

// Disconnected drops one connection for userID.
func (p *Presence) Disconnected(userID string) {
	p.mu.Lock()
	n, ok := p.connections[userID]
	if !ok {
		p.mu.Unlock()
		return
	}
	last := n <= 1
	if last {
		delete(p.connections, userID)
		delete(p.players, userID)
	} else {
		p.connections[userID] = n - 1
	}
	roster := p.rosterLocked()
	p.mu.Unlock()

	if last {
		log.Debug().Str("userID", userID).Msg("User offline")
		p.broadcast(roster)
	}
}

// Online returns the roster sorted by display name.
func (p *Presence) Online() []Player {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rosterLocked()
}

func (p *Presence) IsOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connections[userID] > 0
}

func (p *Presence) rosterLocked() []Player {
	roster := make([]Player, 0, len(p.players))
	for _, pl := range p.players {
		roster = append(roster, pl)
	}
	sort.Slice(roster, func(i, j int) bool {
		if roster[i].DisplayName == roster[j].DisplayName {
			return roster[i].ID < roster[j].ID
		}
		return roster[i].DisplayName < roster[j].DisplayName
	})
	return roster
}

func (p *Presence) broadcast(roster []Player) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(game.PresenceTopic, roster); err != nil {
		log.Warn().Err(err).Msg("Presence broadcast dropped")
	}
}
