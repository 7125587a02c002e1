package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/justinabrahms/chessduel/internal/chess"
)

// memory is an in-memory Store. State is lost when the process restarts.
// Records are copied on the way in and out so callers never share memory
// with the store.
type memory struct {
	mu          sync.RWMutex
	games       map[string]*chess.Game
	moves       map[string][]chess.Move
	lastMoveID  int64
	users       map[string]*User
	usernames   map[string]string // lowercase username -> user ID
	invitations map[string]*Invitation
}

// NewMemoryStore constructs an empty in-memory Store.
func NewMemoryStore() Store {
	return &memory{
		games:       make(map[string]*chess.Game),
		moves:       make(map[string][]chess.Move),
		users:       make(map[string]*User),
		usernames:   make(map[string]string),
		invitations: make(map[string]*Invitation),
	}
}

func (m *memory) Close() error { return nil }

func copyGame(g *chess.Game) *chess.Game {
	c := *g
	if g.CompletedAt != nil {
		t := *g.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func copyMove(mv chess.Move) chess.Move {
	if mv.CapturedPiece != nil {
		p := *mv.CapturedPiece
		mv.CapturedPiece = &p
	}
	return mv
}

func (m *memory) CreateGame(ctx context.Context, g *chess.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[g.ID]; ok {
		return fmt.Errorf("game %s: %w", g.ID, ErrDuplicate)
	}
	m.games[g.ID] = copyGame(g)
	return nil
}

func (m *memory) GetGame(ctx context.Context, id string) (*chess.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[id]
	if !ok {
		return nil, fmt.Errorf("game %s: %w", id, ErrNotFound)
	}
	return copyGame(g), nil
}

func (m *memory) UpdateGame(ctx context.Context, g *chess.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.games[g.ID]
	if !ok {
		return fmt.Errorf("game %s: %w", g.ID, ErrNotFound)
	}
	if stored.Status != chess.StatusInProgress {
		return fmt.Errorf("game %s is %s: %w", g.ID, stored.Status, ErrConflict)
	}
	if stored.MoveCount != g.MoveCount {
		return fmt.Errorf("game %s move count %d, stored %d: %w", g.ID, g.MoveCount, stored.MoveCount, ErrConflict)
	}
	m.games[g.ID] = copyGame(g)
	return nil
}

func (m *memory) CommitMove(ctx context.Context, g *chess.Game, mv *chess.Move) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.games[g.ID]
	if !ok {
		return fmt.Errorf("game %s: %w", g.ID, ErrNotFound)
	}
	if stored.Status != chess.StatusInProgress {
		return fmt.Errorf("game %s is %s: %w", g.ID, stored.Status, ErrConflict)
	}
	if mv.GameID != g.ID || mv.MoveNumber != stored.MoveCount+1 || g.MoveCount != mv.MoveNumber {
		return fmt.Errorf("game %s move %d after %d: %w", g.ID, mv.MoveNumber, stored.MoveCount, ErrConflict)
	}

	m.lastMoveID++
	mv.ID = m.lastMoveID
	m.moves[g.ID] = append(m.moves[g.ID], copyMove(*mv))
	m.games[g.ID] = copyGame(g)
	return nil
}

func (m *memory) ListMoves(ctx context.Context, gameID string, afterID int64) ([]chess.Move, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.games[gameID]; !ok {
		return nil, fmt.Errorf("game %s: %w", gameID, ErrNotFound)
	}
	moves := []chess.Move{}
	for _, mv := range m.moves[gameID] {
		if mv.ID > afterID {
			moves = append(moves, copyMove(mv))
		}
	}
	return moves, nil
}

func (m *memory) ListGamesByPlayer(ctx context.Context, playerID string, status chess.GameStatus) ([]*chess.Game, error) {
	return m.listGames(func(g *chess.Game) bool {
		if g.WhitePlayerID != playerID && g.BlackPlayerID != playerID {
			return false
		}
		return status == "" || g.Status == status
	}), nil
}

func (m *memory) ListGamesByStatus(ctx context.Context, status chess.GameStatus) ([]*chess.Game, error) {
	return m.listGames(func(g *chess.Game) bool { return g.Status == status }), nil
}

func (m *memory) listGames(match func(*chess.Game) bool) []*chess.Game {
	m.mu.RLock()
	defer m.mu.RUnlock()
	games := []*chess.Game{}
	for _, g := range m.games {
		if match(g) {
			games = append(games, copyGame(g))
		}
	}
	sort.Slice(games, func(i, j int) bool {
		if games[i].CreatedAt.Equal(games[j].CreatedAt) {
			return games[i].ID > games[j].ID
		}
		return games[i].CreatedAt.After(games[j].CreatedAt)
	})
	return games
}

func (m *memory) CreateUser(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(u.Username)
	if _, ok := m.usernames[key]; ok {
		return fmt.Errorf("username %s: %w", u.Username, ErrDuplicate)
	}
	if _, ok := m.users[u.ID]; ok {
		return fmt.Errorf("user %s: %w", u.ID, ErrDuplicate)
	}
	c := *u
	m.users[u.ID] = &c
	m.usernames[key] = u.ID
	return nil
}

func (m *memory) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	c := *u
	return &c, nil
}

func (m *memory) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.usernames[strings.ToLower(username)]
	if !ok {
		return nil, fmt.Errorf("username %s: %w", username, ErrNotFound)
	}
	c := *m.users[id]
	return &c, nil
}

func copyInvitation(inv *Invitation) *Invitation {
	c := *inv
	if inv.RespondedAt != nil {
		t := *inv.RespondedAt
		c.RespondedAt = &t
	}
	return &c
}

func (m *memory) CreateInvitation(ctx context.Context, inv *Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invitations[inv.ID]; ok {
		return fmt.Errorf("invitation %s: %w", inv.ID, ErrDuplicate)
	}
	m.invitations[inv.ID] = copyInvitation(inv)
	return nil
}

func (m *memory) GetInvitation(ctx context.Context, id string) (*Invitation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.invitations[id]
	if !ok {
		return nil, fmt.Errorf("invitation %s: %w", id, ErrNotFound)
	}
	return copyInvitation(inv), nil
}

func (m *memory) UpdateInvitation(ctx context.Context, inv *Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invitations[inv.ID]; !ok {
		return fmt.Errorf("invitation %s: %w", inv.ID, ErrNotFound)
	}
	m.invitations[inv.ID] = copyInvitation(inv)
	return nil
}

func (m *memory) ListPendingInvitations(ctx context.Context, toUserID string) ([]*Invitation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pending := []*Invitation{}
	for _, inv := range m.invitations {
		if inv.ToUserID == toUserID && inv.Status == InvitationPending {
			pending = append(pending, copyInvitation(inv))
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	return pending, nil
}
