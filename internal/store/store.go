// Package store persists games, their append-only move ledgers, user
// accounts and invitations.
//
// Two implementations are provided: an in-memory store for development and
// tests, and a SQLite store for durable deployments.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/justinabrahms/chessduel/internal/chess"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflicting write")
	ErrDuplicate = errors.New("already exists")
)

// GameStore holds game records and each game's move ledger.
//
// Moves are only ever written through CommitMove, which appends the move
// and saves the updated game as one unit. There is no way to modify or
// remove an accepted move.
type GameStore interface {
	CreateGame(ctx context.Context, g *chess.Game) error
	GetGame(ctx context.Context, id string) (*chess.Game, error)
	// UpdateGame saves lifecycle changes that do not append a move. It
	// fails with ErrConflict if the stored game has already ended or its
	// move count differs from g's.
	UpdateGame(ctx context.Context, g *chess.Game) error
	// CommitMove appends m and saves g atomically. It fails with ErrConflict
	// if the stored game has ended or m.MoveNumber is not exactly one past
	// the stored move count, and assigns m.ID on success.
	CommitMove(ctx context.Context, g *chess.Game, m *chess.Move) error
	// ListMoves returns the ledger ordered by move number, limited to moves
	// whose ID is greater than afterID.
	ListMoves(ctx context.Context, gameID string, afterID int64) ([]chess.Move, error)
	// ListGamesByPlayer returns the player's games newest first. An empty
	// status matches every status.
	ListGamesByPlayer(ctx context.Context, playerID string, status chess.GameStatus) ([]*chess.Game, error)
	ListGamesByStatus(ctx context.Context, status chess.GameStatus) ([]*chess.Game, error)
}

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"displayName"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

type UserStore interface {
	// CreateUser fails with ErrDuplicate when the username is taken,
	// compared case-insensitively.
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "PENDING"
	InvitationAccepted InvitationStatus = "ACCEPTED"
	InvitationDeclined InvitationStatus = "DECLINED"
)

type Invitation struct {
	ID          string           `json:"id"`
	FromUserID  string           `json:"fromUserId"`
	ToUserID    string           `json:"toUserId"`
	Status      InvitationStatus `json:"status"`
	GameID      string           `json:"gameId,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	RespondedAt *time.Time       `json:"respondedAt,omitempty"`
}

type InvitationStore interface {
	CreateInvitation(ctx context.Context, inv *Invitation) error
	GetInvitation(ctx context.Context, id string) (*Invitation, error)
	UpdateInvitation(ctx context.Context, inv *Invitation) error
	ListPendingInvitations(ctx context.Context, toUserID string) ([]*Invitation, error)
}

// Store is everything the server persists.
type Store interface {
	GameStore
	UserStore
	InvitationStore
	Close() error
}
