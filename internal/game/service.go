// Package game runs the two-player game lifecycle: creating games,
// accepting moves in turn, resignation and abandonment.
//
// All transitions for one game are serialized. Each transition reads the
// game and its ledger, validates, and persists the new move and game state
// as one unit before anything is published.
package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/justinabrahms/chessduel/internal/chess"
	"github.com/justinabrahms/chessduel/internal/store"
)

type Service struct {
	games store.GameStore
	bus   Broadcaster
	names IdentityLookup
	locks *keyedMutex

	now   func() time.Time
	coin  func() bool
	newID func() string
}

type Option func(*Service)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCoin overrides the color draw. The coin returning true gives the
// first player white.
func WithCoin(coin func() bool) Option {
	return func(s *Service) { s.coin = coin }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func WithBroadcaster(b Broadcaster) Option {
	return func(s *Service) { s.bus = b }
}

func WithIdentityLookup(l IdentityLookup) Option {
	return func(s *Service) { s.names = l }
}

func NewService(games store.GameStore, opts ...Option) *Service {
	s := &Service{
		games: games,
		bus:   nopBroadcaster{},
		names: idAsName{},
		locks: newKeyedMutex(),
		now:   time.Now,
		coin:  func() bool { return rand.Intn(2) == 0 },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MoveRequest is a player's attempt to move. Squares are algebraic ("e2")
// and Promotion is a piece letter or empty.
type MoveRequest struct {
	GameID    string `json:"gameId"`
	PlayerID  string `json:"playerId"`
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// GameView is a game with everything a client needs to render it.
type GameView struct {
	*chess.Game
	WhitePlayerName string              `json:"whitePlayerName"`
	BlackPlayerName string              `json:"blackPlayerName"`
	Moves           []chess.Move        `json:"moves"`
	Placement       string              `json:"fen"`
	Material        chess.MaterialCount `json:"material"`
	MaterialBalance int                 `json:"materialBalance"`
}

func (s *Service) CreateGame(ctx context.Context, playerA, playerB string) (*chess.Game, error) {
	if playerA == playerB {
		return nil, ErrSamePlayer
	}

	white, black := playerA, playerB
	if !s.coin() {
		white, black = playerB, playerA
	}

	g := &chess.Game{
		ID:            s.newID(),
		WhitePlayerID: white,
		BlackPlayerID: black,
		Status:        chess.StatusInProgress,
		CurrentTurn:   chess.White,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.games.CreateGame(ctx, g); err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}

	log.Info().
		Str("gameID", g.ID).
		Str("white", white).
		Str("black", black).
		Msg("Game created")
	return g, nil
}

func (s *Service) ApplyMove(ctx context.Context, req MoveRequest) (*chess.Move, error) {
	unlock := s.locks.Lock(req.GameID)
	defer unlock()

	g, err := s.loadGame(ctx, req.GameID)
	if err != nil {
		return nil, err
	}
	if g.IsTerminal() {
		return nil, fmt.Errorf("game %s is %s: %w", g.ID, g.Status, ErrGameNotInProgress)
	}
	color, ok := g.ColorOf(req.PlayerID)
	if !ok {
		return nil, fmt.Errorf("player %s in game %s: %w", req.PlayerID, g.ID, ErrPlayerNotInGame)
	}
	if color != g.CurrentTurn {
		return nil, fmt.Errorf("%s to move: %w", g.CurrentTurn, ErrNotYourTurn)
	}

	from, err := chess.ParseSquare(req.From)
	if err != nil {
		return nil, err
	}
	to, err := chess.ParseSquare(req.To)
	if err != nil {
		return nil, err
	}
	promotion := chess.NoKind
	if req.Promotion != "" {
		if promotion, err = chess.ParsePromotion(req.Promotion); err != nil {
			return nil, err
		}
	}

	ledger, err := s.games.ListMoves(ctx, g.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	kind, err := chess.Validate(ledger, from, to, color, promotion)
	if err != nil {
		return nil, err
	}

	mv := &chess.Move{
		GameID:     g.ID,
		PlayerID:   req.PlayerID,
		From:       from,
		To:         to,
		Piece:      kind,
		Promotion:  promotion,
		MoveNumber: g.MoveCount + 1,
		CreatedAt:  s.now().UTC(),
	}
	if captured, ok := chess.PieceAt(chess.Reconstruct(ledger), to); ok {
		mv.CapturedPiece = &captured
	}
	mv.Notation = chess.Notation(kind, from, to, mv.CapturedPiece != nil, promotion)

	next := *g
	next.MoveCount = mv.MoveNumber
	next.CurrentTurn = g.CurrentTurn.Opponent()
	if err := s.games.CommitMove(ctx, &next, mv); err != nil {
		return nil, fmt.Errorf("commit move %d: %w", mv.MoveNumber, err)
	}

	log.Info().
		Str("gameID", g.ID).
		Str("playerID", req.PlayerID).
		Str("san", mv.Notation).
		Int("moveNumber", mv.MoveNumber).
		Msg("Move applied")

	s.publish(MovesTopic(g.ID), mv)
	return mv, nil
}

func (s *Service) Resign(ctx context.Context, gameID, playerID string) (*chess.Game, error) {
	unlock := s.locks.Lock(gameID)
	defer unlock()

	g, err := s.loadGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.IsTerminal() {
		return nil, fmt.Errorf("game %s is %s: %w", g.ID, g.Status, ErrGameNotInProgress)
	}
	if _, ok := g.ColorOf(playerID); !ok {
		return nil, fmt.Errorf("player %s in game %s: %w", playerID, g.ID, ErrPlayerNotInGame)
	}

	now := s.now().UTC()
	g.Status = chess.StatusCompleted
	g.WinnerID = g.Opponent(playerID)
	g.CompletedAt = &now
	if err := s.games.UpdateGame(ctx, g); err != nil {
		return nil, fmt.Errorf("save resignation: %w", err)
	}

	log.Info().
		Str("gameID", g.ID).
		Str("playerID", playerID).
		Str("winnerID", g.WinnerID).
		Msg("Player resigned")

	s.publishView(ctx, ResignedTopic(g.ID), g)
	return g, nil
}

// Abandon ends a game with no winner. It is driven by the Supervisor, not
// by either player.
func (s *Service) Abandon(ctx context.Context, gameID string) (*chess.Game, error) {
	unlock := s.locks.Lock(gameID)
	defer unlock()

	g, err := s.loadGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return s.abandonLocked(ctx, g)
}

// AbandonIdle abandons the game only if its last activity is before
// cutoff. The check runs under the game's lock, so a move accepted after
// the caller decided the game looked idle wins and ErrGameActive is
// returned.
func (s *Service) AbandonIdle(ctx context.Context, gameID string, cutoff time.Time) (*chess.Game, error) {
	unlock := s.locks.Lock(gameID)
	defer unlock()

	g, err := s.loadGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.IsTerminal() {
		return nil, fmt.Errorf("game %s is %s: %w", g.ID, g.Status, ErrGameNotInProgress)
	}
	last, err := s.LastActivity(ctx, g)
	if err != nil {
		return nil, err
	}
	if !last.Before(cutoff) {
		return nil, fmt.Errorf("game %s last active %s: %w", g.ID, last.Format(time.RFC3339), ErrGameActive)
	}
	return s.abandonLocked(ctx, g)
}

func (s *Service) abandonLocked(ctx context.Context, g *chess.Game) (*chess.Game, error) {
	if g.IsTerminal() {
		return nil, fmt.Errorf("game %s is %s: %w", g.ID, g.Status, ErrGameNotInProgress)
	}

	now := s.now().UTC()
	g.Status = chess.StatusAbandoned
	g.WinnerID = ""
	g.CompletedAt = &now
	if err := s.games.UpdateGame(ctx, g); err != nil {
		return nil, fmt.Errorf("save abandonment: %w", err)
	}

	log.Info().Str("gameID", g.ID).Int("moveCount", g.MoveCount).Msg("Game abandoned")

	s.publishView(ctx, AbandonedTopic(g.ID), g)
	return g, nil
}

// LastActivity is the time of the game's last move, or its creation time
// when no move has been played.
func (s *Service) LastActivity(ctx context.Context, g *chess.Game) (time.Time, error) {
	if g.MoveCount == 0 {
		return g.CreatedAt, nil
	}
	moves, err := s.GetMoves(ctx, g.ID, 0)
	if err != nil {
		return time.Time{}, err
	}
	if len(moves) == 0 {
		return g.CreatedAt, nil
	}
	return moves[len(moves)-1].CreatedAt, nil
}

func (s *Service) GetGame(ctx context.Context, gameID string) (*GameView, error) {
	g, err := s.loadGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, g)
}

// GetMoves returns the moves recorded after afterMoveID, or the whole
// ledger when afterMoveID is zero.
func (s *Service) GetMoves(ctx context.Context, gameID string, afterMoveID int64) ([]chess.Move, error) {
	moves, err := s.games.ListMoves(ctx, gameID, afterMoveID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("game %s: %w", gameID, ErrGameNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("list moves: %w", err)
	}
	return moves, nil
}

func (s *Service) ActiveGame(ctx context.Context, playerID string) (*GameView, error) {
	games, err := s.games.ListGamesByPlayer(ctx, playerID, chess.StatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	if len(games) == 0 {
		return nil, ErrNoActiveGame
	}
	return s.view(ctx, games[0])
}

// History returns every game the player has taken part in, newest first.
func (s *Service) History(ctx context.Context, playerID string) ([]*chess.Game, error) {
	games, err := s.games.ListGamesByPlayer(ctx, playerID, "")
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	return games, nil
}

// InProgress lists games that have not reached a terminal state.
func (s *Service) InProgress(ctx context.Context) ([]*chess.Game, error) {
	games, err := s.games.ListGamesByStatus(ctx, chess.StatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	return games, nil
}

func (s *Service) loadGame(ctx context.Context, gameID string) (*chess.Game, error) {
	g, err := s.games.GetGame(ctx, gameID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("game %s: %w", gameID, ErrGameNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load game: %w", err)
	}
	return g, nil
}

func (s *Service) view(ctx context.Context, g *chess.Game) (*GameView, error) {
	moves, err := s.games.ListMoves(ctx, g.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("list moves: %w", err)
	}
	board := chess.Reconstruct(moves)
	return &GameView{
		Game:            g,
		WhitePlayerName: s.displayName(ctx, g.WhitePlayerID),
		BlackPlayerName: s.displayName(ctx, g.BlackPlayerID),
		Moves:           moves,
		Placement:       board.Placement(),
		Material:        board.Material(),
		MaterialBalance: board.MaterialBalance(),
	}, nil
}

func (s *Service) displayName(ctx context.Context, userID string) string {
	name, err := s.names.DisplayName(ctx, userID)
	if err != nil || name == "" {
		return userID
	}
	return name
}

func (s *Service) publishView(ctx context.Context, topic string, g *chess.Game) {
	v, err := s.view(ctx, g)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Failed to build game view for broadcast")
		s.publish(topic, g)
		return
	}
	s.publish(topic, v)
}

// publish never fails the caller; the state change has already committed.
func (s *Service) publish(topic string, payload interface{}) {
	if err := s.bus.Publish(topic, payload); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Broadcast dropped")
	}
}
