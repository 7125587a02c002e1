package chess

import (
	"fmt"
	"strings"
	"time"
)

type GameStatus string

const (
	StatusInProgress GameStatus = "IN_PROGRESS"
	StatusCompleted  GameStatus = "COMPLETED"
	StatusDraw       GameStatus = "DRAW"
	StatusResigned   GameStatus = "RESIGNED"
	StatusAbandoned  GameStatus = "ABANDONED"
)

// IsTerminal reports whether no further transition may leave this status.
func (s GameStatus) IsTerminal() bool {
	return s != StatusInProgress
}

type Color string

const (
	White Color = "WHITE"
	Black Color = "BLACK"
)

func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// PieceKind is a closed enumeration of chess piece types.
type PieceKind uint8

const (
	NoKind PieceKind = iota
	Pawn
	Knight
	Bishop
	Rook
	Queen
	King
)

var kindLetters = [...]byte{0, 'P', 'N', 'B', 'R', 'Q', 'K'}

// Letter returns the uppercase letter for the kind, or "" for NoKind.
func (k PieceKind) Letter() string {
	if k == NoKind || int(k) >= len(kindLetters) {
		return ""
	}
	return string(kindLetters[k])
}

func (k PieceKind) String() string {
	return k.Letter()
}

// ParsePieceKind accepts a single letter in either case.
func ParsePieceKind(s string) (PieceKind, error) {
	if len(s) != 1 {
		return NoKind, fmt.Errorf("invalid piece letter %q", s)
	}
	upper := strings.ToUpper(s)[0]
	for k := Pawn; k <= King; k++ {
		if kindLetters[k] == upper {
			return k, nil
		}
	}
	return NoKind, fmt.Errorf("invalid piece letter %q", s)
}

func (k PieceKind) MarshalText() ([]byte, error) {
	return []byte(k.Letter()), nil
}

func (k *PieceKind) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*k = NoKind
		return nil
	}
	parsed, err := ParsePieceKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Piece is a kind paired with a color. The zero value is an empty square.
type Piece struct {
	Kind  PieceKind
	Color Color
}

func (p Piece) IsEmpty() bool {
	return p.Kind == NoKind
}

// Letter renders the piece uppercase for white and lowercase for black.
func (p Piece) Letter() string {
	if p.Color == Black {
		return strings.ToLower(p.Kind.Letter())
	}
	return p.Kind.Letter()
}

func (p Piece) String() string {
	return p.Letter()
}

func (p Piece) MarshalText() ([]byte, error) {
	return []byte(p.Letter()), nil
}

func (p *Piece) UnmarshalText(b []byte) error {
	parsed, err := ParsePiece(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePiece reads a cased piece letter: uppercase is white.
func ParsePiece(s string) (Piece, error) {
	kind, err := ParsePieceKind(s)
	if err != nil {
		return Piece{}, err
	}
	color := White
	if s != strings.ToUpper(s) {
		color = Black
	}
	return Piece{Kind: kind, Color: color}, nil
}

// Move is an accepted ledger entry. It is never mutated once appended.
type Move struct {
	ID            int64     `json:"id"`
	GameID        string    `json:"gameId"`
	PlayerID      string    `json:"playerId"`
	From          Square    `json:"from"`
	To            Square    `json:"to"`
	Piece         PieceKind `json:"piece"`
	CapturedPiece *Piece    `json:"capturedPiece,omitempty"`
	Promotion     PieceKind `json:"promotion,omitempty"`
	Notation      string    `json:"san"`
	MoveNumber    int       `json:"moveNumber"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Mover is the side that played the move, derived from ply parity.
func (m Move) Mover() Color {
	if m.MoveNumber%2 == 1 {
		return White
	}
	return Black
}

type Game struct {
	ID            string     `json:"id"`
	WhitePlayerID string     `json:"whitePlayerId"`
	BlackPlayerID string     `json:"blackPlayerId"`
	Status        GameStatus `json:"status"`
	CurrentTurn   Color      `json:"currentTurn"`
	MoveCount     int        `json:"moveCount"`
	WinnerID      string     `json:"winnerId,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// ColorOf returns the color assigned to playerID, if any.
func (g *Game) ColorOf(playerID string) (Color, bool) {
	switch playerID {
	case g.WhitePlayerID:
		return White, true
	case g.BlackPlayerID:
		return Black, true
	default:
		return "", false
	}
}

func (g *Game) PlayerID(c Color) string {
	if c == White {
		return g.WhitePlayerID
	}
	return g.BlackPlayerID
}

// Opponent returns the other participant's ID, or "" if playerID is not in
// the game.
func (g *Game) Opponent(playerID string) string {
	c, ok := g.ColorOf(playerID)
	if !ok {
		return ""
	}
	return g.PlayerID(c.Opponent())
}

func (g *Game) IsTerminal() bool {
	return g.Status.IsTerminal()
}

// MaterialCount represents the material count for both sides
type MaterialCount struct {
	White int `json:"white"`
	Black int `json:"black"`
}

// StandardPieceValues maps piece kinds to their standard values
var StandardPieceValues = map[PieceKind]int{
	Pawn:   1,
	Knight: 3,
	Bishop: 3,
	Rook:   5,
	Queen:  9,
	King:   0, // King has no material value
}
