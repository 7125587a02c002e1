package chess

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Square indexes the board as rank*8+file, so a1 is 0 and h8 is 63.
type Square uint8

const NumSquares = 64

func NewSquare(file, rank int) Square {
	return Square(rank*8 + file)
}

func (s Square) File() int { return int(s) % 8 }
func (s Square) Rank() int { return int(s) / 8 }

func (s Square) String() string {
	return string([]byte{byte('a' + s.File()), byte('1' + s.Rank())})
}

// ParseSquare reads the canonical "<file><rank>" form, e.g. "e4".
func ParseSquare(s string) (Square, error) {
	if len(s) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSquare, s)
	}
	file := int(s[0]) - 'a'
	rank := int(s[1]) - '1'
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSquare, s)
	}
	return NewSquare(file, rank), nil
}

func (s Square) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Square) UnmarshalText(b []byte) error {
	sq, err := ParseSquare(string(b))
	if err != nil {
		return err
	}
	*s = sq
	return nil
}

// Board maps every square to a piece or the empty zero Piece.
// It is a snapshot derived from a ledger and is never stored.
type Board [NumSquares]Piece

var backRank = [8]PieceKind{Rook, Knight, Bishop, Queen, King, Bishop, Knight, Rook}

// InitialBoard returns the standard starting arrangement.
func InitialBoard() Board {
	var b Board
	for file := 0; file < 8; file++ {
		b[NewSquare(file, 0)] = Piece{Kind: backRank[file], Color: White}
		b[NewSquare(file, 1)] = Piece{Kind: Pawn, Color: White}
		b[NewSquare(file, 6)] = Piece{Kind: Pawn, Color: Black}
		b[NewSquare(file, 7)] = Piece{Kind: backRank[file], Color: Black}
	}
	return b
}

// Reconstruct replays moves in ascending move-number order on top of the
// initial arrangement. The mover's color comes from move-number parity.
func Reconstruct(moves []Move) Board {
	ordered := moves
	if !sort.SliceIsSorted(moves, func(i, j int) bool { return moves[i].MoveNumber < moves[j].MoveNumber }) {
		ordered = make([]Move, len(moves))
		copy(ordered, moves)
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].MoveNumber < ordered[j].MoveNumber })
	}

	board := InitialBoard()
	for _, m := range ordered {
		kind := m.Piece
		if m.Promotion != NoKind {
			kind = m.Promotion
		}
		board[m.From] = Piece{}
		board[m.To] = Piece{Kind: kind, Color: m.Mover()}
	}
	return board
}

// PieceAt returns the piece on sq and whether the square is occupied.
func PieceAt(b Board, sq Square) (Piece, bool) {
	p := b[sq]
	return p, !p.IsEmpty()
}

// Placement renders the piece-placement field of FEN, rank 8 first.
func (b Board) Placement() string {
	var sb strings.Builder
	for rank := 7; rank >= 0; rank-- {
		empty := 0
		for file := 0; file < 8; file++ {
			p := b[NewSquare(file, rank)]
			if p.IsEmpty() {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteString(strconv.Itoa(empty))
				empty = 0
			}
			sb.WriteString(p.Letter())
		}
		if empty > 0 {
			sb.WriteString(strconv.Itoa(empty))
		}
		if rank > 0 {
			sb.WriteByte('/')
		}
	}
	return sb.String()
}

// Material sums StandardPieceValues for each side.
func (b Board) Material() MaterialCount {
	var count MaterialCount
	for _, p := range b {
		if p.IsEmpty() {
			continue
		}
		if p.Color == White {
			count.White += StandardPieceValues[p.Kind]
		} else {
			count.Black += StandardPieceValues[p.Kind]
		}
	}
	return count
}

// MaterialBalance is white's material minus black's.
func (b Board) MaterialBalance() int {
	count := b.Material()
	return count.White - count.Black
}
