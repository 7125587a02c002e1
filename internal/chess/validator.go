package chess

import "fmt"

// Validate checks a candidate move against the position produced by ledger.
// The first failing check wins. On success it returns the moving piece's kind.
//
// Only piece-movement rules, side ownership and the promotion requirement are
// enforced. Check, castling and en passant are not modelled.
func Validate(ledger []Move, from, to Square, mover Color, promotion PieceKind) (PieceKind, error) {
	board := Reconstruct(ledger)

	piece, ok := PieceAt(board, from)
	if !ok {
		return NoKind, fmt.Errorf("%w: %s", ErrNoPieceAtSource, from)
	}
	if piece.Color != mover {
		return NoKind, fmt.Errorf("%w: %s on %s", ErrWrongSidePiece, piece, from)
	}
	if target, occupied := PieceAt(board, to); occupied && target.Color == piece.Color {
		return NoKind, fmt.Errorf("%w: %s on %s", ErrSelfCapture, target, to)
	}
	if !legalPattern(board, piece, from, to) {
		return NoKind, fmt.Errorf("%w: %s %s-%s", ErrIllegalPattern, piece, from, to)
	}

	if piece.Kind == Pawn && to.Rank() == promotionRank(piece.Color) {
		if promotion == NoKind {
			return NoKind, fmt.Errorf("%w: %s-%s", ErrPromotionRequired, from, to)
		}
		if !isPromotionKind(promotion) {
			return NoKind, fmt.Errorf("%w: %s", ErrInvalidPromotion, promotion)
		}
	} else if promotion != NoKind {
		return NoKind, fmt.Errorf("%w: %s-%s is not a promoting move", ErrInvalidPromotion, from, to)
	}

	return piece.Kind, nil
}

func promotionRank(c Color) int {
	if c == White {
		return 7
	}
	return 0
}

func isPromotionKind(k PieceKind) bool {
	switch k {
	case Queen, Rook, Bishop, Knight:
		return true
	}
	return false
}

// ParsePromotion reads a promotion piece as submitted by a player. Only the
// uppercase letters Q, R, B and N are accepted.
func ParsePromotion(s string) (PieceKind, error) {
	switch s {
	case "Q":
		return Queen, nil
	case "R":
		return Rook, nil
	case "B":
		return Bishop, nil
	case "N":
		return Knight, nil
	}
	return NoKind, fmt.Errorf("%w: %q", ErrInvalidPromotion, s)
}

func legalPattern(board Board, piece Piece, from, to Square) bool {
	df := abs(to.File() - from.File())
	dr := abs(to.Rank() - from.Rank())

	switch piece.Kind {
	case Pawn:
		return legalPawnMove(board, piece.Color, from, to, df)
	case Knight:
		return (df == 2 && dr == 1) || (df == 1 && dr == 2)
	case Bishop:
		return df == dr && df > 0 && pathClear(board, from, to)
	case Rook:
		return (df == 0) != (dr == 0) && pathClear(board, from, to)
	case Queen:
		diagonal := df == dr && df > 0
		straight := (df == 0) != (dr == 0)
		return (diagonal || straight) && pathClear(board, from, to)
	case King:
		return df <= 1 && dr <= 1 && df+dr > 0
	default:
		return false
	}
}

// legalPawnMove allows a single push, a double push from the starting rank
// and a one-step diagonal capture. The square jumped over by a double push
// is not inspected; only the destination must be empty.
func legalPawnMove(board Board, color Color, from, to Square, df int) bool {
	direction, startRank := 1, 1
	if color == Black {
		direction, startRank = -1, 6
	}
	_, isCapture := PieceAt(board, to)
	advance := to.Rank() - from.Rank()

	if !isCapture && df == 0 {
		if advance == direction {
			return true
		}
		if from.Rank() == startRank && advance == 2*direction {
			return true
		}
	}
	return isCapture && df == 1 && advance == direction
}

// pathClear walks unit steps strictly between from and to.
func pathClear(board Board, from, to Square) bool {
	fileStep := sign(to.File() - from.File())
	rankStep := sign(to.Rank() - from.Rank())

	file, rank := from.File()+fileStep, from.Rank()+rankStep
	for file != to.File() || rank != to.Rank() {
		if _, occupied := PieceAt(board, NewSquare(file, rank)); occupied {
			return false
		}
		file += fileStep
		rank += rankStep
	}
	return true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	}
	return 0
}
