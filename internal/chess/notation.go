package chess

import "strings"

// Notation builds the simplified algebraic string for a move: the piece
// letter (omitted for pawns), "x" on capture prefixed by the pawn's file,
// the destination and "=<kind>" on promotion. Ambiguous moves are not
// disambiguated.
func Notation(piece PieceKind, from, to Square, capture bool, promotion PieceKind) string {
	var sb strings.Builder
	if piece != Pawn {
		sb.WriteString(piece.Letter())
	}
	if capture {
		if piece == Pawn {
			sb.WriteByte(from.String()[0])
		}
		sb.WriteByte('x')
	}
	sb.WriteString(to.String())
	if promotion != NoKind {
		sb.WriteByte('=')
		sb.WriteString(promotion.Letter())
	}
	return sb.String()
}
