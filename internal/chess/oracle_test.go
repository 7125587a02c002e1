package chess

import (
	"math/rand"
	"testing"

	notnil "github.com/notnil/chess"
	"github.com/stretchr/testify/require"
)

var promotionFromNotnil = map[notnil.PieceType]PieceKind{
	notnil.NoPieceType: NoKind,
	notnil.Queen:       Queen,
	notnil.Rook:        Rook,
	notnil.Bishop:      Bishop,
	notnil.Knight:      Knight,
}

// TestLegalGamesAreAccepted plays random legal games with notnil/chess and
// checks that every move is accepted and that replay matches its board.
// Castling and en passant are not modelled, so games stop before either.
func TestLegalGamesAreAccepted(t *testing.T) {
	for seed := int64(1); seed <= 25; seed++ {
		rng := rand.New(rand.NewSource(seed))
		oracle := notnil.NewGame()
		var ledger []Move

		for ply := 1; ply <= 150 && oracle.Outcome() == notnil.NoOutcome; ply++ {
			candidates := oracle.ValidMoves()
			if len(candidates) == 0 {
				break
			}
			mv := candidates[rng.Intn(len(candidates))]
			if mv.HasTag(notnil.KingSideCastle) || mv.HasTag(notnil.QueenSideCastle) || mv.HasTag(notnil.EnPassant) {
				break
			}

			from, err := ParseSquare(mv.S1().String())
			require.NoError(t, err)
			to, err := ParseSquare(mv.S2().String())
			require.NoError(t, err)
			promotion := promotionFromNotnil[mv.Promo()]

			mover := White
			if ply%2 == 0 {
				mover = Black
			}
			kind, err := Validate(ledger, from, to, mover, promotion)
			require.NoError(t, err, "seed %d ply %d: %s", seed, ply, mv)

			ledger = append(ledger, Move{From: from, To: to, Piece: kind, Promotion: promotion, MoveNumber: ply})
			require.NoError(t, oracle.Move(mv))

			require.Equal(t, oracle.Position().Board().String(), Reconstruct(ledger).Placement(),
				"seed %d ply %d", seed, ply)
		}
	}
}
