package chess

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMoveValidationEnforcesChessRules ensures that the validator
// accepts and rejects moves according to piece-movement rules
func TestMoveValidationEnforcesChessRules(t *testing.T) {
	testCases := []struct {
		name      string
		history   []string
		from      string
		to        string
		mover     Color
		promotion PieceKind
		wantPiece PieceKind
		wantErr   error
	}{
		{name: "pawn single step", from: "e2", to: "e3", mover: White, wantPiece: Pawn},
		{name: "pawn double step", from: "e2", to: "e4", mover: White, wantPiece: Pawn},
		{name: "pawn three steps", from: "e2", to: "e5", mover: White, wantErr: ErrIllegalPattern},
		{name: "pawn sideways", history: []string{"e2e4", "a7a6"}, from: "e4", to: "f4", mover: White, wantErr: ErrIllegalPattern},
		{name: "pawn backwards", history: []string{"e2e4", "a7a6"}, from: "e4", to: "e3", mover: White, wantErr: ErrIllegalPattern},
		{name: "pawn double step off start rank", history: []string{"e2e3", "a7a6"}, from: "e3", to: "e5", mover: White, wantErr: ErrIllegalPattern},
		{name: "pawn diagonal without capture", from: "e2", to: "f3", mover: White, wantErr: ErrIllegalPattern},
		{name: "pawn diagonal capture", history: []string{"e2e4", "d7d5"}, from: "e4", to: "d5", mover: White, wantPiece: Pawn},
		{name: "pawn blocked forward", history: []string{"e2e4", "e7e5"}, from: "e4", to: "e5", mover: White, wantErr: ErrIllegalPattern},
		{name: "black pawn double step", history: []string{"a2a3"}, from: "d7", to: "d5", mover: Black, wantPiece: Pawn},
		{name: "black pawn moving up", history: []string{"a2a3", "d7d5", "a3a4"}, from: "d5", to: "d6", mover: Black, wantErr: ErrIllegalPattern},
		{name: "knight jump", from: "b1", to: "c3", mover: White, wantPiece: Knight},
		{name: "knight onto own pawn", from: "g1", to: "e2", mover: White, wantErr: ErrSelfCapture},
		{name: "knight straight", from: "g1", to: "g3", mover: White, wantErr: ErrIllegalPattern},
		{name: "bishop blocked", from: "c1", to: "e3", mover: White, wantErr: ErrIllegalPattern},
		{name: "bishop open diagonal", history: []string{"d2d3", "a7a6"}, from: "c1", to: "g5", mover: White, wantPiece: Bishop},
		{name: "bishop off diagonal", from: "c1", to: "c3", mover: White, wantErr: ErrIllegalPattern},
		{name: "rook blocked", from: "a1", to: "a3", mover: White, wantErr: ErrIllegalPattern},
		{name: "rook open file", history: []string{"a2a4", "h7h6"}, from: "a1", to: "a3", mover: White, wantPiece: Rook},
		{name: "rook diagonal", history: []string{"b2b4", "h7h6"}, from: "a1", to: "b2", mover: White, wantErr: ErrIllegalPattern},
		{name: "queen diagonal", history: []string{"e2e4", "a7a6"}, from: "d1", to: "h5", mover: White, wantPiece: Queen},
		{name: "queen straight", history: []string{"d2d4", "a7a6"}, from: "d1", to: "d3", mover: White, wantPiece: Queen},
		{name: "queen knight shape", history: []string{"e2e4", "a7a6"}, from: "d1", to: "e3", mover: White, wantErr: ErrIllegalPattern},
		{name: "queen blocked", from: "d1", to: "d3", mover: White, wantErr: ErrIllegalPattern},
		{name: "king step", history: []string{"e2e4", "a7a6"}, from: "e1", to: "e2", mover: White, wantPiece: King},
		{name: "king two squares", history: []string{"e2e4", "a7a6", "e1e2", "a6a5"}, from: "e2", to: "c4", mover: White, wantErr: ErrIllegalPattern},
		{name: "king step forward", history: []string{"e2e4", "a7a6", "e1e2", "a6a5"}, from: "e2", to: "e3", mover: White, wantPiece: King},
		{name: "no castling", history: []string{"g1f3", "a7a6", "g2g3", "a6a5", "f1g2", "h7h6"}, from: "e1", to: "g1", mover: White, wantErr: ErrIllegalPattern},
		{name: "empty source", from: "e4", to: "e5", mover: White, wantErr: ErrNoPieceAtSource},
		{name: "opponent piece", from: "e7", to: "e5", mover: White, wantErr: ErrWrongSidePiece},
		{name: "white moving for black", history: []string{"e2e4"}, from: "d2", to: "d4", mover: Black, wantErr: ErrWrongSidePiece},
		{name: "own piece on target", from: "d1", to: "d2", mover: White, wantErr: ErrSelfCapture},
		{name: "promotion piece on ordinary move", from: "e2", to: "e4", mover: White, promotion: Queen, wantErr: ErrInvalidPromotion},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ledger := buildLedger(t, tc.history...)
			piece, err := Validate(ledger, sq(t, tc.from), sq(t, tc.to), tc.mover, tc.promotion)

			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Errorf("Expected %v, got %v", tc.wantErr, err)
				}
				assert.Equal(t, NoKind, piece)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantPiece, piece)
		})
	}
}

func TestValidateChecksInOrder(t *testing.T) {
	// Empty source beats every other failure.
	_, err := Validate(nil, sq(t, "e4"), sq(t, "e4"), Black, Queen)
	assert.ErrorIs(t, err, ErrNoPieceAtSource)

	// Wrong side beats self-capture.
	_, err = Validate(nil, sq(t, "d8"), sq(t, "d7"), White, NoKind)
	assert.ErrorIs(t, err, ErrWrongSidePiece)

	// Self-capture beats pattern.
	_, err = Validate(nil, sq(t, "a1"), sq(t, "h2"), White, NoKind)
	assert.ErrorIs(t, err, ErrSelfCapture)
}

// The double step does not look at the square it jumps over.
func TestPawnDoubleStepIgnoresIntermediateSquare(t *testing.T) {
	ledger := buildLedger(t, "g1f3", "b8c6", "f3e5", "c6d4", "e5d3", "d4e6")
	// The white knight ends on d3, directly in front of the d2 pawn.
	board := Reconstruct(ledger)
	_, occupied := PieceAt(board, sq(t, "d3"))
	require.True(t, occupied)

	piece, err := Validate(ledger, sq(t, "d2"), sq(t, "d4"), White, NoKind)
	require.NoError(t, err)
	assert.Equal(t, Pawn, piece)
}

func TestPromotionGate(t *testing.T) {
	history := []string{
		"h2h4", "g7g5",
		"h4g5", "h7h6",
		"g5h6", "g8f6",
		"h6h7", "f6g8",
	}

	tests := []struct {
		name      string
		promotion PieceKind
		wantErr   error
	}{
		{"missing", NoKind, ErrPromotionRequired},
		{"king", King, ErrInvalidPromotion},
		{"pawn", Pawn, ErrInvalidPromotion},
		{"queen", Queen, nil},
		{"rook", Rook, nil},
		{"bishop", Bishop, nil},
		{"knight", Knight, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := buildLedger(t, history...)
			// h7xg8 captures the knight on the back rank.
			piece, err := Validate(ledger, sq(t, "h7"), sq(t, "g8"), White, tt.promotion)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, Pawn, piece)
		})
	}
}

func TestBlackPromotionOnFirstRank(t *testing.T) {
	ledger := buildLedger(t,
		"h2h3", "a7a5",
		"h3h4", "a5a4",
		"h4h5", "a4a3",
		"h5h6", "a3b2",
		"g2g3",
	)

	_, err := Validate(ledger, sq(t, "b2"), sq(t, "a1"), Black, NoKind)
	assert.ErrorIs(t, err, ErrPromotionRequired)

	piece, err := Validate(ledger, sq(t, "b2"), sq(t, "a1"), Black, Knight)
	require.NoError(t, err)
	assert.Equal(t, Pawn, piece)
}

// Moves that leave the king attacked are accepted: check is not modelled.
func TestKingMayBeLeftInCheck(t *testing.T) {
	ledger := buildLedger(t, "e2e4", "e7e5", "d1h5")

	// f7-f6 opens the h5-e8 diagonal onto the black king.
	piece, err := Validate(ledger, sq(t, "f7"), sq(t, "f6"), Black, NoKind)
	require.NoError(t, err)
	assert.Equal(t, Pawn, piece)
}

func TestParsePromotion(t *testing.T) {
	for letter, want := range map[string]PieceKind{"Q": Queen, "R": Rook, "B": Bishop, "N": Knight} {
		got, err := ParsePromotion(letter)
		require.NoError(t, err, letter)
		assert.Equal(t, want, got)
	}
	for _, bad := range []string{"q", "n", "P", "K", "", "QQ", "x"} {
		_, err := ParsePromotion(bad)
		assert.ErrorIs(t, err, ErrInvalidPromotion, bad)
	}
}
