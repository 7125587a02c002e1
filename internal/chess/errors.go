package chess

import "errors"

// Move-legality rejections. Validate returns exactly one of these, wrapped
// with the squares involved.
var (
	ErrInvalidSquare     = errors.New("invalid square")
	ErrNoPieceAtSource   = errors.New("no piece at source square")
	ErrWrongSidePiece    = errors.New("not your piece")
	ErrSelfCapture       = errors.New("cannot capture your own piece")
	ErrIllegalPattern    = errors.New("illegal move pattern")
	ErrPromotionRequired = errors.New("pawn promotion required")
	ErrInvalidPromotion  = errors.New("invalid promotion piece")
)
