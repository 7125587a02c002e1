package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/justinabrahms/chessduel/internal/auth"
	"github.com/justinabrahms/chessduel/internal/chess"
	"github.com/justinabrahms/chessduel/internal/game"
	"github.com/justinabrahms/chessduel/internal/lobby"
	"github.com/justinabrahms/chessduel/internal/store"
)

// ErrBadRequest marks malformed input caught by the transport itself.
var ErrBadRequest = errors.New("bad request")

const codeInternal = "INTERNAL"

// errorCodes is checked in order; the first match wins.
var errorCodes = []struct {
	err    error
	code   string
	status int
}{
	{chess.ErrInvalidSquare, "INVALID_SQUARE", http.StatusBadRequest},
	{chess.ErrNoPieceAtSource, "NO_PIECE_AT_SOURCE", http.StatusUnprocessableEntity},
	{chess.ErrWrongSidePiece, "WRONG_SIDE_PIECE", http.StatusUnprocessableEntity},
	{chess.ErrSelfCapture, "SELF_CAPTURE", http.StatusUnprocessableEntity},
	{chess.ErrIllegalPattern, "ILLEGAL_PATTERN", http.StatusUnprocessableEntity},
	{chess.ErrPromotionRequired, "PROMOTION_REQUIRED", http.StatusUnprocessableEntity},
	{chess.ErrInvalidPromotion, "INVALID_PROMOTION", http.StatusUnprocessableEntity},

	{game.ErrGameNotFound, "GAME_NOT_FOUND", http.StatusNotFound},
	{game.ErrPlayerNotInGame, "PLAYER_NOT_IN_GAME", http.StatusForbidden},
	{game.ErrGameNotInProgress, "GAME_NOT_IN_PROGRESS", http.StatusConflict},
	{game.ErrNotYourTurn, "NOT_YOUR_TURN", http.StatusConflict},
	{game.ErrSamePlayer, "SAME_PLAYER", http.StatusBadRequest},
	{game.ErrNoActiveGame, "NO_ACTIVE_GAME", http.StatusNotFound},
	{game.ErrGameActive, "GAME_ACTIVE", http.StatusConflict},

	{lobby.ErrInvalidTargetUser, "INVALID_TARGET_USER", http.StatusBadRequest},
	{lobby.ErrUserNotFound, "USER_NOT_FOUND", http.StatusNotFound},
	{lobby.ErrInvitationNotFound, "INVITATION_NOT_FOUND", http.StatusNotFound},
	{lobby.ErrInvitationProcessed, "INVITATION_PROCESSED", http.StatusConflict},

	{auth.ErrInvalidCredentials, "INVALID_CREDENTIALS", http.StatusUnauthorized},
	{auth.ErrUsernameTaken, "USERNAME_TAKEN", http.StatusConflict},
	{auth.ErrInvalidToken, "INVALID_TOKEN", http.StatusUnauthorized},
	{auth.ErrInvalidSignup, "INVALID_SIGNUP", http.StatusBadRequest},

	{store.ErrNotFound, "NOT_FOUND", http.StatusNotFound},
	{store.ErrConflict, "CONFLICT", http.StatusConflict},
	{store.ErrDuplicate, "DUPLICATE", http.StatusConflict},

	{ErrBadRequest, "BAD_REQUEST", http.StatusBadRequest},
}

// ErrorCode maps an error to a stable client-facing code and HTTP status.
func ErrorCode(err error) (string, int) {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code, e.status
		}
	}
	return codeInternal, http.StatusInternalServerError
}

// ErrorBody is the payload of every error response and websocket error
// frame.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func errorBody(err error) (ErrorBody, int) {
	code, status := ErrorCode(err)
	if code == codeInternal {
		log.Error().Err(err).Msg("Internal error")
		return ErrorBody{Error: code, Message: "internal error"}, status
	}
	return ErrorBody{Error: code, Message: err.Error()}, status
}

func writeError(w http.ResponseWriter, err error) {
	body, status := errorBody(err)
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
