package game

import "errors"

var (
	ErrGameNotFound      = errors.New("game not found")
	ErrPlayerNotInGame   = errors.New("player is not in this game")
	ErrGameNotInProgress = errors.New("game is not in progress")
	ErrNotYourTurn       = errors.New("not your turn")
	ErrSamePlayer        = errors.New("a player cannot play themselves")
	ErrNoActiveGame      = errors.New("no active game")
	ErrGameActive        = errors.New("game has recent activity")
)
