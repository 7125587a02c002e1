package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/justinabrahms/chessduel/internal/auth"
	"github.com/justinabrahms/chessduel/internal/config"
	"github.com/justinabrahms/chessduel/internal/game"
	"github.com/justinabrahms/chessduel/internal/lobby"
	"github.com/justinabrahms/chessduel/internal/store"
)

type Service struct {
	games       *game.Service
	accounts    *auth.Accounts
	tokens      *auth.Tokens
	invitations *lobby.Invitations
	presence    *lobby.Presence
	hub         *Hub
	upgrader    websocket.Upgrader
}

func NewService(
	cfg *config.Config,
	games *game.Service,
	accounts *auth.Accounts,
	tokens *auth.Tokens,
	invitations *lobby.Invitations,
	presence *lobby.Presence,
	hub *Hub,
) *Service {
	return &Service{
		games:       games,
		accounts:    accounts,
		tokens:      tokens,
		invitations: invitations,
		presence:    presence,
		hub:         hub,
		upgrader:    newUpgrader(cfg.WebSocket.AllowedOrigins),
	}
}

// Router wires every route. Everything under /api except health, register
// and login requires a bearer token.
func (s *Service) Router() http.Handler {
	router := mux.NewRouter()
	router.Use(requestLogger)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.HealthHandler).Methods("GET")
	api.HandleFunc("/auth/register", s.RegisterHandler).Methods("POST")
	api.HandleFunc("/auth/login", s.LoginHandler).Methods("POST")

	protected := api.NewRoute().Subrouter()
	protected.Use(requireAuth(s.tokens))
	protected.HandleFunc("/games", s.CreateGameHandler).Methods("POST")
	protected.HandleFunc("/games/active", s.ActiveGameHandler).Methods("GET")
	protected.HandleFunc("/games/history", s.HistoryHandler).Methods("GET")
	protected.HandleFunc("/games/{id}", s.GetGameHandler).Methods("GET")
	protected.HandleFunc("/games/{id}/moves", s.GetMovesHandler).Methods("GET")
	protected.HandleFunc("/games/{id}/moves", s.MakeMoveHandler).Methods("POST")
	protected.HandleFunc("/games/{id}/resign", s.ResignGameHandler).Methods("POST")
	protected.HandleFunc("/lobby/players", s.OnlinePlayersHandler).Methods("GET")
	protected.HandleFunc("/lobby/invitations", s.PendingInvitationsHandler).Methods("GET")
	protected.HandleFunc("/lobby/invitations", s.SendInvitationHandler).Methods("POST")
	protected.HandleFunc("/lobby/invitations/{id}/accept", s.AcceptInvitationHandler).Methods("POST")
	protected.HandleFunc("/lobby/invitations/{id}/decline", s.DeclineInvitationHandler).Methods("POST")

	router.HandleFunc("/ws", s.WebSocketHandler)

	return cors(router)
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", ErrBadRequest)
	}
	return nil
}

// caller is only reached behind requireAuth.
func caller(r *http.Request) string {
	id, _ := UserID(r.Context())
	return id
}

func (s *Service) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}

type RegisterRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token     string      `json:"token"`
	ExpiresAt int64       `json:"expiresAt"`
	User      *store.User `json:"user"`
}

func (s *Service) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	u, err := s.accounts.Register(r.Context(), req.Username, req.DisplayName, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	s.respondWithToken(w, http.StatusCreated, u)
}

func (s *Service) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	u, err := s.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		log.Info().Str("username", req.Username).Msg("Failed login")
		writeError(w, err)
		return
	}
	s.respondWithToken(w, http.StatusOK, u)
}

func (s *Service) respondWithToken(w http.ResponseWriter, status int, u *store.User) {
	token, exp, err := s.tokens.Issue(u.ID, u.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, AuthResponse{Token: token, ExpiresAt: exp.Unix(), User: u})
}

type CreateGameRequest struct {
	OpponentID string `json:"opponentId"`
}

func (s *Service) CreateGameHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateGameRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if _, err := s.accounts.User(r.Context(), req.OpponentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = fmt.Errorf("%s: %w", req.OpponentID, lobby.ErrUserNotFound)
		}
		writeError(w, err)
		return
	}

	g, err := s.games.CreateGame(r.Context(), caller(r), req.OpponentID)
	if err != nil {
		writeError(w, err)
		return
	}

	for _, id := range []string{g.WhitePlayerID, g.BlackPlayerID} {
		if err := s.hub.Publish(game.UserEventTopic(id, game.EventGameStart), g); err != nil {
			log.Warn().Err(err).Str("gameID", g.ID).Msg("Game start broadcast dropped")
		}
	}
	writeJSON(w, http.StatusCreated, g)
}

func (s *Service) ActiveGameHandler(w http.ResponseWriter, r *http.Request) {
	view, err := s.games.ActiveGame(r.Context(), caller(r))
	if errors.Is(err, game.ErrNoActiveGame) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Service) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	games, err := s.games.History(r.Context(), caller(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, games)
}

func (s *Service) GetGameHandler(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]

	view, err := s.games.GetGame(r.Context(), gameID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Service) GetMovesHandler(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]

	var after int64
	if raw := r.URL.Query().Get("lastMoveId"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			writeError(w, fmt.Errorf("%w: lastMoveId must be a non-negative integer", ErrBadRequest))
			return
		}
		after = n
	}

	moves, err := s.games.GetMoves(r.Context(), gameID, after)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, moves)
}

type MakeMoveRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

func (s *Service) MakeMoveHandler(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]

	var req MakeMoveRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	mv, err := s.games.ApplyMove(r.Context(), game.MoveRequest{
		GameID:    gameID,
		PlayerID:  caller(r),
		From:      req.From,
		To:        req.To,
		Promotion: req.Promotion,
	})
	if err != nil {
		log.Info().Err(err).Str("gameID", gameID).Str("from", req.From).Str("to", req.To).Msg("Move rejected")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mv)
}

func (s *Service) ResignGameHandler(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]

	g, err := s.games.Resign(r.Context(), gameID, caller(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Service) OnlinePlayersHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.presence.Online())
}

func (s *Service) PendingInvitationsHandler(w http.ResponseWriter, r *http.Request) {
	pending, err := s.invitations.Pending(r.Context(), caller(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

type SendInvitationRequest struct {
	ToUserID string `json:"toUserId"`
}

func (s *Service) SendInvitationHandler(w http.ResponseWriter, r *http.Request) {
	var req SendInvitationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	inv, err := s.invitations.Send(r.Context(), caller(r), req.ToUserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (s *Service) AcceptInvitationHandler(w http.ResponseWriter, r *http.Request) {
	g, err := s.invitations.Accept(r.Context(), mux.Vars(r)["id"], caller(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Service) DeclineInvitationHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.invitations.Decline(r.Context(), mux.Vars(r)["id"], caller(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
