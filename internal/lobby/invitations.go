// Package lobby is where players find each other: the online roster and
// game invitations.
package lobby

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/justinabrahms/chessduel/internal/chess"
	"github.com/justinabrahms/chessduel/internal/game"
	"github.com/justinabrahms/chessduel/internal/store"
)

var (
	ErrInvalidTargetUser   = errors.New("cannot invite yourself")
	ErrUserNotFound        = errors.New("target user not found")
	ErrInvitationNotFound  = errors.New("invitation not found")
	ErrInvitationProcessed = errors.New("invitation already processed")
)

// GameCreator starts a game between two players.
type GameCreator interface {
	CreateGame(ctx context.Context, playerA, playerB string) (*chess.Game, error)
}

// InvitationView is an invitation with both players' display names.
type InvitationView struct {
	*store.Invitation
	FromUserName string `json:"fromUserName"`
	ToUserName   string `json:"toUserName"`
}

type Invitations struct {
	users       store.UserStore
	invitations store.InvitationStore
	games       GameCreator
	bus         game.Broadcaster
	now         func() time.Time

	// respond serializes accept and decline so an invitation is
	// answered at most once.
	respond sync.Mutex
}

func NewInvitations(users store.UserStore, invitations store.InvitationStore, games GameCreator, bus game.Broadcaster) *Invitations {
	return &Invitations{
		users:       users,
		invitations: invitations,
		games:       games,
		bus:         bus,
		now:         time.Now,
	}
}

func (s *Invitations) Send(ctx context.Context, fromUserID, toUserID string) (*InvitationView, error) {
	if fromUserID == toUserID {
		return nil, ErrInvalidTargetUser
	}
	if _, err := s.users.GetUser(ctx, toUserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", toUserID, ErrUserNotFound)
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	inv := &store.Invitation{
		ID:         uuid.NewString(),
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		Status:     store.InvitationPending,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.invitations.CreateInvitation(ctx, inv); err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}
	log.Info().Str("from", fromUserID).Str("to", toUserID).Msg("Invitation sent")

	view := s.view(ctx, inv)
	s.publish(game.UserEventTopic(toUserID, game.EventInvitations), view)
	return view, nil
}

// Accept creates the game and notifies both players. Only the invited user
// may accept. The invitation is marked accepted before the game exists, so
// a failed save never leaves a game behind that a retry would duplicate.
func (s *Invitations) Accept(ctx context.Context, invitationID, userID string) (*chess.Game, error) {
	s.respond.Lock()
	defer s.respond.Unlock()

	inv, err := s.pending(ctx, invitationID, userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	inv.Status = store.InvitationAccepted
	inv.RespondedAt = &now
	if err := s.invitations.UpdateInvitation(ctx, inv); err != nil {
		return nil, fmt.Errorf("update invitation: %w", err)
	}

	g, err := s.games.CreateGame(ctx, inv.FromUserID, inv.ToUserID)
	if err != nil {
		inv.Status = store.InvitationPending
		inv.RespondedAt = nil
		if rerr := s.invitations.UpdateInvitation(ctx, inv); rerr != nil {
			log.Error().Err(rerr).Str("invitationID", inv.ID).Msg("Failed to reopen invitation")
		}
		return nil, err
	}

	inv.GameID = g.ID
	if err := s.invitations.UpdateInvitation(ctx, inv); err != nil {
		log.Warn().Err(err).Str("invitationID", inv.ID).Str("gameID", g.ID).Msg("Failed to link game to invitation")
	}
	log.Info().Str("invitationID", inv.ID).Str("gameID", g.ID).Msg("Invitation accepted")

	s.publish(game.UserEventTopic(inv.FromUserID, game.EventGameStart), g)
	s.publish(game.UserEventTopic(inv.ToUserID, game.EventGameStart), g)
	return g, nil
}

func (s *Invitations) Decline(ctx context.Context, invitationID, userID string) error {
	s.respond.Lock()
	defer s.respond.Unlock()

	inv, err := s.pending(ctx, invitationID, userID)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	inv.Status = store.InvitationDeclined
	inv.RespondedAt = &now
	if err := s.invitations.UpdateInvitation(ctx, inv); err != nil {
		return fmt.Errorf("update invitation: %w", err)
	}
	log.Info().Str("invitationID", inv.ID).Msg("Invitation declined")

	s.publish(game.UserEventTopic(inv.FromUserID, game.EventInvitationDeclined), s.view(ctx, inv))
	return nil
}

// Pending lists invitations waiting on userID, oldest first.
func (s *Invitations) Pending(ctx context.Context, userID string) ([]*InvitationView, error) {
	invs, err := s.invitations.ListPendingInvitations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	views := make([]*InvitationView, 0, len(invs))
	for _, inv := range invs {
		views = append(views, s.view(ctx, inv))
	}
	return views, nil
}

// pending loads an invitation addressed to userID that has not been
// answered yet.
func (s *Invitations) pending(ctx context.Context, invitationID, userID string) (*store.Invitation, error) {
	inv, err := s.invitations.GetInvitation(ctx, invitationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find invitation: %w", err)
	}
	if inv.ToUserID != userID {
		return nil, ErrInvitationNotFound
	}
	if inv.Status != store.InvitationPending {
		return nil, ErrInvitationProcessed
	}
	return inv, nil
}

func (s *Invitations) view(ctx context.Context, inv *store.Invitation) *InvitationView {
	v := &InvitationView{Invitation: inv}
	if u, err := s.users.GetUser(ctx, inv.FromUserID); err == nil {
		v.FromUserName = u.DisplayName
	}
	if u, err := s.users.GetUser(ctx, inv.ToUserID); err == nil {
		v.ToUserName = u.DisplayName
	}
	return v
}

func (s *Invitations) publish(topic string, payload interface{}) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(topic, payload); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Broadcast dropped")
	}
}
