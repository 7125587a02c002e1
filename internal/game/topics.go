package game

import (
	"context"
	"strings"
)

// Topic names. Game topics are keyed by game ID and user topics by user ID.
// A subscription to a prefix such as "game/<id>" receives every topic
// beneath it.
const (
	PresenceTopic = "presence"

	EventMoves              = "moves"
	EventResigned           = "resigned"
	EventAbandoned          = "abandoned"
	EventInvitations        = "invitations"
	EventGameStart          = "game-start"
	EventInvitationDeclined = "invitation-declined"
)

func GameTopic(gameID string) string { return "game/" + gameID }

func MovesTopic(gameID string) string     { return GameTopic(gameID) + "/" + EventMoves }
func ResignedTopic(gameID string) string  { return GameTopic(gameID) + "/" + EventResigned }
func AbandonedTopic(gameID string) string { return GameTopic(gameID) + "/" + EventAbandoned }

func UserTopic(userID string) string { return "user/" + userID }

func UserEventTopic(userID, event string) string { return UserTopic(userID) + "/" + event }

// TopicMatches reports whether a subscription covers topic.
func TopicMatches(subscription, topic string) bool {
	return topic == subscription || strings.HasPrefix(topic, subscription+"/")
}

// TopicEvent returns the last segment of a topic, used as the frame type.
func TopicEvent(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

// Broadcaster delivers payloads to subscribers of a topic. Delivery is
// best effort: an error means the payload was dropped, never that the
// caller's state change should be undone.
type Broadcaster interface {
	Publish(topic string, payload interface{}) error
}

// IdentityLookup resolves user IDs to display names.
type IdentityLookup interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Publish(string, interface{}) error { return nil }

type idAsName struct{}

func (idAsName) DisplayName(_ context.Context, userID string) (string, error) { return userID, nil }
