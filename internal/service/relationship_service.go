package service

import (
	"context"
	"time"

	"odinbook/internal/models"
	"odinbook/internal/repository"
)

// RelationshipService exposes the friend state machine to the transport.
// Events are published by the store's commit hook, see RelationshipEvents.
type RelationshipService struct {
	store repository.RelationshipStore
	users repository.UserRepository
}

// FriendsOverview is the friends page of one user.
type FriendsOverview struct {
	Friends  []models.UserSummary `json:"friends"`
	Incoming []models.UserSummary `json:"incoming_requests"`
	Outgoing []models.UserSummary `json:"outgoing_requests"`
}

// NewRelationshipService returns a new RelationshipService.
func NewRelationshipService(store repository.RelationshipStore, users repository.UserRepository) *RelationshipService {
	return &RelationshipService{store: store, users: users}
}

// SendRequest sends a friend request from userID to targetID.
func (s *RelationshipService) SendRequest(ctx context.Context, userID, targetID uint) error {
	return s.store.SendRequest(ctx, userID, targetID)
}

// CancelRequest withdraws a request userID sent to targetID.
func (s *RelationshipService) CancelRequest(ctx context.Context, userID, targetID uint) error {
	return s.store.CancelRequest(ctx, userID, targetID)
}

// AcceptRequest accepts the request senderID sent to userID.
func (s *RelationshipService) AcceptRequest(ctx context.Context, userID, senderID uint) error {
	return s.store.AcceptRequest(ctx, userID, senderID)
}

// RejectRequest declines the request senderID sent to userID.
func (s *RelationshipService) RejectRequest(ctx context.Context, userID, senderID uint) error {
	return s.store.RejectRequest(ctx, userID, senderID)
}

// RemoveFriend ends the friendship from either side.
func (s *RelationshipService) RemoveFriend(ctx context.Context, userID, friendID uint) error {
	return s.store.RemoveFriend(ctx, userID, friendID)
}

// Status returns the pair state seen from userID.
func (s *RelationshipService) Status(ctx context.Context, userID, otherID uint) (models.RelationshipStatus, error) {
	if userID != otherID {
		if _, err := s.users.GetByID(ctx, otherID); err != nil {
			if models.IsCode(err, models.CodeNotFound) {
				return "", models.NewInvalidTargetError(otherID)
			}
			return "", err
		}
	}
	return s.store.Status(ctx, userID, otherID)
}

// FriendsAsOf returns the ids of users who were userID's friends at the
// given instant and still are.
func (s *RelationshipService) FriendsAsOf(ctx context.Context, userID uint, at time.Time) ([]uint, error) {
	return s.store.FriendsAsOf(ctx, userID, at)
}

// FriendsOf returns the ids of userID's friends.
func (s *RelationshipService) FriendsOf(ctx context.Context, userID uint) ([]uint, error) {
	return s.store.FriendsOf(ctx, userID)
}

// Overview returns the three relationship sets of userID with user summaries.
func (s *RelationshipService) Overview(ctx context.Context, userID uint) (*FriendsOverview, error) {
	ids, err := s.store.Overview(ctx, userID)
	if err != nil {
		return nil, err
	}

	all := make([]uint, 0, len(ids.Friends)+len(ids.Incoming)+len(ids.Outgoing))
	all = append(all, ids.Friends...)
	all = append(all, ids.Incoming...)
	all = append(all, ids.Outgoing...)
	users, err := s.users.GetByIDs(ctx, all)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	return &FriendsOverview{
		Friends:  summaries(ids.Friends, byID),
		Incoming: summaries(ids.Incoming, byID),
		Outgoing: summaries(ids.Outgoing, byID),
	}, nil
}

func summaries(ids []uint, byID map[uint]models.User) []models.UserSummary {
	out := make([]models.UserSummary, 0, len(ids))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			out = append(out, u.Summary())
		}
	}
	return out
}
