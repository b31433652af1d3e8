package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"odinbook/internal/models"
	"odinbook/internal/observability"

	"gorm.io/gorm"
)

// RelationshipStore owns the friends, outgoing and incoming sets of every
// user and enforces the pair state machine. Every mutation writes both
// users' rows and bumps both friend-set versions in one transaction.
type RelationshipStore interface {
	SendRequest(ctx context.Context, fromID, toID uint) error
	CancelRequest(ctx context.Context, fromID, toID uint) error
	AcceptRequest(ctx context.Context, receiverID, senderID uint) error
	RejectRequest(ctx context.Context, receiverID, senderID uint) error
	RemoveFriend(ctx context.Context, userID, friendID uint) error

	Status(ctx context.Context, userID, otherID uint) (models.RelationshipStatus, error)
	FriendsOf(ctx context.Context, userID uint) ([]uint, error)
	FriendsAsOf(ctx context.Context, userID uint, at time.Time) ([]uint, error)
	IncomingOf(ctx context.Context, userID uint) ([]uint, error)
	OutgoingOf(ctx context.Context, userID uint) ([]uint, error)
	Overview(ctx context.Context, userID uint) (*models.RelationshipOverview, error)
}

// MutationKind names a committed relationship transition.
type MutationKind string

const (
	MutationSend   MutationKind = "send"
	MutationCancel MutationKind = "cancel"
	MutationAccept MutationKind = "accept"
	MutationReject MutationKind = "reject"
	MutationRemove MutationKind = "remove"
)

// Mutation describes a committed transition. ActorID performed it and
// TargetID is the other side of the pair.
type Mutation struct {
	Kind     MutationKind
	ActorID  uint
	TargetID uint
}

// CommitHook observes committed mutations. It runs while the pair is still
// locked, so for any one pair hooks see mutations in commit order.
type CommitHook func(ctx context.Context, m Mutation)

// StoreOption configures a RelationshipStore.
type StoreOption func(*relationshipStore)

// WithCommitHook registers hook to run after every committed mutation.
func WithCommitHook(hook CommitHook) StoreOption {
	return func(s *relationshipStore) {
		s.hooks = append(s.hooks, hook)
	}
}

type relationshipStore struct {
	db      *gorm.DB
	locks   *pairLocks
	retrier Retrier
	logger  *slog.Logger
	hooks   []CommitHook
}

// NewRelationshipStore creates a relationship store backed by user_relations.
func NewRelationshipStore(db *gorm.DB, retrier Retrier, logger *slog.Logger, opts ...StoreOption) RelationshipStore {
	if logger == nil {
		logger = observability.Logger
	}
	s := &relationshipStore{
		db:      db,
		locks:   newPairLocks(),
		retrier: retrier,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *relationshipStore) SendRequest(ctx context.Context, fromID, toID uint) error {
	if fromID == toID {
		return models.NewSelfRequestError()
	}
	return s.mutate(ctx, MutationSend, fromID, toID, func(tx *gorm.DB, status models.RelationshipStatus) error {
		if err := requireUsers(tx, fromID, toID); err != nil {
			return err
		}
		if status != models.StatusNone {
			return models.NewAlreadyConnectedError(status)
		}
		if err := insertRelation(tx, fromID, toID, models.RelationOutgoing); err != nil {
			return err
		}
		return insertRelation(tx, toID, fromID, models.RelationIncoming)
	})
}

func (s *relationshipStore) CancelRequest(ctx context.Context, fromID, toID uint) error {
	if fromID == toID {
		return models.NewRequestNotFoundError()
	}
	return s.mutate(ctx, MutationCancel, fromID, toID, func(tx *gorm.DB, status models.RelationshipStatus) error {
		if status != models.StatusPendingSent {
			return models.NewRequestNotFoundError()
		}
		return deletePair(tx, fromID, toID, models.RelationOutgoing, models.RelationIncoming, models.NewRequestNotFoundError)
	})
}

func (s *relationshipStore) AcceptRequest(ctx context.Context, receiverID, senderID uint) error {
	if receiverID == senderID {
		return models.NewRequestNotFoundError()
	}
	return s.mutate(ctx, MutationAccept, receiverID, senderID, func(tx *gorm.DB, status models.RelationshipStatus) error {
		if status != models.StatusPendingReceived {
			return models.NewRequestNotFoundError()
		}
		if err := promoteRelation(tx, senderID, receiverID, models.RelationOutgoing); err != nil {
			return err
		}
		return promoteRelation(tx, receiverID, senderID, models.RelationIncoming)
	})
}

func (s *relationshipStore) RejectRequest(ctx context.Context, receiverID, senderID uint) error {
	if receiverID == senderID {
		return models.NewRequestNotFoundError()
	}
	return s.mutate(ctx, MutationReject, receiverID, senderID, func(tx *gorm.DB, status models.RelationshipStatus) error {
		if status != models.StatusPendingReceived {
			return models.NewRequestNotFoundError()
		}
		return deletePair(tx, senderID, receiverID, models.RelationOutgoing, models.RelationIncoming, models.NewRequestNotFoundError)
	})
}

func (s *relationshipStore) RemoveFriend(ctx context.Context, userID, friendID uint) error {
	if userID == friendID {
		return models.NewFriendNotFoundError()
	}
	return s.mutate(ctx, MutationRemove, userID, friendID, func(tx *gorm.DB, status models.RelationshipStatus) error {
		if status != models.StatusFriends {
			return models.NewFriendNotFoundError()
		}
		return deletePair(tx, userID, friendID, models.RelationFriend, models.RelationFriend, models.NewFriendNotFoundError)
	})
}

// mutate runs fn under the pair lock inside a retried transaction. fn sees
// the pair status from a's side; returning an error rolls back both sides.
func (s *relationshipStore) mutate(
	ctx context.Context,
	kind MutationKind,
	a, b uint,
	fn func(tx *gorm.DB, status models.RelationshipStatus) error,
) error {
	op := "relationship." + string(kind)
	unlock := s.locks.Lock(a, b)
	defer unlock()

	defer observability.TrackQuery(op, "user_relations")()

	err := withRetryErr(ctx, s.retrier, op, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			status, err := s.pairStatus(ctx, tx, a, b)
			if err != nil {
				return err
			}
			if err := fn(tx, status); err != nil {
				return err
			}
			return bumpFriendSetVersions(tx, a, b)
		})
	})
	if err != nil {
		return err
	}

	m := Mutation{Kind: kind, ActorID: a, TargetID: b}
	for _, hook := range s.hooks {
		hook(ctx, m)
	}
	return nil
}

func (s *relationshipStore) Status(ctx context.Context, userID, otherID uint) (models.RelationshipStatus, error) {
	if userID == otherID {
		return models.StatusNone, models.NewSelfRequestError()
	}
	return withRetry(ctx, s.retrier, "relationship.status", func() (models.RelationshipStatus, error) {
		return s.pairStatus(ctx, s.db.WithContext(ctx), userID, otherID)
	})
}

// pairStatus reads both rows of the pair. A combination that cannot be
// produced by the state machine is reported and never repaired.
func (s *relationshipStore) pairStatus(ctx context.Context, db *gorm.DB, a, b uint) (models.RelationshipStatus, error) {
	var rows []models.UserRelation
	err := db.
		Where("(user_id = ? AND other_id = ?) OR (user_id = ? AND other_id = ?)", a, b, b, a).
		Find(&rows).Error
	if err != nil {
		return models.StatusNone, internalErr(err)
	}

	var fromA, fromB models.RelationKind
	for _, row := range rows {
		if row.UserID == a {
			fromA = row.Kind
		} else {
			fromB = row.Kind
		}
	}

	switch {
	case fromA == "" && fromB == "":
		return models.StatusNone, nil
	case fromA == models.RelationOutgoing && fromB == models.RelationIncoming:
		return models.StatusPendingSent, nil
	case fromA == models.RelationIncoming && fromB == models.RelationOutgoing:
		return models.StatusPendingReceived, nil
	case fromA == models.RelationFriend && fromB == models.RelationFriend:
		return models.StatusFriends, nil
	}

	observability.InvariantViolations.Inc()
	s.logger.ErrorContext(ctx, "relationship invariant violation",
		slog.Uint64("user_a", uint64(a)),
		slog.Uint64("user_b", uint64(b)),
		slog.String("kind_a", string(fromA)),
		slog.String("kind_b", string(fromB)),
	)
	return models.StatusNone, models.NewInvariantViolationError(
		fmt.Sprintf("asymmetric relationship between users %d and %d (%q/%q)", a, b, fromA, fromB),
	)
}

func (s *relationshipStore) FriendsOf(ctx context.Context, userID uint) ([]uint, error) {
	return s.idsOfKind(ctx, "relationship.friends", userID, models.RelationFriend)
}

// FriendsAsOf returns the friends userID already had at the given instant.
// Times are compared in Go because sqlite stores them as zoned strings.
func (s *relationshipStore) FriendsAsOf(ctx context.Context, userID uint, at time.Time) ([]uint, error) {
	return withRetry(ctx, s.retrier, "relationship.friends_as_of", func() ([]uint, error) {
		var rows []models.UserRelation
		err := s.db.WithContext(ctx).
			Select("other_id", "updated_at").
			Where("user_id = ? AND kind = ?", userID, models.RelationFriend).
			Order("other_id ASC").
			Find(&rows).Error
		if err != nil {
			return nil, internalErr(err)
		}
		ids := []uint{}
		for _, row := range rows {
			if !row.UpdatedAt.After(at) {
				ids = append(ids, row.OtherID)
			}
		}
		return ids, nil
	})
}

func (s *relationshipStore) IncomingOf(ctx context.Context, userID uint) ([]uint, error) {
	return s.idsOfKind(ctx, "relationship.incoming", userID, models.RelationIncoming)
}

func (s *relationshipStore) OutgoingOf(ctx context.Context, userID uint) ([]uint, error) {
	return s.idsOfKind(ctx, "relationship.outgoing", userID, models.RelationOutgoing)
}

func (s *relationshipStore) idsOfKind(ctx context.Context, op string, userID uint, kind models.RelationKind) ([]uint, error) {
	return withRetry(ctx, s.retrier, op, func() ([]uint, error) {
		ids := []uint{}
		err := s.db.WithContext(ctx).
			Model(&models.UserRelation{}).
			Where("user_id = ? AND kind = ?", userID, kind).
			Order("other_id ASC").
			Pluck("other_id", &ids).Error
		if err != nil {
			return nil, internalErr(err)
		}
		return ids, nil
	})
}

func (s *relationshipStore) Overview(ctx context.Context, userID uint) (*models.RelationshipOverview, error) {
	return withRetry(ctx, s.retrier, "relationship.overview", func() (*models.RelationshipOverview, error) {
		var rows []models.UserRelation
		err := s.db.WithContext(ctx).
			Where("user_id = ?", userID).
			Order("other_id ASC").
			Find(&rows).Error
		if err != nil {
			return nil, internalErr(err)
		}

		overview := &models.RelationshipOverview{Friends: []uint{}, Incoming: []uint{}, Outgoing: []uint{}}
		for _, row := range rows {
			switch row.Kind {
			case models.RelationFriend:
				overview.Friends = append(overview.Friends, row.OtherID)
			case models.RelationIncoming:
				overview.Incoming = append(overview.Incoming, row.OtherID)
			case models.RelationOutgoing:
				overview.Outgoing = append(overview.Outgoing, row.OtherID)
			}
		}
		return overview, nil
	})
}

func requireUsers(tx *gorm.DB, fromID, toID uint) error {
	var ids []uint
	if err := tx.Model(&models.User{}).Where("id IN ?", []uint{fromID, toID}).Pluck("id", &ids).Error; err != nil {
		return internalErr(err)
	}
	found := make(map[uint]bool, len(ids))
	for _, id := range ids {
		found[id] = true
	}
	if !found[toID] {
		return models.NewInvalidTargetError(toID)
	}
	if !found[fromID] {
		return models.NewInvalidTargetError(fromID)
	}
	return nil
}

func insertRelation(tx *gorm.DB, userID, otherID uint, kind models.RelationKind) error {
	rel := models.UserRelation{UserID: userID, OtherID: otherID, Kind: kind}
	if err := tx.Create(&rel).Error; err != nil {
		if isUniqueViolation(err) {
			// Another process won the race for this pair.
			return models.NewAlreadyConnectedError(models.StatusPendingSent)
		}
		return internalErr(err)
	}
	return nil
}

// promoteRelation turns a pending row into a friend row. Exactly one row
// must change, otherwise the pair moved underneath us.
func promoteRelation(tx *gorm.DB, userID, otherID uint, from models.RelationKind) error {
	res := tx.Model(&models.UserRelation{}).
		Where("user_id = ? AND other_id = ? AND kind = ?", userID, otherID, from).
		Updates(map[string]interface{}{"kind": models.RelationFriend, "updated_at": time.Now()})
	if res.Error != nil {
		return internalErr(res.Error)
	}
	if res.RowsAffected != 1 {
		return models.NewRequestNotFoundError()
	}
	return nil
}

// deletePair removes a's row of kindA and b's row of kindB.
func deletePair(
	tx *gorm.DB,
	a, b uint,
	kindA, kindB models.RelationKind,
	notFound func() *models.AppError,
) error {
	for _, side := range []struct {
		owner, other uint
		kind         models.RelationKind
	}{{a, b, kindA}, {b, a, kindB}} {
		res := tx.Where("user_id = ? AND other_id = ? AND kind = ?", side.owner, side.other, side.kind).
			Delete(&models.UserRelation{})
		if res.Error != nil {
			return internalErr(res.Error)
		}
		if res.RowsAffected != 1 {
			return notFound()
		}
	}
	return nil
}

func bumpFriendSetVersions(tx *gorm.DB, a, b uint) error {
	err := tx.Model(&models.User{}).
		Where("id IN ?", []uint{a, b}).
		UpdateColumn("friend_set_version", gorm.Expr("friend_set_version + ?", 1)).Error
	return internalErr(err)
}
