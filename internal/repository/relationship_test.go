package repository

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"odinbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func friendSetVersion(t *testing.T, db *gorm.DB, id uint) uint64 {
	t.Helper()
	v, err := NewUserRepository(db).FriendSetVersion(context.Background(), id)
	require.NoError(t, err)
	return v
}

func TestRelationshipStore_Lifecycle(t *testing.T) {
	db := newTestDB(t)
	store := newTestRelationshipStore(db)
	ctx := context.Background()
	ids := createUsers(t, db, 2)
	a, b := ids[0], ids[1]

	require.NoError(t, store.SendRequest(ctx, a, b))

	status, err := store.Status(ctx, a, b)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingSent, status)
	status, err = store.Status(ctx, b, a)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingReceived, status)

	out, err := store.OutgoingOf(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []uint{b}, out)
	in, err := store.IncomingOf(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, []uint{a}, in)

	require.NoError(t, store.AcceptRequest(ctx, b, a))

	status, err = store.Status(ctx, a, b)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFriends, status)

	overviewA, err := store.Overview(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []uint{b}, overviewA.Friends)
	assert.Empty(t, overviewA.Outgoing)
	assert.Empty(t, overviewA.Incoming)

	overviewB, err := store.Overview(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, []uint{a}, overviewB.Friends)
	assert.Empty(t, overviewB.Incoming)

	require.NoError(t, store.RemoveFriend(ctx, b, a))
	status, err = store.Status(ctx, a, b)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNone, status)

	// send, accept, remove: three mutations touching both users.
	assert.Equal(t, uint64(3), friendSetVersion(t, db, a))
	assert.Equal(t, uint64(3), friendSetVersion(t, db, b))
}

func TestRelationshipStore_FriendsAsOf(t *testing.T) {
	db := newTestDB(t)
	store := newTestRelationshipStore(db)
	ctx := context.Background()
	ids := createUsers(t, db, 3)
	a, early, late := ids[0], ids[1], ids[2]

	require.NoError(t, store.SendRequest(ctx, early, a))
	require.NoError(t, store.SendRequest(ctx, late, a))
	require.NoError(t, store.AcceptRequest(ctx, a, early))
	between := time.Now()
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, store.AcceptRequest(ctx, a, late))

	friends, err := store.FriendsAsOf(ctx, a, between)
	require.NoError(t, err)
	assert.Equal(t, []uint{early}, friends)

	friends, err = store.FriendsAsOf(ctx, a, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, []uint{early, late}, friends)

	friends, err = store.FriendsAsOf(ctx, a, between.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, friends)
}

func TestRelationshipStore_PreconditionErrors(t *testing.T) {
	db := newTestDB(t)
	store := newTestRelationshipStore(db)
	ctx := context.Background()
	ids := createUsers(t, db, 3)
	a, b, c := ids[0], ids[1], ids[2]

	tests := []struct {
		name string
		run  func() error
		code string
	}{
		{"self request", func() error { return store.SendRequest(ctx, a, a) }, models.CodeSelfRequest},
		{"missing target", func() error { return store.SendRequest(ctx, a, 9999) }, models.CodeInvalidTarget},
		{"cancel without request", func() error { return store.CancelRequest(ctx, a, c) }, models.CodeRequestNotFound},
		{"accept without request", func() error { return store.AcceptRequest(ctx, c, a) }, models.CodeRequestNotFound},
		{"reject without request", func() error { return store.RejectRequest(ctx, c, a) }, models.CodeRequestNotFound},
		{"remove non friend", func() error { return store.RemoveFriend(ctx, a, c) }, models.CodeFriendNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.Equal(t, tt.code, models.ErrorCode(err))
		})
	}

	require.NoError(t, store.SendRequest(ctx, a, b))

	err := store.SendRequest(ctx, a, b)
	assert.True(t, models.IsCode(err, models.CodeAlreadyConnected))
	err = store.SendRequest(ctx, b, a)
	assert.True(t, models.IsCode(err, models.CodeAlreadyConnected), "reverse pending counts as connected")

	// Only the receiver can accept; the sender accepting its own request is a miss.
	err = store.AcceptRequest(ctx, a, b)
	assert.True(t, models.IsCode(err, models.CodeRequestNotFound))
	// Only the sender can cancel.
	err = store.CancelRequest(ctx, b, a)
	assert.True(t, models.IsCode(err, models.CodeRequestNotFound))

	require.NoError(t, store.CancelRequest(ctx, a, b))
	err = store.CancelRequest(ctx, a, b)
	assert.True(t, models.IsCode(err, models.CodeRequestNotFound), "second cancel must not succeed")

	require.NoError(t, store.SendRequest(ctx, a, b))
	require.NoError(t, store.RejectRequest(ctx, b, a))
	status, err := store.Status(ctx, a, b)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNone, status)

	require.NoError(t, store.SendRequest(ctx, a, b))
	require.NoError(t, store.AcceptRequest(ctx, b, a))
	err = store.SendRequest(ctx, b, a)
	assert.True(t, models.IsCode(err, models.CodeAlreadyConnected))
}

// pairModel is the reference state machine the store is compared against.
type pairModel map[[2]uint]models.RelationshipStatus

func (m pairModel) get(a, b uint) models.RelationshipStatus {
	if a < b {
		if s, ok := m[[2]uint{a, b}]; ok {
			return s
		}
		return models.StatusNone
	}
	return m.get(b, a).Reverse()
}

func (m pairModel) set(a, b uint, s models.RelationshipStatus) {
	if a > b {
		a, b, s = b, a, s.Reverse()
	}
	m[[2]uint{a, b}] = s
}

func TestRelationshipStore_SymmetryUnderRandomOperations(t *testing.T) {
	db := newTestDB(t)
	store := newTestRelationshipStore(db)
	ctx := context.Background()
	users := createUsers(t, db, 5)
	model := pairModel{}
	rng := rand.New(rand.NewSource(42))

	for step := 0; step < 300; step++ {
		a := users[rng.Intn(len(users))]
		b := users[rng.Intn(len(users))]
		if a == b {
			continue
		}
		current := model.get(a, b)

		var err error
		switch rng.Intn(5) {
		case 0:
			err = store.SendRequest(ctx, a, b)
			if current == models.StatusNone {
				require.NoError(t, err, "step %d send", step)
				model.set(a, b, models.StatusPendingSent)
			} else {
				assert.True(t, models.IsCode(err, models.CodeAlreadyConnected), "step %d send: %v", step, err)
			}
		case 1:
			err = store.CancelRequest(ctx, a, b)
			if current == models.StatusPendingSent {
				require.NoError(t, err, "step %d cancel", step)
				model.set(a, b, models.StatusNone)
			} else {
				assert.True(t, models.IsCode(err, models.CodeRequestNotFound), "step %d cancel: %v", step, err)
			}
		case 2:
			err = store.AcceptRequest(ctx, a, b)
			if current == models.StatusPendingReceived {
				require.NoError(t, err, "step %d accept", step)
				model.set(a, b, models.StatusFriends)
			} else {
				assert.True(t, models.IsCode(err, models.CodeRequestNotFound), "step %d accept: %v", step, err)
			}
		case 3:
			err = store.RejectRequest(ctx, a, b)
			if current == models.StatusPendingReceived {
				require.NoError(t, err, "step %d reject", step)
				model.set(a, b, models.StatusNone)
			} else {
				assert.True(t, models.IsCode(err, models.CodeRequestNotFound), "step %d reject: %v", step, err)
			}
		case 4:
			err = store.RemoveFriend(ctx, a, b)
			if current == models.StatusFriends {
				require.NoError(t, err, "step %d remove", step)
				model.set(a, b, models.StatusNone)
			} else {
				assert.True(t, models.IsCode(err, models.CodeFriendNotFound), "step %d remove: %v", step, err)
			}
		}

		assertSymmetric(t, store, users, model)
	}
}

func assertSymmetric(t *testing.T, store RelationshipStore, users []uint, model pairModel) {
	t.Helper()
	ctx := context.Background()
	for _, a := range users {
		for _, b := range users {
			if a == b {
				continue
			}
			status, err := store.Status(ctx, a, b)
			require.NoError(t, err)
			require.Equal(t, model.get(a, b), status, "pair %d,%d", a, b)
		}

		overview, err := store.Overview(ctx, a)
		require.NoError(t, err)
		for _, f := range overview.Friends {
			assert.Equal(t, models.StatusFriends, model.get(a, f))
		}
		for _, o := range overview.Outgoing {
			assert.Equal(t, models.StatusPendingSent, model.get(a, o))
		}
		for _, i := range overview.Incoming {
			assert.Equal(t, models.StatusPendingReceived, model.get(a, i))
		}
	}
}

func TestRelationshipStore_FailedSecondWriteRollsBackPair(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(store RelationshipStore, a, b uint) error
		mutate func(store RelationshipStore, a, b uint) error
		want   models.RelationshipStatus
	}{
		{
			name:   "send",
			setup:  func(RelationshipStore, uint, uint) error { return nil },
			mutate: func(s RelationshipStore, a, b uint) error { return s.SendRequest(context.Background(), a, b) },
			want:   models.StatusNone,
		},
		{
			name:   "accept",
			setup:  func(s RelationshipStore, a, b uint) error { return s.SendRequest(context.Background(), a, b) },
			mutate: func(s RelationshipStore, a, b uint) error { return s.AcceptRequest(context.Background(), b, a) },
			want:   models.StatusPendingSent,
		},
		{
			name:   "cancel",
			setup:  func(s RelationshipStore, a, b uint) error { return s.SendRequest(context.Background(), a, b) },
			mutate: func(s RelationshipStore, a, b uint) error { return s.CancelRequest(context.Background(), a, b) },
			want:   models.StatusPendingSent,
		},
		{
			name:   "reject",
			setup:  func(s RelationshipStore, a, b uint) error { return s.SendRequest(context.Background(), a, b) },
			mutate: func(s RelationshipStore, a, b uint) error { return s.RejectRequest(context.Background(), b, a) },
			want:   models.StatusPendingSent,
		},
		{
			name: "remove",
			setup: func(s RelationshipStore, a, b uint) error {
				if err := s.SendRequest(context.Background(), a, b); err != nil {
					return err
				}
				return s.AcceptRequest(context.Background(), b, a)
			},
			mutate: func(s RelationshipStore, a, b uint) error { return s.RemoveFriend(context.Background(), a, b) },
			want:   models.StatusFriends,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			store := newTestRelationshipStore(db)
			ids := createUsers(t, db, 2)
			a, b := ids[0], ids[1]
			require.NoError(t, tt.setup(store, a, b))

			versionA, versionB := friendSetVersion(t, db, a), friendSetVersion(t, db, b)
			failNthWrite(t, db, "user_relations", 2)

			err := tt.mutate(store, a, b)
			require.Error(t, err)
			assert.ErrorIs(t, err, errInjected)

			status, err := store.Status(context.Background(), a, b)
			require.NoError(t, err, "pair must still be symmetric")
			assert.Equal(t, tt.want, status)
			assert.Equal(t, versionA, friendSetVersion(t, db, a))
			assert.Equal(t, versionB, friendSetVersion(t, db, b))
		})
	}
}

func TestRelationshipStore_ConcurrentSendsHaveOneWinner(t *testing.T) {
	db := newTestDB(t)
	store := newTestRelationshipStore(db)
	ids := createUsers(t, db, 2)
	a, b := ids[0], ids[1]

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := a, b
			if i%2 == 1 {
				from, to = b, a
			}
			errs[i] = store.SendRequest(context.Background(), from, to)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, models.IsCode(err, models.CodeAlreadyConnected), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, wins)

	var rows int64
	require.NoError(t, db.Model(&models.UserRelation{}).Count(&rows).Error)
	assert.Equal(t, int64(2), rows)
}

func TestRelationshipStore_CancelRacingAccept(t *testing.T) {
	for round := 0; round < 10; round++ {
		db := newTestDB(t)
		store := newTestRelationshipStore(db)
		ids := createUsers(t, db, 2)
		a, b := ids[0], ids[1]
		require.NoError(t, store.SendRequest(context.Background(), a, b))

		var wg sync.WaitGroup
		var cancelErr, acceptErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			cancelErr = store.CancelRequest(context.Background(), a, b)
		}()
		go func() {
			defer wg.Done()
			acceptErr = store.AcceptRequest(context.Background(), b, a)
		}()
		wg.Wait()

		status, err := store.Status(context.Background(), a, b)
		require.NoError(t, err)
		if cancelErr == nil {
			assert.True(t, models.IsCode(acceptErr, models.CodeRequestNotFound))
			assert.Equal(t, models.StatusNone, status)
		} else {
			require.NoError(t, acceptErr)
			assert.True(t, models.IsCode(cancelErr, models.CodeRequestNotFound))
			assert.Equal(t, models.StatusFriends, status)
		}
	}
}

func TestRelationshipStore_AsymmetricPairFailsClosed(t *testing.T) {
	db := newTestDB(t)
	store := newTestRelationshipStore(db)
	ctx := context.Background()
	ids := createUsers(t, db, 2)
	a, b := ids[0], ids[1]

	// A friend row with no mirror can only come from a bug or manual edit.
	require.NoError(t, db.Create(&models.UserRelation{UserID: a, OtherID: b, Kind: models.RelationFriend}).Error)

	_, err := store.Status(ctx, a, b)
	assert.True(t, models.IsCode(err, models.CodeInvariantViolation))

	err = store.RemoveFriend(ctx, a, b)
	assert.True(t, models.IsCode(err, models.CodeInvariantViolation))
	err = store.SendRequest(ctx, b, a)
	assert.True(t, models.IsCode(err, models.CodeInvariantViolation))

	// Nothing was repaired or half-applied.
	var rows []models.UserRelation
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, a, rows[0].UserID)
	assert.Equal(t, uint64(0), friendSetVersion(t, db, a))
}

func TestPairLocks_ReleasesEntries(t *testing.T) {
	locks := newPairLocks()
	unlock := locks.Lock(2, 1)
	assert.Equal(t, 1, locks.size())

	done := make(chan struct{})
	go func() {
		release := locks.Lock(1, 2)
		release()
		close(done)
	}()

	unlock()
	<-done
	assert.Equal(t, 0, locks.size())
}

func TestRelationshipStore_CommitHookSeesOnlyCommittedMutations(t *testing.T) {
	db := newTestDB(t)
	var mu sync.Mutex
	var seen []Mutation
	store := NewRelationshipStore(db, testRetrier, nil, WithCommitHook(func(_ context.Context, m Mutation) {
		mu.Lock()
		seen = append(seen, m)
		mu.Unlock()
	}))
	ctx := context.Background()
	ids := createUsers(t, db, 2)
	a, b := ids[0], ids[1]

	require.NoError(t, store.SendRequest(ctx, a, b))
	assert.True(t, models.IsCode(store.SendRequest(ctx, a, b), models.CodeAlreadyConnected))
	require.NoError(t, store.AcceptRequest(ctx, b, a))
	assert.True(t, models.IsCode(store.CancelRequest(ctx, a, b), models.CodeRequestNotFound))
	require.NoError(t, store.RemoveFriend(ctx, a, b))

	assert.Equal(t, []Mutation{
		{Kind: MutationSend, ActorID: a, TargetID: b},
		{Kind: MutationAccept, ActorID: b, TargetID: a},
		{Kind: MutationRemove, ActorID: a, TargetID: b},
	}, seen)
}
