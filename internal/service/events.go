// Package service holds the business logic between the HTTP handlers, the
// repositories and the event router.
package service

import (
	"context"
	"log/slog"

	"odinbook/internal/events"
	"odinbook/internal/repository"
)

// EventPublisher accepts committed domain events.
type EventPublisher interface {
	Publish(ctx context.Context, e events.Event) error
}

var mutationEvents = map[repository.MutationKind]events.Type{
	repository.MutationSend:   events.FriendRequestSent,
	repository.MutationCancel: events.FriendRequestCanceled,
	repository.MutationAccept: events.FriendRequestAccepted,
	repository.MutationReject: events.FriendRequestRejected,
	repository.MutationRemove: events.FriendRemoved,
}

// RelationshipEvents returns a commit hook that publishes one event per
// committed relationship mutation.
func RelationshipEvents(publisher EventPublisher, logger *slog.Logger) repository.CommitHook {
	return func(ctx context.Context, m repository.Mutation) {
		t, ok := mutationEvents[m.Kind]
		if !ok {
			return
		}
		publish(ctx, publisher, logger, events.NewRelationshipEvent(t, m.ActorID, m.TargetID))
	}
}

// publish hands e to the router. The write that produced e is already
// committed, so a failure here is logged and never undoes the operation.
func publish(ctx context.Context, publisher EventPublisher, logger *slog.Logger, e events.Event) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
		logger.ErrorContext(ctx, "failed to publish event",
			slog.String("event_id", e.ID),
			slog.String("event_type", string(e.Type)),
			slog.String("error", err.Error()),
		)
	}
}
