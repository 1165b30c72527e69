package membership

import (
	"context"
	"errors"

	"huddle/api/internal/rbac"
)

// Authorizer decides whether a (user, channel, action) triple is permitted.
// Every check recomputes from current store state; nothing is cached between
// calls because roles can change between messages.
type Authorizer struct {
	resolver *Resolver
}

func NewAuthorizer(resolver *Resolver) *Authorizer {
	return &Authorizer{resolver: resolver}
}

// CanWrite gates channel posts: general admits any current member,
// announcement only members whose effective role is Officer. Non-members,
// including the post-detach race, read as ErrWriteDenied.
func (a *Authorizer) CanWrite(ctx context.Context, userID, community string, channel rbac.Channel) error {
	if !rbac.ValidChannel(channel) {
		return ErrWriteDenied
	}
	role, err := a.resolver.Resolve(ctx, userID, community)
	if err != nil {
		if errors.Is(err, ErrNotMember) {
			return ErrWriteDenied
		}
		return err
	}
	if !rbac.CanPost(role, channel) {
		return ErrWriteDenied
	}
	return nil
}

// CanKick permits a kick only when the actor is an effective Officer, is not
// the target, and the target currently holds a membership row.
func (a *Authorizer) CanKick(ctx context.Context, actorID, community, targetID string) error {
	if actorID == targetID {
		return ErrSelfKick
	}
	role, err := a.resolver.Resolve(ctx, actorID, community)
	if err != nil {
		if errors.Is(err, ErrNotMember) {
			return ErrWriteDenied
		}
		return err
	}
	if role != rbac.RoleOfficer {
		return ErrWriteDenied
	}
	if _, err := a.resolver.members.Get(ctx, community, targetID); err != nil {
		return err
	}
	return nil
}

// CanDelete is the single predicate gating community deletion: effective
// Officer membership in that community.
func (a *Authorizer) CanDelete(ctx context.Context, userID, community string) error {
	role, err := a.resolver.Resolve(ctx, userID, community)
	if err != nil {
		if errors.Is(err, ErrNotMember) {
			return ErrWriteDenied
		}
		return err
	}
	if role != rbac.RoleOfficer {
		return ErrWriteDenied
	}
	return nil
}
