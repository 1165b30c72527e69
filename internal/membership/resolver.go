package membership

import (
	"context"
	"encoding/json"
	"errors"

	"huddle/api/internal/rbac"
	"huddle/api/internal/storage"
)

// profileRecord mirrors the account system's user/{uid} document. The core
// reads role for precedence and ignores everything else, including verified.
type profileRecord struct {
	Role     string `json:"role"`
	Verified bool   `json:"verified"`
}

// Resolver computes a user's effective role in a community by combining the
// membership row with the global profile role, Officer winning. It holds no
// state of its own and never caches a resolution.
type Resolver struct {
	members *Store
	storage storage.Store
}

func NewResolver(members *Store, st storage.Store) *Resolver {
	return &Resolver{members: members, storage: st}
}

// Resolve returns the effective role for authorization. A missing membership
// row is ErrNotMember, never a silent Student default.
func (r *Resolver) Resolve(ctx context.Context, userID, community string) (rbac.Role, error) {
	member, err := r.members.Get(ctx, community, userID)
	if err != nil {
		return "", err
	}
	return rbac.Effective(member.Role, r.profileRole(ctx, userID)), nil
}

// DisplayRole is the roster variant: missing or malformed data reads as
// Student rather than failing the listing.
func (r *Resolver) DisplayRole(ctx context.Context, userID, community string) rbac.Role {
	member, err := r.members.Get(ctx, community, userID)
	if err != nil {
		return rbac.RoleStudent
	}
	return rbac.Effective(member.Role, r.profileRole(ctx, userID))
}

func (r *Resolver) profileRole(ctx context.Context, userID string) rbac.Role {
	value, err := r.storage.Get(ctx, "user/"+userID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			// unreadable profile must not grant privilege
			return rbac.RoleStudent
		}
		return rbac.RoleStudent
	}
	var profile profileRecord
	if err := json.Unmarshal(value, &profile); err != nil {
		return rbac.RoleStudent
	}
	return rbac.Normalize(profile.Role)
}
