// Package membership owns the durable community → member → role mapping and
// every authorization decision derived from it.
package membership

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"huddle/api/internal/rbac"
	"huddle/api/internal/storage"
)

var (
	ErrNotMember   = errors.New("membership: not a member")
	ErrWriteDenied = errors.New("membership: write denied")
	ErrSelfKick    = errors.New("membership: cannot kick yourself")
)

// Membership is one member's row in one community.
type Membership struct {
	Community string    `json:"-"`
	UserID    string    `json:"-"`
	Role      rbac.Role `json:"role"`
}

// record is the stored shape; only the role persists, matching the
// member/{code}/{uid} path carrying the rest.
type record struct {
	Role string `json:"role"`
}

func memberPath(community, userID string) string {
	return "member/" + community + "/" + userID
}

func memberPrefix(community string) string {
	return "member/" + community + "/"
}

// Store reads and writes membership rows. Each row is a single storage key,
// so concurrent changes to different members never contend.
type Store struct {
	storage storage.Store
}

func NewStore(st storage.Store) *Store {
	return &Store{storage: st}
}

// Attach upserts the (community, user) row with a normalized role. Rejoining
// overwrites the stored role; last write wins.
func (s *Store) Attach(ctx context.Context, community, userID string, role rbac.Role) error {
	value, err := json.Marshal(record{Role: string(rbac.Normalize(string(role)))})
	if err != nil {
		return fmt.Errorf("marshal membership: %w", err)
	}
	return s.storage.Put(ctx, memberPath(community, userID), value)
}

// Detach removes the row. Detaching a non-member reports ErrNotMember.
func (s *Store) Detach(ctx context.Context, community, userID string) error {
	if _, err := s.storage.Get(ctx, memberPath(community, userID)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotMember
		}
		return err
	}
	return s.storage.Delete(ctx, memberPath(community, userID))
}

// Get returns the stored membership row. A row with a blank or malformed
// role reads as Student; a missing row is ErrNotMember.
func (s *Store) Get(ctx context.Context, community, userID string) (Membership, error) {
	value, err := s.storage.Get(ctx, memberPath(community, userID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Membership{}, ErrNotMember
		}
		return Membership{}, err
	}
	return decodeMembership(community, userID, value), nil
}

// ListMembers returns every row for the community, path-ascending.
func (s *Store) ListMembers(ctx context.Context, community string) ([]Membership, error) {
	entries, err := s.storage.List(ctx, memberPrefix(community))
	if err != nil {
		return nil, err
	}
	members := make([]Membership, 0, len(entries))
	for _, entry := range entries {
		userID := strings.TrimPrefix(entry.Path, memberPrefix(community))
		members = append(members, decodeMembership(community, userID, entry.Value))
	}
	return members, nil
}

// Subscribe delivers the community's current member set after every
// membership change. Snapshots are re-read on each event, so delivery is
// at-least-once and converges on the latest state.
func (s *Store) Subscribe(ctx context.Context, community string, fn func([]Membership)) (storage.CancelFunc, error) {
	return s.storage.Watch(ctx, memberPrefix(community), func(storage.Event) {
		members, err := s.ListMembers(ctx, community)
		if err != nil {
			return
		}
		fn(members)
	})
}

// DetachAll removes every membership row for the community. Used when a
// community is deleted.
func (s *Store) DetachAll(ctx context.Context, community string) error {
	entries, err := s.storage.List(ctx, memberPrefix(community))
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := s.storage.Delete(ctx, entry.Path); err != nil {
			return err
		}
	}
	return nil
}

func decodeMembership(community, userID string, value []byte) Membership {
	var rec record
	_ = json.Unmarshal(value, &rec) // malformed rows read as Student
	role := rbac.RoleStudent
	if strings.TrimSpace(rec.Role) == string(rbac.RoleOfficer) {
		role = rbac.RoleOfficer
	}
	return Membership{Community: community, UserID: userID, Role: role}
}
