// Package directory maps invite codes to community records and owns the
// community lifecycle: create, lookup, join, per-user listing, delete.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"huddle/api/internal/invite"
	"huddle/api/internal/membership"
	"huddle/api/internal/rbac"
	"huddle/api/internal/storage"
)

var (
	ErrInvalidName       = errors.New("directory: community name is required")
	ErrInvalidInviteCode = errors.New("directory: invalid invite code")
	ErrNotFound          = errors.New("directory: community not found")
	ErrCodeSpaceExhausted = errors.New("directory: could not allocate an unused invite code")
)

// maxCodeAttempts bounds collision retries during create. With a 36^6 code
// space this is practically unreachable, but it must be a defined outcome.
const maxCodeAttempts = 5

// Community is the directory record. Members and messages reference it by
// code only; nothing embeds it.
type Community struct {
	Code      string         `json:"-"`
	Name      string         `json:"name"`
	CreatedBy string         `json:"createdBy"`
	Channels  []rbac.Channel `json:"channels"`
	CreatedAt int64          `json:"createdAt"`
}

// UserCommunity is one entry in a user's community listing. Role is the
// stored membership role, not the effective one.
type UserCommunity struct {
	Code string    `json:"code"`
	Name string    `json:"name"`
	Role rbac.Role `json:"role"`
}

func communityPath(code string) string {
	return "community/" + code
}

// Canonicalize maps caller-supplied invite codes to the storage key form:
// trimmed and uppercased.
func Canonicalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type Directory struct {
	storage  storage.Store
	members  *membership.Store
	generate func() string
}

func New(st storage.Store, members *membership.Store) *Directory {
	return &Directory{storage: st, members: members, generate: invite.Generate}
}

// Create allocates an unused code, persists the community with the fixed
// channel pair, and inserts the creator as its first member. If the
// membership write fails the community record is deleted again so no
// community ever exists with zero members.
func (d *Directory) Create(ctx context.Context, creatorID, name string, creatorRole rbac.Role) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName
	}

	code, err := d.allocateCode(ctx)
	if err != nil {
		return "", err
	}

	value, err := json.Marshal(Community{
		Name:      name,
		CreatedBy: creatorID,
		Channels:  rbac.Channels(),
		CreatedAt: time.Now().UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal community: %w", err)
	}
	if err := d.storage.Put(ctx, communityPath(code), value); err != nil {
		return "", err
	}

	if err := d.members.Attach(ctx, code, creatorID, rbac.Normalize(string(creatorRole))); err != nil {
		// compensate rather than leave a memberless community behind
		if delErr := d.storage.Delete(ctx, communityPath(code)); delErr != nil {
			return "", fmt.Errorf("attach creator: %v (compensating delete also failed: %w)", err, delErr)
		}
		return "", fmt.Errorf("attach creator: %w", err)
	}
	return code, nil
}

// Lookup resolves a code to its community record. Input is canonicalized, so
// lookups are case-insensitive.
func (d *Directory) Lookup(ctx context.Context, code string) (Community, error) {
	code = Canonicalize(code)
	value, err := d.storage.Get(ctx, communityPath(code))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Community{}, ErrNotFound
		}
		return Community{}, err
	}

	var community Community
	if err := json.Unmarshal(value, &community); err != nil {
		return Community{}, fmt.Errorf("decode community %s: %w", code, err)
	}
	community.Code = code
	return community, nil
}

// Join upserts a membership row for the caller. Joining again overwrites the
// stored role; the operation is idempotent, not additive.
func (d *Directory) Join(ctx context.Context, userID string, role rbac.Role, code string) error {
	code = Canonicalize(code)
	if _, err := d.Lookup(ctx, code); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidInviteCode
		}
		return err
	}
	return d.members.Attach(ctx, code, userID, role)
}

// ListForUser scans the directory and returns every community the user holds
// a membership row in, with the stored role.
func (d *Directory) ListForUser(ctx context.Context, userID string) ([]UserCommunity, error) {
	entries, err := d.storage.List(ctx, "community/")
	if err != nil {
		return nil, err
	}

	listing := []UserCommunity{}
	for _, entry := range entries {
		code := strings.TrimPrefix(entry.Path, "community/")
		member, err := d.members.Get(ctx, code, userID)
		if err != nil {
			if errors.Is(err, membership.ErrNotMember) {
				continue
			}
			return nil, err
		}
		var community Community
		if err := json.Unmarshal(entry.Value, &community); err != nil {
			continue
		}
		listing = append(listing, UserCommunity{Code: code, Name: community.Name, Role: member.Role})
	}
	return listing, nil
}

// Delete removes the community record, its membership rows, and its message
// history. Authorization happens in the service layer via CanDelete.
func (d *Directory) Delete(ctx context.Context, code string) error {
	code = Canonicalize(code)
	if _, err := d.Lookup(ctx, code); err != nil {
		return err
	}

	messages, err := d.storage.List(ctx, "message/"+code+"/")
	if err != nil {
		return err
	}
	for _, entry := range messages {
		if err := d.storage.Delete(ctx, entry.Path); err != nil {
			return err
		}
	}
	if err := d.members.DetachAll(ctx, code); err != nil {
		return err
	}
	return d.storage.Delete(ctx, communityPath(code))
}

func (d *Directory) allocateCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := d.generate()
		_, err := d.storage.Get(ctx, communityPath(code))
		if errors.Is(err, storage.ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", ErrCodeSpaceExhausted
}
