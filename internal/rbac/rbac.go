// Package rbac defines the role and channel vocabulary shared by the
// authorization paths. Everything here is pure; state lives in the
// membership store.
package rbac

import "strings"

type Role string
type Channel string

const (
	RoleStudent Role = "Student"
	RoleOfficer Role = "Officer"
)

const (
	ChannelGeneral      Channel = "general"
	ChannelAnnouncement Channel = "announcement"
)

// Normalize maps arbitrary role input to one of the two known roles.
// Anything that is not exactly "Officer" (after trimming) is a Student.
func Normalize(role string) Role {
	if strings.TrimSpace(role) == string(RoleOfficer) {
		return RoleOfficer
	}
	return RoleStudent
}

// Effective combines the membership-scoped role with the global profile
// role. Officer wins regardless of which source states it.
func Effective(membership, profile Role) Role {
	if membership == RoleOfficer || profile == RoleOfficer {
		return RoleOfficer
	}
	return RoleStudent
}

// CanPost reports whether a member with the given effective role may write
// to a channel. Membership itself is the caller's responsibility to check.
func CanPost(role Role, ch Channel) bool {
	switch ch {
	case ChannelGeneral:
		return true
	case ChannelAnnouncement:
		return role == RoleOfficer
	default:
		return false
	}
}

// ValidChannel reports whether ch is one of the fixed channels every
// community carries.
func ValidChannel(ch Channel) bool {
	return ch == ChannelGeneral || ch == ChannelAnnouncement
}

// Channels returns the fixed channel set assigned to every community.
func Channels() []Channel {
	return []Channel{ChannelGeneral, ChannelAnnouncement}
}
