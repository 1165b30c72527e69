package rbac

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want Role
	}{
		{"Officer", RoleOfficer},
		{"  Officer  ", RoleOfficer},
		{"officer", RoleStudent},
		{"OFFICER", RoleStudent},
		{"Student", RoleStudent},
		{"", RoleStudent},
		{"admin", RoleStudent},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEffective(t *testing.T) {
	cases := []struct {
		membership, profile, want Role
	}{
		{RoleStudent, RoleStudent, RoleStudent},
		{RoleOfficer, RoleStudent, RoleOfficer},
		{RoleStudent, RoleOfficer, RoleOfficer},
		{RoleOfficer, RoleOfficer, RoleOfficer},
	}
	for _, tc := range cases {
		if got := Effective(tc.membership, tc.profile); got != tc.want {
			t.Errorf("Effective(%q, %q) = %q, want %q", tc.membership, tc.profile, got, tc.want)
		}
	}
}

func TestCanPost(t *testing.T) {
	if !CanPost(RoleStudent, ChannelGeneral) {
		t.Error("students should post to general")
	}
	if CanPost(RoleStudent, ChannelAnnouncement) {
		t.Error("students must not post to announcement")
	}
	if !CanPost(RoleOfficer, ChannelAnnouncement) {
		t.Error("officers should post to announcement")
	}
	if CanPost(RoleOfficer, "random") {
		t.Error("unknown channels are never writable")
	}
}
