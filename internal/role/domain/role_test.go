package domain

import (
	"testing"
)

func TestParseRoleType_Normalizes(t *testing.T) {
	tests := []struct {
		in   string
		want RoleType
	}{
		{"client_hr", RoleClientHR},
		{"  Client_HR ", RoleClientHR},
		{"CLIENT-EMPLOYEE", RoleClientEmployee},
		{"super admin", RoleSuperAdmin},
		{"Internal_Staff", RoleInternalStaff},
	}
	for _, tt := range tests {
		got, err := ParseRoleType(tt.in)
		if err != nil {
			t.Errorf("ParseRoleType(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRoleType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseRoleType_Unknown(t *testing.T) {
	for _, in := range []string{"", "root", "client"} {
		if _, err := ParseRoleType(in); err != ErrUnknownRole {
			t.Errorf("ParseRoleType(%q): want ErrUnknownRole, got %v", in, err)
		}
	}
}

func TestRoleType_Class(t *testing.T) {
	if RoleSuperAdmin.Class() != ClassInternal || RoleInternalStaff.Class() != ClassInternal {
		t.Error("internal roles should have ClassInternal")
	}
	if RoleClientEmployee.Class() != ClassOrganization || RoleClientHR.Class() != ClassOrganization {
		t.Error("client roles should have ClassOrganization")
	}
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope("Organization", "org-1")
	if err != nil {
		t.Fatalf("ParseScope: %v", err)
	}
	if s != Organization("org-1") {
		t.Errorf("ParseScope = %+v", s)
	}
	if _, err := ParseScope("global", "org-1"); err == nil {
		t.Error("global scope with entity should fail")
	}
	if _, err := ParseScope("organization", ""); err == nil {
		t.Error("organization scope without entity should fail")
	}
	if _, err := ParseScope("tenant", "x"); err == nil {
		t.Error("unknown kind should fail")
	}
}

func TestRoleAssignment_Key(t *testing.T) {
	a := RoleAssignment{UserID: "u1", Role: RoleClientHR, Scope: Organization("o1")}
	b := RoleAssignment{UserID: "u1", Role: RoleClientHR, Scope: Organization("o2")}
	if a.Key() == b.Key() {
		t.Error("different scope entities must have different keys")
	}
	if a.Key() != (RoleAssignment{UserID: "u1", Role: RoleClientHR, Scope: Organization("o1")}).Key() {
		t.Error("identical tuples must share a key")
	}
}
