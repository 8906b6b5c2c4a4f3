package audit

import "testing"

func TestParseFullMethod(t *testing.T) {
	tests := []struct {
		fullMethod string
		action     string
		resource   string
	}{
		{"/sso.session.v1.SessionService/GetSession", "get", "session"},
		{"/sso.session.v1.SessionService/ListSessions", "list", "session"},
		{"/sso.session.v1.SessionService/RefreshToken", "rotate", "session"},
		{"/sso.session.v1.SessionService/RevokeFamily", "revoke", "session"},
		{"/sso.invitation.v1.InvitationService/IssueInvitation", "issue", "invitation"},
		{"/sso.invitation.v1.InvitationService/Redeem", "redeem", "invitation"},
		{"/sso.invitation.v1.InvitationService/CancelInvitation", "cancel", "invitation"},
		{"/sso.role.v1.RoleAssignmentService/GrantRole", "grant", "roleAssignment"},
		{"/sso.auth.v1.AuthService/Login", "login", "auth"},
		{"/sso.auth.v1.AuthService/Get", "get", "auth"},
		{"/NoDots/Method", "method", "unknown"},
		{"no-slash", "unknown", "unknown"},
		{"/sso.v1.Service/Ping", "ping", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.fullMethod, func(t *testing.T) {
			ar := ParseFullMethod(tt.fullMethod)
			if ar.Action != tt.action {
				t.Errorf("action = %q, want %q", ar.Action, tt.action)
			}
			if ar.Resource != tt.resource {
				t.Errorf("resource = %q, want %q", ar.Resource, tt.resource)
			}
		})
	}
}
