package audit

import "strings"

// ActionResource holds action and resource derived from a gRPC full method name.
type ActionResource struct {
	Action   string
	Resource string
}

// ParseFullMethod returns action and resource for a gRPC full method (e.g. /sso.invitation.v1.InvitationService/Redeem).
// Action is a verb: get, list, create, issue, redeem, rotate, revoke, cancel, or a lowercase method name for others.
// Resource is derived from the service name (e.g. InvitationService -> invitation).
func ParseFullMethod(fullMethod string) ActionResource {
	// fullMethod format: /pkg.name.v1.ServiceName/MethodName
	slash := strings.LastIndex(fullMethod, "/")
	if slash < 0 {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	method := fullMethod[slash+1:]
	beforeSlash := fullMethod[:slash]
	dot := strings.LastIndex(beforeSlash, ".")
	if dot < 0 {
		return ActionResource{Action: strings.ToLower(method), Resource: "unknown"}
	}
	serviceName := beforeSlash[dot+1:]
	return ActionResource{Action: methodToAction(method), Resource: serviceToResource(serviceName)}
}

func serviceToResource(serviceName string) string {
	// SessionService -> session, RoleAssignmentService -> roleAssignment
	s := strings.TrimSuffix(serviceName, "Service")
	if s == "" {
		return "unknown"
	}
	return strings.ToLower(s[0:1]) + s[1:]
}

var actionPrefixes = []struct{ prefix, action string }{
	{"List", "list"},
	{"Create", "create"},
	{"Update", "update"},
	{"Delete", "delete"},
	{"Issue", "issue"},
	{"Redeem", "redeem"},
	{"Rotate", "rotate"},
	{"Refresh", "rotate"},
	{"Revoke", "revoke"},
	{"Cancel", "cancel"},
	{"Grant", "grant"},
	{"Logout", "logout"},
}

func methodToAction(method string) string {
	if strings.HasPrefix(method, "Get") && method != "Get" {
		return "get"
	}
	for _, p := range actionPrefixes {
		if strings.HasPrefix(method, p.prefix) {
			return p.action
		}
	}
	return strings.ToLower(method)
}
