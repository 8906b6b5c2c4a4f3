// Package policy decides which email addresses may receive an invitation for a role class.
// The rule is an OPA Rego module evaluated in process against the configured internal domains.
package policy

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"sso-hub/internal/platform/errs"
	roledomain "sso-hub/internal/role/domain"
	userdomain "sso-hub/internal/user/domain"
)

const (
	defaultQuery = "data.sso.invitation.email_allowed"
	// decisionCacheSize bounds the memoized (role, email) decisions.
	decisionCacheSize = 4096
)

// DefaultRego allows organization roles for any address and internal roles only for addresses on
// one of input.internal_domains or a subdomain of one.
const DefaultRego = `package sso.invitation

default email_allowed := false

email_allowed if {
	input.role_class == "organization"
}

email_allowed if {
	input.role_class == "internal"
	some d in input.internal_domains
	input.domain == d
}

email_allowed if {
	input.role_class == "internal"
	some d in input.internal_domains
	endswith(input.domain, concat("", [".", d]))
}
`

// DomainPolicy evaluates the email-domain rule. The module and domains are fixed at construction,
// so a decision depends only on (role, email) and is memoized in an LRU.
type DomainPolicy struct {
	query     rego.PreparedEvalQuery
	domains   []string
	decisions *lru.Cache[string, bool]
}

// NewDomainPolicy compiles module (DefaultRego when empty) and binds it to internalDomains.
// Domains are normalized to lower case without a leading "@".
func NewDomainPolicy(ctx context.Context, module string, internalDomains []string) (*DomainPolicy, error) {
	if strings.TrimSpace(module) == "" {
		module = DefaultRego
	}
	compiler, err := ast.CompileModules(map[string]string{"email_domain.rego": module})
	if err != nil {
		return nil, fmt.Errorf("compile email domain policy: %w", err)
	}
	query, err := rego.New(rego.Query(defaultQuery), rego.Compiler(compiler)).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare email domain policy: %w", err)
	}
	decisions, err := lru.New[string, bool](decisionCacheSize)
	if err != nil {
		return nil, err
	}
	return &DomainPolicy{query: query, domains: NormalizeDomains(internalDomains), decisions: decisions}, nil
}

// NormalizeDomains lower-cases, trims and de-duplicates domains, dropping empty entries.
func NormalizeDomains(domains []string) []string {
	seen := make(map[string]bool, len(domains))
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "@")
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}

// Check returns DomainMismatch when email may not hold role. email must already be normalized.
// Evaluation failures are returned unclassified; callers fail closed on them.
func (p *DomainPolicy) Check(ctx context.Context, role roledomain.RoleType, email string) error {
	allowed, err := p.Allowed(ctx, role, email)
	if err != nil {
		return err
	}
	if !allowed {
		return errs.New(errs.KindDomainMismatch, "email domain not allowed for role")
	}
	return nil
}

// Allowed reports whether email may hold role. Evaluation errors are not cached.
func (p *DomainPolicy) Allowed(ctx context.Context, role roledomain.RoleType, email string) (bool, error) {
	key := string(role) + "\x00" + email
	if allowed, ok := p.decisions.Get(key); ok {
		return allowed, nil
	}
	allowed, err := p.evaluate(ctx, role, email)
	if err != nil {
		return false, err
	}
	p.decisions.Add(key, allowed)
	return allowed, nil
}

func (p *DomainPolicy) evaluate(ctx context.Context, role roledomain.RoleType, email string) (bool, error) {
	input := map[string]interface{}{
		"role":             string(role),
		"role_class":       string(role.Class()),
		"email":            email,
		"domain":           userdomain.EmailDomain(email),
		"internal_domains": p.domains,
	}
	rs, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("eval email domain policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allowed, _ := rs[0].Expressions[0].Value.(bool)
	return allowed, nil
}

// HealthCheck verifies the prepared query evaluates, bypassing the decision cache.
func (p *DomainPolicy) HealthCheck(ctx context.Context) error {
	_, err := p.evaluate(ctx, roledomain.RoleClientEmployee, "health@example.com")
	return err
}
