package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sso-hub/internal/audit"
	auditrepo "sso-hub/internal/audit/repository"
	identityrepo "sso-hub/internal/identity/repository"
	"sso-hub/internal/invitation/domain"
	"sso-hub/internal/invitation/mailer"
	"sso-hub/internal/invitation/policy"
	"sso-hub/internal/invitation/repository"
	"sso-hub/internal/platform/errs"
	"sso-hub/internal/platform/logging"
	"sso-hub/internal/provisioning"
	roledomain "sso-hub/internal/role/domain"
	rolerepo "sso-hub/internal/role/repository"
	"sso-hub/internal/security"
	sessiondomain "sso-hub/internal/session/domain"
	sessionrepo "sso-hub/internal/session/repository"
	sessionservice "sso-hub/internal/session/service"
	"sso-hub/internal/user/directory"
	userrepo "sso-hub/internal/user/repository"
)

const pw = "Welcome-2026!x"

type recordingMailer struct {
	mu   sync.Mutex
	sent []mailer.Invitation
	err  error
}

func (r *recordingMailer) SendInvitation(ctx context.Context, inv mailer.Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, inv)
	return r.err
}

// failingGrantDirectory fails GrantRole so the compensation path runs.
type failingGrantDirectory struct {
	*directory.Directory
}

func (failingGrantDirectory) GrantRole(context.Context, string, roledomain.RoleType, roledomain.Scope) (bool, error) {
	return false, errors.New("role store unavailable")
}

type fixture struct {
	mgr      *Manager
	repo     *repository.MemoryRepository
	dir      *directory.Directory
	roles    *rolerepo.MemoryRepository
	sessions *sessionservice.Manager
	mail     *recordingMailer
	audit    *auditrepo.MemoryRepository
	deps     Deps
	clock    time.Time
}

func newFixture(t *testing.T, policyChoice AlreadyMemberPolicy) *fixture {
	t.Helper()
	ctx := context.Background()
	roles := rolerepo.NewMemoryRepository()
	dir := directory.New(userrepo.NewMemoryRepository(), identityrepo.NewMemoryRepository(), roles, security.NewHasher(4), logging.Discard())
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatal(err)
	}
	sessions := sessionservice.NewManager(sessionrepo.NewMemoryRepository(), security.NewCodec(), tokens, nil, nil, nil, logging.Discard(),
		sessionservice.Config{SessionTTL: time.Hour})
	domains, err := policy.NewDomainPolicy(ctx, "", []string{"corp.example"})
	if err != nil {
		t.Fatal(err)
	}
	repo := repository.NewMemoryRepository()
	mail := &recordingMailer{}
	auditRepo := auditrepo.NewMemoryRepository()
	deps := Deps{
		Repo:      repo,
		Codec:     security.NewCodec(),
		Directory: dir,
		Roles:     roles,
		Sessions:  sessions,
		Domains:   domains,
		Mailer:    mail,
		Audit:     audit.NewLogger(auditRepo, nil, logging.Discard()),
		Log:       logging.Discard(),
	}
	f := &fixture{
		mgr: NewManager(deps, policyChoice), repo: repo, dir: dir, roles: roles, sessions: sessions,
		mail: mail, audit: auditRepo, deps: deps,
		clock: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}
	f.mgr.now = func() time.Time { return f.clock }

	grant := func(user string, role roledomain.RoleType, scope roledomain.Scope) {
		if _, err := roles.Grant(ctx, roledomain.RoleAssignment{UserID: user, Role: role, Scope: scope}); err != nil {
			t.Fatal(err)
		}
	}
	grant("root", roledomain.RoleSuperAdmin, roledomain.Global())
	grant("ops", roledomain.RoleInternalAdmin, roledomain.Global())
	grant("hr-o1", roledomain.RoleClientHR, roledomain.Organization("o1"))
	grant("emp-o1", roledomain.RoleClientEmployee, roledomain.Organization("o1"))
	return f
}

func strPtr(s string) *string { return &s }

func (f *fixture) issue(t *testing.T, req IssueRequest) *Issued {
	t.Helper()
	out, err := f.mgr.Issue(context.Background(), req)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return out
}

func TestIssue_Authorization(t *testing.T) {
	f := newFixture(t, AlreadyMemberConsume)
	o1, o2 := roledomain.Organization("o1"), roledomain.Organization("o2")
	tests := []struct {
		name   string
		issuer string
		role   roledomain.RoleType
		scope  roledomain.Scope
		want   error
	}{
		{"hr in own org", "hr-o1", roledomain.RoleClientEmployee, o1, nil},
		{"hr in other org", "hr-o1", roledomain.RoleClientEmployee, o2, errs.ErrForbidden},
		{"employee cannot issue", "emp-o1", roledomain.RoleClientEmployee, o1, errs.ErrForbidden},
		{"super admin in any org", "root", roledomain.RoleClientAdmin, o2, nil},
		{"internal admin global", "ops", roledomain.RoleInternalStaff, roledomain.Global(), nil},
		{"internal admin cannot mint super admin", "ops", roledomain.RoleSuperAdmin, roledomain.Global(), errs.ErrForbidden},
		{"super admin mints super admin", "root", roledomain.RoleSuperAdmin, roledomain.Global(), nil},
		{"hr cannot issue global", "hr-o1", roledomain.RoleInternalStaff, roledomain.Global(), errs.ErrForbidden},
		{"no roles", "stranger", roledomain.RoleClientEmployee, o1, errs.ErrUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.mgr.Issue(context.Background(), IssueRequest{
				IssuerID: tt.issuer, Role: tt.role, Scope: tt.scope, MaxUses: domain.Unlimited,
			})
			if tt.want == nil && err != nil {
				t.Fatalf("Issue: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestIssue_RevocationTakesEffectImmediately(t *testing.T) {
	f := newFixture(t, AlreadyMemberConsume)
	ctx := context.Background()
	req := IssueRequest{IssuerID: "hr-o1", Role: roledomain.RoleClientEmployee,
		Scope: roledomain.Organization("o1"), MaxUses: domain.Unlimited}
	f.issue(t, req)

	if _, err := f.roles.Revoke(ctx, roledomain.RoleAssignment{UserID: "hr-o1",
		Role: roledomain.RoleClientHR, Scope: roledomain.Organization("o1")}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.mgr.Issue(ctx, req); !errors.Is(err, errs.ErrUnauthenticated) {
		t.Fatalf("err after revoke = %v, want Unauthenticated", err)
	}

	// A demotion to a lesser role is also seen by the very next call.
	if _, err := f.roles.Grant(ctx, roledomain.RoleAssignment{UserID: "hr-o1",
		Role: roledomain.RoleClientEmployee, Scope: roledomain.Organization("o1")}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.mgr.Issue(ctx, req); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("err after demotion = %v, want Forbidden", err)
	}
}

func TestIssue_ValidatesTarget(t *testing.T) {
	f := newFixture(t, AlreadyMemberConsume)
	ctx := context.Background()

	_, err := f.mgr.Issue(ctx, IssueRequest{IssuerID: "ops", TargetEmail: strPtr("dev@gmail.com"),
		Role: roledomain.RoleInternalStaff, Scope: roledomain.Global(), MaxUses: 1})
	if !errors.Is(err, errs.ErrDomainMismatch) || !errors.Is(err, errs.ErrValidationFailed) {
		t.Fatalf("err = %v, want DomainMismatch", err)
	}
	_, err = f.mgr.Issue(ctx, IssueRequest{IssuerID: "hr-o1", TargetEmail: strPtr("not-an-email"),
		Role: roledomain.RoleClientHR, Scope: roledomain.Organization("o1"), MaxUses: 1})
	if !errors.Is(err, errs.ErrValidationFailed) {
		t.Fatalf("err = %v, want ValidationFailed", err)
	}
	past := f.clock.Add(-time.Minute)
	_, err = f.mgr.Issue(ctx, IssueRequest{IssuerID: "hr-o1", Role: roledomain.RoleClientHR,
		Scope: roledomain.Organization("o1"), MaxUses: 1, ExpiresAt: &past})
	if !errors.Is(err, errs.ErrValidationFailed) {
		t.Fatalf("err = %v, want ValidationFailed", err)
	}
	_, err = f.mgr.Issue(ctx, IssueRequest{IssuerID: "hr-o1", Role: roledomain.RoleClientHR,
		Scope: roledomain.Organization("o1"), MaxUses: 0})
	if !errors.Is(err, errs.ErrValidationFailed) {
		t.Fatalf("err = %v, want ValidationFailed", err)
	}
}

func TestIssue_StoresHashAndMailsCode(t *testing.T) {
	f := newFixture(t, AlreadyMemberConsume)
	out := f.issue(t, IssueRequest{IssuerID: "hr-o1", TargetEmail: strPtr(" A@X.com "),
		Role: roledomain.RoleClientHR, Scope: roledomain.Organization("o1"), MaxUses: 1})

	if out.Code == "" || out.Invitation.CodeHash == out.Code {
		t.Fatal("raw code must be returned and only its hash stored")
	}
	if *out.Invitation.TargetEmail != "a@x.com" {
		t.Errorf("target email not normalized: %q", *out.Invitation.TargetEmail)
	}
	if len(f.mail.sent) != 1 || f.mail.sent[0].Code != out.Code || f.mail.sent[0].To != "a@x.com" {
		t.Fatalf("mail = %+v", f.mail.sent)
	}
}

func TestIssue_MailFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, AlreadyMemberConsume)
	f.mail.err = errors.New("smtp down")
	f.issue(t, IssueRequest{IssuerID: "hr-o1", TargetEmail: strPtr("a@x.com"),
		Role: roledomain.RoleClientHR, Scope: roledomain.Organization("o1"), MaxUses: 1})
}

func TestIssue_Force(t *testing.T) {
	f := newFixture(t, AlreadyMemberConsume)
	ctx := context.Background()
	req := IssueRequest{IssuerID: "hr-o1", TargetEmail: strPtr("a@x.com"),
		Role: roledomain.RoleClientHR, Scope: roledomain.Organization("o1"), MaxUses: 1}
	first := f.issue(t, req)

	if _, err := f.mgr.Issue(ctx, req); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("duplicate err = %v, want Conflict", err)
	}
	req.Force = true
	second := f.issue(t, req)

	_, err := f.mgr.Redeem(ctx, RedeemRequest{Code: first.Code, Email: "a@x.com"})
	if !errors.Is(err, errs.ErrInvalidCode) {
		t.Fatalf("redeem of replaced invitation err = %v, want InvalidCode", err)
	}
	if _, err := f.mgr.Redeem(ctx, RedeemRequest{Code: second.Code, Email: "a@x.com", Credential: strPtr(pw)}); err != nil {
		t.Fatalf("redeem of forced invitation: %v", err)
	}
}

// Shareable link with three uses: three identities join, the fourth is refused.
func TestRedeem_ShareableLinkExhausts(t *testing.T) {
	f := newFixture(t, AlreadyMemberConsume)
	ctx := context.Background()
	out := f.issue(t, IssueRequest{IssuerID: "hr-o1", Role: roledomain.RoleClientEmployee,
		Scope: roledomain.Organization("o1"), MaxUses: 3})

	for _, email := range []string{"a@x.com", "b@y.com", "c@z.com"} {
		res, err := f.mgr.Redeem(ctx, RedeemRequest{Code: out.Code, Email: email, Credential: strPtr(pw)})
		if err != nil {
			t.Fatalf("Redeem(%s): %v", email, err)
		}
		if res.Branch != BranchNewAccount || !res.RoleCreated || res.Session == nil || res.Session.RefreshToken == "" {
			t.Fatalf("Redeem(%s) = %+v", email, res)
		}
	}
	_, err := f.mgr.Redeem(ctx, RedeemRequest{Code: out.Code, Email: "d@w.com", Credential: strPtr(pw)})
	if !errors.Is(err, errs.ErrExhausted) {
		t.Fatalf("fourth redeem err = %v, want Exhausted", err)
	}
	if u, _ := f.dir.FindActiveUserByEmail(ctx, "d@w.com"); u != nil {
		t.Fatal("rejected redemption must not create a user")
	}
}

func TestRedeem_TargetedEmailMismatch(t *testing.T) {
	f := newFixture(t, AlreadyMemberConsume)
	ctx := context.Background()
	out := f.issue(t, IssueRequest{IssuerID: "hr-o1", TargetEmail: strPtr("a@x.com"),
		Role: roledomain.RoleClientHR, Scope: roledomain.Organization("o1"), MaxUses: 1})

	_, err := f.mgr.Redeem(ctx, RedeemRequest{Code: out.Code, Email: "b@x.com", Credential: strPtr(pw)})
	if !errors.Is(err, errs.ErrEmailMismatch) {
		t.Fatalf("err = %v, want EmailMismatch", err)
	}
	res, err := f.mgr.Redeem(ctx, RedeemRequest{Code: out.Code, Email: "A@X.com", Credential: strPtr(pw)})
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if res.Invitation.UsedCount != 1 || res.Invitation.Status != domain.StatusExhausted {
		t.Fatalf("invitation after redeem = %+v", res.Invitation)
	}
}

func TestRedeem_ExpiredBoundary(t *testing.T) {
	f := newFixture(t, AlreadyMemberConsume)
	exp := f.clock.Add(time.Hour)
	out := f.issue(t, IssueRequest{IssuerID: "hr-o1", Role: roledomain.RoleClientEmployee,
		Scope: roledomain.Organization("o1"), MaxUses: 5, ExpiresAt: &exp})

	f.clock = exp
	_, err := f.mgr.Redeem(context.Background(), RedeemRequest{Code: out.Code, Email: "a@x.com"})
	if !errors.Is(err, errs.ErrExpired) {
		t.Fatalf("err = %v, want Expired", err)
	}
	stored, _ := f.repo.GetByID(context.Background(), out.Invitation.ID)
	if stored.UsedCount != 0 {
		t.Fatalf("used count = %d", stored.UsedCount)
	}
}

func TestRedeem_ConcurrentSingleUse(t *testing.T) {
	f := newFixture(t, AlreadyMemberConsume)
	ctx := context.Background()
	out := f.issue(t, IssueRequest{IssuerID: "hr-o1", Role: roledomain.RoleClientEmployee,
		Scope: roledomain.Organization("o1"), MaxUses: 1})

	emails := []string{"first@x.com", "second@x.com"}
	errsOut := make([]error, len(emails))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, e := range emails {
		wg.Add(1)
		go func(i int, e string) {
			defer wg.Done()
			<-start
			_, errsOut[i] = f.mgr.Redeem(ctx, RedeemRequest{Code: out.Code, Email: e})
		}(i, e)
	}
	close(start)
	wg.Wait()

	ok, lost := 0, 0
	for _, err := range errsOut {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, errs.ErrExhausted), errors.Is(err, errs.ErrConflict):
			lost++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || lost != 1 {
		t.Fatalf("ok=%d lost=%d", ok, lost)
	}
	stored, _ := f.repo.GetByID(ctx, out.Invitation.ID)
	if stored.UsedCount != 1 {
		t.Fatalf("used count = %d, want 1", stored.UsedCount)
	}
}

func TestRedeem_AccountLinking(t *testing.T) {
	f := newFixture(t, AlreadyMemberConsume)
	ctx := context.Background()
	personalID, err := f.dir.CreateUser(ctx, "me@gmail.com", "Me", "", strPtr(pw))
	if err != nil {
		t.Fatal(err)
	}
	out := f.issue(t, IssueRequest{IssuerID: "hr-o1", TargetEmail: strPtr("me@client.com"),
		Role: roledomain.RoleClientEmployee, Scope: roledomain.Organization("o1"), MaxUses: 1})

	_, err = f.mgr.Redeem(ctx, RedeemRequest{Code: out.Code, Email: "me@client.com",
		LinkedAccountEmail: strPtr("me@gmail.com"), Credential: strPtr("wrong-password")})
	if !errors.Is(err, errs.ErrUnauthenticated) {
		t.Fatalf("wrong credential err = %v, want Unauthenticated", err)
	}

	res, err := f.mgr.Redeem(ctx, RedeemRequest{Code: out.Code, Email: "me@client.com",
		LinkedAccountEmail: strPtr("me@gmail.com"), Credential: strPtr(pw)})
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if res.Branch != BranchLinked || res.UserID != personalID {
		t.Fatalf("result = %+v", res)
	}
	u, _ := f.dir.FindActiveUserByEmail(ctx, "me@client.com")
	if u == nil || u.ID != personalID {
		t.Fatal("work email must resolve to the linked account")
	}
	if ok, _ := f.dir.HasRole(ctx, personalID, roledomain.RoleClientEmployee, roledomain.Organization("o1")); !ok {
		t.Fatal("role must be granted to the linked account")
	}
}

func TestRedeem_ExistingAccountNeedsCredential(t *testing.T) {
	f := newFixture(t, AlreadyMemberConsume)
	ctx := context.Background()
	id, _ := f.dir.CreateUser(ctx, "a@x.com", "", "", strPtr(pw))
	out := f.issue(t, IssueRequest{IssuerID: "hr-o1", Role: roledomain.RoleClientEmployee,
		Scope: roledomain.Organization("o1"), MaxUses: 2})

	if _, err := f.mgr.Redeem(ctx, RedeemRequest{Code: out.Code, Email: "a@x.com"}); !errors.Is(err, errs.ErrUnauthenticated) {
		t.Fatalf("err = %v, want Unauthenticated", err)
	}
	res, err := f.mgr.Redeem(ctx, RedeemRequest{Code: out.Code, Email: "a@x.com", Credential: strPtr(pw)})
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if res.Branch != BranchExisting || res.UserID != id || res.Invitation.UsedCount != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestRedeem_AlreadyMemberPolicies(t *testing.T) {
	for _, tt := range []struct {
		policy   AlreadyMemberPolicy
		wantUsed int
	}{
		{AlreadyMemberConsume, 1},
		{AlreadyMemberRelease, 0},
	} {
		t.Run(string(tt.policy), func(t *testing.T) {
			f := newFixture(t, tt.policy)
			ctx := context.Background()
			id, _ := f.dir.CreateUser(ctx, "a@x.com", "", "", strPtr(pw))
			if _, err := f.dir.GrantRole(ctx, id, roledomain.RoleClientEmployee, roledomain.Organization("o1")); err != nil {
				t.Fatal(err)
			}
			out := f.issue(t, IssueRequest{IssuerID: "hr-o1", Role: roledomain.RoleClientEmployee,
				Scope: roledomain.Organization("o1"), MaxUses: 3})

			res, err := f.mgr.Redeem(ctx, RedeemRequest{Code: out.Code, Email: "a@x.com", Credential: strPtr(pw)})
			if err != nil {
				t.Fatalf("Redeem: %v", err)
			}
			if res.Branch != BranchAlreadyMember || res.RoleCreated {
				t.Fatalf("result = %+v", res)
			}
			list, _ := f.roles.ListByUser(ctx, id)
			if len(list) != 1 {
				t.Fatalf("assignments = %d, want 1", len(list))
			}
			stored, _ := f.repo.GetByID(ctx, out.Invitation.ID)
			if stored.UsedCount != tt.wantUsed {
				t.Fatalf("used count = %d, want %d", stored.UsedCount, tt.wantUsed)
			}
		})
	}
}

func TestRedeem_ReleasesUseWhenResolutionFails(t *testing.T) {
	f := newFixture(t, AlreadyMemberConsume)
	deps := f.deps
	deps.Directory = failingGrantDirectory{f.dir}
	mgr := NewManager(deps, AlreadyMemberConsume)
	mgr.now = f.mgr.now

	out := f.issue(t, IssueRequest{IssuerID: "hr-o1", Role: roledomain.RoleClientEmployee,
		Scope: roledomain.Organization("o1"), MaxUses: 1})
	if _, err := mgr.Redeem(context.Background(), RedeemRequest{Code: out.Code, Email: "a@x.com"}); err == nil {
		t.Fatal("expected error")
	}
	stored, _ := f.repo.GetByID(context.Background(), out.Invitation.ID)
	if stored.UsedCount != 0 || stored.Status != domain.StatusPending {
		t.Fatalf("use not released: %+v", stored)
	}
}

func TestRedeem_ProvisioningFailureIsReported(t *testing.T) {
	f := newFixture(t, AlreadyMemberConsume)
	deps := f.deps
	var gotOrg string
	deps.Provisioner = provisioning.Func(func(ctx context.Context, userID, email, orgID string) (string, error) {
		gotOrg = orgID
		return "", errors.New("portal unreachable")
	})
	mgr := NewManager(deps, AlreadyMemberConsume)
	mgr.now = f.mgr.now

	out := f.issue(t, IssueRequest{IssuerID: "hr-o1", Role: roledomain.RoleClientEmployee,
		Scope: roledomain.Organization("o1"), MaxUses: 1})
	res, err := mgr.Redeem(context.Background(), RedeemRequest{Code: out.Code, Email: "a@x.com"})
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if res.ProvisioningErr == nil || gotOrg != "o1" {
		t.Fatalf("provisioning not reported: %+v", res)
	}
	if _, err := f.sessions.Validate(context.Background(), res.Session.Session.ID); err != nil {
		t.Fatalf("session must survive provisioning failure: %v", err)
	}
}

func TestRedeem_InternalShareableChecksDomain(t *testing.T) {
	f := newFixture(t, AlreadyMemberConsume)
	out := f.issue(t, IssueRequest{IssuerID: "ops", Role: roledomain.RoleInternalStaff,
		Scope: roledomain.Global(), MaxUses: domain.Unlimited})
	_, err := f.mgr.Redeem(context.Background(), RedeemRequest{Code: out.Code, Email: "x@gmail.com"})
	if !errors.Is(err, errs.ErrDomainMismatch) {
		t.Fatalf("err = %v, want DomainMismatch", err)
	}
	if _, err := f.mgr.Redeem(context.Background(), RedeemRequest{Code: out.Code, Email: "x@corp.example"}); err != nil {
		t.Fatalf("Redeem: %v", err)
	}
}

func TestRedeem_UnknownAndMalformed(t *testing.T) {
	f := newFixture(t, AlreadyMemberConsume)
	ctx := context.Background()
	if _, err := f.mgr.Redeem(ctx, RedeemRequest{Code: "", Email: "a@x.com"}); !errors.Is(err, errs.ErrInvalidCode) {
		t.Errorf("empty code err = %v", err)
	}
	_, err := f.mgr.Redeem(ctx, RedeemRequest{Code: "nope", Email: "a@x.com"})
	if !errors.Is(err, errs.ErrInvalidCode) || !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("unknown code err = %v", err)
	}
	found := false
	for _, a := range f.audit.Actions() {
		if a == audit.ActionRedemptionFailed {
			found = true
		}
	}
	if !found {
		t.Error("failed redemption must be audited")
	}
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string) (bool, error) { return false, nil }

func TestRedeem_RateLimited(t *testing.T) {
	f := newFixture(t, AlreadyMemberConsume)
	deps := f.deps
	deps.Limiter = denyAll{}
	mgr := NewManager(deps, AlreadyMemberConsume)
	_, err := mgr.Redeem(context.Background(), RedeemRequest{Code: "x", Email: "a@x.com", Device: sessiondomain.Device{IP: "10.0.0.1"}})
	if !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("err = %v, want Forbidden", err)
	}
}

func TestCancelAndListPending(t *testing.T) {
	f := newFixture(t, AlreadyMemberConsume)
	ctx := context.Background()
	a := f.issue(t, IssueRequest{IssuerID: "hr-o1", Role: roledomain.RoleClientEmployee, Scope: roledomain.Organization("o1"), MaxUses: 1})
	f.clock = f.clock.Add(time.Second)
	b := f.issue(t, IssueRequest{IssuerID: "hr-o1", Role: roledomain.RoleClientEmployee, Scope: roledomain.Organization("o1"), MaxUses: 1})

	if err := f.mgr.Cancel(ctx, "emp-o1", a.Invitation.ID); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("employee cancel err = %v", err)
	}
	if err := f.mgr.Cancel(ctx, "hr-o1", a.Invitation.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := f.mgr.Cancel(ctx, "hr-o1", a.Invitation.ID); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("second Cancel err = %v, want Conflict", err)
	}
	if err := f.mgr.Cancel(ctx, "hr-o1", "missing"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("missing Cancel err = %v", err)
	}
	if _, err := f.mgr.Redeem(ctx, RedeemRequest{Code: a.Code, Email: "z@x.com"}); !errors.Is(err, errs.ErrInvalidCode) {
		t.Fatalf("redeem cancelled err = %v, want InvalidCode", err)
	}

	list, err := f.mgr.ListPending(ctx, "hr-o1", roledomain.Organization("o1"))
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(list) != 1 || list[0].ID != b.Invitation.ID {
		t.Fatalf("pending = %+v", list)
	}
	if _, err := f.mgr.ListPending(ctx, "hr-o1", roledomain.Organization("o2")); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("other org err = %v", err)
	}
}

func TestParseAlreadyMemberPolicy(t *testing.T) {
	for in, want := range map[string]AlreadyMemberPolicy{"": AlreadyMemberConsume, " Release ": AlreadyMemberRelease, "consume": AlreadyMemberConsume} {
		got, err := ParseAlreadyMemberPolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseAlreadyMemberPolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseAlreadyMemberPolicy("refund"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
