package membership

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"apseq/cmd/internal/access"
	"apseq/cmd/internal/pagination"
)

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

type fakeProjects map[string]ProjectInfo

func (f fakeProjects) ProjectInfo(_ context.Context, projectID string) (ProjectInfo, error) {
	p, ok := f[projectID]
	if !ok {
		return ProjectInfo{}, ErrProjectNotFound
	}
	return p, nil
}

type fakeUsers struct {
	byID    map[string]UserRef
	byEmail map[string]UserRef
}

func newFakeUsers(refs ...UserRef) *fakeUsers {
	f := &fakeUsers{byID: map[string]UserRef{}, byEmail: map[string]UserRef{}}
	for _, r := range refs {
		f.byID[r.ID] = r
		f.byEmail[strings.ToLower(r.Email)] = r
	}
	return f
}

func (f *fakeUsers) UserRefByID(_ context.Context, id string) (UserRef, error) {
	r, ok := f.byID[id]
	if !ok {
		return UserRef{}, ErrUserNotFound
	}
	return r, nil
}

func (f *fakeUsers) UserRefByEmail(_ context.Context, email string) (UserRef, error) {
	r, ok := f.byEmail[strings.ToLower(email)]
	if !ok {
		return UserRef{}, ErrUserNotFound
	}
	return r, nil
}

// plainVerifier treats a stored hash "plain:<key>" as matching <key>.
type plainVerifier struct{}

func (plainVerifier) Verify(encodedHash, secret string) (bool, error) {
	return encodedHash == "plain:"+secret, nil
}

type env struct {
	svc      *Service
	store    *MemoryStore
	sessions *access.MemoryStore
	projects fakeProjects
	users    *fakeUsers
}

func newEnv(t *testing.T) *env {
	t.Helper()

	projects := fakeProjects{
		"proj-1": {
			ID:            "proj-1",
			Name:          "Atlas",
			PublicCode:    "APSQ-0A1B2C3D",
			RootOwnerID:   "root-1",
			AccessKeyHash: "plain:secret1",
			CreatedAt:     testNow.Add(-48 * time.Hour),
		},
	}
	users := newFakeUsers(
		UserRef{ID: "root-1", Email: "root@example.com"},
		UserRef{ID: "user-a", Email: "a@example.com"},
		UserRef{ID: "user-b", Email: "b@example.com"},
		UserRef{ID: "user-c", Email: "c@example.com"},
	)

	sessions := access.NewMemoryStore()
	granter, err := access.NewService(access.DefaultConfig(), sessions)
	if err != nil {
		t.Fatalf("access service: %v", err)
	}

	store := NewMemoryStore(projects, granter)
	return &env{
		svc:      NewService(store, projects, users, plainVerifier{}),
		store:    store,
		sessions: sessions,
		projects: projects,
		users:    users,
	}
}

// seedAccepted inserts an accepted membership directly at the store layer.
func (e *env) seedAccepted(t *testing.T, userID string, role Role) Membership {
	t.Helper()

	joined := testNow.Add(-time.Hour)
	m, err := e.store.Create(context.Background(), Membership{
		ID:        "mem-" + userID,
		ProjectID: "proj-1",
		UserID:    userID,
		Role:      role,
		Status:    StatusAccepted,
		InvitedAt: testNow.Add(-2 * time.Hour),
		JoinedAt:  &joined,
	})
	if err != nil {
		t.Fatalf("seed membership: %v", err)
	}
	return m
}

func TestInvite_CreatesPending(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	m, err := e.svc.Invite(ctx, InviteInput{
		ProjectID:   "proj-1",
		InviterID:   "root-1",
		TargetEmail: "b@example.com",
		Now:         testNow,
	})
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if m.Status != StatusPending {
		t.Fatalf("status = %q, want pending", m.Status)
	}
	if m.Role != RoleUser {
		t.Fatalf("role = %q, want default user", m.Role)
	}
	if m.UserID != "user-b" {
		t.Fatalf("user = %q, want user-b", m.UserID)
	}
	if m.InvitedBy == nil || *m.InvitedBy != "root-1" {
		t.Fatalf("invited_by = %v, want root-1", m.InvitedBy)
	}
	if m.JoinedAt != nil {
		t.Fatalf("joined_at set on pending invitation")
	}
}

func TestInvite_AcceptedAdminMayInvite(t *testing.T) {
	e := newEnv(t)
	e.seedAccepted(t, "user-a", RoleAdmin)

	_, err := e.svc.Invite(context.Background(), InviteInput{
		ProjectID:    "proj-1",
		InviterID:    "user-a",
		TargetUserID: "user-b",
		Role:         RoleAdmin,
		Now:          testNow,
	})
	if err != nil {
		t.Fatalf("Invite by admin: %v", err)
	}
}

func TestInvite_Forbidden(t *testing.T) {
	e := newEnv(t)
	e.seedAccepted(t, "user-a", RoleUser)

	cases := []struct {
		name    string
		inviter string
	}{
		{"user role member", "user-a"},
		{"non-member", "user-c"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.svc.Invite(context.Background(), InviteInput{
				ProjectID:    "proj-1",
				InviterID:    tc.inviter,
				TargetUserID: "user-b",
				Now:          testNow,
			})
			if !errors.Is(err, ErrForbidden) {
				t.Fatalf("err = %v, want ErrForbidden", err)
			}
		})
	}
}

func TestInvite_Conflicts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seedAccepted(t, "user-a", RoleUser)

	if _, err := e.svc.Invite(ctx, InviteInput{
		ProjectID: "proj-1", InviterID: "root-1", TargetUserID: "user-a", Now: testNow,
	}); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("accepted member: err = %v, want ErrAlreadyMember", err)
	}

	if _, err := e.svc.Invite(ctx, InviteInput{
		ProjectID: "proj-1", InviterID: "root-1", TargetUserID: "root-1", Now: testNow,
	}); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("root owner target: err = %v, want ErrAlreadyMember", err)
	}

	if _, err := e.svc.Invite(ctx, InviteInput{
		ProjectID: "proj-1", InviterID: "root-1", TargetUserID: "user-b", Now: testNow,
	}); err != nil {
		t.Fatalf("first invite: %v", err)
	}
	if _, err := e.svc.Invite(ctx, InviteInput{
		ProjectID: "proj-1", InviterID: "root-1", TargetUserID: "user-b", Now: testNow,
	}); !errors.Is(err, ErrInvitationPending) {
		t.Fatalf("second invite: err = %v, want ErrInvitationPending", err)
	}
}

func TestInvite_UnknownTarget(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.Invite(context.Background(), InviteInput{
		ProjectID:   "proj-1",
		InviterID:   "root-1",
		TargetEmail: "ghost@example.com",
		Now:         testNow,
	})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestAccept_WrongKeyStaysPending(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	inv, err := e.svc.Invite(ctx, InviteInput{
		ProjectID: "proj-1", InviterID: "root-1", TargetUserID: "user-b", Now: testNow,
	})
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}

	_, err = e.svc.Accept(ctx, AcceptInput{
		MembershipID: inv.ID, InviteeID: "user-b", AccessKey: "wrong", Now: testNow,
	})
	if !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("err = %v, want ErrInvalidCredential", err)
	}

	m, err := e.store.Get(ctx, inv.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if m.Status != StatusPending {
		t.Fatalf("status = %q, want pending after failed accept", m.Status)
	}
	if _, err := e.sessions.Get(ctx, "user-b", "proj-1"); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("session err = %v, want access.ErrNotFound", err)
	}
}

func TestAccept_FlipsStatusAndGrantsSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	inv, err := e.svc.Invite(ctx, InviteInput{
		ProjectID: "proj-1", InviterID: "root-1", TargetUserID: "user-b", Now: testNow,
	})
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}

	accepted, err := e.svc.Accept(ctx, AcceptInput{
		MembershipID: inv.ID, InviteeID: "user-b", AccessKey: "secret1", Now: testNow,
	})
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if accepted.Status != StatusAccepted {
		t.Fatalf("status = %q, want accepted", accepted.Status)
	}
	if accepted.JoinedAt == nil || !accepted.JoinedAt.Equal(testNow) {
		t.Fatalf("joined_at = %v, want %v", accepted.JoinedAt, testNow)
	}

	sess, err := e.sessions.Get(ctx, "user-b", "proj-1")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if want := testNow.Add(24 * time.Hour); !sess.ExpiresAt.Equal(want) {
		t.Fatalf("session expiry = %v, want %v", sess.ExpiresAt, want)
	}
}

func TestAccept_OnlyInvitee(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	inv, err := e.svc.Invite(ctx, InviteInput{
		ProjectID: "proj-1", InviterID: "root-1", TargetUserID: "user-b", Now: testNow,
	})
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}

	_, err = e.svc.Accept(ctx, AcceptInput{
		MembershipID: inv.ID, InviteeID: "user-c", AccessKey: "secret1", Now: testNow,
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestAccept_NotPending(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	inv, err := e.svc.Invite(ctx, InviteInput{
		ProjectID: "proj-1", InviterID: "root-1", TargetUserID: "user-b", Now: testNow,
	})
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if _, err := e.svc.Accept(ctx, AcceptInput{
		MembershipID: inv.ID, InviteeID: "user-b", AccessKey: "secret1", Now: testNow,
	}); err != nil {
		t.Fatalf("first accept: %v", err)
	}

	_, err = e.svc.Accept(ctx, AcceptInput{
		MembershipID: inv.ID, InviteeID: "user-b", AccessKey: "secret1", Now: testNow,
	})
	if !errors.Is(err, ErrNotPending) {
		t.Fatalf("err = %v, want ErrNotPending", err)
	}
}

func TestReject_DeletesAndAllowsReinvite(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	inv, err := e.svc.Invite(ctx, InviteInput{
		ProjectID: "proj-1", InviterID: "root-1", TargetUserID: "user-b", Now: testNow,
	})
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}

	if err := e.svc.Reject(ctx, inv.ID, "user-c"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger reject: err = %v, want ErrForbidden", err)
	}
	if err := e.svc.Reject(ctx, inv.ID, "user-b"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if _, err := e.store.Get(ctx, inv.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("row survived reject: err = %v", err)
	}

	if _, err := e.svc.Invite(ctx, InviteInput{
		ProjectID: "proj-1", InviterID: "root-1", TargetUserID: "user-b", Now: testNow.Add(time.Minute),
	}); err != nil {
		t.Fatalf("re-invite after reject: %v", err)
	}
}

func TestChangeRole_RootOnly(t *testing.T) {
	e := newEnv(t)
	a := e.seedAccepted(t, "user-a", RoleAdmin)
	b := e.seedAccepted(t, "user-b", RoleUser)

	if _, err := e.svc.ChangeRole(context.Background(), b.ID, "user-a", RoleAdmin); !errors.Is(err, ErrForbidden) {
		t.Fatalf("admin changing roles: err = %v, want ErrForbidden", err)
	}
	if _, err := e.svc.ChangeRole(context.Background(), a.ID, "root-1", RoleAdmin); err != nil {
		t.Fatalf("no-op role change: %v", err)
	}
}

func TestChangeRole_LastAdmin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.seedAccepted(t, "user-a", RoleAdmin)
	b := e.seedAccepted(t, "user-b", RoleUser)

	// Sole accepted admin cannot be demoted.
	if _, err := e.svc.ChangeRole(ctx, a.ID, "root-1", RoleUser); !errors.Is(err, ErrLastAdmin) {
		t.Fatalf("err = %v, want ErrLastAdmin", err)
	}

	// After promoting a second admin, the original demotion goes through.
	if _, err := e.svc.ChangeRole(ctx, b.ID, "root-1", RoleAdmin); err != nil {
		t.Fatalf("promote: %v", err)
	}
	demoted, err := e.svc.ChangeRole(ctx, a.ID, "root-1", RoleUser)
	if err != nil {
		t.Fatalf("demote: %v", err)
	}
	if demoted.Role != RoleUser {
		t.Fatalf("role = %q, want user", demoted.Role)
	}
}

func TestChangeRole_PendingNotAllowed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	inv, err := e.svc.Invite(ctx, InviteInput{
		ProjectID: "proj-1", InviterID: "root-1", TargetUserID: "user-b", Now: testNow,
	})
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if _, err := e.svc.ChangeRole(ctx, inv.ID, "root-1", RoleAdmin); !errors.Is(err, ErrNotAccepted) {
		t.Fatalf("err = %v, want ErrNotAccepted", err)
	}
}

func TestRevoke(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.seedAccepted(t, "user-a", RoleAdmin)
	b := e.seedAccepted(t, "user-b", RoleUser)

	if err := e.svc.Revoke(ctx, b.ID, "user-a"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("admin revoking: err = %v, want ErrForbidden", err)
	}
	if err := e.svc.Revoke(ctx, a.ID, "root-1"); !errors.Is(err, ErrLastAdmin) {
		t.Fatalf("revoke sole admin: err = %v, want ErrLastAdmin", err)
	}
	if err := e.svc.Revoke(ctx, b.ID, "root-1"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := e.store.Get(ctx, b.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("row survived revoke: err = %v", err)
	}
}

func TestEffectiveRole(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seedAccepted(t, "user-a", RoleAdmin)
	if _, err := e.svc.Invite(ctx, InviteInput{
		ProjectID: "proj-1", InviterID: "root-1", TargetUserID: "user-b", Now: testNow,
	}); err != nil {
		t.Fatalf("Invite: %v", err)
	}

	cases := []struct {
		user string
		want EffectiveRole
	}{
		{"root-1", EffectiveRootAdmin},
		{"user-a", EffectiveAdmin},
		{"user-b", EffectiveNone}, // pending confers nothing
		{"user-c", EffectiveNone},
	}
	for _, tc := range cases {
		got, err := e.svc.EffectiveRole(ctx, tc.user, "proj-1")
		if err != nil {
			t.Fatalf("EffectiveRole(%s): %v", tc.user, err)
		}
		if got != tc.want {
			t.Errorf("EffectiveRole(%s) = %q, want %q", tc.user, got, tc.want)
		}
	}
}

func TestEffectiveRoleCapabilities(t *testing.T) {
	cases := []struct {
		role                    EffectiveRole
		invite, manage, compose bool
	}{
		{EffectiveRootAdmin, true, true, true},
		{EffectiveAdmin, true, false, true},
		{EffectiveUser, false, false, false},
		{EffectiveNone, false, false, false},
	}
	for _, tc := range cases {
		if got := tc.role.CanInvite(); got != tc.invite {
			t.Errorf("%s.CanInvite() = %v, want %v", tc.role, got, tc.invite)
		}
		if got := tc.role.CanManageMembers(); got != tc.manage {
			t.Errorf("%s.CanManageMembers() = %v, want %v", tc.role, got, tc.manage)
		}
		if got := tc.role.CanCompose(); got != tc.compose {
			t.Errorf("%s.CanCompose() = %v, want %v", tc.role, got, tc.compose)
		}
	}
}

func TestListMembers(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seedAccepted(t, "user-a", RoleAdmin)

	for i, target := range []string{"user-b", "user-c"} {
		if _, err := e.svc.Invite(ctx, InviteInput{
			ProjectID:    "proj-1",
			InviterID:    "root-1",
			TargetUserID: target,
			Now:          testNow.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("Invite %s: %v", target, err)
		}
	}

	page, err := e.svc.ListMembers(ctx, "proj-1", "user-a", pagination.Request{Limit: 2})
	if err != nil {
		t.Fatalf("ListMembers: %v", err)
	}
	if len(page.Items) != 2 || !page.HasMore {
		t.Fatalf("page = %d items, has_more=%v; want 2 items with more", len(page.Items), page.HasMore)
	}
	if page.Items[0].UserID != "user-c" {
		t.Fatalf("first item user = %q, want newest invitation first", page.Items[0].UserID)
	}

	cur, err := pagination.Decode(page.NextCursor)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	rest, err := e.svc.ListMembers(ctx, "proj-1", "user-a", pagination.Request{Cursor: &cur, Limit: 2})
	if err != nil {
		t.Fatalf("ListMembers page 2: %v", err)
	}
	if len(rest.Items) != 1 || rest.HasMore {
		t.Fatalf("page 2 = %d items, has_more=%v; want final single item", len(rest.Items), rest.HasMore)
	}

	if _, err := e.svc.ListMembers(ctx, "proj-1", "ghost", pagination.Request{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-member listing: err = %v, want ErrForbidden", err)
	}
}

func TestListPendingForUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.projects["proj-2"] = ProjectInfo{
		ID:            "proj-2",
		Name:          "Borealis",
		PublicCode:    "APSQ-11223344",
		RootOwnerID:   "root-1",
		AccessKeyHash: "plain:secret2",
		CreatedAt:     testNow.Add(-24 * time.Hour),
	}

	for _, projectID := range []string{"proj-1", "proj-2"} {
		if _, err := e.svc.Invite(ctx, InviteInput{
			ProjectID: projectID, InviterID: "root-1", TargetUserID: "user-b", Now: testNow,
		}); err != nil {
			t.Fatalf("Invite into %s: %v", projectID, err)
		}
	}

	page, err := e.svc.ListPendingForUser(ctx, "user-b", pagination.Request{})
	if err != nil {
		t.Fatalf("ListPendingForUser: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(page.Items))
	}
	// proj-2 is the newer project.
	if page.Items[0].ProjectName != "Borealis" {
		t.Fatalf("first invitation project = %q, want newest project first", page.Items[0].ProjectName)
	}
	if page.Items[0].ProjectCode == "" {
		t.Fatalf("invitation missing project code")
	}
}
