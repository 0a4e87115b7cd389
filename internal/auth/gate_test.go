package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/authgate/internal/model"
	"github.com/hitoshi/authgate/internal/repository"
)

func signInForTest(t *testing.T, svc *Service) *model.Session {
	t.Helper()
	_, session, err := svc.SignIn(context.Background(), SignInInput{}, ClientInfo{})
	if err != nil {
		t.Fatalf("SignIn: unexpected error: %v", err)
	}
	return session
}

func TestResolve_EmptyToken(t *testing.T) {
	repo := &mockSessionRepo{
		findByTokenHashFn: func(_ context.Context, _ string) (*model.Session, error) {
			t.Error("store should not be queried for empty token")
			return nil, nil
		},
	}
	svc := newTestService(&mockIdentityStore{}, repo)

	result, err := svc.Resolve(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsAuthenticated() {
		t.Error("expected unauthenticated")
	}
}

func TestResolve_UnknownToken(t *testing.T) {
	svc := newTestService(&mockIdentityStore{}, repository.NewMemorySessionRepo())

	result, err := svc.Resolve(context.Background(), "not-a-real-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.State != model.Unauthenticated {
		t.Errorf("State = %v, want unauthenticated", result.State)
	}
}

func TestResolve_ValidSession(t *testing.T) {
	svc := newTestService(&mockIdentityStore{}, repository.NewMemorySessionRepo())
	session := signInForTest(t, svc)

	result, err := svc.Resolve(context.Background(), session.Token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsAuthenticated() {
		t.Fatal("expected authenticated")
	}
	if result.User.ID != "user-1" {
		t.Errorf("User.ID = %q, want %q", result.User.ID, "user-1")
	}
	if result.Session.ID != session.ID {
		t.Errorf("Session.ID = %q, want %q", result.Session.ID, session.ID)
	}
}

func TestResolve_IsRepeatable(t *testing.T) {
	svc := newTestService(&mockIdentityStore{}, repository.NewMemorySessionRepo())
	session := signInForTest(t, svc)

	for i := 0; i < 3; i++ {
		result, err := svc.Resolve(context.Background(), session.Token)
		if err != nil {
			t.Fatalf("Resolve #%d: unexpected error: %v", i+1, err)
		}
		if !result.IsAuthenticated() {
			t.Fatalf("Resolve #%d: expected authenticated", i+1)
		}
	}
}

func TestResolve_ExpiredSessionIsPurged(t *testing.T) {
	repo := repository.NewMemorySessionRepo()
	svc := newTestService(&mockIdentityStore{}, repo)
	session := signInForTest(t, svc)

	svc.now = func() time.Time { return session.ExpiresAt }

	result, err := svc.Resolve(context.Background(), session.Token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsAuthenticated() {
		t.Error("expired session should be unauthenticated")
	}

	svc.WaitForCleanup()
	if repo.Count() != 0 {
		t.Errorf("session count = %d, want 0 after purge", repo.Count())
	}
}

func TestResolve_ExpiredSessionPurgeSurvivesCanceledRequest(t *testing.T) {
	repo := repository.NewMemorySessionRepo()
	svc := newTestService(&mockIdentityStore{}, repo)
	session := signInForTest(t, svc)
	svc.now = func() time.Time { return session.ExpiresAt.Add(time.Second) }

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := svc.Resolve(ctx, session.Token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancel()

	svc.WaitForCleanup()
	if repo.Count() != 0 {
		t.Errorf("session count = %d, want 0 after purge", repo.Count())
	}
}

func TestResolve_PurgeFailureDoesNotAffectResult(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	repo := &mockSessionRepo{
		findByTokenHashFn: func(_ context.Context, _ string) (*model.Session, error) {
			return &model.Session{ID: "s1", UserID: "user-1", ExpiresAt: past}, nil
		},
		deleteByTokenHashFn: func(_ context.Context, _ string) (bool, error) {
			return false, errors.New("db down")
		},
	}
	svc := newTestService(&mockIdentityStore{}, repo)

	result, err := svc.Resolve(context.Background(), "token")
	svc.WaitForCleanup()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsAuthenticated() {
		t.Error("expected unauthenticated")
	}
}

func TestResolve_PurgeRecordsOnlyActualDeletion(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	tests := []struct {
		name       string
		deleted    bool
		wantPurged int64
	}{
		{name: "削除した場合は記録する", deleted: true, wantPurged: 1},
		{name: "並行処理で既に削除済みなら記録しない", deleted: false, wantPurged: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockSessionRepo{
				findByTokenHashFn: func(_ context.Context, _ string) (*model.Session, error) {
					return &model.Session{ID: "s1", UserID: "user-1", ExpiresAt: past}, nil
				},
				deleteByTokenHashFn: func(_ context.Context, _ string) (bool, error) {
					return tt.deleted, nil
				},
			}
			collector := &revocationCollector{}
			svc := newTestServiceWithCollector(&mockIdentityStore{}, repo, collector)

			if _, err := svc.Resolve(context.Background(), "token"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			svc.WaitForCleanup()

			if collector.purged != tt.wantPurged {
				t.Errorf("purged = %d, want %d", collector.purged, tt.wantPurged)
			}
		})
	}
}

func TestResolve_MissingOwnerIsPurged(t *testing.T) {
	repo := repository.NewMemorySessionRepo()
	identity := &mockIdentityStore{}
	svc := newTestService(identity, repo)
	session := signInForTest(t, svc)

	identity.findUserFn = func(_ context.Context, _ string) (*model.User, error) {
		return nil, nil
	}

	result, err := svc.Resolve(context.Background(), session.Token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsAuthenticated() {
		t.Error("session without owner should be unauthenticated")
	}

	svc.WaitForCleanup()
	if repo.Count() != 0 {
		t.Errorf("session count = %d, want 0 after purge", repo.Count())
	}
}

func TestResolve_SessionStoreFailure(t *testing.T) {
	repo := &mockSessionRepo{
		findByTokenHashFn: func(_ context.Context, _ string) (*model.Session, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc := newTestService(&mockIdentityStore{}, repo)

	result, err := svc.Resolve(context.Background(), "token")
	assertAPIErrorCode(t, err, model.ErrCodeInfrastructureUnavailable)
	if result.IsAuthenticated() {
		t.Error("store failure must never authenticate")
	}
}

func TestResolve_IdentityStoreFailure(t *testing.T) {
	repo := repository.NewMemorySessionRepo()
	identity := &mockIdentityStore{}
	svc := newTestService(identity, repo)
	session := signInForTest(t, svc)

	identity.findUserFn = func(_ context.Context, _ string) (*model.User, error) {
		return nil, errors.New("connection refused")
	}

	result, err := svc.Resolve(context.Background(), session.Token)
	assertAPIErrorCode(t, err, model.ErrCodeInfrastructureUnavailable)
	if result.IsAuthenticated() {
		t.Error("identity failure must never authenticate")
	}
	if repo.Count() != 1 {
		t.Errorf("session count = %d, want 1 (no purge on failure)", repo.Count())
	}
}

func TestResolve_AfterSignOut(t *testing.T) {
	svc := newTestService(&mockIdentityStore{}, repository.NewMemorySessionRepo())
	session := signInForTest(t, svc)

	if err := svc.SignOut(context.Background(), session.Token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := svc.Resolve(context.Background(), session.Token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsAuthenticated() {
		t.Error("signed-out token should be unauthenticated")
	}
}

func TestResolve_ConcurrentWithSignOut(t *testing.T) {
	svc := newTestService(&mockIdentityStore{}, repository.NewMemorySessionRepo())
	session := signInForTest(t, svc)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Resolve(context.Background(), session.Token); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := svc.SignOut(context.Background(), session.Token); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}()
	wg.Wait()

	result, err := svc.Resolve(context.Background(), session.Token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsAuthenticated() {
		t.Error("token should be unauthenticated after sign out completes")
	}
}
