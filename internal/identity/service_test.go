package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/authgate/internal/model"
	"github.com/hitoshi/authgate/internal/repository"
	"github.com/hitoshi/authgate/internal/security"
)

// --- モック定義 ---

// fakeUserStore はUserRepositoryとAccountRepositoryのインメモリ実装。
type fakeUserStore struct {
	mu       sync.Mutex
	users    map[string]*model.User // key: ID
	accounts map[string]*model.Account

	findByEmailErr error
	createErr      error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		users:    make(map[string]*model.User),
		accounts: make(map[string]*model.Account),
	}
}

func (f *fakeUserStore) FindByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id], nil
}

func (f *fakeUserStore) FindByEmail(_ context.Context, email string) (*model.User, error) {
	if f.findByEmailErr != nil {
		return nil, f.findByEmailErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == strings.ToLower(email) {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUserStore) CreateWithAccount(_ context.Context, user *model.User, account *model.Account) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	f.users[user.ID] = user
	f.accounts[account.UserID] = account
	return nil
}

func (f *fakeUserStore) DeleteByID(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, id)
	delete(f.accounts, id)
	return nil
}

func (f *fakeUserStore) FindByUserIDAndProvider(_ context.Context, userID, providerID string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.accounts[userID]
	if a == nil || a.ProviderID != providerID {
		return nil, nil
	}
	return a, nil
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*fakeUserStore)(nil)
var _ repository.AccountRepository = (*fakeUserStore)(nil)

func newTestService(store *fakeUserStore) *Service {
	return NewService(store, store, NewBcryptHasher(bcrypt.MinCost), security.NewNameSanitizer())
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want APIError %s", err, code)
	}
	if apiErr.Code != code {
		t.Errorf("code = %q, want %q", apiErr.Code, code)
	}
}

// --- テスト ---

func TestCreateAccount_Success(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestService(store)

	user, err := svc.CreateAccount(context.Background(), "  A@X.com ", "Password123!", "A")
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	if user.ID == "" {
		t.Error("user ID should be set")
	}
	if user.Email != "a@x.com" {
		t.Errorf("Email = %q, want normalized a@x.com", user.Email)
	}
	if user.Name != "A" {
		t.Errorf("Name = %q, want A", user.Name)
	}
	if user.EmailVerified {
		t.Error("EmailVerified should be false on sign-up")
	}

	account := store.accounts[user.ID]
	if account == nil {
		t.Fatal("account should be created")
	}
	if account.ProviderID != model.ProviderCredential {
		t.Errorf("ProviderID = %q, want credential", account.ProviderID)
	}
	if account.PasswordHash == "Password123!" {
		t.Error("password must be stored hashed")
	}
}

func TestCreateAccount_SanitizesName(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestService(store)

	user, err := svc.CreateAccount(context.Background(), "a@x.com", "Password123!", "<b>Alice</b>")
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	if user.Name != "Alice" {
		t.Errorf("Name = %q, want Alice", user.Name)
	}
}

func TestCreateAccount_DuplicateEmail_CaseInsensitive(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestService(store)
	ctx := context.Background()

	if _, err := svc.CreateAccount(ctx, "a@x.com", "Password123!", "A"); err != nil {
		t.Fatalf("first CreateAccount() error = %v", err)
	}

	_, err := svc.CreateAccount(ctx, "A@X.COM", "Password456!", "B")
	assertAPIErrorCode(t, err, model.ErrCodeDuplicateIdentity)
}

func TestCreateAccount_DuplicateDetectedOnInsert(t *testing.T) {
	store := newFakeUserStore()
	store.createErr = repository.ErrDuplicateEmail
	svc := newTestService(store)

	_, err := svc.CreateAccount(context.Background(), "a@x.com", "Password123!", "A")
	assertAPIErrorCode(t, err, model.ErrCodeDuplicateIdentity)
}

func TestCreateAccount_InvalidFormat(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		userName string
	}{
		{name: "空のメールアドレス", email: "", password: "Password123!", userName: "A"},
		{name: "@のないメールアドレス", email: "not-an-email", password: "Password123!", userName: "A"},
		{name: "表示名付きのメールアドレス", email: "A <a@x.com>", password: "Password123!", userName: "A"},
		{name: "短すぎるパスワード", email: "a@x.com", password: "short", userName: "A"},
		{name: "長すぎるパスワード", email: "a@x.com", password: strings.Repeat("p", 73), userName: "A"},
		{name: "空の名前", email: "a@x.com", password: "Password123!", userName: "   "},
		{name: "タグのみの名前", email: "a@x.com", password: "Password123!", userName: "<script>x</script>"},
		{name: "長すぎる名前", email: "a@x.com", password: "Password123!", userName: strings.Repeat("あ", 101)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeUserStore()
			svc := newTestService(store)

			_, err := svc.CreateAccount(context.Background(), tt.email, tt.password, tt.userName)
			assertAPIErrorCode(t, err, model.ErrCodeInvalidCredentialFormat)
			if len(store.users) != 0 {
				t.Error("no user should be created on invalid input")
			}
		})
	}
}

func TestCreateAccount_StoreError_IsNotAPIError(t *testing.T) {
	store := newFakeUserStore()
	store.findByEmailErr = errors.New("db down")
	svc := newTestService(store)

	_, err := svc.CreateAccount(context.Background(), "a@x.com", "Password123!", "A")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("storage failure should not be reported as %s", apiErr.Code)
	}
}

func TestVerifyCredentials_Success(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestService(store)
	ctx := context.Background()

	created, err := svc.CreateAccount(ctx, "a@x.com", "Password123!", "A")
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	user, err := svc.VerifyCredentials(ctx, "A@x.com", "Password123!")
	if err != nil {
		t.Fatalf("VerifyCredentials() error = %v", err)
	}
	if user.ID != created.ID {
		t.Errorf("user ID = %q, want %q", user.ID, created.ID)
	}
}

func TestVerifyCredentials_WrongPasswordAndUnknownEmail_AreIndistinguishable(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestService(store)
	ctx := context.Background()

	if _, err := svc.CreateAccount(ctx, "a@x.com", "Password123!", "A"); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	_, wrongPwErr := svc.VerifyCredentials(ctx, "a@x.com", "WrongPassword!")
	_, unknownErr := svc.VerifyCredentials(ctx, "nobody@x.com", "Password123!")

	assertAPIErrorCode(t, wrongPwErr, model.ErrCodeInvalidCredentials)
	assertAPIErrorCode(t, unknownErr, model.ErrCodeInvalidCredentials)

	if wrongPwErr.Error() != unknownErr.Error() {
		t.Errorf("errors differ: %q vs %q", wrongPwErr.Error(), unknownErr.Error())
	}
}

func TestVerifyCredentials_UserWithoutAccount(t *testing.T) {
	store := newFakeUserStore()
	store.users["u1"] = &model.User{ID: "u1", Email: "a@x.com"}
	svc := newTestService(store)

	_, err := svc.VerifyCredentials(context.Background(), "a@x.com", "Password123!")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidCredentials)
}

func TestDeleteAccount_AllowsReRegistration(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestService(store)
	ctx := context.Background()

	user, err := svc.CreateAccount(ctx, "retry@example.com", "password123", "Retry")
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	if err := svc.DeleteAccount(ctx, user.ID); err != nil {
		t.Fatalf("DeleteAccount() error = %v", err)
	}

	if _, err := svc.CreateAccount(ctx, "retry@example.com", "password123", "Retry"); err != nil {
		t.Errorf("CreateAccount() after delete error = %v, want nil", err)
	}
}

func TestFindUser(t *testing.T) {
	store := newFakeUserStore()
	store.users["u1"] = &model.User{ID: "u1", Email: "a@x.com"}
	svc := newTestService(store)

	user, err := svc.FindUser(context.Background(), "u1")
	if err != nil || user == nil {
		t.Fatalf("FindUser() = %v, %v", user, err)
	}

	missing, err := svc.FindUser(context.Background(), "u2")
	if err != nil {
		t.Fatalf("FindUser() error = %v", err)
	}
	if missing != nil {
		t.Errorf("FindUser() = %+v, want nil", missing)
	}
}
