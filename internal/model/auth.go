package model

// AuthState は認証判定の結果種別。
type AuthState int

const (
	// Unauthenticated はトークンが無い、または無効であることを示す。
	Unauthenticated AuthState = iota
	// Authenticated はトークンが有効でユーザーが解決できたことを示す。
	Authenticated
)

// String はログ出力用の文字列表現を返す。
func (s AuthState) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// AuthResult はリクエスト単位の認証判定結果。
// StateがAuthenticatedの場合に限りUserとSessionが非nilとなる。
type AuthResult struct {
	State   AuthState
	User    *User
	Session *Session
}

// IsAuthenticated は認証済みかどうかを返す。
func (r AuthResult) IsAuthenticated() bool {
	return r.State == Authenticated && r.User != nil && r.Session != nil
}

// NewAuthenticated は認証済みの判定結果を生成する。
func NewAuthenticated(user *User, session *Session) AuthResult {
	return AuthResult{State: Authenticated, User: user, Session: session}
}

// UnauthenticatedResult は未認証の判定結果を返す。
func UnauthenticatedResult() AuthResult {
	return AuthResult{State: Unauthenticated}
}
