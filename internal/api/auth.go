package api

import (
	"crypto/subtle"
	"net/http"
	"slices"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

// Credentials are the basic-auth accounts accepted by mutating endpoints.
// Auth is enforced only when the admin account has both fields.
type Credentials struct {
	AdminUser    string
	AdminPass    string
	OperatorUser string
	OperatorPass string
}

type account struct {
	user, pass string
	role       Role
}

// accounts is nil while auth is disabled.
var accounts []account

// InitAuth installs credentials, replacing any previous set. An operator
// account missing either field is ignored.
func InitAuth(c Credentials) {
	accounts = nil
	if c.AdminUser == "" || c.AdminPass == "" {
		return
	}
	accounts = append(accounts, account{c.AdminUser, c.AdminPass, RoleAdmin})
	if c.OperatorUser != "" && c.OperatorPass != "" {
		accounts = append(accounts, account{c.OperatorUser, c.OperatorPass, RoleOperator})
	}
}

func IsAuthEnabled() bool {
	return len(accounts) > 0
}

// authenticate returns the caller's role, or "" for missing or bad
// credentials. With auth disabled every caller is admin.
func authenticate(r *http.Request) Role {
	if !IsAuthEnabled() {
		return RoleAdmin
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return ""
	}
	for _, a := range accounts {
		// both halves are compared so timing does not reveal which one matched
		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(a.user))
		passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(a.pass))
		if userOK&passOK == 1 {
			return a.role
		}
	}
	return ""
}

// RequireRole wraps handler so only callers holding one of allowed reach it.
func RequireRole(handler http.HandlerFunc, allowed ...Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := authenticate(r)
		switch {
		case role == "":
			w.Header().Set("WWW-Authenticate", `Basic realm="StrideQuest"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		case !slices.Contains(allowed, role):
			http.Error(w, "Forbidden", http.StatusForbidden)
		default:
			handler(w, r)
		}
	}
}

func RequireAnyRole(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleAdmin, RoleOperator)
}

func RequireAdmin(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleAdmin)
}
