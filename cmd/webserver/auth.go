package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"docquiz"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

const sessionName = "docquiz-session"

type AuthService struct{ hmac []byte }

func NewAuthService(secret string) *AuthService { return &AuthService{hmac: []byte(secret)} }

type Claims struct {
	Sub string `json:"sub"`
	jwt.RegisteredClaims
}

func (a *AuthService) IssueJWT(sub string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Sub: sub,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "docquiz",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(8 * time.Hour)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(a.hmac)
}

func (a *AuthService) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.hmac, nil
	})
	if err != nil || !token.Valid {
		return nil, err
	}
	c, _ := token.Claims.(*Claims)
	return c, nil
}

// POST /api/login  { "username": "..." }
// Minimal token issuance for local use; front it with a real identity
// provider in production.
func LoginHandler(a *AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		tok, err := a.IssueJWT(req.Username)
		if err != nil {
			http.Error(w, "issue token", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": tok})
	}
}

// IdentityMiddleware resolves the caller to a user id and stores it on
// the request context. A valid bearer token wins; otherwise a browser
// session cookie identifies the caller, minting an anonymous id on
// first visit.
func IdentityMiddleware(auth *AuthService, store *sessions.CookieStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				claims, err := auth.Parse(strings.TrimPrefix(h, "Bearer "))
				if err != nil || claims.Sub == "" {
					http.Error(w, "bad token", http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r.WithContext(docquiz.WithUser(r.Context(), claims.Sub)))
				return
			}

			session, _ := store.Get(r, sessionName)
			userID, _ := session.Values["user_id"].(string)
			if userID == "" {
				userID = uuid.NewString()
				session.Values["user_id"] = userID
				if err := session.Save(r, w); err != nil {
					http.Error(w, "session error", http.StatusInternalServerError)
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(docquiz.WithUser(r.Context(), userID)))
		})
	}
}
