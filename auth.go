package main

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"

	"golang.org/x/crypto/scrypt"
	"gorm.io/gorm"

	"pagecms/constants"
)

type contextKey string

const currentUserKey contextKey = "current_user"

func generateSalt() (string, error) {
	salt := make([]byte, constants.SALT_LENGTH)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	return hex.EncodeToString(salt), nil
}

// hashPassword derives the stored hash from a password and a
// hex-encoded salt.
func hashPassword(password, salt string) (string, error) {
	rawSalt, err := hex.DecodeString(salt)
	if err != nil {
		return "", err
	}
	hash, err := scrypt.Key([]byte(password), rawSalt,
		constants.SCRYPT_N, constants.SCRYPT_R, constants.SCRYPT_P, constants.SCRYPT_KEY_LEN)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(hash), nil
}

// verifyPassword checks a password against a user's stored hash and
// salt in constant time.
func verifyPassword(user *User, password string) bool {
	hash, err := hashPassword(password, user.Salt)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(hash), []byte(user.Hash)) == 1
}

// authUser authenticates a user by email and password. It returns nil
// without an error when the credentials do not match.
func authUser(email, password string) (*User, error) {
	user, err := getUserRowByEmail(email)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !verifyPassword(user, password) {
		return nil, nil
	}
	return user, nil
}

// authMiddleware resolves the session cookie into a user and stores it
// in the request context. Requests without a valid session pass
// through unauthenticated; open endpoints serve them with the
// front-office view.
func authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(constants.SESSION_COOKIE_NAME)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		var session Session
		if err := db.First(&session, "token = ?", cookie.Value).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				logger.Warnw("session lookup failed", "error", err)
			}
			next.ServeHTTP(w, r)
			return
		}

		var user User
		if err := db.First(&user, session.UserID).Error; err != nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), currentUserKey, &user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// currentUser returns the signed-in user or nil.
func currentUser(r *http.Request) *User {
	user, _ := r.Context().Value(currentUserKey).(*User)
	return user
}

func isAdmin(user *User) bool {
	return user != nil && user.Role == constants.ROLE_ADMIN
}

// requireAuth rejects unauthenticated requests.
func requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if currentUser(r) == nil {
			writeValidationErrors(w, http.StatusUnauthorized, "Must be authenticated to make this request!")
			return
		}
		next.ServeHTTP(w, r)
	})
}
