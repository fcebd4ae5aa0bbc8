package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"pagecms/constants"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func setSessionCookie(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     constants.SESSION_COOKIE_NAME,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// loginHandler authenticates a user and opens a session. The login
// identifier is the account email.
func loginHandler(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeValidationErrors(w, http.StatusBadRequest, "Invalid request body!")
		return
	}

	var errList []string
	if _, err := mail.ParseAddress(strings.TrimSpace(body.Username)); err != nil {
		errList = append(errList, "Must be entered a valid email!")
	}
	if body.Password == "" {
		errList = append(errList, "Password can not be empty!")
	}
	if len(errList) > 0 {
		writeValidationErrors(w, http.StatusBadRequest, errList...)
		return
	}

	user, err := authUser(strings.TrimSpace(body.Username), body.Password)
	if err != nil {
		logger.Errorw("authentication query failed", "error", err)
		writeValidationErrors(w, http.StatusInternalServerError, "Database error")
		return
	}
	if user == nil {
		writeValidationErrors(w, http.StatusUnauthorized, "Incorrect email and/or password!")
		return
	}

	session := Session{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: time.Now(),
	}
	if err := db.Create(&session).Error; err != nil {
		logger.Errorw("session creation failed", "error", err)
		writeValidationErrors(w, http.StatusInternalServerError, "Database error")
		return
	}

	setSessionCookie(w, session.Token, 0)

	enriched, err := getUserByID(user.ID)
	if err != nil {
		writeValidationErrors(w, http.StatusInternalServerError, "Database error")
		return
	}
	writeJSON(w, http.StatusOK, enriched)
}

// logoutHandler closes the current session.
func logoutHandler(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(constants.SESSION_COOKIE_NAME); err == nil {
		if err := db.Where("token = ?", cookie.Value).Delete(&Session{}).Error; err != nil {
			logger.Warnw("session deletion failed", "error", err)
		}
	}
	setSessionCookie(w, "", -1)
	w.WriteHeader(http.StatusOK)
}

// currentSessionHandler returns the signed-in user with fresh
// statistics.
func currentSessionHandler(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	enriched, err := getUserByID(user.ID)
	if err != nil {
		if errors.Is(err, errNotFound) {
			writeValidationErrors(w, http.StatusInternalServerError, "Database error")
			return
		}
		logger.Errorw("current user lookup failed", "error", err)
		writeValidationErrors(w, http.StatusInternalServerError, "Database error")
		return
	}
	writeJSON(w, http.StatusOK, enriched)
}

// listUsersHandler returns every user with computed statistics. Open
// endpoint: the back office shows authors to pick from.
func listUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := getAllUsers()
	if err != nil {
		writeErrorList(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Error in database while taking the users: '%v'", err))
		return
	}
	writeJSON(w, http.StatusOK, users)
}
