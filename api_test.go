package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testDBFile = "test_pagecms.db"

var testServer *httptest.Server

// TestMain sets up and tears down the test environment
func TestMain(m *testing.M) {
	if err := setupTestEnvironment(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup test environment: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	teardownTestEnvironment()
	os.Exit(code)
}

func setupTestEnvironment() error {
	os.Remove(testDBFile)

	logger = zap.NewNop().Sugar()

	var err error
	db, err = gorm.Open(sqlite.Open("file:"+testDBFile+"?cache=shared&mode=rwc&_journal_mode=WAL"), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to test database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access test database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(&User{}, &Page{}, &Content{}, &Image{}, &Session{}, &Setting{})
	if err != nil {
		return fmt.Errorf("failed to migrate test database: %w", err)
	}

	if err := seedDatabase(); err != nil {
		return fmt.Errorf("failed to seed test database: %w", err)
	}

	// login rate limiting would trip the suite
	viper.Set("login.max_attempts_per_minute", 10000)

	testServer = httptest.NewServer(initRouter())
	return nil
}

func teardownTestEnvironment() {
	if testServer != nil {
		testServer.Close()
	}
	if db != nil {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	}
	os.Remove(testDBFile)
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar}
}

func doJSON(t *testing.T, client *http.Client, method, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, testServer.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func login(t *testing.T, client *http.Client, email, password string) userJSON {
	t.Helper()
	resp := doJSON(t, client, http.MethodPost, "/api/session", map[string]string{
		"username": email,
		"password": password,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login as %s: status %d", email, resp.StatusCode)
	}
	return decodeBody[userJSON](t, resp)
}

func contentBlock(header, paragraph string, sortNumber int) map[string]any {
	return map[string]any{
		"header":      header,
		"paragraph":   paragraph,
		"sort_number": sortNumber,
	}
}

func createPageAs(t *testing.T, client *http.Client, body map[string]any) {
	t.Helper()
	resp := doJSON(t, client, http.MethodPost, "/api/pages", body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create page: status %d", resp.StatusCode)
	}
}

func findPageByTitle(t *testing.T, client *http.Client, title string) pageJSON {
	t.Helper()
	resp := doJSON(t, client, http.MethodGet, "/api/pages", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list pages: status %d", resp.StatusCode)
	}
	pages := decodeBody[[]pageJSON](t, resp)
	for _, page := range pages {
		if page.Title == title {
			return page
		}
	}
	t.Fatalf("page %q not found in listing", title)
	return pageJSON{}
}

func findUserByEmail(t *testing.T, client *http.Client, email string) userJSON {
	t.Helper()
	resp := doJSON(t, client, http.MethodGet, "/api/users", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list users: status %d", resp.StatusCode)
	}
	users := decodeBody[[]userJSON](t, resp)
	for _, user := range users {
		if user.Email == email {
			return user
		}
	}
	t.Fatalf("user %q not found", email)
	return userJSON{}
}

func TestLoginValidation(t *testing.T) {
	client := newClient(t)
	resp := doJSON(t, client, http.MethodPost, "/api/session", map[string]string{
		"username": "not-an-email",
		"password": "",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	body := decodeBody[map[string][]string](t, resp)
	if len(body["errors"]) != 2 {
		t.Errorf("errors = %v, want both the email and the password message", body["errors"])
	}
}

func TestLoginWrongCredentials(t *testing.T) {
	client := newClient(t)
	resp := doJSON(t, client, http.MethodPost, "/api/session", map[string]string{
		"username": "mario@pagecms.local",
		"password": "wrong",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestLoginAndCurrentSession(t *testing.T) {
	client := newClient(t)
	user := login(t, client, "mario@pagecms.local", "password")
	if user.Email != "mario@pagecms.local" {
		t.Errorf("logged-in email = %q", user.Email)
	}

	resp := doJSON(t, client, http.MethodGet, "/api/session/current", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("current session: status %d", resp.StatusCode)
	}
	current := decodeBody[userJSON](t, resp)
	if current.ID != user.ID {
		t.Errorf("current session user = %d, want %d", current.ID, user.ID)
	}

	resp = doJSON(t, client, http.MethodDelete, "/api/session", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: status %d", resp.StatusCode)
	}

	resp = doJSON(t, client, http.MethodGet, "/api/session/current", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("current session after logout: status %d, want 401", resp.StatusCode)
	}
}

func TestCreatePageRequiresAuth(t *testing.T) {
	client := newClient(t)
	resp := doJSON(t, client, http.MethodPost, "/api/pages", map[string]any{
		"title":    "Anonymous page",
		"contents": []map[string]any{contentBlock("H1", "text", 1)},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestCreatePageValidation(t *testing.T) {
	client := newClient(t)
	login(t, client, "mario@pagecms.local", "password")

	resp := doJSON(t, client, http.MethodPost, "/api/pages", map[string]any{
		"title":    "",
		"contents": []map[string]any{},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	body := decodeBody[map[string][]string](t, resp)
	if len(body["errors"]) == 0 {
		t.Error("expected validation messages under the errors key")
	}

	// a block with neither paragraph nor image
	resp = doJSON(t, client, http.MethodPost, "/api/pages", map[string]any{
		"title": "Bad block",
		"contents": []map[string]any{
			{"header": "H1", "sort_number": 1},
		},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty-body block: status = %d, want 400", resp.StatusCode)
	}
}

func TestCreatePageImageNotFound(t *testing.T) {
	client := newClient(t)
	login(t, client, "mario@pagecms.local", "password")

	resp := doJSON(t, client, http.MethodPost, "/api/pages", map[string]any{
		"title": "Page with ghost image",
		"contents": []map[string]any{
			{"header": "H1", "sort_number": 1, "image": map[string]any{"id": 99999}},
		},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestCreateDraftPageAndFetch(t *testing.T) {
	client := newClient(t)
	login(t, client, "mario@pagecms.local", "password")

	createPageAs(t, client, map[string]any{
		"title": "My first draft",
		"contents": []map[string]any{
			contentBlock("H1", "opening text", 1),
			contentBlock("H2", "closing text", 2),
		},
	})

	page := findPageByTitle(t, client, "My first draft")
	if page.Status != StatusDraft {
		t.Errorf("status = %q, want Draft", page.Status)
	}
	if page.ReleaseDate != nil {
		t.Errorf("release_date = %v, want null", *page.ReleaseDate)
	}

	resp := doJSON(t, client, http.MethodGet, fmt.Sprintf("/api/pages/%d", page.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get page by id: status %d", resp.StatusCode)
	}
	fetched := decodeBody[pageJSON](t, resp)

	if len(fetched.Contents) != 2 {
		t.Fatalf("contents = %d blocks, want 2", len(fetched.Contents))
	}
	for i := 1; i < len(fetched.Contents); i++ {
		if fetched.Contents[i-1].SortNumber > fetched.Contents[i].SortNumber {
			t.Errorf("contents not in ascending sort order: %+v", fetched.Contents)
		}
	}
	if fetched.Contents[0].Header != "H1" || fetched.Contents[1].Header != "H2" {
		t.Errorf("content order does not match submission: %+v", fetched.Contents)
	}
	if fetched.User == nil || fetched.User.Email != "mario@pagecms.local" {
		t.Errorf("page author = %+v, want mario", fetched.User)
	}
}

func TestAdminCreatesPageForAnotherUser(t *testing.T) {
	client := newClient(t)
	login(t, client, "admin@pagecms.local", "password")
	laura := findUserByEmail(t, client, "laura@pagecms.local")

	createPageAs(t, client, map[string]any{
		"title": "Ghost-written page",
		"contents": []map[string]any{
			contentBlock("H1", "text", 1),
		},
		"user": map[string]any{"id": laura.ID},
	})

	page := findPageByTitle(t, client, "Ghost-written page")
	if page.User == nil || page.User.ID != laura.ID {
		t.Errorf("author = %+v, want laura (%d)", page.User, laura.ID)
	}
}

func TestAdminCreateForUnknownUser(t *testing.T) {
	client := newClient(t)
	login(t, client, "admin@pagecms.local", "password")

	resp := doJSON(t, client, http.MethodPost, "/api/pages", map[string]any{
		"title": "Orphan page",
		"contents": []map[string]any{
			contentBlock("H1", "text", 1),
		},
		"user": map[string]any{"id": 99999},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestFrontOfficeListingFiltersUnpublished(t *testing.T) {
	client := newClient(t)
	login(t, client, "mario@pagecms.local", "password")

	yesterday := dateOnly(time.Now().AddDate(0, 0, -1))
	tomorrow := dateOnly(time.Now().AddDate(0, 0, 1))

	createPageAs(t, client, map[string]any{
		"title":        "Front office published",
		"release_date": formatDate(&yesterday),
		"contents":     []map[string]any{contentBlock("H1", "text", 1)},
	})
	createPageAs(t, client, map[string]any{
		"title":        "Front office programmed",
		"release_date": formatDate(&tomorrow),
		"contents":     []map[string]any{contentBlock("H1", "text", 1)},
	})
	createPageAs(t, client, map[string]any{
		"title":    "Front office draft",
		"contents": []map[string]any{contentBlock("H1", "text", 1)},
	})

	anonymous := newClient(t)
	resp := doJSON(t, anonymous, http.MethodGet, "/api/pages", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("anonymous listing: status %d", resp.StatusCode)
	}
	pages := decodeBody[[]pageJSON](t, resp)

	seen := map[string]bool{}
	for _, page := range pages {
		seen[page.Title] = true
		if page.Status != StatusPublished {
			t.Errorf("anonymous listing contains %q with status %q", page.Title, page.Status)
		}
	}
	if !seen["Front office published"] {
		t.Error("published page missing from front-office listing")
	}
	if seen["Front office programmed"] || seen["Front office draft"] {
		t.Error("unpublished pages leaked into front-office listing")
	}
}

func TestBackOfficeListingOrder(t *testing.T) {
	client := newClient(t)
	login(t, client, "mario@pagecms.local", "password")

	resp := doJSON(t, client, http.MethodGet, "/api/pages", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("listing: status %d", resp.StatusCode)
	}
	pages := decodeBody[[]pageJSON](t, resp)

	// drafts (null release date) sort first, then release dates ascending
	seenDated := false
	var previous string
	for _, page := range pages {
		if page.ReleaseDate == nil {
			if seenDated {
				t.Fatalf("draft %q listed after a dated page", page.Title)
			}
			continue
		}
		if seenDated && *page.ReleaseDate < previous {
			t.Fatalf("release dates not ascending: %q after %q", *page.ReleaseDate, previous)
		}
		seenDated = true
		previous = *page.ReleaseDate
	}
}

func TestEditAuthorization(t *testing.T) {
	author := newClient(t)
	login(t, author, "mario@pagecms.local", "password")
	createPageAs(t, author, map[string]any{
		"title":    "Protected page",
		"contents": []map[string]any{contentBlock("H1", "text", 1)},
	})
	page := findPageByTitle(t, author, "Protected page")

	edit := map[string]any{
		"title":    "Protected page (edited)",
		"contents": []map[string]any{contentBlock("H1", "new text", 1)},
	}

	intruder := newClient(t)
	login(t, intruder, "laura@pagecms.local", "password")
	resp := doJSON(t, intruder, http.MethodPut, fmt.Sprintf("/api/pages/%d", page.ID), edit)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("non-author edit: status %d, want 401", resp.StatusCode)
	}

	admin := newClient(t)
	login(t, admin, "admin@pagecms.local", "password")
	resp = doJSON(t, admin, http.MethodPut, fmt.Sprintf("/api/pages/%d", page.ID), edit)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin edit: status %d, want 200", resp.StatusCode)
	}
	updated := decodeBody[pageJSON](t, resp)
	if updated.Title != "Protected page (edited)" {
		t.Errorf("title = %q after admin edit", updated.Title)
	}
}

func TestEditReconciliation(t *testing.T) {
	client := newClient(t)
	login(t, client, "mario@pagecms.local", "password")

	createPageAs(t, client, map[string]any{
		"title": "Reconciled page",
		"contents": []map[string]any{
			contentBlock("First", "one", 1),
			contentBlock("Second", "two", 2),
			contentBlock("Third", "three", 3),
		},
	})
	page := findPageByTitle(t, client, "Reconciled page")

	resp := doJSON(t, client, http.MethodGet, fmt.Sprintf("/api/pages/%d", page.ID), nil)
	before := decodeBody[pageJSON](t, resp)
	if len(before.Contents) != 3 {
		t.Fatalf("setup: %d contents, want 3", len(before.Contents))
	}
	keptID := before.Contents[0].ID

	resp = doJSON(t, client, http.MethodPut, fmt.Sprintf("/api/pages/%d", page.ID), map[string]any{
		"title": "Reconciled page",
		"contents": []map[string]any{
			{"id": keptID, "header": "First (edited)", "paragraph": "one edited", "sort_number": 2},
			{"id": -1, "header": "Brand new", "paragraph": "fresh", "sort_number": 1},
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("edit: status %d", resp.StatusCode)
	}
	after := decodeBody[pageJSON](t, resp)

	if len(after.Contents) != 2 {
		t.Fatalf("contents after edit = %d blocks, want 2", len(after.Contents))
	}
	if after.Contents[0].Header != "Brand new" || after.Contents[0].SortNumber != 1 {
		t.Errorf("new block not first: %+v", after.Contents[0])
	}
	if after.Contents[1].ID != keptID || after.Contents[1].Header != "First (edited)" {
		t.Errorf("kept block not updated in place: %+v", after.Contents[1])
	}
}

func TestDeletePageIsSoft(t *testing.T) {
	client := newClient(t)
	me := login(t, client, "giulio@pagecms.local", "password")

	createPageAs(t, client, map[string]any{
		"title":    "Short-lived page",
		"contents": []map[string]any{contentBlock("H1", "text", 1)},
	})
	page := findPageByTitle(t, client, "Short-lived page")

	removedBefore := findUserByEmail(t, client, me.Email).NumberPagesRemoved

	resp := doJSON(t, client, http.MethodDelete, fmt.Sprintf("/api/pages/%d", page.ID), nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: status %d", resp.StatusCode)
	}

	resp = doJSON(t, client, http.MethodGet, fmt.Sprintf("/api/pages/%d", page.ID), nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("deleted page fetch: status %d, want 404", resp.StatusCode)
	}

	// the row survives with the deleted flag set, and shows up in the
	// removed counter
	var row Page
	if err := db.First(&row, page.ID).Error; err != nil {
		t.Fatalf("deleted row vanished from storage: %v", err)
	}
	if row.Deleted != 1 {
		t.Errorf("deleted flag = %d, want 1", row.Deleted)
	}

	removedAfter := findUserByEmail(t, client, me.Email).NumberPagesRemoved
	if removedAfter != removedBefore+1 {
		t.Errorf("removed counter = %d, want %d", removedAfter, removedBefore+1)
	}
}

func TestDeleteAuthorization(t *testing.T) {
	author := newClient(t)
	login(t, author, "mario@pagecms.local", "password")
	createPageAs(t, author, map[string]any{
		"title":    "Not yours to delete",
		"contents": []map[string]any{contentBlock("H1", "text", 1)},
	})
	page := findPageByTitle(t, author, "Not yours to delete")

	intruder := newClient(t)
	login(t, intruder, "laura@pagecms.local", "password")
	resp := doJSON(t, intruder, http.MethodDelete, fmt.Sprintf("/api/pages/%d", page.ID), nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("non-author delete: status %d, want 401", resp.StatusCode)
	}
}

func TestUserStatisticsInvariant(t *testing.T) {
	client := newClient(t)
	resp := doJSON(t, client, http.MethodGet, "/api/users", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list users: status %d", resp.StatusCode)
	}
	users := decodeBody[[]userJSON](t, resp)
	if len(users) == 0 {
		t.Fatal("no users returned")
	}

	for _, user := range users {
		sum := user.NumberPagesPublished + user.NumberPagesProgrammed +
			user.NumberPagesDraft + user.NumberPagesRemoved
		if user.NumberPagesCreated != sum {
			t.Errorf("user %s: created = %d but published+programmed+draft+removed = %d",
				user.Username, user.NumberPagesCreated, sum)
		}
	}
}

func TestImagesListing(t *testing.T) {
	client := newClient(t)
	resp := doJSON(t, client, http.MethodGet, "/api/images", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list images: status %d", resp.StatusCode)
	}
	images := decodeBody[[]imageJSON](t, resp)
	if len(images) != len(seedImages) {
		t.Errorf("images = %d, want %d", len(images), len(seedImages))
	}
	for _, img := range images {
		if img.WebsiteName == "" {
			t.Errorf("image %q misses website_name", img.Title)
		}
	}
}

func TestWebsiteName(t *testing.T) {
	anonymous := newClient(t)
	resp := doJSON(t, anonymous, http.MethodGet, "/api/websitename", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get website name: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	// a regular user may not edit it
	regular := newClient(t)
	login(t, regular, "mario@pagecms.local", "password")
	resp = doJSON(t, regular, http.MethodPut, "/api/websitename", map[string]string{"website_name": "Hijacked"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("non-admin edit: status %d, want 401", resp.StatusCode)
	}

	admin := newClient(t)
	login(t, admin, "admin@pagecms.local", "password")

	resp = doJSON(t, admin, http.MethodPut, "/api/websitename", map[string]string{"website_name": "  "})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty name: status %d, want 400", resp.StatusCode)
	}

	resp = doJSON(t, admin, http.MethodPut, "/api/websitename", map[string]string{"website_name": "Renamed Site"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin edit: status %d, want 200", resp.StatusCode)
	}

	resp = doJSON(t, anonymous, http.MethodGet, "/api/websitename", nil)
	body := decodeBody[map[string]string](t, resp)
	if body["website_name"] != "Renamed Site" {
		t.Errorf("website_name = %q, want %q", body["website_name"], "Renamed Site")
	}
}

func TestGetPageNotFound(t *testing.T) {
	client := newClient(t)
	resp := doJSON(t, client, http.MethodGet, "/api/pages/999999", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	resp = doJSON(t, client, http.MethodGet, "/api/pages/not-a-number", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("non-numeric id: status = %d, want 404", resp.StatusCode)
	}
}
