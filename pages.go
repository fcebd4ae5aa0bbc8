package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/datatypes"
)

type userRef struct {
	ID int64 `json:"id"`
}

type imageRef struct {
	ID int64 `json:"id"`
}

type contentRequest struct {
	ID         *int64    `json:"id"`
	Header     *string   `json:"header"`
	Paragraph  *string   `json:"paragraph"`
	SortNumber *int      `json:"sort_number"`
	Image      *imageRef `json:"image"`
}

type pageRequest struct {
	Title       *string          `json:"title"`
	ReleaseDate *string          `json:"release_date"`
	Contents    []contentRequest `json:"contents"`
	User        *userRef         `json:"user"`
}

// validatePageRequest collects every validation failure of a page
// submission. Validation runs before any write: a request that fails
// here causes no mutation at all.
func validatePageRequest(body pageRequest) []string {
	var errList []string

	if body.Title == nil {
		errList = append(errList, "It is not allowed to add a page without a Title!")
	} else if strings.TrimSpace(*body.Title) == "" {
		errList = append(errList, "The title can not be empty!")
	}

	if len(body.Contents) < 1 {
		errList = append(errList, "It is not allowed to add a page without a content block!")
	}

	for _, block := range body.Contents {
		if block.Header == nil || strings.TrimSpace(*block.Header) == "" {
			errList = append(errList, "Each content block must have a header!")
		}
		if block.SortNumber == nil {
			errList = append(errList, "Each content block must have a sort number!")
		}
		if (block.Paragraph == nil || strings.TrimSpace(*block.Paragraph) == "") && block.Image == nil {
			errList = append(errList, "Each content block must have at least a paragraph or an image!")
		}
	}

	if body.ReleaseDate != nil && *body.ReleaseDate != "" {
		if _, err := parseDate(*body.ReleaseDate); err != nil {
			errList = append(errList, "The release date must be a valid date!")
		}
	}

	return errList
}

// releaseDateOf returns the parsed release date of a validated
// request, nil for drafts.
func releaseDateOf(body pageRequest) *datatypes.Date {
	if body.ReleaseDate == nil || *body.ReleaseDate == "" {
		return nil
	}
	d, err := parseDate(*body.ReleaseDate)
	if err != nil {
		return nil
	}
	return &d
}

// buildDrafts turns validated content blocks into tagged drafts,
// checking every image reference against the image library.
func buildDrafts(blocks []contentRequest) ([]contentDraft, error) {
	drafts := make([]contentDraft, 0, len(blocks))
	for _, block := range blocks {
		var paragraph *string
		if block.Paragraph != nil {
			if trimmed := strings.TrimSpace(*block.Paragraph); trimmed != "" {
				paragraph = &trimmed
			}
		}

		var imageID *int64
		if block.Image != nil {
			id := block.Image.ID
			imageID = &id
		}

		draft := newContentDraft(block.ID, strings.TrimSpace(*block.Header), paragraph, imageID, *block.SortNumber)

		if draft.ImageID != nil {
			if _, err := getImageRowByID(*draft.ImageID); err != nil {
				return nil, err
			}
		}

		drafts = append(drafts, draft)
	}
	return drafts, nil
}

// resolveAuthor applies the admin-only author reassignment: a regular
// user always authors their own pages, while an administrator may name
// any existing user.
func resolveAuthor(acting *User, requested *userRef, fallback int64) (int64, error) {
	if !isAdmin(acting) || requested == nil {
		return fallback, nil
	}
	author, err := getUserRowByID(requested.ID)
	if err != nil {
		return 0, err
	}
	return author.ID, nil
}

func dateOnly(t time.Time) datatypes.Date {
	year, month, day := t.Date()
	return datatypes.Date(time.Date(year, month, day, 0, 0, 0, 0, t.Location()))
}

// listPagesHandler returns all non-deleted pages. Open endpoint:
// unauthenticated callers get the front-office view, published pages
// only.
func listPagesHandler(w http.ResponseWriter, r *http.Request) {
	pages, err := getAllPages()
	if err != nil {
		writeErrorList(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Error in database while taking the pages: '%v'", err))
		return
	}

	if len(pages) == 0 {
		writeErrorList(w, http.StatusNotFound, "There is no page yet!")
		return
	}

	if currentUser(r) == nil {
		published := make([]pageJSON, 0, len(pages))
		for _, page := range pages {
			if page.Status == StatusPublished {
				published = append(published, page)
			}
		}
		pages = published
	}

	writeJSON(w, http.StatusOK, pages)
}

func getPageHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeErrorList(w, http.StatusNotFound, "Page not found!")
		return
	}

	page, err := getPageByID(id)
	if err != nil {
		if errors.Is(err, errNotFound) {
			writeErrorList(w, http.StatusNotFound, "Page not found!")
			return
		}
		writeErrorList(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Error in database while taking the page: '%v'", err))
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func createPageHandler(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	var body pageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeValidationErrors(w, http.StatusBadRequest, "Invalid request body!")
		return
	}

	if errList := validatePageRequest(body); len(errList) > 0 {
		writeValidationErrors(w, http.StatusBadRequest, errList...)
		return
	}

	drafts, err := buildDrafts(body.Contents)
	if err != nil {
		if errors.Is(err, errNotFound) {
			writeErrorList(w, http.StatusNotFound, "Image Not Found")
			return
		}
		writeErrorList(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Database error during page creation: '%v'", err))
		return
	}

	authorID, err := resolveAuthor(user, body.User, user.ID)
	if err != nil {
		if errors.Is(err, errNotFound) {
			writeErrorList(w, http.StatusNotFound, "User Not Found")
			return
		}
		writeErrorList(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Database error during page creation: '%v'", err))
		return
	}

	page := Page{
		Title:        strings.TrimSpace(*body.Title),
		ReleaseDate:  releaseDateOf(body),
		CreationDate: dateOnly(time.Now()),
		Deleted:      0,
		UserID:       authorID,
	}
	if _, err := createPage(&page, drafts); err != nil {
		writeErrorList(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Database error during page creation: '%v'", err))
		return
	}

	w.WriteHeader(http.StatusOK)
}

func updatePageHandler(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeErrorList(w, http.StatusNotFound, "Page not found!")
		return
	}

	// Authorization first: ownership is checked before the request body
	// is even looked at.
	pageRow, err := getPageRowByID(id)
	if err != nil {
		if errors.Is(err, errNotFound) {
			writeErrorList(w, http.StatusNotFound, "Page not found!")
			return
		}
		writeErrorList(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Database error during editing page: '%v'", err))
		return
	}

	if user.ID != pageRow.UserID && !isAdmin(user) {
		writeErrorList(w, http.StatusUnauthorized, "This page can not be edited if you are not the author!")
		return
	}

	var body pageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeValidationErrors(w, http.StatusBadRequest, "Invalid request body!")
		return
	}

	if errList := validatePageRequest(body); len(errList) > 0 {
		writeValidationErrors(w, http.StatusBadRequest, errList...)
		return
	}

	drafts, err := buildDrafts(body.Contents)
	if err != nil {
		if errors.Is(err, errNotFound) {
			writeErrorList(w, http.StatusNotFound, "Image Not Found")
			return
		}
		writeErrorList(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Database error during editing page: '%v'", err))
		return
	}

	authorID, err := resolveAuthor(user, body.User, pageRow.UserID)
	if err != nil {
		if errors.Is(err, errNotFound) {
			writeErrorList(w, http.StatusNotFound, "User Not Found")
			return
		}
		writeErrorList(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Database error during editing page: '%v'", err))
		return
	}

	existing, err := contentRowsOfPage(pageRow.ID)
	if err != nil {
		writeErrorList(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Database error during editing page: '%v'", err))
		return
	}

	changes := reconcileContents(existing, drafts)

	updated := Page{
		ID:          pageRow.ID,
		Title:       strings.TrimSpace(*body.Title),
		ReleaseDate: releaseDateOf(body),
		UserID:      authorID,
	}
	if err := editPage(&updated, changes); err != nil {
		writeErrorList(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Database error during editing page: '%v'", err))
		return
	}

	// Read back only after every batch has completed.
	result, err := getPageByID(pageRow.ID)
	if err != nil {
		writeErrorList(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Database error during editing page: '%v'", err))
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func deletePageHandler(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeErrorList(w, http.StatusNotFound, "Page not found!")
		return
	}

	pageRow, err := getPageRowByID(id)
	if err != nil {
		if errors.Is(err, errNotFound) {
			writeErrorList(w, http.StatusNotFound, "Page not found!")
			return
		}
		writeErrorList(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Database error during page deletion: '%v'", err))
		return
	}

	if user.ID != pageRow.UserID && !isAdmin(user) {
		writeErrorList(w, http.StatusUnauthorized, "This page can not be deleted if you are not the author!")
		return
	}

	if err := deletePage(pageRow.ID); err != nil {
		writeErrorList(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Database error during page deletion: '%v'", err))
		return
	}

	w.WriteHeader(http.StatusOK)
}
