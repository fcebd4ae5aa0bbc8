package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"pagecms/constants"
)

// listImagesHandler returns the image library. Open endpoint.
func listImagesHandler(w http.ResponseWriter, r *http.Request) {
	images, err := getAllImages()
	if err != nil {
		writeErrorList(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Error in database while taking the images: '%v'", err))
		return
	}

	if len(images) == 0 {
		writeErrorList(w, http.StatusNotFound, "There is no image yet!")
		return
	}

	writeJSON(w, http.StatusOK, images)
}

// getWebsiteNameHandler returns the website name. Open endpoint.
func getWebsiteNameHandler(w http.ResponseWriter, r *http.Request) {
	name, err := getWebsiteName()
	if err != nil {
		writeErrorList(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Error in database while taking the website name: '%v'", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{constants.WEBSITE_NAME_KEY: name})
}

type websiteNameRequest struct {
	WebsiteName *string `json:"website_name"`
}

// updateWebsiteNameHandler changes the website name. Administrators
// only; the authorization check runs before validation.
func updateWebsiteNameHandler(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(currentUser(r)) {
		writeErrorList(w, http.StatusUnauthorized, "The website name can not be edited if you are not an administrator!")
		return
	}

	var body websiteNameRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeValidationErrors(w, http.StatusBadRequest, "Invalid request body!")
		return
	}

	if body.WebsiteName == nil {
		writeValidationErrors(w, http.StatusBadRequest, "It is not allowed to edit the website name without information!")
		return
	}
	name := strings.TrimSpace(*body.WebsiteName)
	if name == "" {
		writeValidationErrors(w, http.StatusBadRequest, "The name of website can not be empty!")
		return
	}

	if err := setWebsiteName(name); err != nil {
		writeErrorList(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Database error during saving the website name: '%v'", err))
		return
	}

	w.WriteHeader(http.StatusOK)
}
