package main

import (
	"fmt"

	"pagecms/constants"
)

// Accounts cannot be registered through the API; a fresh database gets
// a default user set so the back office is reachable. The image
// library is fixed as well: authors pick from it, they do not upload.
var seedUsers = []struct {
	Email    string
	Username string
	Name     string
	Surname  string
	Role     int
	Password string
}{
	{"admin@pagecms.local", "admin", "Ada", "Moretti", constants.ROLE_ADMIN, "password"},
	{"mario@pagecms.local", "mario", "Mario", "Rossi", constants.ROLE_USER, "password"},
	{"laura@pagecms.local", "laura", "Laura", "Bianchi", constants.ROLE_USER, "password"},
	{"giulio@pagecms.local", "giulio", "Giulio", "Verdi", constants.ROLE_USER, "password"},
}

var seedImages = []Image{
	{Src: "/static/images/mountains.jpg", Alt: "A mountain ridge at dawn", Title: "Mountains"},
	{Src: "/static/images/lake.jpg", Alt: "A still alpine lake", Title: "Lake"},
	{Src: "/static/images/forest.jpg", Alt: "A pine forest in fog", Title: "Forest"},
	{Src: "/static/images/city.jpg", Alt: "A city skyline at night", Title: "City"},
}

// seedDatabase populates an empty database with the default users,
// the image library and the initial website name. Existing rows are
// left alone.
func seedDatabase() error {
	var userCount int64
	if err := db.Model(&User{}).Count(&userCount).Error; err != nil {
		return fmt.Errorf("count users: %w", err)
	}

	if userCount == 0 {
		for _, seed := range seedUsers {
			salt, err := generateSalt()
			if err != nil {
				return fmt.Errorf("generate salt: %w", err)
			}
			hash, err := hashPassword(seed.Password, salt)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}

			user := User{
				Email:    seed.Email,
				Hash:     hash,
				Salt:     salt,
				Username: seed.Username,
				Name:     seed.Name,
				Surname:  seed.Surname,
				Role:     seed.Role,
			}
			if err := db.Create(&user).Error; err != nil {
				return fmt.Errorf("seed user %s: %w", seed.Username, err)
			}
		}
		logger.Infow("seeded default users", "count", len(seedUsers))
	}

	var imageCount int64
	if err := db.Model(&Image{}).Count(&imageCount).Error; err != nil {
		return fmt.Errorf("count images: %w", err)
	}

	if imageCount == 0 {
		for _, img := range seedImages {
			if err := db.Create(&img).Error; err != nil {
				return fmt.Errorf("seed image %s: %w", img.Title, err)
			}
		}
		logger.Infow("seeded image library", "count", len(seedImages))
	}

	var settingCount int64
	err := db.Model(&Setting{}).Where("key = ?", constants.WEBSITE_NAME_KEY).Count(&settingCount).Error
	if err != nil {
		return fmt.Errorf("count settings: %w", err)
	}
	if settingCount == 0 {
		if err := setWebsiteName(constants.DEFAULT_WEBSITE_NAME); err != nil {
			return err
		}
	}

	return nil
}
