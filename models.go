package main

import (
	"time"

	"gorm.io/datatypes"

	"pagecms/constants"
)

// User is an account that can author pages. Role is 0 for a regular
// user and 1 for an administrator.
type User struct {
	ID       int64  `gorm:"primaryKey"`
	Email    string `gorm:"uniqueIndex"`
	Hash     string
	Salt     string
	Username string `gorm:"uniqueIndex"`
	Name     string
	Surname  string
	Role     int
}

func (User) TableName() string { return "user" }

// Page is a CMS page. ReleaseDate is nil for drafts; Deleted is a
// soft-delete flag (0 or 1) — rows are never physically removed.
type Page struct {
	ID           int64 `gorm:"primaryKey"`
	Title        string
	ReleaseDate  *datatypes.Date `gorm:"type:date"`
	CreationDate datatypes.Date  `gorm:"type:date"`
	Deleted      int             `gorm:"default:0"`
	UserID       int64           `gorm:"index"`
}

func (Page) TableName() string { return "page" }

// Content is one ordered block of a page body: a paragraph or an
// image reference, never both.
type Content struct {
	ID         int64 `gorm:"primaryKey"`
	Header     string
	Paragraph  *string
	SortNumber int   `gorm:"column:sort_number"`
	PageID     int64 `gorm:"index"`
	ImageID    *int64
}

func (Content) TableName() string { return "content" }

// Image is one entry of the fixed image library pages can embed.
type Image struct {
	ID    int64 `gorm:"primaryKey"`
	Src   string
	Alt   string
	Title string
}

func (Image) TableName() string { return "image" }

// Session binds a cookie token to a signed-in user.
type Session struct {
	Token     string `gorm:"primaryKey"`
	UserID    int64  `gorm:"index"`
	CreatedAt time.Time
}

func (Session) TableName() string { return "session" }

// Setting is a process-wide key/value configuration row. The website
// name lives here as a genuine singleton.
type Setting struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

func (Setting) TableName() string { return "setting" }

// Wire representations. Field names match what the front end expects.

type userJSON struct {
	ID                    int64  `json:"id"`
	Email                 string `json:"email"`
	Username              string `json:"username"`
	Name                  string `json:"name"`
	Surname               string `json:"surname"`
	Role                  int    `json:"role"`
	NumberPagesPublished  int    `json:"number_pages_published"`
	NumberPagesCreated    int    `json:"number_pages_created"`
	NumberPagesRemoved    int    `json:"number_pages_removed"`
	NumberPagesProgrammed int    `json:"number_pages_programmed"`
	NumberPagesDraft      int    `json:"number_pages_draft"`
}

type imageJSON struct {
	ID          int64  `json:"id"`
	Src         string `json:"src"`
	Alt         string `json:"alt"`
	Title       string `json:"title"`
	WebsiteName string `json:"website_name"`
}

type contentJSON struct {
	ID         int64      `json:"id"`
	Header     string     `json:"header"`
	Paragraph  *string    `json:"paragraph"`
	SortNumber int        `json:"sort_number"`
	Image      *imageJSON `json:"image"`
}

type pageJSON struct {
	ID           int64         `json:"id"`
	Title        string        `json:"title"`
	ReleaseDate  *string       `json:"release_date"`
	CreationDate string        `json:"creation_date"`
	Deleted      int           `json:"deleted"`
	User         *userJSON     `json:"user"`
	Status       string        `json:"status"`
	Contents     []contentJSON `json:"contents"`
}

func toUserJSON(u User, stats pageStatistics) userJSON {
	return userJSON{
		ID:                    u.ID,
		Email:                 u.Email,
		Username:              u.Username,
		Name:                  u.Name,
		Surname:               u.Surname,
		Role:                  u.Role,
		NumberPagesPublished:  stats.Published,
		NumberPagesCreated:    stats.Created,
		NumberPagesRemoved:    stats.Removed,
		NumberPagesProgrammed: stats.Programmed,
		NumberPagesDraft:      stats.Draft,
	}
}

func toImageJSON(img Image, websiteName string) imageJSON {
	return imageJSON{
		ID:          img.ID,
		Src:         img.Src,
		Alt:         img.Alt,
		Title:       img.Title,
		WebsiteName: websiteName,
	}
}

func formatDate(d *datatypes.Date) *string {
	if d == nil {
		return nil
	}
	s := time.Time(*d).Format(constants.DATE_FORMAT)
	return &s
}

func parseDate(s string) (datatypes.Date, error) {
	t, err := time.Parse(constants.DATE_FORMAT, s)
	if err != nil {
		return datatypes.Date{}, err
	}
	return datatypes.Date(t), nil
}
