package main

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"pagecms/constants"
)

var errNotFound = errors.New("not found")

// pageRowsByUser returns the raw page rows owned by a user, deleted
// ones included. This is the only accessor the statistics path uses:
// it never enriches rows with their author, so computing a user's
// statistics cannot recurse back into user materialization.
func pageRowsByUser(userID int64) ([]Page, error) {
	var rows []Page
	if err := db.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("pages of user %d: %w", userID, err)
	}
	return rows, nil
}

func userStatistics(userID int64) (pageStatistics, error) {
	rows, err := pageRowsByUser(userID)
	if err != nil {
		return pageStatistics{}, err
	}
	return computeStatistics(rows, time.Now()), nil
}

func getUserRowByID(id int64) (*User, error) {
	var user User
	if err := db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound
		}
		return nil, fmt.Errorf("user %d: %w", id, err)
	}
	return &user, nil
}

func getUserRowByEmail(email string) (*User, error) {
	var user User
	if err := db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound
		}
		return nil, fmt.Errorf("user %q: %w", email, err)
	}
	return &user, nil
}

// getUserByID returns a user enriched with freshly computed page
// statistics.
func getUserByID(id int64) (*userJSON, error) {
	user, err := getUserRowByID(id)
	if err != nil {
		return nil, err
	}
	stats, err := userStatistics(user.ID)
	if err != nil {
		return nil, err
	}
	enriched := toUserJSON(*user, stats)
	return &enriched, nil
}

func getAllUsers() ([]userJSON, error) {
	var rows []User
	if err := db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("users: %w", err)
	}

	users := make([]userJSON, 0, len(rows))
	for _, row := range rows {
		stats, err := userStatistics(row.ID)
		if err != nil {
			return nil, err
		}
		users = append(users, toUserJSON(row, stats))
	}
	return users, nil
}

func getWebsiteName() (string, error) {
	var setting Setting
	err := db.First(&setting, "key = ?", constants.WEBSITE_NAME_KEY).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return constants.DEFAULT_WEBSITE_NAME, nil
		}
		return "", fmt.Errorf("website name: %w", err)
	}
	return setting.Value, nil
}

func setWebsiteName(name string) error {
	setting := Setting{Key: constants.WEBSITE_NAME_KEY, Value: name}
	if err := db.Save(&setting).Error; err != nil {
		return fmt.Errorf("save website name: %w", err)
	}
	return nil
}

func getAllImages() ([]imageJSON, error) {
	var rows []Image
	if err := db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("images: %w", err)
	}

	websiteName, err := getWebsiteName()
	if err != nil {
		return nil, err
	}

	images := make([]imageJSON, 0, len(rows))
	for _, row := range rows {
		images = append(images, toImageJSON(row, websiteName))
	}
	return images, nil
}

func getImageRowByID(id int64) (*Image, error) {
	var img Image
	if err := db.First(&img, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound
		}
		return nil, fmt.Errorf("image %d: %w", id, err)
	}
	return &img, nil
}

// contentRowsOfPage returns the raw content rows of a page in display
// order.
func contentRowsOfPage(pageID int64) ([]Content, error) {
	var rows []Content
	err := db.Where("page_id = ?", pageID).Order("sort_number ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("contents of page %d: %w", pageID, err)
	}
	return rows, nil
}

// contentsOfPage returns a page's content blocks with their image
// references resolved, ordered by sort number.
func contentsOfPage(pageID int64) ([]contentJSON, error) {
	rows, err := contentRowsOfPage(pageID)
	if err != nil {
		return nil, err
	}

	websiteName, err := getWebsiteName()
	if err != nil {
		return nil, err
	}

	contents := make([]contentJSON, 0, len(rows))
	for _, row := range rows {
		block := contentJSON{
			ID:         row.ID,
			Header:     row.Header,
			Paragraph:  row.Paragraph,
			SortNumber: row.SortNumber,
		}
		if row.ImageID != nil {
			img, err := getImageRowByID(*row.ImageID)
			if err != nil && !errors.Is(err, errNotFound) {
				return nil, err
			}
			if img != nil {
				resolved := toImageJSON(*img, websiteName)
				block.Image = &resolved
			}
		}
		contents = append(contents, block)
	}
	return contents, nil
}

func toPageJSON(page Page, user userJSON, contents []contentJSON, now time.Time) pageJSON {
	creation := page.CreationDate
	return pageJSON{
		ID:           page.ID,
		Title:        page.Title,
		ReleaseDate:  formatDate(page.ReleaseDate),
		CreationDate: *formatDate(&creation),
		Deleted:      page.Deleted,
		User:         &user,
		Status:       pageStatus(page.ReleaseDate, now),
		Contents:     contents,
	}
}

func enrichPage(page Page, now time.Time) (*pageJSON, error) {
	user, err := getUserByID(page.UserID)
	if err != nil && !errors.Is(err, errNotFound) {
		return nil, err
	}
	contents, err := contentsOfPage(page.ID)
	if err != nil {
		return nil, err
	}

	var userValue userJSON
	if user != nil {
		userValue = *user
	}
	enriched := toPageJSON(page, userValue, contents, now)
	return &enriched, nil
}

// getAllPages returns every non-deleted page, fully enriched, ordered
// by release date ascending with drafts (no release date) first and id
// as a stable tiebreak.
func getAllPages() ([]pageJSON, error) {
	var rows []Page
	err := db.Where("deleted = 0").
		Order("release_date IS NOT NULL, release_date ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("pages: %w", err)
	}

	now := time.Now()
	pages := make([]pageJSON, 0, len(rows))
	for _, row := range rows {
		page, err := enrichPage(row, now)
		if err != nil {
			return nil, err
		}
		pages = append(pages, *page)
	}
	return pages, nil
}

func getPageRowByID(id int64) (*Page, error) {
	var page Page
	err := db.Where("deleted = 0").First(&page, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound
		}
		return nil, fmt.Errorf("page %d: %w", id, err)
	}
	return &page, nil
}

func getPageByID(id int64) (*pageJSON, error) {
	page, err := getPageRowByID(id)
	if err != nil {
		return nil, err
	}
	return enrichPage(*page, time.Now())
}

// insertContents persists new content blocks linked to a page. The
// inserts run concurrently; they touch disjoint rows.
func insertContents(pageID int64, drafts []contentDraft) error {
	var group errgroup.Group
	for _, draft := range drafts {
		row := Content{
			Header:     draft.Header,
			Paragraph:  draft.Paragraph,
			SortNumber: draft.SortNumber,
			PageID:     pageID,
			ImageID:    draft.ImageID,
		}
		group.Go(func() error {
			if err := db.Create(&row).Error; err != nil {
				return fmt.Errorf("insert content: %w", err)
			}
			return nil
		})
	}
	return group.Wait()
}

// createPage persists a new page with its content blocks and returns
// its id.
func createPage(page *Page, drafts []contentDraft) (int64, error) {
	if err := db.Create(page).Error; err != nil {
		return 0, fmt.Errorf("create page: %w", err)
	}
	if err := insertContents(page.ID, drafts); err != nil {
		return 0, err
	}
	return page.ID, nil
}

// editPage updates the page row and applies the reconciled content
// changes. The three batches run concurrently with each other (they
// operate on disjoint rows); the caller must not read the page back
// before this returns.
func editPage(page *Page, changes contentChanges) error {
	err := db.Model(&Page{}).Where("id = ?", page.ID).
		Updates(map[string]any{
			"title":        page.Title,
			"release_date": page.ReleaseDate,
			"user_id":      page.UserID,
		}).Error
	if err != nil {
		return fmt.Errorf("update page %d: %w", page.ID, err)
	}

	var group errgroup.Group

	group.Go(func() error {
		return insertContents(page.ID, changes.ToInsert)
	})

	for _, row := range changes.ToUpdate {
		row := row
		group.Go(func() error {
			err := db.Model(&Content{}).Where("id = ?", row.ID).
				Updates(map[string]any{
					"header":      row.Header,
					"paragraph":   row.Paragraph,
					"sort_number": row.SortNumber,
					"image_id":    row.ImageID,
				}).Error
			if err != nil {
				return fmt.Errorf("update content %d: %w", row.ID, err)
			}
			return nil
		})
	}

	for _, row := range changes.ToRemove {
		row := row
		group.Go(func() error {
			err := db.Where("page_id = ? AND id = ?", page.ID, row.ID).
				Delete(&Content{}).Error
			if err != nil {
				return fmt.Errorf("remove content %d: %w", row.ID, err)
			}
			return nil
		})
	}

	return group.Wait()
}

// deletePage flags a page as deleted. The row and its contents stay in
// storage; normal queries no longer see them.
func deletePage(id int64) error {
	err := db.Model(&Page{}).Where("id = ?", id).Update("deleted", 1).Error
	if err != nil {
		return fmt.Errorf("delete page %d: %w", id, err)
	}
	return nil
}
