package main

import (
	"time"

	"gorm.io/datatypes"
)

// Page lifecycle states derived from the release date.
const (
	StatusDraft      = "Draft"
	StatusProgrammed = "Programmed"
	StatusPublished  = "Published"
)

// pageStatus derives the status of a page from its release date and
// the current time. No release date means the page is a draft; a
// release date in the future means it is programmed; otherwise it is
// published. A release date equal to now counts as published.
func pageStatus(releaseDate *datatypes.Date, now time.Time) string {
	if releaseDate == nil {
		return StatusDraft
	}
	if time.Time(*releaseDate).After(now) {
		return StatusProgrammed
	}
	return StatusPublished
}

// pageStatistics holds the per-user page counters reported on every
// user read. They are never stored; they are recomputed from the
// user's page rows each time.
type pageStatistics struct {
	Created    int
	Published  int
	Removed    int
	Programmed int
	Draft      int
}

// computeStatistics aggregates the counters over a user's raw page
// rows, soft-deleted ones included. Created counts every row; removed
// counts the deleted ones; the rest are split into draft, published
// and programmed with the same date comparison as pageStatus, so
// created always equals published + programmed + draft + removed.
func computeStatistics(rows []Page, now time.Time) pageStatistics {
	var stats pageStatistics
	stats.Created = len(rows)

	for _, page := range rows {
		if page.Deleted == 1 {
			stats.Removed++
			continue
		}

		switch pageStatus(page.ReleaseDate, now) {
		case StatusDraft:
			stats.Draft++
		case StatusProgrammed:
			stats.Programmed++
		case StatusPublished:
			stats.Published++
		}
	}

	return stats
}
