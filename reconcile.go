package main

// contentDraft is a content block as submitted by the client, after
// the API boundary has resolved it. A nil or negative ID marks a block
// that has never been persisted and must be inserted; a non-negative
// ID refers to an existing row.
type contentDraft struct {
	ID         *int64
	Header     string
	Paragraph  *string
	ImageID    *int64
	SortNumber int
}

// newContentDraft builds a content block enforcing the body invariant:
// a block carries a paragraph or an image, never both. When a
// paragraph is present the image reference is dropped.
func newContentDraft(id *int64, header string, paragraph *string, imageID *int64, sortNumber int) contentDraft {
	if paragraph != nil {
		imageID = nil
	}
	return contentDraft{
		ID:         id,
		Header:     header,
		Paragraph:  paragraph,
		ImageID:    imageID,
		SortNumber: sortNumber,
	}
}

// isNew reports whether the draft has never been persisted.
func (d contentDraft) isNew() bool {
	return d.ID == nil || *d.ID < 0
}

// contentChanges is the outcome of reconciling a submitted content
// list against the persisted one. The three sets are disjoint and can
// be applied in any order relative to each other.
type contentChanges struct {
	ToInsert []contentDraft
	ToUpdate []Content
	ToRemove []Content
}

// reconcileContents diffs the client-desired final state of a page's
// content blocks against the persisted rows. New drafts are inserted;
// drafts whose ID matches an existing row overwrite it; existing rows
// absent from the submission are removed.
func reconcileContents(existing []Content, submitted []contentDraft) contentChanges {
	byID := make(map[int64]Content, len(existing))
	for _, row := range existing {
		byID[row.ID] = row
	}

	var changes contentChanges
	submittedIDs := make(map[int64]bool, len(submitted))

	for _, draft := range submitted {
		if draft.isNew() {
			changes.ToInsert = append(changes.ToInsert, draft)
			continue
		}

		submittedIDs[*draft.ID] = true
		row, ok := byID[*draft.ID]
		if !ok {
			continue
		}

		row.Header = draft.Header
		row.Paragraph = draft.Paragraph
		row.ImageID = draft.ImageID
		row.SortNumber = draft.SortNumber
		changes.ToUpdate = append(changes.ToUpdate, row)
	}

	for _, row := range existing {
		if !submittedIDs[row.ID] {
			changes.ToRemove = append(changes.ToRemove, row)
		}
	}

	return changes
}
