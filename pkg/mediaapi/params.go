package mediaapi

import (
	"strings"

	"github.com/fgp-bot/fgpbot/pkg/models"
)

// ContentParams filters a posts request. Zero values are left out.
type ContentParams struct {
	Tags      []string
	Rating    models.Rating
	FileType  models.FileType
	SortOrder models.SortOrder
	DateRange models.DateRange
}

// BuildTags joins the free tags and the metatag filters into the single
// space separated search string the API expects.
func (p ContentParams) BuildTags() string {
	tags := append([]string(nil), p.Tags...)
	if p.Rating != "" {
		tags = append(tags, "rating:"+strings.ToLower(string(p.Rating)))
	}
	if p.FileType != "" {
		tags = append(tags, "type:"+strings.ToLower(string(p.FileType)))
	}
	if p.SortOrder != "" {
		tags = append(tags, "order:"+strings.ToLower(string(p.SortOrder)))
	}
	if p.DateRange != "" {
		tags = append(tags, "date:"+strings.ToLower(string(p.DateRange)))
	}
	return strings.TrimSpace(strings.Join(tags, " "))
}

// TagQuery filters a tags request.
type TagQuery struct {
	Search   string
	Category *models.Category
	// Order defaults to "count".
	Order string
	// Limit defaults to 75 and is capped at MaxLimit.
	Limit int
}
