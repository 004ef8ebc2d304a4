package models

import "fmt"

// Category is the tag category used by the media API.
type Category int

const (
	CategoryGeneral   Category = 0
	CategoryArtist    Category = 1
	CategoryCopyright Category = 3
	CategoryCharacter Category = 4
	CategorySpecies   Category = 5
	CategoryInvalid   Category = 6
	CategoryMeta      Category = 7
	CategoryLore      Category = 8
)

var categoryNames = map[Category]string{
	CategoryGeneral:   "general",
	CategoryArtist:    "artist",
	CategoryCopyright: "copyright",
	CategoryCharacter: "character",
	CategorySpecies:   "species",
	CategoryInvalid:   "invalid",
	CategoryMeta:      "meta",
	CategoryLore:      "lore",
}

// Valid reports whether c is a known category. 2 is unused upstream.
func (c Category) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// ParseCategory accepts a category name or its number.
func ParseCategory(s string) (Category, error) {
	for c, name := range categoryNames {
		if name == s || fmt.Sprint(int(c)) == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown tag category %q", s)
}

// Rating is the content rating filter.
type Rating string

const (
	RatingSafe         Rating = "s"
	RatingQuestionable Rating = "q"
	RatingExplicit     Rating = "e"
)

func (r Rating) Valid() bool {
	switch r {
	case RatingSafe, RatingQuestionable, RatingExplicit:
		return true
	}
	return false
}

// FileType filters posts by file format.
type FileType string

const (
	FileTypeJPG  FileType = "jpg"
	FileTypePNG  FileType = "png"
	FileTypeGIF  FileType = "gif"
	FileTypeWEBM FileType = "webm"
)

func (f FileType) Valid() bool {
	switch f {
	case FileTypeJPG, FileTypePNG, FileTypeGIF, FileTypeWEBM:
		return true
	}
	return false
}

// SortOrder is the post ordering understood by the media API.
type SortOrder string

const (
	SortID               SortOrder = "id"
	SortRandom           SortOrder = "random"
	SortScore            SortOrder = "score"
	SortScoreAsc         SortOrder = "score_asc"
	SortFavCount         SortOrder = "favcount"
	SortFavCountAsc      SortOrder = "favcount_asc"
	SortTagCount         SortOrder = "tagcount"
	SortTagCountAsc      SortOrder = "tagcount_asc"
	SortCommentCount     SortOrder = "comment_count"
	SortCommentCountAsc  SortOrder = "comment_count_asc"
	SortCommentBumped    SortOrder = "comment_bumped"
	SortCommentBumpedAsc SortOrder = "comment_bumped_asc"
	SortMPixels          SortOrder = "mpixels"
	SortMPixelsAsc       SortOrder = "mpixels_asc"
	SortFileSize         SortOrder = "filesize"
	SortFileSizeAsc      SortOrder = "filesize_asc"
	SortLandscape        SortOrder = "landscape"
	SortPortrait         SortOrder = "portrait"
	SortDuration         SortOrder = "duration"
	SortDurationAsc      SortOrder = "duration_asc"
)

// SortOrders lists every supported ordering.
var SortOrders = []SortOrder{
	SortID, SortRandom, SortScore, SortScoreAsc, SortFavCount, SortFavCountAsc,
	SortTagCount, SortTagCountAsc, SortCommentCount, SortCommentCountAsc,
	SortCommentBumped, SortCommentBumpedAsc, SortMPixels, SortMPixelsAsc,
	SortFileSize, SortFileSizeAsc, SortLandscape, SortPortrait,
	SortDuration, SortDurationAsc,
}

func (o SortOrder) Valid() bool {
	for _, known := range SortOrders {
		if o == known {
			return true
		}
	}
	return false
}

// DateRange limits posts to a recent period.
type DateRange string

const (
	DateDay    DateRange = "day"
	DateWeek   DateRange = "week"
	DateMonth  DateRange = "month"
	DateYear   DateRange = "year"
	DateDecade DateRange = "decade"
)

func (d DateRange) Valid() bool {
	switch d {
	case DateDay, DateWeek, DateMonth, DateYear, DateDecade:
		return true
	}
	return false
}
