package models

import (
	"encoding/json"
	"fmt"
)

// MediaFile is the file section of a post.
type MediaFile struct {
	Size      int64  `json:"size"`
	Hash      string `json:"md5"`
	URL       string `json:"url"`
	Extension string `json:"ext"`
}

// MediaContent is one post returned by the media API.
type MediaContent struct {
	ContentID  int64               `json:"id"`
	File       MediaFile           `json:"file"`
	SampleURL  string              `json:"-"`
	PreviewURL string              `json:"-"`
	Rating     string              `json:"rating"`
	Tags       map[string][]string `json:"tags"`
}

// UnmarshalJSON lifts sample.url and preview.url to the top level.
func (m *MediaContent) UnmarshalJSON(data []byte) error {
	type plain MediaContent
	var raw struct {
		plain
		Sample *struct {
			URL *string `json:"url"`
		} `json:"sample"`
		Preview *struct {
			URL *string `json:"url"`
		} `json:"preview"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = MediaContent(raw.plain)
	if raw.Sample != nil && raw.Sample.URL != nil {
		m.SampleURL = *raw.Sample.URL
	}
	if raw.Preview != nil && raw.Preview.URL != nil {
		m.PreviewURL = *raw.Preview.URL
	}
	if m.Tags == nil {
		m.Tags = map[string][]string{}
	}
	return nil
}

// ContentResponse is the body of a posts request.
type ContentResponse struct {
	Posts []MediaContent `json:"posts"`
}

// Tag is one tag returned by the media API.
type Tag struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	PostCount int      `json:"post_count"`
	Category  Category `json:"category"`
}

// TagResponse is the body of a tags request. The API answers with a bare
// list, or with {"tags": []} when nothing matched.
type TagResponse struct {
	Tags []Tag `json:"tags"`
}

func (t *TagResponse) UnmarshalJSON(data []byte) error {
	var list []Tag
	if err := json.Unmarshal(data, &list); err == nil {
		t.Tags = list
		return nil
	}
	var wrapped struct {
		Tags []Tag `json:"tags"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return fmt.Errorf("unexpected tags payload: %w", err)
	}
	t.Tags = wrapped.Tags
	return nil
}
