package model

import (
	"strings"
	"time"
)

// Post is a blog-style content item.
type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Category  string    `json:"category"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewPost builds an unsaved post. The store assigns ID and timestamps.
func NewPost(title, content, category string, tags []string) Post {
	p := Post{
		Title:    title,
		Content:  content,
		Category: category,
	}
	p.SetTags(tags)
	return p
}

// SetTags replaces the tags, keeping the slice non-nil so it encodes as [].
func (p *Post) SetTags(tags []string) {
	if tags == nil {
		tags = []string{}
	}
	p.Tags = tags
}

// Replace overwrites every editable field with the ones from next.
// ID and CreatedAt are left alone.
func (p *Post) Replace(next Post) {
	p.Title = next.Title
	p.Content = next.Content
	p.Category = next.Category
	p.SetTags(next.Tags)
}

// Matches reports whether term occurs, ignoring case, in the title,
// content or category.
func (p *Post) Matches(term string) bool {
	return p.SearchText().Contains(term)
}

// SearchText returns the indexed form of the post's searchable fields.
func (p *Post) SearchText() SearchText {
	return NewSearchText(p.Title, p.Content, p.Category)
}

const fieldSep = "\x00"

// SearchText is the lower-cased title, content and category joined by NUL.
type SearchText string

func NewSearchText(title, content, category string) SearchText {
	return SearchText(strings.ToLower(strings.Join([]string{title, content, category}, fieldSep)))
}

// Contains reports whether term is a substring of one of the fields,
// ignoring case. The empty term matches everything.
func (s SearchText) Contains(term string) bool {
	if term == "" {
		return true
	}
	if strings.Contains(term, fieldSep) {
		return false
	}
	return strings.Contains(string(s), strings.ToLower(term))
}
