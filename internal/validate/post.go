// Package validate checks incoming post payloads before they reach the store.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"postkeeper/internal/model"
)

// Violation is one failed field rule.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error carries every violation found in a payload.
type Error struct {
	Violations []Violation
}

func (e *Error) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *Error) add(field, format string, args ...any) {
	e.Violations = append(e.Violations, Violation{Field: field, Message: fmt.Sprintf(format, args...)})
}

// PostRequest is the validated body of a create or update call.
type PostRequest struct {
	Title    string
	Content  string
	Category string
	Tags     []string
}

// Post converts the request into an unsaved post.
func (r PostRequest) Post() model.Post {
	return model.NewPost(r.Title, r.Content, r.Category, r.Tags)
}

// Post validates a raw JSON body. Every field is checked; the returned
// error, if any, is an *Error listing all violations.
func Post(body []byte) (PostRequest, error) {
	var req PostRequest
	verr := &Error{}

	fields := map[string]json.RawMessage{}
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 {
		if err := json.Unmarshal(trimmed, &fields); err != nil || fields == nil {
			verr.add("body", "request body must be a JSON object")
			return req, verr
		}
	}

	req.Title = stringField(verr, fields, "title", true)
	req.Content = stringField(verr, fields, "content", false)
	req.Category = stringField(verr, fields, "category", true)
	req.Tags = tagsField(verr, fields)

	if len(verr.Violations) > 0 {
		return PostRequest{}, verr
	}
	return req, nil
}

// NewPostRequest validates already-decoded values, as used by the CLI.
func NewPostRequest(title, content, category string, tags []string) (PostRequest, error) {
	body, err := json.Marshal(map[string]any{
		"title":    title,
		"content":  content,
		"category": category,
		"tags":     tags,
	})
	if err != nil {
		return PostRequest{}, err
	}
	return Post(body)
}

func stringField(verr *Error, fields map[string]json.RawMessage, name string, trim bool) string {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		verr.add(name, "%s is required", name)
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		verr.add(name, "%s must be a string", name)
		return ""
	}
	if trim {
		s = strings.TrimSpace(s)
	}
	if s == "" {
		verr.add(name, "%s is required", name)
		return ""
	}
	return s
}

func tagsField(verr *Error, fields map[string]json.RawMessage) []string {
	raw, ok := fields["tags"]
	if !ok || isNull(raw) {
		return []string{}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		verr.add("tags", "tags must be an array of strings")
		return nil
	}

	tags := make([]string, 0, len(items))
	for _, item := range items {
		var tag string
		if isNull(item) || json.Unmarshal(item, &tag) != nil {
			verr.add("tags", "tags must be an array of strings")
			return nil
		}
		tags = append(tags, tag)
	}
	return tags
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
