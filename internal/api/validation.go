package api

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"

	"sessionhub/internal/models"
	"sessionhub/internal/storage"
)

// ParseTags splits a comma-delimited tag string, trimming surrounding
// whitespace from each entry. Order, duplicates, and empty entries are
// preserved; only a blank input yields no tags.
func ParseTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		tags = append(tags, norm.NFC.String(strings.TrimSpace(part)))
	}
	return tags
}

func validateSessionRequest(req sessionRequest, status models.SessionStatus) (storage.UpsertSessionParams, error) {
	title := norm.NFC.String(strings.TrimSpace(req.Title))
	if title == "" {
		return storage.UpsertSessionParams{}, errors.New("title is required")
	}

	rawURL := strings.TrimSpace(req.JSONFileURL)
	if rawURL == "" {
		return storage.UpsertSessionParams{}, errors.New("json_file_url is required")
	}
	parsed, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return storage.UpsertSessionParams{}, fmt.Errorf("json_file_url is not a valid URL")
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return storage.UpsertSessionParams{}, fmt.Errorf("json_file_url must use http or https")
	}
	if parsed.Host == "" {
		return storage.UpsertSessionParams{}, fmt.Errorf("json_file_url is not a valid URL")
	}

	return storage.UpsertSessionParams{
		ID:          strings.TrimSpace(req.ID),
		Title:       title,
		Tags:        ParseTags(req.Tags),
		JSONFileURL: rawURL,
		Status:      status,
	}, nil
}
