package fmp

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"FMPull/internal/domain/models"
	"FMPull/pkg/util"
)

// FetchPages fetches page=0..pages-1 of rawURL and concatenates the row
// arrays. An empty page after the first ends the walk. pages below 2 is a
// plain Fetch.
func FetchPages(ctx context.Context, f Fetcher, rawURL string, pages int) (json.RawMessage, error) {
	if pages < 2 {
		return f.Fetch(ctx, rawURL)
	}

	var rows []json.RawMessage
	for page := 0; page < pages; page++ {
		pageURL, err := withPage(rawURL, page)
		if err != nil {
			return nil, models.NewJobError(models.FailureUpstream, util.RedactURL(rawURL), "build page url", err)
		}
		payload, err := f.Fetch(ctx, pageURL)
		if err != nil {
			if page > 0 && models.KindOf(err) == models.FailureEmpty {
				break
			}
			return nil, err
		}

		var chunk []json.RawMessage
		if err := json.Unmarshal(payload, &chunk); err != nil {
			return nil, models.NewJobError(models.FailureUpstream, util.RedactURL(pageURL), "expected an array page", err)
		}
		rows = append(rows, chunk...)
	}

	out, err := json.Marshal(rows)
	if err != nil {
		return nil, models.NewJobError(models.FailureUpstream, util.RedactURL(rawURL), "join pages", err)
	}
	return out, nil
}

func withPage(rawURL string, page int) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
