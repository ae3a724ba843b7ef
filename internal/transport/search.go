package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
	"github.com/Evan5764/zoopla-co-uk-scraper/internal/normalize"
)

// Source endpoints, relative to the base URL.
const (
	searchPath = "search"
	countPath  = "search/count"
)

// searchResponse is the JSON body of a search page.
type searchResponse struct {
	Total      int               `json:"total"`
	Listings   []json.RawMessage `json:"listings"`
	NextCursor string            `json:"next_cursor"`
	Last       bool              `json:"last"`
}

// countResponse is the JSON body of a count probe.
type countResponse struct {
	Total *int `json:"total"`
}

// Probe returns the result count the source reports for spec.
func (c *Client) Probe(ctx context.Context, spec model.QuerySpec) (int, error) {
	u := c.endpoint(countPath, specValues(spec))

	body, _, err := c.get(ctx, u)
	if err != nil {
		return 0, err
	}

	var resp countResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, model.NewPermanentError(http.StatusOK, fmt.Errorf("decode count response: %w", err))
	}
	if resp.Total == nil {
		return 0, model.NewPermanentError(http.StatusOK, errors.New("count response has no total"))
	}
	return *resp.Total, nil
}

// Fetch retrieves one page of a sub-query. JSON responses carry one object
// per listing; HTML responses are cut into listing cards.
func (c *Client) Fetch(ctx context.Context, req model.PageRequest) (*model.RawPage, error) {
	u := c.endpoint(searchPath, pageValues(req))

	body, contentType, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}

	if mediaType(contentType) == normalize.ContentTypeHTML {
		listings, err := normalize.SplitListings(bytes.NewReader(body), u)
		if err != nil {
			return nil, model.NewPermanentError(http.StatusOK, err)
		}
		return &model.RawPage{Listings: listings}, nil
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, model.NewPermanentError(http.StatusOK, fmt.Errorf("decode search response: %w", err))
	}

	page := &model.RawPage{
		Listings:   make([]model.RawPayload, 0, len(resp.Listings)),
		NextCursor: resp.NextCursor,
		Last:       resp.Last,
		Total:      resp.Total,
	}
	for _, raw := range resp.Listings {
		page.Listings = append(page.Listings, model.RawPayload{
			Body:        []byte(raw),
			ContentType: normalize.ContentTypeJSON,
			SourceURL:   u,
		})
	}
	return page, nil
}

// get issues a GET and returns the body of a 2xx response. Any other
// outcome is returned as a *model.FetchError.
func (c *Client) get(ctx context.Context, u string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", model.NewPermanentError(0, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json, text/html;q=0.9")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, "", model.NewTransientError(resp.StatusCode, false, fmt.Errorf("read body: %w", err))
	}

	if fe := c.classifyResponse(resp, body); fe != nil {
		c.logger.Debug("request failed",
			"url", u,
			"status", resp.StatusCode,
			"kind", fe.Kind.String(),
			"rate_limited", fe.RateLimited,
		)
		return nil, "", fe
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// endpoint resolves path against the base URL with the given query.
func (c *Client) endpoint(path string, q url.Values) string {
	u := c.baseURL.JoinPath(path)
	u.RawQuery = q.Encode()
	return u.String()
}

// specValues encodes the filters of spec as query parameters.
func specValues(spec model.QuerySpec) url.Values {
	q := url.Values{}
	q.Set("category", string(spec.Category))
	if spec.BBox != nil {
		q.Set("min_lat", strconv.FormatFloat(spec.BBox.MinLat, 'f', -1, 64))
		q.Set("min_lon", strconv.FormatFloat(spec.BBox.MinLon, 'f', -1, 64))
		q.Set("max_lat", strconv.FormatFloat(spec.BBox.MaxLat, 'f', -1, 64))
		q.Set("max_lon", strconv.FormatFloat(spec.BBox.MaxLon, 'f', -1, 64))
	}
	if spec.Area != "" {
		q.Set("area", spec.Area)
	}
	if spec.Price.Min > 0 {
		q.Set("price_min", strconv.FormatInt(spec.Price.Min, 10))
	}
	if !spec.Price.Unbounded() {
		q.Set("price_max", strconv.FormatInt(spec.Price.Max, 10))
	}
	if spec.PropertyType != "" {
		q.Set("property_type", spec.PropertyType)
	}
	return q
}

// pageValues encodes a page request. Cursor-paginated continuations send
// the cursor; otherwise the offset is used.
func pageValues(req model.PageRequest) url.Values {
	q := specValues(req.SubQuery.Spec)
	q.Set("page_size", strconv.Itoa(req.PageSize))
	if req.Cursor != "" {
		q.Set("cursor", req.Cursor)
	} else {
		q.Set("offset", strconv.Itoa(req.Offset))
	}
	return q
}

// mediaType strips parameters from a Content-Type value.
func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType
	}
	return mt
}
