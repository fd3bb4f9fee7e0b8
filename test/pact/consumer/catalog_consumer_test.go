//go:build pact
// +build pact

package consumer_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	pacttest "github.com/Apurer/go-gin-crud-server/test/pact"

	pactconsumer "github.com/pact-foundation/pact-go/v2/consumer"
	pactlog "github.com/pact-foundation/pact-go/v2/log"
	"github.com/pact-foundation/pact-go/v2/matchers"
	"github.com/stretchr/testify/require"
)

type bandPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type songPayload struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Artist string       `json:"artist"`
	Year   *int         `json:"year"`
	BandID string       `json:"band_id"`
	Band   *bandPayload `json:"band"`
}

type songPage struct {
	Items  []songPayload `json:"items"`
	Total  int64         `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

type problemDetail struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail"`
	Extensions struct {
		Fields map[string]string `json:"fields"`
	} `json:"extensions"`
}

type apiError struct {
	problem problemDetail
}

func (e apiError) Error() string {
	msg := e.problem.Title
	if msg == "" {
		msg = "api error"
	}
	if e.problem.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.problem.Detail)
	}
	return fmt.Sprintf("%s (status %d)", msg, e.problem.Status)
}

func TestCatalogPortalContract(t *testing.T) {
	pactlog.SetLogLevel("INFO")

	pact, err := pactconsumer.NewV2Pact(pactconsumer.MockHTTPProviderConfig{
		Consumer: pacttest.ConsumerName,
		Provider: pacttest.ProviderName,
		PactDir:  pacttest.PactDir(t),
		LogDir:   pacttest.LogDir(t),
	})
	require.NoError(t, err)

	jsonContentType := matchers.Regex("application/json; charset=utf-8", `application\/json(?:;\s?charset=utf-8)?`)
	problemContentType := matchers.S("application/problem+json")
	uuidMatcher := func(example string) matchers.Matcher {
		return matchers.Regex(example, pacttest.UUIDPattern)
	}
	timestamp := matchers.Regex(pacttest.ExampleTimestamp, pacttest.TimestampPattern)
	bandBody := matchers.Map{
		"id":         uuidMatcher(pacttest.ExistingBandID),
		"name":       matchers.Like(pacttest.ExampleBandName),
		"created_at": timestamp,
	}

	pact.AddInteraction().
		Given(pacttest.StateCatalogEmpty).
		UponReceiving("a request to list songs of an empty catalog").
		WithRequest("GET", "/songs").
		WillRespondWith(http.StatusOK, func(b *pactconsumer.V2ResponseBuilder) {
			b.Header("Content-Type", jsonContentType)
			b.JSONBody(matchers.Map{
				"items":  []any{},
				"total":  matchers.Like(0),
				"limit":  matchers.Like(50),
				"offset": matchers.Like(0),
			})
		})

	pact.AddInteraction().
		Given(pacttest.StateBandExists).
		UponReceiving("a request to fetch an existing band").
		WithRequest("GET", "/bands/"+pacttest.ExistingBandID).
		WillRespondWith(http.StatusOK, func(b *pactconsumer.V2ResponseBuilder) {
			b.Header("Content-Type", jsonContentType)
			b.JSONBody(bandBody)
		})

	pact.AddInteraction().
		Given(pacttest.StateBandExists).
		UponReceiving("a request to create a song for an existing band").
		WithRequest("POST", "/songs", func(b *pactconsumer.V2RequestBuilder) {
			b.Header("Content-Type", matchers.S("application/json"))
			b.JSONBody(pacttest.ExampleSongPayload())
		}).
		WillRespondWith(http.StatusCreated, func(b *pactconsumer.V2ResponseBuilder) {
			b.Header("Content-Type", jsonContentType)
			b.JSONBody(matchers.Map{
				"id":         uuidMatcher("0b7f6c1e-2a3d-4e5f-8a9b-0c1d2e3f4a5b"),
				"name":       matchers.S(pacttest.ExampleSongName),
				"artist":     matchers.S(pacttest.ExampleBandName),
				"year":       matchers.Like(pacttest.ExampleSongYear),
				"band_id":    matchers.S(pacttest.ExistingBandID),
				"band":       bandBody,
				"created_at": timestamp,
			})
		})

	pact.AddInteraction().
		Given(pacttest.StateSongMissing).
		UponReceiving("a request for a missing song").
		WithRequest("GET", "/songs/"+pacttest.MissingSongID).
		WillRespondWith(http.StatusNotFound, func(b *pactconsumer.V2ResponseBuilder) {
			b.Header("Content-Type", problemContentType)
			b.JSONBody(matchers.Map{
				"type":   matchers.S("/problems/not-found"),
				"title":  matchers.S("Resource Not Found"),
				"status": matchers.Like(http.StatusNotFound),
			})
		})

	pact.AddInteraction().
		Given(pacttest.StateCatalogEmpty).
		UponReceiving("a request to create a band without a name").
		WithRequest("POST", "/bands", func(b *pactconsumer.V2RequestBuilder) {
			b.Header("Content-Type", matchers.S("application/json"))
			b.JSONBody(map[string]any{})
		}).
		WillRespondWith(http.StatusBadRequest, func(b *pactconsumer.V2ResponseBuilder) {
			b.Header("Content-Type", problemContentType)
			b.JSONBody(matchers.Map{
				"type":   matchers.S("/problems/validation-error"),
				"status": matchers.Like(http.StatusBadRequest),
				"extensions": matchers.Map{
					"fields": matchers.Map{"name": matchers.Like("is required")},
				},
			})
		})

	err = pact.ExecuteTest(t, func(config pactconsumer.MockServerConfig) error {
		client := newCatalogClient(config)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		page, err := client.ListSongs(ctx)
		if err != nil {
			return fmt.Errorf("list songs: %w", err)
		}
		if page.Total != 0 || len(page.Items) != 0 {
			return fmt.Errorf("expected an empty page, got %+v", page)
		}

		var band bandPayload
		if err := client.do(ctx, http.MethodGet, "/bands/"+pacttest.ExistingBandID, nil, &band); err != nil {
			return fmt.Errorf("get band: %w", err)
		}
		if band.ID != pacttest.ExistingBandID {
			return fmt.Errorf("expected band %s, got %+v", pacttest.ExistingBandID, band)
		}

		var song songPayload
		if err := client.do(ctx, http.MethodPost, "/songs", pacttest.ExampleSongPayload(), &song); err != nil {
			return fmt.Errorf("create song: %w", err)
		}
		if song.ID == "" || song.Band == nil || song.Band.ID != pacttest.ExistingBandID {
			return fmt.Errorf("expected created song with its band, got %+v", song)
		}

		var apiErr apiError
		err = client.do(ctx, http.MethodGet, "/songs/"+pacttest.MissingSongID, nil, &song)
		if !errors.As(err, &apiErr) || apiErr.problem.Status != http.StatusNotFound {
			return fmt.Errorf("expected 404 for song %s, got %v", pacttest.MissingSongID, err)
		}

		err = client.do(ctx, http.MethodPost, "/bands", map[string]any{}, &band)
		if !errors.As(err, &apiErr) || apiErr.problem.Extensions.Fields["name"] == "" {
			return fmt.Errorf("expected a validation problem for name, got %v", err)
		}
		return nil
	})
	require.NoError(t, err)
}

type catalogClient struct {
	baseURL    string
	httpClient *http.Client
}

func newCatalogClient(config pactconsumer.MockServerConfig) *catalogClient {
	host := config.Host
	if host == "" {
		host = "localhost"
	}
	transport := &http.Transport{TLSClientConfig: config.TLSConfig}
	return &catalogClient{
		baseURL:    fmt.Sprintf("http://%s:%d", host, config.Port),
		httpClient: &http.Client{Transport: transport, Timeout: 10 * time.Second},
	}
}

func (c *catalogClient) ListSongs(ctx context.Context) (*songPage, error) {
	var page songPage
	if err := c.do(ctx, http.MethodGet, "/songs", nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *catalogClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	var req *http.Request
	var err error
	if reader != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	}
	if err != nil {
		return err
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(res)
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func decodeAPIError(res *http.Response) error {
	var problem problemDetail
	_ = json.NewDecoder(res.Body).Decode(&problem)
	if problem.Status == 0 {
		problem.Status = res.StatusCode
	}
	return apiError{problem: problem}
}
