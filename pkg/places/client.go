package places

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api/place"

// Client performs Google Places API operations.
type Client interface {
	FindPlace(ctx context.Context, query string, bias *LocationBias) (*FindPlaceResponse, error)
	Details(ctx context.Context, placeID string) (*DetailsResponse, error)
	Photo(ctx context.Context, photoReference string, maxWidth int) ([]byte, string, error)
}

// LocationBias biases a text search toward a circle around a point.
type LocationBias struct {
	Lat    float64
	Lng    float64
	Radius int // metres
}

// FindPlaceResponse is the response from Find Place From Text.
type FindPlaceResponse struct {
	Candidates []Candidate `json:"candidates"`
	Status     string      `json:"status"`
}

// Candidate is a place candidate returned by Find Place.
type Candidate struct {
	PlaceID string `json:"place_id"`
	Name    string `json:"name"`
}

// DetailsResponse is the response from Place Details.
type DetailsResponse struct {
	Result Details `json:"result"`
	Status string  `json:"status"`
}

// Details is the detailed place record.
type Details struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	FormattedAddress string   `json:"formatted_address"`
	BusinessStatus   string   `json:"business_status"`
	Rating           float64  `json:"rating"`
	UserRatingsTotal int      `json:"user_ratings_total"`
	Types            []string `json:"types"`
	Geometry         Geometry `json:"geometry"`
	Photos           []Photo  `json:"photos"`
	Reviews          []Review `json:"reviews"`
}

// Geometry holds the place location.
type Geometry struct {
	Location LatLng `json:"location"`
}

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Photo is a photo reference attached to a place.
type Photo struct {
	PhotoReference string `json:"photo_reference"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
}

// Review is a user review attached to a place.
type Review struct {
	AuthorName string `json:"author_name"`
	Rating     int    `json:"rating"`
	Text       string `json:"text"`
	Time       int64  `json:"time"` // unix seconds
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithTimeout overrides the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Google Places API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) FindPlace(ctx context.Context, query string, bias *LocationBias) (*FindPlaceResponse, error) {
	params := url.Values{}
	params.Set("input", query)
	params.Set("inputtype", "textquery")
	params.Set("fields", "place_id,name")
	if bias != nil {
		params.Set("locationbias", fmt.Sprintf("circle:%d@%f,%f", bias.Radius, bias.Lat, bias.Lng))
	}

	var result FindPlaceResponse
	if err := c.getJSON(ctx, "/findplacefromtext/json", params, &result); err != nil {
		return nil, eris.Wrap(err, "places: find place")
	}
	return &result, nil
}

func (c *httpClient) Details(ctx context.Context, placeID string) (*DetailsResponse, error) {
	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", "place_id,name,formatted_address,business_status,rating,user_ratings_total,types,geometry,photos,reviews")

	var result DetailsResponse
	if err := c.getJSON(ctx, "/details/json", params, &result); err != nil {
		return nil, eris.Wrapf(err, "places: details %s", placeID)
	}
	return &result, nil
}

// Photo fetches photo bytes and the served media type. The Places photo
// endpoint answers with a redirect to the actual media URL; the default
// http.Client follows it.
func (c *httpClient) Photo(ctx context.Context, photoReference string, maxWidth int) ([]byte, string, error) {
	params := url.Values{}
	params.Set("photoreference", photoReference)
	params.Set("maxwidth", fmt.Sprintf("%d", maxWidth))
	params.Set("key", c.apiKey)

	if err := c.wait(ctx); err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/photo?"+params.Encode(), nil)
	if err != nil {
		return nil, "", eris.Wrap(err, "places: create photo request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", eris.Wrap(err, "places: fetch photo")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, "", eris.Errorf("places: photo status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", eris.Wrap(err, "places: read photo")
	}

	mediaType := resp.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	return data, mediaType, nil
}

func (c *httpClient) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.wait(ctx); err != nil {
		return err
	}

	params.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response")
	}

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "unmarshal response")
	}
	return nil
}

func (c *httpClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "rate limit wait")
	}
	return nil
}
