package geo

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravi-labs/retail-verify/pkg/places"
)

// fakePlaces implements places.Client with canned responses.
type fakePlaces struct {
	findResp    *places.FindPlaceResponse
	findErr     error
	detailsResp *places.DetailsResponse
	detailsErr  error
	lastQuery   string
	lastBias    *places.LocationBias
}

func (f *fakePlaces) FindPlace(_ context.Context, query string, bias *places.LocationBias) (*places.FindPlaceResponse, error) {
	f.lastQuery = query
	f.lastBias = bias
	return f.findResp, f.findErr
}

func (f *fakePlaces) Details(_ context.Context, placeID string) (*places.DetailsResponse, error) {
	return f.detailsResp, f.detailsErr
}

func (f *fakePlaces) Photo(_ context.Context, _ string, _ int) ([]byte, string, error) {
	return nil, "", eris.New("not implemented")
}

// errTransport fails every request so url expansion falls back to the
// original url without touching the network.
type errTransport struct{}

func (errTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, eris.New("no network in tests")
}

func newTestResolver(client places.Client) *Resolver {
	return &Resolver{
		client:     client,
		http:       &http.Client{Transport: errTransport{}, Timeout: time.Second},
		biasRadius: 50,
	}
}

func okDetails() *places.DetailsResponse {
	return &places.DetailsResponse{
		Status: "OK",
		Result: places.Details{
			PlaceID:          "pid-1",
			Name:             "Sri Balaji Stores",
			FormattedAddress: "12 MG Road, Bengaluru",
			BusinessStatus:   "OPERATIONAL",
			Rating:           4.3,
			UserRatingsTotal: 127,
			Types:            []string{"grocery_or_supermarket", "store"},
			Geometry:         places.Geometry{Location: places.LatLng{Lat: 12.9716, Lng: 77.5946}},
			Photos:           []places.Photo{{PhotoReference: "ref-1"}},
		},
	}
}

const storeURL = "https://maps.example.com/maps/place/Sri+Balaji+Stores/@12.9716,77.5946,17z"

func TestResolve_LocksSingleCandidate(t *testing.T) {
	client := &fakePlaces{
		findResp:    &places.FindPlaceResponse{Status: "OK", Candidates: []places.Candidate{{PlaceID: "pid-1", Name: "Sri Balaji Stores"}}},
		detailsResp: okDetails(),
	}
	r := newTestResolver(client)

	res, err := r.Resolve(context.Background(), storeURL)
	require.NoError(t, err)

	assert.Equal(t, "pid-1", res.Identity.PlaceID)
	assert.Equal(t, "Sri Balaji Stores", res.Identity.Name)
	assert.Equal(t, "12 MG Road, Bengaluru", res.Identity.Address)
	assert.Equal(t, 127, res.Identity.ReviewCount)
	require.NotNil(t, res.Identity.Lat)
	assert.InDelta(t, 12.9716, *res.Identity.Lat, 1e-6)
	assert.Equal(t, []string{"ref-1"}, res.PhotoRefs)
	assert.Equal(t, "OPERATIONAL", res.BusinessStatus)
	assert.False(t, res.CoordinateMismatch)

	// Query derives from the url path; bias from the embedded coordinates.
	assert.Equal(t, "Sri Balaji Stores", client.lastQuery)
	require.NotNil(t, client.lastBias)
	assert.InDelta(t, 12.9716, client.lastBias.Lat, 1e-6)
	assert.Equal(t, 50, client.lastBias.Radius)
}

func TestResolve_ZeroCandidates(t *testing.T) {
	r := newTestResolver(&fakePlaces{
		findResp: &places.FindPlaceResponse{Status: "ZERO_RESULTS"},
	})

	_, err := r.Resolve(context.Background(), storeURL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_MultipleCandidatesNeverGuesses(t *testing.T) {
	r := newTestResolver(&fakePlaces{
		findResp: &places.FindPlaceResponse{Status: "OK", Candidates: []places.Candidate{
			{PlaceID: "pid-1"}, {PlaceID: "pid-2"},
		}},
	})

	_, err := r.Resolve(context.Background(), storeURL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAmbiguous)
}

func TestResolve_FreeTextQuerySearchedVerbatim(t *testing.T) {
	client := &fakePlaces{
		findResp:    &places.FindPlaceResponse{Status: "OK", Candidates: []places.Candidate{{PlaceID: "pid-1", Name: "Sri Balaji Stores"}}},
		detailsResp: okDetails(),
	}
	r := newTestResolver(client)

	res, err := r.Resolve(context.Background(), "Sri Balaji Stores Bengaluru")
	require.NoError(t, err)

	assert.Equal(t, "pid-1", res.Identity.PlaceID)
	assert.Equal(t, "Sri Balaji Stores Bengaluru", client.lastQuery)
	assert.Nil(t, client.lastBias)
}

func TestResolve_URLWithoutMarkersSearchedAsIs(t *testing.T) {
	client := &fakePlaces{
		findResp: &places.FindPlaceResponse{Status: "ZERO_RESULTS"},
	}
	r := newTestResolver(client)

	_, err := r.Resolve(context.Background(), "https://maps.example.com/maps")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "https://maps.example.com/maps", client.lastQuery)
}

func TestResolve_ProviderStatusError(t *testing.T) {
	r := newTestResolver(&fakePlaces{
		findResp: &places.FindPlaceResponse{Status: "REQUEST_DENIED"},
	})

	_, err := r.Resolve(context.Background(), storeURL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSearchFailed)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "REQUEST_DENIED")
}

func TestResolve_CoordinateMismatchFlagged(t *testing.T) {
	details := okDetails()
	// Roughly 15km away from the url coordinates.
	details.Result.Geometry.Location = places.LatLng{Lat: 13.1, Lng: 77.6}

	r := newTestResolver(&fakePlaces{
		findResp:    &places.FindPlaceResponse{Status: "OK", Candidates: []places.Candidate{{PlaceID: "pid-1"}}},
		detailsResp: details,
	})

	res, err := r.Resolve(context.Background(), storeURL)
	require.NoError(t, err)
	assert.True(t, res.CoordinateMismatch)
}

func TestExtractPlaceName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://m.example/maps/place/Big+Bazaar/@1.0,2.0,17z", "Big Bazaar"},
		{"https://m.example/maps/place/Caf%C3%A9+Corner?hl=en", "Café Corner"},
		{"https://m.example/maps/@1.0,2.0,17z", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractPlaceName(tt.url), tt.url)
	}
}

func TestExtractCoords(t *testing.T) {
	lat, lng, ok := extractCoords("https://m.example/maps/place/X/@-33.8688,151.2093,17z")
	require.True(t, ok)
	assert.InDelta(t, -33.8688, lat, 1e-6)
	assert.InDelta(t, 151.2093, lng, 1e-6)

	_, _, ok = extractCoords("https://m.example/maps/place/X")
	assert.False(t, ok)
}

func TestHaversineMetres(t *testing.T) {
	// Identical points.
	assert.Zero(t, haversineMetres(12.97, 77.59, 12.97, 77.59))

	// One degree of latitude is about 111km.
	d := haversineMetres(12.0, 77.0, 13.0, 77.0)
	assert.InDelta(t, 111_000, d, 500)
}
