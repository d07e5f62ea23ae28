// Package geo resolves a shared map URL to exactly one place identity. The
// resolved identity is frozen before any model-driven analysis runs so that
// later phases cannot drift onto a different place.
package geo

import (
	"context"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/gravi-labs/retail-verify/internal/model"
	"github.com/gravi-labs/retail-verify/pkg/places"
)

var (
	// ErrNotFound means the reference yielded no usable place candidate.
	ErrNotFound = eris.New("geo: place not found")
	// ErrAmbiguous means the search returned more than one candidate, which
	// the identity lock refuses to disambiguate silently.
	ErrAmbiguous = eris.New("geo: ambiguous place match")
	// ErrSearchFailed means the search provider rejected the request
	// (quota, credentials, malformed input) rather than finding nothing.
	ErrSearchFailed = eris.New("geo: place search failed")
)

var (
	placeNameRe = regexp.MustCompile(`/place/([^/@?]+)`)
	coordsRe    = regexp.MustCompile(`@(-?\d+\.\d+),(-?\d+\.\d+)`)
)

// mismatchRadiusMetres is the distance beyond which the URL coordinates and
// the provider-reported location are considered to disagree.
const mismatchRadiusMetres = 500

// Resolution is the frozen outcome of resolving a map URL.
type Resolution struct {
	Identity           model.PlaceIdentity
	Location           *geom.Point // provider-reported location, if any
	BusinessStatus     string
	Rating             float64
	Types              []string
	PhotoRefs          []string
	RawReviews         []places.Review
	CoordinateMismatch bool // URL coords vs provider location disagree by >500m
}

// Resolver turns map URLs into locked place identities.
type Resolver struct {
	client     places.Client
	http       *http.Client
	biasRadius int
}

// NewResolver creates a Resolver. The http.Client is used only to expand
// shortened URLs by following redirects.
func NewResolver(client places.Client, biasRadius int) *Resolver {
	return &Resolver{
		client:     client,
		http:       &http.Client{Timeout: 10 * time.Second},
		biasRadius: biasRadius,
	}
}

// Resolve accepts a shared map URL or a free-text place query and locks onto
// exactly one provider candidate. URLs are expanded and mined for the
// embedded place name and coordinates; anything else is searched verbatim.
// Zero candidates is ErrNotFound; more than one is ErrAmbiguous.
func (r *Resolver) Resolve(ctx context.Context, ref string) (*Resolution, error) {
	query := ref
	var bias *places.LocationBias
	var urlLat, urlLng float64
	var hasCoords bool

	if strings.HasPrefix(strings.ToLower(ref), "http") {
		expanded, err := r.expandURL(ctx, ref)
		if err != nil {
			zap.L().Warn("url expansion failed, using original",
				zap.String("url", ref),
				zap.Error(err))
			expanded = ref
		}

		urlLat, urlLng, hasCoords = extractCoords(expanded)
		if name := extractPlaceName(expanded); name != "" {
			query = name
		} else if hasCoords {
			query = strconv.FormatFloat(urlLat, 'f', -1, 64) + "," + strconv.FormatFloat(urlLng, 'f', -1, 64)
		}
		if hasCoords {
			bias = &places.LocationBias{Lat: urlLat, Lng: urlLng, Radius: r.biasRadius}
		}
	}

	found, err := r.client.FindPlace(ctx, query, bias)
	if err != nil {
		return nil, eris.Wrap(err, "geo: find place")
	}
	switch {
	case found.Status != "OK" && found.Status != "ZERO_RESULTS":
		return nil, eris.Wrapf(ErrSearchFailed, "status %s", found.Status)
	case found.Status == "ZERO_RESULTS" || len(found.Candidates) == 0:
		return nil, eris.Wrapf(ErrNotFound, "query %q", query)
	case len(found.Candidates) > 1:
		return nil, eris.Wrapf(ErrAmbiguous, "query %q matched %d places", query, len(found.Candidates))
	}

	details, err := r.client.Details(ctx, found.Candidates[0].PlaceID)
	if err != nil {
		return nil, eris.Wrap(err, "geo: place details")
	}
	if details.Status != "OK" {
		return nil, eris.Wrapf(ErrNotFound, "details status %s", details.Status)
	}

	res := buildResolution(&details.Result)
	if hasCoords && res.Location != nil {
		d := haversineMetres(urlLat, urlLng, res.Location.Y(), res.Location.X())
		if d > mismatchRadiusMetres {
			res.CoordinateMismatch = true
			zap.L().Warn("url coordinates disagree with provider location",
				zap.String("place_id", res.Identity.PlaceID),
				zap.Float64("distance_metres", d))
		}
	}

	if res.BusinessStatus != "" && res.BusinessStatus != "OPERATIONAL" {
		zap.L().Warn("place is not operational",
			zap.String("place_id", res.Identity.PlaceID),
			zap.String("business_status", res.BusinessStatus))
	}

	zap.L().Info("place identity locked",
		zap.String("place_id", res.Identity.PlaceID),
		zap.String("name", res.Identity.Name))

	return res, nil
}

func buildResolution(d *places.Details) *Resolution {
	loc := geom.NewPointFlat(geom.XY, []float64{d.Geometry.Location.Lng, d.Geometry.Location.Lat})

	lat := d.Geometry.Location.Lat
	lng := d.Geometry.Location.Lng
	identity := model.PlaceIdentity{
		PlaceID:     d.PlaceID,
		Name:        d.Name,
		Lat:         &lat,
		Lng:         &lng,
		Address:     d.FormattedAddress,
		ReviewCount: d.UserRatingsTotal,
	}

	refs := make([]string, 0, len(d.Photos))
	for _, p := range d.Photos {
		refs = append(refs, p.PhotoReference)
	}

	return &Resolution{
		Identity:       identity,
		Location:       loc,
		BusinessStatus: d.BusinessStatus,
		Rating:         d.Rating,
		Types:          d.Types,
		PhotoRefs:      refs,
		RawReviews:     d.Reviews,
	}
}

// expandURL follows redirects on shortened map links and returns the final
// URL, which carries the place name and coordinates in its path.
func (r *Resolver) expandURL(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", eris.Wrap(err, "geo: create expansion request")
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "geo: expand url")
	}
	defer resp.Body.Close() //nolint:errcheck

	return resp.Request.URL.String(), nil
}

func extractPlaceName(u string) string {
	m := placeNameRe.FindStringSubmatch(u)
	if m == nil {
		return ""
	}
	name := strings.ReplaceAll(m[1], "+", " ")
	if decoded, err := url.QueryUnescape(name); err == nil {
		name = decoded
	}
	return name
}

func extractCoords(u string) (lat, lng float64, ok bool) {
	m := coordsRe.FindStringSubmatch(u)
	if m == nil {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(m[1], 64)
	lng, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lat, lng, true
}

const earthRadiusMetres = 6371000

func haversineMetres(lat1, lng1, lat2, lng2 float64) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMetres * math.Asin(math.Sqrt(a))
}
