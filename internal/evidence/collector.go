// Package evidence gathers the raw material for analysis: place photos and
// recent reviews, bounded and normalized.
package evidence

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/gravi-labs/retail-verify/internal/geo"
	"github.com/gravi-labs/retail-verify/internal/model"
	"github.com/gravi-labs/retail-verify/pkg/places"
)

// ErrNoImages means no photo could be fetched for the place. Visual
// verification cannot proceed without at least one image.
var ErrNoImages = eris.New("evidence: no images available")

// Collector fetches bounded evidence for a resolved place.
type Collector struct {
	client        places.Client
	maxImages     int
	maxReviews    int
	photoMaxWidth int
}

// NewCollector creates a Collector with the given bounds.
func NewCollector(client places.Client, maxImages, maxReviews, photoMaxWidth int) *Collector {
	return &Collector{
		client:        client,
		maxImages:     maxImages,
		maxReviews:    maxReviews,
		photoMaxWidth: photoMaxWidth,
	}
}

// Collect downloads up to the image cap, skipping individual photo failures,
// and normalizes up to the review cap newest-first. It fails only when not a
// single image could be fetched.
func (c *Collector) Collect(ctx context.Context, res *geo.Resolution) (*model.EvidenceBundle, error) {
	images := c.fetchImages(ctx, res)
	if len(images) == 0 {
		return nil, eris.Wrapf(ErrNoImages, "place %s", res.Identity.PlaceID)
	}

	bundle := &model.EvidenceBundle{
		PlaceID: res.Identity.PlaceID,
		Images:  images,
		Reviews: normalizeReviews(res.RawReviews, c.maxReviews),
	}

	zap.L().Info("evidence collected",
		zap.String("place_id", bundle.PlaceID),
		zap.Int("images", len(bundle.Images)),
		zap.Int("reviews", len(bundle.Reviews)))

	return bundle, nil
}

// fetchImages attempts only the first maxImages references; a failed fetch
// shrinks the image count rather than pulling in a later reference.
func (c *Collector) fetchImages(ctx context.Context, res *geo.Resolution) []model.EvidenceImage {
	refs := res.PhotoRefs
	if len(refs) > c.maxImages {
		refs = refs[:c.maxImages]
	}

	var images []model.EvidenceImage
	for _, ref := range refs {
		data, mediaType, err := c.client.Photo(ctx, ref, c.photoMaxWidth)
		if err != nil {
			zap.L().Warn("photo fetch failed, skipping",
				zap.String("place_id", res.Identity.PlaceID),
				zap.Error(err))
			continue
		}
		images = append(images, model.EvidenceImage{Data: data, MediaType: mediaType})
	}
	return images
}

// normalizeReviews orders provider reviews newest-first, caps them, and
// fills provider-omitted fields with safe defaults.
func normalizeReviews(raw []places.Review, limit int) []model.Review {
	sorted := make([]places.Review, len(raw))
	copy(sorted, raw)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time > sorted[j].Time
	})

	if len(sorted) > limit {
		sorted = sorted[:limit]
	}

	out := make([]model.Review, 0, len(sorted))
	for _, r := range sorted {
		review := model.Review{
			Author: r.AuthorName,
			Rating: r.Rating,
			Text:   r.Text,
		}
		if review.Author == "" {
			review.Author = "Anonymous"
		}
		if r.Time > 0 {
			review.Date = time.Unix(r.Time, 0).UTC().Format("2006-01-02")
		}
		out = append(out, review)
	}
	return out
}
