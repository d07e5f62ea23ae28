package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gravi-labs/retail-verify/internal/model"
	"github.com/gravi-labs/retail-verify/internal/store"
	"github.com/gravi-labs/retail-verify/internal/vision"
)

// NamedImage is one bulk input item.
type NamedImage struct {
	Name  string
	Image model.EvidenceImage
}

// ImageSource lists the images of a bulk batch. Implementations decide where
// the bytes come from (a local directory, an object store, a drive folder).
type ImageSource interface {
	List(ctx context.Context) ([]NamedImage, error)
}

// ImageClassifier is the per-image analysis seam consumed by the bulk runner.
type ImageClassifier interface {
	ClassifyImage(ctx context.Context, imageName string, img model.EvidenceImage) (*model.BulkItemResult, error)
}

// BulkRunner applies per-image classification across a batch with bounded
// concurrency and an inter-batch cool-down.
type BulkRunner struct {
	classifier ImageClassifier
	store      store.Store // nil disables persistence
	batchSize  int
	batchDelay time.Duration

	// sleep is injectable so tests don't wait out the cool-down.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewBulkRunner creates a BulkRunner.
func NewBulkRunner(classifier ImageClassifier, st store.Store, batchSize int, batchDelay time.Duration) *BulkRunner {
	if batchSize <= 0 {
		batchSize = 3
	}
	return &BulkRunner{
		classifier: classifier,
		store:      st,
		batchSize:  batchSize,
		batchDelay: batchDelay,
		sleep:      sleepCtx,
	}
}

// Run classifies every image from the source. Per-item failures become
// placeholder records rather than aborting the batch; the output preserves
// input order and always has one entry per input image. Cancellation is
// honored at batch boundaries only.
func (r *BulkRunner) Run(ctx context.Context, sourceURL string, source ImageSource) (*model.BulkRun, error) {
	items, err := source.List(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "bulk: list images")
	}

	log := zap.L().With(zap.String("source_url", sourceURL))
	log.Info("bulk: starting run", zap.Int("items", len(items)), zap.Int("batch_size", r.batchSize))

	results := make([]*model.BulkItemResult, len(items))
	for start := 0; start < len(items); start += r.batchSize {
		if start > 0 && r.batchDelay > 0 {
			if err := r.sleep(ctx, r.batchDelay); err != nil {
				return nil, eris.Wrap(err, "bulk: cancelled between batches")
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "bulk: cancelled between batches")
		}

		end := start + r.batchSize
		if end > len(items) {
			end = len(items)
		}
		r.runBatch(ctx, items[start:end], results[start:end])
		log.Debug("bulk: batch complete", zap.Int("through", end))
	}

	run := &model.BulkRun{
		ID:             uuid.New().String(),
		SourceURL:      sourceURL,
		TotalProcessed: len(items),
		Results:        make([]model.BulkItemResult, len(items)),
		CreatedAt:      time.Now().UTC(),
	}
	for i, res := range results {
		run.Results[i] = *res
	}

	if r.store != nil {
		if err := r.store.SaveBulkRun(ctx, run); err != nil {
			log.Warn("bulk: failed to persist run", zap.Error(err))
		}
	}

	log.Info("bulk: run complete", zap.Int("total_processed", run.TotalProcessed))
	return run, nil
}

// runBatch issues one batch fully concurrently. Item failures are converted
// to placeholder records in place.
func (r *BulkRunner) runBatch(ctx context.Context, items []NamedImage, out []*model.BulkItemResult) {
	g, gCtx := errgroup.WithContext(ctx)
	for i, item := range items {
		g.Go(func() error {
			res, err := r.classifier.ClassifyImage(gCtx, item.Name, item.Image)
			if err != nil {
				zap.L().Warn("bulk: item failed",
					zap.String("image", item.Name),
					zap.Error(err))
				out[i] = vision.FailedBulkItem(item.Name, err)
				return nil
			}
			out[i] = res
			return nil
		})
	}
	_ = g.Wait()
}

// driveFolderRe matches the folder id in shared drive folder URLs.
var driveFolderRe = regexp.MustCompile(`/folders/([a-zA-Z0-9_-]+)`)

// ExtractFolderID pulls the folder id out of a shared drive folder URL.
func ExtractFolderID(driveURL string) (string, error) {
	m := driveFolderRe.FindStringSubmatch(driveURL)
	if m == nil {
		return "", eris.Errorf("bulk: no folder id in url %q", driveURL)
	}
	return m[1], nil
}

// LocalDirSource reads images from a local directory, sorted by file name.
type LocalDirSource struct {
	Dir string
}

var imageMediaTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
}

func (s LocalDirSource) List(ctx context.Context) ([]NamedImage, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, eris.Wrapf(err, "bulk: read dir %s", s.Dir)
	}

	var items []NamedImage
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		mediaType, ok := imageMediaTypes[strings.ToLower(filepath.Ext(entry.Name()))]
		if !ok {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.Dir, entry.Name()))
		if err != nil {
			return nil, eris.Wrapf(err, "bulk: read image %s", entry.Name())
		}
		items = append(items, NamedImage{
			Name:  entry.Name(),
			Image: model.EvidenceImage{Data: data, MediaType: mediaType},
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
