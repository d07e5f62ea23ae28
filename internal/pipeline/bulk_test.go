package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravi-labs/retail-verify/internal/model"
)

// fakeImageClassifier fails for the named images and records call order.
type fakeImageClassifier struct {
	mu      sync.Mutex
	failFor map[string]bool
	seen    []string
	onCall  func(name string)
}

func (f *fakeImageClassifier) ClassifyImage(_ context.Context, name string, _ model.EvidenceImage) (*model.BulkItemResult, error) {
	f.mu.Lock()
	f.seen = append(f.seen, name)
	f.mu.Unlock()
	if f.onCall != nil {
		f.onCall(name)
	}
	if f.failFor[name] {
		return nil, eris.New("vision: model timeout")
	}
	return &model.BulkItemResult{
		ImageName:           name,
		IsValidGroceryStore: true,
		StoreType:           "kirana",
		StoreTypeConfidence: 85,
	}, nil
}

type sliceSource struct {
	items []NamedImage
	err   error
}

func (s sliceSource) List(context.Context) ([]NamedImage, error) {
	return s.items, s.err
}

func namedImages(names ...string) []NamedImage {
	items := make([]NamedImage, len(names))
	for i, n := range names {
		items[i] = NamedImage{Name: n, Image: model.EvidenceImage{Data: []byte{byte(i)}, MediaType: "image/jpeg"}}
	}
	return items
}

func TestBulkRun_PreservesOrderWithFailures(t *testing.T) {
	classifier := &fakeImageClassifier{failFor: map[string]bool{"b.jpg": true, "e.jpg": true}}
	r := NewBulkRunner(classifier, nil, 3, 0)

	names := []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg", "f.jpg", "g.jpg"}
	run, err := r.Run(context.Background(), "local", sliceSource{items: namedImages(names...)})
	require.NoError(t, err)

	assert.Equal(t, 7, run.TotalProcessed)
	assert.NotEmpty(t, run.ID)
	require.Len(t, run.Results, 7)

	for i, res := range run.Results {
		assert.Equal(t, names[i], res.ImageName)
	}
	assert.False(t, run.Results[1].IsValidGroceryStore)
	assert.Contains(t, run.Results[1].Reasoning, "model timeout")
	assert.False(t, run.Results[4].IsValidGroceryStore)
	assert.True(t, run.Results[0].IsValidGroceryStore)
	assert.True(t, run.Results[6].IsValidGroceryStore)
}

func TestBulkRun_SleepsBetweenBatchesOnly(t *testing.T) {
	classifier := &fakeImageClassifier{}
	r := NewBulkRunner(classifier, nil, 3, 2*time.Second)

	var sleeps int
	r.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps++
		assert.Equal(t, 2*time.Second, d)
		return nil
	}

	_, err := r.Run(context.Background(), "local", sliceSource{items: namedImages("a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg", "f.jpg", "g.jpg")})
	require.NoError(t, err)

	// Three batches of 3/3/1: the cool-down runs before the second and third.
	assert.Equal(t, 2, sleeps)
	assert.Len(t, classifier.seen, 7)
}

func TestBulkRun_CancelledBetweenBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	classifier := &fakeImageClassifier{}
	classifier.onCall = func(name string) {
		if name == "c.jpg" {
			cancel()
		}
	}
	r := NewBulkRunner(classifier, nil, 3, time.Millisecond)

	_, err := r.Run(ctx, "local", sliceSource{items: namedImages("a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg")})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	// The second batch never started.
	assert.Len(t, classifier.seen, 3)
}

func TestBulkRun_ListFailure(t *testing.T) {
	r := NewBulkRunner(&fakeImageClassifier{}, nil, 3, 0)

	_, err := r.Run(context.Background(), "local", sliceSource{err: eris.New("dir missing")})
	require.Error(t, err)
}

func TestBulkRun_DefaultBatchSize(t *testing.T) {
	r := NewBulkRunner(&fakeImageClassifier{}, nil, 0, 0)
	assert.Equal(t, 3, r.batchSize)
}

func TestExtractFolderID(t *testing.T) {
	id, err := ExtractFolderID("https://drive.example.com/drive/folders/1AbC_d-3fG?usp=sharing")
	require.NoError(t, err)
	assert.Equal(t, "1AbC_d-3fG", id)

	_, err = ExtractFolderID("https://drive.example.com/file/d/xyz")
	require.Error(t, err)
}

func TestLocalDirSource_ListsSortedImages(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.png"), []byte("png"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.JPG"), []byte("jpg"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	items, err := LocalDirSource{Dir: dir}.List(context.Background())
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Equal(t, "a.JPG", items[0].Name)
	assert.Equal(t, "image/jpeg", items[0].Image.MediaType)
	assert.Equal(t, "b.png", items[1].Name)
	assert.Equal(t, "image/png", items[1].Image.MediaType)
}
