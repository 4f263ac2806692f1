package service

import (
	"context"
	"errors"
	"image/color"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Bharath5252/Segmentation-masks-via-SAM2/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSegmenter struct {
	calls     atomic.Int32
	masks     []model.MaskCandidate
	points    []model.PointCandidate
	errs      []error
	block     bool
	gotPoints []model.Point
	gotLabels []int
}

func (f *fakeSegmenter) next(ctx context.Context) error {
	n := int(f.calls.Add(1)) - 1
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if n < len(f.errs) {
		return f.errs[n]
	}
	return nil
}

func (f *fakeSegmenter) AutomaticSegment(ctx context.Context, _ []byte) ([]model.MaskCandidate, error) {
	if err := f.next(ctx); err != nil {
		return nil, err
	}
	return f.masks, nil
}

func (f *fakeSegmenter) PointSegment(ctx context.Context, _ []byte, points []model.Point, labels []int) ([]model.PointCandidate, error) {
	f.gotPoints, f.gotLabels = points, labels
	if err := f.next(ctx); err != nil {
		return nil, err
	}
	return f.points, nil
}

func ptr[T any](v T) *T { return &v }

func rows(w, h int, fill bool) [][]bool {
	out := make([][]bool, h)
	for y := range out {
		out[y] = make([]bool, w)
		for x := range out[y] {
			out[y][x] = fill
		}
	}
	return out
}

func candidate(id string, w, h int) model.MaskCandidate {
	return model.MaskCandidate{
		ID:             ptr(id),
		Segmentation:   rows(w, h, true),
		Area:           ptr(float64(w * h)),
		BBox:           []float64{0, 0, float64(w), float64(h)},
		PredictedIOU:   ptr(0.97),
		PointCoords:    [][]float64{{1, 1}},
		StabilityScore: ptr(0.95),
	}
}

func testGateway(seg Segmenter) *Gateway {
	return NewGateway(seg, NewSynthesizer(), GatewayOptions{
		GenerateTimeout: time.Second,
		PredictTimeout:  time.Second,
		RetryInterval:   time.Millisecond,
	})
}

func bluePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	return pngBytes(t, solidImage(w, h, color.NRGBA{B: 255, A: 255}))
}

func assertFallbackMasks(t *testing.T, masks []model.Mask) {
	t.Helper()
	want := NewSynthesizer().Masks(100, 100)
	require.Len(t, masks, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, masks[i].ID)
		assert.Equal(t, want[i].BBox, masks[i].BBox)
		assert.Equal(t, want[i].Area, masks[i].Area)
		assert.Equal(t, want[i].Segmentation.Rows(), masks[i].Segmentation.Rows())
	}
}

func TestGateway_GenerateRemote(t *testing.T) {
	seg := &fakeSegmenter{masks: []model.MaskCandidate{candidate("a", 100, 100), candidate("b", 100, 100)}}

	masks := testGateway(seg).Generate(context.Background(), bluePNG(t, 100, 100))

	require.Len(t, masks, 2)
	assert.Equal(t, "a", masks[0].ID)
	assert.Equal(t, "b", masks[1].ID)
	assert.Equal(t, 0.97, masks[0].PredictedIOU)
	assert.Equal(t, 10000, masks[0].Segmentation.Count())
}

func TestGateway_GenerateFallbackOnError(t *testing.T) {
	seg := &fakeSegmenter{errs: []error{errors.New("connection refused")}}

	masks := testGateway(seg).Generate(context.Background(), bluePNG(t, 100, 100))

	assertFallbackMasks(t, masks)
	assert.Equal(t, int32(1), seg.calls.Load())
}

func TestGateway_GenerateFallbackWhenDisabled(t *testing.T) {
	masks := testGateway(NewRemoteSegmenter("", "", nil)).Generate(context.Background(), bluePNG(t, 100, 100))

	assertFallbackMasks(t, masks)
}

func TestGateway_GenerateDropsMalformed(t *testing.T) {
	bad := candidate("bad", 100, 100)
	bad.StabilityScore = nil
	wrongSize := candidate("small", 10, 10)
	seg := &fakeSegmenter{masks: []model.MaskCandidate{bad, candidate("ok", 100, 100), wrongSize, candidate("ok", 100, 100)}}

	masks := testGateway(seg).Generate(context.Background(), bluePNG(t, 100, 100))

	require.Len(t, masks, 1)
	assert.Equal(t, "ok", masks[0].ID)
}

func TestGateway_GenerateAllMalformedFallsBack(t *testing.T) {
	seg := &fakeSegmenter{masks: []model.MaskCandidate{candidate("small", 10, 10)}}

	masks := testGateway(seg).Generate(context.Background(), bluePNG(t, 100, 100))

	assertFallbackMasks(t, masks)
}

func TestGateway_GenerateEmptyAdopted(t *testing.T) {
	seg := &fakeSegmenter{masks: []model.MaskCandidate{}}

	masks := testGateway(seg).Generate(context.Background(), bluePNG(t, 100, 100))

	assert.Empty(t, masks)
}

func TestGateway_GenerateUndecodableImage(t *testing.T) {
	seg := &fakeSegmenter{masks: []model.MaskCandidate{candidate("a", 1, 1)}}

	masks := testGateway(seg).Generate(context.Background(), []byte("junk"))

	require.Len(t, masks, 4)
	assert.Equal(t, 0, masks[0].Area)
	assert.Equal(t, int32(0), seg.calls.Load())
}

func TestGateway_GenerateTimeoutFallsBack(t *testing.T) {
	seg := &fakeSegmenter{block: true}
	gw := NewGateway(seg, NewSynthesizer(), GatewayOptions{
		GenerateTimeout: 20 * time.Millisecond,
		PredictTimeout:  20 * time.Millisecond,
	})

	start := time.Now()
	masks := gw.Generate(context.Background(), bluePNG(t, 100, 100))

	assertFallbackMasks(t, masks)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestGateway_CallerCancelDoesNotAbortRemote(t *testing.T) {
	seg := &fakeSegmenter{masks: []model.MaskCandidate{candidate("a", 100, 100)}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	masks := testGateway(seg).Generate(ctx, bluePNG(t, 100, 100))

	require.Len(t, masks, 1)
	assert.Equal(t, "a", masks[0].ID)
}

func TestGateway_RetriesTransientFailures(t *testing.T) {
	seg := &fakeSegmenter{
		masks: []model.MaskCandidate{candidate("a", 100, 100)},
		errs:  []error{&StatusError{StatusCode: http.StatusServiceUnavailable}, errors.New("timeout")},
	}
	gw := NewGateway(seg, NewSynthesizer(), GatewayOptions{
		GenerateTimeout: time.Second,
		PredictTimeout:  time.Second,
		MaxRetries:      2,
		RetryInterval:   time.Millisecond,
	})

	masks := gw.Generate(context.Background(), bluePNG(t, 100, 100))

	require.Len(t, masks, 1)
	assert.Equal(t, int32(3), seg.calls.Load())
}

func TestGateway_NoRetryOnPermanentFailure(t *testing.T) {
	seg := &fakeSegmenter{errs: []error{&StatusError{StatusCode: http.StatusUnauthorized}}}
	gw := NewGateway(seg, NewSynthesizer(), GatewayOptions{
		GenerateTimeout: time.Second,
		PredictTimeout:  time.Second,
		MaxRetries:      3,
		RetryInterval:   time.Millisecond,
	})

	masks := gw.Generate(context.Background(), bluePNG(t, 100, 100))

	assertFallbackMasks(t, masks)
	assert.Equal(t, int32(1), seg.calls.Load())
}

func TestGateway_PredictBestScore(t *testing.T) {
	low := model.PointCandidate{Segmentation: rows(100, 100, false), Score: ptr(0.3)}
	first := model.PointCandidate{Segmentation: rows(100, 100, true), Score: ptr(0.9)}
	tie := model.PointCandidate{Segmentation: rows(100, 100, false), Score: ptr(0.9)}
	seg := &fakeSegmenter{points: []model.PointCandidate{low, first, tie}}

	pm := testGateway(seg).Predict(context.Background(), bluePNG(t, 100, 100), []model.Point{{X: 5, Y: 5}}, []int{1})

	assert.Equal(t, 0.9, pm.Score)
	assert.Equal(t, 10000, pm.Segmentation.Count())
	assert.Equal(t, []model.Point{{X: 5, Y: 5}}, seg.gotPoints)
	assert.Equal(t, []int{1}, seg.gotLabels)
}

func TestGateway_PredictSkipsMalformed(t *testing.T) {
	highButWrong := model.PointCandidate{Segmentation: rows(3, 3, true), Score: ptr(0.99)}
	ok := model.PointCandidate{Segmentation: rows(100, 100, true), Score: ptr(0.5)}
	seg := &fakeSegmenter{points: []model.PointCandidate{highButWrong, ok}}

	pm := testGateway(seg).Predict(context.Background(), bluePNG(t, 100, 100), []model.Point{{X: 5, Y: 5}}, []int{1})

	assert.Equal(t, 0.5, pm.Score)
}

func TestGateway_PredictFallback(t *testing.T) {
	seg := &fakeSegmenter{errs: []error{errors.New("modal: credentials missing")}}

	pm := testGateway(seg).Predict(context.Background(), bluePNG(t, 100, 100), []model.Point{{X: 50, Y: 50}}, []int{1})

	assert.Equal(t, 0.8, pm.Score)
	squareOnly(t, pm.Segmentation, 38, 38, 62, 62)
}
