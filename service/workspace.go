package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Bharath5252/Segmentation-masks-via-SAM2/apperror"
	"github.com/Bharath5252/Segmentation-masks-via-SAM2/config"
	"github.com/Bharath5252/Segmentation-masks-via-SAM2/model"
	"github.com/Bharath5252/Segmentation-masks-via-SAM2/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type WorkspaceOptions struct {
	MaxUploadSize  int64
	MaxPixels      int64 // 0 disables the check
	AllowedTypes   []string
	ArtifactFormat string
	JPEGQuality    int
}

func WorkspaceOptionsFrom(cfg *config.Config) WorkspaceOptions {
	return WorkspaceOptions{
		MaxUploadSize:  cfg.Upload.MaxSize,
		MaxPixels:      cfg.Upload.MaxPixels,
		AllowedTypes:   cfg.Upload.AllowedTypes,
		ArtifactFormat: cfg.Artifact.Format,
		JPEGQuality:    cfg.Artifact.JPEGQuality,
	}
}

// Workspace implements the upload → generate → query → color → download flow.
type Workspace struct {
	uploads    *UploadStore
	sessions   SessionStore
	artifacts  *ArtifactStore
	gateway    *Gateway
	compositor *Compositor
	synth      *Synthesizer
	opts       WorkspaceOptions

	// generation is serialized per image: concurrent calls share one
	// gateway round trip and one store write
	generating singleflight.Group
}

func NewWorkspace(uploads *UploadStore, sessions SessionStore, artifacts *ArtifactStore, gateway *Gateway, opts WorkspaceOptions) *Workspace {
	return &Workspace{
		uploads:    uploads,
		sessions:   sessions,
		artifacts:  artifacts,
		gateway:    gateway,
		compositor: NewCompositor(),
		synth:      NewSynthesizer(),
		opts:       opts,
	}
}

// Upload stores the image and returns its new identifier. The session itself
// is only created by the first GenerateMasks call.
func (w *Workspace) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", apperror.Validation("uploaded file is empty")
	}
	if w.opts.MaxUploadSize > 0 && int64(len(data)) > w.opts.MaxUploadSize {
		return "", apperror.Validation("file exceeds the %d MB limit", w.opts.MaxUploadSize/(1024*1024))
	}
	if !w.isAllowedType(contentType) {
		return "", apperror.Validation("File must be an image")
	}
	width, height, err := DecodeSize(data)
	if err != nil {
		return "", apperror.New(apperror.KindValidation, "file is not a supported image", err)
	}
	// masks are allocated per pixel from the declared size, so cap it before storing
	if w.opts.MaxPixels > 0 && int64(width)*int64(height) > w.opts.MaxPixels {
		return "", apperror.Validation("image is %dx%d, exceeds the %d pixel limit", width, height, w.opts.MaxPixels)
	}

	imageID := utils.NewImageID()
	if err := w.uploads.Put(ctx, imageID, data); err != nil {
		return "", fmt.Errorf("save upload: %w", err)
	}

	utils.Logger.Info("image uploaded",
		zap.String("image_id", imageID),
		zap.String("content_type", contentType),
		zap.Int("size", len(data)),
		zap.Int("width", width),
		zap.Int("height", height))

	return imageID, nil
}

func (w *Workspace) isAllowedType(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	mediaType = strings.TrimSpace(mediaType)
	if !strings.HasPrefix(strings.ToLower(mediaType), "image/") {
		return false
	}
	if len(w.opts.AllowedTypes) == 0 {
		return true
	}
	for _, allowed := range w.opts.AllowedTypes {
		if strings.EqualFold(mediaType, allowed) {
			return true
		}
	}
	return false
}

// GenerateMasks runs segmentation for an uploaded image and replaces its
// session's mask set.
func (w *Workspace) GenerateMasks(ctx context.Context, imageID string) ([]model.Mask, error) {
	v, err, shared := w.generating.Do(imageID, func() (any, error) {
		// the shared call must not die with whichever caller started it
		ctx := context.WithoutCancel(ctx)

		data, err := w.uploads.Get(ctx, imageID)
		if err != nil {
			return nil, err
		}

		masks := w.gateway.Generate(ctx, data)
		session := &model.Session{
			ImageID:       imageID,
			OriginalImage: data,
			Masks:         masks,
		}
		if err := w.sessions.Put(ctx, session); err != nil {
			return nil, fmt.Errorf("store session: %w", err)
		}
		return masks, nil
	})
	if err != nil {
		return nil, err
	}

	masks := v.([]model.Mask)
	utils.Logger.Info("masks generated",
		zap.String("image_id", imageID),
		zap.Int("count", len(masks)),
		zap.Bool("shared", shared))
	return masks, nil
}

// QueryPoint returns a mask for the given points. The mask is not stored.
func (w *Workspace) QueryPoint(ctx context.Context, imageID string, points []model.Point, labels []int) (model.PointMask, error) {
	if len(points) == 0 {
		return model.PointMask{}, apperror.Validation("at least one point is required")
	}
	if len(points) != len(labels) {
		return model.PointMask{}, apperror.Validation("got %d points but %d labels", len(points), len(labels))
	}
	for i, l := range labels {
		if l != 0 && l != 1 {
			return model.PointMask{}, apperror.Validation("labels[%d] = %d, want 0 or 1", i, l)
		}
	}

	session, err := w.sessions.Get(ctx, imageID)
	if err != nil {
		return model.PointMask{}, err
	}

	return w.gateway.Predict(ctx, session.OriginalImage, points, labels), nil
}

// ApplyColors paints the listed masks with colorHex and stores the result as
// the image's colored artifact, replacing any earlier one.
func (w *Workspace) ApplyColors(ctx context.Context, imageID string, maskIDs []string, colorHex string) (model.ArtifactRef, error) {
	c, err := ParseHexColor(colorHex)
	if err != nil {
		return model.ArtifactRef{}, err
	}

	session, err := w.sessions.Get(ctx, imageID)
	if err != nil {
		return model.ArtifactRef{}, err
	}

	img, _, err := DecodeImage(session.OriginalImage)
	if err != nil {
		return model.ArtifactRef{}, err
	}

	out, applied := w.compositor.Composite(img, session.Masks, maskIDs, c)

	data, _, _, err := EncodeImage(out, w.opts.ArtifactFormat, w.opts.JPEGQuality)
	if err != nil {
		return model.ArtifactRef{}, err
	}

	ref, err := w.artifacts.Put(ctx, imageID, data)
	if err != nil {
		return model.ArtifactRef{}, fmt.Errorf("save artifact: %w", err)
	}

	utils.Logger.Info("colors applied",
		zap.String("image_id", imageID),
		zap.String("color", colorHex),
		zap.Strings("requested", maskIDs),
		zap.Strings("applied", applied),
		zap.Int64("size", ref.Size))

	return ref, nil
}

// FetchArtifact returns the latest colored image.
func (w *Workspace) FetchArtifact(ctx context.Context, imageID string) ([]byte, model.ArtifactRef, error) {
	data, ref, err := w.artifacts.Get(ctx, imageID)
	if apperror.Is(err, apperror.KindArtifactMissing) && !w.uploads.Exists(ctx, imageID) {
		return nil, model.ArtifactRef{}, apperror.NotFound("image %s not found", imageID)
	}
	return data, ref, err
}

// Masks returns the current mask set of an image.
func (w *Workspace) Masks(ctx context.Context, imageID string) ([]model.Mask, error) {
	session, err := w.sessions.Get(ctx, imageID)
	if err != nil {
		return nil, err
	}
	return session.Masks, nil
}

func (w *Workspace) SessionCount(ctx context.Context) (int, error) {
	return w.sessions.Count(ctx)
}

// ProbeMask returns the fixed test mask for a width×height image.
func (w *Workspace) ProbeMask(width, height int) model.Mask {
	return w.synth.Probe(width, height)
}
