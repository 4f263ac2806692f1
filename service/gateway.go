package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Bharath5252/Segmentation-masks-via-SAM2/apperror"
	"github.com/Bharath5252/Segmentation-masks-via-SAM2/config"
	"github.com/Bharath5252/Segmentation-masks-via-SAM2/model"
	"github.com/Bharath5252/Segmentation-masks-via-SAM2/utils"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const defaultRetryInterval = 500 * time.Millisecond

var errNoValidCandidates = errors.New("no valid candidates in segmentation response")

type GatewayOptions struct {
	GenerateTimeout time.Duration
	PredictTimeout  time.Duration
	MaxRetries      int
	RetryInterval   time.Duration
}

func GatewayOptionsFrom(cfg *config.SegmentationConfig) GatewayOptions {
	return GatewayOptions{
		GenerateTimeout: cfg.GenerateTimeout,
		PredictTimeout:  cfg.PredictTimeout,
		MaxRetries:      cfg.MaxRetries,
		RetryInterval:   cfg.RetryInterval,
	}
}

// Gateway calls the segmentation service and falls back to the synthesizer
// on any failure. Its methods never return an error.
type Gateway struct {
	segmenter Segmenter
	synth     *Synthesizer
	opts      GatewayOptions
}

func NewGateway(segmenter Segmenter, synth *Synthesizer, opts GatewayOptions) *Gateway {
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = defaultRetryInterval
	}
	return &Gateway{
		segmenter: segmenter,
		synth:     synth,
		opts:      opts,
	}
}

// Generate returns the service's masks for the image, or the four
// synthesized quadrant masks.
func (g *Gateway) Generate(ctx context.Context, image []byte) []model.Mask {
	width, height, err := DecodeSize(image)
	if err == nil {
		var masks []model.Mask
		masks, err = g.remoteGenerate(ctx, image, width, height)
		if err == nil {
			gatewayCalls.WithLabelValues(opGenerate, outcomeRemote).Inc()
			utils.Logger.Info("masks generated by segmentation service", zap.Int("count", len(masks)))
			return masks
		}
	}

	g.logFallback(opGenerate, err)
	return g.synth.Masks(width, height)
}

// Predict returns the best-scoring service mask for the points, or a
// synthesized square around the first point.
func (g *Gateway) Predict(ctx context.Context, image []byte, points []model.Point, labels []int) model.PointMask {
	width, height, err := DecodeSize(image)
	if err == nil {
		var mask model.PointMask
		mask, err = g.remotePredict(ctx, image, points, labels, width, height)
		if err == nil {
			gatewayCalls.WithLabelValues(opPredict, outcomeRemote).Inc()
			return mask
		}
	}

	g.logFallback(opPredict, err)
	return g.synth.Point(width, height, points, labels)
}

func (g *Gateway) logFallback(op string, err error) {
	gatewayCalls.WithLabelValues(op, outcomeFallback).Inc()
	if errors.Is(err, ErrSegmenterDisabled) {
		utils.Logger.Debug("segmentation service disabled, using fallback", zap.String("op", op))
		return
	}
	utils.Logger.Warn("segmentation service failed, using fallback",
		zap.String("op", op),
		zap.Error(apperror.External(op+" failed", err)))
}

func (g *Gateway) remoteGenerate(ctx context.Context, image []byte, width, height int) ([]model.Mask, error) {
	candidates, err := withRetry(ctx, g.opts, opGenerate, g.opts.GenerateTimeout, func(ctx context.Context) ([]model.MaskCandidate, error) {
		return g.segmenter.AutomaticSegment(ctx, image)
	})
	if err != nil {
		return nil, err
	}

	masks := make([]model.Mask, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for i, c := range candidates {
		m, err := c.Validate(width, height)
		if err != nil {
			utils.Logger.Warn("dropping malformed mask candidate", zap.Int("index", i), zap.Error(err))
			continue
		}
		if seen[m.ID] {
			utils.Logger.Warn("dropping duplicate mask candidate", zap.Int("index", i), zap.String("id", m.ID))
			continue
		}
		seen[m.ID] = true
		masks = append(masks, m)
	}

	if len(candidates) > 0 && len(masks) == 0 {
		return nil, errNoValidCandidates
	}
	return masks, nil
}

func (g *Gateway) remotePredict(ctx context.Context, image []byte, points []model.Point, labels []int, width, height int) (model.PointMask, error) {
	candidates, err := withRetry(ctx, g.opts, opPredict, g.opts.PredictTimeout, func(ctx context.Context) ([]model.PointCandidate, error) {
		return g.segmenter.PointSegment(ctx, image, points, labels)
	})
	if err != nil {
		return model.PointMask{}, err
	}

	var (
		best  model.PointMask
		found bool
	)
	for i, c := range candidates {
		m, err := c.Validate(width, height)
		if err != nil {
			utils.Logger.Warn("dropping malformed point candidate", zap.Int("index", i), zap.Error(err))
			continue
		}
		if !found || m.Score > best.Score {
			best, found = m, true
		}
	}

	if !found {
		return model.PointMask{}, errNoValidCandidates
	}
	return best, nil
}

// withRetry runs fn with a per-attempt timeout. The caller's cancellation is
// not propagated: a client going away does not abort the remote call.
func withRetry[T any](ctx context.Context, opts GatewayOptions, op string, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx = context.WithoutCancel(ctx)

	operation := func() (T, error) {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		start := time.Now()
		v, err := fn(callCtx)
		gatewayRemoteSeconds.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if err != nil && !retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.RetryInterval

	v, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(opts.MaxRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			utils.Logger.Info("retrying segmentation call",
				zap.String("op", op),
				zap.Duration("backoff", next),
				zap.Error(err))
		}))
	if err != nil {
		return v, fmt.Errorf("%s: %w", op, err)
	}
	return v, nil
}

func retryable(err error) bool {
	if errors.Is(err, ErrSegmenterDisabled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return true
}
