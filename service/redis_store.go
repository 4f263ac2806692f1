package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Bharath5252/Segmentation-masks-via-SAM2/config"
	"github.com/Bharath5252/Segmentation-masks-via-SAM2/model"
	"github.com/Bharath5252/Segmentation-masks-via-SAM2/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const sessionKeyPrefix = "session:"

// RedisSessionStore keeps sessions in redis with a TTL. Masks are stored in
// the compact binary grid form rather than the dense wire form.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSessionStore(cfg *config.RedisConfig) *RedisSessionStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisSessionStore{
		client: client,
		ttl:    cfg.TTL,
	}
}

type storedMask struct {
	ID             string        `json:"id"`
	Segmentation   []byte        `json:"segmentation"`
	Area           int           `json:"area"`
	BBox           model.BBox    `json:"bbox"`
	PredictedIOU   float64       `json:"predicted_iou"`
	PointCoords    []model.Coord `json:"point_coords"`
	StabilityScore float64       `json:"stability_score"`
}

type storedSession struct {
	ImageID       string       `json:"image_id"`
	OriginalImage []byte       `json:"original_image"`
	Masks         []storedMask `json:"masks"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisSessionStore) Put(ctx context.Context, session *model.Session) error {
	stored := storedSession{
		ImageID:       session.ImageID,
		OriginalImage: session.OriginalImage,
		Masks:         make([]storedMask, len(session.Masks)),
		UpdatedAt:     time.Now(),
	}
	for i, m := range session.Masks {
		seg, err := m.Segmentation.MarshalBinary()
		if err != nil {
			return fmt.Errorf("encode mask %s: %w", m.ID, err)
		}
		stored.Masks[i] = storedMask{
			ID:             m.ID,
			Segmentation:   seg,
			Area:           m.Area,
			BBox:           m.BBox,
			PredictedIOU:   m.PredictedIOU,
			PointCoords:    m.PointCoords,
			StabilityScore: m.StabilityScore,
		}
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, sessionKeyPrefix+session.ImageID, data, s.ttl).Err()
}

func (s *RedisSessionStore) Get(ctx context.Context, imageID string) (*model.Session, error) {
	data, err := s.client.Get(ctx, sessionKeyPrefix+imageID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sessionNotFound(imageID)
		}
		return nil, err
	}

	var stored storedSession
	if err := json.Unmarshal(data, &stored); err != nil {
		utils.Logger.Error("failed to unmarshal session",
			zap.String("image_id", imageID), zap.Error(err))
		return nil, err
	}

	session := &model.Session{
		ImageID:       stored.ImageID,
		OriginalImage: stored.OriginalImage,
		Masks:         make([]model.Mask, len(stored.Masks)),
		UpdatedAt:     stored.UpdatedAt,
	}
	for i, m := range stored.Masks {
		var grid model.Grid
		if err := grid.UnmarshalBinary(m.Segmentation); err != nil {
			return nil, fmt.Errorf("decode mask %s: %w", m.ID, err)
		}
		session.Masks[i] = model.Mask{
			ID:             m.ID,
			Segmentation:   grid,
			Area:           m.Area,
			BBox:           m.BBox,
			PredictedIOU:   m.PredictedIOU,
			PointCoords:    m.PointCoords,
			StabilityScore: m.StabilityScore,
		}
	}
	return session, nil
}

func (s *RedisSessionStore) Count(ctx context.Context) (int, error) {
	n := 0
	iter := s.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n, iter.Err()
}

func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}
