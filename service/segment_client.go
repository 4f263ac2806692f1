package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Bharath5252/Segmentation-masks-via-SAM2/model"
)

// ErrSegmenterDisabled is returned when no segmentation endpoint is configured.
var ErrSegmenterDisabled = errors.New("segmentation service not configured")

// Segmenter is the remote segmentation model.
type Segmenter interface {
	AutomaticSegment(ctx context.Context, image []byte) ([]model.MaskCandidate, error)
	PointSegment(ctx context.Context, image []byte, points []model.Point, labels []int) ([]model.PointCandidate, error)
}

// RemoteSegmenter calls a GPU-backed segmentation function over HTTP.
type RemoteSegmenter struct {
	endpoint string
	token    string
	client   *http.Client
}

func NewRemoteSegmenter(endpoint, token string, client *http.Client) *RemoteSegmenter {
	if client == nil {
		client = &http.Client{}
	}
	return &RemoteSegmenter{
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
		client:   client,
	}
}

type generateRequest struct {
	Image string `json:"image"`
}

type predictRequest struct {
	Image  string   `json:"image"`
	Points [][2]int `json:"points"`
	Labels []int    `json:"labels"`
}

type generateResponse struct {
	Masks []model.MaskCandidate `json:"masks"`
}

type predictResponse struct {
	Masks []model.PointCandidate `json:"masks"`
}

func (s *RemoteSegmenter) AutomaticSegment(ctx context.Context, image []byte) ([]model.MaskCandidate, error) {
	var resp generateResponse
	if err := s.call(ctx, "/generate", generateRequest{Image: base64.StdEncoding.EncodeToString(image)}, &resp); err != nil {
		return nil, err
	}
	if resp.Masks == nil {
		return nil, errors.New("generate response has no masks field")
	}
	return resp.Masks, nil
}

func (s *RemoteSegmenter) PointSegment(ctx context.Context, image []byte, points []model.Point, labels []int) ([]model.PointCandidate, error) {
	req := predictRequest{
		Image:  base64.StdEncoding.EncodeToString(image),
		Points: make([][2]int, len(points)),
		Labels: labels,
	}
	for i, p := range points {
		req.Points[i] = [2]int{p.X, p.Y}
	}

	var resp predictResponse
	if err := s.call(ctx, "/predict", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Masks) == 0 {
		return nil, errors.New("predict response has no candidate masks")
	}
	return resp.Masks, nil
}

func (s *RemoteSegmenter) call(ctx context.Context, path string, body, out any) error {
	if s.endpoint == "" {
		return ErrSegmenterDisabled
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StatusError is a non-2xx answer from the segmentation service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("segmentation service returned %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether another attempt could succeed.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
