package handler_test

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/Bharath5252/Segmentation-masks-via-SAM2/handler"
	"github.com/Bharath5252/Segmentation-masks-via-SAM2/model"
	"github.com/Bharath5252/Segmentation-masks-via-SAM2/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	artifacts, err := service.NewArtifactStoreFor(dir, "png")
	require.NoError(t, err)
	gateway := service.NewGateway(
		service.NewRemoteSegmenter("", "", nil),
		service.NewSynthesizer(),
		service.GatewayOptions{GenerateTimeout: time.Second, PredictTimeout: time.Second},
	)
	ws := service.NewWorkspace(
		service.NewUploadStore(dir),
		service.NewMemorySessionStore(),
		artifacts,
		gateway,
		service.WorkspaceOptions{MaxUploadSize: 1 << 20, ArtifactFormat: "png"},
	)

	r := gin.New()
	handler.NewSegmentHandler(ws, 1<<20, handler.BuildInfo{Version: "test"}).Register(r)
	return r
}

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, data []byte, contentType string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="test_image.png"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload-image", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func do(t *testing.T, srv http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func postJSON(t *testing.T, srv http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return do(t, srv, req)
}

func upload(t *testing.T, srv http.Handler) string {
	t.Helper()
	w := do(t, srv, uploadRequest(t, solidPNG(t, 100, 100, color.NRGBA{B: 255, A: 255}), "image/png"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp model.UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Image uploaded successfully", resp.Message)
	assert.True(t, strings.HasPrefix(resp.ImageData, "data:image/png;base64,"))
	return resp.ImageID
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp model.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	return resp.Code
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp model.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, 0, resp.StoredImages)
	assert.Equal(t, "test", resp.Version)
}

func TestUpload_InvalidType(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, uploadRequest(t, []byte("not an image"), "text/plain"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "File must be an image")
}

func TestUpload_NoFile(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, httptest.NewRequest(http.MethodPost, "/upload-image", nil))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestGenerateMasks(t *testing.T) {
	srv := newTestServer(t)

	w := postJSON(t, srv, "/generate-masks", `{"image_id":"nonexistent"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, w))

	assert.Equal(t, http.StatusUnprocessableEntity, postJSON(t, srv, "/generate-masks", `{}`).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, postJSON(t, srv, "/generate-masks", `invalid json`).Code)

	id := upload(t, srv)
	w = postJSON(t, srv, "/generate-masks", `{"image_id":"`+id+`"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		ImageID string `json:"image_id"`
		Masks   []struct {
			ID           string   `json:"id"`
			Segmentation [][]bool `json:"segmentation"`
			Area         int      `json:"area"`
			BBox         []int    `json:"bbox"`
			PointCoords  [][]int  `json:"point_coords"`
		} `json:"masks"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.ImageID)
	assert.Equal(t, "Generated 4 masks", resp.Message)
	require.Len(t, resp.Masks, 4)
	assert.Equal(t, "0", resp.Masks[0].ID)
	assert.Equal(t, []int{13, 13, 24, 24}, resp.Masks[0].BBox)
	assert.Equal(t, [][]int{{25, 25}}, resp.Masks[0].PointCoords)
	// dense height×width boolean grid on the wire
	require.Len(t, resp.Masks[0].Segmentation, 100)
	require.Len(t, resp.Masks[0].Segmentation[0], 100)
	assert.True(t, resp.Masks[0].Segmentation[13][13])
	assert.False(t, resp.Masks[0].Segmentation[12][13])
}

func TestGetMask(t *testing.T) {
	srv := newTestServer(t)

	w := postJSON(t, srv, "/get-mask", `{"image_id":"nonexistent","points":[{"x":50,"y":50}],"labels":[1]}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	id := upload(t, srv)
	require.Equal(t, http.StatusOK, postJSON(t, srv, "/generate-masks", `{"image_id":"`+id+`"}`).Code)

	w = postJSON(t, srv, "/get-mask", `{"image_id":"`+id+`","points":[{"x":50,"y":50}],"labels":[1]}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Segmentation [][]bool `json:"segmentation"`
		Score        float64  `json:"score"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0.8, resp.Score)
	assert.True(t, resp.Segmentation[38][38])
	assert.False(t, resp.Segmentation[62][62])

	w = postJSON(t, srv, "/get-mask", `{"image_id":"`+id+`","points":[],"labels":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(t, w))
}

func TestApplyColorsAndDownload(t *testing.T) {
	srv := newTestServer(t)

	w := postJSON(t, srv, "/apply-colors", `{"image_id":"nonexistent","mask_ids":["0"],"color":"#ff0000"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	id := upload(t, srv)

	w = do(t, srv, httptest.NewRequest(http.MethodGet, "/download/"+id, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ARTIFACT_MISSING", errorCode(t, w))

	require.Equal(t, http.StatusOK, postJSON(t, srv, "/generate-masks", `{"image_id":"`+id+`"}`).Code)

	w = postJSON(t, srv, "/apply-colors", `{"image_id":"`+id+`","mask_ids":["0"],"color":"#nothex"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(t, srv, "/apply-colors", `{"image_id":"`+id+`","mask_ids":["0","unknown"],"color":"#ff0000"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var colorResp model.ColorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &colorResp))
	assert.Equal(t, "Colors applied successfully", colorResp.Message)
	assert.True(t, strings.HasSuffix(colorResp.ColoredImagePath, id+"_colored.png"))

	w = do(t, srv, httptest.NewRequest(http.MethodGet, "/download/"+id, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "colored_building_"+id+".png")

	img, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	r, g, b, _ := img.At(20, 20).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0, 0}, [3]uint32{r, g, b})
	r, g, b, _ = img.At(50, 50).RGBA()
	assert.Equal(t, [3]uint32{0, 0, 0xffff}, [3]uint32{r, g, b})

	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)
	req := httptest.NewRequest(http.MethodGet, "/download/"+id, nil)
	req.Header.Set("If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, do(t, srv, req).Code)
}

func TestDownload_UnknownImage(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, httptest.NewRequest(http.MethodGet, "/download/nonexistent", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, w))
}

func TestDebugMasks(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, httptest.NewRequest(http.MethodGet, "/debug/masks/nonexistent", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	id := upload(t, srv)
	require.Equal(t, http.StatusOK, postJSON(t, srv, "/generate-masks", `{"image_id":"`+id+`"}`).Code)

	w = do(t, srv, httptest.NewRequest(http.MethodGet, "/debug/masks/"+id, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		MaskCount int `json:"mask_count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.MaskCount)

	w = do(t, srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	var health model.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, 1, health.StoredImages)
}

func TestProbeMask(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, httptest.NewRequest(http.MethodGet, "/test/mock-mask", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Mask struct {
			ID string `json:"id"`
		} `json:"mask"`
		MaskSize string `json:"mask_size"`
		BBox     []int  `json:"bbox"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "test-0", resp.Mask.ID)
	assert.Equal(t, "100x100", resp.MaskSize)
	assert.Equal(t, []int{30, 30, 40, 40}, resp.BBox)
}

func TestVersionAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version":"test"`)

	id := upload(t, srv)
	require.Equal(t, http.StatusOK, postJSON(t, srv, "/generate-masks", `{"image_id":"`+id+`"}`).Code)

	w = do(t, srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `segpaint_gateway_calls_total{op="generate",outcome="fallback"}`)
}
