package handler

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/Bharath5252/Segmentation-masks-via-SAM2/apperror"
	"github.com/Bharath5252/Segmentation-masks-via-SAM2/model"
	"github.com/Bharath5252/Segmentation-masks-via-SAM2/service"
	"github.com/Bharath5252/Segmentation-masks-via-SAM2/utils"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const probeImageSize = 100

// BuildInfo is reported by /version and /health.
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	BuildID   string `json:"build_id"`
	GitCommit string `json:"git_commit"`
	GitBranch string `json:"git_branch"`
}

type SegmentHandler struct {
	workspace     *service.Workspace
	maxUploadSize int64
	build         BuildInfo
}

func NewSegmentHandler(workspace *service.Workspace, maxUploadSize int64, build BuildInfo) *SegmentHandler {
	return &SegmentHandler{
		workspace:     workspace,
		maxUploadSize: maxUploadSize,
		build:         build,
	}
}

// Register mounts every route on r.
func (h *SegmentHandler) Register(r gin.IRoutes) {
	r.POST("/upload-image", h.Upload)
	r.POST("/generate-masks", h.GenerateMasks)
	r.POST("/get-mask", h.GetMask)
	r.POST("/apply-colors", h.ApplyColors)
	r.GET("/download/:image_id", h.Download)

	r.GET("/health", h.Health)
	r.GET("/version", h.Version)
	r.GET("/debug/masks/:image_id", h.DebugMasks)
	r.GET("/test/mock-mask", h.ProbeMask)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Upload 处理图片上传
func (h *SegmentHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		respondBadRequest(c, "file is required", err)
		return
	}

	if h.maxUploadSize > 0 && file.Size > h.maxUploadSize {
		respondError(c, apperror.Validation("file exceeds the %d MB limit", h.maxUploadSize/(1024*1024)))
		return
	}

	f, err := file.Open()
	if err != nil {
		respondError(c, fmt.Errorf("open upload: %w", err))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		respondError(c, fmt.Errorf("read upload: %w", err))
		return
	}

	contentType := file.Header.Get("Content-Type")
	imageID, err := h.workspace.Upload(c.Request.Context(), data, contentType)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.UploadResponse{
		ImageID:   imageID,
		Message:   "Image uploaded successfully",
		ImageData: fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data)),
	})
}

func (h *SegmentHandler) GenerateMasks(c *gin.Context) {
	var req model.GenerateMasksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body", err)
		return
	}

	masks, err := h.workspace.GenerateMasks(c.Request.Context(), req.ImageID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.GenerateMasksResponse{
		ImageID: req.ImageID,
		Masks:   masks,
		Message: fmt.Sprintf("Generated %d masks", len(masks)),
	})
}

func (h *SegmentHandler) GetMask(c *gin.Context) {
	var req model.MaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body", err)
		return
	}

	mask, err := h.workspace.QueryPoint(c.Request.Context(), req.ImageID, req.Points, req.Labels)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, mask)
}

func (h *SegmentHandler) ApplyColors(c *gin.Context) {
	var req model.ColorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body", err)
		return
	}

	ref, err := h.workspace.ApplyColors(c.Request.Context(), req.ImageID, req.MaskIDs, req.Color)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.ColorResponse{
		Message:          "Colors applied successfully",
		ColoredImagePath: ref.Path,
	})
}

func (h *SegmentHandler) Download(c *gin.Context) {
	imageID := c.Param("image_id")

	data, ref, err := h.workspace.FetchArtifact(c.Request.Context(), imageID)
	if err != nil {
		respondError(c, err)
		return
	}

	etag := `"` + ref.Digest + `"`
	c.Header("ETag", etag)
	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="colored_building_%s%s"`, imageID, filepath.Ext(ref.Path)))
	c.Data(http.StatusOK, ref.ContentType, data)
}

func (h *SegmentHandler) Health(c *gin.Context) {
	stored, err := h.workspace.SessionCount(c.Request.Context())
	if err != nil {
		utils.Logger.Warn("failed to count sessions", zap.Error(err))
		stored = -1
	}

	c.JSON(http.StatusOK, model.HealthResponse{
		Status:       "healthy",
		Message:      "Building segmentation API is running",
		StoredImages: stored,
		Version:      h.build.Version,
	})
}

func (h *SegmentHandler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, h.build)
}

func (h *SegmentHandler) DebugMasks(c *gin.Context) {
	imageID := c.Param("image_id")

	masks, err := h.workspace.Masks(c.Request.Context(), imageID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.DebugMasksResponse{
		ImageID:   imageID,
		MaskCount: len(masks),
		Masks:     masks,
	})
}

func (h *SegmentHandler) ProbeMask(c *gin.Context) {
	mask := h.workspace.ProbeMask(probeImageSize, probeImageSize)

	c.JSON(http.StatusOK, model.ProbeMaskResponse{
		Message:  "Test mock mask generated",
		Mask:     mask,
		MaskSize: fmt.Sprintf("%dx%d", probeImageSize, probeImageSize),
		BBox:     mask.BBox,
	})
}

// respondBadRequest answers malformed or incomplete request bodies.
func respondBadRequest(c *gin.Context, message string, err error) {
	c.JSON(http.StatusUnprocessableEntity, model.ErrorResponse{
		Success: false,
		Code:    string(apperror.KindValidation),
		Message: message,
		Error:   err.Error(),
	})
}

func respondError(c *gin.Context, err error) {
	kind := apperror.KindOf(err)

	status := http.StatusInternalServerError
	switch kind {
	case apperror.KindNotFound, apperror.KindArtifactMissing:
		status = http.StatusNotFound
	case apperror.KindValidation:
		status = http.StatusBadRequest
	}

	resp := model.ErrorResponse{
		Success: false,
		Code:    string(kind),
		Message: apperror.MessageOf(err),
	}
	if status == http.StatusInternalServerError {
		utils.Logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		resp.Message = "internal error"
		resp.Error = err.Error()
	}

	_ = c.Error(err)
	c.JSON(status, resp)
}
