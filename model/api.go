package model

// ErrorResponse 错误响应
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

type UploadResponse struct {
	ImageID   string `json:"image_id"`
	Message   string `json:"message"`
	ImageData string `json:"image_data"`
}

type GenerateMasksRequest struct {
	ImageID string `json:"image_id" binding:"required"`
}

type GenerateMasksResponse struct {
	ImageID string `json:"image_id"`
	Masks   []Mask `json:"masks"`
	Message string `json:"message"`
}

type MaskRequest struct {
	ImageID string  `json:"image_id" binding:"required"`
	Points  []Point `json:"points" binding:"required"`
	Labels  []int   `json:"labels" binding:"required"`
}

type ColorRequest struct {
	ImageID string   `json:"image_id" binding:"required"`
	MaskIDs []string `json:"mask_ids" binding:"required"`
	Color   string   `json:"color" binding:"required"`
}

type ColorResponse struct {
	Message          string `json:"message"`
	ColoredImagePath string `json:"colored_image_path"`
}

type DebugMasksResponse struct {
	ImageID   string `json:"image_id"`
	MaskCount int    `json:"mask_count"`
	Masks     []Mask `json:"masks"`
}

type ProbeMaskResponse struct {
	Message  string `json:"message"`
	Mask     Mask   `json:"mask"`
	MaskSize string `json:"mask_size"`
	BBox     BBox   `json:"bbox"`
}

type HealthResponse struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	StoredImages int    `json:"stored_images"`
	Version      string `json:"version"`
}
