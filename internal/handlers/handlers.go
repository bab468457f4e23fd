package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/1demilade/cocoa-disease-app/internal/logger"
	"github.com/1demilade/cocoa-disease-app/internal/model"
	"github.com/1demilade/cocoa-disease-app/internal/service"
)

// MsgNoImage is the exact body text for a request without an image field.
const MsgNoImage = "No image uploaded"

type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

type Handler struct {
	predictService service.PredictService
	build          BuildInfo
}

func NewHandler(predictService service.PredictService, build BuildInfo) *Handler {
	return &Handler{
		predictService: predictService,
		build:          build,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, h.build)
}

// PredictFromImage classifies the multipart "image" upload.
func (h *Handler) PredictFromImage(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		h.fail(c, service.ErrMissingInput)
		return
	}

	f, err := file.Open()
	if err != nil {
		h.fail(c, err)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		h.fail(c, err)
		return
	}

	logger.Logger.Debug("received file",
		zap.String("request_id", c.GetString("request_id")),
		zap.String("filename", file.Filename),
		zap.Int64("size", file.Size))

	result, err := h.predictService.Predict(c.Request.Context(), &service.UploadedImage{
		Data:        data,
		ContentType: file.Header.Get("Content-Type"),
		Filename:    file.Filename,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.PureJSON(http.StatusOK, service.Response(result))
}

// PredictFromTensor classifies an already-normalised input tensor sent as
// JSON, bypassing decoding and resizing.
func (h *Handler) PredictFromTensor(c *gin.Context) {
	var req model.TensorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid JSON: " + err.Error()})
		return
	}

	result, err := h.predictService.PredictTensor(c.Request.Context(), req.Tensor)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.PureJSON(http.StatusOK, service.Response(result))
}

func (h *Handler) fail(c *gin.Context, err error) {
	kind := service.KindOf(err)
	status := StatusFor(kind)

	msg := err.Error()
	if kind == service.KindMissingInput {
		msg = MsgNoImage
	}

	if status >= http.StatusInternalServerError {
		logger.Logger.Error("prediction failed",
			zap.String("request_id", c.GetString("request_id")),
			zap.Stringer("kind", kind),
			zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, model.ErrorResponse{Error: msg})
}

// StatusFor maps a failure kind to its HTTP status.
func StatusFor(kind service.Kind) int {
	switch kind {
	case service.KindMissingInput, service.KindInvalidInput:
		return http.StatusBadRequest
	case service.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
