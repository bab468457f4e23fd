package handlers

import (
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/1demilade/cocoa-disease-app/internal/middleware"
)

type RouterOptions struct {
	// StaticDir is served under /static, with its index.html at /. Skipped when absent.
	StaticDir string
	// MaxMultipartMemory is how much of an upload is held in memory before spilling to disk.
	MaxMultipartMemory int64
}

func SetupRoutes(h *Handler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS())

	if opts.MaxMultipartMemory > 0 {
		r.MaxMultipartMemory = opts.MaxMultipartMemory
	}

	if opts.StaticDir != "" {
		if info, err := os.Stat(opts.StaticDir); err == nil && info.IsDir() {
			r.Static("/static", opts.StaticDir)
			index := filepath.Join(opts.StaticDir, "index.html")
			if _, err := os.Stat(index); err == nil {
				r.StaticFile("/", index)
			}
		}
	}

	r.GET("/health", h.Health)
	r.GET("/version", h.Version)
	r.POST("/predict", h.PredictFromImage)
	r.POST("/predict/tensor", h.PredictFromTensor)

	return r
}
