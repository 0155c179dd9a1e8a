package api

import (
	"net/http"
	"time"

	"alcyxob/storage-gateway/internal/service"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions carries the cross-cutting settings of the HTTP layer.
type RouterOptions struct {
	CORSOrigins []string
	// Gatherer serves /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// MaxMultipartMemory is how much of a multipart body gin keeps in memory
	// before spilling to temp files.
	MaxMultipartMemory int64
}

// NewRouter builds the gin engine with middleware and all routes.
func NewRouter(storageService service.StorageService, logger *log.Logger, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))
	if opts.MaxMultipartMemory > 0 {
		router.MaxMultipartMemory = opts.MaxMultipartMemory
	}

	if len(opts.CORSOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		if len(opts.CORSOrigins) == 1 && opts.CORSOrigins[0] == "*" {
			corsConfig.AllowAllOrigins = true
		} else {
			corsConfig.AllowOrigins = opts.CORSOrigins
		}
		corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"}
		corsConfig.MaxAge = 12 * time.Hour
		router.Use(cors.New(corsConfig))
	}

	SetupRoutes(router, storageService)

	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	return router
}

// SetupRoutes registers the health check and the storage API.
func SetupRoutes(router *gin.Engine, storageService service.StorageService) {
	storageHandler := NewStorageHandler(storageService)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	storageGroup := router.Group("/storage")
	{
		// POST /storage/upload - single file + {bucket?, folder?}
		storageGroup.POST("/upload", storageHandler.UploadFile)
		// POST /storage/upload-multiple - "files" + {bucket?, folder?}
		storageGroup.POST("/upload-multiple", storageHandler.UploadMultipleFiles)

		// GET /storage/{bucket}/{key...} - metadata, ?download=true for bytes
		// GET /storage/{bucket}/?prefix= - list
		storageGroup.GET("/:bucket/*key", storageHandler.GetFile)

		// PUT /storage/update/{bucket}/{filepath...}
		storageGroup.PUT("/update/:bucket/*filepath", storageHandler.UpdateFile)

		// DELETE /storage/delete/{bucket}/{filepath...}
		storageGroup.DELETE("/delete/:bucket/*filepath", storageHandler.DeleteFile)
		// DELETE /storage/delete-multiple/{bucket} - {paths: []}
		storageGroup.DELETE("/delete-multiple/:bucket", storageHandler.DeleteMultipleFiles)

		// POST /storage/delete - {url}
		storageGroup.POST("/delete", storageHandler.DeleteFileByURL)
		// POST /storage/delete-multiple - {urls: []}
		storageGroup.POST("/delete-multiple", storageHandler.DeleteMultipleFilesByURL)
	}
}
