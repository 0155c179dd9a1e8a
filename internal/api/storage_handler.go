package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"alcyxob/storage-gateway/internal/domain"
	"alcyxob/storage-gateway/internal/service"

	"github.com/gin-gonic/gin"
)

// StorageHandler holds the storage service dependency.
type StorageHandler struct {
	storageService service.StorageService
}

// NewStorageHandler creates a new StorageHandler.
func NewStorageHandler(storageService service.StorageService) *StorageHandler {
	return &StorageHandler{storageService: storageService}
}

// --- DTOs for API (Data Transfer Objects) ---

// UploadFileRequest holds the multipart form fields sent next to the file(s).
type UploadFileRequest struct {
	Bucket string `form:"bucket"`
	Folder string `form:"folder"`
}

// DeleteFileRequest deletes one object by its public URL.
type DeleteFileRequest struct {
	URL string `json:"url" binding:"required"`
}

// DeleteMultipleFilesRequest deletes objects by public URL, across buckets.
type DeleteMultipleFilesRequest struct {
	URLs []string `json:"urls" binding:"required,min=1"`
}

// DeletePathsRequest deletes objects by path inside one bucket.
type DeletePathsRequest struct {
	Paths []string `json:"paths" binding:"required,min=1"`
}

// MessageResponse is returned by delete endpoints.
type MessageResponse struct {
	Message string                `json:"message"`
	Details *domain.DeleteSummary `json:"details,omitempty"`
}

// --- Handler Methods ---

// UploadFile godoc
// @Summary Upload a file
// @Description Stores one file under a generated name in the given bucket and folder.
// @Tags Storage
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "File to upload"
// @Param bucket formData string false "Target bucket, defaults to the first configured bucket"
// @Param folder formData string false "Folder prefix inside the bucket"
// @Success 201 {object} domain.StorageObject
// @Failure 400 {object} ErrorResponse "Invalid bucket, missing file or file too large"
// @Failure 500 {object} ErrorResponse "Backend failure"
// @Router /storage/upload [post]
func (h *StorageHandler) UploadFile(c *gin.Context) {
	var req UploadFileRequest
	if err := c.ShouldBind(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "File is required")
		return
	}

	payload, closer, err := openPayload(fileHeader)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Unable to read uploaded file")
		return
	}
	defer closer.Close()

	result, err := h.storageService.Upload(c.Request.Context(), payload, h.uploadOptions(req, payload.ContentType))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// UploadMultipleFiles godoc
// @Summary Upload several files
// @Description Stores every file in the "files" field. Fails as a whole if any single upload fails.
// @Tags Storage
// @Accept multipart/form-data
// @Produce json
// @Param files formData file true "Files to upload"
// @Param bucket formData string false "Target bucket"
// @Param folder formData string false "Folder prefix inside the bucket"
// @Success 201 {array} domain.StorageObject
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /storage/upload-multiple [post]
func (h *StorageHandler) UploadMultipleFiles(c *gin.Context) {
	var req UploadFileRequest
	if err := c.ShouldBind(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	form, err := c.MultipartForm()
	if err != nil || len(form.File["files"]) == 0 {
		abortWithError(c, http.StatusBadRequest, "Files are required")
		return
	}
	headers := form.File["files"]
	if maxFiles := h.storageService.MaxFiles(); maxFiles > 0 && len(headers) > maxFiles {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Too many files: got %d, limit is %d", len(headers), maxFiles))
		return
	}

	payloads := make([]domain.Payload, 0, len(headers))
	for _, fh := range headers {
		payload, closer, err := openPayload(fh)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "Unable to read uploaded file "+fh.Filename)
			return
		}
		defer closer.Close()
		payloads = append(payloads, payload)
	}

	results, err := h.storageService.UploadMany(c.Request.Context(), payloads, h.uploadOptions(req, ""))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, results)
}

// GetFile godoc
// @Summary Get file metadata, list a bucket, or download a file
// @Description With a key, returns metadata (or the raw bytes when download=true).
// @Description With an empty key (trailing slash), lists objects under the optional prefix.
// @Tags Storage
// @Produce json
// @Param bucket path string true "Bucket"
// @Param key path string true "Object path"
// @Param prefix query string false "List prefix"
// @Param download query bool false "Stream the object body"
// @Success 200 {object} domain.StorageObject
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /storage/{bucket}/{key} [get]
func (h *StorageHandler) GetFile(c *gin.Context) {
	bucket := c.Param("bucket")
	key := strings.TrimPrefix(c.Param("key"), "/")

	if key == "" {
		objects, err := h.storageService.List(c.Request.Context(), bucket, c.Query("prefix"))
		if err != nil {
			abortWithServiceError(c, err)
			return
		}
		if objects == nil {
			objects = []domain.StorageObject{}
		}
		c.JSON(http.StatusOK, objects)
		return
	}

	if download, _ := strconv.ParseBool(c.Query("download")); download {
		h.downloadFile(c, bucket, key)
		return
	}

	info, err := h.storageService.GetInfo(c.Request.Context(), bucket, key)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *StorageHandler) downloadFile(c *gin.Context, bucket, key string) {
	body, info, err := h.storageService.Download(c.Request.Context(), bucket, key)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	defer body.Close()

	name := key[strings.LastIndex(key, "/")+1:]
	c.DataFromReader(http.StatusOK, info.Size, info.ContentType, body, map[string]string{
		"Content-Disposition": fmt.Sprintf("inline; filename=%q", name),
	})
}

// UpdateFile godoc
// @Summary Replace a file
// @Description Deletes the object at the path and uploads the new file to the same path.
// @Description Not atomic: on a 500 the previous object may already be gone and must be uploaded again.
// @Tags Storage
// @Accept multipart/form-data
// @Produce json
// @Param bucket path string true "Bucket"
// @Param filepath path string true "Existing object path"
// @Param file formData file true "Replacement file"
// @Success 200 {object} domain.StorageObject
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /storage/update/{bucket}/{filepath} [put]
func (h *StorageHandler) UpdateFile(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "File is required")
		return
	}

	payload, closer, err := openPayload(fileHeader)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Unable to read uploaded file")
		return
	}
	defer closer.Close()

	result, err := h.storageService.Update(c.Request.Context(), payload, c.Param("filepath"), c.Param("bucket"))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// DeleteFile godoc
// @Summary Delete a file by bucket and path
// @Tags Storage
// @Produce json
// @Param bucket path string true "Bucket"
// @Param filepath path string true "Object path"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /storage/delete/{bucket}/{filepath} [delete]
func (h *StorageHandler) DeleteFile(c *gin.Context) {
	err := h.storageService.Delete(c.Request.Context(), c.Param("bucket"), c.Param("filepath"))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "File deleted successfully"})
}

// DeleteMultipleFiles godoc
// @Summary Delete several files from one bucket
// @Tags Storage
// @Accept json
// @Produce json
// @Param bucket path string true "Bucket"
// @Param body body DeletePathsRequest true "Paths to delete"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /storage/delete-multiple/{bucket} [delete]
func (h *StorageHandler) DeleteMultipleFiles(c *gin.Context) {
	var req DeletePathsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	if err := h.storageService.DeleteMany(c.Request.Context(), c.Param("bucket"), req.Paths); err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: fmt.Sprintf("%d files deleted successfully", len(req.Paths))})
}

// DeleteFileByURL godoc
// @Summary Delete a file by its public URL
// @Tags Storage
// @Accept json
// @Produce json
// @Param body body DeleteFileRequest true "Public URL"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse "Malformed URL or bucket not allowed"
// @Failure 500 {object} ErrorResponse
// @Router /storage/delete [post]
func (h *StorageHandler) DeleteFileByURL(c *gin.Context) {
	var req DeleteFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	if err := h.storageService.DeleteByURL(c.Request.Context(), req.URL); err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "File deleted successfully"})
}

// DeleteMultipleFilesByURL godoc
// @Summary Delete several files by public URL
// @Description URLs may point into different buckets; each bucket gets one batched delete.
// @Tags Storage
// @Accept json
// @Produce json
// @Param body body DeleteMultipleFilesRequest true "Public URLs"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /storage/delete-multiple [post]
func (h *StorageHandler) DeleteMultipleFilesByURL(c *gin.Context) {
	var req DeleteMultipleFilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	summary, err := h.storageService.DeleteManyByURLs(c.Request.Context(), req.URLs)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{
		Message: fmt.Sprintf("%d files deleted successfully", summary.Total),
		Details: summary,
	})
}

func (h *StorageHandler) uploadOptions(req UploadFileRequest, contentType string) domain.UploadOptions {
	bucket := strings.TrimSpace(req.Bucket)
	if bucket == "" {
		bucket = h.storageService.DefaultBucket()
	}
	return domain.UploadOptions{Bucket: bucket, Folder: req.Folder, ContentType: contentType}
}

// openPayload opens an uploaded multipart file. The returned closer must be
// closed once the upload finished.
func openPayload(fh *multipart.FileHeader) (domain.Payload, io.Closer, error) {
	if fh == nil {
		return domain.Payload{}, nil, errors.New("missing file header")
	}
	f, err := fh.Open()
	if err != nil {
		return domain.Payload{}, nil, err
	}
	return domain.Payload{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
	}, f, nil
}
