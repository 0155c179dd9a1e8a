package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"alcyxob/storage-gateway/internal/domain"
	"alcyxob/storage-gateway/internal/storage"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

// StorageService is the gateway between HTTP handlers and the object store.
type StorageService interface {
	ValidateBucket(bucket string) error
	DefaultBucket() string
	MaxFiles() int

	Upload(ctx context.Context, payload domain.Payload, opts domain.UploadOptions) (*domain.StorageObject, error)
	UploadMany(ctx context.Context, payloads []domain.Payload, opts domain.UploadOptions) ([]domain.StorageObject, error)
	Update(ctx context.Context, payload domain.Payload, existingPath, bucket string) (*domain.StorageObject, error)

	Delete(ctx context.Context, bucket, path string) error
	DeleteMany(ctx context.Context, bucket string, paths []string) error
	DeleteByURL(ctx context.Context, rawURL string) error
	DeleteManyByURLs(ctx context.Context, rawURLs []string) (*domain.DeleteSummary, error)

	GetInfo(ctx context.Context, bucket, path string) (*domain.StorageObject, error)
	List(ctx context.Context, bucket, prefix string) ([]domain.StorageObject, error)
	Download(ctx context.Context, bucket, path string) (io.ReadCloser, *domain.StorageObject, error)

	PublicURL(bucket, path string) string
}

// Observer receives timing and outcome of backend operations.
type Observer interface {
	RecordUpload(bucket string, duration time.Duration, sizeBytes int64, err error)
	RecordOperation(operation, bucket string, duration time.Duration, err error)
}

// Options configures the gateway. Buckets is the allow-list and is never
// modified after construction.
type Options struct {
	Buckets           []string
	DefaultBucket     string
	MaxFileSize       int64
	MaxFiles          int
	UploadConcurrency int
}

// --- Service Implementation ---

type storageService struct {
	backend  storage.Backend
	observer Observer
	logger   *log.Logger

	buckets       []string
	defaultBucket string
	maxFileSize   int64
	maxFiles      int
	concurrency   int
	now           func() time.Time
}

// NewStorageService creates the gateway. observer may be nil.
func NewStorageService(backend storage.Backend, opts Options, observer Observer, logger *log.Logger) StorageService {
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = log.Default()
	}
	concurrency := opts.UploadConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	defaultBucket := opts.DefaultBucket
	if defaultBucket == "" && len(opts.Buckets) > 0 {
		defaultBucket = opts.Buckets[0]
	}
	return &storageService{
		backend:       backend,
		observer:      observer,
		logger:        logger,
		buckets:       slices.Clone(opts.Buckets),
		defaultBucket: defaultBucket,
		maxFileSize:   opts.MaxFileSize,
		maxFiles:      opts.MaxFiles,
		concurrency:   concurrency,
		now:           time.Now,
	}
}

func (s *storageService) DefaultBucket() string { return s.defaultBucket }

func (s *storageService) MaxFiles() int { return s.maxFiles }

// ValidateBucket fails with ErrInvalidBucket unless bucket is allow-listed.
func (s *storageService) ValidateBucket(bucket string) error {
	if !slices.Contains(s.buckets, bucket) {
		return fmt.Errorf("%w: %s. Available buckets: %s", ErrInvalidBucket, bucket, strings.Join(s.buckets, ", "))
	}
	return nil
}

func (s *storageService) validatePayload(p domain.Payload) error {
	if p.Body == nil || p.Size <= 0 {
		return fmt.Errorf("%w: %q is empty", ErrEmptyPayload, p.Name)
	}
	if s.maxFileSize > 0 && p.Size > s.maxFileSize {
		return fmt.Errorf("%w: %q is %d bytes, limit is %d", ErrPayloadTooLarge, p.Name, p.Size, s.maxFileSize)
	}
	return nil
}

// Upload stores a single payload under a freshly generated name.
func (s *storageService) Upload(ctx context.Context, payload domain.Payload, opts domain.UploadOptions) (*domain.StorageObject, error) {
	if err := s.ValidateBucket(opts.Bucket); err != nil {
		return nil, err
	}
	if err := s.validatePayload(payload); err != nil {
		return nil, err
	}
	filePath := BuildPath(GenerateUniqueName(payload.Name), opts.Folder)
	return s.put(ctx, payload, opts.Bucket, filePath, opts.ContentType, false)
}

// UploadMany validates every payload before touching the backend, then
// uploads them concurrently. Results keep input order. The batch is
// all-or-nothing in what it reports: if any upload fails the error of the
// first failing payload (by input position) is returned. Payloads that were
// stored before the failure are left in place.
func (s *storageService) UploadMany(ctx context.Context, payloads []domain.Payload, opts domain.UploadOptions) ([]domain.StorageObject, error) {
	if err := s.ValidateBucket(opts.Bucket); err != nil {
		return nil, err
	}
	if len(payloads) == 0 {
		return nil, fmt.Errorf("%w: no files in request", ErrEmptyPayload)
	}
	if err := s.checkBatchSize(len(payloads)); err != nil {
		return nil, err
	}
	for _, p := range payloads {
		if err := s.validatePayload(p); err != nil {
			return nil, err
		}
	}

	results := make([]domain.StorageObject, len(payloads))
	errs := make([]error, len(payloads))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, p := range payloads {
		g.Go(func() error {
			filePath := BuildPath(GenerateUniqueName(p.Name), opts.Folder)
			obj, err := s.put(ctx, p, opts.Bucket, filePath, opts.ContentType, false)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = *obj
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// Update replaces the object at existingPath. It deletes first and then
// uploads with overwrite allowed. This is not atomic: when the upload fails
// the old object is already gone and the caller has to upload again.
func (s *storageService) Update(ctx context.Context, payload domain.Payload, existingPath, bucket string) (*domain.StorageObject, error) {
	if err := s.ValidateBucket(bucket); err != nil {
		return nil, err
	}
	existingPath = strings.TrimLeft(existingPath, "/")
	if existingPath == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if err := s.validatePayload(payload); err != nil {
		return nil, err
	}
	if err := s.remove(ctx, bucket, []string{existingPath}); err != nil {
		return nil, err
	}
	obj, err := s.put(ctx, payload, bucket, existingPath, "", true)
	if err != nil {
		s.logger.Error("Update left object deleted but not replaced", "bucket", bucket, "path", existingPath, "err", err)
		return nil, err
	}
	return obj, nil
}

func (s *storageService) put(ctx context.Context, p domain.Payload, bucket, filePath, contentType string, overwrite bool) (*domain.StorageObject, error) {
	declared := p.ContentType
	if declared == "" {
		declared = storage.DefaultContentType
	}
	if contentType == "" {
		contentType = declared
	}

	start := s.now()
	err := s.backend.Upload(ctx, bucket, filePath, p.Body, p.Size, contentType, overwrite)
	s.observer.RecordUpload(bucket, time.Since(start), p.Size, err)
	if err != nil {
		return nil, &UploadError{Bucket: bucket, Path: filePath, Err: translateBackendError(err)}
	}

	return &domain.StorageObject{
		Key:         filePath,
		URL:         s.backend.PublicURL(bucket, filePath),
		Bucket:      bucket,
		ContentType: declared,
		Size:        p.Size,
		CreatedAt:   s.now().UTC(),
	}, nil
}

// Delete removes one object. Missing objects are not an error.
func (s *storageService) Delete(ctx context.Context, bucket, path string) error {
	return s.DeleteMany(ctx, bucket, []string{path})
}

// DeleteMany removes paths from bucket in one backend call. The batch is
// capped at MaxFiles like uploads are.
func (s *storageService) DeleteMany(ctx context.Context, bucket string, paths []string) error {
	if err := s.ValidateBucket(bucket); err != nil {
		return err
	}
	if err := s.checkBatchSize(len(paths)); err != nil {
		return err
	}
	cleaned, err := cleanPaths(paths)
	if err != nil {
		return err
	}
	return s.remove(ctx, bucket, cleaned)
}

func (s *storageService) checkBatchSize(n int) error {
	if s.maxFiles > 0 && n > s.maxFiles {
		return fmt.Errorf("%w: got %d, limit is %d", ErrTooManyFiles, n, s.maxFiles)
	}
	return nil
}

func (s *storageService) remove(ctx context.Context, bucket string, paths []string) error {
	start := s.now()
	err := s.backend.Remove(ctx, bucket, paths)
	s.observer.RecordOperation("delete", bucket, time.Since(start), err)
	if err != nil {
		return &DeleteError{Bucket: bucket, Paths: paths, Err: translateBackendError(err)}
	}
	return nil
}

// DeleteByURL parses a public URL and removes the object it points to.
func (s *storageService) DeleteByURL(ctx context.Context, rawURL string) error {
	loc, err := ParseURL(rawURL)
	if err != nil {
		return err
	}
	return s.Delete(ctx, loc.Bucket, loc.Path)
}

// DeleteManyByURLs parses every URL up front, groups the targets by bucket
// and issues one batched remove per bucket concurrently.
func (s *storageService) DeleteManyByURLs(ctx context.Context, rawURLs []string) (*domain.DeleteSummary, error) {
	if len(rawURLs) == 0 {
		return nil, fmt.Errorf("%w: no urls given", ErrMalformedURL)
	}
	if err := s.checkBatchSize(len(rawURLs)); err != nil {
		return nil, err
	}

	var groups []domain.BucketDeletion
	index := make(map[string]int)
	for _, raw := range rawURLs {
		loc, err := ParseURL(raw)
		if err != nil {
			return nil, err
		}
		i, ok := index[loc.Bucket]
		if !ok {
			if err := s.ValidateBucket(loc.Bucket); err != nil {
				return nil, err
			}
			i = len(groups)
			index[loc.Bucket] = i
			groups = append(groups, domain.BucketDeletion{Bucket: loc.Bucket})
		}
		groups[i].Paths = append(groups[i].Paths, loc.Path)
	}
	// Same key normalization as DeleteMany, so "/public/b//x.png" targets "x.png".
	for i := range groups {
		cleaned, err := cleanPaths(groups[i].Paths)
		if err != nil {
			return nil, err
		}
		groups[i].Paths = cleaned
	}

	errs := make([]error, len(groups))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, group := range groups {
		g.Go(func() error {
			errs[i] = s.remove(ctx, group.Bucket, group.Paths)
			return nil
		})
	}
	_ = g.Wait()

	summary := &domain.DeleteSummary{Buckets: groups}
	for i, err := range errs {
		if err != nil {
			return nil, err
		}
		summary.Total += len(groups[i].Paths)
	}
	return summary, nil
}

// GetInfo reports metadata for one object using the backend's stat call.
func (s *storageService) GetInfo(ctx context.Context, bucket, path string) (*domain.StorageObject, error) {
	if err := s.ValidateBucket(bucket); err != nil {
		return nil, err
	}
	path = strings.TrimLeft(path, "/")

	start := s.now()
	info, err := s.backend.Stat(ctx, bucket, path)
	s.observer.RecordOperation("stat", bucket, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("get info bucket=%s path=%s: %w", bucket, path, translateBackendError(err))
	}
	return s.toStorageObject(bucket, info), nil
}

// List returns the objects in bucket whose key starts with the normalized prefix.
func (s *storageService) List(ctx context.Context, bucket, prefix string) ([]domain.StorageObject, error) {
	if err := s.ValidateBucket(bucket); err != nil {
		return nil, err
	}
	prefix = strings.TrimLeft(prefix, "/")

	start := s.now()
	infos, err := s.backend.List(ctx, bucket, prefix)
	s.observer.RecordOperation("list", bucket, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("list bucket=%s prefix=%s: %w", bucket, prefix, translateBackendError(err))
	}

	objects := make([]domain.StorageObject, len(infos))
	for i, info := range infos {
		objects[i] = *s.toStorageObject(bucket, info)
	}
	return objects, nil
}

// Download opens the object body. The caller must close the reader.
func (s *storageService) Download(ctx context.Context, bucket, path string) (io.ReadCloser, *domain.StorageObject, error) {
	if err := s.ValidateBucket(bucket); err != nil {
		return nil, nil, err
	}
	path = strings.TrimLeft(path, "/")

	start := s.now()
	body, info, err := s.backend.Download(ctx, bucket, path)
	s.observer.RecordOperation("download", bucket, time.Since(start), err)
	if err != nil {
		return nil, nil, fmt.Errorf("download bucket=%s path=%s: %w", bucket, path, translateBackendError(err))
	}
	return body, s.toStorageObject(bucket, info), nil
}

func (s *storageService) PublicURL(bucket, path string) string {
	return s.backend.PublicURL(bucket, path)
}

func (s *storageService) toStorageObject(bucket string, info storage.ObjectInfo) *domain.StorageObject {
	contentType := info.ContentType
	if contentType == "" {
		contentType = storage.DefaultContentType
	}
	createdAt := info.LastModified
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	return &domain.StorageObject{
		Key:         info.Key,
		URL:         s.backend.PublicURL(bucket, info.Key),
		Bucket:      bucket,
		ContentType: contentType,
		Size:        info.Size,
		CreatedAt:   createdAt.UTC(),
	}
}

func cleanPaths(paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no paths given", ErrInvalidPath)
	}
	cleaned := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimLeft(strings.TrimSpace(p), "/")
		if p == "" {
			return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
		}
		cleaned = append(cleaned, p)
	}
	return cleaned, nil
}

// translateBackendError maps storage sentinels onto the service taxonomy
// while keeping the backend error in the chain for logs.
func translateBackendError(err error) error {
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, storage.ErrUnavailable):
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	return err
}

type nopObserver struct{}

func (nopObserver) RecordUpload(string, time.Duration, int64, error) {}

func (nopObserver) RecordOperation(string, string, time.Duration, error) {}
