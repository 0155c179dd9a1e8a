package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"alcyxob/storage-gateway/internal/domain"
	"alcyxob/storage-gateway/internal/storage"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type removeCall struct {
	bucket string
	keys   []string
}

type uploadCall struct {
	bucket    string
	key       string
	overwrite bool
}

// stubBackend wraps a MemoryStorage, counts calls and can be told to fail.
type stubBackend struct {
	*storage.MemoryStorage

	mu         sync.Mutex
	uploads    []uploadCall
	removes    []removeCall
	stats      int
	failUpload func(key string) error
	failRemove error
	statInfo   *storage.ObjectInfo
}

func newStubBackend() *stubBackend {
	return &stubBackend{MemoryStorage: storage.NewMemoryStorage(testPublicBase)}
}

func (b *stubBackend) Upload(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string, overwrite bool) error {
	b.mu.Lock()
	b.uploads = append(b.uploads, uploadCall{bucket: bucket, key: key, overwrite: overwrite})
	fail := b.failUpload
	b.mu.Unlock()
	if fail != nil {
		if err := fail(key); err != nil {
			return err
		}
	}
	return b.MemoryStorage.Upload(ctx, bucket, key, body, size, contentType, overwrite)
}

func (b *stubBackend) Remove(ctx context.Context, bucket string, keys []string) error {
	b.mu.Lock()
	b.removes = append(b.removes, removeCall{bucket: bucket, keys: append([]string(nil), keys...)})
	fail := b.failRemove
	b.mu.Unlock()
	if fail != nil {
		return fail
	}
	return b.MemoryStorage.Remove(ctx, bucket, keys)
}

func (b *stubBackend) Stat(ctx context.Context, bucket, key string) (storage.ObjectInfo, error) {
	b.mu.Lock()
	b.stats++
	info := b.statInfo
	b.mu.Unlock()
	if info != nil {
		return *info, nil
	}
	return b.MemoryStorage.Stat(ctx, bucket, key)
}

func (b *stubBackend) uploadCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.uploads)
}

func (b *stubBackend) removeCalls() []removeCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]removeCall(nil), b.removes...)
}

type countingObserver struct {
	mu        sync.Mutex
	uploads   int
	bytes     int64
	failures  int
	operation map[string]int
}

func (o *countingObserver) RecordUpload(bucket string, d time.Duration, size int64, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.uploads++
	if err != nil {
		o.failures++
		return
	}
	o.bytes += size
}

func (o *countingObserver) RecordOperation(op, bucket string, d time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.operation == nil {
		o.operation = make(map[string]int)
	}
	o.operation[op]++
	if err != nil {
		o.failures++
	}
}

func newTestService(t *testing.T, backend storage.Backend, observer Observer) StorageService {
	t.Helper()
	return NewStorageService(backend, Options{
		Buckets:           []string{"avatars", "courses", "docs"},
		MaxFileSize:       1024,
		MaxFiles:          3,
		UploadConcurrency: 2,
	}, observer, log.New(io.Discard))
}

func payload(name, contentType, body string) domain.Payload {
	return domain.Payload{Name: name, ContentType: contentType, Size: int64(len(body)), Body: strings.NewReader(body)}
}

func TestUploadIntoFolder(t *testing.T) {
	backend := newStubBackend()
	svc := newTestService(t, backend, nil)

	obj, err := svc.Upload(context.Background(), payload("a.png", "image/png", "png-bytes"),
		domain.UploadOptions{Bucket: "avatars", Folder: "users/42"})
	require.NoError(t, err)

	assert.Regexp(t, `^users/42/[0-9a-f-]{36}\.png$`, obj.Key)
	assert.Equal(t, "avatars", obj.Bucket)
	assert.Equal(t, "image/png", obj.ContentType)
	assert.Equal(t, int64(len("png-bytes")), obj.Size)
	assert.Contains(t, obj.URL, obj.Key)
	assert.Equal(t, testPublicBase+"/object/public/avatars/"+obj.Key, obj.URL)
	assert.WithinDuration(t, time.Now(), obj.CreatedAt, time.Minute)

	stored, ok := backend.Bytes("avatars", obj.Key)
	require.True(t, ok)
	assert.Equal(t, "png-bytes", string(stored))

	require.Len(t, backend.uploads, 1)
	assert.False(t, backend.uploads[0].overwrite, "fresh uploads must not overwrite")
}

func TestUploadContentTypeOverride(t *testing.T) {
	backend := newStubBackend()
	svc := newTestService(t, backend, nil)

	obj, err := svc.Upload(context.Background(), payload("data.bin", "", "xyz"),
		domain.UploadOptions{Bucket: "docs", ContentType: "text/plain"})
	require.NoError(t, err)
	assert.Equal(t, storage.DefaultContentType, obj.ContentType)

	info, err := backend.MemoryStorage.Stat(context.Background(), "docs", obj.Key)
	require.NoError(t, err)
	assert.Equal(t, "text/plain", info.ContentType)
}

func TestUploadRejectsInvalidBucket(t *testing.T) {
	backend := newStubBackend()
	svc := newTestService(t, backend, nil)

	_, err := svc.Upload(context.Background(), payload("a.png", "image/png", "x"), domain.UploadOptions{Bucket: "secrets"})
	require.ErrorIs(t, err, ErrInvalidBucket)
	assert.Contains(t, err.Error(), "avatars, courses, docs")
	assert.Zero(t, backend.uploadCount())
}

func TestUploadTooLargeNeverCallsBackend(t *testing.T) {
	backend := newStubBackend()
	svc := newTestService(t, backend, nil)

	big := strings.Repeat("x", 1025)
	_, err := svc.Upload(context.Background(), payload("big.bin", "application/octet-stream", big), domain.UploadOptions{Bucket: "avatars"})
	require.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Zero(t, backend.uploadCount())
}

func TestUploadEmptyPayload(t *testing.T) {
	backend := newStubBackend()
	svc := newTestService(t, backend, nil)

	_, err := svc.Upload(context.Background(), payload("empty.txt", "text/plain", ""), domain.UploadOptions{Bucket: "avatars"})
	require.ErrorIs(t, err, ErrEmptyPayload)
	assert.Zero(t, backend.uploadCount())
}

func TestUploadBackendFailure(t *testing.T) {
	backend := newStubBackend()
	boom := errors.New("boom")
	backend.failUpload = func(string) error { return boom }
	observer := &countingObserver{}
	svc := newTestService(t, backend, observer)

	_, err := svc.Upload(context.Background(), payload("a.png", "image/png", "x"), domain.UploadOptions{Bucket: "avatars", Folder: "f"})

	var uploadErr *UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, "avatars", uploadErr.Bucket)
	assert.True(t, strings.HasPrefix(uploadErr.Path, "f/"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, observer.failures)
}

func TestUploadBackendUnavailable(t *testing.T) {
	backend := newStubBackend()
	backend.failUpload = func(string) error { return storage.ErrUnavailable }
	svc := newTestService(t, backend, nil)

	_, err := svc.Upload(context.Background(), payload("a.png", "image/png", "x"), domain.UploadOptions{Bucket: "avatars"})

	var uploadErr *UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestUploadManyKeepsInputOrder(t *testing.T) {
	backend := newStubBackend()
	observer := &countingObserver{}
	svc := newTestService(t, backend, observer)

	payloads := []domain.Payload{
		payload("one.png", "image/png", "1"),
		payload("two.pdf", "application/pdf", "22"),
		payload("three.txt", "text/plain", "333"),
	}
	results, err := svc.UploadMany(context.Background(), payloads, domain.UploadOptions{Bucket: "courses", Folder: "c/1"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, ext := range []string{".png", ".pdf", ".txt"} {
		assert.True(t, strings.HasSuffix(results[i].Key, ext), results[i].Key)
		assert.True(t, strings.HasPrefix(results[i].Key, "c/1/"), results[i].Key)
		assert.Equal(t, int64(i+1), results[i].Size)
		assert.Equal(t, payloads[i].ContentType, results[i].ContentType)
	}
	assert.Equal(t, 3, observer.uploads)
	assert.Equal(t, int64(6), observer.bytes)
}

func TestUploadManyAllOrNothing(t *testing.T) {
	backend := newStubBackend()
	backend.failUpload = func(key string) error {
		if strings.HasSuffix(key, ".pdf") {
			return errors.New("rejected")
		}
		return nil
	}
	svc := newTestService(t, backend, nil)

	payloads := []domain.Payload{
		payload("one.png", "image/png", "1"),
		payload("two.pdf", "application/pdf", "22"),
		payload("three.txt", "text/plain", "333"),
	}
	results, err := svc.UploadMany(context.Background(), payloads, domain.UploadOptions{Bucket: "courses"})
	assert.Nil(t, results)

	var uploadErr *UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.True(t, strings.HasSuffix(uploadErr.Path, ".pdf"), "error must identify the failing payload, got %q", uploadErr.Path)
}

func TestUploadManyValidatesBeforeAnyBackendCall(t *testing.T) {
	backend := newStubBackend()
	svc := newTestService(t, backend, nil)

	payloads := []domain.Payload{
		payload("ok.png", "image/png", "1"),
		payload("big.png", "image/png", strings.Repeat("x", 2048)),
	}
	_, err := svc.UploadMany(context.Background(), payloads, domain.UploadOptions{Bucket: "avatars"})
	require.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Zero(t, backend.uploadCount())

	tooMany := []domain.Payload{
		payload("1.png", "image/png", "1"),
		payload("2.png", "image/png", "1"),
		payload("3.png", "image/png", "1"),
		payload("4.png", "image/png", "1"),
	}
	_, err = svc.UploadMany(context.Background(), tooMany, domain.UploadOptions{Bucket: "avatars"})
	require.ErrorIs(t, err, ErrTooManyFiles)
	assert.Zero(t, backend.uploadCount())
}

func TestUpdateReplacesObjectAtSamePath(t *testing.T) {
	backend := newStubBackend()
	svc := newTestService(t, backend, nil)
	ctx := context.Background()

	orig, err := svc.Upload(ctx, payload("a.png", "image/png", "old"), domain.UploadOptions{Bucket: "avatars", Folder: "u"})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, payload("new.jpg", "image/jpeg", "new!"), orig.Key, "avatars")
	require.NoError(t, err)
	assert.Equal(t, orig.Key, updated.Key)
	assert.Equal(t, orig.URL, updated.URL)
	assert.Equal(t, "image/jpeg", updated.ContentType)

	stored, ok := backend.Bytes("avatars", orig.Key)
	require.True(t, ok)
	assert.Equal(t, "new!", string(stored))

	removes := backend.removeCalls()
	require.Len(t, removes, 1)
	assert.Equal(t, []string{orig.Key}, removes[0].keys)
	require.Len(t, backend.uploads, 2)
	assert.True(t, backend.uploads[1].overwrite)
}

func TestUpdateUploadFailureLeavesObjectDeleted(t *testing.T) {
	backend := newStubBackend()
	svc := newTestService(t, backend, nil)
	ctx := context.Background()

	orig, err := svc.Upload(ctx, payload("a.png", "image/png", "old"), domain.UploadOptions{Bucket: "avatars"})
	require.NoError(t, err)

	backend.failUpload = func(string) error { return errors.New("disk full") }
	_, err = svc.Update(ctx, payload("a.png", "image/png", "new"), orig.Key, "avatars")

	var uploadErr *UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, orig.Key, uploadErr.Path)

	_, ok := backend.Bytes("avatars", orig.Key)
	assert.False(t, ok, "previous object is gone after a failed update")
}

func TestUpdateDeleteFailure(t *testing.T) {
	backend := newStubBackend()
	backend.failRemove = errors.New("denied")
	svc := newTestService(t, backend, nil)

	_, err := svc.Update(context.Background(), payload("a.png", "image/png", "x"), "u/a.png", "avatars")

	var deleteErr *DeleteError
	require.ErrorAs(t, err, &deleteErr)
	assert.Equal(t, []string{"u/a.png"}, deleteErr.Paths)
	assert.Zero(t, backend.uploadCount())
}

func TestDeleteManyIsIdempotent(t *testing.T) {
	backend := newStubBackend()
	svc := newTestService(t, backend, nil)
	ctx := context.Background()

	obj, err := svc.Upload(ctx, payload("a.png", "image/png", "x"), domain.UploadOptions{Bucket: "docs"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteMany(ctx, "docs", []string{obj.Key, "does/not/exist.png"}))
	require.NoError(t, svc.Delete(ctx, "docs", obj.Key))

	removes := backend.removeCalls()
	require.Len(t, removes, 2)
	assert.Equal(t, []string{obj.Key, "does/not/exist.png"}, removes[0].keys, "one batched call")

	_, ok := backend.Bytes("docs", obj.Key)
	assert.False(t, ok)
}

func TestDeleteValidation(t *testing.T) {
	backend := newStubBackend()
	svc := newTestService(t, backend, nil)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Delete(ctx, "nope", "a.png"), ErrInvalidBucket)
	assert.ErrorIs(t, svc.DeleteMany(ctx, "docs", nil), ErrInvalidPath)
	assert.ErrorIs(t, svc.DeleteMany(ctx, "docs", []string{"a.png", "  "}), ErrInvalidPath)
	assert.Empty(t, backend.removeCalls())
}

func TestDeleteBackendFailure(t *testing.T) {
	backend := newStubBackend()
	backend.failRemove = errors.New("denied")
	svc := newTestService(t, backend, nil)

	err := svc.DeleteMany(context.Background(), "docs", []string{"a.png", "b.png"})

	var deleteErr *DeleteError
	require.ErrorAs(t, err, &deleteErr)
	assert.Equal(t, "docs", deleteErr.Bucket)
	assert.Equal(t, []string{"a.png", "b.png"}, deleteErr.Paths)
}

func TestDeleteByURL(t *testing.T) {
	backend := newStubBackend()
	svc := newTestService(t, backend, nil)
	ctx := context.Background()

	obj, err := svc.Upload(ctx, payload("a.png", "image/png", "x"), domain.UploadOptions{Bucket: "avatars", Folder: "u/1"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteByURL(ctx, obj.URL))
	_, ok := backend.Bytes("avatars", obj.Key)
	assert.False(t, ok)

	assert.ErrorIs(t, svc.DeleteByURL(ctx, "https://host/storage/v1/object/avatars/x.png"), ErrMalformedURL)
	assert.ErrorIs(t, svc.DeleteByURL(ctx, testPublicBase+"/object/public/private/x.png"), ErrInvalidBucket)
}

func TestDeleteManyByURLsGroupsByBucket(t *testing.T) {
	backend := newStubBackend()
	svc := newTestService(t, backend, nil)

	summary, err := svc.DeleteManyByURLs(context.Background(), []string{
		"https://host/storage/v1/object/public/avatars/x.png",
		"https://host/storage/v1/object/public/docs/y.pdf",
	})
	require.NoError(t, err)

	removes := backend.removeCalls()
	require.Len(t, removes, 2, "one backend call per bucket")
	byBucket := map[string][]string{}
	for _, r := range removes {
		byBucket[r.bucket] = r.keys
	}
	assert.Equal(t, []string{"x.png"}, byBucket["avatars"])
	assert.Equal(t, []string{"y.pdf"}, byBucket["docs"])

	assert.Equal(t, 2, summary.Total)
	require.Len(t, summary.Buckets, 2)
	assert.Equal(t, "avatars", summary.Buckets[0].Bucket)
	assert.Equal(t, "docs", summary.Buckets[1].Bucket)
}

func TestDeleteManyByURLsMergesSameBucket(t *testing.T) {
	backend := newStubBackend()
	svc := newTestService(t, backend, nil)

	summary, err := svc.DeleteManyByURLs(context.Background(), []string{
		testPublicBase + "/object/public/avatars/a.png",
		testPublicBase + "/object/public/docs/b.pdf",
		testPublicBase + "/object/public/avatars/nested/c.png",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)

	removes := backend.removeCalls()
	require.Len(t, removes, 2)
	for _, r := range removes {
		if r.bucket == "avatars" {
			assert.Equal(t, []string{"a.png", "nested/c.png"}, r.keys)
		}
	}
}

func TestDeleteManyByURLsRejectsBeforeBackendCalls(t *testing.T) {
	backend := newStubBackend()
	svc := newTestService(t, backend, nil)
	ctx := context.Background()

	_, err := svc.DeleteManyByURLs(ctx, []string{
		testPublicBase + "/object/public/avatars/a.png",
		"https://host/no-marker/docs/b.pdf",
	})
	require.ErrorIs(t, err, ErrMalformedURL)

	_, err = svc.DeleteManyByURLs(ctx, []string{
		testPublicBase + "/object/public/avatars/a.png",
		testPublicBase + "/object/public/private/b.pdf",
	})
	require.ErrorIs(t, err, ErrInvalidBucket)

	_, err = svc.DeleteManyByURLs(ctx, nil)
	require.ErrorIs(t, err, ErrMalformedURL)

	assert.Empty(t, backend.removeCalls())
}

func TestDeleteByURLsNormalizeDoubleSlash(t *testing.T) {
	backend := newStubBackend()
	svc := newTestService(t, backend, nil)
	ctx := context.Background()
	url := testPublicBase + "/object/public/avatars//x.png"

	require.NoError(t, backend.MemoryStorage.Upload(ctx, "avatars", "x.png", strings.NewReader("a"), 1, "image/png", false))
	summary, err := svc.DeleteManyByURLs(ctx, []string{url})
	require.NoError(t, err)
	assert.Equal(t, []domain.BucketDeletion{{Bucket: "avatars", Paths: []string{"x.png"}}}, summary.Buckets)
	_, ok := backend.Bytes("avatars", "x.png")
	assert.False(t, ok, "batch delete removes the normalized key")

	require.NoError(t, backend.MemoryStorage.Upload(ctx, "avatars", "x.png", strings.NewReader("a"), 1, "image/png", false))
	require.NoError(t, svc.DeleteByURL(ctx, url))
	_, ok = backend.Bytes("avatars", "x.png")
	assert.False(t, ok, "single delete removes the normalized key")

	for _, r := range backend.removeCalls() {
		assert.Equal(t, []string{"x.png"}, r.keys)
	}
}

func TestDeleteBatchesAreCapped(t *testing.T) {
	backend := newStubBackend()
	svc := newTestService(t, backend, nil)
	ctx := context.Background()

	err := svc.DeleteMany(ctx, "docs", []string{"a", "b", "c", "d"})
	assert.ErrorIs(t, err, ErrTooManyFiles)

	_, err = svc.DeleteManyByURLs(ctx, []string{
		testPublicBase + "/object/public/docs/a",
		testPublicBase + "/object/public/docs/b",
		testPublicBase + "/object/public/docs/c",
		testPublicBase + "/object/public/docs/d",
	})
	assert.ErrorIs(t, err, ErrTooManyFiles)

	assert.Empty(t, backend.removeCalls())
}

func TestGetInfo(t *testing.T) {
	backend := newStubBackend()
	svc := newTestService(t, backend, nil)
	ctx := context.Background()

	obj, err := svc.Upload(ctx, payload("doc.pdf", "application/pdf", "%PDF-1.4"), domain.UploadOptions{Bucket: "docs", Folder: "x"})
	require.NoError(t, err)

	info, err := svc.GetInfo(ctx, "docs", obj.Key)
	require.NoError(t, err)
	assert.Equal(t, obj.Key, info.Key)
	assert.Equal(t, obj.URL, info.URL)
	assert.Equal(t, "application/pdf", info.ContentType)
	assert.Equal(t, int64(len("%PDF-1.4")), info.Size)
	assert.Equal(t, 1, backend.stats, "metadata comes from a stat call")

	_, err = svc.GetInfo(ctx, "docs", "missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.GetInfo(ctx, "private", obj.Key)
	assert.ErrorIs(t, err, ErrInvalidBucket)
}

func TestGetInfoFallsBackWhenBackendOmitsMetadata(t *testing.T) {
	backend := newStubBackend()
	backend.statInfo = &storage.ObjectInfo{Key: "a.bin", Size: 3}
	svc := newTestService(t, backend, nil)

	info, err := svc.GetInfo(context.Background(), "docs", "a.bin")
	require.NoError(t, err)
	assert.Equal(t, storage.DefaultContentType, info.ContentType)
	assert.WithinDuration(t, time.Now(), info.CreatedAt, time.Minute)
}

func TestListAndDownload(t *testing.T) {
	backend := newStubBackend()
	svc := newTestService(t, backend, nil)
	ctx := context.Background()

	a, err := svc.Upload(ctx, payload("a.txt", "text/plain", "aaa"), domain.UploadOptions{Bucket: "docs", Folder: "team"})
	require.NoError(t, err)
	_, err = svc.Upload(ctx, payload("b.txt", "text/plain", "bb"), domain.UploadOptions{Bucket: "docs", Folder: "other"})
	require.NoError(t, err)

	objects, err := svc.List(ctx, "docs", "/team/")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, a.Key, objects[0].Key)
	assert.Equal(t, a.URL, objects[0].URL)

	body, info, err := svc.Download(ctx, "docs", a.Key)
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "aaa", string(data))
	assert.Equal(t, "text/plain", info.ContentType)

	_, _, err = svc.Download(ctx, "docs", "nope.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDefaultBucketFallsBackToFirstAllowed(t *testing.T) {
	svc := NewStorageService(newStubBackend(), Options{Buckets: []string{"avatars", "docs"}}, nil, nil)
	assert.Equal(t, "avatars", svc.DefaultBucket())

	svc = NewStorageService(newStubBackend(), Options{Buckets: []string{"avatars", "docs"}, DefaultBucket: "docs"}, nil, nil)
	assert.Equal(t, "docs", svc.DefaultBucket())
}
