package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradedvm/internal/domain"
	"github.com/alanyoungcy/tradedvm/internal/nostr"
)

type memBlob struct {
	objects   map[string][]byte
	types     map[string]string
	multipart []string
}

func newMemBlob() *memBlob {
	return &memBlob{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memBlob) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	m.types[path] = contentType
	return nil
}

func (m *memBlob) PutMultipart(ctx context.Context, path string, data io.Reader, contentType string, _ int64) error {
	m.multipart = append(m.multipart, path)
	return m.Put(ctx, path, data, contentType)
}

func (m *memBlob) Delete(_ context.Context, path string) error {
	delete(m.objects, path)
	delete(m.types, path)
	return nil
}

func (m *memBlob) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlob) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for p, b := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(b))})
		}
	}
	return out, nil
}

type fakeRejects []domain.ListingReject

func (f fakeRejects) ListBefore(context.Context, time.Time) ([]domain.ListingReject, error) {
	return f, nil
}

type fakeMessages struct{ err error }

func (f fakeMessages) ListBefore(context.Context, time.Time) ([]domain.TradeMessage, error) {
	return nil, f.err
}

type fakeAudit struct{ events []string }

func (f *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestArchiveRejects(t *testing.T) {
	blob := newMemBlob()
	audit := &fakeAudit{}
	rejects := fakeRejects{
		{EventID: "e1", Code: "missing_title"},
		{EventID: "e2", Code: "missing_price"},
	}
	a := NewArchiver(blob, rejects, fakeMessages{}, audit)

	before := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	n, err := a.ArchiveRejects(context.Background(), before)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	body := blob.objects["archive/rejects/2025-03.jsonl"]
	require.NotEmpty(t, body)
	assert.Equal(t, 2, strings.Count(string(body), "\n"))
	assert.Equal(t, jsonlContentType, blob.types["archive/rejects/2025-03.jsonl"])
	assert.Equal(t, []string{"archive.rejects"}, audit.events)
}

func TestArchiveMessagesEmptyAndError(t *testing.T) {
	blob := newMemBlob()
	a := NewArchiver(blob, fakeRejects{}, fakeMessages{}, &fakeAudit{})
	n, err := a.ArchiveMessages(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, blob.objects)

	boom := errors.New("boom")
	a = NewArchiver(blob, fakeRejects{}, fakeMessages{err: boom}, &fakeAudit{})
	_, err = a.ArchiveMessages(context.Background(), time.Now())
	assert.ErrorIs(t, err, boom)
}

func TestEventArchiveRoundTrip(t *testing.T) {
	blob := newMemBlob()
	arch := NewEventArchive(blob, blob, 0)
	at := time.Date(2025, 7, 4, 23, 59, 0, 0, time.UTC)
	events := []nostr.Event{
		{ID: "a", Kind: 30402, Tags: [][]string{{"d", "x"}}, Content: "<b>&</b>"},
		{ID: "b", Kind: 5322},
	}

	path, err := arch.WriteBatch(context.Background(), "batch-1", at, events)
	require.NoError(t, err)
	assert.Equal(t, "events/2025/07/04/batch-1.jsonl", path)
	assert.Contains(t, string(blob.objects[path]), "<b>&</b>", "html is not escaped")

	back, err := arch.ReadBatch(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, events, back)

	infos, err := arch.ListDay(context.Background(), at)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, path, infos[0].Path)

	path, err = arch.WriteBatch(context.Background(), "empty", at, nil)
	require.NoError(t, err)
	assert.Empty(t, path)

	_, err = NewEventArchive(blob, nil, 0).ReadBatch(context.Background(), "x")
	assert.Error(t, err)
	assert.Empty(t, blob.multipart)
}

func TestEventArchiveMultipartAboveThreshold(t *testing.T) {
	blob := newMemBlob()
	arch := NewEventArchive(blob, blob, 256)
	at := time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC)

	small, err := arch.WriteBatch(context.Background(), "small", at, []nostr.Event{{ID: "a"}})
	require.NoError(t, err)

	big := []nostr.Event{{ID: "a", Content: strings.Repeat("x", 512)}}
	large, err := arch.WriteBatch(context.Background(), "large", at, big)
	require.NoError(t, err)

	assert.Equal(t, []string{large}, blob.multipart)
	assert.Equal(t, jsonlContentType, blob.types[large])
	assert.Contains(t, blob.objects, small)
}

func TestEventArchivePruneBefore(t *testing.T) {
	blob := newMemBlob()
	arch := NewEventArchive(blob, blob, 0)
	ctx := context.Background()
	for _, day := range []int{1, 2, 3} {
		_, err := arch.WriteBatch(ctx, "b", time.Date(2025, 7, day, 18, 0, 0, 0, time.UTC), []nostr.Event{{ID: "a"}})
		require.NoError(t, err)
	}
	blob.objects["events/readme.txt"] = []byte("keep")
	blob.objects["archive/rejects/2025-06.jsonl"] = []byte("{}\n")

	n, err := arch.PruneBefore(ctx, time.Date(2025, 7, 3, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NotContains(t, blob.objects, "events/2025/07/01/b.jsonl")
	assert.NotContains(t, blob.objects, "events/2025/07/02/b.jsonl")
	assert.Contains(t, blob.objects, "events/2025/07/03/b.jsonl")
	assert.Contains(t, blob.objects, "events/readme.txt")
	assert.Contains(t, blob.objects, "archive/rejects/2025-06.jsonl")

	_, err = NewEventArchive(blob, nil, 0).PruneBefore(ctx, time.Now())
	assert.Error(t, err)
}

func TestKeyPrefix(t *testing.T) {
	assert.Equal(t, "", normalisePrefix("  "))
	assert.Equal(t, "tradedvm/", normalisePrefix("/tradedvm/"))
	assert.Equal(t, "a/b/", normalisePrefix("a/b"))

	c := &Client{prefix: normalisePrefix("tradedvm")}
	key := c.objectKey("events/2025/07/04/b.jsonl")
	assert.Equal(t, "tradedvm/events/2025/07/04/b.jsonl", key)
	assert.Equal(t, "events/2025/07/04/b.jsonl", c.archivePath(key))
}

func TestUnmarshalJSONLBadLine(t *testing.T) {
	_, err := unmarshalJSONL[nostr.Event](strings.NewReader("{\"id\":\"a\"}\n\n{oops}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://s3.example", normaliseEndpoint("https://s3.example", false))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.True(t, isNotFound(&types.NotFound{}))
	assert.False(t, isNotFound(errors.New("other")))
}

func TestNewRequiresBucketAndRegion(t *testing.T) {
	_, err := New(context.Background(), ClientConfig{Region: "us-east-1"})
	assert.ErrorIs(t, err, errBucketRequired)
	_, err = New(context.Background(), ClientConfig{Bucket: "b"})
	assert.ErrorIs(t, err, errRegionRequired)
}
