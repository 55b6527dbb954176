package indexmerge

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/indexmerge/blobstore"
	miniostore "github.com/hupe1980/indexmerge/blobstore/minio"
	s3store "github.com/hupe1980/indexmerge/blobstore/s3"
	"github.com/hupe1980/indexmerge/internal/cache"
	"github.com/hupe1980/indexmerge/resource"
	"github.com/hupe1980/indexmerge/status"
)

// DefaultCacheBytes is the block cache capacity for remote stores.
const DefaultCacheBytes = 64 << 20

// StoreOpener resolves segment URIs to directories. Remote buckets are
// opened once and share one block cache.
//
// Supported URIs:
//
//	/data/segment_3                  local directory
//	file:///data/segment_3           local directory
//	s3://bucket/prefix/segment_3     AWS S3, default credential chain
//	minio://host:9000/bucket/prefix  MinIO, credentials from MINIO_* env
//
// MinIO URIs use TLS unless the query sets secure=false.
type StoreOpener struct {
	rc    *resource.Controller
	cache cache.BlockCache

	mu     sync.Mutex
	stores map[string]blobstore.BlobStore
}

// NewStoreOpener creates an opener whose remote reads go through a block
// cache of cacheBytes. Zero uses DefaultCacheBytes; a negative value
// disables caching.
func NewStoreOpener(cacheBytes int64, rc *resource.Controller) *StoreOpener {
	o := &StoreOpener{rc: rc, stores: make(map[string]blobstore.BlobStore)}
	if cacheBytes == 0 {
		cacheBytes = DefaultCacheBytes
	}
	if cacheBytes > 0 {
		o.cache = cache.NewLRU(cacheBytes, rc)
	}
	return o
}

// OpenStore resolves uri without caching remote reads.
func OpenStore(ctx context.Context, uri string) (blobstore.Dir, error) {
	return NewStoreOpener(-1, nil).Open(ctx, uri)
}

// Open returns the directory uri points to.
func (o *StoreOpener) Open(ctx context.Context, uri string) (blobstore.Dir, error) {
	if uri == "" {
		return blobstore.Dir{}, status.InvalidArgsf("empty store uri")
	}
	if !strings.Contains(uri, "://") {
		return o.local(uri)
	}
	u, err := url.Parse(uri)
	if err != nil {
		return blobstore.Dir{}, status.InvalidArgsf("store uri %q: %v", uri, err)
	}
	switch u.Scheme {
	case "file":
		return o.local(u.Path)
	case "s3":
		store, err := o.remote("s3://"+u.Host, func() (blobstore.BlobStore, error) {
			return s3store.New(ctx, u.Host)
		})
		if err != nil {
			return blobstore.Dir{}, err
		}
		return blobstore.NewDir(store, u.Path), nil
	case "minio":
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
		if bucket == "" {
			return blobstore.Dir{}, status.InvalidArgsf("store uri %q has no bucket", uri)
		}
		secure := u.Query().Get("secure") != "false"
		store, err := o.remote(fmt.Sprintf("minio://%s/%s", u.Host, bucket), func() (blobstore.BlobStore, error) {
			client, err := minio.New(u.Host, &minio.Options{
				Creds:  credentials.NewEnvMinio(),
				Secure: secure,
			})
			if err != nil {
				return nil, err
			}
			return miniostore.NewStore(client, bucket, ""), nil
		})
		if err != nil {
			return blobstore.Dir{}, err
		}
		return blobstore.NewDir(store, prefix), nil
	default:
		return blobstore.Dir{}, status.InvalidArgsf("store uri %q: unsupported scheme %q", uri, u.Scheme)
	}
}

func (o *StoreOpener) local(dir string) (blobstore.Dir, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return blobstore.Dir{}, status.InvalidArgsf("local path %q: %v", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return blobstore.Dir{}, status.IOError(err, "create %s", abs)
	}
	return blobstore.NewDir(blobstore.NewLocalStore(abs), ""), nil
}

func (o *StoreOpener) remote(key string, open func() (blobstore.BlobStore, error)) (blobstore.BlobStore, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.stores[key]; ok {
		return s, nil
	}
	s, err := open()
	if err != nil {
		return nil, status.IOError(err, "open %s", key)
	}
	if o.cache != nil {
		s = blobstore.NewCachingStore(s, o.cache, blobstore.DefaultCacheBlockSize)
	}
	o.stores[key] = s
	return s, nil
}
