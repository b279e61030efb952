// Package source loads statement files from local paths or Cloud Storage
// objects, refusing anything larger than the configured upload limit
// before reading it.
package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/dvloznov/statement-parser/internal/domain"
)

const gcsScheme = "gs://"

// Object is a fully read source file.
type Object struct {
	Name string
	Data []byte
}

// objectStore is the slice of the Cloud Storage client Opener uses.
type objectStore interface {
	Size(ctx context.Context, bucket, object string) (int64, error)
	Reader(ctx context.Context, bucket, object string) (io.ReadCloser, error)
	Close() error
}

// Opener reads local files and gs:// objects.
type Opener struct {
	credentialsFile string
	dial            func(ctx context.Context) (objectStore, error)
}

// NewOpener creates an Opener. credentialsFile is optional; when empty the
// storage client uses Application Default Credentials.
func NewOpener(credentialsFile string) *Opener {
	o := &Opener{credentialsFile: credentialsFile}
	o.dial = o.dialGCS
	return o
}

// Open reads uri. maxBytes <= 0 disables the size check.
func (o *Opener) Open(ctx context.Context, uri string, maxBytes int64) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if IsGCSURI(uri) {
		return o.openGCS(ctx, uri, maxBytes)
	}
	return openLocal(uri, maxBytes)
}

func openLocal(name string, maxBytes int64) (*Object, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open file %q: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat file %q: %w", name, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("open file %q: is a directory", name)
	}
	if err := checkSize(info.Size(), maxBytes); err != nil {
		return nil, err
	}

	data, err := readLimited(f, maxBytes)
	if err != nil {
		return nil, fmt.Errorf("read file %q: %w", name, err)
	}
	return &Object{Name: filepath.Base(name), Data: data}, nil
}

func (o *Opener) openGCS(ctx context.Context, uri string, maxBytes int64) (*Object, error) {
	bucketName, objectPath, err := ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}

	store, err := o.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("openGCS: creating storage client: %w", err)
	}
	defer store.Close()

	size, err := store.Size(ctx, bucketName, objectPath)
	if err != nil {
		return nil, fmt.Errorf("openGCS: reading attributes of %s/%s: %w", bucketName, objectPath, err)
	}
	if err := checkSize(size, maxBytes); err != nil {
		return nil, err
	}

	rc, err := store.Reader(ctx, bucketName, objectPath)
	if err != nil {
		return nil, fmt.Errorf("openGCS: reading object %s/%s: %w", bucketName, objectPath, err)
	}
	defer rc.Close()

	data, err := readLimited(rc, maxBytes)
	if err != nil {
		return nil, fmt.Errorf("openGCS: reading bytes: %w", err)
	}
	return &Object{Name: path.Base(objectPath), Data: data}, nil
}

// IsGCSURI reports whether uri names a Cloud Storage object.
func IsGCSURI(uri string) bool {
	return strings.HasPrefix(uri, gcsScheme)
}

// ParseGCSURI splits "gs://bucket/path/to/object" into bucket and object path.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !IsGCSURI(uri) {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	trimmed := strings.TrimPrefix(uri, gcsScheme)
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// Name returns the file name part of a local path or gs:// URI.
// e.g., "gs://bucket/folder/file.pdf" → "file.pdf"
func Name(uri string) string {
	if !IsGCSURI(uri) {
		return filepath.Base(uri)
	}
	trimmed := strings.TrimPrefix(uri, gcsScheme)
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}

func checkSize(size, maxBytes int64) error {
	if maxBytes > 0 && size > maxBytes {
		return domain.Errorf(domain.StageDispatch, domain.KindPayloadTooLarge,
			"file is %d bytes, limit is %d", size, maxBytes)
	}
	return nil
}

// readLimited guards against sources that grow between the size check and the read.
func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, checkSize(int64(len(data)), maxBytes)
	}
	return data, nil
}

type gcsStore struct {
	client *storage.Client
}

func (o *Opener) dialGCS(ctx context.Context) (objectStore, error) {
	var opts []option.ClientOption
	if o.credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(o.credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &gcsStore{client: client}, nil
}

func (s *gcsStore) Size(ctx context.Context, bucket, object string) (int64, error) {
	attrs, err := s.client.Bucket(bucket).Object(object).Attrs(ctx)
	if err != nil {
		return 0, err
	}
	return attrs.Size, nil
}

func (s *gcsStore) Reader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	return s.client.Bucket(bucket).Object(object).NewReader(ctx)
}

func (s *gcsStore) Close() error {
	return s.client.Close()
}
