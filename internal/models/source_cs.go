package models

import (
	"context"
	"io"
	"net/url"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
)

// csSource reads gs://bucket/object locations. The client is created on
// first use so that configurations without Cloud Storage need no credentials.
type csSource struct {
	once   sync.Once
	client *storage.Client
	err    error
}

func newCSSource() Source {
	return &csSource{}
}

func (s *csSource) storageClient(ctx context.Context) (*storage.Client, error) {
	s.once.Do(func() {
		s.client, s.err = storage.NewClient(ctx)
		if s.err != nil {
			s.err = goerr.Wrap(s.err, "failed to create Cloud Storage client")
		}
	})
	return s.client, s.err
}

func (s *csSource) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	bucket, object, err := parseGCSLocation(location)
	if err != nil {
		return nil, err
	}
	client, err := s.storageClient(ctx)
	if err != nil {
		return nil, err
	}
	reader, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read model object",
			goerr.Value("bucket", bucket),
			goerr.Value("object", object),
		)
	}
	return reader, nil
}

func (s *csSource) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func parseGCSLocation(location string) (string, string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", goerr.Wrap(err, "invalid Cloud Storage location", goerr.Value("location", location))
	}
	object := strings.TrimPrefix(u.Path, "/")
	if u.Scheme != SchemeGCS || u.Host == "" || object == "" {
		return "", "", goerr.New("invalid Cloud Storage location", goerr.Value("location", location))
	}
	return u.Host, object, nil
}
