package models

import (
	"context"
	"io"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
)

type httpSource struct {
	client *http.Client
}

func newHTTPSource(client *http.Client) Source {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpSource{client: client}
}

func (s *httpSource) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build request", goerr.Value("url", location))
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to request model", goerr.Value("url", location))
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, goerr.New("unexpected response status",
			goerr.Value("url", location),
			goerr.Value("status", resp.StatusCode),
		)
	}
	return resp.Body, nil
}
