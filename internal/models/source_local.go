package models

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

type localSource struct{}

func newLocalSource() Source {
	return &localSource{}
}

func (s *localSource) Open(_ context.Context, location string) (io.ReadCloser, error) {
	p := strings.TrimPrefix(location, "file://")
	f, err := os.Open(p)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open local model", goerr.Value("path", p))
	}
	return f, nil
}
