package models

import (
	"context"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// ErrTagDownload marks failures to fetch a pretrained model.
var ErrTagDownload = goerr.NewTag("download")

// Source opens a model artifact by location.
type Source interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// Location schemes understood by Provider.
const (
	SchemeFile  = "file"
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
	SchemeGCS   = "gs"
)

// schemeOf returns the URI scheme of location, or SchemeFile for plain paths.
func schemeOf(location string) string {
	u, err := url.Parse(location)
	if err != nil || len(u.Scheme) < 2 {
		// single letter schemes are Windows drive names
		return SchemeFile
	}
	return strings.ToLower(u.Scheme)
}

// baseName is the file name a location is stored under.
func baseName(location string) string {
	if schemeOf(location) == SchemeFile {
		return filepath.Base(strings.TrimPrefix(location, "file://"))
	}
	u, err := url.Parse(location)
	if err != nil {
		return path.Base(location)
	}
	return path.Base(u.Path)
}
