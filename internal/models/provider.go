package models

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"
)

// DefaultLocation is the RL Zoo PPO checkpoint for a game.
const DefaultLocation = "https://huggingface.co/sb3/ppo-{game}/resolve/main/ppo-{game}.zip"

// DefaultDir is where pretrained models are stored.
const DefaultDir = "pretrained_models"

// #region provider
// Provider makes pretrained models available on local disk.
type Provider struct {
	location string
	dir      string
	sources  map[string]Source
	logger   *zap.Logger
}

// Option customizes a Provider.
type Option func(*Provider)

// WithSource overrides the Source used for scheme.
func WithSource(scheme string, src Source) Option {
	return func(p *Provider) {
		p.sources[scheme] = src
	}
}

// WithHTTPClient sets the client used for http and https locations.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		src := newHTTPSource(client)
		p.sources[SchemeHTTP] = src
		p.sources[SchemeHTTPS] = src
	}
}

// WithLogger sets the provider logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// NewProvider creates a provider for the location template. location may be
// a local path, file://, http(s):// or gs:// URI; "{game}" is replaced with
// the game id on every fetch.
func NewProvider(location, dir string, opts ...Option) *Provider {
	if location == "" {
		location = DefaultLocation
	}
	if dir == "" {
		dir = DefaultDir
	}
	httpSrc := newHTTPSource(nil)
	p := &Provider{
		location: location,
		dir:      dir,
		sources: map[string]Source{
			SchemeFile:  newLocalSource(),
			SchemeHTTP:  httpSrc,
			SchemeHTTPS: httpSrc,
			SchemeGCS:   newCSSource(),
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Location expands the template for game.
func (p *Provider) Location(game string) string {
	return strings.ReplaceAll(p.location, "{game}", game)
}

// Path is where the model for game is stored locally.
func (p *Provider) Path(game string) string {
	return filepath.Join(p.dir, baseName(p.Location(game)))
}

// Fetch ensures the model for game exists in the model directory and returns
// its path. An existing file is reused. Downloads go to a temporary file that
// is renamed into place only after a complete copy.
func (p *Provider) Fetch(ctx context.Context, game string) (string, error) {
	location := p.Location(game)
	dst := p.Path(game)

	if info, err := os.Stat(dst); err == nil && !info.IsDir() {
		p.logger.Debug("model already present", zap.String("game", game), zap.String("path", dst))
		return dst, nil
	}

	scheme := schemeOf(location)
	src, ok := p.sources[scheme]
	if !ok {
		return "", goerr.New("unsupported model location scheme",
			goerr.V("scheme", scheme), goerr.V("location", location), goerr.Tag(ErrTagDownload))
	}

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return "", goerr.Wrap(err, "failed to create model directory",
			goerr.V("dir", p.dir), goerr.Tag(ErrTagDownload))
	}

	p.logger.Info("fetching model", zap.String("game", game), zap.String("location", location))
	if err := p.download(ctx, src, location, dst); err != nil {
		return "", goerr.Wrap(err, "failed to fetch model",
			goerr.V("game", game), goerr.V("location", location), goerr.Tag(ErrTagDownload))
	}
	return dst, nil
}

func (p *Provider) download(ctx context.Context, src Source, location, dst string) (err error) {
	r, err := src.Open(ctx, location)
	if err != nil {
		return err
	}
	defer r.Close()

	tmp, err := os.CreateTemp(p.dir, ".download-*")
	if err != nil {
		return goerr.Wrap(err, "failed to create temp file")
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return goerr.Wrap(err, "failed to copy model")
	}
	if err := tmp.Close(); err != nil {
		return goerr.Wrap(err, "failed to close temp file")
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return goerr.Wrap(err, "failed to move model into place", goerr.V("path", dst))
	}
	return nil
}

// Close releases clients held by the sources.
func (p *Provider) Close() error {
	var errs []error
	for _, src := range p.sources {
		if c, ok := src.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// #endregion provider
