package slide

import (
	"log/slog"

	"github.com/ironsheep/slide-tools-mcp/internal/pyramid"
	"github.com/ironsheep/slide-tools-mcp/internal/tilecodec"
	"github.com/ironsheep/slide-tools-mcp/internal/tilestore"
)

// Logger receives session lifecycle messages. *slog.Logger satisfies it.
type Logger = tilestore.Logger

type settings struct {
	logger       Logger
	compression  tilecodec.Tag
	edge         tilestore.EdgePolicy
	syncEveryPut bool
	verify       bool
	factor       int
	maxLevels    int
	workers      int
}

func newSettings(opts []Option) (*settings, error) {
	s := &settings{
		logger:      slog.New(slog.DiscardHandler),
		compression: tilecodec.None,
		edge:        tilestore.EdgeClip,
		verify:      true,
		factor:      pyramid.DefaultFactor,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *settings) storeOptions() []tilestore.Option {
	return []tilestore.Option{
		tilestore.WithLogger(s.logger),
		tilestore.WithCompression(s.compression),
		tilestore.WithEdgePolicy(s.edge),
		tilestore.WithSyncEveryPut(s.syncEveryPut),
		tilestore.WithVerifyChecksums(s.verify),
	}
}

func (s *settings) pyramidOptions() []pyramid.Option {
	return []pyramid.Option{
		pyramid.WithLogger(s.logger),
		pyramid.WithFactor(s.factor),
		pyramid.WithMaxLevels(s.maxLevels),
		pyramid.WithWorkers(s.workers),
	}
}

// Option configures Create, Open, View and Build. Write-side options are
// ignored when opening for reading.
type Option func(*settings) error

// WithLogger sets the logger for the session and the layers below it.
func WithLogger(logger Logger) Option {
	return func(s *settings) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// WithCompression sets the preferred tile codec.
func WithCompression(tag tilecodec.Tag) Option {
	return func(s *settings) error {
		s.compression = tag
		return nil
	}
}

// WithEdgePolicy chooses clipped or padded edge tiles.
func WithEdgePolicy(policy tilestore.EdgePolicy) Option {
	return func(s *settings) error {
		s.edge = policy
		return nil
	}
}

// WithSyncEveryPut fsyncs after every tile instead of only at close.
func WithSyncEveryPut(enabled bool) Option {
	return func(s *settings) error {
		s.syncEveryPut = enabled
		return nil
	}
}

// WithVerifyChecksums toggles checksum verification on reads.
func WithVerifyChecksums(enabled bool) Option {
	return func(s *settings) error {
		s.verify = enabled
		return nil
	}
}

// WithScaleFactor sets the downsample ratio between pyramid levels.
func WithScaleFactor(factor int) Option {
	return func(s *settings) error {
		s.factor = factor
		return nil
	}
}

// WithMaxLevels caps the number of pyramid levels (0 = until one tile).
func WithMaxLevels(n int) Option {
	return func(s *settings) error {
		s.maxLevels = n
		return nil
	}
}

// WithWorkers sets the pyramid build parallelism.
func WithWorkers(n int) Option {
	return func(s *settings) error {
		s.workers = n
		return nil
	}
}
