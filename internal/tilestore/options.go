package tilestore

import (
	"log/slog"

	"github.com/ironsheep/slide-tools-mcp/internal/tilecodec"
)

// Logger receives operational messages. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Option configures a Store at Create or Open time.
type Option func(*Store) error

// WithLogger sets the logger. Debug level reports every put and commit.
func WithLogger(logger Logger) Option {
	return func(s *Store) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// WithCompression sets the preferred tile codec for writes. Ignored by Open,
// since every tile records the codec that wrote it.
func WithCompression(tag tilecodec.Tag) Option {
	return func(s *Store) error {
		s.compression = tag
		return nil
	}
}

// WithEdgePolicy sets how edge tiles are stored. Ignored by Open, which takes
// the policy recorded in the file.
func WithEdgePolicy(policy EdgePolicy) Option {
	return func(s *Store) error {
		s.edge = policy
		return nil
	}
}

// WithSyncEveryPut makes Put fsync before returning. Without it, durability is
// reached at Flush, CommitLevel and Finalize.
func WithSyncEveryPut(enabled bool) Option {
	return func(s *Store) error {
		s.syncEveryPut = enabled
		return nil
	}
}

// WithVerifyChecksums toggles checksum verification on Get (on by default).
func WithVerifyChecksums(enabled bool) Option {
	return func(s *Store) error {
		s.verify = enabled
		return nil
	}
}

func defaultLogger() Logger {
	return slog.New(slog.DiscardHandler)
}
