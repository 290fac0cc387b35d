package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/hupe1980/kbagent/core"
	"github.com/hupe1980/kbagent/logging"
)

// Encoder turns one event into bytes on the wire.
type Encoder interface {
	// ContentType is the media type of the encoded stream.
	ContentType() string
	// Headers returns additional response headers for HTTP transports.
	Headers() map[string]string
	// Encode writes ev to w. Implementations write each event with a single
	// Write call so a frame is never split by a concurrent flush.
	Encode(w io.Writer, ev core.Event) error
}

// Options configures a Presenter.
type Options struct {
	Logger logging.Logger
}

// Presenter forwards events to a writer in arrival order.
type Presenter struct {
	enc    Encoder
	logger logging.Logger
}

// NewPresenter creates a Presenter for the given encoding.
func NewPresenter(enc Encoder, optFns ...func(o *Options)) *Presenter {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Presenter{enc: enc, logger: opts.Logger}
}

// Encoder returns the encoder used by p.
func (p *Presenter) Encoder() Encoder { return p.enc }

// WriteHeaders sets the content type and encoder specific headers on h.
func (p *Presenter) WriteHeaders(h http.Header) {
	h.Set("Content-Type", p.enc.ContentType())

	for k, v := range p.enc.Headers() {
		h.Set(k, v)
	}
}

// Present writes every event from events to w until the channel is closed.
// Each event is flushed immediately when w is an http.Flusher or has a
// Flush() error method. Present returns nil without writing further when ctx
// is cancelled or the peer has gone away; the caller is expected to cancel
// the producing run in that case. Any other write failure is returned.
func (p *Presenter) Present(ctx context.Context, w io.Writer, events <-chan core.Event) error {
	flush := flusherFor(w)
	written := 0

	for {
		if ctx.Err() != nil {
			p.logger.Debug("stream.cancelled", "events", written)
			return nil
		}

		select {
		case <-ctx.Done():
			p.logger.Debug("stream.cancelled", "events", written)
			return nil
		case ev, ok := <-events:
			if !ok {
				p.logger.Debug("stream.completed", "events", written)
				return nil
			}

			if ctx.Err() != nil {
				return nil
			}

			if err := p.enc.Encode(w, ev); err != nil {
				return p.writeFailed(ev, err)
			}

			if err := flush(); err != nil {
				return p.writeFailed(ev, err)
			}

			written++
		}
	}
}

func (p *Presenter) writeFailed(ev core.Event, err error) error {
	if IsClosedConnection(err) {
		p.logger.Info("stream.peer_gone", "run_id", ev.RunID, "event", string(ev.Type), "error", err.Error())
		return nil
	}

	p.logger.Error("stream.write_failed", "run_id", ev.RunID, "event", string(ev.Type), "error", err.Error())

	return fmt.Errorf("stream: write %s event: %w", ev.Type, err)
}

// IsClosedConnection reports whether err means the reader has disconnected.
func IsClosedConnection(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, http.ErrHandlerTimeout)
}

type errFlusher interface {
	Flush() error
}

func flusherFor(w io.Writer) func() error {
	switch f := w.(type) {
	case http.Flusher:
		return func() error {
			f.Flush()
			return nil
		}
	case errFlusher:
		return f.Flush
	default:
		return func() error { return nil }
	}
}

// ForFormat returns the encoder registered under name ("data", "sse" or
// "text"). Unknown names yield an error.
func ForFormat(name string) (Encoder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "data", "data-stream":
		return DataStreamEncoder{}, nil
	case "sse":
		return SSEEncoder{}, nil
	case "text":
		return TextEncoder{}, nil
	default:
		return nil, fmt.Errorf("stream: unknown format %q", name)
	}
}
