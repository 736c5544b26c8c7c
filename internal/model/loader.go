// Package model loads the gesture recognition model with a remote-then-local
// fallback under a single deadline.
package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/logging"
)

// DefaultTimeout bounds the whole load sequence.
const DefaultTimeout = 30 * time.Second

// OpenFunc constructs a recognizer from a model file on disk.
type OpenFunc func(ctx context.Context, opts detector.Options) (detector.Recognizer, error)

// Loader owns the recognizer handle.
type Loader struct {
	cfg    config.ModelConfig
	open   OpenFunc
	client *http.Client
	log    *logrus.Entry

	group singleflight.Group

	mu  sync.RWMutex
	rec detector.Recognizer
}

// Option configures a Loader.
type Option func(*Loader)

// WithOpener replaces the backend constructor.
func WithOpener(open OpenFunc) Option {
	return func(l *Loader) { l.open = open }
}

// WithHTTPClient sets the client used to fetch the remote asset.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.client = c }
}

// NewLoader creates a Loader for cfg. The backend is chosen by cfg.Backend
// unless WithOpener is given.
func NewLoader(cfg config.ModelConfig, opts ...Option) *Loader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	l := &Loader{
		cfg:    cfg,
		client: http.DefaultClient,
		log:    logging.Component("model"),
	}
	l.open = l.openBackend
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Initialize loads the model. Concurrent callers share one attempt and calls
// after success return nil immediately. ctx only bounds how long this caller
// waits; the shared attempt runs to its own deadline.
func (l *Loader) Initialize(ctx context.Context) error {
	if l.Ready() {
		return nil
	}

	ch := l.group.DoChan("init", func() (interface{}, error) {
		if l.Ready() {
			return nil, nil
		}
		attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.cfg.Timeout)
		defer cancel()

		rec, err := l.load(attemptCtx)
		if err != nil {
			return nil, err
		}

		l.mu.Lock()
		l.rec = rec
		l.mu.Unlock()
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// load runs the two-stage attempt. The deadline in ctx is shared by both stages.
func (l *Loader) load(ctx context.Context) (detector.Recognizer, error) {
	l.log.Info("initializing gesture recognizer")

	var remoteErr error
	if l.cfg.RemoteURL != "" {
		rec, err := l.loadRemote(ctx)
		if err == nil {
			l.log.Info("remote model loaded")
			return rec, nil
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &ModelLoadError{Kind: Timeout, Err: err}
		}
		remoteErr = err
		l.log.WithError(err).Warn("remote model failed, trying local model")
	}

	rec, err := l.openWithin(ctx, l.options(l.cfg.LocalPath))
	if err == nil {
		l.log.WithField("path", l.cfg.LocalPath).Info("local model loaded")
		return rec, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, &ModelLoadError{Kind: Timeout, Err: err}
	}
	if remoteErr != nil {
		err = fmt.Errorf("remote: %v; local: %w", remoteErr, err)
	}
	return nil, &ModelLoadError{Kind: LoadFailure, Err: err}
}

func (l *Loader) loadRemote(ctx context.Context) (detector.Recognizer, error) {
	path, err := fetchAsset(ctx, l.client, l.cfg.RemoteURL, l.cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	return l.openWithin(ctx, l.options(path))
}

type opened struct {
	rec detector.Recognizer
	err error
}

// openWithin runs the opener but gives up when ctx is done, even if the
// backend ignores ctx. A recognizer that arrives late is closed.
func (l *Loader) openWithin(ctx context.Context, opts detector.Options) (detector.Recognizer, error) {
	ch := make(chan opened, 1)
	go func() {
		rec, err := l.open(ctx, opts)
		ch <- opened{rec: rec, err: err}
	}()

	select {
	case res := <-ch:
		return res.rec, res.err
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.rec != nil {
				if err := res.rec.Close(); err != nil {
					l.log.WithError(err).Warn("failed to close late recognizer")
				}
			}
		}()
		return nil, fmt.Errorf("open %s: %w", opts.ModelAssetPath, ctx.Err())
	}
}

func (l *Loader) options(path string) detector.Options {
	opts := detector.DefaultOptions(path)
	if l.cfg.NumHands > 0 {
		opts.NumHands = l.cfg.NumHands
	}
	if l.cfg.Delegate != "" {
		opts.Delegate = l.cfg.Delegate
	}
	if l.cfg.MinConfidence > 0 {
		opts.MinConfidence = l.cfg.MinConfidence
	}
	return opts
}

// openBackend resolves the configured runtime and constructs the recognizer.
func (l *Loader) openBackend(ctx context.Context, opts detector.Options) (detector.Recognizer, error) {
	switch l.cfg.Backend {
	case "onnx":
		if err := detector.InitONNXRuntime(l.cfg.RuntimePath); err != nil {
			return nil, err
		}
		return detector.NewONNXRecognizer(opts)
	default:
		rt, err := detector.ResolveMediaPipeRuntime(l.cfg.RuntimePath)
		if err != nil {
			return nil, fmt.Errorf("resolve runtime: %w", err)
		}
		return detector.NewMediaPipeRecognizer(ctx, rt, opts, l.log)
	}
}

// Ready reports whether a recognizer is loaded.
func (l *Loader) Ready() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rec != nil
}

// Recognizer returns the loaded handle, or nil before Initialize succeeds.
func (l *Loader) Recognizer() detector.Recognizer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rec
}

// Close releases the recognizer. The Loader can be initialized again.
func (l *Loader) Close() error {
	l.mu.Lock()
	rec := l.rec
	l.rec = nil
	l.mu.Unlock()

	if rec == nil {
		return nil
	}
	return rec.Close()
}
