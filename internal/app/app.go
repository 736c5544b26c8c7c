// Package app orchestrates the gesture recognition demo: model loading,
// camera lifecycle, the recognition loop and the gesture consumers.
package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/events"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/model"
	"github.com/ayusman/mudra/internal/overlay"
	"github.com/ayusman/mudra/internal/recognition"
	"github.com/ayusman/mudra/internal/simon"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/videocontrol"
)

// GameTick is how often the game clock advances while the game is active.
const GameTick = 100 * time.Millisecond

// ModelLoader loads and owns the recognizer.
type ModelLoader interface {
	Initialize(ctx context.Context) error
	Ready() bool
	Recognizer() detector.Recognizer
	Close() error
}

// Notifier receives consumer output for the display surface.
type Notifier interface {
	StatusChanged(Status)
	VideoAction(videocontrol.AppliedAction)
	GameChanged(simon.Snapshot)
}

// Config holds the collaborators of the App.
type Config struct {
	Settings  config.Config
	Store     *store.Store
	Device    capture.Device
	Loader    ModelLoader
	Scheduler recognition.Scheduler
	Player    videocontrol.Player
	Bus       *events.Bus
	Notifier  Notifier
}

// App is the demo orchestrator. Activate, Deactivate, Restart and Retry are
// serialized; at most one camera stream and one recognition loop exist.
type App struct {
	settings config.Config
	store    *store.Store
	bus      *events.Bus
	loader   ModelLoader
	camera   *capture.Camera
	canvas   *overlay.MatCanvas
	loop     *recognition.Loop
	mapper   *videocontrol.Mapper
	game     *simon.Game
	notifier Notifier
	log      *logrus.Entry

	opMu sync.Mutex

	mu       sync.RWMutex
	mode     Mode
	phase    Phase
	lastMode Mode
	lastErr  error
	lastEgg  *events.EasterEgg
	gameStop chan struct{}

	// epoch advances on every Deactivate; setup started under an older
	// epoch is abandoned. cancelSetup cancels the setup in flight.
	epoch       uint64
	cancelSetup context.CancelFunc
}

// New creates an App and wires the consumers to the event bus.
func New(cfg Config) (*App, error) {
	if cfg.Bus == nil {
		cfg.Bus = events.New()
	}
	if cfg.Device == nil {
		cfg.Device = capture.NewGoCVDevice()
	}
	if cfg.Loader == nil {
		cfg.Loader = model.NewLoader(cfg.Settings.Model)
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = recognition.NewFrameScheduler(cfg.Settings.Loop.DisplayFPS)
	}

	a := &App{
		settings: cfg.Settings,
		store:    cfg.Store,
		bus:      cfg.Bus,
		loader:   cfg.Loader,
		camera:   capture.NewCamera(cfg.Device, cfg.Settings.Camera),
		canvas:   overlay.NewMatCanvas(0, 0),
		notifier: cfg.Notifier,
		log:      logging.Component("app"),
		phase:    PhaseInactive,
	}

	eggs := gesture.NewEasterEggMatcher(gesture.EasterEggCooldown, func(fs gesture.FingerState, at time.Time) {
		a.bus.PublishEasterEgg(events.EasterEgg{Fingers: fs, At: at, DisplayFor: gesture.EasterEggDisplay})
	})
	a.loop = recognition.New(recognition.Config{
		Recognizers: cfg.Loader,
		Scheduler:   cfg.Scheduler,
		Bus:         cfg.Bus,
		EasterEggs:  eggs,
	})

	a.mapper = videocontrol.NewMapper(cfg.Player, cfg.Settings.Video, a.videoAction)

	var stats simon.StatsStore
	if cfg.Store != nil {
		stats = cfg.Store.GameStats()
	}
	gameCfg := simon.ConfigFrom(cfg.Settings.Game, stats)
	gameCfg.OnChange = a.gameChanged
	a.game = simon.New(context.Background(), gameCfg)

	if err := a.bus.OnFrameAsync(a.dispatchFrame); err != nil {
		return nil, err
	}
	if err := a.bus.OnEasterEggAsync(a.easterEgg); err != nil {
		return nil, err
	}

	return a, nil
}

// dispatchFrame routes a frame to the consumer of the active mode.
func (a *App) dispatchFrame(f events.Frame) {
	switch a.Mode() {
	case ModeVideo:
		a.mapper.HandleFrame(f)
	case ModeSimon:
		a.game.HandleFrame(f)
	}
}

func (a *App) easterEgg(e events.EasterEgg) {
	a.mu.Lock()
	a.lastEgg = &e
	a.mu.Unlock()

	a.log.Warn("easter egg gesture detected")
	a.record(store.ActivityEasterEgg, "easter egg gesture detected", e)
}

func (a *App) videoAction(act videocontrol.AppliedAction) {
	a.record(store.ActivityVideoAction, act.Message, act)
	if a.notifier != nil {
		a.notifier.VideoAction(act)
	}
}

func (a *App) gameChanged(s simon.Snapshot) {
	switch s.State {
	case simon.Success:
		a.record(store.ActivityGame, "sequence completed", s)
	case simon.Failure:
		a.record(store.ActivityGame, "sequence failed", s)
	}
	if a.notifier != nil {
		a.notifier.GameChanged(s)
	}
}

// ActivateAsync marks the demo loading and runs Activate on a new goroutine.
func (a *App) ActivateAsync(mode Mode) {
	if !mode.Valid() {
		return
	}
	a.mu.Lock()
	if a.phase != PhaseActive || a.mode != mode {
		a.phase = PhaseLoading
	}
	epoch := a.epoch
	a.mu.Unlock()
	a.notifyStatus()

	go func() {
		if err := a.activate(context.Background(), mode, epoch); err != nil && !errors.Is(err, ErrCancelled) {
			a.log.WithError(err).WithField("mode", mode).Warn("activation failed")
		}
	}()
}

// Activate loads the model, starts the camera, waits for decoded frames and
// starts recognition. Activating the active mode again is a no-op; another
// mode replaces the current one.
func (a *App) Activate(ctx context.Context, mode Mode) error {
	return a.activate(ctx, mode, a.currentEpoch())
}

func (a *App) activate(ctx context.Context, mode Mode, epoch uint64) error {
	if !mode.Valid() {
		return ErrInvalidMode
	}

	a.opMu.Lock()
	defer a.opMu.Unlock()

	ctx, cancel, ok := a.beginSetup(ctx, epoch)
	if !ok {
		return ErrCancelled
	}
	defer a.endSetup(cancel)

	a.mu.RLock()
	same := a.phase == PhaseActive && a.mode == mode
	active := a.phase == PhaseActive
	a.mu.RUnlock()
	if same {
		return nil
	}
	if active {
		a.deactivateLocked()
	}

	a.setPhase(PhaseLoading, mode, nil)
	a.log.WithField("mode", mode).Info("activating demo")

	if err := a.loader.Initialize(ctx); err != nil {
		return a.setupFailed(mode, epoch, err)
	}

	a.camera.SetConstraints(constraintsFor(mode, a.settings.Camera))
	if _, err := a.camera.Start(ctx); err != nil {
		return a.setupFailed(mode, epoch, err)
	}
	if err := a.camera.WaitReady(ctx); err != nil {
		a.camera.Stop()
		return a.setupFailed(mode, epoch, err)
	}
	if err := a.loop.Start(a.camera, a.canvas); err != nil {
		a.camera.Stop()
		return a.setupFailed(mode, epoch, err)
	}

	a.mu.Lock()
	if a.epoch != epoch {
		a.mu.Unlock()
		a.loop.Stop()
		a.camera.Stop()
		return ErrCancelled
	}
	a.mode = mode
	a.phase = PhaseActive
	a.lastMode = mode
	a.lastErr = nil
	if mode == ModeSimon {
		a.gameStop = make(chan struct{})
		go a.runGameClock(a.gameStop)
	}
	a.mu.Unlock()

	a.record(store.ActivityDemo, "demo activated", map[string]any{"mode": mode})
	a.saveMode(mode)
	a.notifyStatus()
	return nil
}

// Deactivate stops recognition and releases the camera. It is a no-op when
// nothing is active. Setup in flight is cancelled rather than waited out.
func (a *App) Deactivate() {
	a.mu.Lock()
	a.epoch++
	cancel := a.cancelSetup
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	a.opMu.Lock()
	defer a.opMu.Unlock()
	a.deactivateLocked()
	a.notifyStatus()
}

func (a *App) deactivateLocked() {
	a.loop.Stop()
	a.camera.Stop()

	a.mu.Lock()
	wasActive := a.phase == PhaseActive
	if a.gameStop != nil {
		close(a.gameStop)
		a.gameStop = nil
	}
	a.mode = ""
	a.phase = PhaseInactive
	a.lastErr = nil
	a.mu.Unlock()

	// Consumers are async; let pending frames drain before the next mode.
	a.bus.Wait()

	if wasActive {
		a.log.Info("demo deactivated")
	}
}

// Restart stops recognition, restarts the camera after the restart delay and
// resumes recognition in the current mode.
func (a *App) Restart(ctx context.Context) error {
	epoch := a.currentEpoch()

	a.opMu.Lock()
	defer a.opMu.Unlock()

	ctx, cancel, ok := a.beginSetup(ctx, epoch)
	if !ok {
		return ErrCancelled
	}
	defer a.endSetup(cancel)

	a.mu.RLock()
	mode := a.mode
	if mode == "" {
		mode = a.lastMode
	}
	a.mu.RUnlock()
	if mode == "" {
		return ErrNotActive
	}

	a.loop.Stop()
	a.setPhase(PhaseLoading, mode, nil)

	if _, err := a.camera.Restart(ctx); err != nil {
		return a.setupFailed(mode, epoch, err)
	}
	if err := a.camera.WaitReady(ctx); err != nil {
		a.camera.Stop()
		return a.setupFailed(mode, epoch, err)
	}
	if err := a.loop.Start(a.camera, a.canvas); err != nil {
		a.camera.Stop()
		return a.setupFailed(mode, epoch, err)
	}

	a.mu.Lock()
	if a.epoch != epoch {
		a.mu.Unlock()
		a.loop.Stop()
		a.camera.Stop()
		return ErrCancelled
	}
	a.mode = mode
	a.phase = PhaseActive
	a.lastErr = nil
	if mode == ModeSimon && a.gameStop == nil {
		a.gameStop = make(chan struct{})
		go a.runGameClock(a.gameStop)
	}
	a.mu.Unlock()

	a.log.WithField("mode", mode).Info("camera restarted")
	a.notifyStatus()
	return nil
}

// Retry recovers from the last user-visible error: a camera error restarts the
// camera, a model error re-initializes the model.
func (a *App) Retry(ctx context.Context) error {
	a.mu.RLock()
	err := a.lastErr
	mode := a.lastMode
	a.mu.RUnlock()

	if mode == "" {
		return ErrNotActive
	}

	var camErr *capture.CameraError
	if errors.As(err, &camErr) && a.camera.Active() {
		return a.Restart(ctx)
	}
	return a.Activate(ctx, mode)
}

func (a *App) currentEpoch() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.epoch
}

// beginSetup derives the cancellable setup context. It reports false when a
// Deactivate happened after epoch was read.
func (a *App) beginSetup(ctx context.Context, epoch uint64) (context.Context, context.CancelFunc, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.epoch != epoch {
		return nil, nil, false
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancelSetup = cancel
	return ctx, cancel, true
}

func (a *App) endSetup(cancel context.CancelFunc) {
	a.mu.Lock()
	a.cancelSetup = nil
	a.mu.Unlock()
	cancel()
}

// setupFailed surfaces err, unless a Deactivate cancelled the setup, in which
// case the demo is left inactive.
func (a *App) setupFailed(mode Mode, epoch uint64, err error) error {
	a.mu.Lock()
	cancelled := a.epoch != epoch
	if cancelled {
		a.mode = ""
		a.phase = PhaseInactive
		a.lastErr = nil
	}
	a.mu.Unlock()

	if cancelled {
		a.log.WithField("mode", mode).Info("demo setup cancelled")
		return ErrCancelled
	}
	return a.fail(mode, err)
}

func (a *App) fail(mode Mode, err error) error {
	a.mu.Lock()
	if a.gameStop != nil {
		close(a.gameStop)
		a.gameStop = nil
	}
	a.mode = ""
	a.phase = PhaseError
	a.lastMode = mode
	a.lastErr = err
	a.mu.Unlock()

	a.log.WithError(err).WithField("mode", mode).Error("demo failed")
	a.record(store.ActivityError, errorInfo(err).Message, map[string]any{"mode": mode, "error": err.Error()})
	a.notifyStatus()
	return err
}

func (a *App) setPhase(p Phase, mode Mode, err error) {
	a.mu.Lock()
	a.phase = p
	a.lastMode = mode
	a.lastErr = err
	a.mu.Unlock()
	a.notifyStatus()
}

func (a *App) runGameClock(stop <-chan struct{}) {
	ticker := time.NewTicker(GameTick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			a.game.Advance(now)
		}
	}
}

// Close deactivates the demo and releases the model and canvas.
func (a *App) Close() error {
	a.Deactivate()
	a.bus.Wait()

	err := a.loader.Close()
	a.canvas.Close()
	return err
}

// Mode returns the active mode, or "" when inactive.
func (a *App) Mode() Mode {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.mode
}

// Game returns the memory game.
func (a *App) Game() *simon.Game {
	return a.game
}

// Loop returns the recognition loop.
func (a *App) Loop() *recognition.Loop {
	return a.loop
}

// Bus returns the event bus.
func (a *App) Bus() *events.Bus {
	return a.bus
}

// Store returns the store, which may be nil.
func (a *App) Store() *store.Store {
	return a.store
}

// Preview returns the newest camera frame with the overlay composited. The
// caller closes the returned Mat.
func (a *App) Preview() (*gocv.Mat, error) {
	frame, err := a.camera.Frame()
	if err != nil {
		return nil, err
	}
	a.canvas.CompositeOnto(frame)
	return frame, nil
}

func (a *App) record(kind store.ActivityKind, message string, detail any) {
	if a.store == nil {
		return
	}
	if _, err := a.store.Activity().Record(context.Background(), kind, message, detail); err != nil {
		a.log.WithError(err).Warn("failed to record activity")
	}
}

func (a *App) saveMode(mode Mode) {
	if a.store == nil {
		return
	}
	if err := a.store.Settings().Set(context.Background(), store.SettingDemoMode, string(mode)); err != nil {
		a.log.WithError(err).Warn("failed to save demo mode")
	}
}

// LastMode returns the most recently activated mode, falling back to the
// stored setting.
func (a *App) LastMode() Mode {
	a.mu.RLock()
	mode := a.lastMode
	a.mu.RUnlock()

	if mode != "" || a.store == nil {
		return mode
	}
	v, err := a.store.Settings().Get(context.Background(), store.SettingDemoMode)
	if err != nil {
		return ""
	}
	return Mode(v)
}
