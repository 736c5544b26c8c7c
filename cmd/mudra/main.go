package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/events"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/tray"
)

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to the YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "mudra: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logging.Init(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	log := logging.Component("main")
	log.Info("Mudra - Hand Gesture Recognition")

	st, err := store.New(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer st.Close()

	bus := events.New()
	hub := server.NewHub()
	if err := hub.Subscribe(bus); err != nil {
		return err
	}
	player := server.NewRemotePlayer(hub)
	hub.AttachPlayer(player)

	a, err := app.New(app.Config{
		Settings: *cfg,
		Store:    st,
		Player:   player,
		Bus:      bus,
		Notifier: hub,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	webDir := findWebDir(cfg.Server.StaticDir, cfg.DataDir)
	if webDir != "" {
		log.WithField("dir", webDir).Info("serving static files")
	}
	srv := server.New(server.Config{StaticDir: webDir, App: a, Hub: hub})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.Server.Addr)
	})

	if cfg.Tray {
		t := newTray(a, bus, pageURL(cfg.Server.Addr), stop)
		g.Go(func() error {
			<-gctx.Done()
			t.Quit()
			return nil
		})
		t.Run()
		stop()
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	log.Info("shutting down")
	return nil
}

// newTray wires the tray menu to the demo. Enabling activates the last used
// mode.
func newTray(a *app.App, bus *events.Bus, url string, quit func()) *tray.Tray {
	log := logging.Component("tray")

	t := tray.New(a.Mode() != "")
	t.OnToggle(func(enabled bool) {
		if !enabled {
			a.Deactivate()
			return
		}
		mode := a.LastMode()
		if !mode.Valid() {
			mode = app.ModeGesture
		}
		a.ActivateAsync(mode)
	})
	t.OnOpenPage(func() {
		if err := openBrowser(url); err != nil {
			log.WithError(err).Warn("failed to open demo page")
		}
	})
	t.OnQuit(quit)
	if err := t.Watch(bus); err != nil {
		log.WithError(err).Warn("failed to watch gestures")
	}
	return t
}

func pageURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

func defaultConfigPath() string {
	if _, err := os.Stat("mudra.yaml"); err == nil {
		return "mudra.yaml"
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".mudra", "mudra.yaml")
}

// findWebDir returns the configured static directory, or searches "web",
// "../web", "../../web" and <dataDir>/web. Returns "" if none exists.
func findWebDir(configured, dataDir string) string {
	candidates := []string{"web", "../web", "../../web", filepath.Join(dataDir, "web")}
	if configured != "" {
		candidates = []string{configured}
	}

	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}
	return ""
}
