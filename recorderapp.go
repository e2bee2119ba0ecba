package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Kim-Ziho/doorbell-camera/archiving"
	"github.com/Kim-Ziho/doorbell-camera/catalog"
	"github.com/Kim-Ziho/doorbell-camera/clipwriter"
	"github.com/Kim-Ziho/doorbell-camera/common"
	"github.com/Kim-Ziho/doorbell-camera/config"
	"github.com/Kim-Ziho/doorbell-camera/control"
	"github.com/Kim-Ziho/doorbell-camera/encryption"
	"github.com/Kim-Ziho/doorbell-camera/frame"
	"github.com/Kim-Ziho/doorbell-camera/logging"
	motiondetection "github.com/Kim-Ziho/doorbell-camera/motion-detection"
	"github.com/Kim-Ziho/doorbell-camera/notifications"
	postprocessing "github.com/Kim-Ziho/doorbell-camera/post-processing"
	"github.com/Kim-Ziho/doorbell-camera/recording"
	"github.com/Kim-Ziho/doorbell-camera/resolution"
	"github.com/Kim-Ziho/doorbell-camera/video"
	"golang.org/x/sync/errgroup"
)

// simulated scenario: quiet, a moving object, then quiet again
const (
	simulatedFrames      = 600
	simulatedMotionStart = 90
	simulatedMotionEnd   = 240
)

var simulatedSize = frame.Size{Width: 64, Height: 48}

// RecorderApp owns every long-lived component of the recorder
type RecorderApp struct {
	config   *config.Config
	logger   logging.Logger
	simulate bool

	source   frame.Source
	detector motiondetection.MotionDetector
	writer   recording.ClipWriter
	machine  *recording.Machine
	loop     *recording.Loop

	hub   *control.Hub
	board *recording.StatusBoard
	feed  *control.EventFeed

	db        *sql.DB
	clips     *catalog.SQLiteClipRepository
	retention *catalog.RetentionManager
	archive   archiving.ArchiveQueue

	alerter *notifications.MotionAlerter
}

func NewRecorderApp(cfg *config.Config, simulate bool) (*RecorderApp, error) {
	level, err := logging.ParseLogLevel(cfg.Logging.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logging.CreateLogger(level, cfg.Logging.LogPath, "doorbell-camera")

	app := &RecorderApp{
		config:   cfg,
		logger:   logger,
		simulate: simulate,
		hub:      control.NewHub(control.DefaultHubSize, logger),
		board:    recording.NewStatusBoard(),
		feed:     control.NewEventFeed(control.DefaultSubscriberBuffer, logger),
	}

	if err := app.build(); err != nil {
		app.close()
		return nil, err
	}
	return app, nil
}

func (app *RecorderApp) build() error {
	cfg := app.config
	provider := config.NewStaticSettingsProvider(*cfg)

	if app.simulate {
		app.logger.Info("running against a synthetic frame source")
		frames := frame.SyntheticMotion(simulatedFrames, simulatedSize, frame.DefaultFrameRate, time.Now(),
			simulatedMotionStart, simulatedMotionEnd)
		app.source = newPacedSource(frame.NewSliceSource(frames, frame.DefaultFrameRate))
		app.detector = motiondetection.NewFrameDifferenceDetector(motiondetection.DefaultDifferenceThreshold)
	} else {
		requested := resolution.ParseOr(cfg.FrameSize, frame.Size{})
		source, err := video.OpenGoCVFrameSource(cfg.CameraDevices, requested, app.logger)
		if err != nil {
			return fmt.Errorf("failed to open camera: %w", err)
		}
		app.source = source
		app.detector = video.NewGoCVMotionDetector(motiondetection.NewMotionDetectionSettingsProvider(provider), app.logger)
	}

	writerSettings := clipwriter.NewClipWriterSettingsProvider(provider).GetSettings()
	app.writer = video.NewGoCVClipWriter(writerSettings, app.logger)

	listeners := recording.Listeners{app.feed, recording.ListenerFunc(app.logEvent)}
	if err := app.buildArchiving(provider); err != nil {
		return err
	}
	if app.archive != nil {
		listeners = append(listeners, archiving.ClosedClipListener(app.archive))
	}
	app.buildNotifications()
	if app.alerter != nil {
		listeners = append(listeners, app.alerter)
	}

	settings := recording.NewRecordingSettingsProvider(provider).GetSettings()
	machine, err := recording.NewMachine(settings, app.source.FrameRate(), app.source.Size(), app.writer, recording.MachineOptions{
		Listener: listeners,
		Logger:   app.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create recorder: %w", err)
	}
	app.machine = machine
	app.loop = recording.NewLoop(app.source, app.detector, machine, app.hub, app.board, app.logger)

	t := machine.Timing()
	app.logger.Info("recorder ready",
		"size", app.source.Size().String(),
		"fps", t.FrameRate,
		"preroll_frames", t.PrerollFrames,
		"quiet_frames_to_stop", t.QuietFramesToStop,
		"postroll_frames", t.PostrollFrames,
		"auto_mode", machine.AutoEnabled(),
	)
	return nil
}

// buildArchiving wires catalog, retention, transcoding and encryption.
// An empty database path disables the whole post-close pipeline.
func (app *RecorderApp) buildArchiving(provider config.SettingsProvider[config.Config]) error {
	cfg := app.config
	if cfg.Storage.DatabasePath == "" {
		app.logger.Info("clip catalog disabled")
		return nil
	}

	db, err := catalog.OpenDB(cfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	app.db = db
	if app.clips, err = catalog.NewSQLiteClipRepository(db); err != nil {
		return err
	}
	app.retention = catalog.NewRetentionManager(app.clips, cfg.Storage.StorageLimitMegabytes, app.logger)

	var processor postprocessing.PostProcessor
	if cfg.PostProcessing.Enabled {
		processor = postprocessing.NewFfmpegPostProcessor(
			postprocessing.NewPostProcessingSettingsProvider(provider),
			common.NewFFmpegCodecProvider(app.logger),
			app.logger,
		)
	}

	var encryptor archiving.FileEncryptor
	if cfg.Storage.EncryptionPassphrase != "" {
		clipEncryptor, err := encryption.NewClipEncryptor(cfg.Storage.EncryptionPassphrase)
		if err != nil {
			return err
		}
		encryptor = clipEncryptor
	}

	archiver := archiving.NewArchiver(processor, encryptor, app.retention, app.logger)
	drain := time.Duration(cfg.Storage.DrainTimeoutSeconds) * time.Second
	app.archive = archiving.NewArchiveQueue(archiver, cfg.Storage.ArchiveQueueSize, drain, app.logger)
	return nil
}

// buildNotifications sets up e-mail alerts for motion clips and storage pressure
func (app *RecorderApp) buildNotifications() {
	n := app.config.Notifications
	if !n.Enabled() {
		return
	}

	sender := notifications.NewSmtpSender(n.SMTPHost, n.SMTPPort, n.SMTPUsername, n.SMTPPassword, n.SMTPFrom)
	motion := notifications.NewEmailMotionNotifier(notifications.MotionNotificationSettings{
		Recipient:   n.Recipient,
		MinInterval: time.Duration(n.MotionMinIntervalMinutes) * time.Minute,
	}, sender, app.logger)
	app.alerter = notifications.NewMotionAlerter(motion, 4, app.logger)

	if app.retention != nil {
		app.retention.SetNotifier(notifications.NewEmailStorageNotifier(notifications.StorageNotificationSettings{
			Recipient:        n.Recipient,
			MinInterval:      time.Duration(n.StorageMinIntervalMinutes) * time.Minute,
			WarningThreshold: n.StorageWarningThreshold,
		}, sender, app.logger))
	}
	app.logger.Info("e-mail notifications enabled", "recipient", n.Recipient)
}

// Run blocks until the processing loop stops. The loop stopping for any reason
// shuts every control surface down; a cancelled ctx stops the loop.
func (app *RecorderApp) Run(ctx context.Context) error {
	defer app.close()

	if app.retention != nil {
		if deleted, err := app.retention.Enforce(ctx); err != nil {
			app.logger.Warn("startup retention pass failed", "error", err)
		} else if deleted > 0 {
			app.logger.Info("startup retention pass removed clips", "count", deleted)
		}
	}

	var archiveWG sync.WaitGroup
	archiveStop := make(chan struct{})
	if app.archive != nil {
		archiveWG.Add(1)
		go app.archive.Start(archiveStop, &archiveWG, nil)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer cancel()
		return app.loop.Run(gctx)
	})

	if app.alerter != nil {
		g.Go(func() error { return app.alerter.Run(gctx) })
	}

	if app.config.Control.KeyboardEnabled {
		keyboard := control.NewKeyboard(nil, app.hub, app.logger)
		g.Go(func() error {
			if err := keyboard.Run(gctx); err != nil {
				app.logger.Warn("keyboard controls unavailable", "error", err)
			}
			return nil
		})
	}

	if app.config.Control.HTTPEnabled {
		var clips catalog.ClipRepository
		if app.clips != nil {
			clips = app.clips
		}
		server := control.NewServer(control.ServerOptions{
			Addr:   app.config.Control.HTTPAddr,
			Hub:    app.hub,
			Board:  app.board,
			Feed:   app.feed,
			Clips:  clips,
			Logger: app.logger,
			Debug:  app.config.Logging.LogLevel == string(logging.LogLevelDebug),
		})
		g.Go(func() error { return server.Run(gctx) })
	}

	err := g.Wait()

	close(archiveStop)
	archiveWG.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		app.logger.Error("recorder stopped with error", "error", err)
		return err
	}
	app.logger.Info("recorder stopped")
	return nil
}

func (app *RecorderApp) logEvent(e recording.Event) {
	switch e.Kind {
	case recording.EventClipOpened:
		app.logger.Info("clip opened", "clip_id", e.ClipID, "origin", e.Origin, "path", e.Path, "seq", e.Seq)
	case recording.EventClipClosed:
		app.logger.Info("clip closed", "clip_id", e.ClipID, "path", e.Path, "frames", e.Clip.Frames, "reason", e.Clip.Reason)
	case recording.EventPostrollArmed:
		app.logger.Debug("postroll armed", "clip_id", e.ClipID, "frames", e.PostrollFrames)
	case recording.EventOpenFailed:
		app.logger.Error("failed to open clip", "origin", e.Origin, "error", e.Error)
	case recording.EventAutoModeChanged:
		app.logger.Info("automatic recording toggled", "enabled", e.AutoEnabled)
	}
}

func (app *RecorderApp) close() {
	if app.detector != nil {
		if err := app.detector.Close(); err != nil {
			app.logger.Warn("failed to close motion detector", "error", err)
		}
	}
	if app.source != nil {
		if err := app.source.Close(); err != nil {
			app.logger.Warn("failed to close frame source", "error", err)
		}
	}
	if app.db != nil {
		app.db.Close()
	}
	app.feed.Close()
}

// pacedSource releases frames no faster than the source frame rate
type pacedSource struct {
	frame.Source
	interval time.Duration
	next     time.Time
}

func newPacedSource(src frame.Source) *pacedSource {
	fps := frame.NormalizeFrameRate(src.FrameRate(), frame.DefaultFrameRate)
	return &pacedSource{Source: src, interval: time.Duration(float64(time.Second) / fps)}
}

func (s *pacedSource) Next(ctx context.Context) (*frame.Frame, error) {
	if !s.next.IsZero() {
		if wait := time.Until(s.next); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}
	s.next = time.Now().Add(s.interval)
	return s.Source.Next(ctx)
}
