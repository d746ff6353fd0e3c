package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"media-dubber/internal/config"
	"media-dubber/internal/diagnostics"
	"media-dubber/internal/domain"
	"media-dubber/internal/engine"
	"media-dubber/internal/jobs"
	"media-dubber/internal/languages"
	"media-dubber/internal/logging"
	"media-dubber/internal/process"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

var videoDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Video files",
		Pattern:     "*.mp4;*.mov;*.mkv;*.avi;*.webm;*.m4v",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// App wires configuration, jobs, the engine bridge, and UI runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Jobs        *jobs.Manager
	Runner      engineRunner
	Diagnostics domain.DiagnosticReport
	Logger      *slog.Logger
	assets      fs.FS
	checker     *diagnostics.Checker
	closeLog    func() error
	newJobID    func() string
	installs    *installer

	mu          sync.Mutex
	activeJobID string
	activeCmd   process.Command
	cancel      context.CancelFunc
	lastOutput  string
	events      *jobs.EventBus
	runtimeCtx  context.Context
}

// engineRunner isolates the engine bridge behind an interface.
type engineRunner interface {
	Run(ctx context.Context, req domain.JobRequest, sink engine.Sink) (engine.Outcome, error)
	Layout() engine.Layout
}

// launchNotifier reports a successful spawn so the job can leave staging.
type launchNotifier struct {
	inner    engine.Launcher
	onLaunch func(process.Command)
}

func (l launchNotifier) Launch(ctx context.Context, cmd process.Command) (engine.Stream, error) {
	stream, err := l.inner.Launch(ctx, cmd)
	if err == nil && l.onLaunch != nil {
		l.onLaunch(cmd)
	}
	return stream, err
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}
	if err := ensureLocalBinOnPATH(homeDir); err != nil {
		return nil, fmt.Errorf("prepare local tool path: %w", err)
	}

	deployment, _, err := config.LoadDeployment(config.DefaultDeploymentPath(homeDir), homeDir)
	if err != nil {
		return nil, fmt.Errorf("load deployment config: %w", err)
	}

	logger, closeLog, err := logging.New(logging.Options{
		Level:  deployment.Logging.Level,
		Format: deployment.Logging.Format,
		Dir:    deployment.Logging.Dir,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	store := config.NewJSONStore(filepath.Join(config.AppDir(homeDir), "settings.json"))
	settings, err := store.Load()
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("load settings: %w", err)
	}

	app := &App{
		Settings: normalizeSettings(settings),
		Store:    store,
		Jobs:     jobs.NewManager(),
		Logger:   logger,
		assets:   assets,
		checker:  diagnostics.NewChecker(),
		closeLog: closeLog,
		events:   jobs.NewEventBus(1000),
	}

	supervisor := process.NewSupervisor(
		process.WithLogger(logger),
		process.WithTerminationGrace(deployment.TerminationGrace()),
	)
	resolver := engine.NewResolver(deployment.Layout(), engine.NewStager(logger))
	launcher := launchNotifier{
		inner:    engine.SupervisorLauncher{Supervisor: supervisor},
		onLaunch: app.markRunning,
	}
	app.Runner = engine.NewBridge(resolver, launcher, logger)
	app.installs = newInstaller(supervisor, logger)
	app.Diagnostics = app.checker.Run(deployment.Layout())

	logger.Info("media dubber initialised",
		"mode", deployment.Mode,
		"settings", store.Path(),
		"has_failures", app.Diagnostics.HasFailures,
	)
	return app, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Media Dubber",
		Width:       960,
		Height:      720,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// Shutdown cancels any running job and releases the log file.
func (a *App) Shutdown(ctx context.Context) {
	a.mu.Lock()
	cancel := a.cancel
	a.runtimeCtx = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if a.closeLog != nil {
		_ = a.closeLog()
	}
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// RefreshDiagnostics reruns the engine and tool checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	if a.checker == nil || a.Runner == nil {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostics are not configured")
	}
	return a.refreshDiagnostics(), nil
}

// GetLanguages returns the target language picker catalog.
func (a *App) GetLanguages() []domain.LanguageOption {
	return languages.Catalog()
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings trims and persists settings. Language codes are stored as
// typed; the engine decides which ones it supports.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)

	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = normalized
	a.mu.Unlock()

	return normalized, nil
}

// PickInputFile opens a native file dialog for video selection.
func (a *App) PickInputFile() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	dir := a.Settings.LastInputDir
	a.mu.Unlock()

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:            "Select video file",
		DefaultDirectory: existingDir(dir),
		Filters:          videoDialogFilter,
	})
	if err != nil {
		return "", err
	}

	path = strings.TrimSpace(path)
	if path != "" {
		a.rememberInputDir(filepath.Dir(path))
	}
	return path, nil
}

// OpenOutputFolder opens the folder containing path, or the last result.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		a.mu.Lock()
		target = a.lastOutput
		a.mu.Unlock()
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// StartJob creates a job and runs the engine asynchronously. An empty
// targetLang falls back to the saved setting.
func (a *App) StartJob(inputPath string, targetLang string) (domain.Job, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Job{}, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	req, err := buildRequest(inputPath, targetLang, settings)
	if err != nil {
		return domain.Job{}, err
	}

	jobID := a.jobID()
	if err := a.Jobs.Start(jobID, req); err != nil {
		return domain.Job{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.activeJobID = jobID
	a.activeCmd = process.Command{}
	a.cancel = cancel
	a.Settings = settings
	a.mu.Unlock()

	a.publishStatus(jobID, domain.JobStatusStaging, "Job started")

	go a.runJob(ctx, jobID, req)
	return a.Jobs.Current(), nil
}

// CancelJob asks the running engine to stop. The cancelled event follows
// once the engine has exited.
func (a *App) CancelJob() error {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()

	if cancel == nil || !a.Jobs.IsRunning() {
		return jobs.ErrNoRunningJob
	}

	cancel()
	return nil
}

// CurrentJob returns current job metadata and status.
func (a *App) CurrentJob() domain.Job {
	return a.Jobs.Current()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// runJob drives the bridge and maps its outcome to the job state machine.
func (a *App) runJob(ctx context.Context, jobID string, req domain.JobRequest) {
	defer a.clearActiveJob(jobID)

	sink := engine.SinkFunc(func(ev engine.Event) {
		if ev.Kind == engine.EventProgress || ev.Kind == engine.EventStatus {
			a.publishEvent(engineEvent(jobID, ev))
		}
	})

	out, err := a.Runner.Run(ctx, req, sink)
	if errors.Is(err, engine.ErrBusy) {
		a.transition(jobID, domain.JobStatusFailed, err.Error())
		a.publishEvent(jobs.Event{JobID: jobID, Type: jobs.EventTypeFailure, Message: err.Error()})
		return
	}

	switch out.Kind {
	case engine.OutcomeSuccess:
		a.transition(jobID, domain.JobStatusDone, "Job completed")
		a.mu.Lock()
		a.lastOutput = out.Result.OutputFile
		a.mu.Unlock()
		a.publishEvent(engineEvent(jobID, engine.Event{Kind: engine.EventSuccess, Result: out.Result}))
	case engine.OutcomeCancelled:
		a.transition(jobID, domain.JobStatusCancelled, "Job cancelled")
		a.publishEvent(jobs.Event{JobID: jobID, Type: jobs.EventTypeCancelled, Message: out.Message})
	default:
		a.transition(jobID, domain.JobStatusFailed, "Job failed")
		a.mu.Lock()
		cmd := a.activeCmd
		a.mu.Unlock()
		a.publishEvent(jobs.Event{
			JobID:    jobID,
			Type:     jobs.EventTypeFailure,
			Message:  out.Message,
			Command:  cmd.Path,
			Args:     cmd.Args,
			ExitCode: out.ExitCode,
			Stderr:   out.Stderr,
		})
	}
}

// markRunning is called once the engine has been spawned.
func (a *App) markRunning(cmd process.Command) {
	a.mu.Lock()
	jobID := a.activeJobID
	a.activeCmd = cmd
	a.mu.Unlock()
	if jobID == "" {
		return
	}
	a.transition(jobID, domain.JobStatusRunning, "Engine started")
}

// transition moves the job forward if it is still the current one. A
// terminal outcome for a job that never spawned goes straight from staging.
func (a *App) transition(jobID string, status domain.JobStatus, message string) {
	current := a.Jobs.Current()
	if current.ID != jobID || current.Status == status {
		return
	}
	if status == domain.JobStatusDone && current.Status == domain.JobStatusStaging {
		if err := a.Jobs.Transition(domain.JobStatusRunning); err != nil {
			a.logger().Warn("job transition rejected", "job_id", jobID, "to", domain.JobStatusRunning, "error", err)
			return
		}
	}
	if err := a.Jobs.Transition(status); err != nil {
		a.logger().Warn("job transition rejected", "job_id", jobID, "to", status, "error", err)
		return
	}
	a.publishStatus(jobID, status, message)
}

// engineEvent converts a bridge event into a UI job event.
func engineEvent(jobID string, ev engine.Event) jobs.Event {
	out := jobs.Event{JobID: jobID, Message: ev.Message}
	switch ev.Kind {
	case engine.EventProgress:
		out.Type = jobs.EventTypeProgress
		out.Percent = ev.Progress.Percent
		out.RemainingSeconds = ev.Progress.RemainingSeconds
	case engine.EventStatus:
		out.Type = jobs.EventTypeStatus
	case engine.EventSuccess:
		out.Type = jobs.EventTypeSuccess
		out.Status = domain.JobStatusDone
		out.OutputFile = ev.Result.OutputFile
		out.Original = ev.Result.Original
		out.Translated = ev.Result.Translated
		out.TargetLang = ev.Result.TargetLang
	case engine.EventFailure:
		out.Type = jobs.EventTypeFailure
	case engine.EventCancelled:
		out.Type = jobs.EventTypeCancelled
	}
	return out
}

// publishStatus sends a job lifecycle status event.
func (a *App) publishStatus(jobID string, status domain.JobStatus, message string) {
	a.publishEvent(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeStatus,
		Status:  status,
		Message: message,
	})
}

// publishEvent stores event history and emits runtime push notifications.
func (a *App) publishEvent(event jobs.Event) {
	published := a.events.Publish(event)

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "job:event", published)
	}
}

// clearActiveJob clears cancellation handles for completed job IDs.
func (a *App) clearActiveJob(jobID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeJobID == jobID {
		if a.cancel != nil {
			a.cancel()
		}
		a.activeJobID = ""
		a.cancel = nil
	}
}

func (a *App) refreshDiagnostics() domain.DiagnosticReport {
	report := a.checker.Run(a.Runner.Layout())
	a.mu.Lock()
	a.Diagnostics = report
	a.mu.Unlock()
	return report
}

func (a *App) rememberInputDir(dir string) {
	a.mu.Lock()
	settings := a.Settings
	a.mu.Unlock()
	if settings.LastInputDir == dir {
		return
	}
	settings.LastInputDir = dir
	if _, err := a.SaveSettings(settings); err != nil {
		a.logger().Warn("remember input directory", "error", err)
	}
}

func (a *App) jobID() string {
	if a.newJobID != nil {
		return a.newJobID()
	}
	return uuid.NewString()
}

func (a *App) logger() *slog.Logger {
	if a.Logger == nil {
		return logging.Discard()
	}
	return a.Logger
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// buildRequest fills the request from UI input and saved settings. Language
// codes pass through untouched apart from surrounding whitespace.
func buildRequest(inputPath, targetLang string, settings domain.Settings) (domain.JobRequest, error) {
	path := strings.TrimSpace(inputPath)
	if path == "" {
		return domain.JobRequest{}, fmt.Errorf("%w: input file path is required", engine.ErrInvalidRequest)
	}

	lang := strings.TrimSpace(targetLang)
	if lang == "" {
		lang = strings.TrimSpace(settings.TargetLanguage)
	}
	if lang == "" {
		return domain.JobRequest{}, fmt.Errorf("%w: target language is required", engine.ErrInvalidRequest)
	}

	return domain.JobRequest{
		InputPath:      path,
		TargetLanguage: lang,
		SourceLanguage: strings.TrimSpace(settings.SourceLanguage),
	}, nil
}

// normalizeSettings trims user inputs and applies the default target language.
func normalizeSettings(settings domain.Settings) domain.Settings {
	settings.TargetLanguage = strings.TrimSpace(settings.TargetLanguage)
	settings.SourceLanguage = strings.TrimSpace(settings.SourceLanguage)
	settings.LastInputDir = strings.TrimSpace(settings.LastInputDir)
	if settings.TargetLanguage == "" {
		settings.TargetLanguage = config.DefaultSettings().TargetLanguage
	}
	return settings
}

func existingDir(dir string) string {
	if dir == "" {
		return ""
	}
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return dir
	}
	return ""
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
