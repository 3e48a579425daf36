// Package processor orchestrates one render job end to end: parse the
// stored spec, materialize its assets, compile the filter graph, run
// the encoder, upload the result and report progress along the way.
package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"sceneforge/internal/engine"
	"sceneforge/internal/pkg/errors"
	"sceneforge/internal/pkg/logger"
	"sceneforge/internal/ports"
	"sceneforge/internal/render/compiler"
	"sceneforge/internal/render/job"
)

// signedURLTTL is how long a delivered output link stays valid.
const signedURLTTL = 7 * 24 * time.Hour

// Progress milestones reported to the job row and the callback URL.
const (
	progressPreparing = 10
	progressAssets    = 30
	progressCompiled  = 50
	progressRendering = 60
	progressUploading = 90
	progressDone      = 100
)

type Deps struct {
	Pool         *pgxpool.Pool
	SP           ports.StorageProvider
	Compiler     *compiler.Compiler
	Engine       *engine.Engine
	WorkDir      string
	CleanupLocal bool
	Log          *logger.Logger
}

type Processor struct {
	pool         *pgxpool.Pool
	sp           ports.StorageProvider
	compiler     *compiler.Compiler
	engine       *engine.Engine
	workDir      string
	cleanupLocal bool
	log          *logger.Logger

	assets   *AssetFetcher
	notifier *Notifier
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("processor")

	workDir := d.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}

	return &Processor{
		pool:         d.Pool,
		sp:           d.SP,
		compiler:     d.Compiler,
		engine:       d.Engine,
		workDir:      workDir,
		cleanupLocal: d.CleanupLocal,
		log:          log,
		assets:       NewAssetFetcher(d.SP, log),
		notifier:     NewNotifier(log),
	}
}

// ProcessJob runs the whole pipeline for one queued job.
func (p *Processor) ProcessJob(ctx context.Context, jobID string) error {
	log := p.log.FromContext(ctx).WithJobID(jobID)

	log.Debug("fetching job spec")
	specJSON, err := p.fetchJobSpec(ctx, jobID)
	if err != nil {
		return p.failJob(ctx, jobID, "", errors.Wrap(err, "processor.fetch", "failed to fetch job spec"))
	}

	parsed, err := job.ParseSpec([]byte(specJSON))
	if err != nil {
		return p.failJob(ctx, jobID, "", errors.WrapWithCode(err, errors.CodeValidation, "processor.parse", "invalid job spec"))
	}
	callback := parsed.CallbackURL

	if err := p.markJobRunning(ctx, jobID); err != nil {
		return p.failJob(ctx, jobID, callback, errors.Wrap(err, "processor.status", "failed to mark job as running"))
	}
	p.progress(ctx, jobID, callback, progressPreparing)

	jobDir := filepath.Join(p.workDir, jobID)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return p.failJob(ctx, jobID, callback, errors.Wrap(err, "processor.workdir", "failed to create work directory"))
	}
	if p.cleanupLocal {
		defer p.cleanupJobDir(jobID, jobDir)
	}

	log.Debug("materializing assets")
	assetMap, err := p.assets.Fetch(ctx, jobDir, parsed)
	if err != nil {
		return p.failJob(ctx, jobID, callback, errors.Wrap(err, "processor.assets", "failed to materialize assets"))
	}
	log.Debug("assets materialized", "count", len(assetMap))
	p.progress(ctx, jobID, callback, progressAssets)

	outputPath := filepath.Join(jobDir, "output.mp4")
	cmd, err := p.compiler.Compile(parsed, assetMap, outputPath)
	if err != nil {
		return p.failJob(ctx, jobID, callback, errors.Wrap(err, "processor.compile", "failed to compile filter graph"))
	}
	log.Debug("filter graph compiled",
		"inputs", len(cmd.Inputs),
		"stages", len(cmd.Stages),
	)
	p.progress(ctx, jobID, callback, progressCompiled)

	p.progress(ctx, jobID, callback, progressRendering)
	log.Info("starting render",
		"mode", string(parsed.Mode),
		"resolution", parsed.Resolution,
	)
	if err := p.engine.Render(ctx, cmd); err != nil {
		return p.failJob(ctx, jobID, callback, err)
	}

	info, err := engine.Probe(outputPath)
	if err != nil {
		return p.failJob(ctx, jobID, callback,
			errors.WrapWithCode(err, errors.CodeRenderFailed, "processor.verify", "render output unreadable"))
	}
	log.Info("render completed",
		"duration_s", info.Duration,
		"width", info.Width,
		"height", info.Height,
	)

	objectKey := parsed.OutputPath
	if objectKey == "" {
		objectKey = fmt.Sprintf("renders/%s.mp4", jobID)
	}
	outputURL, err := p.uploadOutput(ctx, outputPath, objectKey)
	if err != nil {
		return p.failJob(ctx, jobID, callback, err)
	}
	p.progress(ctx, jobID, callback, progressUploading)

	if err := p.markJobDone(ctx, jobID, outputURL); err != nil {
		return p.failJob(ctx, jobID, callback, errors.Wrap(err, "processor.save", "failed to save job output"))
	}

	p.notifier.Notify(ctx, callback, Notification{
		JobID:     jobID,
		Status:    StatusCompleted,
		Progress:  progressDone,
		OutputURL: outputURL,
	})
	return nil
}

// uploadOutput stores the rendered file and returns the URL callers can
// fetch it from: a signed URL when the provider supports signing, the
// object key otherwise.
func (p *Processor) uploadOutput(ctx context.Context, path, objectKey string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeUploadFailed, "processor.upload", "render output missing")
	}
	defer f.Close()

	var size int64
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}

	out, err := p.sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   objectKey,
		ContentType: "video/mp4",
		Reader:      f,
		Size:        size,
	})
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeUploadFailed, "processor.upload", "failed to upload render output")
	}

	signed, err := p.sp.GetSignedURL(ctx, out.ObjectKey, signedURLTTL)
	if err != nil || signed.URL == "" {
		return out.ObjectKey, nil
	}
	return signed.URL, nil
}

func (p *Processor) fetchJobSpec(ctx context.Context, jobID string) (string, error) {
	var specJSON string
	err := p.pool.QueryRow(ctx,
		`SELECT params_json FROM jobs WHERE id=$1`,
		jobID,
	).Scan(&specJSON)
	if err != nil {
		return "", fmt.Errorf("job not found: %w", err)
	}
	return specJSON, nil
}

func (p *Processor) markJobRunning(ctx context.Context, jobID string) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE jobs SET status='RUNNING', started_at=NOW(), finished_at=NULL, error_text=NULL WHERE id=$1`,
		jobID,
	)
	return err
}

func (p *Processor) markJobDone(ctx context.Context, jobID, outputURL string) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE jobs SET status='DONE', progress=100, output_url=$2, finished_at=NOW() WHERE id=$1`,
		jobID, outputURL,
	)
	return err
}

// progress persists a milestone and mirrors it to the callback URL.
// Progress is advisory; failures here never fail the job.
func (p *Processor) progress(ctx context.Context, jobID, callback string, pct int) {
	if _, err := p.pool.Exec(ctx,
		`UPDATE jobs SET progress=$2 WHERE id=$1`,
		jobID, pct,
	); err != nil {
		p.log.FromContext(ctx).Warn("progress update failed",
			"job_id", jobID,
			"progress", pct,
			"error", err.Error(),
		)
	}
	p.notifier.Notify(ctx, callback, progressNotification(jobID, pct))
}

// progressNotification is the payload for an in-flight milestone. The
// callback protocol knows three statuses; milestones always report
// PROCESSING, regardless of the job row's internal state.
func progressNotification(jobID string, pct int) Notification {
	return Notification{
		JobID:    jobID,
		Status:   StatusProcessing,
		Progress: pct,
	}
}

func (p *Processor) cleanupJobDir(jobID, dir string) {
	if err := os.RemoveAll(dir); err != nil {
		p.log.Warn("workdir cleanup failed",
			"job_id", jobID,
			"dir", dir,
			"error", err.Error(),
		)
	}
}

func (p *Processor) failJob(ctx context.Context, jobID, callback string, cause error) error {
	log := p.log.FromContext(ctx).WithJobID(jobID)

	msg := ""
	if cause != nil {
		msg = cause.Error()
		if len(msg) > 2000 {
			msg = msg[:2000]
		}

		var appErr *errors.Error
		if errors.As(cause, &appErr) {
			log.Error("job failed",
				"code", string(appErr.Code),
				"op", appErr.Op,
				"message", appErr.Message,
			)
		} else {
			log.Error("job failed", "error", msg)
		}
	}

	_, _ = p.pool.Exec(ctx,
		`UPDATE jobs SET status='FAILED', finished_at=NOW(), error_text=$2 WHERE id=$1`,
		jobID, msg,
	)

	p.notifier.Notify(ctx, callback, Notification{
		JobID:  jobID,
		Status: StatusFailed,
		Error:  msg,
	})

	return cause
}
