package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"heicconv/batch"
	"heicconv/codec"
	"heicconv/logger"
)

type Processor struct {
	Config   *Config
	Console  *logger.Console
	Decoder  batch.ImageDecoder
	Encoder  codec.Encoder
	RunID    string
}

func NewProcessor(cfg *Config, console *logger.Console) (*Processor, error) {
	enc, err := codec.NewEncoder(cfg.Format, cfg.EncoderOptions())
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	return &Processor{
		Config:   cfg,
		Console:  console.With("run_id", runID),
		Decoder:  codec.DefaultRegistry(),
		Encoder:  enc,
		RunID:    runID,
	}, nil
}

// Run converts every matching file under the input directory and returns the
// aggregate summary. The error is reserved for conditions that stop the run
// before any file is converted.
func (p *Processor) Run(ctx context.Context) (batch.Summary, error) {
	cfg := p.Config
	started := time.Now()
	timer := p.Console.StartTimer("batch conversion")
	defer timer.End()

	p.Console.Info("Processing directory: %s (workers: %d, quality: %d, format: %s)",
		cfg.InputPath, cfg.Workers, cfg.Quality, cfg.Format)

	files, err := p.collectFiles()
	if err != nil {
		return batch.Summary{}, err
	}

	if len(files) == 0 {
		p.Console.Warn("No %s files found in %s", strings.Join(cfg.Extensions, "/"), cfg.InputPath)
		return batch.Summary{}, nil
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return batch.Summary{}, fmt.Errorf("creating output directory: %w", err)
	}

	tasks := batch.PlanTasks(files, cfg.OutputDir, p.Encoder.Ext())
	outcomes := p.convertAll(ctx, tasks)
	summary := batch.Summarize(outcomes)

	p.displayResults(summary)

	if cfg.ReportPath != "" {
		if err := p.writeReport(started, summary); err != nil {
			p.Console.Error("Could not write report: %v", err)
		} else {
			p.Console.Info("Report written to %s", cfg.ReportPath)
		}
	}

	return summary, nil
}

func (p *Processor) collectFiles() ([]batch.SourceFile, error) {
	cfg := p.Config
	spinner := p.Console.StartSpinner("Scanning " + cfg.InputPath)

	files, err := batch.Discover(cfg.InputPath, cfg.Extensions, batch.DiscoverOptions{
		Skip: []string{cfg.OutputDir},
		OnError: func(path string, err error) {
			p.Console.Logger.Warn("skipping unreadable path", "path", path, "err", err)
		},
	})
	if err != nil {
		spinner.Stop(false, "File discovery failed")
		return nil, fmt.Errorf("file collection error: %w", err)
	}

	spinner.Stop(true, fmt.Sprintf("Found %d file(s) to convert", len(files)))
	return files, nil
}

func (p *Processor) convertAll(ctx context.Context, tasks []batch.Task) []batch.Outcome {
	cfg := p.Config
	bar := p.Console.NewProgressBar(int64(len(tasks)), "Converting images")

	worker := batch.NewWorker(p.Decoder, p.Encoder, cfg.Quality)
	scheduler := batch.NewScheduler(worker, batch.SchedulerOptions{
		Workers:     cfg.Workers,
		QueueSize:   cfg.QueueSize,
		TaskTimeout: cfg.TaskTimeout,
		OnOutcome: func(o batch.Outcome) {
			bar.Increment(o.Succeeded())
			p.logOutcome(o)
		},
	})

	p.Console.Debug("Starting batch processing of %d files on %d workers", len(tasks), scheduler.Workers())
	outcomes := scheduler.Run(ctx, tasks)
	bar.Complete()

	progress := scheduler.Progress()
	if err := ctx.Err(); err != nil {
		p.Console.Warn("Conversion interrupted: %d of %d file(s) converted: %v",
			progress.Done()-progress.Failed(), progress.Total(), err)
	}
	p.Console.Debug("Scheduler finished: %d done, %d failed", progress.Done(), progress.Failed())
	return outcomes
}

func (p *Processor) logOutcome(o batch.Outcome) {
	log := p.Console.Logger
	if o.Succeeded() {
		log.Debug("converted", "path", o.Task.Source.RelPath, "dest", o.Task.Dest, "elapsed", o.Duration)
		return
	}
	if p.Console.Interactive {
		log.Debug("conversion failed", "path", o.Task.Source.RelPath, "err", o.Err)
		return
	}
	log.Error("conversion failed", "path", o.Task.Source.RelPath, "err", o.Err)
}

func (p *Processor) displayResults(s batch.Summary) {
	p.Console.Logger.Info("batch complete",
		"total", s.Total,
		"succeeded", s.Succeeded,
		"failed", s.Failed,
		"elapsed", s.Elapsed,
	)

	table := p.Console.NewTable([]string{"Metric", "Value"})
	table.AddRow("Files found", fmt.Sprintf("%d", s.Total))
	table.AddRow("Converted", fmt.Sprintf("%d", s.Succeeded))
	table.AddRow("Failed", fmt.Sprintf("%d", s.Failed))
	table.AddRow("Elapsed", logger.FormatDuration(s.Elapsed))
	table.AddRow("Output", p.Config.OutputDir)
	p.Console.PrintTable(table)

	if s.HasFailures() {
		failures := p.Console.NewTable([]string{"File", "Reason"})
		for _, f := range s.Failures {
			failures.AddRow(f.RelPath, f.Reason)
		}
		p.Console.PrintTable(failures)
		p.Console.Warn("%d of %d file(s) could not be converted", s.Failed, s.Total)
		return
	}

	p.Console.Success("Converted %d file(s) into %s", s.Succeeded, p.Config.OutputDir)
}

func (p *Processor) writeReport(started time.Time, s batch.Summary) error {
	cfg := p.Config
	if err := os.MkdirAll(filepath.Dir(cfg.ReportPath), 0o755); err != nil {
		return err
	}

	f, err := os.Create(cfg.ReportPath)
	if err != nil {
		return err
	}

	err = batch.WriteReport(f, batch.Report{
		RunID:   p.RunID,
		Started: started,
		Input:   cfg.InputPath,
		Output:  cfg.OutputDir,
		Format:  cfg.Format,
		Quality: cfg.Quality,
		Workers: cfg.Workers,
		Summary: s,
	})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
