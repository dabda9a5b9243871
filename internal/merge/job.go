package merge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dtindex/internal/config"
	"dtindex/internal/dataset"
	"dtindex/internal/validation"
)

// Result is the outcome of a Run.
type Result struct {
	Output   string        `json:"output"`
	Report   Report        `json:"report"`
	Duration time.Duration `json:"duration"`
}

// Run reads both workbooks named in cfg, merges them and writes the result
// to cfg.OutputPath. The inputs are never written to and an existing output
// is only replaced when force is set.
func Run(ctx context.Context, cfg config.MergeConfig, force bool, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	validator := validation.NewFileValidator(logger)

	for _, in := range []string{cfg.PrimaryPath, cfg.SecondaryPath} {
		if err := validator.ValidateDataFile(in); err != nil {
			return Result{}, err
		}
	}
	if err := validator.ValidateOutputFile(cfg.OutputPath, force, cfg.PrimaryPath, cfg.SecondaryPath); err != nil {
		return Result{}, err
	}

	primary, err := dataset.Load(cfg.PrimaryPath, dataset.LoadOptions{Logger: logger})
	if err != nil {
		return Result{}, fmt.Errorf("read primary table: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	secondary, err := dataset.Load(cfg.SecondaryPath, dataset.LoadOptions{Logger: logger})
	if err != nil {
		return Result{}, fmt.Errorf("read secondary table: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var columns []string
	for _, c := range []string{cfg.GroupCode, cfg.GroupName} {
		if c != "" {
			columns = append(columns, c)
		}
	}
	merged, report, err := Merge(primary, secondary, Options{
		PrimaryIdentifier:   cfg.PrimaryIdentifier,
		PrimaryPeriod:       cfg.PrimaryPeriod,
		SecondaryIdentifier: cfg.SecondaryIdentifier,
		SecondaryPeriod:     cfg.SecondaryPeriod,
		Columns:             columns,
		KeyWidth:            cfg.KeyWidth,
		Logger:              logger,
	})
	if err != nil {
		return Result{}, err
	}

	if err := dataset.WriteXLSX(merged, cfg.OutputPath, dataset.DefaultSheet); err != nil {
		return Result{}, fmt.Errorf("write merged table: %w", err)
	}

	res := Result{Output: cfg.OutputPath, Report: report, Duration: time.Since(start)}
	logger.InfoContext(ctx, "Merged table written",
		slog.String("output", cfg.OutputPath),
		slog.Int("rows", merged.Len()),
		slog.Duration("duration", res.Duration))
	return res, nil
}
