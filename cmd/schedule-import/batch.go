package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ybsk00/hospital-ops-suit-sub002/internal/domain/schedimport"
)

type importer interface {
	Import(ctx context.Context, req *schedimport.ImportRequest) (*schedimport.ImportResult, error)
}

// receiptMode decides when a file in the inbox has finished arriving.
type receiptMode string

const (
	// receiptDoneSignal waits for a "<name>.done" file next to the sheet.
	receiptDoneSignal receiptMode = "done_signal"
	// receiptStableSize waits until the size stops changing over stableWait.
	receiptStableSize receiptMode = "stable_size"
	receiptImmediate  receiptMode = "immediate"
)

const doneSuffix = ".done"

var batchExtensions = map[string]bool{
	".csv":  true,
	".tsv":  true,
	".txt":  true,
	".xlsx": true,
}

// batchFile is the outcome of one file in a batch run.
type batchFile struct {
	Name      string                   `json:"name"`
	MovedTo   string                   `json:"moved_to,omitempty"`
	Status    schedimport.ImportStatus `json:"status,omitempty"`
	Duplicate bool                     `json:"duplicate,omitempty"`
	Pending   bool                     `json:"pending,omitempty"`
	Stats     *schedimport.ImportStats `json:"stats,omitempty"`
	Error     string                   `json:"error,omitempty"`
}

type batchSummary struct {
	Files    int         `json:"files"`
	Archived int         `json:"archived"`
	Failed   int         `json:"failed"`
	Pending  int         `json:"pending"`
	Results  []batchFile `json:"results"`
}

// batchRunner imports every sheet in a directory, a bounded number at a time.
// Files that import (fully, partially or as a duplicate) move to archiveDir;
// files that fail move to errorDir. Files that have not finished arriving
// stay in the inbox for the next run.
type batchRunner struct {
	importer   importer
	flags      targetFlags
	force      bool
	archiveDir string
	errorDir   string
	workers    int
	receipt    receiptMode
	stableWait time.Duration
	logger     zerolog.Logger
}

func (b *batchRunner) run(ctx context.Context, inputDir string) (*batchSummary, error) {
	names, err := listSheets(inputDir)
	if err != nil {
		return nil, err
	}
	for _, dir := range []string{b.archiveDir, b.errorDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	summary := &batchSummary{Files: len(names), Results: make([]batchFile, len(names))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(b.workers, 1))
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			path := filepath.Join(inputDir, name)
			ready, err := b.ready(gctx, path)
			if err != nil {
				return err
			}
			out := batchFile{Name: name, Pending: true}
			if ready {
				out = b.process(gctx, path)
			} else {
				b.logger.Info().Str("file", name).Str("receipt", string(b.receipt)).Msg("sheet not ready, leaving in inbox")
			}

			mu.Lock()
			defer mu.Unlock()
			summary.Results[i] = out
			switch {
			case out.Pending:
				summary.Pending++
			case out.Error != "":
				summary.Failed++
			default:
				summary.Archived++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	b.logger.Info().
		Int("files", summary.Files).
		Int("archived", summary.Archived).
		Int("failed", summary.Failed).
		Int("pending", summary.Pending).
		Msg("batch finished")
	return summary, nil
}

func (b *batchRunner) process(ctx context.Context, path string) batchFile {
	name := filepath.Base(path)
	out := batchFile{Name: name}
	log := b.logger.With().Str("file", name).Logger()

	res, err := b.importFile(ctx, path)
	dest := b.archiveDir
	switch {
	case err != nil:
		out.Error = err.Error()
		dest = b.errorDir
	case res.Import.Status == schedimport.StatusFailed:
		out.Error = "import failed"
		if res.Import.ErrorMessage != nil {
			out.Error = *res.Import.ErrorMessage
		}
		dest = b.errorDir
	}
	if res != nil {
		out.Status = res.Import.Status
		out.Duplicate = res.Duplicate
		stats := res.Import.Stats
		out.Stats = &stats
	}

	moved, moveErr := moveInto(path, dest)
	if moveErr != nil {
		log.Error().Err(moveErr).Msg("could not move processed file")
		if out.Error == "" {
			out.Error = moveErr.Error()
		}
		return out
	}
	out.MovedTo = moved
	if err := moveDoneSignal(path, moved); err != nil {
		log.Warn().Err(err).Msg("could not move done signal")
	}

	if out.Error != "" {
		log.Warn().Str("error", out.Error).Str("moved_to", moved).Msg("sheet failed")
	} else {
		log.Info().Str("status", string(out.Status)).Bool("duplicate", out.Duplicate).Msg("sheet imported")
	}
	return out
}

// ready reports whether path has finished arriving under the runner's
// receipt mode.
func (b *batchRunner) ready(ctx context.Context, path string) (bool, error) {
	switch b.receipt {
	case receiptDoneSignal:
		_, err := os.Stat(path + doneSuffix)
		return err == nil, nil
	case receiptStableSize:
		before, err := os.Stat(path)
		if err != nil {
			return false, nil
		}
		t := time.NewTimer(b.stableWait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-t.C:
		}
		after, err := os.Stat(path)
		if err != nil {
			return false, nil
		}
		return before.Size() > 0 && before.Size() == after.Size() && before.ModTime().Equal(after.ModTime()), nil
	case receiptImmediate, "":
		return true, nil
	default:
		return false, fmt.Errorf("unknown receipt mode %q", b.receipt)
	}
}

func (b *batchRunner) importFile(ctx context.Context, path string) (*schedimport.ImportResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	req, err := b.flags.request(path, content)
	if err != nil {
		return nil, err
	}
	req.Force = b.force
	return b.importer.Import(ctx, req)
}

// listSheets returns the importable files of dir in name order.
func listSheets(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if batchExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// moveDoneSignal moves the done file of path, if any, next to moved.
func moveDoneSignal(path, moved string) error {
	err := os.Rename(path+doneSuffix, moved+doneSuffix)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// moveInto renames path into dir, prefixing a timestamp when a file of the
// same name is already there.
func moveInto(path, dir string) (string, error) {
	dest := filepath.Join(dir, filepath.Base(path))
	if _, err := os.Stat(dest); err == nil {
		dest = filepath.Join(dir, time.Now().Format("20060102T150405.000")+"-"+filepath.Base(path))
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	if err := os.Rename(path, dest); err != nil {
		return "", fmt.Errorf("move %s: %w", filepath.Base(path), err)
	}
	return dest, nil
}
