package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/dita2docbook/internal/config"
	cerrors "git.home.luguber.info/inful/dita2docbook/internal/errors"
	"git.home.luguber.info/inful/dita2docbook/internal/logfields"
	"git.home.luguber.info/inful/dita2docbook/internal/manifest"
	"git.home.luguber.info/inful/dita2docbook/internal/report"
)

func writeOutputs(ctx context.Context, cfg *config.Config, rep *report.Reporter, res *Result, status string, start time.Time, configHash string, programs Programs, workers int) error {
	log := rep.Logger().With(logfields.Stage(StageOutputs))
	paths := res.Paths

	dcPath, err := WriteDescriptor(paths, cfg.StyleRoot)
	if err != nil {
		return cerrors.WorkspaceError("write descriptor", err)
	}
	log.Info("Wrote descriptor", logfields.Path(dcPath))

	src, err := manifest.DetectProvenance(paths.BaseDir)
	if err != nil {
		rep.Warn(ctx, StageOutputs, "", "cannot read version control state: "+err.Error())
	}

	files := make([]manifest.FileInput, 0, len(res.Manifest))
	for _, f := range res.Manifest {
		fi := manifest.FileInput{Path: f}
		if h, err := manifest.HashFile(filepath.Join(paths.BaseDir, filepath.FromSlash(f))); err == nil {
			fi.Hash = h
		}
		files = append(files, fi)
	}

	artifacts := map[string]string{}
	for _, p := range []string{filepath.Join(paths.XMLDir, paths.MainFile), dcPath} {
		if h, err := manifest.HashFile(p); err == nil {
			rel, _ := filepath.Rel(paths.ProjectDir, p)
			artifacts[filepath.ToSlash(rel)] = h
		}
	}

	rm := &manifest.RunManifest{
		ID:        res.RunID,
		Timestamp: start.UTC(),
		Inputs: manifest.Inputs{
			RootMap:    paths.MapPath,
			ConfigHash: configHash,
			Source:     src,
			Files:      files,
		},
		Plan: manifest.Plan{
			Engine:    string(cfg.Transform.Engine),
			Programs:  programs.List(),
			Workers:   workers,
			MaxRounds: cfg.MaxRounds,
			CleanID:   cfg.CleanID,
		},
		Outputs: manifest.Outputs{
			ProjectDir:     paths.ProjectDir,
			MainFile:       paths.MainFile,
			DCFile:         paths.DCFile,
			ArtifactHashes: artifacts,
		},
		Status: status,
		// RunCompleted is still to come
		EventCount: len(rep.Events()) + 1,
		Duration:   time.Since(start).Milliseconds(),
		Failed:     res.Failed,
	}
	if err := rm.WriteFile(filepath.Join(paths.ProjectDir, RunManifestFile)); err != nil {
		return cerrors.WorkspaceError("write run manifest", err)
	}
	res.RunManifest = rm

	sum := &report.Summary{
		RunID:      res.RunID,
		RootMap:    paths.MapPath,
		Status:     status,
		Started:    start,
		Duration:   time.Since(start),
		Manifest:   res.Manifest,
		Collisions: res.Collisions,
		Failures:   rep.Failures(),
		Warnings:   rep.Warnings(),
	}
	if src != nil {
		sum.Commit = src.Commit
	}
	for _, r := range res.Replacements {
		sum.Replacements = append(sum.Replacements, [2]string{r.Old, r.New})
	}
	md := sum.Markdown()
	if err := os.WriteFile(filepath.Join(paths.ProjectDir, ReportFile), md, 0o600); err != nil {
		return cerrors.WorkspaceError("write report", err)
	}
	if cfg.Report.HTML {
		page, err := report.RenderHTML("Conversion report: "+paths.BaseName, md)
		if err != nil {
			rep.Warn(ctx, StageOutputs, "", err.Error())
		} else if err := os.WriteFile(filepath.Join(paths.ProjectDir, ReportHTMLFile), page, 0o600); err != nil {
			return cerrors.WorkspaceError("write html report", err)
		}
	}
	return nil
}
