package main

import (
	"context"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"github.com/carbocation/segeval/compileinfo"
	"github.com/carbocation/segeval/config"
	"github.com/carbocation/segeval/engine"
	"github.com/carbocation/segeval/grid"
	"github.com/carbocation/segeval/landmark"
	"github.com/carbocation/segeval/lesion"
	"github.com/carbocation/segeval/metric"
	"github.com/carbocation/segeval/overlay"
	"github.com/carbocation/segeval/report"
	"github.com/carbocation/segeval/volumeio"
	"github.com/rs/zerolog"
)

type runner struct {
	cfg    config.Config
	client *storage.Client
	log    zerolog.Logger
	start  time.Time
	stdout io.Writer

	labels overlay.LabelMap
}

func (r *runner) meta() report.Meta {
	return report.Meta{
		Truth:     r.cfg.TruthPath,
		Test:      r.cfg.TestPath,
		Mask:      r.cfg.MaskPath,
		Selection: r.cfg.Use,
		Threshold: r.cfg.Threshold,
		Start:     r.start,
		End:       time.Now(),
		Build:     compileinfo.Get(),
		Labels:    r.labels,
	}
}

func (r *runner) writeXML(doc *report.Document) error {
	if r.cfg.XMLPath == "" {
		return nil
	}
	if err := report.WriteXMLFile(r.cfg.XMLPath, doc); err != nil {
		return err
	}
	r.log.Info().Str("path", r.cfg.XMLPath).Msg("wrote XML results")
	return nil
}

func (r *runner) loadOptions() volumeio.Options {
	return volumeio.Options{
		Client:   r.client,
		Labels:   r.labels,
		InMemory: r.cfg.NoStreaming,
		Logger:   &r.log,
	}
}

func (r *runner) segmentation(ctx context.Context) error {
	if r.cfg.LabelMapPath != "" {
		lc, err := overlay.ParseLabelConfigFromPath(config.ExpandHome(r.cfg.LabelMapPath))
		if err != nil {
			return err
		}
		r.labels = lc.Labels
	}

	catalog, err := r.cfg.Catalog()
	if err != nil {
		return err
	}
	sel, err := catalog.Resolve(r.cfg.Use)
	if err != nil {
		return err
	}
	if sel.Averaging, err = metric.ParseAveraging(r.cfg.Averaging); err != nil {
		return err
	}
	opts, err := r.cfg.GridOptions()
	if err != nil {
		return err
	}
	opts.Logger = &r.log

	truth, err := volumeio.LoadVolume(ctx, r.cfg.TruthPath, r.loadOptions())
	if err != nil {
		return err
	}
	defer truth.Close()
	test, err := volumeio.LoadVolume(ctx, r.cfg.TestPath, r.loadOptions())
	if err != nil {
		return err
	}
	defer test.Close()

	e := engine.New(catalog, engine.Options{Workers: r.cfg.Workers, Logger: &r.log})
	res, err := e.EvaluateSources(sel, truth, test, opts)
	if err != nil {
		return err
	}

	meta := r.meta()
	if err := report.WriteText(r.stdout, meta, res); err != nil {
		return err
	}
	return r.writeXML(report.Segmentation(meta, res))
}

func (r *runner) landmarks(ctx context.Context) error {
	truth, err := volumeio.LoadLandmarks(ctx, r.cfg.TruthPath, r.client)
	if err != nil {
		return err
	}
	test, err := volumeio.LoadLandmarks(ctx, r.cfg.TestPath, r.client)
	if err != nil {
		return err
	}

	res, err := landmark.Evaluate(truth, test)
	if err != nil {
		return err
	}

	meta := r.meta()
	if err := report.WriteLandmarkText(r.stdout, meta, res); err != nil {
		return err
	}
	return r.writeXML(report.Landmark(meta, res))
}

func (r *runner) lesions(ctx context.Context) error {
	opts, err := r.cfg.GridOptions()
	if err != nil {
		return err
	}
	opts.Logger = &r.log

	truth, err := r.loadLesions(ctx, r.cfg.TruthPath, opts)
	if err != nil {
		return err
	}
	test, err := r.loadLesions(ctx, r.cfg.TestPath, opts)
	if err != nil {
		return err
	}

	var mask *grid.Grid
	if r.cfg.MaskPath != "" {
		if mask, err = r.openGrid(ctx, r.cfg.MaskPath, opts); err != nil {
			return err
		}
	}

	res, err := lesion.Evaluate(truth, test, mask, lesion.Options{Tolerance: r.cfg.Tolerance, Unit: opts.Unit})
	if err != nil {
		return err
	}

	meta := r.meta()
	if err := report.WriteLesionText(r.stdout, meta, res); err != nil {
		return err
	}
	return r.writeXML(report.Lesion(meta, res))
}

// loadLesions reads a point list, or labels the connected components of a
// volume.
func (r *runner) loadLesions(ctx context.Context, path string, opts grid.Options) ([]lesion.Lesion, error) {
	if volumeio.DetectFormat(path) == volumeio.FormatUnknown {
		return volumeio.LoadLesions(ctx, path, r.client)
	}

	g, err := r.openGrid(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	out, err := lesion.FromGrid(g, opts.Unit)
	if err != nil {
		return nil, err
	}
	r.log.Debug().Str("path", path).Int("lesions", len(out)).Msg("labelled connected components")

	return out, nil
}

// openGrid fully reads the volume, so the underlying file can be closed
// right away.
func (r *runner) openGrid(ctx context.Context, path string, opts grid.Options) (*grid.Grid, error) {
	lo := r.loadOptions()
	lo.InMemory = true
	v, err := volumeio.LoadVolume(ctx, path, lo)
	if err != nil {
		return nil, err
	}
	defer v.Close()

	opts.Streaming = false
	return grid.Open(v, opts)
}
