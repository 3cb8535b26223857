// Package pipeline orchestrates a conversion batch: per slide it reconciles
// geometry once, then normalizes, projects, groups, encodes and writes one
// annotation object per unit. Failures are logged and the batch continues.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mrsinham/annforge/internal/annotation"
	"github.com/mrsinham/annforge/internal/config"
	"github.com/mrsinham/annforge/internal/dicom"
	"github.com/mrsinham/annforge/internal/geometry"
	"github.com/mrsinham/annforge/internal/ledger"
	"github.com/mrsinham/annforge/internal/logging"
	"github.com/mrsinham/annforge/internal/metrics"
	"github.com/mrsinham/annforge/internal/ontology"
	"github.com/mrsinham/annforge/internal/preview"
	"github.com/mrsinham/annforge/internal/projection"
	"github.com/mrsinham/annforge/internal/publish"
	"github.com/mrsinham/annforge/internal/util"
)

// Runner executes a batch. Ledger, Metrics and Publisher are optional.
type Runner struct {
	cfg   config.Config
	log   *logging.Logger
	table *ontology.Table
	canon *annotation.Canonicalizer

	ledger    *ledger.Ledger
	metrics   *metrics.Metrics
	publisher publish.Publisher
	progress  io.Writer
	now       func() time.Time

	graphic projection.GraphicType
	coords  projection.CoordinateType
	kinds   []UnitKind

	errlog *ErrorLog
}

// Option configures a Runner.
type Option func(*Runner)

// WithLedger records completed units and, when the configuration asks to
// resume, skips units recorded earlier.
func WithLedger(l *ledger.Ledger) Option {
	return func(r *Runner) { r.ledger = l }
}

// WithMetrics collects run metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithPublisher uploads every written object.
func WithPublisher(p publish.Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// WithProgress prints human readable progress lines to w.
func WithProgress(w io.Writer) Option {
	return func(r *Runner) { r.progress = w }
}

// WithClock overrides the content date stamped on objects.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New validates cfg and returns a Runner.
func New(cfg config.Config, log *logging.Logger, table *ontology.Table, canon *annotation.Canonicalizer, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	graphic, err := cfg.Graphic()
	if err != nil {
		return nil, err
	}
	coords, err := cfg.Coordinates()
	if err != nil {
		return nil, err
	}
	kinds, err := ParseKinds(cfg.Units)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.NewNop()
	}
	if table == nil {
		table = ontology.Default()
	}
	if canon == nil {
		canon = annotation.DefaultCanonicalizer()
	}
	r := &Runner{
		cfg:      cfg,
		log:      log,
		table:    table,
		canon:    canon,
		progress: io.Discard,
		now:      time.Now,
		graphic:  graphic,
		coords:   coords,
		kinds:    kinds,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// inputs are the tables shared read-only by every slide.
type inputs struct {
	normalizer *annotation.Normalizer
	geometries map[string]geometry.SourceGeometry
}

func (r *Runner) loadInputs() (*inputs, error) {
	var (
		cells *annotation.CellTable
		rois  *annotation.ROITable
		err   error
	)
	if r.cfg.Inputs.CellTable != "" {
		if cells, err = annotation.LoadCellTable(r.cfg.Inputs.CellTable); err != nil {
			return nil, err
		}
	}
	if r.cfg.Inputs.ROITable != "" {
		if rois, err = annotation.LoadROITable(r.cfg.Inputs.ROITable); err != nil {
			return nil, err
		}
	}
	geometries, err := geometry.LoadSourceGeometries(r.cfg.Inputs.GeometryTable)
	if err != nil {
		return nil, err
	}
	return &inputs{
		normalizer: annotation.NewNormalizer(cells, rois, r.canon, r.table, r.cfg.ROIFilter),
		geometries: geometries,
	}, nil
}

// Run converts every selected slide. The returned error is only set for
// problems that prevent the batch from starting; per slide and per unit
// failures are in the report.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	report := &Report{Started: r.now()}

	in, err := r.loadInputs()
	if err != nil {
		return nil, &InputError{Err: err}
	}
	errlog, err := OpenErrorLog(r.cfg.ErrorLogPath())
	if err != nil {
		return nil, err
	}
	defer errlog.Close()
	r.errlog = errlog

	if in.normalizer.DetectionOnly() {
		r.log.Info("cell table carries no classification, labelling every cell as " + annotation.DetectionLabel)
	}
	for _, orphan := range in.normalizer.Orphans() {
		report.RecordErrors++
		r.fail("", "", StageInput, orphan)
	}

	slides := r.selectSlides(in.normalizer.Slides(), report)
	r.log.Info("starting conversion",
		"slides", len(slides),
		"workers", r.cfg.Workers,
		"graphic_type", r.graphic.String(),
		"coordinate_type", r.coords.DICOMValue(),
		"units", fmt.Sprint(r.kinds))
	fmt.Fprintf(r.progress, "Converting %d slide(s) with %d worker(s)\n", len(slides), r.cfg.Workers)

	results := make([]SlideReport, len(slides))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i, slide := range slides {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = r.runSlide(gctx, slide, in)
			return nil
		})
	}
	_ = g.Wait()

	for i := range results {
		if results[i].SlideID == "" {
			// never started: the context was cancelled
			continue
		}
		report.Slides = append(report.Slides, results[i])
		report.RecordErrors += results[i].RecordErrors
		report.Failures += results[i].Failures()
		for _, u := range results[i].Units {
			if u.Err == nil && u.Path != "" {
				report.Files = append(report.Files, u.Path)
			}
		}
	}

	if r.cfg.FileSetDir != "" && len(report.Files) > 0 {
		if _, err := dicom.ExportFileSet(r.cfg.FileSetDir, report.Files); err != nil {
			report.Failures++
			r.fail("", "", StageFileSet, err)
		} else {
			r.log.Info("exported file set", "dir", r.cfg.FileSetDir, "files", len(report.Files))
		}
	}
	if err := r.metrics.WriteTextfile(r.cfg.MetricsFile); err != nil {
		r.log.Warn("could not write metrics", "path", r.cfg.MetricsFile, "error", err)
	}

	report.Finished = r.now()
	r.log.Info("conversion finished",
		"written", report.Written(),
		"annotations", report.Annotations(),
		"failures", report.Failures,
		"record_errors", report.RecordErrors,
		"error_log", errlog.Path())
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// selectSlides restricts slides to the configured list. Requested slides
// without annotations are reported as input failures.
func (r *Runner) selectSlides(available []string, report *Report) []string {
	if len(r.cfg.Slides) == 0 {
		return available
	}
	known := make(map[string]bool, len(available))
	for _, s := range available {
		known[s] = true
	}
	var selected []string
	for _, s := range r.cfg.Slides {
		if !known[s] {
			err := &InputError{SlideID: s, Err: errors.New("no annotations for slide")}
			if suggestion := util.ClosestMatch(s, available, 3); suggestion != "" {
				err.Err = fmt.Errorf("no annotations for slide, did you mean %q?", suggestion)
			}
			report.Failures++
			r.fail(s, "", StageInput, err)
			continue
		}
		selected = append(selected, s)
	}
	return selected
}

// slideContext is the per slide state shared by its units.
type slideContext struct {
	id        string
	log       *logging.Logger
	source    *dicom.SourceImage
	projector *projection.Projector
	seriesUID string
	report    *SlideReport
}

func (r *Runner) runSlide(ctx context.Context, slideID string, in *inputs) SlideReport {
	report := SlideReport{SlideID: slideID}
	log := r.log.With("slide", slideID)

	abandon := func(stage Stage, err error) SlideReport {
		report.Stage, report.Err = stage, err
		r.fail(slideID, "", stage, err)
		r.metrics.UnitFailed("slide", string(stage))
		fmt.Fprintf(r.progress, "✗ %s: %v\n", slideID, err)
		return report
	}

	src, ok := in.geometries[slideID]
	if !ok {
		return abandon(StageGeometry, &geometry.ConfigError{SlideID: slideID, Reason: "slide missing from the geometry table"})
	}
	image, err := dicom.LoadSourceImage(filepath.Join(r.cfg.Inputs.ImageRoot, slideID))
	if err != nil {
		return abandon(StageSource, &InputError{SlideID: slideID, Err: err})
	}
	transform, err := geometry.Reconcile(src, image.Destination())
	if err != nil {
		return abandon(StageGeometry, err)
	}
	report.Transform = transform.Kind()
	projector, err := projection.NewProjector(transform, r.graphic, r.coords, image.Frame)
	if err != nil {
		return abandon(StageProjection, err)
	}
	log.Debug("reconciled geometry", "transform", transform.Kind(), "image", image.Path)

	sc := &slideContext{
		id:        slideID,
		log:       log,
		source:    image,
		projector: projector,
		seriesUID: util.GenerateDeterministicUID(r.cfg.Namespace + "/" + slideID + "/series"),
		report:    &report,
	}
	n := in.normalizer
	candidates := SlideUnits(slideID, n.HasROIs(slideID), n.HasCells(slideID), n.Sessions(slideID))
	contents := normalizeUnits(n, candidates)
	units := PlanUnits(candidates, func(u Unit) bool { return contents[u.Label()].empty() }, r.kinds)
	fmt.Fprintf(r.progress, "%s: %d unit(s), %s\n", slideID, len(units), transform.Kind())

	for _, unit := range units {
		if ctx.Err() != nil {
			break
		}
		report.Units = append(report.Units, r.runUnit(ctx, sc, contents[unit.Label()], unit))
	}
	r.metrics.SlideDone()
	return report
}

// unitContent is the normalized input of one unit.
type unitContent struct {
	rois  []annotation.ROIAnnotation
	cells []annotation.CellAnnotation
	errs  []*annotation.RecordError
}

func (c *unitContent) empty() bool {
	return c == nil || (len(c.rois) == 0 && len(c.cells) == 0)
}

// normalizeUnits normalizes every unit of a slide, keyed by unit label.
func normalizeUnits(n *annotation.Normalizer, units []Unit) map[string]*unitContent {
	contents := make(map[string]*unitContent, len(units))
	for _, u := range units {
		c := &unitContent{}
		if u.IsROI() {
			c.rois, c.errs = n.ROIs(u.SlideID)
		} else {
			c.cells, c.errs = n.Cells(u.SlideID, u.Session)
		}
		contents[u.Label()] = c
	}
	return contents
}

func (r *Runner) runUnit(ctx context.Context, sc *slideContext, content *unitContent, unit Unit) UnitResult {
	start := time.Now()
	res := UnitResult{Unit: unit}
	log := sc.log.With("unit", unit.Label())

	if r.cfg.Resume && r.ledger != nil {
		done, err := r.ledger.Done(ctx, sc.id, unit.Label())
		if err != nil {
			log.Warn("could not query ledger", "error", err)
		} else if done {
			res.Skipped = true
			r.metrics.UnitSkipped(string(unit.Kind))
			log.Debug("unit already converted, skipping")
			fmt.Fprintf(r.progress, "  - %s: already converted\n", unit.Label())
			return res
		}
	}

	fail := func(stage Stage, err error) UnitResult {
		res.Stage, res.Err = stageOf(err, stage), err
		r.fail(sc.id, unit.Label(), res.Stage, err)
		r.metrics.UnitFailed(string(unit.Kind), string(res.Stage))
		fmt.Fprintf(r.progress, "  ✗ %s: %v\n", unit.Label(), err)
		return res
	}

	r.recordErrors(sc, unit, content.errs)
	if content.empty() {
		res.Empty = true
		log.Warn("no annotations left after normalization, nothing written")
		fmt.Fprintf(r.progress, "  - %s: no annotations\n", unit.Label())
		return res
	}
	groups, err := r.buildGroups(sc, content, unit)
	if err != nil {
		return fail(StageEncoding, err)
	}

	obj := &dicom.AnnotationObject{
		Source:            sc.source,
		SeriesUID:         sc.seriesUID,
		SOPInstanceUID:    util.GenerateDeterministicUID(r.cfg.Namespace + "/" + sc.id + "/" + unit.Label()),
		SeriesNumber:      r.cfg.SeriesNumber,
		InstanceNumber:    unit.InstanceNumber,
		ROI:               unit.IsROI(),
		Session:           unit.Session,
		Coordinates:       r.coords,
		Groups:            groups,
		Device:            r.cfg.Device,
		Trial:             r.cfg.ClinicalTrial,
		ContentDate:       r.now(),
		SeriesDescription: r.cfg.Descriptions.ForSession(unit.Session),
	}
	if unit.IsROI() {
		obj.SeriesDescription = r.cfg.Descriptions.ForROIs()
	}
	for i := range groups {
		res.Annotations += groups[i].Len()
	}
	res.Groups = len(groups)

	path := filepath.Join(r.cfg.OutputDir, sc.id, unit.FileName())
	if err := dicom.WriteAnnotationObject(path, obj); err != nil {
		return fail(StageWrite, err)
	}
	res.Path = path

	if r.cfg.Preview {
		if err := r.writePreview(path, obj.ContentLabel(), sc.source.Frame); err != nil {
			return fail(StagePreview, err)
		}
	}
	if r.publisher != nil {
		url, err := r.publisher.Publish(ctx, path, sc.id+"/"+unit.FileName())
		if err != nil {
			return fail(StagePublish, err)
		}
		res.URL = url
	}
	if r.ledger != nil {
		err := r.ledger.Record(ctx, ledger.Entry{
			SlideID:        sc.id,
			Unit:           unit.Label(),
			SeriesUID:      obj.SeriesUID,
			SOPInstanceUID: obj.SOPInstanceUID,
			Path:           path,
			Annotations:    res.Annotations,
		})
		if err != nil {
			return fail(StageLedger, err)
		}
	}

	r.metrics.UnitDone(string(unit.Kind), res.Annotations, res.Groups, time.Since(start))
	log.Info("wrote annotation object",
		"path", path,
		"instance", unit.InstanceNumber,
		"groups", res.Groups,
		"annotations", res.Annotations)
	fmt.Fprintf(r.progress, "  ✓ %s: %d annotation(s) in %d group(s)\n", unit.Label(), res.Annotations, res.Groups)
	return res
}

// buildGroups projects and groups the annotations of a unit.
func (r *Runner) buildGroups(sc *slideContext, content *unitContent, unit Unit) ([]dicom.AnnotationGroup, error) {
	if unit.IsROI() {
		boxes := make([]annotation.BoundingBox, len(content.rois))
		for i, roi := range content.rois {
			boxes[i] = roi.Box
		}
		data, err := sc.projector.ProjectAll(boxes)
		if err != nil {
			return nil, err
		}
		group, err := dicom.BuildROIGroup(content.rois, data, r.table, r.graphic)
		if err != nil {
			return nil, err
		}
		return []dicom.AnnotationGroup{group}, nil
	}

	boxes := make([]annotation.BoundingBox, len(content.cells))
	for i, c := range content.cells {
		boxes[i] = c.Box
	}
	data, err := sc.projector.ProjectAll(boxes)
	if err != nil {
		return nil, err
	}
	return dicom.BuildCellGroups(content.cells, data, r.table, r.graphic)
}

func (r *Runner) recordErrors(sc *slideContext, unit Unit, errs []*annotation.RecordError) {
	for _, err := range errs {
		sc.report.RecordErrors++
		r.fail(sc.id, unit.Label(), StageInput, err)
	}
}

// writePreview renders the object read back from path, which also checks
// that the written file decodes.
func (r *Runner) writePreview(path, title string, frame *geometry.Frame) error {
	decoded, err := dicom.ReadAnnotationObject(path)
	if err != nil {
		return err
	}
	img, err := preview.Render(decoded, preview.Options{Frame: frame, Title: title})
	if err != nil {
		return err
	}
	ext := filepath.Ext(path)
	return preview.WritePNG(path[:len(path)-len(ext)]+".png", img)
}

// fail logs one failure and appends it to the error log.
func (r *Runner) fail(slideID, unit string, stage Stage, err error) {
	now := r.now()
	r.log.Error("conversion failure",
		"slide", slideID,
		"unit", unit,
		"stage", string(stage),
		"error", err.Error(),
		"time", now.Format(time.RFC3339))
	if r.errlog == nil {
		return
	}
	if werr := r.errlog.Append(ErrorLogEntry{SlideID: slideID, Unit: unit, Stage: stage, Message: err.Error(), Time: now}); werr != nil {
		r.log.Warn("could not append to error log", "error", werr)
	}
}
