/*
Copyright © 2019 the nctiff authors.
This file is part of nctiff.

nctiff is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

nctiff is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with nctiff.  If not, see <http://www.gnu.org/licenses/>.
*/

package nctiff

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/spatialmodel/nctiff/cloud"
)

// DefaultNoData is the conventional nodata value for output rasters.
const DefaultNoData = -999

// DefaultLogName is the name of the outcome log created in the output
// folder when no log file is configured.
const DefaultLogName = "nctiff.log"

// VariableSpec maps source variable names to the short tokens used in
// output file names.
type VariableSpec map[string]string

// Names returns the variable names in sorted order.
func (v VariableSpec) Names() []string {
	names := make([]string, 0, len(v))
	for n := range v {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// BatchConfig holds the settings of a batch conversion.
type BatchConfig struct {
	Variables VariableSpec

	// Window selects the timesteps to convert. nil selects all of them.
	Window *TimeWindow

	// Concurrency is the number of jobs run at once. Zero means
	// runtime.NumCPU().
	Concurrency int

	// OutputDir is a local directory or a blob storage path.
	OutputDir string

	// NoData is written in place of missing values. nil means
	// DefaultNoData.
	NoData   *float64
	DataType DataType

	// Override, if not nil, replaces the georeferencing of every source.
	Override *GridOverride

	// NameTemplate and DateLayout define output file names; see Filename.
	NameTemplate string
	DateLayout   string

	// LogFile is the outcome log. It defaults to DefaultLogName in the
	// output folder.
	LogFile string

	// MetricsFile, if set, receives the run metrics in the Prometheus
	// text format when the run completes.
	MetricsFile string

	// Logger receives diagnostic messages. It defaults to the logrus
	// standard logger.
	Logger logrus.FieldLogger
}

// noData returns the configured nodata value.
func (c *BatchConfig) noData() float64 {
	if c.NoData == nil {
		return DefaultNoData
	}
	return *c.NoData
}

func (c *BatchConfig) setDefaults() {
	if c.Concurrency == 0 {
		c.Concurrency = runtime.NumCPU()
	}
	if c.DataType == 0 {
		c.DataType = DefaultDataType
	}
	if c.NameTemplate == "" {
		c.NameTemplate = DefaultNameTemplate
	}
	if c.DateLayout == "" {
		c.DateLayout = DefaultDateLayout
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
}

// Validate returns all problems with the configuration at once.
func (c *BatchConfig) Validate() error {
	var result error
	if len(c.Variables) == 0 {
		result = multierror.Append(result, fmt.Errorf("no variables to convert"))
	}
	for _, v := range c.Variables.Names() {
		tok := c.Variables[v]
		if v == "" {
			result = multierror.Append(result, fmt.Errorf("empty variable name"))
		}
		if tok == "" || strings.ContainsAny(tok, `/\`) {
			result = multierror.Append(result, fmt.Errorf("invalid token %q for variable %q", tok, v))
		}
	}
	if c.Concurrency < 0 {
		result = multierror.Append(result, fmt.Errorf("concurrency must not be negative but is %d", c.Concurrency))
	}
	if c.OutputDir == "" {
		result = multierror.Append(result, fmt.Errorf("no output folder"))
	}
	if err := checkNoData(c.noData(), c.DataType); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.Window.Check(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.Override.Check(); err != nil {
		result = multierror.Append(result, err)
	}
	for _, w := range []string{"[DATE]", "[ID]", "[TOKEN]"} {
		if !strings.Contains(c.NameTemplate, w) {
			result = multierror.Append(result, fmt.Errorf("name template %q is missing %s", c.NameTemplate, w))
		}
	}
	if strings.ContainsAny(c.NameTemplate, `/\`) {
		result = multierror.Append(result, fmt.Errorf("name template %q contains a path separator", c.NameTemplate))
	}
	if result != nil {
		return errors.Wrap(result, "nctiff: invalid configuration")
	}
	return nil
}

// SkippedSource is a source file that could not be opened.
type SkippedSource struct {
	Source string
	Err    error
}

// Report summarizes a batch run.
type Report struct {
	RunID string

	// Outcomes holds one entry per enumerated job, sorted by source,
	// timestep and variable.
	Outcomes []Outcome

	Skipped []SkippedSource
}

// Succeeded returns the number of successful jobs.
func (r *Report) Succeeded() int {
	n := 0
	for i := range r.Outcomes {
		if r.Outcomes[i].OK() {
			n++
		}
	}
	return n
}

// Failed returns the number of failed jobs.
func (r *Report) Failed() int { return len(r.Outcomes) - r.Succeeded() }

// Batch converts every selected timestep of every configured variable
// of a set of netCDF files into GeoTIFF files.
type Batch struct {
	cfg     BatchConfig
	log     logrus.FieldLogger
	Metrics *Metrics
}

// NewBatch validates cfg and returns a Batch ready to run.
func NewBatch(cfg BatchConfig) (*Batch, error) {
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Batch{
		cfg:     cfg,
		log:     cfg.Logger,
		Metrics: NewMetrics(),
	}, nil
}

// sourceHandle closes a dataset once the last of its jobs is done.
type sourceHandle struct {
	d       *Dataset
	pending int32
	cleanup func()
}

func (h *sourceHandle) release(log logrus.FieldLogger) {
	if atomic.AddInt32(&h.pending, -1) != 0 {
		return
	}
	if err := h.d.Close(); err != nil {
		log.WithError(err).WithField("file", h.d.Path).Warn("nctiff: closing source")
	}
	if h.cleanup != nil {
		h.cleanup()
	}
}

// run holds the state of one call to Batch.Run.
type run struct {
	*Batch
	ctx       context.Context
	id        string
	outDir    string // local folder the rasters are written to
	publishTo string // blob folder the rasters are uploaded to, if any
	inDir     string // local folder blob sources are fetched to
	events    *logrus.Logger

	// dests maps each output path to the job that claimed it. It is
	// only used by convertSource.
	dests map[string]*Job

	mu     sync.Mutex
	report *Report
}

// Run converts sources, which are local paths or blob storage paths.
// A source that cannot be opened is logged and skipped. Every job
// enumerated from the opened sources yields exactly one Outcome.
// The returned error is non-nil only if the run could not start, or
// if ctx was cancelled, in which case jobs not yet started are
// reported as failed.
func (b *Batch) Run(ctx context.Context, sources []string) (*Report, error) {
	r := &run{
		Batch:  b,
		ctx:    ctx,
		id:     uuid.New().String(),
		outDir: b.cfg.OutputDir,
		dests:  make(map[string]*Job),
	}
	r.report = &Report{RunID: r.id}

	if cloud.IsBlob(b.cfg.OutputDir) {
		staging, err := os.MkdirTemp("", "nctiff-out-")
		if err != nil {
			return nil, fmt.Errorf("nctiff: creating output staging folder: %v", err)
		}
		defer os.RemoveAll(staging)
		r.outDir, r.publishTo = staging, b.cfg.OutputDir
	}
	if err := os.MkdirAll(r.outDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("nctiff: creating output folder: %v", err)
	}

	logPath, publishLog := b.cfg.LogFile, ""
	if logPath == "" {
		logPath = filepath.Join(r.outDir, DefaultLogName)
		if r.publishTo != "" {
			publishLog = publishPath(r.publishTo, DefaultLogName)
			// Continue the existing log, if there is one.
			if _, err := cloud.Fetch(ctx, b.log, publishLog, r.outDir); err != nil {
				b.log.WithError(err).Debug("nctiff: no existing outcome log")
			}
		}
	}
	events, logFile, err := openOutcomeLog(logPath)
	if err != nil {
		return nil, err
	}
	r.events = events
	defer logFile.Close()

	r.events.WithFields(logrus.Fields{
		"run_id": r.id,
		"folder": b.cfg.OutputDir,
	}).Info("output folder ready")

	for _, src := range sources {
		if cloud.IsBlob(src) && r.inDir == "" {
			if r.inDir, err = os.MkdirTemp("", "nctiff-in-"); err != nil {
				return nil, fmt.Errorf("nctiff: creating input staging folder: %v", err)
			}
			defer os.RemoveAll(r.inDir)
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(b.cfg.Concurrency)
	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		r.convertSource(g, src)
	}
	g.Wait()

	sort.Slice(r.report.Outcomes, func(i, j int) bool {
		x, y := &r.report.Outcomes[i], &r.report.Outcomes[j]
		if x.Source != y.Source {
			return x.Source < y.Source
		}
		if x.Index != y.Index {
			return x.Index < y.Index
		}
		return x.Variable < y.Variable
	})

	b.Metrics.recordCompletion()
	r.events.WithFields(logrus.Fields{
		"run_id":    r.id,
		"jobs":      len(r.report.Outcomes),
		"succeeded": r.report.Succeeded(),
		"failed":    r.report.Failed(),
		"skipped":   len(r.report.Skipped),
	}).Info("batch complete")
	b.log.WithFields(logrus.Fields{
		"run_id":    r.id,
		"succeeded": r.report.Succeeded(),
		"failed":    r.report.Failed(),
		"skipped":   len(r.report.Skipped),
	}).Info("nctiff: batch complete")

	if b.cfg.MetricsFile != "" {
		if err := b.Metrics.WriteTextfile(b.cfg.MetricsFile); err != nil {
			b.log.WithError(err).Error("nctiff: writing metrics")
		}
	}
	if publishLog != "" {
		logFile.Close()
		if err := cloud.Publish(ctx, b.log, logPath, publishLog); err != nil {
			b.log.WithError(err).Error("nctiff: publishing outcome log")
		}
	}
	return r.report, ctx.Err()
}

// convertSource opens src and dispatches its jobs to g.
func (r *run) convertSource(g *errgroup.Group, src string) {
	local, cleanup := src, func() {}
	if cloud.IsBlob(src) {
		// Sources in different folders may share a base name.
		dir, err := os.MkdirTemp(r.inDir, "src-")
		if err != nil {
			r.skip(src, &DatasetOpenError{Path: src, Err: err})
			return
		}
		p, err := cloud.Fetch(r.ctx, r.log, src, dir)
		if err != nil {
			os.RemoveAll(dir)
			r.skip(src, &DatasetOpenError{Path: src, Err: err})
			return
		}
		local, cleanup = p, func() { os.RemoveAll(dir) }
	}

	d, err := Open(local, r.cfg.Override, r.cfg.Variables.Names()...)
	if err != nil {
		cleanup()
		r.skip(src, err)
		return
	}
	d.Path = src
	if d.TransformSource == TransformDefault {
		r.log.WithField("file", src).Warn("nctiff: no georeferencing found; using the default geotransform")
	}

	indices := Select(d.Times, r.cfg.Window)
	names := r.cfg.Variables.Names()
	n := len(indices) * len(names)
	if n == 0 {
		d.Close()
		cleanup()
		r.log.WithFields(logrus.Fields{"file": src, "window": r.cfg.Window}).Info("nctiff: no timesteps selected")
		return
	}
	h := &sourceHandle{d: d, pending: int32(n), cleanup: cleanup}
	for _, i := range indices {
		for _, v := range names {
			j := &Job{
				Dataset:  d,
				Variable: v,
				Token:    r.cfg.Variables[v],
				Index:    i,
				NoData:   r.cfg.noData(),
				DataType: r.cfg.DataType,
				RunID:    r.id,
			}
			name := Filename(r.cfg.NameTemplate, r.cfg.DateLayout, j.Date(), d.ID, j.Token)
			j.Dest = filepath.Join(r.outDir, name)
			if prev, ok := r.dests[j.Dest]; ok {
				r.record(r.failed(j, &OutputConflictError{
					Path:     publishPathOrLocal(r.publishTo, name, j.Dest),
					Source:   prev.Dataset.Path,
					Variable: prev.Variable,
					Index:    prev.Index,
				}), 0)
				h.release(r.log)
				continue
			}
			r.dests[j.Dest] = j
			if err := r.ctx.Err(); err != nil {
				r.record(r.failed(j, errors.Wrap(err, "nctiff: job not started")), 0)
				h.release(r.log)
				continue
			}
			g.Go(func() error {
				defer h.release(r.log)
				start := time.Now()
				o := j.Run()
				if o.OK() && r.publishTo != "" {
					r.publish(&o, name)
				}
				r.record(o, time.Since(start))
				return nil
			})
		}
	}
}

// failed returns the outcome of a job that was not run.
func (r *run) failed(j *Job, err error) Outcome {
	return Outcome{
		RunID:    r.id,
		Source:   j.Dataset.Path,
		Variable: j.Variable,
		Token:    j.Token,
		Index:    j.Index,
		Date:     j.Date(),
		Err:      err,
		Finished: time.Now(),
	}
}

// publish uploads a successfully written raster and removes the local
// copy.
func (r *run) publish(o *Outcome, name string) {
	dst := publishPath(r.publishTo, name)
	if err := cloud.Publish(r.ctx, r.log, o.Path, dst); err != nil {
		o.Err = &EncodeError{Path: dst, Err: err}
		o.Path = ""
		return
	}
	os.Remove(o.Path)
	o.Path = dst
}

// publishPathOrLocal returns where the output called name ends up:
// its blob path when publishing, local otherwise.
func publishPathOrLocal(publishTo, name, local string) string {
	if publishTo == "" {
		return local
	}
	return publishPath(publishTo, name)
}

func publishPath(dir, name string) string {
	loc, err := cloud.Parse(dir)
	if err != nil {
		return strings.TrimSuffix(dir, "/") + "/" + name
	}
	return loc.Join(name).String()
}

func (r *run) skip(src string, err error) {
	r.Metrics.recordSkipped()
	r.events.WithFields(logrus.Fields{
		"run_id": r.id,
		"file":   src,
	}).WithError(err).Error("could not open source file")
	r.log.WithField("file", src).WithError(err).Error("nctiff: skipping source")
	r.mu.Lock()
	r.report.Skipped = append(r.report.Skipped, SkippedSource{Source: src, Err: err})
	r.mu.Unlock()
}

func (r *run) record(o Outcome, d time.Duration) {
	r.Metrics.recordOutcome(&o, d)
	fields := logrus.Fields{
		"run_id":   r.id,
		"file":     o.Source,
		"variable": o.Variable,
		"index":    o.Index,
		"date":     o.Date.Format(time.RFC3339),
	}
	if o.OK() {
		fields["path"] = o.Path
		fields["stats"] = o.Stats.String()
		fields["digest"] = o.Digest
		r.events.WithFields(fields).Info("converted")
		r.log.WithFields(fields).Debug("nctiff: converted")
	} else {
		r.events.WithFields(fields).WithError(o.Err).Error("conversion failed")
		r.log.WithFields(fields).WithError(o.Err).Error("nctiff: conversion failed")
	}
	r.mu.Lock()
	r.report.Outcomes = append(r.report.Outcomes, o)
	r.mu.Unlock()
}

// openOutcomeLog opens path for appending and returns a logger that
// writes one timestamped line per event to it.
func openOutcomeLog(path string) (*logrus.Logger, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return nil, nil, fmt.Errorf("nctiff: creating log folder: %v", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("nctiff: opening log file: %v", err)
	}
	l := logrus.New()
	l.Out = f
	l.Formatter = &logrus.TextFormatter{
		FullTimestamp: true,
		DisableColors: true,
	}
	return l, f, nil
}
