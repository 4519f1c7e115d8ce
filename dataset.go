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
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ctessum/geom/proj"
	"github.com/pkg/errors"
)

// timeVar is the name of the time axis variable.
const timeVar = "time"

// defaultTimeUnits is used when the time variable carries no units attribute.
const defaultTimeUnits = "seconds since 1970-01-01 00:00:00"

// Sources of the geotransform of a Dataset.
const (
	TransformOverride    = "override"
	TransformGridMapping = "grid_mapping"
	TransformCoordinates = "coordinates"
	TransformDefault     = "default"
)

// Grid holds the spatial dimensions of a dataset.
type Grid struct {
	// Nx and Ny are the number of columns and rows.
	Nx, Ny int

	// BottomUp is true when the first row of the stored data is the
	// southernmost one. Rows are flipped on extraction so that output
	// rasters are always north-up.
	BottomUp bool
}

// GridOverride holds georeferencing information supplied by the caller
// for datasets whose own metadata is missing or unreliable.
// Zero-valued fields are not overridden.
type GridOverride struct {
	// GeoTransform, if not nil, must have 6 elements.
	GeoTransform []float64

	// CRS is a WKT or PROJ4 coordinate reference description.
	CRS string
}

// Check makes sure the override is usable.
func (o *GridOverride) Check() error {
	if o == nil {
		return nil
	}
	if o.GeoTransform != nil && len(o.GeoTransform) != 6 {
		return errors.Errorf("nctiff: geotransform override must have 6 coefficients but has %d", len(o.GeoTransform))
	}
	if o.CRS != "" {
		if _, err := proj.Parse(o.CRS); err != nil {
			return errors.Wrap(err, "nctiff: parsing CRS override")
		}
	}
	return nil
}

// Dataset is an open netCDF source file together with the metadata
// needed to export its variables.
type Dataset struct {
	// ID identifies the dataset in output file names.
	ID string

	// Path is the location of the source file.
	Path string

	// Times holds the decoded time axis.
	Times []time.Time

	Grid Grid

	// GeoTransform maps pixel column/row to world coordinates:
	// x = gt[0] + col*gt[1] + row*gt[2]; y = gt[3] + col*gt[4] + row*gt[5].
	GeoTransform [6]float64

	// TransformSource tells where GeoTransform came from.
	TransformSource string

	// CRS is the coordinate reference description, usually WKT.
	CRS string

	nc ncfile
}

// DatasetID returns the identifier of the dataset at path, which is the
// base file name up to the first '.'.
func DatasetID(path string) string {
	base := filepath.Base(path)
	if i := strings.Index(base, "."); i >= 0 {
		return base[:i]
	}
	return base
}

// Open opens the netCDF file at path and reads its metadata. Classic
// (CDF-1, CDF-2) and netCDF-4 files are supported.
// vars optionally lists the variables that will be extracted; the
// first one present in the file defines the spatial grid.
// o, if not nil, overrides the georeferencing read from the file.
func Open(path string, o *GridOverride, vars ...string) (*Dataset, error) {
	nc, err := openFile(path)
	if err != nil {
		return nil, err
	}
	d, err := open(nc, path, o, vars)
	if err != nil {
		nc.close()
		return nil, err
	}
	return d, nil
}

func open(nc ncfile, path string, o *GridOverride, vars []string) (*Dataset, error) {
	d := &Dataset{
		ID:   DatasetID(path),
		Path: path,
		nc:   nc,
	}
	var err error
	if d.Times, err = d.readTimes(); err != nil {
		return nil, err
	}
	gridVar := d.gridVariable(vars)
	if gridVar == "" {
		return nil, openErrorf(path, "no gridded [time, y, x] variable found")
	}
	lengths, err := nc.lengths(gridVar)
	if err != nil {
		return nil, openError(path, err, "reading grid dimensions")
	}
	d.Grid.Nx = lengths[len(lengths)-1]
	d.Grid.Ny = lengths[len(lengths)-2]

	d.georeference(gridVar)
	if o != nil {
		if o.GeoTransform != nil {
			if len(o.GeoTransform) != 6 {
				return nil, openErrorf(path, "geotransform override has %d coefficients", len(o.GeoTransform))
			}
			copy(d.GeoTransform[:], o.GeoTransform)
			d.TransformSource = TransformOverride
		}
		if o.CRS != "" {
			d.CRS = o.CRS
		}
	}
	return d, nil
}

// Close releases the file handle.
func (d *Dataset) Close() error {
	if d.nc == nil {
		return nil
	}
	err := d.nc.close()
	d.nc = nil
	return err
}

func (d *Dataset) readTimes() ([]time.Time, error) {
	if dims := d.nc.dimensions(timeVar); len(dims) != 1 {
		return nil, openErrorf(d.Path, "no 1-dimensional time variable")
	}
	vals, err := d.nc.readAll(timeVar)
	if err != nil {
		return nil, openError(d.Path, err, "reading time axis")
	}
	if len(vals) == 0 {
		return []time.Time{}, nil
	}
	units, ok := attrString(d.nc, timeVar, "units")
	if !ok {
		units = defaultTimeUnits
	}
	calendar, _ := attrString(d.nc, timeVar, "calendar")
	times, err := DecodeTimes(vals, units, calendar)
	if err != nil {
		return nil, openError(d.Path, err, "decoding time axis")
	}
	return times, nil
}

// gridVariable returns the variable that defines the spatial grid.
func (d *Dataset) gridVariable(vars []string) string {
	for _, v := range vars {
		if len(d.nc.dimensions(v)) >= 2 {
			return v
		}
	}
	for _, v := range d.nc.variables() {
		dims := d.nc.dimensions(v)
		if len(dims) == 3 && dims[0] == timeVar {
			return v
		}
	}
	return ""
}

// georeference sets the geotransform and CRS from the file metadata.
func (d *Dataset) georeference(gridVar string) {
	d.GeoTransform = [6]float64{0, 1, 0, 0, 0, 1}
	d.TransformSource = TransformDefault

	if gm, ok := attrString(d.nc, gridVar, "grid_mapping"); ok {
		gm = strings.TrimSpace(gm)
		for _, a := range []string{"spatial_ref", "crs_wkt"} {
			if wkt, ok := attrString(d.nc, gm, a); ok && wkt != "" {
				d.CRS = wkt
				break
			}
		}
		if s, ok := attrString(d.nc, gm, "GeoTransform"); ok {
			if gt, err := parseGeoTransform(s); err == nil {
				d.GeoTransform = gt
				d.TransformSource = TransformGridMapping
				return
			}
		}
	}

	dims := d.nc.dimensions(gridVar)
	xName, yName := dims[len(dims)-1], dims[len(dims)-2]
	x, errX := d.coordinate(xName)
	y, errY := d.coordinate(yName)
	if errX != nil || errY != nil || len(x) < 2 || len(y) < 2 {
		return
	}
	dx := (x[len(x)-1] - x[0]) / float64(len(x)-1)
	dy := (y[len(y)-1] - y[0]) / float64(len(y)-1)
	if dy > 0 {
		d.Grid.BottomUp = true
		d.GeoTransform = [6]float64{x[0] - dx/2, dx, 0, y[len(y)-1] + dy/2, 0, -dy}
	} else {
		d.GeoTransform = [6]float64{x[0] - dx/2, dx, 0, y[0] - dy/2, 0, dy}
	}
	d.TransformSource = TransformCoordinates
}

// coordinate reads the 1-D coordinate variable v.
func (d *Dataset) coordinate(v string) ([]float64, error) {
	if len(d.nc.dimensions(v)) != 1 {
		return nil, errors.Errorf("%s is not a coordinate variable", v)
	}
	return d.nc.readAll(v)
}

func parseGeoTransform(s string) ([6]float64, error) {
	var gt [6]float64
	fields := strings.Fields(strings.Replace(s, ",", " ", -1))
	if len(fields) != 6 {
		return gt, errors.Errorf("geotransform %q does not have 6 coefficients", s)
	}
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return gt, errors.Wrapf(err, "parsing geotransform %q", s)
		}
		gt[i] = v
	}
	return gt, nil
}

// attrString returns the string attribute a of variable v.
func attrString(nc ncfile, v, a string) (string, bool) {
	s, ok := nc.attribute(v, a).(string)
	if !ok {
		return "", false
	}
	return strings.TrimRight(s, "\x00"), true
}

// attrFloat returns the first value of the numeric attribute a of variable v.
func attrFloat(nc ncfile, v, a string) (float64, bool) {
	return toFloat(nc.attribute(v, a))
}

func toFloat(val interface{}) (float64, bool) {
	switch x := val.(type) {
	case []uint8:
		if len(x) > 0 {
			return float64(int8(x[0])), true
		}
	case []int16:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	case []int32:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	case []float32:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	case []float64:
		if len(x) > 0 {
			return x[0], true
		}
	case int8:
		return float64(x), true
	case uint8:
		return float64(int8(x)), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return math.NaN(), false
}
