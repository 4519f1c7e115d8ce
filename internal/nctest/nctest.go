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

// Package nctest writes small netCDF files for tests.
package nctest

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/ctessum/cdf"
)

// Albers is the GDA94 / Australian Albers coordinate system.
const Albers = `PROJCS["GDA94 / Australian Albers",GEOGCS["GDA94",DATUM["Geocentric_Datum_of_Australia_1994",SPHEROID["GRS 1980",6378137,298.257222101,AUTHORITY["EPSG","7019"]],TOWGS84[0,0,0,0,0,0,0],AUTHORITY["EPSG","6283"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.01745329251994328,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4283"]],UNIT["metre",1,AUTHORITY["EPSG","9001"]],PROJECTION["Albers_Conic_Equal_Area"],PARAMETER["standard_parallel_1",-18],PARAMETER["standard_parallel_2",-36],PARAMETER["latitude_of_center",0],PARAMETER["longitude_of_center",132],PARAMETER["false_easting",0],PARAMETER["false_northing",0],AUTHORITY["EPSG","3577"],AXIS["Easting",EAST],AXIS["Northing",NORTH]]`

// Var is a [time, y, x] data variable.
type Var struct {
	Name string

	// Data holds the values in storage order, time-major.
	Data []float32

	// Attrs are added to the variable, e.g. _FillValue or scale_factor.
	Attrs map[string]interface{}
}

// File describes a netCDF file with a time axis and a regular grid.
type File struct {
	Nx, Ny int

	// Times are stored as seconds since 1970-01-01 unless TimeValues
	// is set.
	Times []time.Time

	// TimeValues, TimeUnits and Calendar override the time encoding.
	TimeValues []float64
	TimeUnits  string
	Calendar   string

	// NoTimeUnits leaves out the units attribute of the time variable.
	NoTimeUnits bool

	Vars []Var

	// GeoTransform and CRS, if set, are stored on a 'spatial_ref'
	// grid mapping variable referenced by every data variable.
	GeoTransform string
	CRS          string

	// X and Y, if set, are stored as coordinate variables.
	X, Y []float64

	// Record makes time the unlimited (record) dimension.
	Record bool
}

// Write creates the file at path.
func (f File) Write(path string) error {
	nt := len(f.Times)
	if f.TimeValues != nil {
		nt = len(f.TimeValues)
	}
	ntDim := nt
	if f.Record {
		ntDim = 0
	}
	h := cdf.NewHeader([]string{"time", "y", "x"}, []int{ntDim, f.Ny, f.Nx})

	times := f.TimeValues
	if times == nil {
		times = make([]float64, len(f.Times))
		for i, t := range f.Times {
			times[i] = float64(t.Unix())
		}
	}
	h.AddVariable("time", []string{"time"}, []float64{})
	if !f.NoTimeUnits {
		units := f.TimeUnits
		if units == "" {
			units = "seconds since 1970-01-01 00:00:00"
		}
		h.AddAttribute("time", "units", units)
	}
	if f.Calendar != "" {
		h.AddAttribute("time", "calendar", f.Calendar)
	}
	if f.X != nil {
		h.AddVariable("x", []string{"x"}, []float64{})
	}
	if f.Y != nil {
		h.AddVariable("y", []string{"y"}, []float64{})
	}
	mapped := f.GeoTransform != "" || f.CRS != ""
	for _, v := range f.Vars {
		h.AddVariable(v.Name, []string{"time", "y", "x"}, []float32{})
		keys := make([]string, 0, len(v.Attrs))
		for k := range v.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			h.AddAttribute(v.Name, k, v.Attrs[k])
		}
		if mapped {
			h.AddAttribute(v.Name, "grid_mapping", "spatial_ref")
		}
	}
	if mapped {
		h.AddVariable("spatial_ref", []string{}, []int32{})
		if f.GeoTransform != "" {
			h.AddAttribute("spatial_ref", "GeoTransform", f.GeoTransform)
		}
		if f.CRS != "" {
			h.AddAttribute("spatial_ref", "spatial_ref", f.CRS)
		}
	}
	h.Define()

	w, err := os.Create(path)
	if err != nil {
		return err
	}
	defer w.Close()
	nc, err := cdf.Create(w, h)
	if err != nil {
		return fmt.Errorf("nctest: creating %s: %v", path, err)
	}
	write := func(name string, vals interface{}) error {
		// The writer reports io.EOF once a fixed-size variable is full.
		if _, err := nc.Writer(name, nil, nil).Write(vals); err != nil && err != io.EOF {
			return fmt.Errorf("nctest: writing %s: %v", name, err)
		}
		return nil
	}
	if err := write("time", times); err != nil {
		return err
	}
	if f.X != nil {
		if err := write("x", f.X); err != nil {
			return err
		}
	}
	if f.Y != nil {
		if err := write("y", f.Y); err != nil {
			return err
		}
	}
	for _, v := range f.Vars {
		if len(v.Data) != nt*f.Ny*f.Nx {
			return fmt.Errorf("nctest: variable %s has %d values but should have %d", v.Name, len(v.Data), nt*f.Ny*f.Nx)
		}
		if err := write(v.Name, v.Data); err != nil {
			return err
		}
	}
	if mapped {
		if err := write("spatial_ref", []int32{0}); err != nil {
			return err
		}
	}
	return w.Close()
}

// Ramp returns n values 0, 1, 2, ...
func Ramp(n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = float32(i)
	}
	return v
}
