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
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/spatialmodel/nctiff/internal/nctest"
)

const testVar = "__xarray_dataarray_variable__"

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// writeTestFile writes f to a new file named name in a temporary
// directory and returns its path.
func writeTestFile(t *testing.T, dir, name string, f nctest.File) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := f.Write(path); err != nil {
		t.Fatal(err)
	}
	return path
}

// siteFile returns a 4x3 file with one variable holding a ramp and
// grid mapping georeferencing.
func siteFile(times ...time.Time) nctest.File {
	return nctest.File{
		Nx:    4,
		Ny:    3,
		Times: times,
		Vars: []nctest.Var{{
			Name:  testVar,
			Data:  nctest.Ramp(len(times) * 12),
			Attrs: map[string]interface{}{"_FillValue": []float32{-9999}},
		}},
		GeoTransform: "1000 250 0 -2000 0 -250",
		CRS:          nctest.Albers,
	}
}

func TestOpen(t *testing.T) {
	times := []time.Time{date(2010, 3, 4), date(2010, 3, 5)}
	path := writeTestFile(t, t.TempDir(), "siteA.VSPI.nc", siteFile(times...))
	d, err := Open(path, nil, testVar)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if d.ID != "siteA" {
		t.Errorf("ID: have %q, want siteA", d.ID)
	}
	if !reflect.DeepEqual(d.Times, times) {
		t.Errorf("times: have %v, want %v", d.Times, times)
	}
	if d.Grid != (Grid{Nx: 4, Ny: 3}) {
		t.Errorf("grid: have %+v", d.Grid)
	}
	wantGT := [6]float64{1000, 250, 0, -2000, 0, -250}
	if d.GeoTransform != wantGT {
		t.Errorf("geotransform: have %v, want %v", d.GeoTransform, wantGT)
	}
	if d.TransformSource != TransformGridMapping {
		t.Errorf("transform source: have %s, want %s", d.TransformSource, TransformGridMapping)
	}
	if d.CRS != nctest.Albers {
		t.Errorf("CRS: have %q", d.CRS)
	}
}

func TestOpenCoordinates(t *testing.T) {
	f := nctest.File{
		Nx:    3,
		Ny:    2,
		Times: []time.Time{date(2001, 1, 1)},
		X:     []float64{5, 15, 25},
		Y:     []float64{5, 15}, // south to north
		Vars:  []nctest.Var{{Name: "v", Data: nctest.Ramp(6)}},
	}
	d, err := Open(writeTestFile(t, t.TempDir(), "coords.nc", f), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if d.TransformSource != TransformCoordinates {
		t.Errorf("transform source: have %s, want %s", d.TransformSource, TransformCoordinates)
	}
	wantGT := [6]float64{0, 10, 0, 20, 0, -10}
	if d.GeoTransform != wantGT {
		t.Errorf("geotransform: have %v, want %v", d.GeoTransform, wantGT)
	}
	if !d.Grid.BottomUp {
		t.Error("grid should be bottom-up")
	}
	a, err := d.Extract("v", 0)
	if err != nil {
		t.Fatal(err)
	}
	// The northern row is stored last.
	want := []float64{3, 4, 5, 0, 1, 2}
	if !reflect.DeepEqual(a.Elements, want) {
		t.Errorf("extracted values: have %v, want %v", a.Elements, want)
	}
}

func TestOpenDefaultTransform(t *testing.T) {
	f := nctest.File{
		Nx:    2,
		Ny:    2,
		Times: []time.Time{date(2001, 1, 1)},
		Vars:  []nctest.Var{{Name: "v", Data: nctest.Ramp(4)}},
	}
	d, err := Open(writeTestFile(t, t.TempDir(), "plain.nc", f), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	if d.TransformSource != TransformDefault {
		t.Errorf("transform source: have %s, want %s", d.TransformSource, TransformDefault)
	}
	if d.GeoTransform != [6]float64{0, 1, 0, 0, 0, 1} {
		t.Errorf("geotransform: have %v", d.GeoTransform)
	}
	if d.CRS != "" {
		t.Errorf("CRS should be empty but is %q", d.CRS)
	}
}

func TestOpenOverride(t *testing.T) {
	path := writeTestFile(t, t.TempDir(), "siteA.nc", siteFile(date(2010, 1, 1)))
	o := &GridOverride{
		GeoTransform: []float64{1, 2, 0, 3, 0, -2},
		CRS:          "+proj=longlat +datum=WGS84",
	}
	if err := o.Check(); err != nil {
		t.Fatal(err)
	}
	d, err := Open(path, o)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	if d.GeoTransform != [6]float64{1, 2, 0, 3, 0, -2} || d.TransformSource != TransformOverride {
		t.Errorf("geotransform: have %v from %s", d.GeoTransform, d.TransformSource)
	}
	if d.CRS != o.CRS {
		t.Errorf("CRS: have %q, want %q", d.CRS, o.CRS)
	}
}

func TestGridOverrideCheck(t *testing.T) {
	for _, test := range []struct {
		name string
		o    *GridOverride
		ok   bool
	}{
		{name: "nil", o: nil, ok: true},
		{name: "crs only", o: &GridOverride{CRS: nctest.Albers}, ok: true},
		{name: "short geotransform", o: &GridOverride{GeoTransform: []float64{1, 2, 3}}},
		{name: "bad crs", o: &GridOverride{CRS: "not a projection"}},
	} {
		t.Run(test.name, func(t *testing.T) {
			err := test.o.Check()
			if test.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !test.ok && err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.nc")
	if err := os.WriteFile(garbage, []byte("this is not netCDF"), 0644); err != nil {
		t.Fatal(err)
	}
	noleap := siteFile(date(2010, 1, 1))
	noleap.Calendar = "noleap"
	badUnits := siteFile(date(2010, 1, 1))
	badUnits.TimeUnits = "fortnights since 2000-01-01"

	for _, test := range []struct {
		name string
		path string
	}{
		{name: "missing", path: filepath.Join(dir, "missing.nc")},
		{name: "garbage", path: garbage},
		{name: "calendar", path: writeTestFile(t, dir, "noleap.nc", noleap)},
		{name: "units", path: writeTestFile(t, dir, "units.nc", badUnits)},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := Open(test.path, nil)
			var oe *DatasetOpenError
			if !errors.As(err, &oe) {
				t.Fatalf("want *DatasetOpenError, have %T: %v", err, err)
			}
			if oe.Path != test.path {
				t.Errorf("path: have %s, want %s", oe.Path, test.path)
			}
		})
	}
}

func TestOpenDefaultTimeUnits(t *testing.T) {
	f := siteFile(date(2010, 3, 4))
	f.NoTimeUnits = true
	d, err := Open(writeTestFile(t, t.TempDir(), "a.nc", f), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	if !d.Times[0].Equal(date(2010, 3, 4)) {
		t.Errorf("time: have %v", d.Times[0])
	}
}

func TestExtract(t *testing.T) {
	f := siteFile(date(2010, 1, 1), date(2010, 1, 2))
	f.Vars[0].Data[12] = -9999 // first pixel of the second timestep
	f.Vars = append(f.Vars, nctest.Var{
		Name: "packed",
		Data: nctest.Ramp(24),
		Attrs: map[string]interface{}{
			"scale_factor":  []float32{0.5},
			"add_offset":    []float32{10},
			"missing_value": []float32{23},
		},
	})
	d, err := Open(writeTestFile(t, t.TempDir(), "a.nc", f), nil, testVar)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	a, err := d.Extract(testVar, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.Shape, []int{3, 4}) {
		t.Fatalf("shape: have %v, want [3 4]", a.Shape)
	}
	if !math.IsNaN(a.Get(0, 0)) {
		t.Errorf("fill value should be NaN but is %g", a.Get(0, 0))
	}
	if a.Get(2, 3) != 23 {
		t.Errorf("last value: have %g, want 23", a.Get(2, 3))
	}

	p, err := d.Extract("packed", 1)
	if err != nil {
		t.Fatal(err)
	}
	if p.Get(0, 0) != 12*0.5+10 {
		t.Errorf("packed value: have %g, want 16", p.Get(0, 0))
	}
	if !math.IsNaN(p.Get(2, 3)) {
		t.Errorf("missing value should be NaN but is %g", p.Get(2, 3))
	}
}

func TestExtractErrors(t *testing.T) {
	d, err := Open(writeTestFile(t, t.TempDir(), "a.nc", siteFile(date(2010, 1, 1))), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	var vnf *VariableNotFoundError
	if _, err := d.Extract("nope", 0); !errors.As(err, &vnf) {
		t.Errorf("missing variable: want *VariableNotFoundError, have %v", err)
	}
	if _, err := d.Extract("time", 0); !errors.As(err, &vnf) || vnf.Reason == "" {
		t.Errorf("1-D variable: want *VariableNotFoundError with a reason, have %v", err)
	}
	var ie *IndexError
	for _, i := range []int{-1, 1} {
		if _, err := d.Extract(testVar, i); !errors.As(err, &ie) {
			t.Errorf("index %d: want *IndexError, have %v", i, err)
		}
	}
}

func TestDatasetID(t *testing.T) {
	for path, want := range map[string]string{
		"/data/siteA.nc":         "siteA",
		"siteB.VSPI.2005.nc":     "siteB",
		"file:///data/siteC.nc":  "siteC",
		"gs://bucket/x/siteD.nc": "siteD",
		"noext":                  "noext",
	} {
		if have := DatasetID(path); have != want {
			t.Errorf("%s: have %q, want %q", path, have, want)
		}
	}
}

func TestOpenRecordDimension(t *testing.T) {
	f := siteFile(date(2010, 3, 4), date(2010, 3, 5), date(2010, 3, 6))
	f.Record = true
	d, err := Open(writeTestFile(t, t.TempDir(), "record.nc", f), nil, testVar)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if len(d.Times) != 3 || !d.Times[2].Equal(date(2010, 3, 6)) {
		t.Fatalf("times: %v", d.Times)
	}
	for i := range d.Times {
		a, err := d.Extract(testVar, i)
		if err != nil {
			t.Fatal(err)
		}
		first, last := float64(i*12), float64(i*12+11)
		if a.Get(0, 0) != first || a.Get(2, 3) != last {
			t.Errorf("index %d: have %g..%g, want %g..%g", i, a.Get(0, 0), a.Get(2, 3), first, last)
		}
	}
}

func TestOpenNativeReader(t *testing.T) {
	f := siteFile(date(2010, 3, 4), date(2010, 3, 5))
	// The netCDF default fill value marks missing data when there is
	// no _FillValue attribute.
	f.Vars = append(f.Vars, nctest.Var{
		Name: "nofill",
		Data: append([]float32{float32(9.9692099683868690e+36)}, nctest.Ramp(24)[1:]...),
	})
	path := writeTestFile(t, t.TempDir(), "siteA.nc", f)

	classic, err := Open(path, nil, testVar)
	if err != nil {
		t.Fatal(err)
	}
	defer classic.Close()
	nf, err := openNative(path)
	if err != nil {
		t.Fatal(err)
	}
	native, err := open(nf, path, nil, []string{testVar})
	if err != nil {
		nf.close()
		t.Fatal(err)
	}
	defer native.Close()

	if !reflect.DeepEqual(native.Times, classic.Times) {
		t.Errorf("times: have %v, want %v", native.Times, classic.Times)
	}
	if native.Grid != classic.Grid {
		t.Errorf("grid: have %+v, want %+v", native.Grid, classic.Grid)
	}
	if native.GeoTransform != classic.GeoTransform || native.TransformSource != TransformGridMapping {
		t.Errorf("geotransform: have %v (%s), want %v", native.GeoTransform, native.TransformSource, classic.GeoTransform)
	}
	if native.CRS != nctest.Albers {
		t.Errorf("crs: have %q", native.CRS)
	}
	for _, v := range []string{testVar, "nofill"} {
		for i := range classic.Times {
			want, err := classic.Extract(v, i)
			if err != nil {
				t.Fatal(err)
			}
			have, err := native.Extract(v, i)
			if err != nil {
				t.Fatal(err)
			}
			for k := range want.Elements {
				w, h := want.Elements[k], have.Elements[k]
				if w != h && !(math.IsNaN(w) && math.IsNaN(h)) {
					t.Errorf("%s[%d] element %d: have %g, want %g", v, i, k, h, w)
				}
			}
		}
	}
	a, err := native.Extract("nofill", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(a.Get(0, 0)) {
		t.Errorf("default fill value should be NaN but is %g", a.Get(0, 0))
	}
}

func TestOpenHDF5Signature(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken4.nc")
	b := append(append([]byte{}, hdf5Signature...), []byte("truncated netCDF-4 file")...)
	if err := os.WriteFile(path, b, 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path, nil)
	var oe *DatasetOpenError
	if !errors.As(err, &oe) {
		t.Fatalf("want *DatasetOpenError, have %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "netCDF-4") {
		t.Errorf("error should name the netCDF-4 reader: %v", err)
	}
}

func TestFlatten(t *testing.T) {
	vals, kind, err := flatten([][][]int16{{{1, 2}, {3, 4}}})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(vals, []float64{1, 2, 3, 4}) || kind != reflect.Int16 {
		t.Errorf("have %v %v", vals, kind)
	}
	if _, _, err := flatten([]string{"a"}); err == nil {
		t.Error("expected an error for strings")
	}
	if fv, ok := defaultFill(reflect.Int16); !ok || fv != -32767 {
		t.Errorf("int16 default fill: %g", fv)
	}
}
