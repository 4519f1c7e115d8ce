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

package nctiffutil

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spatialmodel/nctiff"
	"github.com/spatialmodel/nctiff/internal/nctest"
)

const testVar = "__xarray_dataarray_variable__"

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// writeSite creates a site folder holding two netCDF files with three
// daily timesteps each, plus a file that is not netCDF.
func writeSite(t *testing.T) string {
	t.Helper()
	site := t.TempDir()
	times := []time.Time{date(2010, 3, 4), date(2010, 3, 5), date(2010, 3, 6)}
	for _, id := range []string{"siteA", "siteB"} {
		f := nctest.File{
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
		if err := f.Write(filepath.Join(site, id+".nc")); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(site, "readme.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatal(err)
	}
	return site
}

func TestVersion(t *testing.T) {
	cfg := InitializeConfig()
	out := new(bytes.Buffer)
	cfg.Root.SetOut(out)
	cfg.Root.SetArgs([]string{"version"})
	if err := cfg.Root.Execute(); err != nil {
		t.Fatal(err)
	}
	if want := "nctiff v" + nctiff.Version + "\n"; out.String() != want {
		t.Errorf("have %q, want %q", out.String(), want)
	}
}

func TestConvert(t *testing.T) {
	site := writeSite(t)
	cfg := InitializeConfig()
	out := new(bytes.Buffer)
	cfg.Root.SetOut(out)
	cfg.Root.SetArgs([]string{"convert", site, "--dates", "04/03/2010,06/03/2010", "-j", "2"})
	if err := cfg.Root.Execute(); err != nil {
		t.Fatal(err)
	}
	if want := "converted 2 of 2 rasters; 0 source files skipped\n"; out.String() != want {
		t.Errorf("have %q, want %q", out.String(), want)
	}
	for _, name := range []string{"2010-03-05_siteA_VSPI.tif", "2010-03-05_siteB_VSPI.tif", nctiff.DefaultLogName} {
		if _, err := os.Stat(filepath.Join(site, "tiff", name)); err != nil {
			t.Error(err)
		}
	}
	if _, err := os.Stat(filepath.Join(site, "tiff", "2010-03-04_siteA_VSPI.tif")); !os.IsNotExist(err) {
		t.Error("timestep on the window start should not be converted")
	}
}

func TestConvertConfigFile(t *testing.T) {
	site := writeSite(t)
	output := t.TempDir()
	cfgFile := filepath.Join(t.TempDir(), "nctiff.toml")
	toml := `
output = "` + filepath.ToSlash(output) + `"
dtype = "float32"
nodata = -1.0
template = "[TOKEN]-[ID]-[DATE].tif"
date_layout = "20060102"

[variables]
` + testVar + ` = "X"
`
	if err := os.WriteFile(cfgFile, []byte(toml), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := InitializeConfig()
	cfg.Root.SetOut(new(bytes.Buffer))
	cfg.Root.SetArgs([]string{"convert", "--config", cfgFile, site})
	if err := cfg.Root.Execute(); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(output, "X-siteB-20100306.tif")
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	r, err := nctiff.ReadGeoTIFF(f)
	if err != nil {
		t.Fatal(err)
	}
	if r.DataType != nctiff.Float32 || r.NoData != -1 {
		t.Errorf("data type %v nodata %g", r.DataType, r.NoData)
	}
}

func TestConvertBadConfig(t *testing.T) {
	site := writeSite(t)
	cfg := InitializeConfig()
	cfg.Root.SetOut(new(bytes.Buffer))
	cfg.Root.SetErr(new(bytes.Buffer))
	cfg.Root.SetArgs([]string{"convert", site, "--dtype", "int16", "--nodata", "100000"})
	err := cfg.Root.Execute()
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("want a configuration error, have %v", err)
	}
}

func TestInspect(t *testing.T) {
	site := writeSite(t)
	cfg := InitializeConfig()
	cfg.Root.SetOut(new(bytes.Buffer))
	cfg.Root.SetArgs([]string{"convert", site})
	if err := cfg.Root.Execute(); err != nil {
		t.Fatal(err)
	}

	cfg = InitializeConfig()
	out := new(bytes.Buffer)
	cfg.Root.SetOut(out)
	path := filepath.Join(site, "tiff", "2010-03-04_siteA_VSPI.tif")
	cfg.Root.SetArgs([]string{"inspect", path})
	if err := cfg.Root.Execute(); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		path,
		"size:         4 x 3",
		"data type:    Int16",
		"nodata:       -999",
		"bounds:       (1000, -2750) - (2000, -2000)",
		"GDA94",
		"valid=12",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output is missing %q:\n%s", want, out.String())
		}
	}
}
