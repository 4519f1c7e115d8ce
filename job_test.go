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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFilename(t *testing.T) {
	have := Filename(DefaultNameTemplate, DefaultDateLayout, date(2010, 3, 4), "siteA", "VSPI")
	if want := "2010-03-04_siteA_VSPI.tif"; have != want {
		t.Errorf("have %s, want %s", have, want)
	}
	have = Filename("[ID]_[DATE]_[TOKEN].tif", "2006-01-02-04-05", time.Date(2005, 6, 15, 10, 30, 0, 0, time.UTC), "b", "t")
	if want := "b_2005-06-15-30-00_t.tif"; have != want {
		t.Errorf("have %s, want %s", have, want)
	}
}

func TestJobRun(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(writeTestFile(t, dir, "siteA.nc", siteFile(date(2010, 3, 4))), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	newJob := func(v, name string) *Job {
		return &Job{
			Dataset:  d,
			Variable: v,
			Token:    "VSPI",
			Index:    0,
			Dest:     filepath.Join(dir, name),
			NoData:   -999,
			DataType: Int16,
			RunID:    "run",
		}
	}

	o := newJob(testVar, "a.tif").Run()
	if !o.OK() {
		t.Fatal(o.Err)
	}
	if o.Path != filepath.Join(dir, "a.tif") || o.RunID != "run" || !o.Date.Equal(date(2010, 3, 4)) {
		t.Errorf("outcome: %+v", o)
	}
	if o.Stats.Valid != 12 || o.Stats.Max != 11 {
		t.Errorf("stats: %+v", o.Stats)
	}
	if _, err := os.Stat(o.Path); err != nil {
		t.Error(err)
	}
	o2 := newJob(testVar, "b.tif").Run()
	if o.Digest == "" || o.Digest != o2.Digest {
		t.Errorf("digests should match: %q, %q", o.Digest, o2.Digest)
	}

	o = newJob("missing", "c.tif").Run()
	var vnf *VariableNotFoundError
	if !errors.As(o.Err, &vnf) {
		t.Errorf("want *VariableNotFoundError, have %v", o.Err)
	}
	if o.Path != "" || o.Variable != "missing" || o.Source != d.Path {
		t.Errorf("failure outcome: %+v", o)
	}
	if _, err := os.Stat(filepath.Join(dir, "c.tif")); !os.IsNotExist(err) {
		t.Error("failed job should not write a file")
	}
}

func TestJobRunPanic(t *testing.T) {
	j := &Job{
		Dataset:  &Dataset{Path: "broken.nc", Times: []time.Time{date(2001, 1, 1)}},
		Variable: "v",
		Dest:     filepath.Join(t.TempDir(), "x.tif"),
		DataType: Int16,
	}
	o := j.Run()
	if o.Err == nil || !strings.Contains(o.Err.Error(), "panic") {
		t.Errorf("want a recovered panic, have %v", o.Err)
	}
	if o.Finished.IsZero() {
		t.Error("finish time not set")
	}
}
