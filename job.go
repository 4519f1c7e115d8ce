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
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/spatialmodel/nctiff/internal/hash"
)

// Output file naming defaults. The wildcards [DATE], [ID] and [TOKEN]
// in a name template are replaced by the formatted timestep, the
// dataset ID and the variable token.
const (
	DefaultNameTemplate = "[DATE]_[ID]_[TOKEN].tif"
	DefaultDateLayout   = "2006-01-02"
)

// Filename expands a name template for one output raster.
func Filename(template, dateLayout string, date time.Time, id, token string) string {
	return strings.NewReplacer(
		"[DATE]", date.Format(dateLayout),
		"[ID]", id,
		"[TOKEN]", token,
	).Replace(template)
}

// Job converts one variable at one timestep of a dataset into a
// GeoTIFF file.
type Job struct {
	Dataset  *Dataset
	Variable string

	// Token is the short name of the variable used in output names.
	Token string

	// Index is the position of the timestep on the time axis.
	Index int

	// Dest is the path of the output file.
	Dest string

	NoData   float64
	DataType DataType

	// RunID identifies the batch the job belongs to.
	RunID string
}

// Date returns the timestamp of the job's timestep, or the zero time
// if Index is out of range.
func (j *Job) Date() time.Time {
	if j.Index < 0 || j.Index >= len(j.Dataset.Times) {
		return time.Time{}
	}
	return j.Dataset.Times[j.Index]
}

// Outcome is the result of running a Job. Err is nil on success.
type Outcome struct {
	RunID    string
	Source   string
	Variable string
	Token    string
	Index    int
	Date     time.Time

	// Path is where the raster was written. It is empty on failure.
	Path string

	Err error

	// Stats summarizes the extracted values before nodata substitution.
	Stats Stats

	// Digest identifies the georeferencing of the written raster.
	Digest string

	Finished time.Time
}

// OK returns whether the job succeeded.
func (o *Outcome) OK() bool { return o.Err == nil }

// Run extracts the job's slice, encodes it and writes it to j.Dest.
// Errors, including panics, are reported in the returned Outcome.
func (j *Job) Run() (o Outcome) {
	o = Outcome{
		RunID:    j.RunID,
		Source:   j.Dataset.Path,
		Variable: j.Variable,
		Token:    j.Token,
		Index:    j.Index,
		Date:     j.Date(),
	}
	defer func() {
		if p := recover(); p != nil {
			o.Path = ""
			o.Err = fmt.Errorf("nctiff: panic converting %s variable %s index %d: %v\n%s",
				j.Dataset.Path, j.Variable, j.Index, p, debug.Stack())
		}
		o.Finished = time.Now()
	}()

	data, err := j.Dataset.Extract(j.Variable, j.Index)
	if err != nil {
		o.Err = err
		return o
	}
	o.Stats = Summarize(data)
	r := &Raster{
		Data:         data,
		GeoTransform: j.Dataset.GeoTransform,
		CRS:          j.Dataset.CRS,
		NoData:       j.NoData,
		DataType:     j.DataType,
	}
	if err := EncodeFile(j.Dest, r); err != nil {
		o.Err = err
		return o
	}
	o.Path = j.Dest
	o.Digest = hash.Digest(hash.Georef{
		GeoTransform: r.GeoTransform,
		CRS:          r.CRS,
		Nx:           data.Shape[1],
		Ny:           data.Shape[0],
		NoData:       r.NoData,
		DataType:     r.DataType.String(),
	})
	return o
}
