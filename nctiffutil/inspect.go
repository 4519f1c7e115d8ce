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
	"fmt"
	"io"
	"math"
	"os"

	"github.com/ctessum/geom/proj"
	"github.com/spatialmodel/nctiff"
)

// Inspect writes a description of each of the given GeoTIFF files to w.
func Inspect(w io.Writer, paths ...string) error {
	for _, p := range paths {
		if err := inspect(w, expandPath(p)); err != nil {
			return err
		}
	}
	return nil
}

func inspect(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("nctiff: inspecting %s: %v", path, err)
	}
	defer f.Close()
	r, err := nctiff.ReadGeoTIFF(f)
	if err != nil {
		return fmt.Errorf("nctiff: inspecting %s: %v", path, err)
	}

	data := r.Data.Copy()
	if !math.IsNaN(r.NoData) {
		for i, v := range data.Elements {
			if v == r.NoData {
				data.Elements[i] = math.NaN()
			}
		}
	}
	s := nctiff.Summarize(data)
	b := r.Bounds()

	fmt.Fprintf(w, "%s\n", path)
	fmt.Fprintf(w, "  size:         %d x %d\n", r.Data.Shape[1], r.Data.Shape[0])
	fmt.Fprintf(w, "  data type:    %v\n", r.DataType)
	fmt.Fprintf(w, "  nodata:       %g\n", r.NoData)
	fmt.Fprintf(w, "  geotransform: %v\n", r.GeoTransform)
	fmt.Fprintf(w, "  bounds:       (%g, %g) - (%g, %g)\n", b.Min.X, b.Min.Y, b.Max.X, b.Max.Y)
	if r.CRS == "" {
		fmt.Fprintf(w, "  crs:          none\n")
	} else if sr, err := proj.Parse(r.CRS); err != nil {
		fmt.Fprintf(w, "  crs:          %s (unparsed: %v)\n", r.CRS, err)
	} else {
		fmt.Fprintf(w, "  crs:          %s (%s)\n", r.CRS, sr.Name)
	}
	fmt.Fprintf(w, "  pixels:       %v\n", s)
	return nil
}
