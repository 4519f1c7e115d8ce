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

// Package hash computes stable digests of raster metadata.
package hash

import (
	"encoding/gob"
	"fmt"
	"hash"
	"hash/fnv"

	"github.com/davecgh/go-spew/spew"
)

// Georef holds the metadata that determines where the pixels of a
// raster lie and how they are stored.
type Georef struct {
	GeoTransform [6]float64
	CRS          string
	Nx, Ny       int
	NoData       float64
	DataType     string
}

// Digest returns a hex digest of g. Equal inputs give equal digests
// across runs and processes.
func Digest(g Georef) string {
	h := fnv.New128a()
	if err := gob.NewEncoder(h).Encode(g); err != nil {
		h.Reset()
		spewTo(h, g)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

func spewTo(h hash.Hash, object interface{}) {
	printer := spew.ConfigState{
		Indent:                  " ",
		SortKeys:                true,
		DisableMethods:          true,
		DisablePointerAddresses: true,
		DisableCapacities:       true,
	}
	printer.Fprintf(h, "%#v", object)
}
