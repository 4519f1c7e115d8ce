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
	"math"
	"strings"
)

// DataType is the pixel data type of an output raster.
type DataType int

// Supported pixel data types. The names follow GDAL's.
const (
	Byte DataType = iota + 1
	UInt16
	Int16
	UInt32
	Int32
	Float32
	Float64
)

// DefaultDataType is used when no data type is configured. Values
// with fractional precision must be scaled by the caller before
// encoding; no implicit scaling is done.
const DefaultDataType = Int16

var dataTypeNames = map[DataType]string{
	Byte:    "Byte",
	UInt16:  "UInt16",
	Int16:   "Int16",
	UInt32:  "UInt32",
	Int32:   "Int32",
	Float32: "Float32",
	Float64: "Float64",
}

func (t DataType) String() string {
	if s, ok := dataTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("DataType(%d)", int(t))
}

// ParseDataType parses a data type name such as "int16", "Int16" or
// "GDT_Int16".
func ParseDataType(s string) (DataType, error) {
	name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "gdt_")
	for t, n := range dataTypeNames {
		if strings.ToLower(n) == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("nctiff: invalid data type %q", s)
}

func (t DataType) valid() bool { return t >= Byte && t <= Float64 }

// size returns the number of bytes in one sample.
func (t DataType) size() int {
	switch t {
	case Byte:
		return 1
	case UInt16, Int16:
		return 2
	case UInt32, Int32, Float32:
		return 4
	case Float64:
		return 8
	}
	return 0
}

// sampleFormat returns the TIFF SampleFormat: 1 unsigned integer,
// 2 signed integer, 3 floating point.
func (t DataType) sampleFormat() uint16 {
	switch t {
	case Int16, Int32:
		return 2
	case Float32, Float64:
		return 3
	}
	return 1
}

// bounds returns the range of values representable by t.
func (t DataType) bounds() (min, max float64) {
	switch t {
	case Byte:
		return 0, math.MaxUint8
	case UInt16:
		return 0, math.MaxUint16
	case Int16:
		return math.MinInt16, math.MaxInt16
	case UInt32:
		return 0, math.MaxUint32
	case Int32:
		return math.MinInt32, math.MaxInt32
	case Float32:
		return -math.MaxFloat32, math.MaxFloat32
	}
	return math.Inf(-1), math.Inf(1)
}

func (t DataType) isInteger() bool { return t.sampleFormat() != 3 }

// convert rounds and clamps v to the range of t.
func (t DataType) convert(v float64) float64 {
	if t.isInteger() {
		v = math.Round(v)
	}
	min, max := t.bounds()
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// dataTypeFromTIFF maps TIFF BitsPerSample and SampleFormat to a DataType.
func dataTypeFromTIFF(bits, format uint16) (DataType, error) {
	switch {
	case bits == 8 && format == 1:
		return Byte, nil
	case bits == 16 && format == 1:
		return UInt16, nil
	case bits == 16 && format == 2:
		return Int16, nil
	case bits == 32 && format == 1:
		return UInt32, nil
	case bits == 32 && format == 2:
		return Int32, nil
	case bits == 32 && format == 3:
		return Float32, nil
	case bits == 64 && format == 3:
		return Float64, nil
	}
	return 0, fmt.Errorf("unsupported sample layout: %d bits, format %d", bits, format)
}
