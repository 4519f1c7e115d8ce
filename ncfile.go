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
	"bytes"
	"math"
	"os"
	"reflect"
	"sync"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/ctessum/cdf"
	"github.com/pkg/errors"
)

// hdf5Signature starts every netCDF-4 file.
var hdf5Signature = []byte("\x89HDF\r\n\x1a\n")

// ncfile is read access to the variables of a netCDF file.
type ncfile interface {
	variables() []string

	// dimensions returns the dimension names of v, or nil if there is
	// no variable v.
	dimensions(v string) []string

	// lengths returns the dimension lengths of v, with the record
	// dimension resolved to the number of records.
	lengths(v string) ([]int, error)

	// attribute returns attribute a of variable v, or nil.
	attribute(v, a string) interface{}

	// readAll reads every value of the 1-D variable v.
	readAll(v string) ([]float64, error)

	// readStep reads the [y, x] slab at time index of the
	// [time, y, x] variable v, and returns the storage type of its
	// values.
	readStep(v string, index int) ([]float64, reflect.Kind, error)

	close() error
}

// openFile opens a classic (CDF-1, CDF-2) or netCDF-4 file.
func openFile(path string) (ncfile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, openError(path, err, "opening file")
	}
	magic := make([]byte, len(hdf5Signature))
	if n, _ := f.ReadAt(magic, 0); n == len(magic) && bytes.Equal(magic, hdf5Signature) {
		f.Close()
		nf, err := openNative(path)
		if err != nil {
			return nil, openError(path, err, "reading netCDF-4 file")
		}
		return nf, nil
	}
	cf, err := openClassic(f)
	if err != nil {
		f.Close()
		return nil, openError(path, err, "reading netCDF header")
	}
	return cf, nil
}

type classicFile struct {
	f  *os.File
	nc *cdf.File
}

func openClassic(f *os.File) (*classicFile, error) {
	nc, err := cdf.Open(f)
	if err != nil {
		return nil, err
	}
	return &classicFile{f: f, nc: nc}, nil
}

func (c *classicFile) variables() []string { return c.nc.Header.Variables() }

func (c *classicFile) dimensions(v string) []string { return c.nc.Header.Dimensions(v) }

func (c *classicFile) attribute(v, a string) interface{} { return c.nc.Header.GetAttribute(v, a) }

func (c *classicFile) close() error { return c.f.Close() }

func (c *classicFile) lengths(v string) ([]int, error) {
	l := c.nc.Header.Lengths(v)
	if l == nil {
		return nil, nil
	}
	out := make([]int, len(l))
	copy(out, l)
	if c.nc.Header.IsRecordVariable(v) {
		fi, err := c.f.Stat()
		if err != nil {
			return nil, err
		}
		out[0] = int(c.nc.Header.NumRecs(fi.Size()))
	}
	return out, nil
}

func (c *classicFile) readAll(v string) ([]float64, error) {
	l, err := c.lengths(v)
	if err != nil {
		return nil, err
	}
	if len(l) != 1 {
		return nil, errors.Errorf("%s is not 1-dimensional", v)
	}
	if l[0] == 0 {
		return []float64{}, nil
	}
	vals, _, err := readFloats(c.nc, v, []int{0}, []int{l[0] - 1}, l[0])
	return vals, err
}

func (c *classicFile) readStep(v string, index int) ([]float64, reflect.Kind, error) {
	l, err := c.lengths(v)
	if err != nil {
		return nil, reflect.Invalid, err
	}
	ny, nx := l[1], l[2]
	return readFloats(c.nc, v, []int{index, 0, 0}, []int{index, ny - 1, nx - 1}, nx*ny)
}

// readFloats reads n values of variable v between the begin and
// (inclusive) end corners and converts them to float64.
func readFloats(nc *cdf.File, v string, begin, end []int, n int) ([]float64, reflect.Kind, error) {
	r := nc.Reader(v, begin, end)
	if r == nil {
		return nil, reflect.Invalid, errors.Errorf("variable %s not in file", v)
	}
	buf := r.Zero(n)
	if _, err := r.Read(buf); err != nil {
		return nil, reflect.Invalid, errors.Wrapf(err, "reading variable %s", v)
	}
	out := make([]float64, n)
	var kind reflect.Kind
	switch b := buf.(type) {
	case []uint8:
		// NC_BYTE is signed.
		kind = reflect.Int8
		for i, val := range b {
			out[i] = float64(int8(val))
		}
	case []int16:
		kind = reflect.Int16
		for i, val := range b {
			out[i] = float64(val)
		}
	case []int32:
		kind = reflect.Int32
		for i, val := range b {
			out[i] = float64(val)
		}
	case []float32:
		kind = reflect.Float32
		for i, val := range b {
			out[i] = float64(val)
		}
	case []float64:
		kind = reflect.Float64
		copy(out, b)
	default:
		return nil, reflect.Invalid, errors.Errorf("variable %s has unsupported type %T", v, buf)
	}
	return out, kind, nil
}

// nativeFile reads netCDF-4 files. Reads are serialized.
type nativeFile struct {
	mu sync.Mutex
	g  api.Group
}

func openNative(path string) (*nativeFile, error) {
	g, err := netcdf.Open(path)
	if err != nil {
		return nil, err
	}
	return &nativeFile{g: g}, nil
}

func (n *nativeFile) getter(v string) (api.VarGetter, error) {
	return n.g.GetVarGetter(v)
}

func (n *nativeFile) variables() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.g.ListVariables()
}

func (n *nativeFile) dimensions(v string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	vg, err := n.getter(v)
	if err != nil {
		return nil
	}
	dims := vg.Dimensions()
	if dims == nil {
		dims = []string{}
	}
	return dims
}

func (n *nativeFile) lengths(v string) ([]int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	vg, err := n.getter(v)
	if err != nil {
		return nil, nil
	}
	shape := vg.Shape()
	out := make([]int, len(shape))
	for i, l := range shape {
		out[i] = int(l)
	}
	return out, nil
}

func (n *nativeFile) attribute(v, a string) interface{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	vg, err := n.getter(v)
	if err != nil {
		return nil
	}
	val, ok := vg.Attributes().Get(a)
	if !ok {
		return nil
	}
	return val
}

func (n *nativeFile) readAll(v string) ([]float64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	vg, err := n.getter(v)
	if err != nil {
		return nil, err
	}
	vals, err := vg.Values()
	if err != nil {
		return nil, errors.Wrapf(err, "reading variable %s", v)
	}
	out, _, err := flatten(vals)
	if err != nil {
		return nil, errors.Wrapf(err, "reading variable %s", v)
	}
	return out, nil
}

func (n *nativeFile) readStep(v string, index int) ([]float64, reflect.Kind, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	vg, err := n.getter(v)
	if err != nil {
		return nil, reflect.Invalid, err
	}
	vals, err := vg.GetSlice(int64(index), int64(index)+1)
	if err != nil {
		return nil, reflect.Invalid, errors.Wrapf(err, "reading variable %s", v)
	}
	out, kind, err := flatten(vals)
	if err != nil {
		return nil, reflect.Invalid, errors.Wrapf(err, "reading variable %s", v)
	}
	return out, kind, nil
}

func (n *nativeFile) close() error {
	n.g.Close()
	return nil
}

// flatten converts nested slices of numbers to a flat []float64 in
// row-major order.
func flatten(x interface{}) ([]float64, reflect.Kind, error) {
	var out []float64
	kind := reflect.Invalid
	var walk func(v reflect.Value) error
	walk = func(v reflect.Value) error {
		switch v.Kind() {
		case reflect.Slice, reflect.Array:
			for i := 0; i < v.Len(); i++ {
				if err := walk(v.Index(i)); err != nil {
					return err
				}
			}
			return nil
		case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			out = append(out, float64(v.Int()))
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			out = append(out, float64(v.Uint()))
		case reflect.Float32, reflect.Float64:
			out = append(out, v.Float())
		default:
			return errors.Errorf("unsupported value type %v", v.Type())
		}
		kind = v.Kind()
		return nil
	}
	if x == nil {
		return nil, kind, errors.New("no values")
	}
	if err := walk(reflect.ValueOf(x)); err != nil {
		return nil, reflect.Invalid, err
	}
	return out, kind, nil
}

// defaultFill returns the netCDF default fill value for values of
// the given storage type.
func defaultFill(k reflect.Kind) (float64, bool) {
	switch k {
	case reflect.Int8:
		return -127, true
	case reflect.Uint8:
		return 255, true
	case reflect.Int16:
		return -32767, true
	case reflect.Uint16:
		return 65535, true
	case reflect.Int32:
		return -2147483647, true
	case reflect.Uint32:
		return 4294967295, true
	case reflect.Int64:
		return -9223372036854775806, true
	case reflect.Uint64:
		return 18446744073709551614, true
	case reflect.Float32:
		return float64(float32(9.9692099683868690e+36)), true
	case reflect.Float64:
		return 9.9692099683868690e+36, true
	}
	return math.NaN(), false
}
