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
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
	"github.com/pkg/errors"
)

// TIFF and GeoTIFF tags.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagSampleFormat    = 339
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagModelTransform  = 34264
	tagGeoKeyDirectory = 34735
	tagGeoASCIIParams  = 34737
	tagGDALNoData      = 42113
)

// TIFF field types.
const (
	typeASCII  = 2
	typeShort  = 3
	typeLong   = 4
	typeDouble = 12
)

// GeoKeys and their values.
const (
	keyModelType      = 1024
	keyRasterType     = 1025
	keyCitation       = 1026
	keyGeographicType = 2048
	keyProjectedType  = 3072

	modelProjected    = 1
	modelGeographic   = 2
	rasterPixelIsArea = 1
	userDefined       = 32767
)

const (
	tiffHeaderSize = 8
	esriPEPrefix   = "ESRI PE String = "
)

var le = binary.LittleEndian

// Raster is a single-band georeferenced grid ready to be encoded.
type Raster struct {
	// Data holds pixel values with shape [rows, columns], north-up.
	Data *sparse.DenseArray

	GeoTransform [6]float64

	// CRS is a WKT or PROJ4 coordinate reference description. It may
	// be empty.
	CRS string

	// NoData marks missing pixels.
	NoData float64

	DataType DataType
}

// Check makes sure the raster can be encoded.
func (r *Raster) Check() error {
	if r.Data == nil || len(r.Data.Shape) != 2 || r.Data.Shape[0] < 1 || r.Data.Shape[1] < 1 {
		return fmt.Errorf("raster data must be a non-empty 2-D array")
	}
	return checkNoData(r.NoData, r.DataType)
}

// checkNoData makes sure nodata can be stored exactly as type t.
func checkNoData(nodata float64, t DataType) error {
	if !t.valid() {
		return fmt.Errorf("invalid data type %v", t)
	}
	min, max := t.bounds()
	if math.IsNaN(nodata) || nodata < min || nodata > max {
		return fmt.Errorf("nodata value %g is not representable as %v", nodata, t)
	}
	if t.isInteger() && nodata != math.Trunc(nodata) {
		return fmt.Errorf("nodata value %g is not an integer but data type is %v", nodata, t)
	}
	return nil
}

// Bounds returns the extent of the raster in its own coordinate system.
func (r *Raster) Bounds() *geom.Bounds {
	ny, nx := float64(r.Data.Shape[0]), float64(r.Data.Shape[1])
	gt := r.GeoTransform
	b := geom.NewBounds()
	for _, c := range [][2]float64{{0, 0}, {nx, 0}, {0, ny}, {nx, ny}} {
		b.Extend(geom.Point{
			X: gt[0] + c[0]*gt[1] + c[1]*gt[2],
			Y: gt[3] + c[0]*gt[4] + c[1]*gt[5],
		}.Bounds())
	}
	return b
}

// ReplaceNaN sets every NaN element of a to nodata and returns the
// number of elements replaced.
func ReplaceNaN(a *sparse.DenseArray, nodata float64) int {
	n := 0
	for i, v := range a.Elements {
		if math.IsNaN(v) {
			a.Elements[i] = nodata
			n++
		}
	}
	return n
}

type ifdEntry struct {
	tag, typ uint16
	count    uint32
	data     []byte
}

func shortsEntry(tag uint16, vals ...uint16) ifdEntry {
	b := make([]byte, 2*len(vals))
	for i, v := range vals {
		le.PutUint16(b[2*i:], v)
	}
	return ifdEntry{tag: tag, typ: typeShort, count: uint32(len(vals)), data: b}
}

func longsEntry(tag uint16, vals ...uint32) ifdEntry {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		le.PutUint32(b[4*i:], v)
	}
	return ifdEntry{tag: tag, typ: typeLong, count: uint32(len(vals)), data: b}
}

func doublesEntry(tag uint16, vals ...float64) ifdEntry {
	b := make([]byte, 8*len(vals))
	for i, v := range vals {
		le.PutUint64(b[8*i:], math.Float64bits(v))
	}
	return ifdEntry{tag: tag, typ: typeDouble, count: uint32(len(vals)), data: b}
}

func asciiEntry(tag uint16, s string) ifdEntry {
	b := append([]byte(s), 0)
	return ifdEntry{tag: tag, typ: typeASCII, count: uint32(len(b)), data: b}
}

// WriteGeoTIFF encodes r to w as an uncompressed single-band GeoTIFF
// with one strip per row. NaN elements of r.Data are replaced by
// r.NoData in place before encoding, and the nodata value is stored in
// the GDAL_NODATA tag.
func WriteGeoTIFF(w io.Writer, r *Raster) error {
	if err := r.Check(); err != nil {
		return err
	}
	ReplaceNaN(r.Data, r.NoData)
	ny, nx := r.Data.Shape[0], r.Data.Shape[1]
	sampleSize := r.DataType.size()
	rowBytes := nx * sampleSize

	counts := make([]uint32, ny)
	for i := range counts {
		counts[i] = uint32(rowBytes)
	}
	entries := []ifdEntry{
		longsEntry(tagImageWidth, uint32(nx)),
		longsEntry(tagImageLength, uint32(ny)),
		shortsEntry(tagBitsPerSample, uint16(8*sampleSize)),
		shortsEntry(tagCompression, 1),
		shortsEntry(tagPhotometric, 1),
		longsEntry(tagStripOffsets, make([]uint32, ny)...),
		shortsEntry(tagSamplesPerPixel, 1),
		longsEntry(tagRowsPerStrip, 1),
		longsEntry(tagStripByteCounts, counts...),
		shortsEntry(tagPlanarConfig, 1),
		shortsEntry(tagSampleFormat, r.DataType.sampleFormat()),
		asciiEntry(tagGDALNoData, strconv.FormatFloat(r.NoData, 'g', -1, 64)),
	}
	geo, err := georefEntries(r.GeoTransform, r.CRS)
	if err != nil {
		return err
	}
	entries = append(entries, geo...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	// Layout: header, IFD, out-of-line values, pixels.
	ifdSize := 2 + 12*len(entries) + 4
	pos := uint64(tiffHeaderSize + ifdSize)
	offsets := make([]uint32, len(entries))
	for i, e := range entries {
		if len(e.data) > 4 {
			offsets[i] = uint32(pos)
			pos += uint64(len(e.data))
			pos += pos & 1
		}
	}
	pixelStart := pos
	if pixelStart+uint64(ny)*uint64(rowBytes) > math.MaxUint32 {
		return fmt.Errorf("raster of %dx%d %v pixels is too large for a classic TIFF", nx, ny, r.DataType)
	}
	for _, e := range entries {
		if e.tag == tagStripOffsets {
			for j := 0; j < ny; j++ {
				le.PutUint32(e.data[4*j:], uint32(pixelStart)+uint32(j*rowBytes))
			}
		}
	}

	bw := bufio.NewWriter(w)
	var hdr [tiffHeaderSize]byte
	copy(hdr[:], "II")
	le.PutUint16(hdr[2:], 42)
	le.PutUint32(hdr[4:], tiffHeaderSize)
	bw.Write(hdr[:])

	var b [12]byte
	le.PutUint16(b[:], uint16(len(entries)))
	bw.Write(b[:2])
	for i, e := range entries {
		b = [12]byte{}
		le.PutUint16(b[0:], e.tag)
		le.PutUint16(b[2:], e.typ)
		le.PutUint32(b[4:], e.count)
		if len(e.data) > 4 {
			le.PutUint32(b[8:], offsets[i])
		} else {
			copy(b[8:], e.data)
		}
		bw.Write(b[:])
	}
	bw.Write([]byte{0, 0, 0, 0}) // no next IFD

	written := uint64(tiffHeaderSize + ifdSize)
	pad := func(to uint64) {
		for ; written < to; written++ {
			bw.WriteByte(0)
		}
	}
	for i, e := range entries {
		if len(e.data) > 4 {
			pad(uint64(offsets[i]))
			bw.Write(e.data)
			written += uint64(len(e.data))
		}
	}
	pad(pixelStart)

	row := make([]byte, rowBytes)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			putSample(row[i*sampleSize:], r.DataType, r.DataType.convert(r.Data.Get(j, i)))
		}
		bw.Write(row)
	}
	return bw.Flush()
}

func putSample(b []byte, t DataType, v float64) {
	switch t {
	case Byte:
		b[0] = uint8(v)
	case UInt16:
		le.PutUint16(b, uint16(v))
	case Int16:
		le.PutUint16(b, uint16(int16(v)))
	case UInt32:
		le.PutUint32(b, uint32(v))
	case Int32:
		le.PutUint32(b, uint32(int32(v)))
	case Float32:
		le.PutUint32(b, math.Float32bits(float32(v)))
	case Float64:
		le.PutUint64(b, math.Float64bits(v))
	}
}

func getSample(b []byte, t DataType) float64 {
	switch t {
	case Byte:
		return float64(b[0])
	case UInt16:
		return float64(le.Uint16(b))
	case Int16:
		return float64(int16(le.Uint16(b)))
	case UInt32:
		return float64(le.Uint32(b))
	case Int32:
		return float64(int32(le.Uint32(b)))
	case Float32:
		return float64(math.Float32frombits(le.Uint32(b)))
	case Float64:
		return math.Float64frombits(le.Uint64(b))
	}
	return math.NaN()
}

// georefEntries returns the model transformation and GeoKey tags for
// the given geotransform and CRS.
func georefEntries(gt [6]float64, crs string) ([]ifdEntry, error) {
	var entries []ifdEntry
	if gt[2] == 0 && gt[4] == 0 {
		entries = append(entries,
			doublesEntry(tagModelPixelScale, gt[1], -gt[5], 0),
			doublesEntry(tagModelTiepoint, 0, 0, 0, gt[0], gt[3], 0),
		)
	} else {
		entries = append(entries, doublesEntry(tagModelTransform,
			gt[1], gt[2], 0, gt[0],
			gt[4], gt[5], 0, gt[3],
			0, 0, 0, 0,
			0, 0, 0, 1,
		))
	}

	keys := [][4]uint16{{keyRasterType, 0, 1, rasterPixelIsArea}}
	crs = strings.TrimSpace(crs)
	if crs != "" {
		citation := crs
		if isWKT(crs) {
			citation = esriPEPrefix + crs
		}
		citation += "|"
		if len(citation) > math.MaxUint16 {
			return nil, fmt.Errorf("CRS description of %d bytes is too long", len(crs))
		}
		model, code := crsModel(crs)
		keys = append(keys,
			[4]uint16{keyModelType, 0, 1, model},
			[4]uint16{keyCitation, tagGeoASCIIParams, uint16(len(citation)), 0},
		)
		if model == modelGeographic {
			keys = append(keys, [4]uint16{keyGeographicType, 0, 1, code})
		} else {
			keys = append(keys, [4]uint16{keyProjectedType, 0, 1, code})
		}
		entries = append(entries, asciiEntry(tagGeoASCIIParams, citation))
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i][0] < keys[j][0] })
	dir := []uint16{1, 1, 0, uint16(len(keys))}
	for _, k := range keys {
		dir = append(dir, k[:]...)
	}
	return append(entries, shortsEntry(tagGeoKeyDirectory, dir...)), nil
}

func isWKT(s string) bool {
	for _, kw := range []string{"GEOGCS", "PROJCS", "GEOCCS", "GEOGCRS", "PROJCRS", "LOCAL_CS"} {
		if strings.HasPrefix(s, kw) {
			return true
		}
	}
	return false
}

// crsModel returns the GeoTIFF model type and the EPSG code of crs, or
// userDefined when no code is known.
func crsModel(crs string) (model, code uint16) {
	model = modelProjected
	switch {
	case strings.HasPrefix(crs, "GEOGCS"), strings.HasPrefix(crs, "GEOGCRS"):
		model = modelGeographic
	case strings.Contains(crs, "+proj=longlat"), strings.Contains(crs, "+proj=latlong"):
		model = modelGeographic
	}
	code = userDefined
	if c, ok := epsgAuthority(crs); ok && c > 0 && c < userDefined {
		code = uint16(c)
	}
	return model, code
}

var authorityRE = regexp.MustCompile(`^AUTHORITY\[\s*"EPSG"\s*,\s*"?(\d+)"?\s*\]`)

// epsgAuthority returns the EPSG code of the outermost AUTHORITY node
// of a WKT string.
func epsgAuthority(wkt string) (int, bool) {
	depth := 0
	for i := 0; i < len(wkt); i++ {
		switch wkt[i] {
		case '[':
			depth++
		case ']':
			depth--
		case 'A':
			if depth != 1 {
				continue
			}
			if m := authorityRE.FindStringSubmatch(wkt[i:]); m != nil {
				if c, err := strconv.Atoi(m[1]); err == nil {
					return c, true
				}
			}
		}
	}
	return 0, false
}

// EncodeFile writes r as a GeoTIFF to path. The file is written to a
// temporary file in the same directory and renamed into place, so path
// never holds a partially written raster.
func EncodeFile(path string, r *Raster) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return encodeError(path, err, "creating output directory")
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*.tif")
	if err != nil {
		return encodeError(path, err, "creating temporary file")
	}
	defer os.Remove(tmp.Name())
	if err := WriteGeoTIFF(tmp, r); err != nil {
		tmp.Close()
		return encodeError(path, err, "writing GeoTIFF")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return encodeError(path, err, "syncing")
	}
	if err := tmp.Close(); err != nil {
		return encodeError(path, err, "closing")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return encodeError(path, err, "renaming")
	}
	return nil
}

type tiffField struct {
	typ   uint16
	count uint32
	data  []byte
}

func (f tiffField) uints() []uint32 {
	var out []uint32
	switch f.typ {
	case typeShort:
		for i := 0; i+2 <= len(f.data); i += 2 {
			out = append(out, uint32(le.Uint16(f.data[i:])))
		}
	case typeLong:
		for i := 0; i+4 <= len(f.data); i += 4 {
			out = append(out, le.Uint32(f.data[i:]))
		}
	}
	return out
}

func (f tiffField) doubles() []float64 {
	if f.typ != typeDouble {
		return nil
	}
	out := make([]float64, 0, len(f.data)/8)
	for i := 0; i+8 <= len(f.data); i += 8 {
		out = append(out, math.Float64frombits(le.Uint64(f.data[i:])))
	}
	return out
}

func (f tiffField) ascii() string {
	return strings.TrimRight(string(f.data), "\x00")
}

var typeSizes = map[uint16]uint32{1: 1, typeASCII: 1, typeShort: 2, typeLong: 4, 5: 8, 6: 1, 7: 1, 8: 2, 9: 4, 10: 8, 11: 4, typeDouble: 8}

// ReadGeoTIFF decodes an uncompressed single-band little-endian GeoTIFF
// such as the ones produced by WriteGeoTIFF. Nodata pixels are kept as
// the nodata value; NoData is NaN if the file does not declare one.
func ReadGeoTIFF(ra io.ReaderAt) (*Raster, error) {
	var hdr [tiffHeaderSize]byte
	if _, err := ra.ReadAt(hdr[:], 0); err != nil {
		return nil, errors.Wrap(err, "nctiff: reading TIFF header")
	}
	if string(hdr[:2]) != "II" || le.Uint16(hdr[2:]) != 42 {
		return nil, fmt.Errorf("nctiff: not a little-endian classic TIFF")
	}
	ifd := int64(le.Uint32(hdr[4:]))
	var nb [2]byte
	if _, err := ra.ReadAt(nb[:], ifd); err != nil {
		return nil, errors.Wrap(err, "nctiff: reading IFD")
	}
	buf := make([]byte, 12*int(le.Uint16(nb[:])))
	if _, err := ra.ReadAt(buf, ifd+2); err != nil {
		return nil, errors.Wrap(err, "nctiff: reading IFD")
	}
	fields := make(map[uint16]tiffField)
	for i := 0; i < len(buf); i += 12 {
		e := buf[i : i+12]
		f := tiffField{typ: le.Uint16(e[2:]), count: le.Uint32(e[4:])}
		sz, ok := typeSizes[f.typ]
		if !ok {
			continue
		}
		n := sz * f.count
		if n <= 4 {
			f.data = append([]byte(nil), e[8:8+n]...)
		} else {
			f.data = make([]byte, n)
			if _, err := ra.ReadAt(f.data, int64(le.Uint32(e[8:]))); err != nil {
				return nil, errors.Wrapf(err, "nctiff: reading TIFF tag %d", le.Uint16(e))
			}
		}
		fields[le.Uint16(e)] = f
	}

	first := func(tag uint16, def uint32) uint32 {
		if v := fields[tag].uints(); len(v) > 0 {
			return v[0]
		}
		return def
	}
	nx, ny := int(first(tagImageWidth, 0)), int(first(tagImageLength, 0))
	if nx == 0 || ny == 0 {
		return nil, fmt.Errorf("nctiff: TIFF has no image dimensions")
	}
	if c := first(tagCompression, 1); c != 1 {
		return nil, fmt.Errorf("nctiff: unsupported TIFF compression %d", c)
	}
	if spp := first(tagSamplesPerPixel, 1); spp != 1 {
		return nil, fmt.Errorf("nctiff: unsupported samples per pixel %d", spp)
	}
	dt, err := dataTypeFromTIFF(uint16(first(tagBitsPerSample, 1)), uint16(first(tagSampleFormat, 1)))
	if err != nil {
		return nil, errors.Wrap(err, "nctiff")
	}

	size := dt.size()
	pix := make([]byte, 0, nx*ny*size)
	offsets, counts := fields[tagStripOffsets].uints(), fields[tagStripByteCounts].uints()
	if len(offsets) != len(counts) {
		return nil, fmt.Errorf("nctiff: %d strip offsets but %d strip byte counts", len(offsets), len(counts))
	}
	for i, off := range offsets {
		strip := make([]byte, counts[i])
		if _, err := ra.ReadAt(strip, int64(off)); err != nil {
			return nil, errors.Wrapf(err, "nctiff: reading strip %d", i)
		}
		pix = append(pix, strip...)
	}
	if len(pix) < nx*ny*size {
		return nil, fmt.Errorf("nctiff: TIFF pixel data is truncated")
	}

	r := &Raster{
		Data:     sparse.ZerosDense(ny, nx),
		DataType: dt,
		NoData:   math.NaN(),
	}
	for i := range r.Data.Elements {
		r.Data.Elements[i] = getSample(pix[i*size:], dt)
	}
	if f, ok := fields[tagGDALNoData]; ok {
		if v, err := strconv.ParseFloat(strings.TrimSpace(f.ascii()), 64); err == nil {
			r.NoData = v
		}
	}
	if m := fields[tagModelTransform].doubles(); len(m) == 16 {
		r.GeoTransform = [6]float64{m[3], m[0], m[1], m[7], m[4], m[5]}
	} else if sc, tp := fields[tagModelPixelScale].doubles(), fields[tagModelTiepoint].doubles(); len(sc) >= 2 && len(tp) >= 6 {
		r.GeoTransform = [6]float64{tp[3] - tp[0]*sc[0], sc[0], 0, tp[4] + tp[1]*sc[1], 0, -sc[1]}
	}
	r.CRS = citationCRS(fields[tagGeoKeyDirectory].uints(), fields[tagGeoASCIIParams].ascii())
	return r, nil
}

// citationCRS extracts the CRS stored in the GTCitationGeoKey.
func citationCRS(dir []uint32, ascii string) string {
	if len(dir) < 4 {
		return ""
	}
	n := int(dir[3])
	for i := 0; i < n && 4+4*i+3 < len(dir); i++ {
		k := dir[4+4*i : 8+4*i]
		if k[0] != keyCitation || k[1] != tagGeoASCIIParams {
			continue
		}
		start, end := int(k[3]), int(k[3]+k[2])
		if end > len(ascii) || start >= end {
			return ""
		}
		s := strings.TrimSuffix(ascii[start:end], "|")
		return strings.TrimPrefix(s, esriPEPrefix)
	}
	return ""
}
