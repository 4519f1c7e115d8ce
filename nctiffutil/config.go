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
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/nctiff"
	"github.com/spatialmodel/nctiff/cloud"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// expandPath expands environment variables in a path.
func expandPath(p string) string { return os.ExpandEnv(strings.TrimSpace(p)) }

// GetStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument or an environment variable.
func GetStringMapString(varName string, cfg *viper.Viper) (map[string]string, error) {
	i := cfg.Get(varName)
	switch v := i.(type) {
	case map[string]string:
		return v, nil
	case map[string]interface{}:
		return cast.ToStringMapStringE(v)
	case string:
		o := make(map[string]string)
		if strings.TrimSpace(v) == "" {
			return o, nil
		}
		if err := json.NewDecoder(bytes.NewBufferString(v)).Decode(&o); err != nil {
			return nil, fmt.Errorf("nctiff: parsing %s: %v", varName, err)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("nctiff: invalid type for %s: %#v", varName, i)
	}
}

// checkVariables trims the variable names and tokens and makes sure
// there is at least one.
func checkVariables(vars map[string]string) (nctiff.VariableSpec, error) {
	if len(vars) == 0 {
		return nil, fmt.Errorf("nctiff: there are no variables specified for conversion. " +
			"Please fill in the 'variables' configuration and try again")
	}
	o := make(nctiff.VariableSpec, len(vars))
	for k, v := range vars {
		o[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return o, nil
}

// parseDates returns the time window given by dates, which must be
// empty or hold a start and an end date.
func parseDates(dates []string) (*nctiff.TimeWindow, error) {
	switch len(dates) {
	case 0:
		return nil, nil
	case 2:
		return nctiff.ParseTimeWindow(strings.TrimSpace(dates[0]), strings.TrimSpace(dates[1]))
	default:
		return nil, fmt.Errorf("nctiff: dates must hold a start and an end date but has %d values: %v", len(dates), dates)
	}
}

// parseGeoTransform parses six comma- or space-separated numbers.
func parseGeoTransform(s string) ([]float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '[' || r == ']'
	})
	if len(fields) == 0 {
		return nil, nil
	}
	if len(fields) != 6 {
		return nil, fmt.Errorf("nctiff: geotransform must have 6 numbers but has %d", len(fields))
	}
	gt := make([]float64, len(fields))
	for i, f := range fields {
		v, err := cast.ToFloat64E(f)
		if err != nil {
			return nil, fmt.Errorf("nctiff: parsing geotransform: %v", err)
		}
		gt[i] = v
	}
	return gt, nil
}

// gridOverride returns the configured georeferencing override, or nil
// if none is configured.
func gridOverride(cfg *viper.Viper) (*nctiff.GridOverride, error) {
	gt, err := parseGeoTransform(cfg.GetString("geotransform"))
	if err != nil {
		return nil, err
	}
	crs := strings.TrimSpace(cfg.GetString("crs"))
	if gt == nil && crs == "" {
		return nil, nil
	}
	return &nctiff.GridOverride{GeoTransform: gt, CRS: crs}, nil
}

// outputDir fills in the default output folder, the 'tiff' folder
// inside the site, if one isn't specified.
func outputDir(output, site string) string {
	if output = expandPath(output); output != "" {
		return output
	}
	if cloud.IsBlob(site) {
		return strings.TrimSuffix(site, "/") + "/tiff"
	}
	return filepath.Join(site, "tiff")
}

// ListSources returns the '.nc' files directly inside site, which is
// a local folder or a blob storage location, sorted by name.
func ListSources(ctx context.Context, log logrus.FieldLogger, site string) ([]string, error) {
	if cloud.IsBlob(site) {
		return cloud.List(ctx, log, site, ".nc")
	}
	entries, err := os.ReadDir(site)
	if err != nil {
		return nil, fmt.Errorf("nctiff: listing site folder: %v", err)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".nc") {
			paths = append(paths, filepath.Join(site, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// BatchConfig builds the conversion settings for site from cfg.
func BatchConfig(cfg *viper.Viper, site string) (nctiff.BatchConfig, error) {
	var c nctiff.BatchConfig
	vars, err := GetStringMapString("variables", cfg)
	if err != nil {
		return c, err
	}
	if c.Variables, err = checkVariables(vars); err != nil {
		return c, err
	}
	if c.Window, err = parseDates(cfg.GetStringSlice("dates")); err != nil {
		return c, err
	}
	if c.DataType, err = nctiff.ParseDataType(cfg.GetString("dtype")); err != nil {
		return c, err
	}
	if c.Override, err = gridOverride(cfg); err != nil {
		return c, err
	}
	c.Concurrency = cfg.GetInt("concurrency")
	if c.Concurrency < 0 {
		c.Concurrency = 0
	}
	c.OutputDir = outputDir(cfg.GetString("output"), site)
	nodata := cfg.GetFloat64("nodata")
	c.NoData = &nodata
	c.NameTemplate = cfg.GetString("template")
	c.DateLayout = cfg.GetString("date_layout")
	c.LogFile = expandPath(cfg.GetString("log"))
	c.MetricsFile = expandPath(cfg.GetString("metrics"))
	c.Logger = logrus.StandardLogger()
	return c, nil
}

// Convert converts the netCDF files of site as configured by cfg.
func Convert(ctx context.Context, cfg *Cfg, site string) (*nctiff.Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	site = expandPath(site)
	c, err := BatchConfig(cfg.Viper, site)
	if err != nil {
		return nil, err
	}
	sources, err := ListSources(ctx, c.Logger, site)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		c.Logger.WithField("site", site).Warn("nctiff: no .nc files found")
	}
	b, err := nctiff.NewBatch(c)
	if err != nil {
		return nil, err
	}
	return b.Run(ctx, sources)
}
