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

// Package nctiffutil implements the nctiff command-line interface.
package nctiffutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spatialmodel/nctiff"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Cfg holds configuration information and the commands that use it.
type Cfg struct {
	*viper.Viper

	// Root is the main command.
	Root *cobra.Command

	versionCmd, convertCmd, inspectCmd *cobra.Command
}

type option struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

// InitializeConfig creates the commands and binds their flags, the
// NCTIFF_ environment variables and the configuration file to a new
// configuration.
func InitializeConfig() *Cfg {
	cfg := &Cfg{Viper: viper.New()}

	cfg.Root = &cobra.Command{
		Use:   "nctiff",
		Short: "Export netCDF time series as GeoTIFF rasters.",
		Long: `nctiff exports every selected timestep of chosen variables in a folder of
netCDF files as individual georeferenced GeoTIFF files.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'NCTIFF_var' where 'var' is the
name of the variable to be set. Paths may contain environment variables.
Refer to https://github.com/spf13/viper for additional configuration information.`,
		Version:           nctiff.Version,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig(cfg) },
	}

	cfg.versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Long:  "version prints the version number of this version of nctiff.",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("nctiff v%s\n", nctiff.Version)
		},
		DisableAutoGenTag: true,
	}

	cfg.convertCmd = &cobra.Command{
		Use:   "convert site",
		Short: "Convert the netCDF files of a site to GeoTIFF.",
		Long: `convert exports each selected timestep of each configured variable of every
'.nc' file directly inside the site folder as a GeoTIFF file. The site may be
a local folder or a blob storage location (file://, gs://, or s3://).
Files that cannot be opened and individual rasters that cannot be written
are logged and skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := Convert(cmd.Context(), cfg, args[0])
			if report != nil {
				cmd.Printf("converted %d of %d rasters; %d source files skipped\n",
					report.Succeeded(), len(report.Outcomes), len(report.Skipped))
			}
			return err
		},
		DisableAutoGenTag: true,
	}

	cfg.inspectCmd = &cobra.Command{
		Use:   "inspect file.tif...",
		Short: "Describe GeoTIFF files written by convert.",
		Long: `inspect prints the size, data type, georeferencing, nodata value and
summary statistics of GeoTIFF files.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return Inspect(cmd.OutOrStdout(), args...)
		},
		DisableAutoGenTag: true,
	}

	persistent := cfg.Root.PersistentFlags()
	convert := cfg.convertCmd.Flags()
	options := []option{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{persistent},
		},
		{
			name: "variables",
			usage: `
              variables maps the names of the netCDF variables to export to the
              short tokens used in output file names, as a JSON object.`,
			defaultVal: map[string]string{"__xarray_dataarray_variable__": "VSPI"},
			flagsets:   []*pflag.FlagSet{convert},
		},
		{
			name: "dates",
			usage: `
              dates gives the start and end of the time window as two dates in
              the format dd/mm/yyyy, e.g. --dates 01/01/2004,31/12/2018.
              Timesteps falling exactly on either date are excluded. If dates
              is not set, all timesteps are exported.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{convert},
		},
		{
			name: "concurrency",
			usage: `
              concurrency is the number of rasters converted at once. If < 1,
              the number of processors is used.`,
			shorthand:  "j",
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{convert},
		},
		{
			name: "output",
			usage: `
              output is the folder the GeoTIFF files are written to. It may be
              a blob storage location. The default is the 'tiff' folder inside
              the site folder.`,
			shorthand:  "o",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{convert},
		},
		{
			name: "log",
			usage: `
              log is the path of the append-only outcome log. The default is
              nctiff.log in the output folder.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{convert},
		},
		{
			name: "nodata",
			usage: `
              nodata is the value written in place of missing data.`,
			defaultVal: float64(nctiff.DefaultNoData),
			flagsets:   []*pflag.FlagSet{convert},
		},
		{
			name: "dtype",
			usage: `
              dtype is the output pixel type: one of byte, uint16, int16,
              uint32, int32, float32, or float64. Integer types discard the
              fractional part of values; scale the data beforehand to keep it.`,
			defaultVal: strings.ToLower(nctiff.DefaultDataType.String()),
			flagsets:   []*pflag.FlagSet{convert},
		},
		{
			name: "crs",
			usage: `
              crs overrides the coordinate reference system of the sources,
              in WKT or PROJ4 format.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{convert},
		},
		{
			name: "geotransform",
			usage: `
              geotransform overrides the geotransform of the sources with six
              comma- or space-separated numbers: x origin, pixel width, row
              rotation, y origin, column rotation, pixel height.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{convert},
		},
		{
			name: "template",
			usage: `
              template is the output file name template. [DATE], [ID], and
              [TOKEN] are replaced by the timestep date, the source file name
              up to its first '.', and the variable token.`,
			defaultVal: nctiff.DefaultNameTemplate,
			flagsets:   []*pflag.FlagSet{convert},
		},
		{
			name: "date_layout",
			usage: `
              date_layout is the Go time layout used for [DATE] in file names.`,
			defaultVal: nctiff.DefaultDateLayout,
			flagsets:   []*pflag.FlagSet{convert},
		},
		{
			name: "metrics",
			usage: `
              metrics, if set, is the path of a Prometheus text file that run
              metrics are written to when the conversion finishes.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{convert},
		},
	}

	// Set the prefix for configuration environment variables.
	cfg.SetEnvPrefix("NCTIFF")
	cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case []string:
				set.StringSliceP(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			case float64:
				set.Float64P(option.name, option.shorthand, v, option.usage)
			case map[string]string:
				b := bytes.NewBuffer(nil)
				json.NewEncoder(b).Encode(v)
				set.StringP(option.name, option.shorthand, strings.TrimSpace(b.String()), option.usage)
			default:
				panic(fmt.Errorf("invalid argument type %T", option.defaultVal))
			}
			cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}

	cfg.Root.AddCommand(cfg.versionCmd, cfg.convertCmd, cfg.inspectCmd)
	return cfg
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig(cfg *Cfg) error {
	if cfgpath := cfg.GetString("config"); cfgpath != "" {
		cfg.SetConfigFile(expandPath(cfgpath))
		if err := cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("nctiff: problem reading configuration file: %v", err)
		}
	}
	return nil
}
