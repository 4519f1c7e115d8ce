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

// Command nctiff exports netCDF time series as GeoTIFF rasters.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/nctiff/nctiffutil"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := nctiffutil.InitializeConfig()
	if err := cfg.Root.ExecuteContext(ctx); err != nil {
		logrus.WithError(err).Error("nctiff failed")
		stop()
		os.Exit(1)
	}
}
