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

	"github.com/pkg/errors"
)

// DatasetOpenError is returned when a source file cannot be read
// or does not contain a usable time axis. It causes the whole file
// to be skipped.
type DatasetOpenError struct {
	Path string
	Err  error
}

func (e *DatasetOpenError) Error() string {
	return fmt.Sprintf("nctiff: opening dataset %s: %v", e.Path, e.Err)
}

// Cause returns the underlying error.
func (e *DatasetOpenError) Cause() error { return e.Err }

// Unwrap returns the underlying error.
func (e *DatasetOpenError) Unwrap() error { return e.Err }

func openError(path string, err error, msg string) error {
	return &DatasetOpenError{Path: path, Err: errors.Wrap(err, msg)}
}

func openErrorf(path string, format string, args ...interface{}) error {
	return &DatasetOpenError{Path: path, Err: errors.Errorf(format, args...)}
}

// VariableNotFoundError is returned when a requested variable is
// absent from a dataset or is not laid out as [time, y, x].
type VariableNotFoundError struct {
	Path     string
	Variable string
	Reason   string
}

func (e *VariableNotFoundError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("nctiff: variable %s in %s: %s", e.Variable, e.Path, e.Reason)
	}
	return fmt.Sprintf("nctiff: variable %s not in %s", e.Variable, e.Path)
}

// IndexError is returned when a timestep index is outside the
// time axis of a dataset.
type IndexError struct {
	Path  string
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("nctiff: timestep index %d out of range [0, %d) in %s", e.Index, e.Len, e.Path)
}

// OutputConflictError is returned for a job whose output path was
// already claimed by an earlier job of the same run.
type OutputConflictError struct {
	Path string

	// Source, Variable and Index identify the job that claimed Path.
	Source   string
	Variable string
	Index    int
}

func (e *OutputConflictError) Error() string {
	return fmt.Sprintf("nctiff: output %s is already written by %s variable %s index %d",
		e.Path, e.Source, e.Variable, e.Index)
}

// EncodeError is returned when a raster cannot be encoded or written.
type EncodeError struct {
	Path string
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("nctiff: encoding %s: %v", e.Path, e.Err)
}

// Cause returns the underlying error.
func (e *EncodeError) Cause() error { return e.Err }

// Unwrap returns the underlying error.
func (e *EncodeError) Unwrap() error { return e.Err }

func encodeError(path string, err error, msg string) error {
	return &EncodeError{Path: path, Err: errors.Wrap(err, msg)}
}
