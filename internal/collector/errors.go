/*
Copyright 2025 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package collector

import (
	"errors"
	"fmt"
)

// ErrDataUnavailable is matched by every error a source returns when its backend fails.
var ErrDataUnavailable = errors.New("data unavailable")

// UnavailableError reports a failed read from a data source.
type UnavailableError struct {
	// Source is the DataSource name.
	Source string
	// Op is the failed operation, e.g. "fetch allocations".
	Op  string
	Err error
}

// Unavailable wraps err as an *UnavailableError.
func Unavailable(source, op string, err error) error {
	return &UnavailableError{Source: source, Op: op, Err: err}
}

func (e *UnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s: %v", e.Source, e.Op, ErrDataUnavailable)
	}
	return fmt.Sprintf("%s: %s: %v: %v", e.Source, e.Op, ErrDataUnavailable, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is matches ErrDataUnavailable.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrDataUnavailable
}
