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

package aggregator

import (
	"errors"
	"fmt"
)

// ErrInvalidRecord is matched by every *ValidationError.
var ErrInvalidRecord = errors.New("invalid record")

// ValidationError identifies an input record that violates its invariants.
type ValidationError struct {
	// RecordKind is "allocation" or "snapshot".
	RecordKind string
	RecordID   string
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.RecordKind, e.RecordID, e.Reason)
}

// Is matches ErrInvalidRecord.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRecord
}
