/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package astm

import "errors"

var (
	// ErrEmptyMessage is returned when the payload is empty after framing
	// characters are stripped.
	ErrEmptyMessage = errors.New("empty ASTM message")

	// ErrNoRecords is returned when no recognizable records were found.
	ErrNoRecords = errors.New("no ASTM records in message")
)
