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

package hl7

import "errors"

var (
	// ErrEmptyMessage means the input was empty after trimming.
	ErrEmptyMessage = errors.New("empty HL7 message")

	// ErrMissingMSH means the message has no MSH segment; without it there is
	// no message type or control id to act on.
	ErrMissingMSH = errors.New("missing MSH segment")
)
