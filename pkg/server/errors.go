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

package server

import "errors"

var (
	// errMissingListenAddr is reported by config validation.
	errMissingListenAddr = errors.New("listen_addr is required")

	// errTooManyErrors force-disconnects a session whose error budget ran
	// out.
	errTooManyErrors = errors.New("too many connection errors")

	// errClientDisconnect marks an explicit DISCONNECT command.
	errClientDisconnect = errors.New("client requested disconnection")

	// ErrSessionClosed is returned by Send on a closed session.
	ErrSessionClosed = errors.New("session closed")
)
