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

// Package catalog answers which analyzers the laboratory knows about.
// Sessions consult it to validate device identification; the health monitor
// walks it to find devices worth dialing.
package catalog

import (
	"sync"

	"github.com/rudrakshya/LIS/pkg/models"
)

// Catalog is the equipment lookup consumed by sessions and the health
// monitor.
type Catalog interface {
	// Find returns the equipment record for a device id.
	Find(deviceID string) (*models.Equipment, bool)

	// IsActive reports whether the device is known and enabled.
	IsActive(deviceID string) bool

	// Active returns all enabled equipment records.
	Active() []*models.Equipment
}

// StaticCatalog is an in-memory Catalog seeded from configuration.
type StaticCatalog struct {
	mu        sync.RWMutex
	equipment map[string]*models.Equipment
}

// NewStaticCatalog builds a catalog from equipment records. Records without
// an id are skipped.
func NewStaticCatalog(equipment []models.Equipment) *StaticCatalog {
	c := &StaticCatalog{equipment: make(map[string]*models.Equipment, len(equipment))}

	for i := range equipment {
		eq := equipment[i]
		if eq.EquipmentID == "" {
			continue
		}

		c.equipment[eq.EquipmentID] = &eq
	}

	return c
}

// Find returns the equipment record for a device id.
func (c *StaticCatalog) Find(deviceID string) (*models.Equipment, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	eq, ok := c.equipment[deviceID]

	return eq, ok
}

// IsActive reports whether the device is known and enabled.
func (c *StaticCatalog) IsActive(deviceID string) bool {
	eq, ok := c.Find(deviceID)

	return ok && eq.IsActive
}

// Active returns all enabled equipment records.
func (c *StaticCatalog) Active() []*models.Equipment {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*models.Equipment

	for _, eq := range c.equipment {
		if eq.IsActive {
			out = append(out, eq)
		}
	}

	return out
}

// Upsert adds or replaces an equipment record.
func (c *StaticCatalog) Upsert(eq models.Equipment) {
	if eq.EquipmentID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.equipment[eq.EquipmentID] = &eq
}
