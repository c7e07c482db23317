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

package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rudrakshya/LIS/pkg/models"
)

func testEquipment() []models.Equipment {
	return []models.Equipment{
		{
			EquipmentID: "BT1500-01",
			Name:        "BT-1500 Electrolyte Analyzer",
			Protocol:    models.ProtocolSerial,
			SerialPort:  "/dev/ttyUSB0",
			BaudRate:    9600,
			IsActive:    true,
		},
		{
			EquipmentID: "COBAS-02",
			Name:        "Cobas c311",
			Protocol:    models.ProtocolTCPIP,
			Host:        "10.0.0.20",
			Port:        5100,
			IsActive:    false,
		},
		{Name: "no id, skipped"},
	}
}

func TestFind(t *testing.T) {
	c := NewStaticCatalog(testEquipment())

	eq, ok := c.Find("BT1500-01")
	require.True(t, ok)
	assert.Equal(t, "BT-1500 Electrolyte Analyzer", eq.Name)

	_, ok = c.Find("unknown")
	assert.False(t, ok)
}

func TestIsActive(t *testing.T) {
	c := NewStaticCatalog(testEquipment())

	assert.True(t, c.IsActive("BT1500-01"))
	assert.False(t, c.IsActive("COBAS-02"))
	assert.False(t, c.IsActive("unknown"))
}

func TestActive(t *testing.T) {
	c := NewStaticCatalog(testEquipment())

	active := c.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "BT1500-01", active[0].EquipmentID)
}

func TestUpsert(t *testing.T) {
	c := NewStaticCatalog(nil)

	c.Upsert(models.Equipment{EquipmentID: "NEW-01", IsActive: true})
	assert.True(t, c.IsActive("NEW-01"))

	c.Upsert(models.Equipment{EquipmentID: "NEW-01", IsActive: false})
	assert.False(t, c.IsActive("NEW-01"))

	c.Upsert(models.Equipment{})
	assert.Len(t, c.Active(), 0)
}
