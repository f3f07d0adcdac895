// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package settings

// MaxSettings is the maximum number of settings that the system supports.
const MaxSettings = 64

type slotIdx int32

// Setting is the interface exposing the metadata for a setting.
type Setting interface {
	// Key returns the name of the setting.
	Key() string
	// Typ returns the short (1 char) string denoting the type of setting.
	Typ() string
	// String returns the string representation of the setting's current value.
	String(sv *Values) string
	// DefaultString returns the string representation of the default value.
	DefaultString() string
	// Description contains a helpful text explaining what the specific
	// setting is for.
	Description() string
}

// NonMaskedSetting is a setting whose value can be observed through a
// Notifier.
type NonMaskedSetting interface {
	Setting
	slotIdx() slotIdx
}

type internalSetting interface {
	NonMaskedSetting
	init(key, desc string, slot slotIdx)
	// decodeAndSet parses the encoded value and stores it in sv.
	decodeAndSet(sv *Values, encoded string) error
	setToDefault(sv *Values)
}

// common implements the shared parts of every setting.
type common struct {
	key         string
	description string
	slot        slotIdx
}

func (c *common) init(key, desc string, slot slotIdx) {
	c.key = key
	c.description = desc
	c.slot = slot
}

// Key implements Setting.
func (c *common) Key() string { return c.key }

// Description implements Setting.
func (c *common) Description() string { return c.description }

func (c *common) slotIdx() slotIdx { return c.slot }
