// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package settings

import (
	"strconv"

	"github.com/cockroachdb/errors"
)

// BoolSetting is the interface of a setting variable that will be
// updated automatically when the corresponding setting of type "bool" is
// updated.
type BoolSetting struct {
	common
	defaultValue bool
}

var _ internalSetting = &BoolSetting{}

// Get retrieves the bool value in the setting.
func (b *BoolSetting) Get(sv *Values) bool {
	return sv.getInt64(b.slot) != 0
}

func (b *BoolSetting) String(sv *Values) string {
	return EncodeBool(b.Get(sv))
}

// DefaultString implements Setting.
func (b *BoolSetting) DefaultString() string {
	return EncodeBool(b.defaultValue)
}

// Typ returns the short (1 char) string denoting the type of setting.
func (*BoolSetting) Typ() string {
	return "b"
}

// Override changes the setting. For use in tests.
func (b *BoolSetting) Override(sv *Values, v bool) {
	b.set(sv, v)
}

func (b *BoolSetting) set(sv *Values, v bool) {
	var vInt int64
	if v {
		vInt = 1
	}
	sv.setInt64(b.slot, vInt)
}

func (b *BoolSetting) decodeAndSet(sv *Values, encoded string) error {
	v, err := strconv.ParseBool(encoded)
	if err != nil {
		return errors.Wrapf(err, "setting %q", b.key)
	}
	b.set(sv, v)
	return nil
}

func (b *BoolSetting) setToDefault(sv *Values) {
	b.set(sv, b.defaultValue)
}

// RegisterBoolSetting defines a new setting with type bool.
func RegisterBoolSetting(key, desc string, defaultValue bool) *BoolSetting {
	setting := &BoolSetting{defaultValue: defaultValue}
	register(key, desc, setting)
	return setting
}

// EncodeBool encodes a bool in the format parseRaw expects.
func EncodeBool(b bool) string {
	return strconv.FormatBool(b)
}
