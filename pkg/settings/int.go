// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package settings

import (
	"strconv"

	"github.com/cockroachdb/errors"
)

// IntSetting is the interface of a setting variable that will be updated
// automatically when the corresponding setting of type "int" is updated.
type IntSetting struct {
	common
	defaultValue int64
	validateFn   func(int64) error
}

var _ internalSetting = &IntSetting{}

// Get retrieves the int value in the setting.
func (i *IntSetting) Get(sv *Values) int64 {
	return sv.getInt64(i.slot)
}

func (i *IntSetting) String(sv *Values) string {
	return EncodeInt(i.Get(sv))
}

// DefaultString implements Setting.
func (i *IntSetting) DefaultString() string {
	return EncodeInt(i.defaultValue)
}

// Typ returns the short (1 char) string denoting the type of setting.
func (*IntSetting) Typ() string {
	return "i"
}

// Validate that a value conforms with the validation function.
func (i *IntSetting) Validate(v int64) error {
	if i.validateFn != nil {
		return i.validateFn(v)
	}
	return nil
}

// Override changes the setting without validation. For use in tests.
func (i *IntSetting) Override(sv *Values, v int64) {
	sv.setInt64(i.slot, v)
}

func (i *IntSetting) set(sv *Values, v int64) error {
	if err := i.Validate(v); err != nil {
		return err
	}
	sv.setInt64(i.slot, v)
	return nil
}

func (i *IntSetting) decodeAndSet(sv *Values, encoded string) error {
	v, err := strconv.ParseInt(encoded, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "setting %q", i.key)
	}
	return i.set(sv, v)
}

func (i *IntSetting) setToDefault(sv *Values) {
	sv.setInt64(i.slot, i.defaultValue)
}

// RegisterIntSetting defines a new setting with type int.
func RegisterIntSetting(
	key, desc string, defaultValue int64, validateFn func(int64) error,
) *IntSetting {
	if validateFn != nil {
		if err := validateFn(defaultValue); err != nil {
			panic(errors.Wrapf(err, "invalid default value for %s", key))
		}
	}
	setting := &IntSetting{defaultValue: defaultValue, validateFn: validateFn}
	register(key, desc, setting)
	return setting
}

// PositiveInt can be passed to RegisterIntSetting.
func PositiveInt(v int64) error {
	if v < 1 {
		return errors.Errorf("cannot set to a non-positive value: %d", v)
	}
	return nil
}

// NonNegativeInt can be passed to RegisterIntSetting.
func NonNegativeInt(v int64) error {
	if v < 0 {
		return errors.Errorf("cannot set to a negative value: %d", v)
	}
	return nil
}

// EncodeInt encodes an int value as a string.
func EncodeInt(i int64) string {
	return strconv.FormatInt(i, 10)
}
