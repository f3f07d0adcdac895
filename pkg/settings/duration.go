// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package settings

import (
	"time"

	"github.com/cockroachdb/errors"
)

// DurationSetting is the interface of a setting variable that will be
// updated automatically when the corresponding setting of type "duration"
// is updated.
type DurationSetting struct {
	common
	defaultValue time.Duration
}

var _ internalSetting = &DurationSetting{}

// Get retrieves the duration value in the setting.
func (d *DurationSetting) Get(sv *Values) time.Duration {
	return time.Duration(sv.getInt64(d.slot))
}

func (d *DurationSetting) String(sv *Values) string {
	return EncodeDuration(d.Get(sv))
}

// DefaultString implements Setting.
func (d *DurationSetting) DefaultString() string {
	return EncodeDuration(d.defaultValue)
}

// Typ returns the short (1 char) string denoting the type of setting.
func (*DurationSetting) Typ() string {
	return "d"
}

// Override changes the setting. For use in tests.
func (d *DurationSetting) Override(sv *Values, v time.Duration) {
	sv.setInt64(d.slot, int64(v))
}

func (d *DurationSetting) decodeAndSet(sv *Values, encoded string) error {
	v, err := time.ParseDuration(encoded)
	if err != nil {
		return errors.Wrapf(err, "setting %q", d.key)
	}
	if v < 0 {
		return errors.Errorf("cannot set %s to a negative duration: %s", d.key, v)
	}
	sv.setInt64(d.slot, int64(v))
	return nil
}

func (d *DurationSetting) setToDefault(sv *Values) {
	sv.setInt64(d.slot, int64(d.defaultValue))
}

// RegisterDurationSetting defines a new setting with type duration.
func RegisterDurationSetting(key, desc string, defaultValue time.Duration) *DurationSetting {
	setting := &DurationSetting{defaultValue: defaultValue}
	register(key, desc, setting)
	return setting
}

// EncodeDuration encodes a duration in the format parseRaw expects.
func EncodeDuration(d time.Duration) string {
	return d.String()
}
