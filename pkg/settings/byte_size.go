// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package settings

import (
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
)

// ByteSizeSetting is the interface of a setting variable that will be
// updated automatically when the corresponding setting of type "bytesize"
// is updated.
type ByteSizeSetting struct {
	IntSetting
}

var _ internalSetting = &ByteSizeSetting{}

// Typ returns the short (1 char) string denoting the type of setting.
func (*ByteSizeSetting) Typ() string {
	return "z"
}

func (b *ByteSizeSetting) String(sv *Values) string {
	return humanize.IBytes(uint64(b.Get(sv)))
}

// DefaultString implements Setting.
func (b *ByteSizeSetting) DefaultString() string {
	return humanize.IBytes(uint64(b.defaultValue))
}

// decodeAndSet accepts both plain integers and humanized sizes such as
// "64 MiB".
func (b *ByteSizeSetting) decodeAndSet(sv *Values, encoded string) error {
	if v, err := strconv.ParseInt(encoded, 10, 64); err == nil {
		return b.set(sv, v)
	}
	v, err := humanize.ParseBytes(encoded)
	if err != nil {
		return errors.Wrapf(err, "setting %q", b.key)
	}
	return b.set(sv, int64(v))
}

// RegisterByteSizeSetting defines a new setting with type bytesize.
func RegisterByteSizeSetting(key, desc string, defaultValue int64) *ByteSizeSetting {
	setting := &ByteSizeSetting{IntSetting{defaultValue: defaultValue, validateFn: NonNegativeInt}}
	register(key, desc, setting)
	return setting
}
