// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package settings

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vexec/pkg/util/syncutil"
)

// Values is a container that stores values for all registered settings.
// Each setting is assigned a unique slot (up to MaxSettings).
type Values struct {
	intVals [MaxSettings]int64

	changeMu struct {
		syncutil.Mutex
		// onChangeCh contains channels that get a non-blocking send whenever
		// the corresponding slot changes.
		onChangeCh [MaxSettings][]chan struct{}
	}
}

// MakeValues returns a Values container holding the default value of every
// registered setting.
func MakeValues() *Values {
	sv := &Values{}
	for i := 0; i < numSettings; i++ {
		slotTable[i].(internalSetting).setToDefault(sv)
	}
	return sv
}

func (sv *Values) getInt64(slot slotIdx) int64 {
	return atomic.LoadInt64(&sv.intVals[slot])
}

func (sv *Values) setInt64(slot slotIdx, newVal int64) {
	if atomic.SwapInt64(&sv.intVals[slot], newVal) == newVal {
		return
	}
	sv.settingChanged(slot)
}

func (sv *Values) settingChanged(slot slotIdx) {
	sv.changeMu.Lock()
	defer sv.changeMu.Unlock()
	for _, ch := range sv.changeMu.onChangeCh[slot] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (sv *Values) addOnChangeCh(ch chan struct{}, slots ...slotIdx) {
	sv.changeMu.Lock()
	defer sv.changeMu.Unlock()
	for _, slot := range slots {
		sv.changeMu.onChangeCh[slot] = append(sv.changeMu.onChangeCh[slot], ch)
	}
}

func (sv *Values) removeOnChangeCh(ch chan struct{}, slots ...slotIdx) {
	sv.changeMu.Lock()
	defer sv.changeMu.Unlock()
	for _, slot := range slots {
		chans := sv.changeMu.onChangeCh[slot]
		for i := range chans {
			if chans[i] == ch {
				sv.changeMu.onChangeCh[slot] = append(chans[:i:i], chans[i+1:]...)
				break
			}
		}
	}
}

// Set parses encoded and stores it as the value of the setting named key.
// An invalid value leaves the previous one in place.
func (sv *Values) Set(key, encoded string) error {
	w, ok := registry[key]
	if !ok {
		return errors.Errorf("unknown setting %q", key)
	}
	return w.setting.decodeAndSet(sv, encoded)
}

// Reset restores the default value of the setting named key.
func (sv *Values) Reset(key string) error {
	w, ok := registry[key]
	if !ok {
		return errors.Errorf("unknown setting %q", key)
	}
	w.setting.setToDefault(sv)
	return nil
}
