// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package settings

import (
	"fmt"
	"sort"
	"sync/atomic"
)

// registry contains all defined settings, their types and default values.
//
// Registry should never be mutated after init (except in tests), as it is read
// concurrently by different callers.
var registry = map[string]wrappedSetting{}

// slotTable maps slot indices to settings, in registration order.
var slotTable [MaxSettings]Setting

// numSettings is the number of registered settings.
var numSettings int

// frozen becomes non-zero once the registry is "live".
var frozen int32

// Freeze ensures that no new settings can be defined after the first flow
// has been set up.
func Freeze() { atomic.StoreInt32(&frozen, 1) }

func assertNotFrozen(key string) {
	if atomic.LoadInt32(&frozen) > 0 {
		panic(fmt.Sprintf("registration must occur before flows start: %s", key))
	}
}

// register adds a setting to the registry.
func register(key, desc string, s internalSetting) {
	assertNotFrozen(key)
	if _, ok := registry[key]; ok {
		panic(fmt.Sprintf("setting already defined: %s", key))
	}
	if numSettings == MaxSettings {
		panic(fmt.Sprintf("too many settings; increase MaxSettings: %s", key))
	}
	s.init(key, desc, slotIdx(numSettings))
	slotTable[numSettings] = s
	numSettings++
	registry[key] = wrappedSetting{description: desc, setting: s}
}

// Hide prevents a setting from showing up in Keys(). It can still be used
// with Values.Set and Lookup if the exact setting name is known.
func Hide(key string) {
	assertNotFrozen(key)
	s, ok := registry[key]
	if !ok {
		panic(fmt.Sprintf("setting not found: %s", key))
	}
	s.hidden = true
	registry[key] = s
}

type wrappedSetting struct {
	description string
	hidden      bool
	setting     internalSetting
}

// Keys returns a sorted string array with all the known keys.
func Keys() (res []string) {
	res = make([]string, 0, len(registry))
	for k := range registry {
		if registry[k].hidden {
			continue
		}
		res = append(res, k)
	}
	sort.Strings(res)
	return res
}

// Lookup returns a Setting by name along with its description.
func Lookup(name string) (Setting, string, bool) {
	v, ok := registry[name]
	if !ok {
		return nil, "", false
	}
	return v.setting, v.description, true
}
