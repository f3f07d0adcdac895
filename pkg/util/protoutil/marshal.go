// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package protoutil

import (
	"github.com/cockroachdb/errors"
	"github.com/gogo/protobuf/proto"
)

// Interceptor will be called with every proto before it is marshaled.
// Interceptor is not safe to modify concurrently with calls to Marshal.
var Interceptor = func(_ proto.Message) {}

// Marshal encodes pb into the wire format. It is used throughout the code base
// to intercept calls to proto.Marshal.
func Marshal(pb proto.Message) ([]byte, error) {
	Interceptor(pb)
	data, err := proto.Marshal(pb)
	if err != nil {
		return nil, errors.Wrapf(err, "marshaling %T", pb)
	}
	return data, nil
}

// Unmarshal parses the protocol buffer representation in buf and places the
// decoded result in pb.
//
// Unmarshal resets pb before starting to unmarshal, so any existing data in pb
// is always removed.
func Unmarshal(data []byte, pb proto.Message) error {
	pb.Reset()
	if err := proto.Unmarshal(data, pb); err != nil {
		return errors.Wrapf(err, "unmarshaling %T", pb)
	}
	return nil
}

// Clone returns a deep copy of pb.
func Clone(pb proto.Message) proto.Message {
	return proto.Clone(pb)
}
