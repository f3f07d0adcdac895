// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package protoutil_test

import (
	"testing"

	"github.com/cockroachdb/vexec/pkg/sql/execinfrapb"
	"github.com/cockroachdb/vexec/pkg/util/protoutil"
	"github.com/gogo/protobuf/proto"
	"github.com/stretchr/testify/require"
)

func TestMarshalInterceptor(t *testing.T) {
	var seen []proto.Message
	defer func(prev func(proto.Message)) { protoutil.Interceptor = prev }(protoutil.Interceptor)
	protoutil.Interceptor = func(pb proto.Message) { seen = append(seen, pb) }

	in := &execinfrapb.TableXattr{ReaderType: execinfrapb.ReaderType_BASIC, InputFormat: execinfrapb.FileFormat_AVRO}
	data, err := protoutil.Marshal(in)
	require.NoError(t, err)
	require.Len(t, seen, 1)

	out := &execinfrapb.TableXattr{ReaderType: execinfrapb.ReaderType_NATIVE_PARQUET}
	require.NoError(t, protoutil.Unmarshal(data, out))
	require.True(t, proto.Equal(in, out))

	clone := protoutil.Clone(out).(*execinfrapb.TableXattr)
	clone.InputFormat = execinfrapb.FileFormat_TEXT
	require.Equal(t, execinfrapb.FileFormat_AVRO, out.InputFormat)
}

func TestUnmarshalGarbage(t *testing.T) {
	err := protoutil.Unmarshal([]byte{0xff, 0xff, 0xff}, &execinfrapb.TableXattr{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unmarshaling *execinfrapb.TableXattr")
}
