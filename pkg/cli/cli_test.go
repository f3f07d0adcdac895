// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package cli

import (
	"bytes"
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/vexec/pkg/settings"
	"github.com/cockroachdb/vexec/pkg/sql/execinfra"
	"github.com/cockroachdb/vexec/pkg/sql/physicalplan"
	"github.com/cockroachdb/vexec/pkg/util/leaktest"
	"github.com/cockroachdb/vexec/pkg/util/log"
	"github.com/linkedin/goavro/v2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const kvAvroSchema = `{
  "type": "record",
  "name": "kv",
  "fields": [
    {"name": "k", "type": "long"},
    {"name": "v", "type": "string"}
  ]
}`

// runCLI runs vexec with args against fs and returns what it printed.
func runCLI(t *testing.T, fs afero.Fs, args ...string) (string, error) {
	t.Helper()
	defer func(prev afero.Fs) { cliFS = prev }(cliFS)
	cliFS = fs
	setRunContextDefaults()
	var buf bytes.Buffer
	vexecCmd.SetOut(&buf)
	defer vexecCmd.SetOut(nil)
	err := Run(args)
	return buf.String(), err
}

func writeAvro(t *testing.T, fs afero.Fs, path string, lines []string) {
	var buf bytes.Buffer
	w, err := goavro.NewOCFWriter(goavro.OCFConfig{W: &buf, Schema: kvAvroSchema})
	require.NoError(t, err)
	var recs []interface{}
	for _, line := range lines {
		fields := strings.Fields(line)
		require.Len(t, fields, 2, "expected \"<k> <v>\", got %q", line)
		k, err := strconv.ParseInt(fields[0], 10, 64)
		require.NoError(t, err)
		recs = append(recs, map[string]interface{}{"k": k, "v": fields[1]})
	}
	require.NoError(t, w.Append(recs))
	require.NoError(t, afero.WriteFile(fs, path, buf.Bytes(), 0644))
}

// TestRun runs the plans of testdata/run. The commands are:
//
//   - write-avro path=<path>: writes "<k> <v>" rows to an Avro file.
//   - tables: sets the tables section prepended to every following plan.
//   - run [flag[=value]...]: runs the plan given as input with the flags and
//     prints the output, or the error.
func TestRun(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	fs := afero.NewMemMapFs()
	var tables string
	datadriven.RunTest(t, "testdata/run", func(t *testing.T, d *datadriven.TestData) string {
		switch d.Cmd {
		case "write-avro":
			var path string
			d.ScanArgs(t, "path", &path)
			writeAvro(t, fs, path, strings.Split(strings.TrimSpace(d.Input), "\n"))
			return ""

		case "tables":
			tables = d.Input + "\n"
			return ""

		case "run":
			require.NoError(t, afero.WriteFile(fs, "/plan.yaml", []byte(tables+d.Input+"\n"), 0644))
			args := []string{"run", "/plan.yaml"}
			for _, arg := range d.CmdArgs {
				if len(arg.Vals) == 0 {
					args = append(args, "--"+arg.Key)
				} else {
					args = append(args, "--"+arg.Key+"="+arg.Vals[0])
				}
			}
			out, err := runCLI(t, fs, args...)
			if err != nil {
				out += "error: " + err.Error() + "\n"
			}
			return out

		default:
			d.Fatalf(t, "unknown command %s", d.Cmd)
			return ""
		}
	})
}

func TestRunStats(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	fs := afero.NewMemMapFs()
	writeAvro(t, fs, "/data/a.avro", []string{"1 a", "2 b"})
	require.NoError(t, afero.WriteFile(fs, "/plan.yaml", []byte(`
tables:
  a:
    reader: basic
    format: avro
    columns: [{name: k, type: INT8}, {name: v, type: STRING}]
    files: [{path: /data/a.avro}]
plan:
  scan: {table: a}
`), 0644))

	out, err := runCLI(t, fs, "run", "--plan=/plan.yaml", "--stats", "--format=csv")
	require.NoError(t, err)
	require.Contains(t, out, "2 rows\nk,v\n1,a\n2,b\n")
	require.Contains(t, out, "scan a #1")
	require.Contains(t, out, "peak memory: ")
	require.Contains(t, out, "sql_exec_fragments_started")
}

func TestRunErrors(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	fs := afero.NewMemMapFs()

	_, err := runCLI(t, fs, "run")
	require.EqualError(t, err, "no plan file given")

	_, err = runCLI(t, fs, "run", "/missing.yaml")
	require.ErrorContains(t, err, "reading plan file")

	require.NoError(t, afero.WriteFile(fs, "/bad.yaml", []byte("plan: {scan: {table: a, bogus: 1}}\n"), 0644))
	_, err = runCLI(t, fs, "run", "/bad.yaml")
	require.ErrorContains(t, err, "field bogus not found")

	require.NoError(t, afero.WriteFile(fs, "/empty.yaml", []byte("tables: {}\n"), 0644))
	_, err = runCLI(t, fs, "run", "/empty.yaml")
	require.EqualError(t, err, "plan file has no plan")

	_, err = runCLI(t, fs, "run", "--format=xml", "/empty.yaml")
	require.ErrorContains(t, err, "invalid table display format: xml")
}

func TestApplySettings(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	sv := settings.MakeValues()
	require.NoError(t, applySettings(sv,
		map[string]string{"sql.exec.batch_size": "16"},
		[]string{"sql.exec.batch_size = 32"},
		"64MiB",
	))
	require.Equal(t, int64(32), execinfra.BatchSizeSetting.Get(sv))
	require.Equal(t, int64(64<<20), execinfra.MaxBufferedBytes.Get(sv))

	require.ErrorContains(t, applySettings(sv, nil, []string{"sql.exec.batch_size"}, ""), "expected key=value")
	require.ErrorContains(t, applySettings(sv, nil, nil, "lots"), "--max-memory")
}

func TestSettingsCommand(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	out, err := runCLI(t, afero.NewMemMapFs(), "settings")
	require.NoError(t, err)
	for _, key := range []string{
		"sql.exec.batch_size",
		"sql.exec.max_buffered_bytes",
		"sql.exec.max_running_fragments",
	} {
		require.Contains(t, out, key)
	}
}

func TestPlanFileIDs(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	pf, err := parsePlanFile([]byte(`
tables:
  a:
    format: avro
    partition_columns: [p]
    columns: [{name: k, type: INT8}, {name: p, type: STRING, nullable: true}]
    files:
      - {path: /a/1.avro, partition: {p: x}}
      - {path: /a/2.avro, format: parquet}
plan:
  union_all:
    - scan: {table: a}
    - limit: {count: 1, input: {scan: {table: a, columns: [k, p]}}}
`))
	require.NoError(t, err)
	plan, err := pf.physicalPlan()
	require.NoError(t, err)

	u := plan.(*physicalplan.UnionAll)
	first := u.Inputs[0].(*physicalplan.Scan)
	limit := u.Inputs[1].(*physicalplan.Limit)
	second := limit.Input().(*physicalplan.Scan)
	require.Equal(t, int32(1), first.Props().OperatorID)
	require.Equal(t, int32(2), second.Props().OperatorID)
	require.Equal(t, int32(3), limit.Props().OperatorID)
	require.Equal(t, int32(4), u.Props().OperatorID)

	splits := first.Spec.Splits
	require.Len(t, splits, 2)
	require.Equal(t, "x", splits[0].PartitionValues[0].Value)
	require.True(t, splits[0].PartitionValues[0].IsValid)
	// A partition value missing from the file is NULL.
	require.False(t, splits[1].PartitionValues[0].IsValid)
	require.Nil(t, splits[0].PartitionXattr)
	require.Equal(t, "PARQUET", splits[1].PartitionXattr.InputFormat.String())
	require.Equal(t, []string{"k", "p"}, second.Spec.Columns)
}
