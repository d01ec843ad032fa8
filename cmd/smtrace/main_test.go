package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gopherjs/smtrace/internal/metrics"
	"github.com/gopherjs/smtrace/internal/testingx"
	"github.com/gopherjs/smtrace/mappings"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const mainMap = `{
  "version": 3,
  "file": "main.js",
  "sources": ["main.go", "util.go"],
  "names": ["main.Foo", "x"],
  "mappings": "AAAA,SAAS;KCCAA,E;;AACCC"
}`

const otherMap = `{"version": 3, "sources": ["b.go"], "names": [], "mappings": "AAAA"}`

const brokenMap = `{"version": 3, "mappings": "AA"}`

// mapsDir writes the test maps into a temporary directory.
func mapsDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Dir(testingx.WriteFile(t, "main.js.map", mainMap))
	for name, content := range map[string]string{"other.js.map": otherMap, "broken.js.map": brokenMap} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("Got: failed to write %s: %v. Want: no error.", name, err)
		}
	}
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := newRootCmd(out)
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	return out.String(), err
}

func TestParsePosition(t *testing.T) {
	tests := []struct {
		in         string
		wantLine   int
		wantColumn int
		wantErr    bool
	}{
		{in: "1:1", wantLine: 0, wantColumn: 0},
		{in: "12:40", wantLine: 11, wantColumn: 39},
		{in: " 3 : 4 ", wantLine: 2, wantColumn: 3},
		{in: "0:1", wantErr: true},
		{in: "1:0", wantErr: true},
		{in: "1", wantErr: true},
		{in: "a:b", wantErr: true},
	}
	for _, test := range tests {
		t.Run(test.in, func(t *testing.T) {
			line, column, err := parsePosition(test.in)
			if (err != nil) != test.wantErr {
				t.Fatalf("Got: parsePosition(%q) returned error: %v. Want error: %v.", test.in, err, test.wantErr)
			}
			if err == nil && (line != test.wantLine || column != test.wantColumn) {
				t.Errorf("Got: parsePosition(%q) = %d, %d. Want: %d, %d.", test.in, line, column, test.wantLine, test.wantColumn)
			}
		})
	}
}

func TestTraceCmd(t *testing.T) {
	path := filepath.Join(mapsDir(t), "main.js.map")
	got, err := run(t, "trace", path, "1:1", "1:13", "2:6", "2:8", "3:1", "9:9")
	if err != nil {
		t.Fatalf("Got: trace returned error: %v. Want: no error.", err)
	}
	want := strings.Join([]string{
		"1:1\tmain.go:1:1",
		"1:13\tmain.go:1:10",
		"2:6\tutil.go:2:10 (main.Foo)",
		"2:8\t-",
		"3:1\tnot found",
		"9:9\tnot found",
	}, "\n") + "\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("trace output diff (-want,+got):\n%s", diff)
	}

	if _, err := run(t, "trace", path, "1:1", "bogus"); err == nil {
		t.Errorf("Got: trace with an invalid position succeeded. Want: error.")
	}
}

func TestTraceCmdCached(t *testing.T) {
	path := filepath.Join(mapsDir(t), "main.js.map")
	cfg := testingx.WriteFile(t, "smtrace.yaml", "cache:\n  dir: "+t.TempDir()+"\n")
	for i := 0; i < 2; i++ {
		got, err := run(t, "--config", cfg, "--cache", "trace", path, "2:6")
		if err != nil {
			t.Fatalf("Got: trace returned error: %v. Want: no error.", err)
		}
		if want := "2:6\tutil.go:2:10 (main.Foo)\n"; got != want {
			t.Errorf("Got: run %d output %q. Want: %q.", i, got, want)
		}
	}
}

func TestDumpCmd(t *testing.T) {
	path := filepath.Join(mapsDir(t), "main.js.map")

	got, err := run(t, "dump", path)
	if err != nil {
		t.Fatalf("Got: dump returned error: %v. Want: no error.", err)
	}
	want := "1:\t[0 0 0 0] [9 0 0 9]\n" +
		"2:\t[5 1 1 9 0] [7]\n" +
		"3:\t\n" +
		"4:\t[0 1 2 10 1]\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("dump output diff (-want,+got):\n%s", diff)
	}

	got, err = run(t, "dump", "--resolve", "--line", "2", path)
	if err != nil {
		t.Fatalf("Got: dump --resolve returned error: %v. Want: no error.", err)
	}
	if want := "2:\t6=util.go:2:10 (main.Foo) 8=-\n"; got != want {
		t.Errorf("Got: dump --resolve output %q. Want: %q.", got, want)
	}

	if _, err := run(t, "dump", "--line", "5", path); err == nil {
		t.Errorf("Got: dump of an out of range line succeeded. Want: error.")
	}
}

func TestReadQueries(t *testing.T) {
	input := "# comment\n\nmain.js.map 1:13\n/abs/x.map 2:3\nbad line here\nmain.js.map 0:1\n"
	got, err := readQueries(strings.NewReader(input), "/maps")
	want := []batchQuery{
		{lineNo: 3, mapFile: "/maps/main.js.map", pos: "1:13", line: 0, column: 12},
		{lineNo: 4, mapFile: "/abs/x.map", pos: "2:3", line: 1, column: 2},
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(batchQuery{})); diff != "" {
		t.Errorf("readQueries() returned diff (-want,+got):\n%s", diff)
	}
	if err == nil || !strings.Contains(err.Error(), "line 5") {
		t.Errorf("Got: readQueries() returned error: %v. Want: error about line 5.", err)
	}
}

func TestBatchCmd(t *testing.T) {
	dir := mapsDir(t)
	queries := "main.js.map 1:13\nother.js.map 1:1\nmain.js.map 2:6\nbroken.js.map 1:1\nmain.js.map 3:1\n"
	queryFile := filepath.Join(dir, "queries.txt")
	if err := os.WriteFile(queryFile, []byte(queries), 0o644); err != nil {
		t.Fatalf("Got: failed to write queries: %v. Want: no error.", err)
	}

	got, err := run(t, "batch", queryFile)
	if !errors.Is(err, mappings.ErrMalformedMapping) {
		t.Errorf("Got: batch returned error: %v. Want: %v.", err, mappings.ErrMalformedMapping)
	}
	want := strings.Join([]string{
		"main.js.map 1:13\tmain.go:1:10",
		"other.js.map 1:1\tb.go:1:1",
		"main.js.map 2:6\tutil.go:2:10 (main.Foo)",
		"broken.js.map 1:1\tnot found (failed to load)",
		"main.js.map 3:1\tnot found",
	}, "\n") + "\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("batch output diff (-want,+got):\n%s", diff)
	}
}

func TestRunBatchCanceled(t *testing.T) {
	a := &app{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	queries := []batchQuery{{mapFile: "/nonexistent.map", pos: "1:1"}}
	if _, err := a.runBatch(ctx, queries, 2); !errors.Is(err, context.Canceled) {
		t.Errorf("Got: runBatch() returned error: %v. Want: %v.", err, context.Canceled)
	}
}

func TestServeTrace(t *testing.T) {
	m := metrics.New()
	s := newTraceServer(mapsDir(t), nil, m)
	srv := httptest.NewServer(s.handler())
	defer srv.Close()

	tests := []struct {
		descr      string
		query      string
		wantStatus int
		want       traceResponse
	}{{
		descr:      "named",
		query:      "map=main.js.map&line=2&column=6",
		wantStatus: http.StatusOK,
		want: traceResponse{
			Found: true, Mapped: true, Source: "util.go", Line: 2, Column: 10, Name: "main.Foo",
			Segment: []int{5, 1, 1, 9, 0},
		},
	}, {
		descr:      "gap",
		query:      "map=main.js.map&line=2&column=8",
		wantStatus: http.StatusOK,
		want:       traceResponse{Found: true, Segment: []int{7}},
	}, {
		descr:      "not found",
		query:      "map=main.js.map&line=3&column=1",
		wantStatus: http.StatusOK,
		want:       traceResponse{},
	}, {
		descr:      "bad position",
		query:      "map=main.js.map&line=0&column=1",
		wantStatus: http.StatusBadRequest,
	}, {
		descr:      "path traversal",
		query:      "map=../main.js.map&line=1&column=1",
		wantStatus: http.StatusBadRequest,
	}, {
		descr:      "unknown map",
		query:      "map=missing.js.map&line=1&column=1",
		wantStatus: http.StatusNotFound,
	}, {
		descr:      "malformed map",
		query:      "map=broken.js.map&line=1&column=1",
		wantStatus: http.StatusUnprocessableEntity,
	}}

	for _, test := range tests {
		t.Run(test.descr, func(t *testing.T) {
			resp, err := http.Get(srv.URL + "/trace?" + test.query)
			if err != nil {
				t.Fatalf("Got: GET returned error: %v. Want: no error.", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != test.wantStatus {
				t.Fatalf("Got: status %d. Want: %d.", resp.StatusCode, test.wantStatus)
			}
			if resp.StatusCode != http.StatusOK {
				return
			}
			var got traceResponse
			if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
				t.Fatalf("Got: failed to decode response: %v. Want: no error.", err)
			}
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Errorf("GET /trace?%s returned diff (-want,+got):\n%s", test.query, diff)
			}
		})
	}

	resp, err := http.Post(srv.URL+"/trace?map=main.js.map&line=1&column=1", "text/plain", strings.NewReader(""))
	if err != nil {
		t.Fatalf("Got: POST returned error: %v. Want: no error.", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Got: POST /trace status %d. Want: %d.", resp.StatusCode, http.StatusMethodNotAllowed)
	}
	if got := resp.Header.Get("Allow"); !strings.Contains(got, http.MethodGet) {
		t.Errorf("Got: Allow header %q. Want: it to list %s.", got, http.MethodGet)
	}

	if got := testutil.ToFloat64(m.MapsDecoded); got != 1 {
		t.Errorf("Got: %v maps decoded. Want: 1, loaded once and reused.", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/trace", "404")); got != 1 {
		t.Errorf("Got: %v requests with status 404. Want: 1.", got)
	}
}
