package dashserve

import (
	"bytes"
	"io"
	"io/fs"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/ericselin/dashserve/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

var (
	entryHTML = []byte("<!doctype html><div id=\"root\"></div>")
	bundleJS  = []byte("console.log('dashboard')")
	logoPNG   = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x01}
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"index.html":             &fstest.MapFile{Data: entryHTML},
		"assets/index-abc123.js": &fstest.MapFile{Data: bundleJS},
		"logo.png":               &fstest.MapFile{Data: logoPNG},
		"sw.js":                  &fstest.MapFile{Data: []byte("// stale worker")},
		"magazine":               &fstest.MapFile{Mode: fs.ModeDir},
	}
}

func newTestServer(root fs.FS, killSwitch bool) *Server {
	logger := zerolog.Nop()
	return New(Config{Root: root, Logger: &logger, KillSwitch: killSwitch})
}

func get(t *testing.T, h http.Handler, method, path string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr.Result()
}

func body(t *testing.T, res *http.Response) []byte {
	t.Helper()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestServesExistingAssets(t *testing.T) {
	s := newTestServer(testFS(), false)
	cases := map[string][]byte{
		"/assets/index-abc123.js": bundleJS,
		"/logo.png":               logoPNG,
		"/index.html":             entryHTML,
		"/sw.js":                  []byte("// stale worker"),
	}
	for path, want := range cases {
		res := get(t, s, "GET", path)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("%s: status is %d", path, res.StatusCode)
		}
		if b := body(t, res); !bytes.Equal(b, want) {
			t.Fatalf("%s: body is %q", path, b)
		}
	}
}

func TestContentTypes(t *testing.T) {
	s := newTestServer(testFS(), false)
	cases := map[string]string{
		"/assets/index-abc123.js": "javascript",
		"/logo.png":               "image/png",
		"/pwa/login":              "text/html",
	}
	for path, want := range cases {
		if ct := get(t, s, "GET", path).Header.Get("Content-Type"); !strings.Contains(ct, want) {
			t.Fatalf("%s: Content-Type is %s", path, ct)
		}
	}
}

func TestFallsBackToEntryDocument(t *testing.T) {
	s := newTestServer(testFS(), false)
	for _, path := range []string{
		"/",
		"/staff-install",
		"/pwa/login",
		"/magazine/foo",
		"/magazine",
		"/assets/missing.js",
		"/../../etc/passwd",
		"/pwa/login?next=%2Fdashboard",
	} {
		res := get(t, s, "GET", path)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("%s: status is %d", path, res.StatusCode)
		}
		if b := body(t, res); !bytes.Equal(b, entryHTML) {
			t.Fatalf("%s: body is %q", path, b)
		}
	}
}

func TestHead(t *testing.T) {
	s := newTestServer(testFS(), false)
	res := get(t, s, "HEAD", "/magazine/foo")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("Status is %d", res.StatusCode)
	}
	if b := body(t, res); len(b) != 0 {
		t.Fatalf("HEAD body is %q", b)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(testFS(), false)
	if res := get(t, s, "POST", "/pwa/login"); res.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("Status is %d", res.StatusCode)
	}
}

func TestMissingEntryDocumentFailsPerRequest(t *testing.T) {
	root := testFS()
	delete(root, "index.html")
	s := newTestServer(root, false)

	res := get(t, s, "GET", "/pwa/login")
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("Status is %d", res.StatusCode)
	}
	// the server keeps serving files that exist
	if res := get(t, s, "GET", "/logo.png"); res.StatusCode != http.StatusOK {
		t.Fatalf("Status after failure is %d", res.StatusCode)
	}
}

func TestMissingRoot(t *testing.T) {
	s := newTestServer(nil, false)
	if res := get(t, s, "GET", "/"); res.StatusCode != http.StatusNotFound {
		t.Fatalf("Status is %d", res.StatusCode)
	}
}

func TestCacheHeaders(t *testing.T) {
	s := newTestServer(testFS(), false)
	cases := map[string]string{
		"/assets/index-abc123.js": "public, max-age=31536000, immutable",
		"/logo.png":               "no-cache",
		"/magazine/foo":           "no-cache",
	}
	for path, want := range cases {
		if cc := get(t, s, "GET", path).Header.Get("Cache-Control"); cc != want {
			t.Fatalf("%s: Cache-Control is %s", path, cc)
		}
	}
}

func TestKillSwitchOverridesWorker(t *testing.T) {
	s := newTestServer(testFS(), true)
	want, err := worker.Script(worker.ScriptWorker)
	if err != nil {
		t.Fatal(err)
	}

	res := get(t, s, "GET", "/sw.js")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("Status is %d", res.StatusCode)
	}
	if b := body(t, res); !bytes.Equal(b, want) {
		t.Fatalf("Body is %q", b)
	}
	if swa := res.Header.Get("Service-Worker-Allowed"); swa != "/" {
		t.Fatalf("Service-Worker-Allowed is %s", swa)
	}
	if cc := res.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Fatalf("Cache-Control is %s", cc)
	}
	if ct := res.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/javascript") {
		t.Fatalf("Content-Type is %s", ct)
	}

	clear := get(t, s, "GET", "/sw-clear.js")
	if b := body(t, clear); !bytes.Contains(b, []byte("clearAll")) {
		t.Fatalf("Clear script body is %q", b)
	}
}

func TestCustomWorkerPath(t *testing.T) {
	logger := zerolog.Nop()
	s := New(Config{Root: testFS(), Logger: &logger, KillSwitch: true, WorkerPath: "/pwa/service-worker.js"})
	res := get(t, s, "GET", "/pwa/service-worker.js")
	if swa := res.Header.Get("Service-Worker-Allowed"); swa != "/" {
		t.Fatalf("Service-Worker-Allowed is %s", swa)
	}
	if res := get(t, s, "GET", "/pwa/sw-clear.js"); res.Header.Get("Service-Worker-Allowed") != "/" {
		t.Fatal("Clear script not served next to the worker")
	}
	// the default path is a plain file again
	if b := body(t, get(t, s, "GET", "/sw.js")); string(b) != "// stale worker" {
		t.Fatalf("Body is %q", b)
	}
}

func TestRelativeWorkerPathAndRootedEntry(t *testing.T) {
	logger := zerolog.Nop()
	s := New(Config{Root: testFS(), Logger: &logger, KillSwitch: true, WorkerPath: "sw.js", Entry: "/index.html"})
	res := get(t, s, "GET", "/sw.js")
	if b := body(t, res); !bytes.Equal(b, mustScript(t, worker.ScriptWorker)) {
		t.Fatalf("Worker body is %q", b)
	}
	res = get(t, s, "GET", "/pwa/login")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("Status is %d", res.StatusCode)
	}
	if b := body(t, res); !bytes.Equal(b, entryHTML) {
		t.Fatalf("Body is %q", b)
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	logger := zerolog.Nop()
	s := New(Config{Root: testFS(), Logger: &logger, Metrics: NewMetrics(reg), KillSwitch: true})

	get(t, s, "GET", "/logo.png")
	get(t, s, "GET", "/pwa/login")
	get(t, s, "GET", "/magazine/foo")
	get(t, s, "GET", "/sw.js")

	m := s.metrics
	if n := testutil.ToFloat64(m.requests.WithLabelValues("file", "200")); n != 1 {
		t.Fatalf("file requests %v", n)
	}
	if n := testutil.ToFloat64(m.requests.WithLabelValues("entry", "200")); n != 2 {
		t.Fatalf("entry requests %v", n)
	}
	if n := testutil.ToFloat64(m.requests.WithLabelValues("worker", "200")); n != 1 {
		t.Fatalf("worker requests %v", n)
	}
}

func TestRequestLogLine(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	s := New(Config{Root: testFS(), Logger: &logger})
	get(t, s, "GET", "/pwa/login")
	line := buf.String()
	for _, want := range []string{`"target":"entry"`, `"status":200`, `"url":"/pwa/login"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("Log line %s does not contain %s", line, want)
		}
	}
}

func TestOverHTTP(t *testing.T) {
	srv := httptest.NewServer(newTestServer(testFS(), false))
	defer srv.Close()
	res, err := http.Get(srv.URL + "/magazine/foo")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if b := body(t, res); res.StatusCode != 200 || !bytes.Equal(b, entryHTML) {
		t.Fatalf("Got %d %q", res.StatusCode, b)
	}
}

func TestGetRequestSourceIp(t *testing.T) {
	cases := map[string]string{
		"1.2.3.4:10000":  "1.2.3.4",
		"[::1]:10000":    "::1",
		"no-port-at-all": "no-port-at-all",
	}
	for addr, want := range cases {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = addr
		if ip := getRequestSourceIp(r); ip != want {
			t.Fatalf("%s: ip is %s", addr, ip)
		}
	}
}

func TestNetworkURLs(t *testing.T) {
	addrs := []net.Addr{
		&net.IPNet{IP: net.ParseIP("127.0.0.1"), Mask: net.CIDRMask(8, 32)},
		&net.IPNet{IP: net.ParseIP("192.168.1.20"), Mask: net.CIDRMask(24, 32)},
		&net.IPNet{IP: net.ParseIP("fe80::1"), Mask: net.CIDRMask(64, 128)},
		&net.IPAddr{IP: net.ParseIP("10.0.0.5")},
	}
	urls := networkURLs(addrs, 8085)
	want := []string{"http://10.0.0.5:8085", "http://192.168.1.20:8085"}
	if strings.Join(urls, ",") != strings.Join(want, ",") {
		t.Fatalf("URLs are %v", urls)
	}
}

func mustScript(t *testing.T, name string) []byte {
	t.Helper()
	b, err := worker.Script(name)
	if err != nil {
		t.Fatal(err)
	}
	return b
}
