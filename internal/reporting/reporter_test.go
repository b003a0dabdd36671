// internal/reporting/reporter_test.go
package reporting_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/authprobe/internal/reporting"
	"github.com/xkilldash9x/authprobe/internal/results"
)

var now = time.Date(2025, 1, 15, 9, 5, 7, 0, time.Local)

func testReport() *reporting.Report {
	rs := []results.TestResult{
		{Name: "Login avec credentials valides", Passed: true, Details: "ok", Timestamp: results.NewTimestamp(now)},
		{Name: "Protection XSS", Passed: false, Details: "Vulnérabilités détectées: Alerte XSS déclenchée: XSS", Timestamp: results.NewTimestamp(now)},
	}
	return reporting.NewReport("http://localhost:4201", "", rs, now)
}

// TestNew_Stdout tests creating reporters writing to stdout.
func TestNew_Stdout(t *testing.T) {
	for _, path := range []string{"", "stdout"} {
		r, err := reporting.New("json", path, reporting.Options{})
		require.NoError(t, err)
		assert.NotNil(t, r)
		// Close is a no-op for the stdout wrapper.
		assert.NoError(t, r.Close())
	}
}

// TestNew_File writes every format to a file and checks the file content.
func TestNew_File(t *testing.T) {
	for _, format := range []string{"json", "html", "sarif", "HTML"} {
		t.Run(format, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out."+format)
			r, err := reporting.New(format, path, reporting.Options{Logger: zaptest.NewLogger(t)})
			require.NoError(t, err)
			assert.FileExists(t, path, "file is created by New")

			require.NoError(t, r.Write(testReport()))
			require.NoError(t, r.Close())

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.NotEmpty(t, data)
		})
	}
}

func TestWriteTwice(t *testing.T) {
	r, err := reporting.New("json", filepath.Join(t.TempDir(), "out.json"), reporting.Options{})
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Write(testReport()))
	assert.ErrorContains(t, r.Write(testReport()), "already written")
	assert.ErrorContains(t, r.Write(nil), "report cannot be nil")
}

// TestNew_UnsupportedFormat checks that no file is created for an unknown format.
func TestNew_UnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.txt")
	r, err := reporting.New("invalid-format", path, reporting.Options{})
	assert.Nil(t, r)
	assert.EqualError(t, err, "unsupported output format: invalid-format")
	assert.NoFileExists(t, path)
}

// TestNew_FileCreation tests errors during output file creation.
func TestNew_FileCreation(t *testing.T) {
	// A directory cannot be opened as the output file.
	r, err := reporting.New("json", t.TempDir(), reporting.Options{})
	assert.Nil(t, r)
	assert.ErrorContains(t, err, "failed to create output file")
}

func TestFileName(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "security_report_20250115_090507.json"), reporting.FileName("out", "json", now))
	assert.Equal(t, filepath.Join("out", "security_report_20250115_090507.html"), reporting.FileName("out", "HTML", now))
}

func TestLatest(t *testing.T) {
	dir := t.TempDir()
	_, err := reporting.Latest(dir)
	assert.ErrorIs(t, err, reporting.ErrNoReport)

	for _, ts := range []time.Time{now, now.Add(-time.Hour), now.Add(time.Minute)} {
		require.NoError(t, os.WriteFile(reporting.FileName(dir, "json", ts), []byte("{}"), 0o644))
	}
	require.NoError(t, os.WriteFile(reporting.FileName(dir, "html", now.Add(time.Hour)), nil, 0o644))

	got, err := reporting.Latest(dir)
	require.NoError(t, err)
	assert.Equal(t, reporting.FileName(dir, "json", now.Add(time.Minute)), got)
}

func TestScreenshotLinksFollowReportDir(t *testing.T) {
	dir := t.TempDir()
	report := testReport()
	report.Results[1].Screenshot = filepath.Join(dir, "shots", "protection_xss.png")

	paths, err := reporting.WriteAll(report, filepath.Join(dir, "reports"), []string{"html"}, now, reporting.Options{})
	require.NoError(t, err)
	html, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Contains(t, string(html), `<a href="../shots/protection_xss.png">`)

	rendered, err := reporting.RenderHTML(report, reporting.Options{BaseDir: filepath.Join(dir, "shots")})
	require.NoError(t, err)
	assert.Contains(t, string(rendered), `<a href="protection_xss.png">`)
}

func TestWriteAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	paths, err := reporting.WriteAll(testReport(), dir, []string{"json", "html"}, now, reporting.Options{})
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "security_report_20250115_090507.json"),
		filepath.Join(dir, "security_report_20250115_090507.html"),
	}, paths)

	loaded, err := reporting.LoadReport(paths[0])
	require.NoError(t, err)
	assert.Equal(t, testReport().Summary, loaded.Summary)

	// Rendering the reloaded report yields the same document.
	html, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	again, err := reporting.RenderHTML(loaded, reporting.Options{})
	require.NoError(t, err)
	assert.Equal(t, string(html), string(again))
}

func TestWriteAllStopsOnBadFormat(t *testing.T) {
	dir := t.TempDir()
	paths, err := reporting.WriteAll(testReport(), dir, []string{"json", "pdf"}, now, reporting.Options{})
	assert.ErrorContains(t, err, "unsupported output format: pdf")
	assert.Len(t, paths, 1)
}
