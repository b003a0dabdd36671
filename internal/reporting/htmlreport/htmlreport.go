// Package htmlreport holds the HTML template of the security report.
package htmlreport

import (
	_ "embed" // Needed to trigger //go:embed directives below.
	"html/template"

	"github.com/tdewolff/minify/v2/minify"
)

// Parsing and minifying happen once at init.
var (
	//go:embed report.css
	rawCSS      string
	minifiedCSS = panicOnError(minify.CSS(rawCSS))

	//go:embed report.gohtml
	rawHTMLTemplate string

	parsedHTMLTemplate = template.Must(template.New("report.gohtml").Funcs(template.FuncMap{
		"minifiedCSS": func() template.CSS { return template.CSS(minifiedCSS) }, //nolint:gosec // Static embedded input.
	}).Parse(rawHTMLTemplate))
)

func panicOnError(s string, err error) string {
	if err != nil {
		panic(err)
	}
	return s
}

// Template returns the parsed report template.
func Template() *template.Template { return parsedHTMLTemplate }
