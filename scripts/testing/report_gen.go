// report_gen merges `go test -json` output with the TestPurpose / Scope /
// Security / Expected / Test Case ID annotations found on test functions
// and writes JSON and Markdown reports.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const modulePath = "github.com/opentrusty/enterprise/"

// TestMetadata holds info parsed from Go source comments
type TestMetadata struct {
	Name       string `json:"name"`
	Purpose    string `json:"purpose,omitempty"`
	Scope      string `json:"scope,omitempty"`
	Security   string `json:"security,omitempty"`
	Expected   string `json:"expected,omitempty"`
	TestCaseID string `json:"test_case_id,omitempty"`
	Package    string `json:"package"`
	Category   string `json:"category"`
}

// GoTestEvent represents a single event from 'go test -json'
type GoTestEvent struct {
	Time    time.Time `json:"Time"`
	Action  string    `json:"Action"`
	Package string    `json:"Package"`
	Test    string    `json:"Test"`
	Elapsed float64   `json:"Elapsed"`
	Output  string    `json:"Output"`
}

// TestResult is the merged result for a single test
type TestResult struct {
	Name        string       `json:"name"`
	Status      string       `json:"status"`
	Elapsed     float64      `json:"elapsed_seconds"`
	Package     string       `json:"package"`
	Failure     string       `json:"failure_reason,omitempty"`
	Annotations TestMetadata `json:"annotations"`
}

// ReportSummary holds top-level stats
type ReportSummary struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Total       int          `json:"total"`
	Passed      int          `json:"passed"`
	Failed      int          `json:"failed"`
	Skipped     int          `json:"skipped"`
	Results     []TestResult `json:"results"`
}

// categories maps package path fragments to report sections, in report order
var categories = []struct {
	fragment string
	name     string
}{
	{"internal/customer", "Customers"},
	{"internal/enrollment", "Enrollment"},
	{"internal/subsidy", "Subsidies"},
	{"internal/authz", "AuthZ"},
	{"internal/integration", "Integrated Channels"},
	{"internal/catalog", "Catalogs"},
	{"internal/transport/http", "API"},
	{"internal/store", "Storage"},
	{"internal/audit", "Audit"},
}

func main() {
	inputPath := flag.String("input", "", "Path to go test -json output file")
	outputJSON := flag.String("out-json", "", "Path for output JSON report")
	outputMD := flag.String("out-md", "", "Path for output Markdown report")
	title := flag.String("title", "Test Report", "Report title")
	only := flag.String("categories", "", "Comma-separated list of categories to include")
	flag.Parse()

	if *inputPath == "" || *outputJSON == "" || *outputMD == "" {
		fmt.Println("Usage: report_gen -input <json_file> -out-json <out_json> -out-md <out_md>")
		os.Exit(1)
	}

	meta, err := scanMetadata(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to scan tests: %v\n", err)
		os.Exit(1)
	}

	f, err := os.Open(*inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open test output: %v\n", err)
		os.Exit(1)
	}
	results, err := mergeResults(f, meta)
	f.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read test output: %v\n", err)
		os.Exit(1)
	}

	if *only != "" {
		results = filterCategories(results, strings.Split(*only, ","))
	}

	summary := summarize(results, time.Now())
	if err := writeFile(*outputJSON, func() ([]byte, error) { return json.MarshalIndent(summary, "", "  ") }); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write json report: %v\n", err)
		os.Exit(1)
	}
	if err := writeFile(*outputMD, func() ([]byte, error) { return []byte(renderMarkdown(summary, *title)), nil }); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write markdown report: %v\n", err)
		os.Exit(1)
	}

	// CI gates on the exit code
	if summary.Failed > 0 {
		fmt.Printf("\n❌ Test Reporting: %d tests failed. Exiting with error.\n", summary.Failed)
		os.Exit(1)
	}
}

// scanMetadata collects annotations from every test function under root
func scanMetadata(root string) (map[string]TestMetadata, error) {
	out := make(map[string]TestMetadata)
	fset := token.NewFileSet()

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if name := d.Name(); name == "vendor" || name == ".git" || strings.HasPrefix(name, "_") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, "_test.go") {
			return nil
		}

		node, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
		if err != nil {
			return nil
		}

		pkg := packagePath(root, path)
		for _, decl := range node.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || !strings.HasPrefix(fn.Name.Name, "Test") {
				continue
			}
			m := parseAnnotations(fn.Doc)
			m.Name = fn.Name.Name
			m.Package = pkg
			m.Category = categoryOf(pkg)
			out[pkg+"."+fn.Name.Name] = m
		}
		return nil
	})
	return out, err
}

func parseAnnotations(doc *ast.CommentGroup) TestMetadata {
	var m TestMetadata
	if doc == nil {
		return m
	}
	fields := map[string]*string{
		"TestPurpose:":  &m.Purpose,
		"Scope:":        &m.Scope,
		"Security:":     &m.Security,
		"Expected:":     &m.Expected,
		"Test Case ID:": &m.TestCaseID,
	}
	for _, c := range doc.List {
		text := strings.TrimSpace(strings.TrimPrefix(c.Text, "//"))
		for prefix, dst := range fields {
			if strings.HasPrefix(text, prefix) {
				*dst = strings.TrimSpace(strings.TrimPrefix(text, prefix))
			}
		}
	}
	return m
}

func packagePath(root, file string) string {
	dir, err := filepath.Rel(root, filepath.Dir(file))
	if err != nil || dir == "." {
		return strings.TrimSuffix(modulePath, "/")
	}
	return modulePath + filepath.ToSlash(dir)
}

func categoryOf(pkg string) string {
	for _, c := range categories {
		if strings.Contains(pkg, c.fragment) {
			return c.name
		}
	}
	return "Other"
}

// mergeResults folds test events into one result per test. Annotated
// tests that never ran are reported as "not run"; subtests inherit the
// annotations of their parent.
func mergeResults(r io.Reader, meta map[string]TestMetadata) ([]TestResult, error) {
	states := make(map[string]*TestResult, len(meta))
	for key, m := range meta {
		states[key] = &TestResult{Name: m.Name, Package: m.Package, Status: "not run", Annotations: m}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev GoTestEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil || ev.Test == "" {
			continue
		}

		key := ev.Package + "." + ev.Test
		res, ok := states[key]
		if !ok {
			m := TestMetadata{Name: ev.Test, Package: ev.Package, Category: categoryOf(ev.Package)}
			parent, _, isSub := strings.Cut(ev.Test, "/")
			if pm, found := meta[ev.Package+"."+parent]; isSub && found {
				m = pm
				m.Name = ev.Test
			}
			res = &TestResult{Name: ev.Test, Package: ev.Package, Annotations: m}
			states[key] = res
		}

		switch ev.Action {
		case "pass", "fail":
			res.Status = ev.Action
			res.Elapsed = ev.Elapsed
		case "skip":
			res.Status = "skip"
		case "output":
			if res.Status == "" || res.Status == "not run" || res.Status == "fail" {
				res.Failure += ev.Output
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	list := make([]TestResult, 0, len(states))
	for _, v := range states {
		if v.Status != "fail" {
			v.Failure = ""
		}
		list = append(list, *v)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Package != list[j].Package {
			return list[i].Package < list[j].Package
		}
		return list[i].Name < list[j].Name
	})
	return list, nil
}

func filterCategories(results []TestResult, names []string) []TestResult {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.TrimSpace(n)] = true
	}
	var out []TestResult
	for _, r := range results {
		if want[r.Annotations.Category] {
			out = append(out, r)
		}
	}
	return out
}

func summarize(results []TestResult, now time.Time) ReportSummary {
	s := ReportSummary{GeneratedAt: now, Results: results}
	for _, r := range results {
		s.Total++
		switch r.Status {
		case "pass":
			s.Passed++
		case "fail":
			s.Failed++
		case "skip":
			s.Skipped++
		}
	}
	return s
}

func renderMarkdown(s ReportSummary, title string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Enterprise %s\n\n", title)
	fmt.Fprintf(&sb, "**Generated:** %s  \n", s.GeneratedAt.Format("2006-01-02 15:04:05 MST"))

	status := "✅ PASSED"
	if s.Failed > 0 {
		status = "❌ FAILED"
	}
	fmt.Fprintf(&sb, "**Status:** %s\n\n", status)

	rate := 0.0
	if s.Total > 0 {
		rate = float64(s.Passed) / float64(s.Total) * 100
	}
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Total | Passed | Failed | Skipped | Pass Rate |\n")
	sb.WriteString("|-------|--------|--------|---------|-----------|\n")
	fmt.Fprintf(&sb, "| %d | %d | %d | %d | %.1f%% |\n\n", s.Total, s.Passed, s.Failed, s.Skipped, rate)

	grouped := make(map[string][]TestResult)
	for _, r := range s.Results {
		grouped[r.Annotations.Category] = append(grouped[r.Annotations.Category], r)
	}

	order := make([]string, 0, len(categories)+1)
	for _, c := range categories {
		order = append(order, c.name)
	}
	order = append(order, "Other")

	sb.WriteString("## Test Results by Category\n\n")
	for _, cat := range order {
		tests := grouped[cat]
		if len(tests) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "### %s\n\n", cat)
		sb.WriteString("| ID | Test Name | Status | Purpose | Security |\n")
		sb.WriteString("|----|-----------|--------|---------|----------|\n")
		for _, t := range tests {
			security := t.Annotations.Security
			if security != "" {
				security = "**" + security + "**"
			}
			fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s |\n",
				t.Annotations.TestCaseID, t.Name, statusIcon(t.Status), t.Annotations.Purpose, security)
		}
		sb.WriteString("\n")
	}

	if s.Failed > 0 {
		sb.WriteString("## Failure Details\n\n")
		for _, t := range s.Results {
			if t.Status == "fail" {
				fmt.Fprintf(&sb, "### %s (%s)\n```\n%s\n```\n\n", t.Name, t.Package, t.Failure)
			}
		}
	}
	return sb.String()
}

func statusIcon(status string) string {
	switch status {
	case "pass":
		return "✅"
	case "fail":
		return "❌"
	case "skip":
		return "⏭️"
	default:
		return "⚪"
	}
}

func writeFile(path string, render func() ([]byte, error)) error {
	data, err := render()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
