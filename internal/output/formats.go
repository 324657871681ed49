package output

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OutputFormat represents the available summary formats
type OutputFormat string

const (
	// FormatText is the default human-readable table
	FormatText OutputFormat = "text"
	// FormatJSON outputs in JSON format
	FormatJSON OutputFormat = "json"
	// FormatYAML outputs in YAML format
	FormatYAML OutputFormat = "yaml"
	// FormatJUnit outputs in JUnit XML format (for CI/CD integration)
	FormatJUnit OutputFormat = "junit"
)

// ParseFormat validates a format name.
func ParseFormat(name string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(name))); f {
	case "", "table":
		return FormatText, nil
	case FormatText, FormatJSON, FormatYAML, FormatJUnit:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json, yaml or junit)", name)
	}
}

// Write renders the summary in the given format.
func Write(w io.Writer, format OutputFormat, s *Summary, opts TableOptions) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, s)
	case FormatYAML:
		return WriteYAML(w, s)
	case FormatJUnit:
		return WriteJUnit(w, s)
	default:
		return WriteTable(w, s, opts)
	}
}

// WriteJSON writes the summary as indented JSON.
func WriteJSON(w io.Writer, s *Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// WriteYAML writes the summary as YAML with the same field names as the
// JSON form.
func WriteYAML(w io.Writer, s *Summary) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

// JUnitTestSuites represents the root element containing all test suites
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite represents a JUnit test suite
type JUnitTestSuite struct {
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Time      float64         `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr"`
	TestCases []JUnitTestCase `xml:"testcase"`
	SystemOut string          `xml:"system-out,omitempty"`
}

// JUnitTestCase represents a JUnit test case
type JUnitTestCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
}

// JUnitFailure represents a JUnit test failure
type JUnitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Content string `xml:",chardata"`
}

// WriteJUnit writes one test case per request name; a request name with
// any failed request is a failing test case.
func WriteJUnit(w io.Writer, s *Summary) error {
	suiteName := s.Name
	if suiteName == "" {
		suiteName = "chatload"
	}

	suite := JUnitTestSuite{
		Name:      suiteName,
		Tests:     len(s.Requests),
		Time:      s.Elapsed.Seconds(),
		TestCases: []JUnitTestCase{},
		SystemOut: fmt.Sprintf("host: %s\nrun: %s\nusers spawned: %d\niterations: %d",
			s.Host, s.RunID, s.Users.Spawned, s.Users.Iterations),
	}
	if s.Totals != nil {
		suite.Timestamp = s.Totals.StartTime.Format(time.RFC3339)
	}

	for _, r := range s.Requests {
		tc := JUnitTestCase{
			Name:      r.Name,
			Classname: "chatload." + suiteName,
			Time:      r.Latency.Mean.Seconds(),
		}
		if r.Failures > 0 {
			tc.Failure = &JUnitFailure{
				Message: fmt.Sprintf("%d of %d requests failed", r.Failures, r.Latency.Count),
				Type:    "RequestFailure",
				Content: fmt.Sprintf("p50=%s p95=%s max=%s", r.Latency.P50, r.Latency.P95, r.Latency.Max),
			}
			suite.Failures++
		}
		suite.TestCases = append(suite.TestCases, tc)
	}

	output, err := xml.MarshalIndent(JUnitTestSuites{TestSuites: []JUnitTestSuite{suite}}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal junit report: %w", err)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	if _, err := w.Write(output); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\n")
	return err
}
