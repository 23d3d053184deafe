package report

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"github.com/abdul-hamid-achik/reqflow/packages/core/runner"
	"github.com/abdul-hamid-achik/reqflow/packages/redact"
)

// JUnit XML structures

type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Name       string           `xml:"name,attr,omitempty"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Skipped    int              `xml:"skipped,attr"`
	Time       float64          `xml:"time,attr"`
	Timestamp  string           `xml:"timestamp,attr,omitempty"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

type JUnitTestSuite struct {
	XMLName   xml.Name        `xml:"testsuite"`
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Skipped   int             `xml:"skipped,attr"`
	Time      float64         `xml:"time,attr"`
	TestCases []JUnitTestCase `xml:"testcase"`
}

type JUnitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitError   `xml:"error,omitempty"`
	Skipped   *JUnitSkipped `xml:"skipped,omitempty"`
}

type JUnitFailure struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

type JUnitError struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

type JUnitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// JUnitFormatter serializes a run report as JUnit XML, one suite per file
// and one case per entry. Secrets are scrubbed from the document before it
// reaches the writer.
type JUnitFormatter struct {
	writer io.Writer
	filter *redact.Filter
}

func NewJUnitFormatter(w io.Writer, filter *redact.Filter) *JUnitFormatter {
	return &JUnitFormatter{writer: w, filter: filter}
}

func (f *JUnitFormatter) Write(r *RunReport) error {
	root := JUnitTestSuites{
		Name:      r.RunID.String(),
		Time:      r.Duration.Seconds(),
		Timestamp: r.Started.Format(time.RFC3339),
	}
	for _, fr := range r.Files {
		suite := junitSuite(fr)
		root.Tests += suite.Tests
		root.Failures += suite.Failures
		root.Errors += suite.Errors
		root.Skipped += suite.Skipped
		root.TestSuites = append(root.TestSuites, suite)
	}

	data, err := xml.MarshalIndent(root, "", "  ")
	if err != nil {
		return err
	}
	doc := xml.Header + string(data) + "\n"
	if f.filter != nil {
		doc = f.filter.Apply(doc)
	}
	_, err = io.WriteString(f.writer, doc)
	return err
}

func junitSuite(fr *runner.FileResult) JUnitTestSuite {
	suite := JUnitTestSuite{
		Name: fr.Path,
		Time: fr.Duration.Seconds(),
	}
	if fr.Err != nil {
		suite.Tests = 1
		suite.Errors = 1
		suite.TestCases = append(suite.TestCases, JUnitTestCase{
			Name:      fr.Path,
			ClassName: fr.Path,
			Error: &JUnitError{
				Message: fr.Err.Msg,
				Type:    fr.Err.Class.String(),
				Content: fr.Err.Error(),
			},
		})
		return suite
	}

	for _, e := range fr.Entries {
		tc := JUnitTestCase{
			Name:      fmt.Sprintf("entry %d", e.Index),
			ClassName: fr.Path,
			Time:      e.Duration.Seconds(),
		}
		switch e.Status {
		case runner.StatusSkipped:
			suite.Skipped++
			tc.Skipped = &JUnitSkipped{Message: "skipped"}
		case runner.StatusAssertFailure:
			suite.Failures++
			tc.Failure = &JUnitFailure{
				Message: firstErrorMessage(e),
				Type:    e.Class().String(),
				Content: joinErrors(e),
			}
		case runner.StatusRuntimeError:
			suite.Errors++
			tc.Error = &JUnitError{
				Message: firstErrorMessage(e),
				Type:    e.Class().String(),
				Content: joinErrors(e),
			}
		}
		suite.Tests++
		suite.TestCases = append(suite.TestCases, tc)
	}
	return suite
}

func firstErrorMessage(e *runner.EntryResult) string {
	if len(e.Errors) == 0 {
		return ""
	}
	return e.Errors[0].Msg
}

func joinErrors(e *runner.EntryResult) string {
	s := ""
	for i, err := range e.Errors {
		if i > 0 {
			s += "\n"
		}
		s += err.Error()
	}
	return s
}
