package cmdutil

import (
	"bytes"
	"testing"

	"github.com/marmos91/voicegate/internal/cli/output"
)

func TestGetClient_DefaultServer(t *testing.T) {
	Flags.ServerURL = ""
	client := GetClient()
	if client.BaseURL() != DefaultServerURL {
		t.Errorf("GetClient().BaseURL() = %q, want %q", client.BaseURL(), DefaultServerURL)
	}
}

func TestGetClient_ExplicitServer(t *testing.T) {
	Flags.ServerURL = "http://voicegate.internal:9999"
	defer func() { Flags.ServerURL = "" }()

	client := GetClient()
	if client.BaseURL() != "http://voicegate.internal:9999" {
		t.Errorf("GetClient().BaseURL() = %q, want explicit server", client.BaseURL())
	}
}

func TestEmptyOr(t *testing.T) {
	if got := EmptyOr("", "-"); got != "-" {
		t.Errorf("EmptyOr(\"\", \"-\") = %q, want \"-\"", got)
	}
	if got := EmptyOr("value", "-"); got != "value" {
		t.Errorf("EmptyOr(\"value\", \"-\") = %q, want \"value\"", got)
	}
}

// testTableRenderer implements output.TableRenderer for testing
type testTableRenderer struct {
	headers []string
	rows    [][]string
}

func (t testTableRenderer) Headers() []string {
	return t.headers
}

func (t testTableRenderer) Rows() [][]string {
	return t.rows
}

func TestPrintOutput_JSON(t *testing.T) {
	// Set flags to JSON format
	Flags.Output = "json"

	var buf bytes.Buffer
	data := []string{"foo", "bar"}
	renderer := testTableRenderer{
		headers: []string{"NAME"},
		rows:    [][]string{{"foo"}, {"bar"}},
	}

	err := PrintOutput(&buf, data, false, "No items", renderer)
	if err != nil {
		t.Fatalf("PrintOutput() error = %v", err)
	}

	// JSON output is indented
	result := buf.String()
	if len(result) == 0 {
		t.Error("PrintOutput() returned empty output for JSON")
	}
	// Check that it contains the expected data
	if !bytes.Contains(buf.Bytes(), []byte("foo")) || !bytes.Contains(buf.Bytes(), []byte("bar")) {
		t.Errorf("PrintOutput() = %q, missing expected data", result)
	}
}

func TestPrintOutput_YAML(t *testing.T) {
	// Set flags to YAML format
	Flags.Output = "yaml"

	var buf bytes.Buffer
	data := []string{"foo", "bar"}
	renderer := testTableRenderer{
		headers: []string{"NAME"},
		rows:    [][]string{{"foo"}, {"bar"}},
	}

	err := PrintOutput(&buf, data, false, "No items", renderer)
	if err != nil {
		t.Fatalf("PrintOutput() error = %v", err)
	}

	expected := "- foo\n- bar\n"
	if buf.String() != expected {
		t.Errorf("PrintOutput() = %q, want %q", buf.String(), expected)
	}
}

func TestPrintOutput_Table_Empty(t *testing.T) {
	// Set flags to table format
	Flags.Output = "table"

	var buf bytes.Buffer
	data := []string{}
	renderer := testTableRenderer{
		headers: []string{"NAME"},
		rows:    [][]string{},
	}

	err := PrintOutput(&buf, data, true, "No calls found.", renderer)
	if err != nil {
		t.Fatalf("PrintOutput() error = %v", err)
	}

	expected := "No calls found.\n"
	if buf.String() != expected {
		t.Errorf("PrintOutput() = %q, want %q", buf.String(), expected)
	}
}

func TestPrintOutput_Table_WithData(t *testing.T) {
	// Set flags to table format
	Flags.Output = "table"

	var buf bytes.Buffer
	data := []string{"foo", "bar"}
	renderer := testTableRenderer{
		headers: []string{"NAME"},
		rows:    [][]string{{"foo"}, {"bar"}},
	}

	err := PrintOutput(&buf, data, false, "No calls found.", renderer)
	if err != nil {
		t.Fatalf("PrintOutput() error = %v", err)
	}

	// Table output should contain headers and rows
	result := buf.String()
	if len(result) == 0 {
		t.Errorf("PrintOutput() returned empty output for table")
	}
}

func TestGetOutputFormatParsed(t *testing.T) {
	tests := []struct {
		flagValue string
		expected  output.Format
		wantErr   bool
	}{
		{"table", output.FormatTable, false},
		{"json", output.FormatJSON, false},
		{"yaml", output.FormatYAML, false},
		{"invalid", output.FormatTable, true},
	}

	for _, tt := range tests {
		t.Run(tt.flagValue, func(t *testing.T) {
			Flags.Output = tt.flagValue
			result, err := GetOutputFormatParsed()
			if (err != nil) != tt.wantErr {
				t.Errorf("GetOutputFormatParsed() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && result != tt.expected {
				t.Errorf("GetOutputFormatParsed() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestIsColorDisabled(t *testing.T) {
	Flags.NoColor = true
	if !IsColorDisabled() {
		t.Error("IsColorDisabled() = false, want true")
	}

	Flags.NoColor = false
	if IsColorDisabled() {
		t.Error("IsColorDisabled() = true, want false")
	}
}

func TestIsVerbose(t *testing.T) {
	Flags.Verbose = true
	if !IsVerbose() {
		t.Error("IsVerbose() = false, want true")
	}

	Flags.Verbose = false
	if IsVerbose() {
		t.Error("IsVerbose() = true, want false")
	}
}
