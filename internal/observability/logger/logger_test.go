package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates level name parsing.
// Scope: Unit Test
// Expected: Known names map to their level; unknown names map to info.
// Test Case ID: LOG-01
func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

// TestPurpose: Validates that the JSON logger emits domain attributes.
// Scope: Unit Test
// Expected: One JSON line carrying the enterprise and course attributes.
// Test Case ID: LOG-02
func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Format: "json", ServiceName: "test", Output: &buf})

	l.InfoContext(context.Background(), "enrolled",
		EnterpriseID("ent-1"),
		CourseRunKey("course-v1:edX+DemoX+Demo_Course"),
	)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "enrolled", line["msg"])
	assert.Equal(t, "ent-1", line["enterprise_customer_uuid"])
	assert.Equal(t, "course-v1:edX+DemoX+Demo_Course", line["course_run_key"])
}

// TestPurpose: Validates that records below the configured level are dropped.
// Scope: Unit Test
// Expected: Debug records are not written at warn level.
// Test Case ID: LOG-03
func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Format: "text", ServiceName: "test", Output: &buf})

	l.Debug("hidden")
	assert.Empty(t, buf.String())
}
