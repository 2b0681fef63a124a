// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

package errutil_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doorkeep/doorkeep/pkg/errutil"
)

func captureLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil)), &buf
}

func parseRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	return record
}

func TestLogError(t *testing.T) {
	t.Run("coded error contributes code and context", func(t *testing.T) {
		logger, buf := captureLogger()
		err := oops.Code("STORE_FIND_FAILED").
			With("username", "alice").
			Errorf("find failed")

		errutil.LogError(logger, "store error", err)

		record := parseRecord(t, buf)
		assert.Equal(t, "ERROR", record["level"])
		assert.Equal(t, "store error", record["msg"])
		assert.Equal(t, "STORE_FIND_FAILED", record["code"])

		ctx, ok := record["context"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "alice", ctx["username"])
	})

	t.Run("plain error logs message only", func(t *testing.T) {
		logger, buf := captureLogger()

		errutil.LogError(logger, "something broke", errors.New("boom"))

		record := parseRecord(t, buf)
		assert.Equal(t, "boom", record["error"])
		assert.NotContains(t, record, "code")
		assert.NotContains(t, record, "context")
	})
}

func TestLogWarn(t *testing.T) {
	logger, buf := captureLogger()

	errutil.LogWarn(logger, "recovered", oops.Code("WIRE_TRUNCATED").Errorf("short read"))

	record := parseRecord(t, buf)
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "WIRE_TRUNCATED", record["code"])
}

func TestAssertErrorCode(t *testing.T) {
	err := oops.Code("CONFIG_INVALID").Errorf("bad config")
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}
