package cmd

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReportExecuteErrorFallsBackToWriterBeforeLoggerInit(t *testing.T) {
	prev := loggerReady
	defer func() { loggerReady = prev }()

	loggerReady = false
	var buf bytes.Buffer
	reportExecuteError(errors.New("flag parse failed"), &buf)
	assert.Contains(t, buf.String(), "flag parse failed")
}

func TestReportExecuteErrorUsesLoggerOnceInitialized(t *testing.T) {
	prev := loggerReady
	defer func() { loggerReady = prev }()

	loggerReady = true
	var buf bytes.Buffer
	reportExecuteError(errors.New("run failed"), &buf)
	assert.Empty(t, buf.String(), "initialized runs must not write raw errors to the fallback writer")
}
