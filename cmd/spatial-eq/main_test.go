package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agusx1211/spatial-eq/internal/config"
)

func TestRunReturnsStartupErrors(t *testing.T) {
	// The analyzer is built after the engine and source, so this fails with
	// both already open and returns instead of exiting.
	cfg, err := config.Parse([]string{"--mqtt-broker=", "--spectrum-size=1000"})
	require.NoError(t, err)

	err = run(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create analyzer")
}
