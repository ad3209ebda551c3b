package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutatingCommandsAcceptConfirmOrForce(t *testing.T) {
	for _, cmd := range []*cobra.Command{executeCmd, rollbackCmd} {
		require.NotNil(t, cmd.Flags().Lookup("confirm"), "%s missing --confirm", cmd.Name())
		require.NotNil(t, cmd.Flags().Lookup("force"), "%s missing --force", cmd.Name())
	}
}

func TestReadOnlyCommandsHaveNoConfirmGate(t *testing.T) {
	for _, cmd := range []*cobra.Command{statusCmd, listCmd, monitorCmd} {
		assert.Nil(t, cmd.Flags().Lookup("confirm"), "%s should not gate on --confirm", cmd.Name())
	}
}
