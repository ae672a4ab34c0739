package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emu-entities/internal/extract"
)

func TestLabelsAndFile(t *testing.T) {
	labels, file, err := labelsAndFile(true, []string{"PERSON"}, []string{"ORG", "catalogue.xml"})
	require.NoError(t, err)
	assert.Equal(t, "catalogue.xml", file)
	assert.Equal(t, []string{"PERSON", "ORG"}, extract.ParseLabels(labels))

	labels, file, err = labelsAndFile(false, extract.DefaultLabels, []string{"catalogue.csv"})
	require.NoError(t, err)
	assert.Equal(t, "catalogue.csv", file)
	assert.Equal(t, extract.DefaultLabels, labels)

	_, _, err = labelsAndFile(false, extract.DefaultLabels, []string{"ORG", "catalogue.xml"})
	assert.Error(t, err)
}

func TestExtractCmdAcceptsSpacedLabels(t *testing.T) {
	cmd := createExtractCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--ents", "PERSON", "ORG", "catalogue.xml"}))
	args := cmd.Flags().Args()
	require.NoError(t, cmd.Args(cmd, args))

	labels, err := cmd.Flags().GetStringSlice("ents")
	require.NoError(t, err)
	labels, file, err := labelsAndFile(cmd.Flags().Changed("ents"), labels, args)
	require.NoError(t, err)
	assert.Equal(t, "catalogue.xml", file)
	assert.Equal(t, []string{"PERSON", "ORG"}, labels)
}
