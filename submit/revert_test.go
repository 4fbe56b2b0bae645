package submit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/rcowham/p4gitbridge/config"
	"github.com/rcowham/p4gitbridge/depot"
)

func fakeRevertScript(t *testing.T) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-p4.sh")
	assert.NoError(t, os.WriteFile(path, []byte("#!/bin/bash\nexit 0\n"), 0o755))
	return path
}

func TestRevertOnFailureRemovesAddedFiles(t *testing.T) {
	workspace := t.TempDir()
	addedPath := filepath.Join(workspace, "new.go")
	assert.NoError(t, os.WriteFile(addedPath, []byte("package main\n"), 0o644))

	client := depot.NewClient(logrus.New(), config.ConnectionSettings{}, "", fakeRevertScript(t))
	cs := NewChangeSet()
	cs.FilesToAdd["new.go"] = true
	cs.EditedFiles["edited.go"] = true

	assert.NoError(t, RevertOnFailure(client, cs, workspace))
	_, err := os.Stat(addedPath)
	assert.True(t, os.IsNotExist(err))
}

func TestRevertOnFailureToleratesMissingAddedFile(t *testing.T) {
	workspace := t.TempDir()
	client := depot.NewClient(logrus.New(), config.ConnectionSettings{}, "", fakeRevertScript(t))
	cs := NewChangeSet()
	cs.FilesToAdd["never-written.go"] = true

	assert.NoError(t, RevertOnFailure(client, cs, workspace))
}
