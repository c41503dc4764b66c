package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomasfn/CsToMips/internal/ir"
	"github.com/thomasfn/CsToMips/internal/sbil"
)

func runMain(t *testing.T, args []string) (int, string, string) {
	t.Helper()
	oldArgs := os.Args
	t.Cleanup(func() { os.Args = oldArgs })
	os.Args = append([]string{"ic10c"}, args...)
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)

	stdOut := &bytes.Buffer{}
	stdErr := &bytes.Buffer{}
	exitCode := doMain(stdOut, stdErr)
	return exitCode, stdOut.String(), stdErr.String()
}

func TestHelpPrintsUsageAndExitsZero(t *testing.T) {
	exitCode, _, stdErr := runMain(t, []string{"-h"})
	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdErr, "ic10c")
	assert.Contains(t, stdErr, "Usage:")
}

func TestNoArgsPrintsUsageAndExitsZero(t *testing.T) {
	exitCode, _, stdErr := runMain(t, []string{})
	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdErr, "Usage:")
}

func TestInvalidCommandExitsNonZero(t *testing.T) {
	exitCode, _, stdErr := runMain(t, []string{"bogus"})
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stdErr, "invalid command")
}

func TestVersionPrintsToStdout(t *testing.T) {
	exitCode, stdOut, _ := runMain(t, []string{"version"})
	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdOut, compilerVersion)
}

func TestCompileRequiresClassesFlag(t *testing.T) {
	exitCode, _, stdErr := runMain(t, []string{"compile"})
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stdErr, "missing -classes")
}

func TestCompileEndToEndWritesIcTenFile(t *testing.T) {
	retByte, ok := sbil.OpcodeByte(sbil.Ret)
	require.True(t, ok)

	classes := []*ir.Class{
		{
			Name:           "Robot",
			IsProgramClass: true,
			Methods: map[string]*ir.Method{
				ir.EntryMethodName: {Name: ir.EntryMethodName, Body: []byte{retByte}},
			},
		},
	}
	data, err := json.Marshal(classes)
	require.NoError(t, err)

	dir := t.TempDir()
	classesPath := filepath.Join(dir, "classes.json")
	require.NoError(t, os.WriteFile(classesPath, data, 0o644))

	outDir := filepath.Join(dir, "out")
	exitCode, stdOut, stdErr := runMain(t, []string{"compile", "-classes", classesPath, "-out", outDir, "-cache=false"})
	assert.Equal(t, 0, exitCode, stdErr)
	assert.Contains(t, stdOut, "Robot")

	text, err := os.ReadFile(filepath.Join(outDir, "Robot.ic10"))
	require.NoError(t, err)
	assert.Contains(t, string(text), "main:")
}

func TestCompileReportsNonZeroExitOnClassFailure(t *testing.T) {
	classes := []*ir.Class{
		{Name: "NotAProgram", IsProgramClass: false},
	}
	data, err := json.Marshal(classes)
	require.NoError(t, err)

	dir := t.TempDir()
	classesPath := filepath.Join(dir, "classes.json")
	require.NoError(t, os.WriteFile(classesPath, data, 0o644))

	exitCode, _, _ := runMain(t, []string{"compile", "-classes", classesPath, "-out", filepath.Join(dir, "out"), "-cache=false"})
	assert.Equal(t, 1, exitCode)
}

func TestGenCatalogueRequiresInFlag(t *testing.T) {
	exitCode, _, stdErr := runMain(t, []string{"gen-catalogue"})
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stdErr, "missing -in")
}

func TestGenCatalogueEndToEndWritesGoSource(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "PrefabData.json")
	require.NoError(t, os.WriteFile(inPath, []byte(`[{"prefabName": "ItemKitLight", "prefabHash": 1, "logic": {"logicTypes": ["On"]}}]`), 0o644))

	outPath := filepath.Join(dir, "generated.go")
	exitCode, _, stdErr := runMain(t, []string{"gen-catalogue", "-in", inPath, "-out", outPath, "-package", "devices"})
	assert.Equal(t, 0, exitCode, stdErr)

	text, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(text), "package devices")
	assert.Contains(t, string(text), "type ItemKitLight interface")
}
