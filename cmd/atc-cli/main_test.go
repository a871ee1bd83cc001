package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yashubustudio/aspectcat/aspect"
)

var sentences = []struct{ text, target, category string }{
	{"The pasta was delicious", "pasta", "FOOD#QUALITY"},
	{"Great pizza and fresh salad", "pizza", "FOOD#QUALITY"},
	{"The waiter was rude", "waiter", "SERVICE#GENERAL"},
	{"Service was slow and unfriendly", "Service", "SERVICE#GENERAL"},
	{"Tasty pasta with fresh basil", "pasta", "FOOD#QUALITY"},
	{"Delicious pizza crust", "pizza", "FOOD#QUALITY"},
	{"Our waiter ignored us", "waiter", "SERVICE#GENERAL"},
	{"Slow service all night", "service", "SERVICE#GENERAL"},
}

func writeFixture(t *testing.T, dir string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n<Reviews>\n<Review rid=\"r1\">\n<sentences>\n")
	for i, s := range sentences {
		from := strings.Index(s.text, s.target)
		fmt.Fprintf(&b, "<sentence id=\"r1:%d\"><text>%s</text><Opinions>"+
			"<Opinion target=\"%s\" category=\"%s\" polarity=\"positive\" from=\"%d\" to=\"%d\"/>"+
			"</Opinions></sentence>\n", i, s.text, s.target, s.category, from, from+len(s.target))
	}
	b.WriteString("</sentences>\n</Review>\n</Reviews>\n")
	path := filepath.Join(dir, "train.xml")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	cfg := aspect.DefaultConfig()
	cfg.Folds = 2
	cfg.Store.Dir = filepath.Join(dir, "models")
	cfg.Log.Level = "error"
	path := filepath.Join(dir, "atc.yaml")
	require.NoError(t, aspect.SaveConfig(path, cfg))
	return path
}

func execute(args ...string) (string, error) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCrossValidateCommand(t *testing.T) {
	dir := t.TempDir()
	input := writeFixture(t, dir)
	cfg := writeConfig(t, dir)
	metrics := filepath.Join(dir, "metrics.prom")

	out, err := execute("crossval", "--config", cfg, "--params", "default",
		"--input", input, "--field", "entCat", "--metrics", metrics)
	require.NoError(t, err)
	assert.Contains(t, out, "accuracy")
	assert.Contains(t, out, "FOOD")
	assert.Contains(t, out, "SERVICE")

	prom, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "atc_training_duration_seconds")
}

func TestCascadeCommandWritesCorpus(t *testing.T) {
	dir := t.TempDir()
	input := writeFixture(t, dir)
	cfg := writeConfig(t, dir)
	output := filepath.Join(dir, "out", "tagged.xml")

	_, err := execute("single", "--config", cfg, "--params", "default", "--input", input, "--output", output)
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<Reviews>")
	assert.FileExists(t, filepath.Join(dir, "models", "atc-entAttCat.categories.bin"))
}

func TestCommandRequiresInputAndParams(t *testing.T) {
	_, err := execute("cascade", "--params", "default")
	assert.ErrorContains(t, err, "--input")

	_, err = execute("cascade", "--input", "x.xml")
	assert.ErrorContains(t, err, "--params")
}

func TestTestOnlyWithoutModels(t *testing.T) {
	dir := t.TempDir()
	input := writeFixture(t, dir)
	cfg := writeConfig(t, dir)

	_, err := execute("cascade", "--config", cfg, "--params", "default", "--input", input, "--test-only")
	assert.True(t, errors.Is(err, aspect.ErrConfiguration))
}

func TestCrossValidateRejectsUnknownField(t *testing.T) {
	dir := t.TempDir()
	input := writeFixture(t, dir)
	cfg := writeConfig(t, dir)

	_, err := execute("crossval", "--config", cfg, "--params", "default", "--input", input, "--field", "polarity")
	assert.True(t, errors.Is(err, aspect.ErrConfiguration))
}
