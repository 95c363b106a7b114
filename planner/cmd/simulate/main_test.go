package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-graphviz"
	"go.viam.com/test"

	"go.viam.com/gbpplanner/config"
	"go.viam.com/gbpplanner/logging"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	cfg := config.Default()
	cfg.Robot.Communication.FailureRate = 0
	cfg.Robots = []config.RobotSpawn{
		{Waypoints: []config.Point{{0, 0}, {20, 0}}},
	}
	data, err := json.Marshal(cfg)
	test.That(t, err, test.ShouldBeNil)
	path := filepath.Join(t.TempDir(), "sim.json")
	test.That(t, os.WriteFile(path, data, 0o600), test.ShouldBeNil)
	return path
}

func TestRun(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()
	dotPath := filepath.Join(dir, "graph.dot")
	plotPath := filepath.Join(dir, "trails.png")
	logPath := filepath.Join(dir, "simulate.log")

	err := newApp(logger).RunContext(context.Background(), []string{
		"simulate", "--log-file", logPath, "run",
		"--config", writeTestConfig(t),
		"--ticks", "5",
		"--dot", dotPath,
		"--plot", plotPath,
	})
	test.That(t, err, test.ShouldBeNil)

	logs, err := os.ReadFile(logPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(logs), test.ShouldContainSubstring, "simulation stopped")

	dot, err := os.ReadFile(dotPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(dot), test.ShouldContainSubstring, "cluster_0")

	f, err := os.Open(plotPath)
	test.That(t, err, test.ShouldBeNil)
	defer f.Close()
	_, err = png.Decode(f)
	test.That(t, err, test.ShouldBeNil)
}

func TestRunErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)

	err := newApp(logger).RunContext(context.Background(), []string{"simulate", "run"})
	test.That(t, err, test.ShouldNotBeNil)

	err = newApp(logger).RunContext(context.Background(), []string{
		"simulate", "run", "--config", filepath.Join(t.TempDir(), "missing.json"),
	})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPrintCommands(t *testing.T) {
	logger := logging.NewTestLogger(t)

	var out bytes.Buffer
	app := newApp(logger)
	app.Writer = &out
	test.That(t, app.RunContext(context.Background(), []string{"simulate", "schema"}), test.ShouldBeNil)
	test.That(t, out.String(), test.ShouldContainSubstring, "iteration_schedule")

	out.Reset()
	app = newApp(logger)
	app.Writer = &out
	test.That(t, app.RunContext(context.Background(), []string{"simulate", "--debug", "defaults"}), test.ShouldBeNil)
	test.That(t, logger.GetLevel(), test.ShouldEqual, logging.DEBUG)
	var cfg config.Config
	test.That(t, json.Unmarshal(out.Bytes(), &cfg), test.ShouldBeNil)
	test.That(t, cfg.GBP, test.ShouldResemble, config.Default().GBP)
}

func TestGraphvizFormat(t *testing.T) {
	test.That(t, graphvizFormat("out.SVG"), test.ShouldEqual, graphviz.SVG)
	test.That(t, graphvizFormat("out.png"), test.ShouldEqual, graphviz.PNG)
	test.That(t, graphvizFormat("out.dot"), test.ShouldEqual, graphviz.XDOT)
}
