package main

import (
	"errors"
	"testing"

	"ticket_engine/internal/logbus"
	"ticket_engine/internal/model"
)

func TestExitCode(t *testing.T) {
	cases := []struct {
		name string
		rep  model.RunReport
		err  error
		want int
	}{
		{"some succeeded", model.RunReport{Total: 3, Succeeded: 1, Failed: 2}, nil, 0},
		{"none succeeded", model.RunReport{Total: 2, Failed: 2}, nil, 1},
		{"persist failed", model.RunReport{Total: 1, Succeeded: 1}, errors.New("disk full"), 1},
	}
	for _, c := range cases {
		if got := exitCode(c.rep, c.err); got != c.want {
			t.Fatalf("%s: exitCode=%d want %d", c.name, got, c.want)
		}
	}
}

func TestEchoProcessLogsStopIsIdempotent(t *testing.T) {
	bus := logbus.New(10)
	stop := echoProcessLogs(bus)
	bus.Log("info", "hello", nil)
	stop()
	stop()
}
