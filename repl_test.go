package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepl_ReadLoop(t *testing.T) {
	host := startHost(t, "x = 3", nil)
	require.NoError(t, host.Connect(context.Background(), 9229))

	input := strings.Join([]string{
		"",
		`{"id":4,"method":"Runtime.evaluate","params":{"expression":"x * x"}}`,
		".quit",
		`{"id":5,"method":"Runtime.evaluate","params":{"expression":"x"}}`,
	}, "\n")
	out := &bytes.Buffer{}
	repl := NewRepl(host, strings.NewReader(input), out, time.Millisecond)
	assert.False(t, repl.interactive)

	repl.readLoop(context.Background())
	assert.False(t, host.Connected())

	repl.flush()
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.NotEmpty(t, lines)
	last := lines[len(lines)-1]
	assert.Contains(t, last, `"id":4`)
	assert.Contains(t, last, `"value":9`)
	assert.NotContains(t, out.String(), `"id":5`)
}

func TestRepl_Resume(t *testing.T) {
	host := startHost(t, "", nil)
	require.NoError(t, host.Connect(context.Background(), 9229))
	host.Post(`{"id":4,"method":"Runtime.evaluate","params":{"expression":"debugger()"}}`)
	require.Eventually(t, host.Paused, time.Second, time.Millisecond)

	repl := NewRepl(host, strings.NewReader(".resume\n"), &bytes.Buffer{}, time.Millisecond)
	repl.readLoop(context.Background())
	require.Eventually(t, func() bool { return !host.Paused() }, time.Second, time.Millisecond)
}
