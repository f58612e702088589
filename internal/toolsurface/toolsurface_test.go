package toolsurface

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/embranch/embranch/internal/eerr"
)

func TestServeUnknownTool(t *testing.T) {
	s := &Server{}
	in := strings.NewReader(`{"id":"1","name":"not_a_real_tool"}` + "\n")
	var out bytes.Buffer

	require.NoError(t, s.Serve(context.Background(), in, &out))

	var resp Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.Equal(t, "1", resp.ID)
	require.Contains(t, resp.Error, "unknown tool")
}

func TestServeInvalidJSON(t *testing.T) {
	s := &Server{}
	in := strings.NewReader("not json at all\n")
	var out bytes.Buffer

	require.NoError(t, s.Serve(context.Background(), in, &out))

	var resp Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.Contains(t, resp.Error, "invalid request")
}

func TestServeSkipsBlankLines(t *testing.T) {
	s := &Server{}
	in := strings.NewReader("\n\n" + `{"id":"2","name":"nope"}` + "\n")
	var out bytes.Buffer

	require.NoError(t, s.Serve(context.Background(), in, &out))
	require.Equal(t, 1, strings.Count(out.String(), "\n"))
}

func TestErrorMessageWrapsKind(t *testing.T) {
	msg := errorMessage(eerr.New(eerr.InvalidArgument, "bad input"))
	require.Contains(t, msg, "INVALID_ARGUMENT")
}
