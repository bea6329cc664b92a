package dispatch_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moose-platform/moosecore/common/go/recbuf"
	"github.com/moose-platform/moosecore/internal/dispatch"
	"github.com/moose-platform/moosecore/internal/registry"
)

func Test_ReportFiltersByElementNamePattern(t *testing.T) {
	particles := registry.NewSimpleElement("particles", false)
	fields := registry.NewSimpleElement("fields", true)
	other := registry.NewSimpleElement("other", false)

	reg := registry.New()
	reg.Register(1, &registry.SimpleBinding{E1Ref: particles, E2Ref: fields, FunctionID: 1})
	reg.Register(2, &registry.SimpleBinding{E1Ref: other, E2Ref: other, FunctionID: 1})

	manager := dispatch.NewGroupManager(4096)
	groupID, err := manager.AddGroup(1, 1)
	require.NoError(t, err)

	tq, err := manager.ThreadQueue(0)
	require.NoError(t, err)
	require.NoError(t, tq.Append(reg, recbuf.Header{IsForward: true, MessageID: 1, SrcIndex: recbuf.DataId{Row: 1}}, []byte("p1")))
	require.NoError(t, tq.Append(reg, recbuf.Header{IsForward: true, MessageID: 2, SrcIndex: recbuf.DataId{Row: 2}}, []byte("p2")))
	require.NoError(t, manager.Merge(groupID))

	var buf bytes.Buffer
	require.NoError(t, manager.Report(&buf, reg, "field*"))

	out := buf.String()
	require.True(t, strings.Contains(out, "target=fields"))
	require.False(t, strings.Contains(out, "target=other"))
}

func Test_ReportRejectsInvalidPattern(t *testing.T) {
	manager := dispatch.NewGroupManager(1024)
	_, err := manager.AddGroup(1, 1)
	require.NoError(t, err)

	var buf bytes.Buffer
	err = manager.Report(&buf, registry.New(), "[")
	require.Error(t, err)
}
