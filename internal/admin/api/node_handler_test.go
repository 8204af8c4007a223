package api

import (
	"context"
	"testing"
	"time"

	"nodelink/internal/panel"
	"nodelink/internal/pkg"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummariesSkipForgottenNode(t *testing.T) {
	d := panel.NewDispatcher(context.Background(), time.Minute,
		panel.WithDispatcherMetrics(pkg.NewMetrics(prometheus.NewRegistry())))
	require.NoError(t, d.DispatchText("DATA|node-1|temperature#t1:22.5"))
	require.NoError(t, d.DispatchText("DATA|node-2|fan#f1:1"))
	h := NewHandler(nil, d)

	ids := d.Nodes()
	d.Forget("node-2")

	nodes := h.summaries(ids, map[string]bool{"node-1": true})
	require.Len(t, nodes, 1)
	assert.Equal(t, "node-1", nodes[0].ID)
	assert.True(t, nodes[0].Connected)
	assert.Equal(t, 1, nodes[0].Sensors)

	// 已断开但仍在连接表里的节点只给出连接状态
	nodes = h.summaries(ids, map[string]bool{"node-2": true})
	require.Len(t, nodes, 2)
	assert.Equal(t, NodeSummary{ID: "node-2", Connected: true}, nodes[1])
}
