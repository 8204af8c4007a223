package router_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nodelink/internal/admin/api"
	"nodelink/internal/admin/router"
	"nodelink/internal/panel"
	"nodelink/internal/pkg"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/mock"
)

type mockHub struct {
	mock.Mock
}

func (m *mockHub) Clients() []string {
	return m.Called().Get(0).([]string)
}

func (m *mockHub) SendCommand(nodeID, target string, on bool) error {
	return m.Called(nodeID, target, on).Error(0)
}

func (m *mockHub) RequestDataRefresh(nodeID, target string) error {
	return m.Called(nodeID, target).Error(0)
}

func (m *mockHub) Disconnect(nodeID string) error {
	return m.Called(nodeID).Error(0)
}

func perform(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)

	Convey("面板 API", t, func() {
		reg := prometheus.NewRegistry()
		d := panel.NewDispatcher(context.Background(), time.Minute,
			panel.WithDispatcherMetrics(pkg.NewMetrics(reg)))
		So(d.DispatchText("DATA|node-1|temperature#t1:22.5,fan#f1:1"), ShouldBeNil)

		hub := &mockHub{}
		hub.On("Clients").Return([]string{"node-1", "node-9"})
		r := router.SetupRouter(api.NewHandler(hub, d), reg)

		Convey("健康检查", func() {
			w := perform(r, http.MethodGet, "/health", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldEqual, "OK")
		})

		Convey("节点列表合并缓存和连接", func() {
			w := perform(r, http.MethodGet, "/api/v1/nodes", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var nodes []api.NodeSummary
			So(json.Unmarshal(w.Body.Bytes(), &nodes), ShouldBeNil)
			So(len(nodes), ShouldEqual, 2)
			So(nodes[0].ID, ShouldEqual, "node-1")
			So(nodes[0].Connected, ShouldBeTrue)
			So(nodes[0].Sensors, ShouldEqual, 1)
			So(nodes[0].Actuators, ShouldEqual, 1)
			So(nodes[1].ID, ShouldEqual, "node-9")
			So(nodes[1].Sensors, ShouldEqual, 0)
		})

		Convey("节点详情", func() {
			w := perform(r, http.MethodGet, "/api/v1/nodes/node-1", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var detail api.NodeDetail
			So(json.Unmarshal(w.Body.Bytes(), &detail), ShouldBeNil)
			So(detail.Sensors, ShouldHaveLength, 1)
			So(detail.Sensors[0].Key, ShouldEqual, "temperature#t1")
			So(detail.Sensors[0].Value, ShouldEqual, 22.5)
			So(detail.Actuators, ShouldResemble, []api.ActuatorView{{Key: "fan#f1", On: true}})

			w = perform(r, http.MethodGet, "/api/v1/nodes/ghost", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("窗口均值", func() {
			So(d.DispatchText("DATA|node-1|temperature#t1:27.5"), ShouldBeNil)
			w := perform(r, http.MethodGet, "/api/v1/nodes/node-1/sensors/temperature%23t1/average?window=1m", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var resp api.AverageResponse
			So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Key, ShouldEqual, "temperature#t1")
			So(resp.Average, ShouldNotBeNil)
			So(*resp.Average, ShouldEqual, 25.0)

			w = perform(r, http.MethodGet, "/api/v1/nodes/node-1/sensors/co2%23c1/average", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Average, ShouldBeNil)
			So(resp.Window, ShouldEqual, time.Minute.String())

			w = perform(r, http.MethodGet, "/api/v1/nodes/node-1/sensors/temperature%23t1/average?window=soon", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("历史读数", func() {
			w := perform(r, http.MethodGet, "/api/v1/nodes/node-1/sensors/temperature%23t1/history", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var history []panel.Sample
			So(json.Unmarshal(w.Body.Bytes(), &history), ShouldBeNil)
			So(history, ShouldHaveLength, 1)
			So(history[0].Value, ShouldEqual, 22.5)
		})

		Convey("发送命令", func() {
			hub.On("SendCommand", "node-1", "heater", true).Return(nil).Once()
			w := perform(r, http.MethodPost, "/api/v1/nodes/node-1/commands", `{"target":"heater","state":true}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)

			w = perform(r, http.MethodPost, "/api/v1/nodes/node-1/commands", `{"state":true}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)

			hub.On("SendCommand", "ghost", "fan", false).Return(fmt.Errorf("%w: ghost", panel.ErrUnknownNode)).Once()
			w = perform(r, http.MethodPost, "/api/v1/nodes/ghost/commands", `{"target":"fan"}`)
			So(w.Code, ShouldEqual, http.StatusNotFound)

			hub.On("SendCommand", "node-1", "fan", false).Return(panel.ErrNotConnected).Once()
			w = perform(r, http.MethodPost, "/api/v1/nodes/node-1/commands", `{"target":"fan","state":false}`)
			So(w.Code, ShouldEqual, http.StatusConflict)
		})

		Convey("刷新请求体可以为空", func() {
			hub.On("RequestDataRefresh", "node-1", "").Return(nil).Once()
			w := perform(r, http.MethodPost, "/api/v1/nodes/node-1/refresh", "")
			So(w.Code, ShouldEqual, http.StatusAccepted)

			hub.On("RequestDataRefresh", "node-1", "sensors").Return(nil).Once()
			w = perform(r, http.MethodPost, "/api/v1/nodes/node-1/refresh", `{"target":"sensors"}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)

			w = perform(r, http.MethodPost, "/api/v1/nodes/node-1/refresh", `{"target":`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("断开节点", func() {
			hub.On("Disconnect", "node-9").Return(nil).Once()
			w := perform(r, http.MethodDelete, "/api/v1/nodes/node-9", "")
			So(w.Code, ShouldEqual, http.StatusNoContent)
		})

		Convey("指标", func() {
			w := perform(r, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "nodelink_messages_received_total")
		})
	})
}
