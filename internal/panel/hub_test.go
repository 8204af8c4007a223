package panel

import (
	"context"
	"testing"
	"time"

	"nodelink/internal/pkg"
	"nodelink/internal/session"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestHub(t *testing.T) {
	Convey("Hub 管理多个远端节点", t, func() {
		n, _, heater := newGreenhouse(t)
		srv, err := session.Listen(context.Background(), n, "127.0.0.1:0", pkg.DefaultMaxFrameSize,
			session.WithMetrics(pkg.NewMetrics(prometheus.NewRegistry())))
		So(err, ShouldBeNil)
		go func() { _ = srv.Serve() }()
		defer srv.Close()

		d := newTestDispatcher()
		hub := NewHub(context.Background(), d, WithClientMetrics(pkg.NewMetrics(prometheus.NewRegistry())))
		defer hub.Close()

		err = hub.ConnectAll(context.Background(), []pkg.RemoteNodeConfig{
			{ID: "greenhouse", Addr: srv.Addr().String()},
			{ID: "offline", Addr: "127.0.0.1:1"},
		})
		So(err, ShouldNotBeNil)
		So(hub.Clients(), ShouldResemble, []string{"greenhouse"})

		Convey("重复连接同一节点失败", func() {
			_, err := hub.Connect(context.Background(), pkg.RemoteNodeConfig{ID: "greenhouse", Addr: srv.Addr().String()})
			So(err, ShouldNotBeNil)
		})

		Convey("通过 Hub 下发命令", func() {
			So(hub.SendCommand("greenhouse", "heater-01", true), ShouldBeNil)
			deadline := time.Now().Add(waitFor)
			for !heater.State() && time.Now().Before(deadline) {
				time.Sleep(10 * time.Millisecond)
			}
			So(heater.State(), ShouldBeTrue)
			So(hub.RequestDataRefresh("greenhouse", "sensors"), ShouldBeNil)
		})

		Convey("未知节点返回 ErrUnknownNode", func() {
			So(hub.SendCommand("nope", "fan", true), ShouldNotBeNil)
			So(hub.Disconnect("nope"), ShouldNotBeNil)
		})

		Convey("断开后从 Hub 中移除", func() {
			So(hub.Disconnect("greenhouse"), ShouldBeNil)
			So(hub.Clients(), ShouldBeEmpty)
		})
	})
}
