package reporter_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	client "github.com/tupyy/stream-heartbeat/internal/client/http"
	"github.com/tupyy/stream-heartbeat/internal/entity"
	"github.com/tupyy/stream-heartbeat/internal/reporter"
	"github.com/tupyy/stream-heartbeat/internal/stats"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"
)

const path = "/api/v1/servers"

var _ = Describe("heartbeat reporter", func() {
	var (
		server     *ghttp.Server
		httpClient *client.Client
		collector  *stats.Collector
		conf       entity.ReporterConfig
		logs       *observer.ObservedLogs
		undo       func()
	)

	BeforeEach(func() {
		var core zapcore.Core
		core, logs = observer.New(zapcore.InfoLevel)
		undo = zap.ReplaceGlobals(zap.New(core))

		server = ghttp.NewServer()

		c, err := client.New(client.WithTimeout(time.Second))
		Expect(err).To(BeNil())
		httpClient = c

		collector = stats.NewCollector(stats.CollectorConfig{Version: "test"}, nil)

		conf = entity.ReporterConfig{
			Enabled:  true,
			Endpoint: server.URL() + path,
			Interval: time.Second,
			DeviceID: "device-1",
			Timeout:  time.Second,
		}
	})

	AfterEach(func() {
		server.Close()
		undo()
	})

	It("sends nothing when disabled", func() {
		for _, endpoint := range []string{server.URL() + path, "http://127.0.0.1:1/servers", ""} {
			conf.Enabled = false
			conf.Endpoint = endpoint

			r := reporter.New(conf, httpClient, collector)
			r.Heartbeat(context.Background())
		}

		Expect(server.ReceivedRequests()).To(BeEmpty())
		Expect(logs.Len()).To(Equal(0))
	})

	It("succeeds with one request when the api server accepts the heartbeat", func() {
		server.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodPost, path),
			ghttp.VerifyContentType("application/json"),
			ghttp.RespondWith(http.StatusOK, `{"code":0,"data":{"something":"new"}}`),
		))

		r := reporter.New(conf, httpClient, collector)
		outcome := r.DoHeartbeat(context.Background())

		Expect(outcome.IsSuccess()).To(BeTrue())
		Expect(server.ReceivedRequests()).To(HaveLen(1))
	})

	It("sends the device id and timestamp", func() {
		var payload map[string]interface{}

		server.AppendHandlers(func(w http.ResponseWriter, r *http.Request) {
			data, err := io.ReadAll(r.Body)
			Expect(err).To(BeNil())
			Expect(json.Unmarshal(data, &payload)).To(Succeed())
			w.WriteHeader(http.StatusOK)
		})

		reporter.New(conf, httpClient, collector).Heartbeat(context.Background())

		Expect(payload).To(HaveKeyWithValue("device_id", "device-1"))
		Expect(payload).To(HaveKey("timestamp"))
		Expect(payload).To(HaveKeyWithValue("server", collector.ServerID()))
		Expect(payload).ToNot(HaveKey("summaries"))
	})

	It("reports a bad status and logs a warning", func() {
		server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "boom"))

		r := reporter.New(conf, httpClient, collector)
		outcome := r.DoHeartbeat(context.Background())
		Expect(outcome.Kind).To(Equal(entity.BadStatus))
		Expect(outcome.Code).To(Equal(http.StatusInternalServerError))

		server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "boom"))
		Expect(func() { r.Heartbeat(context.Background()) }).ToNot(Panic())

		warnings := logs.FilterMessage("heartbeat failed")
		Expect(warnings.Len()).To(Equal(1))
		Expect(warnings.All()[0].Level).To(Equal(zapcore.WarnLevel))
		Expect(warnings.All()[0].ContextMap()).To(HaveKeyWithValue("code", int64(500)))
	})

	It("reports a connection error when the api server is unreachable", func() {
		server.Close()

		r := reporter.New(conf, httpClient, collector)

		start := time.Now()
		outcome := r.DoHeartbeat(context.Background())
		Expect(outcome.Kind).To(Equal(entity.ConnectionError))
		Expect(time.Since(start)).To(BeNumerically("<", conf.Timeout))

		start = time.Now()
		r.Heartbeat(context.Background())
		Expect(time.Since(start)).To(BeNumerically("<", conf.Timeout))
		Expect(logs.FilterMessage("heartbeat failed").FilterField(zap.String("kind", "connection_error")).Len()).To(Equal(1))
	})

	It("reports a timeout when the api server is too slow", func() {
		release := make(chan struct{})
		defer close(release)

		server.AppendHandlers(func(w http.ResponseWriter, r *http.Request) {
			<-release
		})

		conf.Timeout = 200 * time.Millisecond
		r := reporter.New(conf, httpClient, collector)

		start := time.Now()
		outcome := r.DoHeartbeat(context.Background())
		Expect(outcome.Kind).To(Equal(entity.Timeout))
		Expect(time.Since(start)).To(BeNumerically("<", time.Second))
	})

	It("sends one independent request per call", func() {
		timestamps := make(chan string, 5)

		server.RouteToHandler(http.MethodPost, path, func(w http.ResponseWriter, r *http.Request) {
			var payload map[string]interface{}
			Expect(json.NewDecoder(r.Body).Decode(&payload)).To(Succeed())
			timestamps <- payload["timestamp"].(string)
			w.WriteHeader(http.StatusOK)
		})

		r := reporter.New(conf, httpClient, collector)
		for i := 0; i < 5; i++ {
			r.Heartbeat(context.Background())
			<-time.After(2 * time.Millisecond)
		}
		close(timestamps)

		Expect(server.ReceivedRequests()).To(HaveLen(5))

		seen := make(map[string]struct{})
		for ts := range timestamps {
			seen[ts] = struct{}{}
		}
		Expect(seen).To(HaveLen(5))
		Expect(logs.Len()).To(Equal(0))
	})

	It("handles concurrent calls independently", func() {
		var count int32

		// every second request is rejected
		server.RouteToHandler(http.MethodPost, path, func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&count, 1)%2 == 0 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		})

		r := reporter.New(conf, httpClient, collector)

		var (
			g         errgroup.Group
			successes int32
		)

		for i := 0; i < 10; i++ {
			g.Go(func() error {
				if r.DoHeartbeat(context.Background()).IsSuccess() {
					atomic.AddInt32(&successes, 1)
				}
				return nil
			})
		}

		Expect(g.Wait()).To(Succeed())
		Expect(server.ReceivedRequests()).To(HaveLen(10))
		Expect(atomic.LoadInt32(&successes)).To(Equal(int32(5)))
	})
})
