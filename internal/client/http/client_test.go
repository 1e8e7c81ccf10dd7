package client_test

import (
	"context"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	client "github.com/tupyy/stream-heartbeat/internal/client/http"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var _ = Describe("http client", func() {
	var (
		server     *ghttp.Server
		httpClient *client.Client
		body       = []byte(`{"device_id":"device-1","timestamp":"2024-03-01T10:00:00.000Z"}`)
	)

	BeforeEach(func() {
		server = ghttp.NewServer()

		c, err := client.New(client.WithTimeout(time.Second), client.WithUserAgent("stream-heartbeat/test"))
		Expect(err).To(BeNil())
		httpClient = c
	})

	AfterEach(func() {
		server.Close()
	})

	It("posts the body as json", func() {
		server.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodPost, "/api/v1/servers"),
			ghttp.VerifyContentType("application/json"),
			ghttp.VerifyHeaderKV("User-Agent", "stream-heartbeat/test"),
			ghttp.VerifyJSON(string(body)),
			ghttp.RespondWith(http.StatusOK, `{"code":0,"unknown":"field"}`),
		))

		code, err := httpClient.Post(context.Background(), server.URL()+"/api/v1/servers", body)
		Expect(err).To(BeNil())
		Expect(code).To(Equal(http.StatusOK))
		Expect(server.ReceivedRequests()).To(HaveLen(1))
	})

	It("returns the status code without error for non 2xx responses", func() {
		server.AppendHandlers(ghttp.RespondWith(http.StatusServiceUnavailable, "busy"))

		code, err := httpClient.Post(context.Background(), server.URL(), body)
		Expect(err).To(BeNil())
		Expect(code).To(Equal(http.StatusServiceUnavailable))
	})

	It("does not follow redirects", func() {
		server.AppendHandlers(ghttp.RespondWith(http.StatusFound, nil, http.Header{"Location": []string{"/elsewhere"}}))

		code, err := httpClient.Post(context.Background(), server.URL(), body)
		Expect(err).To(BeNil())
		Expect(code).To(Equal(http.StatusFound))
		Expect(server.ReceivedRequests()).To(HaveLen(1))
	})

	It("returns an error when the server is unreachable", func() {
		url := server.URL()
		server.Close()

		code, err := httpClient.Post(context.Background(), url, body)
		Expect(err).ToNot(BeNil())
		Expect(code).To(Equal(0))
	})

	It("returns an error when the server does not answer in time", func() {
		release := make(chan struct{})
		defer close(release)

		server.AppendHandlers(func(w http.ResponseWriter, r *http.Request) {
			<-release
		})

		start := time.Now()
		_, err := httpClient.Post(context.Background(), server.URL(), body)
		Expect(err).ToNot(BeNil())
		Expect(time.Since(start)).To(BeNumerically("<", 3*time.Second))
	})

	It("rejects urls which are not http", func() {
		_, err := httpClient.Post(context.Background(), "ftp://127.0.0.1/servers", body)
		Expect(err).ToNot(BeNil())
		Expect(server.ReceivedRequests()).To(BeEmpty())
	})

	Context("debug logging", func() {
		var (
			logs *observer.ObservedLogs
			undo func()
		)

		BeforeEach(func() {
			var core zapcore.Core
			core, logs = observer.New(zapcore.DebugLevel)
			undo = zap.ReplaceGlobals(zap.New(core))
		})

		AfterEach(func() {
			undo()
		})

		It("dumps the request and keeps the body intact", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyJSON(string(body)),
				ghttp.RespondWith(http.StatusOK, `{"code":0}`, http.Header{"Content-Type": []string{"application/json"}}),
			))

			code, err := httpClient.Post(context.Background(), server.URL(), body)
			Expect(err).To(BeNil())
			Expect(code).To(Equal(http.StatusOK))

			Expect(logs.FilterMessage("heartbeat request").Len()).To(Equal(1))
			Expect(logs.FilterMessage("request body").Len()).To(Equal(1))
			Expect(logs.FilterMessage("response body").Len()).To(Equal(1))
		})
	})
})
