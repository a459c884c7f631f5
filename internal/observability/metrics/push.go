package metrics

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/journeys/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
)

const (
	ExporterRemoteWrite = "prometheus_remote_write"
	ExporterPushgateway = "prometheus_pushgateway"

	pushTimeout = 5 * time.Second
)

// Pusher ships the registry of a process nobody scrapes. apps/worker is the
// only user: it has no HTTP listener but owns the outbox relay metrics.
type Pusher interface {
	Push(ctx context.Context, gatherer prometheus.Gatherer) error
}

// NewPusher returns nil when pushing is not configured or misconfigured.
func NewPusher(cfg config.Config, log *zap.Logger) Pusher {
	push := cfg.Metrics
	if push.Exporter == "" {
		return nil
	}
	if push.Endpoint == "" {
		log.Warn("metrics push disabled, METRICS_PUSH_ENDPOINT is empty", zap.String("exporter", push.Exporter))
		return nil
	}
	// Workers share a job name, so the node id keeps their series apart.
	node := strconv.FormatInt(cfg.NodeID, 10)

	switch push.Exporter {
	case ExporterRemoteWrite:
		if _, err := url.ParseRequestURI(push.Endpoint); err != nil {
			log.Warn("metrics push disabled, invalid endpoint", zap.Error(err))
			return nil
		}
		return NewRemoteWritePusher(push.Endpoint, push.AuthToken, map[string]string{"node": node})
	case ExporterPushgateway:
		return NewPushgatewayPusher(push.Endpoint, cfg.AppName+"-worker", map[string]string{
			"environment": cfg.Environment,
			"node":        node,
		})
	default:
		log.Warn("metrics push disabled, unknown exporter", zap.String("exporter", push.Exporter))
		return nil
	}
}

type RemoteWritePusher struct {
	endpoint  string
	authToken string
	extra     map[string]string
	client    *http.Client
}

// NewRemoteWritePusher adds extra as labels on every series.
func NewRemoteWritePusher(endpoint, authToken string, extra map[string]string) *RemoteWritePusher {
	return &RemoteWritePusher{
		endpoint:  endpoint,
		authToken: strings.TrimSpace(authToken),
		extra:     extra,
		client:    &http.Client{Timeout: pushTimeout},
	}
}

func (p *RemoteWritePusher) Push(ctx context.Context, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return fmt.Errorf("gather: %w", err)
	}
	series := buildRemoteWriteSeries(families, p.extra, time.Now().UnixMilli())
	if len(series) == 0 {
		return nil
	}

	raw, err := proto.Marshal(protoadapt.MessageV2Of(&prompb.WriteRequest{Timeseries: series}))
	if err != nil {
		return fmt.Errorf("encode write request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(snappy.Encode(nil, raw)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	if p.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.authToken)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("remote write returned %s", resp.Status)
	}
	return nil
}

type PushgatewayPusher struct {
	pusher *push.Pusher
}

func NewPushgatewayPusher(endpoint, job string, grouping map[string]string) *PushgatewayPusher {
	pusher := push.New(endpoint, job)
	for key, value := range grouping {
		if value != "" {
			pusher = pusher.Grouping(key, value)
		}
	}
	return &PushgatewayPusher{pusher: pusher}
}

// Push replaces the group on the gateway, so counters from a restarted
// worker do not linger next to the new ones.
func (p *PushgatewayPusher) Push(ctx context.Context, gatherer prometheus.Gatherer) error {
	return p.pusher.Gatherer(gatherer).PushContext(ctx)
}

var PushModule = fx.Module("metrics.push",
	fx.Provide(NewPusher),
	fx.Invoke(startPushLoop),
)

func startPushLoop(lc fx.Lifecycle, cfg config.Config, pusher Pusher, gatherer prometheus.Gatherer, log *zap.Logger) {
	if pusher == nil {
		return
	}
	log = log.Named("metrics.push")
	interval := cfg.Metrics.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				runPushLoop(ctx, pusher, gatherer, interval, log)
			}()
			log.Info("pushing metrics", zap.Duration("interval", interval))
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			// last relay cycle before shutdown
			if err := pusher.Push(stopCtx, gatherer); err != nil {
				log.Warn("final metrics push failed", zap.Error(err))
			}
			return nil
		},
	})
}

func runPushLoop(ctx context.Context, pusher Pusher, gatherer prometheus.Gatherer, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := pusher.Push(ctx, gatherer); err != nil {
				log.Warn("metrics push failed", zap.Error(err))
			}
		}
	}
}

// buildRemoteWriteSeries flattens counters, gauges and histograms the way
// the text exposition does: one series per histogram bucket plus _sum and
// _count. Summaries are not used by this service and are skipped.
func buildRemoteWriteSeries(families []*dto.MetricFamily, extra map[string]string, ts int64) []prompb.TimeSeries {
	var series []prompb.TimeSeries
	add := func(name string, m *dto.Metric, value float64, more ...prompb.Label) {
		labels := make([]prompb.Label, 0, len(m.GetLabel())+len(extra)+len(more)+1)
		labels = append(labels, prompb.Label{Name: "__name__", Value: name})
		for _, l := range m.GetLabel() {
			labels = append(labels, prompb.Label{Name: l.GetName(), Value: l.GetValue()})
		}
		for k, v := range extra {
			labels = append(labels, prompb.Label{Name: k, Value: v})
		}
		labels = append(labels, more...)
		slices.SortFunc(labels, func(a, b prompb.Label) int { return strings.Compare(a.Name, b.Name) })
		series = append(series, prompb.TimeSeries{
			Labels:  labels,
			Samples: []prompb.Sample{{Value: value, Timestamp: ts}},
		})
	}

	for _, family := range families {
		name := family.GetName()
		for _, m := range family.GetMetric() {
			switch family.GetType() {
			case dto.MetricType_COUNTER:
				add(name, m, m.GetCounter().GetValue())
			case dto.MetricType_GAUGE:
				add(name, m, m.GetGauge().GetValue())
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				for _, b := range h.GetBucket() {
					add(name+"_bucket", m, float64(b.GetCumulativeCount()),
						prompb.Label{Name: "le", Value: formatBound(b.GetUpperBound())})
				}
				add(name+"_bucket", m, float64(h.GetSampleCount()), prompb.Label{Name: "le", Value: "+Inf"})
				add(name+"_sum", m, h.GetSampleSum())
				add(name+"_count", m, float64(h.GetSampleCount()))
			}
		}
	}
	return series
}

func formatBound(v float64) string {
	if math.IsInf(v, 1) {
		return "+Inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
