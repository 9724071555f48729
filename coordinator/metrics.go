package coordinator

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	ptp "github.com/ptpsync/ptpcore/protocol"
)

// Exporter exposes per-port Statistics both as a Prometheus registry (for
// /metrics scraping) and as a JSON snapshot (for direct polling), the way
// ptp/sptp/stats' PrometheusExporter and ptp4u/stats' JSONStats cover the
// same counters two different ways.
type Exporter struct {
	coord    *Coordinator
	registry *prometheus.Registry
	gauges   map[string]prometheus.Gauge
}

// NewExporter creates an Exporter bound to a Coordinator.
func NewExporter(c *Coordinator) *Exporter {
	return &Exporter{
		coord:    c,
		registry: prometheus.NewRegistry(),
		gauges:   make(map[string]prometheus.Gauge),
	}
}

// Handler returns an http.Handler serving Prometheus text format at whatever
// path the caller mounts it on.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Collect refreshes every gauge from the coordinator's current port
// statistics. Call before each scrape, or on a timer.
func (e *Exporter) Collect() {
	for i, p := range e.coord.Ports() {
		stats := p.Statistics()
		e.setGauge(fmt.Sprintf("ptp_port_%d_rx_announce", i), "announce messages received", float64(stats.RxAnnounce))
		e.setGauge(fmt.Sprintf("ptp_port_%d_rx_sync", i), "sync messages received", float64(stats.RxSync))
		e.setGauge(fmt.Sprintf("ptp_port_%d_tx_announce", i), "announce messages sent", float64(stats.TxAnnounce))
		e.setGauge(fmt.Sprintf("ptp_port_%d_bmca_decisions", i), "BMCA decisions made", float64(stats.BMCADecisions))
		e.setGauge(fmt.Sprintf("ptp_port_%d_bmca_local_wins", i), "BMCA decisions won by the local clock", float64(stats.BMCALocalWins))
		e.setGauge(fmt.Sprintf("ptp_port_%d_bmca_foreign_wins", i), "BMCA decisions won by a foreign master", float64(stats.BMCAForeignWins))
		e.setGauge(fmt.Sprintf("ptp_port_%d_bmca_passive_wins", i), "BMCA decisions resolved to passive", float64(stats.BMCAPassiveWins))
		e.setGauge(fmt.Sprintf("ptp_port_%d_state_transitions", i), "port state transitions", float64(stats.StateTransitions))
		e.setGauge(fmt.Sprintf("ptp_port_%d_faults_detected", i), "faults detected", float64(stats.FaultsDetected))
		e.setGauge(fmt.Sprintf("ptp_port_%d_validation_failures", i), "validation failures", float64(stats.ValidationFailures))
		e.setGauge(fmt.Sprintf("ptp_port_%d_validations_passed", i), "validations passed", float64(stats.ValidationsPassed))
		e.setGauge(fmt.Sprintf("ptp_port_%d_offsets_computed", i), "offset samples computed", float64(stats.OffsetsComputed))
		e.setGauge(fmt.Sprintf("ptp_port_%d_sub_microsecond_samples", i), "offset samples under 1us", float64(stats.SubMicrosecondSamples))
		e.setGauge(fmt.Sprintf("ptp_port_%d_announce_timeouts", i), "announce receipt timeouts", float64(stats.AnnounceTimeouts))
		e.setGauge(fmt.Sprintf("ptp_port_%d_state", i), "current port state enum value", float64(p.State()))
		cds := p.CurrentDataSet()
		e.setGauge(fmt.Sprintf("ptp_port_%d_offset_ns", i), "offset from master, nanoseconds", cds.OffsetFromMaster.Nanoseconds())
		e.setGauge(fmt.Sprintf("ptp_port_%d_mean_path_delay_ns", i), "mean path delay, nanoseconds", cds.MeanPathDelay.Nanoseconds())
	}
}

func (e *Exporter) setGauge(name, help string, value float64) {
	g, ok := e.gauges[name]
	if !ok {
		g = prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
		if err := e.registry.Register(g); err != nil {
			log.Errorf("coordinator: failed to register metric %s: %v", name, err)
			return
		}
		e.gauges[name] = g
	}
	g.Set(value)
}

// JSONSnapshot is the flat structure served by the JSON counters endpoint.
type JSONSnapshot struct {
	Ticks               uint64         `json:"ticks"`
	DecodeErrors        uint64         `json:"decode_errors"`
	UnsupportedMessages uint64         `json:"unsupported_messages"`
	Heartbeats          uint64         `json:"heartbeats"`
	Ports               []PortSnapshot `json:"ports"`
}

// PortSnapshot is one port's counters and current dataset, flattened for
// JSON serialization.
type PortSnapshot struct {
	PortIdentity string         `json:"port_identity"`
	State        string         `json:"state"`
	Statistics   ptp.Statistics `json:"statistics"`
	OffsetNs     float64        `json:"offset_ns"`
	MeanDelayNs  float64        `json:"mean_path_delay_ns"`
}

// Snapshot builds a JSONSnapshot from the coordinator's current port state.
func (e *Exporter) Snapshot() JSONSnapshot {
	ticks, decodeErrors, unsupportedMsg, heartbeats := e.coord.Counters()
	out := JSONSnapshot{
		Ticks:               ticks,
		DecodeErrors:        decodeErrors,
		UnsupportedMessages: unsupportedMsg,
		Heartbeats:          heartbeats,
	}
	for _, p := range e.coord.Ports() {
		cds := p.CurrentDataSet()
		out.Ports = append(out.Ports, PortSnapshot{
			PortIdentity: p.PortDataSet().PortIdentity.String(),
			State:        p.State().String(),
			Statistics:   p.Statistics(),
			OffsetNs:     cds.OffsetFromMaster.Nanoseconds(),
			MeanDelayNs:  cds.MeanPathDelay.Nanoseconds(),
		})
	}
	return out
}

// ServeHTTP implements the JSON counters endpoint directly, the way
// JSONStats.handleRequest does for ptp4u.
func (e *Exporter) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	js, err := json.Marshal(e.Snapshot())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(js); err != nil {
		log.Errorf("coordinator: failed to write JSON response: %v", err)
	}
}
