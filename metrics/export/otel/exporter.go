package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	goAccess "github.com/MrEthical07/goAccess"
	"github.com/MrEthical07/goAccess/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Constructor errors.
var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() goAccess.MetricsSnapshot
	AuditDropped() uint64
}

type member struct {
	value string
	id    goAccess.MetricID
}

// family is one instrument whose data points split an engine concern by a
// single attribute.
type family struct {
	name    string
	unit    string
	help    string
	key     string
	members []member
}

var families = []family{
	{
		name: "goaccess.logins", unit: "{login}", help: "Login attempts by outcome.", key: "outcome",
		members: []member{
			{"success", goAccess.MetricLoginSuccess},
			{"failure", goAccess.MetricLoginFailure},
		},
	},
	{
		name: "goaccess.login.rejections", unit: "{login}", help: "Rejected logins by reason.", key: "reason",
		members: []member{
			{"throttled", goAccess.MetricLoginThrottled},
			{"unknown_user", goAccess.MetricLoginUnknownUser},
			{"bad_password", goAccess.MetricLoginBadPassword},
		},
	},
	{
		name: "goaccess.sessions", unit: "{session}", help: "Session lifecycle events.", key: "event",
		members: []member{
			{"created", goAccess.MetricSessionCreated},
			{"invalidated", goAccess.MetricSessionInvalidated},
			{"logout", goAccess.MetricLogout},
			{"logout_all", goAccess.MetricLogoutAll},
		},
	},
	{
		name: "goaccess.activations", unit: "{token}", help: "Activation tokens by outcome.", key: "outcome",
		members: []member{
			{"issued", goAccess.MetricActivationIssued},
			{"confirmed", goAccess.MetricActivationConfirmed},
			{"already_confirmed", goAccess.MetricActivationAlreadyConfirmed},
			{"invalid", goAccess.MetricActivationInvalid},
			{"unknown_account", goAccess.MetricActivationUnknownAccount},
		},
	},
	{
		name: "goaccess.registrations", unit: "{account}", help: "Registrations by outcome.", key: "outcome",
		members: []member{
			{"success", goAccess.MetricRegistrationSuccess},
			{"duplicate", goAccess.MetricRegistrationDuplicate},
			{"invalid", goAccess.MetricRegistrationInvalid},
		},
	},
	{
		name: "goaccess.password.changes", unit: "{change}", help: "Password hash writes by cause.", key: "outcome",
		members: []member{
			{"success", goAccess.MetricPasswordChangeSuccess},
			{"failure", goAccess.MetricPasswordChangeFailure},
			{"upgraded", goAccess.MetricPasswordUpgraded},
		},
	},
}

type observedMember struct {
	id   goAccess.MetricID
	opts metric.ObserveOption
}

type observedFamily struct {
	instrument metric.Int64ObservableCounter
	members    []observedMember
}

// Exporter publishes engine metrics as observable instruments read by one
// callback per collection.
type Exporter struct {
	source       metricsSource
	registration metric.Registration

	families     []observedFamily
	mailDropped  metric.Int64ObservableCounter
	auditDropped metric.Int64ObservableCounter

	resolves       metric.Int64ObservableCounter
	resolveBuckets metric.Int64ObservableGauge
	bucketOpts     [8]metric.ObserveOption
}

// NewExporter registers instruments on meter that read from engine.
func NewExporter(meter metric.Meter, engine *goAccess.Engine) (*Exporter, error) {
	return NewExporterFromSource(meter, engine)
}

// NewExporterFromSource is NewExporter over any snapshot source.
func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source, families: make([]observedFamily, 0, len(families))}
	observables := make([]metric.Observable, 0, len(families)+4)

	for _, f := range families {
		ins, err := meter.Int64ObservableCounter(f.name, metric.WithUnit(f.unit), metric.WithDescription(f.help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", f.name, err)
		}
		of := observedFamily{instrument: ins, members: make([]observedMember, 0, len(f.members))}
		for _, m := range f.members {
			of.members = append(of.members, observedMember{
				id:   m.id,
				opts: metric.WithAttributeSet(attribute.NewSet(attribute.String(f.key, m.value))),
			})
		}
		e.families = append(e.families, of)
		observables = append(observables, ins)
	}

	var err error
	if e.mailDropped, err = meter.Int64ObservableCounter("goaccess.mail.dropped",
		metric.WithUnit("{message}"),
		metric.WithDescription("Activation messages the mailer refused."),
	); err != nil {
		return nil, fmt.Errorf("create mail dropped counter: %w", err)
	}
	if e.auditDropped, err = meter.Int64ObservableCounter("goaccess.audit.dropped",
		metric.WithUnit("{event}"),
		metric.WithDescription("Audit events dropped on a full buffer."),
	); err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	if e.resolves, err = meter.Int64ObservableCounter("goaccess.resolve.count",
		metric.WithUnit("{resolution}"),
		metric.WithDescription("Timed principal resolutions."),
	); err != nil {
		return nil, fmt.Errorf("create resolve counter: %w", err)
	}
	if e.resolveBuckets, err = meter.Int64ObservableGauge("goaccess.resolve.latency.bucket",
		metric.WithUnit("{resolution}"),
		metric.WithDescription("Cumulative principal resolutions at or under the le bound, in seconds."),
	); err != nil {
		return nil, fmt.Errorf("create resolve latency gauge: %w", err)
	}
	for i := range e.bucketOpts {
		le := "+Inf"
		if i < len(internaldefs.HistogramUpperBounds) {
			le = strconv.FormatFloat(internaldefs.HistogramUpperBounds[i], 'g', -1, 64)
		}
		e.bucketOpts[i] = metric.WithAttributeSet(attribute.NewSet(attribute.String("le", le)))
	}
	observables = append(observables, e.mailDropped, e.auditDropped, e.resolves, e.resolveBuckets)

	if e.registration, err = meter.RegisterCallback(e.observe, observables...); err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for _, f := range e.families {
		for _, m := range f.members {
			o.ObserveInt64(f.instrument, int64(snap.Counters[m.id]), m.opts)
		}
	}
	o.ObserveInt64(e.mailDropped, int64(snap.Counters[goAccess.MetricMailDropped]))
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))

	// Absent when latency histograms are disabled.
	raw, ok := snap.Histograms[goAccess.MetricResolveLatency]
	if !ok {
		return nil
	}
	cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
	for i, n := range cumulative {
		o.ObserveInt64(e.resolveBuckets, int64(n), e.bucketOpts[i])
	}
	o.ObserveInt64(e.resolves, int64(cumulative[len(cumulative)-1]))
	return nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
