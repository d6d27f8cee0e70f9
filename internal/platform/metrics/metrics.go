package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the member service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	PeopleCreated      prometheus.Counter
	PeopleUpdated      prometheus.Counter
	ConsentRejections  prometheus.Counter
	KeysIssued         prometheus.Counter
	AccountMessages    *prometheus.CounterVec
	MailSyncOperations *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PeopleCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "members_people_created_total",
			Help: "Total number of person records created.",
		}),
		PeopleUpdated: f.NewCounter(prometheus.CounterOpts{
			Name: "members_people_updated_total",
			Help: "Total number of committed person updates.",
		}),
		ConsentRejections: f.NewCounter(prometheus.CounterOpts{
			Name: "members_paper_pubs_consent_rejections_total",
			Help: "Updates rejected because paper publications were not enabled for the person.",
		}),
		KeysIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "members_keys_issued_total",
			Help: "Total number of access keys issued.",
		}),
		AccountMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "members_account_messages_total",
			Help: "Account notification messages by result.",
		}, []string{"result"}),
		MailSyncOperations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "members_mailsync_operations_total",
			Help: "Mail list reconciliation operations by operation and result.",
		}, []string{"op", "result"}),
	}
}

func (m *Metrics) IncPeopleCreated() {
	if m != nil {
		m.PeopleCreated.Inc()
	}
}

func (m *Metrics) IncPeopleUpdated() {
	if m != nil {
		m.PeopleUpdated.Inc()
	}
}

func (m *Metrics) IncConsentRejections() {
	if m != nil {
		m.ConsentRejections.Inc()
	}
}

func (m *Metrics) IncKeysIssued() {
	if m != nil {
		m.KeysIssued.Inc()
	}
}

func (m *Metrics) ObserveAccountMessage(result string) {
	if m != nil {
		m.AccountMessages.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) ObserveMailSync(op, result string) {
	if m != nil {
		m.MailSyncOperations.WithLabelValues(op, result).Inc()
	}
}
