package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Métricas Prometheus del orquestador de autenticación. Viven en un paquete
// standalone para evitar ciclos de import entre auth y las capas HTTP.

var (
	LoginOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authflow_login_outcomes_total",
		Help: "Resultados terminales de login por status (pass|fail|restart)",
	}, []string{"status"})

	AccountCreations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authflow_account_creations_total",
		Help: "Cuentas creadas por origen (manual|autocreate)",
	}, []string{"source"})

	AutoCreateDenials = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authflow_autocreate_denials_total",
		Help: "Auto-creaciones denegadas por motivo",
	}, []string{"reason"})

	LockContention = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authflow_account_lock_contention_total",
		Help: "Intentos de creación rechazados por lock de cuenta ocupado",
	})

	FlowsSuspended = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authflow_flows_suspended_total",
		Help: "Flujos suspendidos (REDIRECT/UI) a la espera del cliente, por acción",
	}, []string{"action"})
)

// RegisterAuth registers the auth metrics on the given registry (or default if nil).
func RegisterAuth(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		LoginOutcomes,
		AccountCreations,
		AutoCreateDenials,
		LockContention,
		FlowsSuspended,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
