package health

import (
	"context"

	"github.com/edgexpo/voicegateway/internal/clients"
)

// Readiness values of the system view
const (
	Ready    = "ready"
	NotReady = "not_ready"
)

// OpsReport is the detailed view served at /api/health
type OpsReport struct {
	Status        Overall                         `json:"status"`
	Version       string                          `json:"version"`
	Services      map[string]bool                 `json:"services"`
	Microservices map[string]clients.HealthStatus `json:"microservices"`
	Config        map[string]string               `json:"config"`
	Error         string                          `json:"error,omitempty"`
}

// Report builds the ops view. rag is up when RAG is initialized and both
// embedding and llm are healthy; crm is up once initialized.
func (a *Aggregator) Report(ctx context.Context) OpsReport {
	agg := a.Aggregate(ctx)

	services := map[string]bool{
		ServiceSTT:       agg.Healthy(ServiceSTT),
		ServiceTTS:       agg.Healthy(ServiceTTS),
		ServiceEmbedding: agg.Healthy(ServiceEmbedding),
		ServiceLLM:       agg.Healthy(ServiceLLM),
		"crm":            a.crmInitialized(),
	}
	services["rag"] = a.ragInitialized() && services[ServiceEmbedding] && services[ServiceLLM]

	return OpsReport{
		Status:        agg.Overall,
		Version:       Version,
		Services:      services,
		Microservices: agg.PerService,
		Config:        a.urls,
		Error:         agg.Error,
	}
}

// SystemReport is the three-capability view served at /api/v1/system/health
type SystemReport struct {
	Status   Overall           `json:"status"`
	Services map[string]string `json:"services,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// SystemReport builds the system view. It is healthy only when whisper,
// llm and tts are all ready, partial otherwise, and unhealthy with Error
// when aggregation fails.
func (a *Aggregator) SystemReport(ctx context.Context) SystemReport {
	agg := a.Aggregate(ctx)
	if agg.Error != "" {
		return SystemReport{Status: OverallUnhealthy, Error: agg.Error}
	}

	readiness := func(ok bool) string {
		if ok {
			return Ready
		}
		return NotReady
	}

	services := map[string]string{
		"whisper": readiness(agg.Healthy(ServiceSTT)),
		"llm":     readiness(agg.Healthy(ServiceEmbedding) && agg.Healthy(ServiceLLM) && a.ragInitialized()),
		"tts":     readiness(agg.Healthy(ServiceTTS)),
	}

	status := OverallHealthy
	for _, s := range services {
		if s != Ready {
			status = OverallPartial
			break
		}
	}
	return SystemReport{Status: status, Services: services}
}
