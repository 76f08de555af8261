package blueprint

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/appservice/armappservice/v2"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/monitor/armmonitor"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"gopkg.in/yaml.v3"

	"github.com/yairfalse/azalert/internal/azure"
)

// Preview is the full set of payloads a run would send, with the IDs they
// would receive.
type Preview struct {
	RunID          string                         `json:"run_id"`
	SubscriptionID string                         `json:"subscription_id"`
	Names          Names                          `json:"names"`
	IDs            IDs                            `json:"ids"`
	ResourceGroup  armresources.ResourceGroup     `json:"resource_group"`
	Plan           armappservice.Plan             `json:"plan"`
	ActionGroup    armmonitor.ActionGroupResource `json:"action_group"`
	MetricAlert    armmonitor.MetricAlertResource `json:"metric_alert"`
	Meta           Meta                           `json:"meta"`
}

// IDs are the ARM resource IDs derived from the subscription and names.
type IDs struct {
	ResourceGroup string `json:"resource_group"`
	Plan          string `json:"plan"`
	ActionGroup   string `json:"action_group"`
	MetricAlert   string `json:"metric_alert"`
}

// Meta carries values that are awkward to evaluate from the ARM payloads.
type Meta struct {
	EvaluationFrequencySeconds int64 `json:"evaluation_frequency_seconds"`
	WindowSizeSeconds          int64 `json:"window_size_seconds"`
	ReceiverCount              int   `json:"receiver_count"`
}

// Preview assembles every payload without contacting Azure. An empty
// subscriptionID is rendered as a placeholder.
func (b *Blueprint) Preview(subscriptionID string) Preview {
	if subscriptionID == "" {
		subscriptionID = "<subscription-id>"
	}
	n := b.names
	ids := IDs{
		ResourceGroup: azure.ResourceGroupID(subscriptionID, n.Group),
		Plan:          azure.PlanID(subscriptionID, n.Group, n.Plan),
		ActionGroup:   azure.ActionGroupID(subscriptionID, n.Group, n.ActionGroup),
		MetricAlert:   azure.MetricAlertID(subscriptionID, n.Group, n.MetricAlert),
	}

	return Preview{
		RunID:          b.runID,
		SubscriptionID: subscriptionID,
		Names:          n,
		IDs:            ids,
		ResourceGroup:  b.ResourceGroup(),
		Plan:           b.Plan(),
		ActionGroup:    b.ActionGroup(),
		MetricAlert:    b.MetricAlert(ids.Plan, ids.ActionGroup),
		Meta: Meta{
			EvaluationFrequencySeconds: int64(b.cfg.Alert.EvaluationFrequency.Seconds()),
			WindowSizeSeconds:          int64(b.cfg.Alert.WindowSize.Seconds()),
			ReceiverCount:              b.cfg.ActionGroup.Receivers.Count(),
		},
	}
}

// Document converts the preview into a generic map using the ARM wire
// representation of each payload.
func (p Preview) Document() (map[string]any, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal preview: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode preview: %w", err)
	}
	return doc, nil
}

// Render encodes the preview as "json" or "yaml".
func (p Preview) Render(format string) ([]byte, error) {
	switch format {
	case "json":
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(p); err != nil {
			return nil, fmt.Errorf("encode preview: %w", err)
		}
		return bytes.TrimRight(buf.Bytes(), "\n"), nil
	case "yaml", "yml":
		doc, err := p.Document()
		if err != nil {
			return nil, err
		}
		return yaml.Marshal(doc)
	default:
		return nil, fmt.Errorf("unsupported output format %q (must be json or yaml)", format)
	}
}
