// Package resource defines the record azalert keeps for every resource it creates.
package resource

import "time"

// Type identifies the kind of Azure resource that was created.
type Type string

const (
	TypeResourceGroup Type = "resource_group"
	TypePlan          Type = "app_service_plan"
	TypeActionGroup   Type = "action_group"
	TypeMetricAlert   Type = "metric_alert"
)

// Resource is a created Azure resource in unified format.
type Resource struct {
	ID        string            `json:"id"`         // ARM resource ID
	Type      Type              `json:"type"`       // Resource kind
	Name      string            `json:"name"`       // Resource name inside its group
	Group     string            `json:"group"`      // Owning resource group name
	Location  string            `json:"location"`   // Azure location (e.g., "eastus2")
	Tags      map[string]string `json:"tags"`       // Tags applied at creation
	CreatedAt time.Time         `json:"created_at"` // When creation completed
}

// Step is the outcome of one provisioning call.
type Step struct {
	Type     Type          `json:"type"`
	Name     string        `json:"name"`
	ID       string        `json:"id,omitempty"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Failed reports whether the step returned an error.
func (s Step) Failed() bool {
	return s.Error != ""
}
