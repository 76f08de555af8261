package blueprint

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/yairfalse/azalert/internal/config"
)

// Azure name length limits for the resources azalert creates.
const (
	maxGroupName       = 90
	maxPlanName        = 40
	maxActionGroupName = 260
	maxAlertName       = 260
)

// Names holds the generated resource names of one run.
type Names struct {
	Group       string `json:"resource_group" yaml:"resource_group"`
	Plan        string `json:"plan" yaml:"plan"`
	ActionGroup string `json:"action_group" yaml:"action_group"`
	MetricAlert string `json:"metric_alert" yaml:"metric_alert"`
}

// NewNames generates a unique name for each resource from the configured prefixes.
func NewNames(cfg *config.Config) Names {
	return Names{
		Group:       RandomName(cfg.Azure.ResourceGroupPrefix, maxGroupName),
		Plan:        RandomName(cfg.Plan.NamePrefix, maxPlanName),
		ActionGroup: RandomName(cfg.ActionGroup.NamePrefix, maxActionGroupName),
		MetricAlert: RandomName(cfg.Alert.NamePrefix, maxAlertName),
	}
}

// RandomName appends a random suffix to prefix, trimming the prefix so the
// result never exceeds maxLen.
func RandomName(prefix string, maxLen int) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	keep := max(maxLen-len(suffix), 0)
	for len(prefix) > keep {
		_, size := utf8.DecodeLastRuneInString(prefix)
		prefix = prefix[:len(prefix)-size]
	}
	return prefix + suffix
}
