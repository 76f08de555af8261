// Package config handles YAML configuration and environment credentials for azalert.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Azure       AzureConfig       `yaml:"azure"`
	Plan        PlanConfig        `yaml:"plan"`
	ActionGroup ActionGroupConfig `yaml:"action_group"`
	Alert       AlertConfig       `yaml:"alert"`
	Policy      PolicyConfig      `yaml:"policy"`
	Cleanup     CleanupConfig     `yaml:"cleanup"`
	Journal     JournalConfig     `yaml:"journal"`
	OTEL        OTELConfig        `yaml:"otel"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Log         LogConfig         `yaml:"log"`
}

// AzureConfig holds resource group placement.
type AzureConfig struct {
	Location            string `yaml:"location"`
	ResourceGroupPrefix string `yaml:"resource_group_prefix"`
}

// PlanConfig describes the App Service plan.
type PlanConfig struct {
	NamePrefix string    `yaml:"name_prefix"`
	Location   string    `yaml:"location"`
	Kind       string    `yaml:"kind"`
	Reserved   bool      `yaml:"reserved"`
	SKU        SKUConfig `yaml:"sku"`
}

// SKUConfig is the pricing tier of the plan.
type SKUConfig struct {
	Name     string `yaml:"name"`
	Tier     string `yaml:"tier"`
	Capacity int32  `yaml:"capacity"`
}

// ActionGroupConfig describes the notification group.
type ActionGroupConfig struct {
	NamePrefix string          `yaml:"name_prefix"`
	Location   string          `yaml:"location"`
	ShortName  string          `yaml:"short_name"`
	Enabled    bool            `yaml:"enabled"`
	Receivers  ReceiversConfig `yaml:"receivers"`
}

// ReceiversConfig lists notification channels per kind.
type ReceiversConfig struct {
	AppPush []EmailReceiver   `yaml:"app_push"`
	Email   []EmailReceiver   `yaml:"email"`
	SMS     []PhoneReceiver   `yaml:"sms"`
	Voice   []PhoneReceiver   `yaml:"voice"`
	Webhook []WebhookReceiver `yaml:"webhook"`
}

// Count returns the number of configured receivers across all kinds.
func (r ReceiversConfig) Count() int {
	return len(r.AppPush) + len(r.Email) + len(r.SMS) + len(r.Voice) + len(r.Webhook)
}

// EmailReceiver is an email or app-push destination.
type EmailReceiver struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// PhoneReceiver is an SMS or voice destination.
type PhoneReceiver struct {
	Name        string `yaml:"name"`
	CountryCode string `yaml:"country_code"`
	Phone       string `yaml:"phone"`
}

// WebhookReceiver is an HTTP callback destination.
type WebhookReceiver struct {
	Name string `yaml:"name"`
	URI  string `yaml:"uri"`
}

// AlertConfig describes the metric alert rule.
type AlertConfig struct {
	NamePrefix          string            `yaml:"name_prefix"`
	Location            string            `yaml:"location"`
	Description         string            `yaml:"description"`
	Severity            int32             `yaml:"severity"`
	Enabled             bool              `yaml:"enabled"`
	AutoMitigate        bool              `yaml:"auto_mitigate"`
	EvaluationFrequency time.Duration     `yaml:"evaluation_frequency"`
	WindowSize          time.Duration     `yaml:"window_size"`
	Criteria            []CriterionConfig `yaml:"criteria"`
}

// CriterionConfig is one static-threshold metric condition.
type CriterionConfig struct {
	Name        string            `yaml:"name"`
	Metric      string            `yaml:"metric"`
	Aggregation string            `yaml:"aggregation"`
	Operator    string            `yaml:"operator"`
	Threshold   float64           `yaml:"threshold"`
	Dimensions  []DimensionConfig `yaml:"dimensions"`
}

// DimensionConfig filters a metric on one dimension.
type DimensionConfig struct {
	Name     string   `yaml:"name"`
	Operator string   `yaml:"operator"`
	Values   []string `yaml:"values"`
}

// PolicyConfig points at extra rego modules evaluated alongside the
// built-in guardrails.
type PolicyConfig struct {
	Dir string `yaml:"dir"`
}

// CleanupConfig bounds the teardown phase.
type CleanupConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// JournalConfig locates the run journal. An empty path disables it.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// OTELConfig holds OpenTelemetry settings.
type OTELConfig struct {
	Endpoint    string       `yaml:"endpoint"`
	Insecure    bool         `yaml:"insecure"`
	ServiceName string       `yaml:"service_name"`
	Traces      TracesConfig `yaml:"traces"`
	Metrics     OTLPMetrics  `yaml:"metrics"`
}

// TracesConfig holds tracing settings.
type TracesConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sample_rate"`
}

// OTLPMetrics toggles OTLP metric push.
type OTLPMetrics struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the prometheus textfile written after each run.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Known metric aggregation and operator names accepted by Azure Monitor.
var (
	Aggregations = []string{"Average", "Count", "Minimum", "Maximum", "Total"}
	Operators    = []string{"Equals", "GreaterThan", "GreaterThanOrEqual", "LessThan", "LessThanOrEqual"}
)

// Default returns the built-in configuration: a P1 plan in eastus2 alerting
// when CPUPercentage on any instance crosses 80.
func Default() *Config {
	return &Config{
		Azure: AzureConfig{
			Location:            "eastus2",
			ResourceGroupPrefix: "rgMonitor",
		},
		Plan: PlanConfig{
			NamePrefix: "HighlyAvailableWebApps",
			Kind:       "app",
			SKU:        SKUConfig{Name: "P1", Tier: "Premium", Capacity: 1},
		},
		ActionGroup: ActionGroupConfig{
			NamePrefix: "criticalPerformanceActionGroup",
			Location:   "northcentralus",
			ShortName:  "AG",
			Enabled:    true,
			Receivers: ReceiversConfig{
				AppPush: []EmailReceiver{
					{Name: "MAAPRtierOne", Email: "ops_on_duty@performancemonitoring.com"},
				},
				Email: []EmailReceiver{
					{Name: "MERtierOne", Email: "ops_on_duty@performancemonitoring.com"},
					{Name: "MERtierTwo", Email: "ceo@performancemonitoring.com"},
				},
				SMS: []PhoneReceiver{
					{Name: "MSRtierOne", CountryCode: "1", Phone: "4255655665"},
				},
				Voice: []PhoneReceiver{
					{Name: "MVRtierOne", CountryCode: "1", Phone: "2062066050"},
				},
				Webhook: []WebhookReceiver{
					{Name: "MWRtierOne", URI: "https://www.weeneedmorepower.performancemonitoring.com"},
				},
			},
		},
		Alert: AlertConfig{
			NamePrefix:          "metricAlert",
			Location:            "global",
			Description:         "Single resource, multiple criteria, with dimensions, with star",
			Severity:            3,
			Enabled:             true,
			AutoMitigate:        true,
			EvaluationFrequency: time.Minute,
			WindowSize:          5 * time.Minute,
			Criteria: []CriterionConfig{
				{
					Name:        "Metric1",
					Metric:      "CPUPercentage",
					Aggregation: "Total",
					Operator:    "GreaterThan",
					Threshold:   80,
					Dimensions: []DimensionConfig{
						{Name: "Instance", Operator: "Include", Values: []string{"*"}},
					},
				},
			},
		},
		Cleanup: CleanupConfig{Timeout: 30 * time.Minute},
		Journal: JournalConfig{Path: "./azalert.db"},
		OTEL:    OTELConfig{ServiceName: "azalert"},
		Log:     LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads a YAML config file on top of Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Plan.Location == "" {
		cfg.Plan.Location = cfg.Azure.Location
	}
	if cfg.ActionGroup.Location == "" {
		cfg.ActionGroup.Location = "global"
	}
	if cfg.Alert.Location == "" {
		cfg.Alert.Location = "global"
	}
	if cfg.Cleanup.Timeout == 0 {
		cfg.Cleanup.Timeout = 30 * time.Minute
	}
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "azalert"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

// Validate checks the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if c.Azure.Location == "" {
		errs = append(errs, errors.New("azure: location required"))
	}
	if c.Azure.ResourceGroupPrefix == "" {
		errs = append(errs, errors.New("azure: resource_group_prefix required"))
	}
	if c.Plan.SKU.Name == "" || c.Plan.SKU.Tier == "" {
		errs = append(errs, errors.New("plan: sku name and tier required"))
	}
	if c.Plan.SKU.Capacity < 1 {
		errs = append(errs, fmt.Errorf("plan: sku capacity must be at least 1 (got %d)", c.Plan.SKU.Capacity))
	}
	if n := len(c.ActionGroup.ShortName); n == 0 || n > 12 {
		errs = append(errs, fmt.Errorf("action_group: short_name must be 1-12 characters (got %d)", n))
	}
	if c.ActionGroup.Receivers.Count() == 0 {
		errs = append(errs, errors.New("action_group: at least one receiver required"))
	}
	if c.Alert.Severity < 0 || c.Alert.Severity > 4 {
		errs = append(errs, fmt.Errorf("alert: severity must be between 0 and 4 (got %d)", c.Alert.Severity))
	}
	if c.Alert.EvaluationFrequency <= 0 || c.Alert.WindowSize <= 0 {
		errs = append(errs, errors.New("alert: evaluation_frequency and window_size must be positive"))
	}
	if len(c.Alert.Criteria) == 0 {
		errs = append(errs, errors.New("alert: at least one criterion required"))
	}
	for i, cr := range c.Alert.Criteria {
		if cr.Metric == "" {
			errs = append(errs, fmt.Errorf("alert: criteria[%d]: metric required", i))
		}
		if !contains(Aggregations, cr.Aggregation) {
			errs = append(errs, fmt.Errorf("alert: criteria[%d]: unknown aggregation %q (must be one of: %s)",
				i, cr.Aggregation, strings.Join(Aggregations, ", ")))
		}
		if !contains(Operators, cr.Operator) {
			errs = append(errs, fmt.Errorf("alert: criteria[%d]: unknown operator %q (must be one of: %s)",
				i, cr.Operator, strings.Join(Operators, ", ")))
		}
	}
	if c.OTEL.Traces.SampleRate < 0.0 || c.OTEL.Traces.SampleRate > 1.0 {
		errs = append(errs, fmt.Errorf("otel: traces.sample_rate must be between 0.0 and 1.0 (got %v)", c.OTEL.Traces.SampleRate))
	}

	return errors.Join(errs...)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
