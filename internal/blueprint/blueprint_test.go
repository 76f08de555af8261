package blueprint

import (
	"strings"
	"unicode/utf8"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/monitor/armmonitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/yairfalse/azalert/internal/config"
)

func TestResourceGroup(t *testing.T) {
	b := New(config.Default(), "run-1")

	rg := b.ResourceGroup()

	assert.Equal(t, "eastus2", *rg.Location)
	assert.Equal(t, "azalert", *rg.Tags[TagManagedBy])
	assert.Equal(t, "run-1", *rg.Tags[TagRunID])
}

func TestPlan_FallsBackToAzureLocation(t *testing.T) {
	cfg := config.Default()
	b := New(cfg, "run-1")

	plan := b.Plan()

	assert.Equal(t, "eastus2", *plan.Location)
	assert.Equal(t, "app", *plan.Kind)
	assert.Equal(t, "P1", *plan.SKU.Name)
	assert.Equal(t, "Premium", *plan.SKU.Tier)
	assert.Equal(t, int32(1), *plan.SKU.Capacity)
	assert.False(t, *plan.Properties.Reserved)

	cfg.Plan.Location = "westeurope"
	assert.Equal(t, "westeurope", *b.Plan().Location)
}

func TestActionGroup_Receivers(t *testing.T) {
	ag := New(config.Default(), "run-1").ActionGroup()

	require.NotNil(t, ag.Properties)
	p := ag.Properties
	assert.Equal(t, "northcentralus", *ag.Location)
	assert.Equal(t, "AG", *p.GroupShortName)
	assert.True(t, *p.Enabled)
	require.Len(t, p.AzureAppPushReceivers, 1)
	require.Len(t, p.EmailReceivers, 2)
	require.Len(t, p.SmsReceivers, 1)
	require.Len(t, p.VoiceReceivers, 1)
	require.Len(t, p.WebhookReceivers, 1)
	assert.Equal(t, "ceo@performancemonitoring.com", *p.EmailReceivers[1].EmailAddress)
	assert.Equal(t, "4255655665", *p.SmsReceivers[0].PhoneNumber)
	assert.Equal(t, "1", *p.VoiceReceivers[0].CountryCode)
	assert.Equal(t, "https://www.weeneedmorepower.performancemonitoring.com", *p.WebhookReceivers[0].ServiceURI)
}

func TestMetricAlert_LinksPlanAndActionGroup(t *testing.T) {
	const (
		planID = "/subscriptions/s/resourceGroups/rg/providers/Microsoft.Web/serverfarms/plan"
		agID   = "/subscriptions/s/resourceGroups/rg/providers/microsoft.insights/actionGroups/ag"
	)

	alert := New(config.Default(), "run-1").MetricAlert(planID, agID)

	p := alert.Properties
	require.NotNil(t, p)
	assert.Equal(t, "global", *alert.Location)
	assert.Equal(t, []*string{to.Ptr(planID)}, p.Scopes)
	require.Len(t, p.Actions, 1)
	assert.Equal(t, agID, *p.Actions[0].ActionGroupID)
	assert.Equal(t, int32(3), *p.Severity)
	assert.True(t, *p.Enabled)
	assert.True(t, *p.AutoMitigate)
	assert.Equal(t, "PT1M", *p.EvaluationFrequency)
	assert.Equal(t, "PT5M", *p.WindowSize)
}

func TestMetricAlert_Criteria(t *testing.T) {
	alert := New(config.Default(), "run-1").MetricAlert("plan", "ag")

	criteria, ok := alert.Properties.Criteria.(*armmonitor.MetricAlertSingleResourceMultipleMetricCriteria)
	require.True(t, ok)
	assert.Equal(t, armmonitor.OdatatypeMicrosoftAzureMonitorSingleResourceMultipleMetricCriteria, *criteria.ODataType)
	require.Len(t, criteria.AllOf, 1)

	c := criteria.AllOf[0]
	assert.Equal(t, "Metric1", *c.Name)
	assert.Equal(t, "CPUPercentage", *c.MetricName)
	assert.Equal(t, armmonitor.CriterionTypeStaticThresholdCriterion, *c.CriterionType)
	assert.Equal(t, armmonitor.AggregationTypeEnum("Total"), *c.TimeAggregation)
	assert.Equal(t, armmonitor.Operator("GreaterThan"), *c.Operator)
	assert.Equal(t, 80.0, *c.Threshold)
	require.Len(t, c.Dimensions, 1)
	assert.Equal(t, "Instance", *c.Dimensions[0].Name)
	assert.Equal(t, "Include", *c.Dimensions[0].Operator)
	assert.Equal(t, []*string{to.Ptr("*")}, c.Dimensions[0].Values)
}

func TestISODuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{time.Minute, "PT1M"},
		{5 * time.Minute, "PT5M"},
		{15 * time.Minute, "PT15M"},
		{time.Hour, "PT1H"},
		{6 * time.Hour, "PT6H"},
		{24 * time.Hour, "P1D"},
		{90 * time.Minute, "PT1H30M"},
		{45 * time.Second, "PT45S"},
		{0, "PT0S"},
		{500 * time.Millisecond, "PT0S"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ISODuration(tt.in))
		})
	}
}

func TestRandomName(t *testing.T) {
	a := RandomName("rgMonitor", 90)
	b := RandomName("rgMonitor", 90)

	assert.True(t, strings.HasPrefix(a, "rgMonitor"))
	assert.Len(t, a, len("rgMonitor")+8)
	assert.NotEqual(t, a, b)

	long := RandomName(strings.Repeat("x", 50), 40)
	assert.Len(t, long, 40)

	tiny := RandomName("prefix", 4)
	assert.Len(t, tiny, 8)
}

func TestRandomName_KeepsRunesWhole(t *testing.T) {
	name := RandomName("ééééé", 13)

	assert.True(t, utf8.ValidString(name))
	assert.LessOrEqual(t, len(name), 13)
	assert.True(t, strings.HasPrefix(name, "éé"))
	assert.False(t, strings.HasPrefix(name, "ééé"))
}

func TestNewNames(t *testing.T) {
	n := NewNames(config.Default())

	assert.True(t, strings.HasPrefix(n.Group, "rgMonitor"))
	assert.True(t, strings.HasPrefix(n.Plan, "HighlyAvailableWebApps"))
	assert.True(t, strings.HasPrefix(n.ActionGroup, "criticalPerformanceActionGroup"))
	assert.True(t, strings.HasPrefix(n.MetricAlert, "metricAlert"))
	assert.LessOrEqual(t, len(n.Plan), maxPlanName)
}

func TestPreview(t *testing.T) {
	b := New(config.Default(), "run-1")

	p := b.Preview("sub-1")

	assert.Equal(t, "run-1", p.RunID)
	assert.Equal(t, "/subscriptions/sub-1/resourceGroups/"+p.Names.Group, p.IDs.ResourceGroup)
	assert.Equal(t, []*string{to.Ptr(p.IDs.Plan)}, p.MetricAlert.Properties.Scopes)
	assert.Equal(t, p.IDs.ActionGroup, *p.MetricAlert.Properties.Actions[0].ActionGroupID)
	assert.Equal(t, int64(60), p.Meta.EvaluationFrequencySeconds)
	assert.Equal(t, int64(300), p.Meta.WindowSizeSeconds)
	assert.Equal(t, 6, p.Meta.ReceiverCount)
}

func TestPreview_PlaceholderSubscription(t *testing.T) {
	p := New(config.Default(), "run-1").Preview("")
	assert.Contains(t, p.IDs.ResourceGroup, "<subscription-id>")
}

func TestPreview_Document(t *testing.T) {
	doc, err := New(config.Default(), "run-1").Preview("sub-1").Document()
	require.NoError(t, err)

	alert, ok := doc["metric_alert"].(map[string]any)
	require.True(t, ok)
	props, ok := alert["properties"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(3), props["severity"])
	assert.Equal(t, "PT5M", props["windowSize"])

	ag := doc["action_group"].(map[string]any)["properties"].(map[string]any)
	assert.Equal(t, "AG", ag["groupShortName"])
}

func TestPreview_Render(t *testing.T) {
	p := New(config.Default(), "run-1").Preview("sub-1")

	js, err := p.Render("json")
	require.NoError(t, err)
	assert.Contains(t, string(js), `"run_id": "run-1"`)
	assert.Contains(t, string(js), `"CPUPercentage"`)

	ym, err := p.Render("yaml")
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(ym, &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])

	_, err = p.Render("xml")
	assert.Error(t, err)
}

func TestPreview_RenderJSONKeepsAngleBrackets(t *testing.T) {
	js, err := New(config.Default(), "run-1").Preview("").Render("json")

	require.NoError(t, err)
	assert.Contains(t, string(js), `"subscription_id": "<subscription-id>"`)
	assert.NotContains(t, string(js), `\u003c`)
	assert.False(t, strings.HasSuffix(string(js), "\n"))
}
