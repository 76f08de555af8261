// Package blueprint builds the ARM request payloads azalert sends.
//
// Every payload is derived from config.Config. The metric alert is the only
// payload that depends on earlier results: it watches the plan and notifies
// the action group created before it.
package blueprint

import (
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/appservice/armappservice/v2"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/monitor/armmonitor"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"

	"github.com/yairfalse/azalert/internal/config"
)

// Tag keys applied to every created resource.
const (
	TagManagedBy = "managed-by"
	TagRunID     = "azalert-run"
)

// Blueprint turns configuration into SDK payloads for one run.
type Blueprint struct {
	cfg   *config.Config
	runID string
	names Names
}

// New creates a blueprint with freshly generated resource names.
func New(cfg *config.Config, runID string) *Blueprint {
	return &Blueprint{
		cfg:   cfg,
		runID: runID,
		names: NewNames(cfg),
	}
}

// Names returns the resource names used by this run.
func (b *Blueprint) Names() Names {
	return b.names
}

// RunID returns the run this blueprint was built for.
func (b *Blueprint) RunID() string {
	return b.runID
}

// Tags returns the tags stamped on every resource of the run.
func (b *Blueprint) Tags() map[string]*string {
	return map[string]*string{
		TagManagedBy: to.Ptr("azalert"),
		TagRunID:     to.Ptr(b.runID),
	}
}

// ResourceGroup builds the resource group payload.
func (b *Blueprint) ResourceGroup() armresources.ResourceGroup {
	return armresources.ResourceGroup{
		Location: to.Ptr(b.cfg.Azure.Location),
		Tags:     b.Tags(),
	}
}

// Plan builds the App Service plan payload.
func (b *Blueprint) Plan() armappservice.Plan {
	p := b.cfg.Plan
	location := p.Location
	if location == "" {
		location = b.cfg.Azure.Location
	}

	return armappservice.Plan{
		Location: to.Ptr(location),
		Kind:     to.Ptr(p.Kind),
		SKU: &armappservice.SKUDescription{
			Name:     to.Ptr(p.SKU.Name),
			Tier:     to.Ptr(p.SKU.Tier),
			Capacity: to.Ptr(p.SKU.Capacity),
		},
		Properties: &armappservice.PlanProperties{
			Reserved: to.Ptr(p.Reserved),
		},
		Tags: b.Tags(),
	}
}

// ActionGroup builds the notification group payload.
func (b *Blueprint) ActionGroup() armmonitor.ActionGroupResource {
	ag := b.cfg.ActionGroup
	r := ag.Receivers

	props := &armmonitor.ActionGroup{
		GroupShortName: to.Ptr(ag.ShortName),
		Enabled:        to.Ptr(ag.Enabled),
	}
	for _, rc := range r.AppPush {
		props.AzureAppPushReceivers = append(props.AzureAppPushReceivers, &armmonitor.AzureAppPushReceiver{
			Name:         to.Ptr(rc.Name),
			EmailAddress: to.Ptr(rc.Email),
		})
	}
	for _, rc := range r.Email {
		props.EmailReceivers = append(props.EmailReceivers, &armmonitor.EmailReceiver{
			Name:         to.Ptr(rc.Name),
			EmailAddress: to.Ptr(rc.Email),
		})
	}
	for _, rc := range r.SMS {
		props.SmsReceivers = append(props.SmsReceivers, &armmonitor.SmsReceiver{
			Name:        to.Ptr(rc.Name),
			CountryCode: to.Ptr(rc.CountryCode),
			PhoneNumber: to.Ptr(rc.Phone),
		})
	}
	for _, rc := range r.Voice {
		props.VoiceReceivers = append(props.VoiceReceivers, &armmonitor.VoiceReceiver{
			Name:        to.Ptr(rc.Name),
			CountryCode: to.Ptr(rc.CountryCode),
			PhoneNumber: to.Ptr(rc.Phone),
		})
	}
	for _, rc := range r.Webhook {
		props.WebhookReceivers = append(props.WebhookReceivers, &armmonitor.WebhookReceiver{
			Name:       to.Ptr(rc.Name),
			ServiceURI: to.Ptr(rc.URI),
		})
	}

	return armmonitor.ActionGroupResource{
		Location:   to.Ptr(ag.Location),
		Properties: props,
		Tags:       b.Tags(),
	}
}

// MetricAlert builds the alert rule payload. The rule watches exactly
// planID and notifies exactly actionGroupID.
func (b *Blueprint) MetricAlert(planID, actionGroupID string) armmonitor.MetricAlertResource {
	a := b.cfg.Alert

	criteria := make([]*armmonitor.MetricCriteria, 0, len(a.Criteria))
	for _, c := range a.Criteria {
		mc := &armmonitor.MetricCriteria{
			Name:            to.Ptr(c.Name),
			MetricName:      to.Ptr(c.Metric),
			CriterionType:   to.Ptr(armmonitor.CriterionTypeStaticThresholdCriterion),
			TimeAggregation: to.Ptr(armmonitor.AggregationTypeEnum(c.Aggregation)),
			Operator:        to.Ptr(armmonitor.Operator(c.Operator)),
			Threshold:       to.Ptr(c.Threshold),
		}
		for _, d := range c.Dimensions {
			mc.Dimensions = append(mc.Dimensions, &armmonitor.MetricDimension{
				Name:     to.Ptr(d.Name),
				Operator: to.Ptr(d.Operator),
				Values:   to.SliceOfPtrs(d.Values...),
			})
		}
		criteria = append(criteria, mc)
	}

	return armmonitor.MetricAlertResource{
		Location: to.Ptr(a.Location),
		Tags:     b.Tags(),
		Properties: &armmonitor.MetricAlertProperties{
			Description:         to.Ptr(a.Description),
			Severity:            to.Ptr(a.Severity),
			Enabled:             to.Ptr(a.Enabled),
			AutoMitigate:        to.Ptr(a.AutoMitigate),
			Scopes:              []*string{to.Ptr(planID)},
			EvaluationFrequency: to.Ptr(ISODuration(a.EvaluationFrequency)),
			WindowSize:          to.Ptr(ISODuration(a.WindowSize)),
			Criteria: &armmonitor.MetricAlertSingleResourceMultipleMetricCriteria{
				ODataType: to.Ptr(armmonitor.OdatatypeMicrosoftAzureMonitorSingleResourceMultipleMetricCriteria),
				AllOf:     criteria,
			},
			Actions: []*armmonitor.MetricAlertAction{
				{ActionGroupID: to.Ptr(actionGroupID)},
			},
		},
	}
}

// ISODuration formats d as an ISO-8601 duration ("PT5M", "PT1H", "P1D").
// Sub-second precision is dropped.
func ISODuration(d time.Duration) string {
	if d <= 0 {
		return "PT0S"
	}
	if d%(24*time.Hour) == 0 {
		return "P" + strconv.FormatInt(int64(d/(24*time.Hour)), 10) + "D"
	}

	out := "PT"
	if h := d / time.Hour; h > 0 {
		out += strconv.FormatInt(int64(h), 10) + "H"
		d -= h * time.Hour
	}
	if m := d / time.Minute; m > 0 {
		out += strconv.FormatInt(int64(m), 10) + "M"
		d -= m * time.Minute
	}
	if s := d / time.Second; s > 0 {
		out += strconv.FormatInt(int64(s), 10) + "S"
	}
	if out == "PT" {
		return "PT0S"
	}
	return out
}
