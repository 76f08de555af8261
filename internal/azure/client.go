// Package azure adapts the Azure Resource Manager SDK clients to azalert.
package azure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/appservice/armappservice/v2"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/monitor/armmonitor"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"

	"github.com/yairfalse/azalert/internal/config"
)

// ErrNotFound is returned when the target resource does not exist.
var ErrNotFound = errors.New("resource not found")

// Client implements ControlPlane on top of the ARM SDK clients.
type Client struct {
	subscriptionID string

	groups       ResourceGroupsAPI
	plans        PlansAPI
	actionGroups ActionGroupsAPI
	metricAlerts MetricAlertsAPI
}

// NewCredential builds a client-secret credential for the service principal.
func NewCredential(creds config.Credentials) (azcore.TokenCredential, error) {
	cred, err := azidentity.NewClientSecretCredential(creds.TenantID, creds.ClientID, creds.ClientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("create client secret credential: %w", err)
	}
	return cred, nil
}

// NewClient creates the ARM clients bound to one subscription.
// opts may be nil.
func NewClient(subscriptionID string, cred azcore.TokenCredential, opts *arm.ClientOptions) (*Client, error) {
	groups, err := armresources.NewResourceGroupsClient(subscriptionID, cred, opts)
	if err != nil {
		return nil, fmt.Errorf("create resource groups client: %w", err)
	}
	plans, err := armappservice.NewPlansClient(subscriptionID, cred, opts)
	if err != nil {
		return nil, fmt.Errorf("create app service plans client: %w", err)
	}
	actionGroups, err := armmonitor.NewActionGroupsClient(subscriptionID, cred, opts)
	if err != nil {
		return nil, fmt.Errorf("create action groups client: %w", err)
	}
	metricAlerts, err := armmonitor.NewMetricAlertsClient(subscriptionID, cred, opts)
	if err != nil {
		return nil, fmt.Errorf("create metric alerts client: %w", err)
	}

	return &Client{
		subscriptionID: subscriptionID,
		groups:         groups,
		plans:          plans,
		actionGroups:   actionGroups,
		metricAlerts:   metricAlerts,
	}, nil
}

// CreateResourceGroup creates or updates a resource group.
func (c *Client) CreateResourceGroup(ctx context.Context, name string, group armresources.ResourceGroup) (armresources.ResourceGroup, error) {
	resp, err := c.groups.CreateOrUpdate(ctx, name, group, nil)
	if err != nil {
		return armresources.ResourceGroup{}, wrap(err, "create resource group %s", name)
	}
	return resp.ResourceGroup, nil
}

// CreatePlan creates an App Service plan and waits for completion.
func (c *Client) CreatePlan(ctx context.Context, group, name string, plan armappservice.Plan) (armappservice.Plan, error) {
	poller, err := c.plans.BeginCreateOrUpdate(ctx, group, name, plan, nil)
	if err != nil {
		return armappservice.Plan{}, wrap(err, "begin create app service plan %s", name)
	}
	resp, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return armappservice.Plan{}, wrap(err, "create app service plan %s", name)
	}
	return resp.Plan, nil
}

// CreateActionGroup creates or updates a monitor action group.
func (c *Client) CreateActionGroup(ctx context.Context, group, name string, ag armmonitor.ActionGroupResource) (armmonitor.ActionGroupResource, error) {
	resp, err := c.actionGroups.CreateOrUpdate(ctx, group, name, ag, nil)
	if err != nil {
		return armmonitor.ActionGroupResource{}, wrap(err, "create action group %s", name)
	}
	return resp.ActionGroupResource, nil
}

// CreateMetricAlert creates or updates a metric alert rule.
func (c *Client) CreateMetricAlert(ctx context.Context, group, name string, alert armmonitor.MetricAlertResource) (armmonitor.MetricAlertResource, error) {
	resp, err := c.metricAlerts.CreateOrUpdate(ctx, group, name, alert, nil)
	if err != nil {
		return armmonitor.MetricAlertResource{}, wrap(err, "create metric alert %s", name)
	}
	return resp.MetricAlertResource, nil
}

// DeleteResourceGroup deletes the group identified by its ARM ID and waits
// until the deletion finishes.
func (c *Client) DeleteResourceGroup(ctx context.Context, id string) error {
	rid, err := arm.ParseResourceID(id)
	if err != nil {
		return fmt.Errorf("parse resource group id %q: %w", id, err)
	}
	if !strings.EqualFold(rid.SubscriptionID, c.subscriptionID) {
		return fmt.Errorf("resource group %s belongs to subscription %s, client is bound to %s",
			rid.ResourceGroupName, rid.SubscriptionID, c.subscriptionID)
	}

	poller, err := c.groups.BeginDelete(ctx, rid.ResourceGroupName, nil)
	if err != nil {
		return wrap(err, "begin delete resource group %s", rid.ResourceGroupName)
	}
	if _, err := poller.PollUntilDone(ctx, nil); err != nil {
		return wrap(err, "delete resource group %s", rid.ResourceGroupName)
	}
	return nil
}

// wrap adds context to an SDK error and maps 404 responses to ErrNotFound.
func wrap(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if IsNotFound(err) {
		return fmt.Errorf("%s: %w: %w", msg, ErrNotFound, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// IsNotFound reports whether err is an ARM 404 response.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusNotFound
	}
	return false
}
