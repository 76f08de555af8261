package azure

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/appservice/armappservice/v2"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/monitor/armmonitor"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
)

// ControlPlane is the set of ARM operations the provisioner drives.
type ControlPlane interface {
	CreateResourceGroup(ctx context.Context, name string, group armresources.ResourceGroup) (armresources.ResourceGroup, error)
	CreatePlan(ctx context.Context, group, name string, plan armappservice.Plan) (armappservice.Plan, error)
	CreateActionGroup(ctx context.Context, group, name string, ag armmonitor.ActionGroupResource) (armmonitor.ActionGroupResource, error)
	CreateMetricAlert(ctx context.Context, group, name string, alert armmonitor.MetricAlertResource) (armmonitor.MetricAlertResource, error)

	// DeleteResourceGroup removes a group and everything it contains.
	DeleteResourceGroup(ctx context.Context, id string) error
}

// ResourceGroupsAPI defines the resource group operations used by Client.
type ResourceGroupsAPI interface {
	CreateOrUpdate(ctx context.Context, resourceGroupName string, parameters armresources.ResourceGroup, options *armresources.ResourceGroupsClientCreateOrUpdateOptions) (armresources.ResourceGroupsClientCreateOrUpdateResponse, error)
	BeginDelete(ctx context.Context, resourceGroupName string, options *armresources.ResourceGroupsClientBeginDeleteOptions) (*runtime.Poller[armresources.ResourceGroupsClientDeleteResponse], error)
}

// PlansAPI defines the App Service plan operations used by Client.
type PlansAPI interface {
	BeginCreateOrUpdate(ctx context.Context, resourceGroupName string, name string, appServicePlan armappservice.Plan, options *armappservice.PlansClientBeginCreateOrUpdateOptions) (*runtime.Poller[armappservice.PlansClientCreateOrUpdateResponse], error)
}

// ActionGroupsAPI defines the action group operations used by Client.
type ActionGroupsAPI interface {
	CreateOrUpdate(ctx context.Context, resourceGroupName string, actionGroupName string, actionGroup armmonitor.ActionGroupResource, options *armmonitor.ActionGroupsClientCreateOrUpdateOptions) (armmonitor.ActionGroupsClientCreateOrUpdateResponse, error)
}

// MetricAlertsAPI defines the metric alert operations used by Client.
type MetricAlertsAPI interface {
	CreateOrUpdate(ctx context.Context, resourceGroupName string, ruleName string, parameters armmonitor.MetricAlertResource, options *armmonitor.MetricAlertsClientCreateOrUpdateOptions) (armmonitor.MetricAlertsClientCreateOrUpdateResponse, error)
}

var _ ControlPlane = (*Client)(nil)
