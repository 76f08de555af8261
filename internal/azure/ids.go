package azure

import "fmt"

// Provider namespaces of the resources azalert creates.
const (
	namespaceWeb     = "Microsoft.Web/serverfarms"
	namespaceAGroups = "microsoft.insights/actionGroups"
	namespaceMAlerts = "microsoft.insights/metricAlerts"
)

// ResourceGroupID returns the ARM ID of a resource group.
func ResourceGroupID(subscriptionID, group string) string {
	return fmt.Sprintf("/subscriptions/%s/resourceGroups/%s", subscriptionID, group)
}

// PlanID returns the ARM ID an App Service plan will have.
func PlanID(subscriptionID, group, name string) string {
	return childID(subscriptionID, group, namespaceWeb, name)
}

// ActionGroupID returns the ARM ID an action group will have.
func ActionGroupID(subscriptionID, group, name string) string {
	return childID(subscriptionID, group, namespaceAGroups, name)
}

// MetricAlertID returns the ARM ID a metric alert will have.
func MetricAlertID(subscriptionID, group, name string) string {
	return childID(subscriptionID, group, namespaceMAlerts, name)
}

func childID(subscriptionID, group, namespace, name string) string {
	return fmt.Sprintf("%s/providers/%s/%s", ResourceGroupID(subscriptionID, group), namespace, name)
}
