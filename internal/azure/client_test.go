package azure

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/appservice/armappservice/v2"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/monitor/armmonitor"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/azalert/internal/config"
)

const testSubscription = "00000000-0000-0000-0000-000000000001"

// fakeTransport answers ARM requests from a routing function.
type fakeTransport struct {
	mu       sync.Mutex
	requests []string
	route    func(method, path string) (int, string)
}

func (f *fakeTransport) Do(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req.Method+" "+strings.ToLower(req.URL.Path))
	f.mu.Unlock()

	status, body := f.route(req.Method, strings.ToLower(req.URL.Path))
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}, nil
}

func (f *fakeTransport) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

type fakeCredential struct{}

func (fakeCredential) GetToken(_ context.Context, _ policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{Token: "fake-token", ExpiresOn: time.Now().Add(time.Hour)}, nil
}

func newTestClient(t *testing.T, tr *fakeTransport) *Client {
	t.Helper()
	opts := &arm.ClientOptions{
		ClientOptions: policy.ClientOptions{
			Transport: tr,
			Retry:     policy.RetryOptions{MaxRetries: -1},
		},
		DisableRPRegistration: true,
	}
	c, err := NewClient(testSubscription, fakeCredential{}, opts)
	require.NoError(t, err)
	return c
}

func TestClient_CreateResourceGroup(t *testing.T) {
	tr := &fakeTransport{route: func(method, path string) (int, string) {
		return http.StatusCreated, `{
			"id": "/subscriptions/` + testSubscription + `/resourceGroups/rgMonitor1",
			"name": "rgMonitor1",
			"location": "eastus2",
			"properties": {"provisioningState": "Succeeded"}
		}`
	}}
	c := newTestClient(t, tr)

	rg, err := c.CreateResourceGroup(context.Background(), "rgMonitor1", armresources.ResourceGroup{
		Location: to.Ptr("eastus2"),
	})

	require.NoError(t, err)
	assert.Equal(t, ResourceGroupID(testSubscription, "rgMonitor1"), *rg.ID)
	assert.Equal(t, "rgMonitor1", *rg.Name)
	require.Len(t, tr.calls(), 1)
	assert.True(t, strings.HasPrefix(tr.calls()[0], "PUT "))
	assert.Contains(t, tr.calls()[0], "/resourcegroups/rgmonitor1")
}

func TestClient_CreatePlan_WaitsForCompletion(t *testing.T) {
	planID := PlanID(testSubscription, "rg1", "plan1")
	tr := &fakeTransport{route: func(method, path string) (int, string) {
		return http.StatusOK, `{
			"id": "` + planID + `",
			"name": "plan1",
			"location": "eastus2",
			"properties": {"provisioningState": "Succeeded", "reserved": false}
		}`
	}}
	c := newTestClient(t, tr)

	plan, err := c.CreatePlan(context.Background(), "rg1", "plan1", armappservice.Plan{
		Location: to.Ptr("eastus2"),
	})

	require.NoError(t, err)
	assert.Equal(t, planID, *plan.ID)
	assert.Contains(t, tr.calls()[0], "/providers/microsoft.web/serverfarms/plan1")
}

func TestClient_CreateActionGroup(t *testing.T) {
	agID := ActionGroupID(testSubscription, "rg1", "ag1")
	tr := &fakeTransport{route: func(method, path string) (int, string) {
		return http.StatusCreated, `{"id": "` + agID + `", "name": "ag1", "location": "global"}`
	}}
	c := newTestClient(t, tr)

	ag, err := c.CreateActionGroup(context.Background(), "rg1", "ag1", armmonitor.ActionGroupResource{
		Location: to.Ptr("global"),
	})

	require.NoError(t, err)
	assert.Equal(t, agID, *ag.ID)
}

func TestClient_CreateMetricAlert_BadRequest(t *testing.T) {
	tr := &fakeTransport{route: func(method, path string) (int, string) {
		return http.StatusBadRequest, `{"error": {"code": "BadRequest", "message": "scopes invalid"}}`
	}}
	c := newTestClient(t, tr)

	_, err := c.CreateMetricAlert(context.Background(), "rg1", "alert1", armmonitor.MetricAlertResource{
		Location: to.Ptr("global"),
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "create metric alert alert1")
	assert.False(t, IsNotFound(err))
}

func TestClient_DeleteResourceGroup(t *testing.T) {
	tr := &fakeTransport{route: func(method, path string) (int, string) {
		return http.StatusOK, ""
	}}
	c := newTestClient(t, tr)

	err := c.DeleteResourceGroup(context.Background(), ResourceGroupID(testSubscription, "rgMonitor1"))

	require.NoError(t, err)
	require.Len(t, tr.calls(), 1)
	assert.True(t, strings.HasPrefix(tr.calls()[0], "DELETE "))
	assert.Contains(t, tr.calls()[0], "/resourcegroups/rgmonitor1")
}

func TestClient_DeleteResourceGroup_NotFound(t *testing.T) {
	tr := &fakeTransport{route: func(method, path string) (int, string) {
		return http.StatusNotFound, `{"error": {"code": "ResourceGroupNotFound", "message": "gone"}}`
	}}
	c := newTestClient(t, tr)

	err := c.DeleteResourceGroup(context.Background(), ResourceGroupID(testSubscription, "rgMonitor1"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, IsNotFound(err))
}

func TestClient_DeleteResourceGroup_OtherSubscription(t *testing.T) {
	tr := &fakeTransport{route: func(method, path string) (int, string) {
		return http.StatusOK, ""
	}}
	c := newTestClient(t, tr)

	err := c.DeleteResourceGroup(context.Background(), ResourceGroupID("ffffffff-0000-0000-0000-000000000000", "rg1"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "belongs to subscription")
	assert.Empty(t, tr.calls())
}

func TestClient_DeleteResourceGroup_InvalidID(t *testing.T) {
	c := newTestClient(t, &fakeTransport{route: func(string, string) (int, string) { return http.StatusOK, "" }})

	err := c.DeleteResourceGroup(context.Background(), "not-an-arm-id")
	require.Error(t, err)
}

func TestNewCredential(t *testing.T) {
	cred, err := NewCredential(config.Credentials{
		TenantID:       "72f988bf-86f1-41af-91ab-2d7cd011db47",
		ClientID:       "client",
		ClientSecret:   "secret",
		SubscriptionID: testSubscription,
	})
	require.NoError(t, err)
	assert.NotNil(t, cred)
}

func TestIDs(t *testing.T) {
	assert.Equal(t, "/subscriptions/s/resourceGroups/rg", ResourceGroupID("s", "rg"))
	assert.Equal(t, "/subscriptions/s/resourceGroups/rg/providers/Microsoft.Web/serverfarms/p", PlanID("s", "rg", "p"))
	assert.Equal(t, "/subscriptions/s/resourceGroups/rg/providers/microsoft.insights/actionGroups/a", ActionGroupID("s", "rg", "a"))
	assert.Equal(t, "/subscriptions/s/resourceGroups/rg/providers/microsoft.insights/metricAlerts/m", MetricAlertID("s", "rg", "m"))
}

func TestIsNotFound(t *testing.T) {
	assert.False(t, IsNotFound(errors.New("boom")))
	assert.True(t, IsNotFound(&azcore.ResponseError{StatusCode: http.StatusNotFound}))
	assert.False(t, IsNotFound(&azcore.ResponseError{StatusCode: http.StatusConflict}))
}
