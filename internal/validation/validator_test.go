package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fields(result *ValidationResult) []string {
	out := make([]string, len(result.Errors))
	for i, e := range result.Errors {
		out[i] = e.Field
	}
	return out
}

func TestValidateMeshValid(t *testing.T) {
	v := New()

	result, err := v.ValidateMesh([]byte(`{
		"projectId": "project:demo",
		"name": "payments",
		"type": "istio",
		"configuration": {"mtlsEnabled": true}
	}`))
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidateMeshInvalidJSON(t *testing.T) {
	v := New()

	result, err := v.ValidateMesh([]byte(`{not json`))
	require.NoError(t, err)
	require.False(t, result.Valid)
	assert.Equal(t, "document", result.Errors[0].Field)
}

func TestValidateMeshMissingFields(t *testing.T) {
	v := New()

	result, err := v.ValidateMesh([]byte(`{"name": "payments"}`))
	require.NoError(t, err)
	require.False(t, result.Valid)
	assert.Contains(t, fields(result), "projectId")
	assert.Contains(t, fields(result), "type")
}

func TestValidateMeshUnknownType(t *testing.T) {
	v := New()

	result, err := v.ValidateMesh([]byte(`{
		"projectId": "project:demo",
		"name": "payments",
		"type": "consul"
	}`))
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "type", result.Errors[0].Field)
	assert.Equal(t, "consul", result.Errors[0].Value)
	assert.Contains(t, result.Errors[0].Message, "istio")
}

func TestValidateServicePortRange(t *testing.T) {
	v := New()

	result, err := v.ValidateService([]byte(`{
		"name": "web",
		"containerId": "c1",
		"ports": [{"port": 99999, "targetPort": 8080, "protocol": "HTTP"}]
	}`))
	require.NoError(t, err)
	require.False(t, result.Valid)
	assert.Contains(t, fields(result), "ports[0].port")
}

func TestValidateServiceBadAlgorithm(t *testing.T) {
	v := New()

	result, err := v.ValidateService([]byte(`{
		"name": "web",
		"containerId": "c1",
		"ports": [{"port": 80, "targetPort": 8080, "protocol": "HTTP"}],
		"loadBalancer": {"algorithm": "fastest"}
	}`))
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "loadBalancer.algorithm", result.Errors[0].Field)
}

func TestValidatePolicyDirectionMismatch(t *testing.T) {
	v := New()

	result, err := v.ValidatePolicy([]byte(`{
		"name": "deny-egress",
		"type": "ingress",
		"rules": [{"direction": "egress", "action": "allow"}]
	}`))
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "rules[0].direction", result.Errors[0].Field)
	assert.Contains(t, result.Errors[0].Message, "egress rule not allowed in ingress policy")
}

func TestValidatePolicyBothAcceptsEitherDirection(t *testing.T) {
	v := New()

	result, err := v.ValidatePolicy([]byte(`{
		"name": "mixed",
		"type": "both",
		"rules": [
			{"direction": "ingress", "action": "allow"},
			{"direction": "egress", "action": "deny"}
		]
	}`))
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestValidatePolicyBadAction(t *testing.T) {
	v := New()

	result, err := v.ValidatePolicy([]byte(`{
		"name": "p",
		"type": "ingress",
		"rules": [{"direction": "ingress", "action": "drop"}]
	}`))
	require.NoError(t, err)
	require.False(t, result.Valid)
	assert.Contains(t, fields(result), "rules[0].action")
}

func TestValidateGateway(t *testing.T) {
	v := New()

	t.Run("valid", func(t *testing.T) {
		result, err := v.ValidateGateway([]byte(`{
			"projectId": "project:demo",
			"name": "edge",
			"type": "envoy",
			"listeners": [{"name": "web", "port": 8080, "protocol": "HTTP"}]
		}`))
		require.NoError(t, err)
		assert.True(t, result.Valid)
	})

	t.Run("mesh-only backend rejected", func(t *testing.T) {
		result, err := v.ValidateGateway([]byte(`{
			"projectId": "project:demo",
			"name": "edge",
			"type": "istio",
			"listeners": [{"name": "web", "port": 8080}]
		}`))
		require.NoError(t, err)
		require.False(t, result.Valid)
		assert.Contains(t, fields(result), "type")
	})

	t.Run("no listeners", func(t *testing.T) {
		result, err := v.ValidateGateway([]byte(`{
			"projectId": "project:demo",
			"name": "edge",
			"type": "envoy"
		}`))
		require.NoError(t, err)
		require.False(t, result.Valid)
		assert.Contains(t, fields(result), "listeners")
	})
}

func TestValidateRoute(t *testing.T) {
	v := New()

	result, err := v.ValidateRoute([]byte(`{
		"name": "orders",
		"pathPrefix": "orders",
		"upstreamId": "upstream:orders"
	}`))
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "pathPrefix", result.Errors[0].Field)
	assert.Contains(t, result.Errors[0].Message, "/")
}

func TestValidateUpstream(t *testing.T) {
	v := New()

	result, err := v.ValidateUpstream([]byte(`{"name": "orders", "targets": []}`))
	require.NoError(t, err)
	require.False(t, result.Valid)
	assert.Contains(t, fields(result), "targets")

	result, err = v.ValidateUpstream([]byte(`{
		"name": "orders",
		"targets": [{"host": "10.0.0.1", "port": 9000, "weight": 1}]
	}`))
	require.NoError(t, err)
	assert.True(t, result.Valid)
}
