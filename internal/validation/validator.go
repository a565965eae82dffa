// Package validation validates inbound mesh and gateway documents.
//
// It combines go-playground/validator struct validation with the domain
// checks that tags cannot express: backend enumerations, policy
// rule-direction consistency, and load-balancer algorithm names.
//
// # Usage Example
//
//	validator := validation.New()
//	result, err := validator.ValidateMesh(jsonData)
//	if err != nil {
//	    // Handle error
//	}
//	if !result.Valid {
//	    for _, err := range result.Errors {
//	        fmt.Printf("%s: %s\n", err.Field, err.Message)
//	    }
//	}
package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vaporform/meshgate/models"
)

// Validator checks mesh, service, policy, gateway, route, and upstream
// documents before they reach the registry.
type Validator struct {
	// structValidator validates Go struct constraints and tags
	structValidator *validator.Validate
}

// ValidationError represents a single validation error with field-level details.
type ValidationError struct {
	// Field is the name of the field that failed validation
	Field string `json:"field"`

	// Message describes why the validation failed
	Message string `json:"message"`

	// Value is the invalid value that caused the error (optional)
	Value interface{} `json:"value,omitempty"`
}

// ValidationResult represents the complete result of a validation operation.
type ValidationResult struct {
	// Valid is true if validation passed, false otherwise
	Valid bool `json:"valid"`

	// Errors contains all validation errors found (empty if Valid is true)
	Errors []ValidationError `json:"errors,omitempty"`
}

// New creates a ready-to-use Validator.
func New() *Validator {
	return &Validator{
		structValidator: validator.New(),
	}
}

// ValidateMesh validates a service-mesh create/update document.
func (v *Validator) ValidateMesh(data []byte) (*ValidationResult, error) {
	var mesh models.ServiceMesh
	if result := v.unmarshal(data, &mesh); result != nil {
		return result, nil
	}

	errs := v.structErrors(&mesh)

	if mesh.Type != "" && !mesh.Type.Valid() {
		errs = append(errs, ValidationError{
			Field:   "type",
			Message: fmt.Sprintf("Type must be one of: %s", joinMeshTypes()),
			Value:   string(mesh.Type),
		})
	}

	return finish(errs), nil
}

// ValidateService validates a mesh-service registration document.
func (v *Validator) ValidateService(data []byte) (*ValidationResult, error) {
	var svc models.MeshService
	if result := v.unmarshal(data, &svc); result != nil {
		return result, nil
	}

	errs := v.structErrors(&svc)

	for i, p := range svc.Ports {
		if p.Protocol != "" && !p.Protocol.Valid() {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("ports[%d].protocol", i),
				Message: "Protocol must be 'HTTP', 'HTTPS', 'GRPC', or 'TCP'",
				Value:   string(p.Protocol),
			})
		}
	}
	if algo := svc.LoadBalancer.Algorithm; algo != "" && !algo.Valid() {
		errs = append(errs, ValidationError{
			Field:   "loadBalancer.algorithm",
			Message: "Algorithm must be 'round_robin', 'random', 'ip_hash', or 'least_conn'",
			Value:   string(algo),
		})
	}

	return finish(errs), nil
}

// ValidatePolicy validates a network-policy document, including the
// rule-direction consistency contract.
func (v *Validator) ValidatePolicy(data []byte) (*ValidationResult, error) {
	var policy models.NetworkPolicy
	if result := v.unmarshal(data, &policy); result != nil {
		return result, nil
	}

	errs := v.structErrors(&policy)

	if policy.Type != "" && !policy.Type.Valid() {
		errs = append(errs, ValidationError{
			Field:   "type",
			Message: "Type must be 'ingress', 'egress', or 'both'",
			Value:   string(policy.Type),
		})
	}
	for i, rule := range policy.Rules {
		if rule.Action != "" && !rule.Action.Valid() {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("rules[%d].action", i),
				Message: "Action must be 'allow' or 'deny'",
				Value:   string(rule.Action),
			})
		}
	}
	if err := policy.CheckRuleDirections(); err != nil {
		field, message := splitDirectionError(err.Error())
		errs = append(errs, ValidationError{
			Field:   field,
			Message: message,
		})
	}

	return finish(errs), nil
}

// ValidateGateway validates an api-gateway create document.
func (v *Validator) ValidateGateway(data []byte) (*ValidationResult, error) {
	var gw models.APIGateway
	if result := v.unmarshal(data, &gw); result != nil {
		return result, nil
	}

	errs := v.structErrors(&gw)

	if gw.Type != "" && !gw.Type.Valid() {
		errs = append(errs, ValidationError{
			Field:   "type",
			Message: "Type must be 'envoy', 'nginx', or 'traefik'",
			Value:   string(gw.Type),
		})
	}
	if len(gw.Listeners) == 0 {
		errs = append(errs, ValidationError{
			Field:   "listeners",
			Message: "At least one listener is required",
		})
	}

	return finish(errs), nil
}

// ValidateRoute validates an api-route document. Upstream existence is the
// registry's contract, not this validator's.
func (v *Validator) ValidateRoute(data []byte) (*ValidationResult, error) {
	var route models.APIRoute
	if result := v.unmarshal(data, &route); result != nil {
		return result, nil
	}
	return finish(v.structErrors(&route)), nil
}

// ValidateUpstream validates an upstream document.
func (v *Validator) ValidateUpstream(data []byte) (*ValidationResult, error) {
	var up models.Upstream
	if result := v.unmarshal(data, &up); result != nil {
		return result, nil
	}
	return finish(v.structErrors(&up)), nil
}

func finish(errs []ValidationError) *ValidationResult {
	return &ValidationResult{
		Valid:  len(errs) == 0,
		Errors: errs,
	}
}

// unmarshal parses data into target, returning a failed result on bad JSON.
func (v *Validator) unmarshal(data []byte, target interface{}) *ValidationResult {
	if err := json.Unmarshal(data, target); err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{
				{
					Field:   "document",
					Message: fmt.Sprintf("Invalid JSON: %v", err),
				},
			},
		}
	}
	return nil
}

// structErrors runs tag validation and converts the failures to field errors.
func (v *Validator) structErrors(target interface{}) []ValidationError {
	err := v.structValidator.Struct(target)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []ValidationError{{Field: "document", Message: err.Error()}}
	}

	var errs []ValidationError
	for _, fe := range fieldErrs {
		errs = append(errs, ValidationError{
			Field:   fieldPath(fe.Namespace()),
			Message: tagMessage(fe),
			Value:   fe.Value(),
		})
	}
	return errs
}

// fieldPath turns a validator namespace like "ServiceMesh.Configuration.Port"
// into a lowerCamel path without the root struct name.
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToLower(p[:1]) + p[1:]
	}
	return strings.Join(parts, ".")
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "min":
		return fmt.Sprintf("Must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("Must be at most %s", fe.Param())
	case "startswith":
		return fmt.Sprintf("Must start with '%s'", fe.Param())
	default:
		return fmt.Sprintf("Failed '%s' validation", fe.Tag())
	}
}

// splitDirectionError separates the "rules[i].direction: message" shape the
// policy model produces into its field and message halves.
func splitDirectionError(s string) (string, string) {
	if idx := strings.Index(s, ": "); idx > 0 {
		return s[:idx], s[idx+2:]
	}
	return "rules", s
}

func joinMeshTypes() string {
	names := make([]string, len(models.MeshTypes))
	for i, t := range models.MeshTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
