package tools

import (
	"context"
	"testing"
)

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	t.Parallel()
	reg := Make("dup", "", func(ctx context.Context, input struct{}) (any, error) { return nil, nil })
	if _, err := NewRegistry(reg, reg); err == nil {
		t.Fatal("expected duplicate-name error")
	}
}

func TestNewRegistry_RejectsEmptyName(t *testing.T) {
	t.Parallel()
	reg := Make("ok", "", func(ctx context.Context, input struct{}) (any, error) { return nil, nil })
	reg.Name = "  "
	if _, err := NewRegistry(reg); err == nil {
		t.Fatal("expected empty-name error")
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	t.Parallel()
	handler := func(ctx context.Context, input struct{}) (any, error) { return nil, nil }
	r, err := NewRegistry(Make("zeta", "", handler), Make("alpha", "", handler))
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	names := r.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Fatalf("names=%v", names)
	}
}

func TestDefinitionsShape(t *testing.T) {
	t.Parallel()
	reg := Make("get_customer_info", "verify a customer", func(ctx context.Context, input struct {
		CustomerID       string `json:"customerId" desc:"customer id or phone last four"`
		VerificationName string `json:"verificationName"`
	}) (any, error) {
		return nil, nil
	})
	r, err := NewRegistry(reg)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	defs := r.Definitions()
	if len(defs) != 1 {
		t.Fatalf("defs=%v", defs)
	}
	def := defs[0]
	if def["type"] != "function" || def["name"] != "get_customer_info" {
		t.Fatalf("def=%v", def)
	}
	schema := def["parameters"].(*JSONSchema)
	if schema.Type != "object" || len(schema.Required) != 2 {
		t.Fatalf("schema=%+v", schema)
	}
}
