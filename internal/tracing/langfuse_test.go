package tracing

import "testing"

func TestNewHandler_DisabledWithoutKeys(t *testing.T) {
	t.Parallel()

	cases := []Config{
		{},
		{PublicKey: "pk"},
		{SecretKey: "sk"},
	}
	for _, cfg := range cases {
		if h, flush, ok := NewHandler(cfg); ok || h != nil || flush != nil {
			t.Errorf("cfg %+v: expected tracing disabled", cfg)
		}
	}
}

func TestNewHandler_Enabled(t *testing.T) {
	t.Parallel()

	h, flush, ok := NewHandler(Config{PublicKey: "pk", SecretKey: "sk"})
	if !ok || h == nil || flush == nil {
		t.Fatal("expected handler and flush when both keys are set")
	}
}

func TestSetup_NoopWhenUnconfigured(t *testing.T) {
	t.Setenv("LANGFUSE_PUBLIC_KEY", "")
	t.Setenv("LANGFUSE_SECRET_KEY", "")

	flush, ok := Setup()
	if ok {
		t.Fatal("expected tracing disabled")
	}
	flush()
}
