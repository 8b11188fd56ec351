package dialog

import "testing"

func TestSessionRegistryCreateGetDestroy(t *testing.T) {
	r := NewSessionRegistry()
	cfg := testSessionConfig()
	s := NewSession("s1", cfg, &fakeASR{}, &fakeStreamingLLM{}, &fakeTTS{}, NewRMSVAD(0.3), nil)

	r.Create(s)
	got, ok := r.Get("s1")
	if !ok || got != s {
		t.Fatalf("expected to find session s1, got ok=%v", ok)
	}
	if r.Len() != 1 {
		t.Errorf("expected len 1, got %d", r.Len())
	}

	r.Destroy("s1")
	if _, ok := r.Get("s1"); ok {
		t.Error("expected session s1 to be gone after Destroy")
	}
	if r.Len() != 0 {
		t.Errorf("expected len 0 after Destroy, got %d", r.Len())
	}

	r.Destroy("s1") // idempotent, should not panic
}

func TestSessionRegistryCloseAll(t *testing.T) {
	r := NewSessionRegistry()
	cfg := testSessionConfig()
	r.Create(NewSession("a", cfg, &fakeASR{}, &fakeStreamingLLM{}, &fakeTTS{}, NewRMSVAD(0.3), nil))
	r.Create(NewSession("b", cfg, &fakeASR{}, &fakeStreamingLLM{}, &fakeTTS{}, NewRMSVAD(0.3), nil))

	r.CloseAll()
	if r.Len() != 0 {
		t.Errorf("expected all sessions gone after CloseAll, got %d", r.Len())
	}
}

func TestCapabilityRegistryUnknownProvider(t *testing.T) {
	r := NewCapabilityRegistry()
	if _, err := r.CreateLLM("nonexistent", nil); err == nil {
		t.Error("expected ErrUnknownProvider for unregistered adapter")
	}
}

func TestCapabilityRegistryRegisterAndCreate(t *testing.T) {
	r := NewCapabilityRegistry()
	r.RegisterLLM("echo", func(cfg ProviderConfig) (LLMProvider, error) {
		return &fakeStreamingLLM{tokens: []string{"ok"}}, nil
	})

	p, err := r.CreateLLM("echo", ProviderConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "fake-llm" {
		t.Errorf("unexpected provider name: %q", p.Name())
	}
}
