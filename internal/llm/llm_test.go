package llm

import (
	"testing"

	"examgen/internal/config"
)

func TestExtractJSONObjectProseWrapped(t *testing.T) {
	content := "Sure, here is the exam:\n{\"questions\": [{\"id\": 1}]}\nLet me know if you need more."
	got, err := ExtractJSONObject(content)
	if err != nil {
		t.Fatalf("ExtractJSONObject: %v", err)
	}
	want := `{"questions": [{"id": 1}]}`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestExtractJSONObjectNestedBraces(t *testing.T) {
	content := `prefix {"outer": {"inner": 1}} suffix`
	got, err := ExtractJSONObject(content)
	if err != nil {
		t.Fatalf("ExtractJSONObject: %v", err)
	}
	if got != `{"outer": {"inner": 1}}` {
		t.Fatalf("unexpected snippet %q", got)
	}
}

func TestExtractJSONObjectMissingBraces(t *testing.T) {
	for _, content := range []string{"", "no json here", "} backwards {", "only { open"} {
		if _, err := ExtractJSONObject(content); err == nil {
			t.Fatalf("expected error for %q", content)
		}
	}
}

func TestNewClientFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.DefaultProvider = "openai"
	cfg.LLM.OpenAI.APIKey = "sk-test"
	cfg.LLM.OpenAI.Model = "gpt-4o-mini"

	client, provider, model, err := NewClientFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewClientFromConfig: %v", err)
	}
	if client == nil {
		t.Fatal("expected a client")
	}
	if provider != ProviderOpenAI || model != "gpt-4o-mini" {
		t.Fatalf("got provider=%s model=%s", provider, model)
	}
}

func TestNewClientFromConfigRejectsIncomplete(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.DefaultProvider = "anthropic"
	// No API key or model configured.
	if _, _, _, err := NewClientFromConfig(cfg); err == nil {
		t.Fatal("expected error for unconfigured provider")
	}

	cfg.LLM.DefaultProvider = "something-else"
	if _, _, _, err := NewClientFromConfig(cfg); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}
