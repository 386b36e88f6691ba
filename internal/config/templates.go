package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	TemplateSettings = "settings"
	TemplateFleet    = "fleet"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case TemplateSettings:
		return settingsTemplate, nil
	case TemplateFleet:
		return fleetTemplate, nil
	default:
		return "", fmt.Errorf("unknown template kind: %s", kind)
	}
}

// WriteTemplate writes the template for kind to path with 0600
// permissions, creating parent directories. Existing files are kept
// unless overwrite is set.
func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const settingsTemplate = `# agentctl settings. LETTA_BASE_URL and LETTA_API_KEY override these.
base_url = "http://localhost:8283"
api_key = ""
output = "table"
timeout_ms = 60000
# root_path = "."
# log_level = "info"
# ca_file = "/etc/ssl/private-ca.pem"
`

const fleetTemplate = `shared_blocks:
  - name: company
    description: Facts every agent shares.
    limit: 5000
    value: |
      Acme Corp sells widgets.
    agent_owned: false

agents:
  - name: support
    description: First-line customer support.
    system_prompt:
      value: You answer customer questions politely and briefly.
    llm_config:
      model: openai/gpt-4o-mini
      context_window: 32000
    tools:
      - send_message
      - archival_memory_search
    shared_blocks:
      - company
    memory_blocks:
      - name: persona
        limit: 2000
        value: I am the support agent.
    conversations:
      - summary: onboarding
`
