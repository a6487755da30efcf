// Package config loads the service's YAML configuration (ambient
// stack; spec §1 lists YAML configuration loading as an external
// collaborator of the core), following the teacher's profile-loader
// convention of gopkg.in/yaml.v3 over a plain struct tree.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vcp-chain/auditlog/pkg/event"
)

// AnchorCadence maps a compliance tier to its anchor interval (spec
// §4.6 defaults: Silver 24h, Gold 1h, Platinum 10m), overridable per
// deployment.
type AnchorCadence struct {
	Silver   time.Duration `yaml:"silver"`
	Gold     time.Duration `yaml:"gold"`
	Platinum time.Duration `yaml:"platinum"`
}

// DefaultAnchorCadence returns the spec's default intervals.
func DefaultAnchorCadence() AnchorCadence {
	return AnchorCadence{
		Silver:   24 * time.Hour,
		Gold:     time.Hour,
		Platinum: 10 * time.Minute,
	}
}

// Interval returns the configured interval for tier, falling back to
// the spec default if unset.
func (c AnchorCadence) Interval(tier event.Tier) time.Duration {
	def := DefaultAnchorCadence()
	switch tier {
	case event.TierPlatinum:
		if c.Platinum > 0 {
			return c.Platinum
		}
		return def.Platinum
	case event.TierGold:
		if c.Gold > 0 {
			return c.Gold
		}
		return def.Gold
	default:
		if c.Silver > 0 {
			return c.Silver
		}
		return def.Silver
	}
}

// MinInterval returns the shortest of the three tier cadences. The
// coordinator runs a single ticker at this cadence: anchoring more
// often than a tier's SLA requires is still compliant, so the
// tightest configured interval safely covers every tier sharing one
// accumulator.
func (c AnchorCadence) MinInterval() time.Duration {
	min := c.Interval(event.TierPlatinum)
	for _, d := range []time.Duration{c.Interval(event.TierGold), c.Interval(event.TierSilver)} {
		if d < min {
			min = d
		}
	}
	return min
}

// ChainingConfig controls the assembler's prev_hash policy (spec §4.5
// step 3: "configurable; default: enabled").
type ChainingConfig struct {
	Enabled    bool            `yaml:"enabled"`
	PerTier    map[string]bool `yaml:"per_tier,omitempty"`
	UsePerTier bool            `yaml:"use_per_tier"`
}

// AnchorProviderConfig configures the external timestamping backend
// (spec §4.6).
type AnchorProviderConfig struct {
	Name                 string `yaml:"name"` // opentimestamps | bitcoin | rfc3161_tsa | local_file
	ProofDir             string `yaml:"proof_dir"`
	BitcoinRPCURL        string `yaml:"bitcoin_rpc_url,omitempty"`
	BitcoinConfirmations int    `yaml:"bitcoin_confirmations,omitempty"`
	TSAURL               string `yaml:"tsa_url,omitempty"`
	OpenTimestampsURL    string `yaml:"opentimestamps_url,omitempty"`
}

// KeyMaterialConfig locates the signer's PEM-encoded keypair (spec §6
// "Key material").
type KeyMaterialConfig struct {
	PrivateKeyPath string `yaml:"private_key_path,omitempty"`
	PublicKeyPath  string `yaml:"public_key_path"`
}

// WebhookAuthConfig configures the JWT bearer-auth middleware guarding
// the ingestion/verification/anchor-status HTTP surface (spec §6).
type WebhookAuthConfig struct {
	Enabled     bool   `yaml:"enabled"`
	HMACSecret  string `yaml:"hmac_secret,omitempty"`
	ExpectedAud string `yaml:"expected_audience,omitempty"`
}

// Config is the service's root configuration document.
type Config struct {
	ListenAddr    string               `yaml:"listen_addr"`
	EventLogPath  string               `yaml:"event_log_path"`
	AnchorDB      string               `yaml:"anchor_records_path"`
	AnchorCadence AnchorCadence        `yaml:"anchor_cadence"`
	Chaining      ChainingConfig       `yaml:"chaining"`
	Provider      AnchorProviderConfig `yaml:"anchor_provider"`
	Keys          KeyMaterialConfig    `yaml:"keys"`
	Auth          WebhookAuthConfig    `yaml:"auth"`
	// PostgresDSN enables the optional secondary index over the event
	// log (SPEC_FULL.md domain-stack wiring of lib/pq); empty disables
	// it and the in-memory index is authoritative.
	PostgresDSN string `yaml:"postgres_dsn,omitempty"`
}

// Load reads and parses a YAML configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{
		ListenAddr:    ":8443",
		EventLogPath:  "events.jsonl",
		AnchorDB:      "anchors.json",
		AnchorCadence: DefaultAnchorCadence(),
		Chaining:      ChainingConfig{Enabled: true},
		Provider:      AnchorProviderConfig{Name: "local_file", ProofDir: "anchor_proofs"},
		Keys:          KeyMaterialConfig{PublicKeyPath: "vcp_public.pem"},
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ChainingEnabledTiers converts the YAML per_tier map into the typed
// map chain.PerTierChain expects.
func (c *Config) ChainingEnabledTiers() map[event.Tier]bool {
	out := make(map[event.Tier]bool, len(c.Chaining.PerTier))
	for k, v := range c.Chaining.PerTier {
		out[event.Tier(k)] = v
	}
	return out
}
