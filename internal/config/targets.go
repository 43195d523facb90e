package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"hl-rebalancer/internal/market"

	"gopkg.in/yaml.v3"
)

const (
	defaultOrderSizeUSD     = 11
	defaultCooldownMinutes  = 15
	defaultCheckIntervalSec = 60
	defaultFeePct           = 0.07
	defaultThresholdPct     = 50
)

// Targets is one wallet's target file. JSON files are read by the YAML
// decoder as well; the extension only matters when saving.
type Targets struct {
	Settings   Settings                `yaml:"settings" json:"settings"`
	SpotTokens map[string]*AssetTarget `yaml:"spot_tokens" json:"spot_tokens"`
	Perpetuals map[string]*AssetTarget `yaml:"perpetuals" json:"perpetuals"`
}

type Settings struct {
	OrderSizeUSD         float64 `yaml:"order_size_usd" json:"order_size_usd"`
	CooldownMinutes      float64 `yaml:"cooldown_minutes" json:"cooldown_minutes"`
	CheckIntervalSeconds int     `yaml:"check_interval_seconds" json:"check_interval_seconds"`
	DryRun               bool    `yaml:"dry_run" json:"dry_run"`
	DefaultFeePct        float64 `yaml:"default_fee_pct" json:"default_fee_pct"`
}

// AssetTarget is a raw target record. Pointer fields are optional and take
// their defaults in Assets.
type AssetTarget struct {
	Name             string   `yaml:"name,omitempty" json:"name,omitempty"`
	Enabled          bool     `yaml:"enabled" json:"enabled"`
	BuyEnabled       *bool    `yaml:"buy_enabled,omitempty" json:"buy_enabled,omitempty"`
	SellEnabled      *bool    `yaml:"sell_enabled,omitempty" json:"sell_enabled,omitempty"`
	HoldUSD          float64  `yaml:"hold_usd" json:"hold_usd"`
	BuyThresholdPct  *float64 `yaml:"buy_threshold_pct,omitempty" json:"buy_threshold_pct,omitempty"`
	SellThresholdPct *float64 `yaml:"sell_threshold_pct,omitempty" json:"sell_threshold_pct,omitempty"`
	PairIndex        *int     `yaml:"pair_index,omitempty" json:"pair_index,omitempty"`
	SzDecimals       *int     `yaml:"sz_decimals,omitempty" json:"sz_decimals,omitempty"`
	PriceDecimals    *int     `yaml:"price_decimals,omitempty" json:"price_decimals,omitempty"`
	QuoteAsset       string   `yaml:"quote_asset,omitempty" json:"quote_asset,omitempty"`
	Dex              string   `yaml:"dex,omitempty" json:"dex,omitempty"`
	FeePct           *float64 `yaml:"fee_pct,omitempty" json:"fee_pct,omitempty"`
}

// Target is a validated record with defaults applied and its AssetRef built.
type Target struct {
	Identifier       string
	Ref              market.AssetRef
	Name             string
	Enabled          bool
	BuyEnabled       bool
	SellEnabled      bool
	TargetUSD        float64
	BuyThresholdPct  float64
	SellThresholdPct float64
	SzDecimals       int
	PriceDecimals    int
	HasSzDecimals    bool
	HasPxDecimals    bool
	QuoteAsset       string
	FeePct           float64
}

// Tradable reports whether the target may produce orders at all.
func (t Target) Tradable() bool {
	return t.Enabled && t.TargetUSD > 0
}

func LoadTargets(path string) (*Targets, error) {
	if path == "" {
		return nil, errors.New("targets path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var targets Targets
	if err := yaml.Unmarshal(data, &targets); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	var present explicitSettings
	if err := yaml.Unmarshal(data, &present); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	targets.applyDefaults(present)
	if err := targets.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &targets, nil
}

// SaveTargets writes JSON for a .json path and YAML otherwise.
func SaveTargets(path string, targets *Targets) error {
	if targets == nil {
		return errors.New("targets are required")
	}
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(targets, "", "  ")
		data = append(data, '\n')
	} else {
		data, err = yaml.Marshal(targets)
	}
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o600)
}

// explicitSettings records which zero-able settings the file spells out, so
// that "cooldown_minutes: 0" disables the cooldown instead of taking the default.
type explicitSettings struct {
	Settings struct {
		CooldownMinutes *float64 `yaml:"cooldown_minutes"`
		DefaultFeePct   *float64 `yaml:"default_fee_pct"`
	} `yaml:"settings"`
}

func (t *Targets) applyDefaults(present explicitSettings) {
	if t.Settings.OrderSizeUSD == 0 {
		t.Settings.OrderSizeUSD = defaultOrderSizeUSD
	}
	if t.Settings.CooldownMinutes == 0 && present.Settings.CooldownMinutes == nil {
		t.Settings.CooldownMinutes = defaultCooldownMinutes
	}
	if t.Settings.CheckIntervalSeconds == 0 {
		t.Settings.CheckIntervalSeconds = defaultCheckIntervalSec
	}
	if t.Settings.DefaultFeePct == 0 && present.Settings.DefaultFeePct == nil {
		t.Settings.DefaultFeePct = defaultFeePct
	}
	if t.SpotTokens == nil {
		t.SpotTokens = make(map[string]*AssetTarget)
	}
	if t.Perpetuals == nil {
		t.Perpetuals = make(map[string]*AssetTarget)
	}
}

func (t *Targets) validate() error {
	if t.Settings.OrderSizeUSD < 0 {
		return errors.New("settings.order_size_usd must be > 0")
	}
	if t.Settings.CooldownMinutes < 0 {
		return errors.New("settings.cooldown_minutes must be >= 0")
	}
	if t.Settings.CheckIntervalSeconds < 0 {
		return errors.New("settings.check_interval_seconds must be > 0")
	}
	return nil
}

func (s Settings) Cooldown() time.Duration {
	return time.Duration(s.CooldownMinutes * float64(time.Minute))
}

func (s Settings) CheckInterval() time.Duration {
	return time.Duration(s.CheckIntervalSeconds) * time.Second
}

// Assets resolves every record, spot first, each group sorted by identifier.
// A malformed record is reported in errs and left out; the rest still load.
func (t *Targets) Assets() (targets []Target, errs []error) {
	for _, id := range sortedKeys(t.SpotTokens) {
		target, err := t.resolve(id, t.SpotTokens[id], market.KindSpot)
		if err != nil {
			errs = append(errs, fmt.Errorf("spot_tokens.%s: %w", id, err))
			continue
		}
		targets = append(targets, target)
	}
	for _, id := range sortedKeys(t.Perpetuals) {
		target, err := t.resolve(id, t.Perpetuals[id], market.KindPerp)
		if err != nil {
			errs = append(errs, fmt.Errorf("perpetuals.%s: %w", id, err))
			continue
		}
		targets = append(targets, target)
	}
	return targets, errs
}

func (t *Targets) resolve(id string, raw *AssetTarget, kind market.Kind) (Target, error) {
	if raw == nil {
		return Target{}, errors.New("empty record")
	}
	ref, err := assetRef(id, raw, kind)
	if err != nil {
		return Target{}, err
	}
	out := Target{
		Identifier:       id,
		Ref:              ref,
		Name:             raw.Name,
		Enabled:          raw.Enabled,
		BuyEnabled:       boolOr(raw.BuyEnabled, false),
		SellEnabled:      boolOr(raw.SellEnabled, true),
		TargetUSD:        raw.HoldUSD,
		BuyThresholdPct:  floatOr(raw.BuyThresholdPct, defaultThresholdPct),
		SellThresholdPct: floatOr(raw.SellThresholdPct, defaultThresholdPct),
		QuoteAsset:       strings.TrimSpace(raw.QuoteAsset),
		FeePct:           floatOr(raw.FeePct, t.Settings.DefaultFeePct),
	}
	if out.BuyThresholdPct < 0 || out.SellThresholdPct < 0 {
		return Target{}, errors.New("thresholds must be >= 0")
	}
	if raw.SzDecimals != nil {
		if *raw.SzDecimals < 0 {
			return Target{}, errors.New("sz_decimals must be >= 0")
		}
		out.SzDecimals, out.HasSzDecimals = *raw.SzDecimals, true
	}
	if raw.PriceDecimals != nil {
		if *raw.PriceDecimals < 0 {
			return Target{}, errors.New("price_decimals must be >= 0")
		}
		out.PriceDecimals, out.HasPxDecimals = *raw.PriceDecimals, true
	}
	if out.Name == "" {
		out.Name = id
	}
	return out, nil
}

func assetRef(id string, raw *AssetTarget, kind market.Kind) (market.AssetRef, error) {
	if kind == market.KindPerp {
		ref := market.PerpFromIdentifier(id, strings.TrimSpace(raw.Dex))
		if ref.Symbol() == "" {
			return market.AssetRef{}, fmt.Errorf("invalid perp identifier %q", id)
		}
		return ref, nil
	}
	if strings.HasPrefix(id, "@") {
		ref, err := market.ParseAssetRef(id)
		if err != nil {
			return market.AssetRef{}, err
		}
		if raw.PairIndex != nil && *raw.PairIndex != ref.PairIndex() {
			return market.AssetRef{}, fmt.Errorf("pair_index %d does not match %s", *raw.PairIndex, id)
		}
		return market.SpotRef(ref.PairIndex(), raw.Name), nil
	}
	if raw.PairIndex == nil {
		return market.AssetRef{}, errors.New("pair_index is required")
	}
	if *raw.PairIndex < 0 {
		return market.AssetRef{}, errors.New("pair_index must be >= 0")
	}
	return market.SpotRef(*raw.PairIndex, id), nil
}

func sortedKeys(m map[string]*AssetTarget) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
