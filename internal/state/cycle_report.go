package state

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
)

const cycleReportKeyPrefix = "cycle:last_report:"

// CycleReport summarises one wallet cycle. Only the latest report per wallet
// is kept.
type CycleReport struct {
	Wallet        int      `json:"wallet"`
	Address       string   `json:"address"`
	StartedAtMS   int64    `json:"started_at_ms"`
	FinishedAtMS  int64    `json:"finished_at_ms"`
	DryRun        bool     `json:"dry_run"`
	Assets        int      `json:"assets"`
	Orders        int      `json:"orders"`
	Failures      int      `json:"failures"`
	Skipped       int      `json:"skipped"`
	Blocked       int      `json:"blocked"`
	Holds         int      `json:"holds"`
	FailedSources []string `json:"failed_sources,omitempty"`
	Aborted       bool     `json:"aborted"`
}

func CycleReportKey(wallet int) string {
	return cycleReportKeyPrefix + strconv.Itoa(wallet)
}

func LoadCycleReport(ctx context.Context, store Store, wallet int) (CycleReport, bool, error) {
	if store == nil {
		return CycleReport{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, CycleReportKey(wallet))
	if err != nil {
		return CycleReport{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return CycleReport{}, false, nil
	}
	var report CycleReport
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		return CycleReport{}, false, err
	}
	return report, true, nil
}

func SaveCycleReport(ctx context.Context, store Store, report CycleReport) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return store.Set(ctx, CycleReportKey(report.Wallet), string(payload))
}
