package cli

import (
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"eodprices/internal/config"
	"eodprices/pkg/confkit"
)

// ConfigSummaryLines returns human readable lines describing the loaded app config.
func ConfigSummaryLines(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"Configuration: <nil>"}
	}

	p := cfg.Prices
	store := "memory"
	if cfg.UseDatabase() {
		store = "postgres"
	}
	lines := []string{
		fmt.Sprintf("Environment: %s", cfg.Env),
		fmt.Sprintf("Data path: %s (exports %s)", cfg.DataPath, cfg.ExportDir()),
		fmt.Sprintf("Store: %s", store),
		fmt.Sprintf("Redis: %s", presence(strings.TrimSpace(cfg.Redis.Host) != "")),
		fmt.Sprintf("TTL (short/medium/long): %ds / %ds / %ds", cfg.TTL.Short, cfg.TTL.Medium, cfg.TTL.Long),
		fmt.Sprintf("Providers: primary=%s fallback=%t", p.Primary, p.Fallback),
		fmt.Sprintf("Freshness: %s, worker interval: %s, retention: %d days", p.Freshness, p.WorkerInterval, p.Retention),
		sessionLine(p),
		sectionLine("Market config", cfg.Market),
	}

	return lines
}

// LogConfigSummary emits the configuration summary using logx.
func LogConfigSummary(cfg *config.Config) {
	lines := ConfigSummaryLines(cfg)
	if len(lines) == 0 {
		return
	}
	logx.Info("configuration summary")
	for _, line := range lines {
		logx.Infof("config • %s", line)
	}
}

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func sessionLine(p config.PricesConf) string {
	ttl, cooldown := "provider default", "provider default"
	if p.SessionTTL > 0 {
		ttl = p.SessionTTL.String()
	}
	if p.BlockCooldown > 0 {
		cooldown = p.BlockCooldown.String()
	}
	return fmt.Sprintf("Session TTL: %s, block cooldown: %s", ttl, cooldown)
}

func sectionLine[T any](name string, section confkit.Section[T]) string {
	switch {
	case strings.TrimSpace(section.File) != "":
		return fmt.Sprintf("%s: %s", name, section.File)
	case section.Value != nil:
		return fmt.Sprintf("%s: built-in defaults", name)
	default:
		return fmt.Sprintf("%s: not configured", name)
	}
}
