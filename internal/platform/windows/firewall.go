package windows

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/tingzhh2025/aisecurityvision/internal/metrics"
)

// RemoveFirewallRule deletes a previously installed rule by name.
func RemoveFirewallRule(ctx context.Context, name string) error {
	cmd := exec.CommandContext(ctx, "netsh", "advfirewall", "firewall", "delete", "rule",
		"name="+name)
	if err := cmd.Run(); err != nil {
		metrics.WindowsFirewallOpsTotal.WithLabelValues("uninstall", "fail").Inc()
		return fmt.Errorf("firewall: delete rule %s: %w", name, err)
	}
	metrics.WindowsFirewallOpsTotal.WithLabelValues("uninstall", "success").Inc()
	return nil
}

// EnsurePortRangeOpen installs a single inbound rule covering [low, high],
// used to open the MJPEG viewer port range at startup.
func EnsurePortRangeOpen(ctx context.Context, name string, low, high int) error {
	_ = exec.CommandContext(ctx, "netsh", "advfirewall", "firewall", "delete", "rule",
		"name="+name).Run()

	cmd := exec.CommandContext(ctx, "netsh", "advfirewall", "firewall", "add", "rule",
		"name="+name,
		"dir=in",
		"action=allow",
		"protocol=TCP",
		fmt.Sprintf("localport=%d-%d", low, high),
	)
	if err := cmd.Run(); err != nil {
		metrics.WindowsFirewallOpsTotal.WithLabelValues("install", "fail").Inc()
		return fmt.Errorf("firewall: open range %d-%d: %w", low, high, err)
	}
	metrics.WindowsFirewallOpsTotal.WithLabelValues("install", "success").Inc()
	return nil
}
