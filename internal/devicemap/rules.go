// SPDX-License-Identifier: MIT

package devicemap

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// RulesFilePath is the conventional install location for the generated
// udev rules file.
const RulesFilePath = "/etc/udev/rules.d/99-mediaflow-capture.rules"

// DeviceInfo is everything needed to generate one persistent-naming udev
// rule for a capture device.
type DeviceInfo struct {
	PortPath string // physical USB port, e.g. "1-1.4"
	BusNum   int
	DevNum   int
	Product  string
	Serial   string

	// Subsystem and KernelPattern select which device class this rule
	// targets, e.g. Subsystem="sound", KernelPattern="controlC[0-9]*" for
	// an ALSA control device, or Subsystem="video4linux",
	// KernelPattern="video[0-9]*" for a V4L2 camera. Defaults to "sound"/
	// "controlC[0-9]*" when left zero-valued.
	Subsystem     string
	KernelPattern string
}

func (d DeviceInfo) subsystem() string {
	if d.Subsystem != "" {
		return d.Subsystem
	}
	return "sound"
}

func (d DeviceInfo) kernelPattern() string {
	if d.KernelPattern != "" {
		return d.KernelPattern
	}
	return "controlC[0-9]*"
}

// GenerateRule renders one udev rule line from a DeviceInfo.
func (d DeviceInfo) GenerateRule() string {
	return GenerateRule(d.subsystem(), d.kernelPattern(), d.PortPath, d.BusNum, d.DevNum)
}

// GenerateRule renders a udev rule symlinking a device on portPath, matched
// by subsystem/kernelPattern and bus/dev number, under
// mediaflow/by-usb-port/<portPath>.
func GenerateRule(subsystem, kernelPattern, portPath string, busNum, devNum int) string {
	return fmt.Sprintf(
		`SUBSYSTEM=="%s", KERNEL=="%s", ATTRS{busnum}=="%d", ATTRS{devnum}=="%d", SYMLINK+="mediaflow/by-usb-port/%s"`,
		subsystem, kernelPattern, busNum, devNum, portPath,
	)
}

// GenerateRuleWithValidation is GenerateRule with input validation, for
// callers (the wizard, a CLI command) that need a rejectable error instead
// of a silently malformed rule.
func GenerateRuleWithValidation(subsystem, kernelPattern, portPath string, busNum, devNum int) (string, error) {
	if !IsValidUSBPortPath(portPath) {
		return "", fmt.Errorf("invalid USB port path: %q", portPath)
	}
	if busNum <= 0 {
		return "", fmt.Errorf("invalid bus number: %d", busNum)
	}
	if devNum <= 0 {
		return "", fmt.Errorf("invalid device number: %d", devNum)
	}
	if subsystem == "" {
		subsystem = "sound"
	}
	if kernelPattern == "" {
		kernelPattern = "controlC[0-9]*"
	}
	return GenerateRule(subsystem, kernelPattern, portPath, busNum, devNum), nil
}

// GenerateRulesFile renders a complete rules file: a header comment
// followed by one rule per device, each on its own line.
func GenerateRulesFile(devices []*DeviceInfo) string {
	var sb strings.Builder
	sb.WriteString("# mediaflow capture device rules — generated by flowctl, do not edit by hand\n")
	sb.WriteString(fmt.Sprintf("# generated %s\n", time.Now().UTC().Format(time.RFC3339)))
	for _, d := range devices {
		if d.Product != "" || d.Serial != "" {
			sb.WriteString(fmt.Sprintf("# product=%s serial=%s\n", SanitizeLabel(d.Product), SanitizeLabel(d.Serial)))
		}
		sb.WriteString(d.GenerateRule())
		sb.WriteString("\n")
	}
	return sb.String()
}

// WriteRulesFileToPath writes the generated rules file to path with mode
// 0644 (udev rule files must be world-readable), optionally triggering
// udevadm to reload them immediately.
func WriteRulesFileToPath(devices []*DeviceInfo, path string, reload bool) error {
	content := GenerateRulesFile(devices)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing rules file: %w", err)
	}

	if reload {
		return ReloadUdev()
	}
	return nil
}

// ReloadUdev asks the running udev daemon to reload its rules and
// re-trigger matching.
func ReloadUdev() error {
	if err := exec.Command("udevadm", "control", "--reload-rules").Run(); err != nil {
		return fmt.Errorf("udevadm control --reload-rules: %w", err)
	}
	if err := exec.Command("udevadm", "trigger").Run(); err != nil {
		return fmt.Errorf("udevadm trigger: %w", err)
	}
	return nil
}
