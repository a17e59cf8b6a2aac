// SPDX-License-Identifier: MIT

// Package main implements flowctl, the operator CLI for a mediaflow
// deployment: authoring pipeline configuration, generating capture-device
// udev rules, querying a running daemon's health, and self-updating the
// installed binaries.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/flowforge/mediaflow/internal/config"
	"github.com/flowforge/mediaflow/internal/devicemap"
	"github.com/flowforge/mediaflow/internal/mtxclient"
	"github.com/flowforge/mediaflow/internal/registry"
	"github.com/flowforge/mediaflow/internal/updater"
	"github.com/flowforge/mediaflow/internal/wizard"
)

// Version information (set via ldflags during build).
var (
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)

const exitError = 1

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitError)
	}
}

// run is the main entry point, extracted for testability.
func run(args []string) error {
	if len(args) == 0 {
		return runHelp()
	}

	command := args[0]
	commandArgs := args[1:]

	switch command {
	case "help", "--help", "-h":
		return runHelp()
	case "version", "--version", "-v":
		return runVersion()
	case "wizard":
		return runWizard(commandArgs)
	case "usb-map":
		return runUSBMap(commandArgs)
	case "validate":
		return runValidate(commandArgs)
	case "status":
		return runStatus(commandArgs)
	case "mtx-status":
		return runMtxStatus(commandArgs)
	case "update":
		return runUpdate(commandArgs)
	default:
		return fmt.Errorf("unknown command: %s (run 'flowctl help' for usage)", command)
	}
}

func runHelp() error {
	fmt.Printf(`mediaflow-ctl v%s

USAGE:
    flowctl [COMMAND] [OPTIONS]

COMMANDS:
    help                Show this help message
    version             Show version information
    wizard              Interactively author a pipeline instance
    usb-map             Generate a udev rule for one USB capture device
    validate            Validate a pipeline configuration file
    status              Query a running flowd's health endpoint
    mtx-status          Probe the configured MediaMTX server's readiness
    update              Check for and install flowd/flowctl updates

EXAMPLES:
    flowctl wizard --config=/etc/mediaflow/pipeline.yaml
    flowctl usb-map --bus=1 --dev=5 --dry-run
    flowctl validate --config=/etc/mediaflow/pipeline.yaml
    flowctl status --addr=127.0.0.1:9998
    flowctl update --check

For more information, visit: https://github.com/flowforge/mediaflow
`, Version)
	return nil
}

func runVersion() error {
	fmt.Printf("flowctl %s (%s) built %s\n", Version, GitCommit, BuildDate)
	return nil
}

// runWizard interactively composes one pipeline instance and saves the
// result back to the config file, creating it if it doesn't exist yet.
func runWizard(args []string) error {
	path := config.PipelineFilePath
	for i := 0; i < len(args); i++ {
		if v, ok := flagValue(args, i, "--config"); ok {
			path = v
		}
	}

	cfg, err := loadOrDefault(path)
	if err != nil {
		return fmt.Errorf("loading pipeline config: %w", err)
	}

	// A real deployment links in packages that self-register concrete
	// stages via init(); flowctl only walks whatever is registered in this
	// process, so an empty registry here simply offers no factories.
	reg := registry.New()

	w := wizard.NewPipelineWizard(reg)
	cfg, err = w.Run(cfg)
	if err != nil {
		return fmt.Errorf("composing pipeline instance: %w", err)
	}

	backupPath, err := config.BackupBeforeSave(cfg, path, config.GetBackupDir(path))
	if err != nil {
		return fmt.Errorf("saving pipeline config: %w", err)
	}

	if backupPath != "" {
		fmt.Printf("Backed up previous config to %s\n", backupPath)
	}
	fmt.Printf("Saved pipeline config to %s\n", path)
	return nil
}

// runUSBMap generates and optionally writes a udev rule for one USB capture
// device identified by bus/device number. Device enumeration is
// intentionally manual rather than ALSA/V4L2-specific: the operator
// supplies --bus/--dev (read from /proc/bus/usb or `lsusb` output), keeping
// devicemap agnostic of any particular capture driver.
func runUSBMap(args []string) error {
	if os.Geteuid() != 0 {
		return fmt.Errorf("usb-map requires root privileges (run with sudo)")
	}

	sysfsRoot := "/sys"
	outputPath := devicemap.RulesFilePath
	dryRun := false
	reload := true
	interactive := false
	var busNum, devNum int

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--dry-run":
			dryRun = true
		case args[i] == "--no-reload":
			reload = false
		case args[i] == "--interactive":
			interactive = true
		default:
			if v, ok := flagValue(args, i, "--sysfs-root"); ok {
				sysfsRoot = v
			} else if v, ok := flagValue(args, i, "--output"); ok {
				outputPath = v
			} else if v, ok := flagValue(args, i, "--bus"); ok {
				n, err := strconv.Atoi(v)
				if err != nil {
					return fmt.Errorf("invalid --bus value %q: %w", v, err)
				}
				busNum = n
			} else if v, ok := flagValue(args, i, "--dev"); ok {
				n, err := strconv.Atoi(v)
				if err != nil {
					return fmt.Errorf("invalid --dev value %q: %w", v, err)
				}
				devNum = n
			}
		}
	}

	if busNum <= 0 || devNum <= 0 {
		return fmt.Errorf("usb-map requires --bus and --dev (run 'lsusb' to find them)")
	}

	var dev *devicemap.DeviceInfo
	if interactive {
		w := wizard.NewPipelineWizard(registry.New())
		d, err := w.PromptUSBRule(sysfsRoot, busNum, devNum)
		if err != nil {
			return fmt.Errorf("locating USB device: %w", err)
		}
		dev = d
	} else {
		portPath, product, serial, err := devicemap.GetUSBPhysicalPort(sysfsRoot, busNum, devNum)
		if err != nil {
			return fmt.Errorf("locating USB device: %w", err)
		}
		fmt.Printf("Found device %q (serial %q) on port %s\n", product, serial, portPath)
		dev = &devicemap.DeviceInfo{PortPath: portPath, BusNum: busNum, DevNum: devNum, Product: product, Serial: serial}
	}

	if dryRun {
		fmt.Printf("Dry run - would write to %s:\n\n", outputPath)
		fmt.Println(dev.GenerateRule())
		fmt.Println("\nTo apply this rule, run without --dry-run")
		return nil
	}

	fmt.Printf("Writing udev rule to %s...\n", outputPath)
	if err := devicemap.WriteRulesFileToPath([]*devicemap.DeviceInfo{dev}, outputPath, reload); err != nil {
		return fmt.Errorf("writing rules file: %w", err)
	}

	fmt.Println("Rule written successfully!")
	if reload {
		fmt.Println("udev rules reloaded and triggered.")
	} else {
		fmt.Println("\nTo activate the rule manually:")
		fmt.Println("  sudo udevadm control --reload-rules && sudo udevadm trigger")
	}
	fmt.Printf("Device symlink will appear at /dev/mediaflow/by-usb-port/%s\n", dev.PortPath)
	return nil
}

// runValidate parses and validates a pipeline config file without starting
// anything.
func runValidate(args []string) error {
	path := config.PipelineFilePath
	for i := 0; i < len(args); i++ {
		if v, ok := flagValue(args, i, "--config"); ok {
			path = v
		}
	}

	cfg, err := config.LoadPipeline(path)
	if err != nil {
		return fmt.Errorf("invalid pipeline config: %w", err)
	}

	fmt.Printf("%s is valid: %d instance(s)\n", path, len(cfg.Instances))
	for name, inst := range cfg.Instances {
		fmt.Printf("  %s: %d flow(s), %d edge(s)\n", name, len(inst.Flows), len(inst.Edges))
	}
	return nil
}

// runStatus fetches /healthz from a running flowd and prints it.
func runStatus(args []string) error {
	addr := "127.0.0.1:9998"
	asJSON := false
	for i := 0; i < len(args); i++ {
		if v, ok := flagValue(args, i, "--addr"); ok {
			addr = v
		}
		if args[i] == "--json" {
			asJSON = true
		}
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/healthz", addr))
	if err != nil {
		return fmt.Errorf("querying flowd at %s: %w", addr, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if asJSON {
		fmt.Println(string(body))
		return nil
	}

	var parsed struct {
		Status string `json:"status"`
		Flows  []struct {
			Name       string `json:"name"`
			State      string `json:"state"`
			Enabled    bool   `json:"enabled"`
			Restarts   int    `json:"restarts"`
			QueueDepth int    `json:"queue_depth"`
			Dropped    int64  `json:"dropped"`
		} `json:"flows"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	fmt.Printf("Status: %s\n", parsed.Status)
	for _, f := range parsed.Flows {
		fmt.Printf("  %-24s state=%-10s enabled=%-5v restarts=%-3d queue=%-4d dropped=%d\n",
			f.Name, f.State, f.Enabled, f.Restarts, f.QueueDepth, f.Dropped)
	}
	return nil
}

// runMtxStatus probes the MediaMTX server named in the pipeline config (or
// overridden via --api-url) once and prints the result.
func runMtxStatus(args []string) error {
	path := config.PipelineFilePath
	apiURL := ""
	for i := 0; i < len(args); i++ {
		if v, ok := flagValue(args, i, "--config"); ok {
			path = v
		}
		if v, ok := flagValue(args, i, "--api-url"); ok {
			apiURL = v
		}
	}

	if apiURL == "" {
		cfg, err := loadOrDefault(path)
		if err != nil {
			return fmt.Errorf("loading pipeline config: %w", err)
		}
		apiURL = cfg.MediaMTX.APIURL
	}

	client := mtxclient.NewClient(apiURL)
	st := client.CheckStatus(context.Background())

	fmt.Printf("MediaMTX at %s\n", apiURL)
	fmt.Printf("  reachable: %v\n", st.APIReachable)
	fmt.Printf("  paths:     %d ready / %d total\n", st.ReadyPaths, st.TotalPaths)
	if st.Error != "" {
		fmt.Printf("  error:     %s\n", st.Error)
	}
	if !st.Healthy() {
		return fmt.Errorf("mediamtx is not healthy")
	}
	return nil
}

// runUpdate checks for, and optionally installs, a newer flowd/flowctl
// release.
func runUpdate(args []string) error {
	checkOnly := false
	force := false
	for _, arg := range args {
		switch arg {
		case "--check":
			checkOnly = true
		case "--force":
			force = true
		}
	}

	fmt.Println("mediaflow update")
	fmt.Println("================")
	fmt.Println()

	u := updater.New(updater.WithCurrentVersion(Version))
	ctx := context.Background()

	fmt.Println("Checking for updates...")
	info, err := u.CheckForUpdates(ctx)
	if err != nil {
		return fmt.Errorf("failed to check for updates: %w", err)
	}

	fmt.Println(updater.FormatUpdateInfo(info))

	if !info.UpdateAvailable {
		return nil
	}
	if checkOnly {
		fmt.Println("\nRun 'flowctl update' without --check to install the update.")
		return nil
	}

	if !force {
		fmt.Print("Download and install update? [y/N]: ")
		var response string
		_, _ = fmt.Scanln(&response)
		if strings.ToLower(response) != "y" {
			fmt.Println("Update cancelled.")
			return nil
		}
	}

	binaryPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to determine binary path: %w", err)
	}

	if strings.HasPrefix(binaryPath, "/usr/") && os.Geteuid() != 0 {
		return fmt.Errorf("update requires root privileges for %s (run with sudo)", binaryPath)
	}

	fmt.Println()
	fmt.Println("Downloading update...")
	lastPercent := 0
	progress := func(downloaded, total int64) {
		if total > 0 {
			percent := int(float64(downloaded) / float64(total) * 100)
			if percent > lastPercent+5 || percent == 100 {
				fmt.Printf("\rProgress: %d%%", percent)
				lastPercent = percent
			}
		}
	}

	if err := u.Update(ctx, info, binaryPath, progress); err != nil {
		fmt.Println()
		if u.HasBackup(binaryPath) {
			fmt.Println("Update failed. Rolling back...")
			if rbErr := u.Rollback(binaryPath); rbErr != nil {
				return fmt.Errorf("update failed (%w) and rollback failed (%w)", err, rbErr)
			}
			fmt.Println("Rolled back to previous version.")
		}
		return fmt.Errorf("update failed: %w", err)
	}

	fmt.Println()
	fmt.Printf("Successfully updated to %s!\n", info.LatestVersion)
	fmt.Println("Restart flowd/flowctl to use the new version.")
	return nil
}

// loadOrDefault loads the pipeline config at path, or returns a fresh
// default one if the file doesn't exist yet.
func loadOrDefault(path string) (*config.PipelineConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.DefaultPipelineConfig(), nil
	}
	return config.LoadPipeline(path)
}

// flagValue parses both "--name=value" and "--name value" forms at args[i],
// returning the value and true if args[i] matches name in either form.
func flagValue(args []string, i int, name string) (string, bool) {
	arg := args[i]
	if strings.HasPrefix(arg, name+"=") {
		return strings.TrimPrefix(arg, name+"="), true
	}
	if arg == name && i+1 < len(args) {
		return args[i+1], true
	}
	return "", false
}
