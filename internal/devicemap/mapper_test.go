package devicemap

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSysfsDevice(t *testing.T, root, portPath string, busNum, devNum int, product, serial string) {
	t.Helper()
	dir := filepath.Join(root, portPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	write := func(name, content string) {
		if content == "" {
			return
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("busnum", itoa(busNum))
	write("devnum", itoa(devNum))
	write("product", product)
	write("serial", serial)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestGetUSBPhysicalPort(t *testing.T) {
	root := t.TempDir()
	writeSysfsDevice(t, root, "1-1", 1, 2, "USB Hub", "")
	writeSysfsDevice(t, root, "1-1.4", 1, 5, "Yeti Stereo Microphone", "REV8_12345")
	writeSysfsDevice(t, root, "1-1.5", 1, 6, "USB Audio Device", "")

	tests := []struct {
		name        string
		busNum      int
		devNum      int
		wantPort    string
		wantProduct string
		wantSerial  string
		wantErr     bool
	}{
		{"device on nested port", 1, 5, "1-1.4", "Yeti Stereo Microphone", "REV8_12345", false},
		{"device without serial", 1, 6, "1-1.5", "USB Audio Device", "", false},
		{"hub is not confused with nested device", 1, 2, "1-1", "USB Hub", "", false},
		{"nonexistent device", 99, 99, "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port, product, serial, err := GetUSBPhysicalPort(root, tt.busNum, tt.devNum)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if port != tt.wantPort {
				t.Errorf("port = %q, want %q", port, tt.wantPort)
			}
			if product != tt.wantProduct {
				t.Errorf("product = %q, want %q", product, tt.wantProduct)
			}
			if serial != tt.wantSerial {
				t.Errorf("serial = %q, want %q", serial, tt.wantSerial)
			}
		})
	}
}

func TestGetUSBPhysicalPortInvalidInputs(t *testing.T) {
	root := t.TempDir()

	if _, _, _, err := GetUSBPhysicalPort(root, -1, 5); err == nil {
		t.Error("negative bus number: expected error")
	}
	if _, _, _, err := GetUSBPhysicalPort(root, 1, -5); err == nil {
		t.Error("negative dev number: expected error")
	}
	if _, _, _, err := GetUSBPhysicalPort(filepath.Join(root, "missing"), 1, 5); err == nil {
		t.Error("missing sysfs path: expected error")
	}
}

func TestIsValidUSBPortPath(t *testing.T) {
	valid := []string{"1-1", "1-1.4", "2-3.1.2", "1-1.4.3.2"}
	invalid := []string{"", "11", "1-1.", "a-1", "1-a"}

	for _, p := range valid {
		if !IsValidUSBPortPath(p) {
			t.Errorf("IsValidUSBPortPath(%q) = false, want true", p)
		}
	}
	for _, p := range invalid {
		if IsValidUSBPortPath(p) {
			t.Errorf("IsValidUSBPortPath(%q) = true, want false", p)
		}
	}
}

func TestSafeBase10(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"005", 5, false},
		{"08", 8, false},
		{"0", 0, false},
		{"123", 123, false},
		{"", 0, true},
		{"abc", 0, true},
		{"-5", 0, true},
	}

	for _, tt := range tests {
		got, err := SafeBase10(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("SafeBase10(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("SafeBase10(%q): unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("SafeBase10(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
