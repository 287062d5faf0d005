// ABOUTME: Host and hardware facts reported at enrollment
// ABOUTME: Read from os-release, DMI, and procfs where present; missing facts are left empty

package agent

import (
	"bufio"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/2389/prachand/internal/protocol"
)

// CollectHostDetails gathers what this host can tell about itself.
func CollectHostDetails(version string) protocol.HostDetails {
	return collectHostDetails("/", version)
}

// collectHostDetails reads facts below root so tests can supply a fake tree.
func collectHostDetails(root, version string) protocol.HostDetails {
	d := protocol.HostDetails{
		OSArch:          runtime.GOARCH,
		OSPlatform:      platformName(runtime.GOOS),
		CPULogicalCores: strconv.Itoa(runtime.NumCPU()),
		AgentVersion:    version,
	}
	if name, err := os.Hostname(); err == nil {
		d.Hostname = name
	}

	release := readKeyValues(filepath.Join(root, "etc/os-release"), "=")
	d.OSName = unquote(release["NAME"])
	d.OSBuild = unquote(release["VERSION"])
	if v := unquote(release["VERSION_ID"]); v != "" {
		major, minor, _ := strings.Cut(v, ".")
		d.OSMajor, d.OSMinor = major, minor
	}

	dmi := filepath.Join(root, "sys/devices/virtual/dmi/id")
	d.HardwareVendor = readLine(filepath.Join(dmi, "sys_vendor"))
	d.HardwareModel = readLine(filepath.Join(dmi, "product_name"))
	d.HardwareVersion = readLine(filepath.Join(dmi, "product_version"))

	d.CPUType = readKeyValues(filepath.Join(root, "proc/cpuinfo"), ":")["model name"]
	if mem := readKeyValues(filepath.Join(root, "proc/meminfo"), ":")["MemTotal"]; mem != "" {
		// "16318412 kB" in procfs; reported in bytes
		if kb, err := strconv.ParseUint(strings.TrimSuffix(mem, " kB"), 10, 64); err == nil {
			d.PhysicalMemory = strconv.FormatUint(kb*1024, 10)
		}
	}

	return d
}

func platformName(goos string) string {
	switch goos {
	case "linux":
		return "Linux"
	case "darwin":
		return "MacOS"
	case "windows":
		return "Windows"
	default:
		return goos
	}
}

// readKeyValues parses "key<sep>value" lines, keeping the first value seen
// for each key.
func readKeyValues(path, sep string) map[string]string {
	out := make(map[string]string)
	f, err := os.Open(path)
	if err != nil {
		return out
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		k, v, ok := strings.Cut(sc.Text(), sep)
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if _, seen := out[k]; !seen {
			out[k] = strings.TrimSpace(v)
		}
	}
	return out
}

func readLine(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func unquote(s string) string {
	return strings.Trim(s, `"'`)
}
