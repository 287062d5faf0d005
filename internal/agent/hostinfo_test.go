// ABOUTME: Tests for host detail collection
// ABOUTME: Builds a fake filesystem root with os-release, DMI, and procfs files

package agent

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCollectHostDetails_FakeRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "etc/os-release", `NAME="Ubuntu"
VERSION="22.04.3 LTS (Jammy Jellyfish)"
VERSION_ID="22.04"
`)
	writeFile(t, root, "sys/devices/virtual/dmi/id/sys_vendor", "Dell Inc.\n")
	writeFile(t, root, "sys/devices/virtual/dmi/id/product_name", "PowerEdge R640\n")
	writeFile(t, root, "sys/devices/virtual/dmi/id/product_version", "1.0\n")
	writeFile(t, root, "proc/cpuinfo", "processor\t: 0\nmodel name\t: Intel(R) Xeon(R) Gold 6130\nprocessor\t: 1\nmodel name\t: other\n")
	writeFile(t, root, "proc/meminfo", "MemTotal:       16318412 kB\nMemFree:         1000 kB\n")

	d := collectHostDetails(root, "1.2.3")

	assert.Equal(t, "Ubuntu", d.OSName)
	assert.Equal(t, "22.04.3 LTS (Jammy Jellyfish)", d.OSBuild)
	assert.Equal(t, "22", d.OSMajor)
	assert.Equal(t, "04", d.OSMinor)
	assert.Equal(t, "Dell Inc.", d.HardwareVendor)
	assert.Equal(t, "PowerEdge R640", d.HardwareModel)
	assert.Equal(t, "1.0", d.HardwareVersion)
	assert.Equal(t, "Intel(R) Xeon(R) Gold 6130", d.CPUType)
	assert.Equal(t, strconv.FormatUint(16318412*1024, 10), d.PhysicalMemory)
	assert.Equal(t, runtime.GOARCH, d.OSArch)
	assert.Equal(t, strconv.Itoa(runtime.NumCPU()), d.CPULogicalCores)
	assert.Equal(t, "1.2.3", d.AgentVersion)
}

func TestCollectHostDetails_EmptyRoot(t *testing.T) {
	d := collectHostDetails(t.TempDir(), "dev")

	assert.Empty(t, d.OSName)
	assert.Empty(t, d.HardwareVendor)
	assert.Empty(t, d.PhysicalMemory)
	assert.Equal(t, "dev", d.AgentVersion)
	assert.NotEmpty(t, d.OSArch)
}

func TestPlatformName(t *testing.T) {
	tests := map[string]string{
		"linux":   "Linux",
		"darwin":  "MacOS",
		"windows": "Windows",
		"freebsd": "freebsd",
	}
	for goos, want := range tests {
		t.Run(goos, func(t *testing.T) {
			assert.Equal(t, want, platformName(goos))
		})
	}
}
