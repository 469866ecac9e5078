//go:build linux

package v4l2

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"
)

const (
	classDir = "/sys/class/video4linux"
	byIDDir  = "/dev/v4l/by-id"
)

// FindDevices finds all V4L2 video capture devices on the system.
func FindDevices() ([]DeviceInfo, error) {
	entries, err := os.ReadDir(classDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []DeviceInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read video4linux directory: %w", err)
	}

	logger := slog.With("component", "linuxav")
	var devices []DeviceInfo

	for _, entry := range entries {
		devicePath := "/dev/" + entry.Name()

		caps, err := queryCapability(devicePath)
		if err != nil {
			logger.Debug("failed to query device capabilities", "path", devicePath, "error", err)
			continue
		}

		effective := caps.capabilities
		if effective&capDeviceCaps != 0 {
			effective = caps.deviceCaps
		}
		// Metadata nodes of the same camera lack the capture capability.
		if effective&capVideoCapture == 0 {
			continue
		}

		sysDir := filepath.Join(classDir, entry.Name())
		indexValue := readSysfsInt(filepath.Join(sysDir, "index"))

		stableID := findStableID(byIDDir, entry.Name(), indexValue)
		if stableID == "" {
			busInfo := cstr(caps.busInfo[:])
			if strings.HasPrefix(busInfo, "usb-") {
				stableID = fmt.Sprintf("%s-video-index%d", busInfo, indexValue)
			} else {
				stableID = fmt.Sprintf("platform-%s-video-index%d", busInfo, indexValue)
			}
		}

		devices = append(devices, DeviceInfo{
			DevicePath: devicePath,
			DeviceName: cstr(caps.card[:]),
			DeviceID:   stableID,
			Caps:       effective,
			USB:        ReadUSBInfo(sysDir),
		})
	}

	return devices, nil
}

// GetDevicePathByID finds the device path for a given stable device ID.
func GetDevicePathByID(deviceID string) (string, error) {
	devices, err := FindDevices()
	if err != nil {
		return "", fmt.Errorf("failed to find devices: %w", err)
	}

	for _, device := range devices {
		if device.DeviceID == deviceID {
			return device.DevicePath, nil
		}
	}

	return "", fmt.Errorf("device with ID %s not found", deviceID)
}

// ReadUSBInfo reads the USB descriptor strings of the device behind a
// video4linux class directory such as /sys/class/video4linux/video0. The
// class node links to the USB interface; the device attributes live a few
// levels up. A non-USB node yields a zero USBInfo.
func ReadUSBInfo(sysDir string) USBInfo {
	dir, err := filepath.EvalSymlinks(filepath.Join(sysDir, "device"))
	if err != nil {
		return USBInfo{}
	}
	for range 4 {
		if _, err := os.Stat(filepath.Join(dir, "idVendor")); err == nil {
			return USBInfo{
				VendorID:     readSysfsHex(filepath.Join(dir, "idVendor")),
				ProductID:    readSysfsHex(filepath.Join(dir, "idProduct")),
				Serial:       readSysfsString(filepath.Join(dir, "serial")),
				Manufacturer: readSysfsString(filepath.Join(dir, "manufacturer")),
				Product:      readSysfsString(filepath.Join(dir, "product")),
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return USBInfo{}
}

// findStableID looks for the by-id symlink pointing at deviceName.
func findStableID(dir, deviceName string, indexValue int) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	expectedSuffix := fmt.Sprintf("-video-index%d", indexValue)

	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink == 0 {
			continue
		}
		target, err := os.Readlink(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		if filepath.Base(target) == deviceName && strings.HasSuffix(entry.Name(), expectedSuffix) {
			return entry.Name()
		}
	}

	return ""
}

func readSysfsString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func readSysfsInt(path string) int {
	val, _ := strconv.Atoi(readSysfsString(path))
	return val
}

func readSysfsHex(path string) uint16 {
	val, _ := strconv.ParseUint(readSysfsString(path), 16, 16)
	return uint16(val)
}

// cstr converts a null-terminated byte slice to a Go string.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

func queryCapability(devicePath string) (*v4l2Capability, error) {
	n, err := openNode(devicePath)
	if err != nil {
		return nil, err
	}
	defer n.Close()

	caps := &v4l2Capability{}
	if err := n.ioctl(vidiocQuerycap, unsafe.Pointer(caps)); err != nil {
		return nil, err
	}
	return caps, nil
}
