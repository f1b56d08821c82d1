package chargerlink

import (
	"os"
	"path/filepath"
	"strings"
)

// portDescription is the USB product string the Powerlab's FTDI adapter
// reports; a port enumerated under this description is assumed to be the
// charger.
const portDescription = "FT232R USB UART"

// findPortByDescription looks for a serial device whose udev "by-id" name
// advertises the FTDI product string. tarm/serial has no enumeration API
// of its own (unlike go.bug.st/serial, which this repository deliberately
// does not carry - see the dependency notes), so port discovery falls
// back to the /dev/serial/by-id convention the kernel already populates
// from the same USB descriptor pyserial's comports() reads.
func findPortByDescription(description string) (string, error) {
	const byIDDir = "/dev/serial/by-id"
	entries, err := os.ReadDir(byIDDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &ConnectFailedError{Msg: "no port found"}
		}
		return "", err
	}
	wantLower := strings.ToLower(strings.ReplaceAll(description, " ", "_"))
	for _, entry := range entries {
		name := strings.ToLower(entry.Name())
		if strings.Contains(name, wantLower) || strings.Contains(name, "ft232") {
			target, err := filepath.EvalSymlinks(filepath.Join(byIDDir, entry.Name()))
			if err != nil {
				continue
			}
			return target, nil
		}
	}
	return "", &ConnectFailedError{Msg: "no port found"}
}
