package boatlog

import (
	"fmt"
	"io"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
)

// PrintHostInfo writes a one-line host/OS banner to wtr at process
// startup, adapted from ingest/log's PrintOSInfo.
func PrintHostInfo(wtr io.Writer) {
	platform, _, version, err := host.PlatformInformation()
	if err != nil {
		fmt.Fprintf(wtr, "OS:\t\tERROR %v\n", err)
		return
	}
	fmt.Fprintf(wtr, "OS:\t\t%s %s (%s %s)\n", runtime.GOOS, runtime.GOARCH, platform, version)
}
