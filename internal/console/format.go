package console

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uitable"
	"github.com/k4lls/zt100/internal/interfaces"
)

// DescribeResult renders a check outcome as one human readable line
func DescribeResult(result interfaces.SyncResult) string {
	switch result.Outcome {
	case interfaces.OutcomeAlreadyRunning:
		return "A manual update check is already running."
	case interfaces.OutcomeThrottled:
		return "Checked recently; skipping. Use a forced check to override."
	case interfaces.OutcomeNoChange:
		return "Manual is up to date (server reports no change)."
	case interfaces.OutcomeIdentical:
		return "Manual is up to date (downloaded copy is identical)."
	case interfaces.OutcomeInstalled:
		return fmt.Sprintf("Installed updated manual (%s).", humanize.Bytes(uint64(result.Bytes)))
	case interfaces.OutcomeFailed:
		return fmt.Sprintf("Update check failed during %s: %s", result.Reason, result.Error)
	default:
		return string(result.Outcome)
	}
}

// relative formats an optional timestamp relative to now
func relative(ts *time.Time) string {
	if ts == nil {
		return "never"
	}
	return fmt.Sprintf("%s (%s)", humanize.Time(*ts), ts.Local().Format(time.RFC1123))
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// WriteStatus prints the synchronizer state as an aligned table
func WriteStatus(w io.Writer, status interfaces.ManualStatus) {
	table := uitable.New()
	table.MaxColWidth = 100
	table.Wrap = true

	cache := "absent"
	if status.CachePresent {
		cache = fmt.Sprintf("%s (%s)", status.CachePath, humanize.Bytes(uint64(status.CacheSize)))
	}
	bundled := "absent"
	if status.BundledPresent {
		bundled = "present"
	}

	table.AddRow("Source:", status.Preferred.Label)
	table.AddRow("Remote:", status.URL)
	table.AddRow("Cache:", cache)
	table.AddRow("Bundled:", bundled)
	table.AddRow("State:", status.State)
	table.AddRow("Last checked:", relative(status.LastChecked))
	table.AddRow("Last updated:", relative(status.LastUpdated))
	table.AddRow("ETag:", orNone(status.ETag))
	table.AddRow("Last-Modified:", orNone(status.LastModified))

	fmt.Fprintln(w, table)
}

// WriteHistory prints sync history records, newest first
func WriteHistory(w io.Writer, records []interfaces.SyncRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No update checks recorded.")
		return
	}

	table := uitable.New()
	table.MaxColWidth = 80
	table.AddRow("WHEN", "OUTCOME", "RUN", "DETAILS")
	for _, r := range records {
		table.AddRow(humanize.Time(r.Timestamp), r.Status, shortID(r.RunID), r.Details)
	}
	fmt.Fprintln(w, table)
}

// WriteDevice prints the reachability of the control panel
func WriteDevice(w io.Writer, status interfaces.DeviceStatus) {
	table := uitable.New()
	table.AddRow("Control panel:", status.URL)
	if status.Reachable {
		table.AddRow("Reachable:", fmt.Sprintf("yes (HTTP %d in %s)", status.StatusCode, status.Latency.Round(time.Millisecond)))
	} else if status.StatusCode != 0 {
		table.AddRow("Reachable:", fmt.Sprintf("no (HTTP %d)", status.StatusCode))
	} else {
		table.AddRow("Reachable:", "no (join the ZT-100 Wi-Fi network and retry)")
	}
	fmt.Fprintln(w, table)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
