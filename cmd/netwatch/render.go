package main

import (
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/rsclarke/netwatch/internal/deps"
	"github.com/rsclarke/netwatch/internal/types"
)

func newTable(w io.Writer, header []string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetHeader(header)
	t.SetAutoWrapText(false)
	t.SetRowLine(false)
	return t
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func renderTraffic(w io.Writer, records []types.TrafficRecord) {
	t := newTable(w, []string{"ID", "Time", "Interface", "Source", "Destination", "Protocol", "Payload", "Encrypted"})
	for _, r := range records {
		t.Append([]string{
			strconv.FormatInt(r.ID, 10),
			r.Timestamp,
			r.Interface,
			r.SrcIP,
			r.DstIP,
			r.Protocol,
			yesNo(r.Payload),
			yesNo(r.Encrypted),
		})
	}
	t.Render()
}

func renderDevices(w io.Writer, devices []types.DeviceRecord) {
	t := newTable(w, []string{"IP", "Hostname", "MAC", "Interface", "Last Seen"})
	for _, d := range devices {
		hostname := d.Hostname
		if hostname == "" {
			hostname = "-"
		}
		t.Append([]string{d.IP, hostname, d.MAC, d.Interface, d.LastSeen})
	}
	t.Render()
}

func renderScans(w io.Writer, scans []types.ScanRecord) {
	t := newTable(w, []string{"ID", "Time", "Interface", "Devices", "Duration(ms)", "Error"})
	for _, s := range scans {
		t.Append([]string{
			strconv.FormatInt(s.ID, 10),
			s.Timestamp,
			s.Interface,
			strconv.Itoa(s.DeviceCount),
			strconv.FormatInt(s.DurationMS, 10),
			s.Error,
		})
	}
	t.Render()
}

func renderDeps(w io.Writer, results []deps.Result) {
	t := newTable(w, []string{"Dependency", "Status", "Location"})
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = "missing"
		}
		t.Append([]string{r.Name, status, r.Path})
	}
	t.Render()
}
