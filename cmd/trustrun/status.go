package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/urfave/cli.v1"

	"github.com/trustplatform/trustrun/internal/control"
)

var statusCommand = cli.Command{
	Name:  "status",
	Usage: "query a running instance's control endpoint and print its metadata snapshot",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "addr", Usage: "tcp host:port or unix:/path/to.sock", Value: "unix:/var/run/trustrun.sock"},
		cli.StringFlag{Name: "token", Usage: "control auth token (required for tcp)"},
	},
	Action: statusAction,
}

func statusAction(ctx *cli.Context) error {
	network, address := splitAddr(ctx.String("addr"))

	conn, err := net.Dial(network, address)
	if err != nil {
		return err
	}
	defer conn.Close()

	req := control.Request{Type: control.ReqMetadataSnapshot, AuthToken: ctx.String("token")}
	if err := control.WriteRequest(conn, req); err != nil {
		return err
	}
	resp, err := control.ReadResponse(conn)
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("trustrun: status: %s", resp.Error)
	}

	var snap control.MetadataSnapshot
	if err := remarshal(resp.Body, &snap); err != nil {
		return err
	}
	printSnapshot(snap)
	return nil
}

// splitAddr turns "unix:/path" into ("unix", "/path") and anything else
// into ("tcp", addr). The prefix is this client's own shorthand:
// ListenTCP and ListenUnix take a plain address and a plain path.
func splitAddr(addr string) (network, address string) {
	const prefix = "unix:"
	if len(addr) > len(prefix) && addr[:len(prefix)] == prefix {
		return "unix", addr[len(prefix):]
	}
	return "tcp", addr
}

// remarshal round-trips a decoded Response.Body (a map[string]interface{},
// since Response carries it as interface{}) back into a concrete struct.
func remarshal(body interface{}, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func printSnapshot(snap control.MetadataSnapshot) {
	w := colorable.NewColorableStdout()
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"field", "value"})
	table.Append([]string{"state", stateColor(snap.State)})
	table.Append([]string{"cycle count", fmt.Sprintf("%d", snap.CycleCount)})
	table.Append([]string{"cycle min", snap.CycleMin.String()})
	table.Append([]string{"cycle max", snap.CycleMax.String()})
	table.Append([]string{"cycle mean", snap.CycleMean.String()})
	if snap.LastError != "" {
		table.Append([]string{"last error", color.RedString(snap.LastError)})
	}
	table.Append([]string{"host cpu %", fmt.Sprintf("%.1f", snap.HostCPUPct)})
	table.Append([]string{"host mem", fmt.Sprintf("%d / %d", snap.HostMemUsed, snap.HostMemTotal)})
	table.Render()
}

func stateColor(state string) string {
	switch state {
	case "Running":
		return color.GreenString(state)
	case "Faulted":
		return color.RedString(state)
	case "Paused":
		return color.YellowString(state)
	default:
		return state
	}
}
