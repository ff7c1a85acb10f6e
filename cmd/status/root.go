// Package status implements the small administrative commands (status,
// ping) that talk to an already-running daemon over its unix socket.
package status

import (
	"fmt"

	cmdUtil "github.com/vkolb/waldb/cmd/util"
	"github.com/vkolb/waldb/internal/protocol"
	"github.com/vkolb/waldb/rpc/client"
	"github.com/spf13/cobra"
)

// StatusCmd reports the router's uptime and the status of every worker
// it currently has registered.
var StatusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Report the running daemon's router and worker status",
	PreRunE: bind,
	RunE:    runStatus,
}

// PingCmd sends a bare Ping to the daemon and reports whether it
// answered.
var PingCmd = &cobra.Command{
	Use:     "ping",
	Short:   "Check whether the daemon is reachable",
	PreRunE: bind,
	RunE:    runPing,
}

func init() {
	cmdUtil.SetupRPCClientFlags(StatusCmd)
	cmdUtil.SetupRPCClientFlags(PingCmd)
}

func bind(cmd *cobra.Command, _ []string) error {
	cmdUtil.InitClientConfig()
	return cmdUtil.BindCommandFlags(cmd)
}

func runStatus(_ *cobra.Command, _ []string) error {
	c, err := client.Dial(cmdUtil.GetClientConfig())
	if err != nil {
		return err
	}
	defer c.Close()

	resp, err := c.Do(protocol.NewStatusRequest())
	if err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("%s: %s", resp.Code, resp.Error)
	}

	fmt.Printf("uptime: %ds, requests served: %d\n", resp.RouterUptimeSeconds, resp.RequestsServed)
	if len(resp.Workers) == 0 {
		fmt.Println("no workers registered")
		return nil
	}
	for _, w := range resp.Workers {
		fmt.Printf("%-30s state=%-7s batches=%-6d last_activity=%s\n", w.Db, w.State, w.BatchesServed, w.LastActivity)
	}
	return nil
}

func runPing(_ *cobra.Command, _ []string) error {
	c, err := client.Dial(cmdUtil.GetClientConfig())
	if err != nil {
		return err
	}
	defer c.Close()

	resp, err := c.Do(protocol.NewPingRequest(""))
	if err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("%s: %s", resp.Code, resp.Error)
	}

	fmt.Println("ok")
	return nil
}
