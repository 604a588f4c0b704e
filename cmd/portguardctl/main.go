package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/portguard/pkg/client"
	"github.com/cuemby/portguard/pkg/types"
)

// Version information (set via ldflags during build)
var Version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "portguardctl",
	Short:   "portguardctl talks to a running portguardd over its local socket",
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().String("socket-path", "/var/run/portguard/portguard.sock", "portguardd Unix socket path")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(reserveCmd)
	rootCmd.AddCommand(releaseCmd)
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(statsCmd)
}

func newClient(cmd *cobra.Command) *client.Client {
	socketPath, _ := cmd.Flags().GetString("socket-path")
	return client.New(socketPath)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether ports are available",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, _ := cmd.Flags().GetIntSlice("ports")
		protocol, _ := cmd.Flags().GetString("protocol")

		c := newClient(cmd)
		defer c.Close()

		result, err := c.Check(context.Background(), ports, types.Protocol(protocol))
		if err != nil {
			return err
		}

		for _, status := range result.Statuses {
			state := "available"
			if !status.Available {
				state = "occupied"
			}
			if status.Reserved {
				fmt.Printf("  %d/%s: %s (reserved by %s until %s)\n",
					status.Port, status.Protocol, state, status.OwnerID, status.ReservedUntil.Format(time.RFC3339))
			} else {
				fmt.Printf("  %d/%s: %s\n", status.Port, status.Protocol, state)
			}
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().IntSlice("ports", nil, "Ports to check (required)")
	checkCmd.Flags().String("protocol", "tcp", "Protocol: tcp, udp, or both")
	checkCmd.MarkFlagRequired("ports")
}

var reserveCmd = &cobra.Command{
	Use:   "reserve",
	Short: "Reserve ports for an owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, _ := cmd.Flags().GetIntSlice("ports")
		owner, _ := cmd.Flags().GetString("owner")
		ownerName, _ := cmd.Flags().GetString("owner-name")
		protocol, _ := cmd.Flags().GetString("protocol")
		duration, _ := cmd.Flags().GetDuration("duration")

		c := newClient(cmd)
		defer c.Close()

		result, err := c.Reserve(context.Background(), ports, owner, ownerName, types.Protocol(protocol), duration)
		if err != nil {
			return err
		}

		if len(result.Reserved) > 0 {
			fmt.Println("✓ Reserved:")
			for _, r := range result.Reserved {
				fmt.Printf("  %d/%s until %s\n", r.Port, r.Protocol, r.ExpiresAt.Format(time.RFC3339))
			}
			return nil
		}

		fmt.Println("✗ Reservation rejected, conflicts:")
		for _, c := range result.Conflicts {
			fmt.Printf("  %d/%s held by %s (%s)\n", c.Port, c.Protocol, c.OwnerID, c.Severity)
		}
		if len(result.Suggestions) > 0 {
			fmt.Println("Suggestions:")
			for _, s := range result.Suggestions {
				fmt.Printf("  %v (%s): %s\n", s.Ports, s.Type, s.Reason)
			}
		}
		return nil
	},
}

func init() {
	reserveCmd.Flags().IntSlice("ports", nil, "Ports to reserve (required)")
	reserveCmd.Flags().String("owner", "", "Owner ID (required)")
	reserveCmd.Flags().String("owner-name", "", "Human-readable owner name")
	reserveCmd.Flags().String("protocol", "tcp", "Protocol: tcp, udp, or both")
	reserveCmd.Flags().Duration("duration", time.Hour, "Reservation duration")
	reserveCmd.MarkFlagRequired("ports")
	reserveCmd.MarkFlagRequired("owner")
}

var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Release ports held by an owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, _ := cmd.Flags().GetIntSlice("ports")
		owner, _ := cmd.Flags().GetString("owner")
		protocol, _ := cmd.Flags().GetString("protocol")

		c := newClient(cmd)
		defer c.Close()

		count, err := c.Release(context.Background(), owner, ports, types.Protocol(protocol))
		if err != nil {
			return err
		}
		fmt.Printf("✓ Released %d reservation(s)\n", count)
		return nil
	},
}

func init() {
	releaseCmd.Flags().IntSlice("ports", nil, "Ports to release (omit to release everything owner holds)")
	releaseCmd.Flags().String("owner", "", "Owner ID (required)")
	releaseCmd.Flags().String("protocol", "tcp", "Protocol: tcp, udp, or both")
	releaseCmd.MarkFlagRequired("owner")
}

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Suggest alternative ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, _ := cmd.Flags().GetIntSlice("ports")
		protocol, _ := cmd.Flags().GetString("protocol")
		serviceType, _ := cmd.Flags().GetString("service-type")
		max, _ := cmd.Flags().GetInt("max")

		c := newClient(cmd)
		defer c.Close()

		result, err := c.Suggest(context.Background(), ports, types.Protocol(protocol), types.ServiceType(serviceType), max)
		if err != nil {
			return err
		}

		for _, s := range result.Suggestions {
			marker := "  "
			if result.Best != nil && fmt.Sprint(s.Ports) == fmt.Sprint(result.Best.Ports) {
				marker = "* "
			}
			fmt.Printf("%s%v (%s): %s\n", marker, s.Ports, s.Type, s.Reason)
		}
		return nil
	},
}

func init() {
	suggestCmd.Flags().IntSlice("ports", nil, "Originally requested ports (required)")
	suggestCmd.Flags().String("protocol", "tcp", "Protocol: tcp, udp, or both")
	suggestCmd.Flags().String("service-type", "", "Service type hint (web, api, database, cache, monitoring, development, custom)")
	suggestCmd.Flags().Int("max", 3, "Maximum number of suggestions")
	suggestCmd.MarkFlagRequired("ports")
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a deployment's ports before claiming them",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, _ := cmd.Flags().GetIntSlice("ports")
		owner, _ := cmd.Flags().GetString("owner")
		protocol, _ := cmd.Flags().GetString("protocol")

		c := newClient(cmd)
		defer c.Close()

		result, err := c.Validate(context.Background(), ports, owner, types.Protocol(protocol))
		if err != nil {
			return err
		}

		if result.Safe {
			fmt.Println("✓ Safe to deploy")
		} else {
			fmt.Println("✗ Not safe to deploy")
			for _, c := range result.Conflicts {
				fmt.Printf("  conflict: %d/%s held by %s\n", c.Port, c.Protocol, c.OwnerID)
			}
		}
		for _, w := range result.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().IntSlice("ports", nil, "Ports to validate (required)")
	validateCmd.Flags().String("owner", "", "Owner ID (required)")
	validateCmd.Flags().String("protocol", "tcp", "Protocol: tcp, udp, or both")
	validateCmd.MarkFlagRequired("ports")
	validateCmd.MarkFlagRequired("owner")
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show daemon statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient(cmd)
		defer c.Close()

		stats, err := c.Statistics(context.Background())
		if err != nil {
			return err
		}

		fmt.Printf("Monitored:          %d\n", stats.Monitored)
		fmt.Printf("Reservations:       %d\n", stats.Reservations)
		fmt.Printf("Available in range: %d\n", stats.AvailableInRange)
		fmt.Printf("Conflicts (recent): %d\n", stats.ConflictsRecent)
		if !stats.LastScan.IsZero() {
			fmt.Printf("Last scan:          %s\n", stats.LastScan.Format(time.RFC3339))
		}
		fmt.Printf("Breakdown:          available=%d occupied=%d reserved=%d pending=%d\n",
			stats.PortStatusBreakdown.Available, stats.PortStatusBreakdown.Occupied,
			stats.PortStatusBreakdown.Reserved, stats.PortStatusBreakdown.Pending)
		return nil
	},
}
