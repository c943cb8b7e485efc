// Package devices implements the subcommand that lists available MIDI
// inputs and audio playback devices.
package devices

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/midisynthd/midisynthd/internal/audioout"
	"github.com/midisynthd/midisynthd/internal/midistream"
)

// Command returns the devices subcommand.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List MIDI inputs and playback devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute()
		},
	}
}

func execute() error {
	ports, err := midistream.ListInputPorts()
	if err != nil {
		return fmt.Errorf("listing MIDI inputs: %w", err)
	}

	fmt.Println("MIDI inputs:")
	if len(ports) == 0 {
		fmt.Println("  (none)")
	}
	for i, name := range ports {
		fmt.Printf("  %d: %s\n", i, name)
	}

	playback, err := audioout.ListPlaybackDevices()
	if err != nil {
		return fmt.Errorf("listing playback devices: %w", err)
	}

	fmt.Println("Playback devices:")
	if len(playback) == 0 {
		fmt.Println("  (none)")
	}
	for _, dev := range playback {
		suffix := ""
		if dev.IsDefault {
			suffix = " (default)"
		}
		fmt.Printf("  %d: %s%s\n", dev.Index, dev.Name, suffix)
	}

	return nil
}
