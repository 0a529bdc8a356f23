package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"tpdd-server/internal/bootstrap"
	"tpdd-server/internal/transport"
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap FILE",
	Short: "Send a loader program to a client typing at its BASIC prompt",
	Long: `Sends FILE over the serial line one byte at a time, slowly enough
for a machine that is reading it into its own BASIC prompt with no flow
control. Used to get a TPDD client (TS-DOS, TEENY, ...) onto a machine
that has nothing installed yet.`,
	Args: cobra.ExactArgs(1),
	RunE: runBootstrap,
}

func init() {
	rootCmd.AddCommand(bootstrapCmd)
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Device == "" {
		return errors.New("no serial device; use --device or CLIENT_TTY")
	}
	profile, err := cfg.ResolveProfile()
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Printf("Sending %s at %d baud on %s\n\n", args[0], cfg.Baud, cfg.Device)
	if code, ok := bootstrap.StatCode(cfg.Baud); ok {
		fmt.Printf("On the client, prepare to receive:\n")
		fmt.Printf("    RUN \"COM:%c8N1ENN\"\n\n", code)
	}
	fmt.Print("Press Enter when the client is ready...")
	bufio.NewReader(os.Stdin).ReadString('\n')

	conn, err := transport.OpenSerial(cfg.Device, cfg.Baud, cfg.RTSCTS)
	if err != nil {
		return err
	}
	defer conn.Close()

	s := bootstrap.Sender{
		W:       conn,
		PerByte: time.Duration(cfg.BootstrapPaceMS) * time.Millisecond,
		Trailer: profile.BaseLen > 0,
		Echo:    echoByte,
	}
	if err := s.Send(f); err != nil {
		return err
	}
	fmt.Println("\n\nDone. Follow the loader's own instructions on the client.")
	return nil
}

// echoByte mirrors the outgoing stream on the console so the pace is
// visible, converting the client's CR line ends for the local terminal.
func echoByte(b byte) {
	switch b {
	case 0x0D:
		fmt.Println()
	case 0x0A:
		// swallowed; CR already broke the line
	default:
		fmt.Printf("%c", b)
	}
}
