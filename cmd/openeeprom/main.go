package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/openeeprom/openeeprom/internal/chip"
	"github.com/openeeprom/openeeprom/internal/debug"
	"github.com/openeeprom/openeeprom/internal/protocol"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	connectFlag string
	serialFlag  string
	tcpFlag     string
	timeoutFlag time.Duration
	debugFlag   bool

	chipFlag   string
	offsetFlag int
	countFlag  int
	fileFlag   string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "openeeprom",
		Short: "Read, write and erase EEPROMs through an OpenEEPROM programmer",
		Long: `openeeprom talks to an OpenEEPROM programmer over a serial port or TCP
and reads, writes, erases and verifies the chip attached to it.

Connect with --serial <port>[:<baud>], --tcp <host>:<port>, or
--connect serial:<port>[:<baud>] | tcp:<host>:<port>.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debugFlag {
				debug.SetEnabled(true)
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&connectFlag, "connect", "", "Programmer connection string, serial:port[:baud] or tcp:host:port")
	rootCmd.PersistentFlags().StringVar(&serialFlag, "serial", "", "Serial port of the programmer, as port[:baud]")
	rootCmd.PersistentFlags().StringVar(&tcpFlag, "tcp", "", "TCP address of the programmer, as host:port")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", protocol.DefaultTimeout, "Response timeout")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Trace protocol traffic to stderr")

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List supported chips",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}

	// Info command
	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show programmer capabilities",
		Args:  cobra.NoArgs,
		RunE:  runInfo,
	}

	// Read command
	readCmd := &cobra.Command{
		Use:   "read",
		Short: "Read chip contents",
		Long: `Read --count bytes from --offset. Without --file the data is printed
as a hex dump.`,
		Args: cobra.NoArgs,
		RunE: runRead,
	}
	addChipFlags(readCmd)
	readCmd.Flags().IntVar(&countFlag, "count", -1, "Number of bytes (default: to the end of the chip)")
	readCmd.Flags().StringVarP(&fileFlag, "file", "f", "", "Output file")

	// Write command
	writeCmd := &cobra.Command{
		Use:   "write",
		Short: "Write a file to the chip",
		Args:  cobra.NoArgs,
		RunE:  runWrite,
	}
	addChipFlags(writeCmd)
	writeCmd.Flags().StringVarP(&fileFlag, "file", "f", "", "Input file")
	_ = writeCmd.MarkFlagRequired("file")

	// Erase command
	eraseCmd := &cobra.Command{
		Use:   "erase",
		Short: "Erase the whole chip",
		Args:  cobra.NoArgs,
		RunE:  runErase,
	}
	eraseCmd.Flags().StringVarP(&chipFlag, "chip", "c", "", "Chip name (see list)")
	_ = eraseCmd.MarkFlagRequired("chip")

	// Verify command
	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare chip contents with a file",
		Args:  cobra.NoArgs,
		RunE:  runVerify,
	}
	addChipFlags(verifyCmd)
	verifyCmd.Flags().StringVarP(&fileFlag, "file", "f", "", "File to compare against")
	_ = verifyCmd.MarkFlagRequired("file")

	// Version command
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "openeeprom %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}

	rootCmd.AddCommand(listCmd, infoCmd, readCmd, writeCmd, eraseCmd, verifyCmd, versionCmd)
	return rootCmd
}

func addChipFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&chipFlag, "chip", "c", "", "Chip name (see list)")
	cmd.Flags().IntVarP(&offsetFlag, "offset", "o", 0, "Start address")
	_ = cmd.MarkFlagRequired("chip")
}

func runList(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Supported chips:")
	for _, d := range chip.Supported() {
		fmt.Fprintf(out, "  %-10s %-8s %6d bytes  %s\n", d.Name, d.Bus, d.Size, d.Description)
	}
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	c := s.client
	ver, err := c.InterfaceVersion()
	if err != nil {
		return fmt.Errorf("failed to read interface version: %w", err)
	}
	buses, err := c.SupportedBusTypes()
	if err != nil {
		return fmt.Errorf("failed to read bus types: %w", err)
	}

	caps := c.Capabilities()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Programmer:      %s\n", s.target)
	fmt.Fprintf(out, "  Interface:     v%d\n", ver)
	fmt.Fprintf(out, "  RX buffer:     %d bytes\n", caps.MaxRxSize)
	fmt.Fprintf(out, "  TX buffer:     %d bytes\n", caps.MaxTxSize)
	fmt.Fprintf(out, "  Max read:      %d bytes\n", caps.MaxParallelRead)
	fmt.Fprintf(out, "  Max write:     %d bytes\n", caps.MaxParallelWrite)
	fmt.Fprintf(out, "  Max SPI xfer:  %d bytes\n", caps.MaxSPITransmit)
	fmt.Fprintf(out, "  Buses:         %s\n", buses)

	if buses.Has(protocol.BusSPI) {
		modes, err := c.SupportedSPIModes()
		if err != nil {
			return fmt.Errorf("failed to read SPI modes: %w", err)
		}
		fmt.Fprintf(out, "  SPI modes:     %v\n", modes.List())
	}
	return nil
}

func runRead(cmd *cobra.Command, args []string) error {
	s, ch, err := openChip()
	if err != nil {
		return err
	}
	defer s.Close()
	defer ch.Disconnect()

	count := countFlag
	if count < 0 {
		count = ch.Descriptor().Size - offsetFlag
	}

	bar := newProgressBar(count, "Reading")
	ch.SetProgressCallback(func(current, total int) {
		_ = bar.Set(current)
	})
	data, err := ch.Read(offsetFlag, count)
	_ = bar.Finish()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if fileFlag == "" {
		fmt.Fprint(out, hex.Dump(data))
		return nil
	}
	if err := os.WriteFile(fileFlag, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", fileFlag, err)
	}
	fmt.Fprintf(out, "Read %d bytes from 0x%04X into %s\n", len(data), offsetFlag, fileFlag)
	return nil
}

func runWrite(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(fileFlag)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", fileFlag, err)
	}

	s, ch, err := openChip()
	if err != nil {
		return err
	}
	defer s.Close()
	defer ch.Disconnect()

	bar := newProgressBar(len(data), "Writing")
	ch.SetProgressCallback(func(current, total int) {
		_ = bar.Set(current)
	})
	n, err := ch.Write(offsetFlag, data)
	_ = bar.Finish()
	if err != nil {
		return fmt.Errorf("wrote %d of %d bytes: %w", n, len(data), err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bytes at 0x%04X\n", n, offsetFlag)
	return nil
}

func runErase(cmd *cobra.Command, args []string) error {
	s, ch, err := openChip()
	if err != nil {
		return err
	}
	defer s.Close()
	defer ch.Disconnect()

	bar := newProgressBar(ch.Descriptor().Size, "Erasing")
	ch.SetProgressCallback(func(current, total int) {
		_ = bar.Set(current)
	})
	err = ch.Erase()
	_ = bar.Finish()
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Erased %s\n", ch.Descriptor().Name)
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	want, err := os.ReadFile(fileFlag)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", fileFlag, err)
	}

	s, ch, err := openChip()
	if err != nil {
		return err
	}
	defer s.Close()
	defer ch.Disconnect()

	bar := newProgressBar(len(want), "Verifying")
	ch.SetProgressCallback(func(current, total int) {
		_ = bar.Set(current)
	})
	got, err := ch.Read(offsetFlag, len(want))
	_ = bar.Finish()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	diffs := compare(offsetFlag, want, got)
	for _, d := range diffs {
		fmt.Fprintf(out, "0x%04X: expected 0x%02X, got 0x%02X\n", d.Address, d.Want, d.Got)
	}
	if len(diffs) > 0 {
		return fmt.Errorf("verification failed: %d of %d bytes differ", len(diffs), len(want))
	}

	fmt.Fprintf(out, "Verified %d bytes at 0x%04X\n", len(want), offsetFlag)
	return nil
}
