// cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ColonelBlimp/audiosender/internal/audio"
	"github.com/ColonelBlimp/audiosender/internal/config"
	"github.com/ColonelBlimp/audiosender/internal/devices"
	"github.com/ColonelBlimp/audiosender/internal/protocol"
	"github.com/ColonelBlimp/audiosender/internal/queue"
	"github.com/ColonelBlimp/audiosender/internal/repacketizer"
	"github.com/ColonelBlimp/audiosender/internal/supervisor"
	"github.com/ColonelBlimp/audiosender/internal/telemetry"
	"github.com/ColonelBlimp/audiosender/internal/transport"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "audiosender",
	Short: "Low-latency uncompressed PCM audio sender",
	Long:  `Captures microphone or desktop loopback audio and streams fixed-duration PCM frames over UDP or TCP.`,
	RunE:  runSender,
}

// runSender wires capture, repacketizing, and transport together and runs
// the pipeline until canceled.
func runSender(_ *cobra.Command, _ []string) error {
	settings, err := config.Get()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if settings.ListDesktopDevices {
		devs, err := devices.ListRenderDevices()
		if err != nil {
			return fmt.Errorf("list render devices: %w", err)
		}
		devices.Print(os.Stdout, devs)
		return nil
	}

	counters := telemetry.New()

	var source audio.Source
	switch settings.Source {
	case config.SourceDesktop:
		source = audio.NewLoopbackSource(settings.DesktopDevice, counters)
	case config.SourceMic:
		source = audio.NewInputSource(audio.DefaultInputConfig(), counters)
	default:
		return fmt.Errorf("unknown source %q", settings.Source)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		fmt.Printf("\nreceived signal %v, shutting down...\n", sig)
		cancel()
	}()

	captureQueue := queue.New()
	if err := source.Start(ctx, captureQueue); err != nil {
		return fmt.Errorf("start audio source: %w", err)
	}
	defer func() {
		if err := source.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "error closing audio source: %v\n", err)
		}
	}()

	format := source.Format()
	samplesPerChannel := uint16(int(format.SampleRate) * settings.FrameMs / 1000)

	maxPayload := config.MaxPayloadBytes(format.SampleRate, settings.FrameMs, format.Channels)
	if protocol.HeaderSize+maxPayload > protocol.MaxPacketSize {
		return fmt.Errorf("frame_ms=%d at %dHz/%dch produces a %d-byte packet, exceeding the %d-byte wire limit",
			settings.FrameMs, format.SampleRate, format.Channels, protocol.HeaderSize+maxPayload, protocol.MaxPacketSize)
	}

	addr := fmt.Sprintf("%s:%d", settings.TargetIP, settings.Port)
	var sink transport.Sink
	var overhead int
	switch settings.Transport {
	case config.TransportUDP:
		udpSink, derr := transport.DialUDP(addr)
		if derr != nil {
			return fmt.Errorf("dial udp %s: %w", addr, derr)
		}
		sink, overhead = udpSink, udpSink.Overhead()
	case config.TransportTCP:
		tcpSink, derr := transport.DialTCP(addr)
		if derr != nil {
			return fmt.Errorf("dial tcp %s: %w", addr, derr)
		}
		sink, overhead = tcpSink, tcpSink.Overhead()
	default:
		return fmt.Errorf("unknown transport %q", settings.Transport)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "error closing transport sink: %v\n", err)
		}
	}()

	builder := protocol.NewBuilder(format.SampleRate, uint8(format.Channels), samplesPerChannel)
	rp := repacketizer.New(int(samplesPerChannel)*int(format.Channels), uint8(format.Channels), builder, sink, counters, overhead)

	fmt.Printf("Source: %s (%s)\n", settings.Source, format.Label)
	fmt.Printf("Config: %d Hz, %d ch, frame=%d ms (%d samples/ch)\n", format.SampleRate, format.Channels, settings.FrameMs, samplesPerChannel)
	fmt.Printf("Target: %s\n", addr)
	fmt.Printf("Transport: %s\n", settings.Transport)

	sup := supervisor.New()
	stopTelemetry := make(chan struct{})
	reader := telemetry.NewReader(counters, captureQueue, settings.FrameMs, os.Stdout)
	sup.Go(func() {
		reader.Run(stopTelemetry)
	})

	runErr := pumpPackets(ctx, captureQueue, rp)

	close(stopTelemetry)
	sup.Wait()
	return runErr
}

// pumpPackets drains the capture queue into the repacketizer until the
// queue is closed, the context is canceled, or ingestion fails.
func pumpPackets(ctx context.Context, q *queue.Queue, rp *repacketizer.Repacketizer) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		chunk, err := q.Pop()
		if err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}
		if err := rp.Ingest(ctx, chunk); err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "execution error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("target-ip", "t", "", "destination IP address")
	rootCmd.PersistentFlags().IntP("port", "p", 50000, "destination port")
	rootCmd.PersistentFlags().IntP("frame-ms", "f", 5, "network frame duration in milliseconds (1-20)")
	rootCmd.PersistentFlags().StringP("source", "s", "desktop", `capture source: "desktop" or "mic"`)
	rootCmd.PersistentFlags().String("desktop-device", "", "render endpoint friendly name (desktop source only)")
	rootCmd.PersistentFlags().String("transport", "udp", `wire transport: "udp" or "tcp"`)
	rootCmd.PersistentFlags().Bool("list-desktop-devices", false, "print render endpoints and exit")
	rootCmd.PersistentFlags().BoolP("debug", "D", false, "enable debug output")

	cobra.CheckErr(viper.BindPFlag("target_ip", rootCmd.PersistentFlags().Lookup("target-ip")))
	cobra.CheckErr(viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port")))
	cobra.CheckErr(viper.BindPFlag("frame_ms", rootCmd.PersistentFlags().Lookup("frame-ms")))
	cobra.CheckErr(viper.BindPFlag("source", rootCmd.PersistentFlags().Lookup("source")))
	cobra.CheckErr(viper.BindPFlag("desktop_device", rootCmd.PersistentFlags().Lookup("desktop-device")))
	cobra.CheckErr(viper.BindPFlag("transport", rootCmd.PersistentFlags().Lookup("transport")))
	cobra.CheckErr(viper.BindPFlag("list_desktop_devices", rootCmd.PersistentFlags().Lookup("list-desktop-devices")))
	cobra.CheckErr(viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")))
}

func initConfig() {
	if err := config.Init(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
}
