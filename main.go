package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds parsed command-line options
type AppOptions struct {
	ConfigFile  string
	StateFile   string
	HttpPort    int
	MqttMode    bool
	HttpMode    bool
	Simulate    bool
	RenderOnly  bool
	OutputFile  string
	Format      string
	PrintConfig bool
}

// Runner is the surface main drives; App implements it.
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunService() error
	RunRender() error
	RunPrintConfig(w io.Writer) error
}

func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("gridlock", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.StateFile, "state", "", "Path to persisted map/pose state (empty disables persistence)")
	fs.IntVar(&opts.HttpPort, "http-port", 0, "HTTP port (overrides http.port from config)")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Subscribe to camera frames and publish results over MQTT")
	fs.BoolVar(&opts.HttpMode, "http", false, "Serve pose, map and renders over HTTP")
	fs.BoolVar(&opts.Simulate, "simulate", false, "Drive the localizer from a simulated camera in the testing maze")
	fs.BoolVar(&opts.RenderOnly, "render", false, "Render the map and exit")
	fs.StringVar(&opts.OutputFile, "output", "walls.svg", "Output file for --render mode")
	fs.StringVar(&opts.Format, "format", "", "Render format: svg, png or geojson (default: from --output extension)")
	fs.BoolVar(&opts.PrintConfig, "print-config", false, "Print the effective configuration as YAML and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "gridlock version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.PrintConfig:
		return app.RunPrintConfig(out)
	case opts.RenderOnly:
		return app.RunRender()
	default:
		fmt.Fprintln(out, "gridlock service starting...")
		return app.RunService()
	}
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatal(err)
	}
}
