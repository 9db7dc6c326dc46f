package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"gopkg.in/yaml.v3"

	"github.com/kwv/gridlock/grid"
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *grid.Config
	Walls      *grid.WallMap
	Pose       *grid.PoseEstimate
	Feed       *grid.Feed
	Searcher   *grid.Searcher
	Integrator *grid.Integrator
	Loop       *grid.Loop
	Simulator  *grid.Simulator
	Maze       *grid.WallMap
	MQTTClient *grid.MQTTClient
	Publisher  *grid.Publisher
	Clock      clock.Clock

	// CLI Flags (effectively dependencies)
	ConfigFile string
	StateFile  string
	HttpPort   int
	MqttMode   bool
	HttpMode   bool
	Simulate   bool
	OutputFile string
	Format     string
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		Clock: clock.New(),
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.StateFile = opts.StateFile
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
	a.Simulate = opts.Simulate
	a.OutputFile = opts.OutputFile
	a.Format = opts.Format
}

// loadConfig reads the config file. A missing default config.yaml falls back
// to the built-in defaults; an explicitly named file must exist.
func (a *App) loadConfig() (*grid.Config, error) {
	path := a.ConfigFile
	if path == "" {
		path = "config.yaml"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) && path == "config.yaml" {
		log.Printf("No %s found, using built-in defaults", path)
		return grid.DefaultConfig(), nil
	}
	config, err := grid.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	log.Printf("Loaded config from %s", path)
	return config, nil
}

// Setup loads the configuration and wires the localization core. It is the
// only place a bad configuration is fatal.
func (a *App) Setup() error {
	if a.Config == nil {
		config, err := a.loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		a.Config = config
	}
	if err := a.Config.Validate(); err != nil {
		return err
	}
	if a.HttpPort == 0 {
		a.HttpPort = a.Config.HTTP.Port
	}
	if a.Clock == nil {
		a.Clock = clock.New()
	}

	searcher, err := grid.NewSearcher(a.Config.Grid, a.Config.Search)
	if err != nil {
		return err
	}
	a.Searcher = searcher

	start := grid.Pose{}
	if a.Simulate {
		start = a.Config.Simulation.Start.Add(a.Config.Simulation.InitialDrift)
	}

	a.Walls = grid.NewWallMap()
	a.Pose = grid.NewPoseEstimate(start)
	a.Feed = grid.NewFeed()
	a.Integrator = grid.NewIntegrator(searcher, a.Config.Camera.MountOffset, a.Config.Gates, a.Walls, a.Pose)

	if a.StateFile != "" {
		st, err := grid.LoadState(a.StateFile)
		switch {
		case err == nil:
			st.Restore(a.Walls, a.Pose, a.Integrator)
			log.Printf("Restored %d walls from %s", len(st.Walls), a.StateFile)
		case errors.Is(err, os.ErrNotExist):
			log.Printf("No state at %s yet, starting with an empty map", a.StateFile)
		default:
			log.Printf("Warning: failed to load state %s: %v", a.StateFile, err)
		}
	}

	a.Loop = grid.NewLoop(a.Integrator, a.Feed, a.Walls, a.Pose, a.Clock, a.Config.Loop.Period())
	a.Loop.SetStatePath(a.StateFile)

	if a.Simulate {
		maze, err := a.loadMaze()
		if err != nil {
			return err
		}
		a.Maze = maze
		a.Simulator = grid.NewSimulator(a.Config.Grid, maze, a.Config.Camera, a.Config.Simulation.Start, a.Config.Simulation.Seed)
	}

	log.Printf("Search: %d candidates per cycle, gates map<=%.4f correction<=%.4f",
		a.Config.Search.Candidates(), a.Config.Gates.MapErrorThreshold, a.Config.Gates.CorrectionErrorThreshold)
	return nil
}

// loadMaze resolves the simulator's ground truth
func (a *App) loadMaze() (*grid.WallMap, error) {
	sim := a.Config.Simulation
	switch {
	case len(sim.Walls) > 0:
		return grid.NewWallMap(sim.Walls...), nil
	case sim.MazeFile != "":
		maze, err := a.Config.Grid.LoadMaze(sim.MazeFile)
		if err != nil {
			return nil, fmt.Errorf("loading simulation maze: %w", err)
		}
		log.Printf("Loaded %d maze walls from %s", maze.Len(), sim.MazeFile)
		return maze, nil
	default:
		return grid.TestingMaze(), nil
	}
}

// RunService runs the control loop until SIGINT or SIGTERM
func (a *App) RunService() error {
	if err := a.Setup(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.MqttMode {
		client, err := grid.InitMQTT(a.Config.MQTT, a.Feed, a.Clock)
		if err != nil {
			return fmt.Errorf("initializing MQTT: %w", err)
		}
		if client != nil {
			a.MQTTClient = client
			a.Publisher = grid.NewPublisher(client.Client(), a.Config.MQTT.PublishPrefix)
			a.Loop.SetPublisher(a.Publisher)
		}
	}

	if a.Simulator != nil {
		var sink grid.FrameSink = a.Feed
		if a.MQTTClient != nil {
			sink = grid.NewMQTTFrameSink(a.MQTTClient.Client(), grid.ResolveMQTTConfig(a.Config.MQTT))
		}
		period := time.Duration(a.Config.Simulation.FramePeriodMs) * time.Millisecond
		if period <= 0 {
			period = a.Config.Loop.Period()
		}
		go func() {
			if err := a.Simulator.Run(ctx, a.Clock, period, a.Config.Simulation.TurnRate, sink, a.Pose); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("[SIM] stopped: %v", err)
			}
		}()
	}

	if a.HttpMode {
		srv := &http.Server{
			Addr:              fmt.Sprintf("0.0.0.0:%d", a.HttpPort),
			Handler:           newHTTPServer(a),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Printf("[HTTP] Starting server on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[HTTP] Server error: %v", err)
				stop()
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	a.printServiceInfo(os.Stdout)

	err := a.Loop.Run(ctx)

	fmt.Println("\nShutting down service...")
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	if a.StateFile != "" {
		if err := grid.SaveState(grid.CaptureState(a.Walls, a.Pose, a.Integrator), a.StateFile); err != nil {
			log.Printf("Warning: failed to save state: %v", err)
		}
	}
	fmt.Println("Service stopped")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) printServiceInfo(w io.Writer) {
	fmt.Fprintln(w, "\nService Running")
	fmt.Fprintln(w, "===============")
	fmt.Fprintf(w, "  Grid: %.3fm cells, camera offset %.3fm\n", a.Config.Grid.Size, a.Config.Camera.MountOffset)
	fmt.Fprintf(w, "  Control loop: every %v\n", a.Config.Loop.Period())

	if a.Simulator != nil {
		fmt.Fprintf(w, "  Simulated camera: %d ground-truth walls\n", a.Maze.Len())
	}

	if a.MQTTClient != nil {
		fmt.Fprintln(w, "\nMQTT:")
		fmt.Fprintf(w, "  Camera walls: %s\n", a.Config.MQTT.WallsTopic)
		if a.Config.MQTT.TrackedTopic != "" {
			fmt.Fprintf(w, "  Tracked object: %s\n", a.Config.MQTT.TrackedTopic)
		}
		fmt.Fprintf(w, "  Publishing to: %s, %s, %s\n",
			a.Publisher.Topic("pose"), a.Publisher.Topic("walls"), a.Publisher.Topic("tracked"))
	}

	if a.HttpMode {
		fmt.Fprintf(w, "\nHTTP endpoints (port %d):\n", a.HttpPort)
		fmt.Fprintln(w, "  GET /health         - Health check and loop stats")
		fmt.Fprintln(w, "  GET /pose           - Current pose estimate")
		fmt.Fprintln(w, "  GET /walls          - Mapped walls (JSON)")
		fmt.Fprintln(w, "  GET /walls.geojson  - Mapped walls (GeoJSON, meters)")
		fmt.Fprintln(w, "  GET /walls.svg      - Map render (SVG)")
		fmt.Fprintln(w, "  GET /walls.png      - Map render (PNG)")
		fmt.Fprintln(w, "  GET /tracked        - Tracked object cell")
		fmt.Fprintln(w, "  GET /visible        - Walls visible from the current pose")
	}

	fmt.Fprintln(w, "\nPress Ctrl+C to stop")
}

// RunRender writes the current map to OutputFile and exits. With --simulate
// the ground-truth maze is rendered, highlighting what the camera sees from
// the simulation start pose.
func (a *App) RunRender() error {
	if err := a.Setup(); err != nil {
		return err
	}

	view := grid.MapView{Walls: a.Walls.Snapshot()}
	robot := a.Pose.Get()
	view.Robot = &robot
	if c, ok := a.Integrator.TrackedCell(); ok {
		view.Tracked = &c
	}
	if a.Simulator != nil {
		truth := a.Simulator.Truth()
		view.Walls = a.Maze.Snapshot()
		view.Robot = &truth
		view.Visible = a.Maze.FindVisible(a.Config.Grid, grid.CameraPose(truth, a.Config.Camera.MountOffset), a.Config.Visibility())
		view.Label = fmt.Sprintf("ground truth, %d walls, %d visible", len(view.Walls), len(view.Visible))
	} else {
		view.Label = fmt.Sprintf("%d walls", len(view.Walls))
	}

	format := a.Format
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(a.OutputFile), ".")
	}

	f, err := os.Create(a.OutputFile)
	if err != nil {
		return fmt.Errorf("creating %s: %w", a.OutputFile, err)
	}
	defer f.Close()

	if err := writeMap(f, format, a.Config.Grid, view); err != nil {
		return err
	}
	fmt.Printf("Rendered %d walls to %s\n", len(view.Walls), a.OutputFile)
	return nil
}

// writeMap encodes a map view as svg, png or geojson
func writeMap(w io.Writer, format string, g grid.Grid, view grid.MapView) error {
	switch strings.ToLower(format) {
	case "svg":
		return grid.NewMapRenderer(g).RenderToSVG(w, view)
	case "png":
		return grid.NewMapRenderer(g).RenderToPNG(w, view)
	case "geojson", "json":
		data, err := g.ToFeatureCollection(view.Walls, view.Robot, view.Tracked).MarshalJSON()
		if err != nil {
			return fmt.Errorf("marshaling geojson: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unknown render format %q (want svg, png or geojson)", format)
	}
}

// RunPrintConfig prints the effective configuration, environment overrides
// included, as YAML.
func (a *App) RunPrintConfig(w io.Writer) error {
	config, err := a.loadConfig()
	if err != nil {
		return err
	}
	effective := *config
	effective.MQTT = grid.ResolveMQTTConfig(config.MQTT)
	if effective.MQTT.Password != "" {
		effective.MQTT.Password = "********"
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&effective); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return enc.Close()
}
