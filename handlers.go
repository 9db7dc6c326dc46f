package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/paulmach/orb"

	"github.com/kwv/gridlock/grid"
)

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(a *App) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		status := struct {
			Status        string         `json:"status"`
			Timestamp     time.Time      `json:"timestamp"`
			Walls         int            `json:"walls"`
			MQTTConnected bool           `json:"mqttConnected"`
			Loop          grid.LoopStats `json:"loop"`
			Feed          grid.FeedStats `json:"feed"`
		}{
			Status:        "ok",
			Timestamp:     time.Now(),
			Walls:         a.Walls.Len(),
			MQTTConnected: a.MQTTClient != nil && a.MQTTClient.IsConnected(),
			Loop:          a.Loop.Stats(),
			Feed:          a.Feed.Stats(),
		}
		writeJSON(w, status)
	})

	mux.HandleFunc("/pose", func(w http.ResponseWriter, r *http.Request) {
		robot := a.Pose.Get()
		resp := struct {
			Robot     grid.Pose  `json:"robot"`
			Camera    grid.Pose  `json:"camera"`
			Cell      grid.Cell  `json:"cell"`
			UpdatedAt time.Time  `json:"updatedAt"`
			Truth     *grid.Pose `json:"truth,omitempty"`
		}{
			Robot:     robot,
			Camera:    grid.CameraPose(robot, a.Config.Camera.MountOffset),
			Cell:      a.Config.Grid.CellOf(orb.Point{robot.X, robot.Y}),
			UpdatedAt: a.Pose.UpdatedAt(),
		}
		if a.Simulator != nil {
			truth := a.Simulator.Truth()
			resp.Truth = &truth
		}
		writeJSON(w, resp)
	})

	mux.HandleFunc("/walls", func(w http.ResponseWriter, r *http.Request) {
		walls := a.Walls.Snapshot().Sorted()
		writeJSON(w, grid.WallsPayload{Count: len(walls), Walls: walls, Timestamp: time.Now().Unix()})
	})

	mux.HandleFunc("/tracked", func(w http.ResponseWriter, r *http.Request) {
		c, ok := a.Integrator.TrackedCell()
		if !ok {
			http.Error(w, "Tracked object not seen yet", http.StatusNotFound)
			return
		}
		writeJSON(w, grid.TrackedPayload{Cell: c, Timestamp: time.Now().Unix()})
	})

	mux.HandleFunc("/visible", func(w http.ResponseWriter, r *http.Request) {
		camera := grid.CameraPose(a.Pose.Get(), a.Config.Camera.MountOffset)
		visible := a.Walls.FindVisible(a.Config.Grid, camera, a.Config.Visibility()).Sorted()
		writeJSON(w, grid.WallsPayload{Count: len(visible), Walls: visible, Timestamp: time.Now().Unix()})
	})

	renderHandler := func(format, contentType string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			view := currentView(a)
			w.Header().Set("Content-Type", contentType)
			w.Header().Set("Cache-Control", "no-cache")
			if err := writeMap(w, format, a.Config.Grid, view); err != nil {
				log.Printf("[HTTP] Error rendering %s: %v", format, err)
			}
		}
	}
	mux.HandleFunc("/walls.geojson", renderHandler("geojson", "application/geo+json"))
	mux.HandleFunc("/walls.svg", renderHandler("svg", "image/svg+xml"))
	mux.HandleFunc("/walls.png", renderHandler("png", "image/png"))

	return mux
}

// currentView is the estimated map with the robot, the tracked cell and the
// walls the camera should currently see.
func currentView(a *App) grid.MapView {
	robot := a.Pose.Get()
	view := grid.MapView{
		Walls: a.Walls.Snapshot(),
		Robot: &robot,
	}
	if c, ok := a.Integrator.TrackedCell(); ok {
		view.Tracked = &c
	}
	camera := grid.CameraPose(robot, a.Config.Camera.MountOffset)
	view.Visible = a.Walls.FindVisible(a.Config.Grid, camera, a.Config.Visibility())
	view.Label = fmt.Sprintf("%d walls, search error %.4f", len(view.Walls), a.Loop.Stats().LastError)
	return view
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] Error encoding response: %v", err)
	}
}
