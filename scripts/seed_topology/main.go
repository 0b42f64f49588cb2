// Command seed_topology registers warehouse locations from a JSON file
// against a running API instance. Used to bootstrap new environments.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

type location struct {
	Zone            string  `json:"zone"`
	Shelf           string  `json:"shelf"`
	Position        string  `json:"position"`
	Capacity        int     `json:"capacity"`
	Category        string  `json:"category,omitempty"`
	DistanceToEntry float64 `json:"distance_to_entry,omitempty"`
}

type topology struct {
	Locations []location `json:"locations"`
}

func main() {
	var (
		baseURL  string
		filePath string
		token    string
		timeout  time.Duration
	)

	flag.StringVar(&baseURL, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&filePath, "file", filepath.Join("scripts", "seed_topology", "topology.json"), "Path to JSON topology file")
	flag.StringVar(&token, "token", "", "Bearer token with admin or supervisor role")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	topo, err := loadTopology(filePath)
	if err != nil {
		log.Fatalf("failed to load topology: %v", err)
	}
	if len(topo.Locations) == 0 {
		log.Fatal("topology file contains no locations")
	}

	client := &http.Client{Timeout: timeout}
	endpoint := baseURL + "/api/v1/warehouse/locations"

	var created, skipped, failed int
	for _, loc := range topo.Locations {
		status, err := register(client, endpoint, token, loc)
		code := fmt.Sprintf("%s-%s-%s", loc.Zone, loc.Shelf, loc.Position)
		switch {
		case err != nil:
			failed++
			log.Printf("FAIL %s: %v", code, err)
		case status == http.StatusCreated:
			created++
			log.Printf("OK   %s", code)
		case status == http.StatusConflict:
			skipped++
			log.Printf("SKIP %s: already registered", code)
		default:
			failed++
			log.Printf("FAIL %s: unexpected status %d", code, status)
		}
	}

	fmt.Printf("\ncreated=%d skipped=%d failed=%d total=%d\n", created, skipped, failed, len(topo.Locations))
	if failed > 0 {
		os.Exit(1)
	}
}

func loadTopology(path string) (*topology, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var topo topology
	if err := json.Unmarshal(raw, &topo); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &topo, nil
}

func register(client *http.Client, endpoint, token string, loc location) (int, error) {
	payload, err := json.Marshal(loc)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
