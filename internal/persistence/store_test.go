package persistence

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsErrNotFound(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "persistence.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	_, err = store.Load()
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "persistence.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	state := State{
		Cameras: []CameraRecord{{ID: 1, Lat: 1.0, Lon: 2.0, SleepMode: true}},
		DroneCenters: []DroneCenterRecord{
			{ID: 9, Lat: 3.0, Lon: 4.0, ConfigPath: "./drone_config.json", Address: "127.0.0.1:5000"},
		},
		Drones:    []DroneRecord{{ID: 2, Lat: 5.0, Lon: 6.0}},
		Incidents: []IncidentRecord{{Lat: 7.0, Lon: 8.0}},
	}
	if err := store.Save(state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Cameras) != 1 || loaded.Cameras[0].ID != 1 {
		t.Fatalf("unexpected cameras: %+v", loaded.Cameras)
	}
	if len(loaded.DroneCenters) != 1 || loaded.DroneCenters[0].Address != "127.0.0.1:5000" {
		t.Fatalf("unexpected drone centers: %+v", loaded.DroneCenters)
	}
	if len(loaded.Drones) != 1 || loaded.Drones[0].ID != 2 {
		t.Fatalf("unexpected drones: %+v", loaded.Drones)
	}
	if len(loaded.Incidents) != 1 || loaded.Incidents[0].Lat != 7.0 {
		t.Fatalf("unexpected incidents: %+v", loaded.Incidents)
	}
}
