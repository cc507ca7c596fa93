package orchestrator

import (
	"os"

	"github.com/AaronLay10/StrideQuest/internal/mission"
)

// LoadMissionFile reads and parses a mission document.
// I/O failures return *ReadError; structural failures return *mission.ParseError.
func LoadMissionFile(path string) (*mission.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}
	return mission.Parse(data)
}

// ReadMissionTitle returns the name of the mission stored at path.
func ReadMissionTitle(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &ReadError{Path: path, Err: err}
	}
	return mission.ReadTitle(data)
}
