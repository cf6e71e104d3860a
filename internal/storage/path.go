package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

const (
	datasetRoot  = "datasets"
	artifactRoot = "artifacts"
)

type KeyKind string

const (
	KindDataset  KeyKind = "dataset"
	KindArtifact KeyKind = "artifact"
)

// Key is a parsed object key of either layout.
type Key struct {
	Kind   KeyKind
	FileID string
	Name   string
}

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildDatasetPath returns the key of the raw upload for fileID.
func BuildDatasetPath(fileID string) (string, error) {
	if err := validatePathComponent(fileID, "file id"); err != nil {
		return "", err
	}
	return path.Join(datasetRoot, fileID, "source.csv"), nil
}

// BuildArtifactPath returns the key of a download artifact. Artifacts are
// grouped under their dataset so a reset can find them.
func BuildArtifactPath(fileID, token, extension string) (string, error) {
	if err := validatePathComponent(fileID, "file id"); err != nil {
		return "", err
	}
	if err := validatePathComponent(token, "download token"); err != nil {
		return "", err
	}
	if err := validatePathComponent(extension, "extension"); err != nil {
		return "", err
	}
	return path.Join(artifactRoot, fileID, token+"."+extension), nil
}

// ArtifactPrefix returns the key prefix shared by every artifact of fileID.
func ArtifactPrefix(fileID string) (string, error) {
	if err := validatePathComponent(fileID, "file id"); err != nil {
		return "", err
	}
	return artifactRoot + "/" + fileID + "/", nil
}

// ParseKey splits a key built by BuildDatasetPath or BuildArtifactPath.
func ParseKey(key string) (Key, error) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 {
		return Key{}, fmt.Errorf("object key %q does not follow the dataset or artifact layout", key)
	}
	var kind KeyKind
	switch parts[0] {
	case datasetRoot:
		kind = KindDataset
	case artifactRoot:
		kind = KindArtifact
	default:
		return Key{}, fmt.Errorf("object key %q has unknown root %q", key, parts[0])
	}
	if err := validatePathComponent(parts[1], "file id"); err != nil {
		return Key{}, err
	}
	if err := validatePathComponent(parts[2], "object name"); err != nil {
		return Key{}, err
	}
	return Key{Kind: kind, FileID: parts[1], Name: parts[2]}, nil
}

// ContentTypeFor guesses the media type from the object name.
func ContentTypeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv":
		return "text/csv"
	case ".parquet":
		return "application/vnd.apache.parquet"
	}
	return "application/octet-stream"
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
