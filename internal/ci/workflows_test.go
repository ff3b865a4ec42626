package ci_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestBuildArtifactsExist(t *testing.T) {
	t.Parallel()

	projectRoot := filepath.Clean(filepath.Join("..", ".."))
	artifacts := []struct {
		relativePath  string
		requiredSnips [][]byte
	}{
		{
			relativePath:  filepath.Join(".github", "workflows", "go-tests.yml"),
			requiredSnips: [][]byte{[]byte("go test ./..."), []byte("MUMBLEFISH_TEST_POSTGRES_URL")},
		},
		{
			relativePath:  filepath.Join(".github", "workflows", "release.yml"),
			requiredSnips: [][]byte{[]byte("docker build")},
		},
		{
			relativePath:  "Dockerfile",
			requiredSnips: [][]byte{[]byte("CGO_ENABLED=0"), []byte("./cmd/server")},
		},
	}

	for _, artifact := range artifacts {
		fullPath := filepath.Join(projectRoot, artifact.relativePath)
		data, err := os.ReadFile(fullPath)
		if err != nil {
			t.Fatalf("read %q: %v", artifact.relativePath, err)
		}
		for _, snippet := range artifact.requiredSnips {
			if !bytes.Contains(data, snippet) {
				t.Fatalf("%q missing required snippet %q", artifact.relativePath, string(snippet))
			}
		}
	}
}
